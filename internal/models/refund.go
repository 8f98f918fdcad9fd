package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RefundStatus string

const (
	RefundStatusRequested RefundStatus = "Requested"
	RefundStatusApproved  RefundStatus = "Approved"
	RefundStatusRejected  RefundStatus = "Rejected"
	RefundStatusProcessed RefundStatus = "Processed"
)

type Refund struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID  `bson:"userId" json:"userId"`
	OrderID   primitive.ObjectID  `bson:"orderId" json:"orderId"`
	ProductID *primitive.ObjectID `bson:"productId,omitempty" json:"productId,omitempty"`
	Amount    float64             `bson:"amount" json:"amount"`
	Reason    string              `bson:"reason" json:"reason"`
	Status    RefundStatus        `bson:"status" json:"status"`
	Note      string              `bson:"note,omitempty" json:"note,omitempty"`
	CreatedAt time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time           `bson:"updatedAt" json:"updatedAt"`
}
