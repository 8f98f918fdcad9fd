package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventPaymentChanged     = "order.payment_status_changed"
)

// OutboxEvent is written in the same transaction as the change it
// describes and published later by the outbox poller.
type OutboxEvent struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	AggregateID string             `bson:"aggregateId"`
	EventType   string             `bson:"eventType"`
	Payload     []byte             `bson:"payload"`
	Processed   bool               `bson:"processed"`
	CreatedAt   time.Time          `bson:"createdAt"`
	ProcessedAt *time.Time         `bson:"processedAt,omitempty"`
}
