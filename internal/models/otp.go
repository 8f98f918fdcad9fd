package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Otp is a pending one-time login code. Only the hash of the code is kept.
type Otp struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Mobile    string             `bson:"mobile"`
	CodeHash  string             `bson:"codeHash"`
	Attempts  int                `bson:"attempts"`
	ExpiresAt time.Time          `bson:"expiresAt"`
	CreatedAt time.Time          `bson:"createdAt"`
}
