package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Address is a single address book entry. Orders keep a reference to it.
type Address struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID       primitive.ObjectID `bson:"userId" json:"userId"`
	FullName     string             `bson:"fullName" json:"fullName"`
	ContactPhone string             `bson:"contactPhone,omitempty" json:"contactPhone,omitempty"`
	Street       string             `bson:"street" json:"street"`
	City         string             `bson:"city" json:"city"`
	State        string             `bson:"state" json:"state"`
	Country      string             `bson:"country" json:"country"`
	ZipCode      string             `bson:"zipCode" json:"zipCode"`
	Email        string             `bson:"email,omitempty" json:"email,omitempty"`
	IsDefault    bool               `bson:"isDefault" json:"isDefault"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}
