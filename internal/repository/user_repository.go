package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"boutique/internal/middleware"
)

type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{collection: db.Collection(CollectionUsers)}
}

var _ middleware.UserStatus = (*UserRepository)(nil)

func (r *UserRepository) UserActive(ctx context.Context, userID primitive.ObjectID) (bool, error) {
	var doc struct {
		IsActive bool `bson:"isActive"`
	}
	err := r.collection.FindOne(ctx,
		bson.M{"_id": userID},
		options.FindOne().SetProjection(bson.M{"isActive": 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load user status: %w", err)
	}
	return doc.IsActive, nil
}
