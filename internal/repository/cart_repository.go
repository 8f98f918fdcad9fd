package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"boutique/internal/cart"
	"boutique/internal/models"
)

type CartRepository struct {
	collection *mongo.Collection
}

func NewCartRepository(db *mongo.Database) *CartRepository {
	return &CartRepository{collection: db.Collection(CollectionCarts)}
}

var _ cart.Repository = (*CartRepository)(nil)

func (m *CartRepository) GetCart(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	var c models.Cart
	err := m.collection.FindOne(ctx, bson.M{"userId": userID}).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, cart.ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return &c, nil
}

// AddItem first tries to bump an existing line. Otherwise it pushes a new
// line, upserting the cart; the filter excludes carts that already hold the
// product, so a concurrent push surfaces as a duplicate key on userId and
// the increment is retried.
func (m *CartRepository) AddItem(ctx context.Context, userID, productID primitive.ObjectID, quantity int) error {
	for attempt := 0; attempt < 3; attempt++ {
		now := time.Now().UTC()
		res, err := m.collection.UpdateOne(ctx,
			bson.M{"userId": userID, "items.productId": productID},
			bson.M{
				"$inc": bson.M{"items.$.quantity": quantity},
				"$set": bson.M{"items.$.addedAt": now, "updatedAt": now},
			},
		)
		if err != nil {
			return fmt.Errorf("failed to update existing item: %w", err)
		}
		if res.MatchedCount == 1 {
			return nil
		}

		item := models.CartItem{ProductID: productID, Quantity: quantity, AddedAt: now}
		_, err = m.collection.UpdateOne(ctx,
			bson.M{"userId": userID, "items.productId": bson.M{"$ne": productID}},
			bson.M{
				"$push":        bson.M{"items": item},
				"$set":         bson.M{"updatedAt": now},
				"$setOnInsert": bson.M{"createdAt": now},
			},
			options.Update().SetUpsert(true),
		)
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to add new item: %w", err)
		}
	}
	return fmt.Errorf("failed to add item: cart for %s kept changing", userID.Hex())
}

func (m *CartRepository) SetItemQuantity(ctx context.Context, userID, productID primitive.ObjectID, quantity int) error {
	now := time.Now().UTC()
	res, err := m.collection.UpdateOne(ctx,
		bson.M{"userId": userID, "items.productId": productID},
		bson.M{"$set": bson.M{"items.$.quantity": quantity, "updatedAt": now}},
	)
	if err != nil {
		return fmt.Errorf("failed to update item quantity: %w", err)
	}
	if res.MatchedCount == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

func (m *CartRepository) RemoveItem(ctx context.Context, userID, productID primitive.ObjectID) error {
	res, err := m.collection.UpdateOne(ctx,
		bson.M{"userId": userID, "items.productId": productID},
		bson.M{
			"$pull": bson.M{"items": bson.M{"productId": productID}},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}
	if res.MatchedCount == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

func (m *CartRepository) DeleteCart(ctx context.Context, userID primitive.ObjectID) error {
	res, err := m.collection.DeleteOne(ctx, bson.M{"userId": userID})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	if res.DeletedCount == 0 {
		return cart.ErrCartNotFound
	}
	return nil
}
