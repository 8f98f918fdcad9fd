package database

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// collectionIndexes lists every index the service depends on. Unique
// indexes back invariants (one cart per user, one account per phone).
var collectionIndexes = map[string][]mongo.IndexModel{
	"users": {
		{
			Keys:    bson.D{{Key: "phone", Value: 1}},
			Options: options.Index().SetName("phone_unique").SetUnique(true),
		},
	},
	"admins": {
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("email_unique").SetUnique(true),
		},
	},
	"addresses": {
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "isDefault", Value: -1}},
			Options: options.Index().SetName("userId_default"),
		},
	},
	"carts": {
		{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().SetName("userId_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updatedAt", Value: 1}},
			Options: options.Index().SetName("updatedAt_ttl").SetExpireAfterSeconds(90 * 24 * 60 * 60),
		},
	},
	"products": {
		{
			Keys:    bson.D{{Key: "category", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("category_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "brand", Value: 1}},
			Options: options.Index().SetName("brand_index"),
		},
	},
	"orders": {
		{
			Keys:    bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("user_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "shippingAddress", Value: 1}},
			Options: options.Index().SetName("shippingAddress_index"),
		},
	},
	"refunds": {
		{
			Keys:    bson.D{{Key: "orderId", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("orderId_status"),
		},
	},
	"otps": {
		{
			Keys:    bson.D{{Key: "mobile", Value: 1}},
			Options: options.Index().SetName("mobile_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetName("expiresAt_ttl").SetExpireAfterSeconds(0),
		},
	},
	"refresh_tokens": {
		{
			Keys:    bson.D{{Key: "tokenHash", Value: 1}},
			Options: options.Index().SetName("tokenHash_unique").SetUnique(true),
		},
	},
	"order_events": {
		{
			Keys:    bson.D{{Key: "processed", Value: 1}, {Key: "createdAt", Value: 1}},
			Options: options.Index().SetName("processed_createdAt"),
		},
	},
}

// EnsureIndexes creates all indexes. A failure on one collection is logged
// and the remaining collections are still processed; the first error is
// returned.
func EnsureIndexes(db *mongo.Database) error {
	var firstErr error
	for collection, models := range collectionIndexes {
		if err := ensureCollectionIndexes(db, collection, models); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func ensureCollectionIndexes(db *mongo.Database, collection string, models []mongo.IndexModel) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Printf("EnsureIndexes: creating %d index(es) on %s", len(models), collection)
	names, err := db.Collection(collection).Indexes().CreateMany(ctx, models)
	if err != nil {
		log.Printf("EnsureIndexes: %s index error: %v", collection, err)
		return err
	}
	log.Printf("EnsureIndexes: %s indexes ready: %v", collection, names)
	return nil
}
