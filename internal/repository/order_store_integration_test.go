//go:build integration

package repository_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"boutique/internal/database"
	"boutique/internal/models"
	"boutique/internal/orders"
	"boutique/internal/repository"
)

func startMongo(t *testing.T) *mongo.Database {
	t.Helper()
	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7", mongodb.WithReplicaSet("rs0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	if !strings.Contains(uri, "?") {
		uri += "?"
	} else {
		uri += "&"
	}
	uri += "directConnection=true"

	client, err := database.Connect(uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(ctx) })

	db := client.Database("boutique_test")
	require.NoError(t, database.EnsureIndexes(db))
	return db
}

type fixture struct {
	userID    primitive.ObjectID
	addressID primitive.ObjectID
	productID primitive.ObjectID
}

func seed(t *testing.T, db *mongo.Database, stock, qty int) fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	f := fixture{
		userID:    primitive.NewObjectID(),
		addressID: primitive.NewObjectID(),
		productID: primitive.NewObjectID(),
	}

	_, err := db.Collection(repository.CollectionProducts).InsertOne(ctx, models.Product{
		ID:        f.productID,
		Name:      "Linen Kurta",
		Price:     100,
		Category:  "Kurtas",
		Stock:     stock,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)

	_, err = db.Collection(repository.CollectionAddresses).InsertOne(ctx, models.Address{
		ID:        f.addressID,
		UserID:    f.userID,
		FullName:  "Asha Rao",
		Street:    "12 MG Road",
		City:      "Bengaluru",
		State:     "KA",
		Country:   "IN",
		ZipCode:   "560001",
		IsDefault: true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)

	_, err = db.Collection(repository.CollectionCarts).InsertOne(ctx, models.Cart{
		UserID:    f.userID,
		Items:     []models.CartItem{{ProductID: f.productID, Quantity: qty, AddedAt: now}},
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	return f
}

func stockOf(t *testing.T, db *mongo.Database, id primitive.ObjectID) int {
	t.Helper()
	var p models.Product
	require.NoError(t, db.Collection(repository.CollectionProducts).FindOne(context.Background(), bson.M{"_id": id}).Decode(&p))
	return p.Stock
}

func TestCheckoutCommitsAtomically(t *testing.T) {
	db := startMongo(t)
	ctx := context.Background()
	svc := orders.NewService(repository.NewOrderStore(db), orders.Config{Pricing: orders.DefaultPricing()})

	f := seed(t, db, 3, 2)
	view, err := svc.Checkout(ctx, f.userID, f.addressID, decimal.RequireFromString("210"))
	require.NoError(t, err)

	assert.Equal(t, 210.0, view.PaymentDetails.TotalPrice)
	assert.Equal(t, 1, stockOf(t, db, f.productID))

	carts, err := db.Collection(repository.CollectionCarts).CountDocuments(ctx, bson.M{"userId": f.userID})
	require.NoError(t, err)
	assert.Zero(t, carts)

	pending, err := repository.NewOutboxRepository(db).GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.EventOrderCreated, pending[0].EventType)
	assert.Equal(t, view.ID.Hex(), pending[0].AggregateID)

	// Cancelling puts the units back.
	_, err = svc.UpdateStatus(ctx, view.ID, "Cancelled")
	require.NoError(t, err)
	assert.Equal(t, 3, stockOf(t, db, f.productID))
}

func TestCheckoutRollsBackOnShortStock(t *testing.T) {
	db := startMongo(t)
	ctx := context.Background()
	svc := orders.NewService(repository.NewOrderStore(db), orders.Config{Pricing: orders.DefaultPricing()})

	f := seed(t, db, 1, 2)
	_, err := svc.Checkout(ctx, f.userID, f.addressID, decimal.RequireFromString("210"))

	var vErr *orders.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 1, stockOf(t, db, f.productID))

	count, err := db.Collection(repository.CollectionOrders).CountDocuments(ctx, bson.M{"user": f.userID})
	require.NoError(t, err)
	assert.Zero(t, count)

	carts, err := db.Collection(repository.CollectionCarts).CountDocuments(ctx, bson.M{"userId": f.userID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), carts)
}

// raceCheckouts points every shopper's cart at the first shopper's product
// and checks them all out at once.
func raceCheckouts(t *testing.T, db *mongo.Database, svc *orders.Service, shoppers []fixture, total string) []error {
	t.Helper()
	ctx := context.Background()
	for _, f := range shoppers[1:] {
		_, err := db.Collection(repository.CollectionCarts).UpdateOne(ctx,
			bson.M{"userId": f.userID},
			bson.M{"$set": bson.M{"items.0.productId": shoppers[0].productID}},
		)
		require.NoError(t, err)
	}

	errs := make([]error, len(shoppers))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, f := range shoppers {
		wg.Add(1)
		go func(i int, f fixture) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Checkout(ctx, f.userID, f.addressID, decimal.RequireFromString(total))
		}(i, f)
	}
	close(start)
	wg.Wait()
	return errs
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	db := startMongo(t)
	svc := orders.NewService(repository.NewOrderStore(db), orders.Config{Pricing: orders.DefaultPricing()})

	first := seed(t, db, 1, 1)
	second := seed(t, db, 1, 1)
	errs := raceCheckouts(t, db, svc, []fixture{first, second}, "105")

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		// The loser sees the winner's committed decrement, whether it lost
		// on the predicate or on a write conflict that was retried.
		var vErr *orders.ValidationError
		require.ErrorAs(t, err, &vErr)
		require.Len(t, vErr.Items, 1)
		assert.Equal(t, orders.ProblemInsufficientStock, vErr.Items[0].Reason)
		assert.Equal(t, first.productID, vErr.Items[0].ProductID)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, stockOf(t, db, first.productID))
}

func TestConcurrentCheckoutsWithEnoughStockBothSucceed(t *testing.T) {
	db := startMongo(t)
	ctx := context.Background()
	svc := orders.NewService(repository.NewOrderStore(db), orders.Config{Pricing: orders.DefaultPricing()})

	first := seed(t, db, 2, 1)
	second := seed(t, db, 2, 1)
	errs := raceCheckouts(t, db, svc, []fixture{first, second}, "105")

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 0, stockOf(t, db, first.productID))

	count, err := db.Collection(repository.CollectionOrders).CountDocuments(ctx, bson.M{
		"user": bson.M{"$in": []primitive.ObjectID{first.userID, second.userID}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
