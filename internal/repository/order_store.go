package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"boutique/internal/models"
	"boutique/internal/orders"
)

// OrderStore is the MongoDB implementation of orders.Store.
type OrderStore struct {
	db        *mongo.Database
	carts     *mongo.Collection
	products  *mongo.Collection
	addresses *mongo.Collection
	orders    *mongo.Collection
	events    *mongo.Collection
}

func NewOrderStore(db *mongo.Database) *OrderStore {
	return &OrderStore{
		db:        db,
		carts:     db.Collection(CollectionCarts),
		products:  db.Collection(CollectionProducts),
		addresses: db.Collection(CollectionAddresses),
		orders:    db.Collection(CollectionOrders),
		events:    db.Collection(CollectionOrderEvents),
	}
}

var _ orders.Store = (*OrderStore)(nil)

func (s *OrderStore) LoadCart(ctx context.Context, userID primitive.ObjectID) ([]orders.CartLine, error) {
	var cart models.Cart
	err := s.carts.FindOne(ctx, bson.M{"userId": userID}).Decode(&cart)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, orders.ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	ids := make([]primitive.ObjectID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.findProducts(ctx, bson.M{"_id": bson.M{"$in": ids}, "isDeleted": bson.M{"$ne": true}})
	if err != nil {
		return nil, err
	}
	index := make(map[primitive.ObjectID]*models.Product, len(products))
	for i := range products {
		index[products[i].ID] = &products[i]
	}

	lines := make([]orders.CartLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, orders.CartLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Product:   index[item.ProductID],
		})
	}
	return lines, nil
}

func (s *OrderStore) FindAddress(ctx context.Context, userID, addressID primitive.ObjectID) (*models.Address, error) {
	var address models.Address
	err := s.addresses.FindOne(ctx, bson.M{"_id": addressID, "userId": userID}).Decode(&address)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, orders.ErrAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get address: %w", err)
	}
	return &address, nil
}

func (s *OrderStore) FindProducts(ctx context.Context, ids []primitive.ObjectID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.findProducts(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

func (s *OrderStore) findProducts(ctx context.Context, filter bson.M) ([]models.Product, error) {
	cursor, err := s.products.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}
	defer cursor.Close(ctx)

	var products []models.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	return products, nil
}

func (s *OrderStore) FindOrder(ctx context.Context, orderID primitive.ObjectID) (*models.Order, error) {
	return s.findOrder(ctx, bson.M{"_id": orderID})
}

func (s *OrderStore) FindUserOrder(ctx context.Context, userID, orderID primitive.ObjectID) (*models.Order, error) {
	return s.findOrder(ctx, bson.M{"_id": orderID, "user": userID})
}

func (s *OrderStore) findOrder(ctx context.Context, filter bson.M) (*models.Order, error) {
	var order models.Order
	err := s.orders.FindOne(ctx, filter).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

func (s *OrderStore) CountUserOrders(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.orders.CountDocuments(ctx, bson.M{"user": userID})
}

func (s *OrderStore) UserOrderAt(ctx context.Context, userID primitive.ObjectID, offset int64) (*models.Order, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(offset)
	var order models.Order
	err := s.orders.FindOne(ctx, bson.M{"user": userID}, opts).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order page: %w", err)
	}
	return &order, nil
}

// WithTransaction runs fn in a snapshot, majority-acknowledged transaction.
// The driver reruns fn from the start on TransientTransactionError (a write
// conflict with a concurrent checkout, say) and retries commits whose result
// is unknown, so fn must not keep state across attempts. Aborts run on a
// detached context, so a cancelled request still rolls back.
func (s *OrderStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	session, err := s.db.Client().StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(context.Background())

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	attempts := 0
	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		attempts++
		if attempts > 1 {
			log.Printf("[ORDER] [WARN] transaction retry %d after transient error", attempts-1)
		}
		return nil, fn(sessCtx, &orderTx{store: s})
	}, txnOpts)
	if err != nil {
		if isTransientTxnError(err) {
			return fmt.Errorf("transaction gave up after %d attempts: %w", attempts, err)
		}
		return err
	}
	return nil
}

// isTransientTxnError reports whether err still carries a label the driver
// retries on, which only happens once its retry window is spent.
func isTransientTxnError(err error) bool {
	var labeled mongo.LabeledError
	if !errors.As(err, &labeled) {
		return false
	}
	return labeled.HasErrorLabel("TransientTransactionError") ||
		labeled.HasErrorLabel("UnknownTransactionCommitResult")
}

type orderTx struct {
	store *OrderStore
}

func (t *orderTx) DecrementStock(ctx context.Context, productID primitive.ObjectID, qty int) (bool, error) {
	filter := bson.M{
		"_id":       productID,
		"isDeleted": bson.M{"$ne": true},
		"stock":     bson.M{"$gte": qty},
	}
	update := bson.M{
		"$inc": bson.M{"stock": -qty},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	res, err := t.store.products.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (t *orderTx) IncrementStock(ctx context.Context, productID primitive.ObjectID, qty int) error {
	_, err := t.store.products.UpdateOne(ctx,
		bson.M{"_id": productID},
		bson.M{
			"$inc": bson.M{"stock": qty},
			"$set": bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	return err
}

func (t *orderTx) InsertOrder(ctx context.Context, order *models.Order) (primitive.ObjectID, error) {
	res, err := t.store.orders.InsertOne(ctx, order)
	if err != nil {
		return primitive.NilObjectID, err
	}
	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("unexpected order id type %T", res.InsertedID)
	}
	return id, nil
}

func (t *orderTx) DeleteCart(ctx context.Context, userID primitive.ObjectID) error {
	res, err := t.store.carts.DeleteOne(ctx, bson.M{"userId": userID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return orders.ErrCartNotFound
	}
	return nil
}

func (t *orderTx) SetOrderStatus(ctx context.Context, orderID primitive.ObjectID, from, to models.OrderStatus, at time.Time) (bool, error) {
	res, err := t.store.orders.UpdateOne(ctx,
		bson.M{"_id": orderID, "orderStatus": from},
		bson.M{"$set": bson.M{"orderStatus": to, "updatedAt": at}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (t *orderTx) SetPaymentStatus(ctx context.Context, orderID primitive.ObjectID, from, to models.PaymentStatus, at time.Time) (bool, error) {
	res, err := t.store.orders.UpdateOne(ctx,
		bson.M{"_id": orderID, "paymentStatus": from},
		bson.M{"$set": bson.M{"paymentStatus": to, "updatedAt": at}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (t *orderTx) AppendEvent(ctx context.Context, event models.OutboxEvent) error {
	_, err := t.store.events.InsertOne(ctx, event)
	return err
}
