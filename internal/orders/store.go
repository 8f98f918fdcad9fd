package orders

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"boutique/internal/models"
)

// CartLine is one cart entry joined with its product. Product is nil when
// the product no longer exists or was deleted.
type CartLine struct {
	ProductID primitive.ObjectID
	Quantity  int
	Product   *models.Product
}

// Store is the read side of the order domain plus the transaction boundary.
// Implementations return ErrCartNotFound, ErrAddressNotFound and
// ErrOrderNotFound for missing documents.
type Store interface {
	LoadCart(ctx context.Context, userID primitive.ObjectID) ([]CartLine, error)
	FindAddress(ctx context.Context, userID, addressID primitive.ObjectID) (*models.Address, error)
	FindProducts(ctx context.Context, ids []primitive.ObjectID) ([]models.Product, error)
	FindOrder(ctx context.Context, orderID primitive.ObjectID) (*models.Order, error)
	FindUserOrder(ctx context.Context, userID, orderID primitive.ObjectID) (*models.Order, error)
	CountUserOrders(ctx context.Context, userID primitive.ObjectID) (int64, error)
	// UserOrderAt returns the user's order at the given offset, newest first.
	UserOrderAt(ctx context.Context, userID primitive.ObjectID, offset int64) (*models.Order, error)

	// WithTransaction runs fn inside one all-or-nothing transaction. When fn
	// or the commit fails every write made through tx is discarded and the
	// error is returned unchanged. fn may run more than once when the
	// transaction conflicts with a concurrent writer, each time against
	// freshly committed state.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the write side available inside a transaction.
type Tx interface {
	// DecrementStock subtracts qty only while stock >= qty. It reports false
	// when the predicate did not match.
	DecrementStock(ctx context.Context, productID primitive.ObjectID, qty int) (bool, error)
	IncrementStock(ctx context.Context, productID primitive.ObjectID, qty int) error
	InsertOrder(ctx context.Context, order *models.Order) (primitive.ObjectID, error)
	DeleteCart(ctx context.Context, userID primitive.ObjectID) error
	// SetOrderStatus and SetPaymentStatus apply only while the stored value
	// still equals from. They report false otherwise.
	SetOrderStatus(ctx context.Context, orderID primitive.ObjectID, from, to models.OrderStatus, at time.Time) (bool, error)
	SetPaymentStatus(ctx context.Context, orderID primitive.ObjectID, from, to models.PaymentStatus, at time.Time) (bool, error)
	AppendEvent(ctx context.Context, event models.OutboxEvent) error
}

// CartInvalidator drops any cached copy of a user's cart.
type CartInvalidator interface {
	Invalidate(ctx context.Context, userID primitive.ObjectID)
}
