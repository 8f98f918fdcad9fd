package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"boutique/internal/models"
)

type checkoutFixture struct {
	store   *memStore
	carts   *recordingInvalidator
	svc     *Service
	userID  primitive.ObjectID
	address models.Address
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	store := newMemStore()
	carts := &recordingInvalidator{}
	userID := primitive.NewObjectID()
	return &checkoutFixture{
		store:   store,
		carts:   carts,
		svc:     NewService(store, Config{Pricing: DefaultPricing(), Currency: "INR", Carts: carts}),
		userID:  userID,
		address: store.addAddress(userID),
	}
}

func item(p models.Product, qty int) models.CartItem {
	return models.CartItem{ProductID: p.ID, Quantity: qty}
}

func TestCheckoutCreatesOrder(t *testing.T) {
	f := newCheckoutFixture(t)
	p1 := f.store.addProduct("Linen Kurta", 100, 5)
	f.store.setCart(f.userID, item(p1, 2))

	view, err := f.svc.Checkout(context.Background(), f.userID, f.address.ID, decimal.NewFromInt(210))
	require.NoError(t, err)

	assert.Equal(t, 200.0, view.PaymentDetails.Subtotal)
	assert.Equal(t, 10.0, view.PaymentDetails.Tax)
	assert.Equal(t, 210.0, view.PaymentDetails.TotalPrice)
	assert.Equal(t, models.OrderStatusProcessing, view.OrderStatus)
	assert.Equal(t, models.PaymentStatusPending, view.PaymentStatus)
	assert.Equal(t, models.PaymentMethodCOD, view.PaymentMethod)
	assert.Equal(t, "INR", view.Currency)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "Linen Kurta", view.Items[0].Name)
	assert.Equal(t, 100.0, view.Items[0].Price)
	require.NotNil(t, view.ShippingAddress)
	assert.Equal(t, f.address.ID, view.ShippingAddress.ID)

	assert.Equal(t, 1, f.store.orderCount())
	assert.Equal(t, 3, f.store.stock(p1.ID))
	assert.False(t, f.store.hasCart(f.userID))
	assert.Equal(t, []string{models.EventOrderCreated}, f.store.eventTypes())
	assert.Equal(t, []primitive.ObjectID{f.userID}, f.carts.users)

	_, err = f.store.LoadCart(context.Background(), f.userID)
	assert.ErrorIs(t, err, ErrCartNotFound)
}

func TestCheckoutUsesSalePrice(t *testing.T) {
	f := newCheckoutFixture(t)
	p := f.store.addProduct("Silk Saree", 1000, 2)
	p.SaleEnabled = true
	p.SalePrice = 800
	f.store.products[p.ID] = p
	f.store.setCart(f.userID, item(p, 1))

	view, err := f.svc.Checkout(context.Background(), f.userID, f.address.ID, decimal.NewFromInt(840))
	require.NoError(t, err)
	assert.Equal(t, 800.0, view.Items[0].Price)
	assert.Equal(t, 840.0, view.PaymentDetails.TotalPrice)
}

func TestCheckoutTotalMatchesFormula(t *testing.T) {
	cases := []struct {
		name  string
		price float64
		qty   int
	}{
		{"round", 100, 2},
		{"cents", 19.99, 3},
		{"half cent tax", 12.30, 1},
		{"large", 4599.5, 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newCheckoutFixture(t)
			p := f.store.addProduct("Dupatta", tc.price, 100)
			f.store.setCart(f.userID, item(p, tc.qty))

			subtotal := decimal.NewFromFloat(tc.price).Mul(decimal.NewFromInt(int64(tc.qty)))
			expected := subtotal.Add(subtotal.Mul(decimal.RequireFromString("0.05")).Round(2)).Round(2)

			view, err := f.svc.Checkout(context.Background(), f.userID, f.address.ID, expected)
			require.NoError(t, err)
			assert.Equal(t, expected.InexactFloat64(), view.PaymentDetails.TotalPrice)
			assert.Equal(t, 100-tc.qty, f.store.stock(p.ID))
		})
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.svc.Checkout(context.Background(), f.userID, f.address.ID, decimal.Zero)
	assert.ErrorIs(t, err, ErrEmptyCart)

	f.store.setCart(f.userID)
	_, err = f.svc.Checkout(context.Background(), f.userID, f.address.ID, decimal.Zero)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, 0, f.store.orderCount())
}

func TestCheckoutRejectsForeignAddress(t *testing.T) {
	f := newCheckoutFixture(t)
	p := f.store.addProduct("Stole", 100, 5)
	f.store.setCart(f.userID, item(p, 1))
	other := f.store.addAddress(primitive.NewObjectID())

	_, err := f.svc.Checkout(context.Background(), f.userID, other.ID, decimal.NewFromInt(105))
	assert.ErrorIs(t, err, ErrAddressNotFound)
	assert.Equal(t, 5, f.store.stock(p.ID))
	assert.True(t, f.store.hasCart(f.userID))
}

func TestCheckoutReportsEveryInvalidItem(t *testing.T) {
	f := newCheckoutFixture(t)
	ok := f.store.addProduct("Scarf", 50, 10)
	short1 := f.store.addProduct("Lehenga", 5000, 1)
	short2 := f.store.addProduct("Anarkali", 3000, 0)
	missing := primitive.NewObjectID()
	f.store.setCart(f.userID,
		item(ok, 1),
		item(short1, 2),
		item(short2, 1),
		models.CartItem{ProductID: missing, Quantity: 1},
	)

	_, err := f.svc.Checkout(context.Background(), f.userID, f.address.ID, decimal.NewFromInt(1))
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Items, 3)

	assert.Equal(t, ProblemInsufficientStock, vErr.Items[0].Reason)
	assert.Equal(t, "Lehenga", vErr.Items[0].Name)
	assert.Equal(t, 1, vErr.Items[0].Available)
	assert.Equal(t, ProblemInsufficientStock, vErr.Items[1].Reason)
	assert.Equal(t, "Anarkali", vErr.Items[1].Name)
	assert.Equal(t, ProblemProductMissing, vErr.Items[2].Reason)
	assert.Contains(t, vErr.Messages(), "Lehenga: Only 1 left (requested: 2)")

	assert.Equal(t, 0, f.store.orderCount())
	assert.Equal(t, 10, f.store.stock(ok.ID))
	assert.Equal(t, 1, f.store.stock(short1.ID))
	assert.True(t, f.store.hasCart(f.userID))
	assert.Empty(t, f.store.eventTypes())
}

func TestCheckoutAmountMismatch(t *testing.T) {
	f := newCheckoutFixture(t)
	p := f.store.addProduct("Kurta", 100, 5)
	f.store.setCart(f.userID, item(p, 2))

	for _, declared := range []string{"200", "209.99", "210.01"} {
		_, err := f.svc.Checkout(context.Background(), f.userID, f.address.ID, decimal.RequireFromString(declared))
		var mErr *AmountMismatchError
		require.ErrorAs(t, err, &mErr, declared)
		assert.Equal(t, "210.00", mErr.Expected.StringFixed(2))
		assert.True(t, mErr.Received.Equal(decimal.RequireFromString(declared)))
	}
	assert.Equal(t, 0, f.store.orderCount())
	assert.Equal(t, 5, f.store.stock(p.ID))
}

func TestCheckoutRollsBackOnWriteFailure(t *testing.T) {
	for _, tc := range []struct {
		name string
		arm  func(*memStore)
	}{
		{"insert order", func(m *memStore) { m.failInsertOrder = errDiskFull }},
		{"delete cart", func(m *memStore) { m.failDeleteCart = errDiskFull }},
		{"append event", func(m *memStore) { m.failAppendEvent = errDiskFull }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newCheckoutFixture(t)
			p := f.store.addProduct("Kurta", 100, 5)
			f.store.setCart(f.userID, item(p, 2))
			tc.arm(f.store)

			_, err := f.svc.Checkout(context.Background(), f.userID, f.address.ID, decimal.NewFromInt(210))
			var txErr *TransactionError
			require.ErrorAs(t, err, &txErr)
			assert.ErrorIs(t, err, errDiskFull)

			assert.Equal(t, 5, f.store.stock(p.ID))
			assert.Equal(t, 0, f.store.orderCount())
			assert.True(t, f.store.hasCart(f.userID))
			assert.Empty(t, f.carts.users)
		})
	}
}

func TestCheckoutTimeoutRollsBack(t *testing.T) {
	store := newMemStore()
	userID := primitive.NewObjectID()
	address := store.addAddress(userID)
	p := store.addProduct("Kurta", 100, 5)
	store.setCart(userID, item(p, 1))
	store.beforeCommit = func(ctx context.Context) { <-ctx.Done() }
	svc := NewService(store, Config{Pricing: DefaultPricing(), Timeout: 20 * time.Millisecond})

	_, err := svc.Checkout(context.Background(), userID, address.ID, decimal.NewFromInt(105))
	var txErr *TransactionError
	require.ErrorAs(t, err, &txErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 5, store.stock(p.ID))
	assert.Equal(t, 0, store.orderCount())
}

// staleStore serves carts with an inflated stock figure, as if another
// checkout committed between validation and the transaction.
type staleStore struct {
	*memStore
}

func (s staleStore) LoadCart(ctx context.Context, userID primitive.ObjectID) ([]CartLine, error) {
	lines, err := s.memStore.LoadCart(ctx, userID)
	for i := range lines {
		if lines[i].Product != nil {
			lines[i].Product.Stock += 10
		}
	}
	return lines, err
}

func TestCheckoutConditionalDecrementCatchesLostRace(t *testing.T) {
	mem := newMemStore()
	userID := primitive.NewObjectID()
	address := mem.addAddress(userID)
	p := mem.addProduct("Kurta", 100, 1)
	mem.setCart(userID, item(p, 2))
	svc := NewService(staleStore{mem}, Config{Pricing: DefaultPricing()})

	_, err := svc.Checkout(context.Background(), userID, address.ID, decimal.NewFromInt(210))
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Items, 1)
	assert.Equal(t, ProblemInsufficientStock, vErr.Items[0].Reason)
	assert.Equal(t, 1, vErr.Items[0].Available)
	assert.Equal(t, 1, mem.stock(p.ID))
	assert.Equal(t, 0, mem.orderCount())
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, Config{Pricing: DefaultPricing()})
	p := store.addProduct("Last Piece", 100, 1)

	type buyer struct {
		userID    primitive.ObjectID
		addressID primitive.ObjectID
	}
	buyers := make([]buyer, 2)
	for i := range buyers {
		userID := primitive.NewObjectID()
		buyers[i] = buyer{userID: userID, addressID: store.addAddress(userID).ID}
		store.setCart(userID, item(p, 1))
	}

	errs := make([]error, len(buyers))
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, b := range buyers {
		wg.Add(1)
		go func(i int, b buyer) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Checkout(context.Background(), b.userID, b.addressID, decimal.NewFromInt(105))
		}(i, b)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, ProblemInsufficientStock, vErr.Items[0].Reason)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, store.stock(p.ID))
	assert.Equal(t, 1, store.orderCount())
}

func takeStock(productID primitive.ObjectID, qty int) func(m *memStore) {
	return func(m *memStore) {
		p := m.products[productID]
		p.Stock -= qty
		m.products[productID] = p
	}
}

func TestCheckoutRerunsAfterWriteConflict(t *testing.T) {
	f := newCheckoutFixture(t)
	p := f.store.addProduct("Linen Kurta", 100, 5)
	f.store.setCart(f.userID, item(p, 2))
	f.store.writeConflict = takeStock(p.ID, 1)

	view, err := f.svc.Checkout(context.Background(), f.userID, f.address.ID, decimal.NewFromInt(210))
	require.NoError(t, err)

	assert.Equal(t, 2, f.store.attempts)
	assert.Equal(t, 2, f.store.stock(p.ID))
	assert.Equal(t, 1, f.store.orderCount())
	assert.Equal(t, []string{models.EventOrderCreated}, f.store.eventTypes())
	assert.False(t, f.store.hasCart(f.userID))
	assert.Equal(t, 210.0, view.PaymentDetails.TotalPrice)
}

func TestCheckoutRerunReportsInsufficientStock(t *testing.T) {
	f := newCheckoutFixture(t)
	p := f.store.addProduct("Last Piece", 100, 1)
	f.store.setCart(f.userID, item(p, 1))
	f.store.writeConflict = takeStock(p.ID, 1)

	_, err := f.svc.Checkout(context.Background(), f.userID, f.address.ID, decimal.NewFromInt(105))

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Items, 1)
	assert.Equal(t, ProblemInsufficientStock, vErr.Items[0].Reason)
	assert.Equal(t, 0, vErr.Items[0].Available)

	var txErr *TransactionError
	assert.False(t, errors.As(err, &txErr))
	assert.Equal(t, 2, f.store.attempts)
	assert.Equal(t, 0, f.store.stock(p.ID))
	assert.Equal(t, 0, f.store.orderCount())
	assert.True(t, f.store.hasCart(f.userID))
	assert.Empty(t, f.store.eventTypes())
}

func TestStatusChangeRerunSeesConcurrentTransition(t *testing.T) {
	f := newCheckoutFixture(t)
	p := f.store.addProduct("Linen Kurta", 100, 5)
	f.store.setCart(f.userID, item(p, 1))
	view, err := f.svc.Checkout(context.Background(), f.userID, f.address.ID, decimal.NewFromInt(105))
	require.NoError(t, err)

	f.store.writeConflict = func(m *memStore) {
		o := m.orders[view.ID]
		o.OrderStatus = models.OrderStatusShipped
		m.orders[view.ID] = o
	}
	_, err = f.svc.UpdateStatus(context.Background(), view.ID, "Cancelled")
	assert.ErrorIs(t, err, ErrStatusConflict)
	assert.Equal(t, 4, f.store.stock(p.ID))
}
