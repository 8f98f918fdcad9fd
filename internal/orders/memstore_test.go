package orders

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"boutique/internal/models"
)

// memStore is an in-memory Store. Transactions are serialised and work on a
// staged copy that replaces the live state only on success.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	products  map[primitive.ObjectID]models.Product
	carts     map[primitive.ObjectID]models.Cart
	addresses map[primitive.ObjectID]models.Address
	orders    map[primitive.ObjectID]models.Order
	events    []models.OutboxEvent

	failInsertOrder error
	failDeleteCart  error
	failAppendEvent error
	beforeCommit    func(ctx context.Context)
	// writeConflict, when set, runs once with mu held after the first
	// attempt of the next transaction, which is then discarded and rerun.
	writeConflict func(m *memStore)
	attempts      int
}

func newMemStore() *memStore {
	return &memStore{
		products:  map[primitive.ObjectID]models.Product{},
		carts:     map[primitive.ObjectID]models.Cart{},
		addresses: map[primitive.ObjectID]models.Address{},
		orders:    map[primitive.ObjectID]models.Order{},
	}
}

func (m *memStore) addProduct(name string, price float64, stock int) models.Product {
	p := models.Product{ID: primitive.NewObjectID(), Name: name, Price: price, Stock: stock, IsActive: true}
	m.mu.Lock()
	m.products[p.ID] = p
	m.mu.Unlock()
	return p
}

func (m *memStore) addAddress(userID primitive.ObjectID) models.Address {
	a := models.Address{ID: primitive.NewObjectID(), UserID: userID, FullName: "Asha Rao", Street: "1 MG Road", City: "Pune", State: "MH", Country: "IN", ZipCode: "411001"}
	m.mu.Lock()
	m.addresses[a.ID] = a
	m.mu.Unlock()
	return a
}

func (m *memStore) setCart(userID primitive.ObjectID, items ...models.CartItem) {
	m.mu.Lock()
	m.carts[userID] = models.Cart{ID: primitive.NewObjectID(), UserID: userID, Items: items}
	m.mu.Unlock()
}

func (m *memStore) stock(id primitive.ObjectID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

func (m *memStore) hasCart(userID primitive.ObjectID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.carts[userID]
	return ok
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

func (m *memStore) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType)
	}
	return out
}

func (m *memStore) LoadCart(_ context.Context, userID primitive.ObjectID) ([]CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cart, ok := m.carts[userID]
	if !ok {
		return nil, ErrCartNotFound
	}
	lines := make([]CartLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		line := CartLine{ProductID: item.ProductID, Quantity: item.Quantity}
		if p, ok := m.products[item.ProductID]; ok {
			line.Product = &p
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (m *memStore) FindAddress(_ context.Context, userID, addressID primitive.ObjectID) (*models.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.addresses[addressID]
	if !ok || a.UserID != userID {
		return nil, ErrAddressNotFound
	}
	return &a, nil
}

func (m *memStore) FindProducts(_ context.Context, ids []primitive.ObjectID) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Product
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) FindOrder(_ context.Context, orderID primitive.ObjectID) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &o, nil
}

func (m *memStore) FindUserOrder(ctx context.Context, userID, orderID primitive.ObjectID) (*models.Order, error) {
	o, err := m.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (m *memStore) userOrders(userID primitive.ObjectID) []models.Order {
	var out []models.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *memStore) CountUserOrders(_ context.Context, userID primitive.ObjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.userOrders(userID))), nil
}

func (m *memStore) UserOrderAt(_ context.Context, userID primitive.ObjectID, offset int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	orders := m.userOrders(userID)
	if offset >= int64(len(orders)) {
		return nil, ErrOrderNotFound
	}
	return &orders[offset], nil
}

func (m *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	for {
		m.mu.Lock()
		tx := &memTx{
			store:    m,
			products: cloneMap(m.products),
			carts:    cloneMap(m.carts),
			orders:   cloneMap(m.orders),
			events:   append([]models.OutboxEvent(nil), m.events...),
		}
		m.attempts++
		m.mu.Unlock()

		if err := fn(ctx, tx); err != nil {
			return err
		}
		// A conflicting writer committed first: drop the staged copy and run
		// fn again against the new state, as a driver retry would.
		if m.writeConflict != nil {
			conflict := m.writeConflict
			m.writeConflict = nil
			m.mu.Lock()
			conflict(m)
			m.mu.Unlock()
			continue
		}
		if m.beforeCommit != nil {
			m.beforeCommit(ctx)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		m.mu.Lock()
		m.products, m.carts, m.orders, m.events = tx.products, tx.carts, tx.orders, tx.events
		m.mu.Unlock()
		return nil
	}
}

type memTx struct {
	store    *memStore
	products map[primitive.ObjectID]models.Product
	carts    map[primitive.ObjectID]models.Cart
	orders   map[primitive.ObjectID]models.Order
	events   []models.OutboxEvent
}

func (t *memTx) DecrementStock(_ context.Context, productID primitive.ObjectID, qty int) (bool, error) {
	p, ok := t.products[productID]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	t.products[productID] = p
	return true, nil
}

func (t *memTx) IncrementStock(_ context.Context, productID primitive.ObjectID, qty int) error {
	p, ok := t.products[productID]
	if !ok {
		return nil
	}
	p.Stock += qty
	t.products[productID] = p
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, order *models.Order) (primitive.ObjectID, error) {
	if t.store.failInsertOrder != nil {
		return primitive.NilObjectID, t.store.failInsertOrder
	}
	o := *order
	o.ID = primitive.NewObjectID()
	o.Items = append([]models.OrderItem(nil), order.Items...)
	t.orders[o.ID] = o
	return o.ID, nil
}

func (t *memTx) DeleteCart(_ context.Context, userID primitive.ObjectID) error {
	if t.store.failDeleteCart != nil {
		return t.store.failDeleteCart
	}
	delete(t.carts, userID)
	return nil
}

func (t *memTx) SetOrderStatus(_ context.Context, orderID primitive.ObjectID, from, to models.OrderStatus, at time.Time) (bool, error) {
	o, ok := t.orders[orderID]
	if !ok || o.OrderStatus != from {
		return false, nil
	}
	o.OrderStatus = to
	o.UpdatedAt = at
	t.orders[orderID] = o
	return true, nil
}

func (t *memTx) SetPaymentStatus(_ context.Context, orderID primitive.ObjectID, from, to models.PaymentStatus, at time.Time) (bool, error) {
	o, ok := t.orders[orderID]
	if !ok || o.PaymentStatus != from {
		return false, nil
	}
	o.PaymentStatus = to
	o.UpdatedAt = at
	t.orders[orderID] = o
	return true, nil
}

func (t *memTx) AppendEvent(_ context.Context, event models.OutboxEvent) error {
	if t.store.failAppendEvent != nil {
		return t.store.failAppendEvent
	}
	t.events = append(t.events, event)
	return nil
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type recordingInvalidator struct {
	mu    sync.Mutex
	users []primitive.ObjectID
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID primitive.ObjectID) {
	r.mu.Lock()
	r.users = append(r.users, userID)
	r.mu.Unlock()
}

var errDiskFull = errors.New("disk full")
