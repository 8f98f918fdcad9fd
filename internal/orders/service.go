package orders

import (
	"context"
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"boutique/internal/models"
)

const DefaultCheckoutTimeout = 10 * time.Second

type Config struct {
	Pricing  Pricing
	Currency string
	// Timeout bounds a whole checkout, transaction included.
	Timeout time.Duration
	Carts   CartInvalidator
}

// Service owns order creation and every later order mutation.
type Service struct {
	store    Store
	pricing  Pricing
	currency string
	timeout  time.Duration
	carts    CartInvalidator
	now      func() time.Time
}

func NewService(store Store, cfg Config) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultCheckoutTimeout
	}
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &Service{
		store:    store,
		pricing:  cfg.Pricing,
		currency: cfg.Currency,
		timeout:  cfg.Timeout,
		carts:    cfg.Carts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type orderEvent struct {
	OrderID        string               `json:"orderId"`
	UserID         string               `json:"userId"`
	OrderStatus    models.OrderStatus   `json:"orderStatus"`
	PaymentStatus  models.PaymentStatus `json:"paymentStatus"`
	PreviousStatus string               `json:"previousStatus,omitempty"`
	TotalPrice     float64              `json:"totalPrice"`
	Currency       string               `json:"currency"`
	Items          []models.OrderItem   `json:"items,omitempty"`
	OccurredAt     time.Time            `json:"occurredAt"`
}

func newOutboxEvent(eventType string, order *models.Order, previous string, at time.Time) (models.OutboxEvent, error) {
	payload, err := json.Marshal(orderEvent{
		OrderID:        order.ID.Hex(),
		UserID:         order.UserID.Hex(),
		OrderStatus:    order.OrderStatus,
		PaymentStatus:  order.PaymentStatus,
		PreviousStatus: previous,
		TotalPrice:     order.PaymentDetails.TotalPrice,
		Currency:       order.Currency,
		Items:          order.Items,
		OccurredAt:     at,
	})
	if err != nil {
		return models.OutboxEvent{}, err
	}
	return models.OutboxEvent{
		AggregateID: order.ID.Hex(),
		EventType:   eventType,
		Payload:     payload,
		CreatedAt:   at,
	}, nil
}

func (s *Service) invalidateCart(ctx context.Context, userID primitive.ObjectID) {
	if s.carts == nil {
		return
	}
	s.carts.Invalidate(context.WithoutCancel(ctx), userID)
}
