package orders

import (
	"context"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"boutique/internal/models"
)

type OrderItemView struct {
	ProductID primitive.ObjectID `json:"productId"`
	Name      string             `json:"name"`
	Thumbnail string             `json:"thumbnail,omitempty"`
	Quantity  int                `json:"quantity"`
	Price     float64            `json:"price"`
}

// OrderView is an order with product and address references resolved.
type OrderView struct {
	ID              primitive.ObjectID    `json:"id"`
	UserID          primitive.ObjectID    `json:"userId"`
	Items           []OrderItemView       `json:"orderItems"`
	ShippingAddress *models.Address       `json:"shippingAddress"`
	PaymentMethod   string                `json:"paymentMethod"`
	PaymentStatus   models.PaymentStatus  `json:"paymentStatus"`
	OrderStatus     models.OrderStatus    `json:"orderStatus"`
	PaymentDetails  models.PaymentDetails `json:"paymentDetails"`
	Currency        string                `json:"currency"`
	TrackingID      string                `json:"trackingId,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

type Pagination struct {
	Total      int64 `json:"total"`
	Page       int64 `json:"page"`
	Limit      int64 `json:"limit"`
	TotalPages int64 `json:"totalPages"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

type OrderPage struct {
	Order      *OrderView `json:"order"`
	Pagination Pagination `json:"pagination"`
}

type RelatedProduct struct {
	ProductID primitive.ObjectID `json:"productId"`
	Thumbnail string             `json:"thumbnail,omitempty"`
}

type ShippingDetails struct {
	FullName     string `json:"fullName"`
	ContactPhone string `json:"contactPhone,omitempty"`
	Street       string `json:"street"`
	City         string `json:"city"`
	State        string `json:"state"`
	Country      string `json:"country"`
	ZipCode      string `json:"zipCode"`
}

// LineDetail describes one line item of an order.
type LineDetail struct {
	OrderID         primitive.ObjectID   `json:"orderId"`
	ProductID       primitive.ObjectID   `json:"productId"`
	Name            string               `json:"name"`
	Thumbnail       string               `json:"thumbnail,omitempty"`
	Size            string               `json:"size,omitempty"`
	Color           string               `json:"color,omitempty"`
	Cloth           string               `json:"cloth,omitempty"`
	Price           float64              `json:"price"`
	Quantity        int                  `json:"quantity"`
	LineTotal       float64              `json:"lineTotal"`
	PaymentMethod   string               `json:"paymentMethod"`
	PaymentStatus   models.PaymentStatus `json:"paymentStatus"`
	OrderStatus     models.OrderStatus   `json:"orderStatus"`
	TrackingID      string               `json:"trackingId,omitempty"`
	ShippingDetails *ShippingDetails     `json:"shippingDetails"`
	OtherProducts   []RelatedProduct     `json:"otherProductsInSameOrder"`
	CreatedAt       time.Time            `json:"createdAt"`
}

// view resolves product thumbnails and the shipping address. Lookup
// failures are logged and leave the corresponding fields empty, so a
// committed order is always reported back.
func (s *Service) view(ctx context.Context, order *models.Order) *OrderView {
	products, err := s.productIndex(ctx, productIDs(order))
	if err != nil {
		log.Printf("[ORDER] [WARN] resolve products for order %s: %v", order.ID.Hex(), err)
	}

	items := make([]OrderItemView, 0, len(order.Items))
	for _, item := range order.Items {
		line := OrderItemView{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
		if p, ok := products[item.ProductID]; ok {
			line.Thumbnail = p.Thumbnail
		}
		items = append(items, line)
	}

	address, err := s.store.FindAddress(ctx, order.UserID, order.ShippingAddress)
	if err != nil && !errors.Is(err, ErrAddressNotFound) {
		log.Printf("[ORDER] [WARN] resolve address for order %s: %v", order.ID.Hex(), err)
	}

	return &OrderView{
		ID:              order.ID,
		UserID:          order.UserID,
		Items:           items,
		ShippingAddress: address,
		PaymentMethod:   order.PaymentMethod,
		PaymentStatus:   order.PaymentStatus,
		OrderStatus:     order.OrderStatus,
		PaymentDetails:  order.PaymentDetails,
		Currency:        order.Currency,
		TrackingID:      order.TrackingID,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

func (s *Service) productIndex(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.Product, error) {
	products, err := s.store.FindProducts(ctx, ids)
	if err != nil {
		return nil, err
	}
	index := make(map[primitive.ObjectID]models.Product, len(products))
	for _, p := range products {
		index[p.ID] = p
	}
	return index, nil
}

func productIDs(order *models.Order) []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, len(order.Items))
	for _, item := range order.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
