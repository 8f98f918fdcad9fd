package orders

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"boutique/internal/models"
)

const ordersPerPage = 1

// ListOrders pages through a user's orders newest first, one order per page.
func (s *Service) ListOrders(ctx context.Context, userID primitive.ObjectID, page int64) (*OrderPage, error) {
	if page < 1 {
		page = 1
	}
	total, err := s.store.CountUserOrders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	totalPages := (total + ordersPerPage - 1) / ordersPerPage
	if total == 0 || page > totalPages {
		return nil, ErrOrderNotFound
	}

	order, err := s.store.UserOrderAt(ctx, userID, (page-1)*ordersPerPage)
	if err != nil {
		return nil, err
	}

	return &OrderPage{
		Order: s.view(ctx, order),
		Pagination: Pagination{
			Total:      total,
			Page:       page,
			Limit:      ordersPerPage,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
			HasPrev:    page > 1,
		},
	}, nil
}

// OrderLine describes one product of one of the user's orders together with
// the shipping snapshot and the other products bought alongside it.
func (s *Service) OrderLine(ctx context.Context, userID, orderID, productID primitive.ObjectID) (*LineDetail, error) {
	order, err := s.store.FindUserOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	var line *models.OrderItem
	for i := range order.Items {
		if order.Items[i].ProductID == productID {
			line = &order.Items[i]
			break
		}
	}
	if line == nil {
		return nil, ErrLineNotFound
	}

	products, err := s.productIndex(ctx, productIDs(order))
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	detail := &LineDetail{
		OrderID:       order.ID,
		ProductID:     line.ProductID,
		Name:          line.Name,
		Price:         line.Price,
		Quantity:      line.Quantity,
		LineTotal:     money(decimalOf(line.Price).Mul(decimalOf(float64(line.Quantity)))),
		PaymentMethod: order.PaymentMethod,
		PaymentStatus: order.PaymentStatus,
		OrderStatus:   order.OrderStatus,
		TrackingID:    order.TrackingID,
		OtherProducts: []RelatedProduct{},
		CreatedAt:     order.CreatedAt,
	}
	if p, ok := products[line.ProductID]; ok {
		detail.Thumbnail = p.Thumbnail
		detail.Size = p.Size
		detail.Color = p.Color
		detail.Cloth = p.Cloth
	}
	for _, item := range order.Items {
		if item.ProductID == productID {
			continue
		}
		related := RelatedProduct{ProductID: item.ProductID}
		if p, ok := products[item.ProductID]; ok {
			related.Thumbnail = p.Thumbnail
		}
		detail.OtherProducts = append(detail.OtherProducts, related)
	}

	address, err := s.store.FindAddress(ctx, userID, order.ShippingAddress)
	switch {
	case err == nil:
		detail.ShippingDetails = &ShippingDetails{
			FullName:     address.FullName,
			ContactPhone: address.ContactPhone,
			Street:       address.Street,
			City:         address.City,
			State:        address.State,
			Country:      address.Country,
			ZipCode:      address.ZipCode,
		}
	case !errors.Is(err, ErrAddressNotFound):
		return nil, fmt.Errorf("load address: %w", err)
	}
	return detail, nil
}

// UpdateStatus moves an order along its lifecycle. Cancelling returns the
// ordered quantities to stock in the same transaction.
func (s *Service) UpdateStatus(ctx context.Context, orderID primitive.ObjectID, rawStatus string) (*OrderView, error) {
	target, err := ParseOrderStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	order, err := s.store.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	from := order.OrderStatus
	if !CanTransition(from, target) {
		return nil, fmt.Errorf("%w: cannot move order from %s to %s", ErrInvalidStatus, from, target)
	}

	now := s.now()
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx Tx) error {
		applied, err := tx.SetOrderStatus(ctx, orderID, from, target, now)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		if !applied {
			return ErrStatusConflict
		}
		if target == models.OrderStatusCancelled {
			for _, item := range order.Items {
				if err := tx.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
					return fmt.Errorf("restock %s: %w", item.ProductID.Hex(), err)
				}
			}
		}

		order.OrderStatus = target
		order.UpdatedAt = now
		event, err := newOutboxEvent(models.EventOrderStatusChanged, order, string(from), now)
		if err != nil {
			return fmt.Errorf("encode order event: %w", err)
		}
		return tx.AppendEvent(ctx, event)
	})
	if err != nil {
		return nil, s.transactionFailure(orderID, err)
	}

	log.Printf("[ORDER] [INFO] order %s status %s -> %s", orderID.Hex(), from, target)
	return s.reload(ctx, order), nil
}

func (s *Service) UpdatePaymentStatus(ctx context.Context, orderID primitive.ObjectID, rawStatus string) (*OrderView, error) {
	target, err := ParsePaymentStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	order, err := s.store.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	from := order.PaymentStatus
	if !CanTransitionPayment(from, target) {
		return nil, fmt.Errorf("%w: cannot move payment from %s to %s", ErrInvalidStatus, from, target)
	}

	now := s.now()
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx Tx) error {
		applied, err := tx.SetPaymentStatus(ctx, orderID, from, target, now)
		if err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}
		if !applied {
			return ErrStatusConflict
		}
		order.PaymentStatus = target
		order.UpdatedAt = now
		event, err := newOutboxEvent(models.EventPaymentChanged, order, string(from), now)
		if err != nil {
			return fmt.Errorf("encode order event: %w", err)
		}
		return tx.AppendEvent(ctx, event)
	})
	if err != nil {
		return nil, s.transactionFailure(orderID, err)
	}

	log.Printf("[ORDER] [INFO] order %s payment %s -> %s", orderID.Hex(), from, target)
	return s.reload(ctx, order), nil
}

func (s *Service) transactionFailure(orderID primitive.ObjectID, err error) error {
	if errors.Is(err, ErrStatusConflict) {
		return err
	}
	log.Printf("[ORDER] [ERROR] status transaction for order %s: %v", orderID.Hex(), err)
	return &TransactionError{Err: err}
}

func (s *Service) reload(ctx context.Context, fallback *models.Order) *OrderView {
	order, err := s.store.FindOrder(ctx, fallback.ID)
	if err != nil {
		log.Printf("[ORDER] [WARN] reload order %s: %v", fallback.ID.Hex(), err)
		order = fallback
	}
	return s.view(ctx, order)
}
