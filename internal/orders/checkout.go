package orders

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"boutique/internal/models"
)

// Checkout turns the user's cart into an order. Stock is re-checked and
// decremented inside the transaction, so the cart and the catalog are never
// trusted beyond validation.
func (s *Service) Checkout(ctx context.Context, userID, addressID primitive.ObjectID, declared decimal.Decimal) (*OrderView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	lines, err := s.store.LoadCart(ctx, userID)
	if errors.Is(err, ErrCartNotFound) {
		return nil, ErrEmptyCart
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	if _, err := s.store.FindAddress(ctx, userID, addressID); err != nil {
		if errors.Is(err, ErrAddressNotFound) {
			return nil, ErrAddressNotFound
		}
		return nil, fmt.Errorf("load address: %w", err)
	}

	items, priced, problems := validateLines(lines)
	if len(problems) > 0 {
		return nil, &ValidationError{Items: problems}
	}

	quote := s.pricing.Quote(priced)
	if !quote.Matches(declared) {
		return nil, &AmountMismatchError{Expected: quote.Total, Received: declared.Round(2)}
	}

	now := s.now()
	order := &models.Order{
		UserID:          userID,
		Items:           items,
		ShippingAddress: addressID,
		PaymentMethod:   models.PaymentMethodCOD,
		PaymentStatus:   models.PaymentStatusPending,
		OrderStatus:     models.OrderStatusProcessing,
		PaymentDetails: models.PaymentDetails{
			Subtotal:   money(quote.Subtotal),
			Tax:        money(quote.Tax),
			Shipping:   money(quote.Shipping),
			Processing: money(quote.Processing),
			TotalPrice: money(quote.Total),
		},
		Currency:  s.currency,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx Tx) error {
		var short []ItemProblem
		for _, item := range order.Items {
			ok, err := tx.DecrementStock(ctx, item.ProductID, item.Quantity)
			if err != nil {
				return fmt.Errorf("decrement stock of %s: %w", item.ProductID.Hex(), err)
			}
			if !ok {
				short = append(short, ItemProblem{
					ProductID: item.ProductID,
					Name:      item.Name,
					Reason:    ProblemInsufficientStock,
					Requested: item.Quantity,
				})
			}
		}
		if len(short) > 0 {
			return &ValidationError{Items: short}
		}

		id, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		order.ID = id

		if err := tx.DeleteCart(ctx, userID); err != nil {
			return fmt.Errorf("delete cart: %w", err)
		}

		event, err := newOutboxEvent(models.EventOrderCreated, order, "", now)
		if err != nil {
			return fmt.Errorf("encode order event: %w", err)
		}
		if err := tx.AppendEvent(ctx, event); err != nil {
			return fmt.Errorf("append order event: %w", err)
		}
		return nil
	})
	if err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			s.fillAvailable(ctx, vErr)
			log.Printf("[ORDER] [WARN] checkout for user %s lost a stock race: %v", userID.Hex(), vErr)
			return nil, vErr
		}
		log.Printf("[ORDER] [ERROR] checkout transaction for user %s: %v", userID.Hex(), err)
		return nil, &TransactionError{Err: err}
	}

	log.Printf("[ORDER] [INFO] order %s created for user %s total=%s %s", order.ID.Hex(), userID.Hex(), quote.Total.StringFixed(2), s.currency)
	s.invalidateCart(ctx, userID)

	created, err := s.store.FindOrder(ctx, order.ID)
	if err != nil {
		log.Printf("[ORDER] [WARN] reload order %s after commit: %v", order.ID.Hex(), err)
		created = order
	}
	return s.view(ctx, created), nil
}

// validateLines reports every unusable line at once and returns the price
// snapshot of the usable ones.
func validateLines(lines []CartLine) ([]models.OrderItem, []PricedLine, []ItemProblem) {
	items := make([]models.OrderItem, 0, len(lines))
	priced := make([]PricedLine, 0, len(lines))
	var problems []ItemProblem

	for _, line := range lines {
		p := line.Product
		switch {
		case p == nil || p.IsDeleted:
			problems = append(problems, ItemProblem{
				ProductID: line.ProductID,
				Reason:    ProblemProductMissing,
				Requested: line.Quantity,
			})
			continue
		case line.Quantity < 1:
			problems = append(problems, ItemProblem{
				ProductID: line.ProductID,
				Name:      p.Name,
				Reason:    ProblemInvalidQuantity,
				Requested: line.Quantity,
				Available: p.Stock,
			})
			continue
		case p.Stock < line.Quantity:
			problems = append(problems, ItemProblem{
				ProductID: line.ProductID,
				Name:      p.Name,
				Reason:    ProblemInsufficientStock,
				Requested: line.Quantity,
				Available: p.Stock,
			})
			continue
		}

		unit := decimal.NewFromFloat(p.EffectivePrice()).Round(2)
		items = append(items, models.OrderItem{
			ProductID: line.ProductID,
			Name:      p.Name,
			Quantity:  line.Quantity,
			Price:     money(unit),
		})
		priced = append(priced, PricedLine{UnitPrice: unit, Quantity: line.Quantity})
	}
	return items, priced, problems
}

// fillAvailable reports the stock left after a failed conditional decrement.
func (s *Service) fillAvailable(ctx context.Context, vErr *ValidationError) {
	ids := make([]primitive.ObjectID, 0, len(vErr.Items))
	for _, item := range vErr.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.productIndex(context.WithoutCancel(ctx), ids)
	if err != nil {
		return
	}
	for i := range vErr.Items {
		if p, ok := products[vErr.Items[i].ProductID]; ok {
			vErr.Items[i].Available = p.Stock
		}
	}
}
