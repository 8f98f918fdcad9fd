package orders

import (
	"fmt"
	"strings"

	"boutique/internal/models"
)

var orderTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusProcessing: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:    {models.OrderStatusDelivered, models.OrderStatusCancelled},
	models.OrderStatusDelivered:  nil,
	models.OrderStatusCancelled:  nil,
}

var paymentTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentStatusPending:  {models.PaymentStatusPaid, models.PaymentStatusFailed},
	models.PaymentStatusPaid:     {models.PaymentStatusRefunded},
	models.PaymentStatusFailed:   nil,
	models.PaymentStatusRefunded: nil,
}

// ParseOrderStatus accepts any letter case ("shipped", "SHIPPED").
func ParseOrderStatus(raw string) (models.OrderStatus, error) {
	for status := range orderTransitions {
		if strings.EqualFold(string(status), strings.TrimSpace(raw)) {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

func ParsePaymentStatus(raw string) (models.PaymentStatus, error) {
	for status := range paymentTransitions {
		if strings.EqualFold(string(status), strings.TrimSpace(raw)) {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

func IsTerminal(status models.OrderStatus) bool {
	return len(orderTransitions[status]) == 0
}

func CanTransition(from, to models.OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func CanTransitionPayment(from, to models.PaymentStatus) bool {
	for _, allowed := range paymentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
