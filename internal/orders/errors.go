package orders

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrCartNotFound    = errors.New("cart not found")
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrLineNotFound    = errors.New("product not found in this order")
	ErrAddressNotFound = errors.New("address not found")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrStatusConflict  = errors.New("order status changed concurrently")
)

const (
	ProblemProductMissing    = "product_missing"
	ProblemInsufficientStock = "insufficient_stock"
	ProblemInvalidQuantity   = "invalid_quantity"
)

// ItemProblem describes why one cart line cannot be ordered.
type ItemProblem struct {
	ProductID primitive.ObjectID `json:"productId"`
	Name      string             `json:"name,omitempty"`
	Reason    string             `json:"reason"`
	Requested int                `json:"requested"`
	Available int                `json:"available"`
}

func (p ItemProblem) Message() string {
	switch p.Reason {
	case ProblemProductMissing:
		return fmt.Sprintf("Product not found: %s", p.ProductID.Hex())
	case ProblemInsufficientStock:
		return fmt.Sprintf("%s: Only %d left (requested: %d)", p.Name, p.Available, p.Requested)
	default:
		return fmt.Sprintf("%s: invalid quantity %d", p.Name, p.Requested)
	}
}

// ValidationError carries every offending cart line, not just the first.
type ValidationError struct {
	Items []ItemProblem
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Messages(), "; ")
}

func (e *ValidationError) Messages() []string {
	out := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		out = append(out, item.Message())
	}
	return out
}

type AmountMismatchError struct {
	Expected decimal.Decimal
	Received decimal.Decimal
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("total amount mismatch: expected %s, received %s", e.Expected.StringFixed(2), e.Received.StringFixed(2))
}

// TransactionError wraps a database failure raised while the checkout or
// status transaction was open. All writes of that transaction were rolled
// back.
type TransactionError struct {
	Err error
}

func (e *TransactionError) Error() string {
	return "transaction failed: " + e.Err.Error()
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}
