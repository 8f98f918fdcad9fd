package orders

import (
	"github.com/shopspring/decimal"
)

// Pricing derives order totals. All amounts are rounded half away from zero
// to two decimal places.
type Pricing struct {
	TaxRate       decimal.Decimal
	ShippingFee   decimal.Decimal
	ProcessingFee decimal.Decimal
}

func DefaultPricing() Pricing {
	return Pricing{
		TaxRate:       decimal.RequireFromString("0.05"),
		ShippingFee:   decimal.Zero,
		ProcessingFee: decimal.Zero,
	}
}

type PricedLine struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

type Quote struct {
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	Shipping   decimal.Decimal
	Processing decimal.Decimal
	Total      decimal.Decimal
}

func (p Pricing) Quote(lines []PricedLine) Quote {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	subtotal = subtotal.Round(2)

	tax := subtotal.Mul(p.TaxRate).Round(2)
	shipping := p.ShippingFee.Round(2)
	processing := p.ProcessingFee.Round(2)

	return Quote{
		Subtotal:   subtotal,
		Tax:        tax,
		Shipping:   shipping,
		Processing: processing,
		Total:      subtotal.Add(tax).Add(shipping).Add(processing).Round(2),
	}
}

// Matches reports whether a client-declared amount equals the quoted total
// once both are rounded to two decimals.
func (q Quote) Matches(declared decimal.Decimal) bool {
	return q.Total.Equal(declared.Round(2))
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

func decimalOf(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}
