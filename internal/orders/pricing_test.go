package orders

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestQuoteDefaultTax(t *testing.T) {
	q := DefaultPricing().Quote([]PricedLine{{UnitPrice: dec("100"), Quantity: 2}})

	assert.Equal(t, "200.00", q.Subtotal.StringFixed(2))
	assert.Equal(t, "10.00", q.Tax.StringFixed(2))
	assert.Equal(t, "210.00", q.Total.StringFixed(2))
	assert.True(t, q.Matches(dec("210")))
	assert.False(t, q.Matches(dec("200")))
}

func TestQuoteRoundsTaxHalfUp(t *testing.T) {
	// 0.05 * 12.30 = 0.615
	q := DefaultPricing().Quote([]PricedLine{{UnitPrice: dec("12.30"), Quantity: 1}})

	assert.Equal(t, "0.62", q.Tax.StringFixed(2))
	assert.Equal(t, "12.92", q.Total.StringFixed(2))
}

func TestQuoteIncludesFees(t *testing.T) {
	p := Pricing{TaxRate: dec("0.18"), ShippingFee: dec("49"), ProcessingFee: dec("10.5")}
	q := p.Quote([]PricedLine{
		{UnitPrice: dec("99.99"), Quantity: 3},
		{UnitPrice: dec("0.01"), Quantity: 1},
	})

	assert.Equal(t, "299.98", q.Subtotal.StringFixed(2))
	assert.Equal(t, "54.00", q.Tax.StringFixed(2))
	assert.Equal(t, "413.48", q.Total.StringFixed(2))
	assert.True(t, q.Total.Equal(q.Subtotal.Add(q.Tax).Add(q.Shipping).Add(q.Processing)))
}

func TestQuoteMatchesRoundsDeclared(t *testing.T) {
	q := DefaultPricing().Quote([]PricedLine{{UnitPrice: dec("100"), Quantity: 2}})

	assert.True(t, q.Matches(dec("210.001")))
	assert.False(t, q.Matches(dec("210.01")))
}
