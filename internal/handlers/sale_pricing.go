package handlers

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson"

	"boutique/internal/models"
)

var (
	errSalePriceRequired = errors.New("salePrice is required when saleEnabled is true")
	errSalePriceNotPos   = errors.New("salePrice must be greater than 0")
	errSalePriceTooHigh  = errors.New("salePrice must be less than price")
)

// saleChange is the sale-related part of a product form. Nil fields were
// not submitted.
type saleChange struct {
	Price       *float64
	SaleEnabled *bool
	SalePrice   *float64
}

func saleChangeFrom(input MultipartProductInput) saleChange {
	var change saleChange
	if input.PriceSet {
		change.Price = &input.Price
	}
	if input.SaleEnabledSet {
		change.SaleEnabled = &input.SaleEnabled
	}
	if input.SalePriceSet {
		change.SalePrice = &input.SalePrice
	}
	return change
}

// checkSale validates the sale fields of a product as it will be stored.
// hasSalePrice tells an explicit salePrice apart from the zero value.
func checkSale(price float64, enabled bool, salePrice float64, hasSalePrice bool) error {
	switch {
	case !enabled:
		return nil
	case !hasSalePrice:
		return errSalePriceRequired
	case salePrice <= 0:
		return errSalePriceNotPos
	case salePrice >= price:
		return errSalePriceTooHigh
	}
	return nil
}

// applySaleChange merges change into the stored product and returns the
// sale fields to $set. Turning a sale off clears its price; lowering the
// base price is checked against a still active sale.
func applySaleChange(existing models.Product, change saleChange) (bson.M, error) {
	price := existing.Price
	if change.Price != nil {
		price = *change.Price
	}
	enabled := existing.SaleEnabled
	salePrice := existing.SalePrice
	hasSalePrice := existing.SalePrice > 0

	set := bson.M{}
	if change.SaleEnabled != nil {
		enabled = *change.SaleEnabled
		set["saleEnabled"] = enabled
		if !enabled {
			salePrice, hasSalePrice = 0, false
			set["salePrice"] = 0.0
		}
	}
	if change.SalePrice != nil {
		salePrice, hasSalePrice = *change.SalePrice, true
		set["salePrice"] = salePrice
	}

	if err := checkSale(price, enabled, salePrice, hasSalePrice); err != nil {
		return nil, err
	}
	return set, nil
}
