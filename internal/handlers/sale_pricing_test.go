package handlers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"boutique/internal/models"
)

func TestCheckSale(t *testing.T) {
	assert.NoError(t, checkSale(100, false, 0, false))
	assert.ErrorIs(t, checkSale(100, true, 0, false), errSalePriceRequired)
	assert.ErrorIs(t, checkSale(100, true, -5, true), errSalePriceNotPos)
	for _, salePrice := range []float64{100, 120} {
		assert.ErrorIs(t, checkSale(100, true, salePrice, true), errSalePriceTooHigh, "salePrice=%v", salePrice)
	}
	assert.NoError(t, checkSale(100, true, 80, true))
}

func TestApplySaleChange(t *testing.T) {
	onSale := models.Product{Price: 100, SaleEnabled: true, SalePrice: 80}

	disable := false
	set, err := applySaleChange(onSale, saleChange{SaleEnabled: &disable})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"saleEnabled": false, "salePrice": 0.0}, set)

	// a new base price must stay above the running sale price
	price := 70.0
	_, err = applySaleChange(onSale, saleChange{Price: &price})
	assert.ErrorIs(t, err, errSalePriceTooHigh)

	plain := models.Product{Price: 100}
	enable := true
	_, err = applySaleChange(plain, saleChange{SaleEnabled: &enable})
	assert.ErrorIs(t, err, errSalePriceRequired)

	salePrice := 60.0
	set, err = applySaleChange(plain, saleChange{SaleEnabled: &enable, SalePrice: &salePrice})
	require.NoError(t, err)
	assert.Equal(t, bson.M{"saleEnabled": true, "salePrice": 60.0}, set)

	set, err = applySaleChange(onSale, saleChange{})
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestSaleChangeFromForm(t *testing.T) {
	change := saleChangeFrom(MultipartProductInput{Price: 50, PriceSet: true, SalePrice: 10})
	require.NotNil(t, change.Price)
	assert.Equal(t, 50.0, *change.Price)
	assert.Nil(t, change.SaleEnabled)
	assert.Nil(t, change.SalePrice)
}

func TestNormalizeProductDocumentIncludesSaleFields(t *testing.T) {
	product, err := normalizeProductDocument(bson.M{
		"name":        "Test",
		"price":       100.0,
		"saleEnabled": true,
		"salePrice":   80.0,
		"stock":       int64(5),
		"category":    "Dresses",
	})
	require.NoError(t, err)
	assert.True(t, product.SaleEnabled)
	assert.Equal(t, 80.0, product.SalePrice)
	assert.True(t, product.IsOnSale)
	assert.True(t, product.InStock)
	assert.Equal(t, 80.0, product.EffectivePrice())
}

func TestNormalizeProductDocumentLegacyShapes(t *testing.T) {
	product, err := normalizeProductDocument(bson.M{
		"name":     "Old",
		"price":    "45.5",
		"stock":    "3",
		"category": bson.A{"Tops", "Sale"},
		"images":   "one.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "Tops", product.Category)
	assert.Equal(t, 45.5, product.Price)
	assert.Equal(t, 3, product.Stock)
	assert.Equal(t, []string{"one.png"}, []string(product.Images))
	assert.True(t, product.IsActive)
}

func TestProductJSONAlwaysIncludesSalePrice(t *testing.T) {
	product, err := normalizeProductDocument(bson.M{
		"name":        "Test",
		"price":       120.0,
		"saleEnabled": true,
		"salePrice":   99.0,
		"stock":       10,
		"category":    "Kurtas",
	})
	require.NoError(t, err)

	body, err := json.Marshal(product)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"salePrice":99`)
	assert.Contains(t, string(body), `"isOnSale":true`)
}
