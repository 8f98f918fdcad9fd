package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestStringListDecodesLegacySingleString(t *testing.T) {
	raw, err := bson.Marshal(bson.M{"images": " a.png "})
	require.NoError(t, err)

	var doc struct {
		Images StringList `bson:"images"`
	}
	require.NoError(t, bson.Unmarshal(raw, &doc))
	assert.Equal(t, StringList{"a.png"}, doc.Images)
}

func TestStringListNilMarshalsAsEmptyArray(t *testing.T) {
	raw, err := bson.Marshal(struct {
		Images StringList `bson:"images"`
	}{})
	require.NoError(t, err)

	var out bson.M
	require.NoError(t, bson.Unmarshal(raw, &out))
	assert.IsType(t, bson.A{}, out["images"])
	assert.Empty(t, out["images"])
}

func TestEffectivePriceUsesValidSalePrice(t *testing.T) {
	p := Product{Price: 100, SaleEnabled: true, SalePrice: 75}
	assert.Equal(t, 75.0, p.EffectivePrice())

	p.SaleEnabled = false
	assert.Equal(t, 100.0, p.EffectivePrice())

	p = Product{Price: 100, SaleEnabled: true, SalePrice: 120}
	assert.Equal(t, 100.0, p.EffectivePrice())
}
