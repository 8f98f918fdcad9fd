package handlers

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestBuildProductFilter(t *testing.T) {
	q := url.Values{
		"category": {"Sarees"},
		"brand":    {"Fabindia"},
		"search":   {"silk (pure)"},
		"minPrice": {"100"},
		"maxPrice": {"2500.50"},
	}
	filter, err := buildProductFilter(q.Get)
	require.NoError(t, err)

	assert.Equal(t, "Sarees", filter["category"])
	assert.Equal(t, "Fabindia", filter["brand"])
	assert.Equal(t, bson.M{"$gte": 100.0, "$lte": 2500.5}, filter["price"])
	assert.Equal(t, bson.M{"$ne": true}, filter["isDeleted"])

	or := filter["$or"].([]bson.M)
	require.Len(t, or, 3)
	assert.Equal(t, `silk \(pure\)`, or[0]["name"].(bson.M)["$regex"])
}

func TestBuildProductFilterRejectsBadPrices(t *testing.T) {
	_, err := buildProductFilter(url.Values{"minPrice": {"cheap"}}.Get)
	assert.EqualError(t, err, "invalid minPrice")

	_, err = buildProductFilter(url.Values{"maxPrice": {"-1"}}.Get)
	assert.EqualError(t, err, "invalid maxPrice")

	filter, err := buildProductFilter(url.Values{}.Get)
	require.NoError(t, err)
	assert.NotContains(t, filter, "price")
	assert.NotContains(t, filter, "$or")
}

func TestParsePaginationParams(t *testing.T) {
	page, limit, err := parsePaginationParams("", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), page)
	assert.Equal(t, int64(20), limit)

	_, limit, err = parsePaginationParams("2", "1000")
	require.NoError(t, err)
	assert.Equal(t, int64(maxPageLimit), limit)

	_, _, err = parsePaginationParams("0", "10")
	assert.ErrorIs(t, err, errInvalidPagination)
}

func TestPaginationBody(t *testing.T) {
	body := paginationBody(2, 10, 25)
	assert.Equal(t, int64(3), body["totalPages"])
	assert.Equal(t, true, body["hasNext"])
	assert.Equal(t, true, body["hasPrev"])

	body = paginationBody(1, 10, 0)
	assert.Equal(t, int64(0), body["totalPages"])
	assert.Equal(t, false, body["hasNext"])
}
