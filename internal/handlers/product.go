package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"boutique/internal/repository"
)

const maxSuggestions = 8

var productSorts = map[string]bson.D{
	"":           {{Key: "createdAt", Value: -1}},
	"newest":     {{Key: "createdAt", Value: -1}},
	"price_asc":  {{Key: "price", Value: 1}, {Key: "_id", Value: 1}},
	"price_desc": {{Key: "price", Value: -1}, {Key: "_id", Value: 1}},
	"rating":     {{Key: "rating", Value: -1}, {Key: "createdAt", Value: -1}},
	"name":       {{Key: "name", Value: 1}},
}

func activeProductFilter() bson.M {
	return bson.M{
		"isActive":  bson.M{"$ne": false},
		"isDeleted": bson.M{"$ne": true},
	}
}

// buildProductFilter turns catalog query parameters into a Mongo filter.
// Search input is matched literally.
func buildProductFilter(q func(string) string) (bson.M, error) {
	filter := activeProductFilter()

	if category := strings.TrimSpace(q("category")); category != "" {
		filter["category"] = category
	}
	if brand := strings.TrimSpace(q("brand")); brand != "" {
		filter["brand"] = brand
	}
	if search := strings.TrimSpace(q("search")); search != "" {
		pattern := regexp.QuoteMeta(search)
		filter["$or"] = []bson.M{
			{"name": bson.M{"$regex": pattern, "$options": "i"}},
			{"brand": bson.M{"$regex": pattern, "$options": "i"}},
			{"description": bson.M{"$regex": pattern, "$options": "i"}},
		}
	}

	priceRange := bson.M{}
	if raw := strings.TrimSpace(q("minPrice")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return nil, errors.New("invalid minPrice")
		}
		priceRange["$gte"] = v
	}
	if raw := strings.TrimSpace(q("maxPrice")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return nil, errors.New("invalid maxPrice")
		}
		priceRange["$lte"] = v
	}
	if len(priceRange) > 0 {
		filter["price"] = priceRange
	}
	return filter, nil
}

/*
GET /api/products
- filters: category, brand, search, minPrice, maxPrice
- sort: newest | price_asc | price_desc | rating | name
- response: data + pagination
*/
func ListProducts(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products"
		defer handlePanic(c, route)

		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondWithError(c, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		filter, err := buildProductFilter(c.Query)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		sortBy, ok := productSorts[strings.TrimSpace(c.Query("sort"))]
		if !ok {
			respondWithError(c, http.StatusBadRequest, route, "invalid sort")
			return
		}
		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid pagination params")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		col := db.Collection(repository.CollectionProducts)
		total, err := col.CountDocuments(ctx, filter)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		findOptions := options.Find().
			SetSort(sortBy).
			SetSkip((page - 1) * limit).
			SetLimit(limit)
		cursor, err := col.Find(ctx, filter, findOptions)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		products, err := decodeProducts(ctx, cursor)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}

		log.Printf("[%s] returning %d of %d products", route, len(products), total)
		c.JSON(http.StatusOK, gin.H{
			"data":       products,
			"pagination": paginationBody(page, limit, total),
		})
	}
}

func ListBrands(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/brands"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		brands, err := distinctProductValues(ctx, db, "brand")
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		c.JSON(http.StatusOK, gin.H{"brands": brands})
	}
}

func GetProduct(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/:id"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		filter := activeProductFilter()
		filter["_id"] = id
		var raw bson.M
		err := db.Collection(repository.CollectionProducts).FindOne(ctx, filter).Decode(&raw)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		product, err := normalizeProductDocument(raw)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}
		c.JSON(http.StatusOK, product)
	}
}

// GetSuggestions lists in-stock products from the same category.
func GetSuggestions(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/products/:id/suggestions"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		col := db.Collection(repository.CollectionProducts)
		var raw bson.M
		err := col.FindOne(ctx, bson.M{"_id": id, "isDeleted": bson.M{"$ne": true}}).Decode(&raw)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		product, err := normalizeProductDocument(raw)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}

		filter := activeProductFilter()
		filter["_id"] = bson.M{"$ne": id}
		filter["stock"] = bson.M{"$gt": 0}
		if product.Category != "" {
			filter["category"] = product.Category
		}

		cursor, err := col.Find(ctx, filter, options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: -1}}).
			SetLimit(maxSuggestions))
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		suggestions, err := decodeProducts(ctx, cursor)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}
		c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
	}
}
