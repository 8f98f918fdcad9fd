package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"boutique/internal/models"
	"boutique/internal/repository"
)

const (
	bestSellerLimit = 10
	lowStockLevel   = 5
)

/* =======================
   HELPERS
======================= */

func sanitizeLogValue(value string, max int) string {
	trimmed := strings.TrimSpace(value)
	if max <= 0 {
		max = 80
	}
	if len(trimmed) <= max {
		return trimmed
	}
	return trimmed[:max] + "..."
}

func mapKeys(input map[string]interface{}) []string {
	keys := make([]string, 0, len(input))
	for key := range input {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func findLiveProduct(ctx context.Context, db *mongo.Database, id primitive.ObjectID) (*models.Product, error) {
	var raw bson.M
	err := db.Collection(repository.CollectionProducts).FindOne(ctx, bson.M{
		"_id":       id,
		"isDeleted": bson.M{"$ne": true},
	}).Decode(&raw)
	if err != nil {
		return nil, err
	}
	product, err := normalizeProductDocument(raw)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

/* =======================
   GET (ADMIN) – LIST
======================= */

func AdminListProducts(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/admin/products"
		defer handlePanic(c, route)

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		filter := bson.M{"isDeleted": bson.M{"$ne": true}}
		if category := strings.TrimSpace(c.Query("category")); category != "" {
			filter["category"] = category
		}
		if search := strings.TrimSpace(c.Query("search")); search != "" {
			pattern := regexp.QuoteMeta(search)
			filter["$or"] = []bson.M{
				{"name": bson.M{"$regex": pattern, "$options": "i"}},
				{"brand": bson.M{"$regex": pattern, "$options": "i"}},
				{"description": bson.M{"$regex": pattern, "$options": "i"}},
			}
		}
		if isActive := strings.TrimSpace(c.Query("isActive")); isActive != "" {
			filter["isActive"] = strings.EqualFold(isActive, "true")
		}
		if strings.EqualFold(c.Query("lowStock"), "true") {
			filter["stock"] = bson.M{"$lte": lowStockLevel}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		col := db.Collection(repository.CollectionProducts)
		total, err := col.CountDocuments(ctx, filter)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		opts := options.Find().
			SetSkip((page - 1) * limit).
			SetLimit(limit).
			SetSort(bson.D{{Key: "createdAt", Value: -1}})
		cursor, err := col.Find(ctx, filter, opts)
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

		c.JSON(http.StatusOK, gin.H{
			"data":       products,
			"pagination": paginationBody(page, limit, total),
		})
	}
}

/* =======================
   CREATE
======================= */

func CreateProduct(db *mongo.Database, images ImageSaver) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/admin/products"
		defer handlePanic(c, route)

		if !strings.HasPrefix(c.GetHeader("Content-Type"), "multipart/form-data") {
			respondWithError(c, http.StatusUnsupportedMediaType, route, "multipart/form-data required")
			return
		}

		input, err := parseMultipartProductRequest(c, images)
		if err != nil {
			log.Println("[PRODUCT] [ERROR] create multipart error:", err)
			respondMultipartError(c, err)
			return
		}
		// files are already on disk; drop them if the product is rejected
		reject := func(status int, message string) {
			images.DeleteAll(input.savedPaths()...)
			respondWithError(c, status, route, message)
		}

		if !input.NameSet || input.Name == "" {
			reject(http.StatusBadRequest, "name required")
			return
		}
		if !input.PriceSet || input.Price <= 0 {
			reject(http.StatusBadRequest, "invalid price")
			return
		}
		if !input.CategorySet || input.Category == "" {
			reject(http.StatusBadRequest, "category required")
			return
		}
		if !input.StockSet || input.Stock < 0 {
			reject(http.StatusBadRequest, "stock must be zero or greater")
			return
		}
		if !input.ThumbnailSet {
			reject(http.StatusBadRequest, "thumbnail required")
			return
		}

		saleEnabled := input.SaleEnabledSet && input.SaleEnabled
		salePrice := 0.0
		if saleEnabled {
			salePrice = input.SalePrice
		}
		if err := checkSale(input.Price, saleEnabled, salePrice, input.SalePriceSet); err != nil {
			reject(http.StatusBadRequest, err.Error())
			return
		}

		isActive := true
		if input.IsActiveSet {
			isActive = input.IsActive
		}

		now := time.Now()
		product := models.Product{
			Name:        input.Name,
			Description: input.Description,
			Price:       input.Price,
			SaleEnabled: saleEnabled,
			SalePrice:   salePrice,
			Category:    input.Category,
			Brand:       input.Brand,
			Thumbnail:   input.Thumbnail,
			Images:      models.StringList(input.Images),
			Size:        input.Size,
			Color:       input.Color,
			Cloth:       input.Cloth,
			Stock:       input.Stock,
			IsActive:    isActive,
			IsDeleted:   false,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		res, err := db.Collection(repository.CollectionProducts).InsertOne(ctx, product)
		if err != nil {
			log.Println("[PRODUCT] [ERROR] insert failed:", err)
			reject(http.StatusInternalServerError, "db error")
			return
		}

		product.ID = res.InsertedID.(primitive.ObjectID)
		product.Decorate()
		log.Println("[PRODUCT] [INFO] created:", product.ID.Hex())
		c.JSON(http.StatusCreated, product)
	}
}

/* =======================
   UPDATE
======================= */

// UpdateProduct applies a partial multipart update. A new thumbnail
// replaces the old file; new images replace the whole gallery unless
// keepImages=true, in which case they are appended.
func UpdateProduct(db *mongo.Database, images ImageSaver) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/admin/products/:id"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}
		if !strings.HasPrefix(c.GetHeader("Content-Type"), "multipart/form-data") {
			respondWithError(c, http.StatusUnsupportedMediaType, route, "multipart/form-data required")
			return
		}

		keepImages := false
		if raw := strings.TrimSpace(c.Query("keepImages")); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "keepImages must be boolean")
				return
			}
			keepImages = parsed
		}

		input, err := parseMultipartProductRequest(c, images)
		if err != nil {
			log.Println("[PRODUCT] [ERROR] update multipart error:", err)
			respondMultipartError(c, err)
			return
		}
		reject := func(status int, message string) {
			images.DeleteAll(input.savedPaths()...)
			respondWithError(c, status, route, message)
		}

		log.Printf(
			"[PRODUCT] [DEBUG] update %s: brand=%q stock=%d description=%q",
			id.Hex(),
			sanitizeLogValue(input.Brand, 80),
			input.Stock,
			sanitizeLogValue(input.Description, 120),
		)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		existing, err := findLiveProduct(ctx, db, id)
		if errors.Is(err, mongo.ErrNoDocuments) {
			reject(http.StatusNotFound, "product not found")
			return
		}
		if err != nil {
			log.Println("[PRODUCT] [ERROR] update lookup failed:", err)
			reject(http.StatusInternalServerError, "db error")
			return
		}

		updateSet := bson.M{}
		if input.NameSet {
			if input.Name == "" {
				reject(http.StatusBadRequest, "name required")
				return
			}
			updateSet["name"] = input.Name
		}
		if input.PriceSet {
			if input.Price <= 0 {
				reject(http.StatusBadRequest, "invalid price")
				return
			}
			updateSet["price"] = input.Price
		}
		if input.CategorySet {
			if input.Category == "" {
				reject(http.StatusBadRequest, "category required")
				return
			}
			updateSet["category"] = input.Category
		}
		if input.StockSet {
			if input.Stock < 0 {
				reject(http.StatusBadRequest, "stock must be zero or greater")
				return
			}
			updateSet["stock"] = input.Stock
		}
		if input.DescriptionSet {
			updateSet["description"] = input.Description
		}
		if input.BrandSet {
			updateSet["brand"] = input.Brand
		}
		if input.SizeSet {
			updateSet["size"] = input.Size
		}
		if input.ColorSet {
			updateSet["color"] = input.Color
		}
		if input.ClothSet {
			updateSet["cloth"] = input.Cloth
		}
		if input.IsActiveSet {
			updateSet["isActive"] = input.IsActive
		}

		saleSet, err := applySaleChange(*existing, saleChangeFrom(input))
		if err != nil {
			reject(http.StatusBadRequest, err.Error())
			return
		}
		for k, v := range saleSet {
			updateSet[k] = v
		}

		var obsolete []string
		if input.ThumbnailSet {
			updateSet["thumbnail"] = input.Thumbnail
			if existing.Thumbnail != "" {
				obsolete = append(obsolete, existing.Thumbnail)
			}
		}
		if input.ImagesSet {
			gallery := input.Images
			if keepImages {
				gallery = append(append([]string{}, existing.Images...), input.Images...)
			} else {
				obsolete = append(obsolete, existing.Images...)
			}
			if len(gallery) > maxProductImages {
				reject(http.StatusBadRequest, errTooManyImages.Error())
				return
			}
			updateSet["images"] = models.StringList(gallery)
		}

		if len(updateSet) == 0 {
			reject(http.StatusBadRequest, "no fields to update")
			return
		}
		updateSet["updatedAt"] = time.Now()

		log.Printf("[PRODUCT] [DEBUG] update %s fields: %v", id.Hex(), mapKeys(updateSet))

		result, err := db.Collection(repository.CollectionProducts).UpdateOne(
			ctx,
			bson.M{"_id": id, "isDeleted": bson.M{"$ne": true}},
			bson.M{"$set": updateSet},
		)
		if err != nil {
			log.Println("[PRODUCT] [ERROR] update failed:", err)
			reject(http.StatusInternalServerError, "db error")
			return
		}
		if result.MatchedCount == 0 {
			reject(http.StatusNotFound, "product not found")
			return
		}

		images.DeleteAll(obsolete...)

		updated, err := findLiveProduct(ctx, db, id)
		if err != nil {
			log.Println("[PRODUCT] [ERROR] reload failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

/* =======================
   DELETE (SOFT)
======================= */

func DeleteProduct(db *mongo.Database, images ImageSaver) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/admin/products/:id"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		existing, err := findLiveProduct(ctx, db, id)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		now := time.Now()
		res, err := db.Collection(repository.CollectionProducts).UpdateOne(
			ctx,
			bson.M{"_id": id, "isDeleted": bson.M{"$ne": true}},
			bson.M{"$set": bson.M{
				"isDeleted": true,
				"deletedAt": now,
				"isActive":  false,
				"updatedAt": now,
			}},
		)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if res.MatchedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, "product not found")
			return
		}

		// orders keep their own name and price snapshot, so media can go
		images.DeleteAll(append([]string{existing.Thumbnail}, existing.Images...)...)

		log.Println("[PRODUCT] [INFO] soft deleted:", id.Hex())
		c.JSON(http.StatusOK, gin.H{"message": "product deleted"})
	}
}

/* =======================
   STATS
======================= */

type bestSeller struct {
	ProductID primitive.ObjectID `bson:"_id" json:"productId"`
	Name      string             `bson:"name" json:"name"`
	Sold      int                `bson:"sold" json:"sold"`
	Revenue   float64            `bson:"revenue" json:"revenue"`
}

// bestSellers ranks products by units sold across non-cancelled orders.
func bestSellers(ctx context.Context, db *mongo.Database, limit int) ([]bestSeller, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"orderStatus": bson.M{"$ne": models.OrderStatusCancelled}}}},
		{{Key: "$unwind", Value: "$orderItems"}},
		{{Key: "$group", Value: bson.M{
			"_id":     "$orderItems.product",
			"name":    bson.M{"$first": "$orderItems.name"},
			"sold":    bson.M{"$sum": "$orderItems.quantity"},
			"revenue": bson.M{"$sum": bson.M{"$multiply": bson.A{"$orderItems.price", "$orderItems.quantity"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "sold", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: limit}},
	}
	cursor, err := db.Collection(repository.CollectionOrders).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	sellers := make([]bestSeller, 0, limit)
	if err := cursor.All(ctx, &sellers); err != nil {
		return nil, err
	}
	return sellers, nil
}

func GetProductStats(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/admin/products/stats"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		products := db.Collection(repository.CollectionProducts)
		live := bson.M{"isDeleted": bson.M{"$ne": true}}

		total, err := products.CountDocuments(ctx, live)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		inStock, err := products.CountDocuments(ctx, bson.M{"isDeleted": bson.M{"$ne": true}, "stock": bson.M{"$gt": 0}})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		active, err := products.CountDocuments(ctx, bson.M{"isDeleted": bson.M{"$ne": true}, "isActive": bson.M{"$ne": false}})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		sellers, err := bestSellers(ctx, db, bestSellerLimit)
		if err != nil {
			log.Println("[PRODUCT] [ERROR] best sellers aggregation failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"totalProducts":      total,
			"activeProducts":     active,
			"inStockProducts":    inStock,
			"outOfStockProducts": total - inStock,
			"bestSellers":        sellers,
		})
	}
}
