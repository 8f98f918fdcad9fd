package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"regexp"
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

type customerOrderStats struct {
	TotalOrders   int64      `bson:"totalOrders" json:"totalOrders"`
	TotalSpent    float64    `bson:"totalSpent" json:"totalSpent"`
	LastOrderDate *time.Time `bson:"lastOrderDate" json:"lastOrderDate"`
}

type customerRow struct {
	models.User
	Stats customerOrderStats `json:"orderStats"`
}

func buildCustomerFilter(search string) bson.M {
	filter := bson.M{}
	search = strings.TrimSpace(search)
	if search == "" {
		return filter
	}
	pattern := regexp.QuoteMeta(search)
	filter["$or"] = []bson.M{
		{"name": bson.M{"$regex": pattern, "$options": "i"}},
		{"email": bson.M{"$regex": pattern, "$options": "i"}},
		{"phone": bson.M{"$regex": pattern, "$options": "i"}},
	}
	return filter
}

// customerStats aggregates order counts and spend for the given users.
// Cancelled orders do not count towards spend.
func customerStats(ctx context.Context, db *mongo.Database, ids []primitive.ObjectID) (map[primitive.ObjectID]customerOrderStats, error) {
	stats := make(map[primitive.ObjectID]customerOrderStats, len(ids))
	if len(ids) == 0 {
		return stats, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user": bson.M{"$in": ids}}}},
		{{Key: "$group", Value: bson.M{
			"_id":         "$user",
			"totalOrders": bson.M{"$sum": 1},
			"totalSpent": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$orderStatus", models.OrderStatusCancelled}},
				0,
				"$paymentDetails.totalPrice",
			}}},
			"lastOrderDate": bson.M{"$max": "$createdAt"},
		}}},
	}

	cursor, err := db.Collection(repository.CollectionOrders).Aggregate(ctx, pipeline)
	if err != nil {
		return stats, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var row struct {
			ID    primitive.ObjectID `bson:"_id"`
			Stats customerOrderStats `bson:",inline"`
		}
		if err := cursor.Decode(&row); err != nil {
			return stats, err
		}
		stats[row.ID] = row.Stats
	}
	return stats, cursor.Err()
}

func AdminListCustomers(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/admin/customers"
		defer handlePanic(c, route)

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		users := db.Collection(repository.CollectionUsers)
		filter := buildCustomerFilter(c.Query("search"))

		total, err := users.CountDocuments(ctx, filter)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		findOpts := options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: -1}}).
			SetSkip((page - 1) * limit).
			SetLimit(limit)
		cursor, err := users.Find(ctx, filter, findOpts)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		list := make([]models.User, 0)
		if err := cursor.All(ctx, &list); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}

		ids := make([]primitive.ObjectID, 0, len(list))
		for _, u := range list {
			ids = append(ids, u.ID)
		}
		stats, err := customerStats(ctx, db, ids)
		if err != nil {
			log.Println("[USER] [WARN] customer stats failed:", err)
		}

		rows := make([]customerRow, 0, len(list))
		for _, u := range list {
			rows = append(rows, customerRow{User: u, Stats: stats[u.ID]})
		}

		c.JSON(http.StatusOK, gin.H{
			"data":       rows,
			"pagination": paginationBody(page, limit, total),
		})
	}
}

func AdminGetCustomer(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/admin/customers/:id"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var user models.User
		err := db.Collection(repository.CollectionUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&user)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "customer not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		stats, err := customerStats(ctx, db, []primitive.ObjectID{id})
		if err != nil {
			log.Println("[USER] [WARN] customer stats failed:", err)
		}

		recentOpts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(10)
		cursor, err := db.Collection(repository.CollectionOrders).Find(ctx, bson.M{"user": id}, recentOpts)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		recent := make([]models.Order, 0)
		if err := cursor.All(ctx, &recent); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}

		addrCursor, err := db.Collection(repository.CollectionAddresses).Find(ctx, bson.M{"userId": id})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer addrCursor.Close(ctx)

		addresses := make([]models.Address, 0)
		if err := addrCursor.All(ctx, &addresses); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"customer":     customerRow{User: user, Stats: stats[id]},
			"recentOrders": recent,
			"addresses":    addresses,
		})
	}
}

func ToggleCustomerStatus(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /api/admin/customers/:id/toggle-status"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		// Pipeline update flips the flag atomically.
		update := mongo.Pipeline{
			{{Key: "$set", Value: bson.M{
				"isActive":  bson.M{"$not": bson.A{bson.M{"$ifNull": bson.A{"$isActive", true}}}},
				"updatedAt": time.Now(),
			}}},
		}
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

		var user models.User
		err := db.Collection(repository.CollectionUsers).FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&user)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "customer not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		if !user.IsActive {
			// Disabled customers lose their sessions.
			if _, err := db.Collection(repository.CollectionRefreshTokens).DeleteMany(ctx, bson.M{"userId": id}); err != nil {
				log.Println("[USER] [WARN] revoke refresh tokens failed:", err)
			}
		}

		log.Printf("[USER] [INFO] customer %s isActive=%v", id.Hex(), user.IsActive)
		c.JSON(http.StatusOK, gin.H{"customer": user})
	}
}
