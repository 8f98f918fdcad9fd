package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"boutique/internal/models"
	"boutique/internal/orders"
	"boutique/internal/repository"
)

const dateLayout = "2006-01-02"

type adminOrderCustomer struct {
	ID    primitive.ObjectID `json:"id"`
	Name  string             `json:"name,omitempty"`
	Phone string             `json:"phone,omitempty"`
	Email string             `json:"email,omitempty"`
}

type adminOrderRow struct {
	models.Order
	Customer *adminOrderCustomer `json:"customer,omitempty"`
}

// buildAdminOrderFilter turns the order list query into a Mongo filter.
// endDate is inclusive of the whole day.
func buildAdminOrderFilter(get func(string) string) (bson.M, error) {
	filter := bson.M{}

	if raw := strings.TrimSpace(get("status")); raw != "" {
		status, err := orders.ParseOrderStatus(raw)
		if err != nil {
			return nil, err
		}
		filter["orderStatus"] = status
	}

	created := bson.M{}
	if raw := strings.TrimSpace(get("startDate")); raw != "" {
		start, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, errInvalidDate("startDate")
		}
		created["$gte"] = start
	}
	if raw := strings.TrimSpace(get("endDate")); raw != "" {
		end, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, errInvalidDate("endDate")
		}
		created["$lt"] = end.AddDate(0, 0, 1)
	}
	if start, ok := created["$gte"].(time.Time); ok {
		if end, ok := created["$lt"].(time.Time); ok && !end.After(start) {
			return nil, errInvalidDate("endDate")
		}
	}
	if len(created) > 0 {
		filter["createdAt"] = created
	}

	return filter, nil
}

type errInvalidDate string

func (e errInvalidDate) Error() string {
	return "invalid " + string(e) + ", expected YYYY-MM-DD"
}

func AdminListOrders(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/admin/orders"
		defer handlePanic(c, route)

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		filter, err := buildAdminOrderFilter(c.Query)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		collection := db.Collection(repository.CollectionOrders)
		total, err := collection.CountDocuments(ctx, filter)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		findOpts := options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: -1}}).
			SetSkip((page - 1) * limit).
			SetLimit(limit)
		cursor, err := collection.Find(ctx, filter, findOpts)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		list := make([]models.Order, 0)
		if err := cursor.All(ctx, &list); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}

		customers, err := customerIndex(ctx, db, list)
		if err != nil {
			log.Println("[ORDER] [WARN] resolve customers failed:", err)
		}

		rows := make([]adminOrderRow, 0, len(list))
		for _, o := range list {
			rows = append(rows, adminOrderRow{Order: o, Customer: customers[o.UserID]})
		}

		c.JSON(http.StatusOK, gin.H{
			"data":       rows,
			"pagination": paginationBody(page, limit, total),
		})
	}
}

func customerIndex(ctx context.Context, db *mongo.Database, list []models.Order) (map[primitive.ObjectID]*adminOrderCustomer, error) {
	index := make(map[primitive.ObjectID]*adminOrderCustomer)
	if len(list) == 0 {
		return index, nil
	}

	ids := make([]primitive.ObjectID, 0, len(list))
	for _, o := range list {
		ids = append(ids, o.UserID)
	}

	cursor, err := db.Collection(repository.CollectionUsers).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return index, err
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return index, err
	}
	for _, u := range users {
		index[u.ID] = &adminOrderCustomer{ID: u.ID, Name: u.Name, Phone: u.Phone, Email: u.Email}
	}
	return index, nil
}
