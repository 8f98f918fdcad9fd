package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"boutique/internal/models"
	"boutique/internal/repository"
)

const dashboardTopProducts = 5

type dashboardStats struct {
	TotalOrders     int64            `json:"totalOrders"`
	MonthlyOrders   int64            `json:"monthlyOrders"`
	StatusBreakdown map[string]int64 `json:"statusBreakdown"`
	TotalSales      float64          `json:"totalSales"`
	ProductsSold    int64            `json:"productsSold"`
	TotalCustomers  int64            `json:"totalCustomers"`
	NewCustomers    int64            `json:"newCustomers"`
	TopProducts     []bestSeller     `json:"topProducts"`
}

func monthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

func orderStatusBreakdown(ctx context.Context, orders *mongo.Collection) (map[string]int64, error) {
	breakdown := map[string]int64{
		string(models.OrderStatusProcessing): 0,
		string(models.OrderStatusShipped):    0,
		string(models.OrderStatusDelivered):  0,
		string(models.OrderStatusCancelled):  0,
	}

	cursor, err := orders.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$orderStatus", "count": bson.M{"$sum": 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var row struct {
			Status string `bson:"_id"`
			Count  int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, err
		}
		breakdown[row.Status] = row.Count
	}
	return breakdown, cursor.Err()
}

// salesTotals sums revenue and units over non-cancelled orders.
func salesTotals(ctx context.Context, orders *mongo.Collection) (float64, int64, error) {
	cursor, err := orders.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"orderStatus": bson.M{"$ne": models.OrderStatusCancelled}}}},
		{{Key: "$project", Value: bson.M{
			"total": "$paymentDetails.totalPrice",
			"units": bson.M{"$sum": "$orderItems.quantity"},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"sales": bson.M{"$sum": "$total"},
			"units": bson.M{"$sum": "$units"},
		}}},
	})
	if err != nil {
		return 0, 0, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Sales float64 `bson:"sales"`
		Units int64   `bson:"units"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}
	return rows[0].Sales, rows[0].Units, nil
}

func DashboardStats(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/admin/dashboard/stats"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*requestTimeout)
		defer cancel()

		orders := db.Collection(repository.CollectionOrders)
		users := db.Collection(repository.CollectionUsers)
		since := monthStart(time.Now())

		var (
			stats dashboardStats
			err   error
		)

		if stats.TotalOrders, err = orders.CountDocuments(ctx, bson.M{}); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if stats.MonthlyOrders, err = orders.CountDocuments(ctx, bson.M{"createdAt": bson.M{"$gte": since}}); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if stats.StatusBreakdown, err = orderStatusBreakdown(ctx, orders); err != nil {
			log.Println("[ORDER] [ERROR] status breakdown failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if stats.TotalSales, stats.ProductsSold, err = salesTotals(ctx, orders); err != nil {
			log.Println("[ORDER] [ERROR] sales totals failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if stats.TotalCustomers, err = users.CountDocuments(ctx, bson.M{}); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if stats.NewCustomers, err = users.CountDocuments(ctx, bson.M{"createdAt": bson.M{"$gte": since}}); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if stats.TopProducts, err = bestSellers(ctx, db, dashboardTopProducts); err != nil {
			log.Println("[PRODUCT] [ERROR] top products failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, gin.H{"stats": stats})
	}
}
