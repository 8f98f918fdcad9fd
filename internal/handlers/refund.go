package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"boutique/internal/models"
	"boutique/internal/repository"
)

var refundTransitions = map[models.RefundStatus][]models.RefundStatus{
	models.RefundStatusRequested: {models.RefundStatusApproved, models.RefundStatusRejected},
	models.RefundStatusApproved:  {models.RefundStatusProcessed},
}

var openRefundStatuses = []models.RefundStatus{models.RefundStatusRequested, models.RefundStatusApproved}

type createRefundRequest struct {
	OrderID   string `json:"orderId" binding:"required"`
	ProductID string `json:"productId"`
	Reason    string `json:"reason" binding:"required,max=500"`
}

type updateRefundRequest struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note" binding:"omitempty,max=500"`
}

func parseRefundStatus(raw string) (models.RefundStatus, bool) {
	for _, status := range []models.RefundStatus{
		models.RefundStatusRequested,
		models.RefundStatusApproved,
		models.RefundStatusRejected,
		models.RefundStatusProcessed,
	} {
		if strings.EqualFold(strings.TrimSpace(raw), string(status)) {
			return status, true
		}
	}
	return "", false
}

func canTransitionRefund(from, to models.RefundStatus) bool {
	for _, next := range refundTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// refundAmount is the whole order total, or the line total when the refund
// targets a single product.
func refundAmount(order models.Order, productID *primitive.ObjectID) (float64, bool) {
	if productID == nil {
		return order.PaymentDetails.TotalPrice, true
	}
	for _, item := range order.Items {
		if item.ProductID == *productID {
			amount := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
			return amount.InexactFloat64(), true
		}
	}
	return 0, false
}

var (
	errRefundNotEligible = errors.New("only delivered and paid orders can be refunded")
	errRefundNoLine      = errors.New("product not found in this order")
	errRefundSettled     = errors.New("this order or product has already been refunded")
)

// checkRefundable returns the amount a new refund would cover. Processing
// any refund moves the order payment to refunded, so a refunded order still
// takes line refunds while every processed refund so far was for another
// line. processed holds the order's processed refunds.
func checkRefundable(order models.Order, productID *primitive.ObjectID, processed []models.Refund) (float64, error) {
	if order.OrderStatus != models.OrderStatusDelivered {
		return 0, errRefundNotEligible
	}
	switch order.PaymentStatus {
	case models.PaymentStatusPaid:
	case models.PaymentStatusRefunded:
		if productID == nil || len(processed) == 0 {
			return 0, errRefundSettled
		}
		for _, r := range processed {
			if r.ProductID == nil || *r.ProductID == *productID {
				return 0, errRefundSettled
			}
		}
	default:
		return 0, errRefundNotEligible
	}

	amount, ok := refundAmount(order, productID)
	if !ok {
		return 0, errRefundNoLine
	}
	return amount, nil
}

func CreateRefund(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/refunds"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		var req createRefundRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		orderID, err := primitive.ObjectIDFromHex(strings.TrimSpace(req.OrderID))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid orderId")
			return
		}
		var productID *primitive.ObjectID
		if raw := strings.TrimSpace(req.ProductID); raw != "" {
			id, err := primitive.ObjectIDFromHex(raw)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid productId")
				return
			}
			productID = &id
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var order models.Order
		err = db.Collection(repository.CollectionOrders).FindOne(ctx, bson.M{"_id": orderID, "user": userID}).Decode(&order)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "order not found")
			return
		}
		if err != nil {
			log.Println("[REFUND] [ERROR] order lookup failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		refunds := db.Collection(repository.CollectionRefunds)
		var processed []models.Refund
		if order.PaymentStatus == models.PaymentStatusRefunded {
			cursor, err := refunds.Find(ctx, bson.M{"orderId": orderID, "status": models.RefundStatusProcessed})
			if err == nil {
				err = cursor.All(ctx, &processed)
			}
			if err != nil {
				log.Println("[REFUND] [ERROR] processed refund lookup failed:", err)
				respondWithError(c, http.StatusInternalServerError, route, "db error")
				return
			}
		}

		amount, err := checkRefundable(order, productID, processed)
		switch {
		case errors.Is(err, errRefundNoLine):
			respondWithError(c, http.StatusNotFound, route, err.Error())
			return
		case errors.Is(err, errRefundSettled):
			respondWithError(c, http.StatusConflict, route, err.Error())
			return
		case err != nil:
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		openFilter := bson.M{"orderId": orderID, "status": bson.M{"$in": openRefundStatuses}}
		if productID != nil {
			openFilter["productId"] = *productID
		} else {
			openFilter["productId"] = bson.M{"$exists": false}
		}
		open, err := refunds.CountDocuments(ctx, openFilter)
		if err != nil {
			log.Println("[REFUND] [ERROR] open refund check failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if open > 0 {
			respondWithError(c, http.StatusConflict, route, "a refund is already open for this order")
			return
		}

		now := time.Now()
		refund := models.Refund{
			ID:        primitive.NewObjectID(),
			UserID:    userID,
			OrderID:   orderID,
			ProductID: productID,
			Amount:    amount,
			Reason:    strings.TrimSpace(req.Reason),
			Status:    models.RefundStatusRequested,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := refunds.InsertOne(ctx, refund); err != nil {
			log.Println("[REFUND] [ERROR] insert failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		log.Printf("[REFUND] [INFO] refund %s requested for order %s", refund.ID.Hex(), orderID.Hex())
		c.JSON(http.StatusCreated, gin.H{"message": "Refund requested", "refund": refund})
	}
}

func ListRefunds(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/refunds"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		cursor, err := db.Collection(repository.CollectionRefunds).Find(ctx,
			bson.M{"userId": userID},
			options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
		)
		if err != nil {
			log.Println("[REFUND] [ERROR] list failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		refunds := make([]models.Refund, 0)
		if err := cursor.All(ctx, &refunds); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}
		c.JSON(http.StatusOK, gin.H{"refunds": refunds})
	}
}

func GetRefund(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/refunds/:id"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}
		refundID, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var refund models.Refund
		err := db.Collection(repository.CollectionRefunds).FindOne(ctx, bson.M{"_id": refundID, "userId": userID}).Decode(&refund)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "refund not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		c.JSON(http.StatusOK, refund)
	}
}

func WithdrawRefund(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/refunds/:id"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}
		refundID, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		refunds := db.Collection(repository.CollectionRefunds)
		res, err := refunds.DeleteOne(ctx, bson.M{
			"_id":    refundID,
			"userId": userID,
			"status": models.RefundStatusRequested,
		})
		if err != nil {
			log.Println("[REFUND] [ERROR] withdraw failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if res.DeletedCount == 0 {
			count, err := refunds.CountDocuments(ctx, bson.M{"_id": refundID, "userId": userID})
			if err == nil && count > 0 {
				respondWithError(c, http.StatusBadRequest, route, "only requested refunds can be withdrawn")
				return
			}
			respondWithError(c, http.StatusNotFound, route, "refund not found")
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Refund withdrawn"})
	}
}

func AdminListRefunds(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/admin/refunds"
		defer handlePanic(c, route)

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid pagination parameters")
			return
		}

		filter := bson.M{}
		if raw := strings.TrimSpace(c.Query("status")); raw != "" {
			status, ok := parseRefundStatus(raw)
			if !ok {
				respondWithError(c, http.StatusBadRequest, route, "invalid status")
				return
			}
			filter["status"] = status
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		col := db.Collection(repository.CollectionRefunds)
		total, err := col.CountDocuments(ctx, filter)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		opts := options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: -1}}).
			SetSkip((page - 1) * limit).
			SetLimit(limit)
		cursor, err := col.Find(ctx, filter, opts)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		refunds := make([]models.Refund, 0)
		if err := cursor.All(ctx, &refunds); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data":       refunds,
			"pagination": paginationBody(page, limit, total),
		})
	}
}

// UpdateRefundStatus moves a refund through review. Processing a refund
// marks the order payment as refunded before the refund itself is
// recorded as processed.
func UpdateRefundStatus(db *mongo.Database, svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /api/admin/refunds/:id"
		defer handlePanic(c, route)

		refundID, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}

		var req updateRefundRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		target, ok := parseRefundStatus(req.Status)
		if !ok {
			respondWithError(c, http.StatusBadRequest, route, "invalid status")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		refunds := db.Collection(repository.CollectionRefunds)
		var refund models.Refund
		err := refunds.FindOne(ctx, bson.M{"_id": refundID}).Decode(&refund)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "refund not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if !canTransitionRefund(refund.Status, target) {
			respondWithError(c, http.StatusBadRequest, route, "cannot move refund from "+string(refund.Status)+" to "+string(target))
			return
		}

		if target == models.RefundStatusProcessed {
			var order models.Order
			if err := db.Collection(repository.CollectionOrders).FindOne(ctx, bson.M{"_id": refund.OrderID}).Decode(&order); err != nil {
				log.Println("[REFUND] [ERROR] order lookup failed:", err)
				respondWithError(c, http.StatusNotFound, route, "order not found")
				return
			}
			// an earlier line refund may already have settled the payment
			if order.PaymentStatus != models.PaymentStatusRefunded {
				if _, err := svc.UpdatePaymentStatus(ctx, refund.OrderID, string(models.PaymentStatusRefunded)); err != nil {
					respondOrderError(c, route, err)
					return
				}
			}
		}

		set := bson.M{"status": target, "updatedAt": time.Now()}
		if note := strings.TrimSpace(req.Note); note != "" {
			set["note"] = note
		}
		res, err := refunds.UpdateOne(ctx,
			bson.M{"_id": refundID, "status": refund.Status},
			bson.M{"$set": set},
		)
		if err != nil {
			log.Println("[REFUND] [ERROR] status update failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if res.MatchedCount == 0 {
			respondWithError(c, http.StatusConflict, route, "refund status changed concurrently")
			return
		}

		refund.Status = target
		log.Printf("[REFUND] [INFO] refund %s -> %s", refundID.Hex(), target)
		c.JSON(http.StatusOK, gin.H{"message": "Refund status updated", "refund": refund})
	}
}
