package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"boutique/internal/orders"
)

// OrderService is the part of orders.Service the HTTP layer depends on.
type OrderService interface {
	Checkout(ctx context.Context, userID, addressID primitive.ObjectID, declared decimal.Decimal) (*orders.OrderView, error)
	ListOrders(ctx context.Context, userID primitive.ObjectID, page int64) (*orders.OrderPage, error)
	OrderLine(ctx context.Context, userID, orderID, productID primitive.ObjectID) (*orders.LineDetail, error)
	UpdateStatus(ctx context.Context, orderID primitive.ObjectID, rawStatus string) (*orders.OrderView, error)
	UpdatePaymentStatus(ctx context.Context, orderID primitive.ObjectID, rawStatus string) (*orders.OrderView, error)
}

type CreateOrderRequest struct {
	AddressID   string           `json:"addressId" binding:"required"`
	TotalAmount *decimal.Decimal `json:"totalAmount" binding:"required"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// respondOrderError maps the orders package error taxonomy onto HTTP.
func respondOrderError(c *gin.Context, route string, err error) {
	var (
		validationErr *orders.ValidationError
		mismatchErr   *orders.AmountMismatchError
		txErr         *orders.TransactionError
	)

	switch {
	case errors.As(err, &validationErr):
		log.Printf("[%s] returning error %d: %v", route, http.StatusBadRequest, err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":  "validation failed",
			"errors": validationErr.Messages(),
			"items":  validationErr.Items,
		})
	case errors.As(err, &mismatchErr):
		log.Printf("[%s] returning error %d: %v", route, http.StatusBadRequest, err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":    "total amount mismatch",
			"expected": mismatchErr.Expected.InexactFloat64(),
			"received": mismatchErr.Received.InexactFloat64(),
		})
	case errors.As(err, &txErr):
		log.Printf("[%s] returning error %d: %v", route, http.StatusInternalServerError, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "order transaction failed",
			"message": txErr.Err.Error(),
		})
	case errors.Is(err, orders.ErrEmptyCart),
		errors.Is(err, orders.ErrAddressNotFound),
		errors.Is(err, orders.ErrInvalidStatus):
		respondWithError(c, http.StatusBadRequest, route, err.Error())
	case errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, orders.ErrLineNotFound),
		errors.Is(err, orders.ErrProductNotFound):
		respondWithError(c, http.StatusNotFound, route, err.Error())
	case errors.Is(err, orders.ErrStatusConflict):
		respondWithError(c, http.StatusConflict, route, err.Error())
	default:
		log.Printf("[%s] unexpected error: %v", route, err)
		respondWithError(c, http.StatusInternalServerError, route, "internal server error")
	}
}

func CreateOrder(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/orders"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		addressID, err := primitive.ObjectIDFromHex(strings.TrimSpace(req.AddressID))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid addressId")
			return
		}
		if req.TotalAmount.IsNegative() {
			respondWithError(c, http.StatusBadRequest, route, "totalAmount must not be negative")
			return
		}

		view, err := svc.Checkout(c.Request.Context(), userID, addressID, *req.TotalAmount)
		if err != nil {
			respondOrderError(c, route, err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"message": "Order created successfully",
			"order":   view,
		})
	}
}

func ListOrders(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		page := int64(1)
		if raw := strings.TrimSpace(c.Query("page")); raw != "" {
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || parsed < 1 {
				respondWithError(c, http.StatusBadRequest, route, "invalid page")
				return
			}
			page = parsed
		}

		result, err := svc.ListOrders(c.Request.Context(), userID, page)
		if err != nil {
			respondOrderError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func GetOrderLine(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders/:id"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}
		orderID, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}

		rawProduct := strings.TrimSpace(c.Query("productId"))
		if rawProduct == "" {
			respondWithError(c, http.StatusBadRequest, route, "productId is required")
			return
		}
		productID, err := primitive.ObjectIDFromHex(rawProduct)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid productId")
			return
		}

		detail, err := svc.OrderLine(c.Request.Context(), userID, orderID, productID)
		if err != nil {
			respondOrderError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

func UpdateOrderStatus(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /api/orders/:id/status"
		defer handlePanic(c, route)

		orderID, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		view, err := svc.UpdateStatus(c.Request.Context(), orderID, req.Status)
		if err != nil {
			respondOrderError(c, route, err)
			return
		}

		log.Printf("[ORDER] [INFO] order %s status -> %s", orderID.Hex(), view.OrderStatus)
		c.JSON(http.StatusOK, gin.H{
			"message": "Order status updated",
			"order":   view,
		})
	}
}

func UpdatePaymentStatus(svc OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /api/admin/orders/:id/payment-status"
		defer handlePanic(c, route)

		orderID, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		view, err := svc.UpdatePaymentStatus(c.Request.Context(), orderID, req.Status)
		if err != nil {
			respondOrderError(c, route, err)
			return
		}

		log.Printf("[ORDER] [INFO] order %s payment status -> %s", orderID.Hex(), view.PaymentStatus)
		c.JSON(http.StatusOK, gin.H{
			"message": "Payment status updated",
			"order":   view,
		})
	}
}
