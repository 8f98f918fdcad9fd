package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"boutique/internal/cart"
)

type CartService interface {
	GetCart(ctx context.Context, userID primitive.ObjectID) (*cart.View, error)
	AddItem(ctx context.Context, userID, productID primitive.ObjectID, quantity int) error
	UpdateQuantity(ctx context.Context, userID, productID primitive.ObjectID, quantity int) error
	RemoveItem(ctx context.Context, userID, productID primitive.ObjectID, one bool) error
	ClearCart(ctx context.Context, userID primitive.ObjectID) error
}

type addCartItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"omitempty,min=1"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

func respondCartError(c *gin.Context, route string, err error) {
	switch {
	case errors.Is(err, cart.ErrCartNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, cart.ErrProductNotFound):
		respondWithError(c, http.StatusNotFound, route, err.Error())
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrInsufficientStock):
		respondWithError(c, http.StatusBadRequest, route, err.Error())
	default:
		respondWithError(c, http.StatusInternalServerError, route, "internal server error")
	}
}

// respondWithCart answers a successful mutation with the fresh cart.
func respondWithCart(c *gin.Context, svc CartService, route string, userID primitive.ObjectID, status int, message string) {
	view, err := svc.GetCart(c.Request.Context(), userID)
	if errors.Is(err, cart.ErrCartNotFound) {
		c.JSON(status, gin.H{"message": message, "cart": nil})
		return
	}
	if err != nil {
		respondCartError(c, route, err)
		return
	}
	c.JSON(status, gin.H{"message": message, "cart": view})
}

func GetCart(svc CartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/cart"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		view, err := svc.GetCart(c.Request.Context(), userID)
		if err != nil {
			respondCartError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func AddCartItem(svc CartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/cart/items"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		var req addCartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		productID, err := primitive.ObjectIDFromHex(strings.TrimSpace(req.ProductID))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid productId")
			return
		}
		if req.Quantity == 0 {
			req.Quantity = 1
		}

		if err := svc.AddItem(c.Request.Context(), userID, productID, req.Quantity); err != nil {
			respondCartError(c, route, err)
			return
		}
		respondWithCart(c, svc, route, userID, http.StatusOK, "Item added to cart")
	}
}

func UpdateCartItem(svc CartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /api/cart/items/:productId"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}
		productID, ok := objectIDParam(c, "productId", route)
		if !ok {
			return
		}

		var req updateCartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		if err := svc.UpdateQuantity(c.Request.Context(), userID, productID, req.Quantity); err != nil {
			respondCartError(c, route, err)
			return
		}
		respondWithCart(c, svc, route, userID, http.StatusOK, "Cart updated")
	}
}

func RemoveCartItem(svc CartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/cart/items/:productId"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}
		productID, ok := objectIDParam(c, "productId", route)
		if !ok {
			return
		}

		one := false
		if raw := strings.TrimSpace(c.Query("one")); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "one must be boolean")
				return
			}
			one = parsed
		}

		if err := svc.RemoveItem(c.Request.Context(), userID, productID, one); err != nil {
			respondCartError(c, route, err)
			return
		}
		respondWithCart(c, svc, route, userID, http.StatusOK, "Item removed from cart")
	}
}

func ClearCart(svc CartService) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/cart"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		if err := svc.ClearCart(c.Request.Context(), userID); err != nil {
			respondCartError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
	}
}
