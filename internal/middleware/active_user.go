package middleware

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const statusLookupTimeout = 2 * time.Second

// UserStatus reports whether an account may still act. Unknown users are
// not active.
type UserStatus interface {
	UserActive(ctx context.Context, userID primitive.ObjectID) (bool, error)
}

// ActiveUser runs after UserAuth and turns away accounts an admin blocked
// after their access token was issued.
func ActiveUser(users UserStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), statusLookupTimeout)
		defer cancel()
		active, err := users.UserActive(ctx, userID)
		if err != nil {
			log.Println("[AUTH] [ERROR] user status lookup failed:", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "db error"})
			return
		}
		if !active {
			log.Println("[AUTH] [ERROR] blocked user request:", userID.Hex())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user is blocked"})
			return
		}
		c.Next()
	}
}
