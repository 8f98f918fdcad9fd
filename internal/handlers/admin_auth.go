package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"boutique/internal/models"
	"boutique/internal/repository"
)

type AdminLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AdminSignupRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

func signAdminToken(admin models.Admin, secret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"adminId": admin.ID.Hex(),
		"role":    admin.Role,
		"email":   admin.Email,
		"exp":     time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func adminResponse(admin models.Admin) gin.H {
	return gin.H{
		"id":          admin.ID.Hex(),
		"name":        admin.Name,
		"email":       admin.Email,
		"role":        admin.Role,
		"permissions": admin.Permissions,
	}
}

func createAdmin(ctx context.Context, db *mongo.Database, req AdminSignupRequest, role string) (*models.Admin, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	admin := models.Admin{
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		Role:         role,
		Permissions: models.AdminPermissions{
			Orders:    true,
			Products:  true,
			Customers: true,
			Analytics: true,
		},
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res, err := db.Collection(repository.CollectionAdmins).InsertOne(ctx, admin)
	if err != nil {
		return nil, err
	}
	admin.ID = res.InsertedID.(primitive.ObjectID)
	return &admin, nil
}

// AdminSignup bootstraps the first account as superadmin. Once any admin
// exists further accounts are created through CreateAdmin.
func AdminSignup(db *mongo.Database, jwtSecret string, accessTTL time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/admin/signup"
		defer handlePanic(c, route)

		var req AdminSignupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		count, err := db.Collection(repository.CollectionAdmins).CountDocuments(ctx, bson.M{})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if count > 0 {
			respondWithError(c, http.StatusForbidden, route, "signup is closed, ask a superadmin for an account")
			return
		}

		admin, err := createAdmin(ctx, db, req, models.AdminRoleSuperAdmin)
		if mongo.IsDuplicateKeyError(err) {
			respondWithError(c, http.StatusConflict, route, "email already registered")
			return
		}
		if err != nil {
			log.Println("[ADMIN] [ERROR] signup failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		token, err := signAdminToken(*admin, jwtSecret, accessTTL)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "token generation failed")
			return
		}

		log.Println("[ADMIN] [INFO] superadmin created:", admin.Email)
		c.JSON(http.StatusCreated, gin.H{"token": token, "admin": adminResponse(*admin)})
	}
}

// CreateAdmin is mounted behind a superadmin guard.
func CreateAdmin(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/admin/admins"
		defer handlePanic(c, route)

		var req AdminSignupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		admin, err := createAdmin(ctx, db, req, models.AdminRoleAdmin)
		if mongo.IsDuplicateKeyError(err) {
			respondWithError(c, http.StatusConflict, route, "email already registered")
			return
		}
		if err != nil {
			log.Println("[ADMIN] [ERROR] create admin failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		log.Println("[ADMIN] [INFO] admin created:", admin.Email)
		c.JSON(http.StatusCreated, gin.H{"admin": adminResponse(*admin)})
	}
}

func AdminLogin(db *mongo.Database, jwtSecret string, accessTTL time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/admin/login"
		defer handlePanic(c, route)

		var req AdminLoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var admin models.Admin
		err := db.Collection(repository.CollectionAdmins).FindOne(ctx, bson.M{
			"email": strings.ToLower(strings.TrimSpace(req.Email)),
		}).Decode(&admin)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusUnauthorized, route, "invalid credentials")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
			respondWithError(c, http.StatusUnauthorized, route, "invalid credentials")
			return
		}
		if !admin.IsActive {
			respondWithError(c, http.StatusForbidden, route, "admin account is disabled")
			return
		}

		token, err := signAdminToken(admin, jwtSecret, accessTTL)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "token generation failed")
			return
		}

		log.Println("[ADMIN] [INFO] login:", admin.Email)
		c.JSON(http.StatusOK, gin.H{"token": token, "admin": adminResponse(admin)})
	}
}
