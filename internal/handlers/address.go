package handlers

import (
	"context"
	"errors"
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
	"boutique/internal/repository"
)

type addressRequest struct {
	FullName     string `json:"fullName" binding:"required,max=120"`
	ContactPhone string `json:"contactPhone" binding:"omitempty,max=20"`
	Street       string `json:"street" binding:"required"`
	City         string `json:"city" binding:"required"`
	State        string `json:"state" binding:"required"`
	Country      string `json:"country" binding:"required"`
	ZipCode      string `json:"zipCode" binding:"required,max=12"`
	Email        string `json:"email" binding:"omitempty,email"`
	IsDefault    bool   `json:"isDefault"`
}

func (r addressRequest) fields() bson.M {
	return bson.M{
		"fullName":     strings.TrimSpace(r.FullName),
		"contactPhone": strings.TrimSpace(r.ContactPhone),
		"street":       strings.TrimSpace(r.Street),
		"city":         strings.TrimSpace(r.City),
		"state":        strings.TrimSpace(r.State),
		"country":      strings.TrimSpace(r.Country),
		"zipCode":      strings.TrimSpace(r.ZipCode),
		"email":        strings.ToLower(strings.TrimSpace(r.Email)),
	}
}

// clearDefaultAddress unsets the default flag on every other address of the
// user.
func clearDefaultAddress(ctx context.Context, col *mongo.Collection, userID, keep primitive.ObjectID) error {
	_, err := col.UpdateMany(ctx,
		bson.M{"userId": userID, "_id": bson.M{"$ne": keep}, "isDefault": true},
		bson.M{"$set": bson.M{"isDefault": false, "updatedAt": time.Now()}},
	)
	return err
}

func CreateAddress(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/addresses"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		var req addressRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		col := db.Collection(repository.CollectionAddresses)
		existing, err := col.CountDocuments(ctx, bson.M{"userId": userID})
		if err != nil {
			log.Println("[ADDRESS] [ERROR] count failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		now := time.Now()
		address := models.Address{
			ID:           primitive.NewObjectID(),
			UserID:       userID,
			FullName:     strings.TrimSpace(req.FullName),
			ContactPhone: strings.TrimSpace(req.ContactPhone),
			Street:       strings.TrimSpace(req.Street),
			City:         strings.TrimSpace(req.City),
			State:        strings.TrimSpace(req.State),
			Country:      strings.TrimSpace(req.Country),
			ZipCode:      strings.TrimSpace(req.ZipCode),
			Email:        strings.ToLower(strings.TrimSpace(req.Email)),
			IsDefault:    req.IsDefault || existing == 0,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if _, err := col.InsertOne(ctx, address); err != nil {
			log.Println("[ADDRESS] [ERROR] insert failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if address.IsDefault {
			if err := clearDefaultAddress(ctx, col, userID, address.ID); err != nil {
				log.Println("[ADDRESS] [WARN] clear default failed:", err)
			}
		}

		log.Println("[ADDRESS] [INFO] address created:", address.ID.Hex())
		c.JSON(http.StatusCreated, gin.H{"message": "Address added", "address": address})
	}
}

func ListAddresses(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/addresses"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		opts := options.Find().SetSort(bson.D{{Key: "isDefault", Value: -1}, {Key: "createdAt", Value: -1}})
		cursor, err := db.Collection(repository.CollectionAddresses).Find(ctx, bson.M{"userId": userID}, opts)
		if err != nil {
			log.Println("[ADDRESS] [ERROR] list failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		addresses := make([]models.Address, 0)
		if err := cursor.All(ctx, &addresses); err != nil {
			log.Println("[ADDRESS] [ERROR] decode failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "decode error")
			return
		}

		c.JSON(http.StatusOK, gin.H{"addresses": addresses})
	}
}

func GetAddress(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/addresses/:id"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}
		addressID, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var address models.Address
		err := db.Collection(repository.CollectionAddresses).FindOne(ctx, bson.M{"_id": addressID, "userId": userID}).Decode(&address)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "address not found")
			return
		}
		if err != nil {
			log.Println("[ADDRESS] [ERROR] get failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, address)
	}
}

func UpdateAddress(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/addresses/:id"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}
		addressID, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}

		var req addressRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		set := req.fields()
		set["updatedAt"] = time.Now()
		if req.IsDefault {
			set["isDefault"] = true
		}

		col := db.Collection(repository.CollectionAddresses)
		var address models.Address
		err := col.FindOneAndUpdate(
			ctx,
			bson.M{"_id": addressID, "userId": userID},
			bson.M{"$set": set},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&address)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "address not found")
			return
		}
		if err != nil {
			log.Println("[ADDRESS] [ERROR] update failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if address.IsDefault {
			if err := clearDefaultAddress(ctx, col, userID, address.ID); err != nil {
				log.Println("[ADDRESS] [WARN] clear default failed:", err)
			}
		}

		c.JSON(http.StatusOK, gin.H{"message": "Address updated", "address": address})
	}
}

func DeleteAddress(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/addresses/:id"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}
		addressID, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		col := db.Collection(repository.CollectionAddresses)
		var removed models.Address
		err := col.FindOneAndDelete(ctx, bson.M{"_id": addressID, "userId": userID}).Decode(&removed)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "address not found")
			return
		}
		if err != nil {
			log.Println("[ADDRESS] [ERROR] delete failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		// promote the newest remaining address
		if removed.IsDefault {
			opts := options.FindOneAndUpdate().SetSort(bson.D{{Key: "createdAt", Value: -1}})
			err := col.FindOneAndUpdate(ctx,
				bson.M{"userId": userID},
				bson.M{"$set": bson.M{"isDefault": true, "updatedAt": time.Now()}},
				opts,
			).Err()
			if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
				log.Println("[ADDRESS] [WARN] promote default failed:", err)
			}
		}

		c.JSON(http.StatusOK, gin.H{"message": "Address deleted"})
	}
}

func SetDefaultAddress(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /api/addresses/:id/default"
		defer handlePanic(c, route)

		userID, ok := currentUser(c, route)
		if !ok {
			return
		}
		addressID, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		col := db.Collection(repository.CollectionAddresses)
		var address models.Address
		err := col.FindOneAndUpdate(
			ctx,
			bson.M{"_id": addressID, "userId": userID},
			bson.M{"$set": bson.M{"isDefault": true, "updatedAt": time.Now()}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&address)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "address not found")
			return
		}
		if err != nil {
			log.Println("[ADDRESS] [ERROR] set default failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if err := clearDefaultAddress(ctx, col, userID, address.ID); err != nil {
			log.Println("[ADDRESS] [ERROR] clear default failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Default address updated", "address": address})
	}
}
