package handlers

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"boutique/internal/models"
	"boutique/internal/repository"
	"boutique/internal/sms"
)

const (
	otpDigits      = 6
	maxOTPAttempts = 5
)

var errInvalidPhone = errors.New("invalid phone number")

// otpCodes stores login codes. ClaimAttempt must spend the attempt
// atomically before the caller compares the code.
type otpCodes interface {
	Save(ctx context.Context, otp models.Otp) error
	ClaimAttempt(ctx context.Context, phone string, now time.Time) (*models.Otp, error)
	Consume(ctx context.Context, id primitive.ObjectID) (bool, error)
}

type OTPRequest struct {
	Phone string `json:"phone" binding:"required"`
}

type OTPVerifyRequest struct {
	Phone string `json:"phone" binding:"required"`
	OTP   string `json:"otp" binding:"required"`
}

// OTPSettings configures code lifetime and phone normalisation.
type OTPSettings struct {
	TTL    time.Duration
	Prefix string
}

// normalizePhone strips formatting and prefixes the default country code
// when the number carries none.
func normalizePhone(raw, prefix string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return "", errInvalidPhone
		}
	}
	phone := b.String()
	if !strings.HasPrefix(phone, "+") {
		phone = prefix + phone
	}
	digits := strings.TrimPrefix(phone, "+")
	if len(digits) < 8 || len(digits) > 15 {
		return "", errInvalidPhone
	}
	return phone, nil
}

func generateOTP() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

func RequestOTP(db *mongo.Database, sender sms.Sender, settings OTPSettings) gin.HandlerFunc {
	return requestOTP(repository.NewOTPRepository(db, maxOTPAttempts), sender, settings)
}

func requestOTP(codes otpCodes, sender sms.Sender, settings OTPSettings) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/otp/request"
		defer handlePanic(c, route)

		var req OTPRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		phone, err := normalizePhone(req.Phone, settings.Prefix)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		code, err := generateOTP()
		if err != nil {
			log.Println("[AUTH] [ERROR] otp generation failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "otp generation failed")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			log.Println("[AUTH] [ERROR] otp hash failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "otp generation failed")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		now := time.Now()
		otp := models.Otp{
			Mobile:    phone,
			CodeHash:  string(hash),
			Attempts:  0,
			ExpiresAt: now.Add(settings.TTL),
			CreatedAt: now,
		}
		// one live code per phone; a new request replaces the previous one
		if err := codes.Save(ctx, otp); err != nil {
			log.Println("[AUTH] [ERROR] otp store failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		msg := sms.Message{
			To:   phone,
			Kind: sms.KindOTP,
			Body: fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(settings.TTL.Minutes())),
		}
		if err := sender.Send(ctx, msg); err != nil {
			log.Printf("[AUTH] [ERROR] otp delivery to %s failed: %v", sms.Mask(phone), err)
			respondWithError(c, http.StatusServiceUnavailable, route, "could not send otp")
			return
		}

		log.Println("[AUTH] [INFO] otp issued for", sms.Mask(phone))
		c.JSON(http.StatusOK, gin.H{
			"message":   "OTP sent successfully",
			"expiresIn": int64(settings.TTL.Seconds()),
		})
	}
}

func VerifyOTP(db *mongo.Database, otpSettings OTPSettings, tokens TokenSettings) gin.HandlerFunc {
	return verifyOTP(repository.NewOTPRepository(db, maxOTPAttempts), db, otpSettings, tokens)
}

func verifyOTP(codes otpCodes, db *mongo.Database, otpSettings OTPSettings, tokens TokenSettings) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/otp/verify"
		defer handlePanic(c, route)

		var req OTPVerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		phone, err := normalizePhone(req.Phone, otpSettings.Prefix)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		otp, err := codes.ClaimAttempt(ctx, phone, time.Now())
		switch {
		case errors.Is(err, repository.ErrOTPNotFound):
			respondWithError(c, http.StatusBadRequest, route, "otp not found or expired")
			return
		case errors.Is(err, repository.ErrOTPExhausted):
			respondWithError(c, http.StatusTooManyRequests, route, "too many attempts, request a new otp")
			return
		case err != nil:
			log.Println("[AUTH] [ERROR] otp lookup failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(otp.CodeHash), []byte(strings.TrimSpace(req.OTP))); err != nil {
			log.Println("[AUTH] [ERROR] invalid otp for", sms.Mask(phone))
			respondWithError(c, http.StatusUnauthorized, route, "invalid otp")
			return
		}

		// consume the code; a concurrent verify that lost the delete fails
		consumed, err := codes.Consume(ctx, otp.ID)
		if err != nil {
			log.Println("[AUTH] [ERROR] otp consume failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if !consumed {
			respondWithError(c, http.StatusBadRequest, route, "otp not found or expired")
			return
		}

		user, created, err := findOrCreateUser(ctx, db, phone)
		if err != nil {
			log.Println("[AUTH] [ERROR] user lookup failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if !user.IsActive {
			log.Println("[AUTH] [ERROR] blocked user login:", sms.Mask(phone))
			respondWithError(c, http.StatusForbidden, route, "user is blocked")
			return
		}

		issued, err := issueTokens(ctx, db, user.ID, tokens)
		if err != nil {
			log.Println("[AUTH] [ERROR] token generation failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "token generation failed")
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		log.Println("[AUTH] [INFO] otp login succeeded:", sms.Mask(phone))
		c.JSON(status, gin.H{
			"accessToken":  issued.AccessToken,
			"refreshToken": issued.RefreshToken,
			"expiresIn":    issued.ExpiresIn,
			"isNewUser":    created,
			"user":         loginResponseUser(*user),
		})
	}
}

// findOrCreateUser signs up unknown phone numbers. The unique phone index
// resolves concurrent first logins to a single account.
func findOrCreateUser(ctx context.Context, db *mongo.Database, phone string) (*models.User, bool, error) {
	users := db.Collection(repository.CollectionUsers)

	var user models.User
	err := users.FindOne(ctx, bson.M{"phone": phone}).Decode(&user)
	if err == nil {
		return &user, false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, err
	}

	now := time.Now()
	user = models.User{
		Phone:     phone,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res, err := users.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		if err := users.FindOne(ctx, bson.M{"phone": phone}).Decode(&user); err != nil {
			return nil, false, err
		}
		return &user, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	user.ID = res.InsertedID.(primitive.ObjectID)
	return &user, true, nil
}
