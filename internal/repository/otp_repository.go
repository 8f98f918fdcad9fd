package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"boutique/internal/models"
)

var (
	ErrOTPNotFound  = errors.New("otp not found or expired")
	ErrOTPExhausted = errors.New("otp attempts exhausted")
)

// OTPRepository keeps one live login code per phone number.
type OTPRepository struct {
	collection  *mongo.Collection
	maxAttempts int
}

func NewOTPRepository(db *mongo.Database, maxAttempts int) *OTPRepository {
	return &OTPRepository{collection: db.Collection(CollectionOtps), maxAttempts: maxAttempts}
}

// Save replaces any earlier code for the same phone.
func (r *OTPRepository) Save(ctx context.Context, otp models.Otp) error {
	_, err := r.collection.ReplaceOne(ctx,
		bson.M{"mobile": otp.Mobile},
		otp,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to store otp: %w", err)
	}
	return nil
}

// ClaimAttempt spends one verification attempt on the phone's live code and
// returns the code as it stands after the claim. The claim is a single
// conditional $inc, so parallel guesses can never exceed maxAttempts. A code
// that is expired or out of attempts is deleted.
func (r *OTPRepository) ClaimAttempt(ctx context.Context, phone string, now time.Time) (*models.Otp, error) {
	var otp models.Otp
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{
			"mobile":    phone,
			"attempts":  bson.M{"$lt": r.maxAttempts},
			"expiresAt": bson.M{"$gt": now},
		},
		bson.M{"$inc": bson.M{"attempts": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&otp)
	if err == nil {
		return &otp, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to claim otp attempt: %w", err)
	}

	var dead models.Otp
	err = r.collection.FindOneAndDelete(ctx, bson.M{
		"mobile": phone,
		"$or": bson.A{
			bson.M{"attempts": bson.M{"$gte": r.maxAttempts}},
			bson.M{"expiresAt": bson.M{"$lte": now}},
		},
	}).Decode(&dead)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, ErrOTPNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to drop otp: %w", err)
	case dead.ExpiresAt.After(now):
		return nil, ErrOTPExhausted
	default:
		return nil, ErrOTPNotFound
	}
}

// Consume deletes the code. It reports false when a concurrent request
// already consumed it.
func (r *OTPRepository) Consume(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to consume otp: %w", err)
	}
	return res.DeletedCount == 1, nil
}
