package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"boutique/internal/models"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrStaleCart is returned by Set when the cart was invalidated after
	// the caller read its version.
	ErrStaleCart = errors.New("cart invalidated since read")
)

// Cache holds raw carts per user. Every Delete bumps the user's version, and
// Set only stores a cart read under the version still current, so a slow
// read cannot put back a cart that was changed or removed meanwhile.
type Cache interface {
	Get(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error)
	// Version must be read before the repository read whose result is
	// passed to Set.
	Version(ctx context.Context, userID primitive.ObjectID) (int64, error)
	Set(ctx context.Context, userID primitive.ObjectID, cart *models.Cart, version int64) error
	Delete(ctx context.Context, userID primitive.ObjectID) error
}

// versionTTL outlives any in-flight read by a wide margin; a version key
// that expires only resets to zero, which fails every pending Set that
// read a newer one.
const versionTTL = 24 * time.Hour

// RedisCache stores raw carts as JSON. TTLs carry up to five minutes of
// jitter so entries written together do not expire together.
type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisCache{client: client, baseTTL: ttl}
}

func (r *RedisCache) Get(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart models.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &cart, nil
}

func (r *RedisCache) Version(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	v, err := r.client.Get(ctx, versionKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get version failed: %w", err)
	}
	return v, nil
}

func (r *RedisCache) Set(ctx context.Context, userID primitive.ObjectID, cart *models.Cart, version int64) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	ttl := r.baseTTL + time.Duration(rand.Intn(5))*time.Minute

	vKey := versionKey(userID)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, vKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return ErrStaleCart
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(userID), data, ttl)
			return nil
		})
		return err
	}, vKey)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStaleCart), errors.Is(err, redis.TxFailedErr):
		return ErrStaleCart
	default:
		return fmt.Errorf("redis set failed: %w", err)
	}
}

// Delete drops the cart and bumps its version in one MULTI.
func (r *RedisCache) Delete(ctx context.Context, userID primitive.ObjectID) error {
	vKey := versionKey(userID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, cacheKey(userID))
		pipe.Incr(ctx, vKey)
		pipe.Expire(ctx, vKey, versionTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(userID primitive.ObjectID) string {
	return fmt.Sprintf("cart:%s", userID.Hex())
}

func versionKey(userID primitive.ObjectID) string {
	return fmt.Sprintf("cart:%s:version", userID.Hex())
}

// NopCache always misses. It is used when no Redis address is configured.
type NopCache struct{}

func (NopCache) Get(context.Context, primitive.ObjectID) (*models.Cart, error) {
	return nil, ErrCacheMiss
}

func (NopCache) Version(context.Context, primitive.ObjectID) (int64, error) { return 0, nil }

func (NopCache) Set(context.Context, primitive.ObjectID, *models.Cart, int64) error { return nil }

func (NopCache) Delete(context.Context, primitive.ObjectID) error { return nil }
