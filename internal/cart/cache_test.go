package cart

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"boutique/internal/models"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, 10*time.Minute), mr
}

func TestRedisCacheRoundTrip(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()
	productID := primitive.NewObjectID()

	_, err := cache.Get(ctx, userID)
	assert.ErrorIs(t, err, ErrCacheMiss)

	c := &models.Cart{
		ID:     primitive.NewObjectID(),
		UserID: userID,
		Items:  []models.CartItem{{ProductID: productID, Quantity: 2}},
	}
	require.NoError(t, cache.Set(ctx, userID, c, 0))
	assert.True(t, mr.Exists("cart:"+userID.Hex()))

	ttl := mr.TTL("cart:" + userID.Hex())
	assert.GreaterOrEqual(t, ttl, 10*time.Minute)
	assert.Less(t, ttl, 15*time.Minute)

	got, err := cache.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, got.UserID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, productID, got.Items[0].ProductID)
	assert.Equal(t, 2, got.Items[0].Quantity)

	require.NoError(t, cache.Delete(ctx, userID))
	_, err = cache.Get(ctx, userID)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheInvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)
	userID := primitive.NewObjectID()
	require.NoError(t, mr.Set(cacheKey(userID), "{not json"))

	_, err := cache.Get(context.Background(), userID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCacheSetRejectsStaleVersion(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()
	userID := primitive.NewObjectID()
	c := &models.Cart{ID: primitive.NewObjectID(), UserID: userID}

	before, err := cache.Version(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, before)

	require.NoError(t, cache.Delete(ctx, userID))
	after, err := cache.Version(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)
	assert.Equal(t, versionTTL, mr.TTL(versionKey(userID)))

	assert.ErrorIs(t, cache.Set(ctx, userID, c, before), ErrStaleCart)
	assert.False(t, mr.Exists(cacheKey(userID)))

	require.NoError(t, cache.Set(ctx, userID, c, after))
	assert.True(t, mr.Exists(cacheKey(userID)))
}
