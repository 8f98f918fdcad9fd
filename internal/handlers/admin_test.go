package handlers

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"boutique/internal/middleware"
	"boutique/internal/models"
)

func TestBuildAdminOrderFilter(t *testing.T) {
	filter, err := buildAdminOrderFilter(url.Values{
		"status":    {"shipped"},
		"startDate": {"2024-03-01"},
		"endDate":   {"2024-03-31"},
	}.Get)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusShipped, filter["orderStatus"])
	created := filter["createdAt"].(bson.M)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), created["$gte"])
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), created["$lt"])
}

func TestBuildAdminOrderFilterRejectsBadInput(t *testing.T) {
	_, err := buildAdminOrderFilter(url.Values{"status": {"lost"}}.Get)
	assert.Error(t, err)

	_, err = buildAdminOrderFilter(url.Values{"startDate": {"03/01/2024"}}.Get)
	assert.EqualError(t, err, "invalid startDate, expected YYYY-MM-DD")

	_, err = buildAdminOrderFilter(url.Values{"startDate": {"2024-03-10"}, "endDate": {"2024-03-01"}}.Get)
	assert.EqualError(t, err, "invalid endDate, expected YYYY-MM-DD")

	filter, err := buildAdminOrderFilter(url.Values{}.Get)
	require.NoError(t, err)
	assert.Empty(t, filter)
}

func TestBuildCustomerFilter(t *testing.T) {
	assert.Empty(t, buildCustomerFilter("  "))

	filter := buildCustomerFilter("+91 98")
	or := filter["$or"].([]bson.M)
	require.Len(t, or, 3)
	assert.Equal(t, `\+91 98`, or[2]["phone"].(bson.M)["$regex"])
}

func TestMonthStart(t *testing.T) {
	now := time.Date(2024, 2, 29, 18, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), monthStart(now))
}

func TestAdminTokenPassesAdminAuth(t *testing.T) {
	admin := models.Admin{
		ID:    primitive.NewObjectID(),
		Email: "ops@example.com",
		Role:  models.AdminRoleAdmin,
	}
	token, err := signAdminToken(admin, testSecret, time.Minute)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/admin", middleware.AdminAuth(testSecret), func(c *gin.Context) {
		id, ok := middleware.AdminID(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"adminId": id.Hex()})
	})
	r.GET("/super", middleware.AuthGuard(testSecret, middleware.RoleSuperAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := doJSON(r, http.MethodGet, "/admin", "Bearer "+token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, admin.ID.Hex(), decodeBody(t, w)["adminId"])

	w = doJSON(r, http.MethodGet, "/super", "Bearer "+token, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodGet, "/admin", userToken(t, primitive.NewObjectID()), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}
