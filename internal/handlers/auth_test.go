package handlers

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"boutique/internal/middleware"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "98765 43210", want: "+919876543210"},
		{raw: "+44 (20) 7946-0958", want: "+442079460958"},
		{raw: " 9876543210 ", want: "+919876543210"},
		{raw: "98+76543210", wantErr: true},
		{raw: "call me", wantErr: true},
		{raw: "123", wantErr: true},
	}
	for _, tc := range cases {
		got, err := normalizePhone(tc.raw, "+91")
		if tc.wantErr {
			assert.ErrorIs(t, err, errInvalidPhone, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got)
	}
}

func TestGenerateOTPIsSixDigits(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 50; i++ {
		code, err := generateOTP()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
	}
}

func TestAccessTokenPassesUserAuth(t *testing.T) {
	userID := primitive.NewObjectID()
	token, err := signAccessToken(userID, testSecret, time.Minute, time.Now())
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", middleware.UserAuth(testSecret), func(c *gin.Context) {
		id, ok := middleware.UserID(c)
		require.True(t, ok)
		c.String(http.StatusOK, id.Hex())
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID.Hex(), w.Body.String())

	expired, err := signAccessToken(userID, testSecret, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHashTokenIsStable(t *testing.T) {
	plain := generateRefreshString()
	require.Len(t, plain, 64)
	assert.Equal(t, hashToken(plain), hashToken(plain))
	assert.NotEqual(t, plain, hashToken(plain))
}
