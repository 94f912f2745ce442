package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/janicogyle/ccs-membership-sub001/internal/app/model"
	apperrors "github.com/janicogyle/ccs-membership-sub001/internal/errors"
	"github.com/janicogyle/ccs-membership-sub001/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-jwt-secret-for-middleware"

func setupMiddlewareTest() (*gin.Engine, *AuthMiddleware) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	return router, NewAuthMiddleware(testJWTSecret)
}

func generateTestToken(t *testing.T, accountID uint, email, role string, expiry time.Duration) string {
	token, err := util.GenerateAccessToken(accountID, email, role, testJWTSecret, expiry)
	require.NoError(t, err)
	return token
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apperrors.ErrorResponse {
	t.Helper()
	var body apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthMiddleware_Authenticate_Success(t *testing.T) {
	router, authMiddleware := setupMiddlewareTest()
	token := generateTestToken(t, 1, "member@ccs.edu", "officer", 15*time.Minute)

	router.GET("/test", authMiddleware.Authenticate(), func(c *gin.Context) {
		accountID, _ := GetAccountID(c)
		email, _ := GetAccountEmail(c)
		role, _ := GetAccountRole(c)

		c.JSON(http.StatusOK, gin.H{
			"account_id": accountID,
			"email":      email,
			"role":       role,
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["account_id"])
	assert.Equal(t, "member@ccs.edu", body["email"])
	assert.Equal(t, string(model.RoleOfficer), body["role"])
}

func TestAuthMiddleware_Authenticate_Failures(t *testing.T) {
	expired := generateTestToken(t, 1, "member@ccs.edu", "member", time.Nanosecond)
	time.Sleep(5 * time.Millisecond)

	tests := []struct {
		name     string
		header   string
		wantCode string
	}{
		{name: "No header", header: "", wantCode: apperrors.AuthUnauthorized},
		{name: "Wrong scheme", header: "Basic abc", wantCode: apperrors.AuthTokenInvalid},
		{name: "Missing token", header: "Bearer", wantCode: apperrors.AuthTokenInvalid},
		{name: "Garbage token", header: "Bearer not.a.token", wantCode: apperrors.AuthTokenInvalid},
		{name: "Expired token", header: "Bearer " + expired, wantCode: apperrors.AuthTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, authMiddleware := setupMiddlewareTest()
			router.GET("/test", authMiddleware.Authenticate(), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			body := decodeError(t, w)
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantCode, body.Error)
		})
	}
}

func TestGetAccountID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := GetAccountID(c)
	assert.False(t, ok)

	c.Set(AccountIDKey, uint(7))
	id, ok := GetAccountID(c)
	assert.True(t, ok)
	assert.Equal(t, uint(7), id)

	c.Set(AccountIDKey, "not-a-uint")
	_, ok = GetAccountID(c)
	assert.False(t, ok)
}
