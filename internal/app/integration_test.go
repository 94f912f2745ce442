package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/janicogyle/ccs-membership-sub001/config"
	"github.com/janicogyle/ccs-membership-sub001/internal/app/controller"
	"github.com/janicogyle/ccs-membership-sub001/internal/app/repository"
	"github.com/janicogyle/ccs-membership-sub001/internal/app/service"
	"github.com/janicogyle/ccs-membership-sub001/internal/db"
	"github.com/janicogyle/ccs-membership-sub001/internal/middleware"
	"github.com/janicogyle/ccs-membership-sub001/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type delivery struct {
	to    string
	token string
}

type inboxMailer struct {
	deliveries chan delivery
}

func (m *inboxMailer) SendPasswordReset(_ context.Context, to, _, token string) error {
	m.deliveries <- delivery{to: to, token: token}
	return nil
}

// tokenFor waits for the next reset email and checks its recipient.
func (m *inboxMailer) tokenFor(t *testing.T, to string) string {
	t.Helper()
	select {
	case d := <-m.deliveries:
		require.Equal(t, to, d.to)
		return d.token
	case <-time.After(2 * time.Second):
		t.Fatalf("no reset email delivered to %s", to)
		return ""
	}
}

type TestServer struct {
	Router *gin.Engine
	DB     *gorm.DB
	Inbox  *inboxMailer
}

func setupIntegrationTest(t *testing.T) *TestServer {
	gin.SetMode(gin.TestMode)

	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.CleanupTestDB(testDB) })

	authCfg := config.AuthConfig{
		BcryptCost:         bcrypt.MinCost,
		ResetTokenExpiry:   time.Hour,
		MinPasswordLength:  6,
		ConfirmMaxAttempts: 3,
	}
	jwtCfg := config.JWTConfig{Secret: "integration-secret", AccessTokenExpiry: 15 * time.Minute}

	accountRepo := repository.NewAccountRepository(testDB, 5*time.Second)
	hasher := util.NewPasswordHasher(authCfg.BcryptCost)
	inbox := &inboxMailer{deliveries: make(chan delivery, 8)}

	authService, err := service.NewAuthService(accountRepo, hasher, authCfg, jwtCfg)
	require.NoError(t, err)
	resetService := service.NewPasswordResetService(accountRepo, hasher, inbox, authCfg)
	authController := controller.NewAuthController(authService, resetService, nil)

	router := gin.New()
	router.Use(middleware.LoggingMiddleware(nil))
	auth := router.Group("/api/v1/auth")
	auth.POST("/register", authController.Register)
	auth.POST("/login", authController.Login)
	auth.POST("/forgot-password", authController.ForgotPassword)
	auth.POST("/reset-password", authController.ResetPassword)

	return &TestServer{Router: router, DB: testDB, Inbox: inbox}
}

func (s *TestServer) post(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func TestIntegration_ConcurrentResetConfirmation(t *testing.T) {
	server := setupIntegrationTest(t)

	w := server.post(t, "/api/v1/auth/register", map[string]string{
		"email": "member@ccs.edu", "password": "old-password", "name": "Member",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = server.post(t, "/api/v1/auth/forgot-password", map[string]string{"email": "member@ccs.edu"})
	require.Equal(t, http.StatusOK, w.Code)
	token := server.Inbox.tokenFor(t, "member@ccs.edu")
	require.NotEmpty(t, token)

	const workers = 10
	passwords := make([]string, workers)
	statuses := make([]int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		passwords[i] = "new-password-" + string(rune('a'+i))
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp := server.post(t, "/api/v1/auth/reset-password", map[string]string{
				"token": token, "password": passwords[i],
			})
			statuses[i] = resp.Code
		}(i)
	}
	wg.Wait()

	winner := -1
	for i, status := range statuses {
		if status == http.StatusOK {
			assert.Equal(t, -1, winner, "more than one confirmation succeeded")
			winner = i
			continue
		}
		assert.Equal(t, http.StatusBadRequest, status)
	}
	require.NotEqual(t, -1, winner)

	// Only the winner's password is installed.
	for i, pw := range passwords {
		w := server.post(t, "/api/v1/auth/login", map[string]string{"email": "member@ccs.edu", "password": pw})
		if i == winner {
			assert.Equal(t, http.StatusOK, w.Code)
		} else {
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		}
	}
}

func TestIntegration_RequestSupersedesPreviousGrant(t *testing.T) {
	server := setupIntegrationTest(t)

	w := server.post(t, "/api/v1/auth/register", map[string]string{
		"email": "member@ccs.edu", "password": "old-password", "name": "Member",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	server.post(t, "/api/v1/auth/forgot-password", map[string]string{"email": "member@ccs.edu"})
	first := server.Inbox.tokenFor(t, "member@ccs.edu")
	server.post(t, "/api/v1/auth/forgot-password", map[string]string{"email": "member@ccs.edu"})
	second := server.Inbox.tokenFor(t, "member@ccs.edu")
	require.NotEqual(t, first, second)

	w = server.post(t, "/api/v1/auth/reset-password", map[string]string{"token": first, "password": "new-password"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = server.post(t, "/api/v1/auth/reset-password", map[string]string{"token": second, "password": "new-password"})
	assert.Equal(t, http.StatusOK, w.Code)
}
