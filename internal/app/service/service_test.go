package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/janicogyle/ccs-membership-sub001/config"
	"github.com/janicogyle/ccs-membership-sub001/internal/app/repository"
	"github.com/janicogyle/ccs-membership-sub001/internal/db"
	"github.com/janicogyle/ccs-membership-sub001/pkg/util"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		BcryptCost:         bcrypt.MinCost,
		ResetTokenExpiry:   time.Hour,
		MinPasswordLength:  6,
		ConfirmMaxAttempts: 3,
		FrontendResetURL:   "http://localhost:3000/reset-password",
	}
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-jwt-secret",
		AccessTokenExpiry: 15 * time.Minute,
	}
}

// sentMail is one captured reset email.
type sentMail struct {
	To    string
	Name  string
	Token string
}

// recordingMailer captures reset emails instead of sending them.
type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) SendPasswordReset(ctx context.Context, to, name, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Name: name, Token: token})
	return m.err
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type serviceFixture struct {
	repo   repository.AccountRepository
	hasher *util.PasswordHasher
	mailer *recordingMailer
	auth   AuthService
	reset  PasswordResetService
}

func setupServiceTest(t *testing.T) *serviceFixture {
	t.Helper()
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.CleanupTestDB(testDB) })

	cfg := testAuthConfig()
	repo := repository.NewAccountRepository(testDB, time.Second)
	hasher := util.NewPasswordHasher(cfg.BcryptCost)
	mailer := &recordingMailer{}

	auth, err := NewAuthService(repo, hasher, cfg, testJWTConfig())
	require.NoError(t, err)

	return &serviceFixture{
		repo:   repo,
		hasher: hasher,
		mailer: mailer,
		auth:   auth,
		reset:  NewPasswordResetService(repo, hasher, mailer, cfg),
	}
}

// lastMail waits for pending deliveries and returns the latest email.
func (f *serviceFixture) lastMail(t *testing.T) sentMail {
	t.Helper()
	require.NoError(t, f.reset.Drain(context.Background()))
	return f.mailer.last(t)
}

func (f *serviceFixture) mailCount(t *testing.T) int {
	t.Helper()
	require.NoError(t, f.reset.Drain(context.Background()))
	return f.mailer.count()
}

func (f *serviceFixture) register(t *testing.T, email, password string) uint {
	t.Helper()
	account, _, err := f.auth.Register(context.Background(), RegisterInput{
		Email:    email,
		Password: password,
		Name:     "Test Member",
	})
	require.NoError(t, err)
	return account.ID
}
