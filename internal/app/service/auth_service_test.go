package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/janicogyle/ccs-membership-sub001/internal/app/model"
	apperrors "github.com/janicogyle/ccs-membership-sub001/internal/errors"
	"github.com/janicogyle/ccs-membership-sub001/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAuthService_Register(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		input   RegisterInput
		wantErr error
	}{
		{
			name: "Valid registration",
			input: RegisterInput{
				Email:         "Member@CCS.edu",
				Password:      "password123",
				Name:          "Test Member",
				StudentNumber: "2024-00001",
			},
			wantErr: nil,
		},
		{
			name: "Duplicate email",
			input: RegisterInput{
				Email:    "member@ccs.edu",
				Password: "password456",
				Name:     "Another Member",
			},
			wantErr: ErrEmailAlreadyExists,
		},
		{
			name: "Duplicate student number",
			input: RegisterInput{
				Email:         "other@ccs.edu",
				Password:      "password456",
				Name:          "Other Member",
				StudentNumber: "2024-00001",
			},
			wantErr: ErrEmailAlreadyExists,
		},
		{
			name: "Short password",
			input: RegisterInput{
				Email:    "short@ccs.edu",
				Password: "12345",
				Name:     "Short",
			},
			wantErr: ErrWeakPassword,
		},
		{
			name: "Too long password",
			input: RegisterInput{
				Email:    "long@ccs.edu",
				Password: strings.Repeat("a", 73),
				Name:     "Long",
			},
			wantErr: ErrPasswordTooLong,
		},
		{
			name: "Malformed email",
			input: RegisterInput{
				Email:    "not-an-email",
				Password: "password123",
				Name:     "Malformed",
			},
			wantErr: ErrInvalidEmail,
		},
		{
			name: "Missing name",
			input: RegisterInput{
				Email:    "noname@ccs.edu",
				Password: "password123",
			},
			wantErr: ErrMissingField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account, token, err := f.auth.Register(ctx, tt.input)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, account)
				assert.Empty(t, token)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, account)
			assert.Equal(t, "member@ccs.edu", account.Email)
			assert.Equal(t, model.RoleMember, account.Role)
			assert.NotEqual(t, tt.input.Password, account.PasswordHash)
			assert.NotEmpty(t, token)
		})
	}
}

func TestAuthService_RegisterRejectsMalformedEmail(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()

	_, _, err := f.auth.Register(ctx, RegisterInput{Email: "not-an-email", Password: "password123", Name: "x"})
	assert.ErrorIs(t, err, ErrInvalidEmail)
	assert.Equal(t, apperrors.KindValidation, apperrors.Classify(err))

	_, err = f.repo.FindByEmail(ctx, "not-an-email")
	assert.Error(t, err, "malformed email must not be stored")
}

func TestAuthService_LoginRehashesAtNewCost(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()
	id := f.register(t, "member@ccs.edu", "password123")
	require.NoError(t, f.reset.RequestReset(ctx, "member@ccs.edu"))
	token := f.lastMail(t).Token

	cfg := testAuthConfig()
	cfg.BcryptCost = bcrypt.MinCost + 1
	upgraded := util.NewPasswordHasher(cfg.BcryptCost)
	require.NotEqual(t, f.hasher.Cost(), upgraded.Cost())

	auth, err := NewAuthService(f.repo, upgraded, cfg, testJWTConfig())
	require.NoError(t, err)

	_, _, err = auth.Login(ctx, "member@ccs.edu", "password123")
	require.NoError(t, err)

	account, err := f.repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, upgraded.NeedsRehash(account.PasswordHash))
	assert.True(t, upgraded.Verify(account.PasswordHash, "password123"))
	assert.Nil(t, account.PasswordChangedAt)
	assert.True(t, account.HasActiveResetGrant(time.Now()), "rehash must not revoke a pending reset")

	require.NoError(t, f.reset.ConfirmReset(ctx, token, "new-password"))
}

func TestAuthService_Login(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()
	id := f.register(t, "member@ccs.edu", "password123")

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{name: "Valid credentials", email: "member@ccs.edu", password: "password123"},
		{name: "Email is normalized", email: " MEMBER@ccs.edu", password: "password123"},
		{name: "Wrong password", email: "member@ccs.edu", password: "wrong-password", wantErr: ErrInvalidCredentials},
		{name: "Unknown email", email: "nobody@ccs.edu", password: "password123", wantErr: ErrInvalidCredentials},
		{name: "Missing password", email: "member@ccs.edu", password: "", wantErr: ErrMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account, token, err := f.auth.Login(ctx, tt.email, tt.password)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, account)
				assert.Empty(t, token)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, id, account.ID)

			claims, err := util.ValidateToken(token, testJWTConfig().Secret)
			require.NoError(t, err)
			assert.Equal(t, id, claims.AccountID)
			assert.Equal(t, string(model.RoleMember), claims.Role)
		})
	}
}

func TestAuthService_LoginFailuresAreIndistinguishable(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()
	f.register(t, "member@ccs.edu", "password123")

	_, _, wrongPassword := f.auth.Login(ctx, "member@ccs.edu", "wrong-password")
	_, _, unknownEmail := f.auth.Login(ctx, "nobody@ccs.edu", "wrong-password")

	assert.Equal(t, wrongPassword, unknownEmail)
	assert.Equal(t, apperrors.KindAuth, apperrors.Classify(unknownEmail))
}

func TestAuthService_GetAccountByID(t *testing.T) {
	f := setupServiceTest(t)
	ctx := context.Background()
	id := f.register(t, "member@ccs.edu", "password123")

	account, err := f.auth.GetAccountByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "member@ccs.edu", account.Email)

	_, err = f.auth.GetAccountByID(ctx, id+100)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAuthService_ChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("Changes password and revokes reset grant", func(t *testing.T) {
		f := setupServiceTest(t)
		id := f.register(t, "member@ccs.edu", "password123")
		require.NoError(t, f.reset.RequestReset(ctx, "member@ccs.edu"))
		token := f.lastMail(t).Token

		require.NoError(t, f.auth.ChangePassword(ctx, id, "password123", "new-password"))

		_, _, err := f.auth.Login(ctx, "member@ccs.edu", "new-password")
		assert.NoError(t, err)
		assert.ErrorIs(t, f.reset.ConfirmReset(ctx, token, "hijacked"), ErrInvalidResetToken)
	})

	t.Run("Wrong current password", func(t *testing.T) {
		f := setupServiceTest(t)
		id := f.register(t, "member@ccs.edu", "password123")

		err := f.auth.ChangePassword(ctx, id, "not-it", "new-password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("Weak new password", func(t *testing.T) {
		f := setupServiceTest(t)
		id := f.register(t, "member@ccs.edu", "password123")

		err := f.auth.ChangePassword(ctx, id, "password123", "123")
		assert.ErrorIs(t, err, ErrWeakPassword)
	})

	t.Run("Unknown account", func(t *testing.T) {
		f := setupServiceTest(t)

		err := f.auth.ChangePassword(ctx, 42, "password123", "new-password")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestAuthService_AccessTokenExpiry(t *testing.T) {
	f := setupServiceTest(t)
	f.register(t, "member@ccs.edu", "password123")

	_, token, err := f.auth.Login(context.Background(), "member@ccs.edu", "password123")
	require.NoError(t, err)

	claims, err := util.ValidateToken(token, testJWTConfig().Secret)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}
