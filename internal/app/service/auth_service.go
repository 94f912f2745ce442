package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/janicogyle/ccs-membership-sub001/config"
	"github.com/janicogyle/ccs-membership-sub001/internal/app/model"
	"github.com/janicogyle/ccs-membership-sub001/internal/app/repository"
	apperrors "github.com/janicogyle/ccs-membership-sub001/internal/errors"
	"github.com/janicogyle/ccs-membership-sub001/pkg/logger"
	"github.com/janicogyle/ccs-membership-sub001/pkg/util"
	"gorm.io/gorm"
)

// RegisterInput is the data needed to open an account.
type RegisterInput struct {
	Email         string
	Password      string
	Name          string
	StudentNumber string
}

type AuthService interface {
	Register(ctx context.Context, input RegisterInput) (*model.Account, string, error)
	Login(ctx context.Context, email, password string) (*model.Account, string, error)
	GetAccountByID(ctx context.Context, id uint) (*model.Account, error)
	ChangePassword(ctx context.Context, accountID uint, currentPassword, newPassword string) error
}

type authService struct {
	accountRepo  repository.AccountRepository
	hasher       *util.PasswordHasher
	cfg          config.AuthConfig
	jwtSecret    string
	accessExpiry time.Duration
	dummyHash    string
	now          func() time.Time
}

func NewAuthService(
	accountRepo repository.AccountRepository,
	hasher *util.PasswordHasher,
	cfg config.AuthConfig,
	jwtCfg config.JWTConfig,
) (AuthService, error) {
	// Compared against on unknown emails so both failure paths pay one bcrypt.
	dummyHash, err := hasher.Hash("ccs-membership-dummy-password")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &authService{
		accountRepo:  accountRepo,
		hasher:       hasher,
		cfg:          cfg,
		jwtSecret:    jwtCfg.Secret,
		accessExpiry: jwtCfg.AccessTokenExpiry,
		dummyHash:    dummyHash,
		now:          time.Now,
	}, nil
}

func (s *authService) Register(ctx context.Context, input RegisterInput) (*model.Account, string, error) {
	email := model.NormalizeEmail(input.Email)
	name := strings.TrimSpace(input.Name)
	if email == "" || name == "" || input.Password == "" {
		return nil, "", ErrMissingField
	}
	if !util.IsValidEmail(email) {
		return nil, "", ErrInvalidEmail
	}
	if err := s.checkPassword(input.Password); err != nil {
		return nil, "", err
	}

	logger.Info("Attempting account registration", map[string]interface{}{
		"email": email,
	})

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		if util.IsPasswordTooLong(err) {
			return nil, "", ErrPasswordTooLong
		}
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	account := &model.Account{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         model.RoleMember,
	}
	if sn := strings.TrimSpace(input.StudentNumber); sn != "" {
		account.StudentNumber = &sn
	}

	if err := s.accountRepo.Create(ctx, account); err != nil {
		if apperrors.Classify(err) == apperrors.KindConflict {
			logger.Warn("Registration failed: account already exists", map[string]interface{}{
				"email": email,
			})
			return nil, "", ErrEmailAlreadyExists
		}
		return nil, "", fmt.Errorf("create account: %w", err)
	}

	token, err := s.issueAccessToken(account)
	if err != nil {
		return nil, "", err
	}

	logger.Info("Account registered", map[string]interface{}{
		"account_id": account.ID,
	})
	return account, token, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*model.Account, string, error) {
	email = model.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, "", ErrMissingField
	}

	account, err := s.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.hasher.Verify(s.dummyHash, password)
			logger.Warn("Login failed", map[string]interface{}{
				"email": email,
			})
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("find account: %w", err)
	}

	if !s.hasher.Verify(account.PasswordHash, password) {
		logger.Warn("Login failed", map[string]interface{}{
			"email": email,
		})
		return nil, "", ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(account.PasswordHash) {
		s.rehash(ctx, account, password)
	}

	token, err := s.issueAccessToken(account)
	if err != nil {
		return nil, "", err
	}

	logger.Info("Login successful", map[string]interface{}{
		"account_id": account.ID,
	})
	return account, token, nil
}

func (s *authService) GetAccountByID(ctx context.Context, id uint) (*model.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return account, nil
}

// ChangePassword verifies the current password, then swaps the hash and
// drops any outstanding reset grant in one conditional write.
func (s *authService) ChangePassword(ctx context.Context, accountID uint, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return ErrMissingField
	}
	if err := s.checkPassword(newPassword); err != nil {
		return err
	}

	account, err := s.GetAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(account.PasswordHash, currentPassword) {
		logger.Warn("Password change rejected: wrong current password", map[string]interface{}{
			"account_id": accountID,
		})
		return ErrInvalidCredentials
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		if util.IsPasswordTooLong(err) {
			return ErrPasswordTooLong
		}
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.accountRepo.UpdatePassword(ctx, accountID, account.PasswordHash, newHash, s.now()); err != nil {
		if errors.Is(err, repository.ErrStaleCredential) {
			// Password moved under us; the caller's current password is no longer current.
			return ErrInvalidCredentials
		}
		return fmt.Errorf("update password: %w", err)
	}

	logger.Info("Password changed", map[string]interface{}{
		"account_id": accountID,
	})
	return nil
}

// rehash upgrades a verified password to the current bcrypt cost. Failure
// leaves the old hash in place and does not fail the login.
func (s *authService) rehash(ctx context.Context, account *model.Account, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		logger.Warn("Failed to rehash password", map[string]interface{}{
			"account_id": account.ID,
			"error":      err.Error(),
		})
		return
	}

	if err := s.accountRepo.RehashPassword(ctx, account.ID, account.PasswordHash, newHash); err != nil {
		logger.Warn("Failed to store rehashed password", map[string]interface{}{
			"account_id": account.ID,
			"error":      err.Error(),
		})
		return
	}
	account.PasswordHash = newHash

	logger.Info("Password rehashed at new cost", map[string]interface{}{
		"account_id": account.ID,
		"cost":       s.hasher.Cost(),
	})
}

func (s *authService) checkPassword(password string) error {
	if utf8.RuneCountInString(password) < s.cfg.MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

func (s *authService) issueAccessToken(account *model.Account) (string, error) {
	token, err := util.GenerateAccessToken(account.ID, account.Email, string(account.Role), s.jwtSecret, s.accessExpiry)
	if err != nil {
		logger.Error("Failed to generate access token", err, map[string]interface{}{
			"account_id": account.ID,
		})
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return token, nil
}
