package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/janicogyle/ccs-membership-sub001/config"
	"github.com/janicogyle/ccs-membership-sub001/internal/app/model"
	"github.com/janicogyle/ccs-membership-sub001/internal/app/repository"
	"github.com/janicogyle/ccs-membership-sub001/pkg/logger"
	"github.com/janicogyle/ccs-membership-sub001/pkg/mail"
	"github.com/janicogyle/ccs-membership-sub001/pkg/util"
	"gorm.io/gorm"
)

type PasswordResetService interface {
	// RequestReset issues a grant for a known email and mails the token.
	// Unknown emails get the same nil result.
	RequestReset(ctx context.Context, email string) error
	// ConfirmReset consumes the grant matching token and installs newPassword.
	ConfirmReset(ctx context.Context, token, newPassword string) error
	// Drain blocks until reset emails already handed off are sent or ctx is done.
	Drain(ctx context.Context) error
}

const defaultResetMailTimeout = 30 * time.Second

type passwordResetService struct {
	accountRepo repository.AccountRepository
	hasher      *util.PasswordHasher
	mailer      mail.Mailer
	cfg         config.AuthConfig
	now         func() time.Time
	deliveries  sync.WaitGroup
}

func NewPasswordResetService(
	accountRepo repository.AccountRepository,
	hasher *util.PasswordHasher,
	mailer mail.Mailer,
	cfg config.AuthConfig,
) PasswordResetService {
	if cfg.ConfirmMaxAttempts < 1 {
		cfg.ConfirmMaxAttempts = 1
	}
	if cfg.ResetMailTimeout <= 0 {
		cfg.ResetMailTimeout = defaultResetMailTimeout
	}
	return &passwordResetService{
		accountRepo: accountRepo,
		hasher:      hasher,
		mailer:      mailer,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (s *passwordResetService) RequestReset(ctx context.Context, email string) error {
	email = model.NormalizeEmail(email)
	if email == "" {
		return ErrMissingField
	}

	logger.Info("Processing password reset request", map[string]interface{}{
		"email": email,
	})

	account, err := s.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Same work as the known path up to the store write.
			if _, err := util.GenerateResetToken(); err != nil {
				return fmt.Errorf("generate reset token: %w", err)
			}
			logger.Debug("Password reset requested for unknown email", map[string]interface{}{
				"email": email,
			})
			return nil
		}
		return fmt.Errorf("find account: %w", err)
	}

	token, err := util.GenerateResetToken()
	if err != nil {
		logger.Error("Failed to generate reset token", err, map[string]interface{}{
			"account_id": account.ID,
		})
		return fmt.Errorf("generate reset token: %w", err)
	}

	expiresAt := s.now().Add(s.cfg.ResetTokenExpiry)
	if err := s.accountRepo.SetResetGrant(ctx, account.ID, util.HashResetToken(token), expiresAt); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Account vanished between read and write.
			return nil
		}
		return fmt.Errorf("store reset grant: %w", err)
	}

	// Delivery runs after the response so known and unknown emails answer
	// in the same time.
	s.deliver(ctx, account.ID, account.Email, account.Name, token)

	logger.Info("Password reset grant issued", map[string]interface{}{
		"account_id": account.ID,
		"expires_at": expiresAt,
	})
	return nil
}

func (s *passwordResetService) deliver(ctx context.Context, accountID uint, to, name, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ResetMailTimeout)

	s.deliveries.Add(1)
	go func() {
		defer s.deliveries.Done()
		defer cancel()

		if err := s.mailer.SendPasswordReset(ctx, to, name, token); err != nil {
			logger.Warn("Reset grant stored but email delivery failed", map[string]interface{}{
				"account_id": accountID,
				"error":      err.Error(),
			})
		}
	}()
}

func (s *passwordResetService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.deliveries.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *passwordResetService) ConfirmReset(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" || newPassword == "" {
		return ErrMissingField
	}
	if utf8.RuneCountInString(newPassword) < s.cfg.MinPasswordLength {
		return ErrWeakPassword
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		if util.IsPasswordTooLong(err) {
			return ErrPasswordTooLong
		}
		return fmt.Errorf("hash password: %w", err)
	}
	digest := util.HashResetToken(token)

	for attempt := 1; ; attempt++ {
		err = s.accountRepo.ConsumeResetGrant(ctx, digest, newHash, s.now())
		if err == nil {
			logger.Info("Password reset completed", nil)
			return nil
		}
		if errors.Is(err, repository.ErrResetGrantNotFound) {
			logger.Warn("Password reset rejected: invalid or expired token", nil)
			return ErrInvalidResetToken
		}
		if !repository.IsTransientConflict(err) || attempt >= s.cfg.ConfirmMaxAttempts {
			return fmt.Errorf("consume reset grant: %w", err)
		}

		logger.Warn("Retrying reset confirmation after store conflict", map[string]interface{}{
			"attempt": attempt,
		})
		if err := sleepContext(ctx, time.Duration(attempt)*20*time.Millisecond); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
