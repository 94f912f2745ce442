package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/janicogyle/ccs-membership-sub001/internal/app/model"
	"github.com/janicogyle/ccs-membership-sub001/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrResetGrantNotFound covers unknown, expired, consumed and superseded grants alike.
	ErrResetGrantNotFound = errors.New("reset grant not found")
	// ErrStaleCredential means the password hash changed between read and write.
	ErrStaleCredential = errors.New("credential changed concurrently")
)

const DefaultQueryTimeout = 5 * time.Second

// AccountRepository is the credential store. Every mutation is a single
// conditional UPDATE so callers never observe partial state.
type AccountRepository interface {
	Create(ctx context.Context, account *model.Account) error
	BulkCreate(ctx context.Context, accounts []model.Account, batchSize int) (int64, error)
	FindByID(ctx context.Context, id uint) (*model.Account, error)
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	SetResetGrant(ctx context.Context, accountID uint, tokenHash string, expiresAt time.Time) error
	ConsumeResetGrant(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) error
	UpdatePassword(ctx context.Context, accountID uint, currentHash, newHash string, now time.Time) error
	RehashPassword(ctx context.Context, accountID uint, currentHash, newHash string) error
	ClearExpiredGrants(ctx context.Context, now time.Time) (int64, error)
}

type accountRepository struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewAccountRepository(db *gorm.DB, timeout time.Duration) AccountRepository {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &accountRepository{db: db, timeout: timeout}
}

func (r *accountRepository) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	return r.db.WithContext(ctx), cancel
}

func (r *accountRepository) Create(ctx context.Context, account *model.Account) error {
	logger.Debug("Creating account in database", map[string]interface{}{
		"email": account.Email,
	})

	db, cancel := r.conn(ctx)
	defer cancel()

	if err := db.Create(account).Error; err != nil {
		logger.Error("Failed to create account in database", err, map[string]interface{}{
			"email": account.Email,
		})
		return err
	}

	logger.Debug("Account created in database", map[string]interface{}{
		"account_id": account.ID,
	})
	return nil
}

// BulkCreate inserts accounts in batches, skipping rows whose email or
// student number already exists. It returns the number of inserted rows.
func (r *accountRepository) BulkCreate(ctx context.Context, accounts []model.Account, batchSize int) (int64, error) {
	if len(accounts) == 0 {
		return 0, nil
	}

	db, cancel := r.conn(ctx)
	defer cancel()

	result := db.
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&accounts, batchSize)
	if result.Error != nil {
		logger.Error("Failed to bulk create accounts", result.Error, map[string]interface{}{
			"count": len(accounts),
		})
		return 0, result.Error
	}

	logger.Info("Accounts bulk created", map[string]interface{}{
		"requested": len(accounts),
		"inserted":  result.RowsAffected,
	})
	return result.RowsAffected, nil
}

func (r *accountRepository) FindByID(ctx context.Context, id uint) (*model.Account, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var account model.Account
	if err := db.First(&account, id).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find account by ID in database", err, map[string]interface{}{
				"account_id": id,
			})
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	var account model.Account
	if err := db.Where("email = ?", email).First(&account).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("Failed to find account by email in database", err, map[string]interface{}{
				"email": email,
			})
		}
		return nil, err
	}
	return &account, nil
}

// SetResetGrant overwrites the account's grant. Concurrent calls for the same
// account are last-write-wins.
func (r *accountRepository) SetResetGrant(ctx context.Context, accountID uint, tokenHash string, expiresAt time.Time) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	result := db.Model(&model.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"reset_token_hash": tokenHash,
			"reset_expires_at": expiresAt.UTC(),
		})
	if result.Error != nil {
		logger.Error("Failed to store reset grant", result.Error, map[string]interface{}{
			"account_id": accountID,
		})
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	logger.Debug("Reset grant stored", map[string]interface{}{
		"account_id": accountID,
		"expires_at": expiresAt,
	})
	return nil
}

// ConsumeResetGrant replaces the password hash and clears the grant in one
// statement, conditioned on the grant still holding tokenHash and being
// unexpired at now. Of concurrent callers with the same token exactly one
// matches the row; the rest get ErrResetGrantNotFound.
func (r *accountRepository) ConsumeResetGrant(ctx context.Context, tokenHash, newPasswordHash string, now time.Time) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	now = now.UTC()
	result := db.Model(&model.Account{}).
		Where("reset_token_hash = ? AND reset_expires_at > ?", tokenHash, now).
		Updates(map[string]interface{}{
			"password_hash":       newPasswordHash,
			"reset_token_hash":    nil,
			"reset_expires_at":    nil,
			"password_changed_at": now,
		})
	if result.Error != nil {
		logger.Error("Failed to consume reset grant", result.Error, nil)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrResetGrantNotFound
	}
	return nil
}

// UpdatePassword swaps currentHash for newHash and drops any outstanding
// reset grant, failing with ErrStaleCredential if the hash moved meanwhile.
func (r *accountRepository) UpdatePassword(ctx context.Context, accountID uint, currentHash, newHash string, now time.Time) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	result := db.Model(&model.Account{}).
		Where("id = ? AND password_hash = ?", accountID, currentHash).
		Updates(map[string]interface{}{
			"password_hash":       newHash,
			"reset_token_hash":    nil,
			"reset_expires_at":    nil,
			"password_changed_at": now.UTC(),
		})
	if result.Error != nil {
		logger.Error("Failed to update password", result.Error, map[string]interface{}{
			"account_id": accountID,
		})
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleCredential
	}
	return nil
}

// RehashPassword swaps currentHash for an equivalent hash of the same
// password. Reset grants and password_changed_at are left alone.
func (r *accountRepository) RehashPassword(ctx context.Context, accountID uint, currentHash, newHash string) error {
	db, cancel := r.conn(ctx)
	defer cancel()

	result := db.Model(&model.Account{}).
		Where("id = ? AND password_hash = ?", accountID, currentHash).
		Update("password_hash", newHash)
	if result.Error != nil {
		logger.Error("Failed to store rehashed password", result.Error, map[string]interface{}{
			"account_id": accountID,
		})
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleCredential
	}
	return nil
}

// ClearExpiredGrants nulls grants whose expiry is at or before now.
func (r *accountRepository) ClearExpiredGrants(ctx context.Context, now time.Time) (int64, error) {
	db, cancel := r.conn(ctx)
	defer cancel()

	result := db.Model(&model.Account{}).
		Where("reset_expires_at IS NOT NULL AND reset_expires_at <= ?", now.UTC()).
		Updates(map[string]interface{}{
			"reset_token_hash": nil,
			"reset_expires_at": nil,
		})
	if result.Error != nil {
		logger.Error("Failed to clear expired reset grants", result.Error, nil)
		return 0, result.Error
	}

	logger.Debug("Expired reset grants cleared", map[string]interface{}{
		"count": result.RowsAffected,
	})
	return result.RowsAffected, nil
}

// IsTransientConflict reports store errors worth retrying: serialization
// failures and deadlocks in Postgres, lock contention in SQLite.
func IsTransientConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "sqlstate 40001") ||
		strings.Contains(msg, "sqlstate 40p01") ||
		strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
