package db

import (
	"github.com/janicogyle/ccs-membership-sub001/internal/app/model"
	"github.com/janicogyle/ccs-membership-sub001/pkg/logger"
	"gorm.io/gorm"
)

// Models lists every table owned by this service.
func Models() []interface{} {
	return []interface{}{
		&model.Account{},
	}
}

// Migrate runs database migrations against the global connection
func Migrate() error {
	return MigrateDB(DB)
}

// MigrateDB runs database migrations against conn
func MigrateDB(conn *gorm.DB) error {
	logger.Info("Running database migrations...")

	models := Models()
	if err := conn.AutoMigrate(models...); err != nil {
		logger.Error("Failed to run migrations", err)
		return err
	}

	logger.Info("Database migrations completed successfully", map[string]interface{}{
		"models_count": len(models),
	})
	return nil
}
