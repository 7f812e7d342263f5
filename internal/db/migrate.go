package db

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"proxy_manager/internal/model"
)

// Models lists every table managed by the engine
func Models() []interface{} {
	return []interface{}{
		&model.Certificate{},
		&model.Host{},
		&model.AuditLog{},
		&model.User{},
	}
}

// Migrate runs database migrations for all models
func Migrate(db *gorm.DB) error {
	logrus.Info("Starting database migration...")

	models := Models()
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	logrus.Infof("Database migration completed successfully (%d tables)", len(models))
	return nil
}
