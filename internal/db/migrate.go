// Package db opens the event store and manages its schema and fixtures.
package db

import (
	"fmt"

	"github.com/zulandar/lifeline/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model Lifeline migrates.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.EmergencyContact{},
		&models.DeviceToken{},
		&models.SOSEvent{},
		&models.Lease{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
