package database

import (
	"github.com/karthik14478/clawwatch/internal/database/models"

	"gorm.io/gorm"
)

// RunMigrations creates or updates the schema for all tracked models.
func RunMigrations(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.AgentEvent{},
		&models.AlertRule{},
		&models.Alert{},
		&models.NotificationChannel{},
	)
}
