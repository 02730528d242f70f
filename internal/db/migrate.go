package db

import (
	"fmt"

	"github.com/dannystocker/mcp-multiagent-bridge/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Conversation{},
		&models.Message{},
		&models.SessionStatus{},
		&models.AuditEntry{},
	}
}

// AutoMigrate creates or updates all bridge tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
