package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/scopegrant/internal/models"
)

// AutoMigrate creates or updates the database schema. Registry and identity
// tables migrate first so the grants table can attach its foreign keys.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Team{},
		&models.Role{},
		&models.Permission{},
		&models.GrantRecord{},
	)
}
