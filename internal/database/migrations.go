package database

import (
	"gorm.io/gorm"

	"github.com/comparteride/cride/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&models.AccessToken{},
		&models.Circle{},
		&models.Membership{},
		&models.Invitation{},
		&models.Ride{},
	)
}
