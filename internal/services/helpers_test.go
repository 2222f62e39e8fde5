package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/comparteride/cride/internal/models"
	"github.com/comparteride/cride/pkg/crypto"
)

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&models.Circle{},
		&models.Membership{},
		&models.Invitation{},
		&models.Ride{},
		&models.AccessToken{},
	))

	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("secret123!")
	require.NoError(t, err)

	user := &models.User{
		Username:   username,
		Email:      username + "@example.com",
		Password:   hashed,
		FirstName:  "Test",
		LastName:   "User",
		IsVerified: true,
		IsActive:   true,
		IsClient:   true,
	}
	require.NoError(t, db.Create(user).Error)
	require.NoError(t, db.Create(&models.Profile{UserID: user.ID}).Error)

	return user
}

func createTestCircle(t *testing.T, db *gorm.DB, slug string, admin *models.User) (*models.Circle, *models.Membership) {
	t.Helper()

	circle := &models.Circle{
		Name:     slug,
		SlugName: slug,
		IsPublic: true,
	}
	require.NoError(t, db.Create(circle).Error)

	membership := &models.Membership{
		UserID:               admin.ID,
		CircleID:             circle.ID,
		IsActive:             true,
		IsAdmin:              true,
		RemainingInvitations: DefaultAdminInvitations,
	}
	require.NoError(t, db.Create(membership).Error)

	return circle, membership
}

func addTestMember(t *testing.T, db *gorm.DB, circle *models.Circle, user *models.User) *models.Membership {
	t.Helper()

	membership := &models.Membership{
		UserID:   user.ID,
		CircleID: circle.ID,
		IsActive: true,
	}
	require.NoError(t, db.Create(membership).Error)
	return membership
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
