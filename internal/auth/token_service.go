package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/comparteride/cride/internal/models"
	"github.com/comparteride/cride/pkg/crypto"
)

// DefaultAccessTokenLength is the number of random bytes in generated access tokens.
const DefaultAccessTokenLength = 32

// ErrAccessTokenNotFound indicates no token matches the presented key.
var ErrAccessTokenNotFound = errors.New("token: not found")

// TokenConfig describes tunable behaviour for the TokenService.
type TokenConfig struct {
	KeyLength int
}

// TokenService manages the opaque bearer tokens bound 1:1 to users.
type TokenService struct {
	db     *gorm.DB
	keyLen int
}

// NewTokenService constructs a token manager backed by the provided database.
func NewTokenService(db *gorm.DB, cfg TokenConfig) (*TokenService, error) {
	if db == nil {
		return nil, errors.New("token service: db is required")
	}

	length := cfg.KeyLength
	if length <= 0 {
		length = DefaultAccessTokenLength
	}

	return &TokenService{db: db, keyLen: length}, nil
}

// GetOrCreate returns the user's access token, generating one on first use.
func (s *TokenService) GetOrCreate(ctx context.Context, userID string) (*models.AccessToken, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("token service: user id is required")
	}

	var token models.AccessToken
	err := s.db.WithContext(ctx).First(&token, "user_id = ?", userID).Error
	if err == nil {
		return &token, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("token service: load token: %w", err)
	}

	key, err := crypto.GenerateToken(s.keyLen)
	if err != nil {
		return nil, fmt.Errorf("token service: generate key: %w", err)
	}

	token = models.AccessToken{Key: key, UserID: userID}
	if err := s.db.WithContext(ctx).Create(&token).Error; err != nil {
		// Lost a race against a concurrent first login; the stored row wins.
		var existing models.AccessToken
		if lookupErr := s.db.WithContext(ctx).First(&existing, "user_id = ?", userID).Error; lookupErr == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("token service: create token: %w", err)
	}

	return &token, nil
}

// Resolve returns the user owning the presented key.
func (s *TokenService) Resolve(ctx context.Context, key string) (*models.User, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrAccessTokenNotFound
	}

	var token models.AccessToken
	err := s.db.WithContext(ctx).Preload("User").First(&token, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccessTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("token service: resolve token: %w", err)
	}

	if token.User == nil || !token.User.IsActive {
		return nil, ErrAccessTokenNotFound
	}

	return token.User, nil
}

// Revoke deletes the user's access token, forcing a fresh login.
func (s *TokenService) Revoke(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("token service: user id is required")
	}

	result := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.AccessToken{})
	if result.Error != nil {
		return fmt.Errorf("token service: revoke token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccessTokenNotFound
	}
	return nil
}
