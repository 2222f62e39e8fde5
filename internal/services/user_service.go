package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	iauth "github.com/comparteride/cride/internal/auth"
	"github.com/comparteride/cride/internal/models"
	"github.com/comparteride/cride/pkg/crypto"
	apperrors "github.com/comparteride/cride/pkg/errors"
	"github.com/comparteride/cride/pkg/metrics"
)

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.NewNotFound("User not found")
	// ErrAccountNotVerified blocks login until the email is confirmed.
	ErrAccountNotVerified = apperrors.NewValidation("Account is not verified yet")
)

// ConfirmationEnqueuer hands the verification email off to the deferred job
// runner. The enqueue must never fail the registration that triggered it.
type ConfirmationEnqueuer interface {
	EnqueueConfirmation(userID string)
}

// RegisterInput describes the fields accepted at signup.
type RegisterInput struct {
	Email                string
	Username             string
	PhoneNumber          string
	Password             string
	PasswordConfirmation string
	FirstName            string
	LastName             string
}

// UpdateProfileInput enumerates mutable profile attributes.
type UpdateProfileInput struct {
	Biography *string
	Picture   *string
}

// UserService handles signup, account verification, login, and profile management.
type UserService struct {
	db           *gorm.DB
	verification *iauth.VerificationService
	tokens       *iauth.TokenService
	enqueuer     ConfirmationEnqueuer
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, verification *iauth.VerificationService, tokens *iauth.TokenService, enqueuer ConfirmationEnqueuer) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	if verification == nil {
		return nil, errors.New("user service: verification service is required")
	}
	if tokens == nil {
		return nil, errors.New("user service: token service is required")
	}
	return &UserService{
		db:           db,
		verification: verification,
		tokens:       tokens,
		enqueuer:     enqueuer,
	}, nil
}

// Register creates a user and profile atomically, then enqueues the
// confirmation email. The email send happens after commit and cannot roll the
// user back.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.TrimSpace(input.Username)

	if input.Password != input.PasswordConfirmation {
		return nil, apperrors.NewValidation("Passwords don't match")
	}
	if len(input.Password) < 8 {
		return nil, apperrors.NewValidation("Password must be at least 8 characters")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Username:    username,
		Email:       email,
		Password:    hashed,
		FirstName:   strings.TrimSpace(input.FirstName),
		LastName:    strings.TrimSpace(input.LastName),
		PhoneNumber: strings.TrimSpace(input.PhoneNumber),
		IsVerified:  false,
		IsActive:    true,
		IsClient:    true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Create(&models.Profile{UserID: user.ID}).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("Email or username already exists")
		}
		return nil, fmt.Errorf("user service: register: %w", err)
	}

	if s.enqueuer != nil {
		s.enqueuer.EnqueueConfirmation(user.ID)
	}

	return user, nil
}

// Verify consumes an email-confirmation token and marks the account verified.
// Re-verifying an already verified account is allowed.
func (s *UserService) Verify(ctx context.Context, token string) (*models.User, error) {
	ctx = ensureContext(ctx)

	username, err := s.verification.ValidateToken(token)
	if err != nil {
		if errors.Is(err, iauth.ErrTokenExpired) {
			return nil, apperrors.NewValidation("Verification link has expired.")
		}
		return nil, apperrors.NewValidation("Invalid token.")
	}

	var user models.User
	err = s.db.WithContext(ctx).First(&user, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewValidation("Invalid token.")
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}

	if !user.IsVerified {
		if err := s.db.WithContext(ctx).Model(&user).Update("is_verified", true).Error; err != nil {
			return nil, fmt.Errorf("user service: mark verified: %w", err)
		}
		user.IsVerified = true
	}

	return &user, nil
}

// Login checks credentials and returns the user's opaque access token,
// creating it on first login.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	ctx = ensureContext(ctx)

	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := s.db.WithContext(ctx).Preload("Profile").First(&user, "email = ? AND is_active = ?", email, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, "", apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", fmt.Errorf("user service: load user: %w", err)
	}

	if !crypto.VerifyPassword(user.Password, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, "", apperrors.ErrInvalidCredentials
	}
	if !user.IsVerified {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, "", ErrAccountNotVerified
	}

	token, err := s.tokens.GetOrCreate(ctx, user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("user service: issue token: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return &user, token.Key, nil
}

// GetByUsername loads a user with profile plus the circles they actively belong to.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, []models.Circle, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Profile").
		First(&user, "username = ? AND is_active = ? AND is_client = ?", username, true, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrUserNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("user service: get user: %w", err)
	}

	var circles []models.Circle
	err = s.db.WithContext(ctx).
		Joins("JOIN memberships ON memberships.circle_id = circles.id").
		Where("memberships.user_id = ? AND memberships.is_active = ?", user.ID, true).
		Find(&circles).Error
	if err != nil {
		return nil, nil, fmt.Errorf("user service: load circles: %w", err)
	}

	return &user, circles, nil
}

// UpdateProfile persists mutable profile attributes.
func (s *UserService) UpdateProfile(ctx context.Context, username string, input UpdateProfileInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Preload("Profile").First(&user, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	if user.Profile == nil {
		return nil, fmt.Errorf("user service: profile missing for %s", username)
	}

	updates := map[string]any{}
	if input.Biography != nil {
		updates["biography"] = strings.TrimSpace(*input.Biography)
	}
	if input.Picture != nil {
		updates["picture"] = strings.TrimSpace(*input.Picture)
	}

	if len(updates) == 0 {
		return &user, nil
	}

	if err := s.db.WithContext(ctx).Model(user.Profile).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("user service: update profile: %w", err)
	}

	if err := s.db.WithContext(ctx).Preload("Profile").First(&user, "id = ?", user.ID).Error; err != nil {
		return nil, fmt.Errorf("user service: reload user: %w", err)
	}

	return &user, nil
}
