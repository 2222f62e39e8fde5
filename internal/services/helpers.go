package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/comparteride/cride/internal/models"
	apperrors "github.com/comparteride/cride/pkg/errors"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// ErrNotActiveMember is the gating failure shared by every ride operation.
var ErrNotActiveMember = apperrors.NewValidation("User is not an active member of the circle.")

// activeMembership resolves the active Membership row for (user, circle) inside
// the supplied handle, which may be a transaction.
func activeMembership(tx *gorm.DB, userID, circleID string) (*models.Membership, error) {
	var membership models.Membership
	err := tx.
		Where("user_id = ? AND circle_id = ? AND is_active = ?", userID, circleID, true).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotActiveMember
	}
	if err != nil {
		return nil, fmt.Errorf("load membership: %w", err)
	}
	return &membership, nil
}

func circleBySlug(tx *gorm.DB, slug string) (*models.Circle, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, apperrors.NewNotFound("Circle not found")
	}

	var circle models.Circle
	err := tx.First(&circle, "slug_name = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("Circle not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load circle: %w", err)
	}
	return &circle, nil
}
