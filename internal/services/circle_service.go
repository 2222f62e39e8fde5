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

// DefaultAdminInvitations is the invitation quota granted to a circle's founder.
const DefaultAdminInvitations = 10

// CreateCircleInput captures new circle metadata.
type CreateCircleInput struct {
	Name         string
	SlugName     string
	About        string
	IsPublic     *bool
	IsLimited    bool
	MembersLimit int
}

// UpdateCircleInput describes mutable circle fields. The slug and the ride
// counters are not editable.
type UpdateCircleInput struct {
	Name         *string
	About        *string
	Picture      *string
	IsPublic     *bool
	IsLimited    *bool
	MembersLimit *int
}

// ListCirclesOptions controls search and pagination for the public listing.
type ListCirclesOptions struct {
	Page     int
	PageSize int
	Query    string
}

// CircleService manages circle lifecycle. The creating user becomes the first
// admin member in the same transaction that persists the circle.
type CircleService struct {
	db               *gorm.DB
	adminInvitations int
}

// CircleOption customises the CircleService.
type CircleOption func(*CircleService)

// WithAdminInvitations overrides the founder's invitation quota.
func WithAdminInvitations(n int) CircleOption {
	return func(s *CircleService) {
		if n > 0 {
			s.adminInvitations = n
		}
	}
}

// NewCircleService constructs a CircleService instance.
func NewCircleService(db *gorm.DB, opts ...CircleOption) (*CircleService, error) {
	if db == nil {
		return nil, errors.New("circle service: db is required")
	}

	service := &CircleService{
		db:               db,
		adminInvitations: DefaultAdminInvitations,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Create registers a new circle and grants the creator an admin membership.
func (s *CircleService) Create(ctx context.Context, userID string, input CreateCircleInput) (*models.Circle, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	slug := strings.TrimSpace(input.SlugName)
	if name == "" {
		return nil, apperrors.NewValidation("Circle name is required")
	}
	if slug == "" {
		return nil, apperrors.NewValidation("Circle slug name is required")
	}

	circle := &models.Circle{
		Name:         name,
		SlugName:     slug,
		About:        strings.TrimSpace(input.About),
		IsPublic:     true,
		IsLimited:    input.IsLimited,
		MembersLimit: input.MembersLimit,
	}
	if input.IsPublic != nil {
		circle.IsPublic = *input.IsPublic
	}
	if circle.MembersLimit > 0 {
		circle.IsLimited = true
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(circle).Error; err != nil {
			return err
		}

		membership := &models.Membership{
			UserID:               userID,
			CircleID:             circle.ID,
			IsActive:             true,
			IsAdmin:              true,
			RemainingInvitations: s.adminInvitations,
		}
		return tx.Create(membership).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.NewConflict("Circle slug name already exists")
		}
		return nil, fmt.Errorf("circle service: create circle: %w", err)
	}

	return circle, nil
}

// List returns public circles matching the supplied search query with pagination.
func (s *CircleService) List(ctx context.Context, opts ListCirclesOptions) ([]models.Circle, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	query := s.db.WithContext(ctx).Model(&models.Circle{}).Where("is_public = ?", true)
	if q := strings.TrimSpace(opts.Query); q != "" {
		pattern := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(slug_name) LIKE ? OR LOWER(name) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("circle service: count circles: %w", err)
	}

	var circles []models.Circle
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&circles).Error; err != nil {
		return nil, 0, fmt.Errorf("circle service: list circles: %w", err)
	}

	return circles, total, nil
}

// GetBySlug loads a single circle.
func (s *CircleService) GetBySlug(ctx context.Context, slug string) (*models.Circle, error) {
	return circleBySlug(s.db.WithContext(ensureContext(ctx)), slug)
}

// Update persists mutable attributes for an existing circle. Admin gating is
// enforced by the permission layer before this runs.
func (s *CircleService) Update(ctx context.Context, slug string, input UpdateCircleInput) (*models.Circle, error) {
	ctx = ensureContext(ctx)

	circle, err := circleBySlug(s.db.WithContext(ctx), slug)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		if name := strings.TrimSpace(*input.Name); name != "" && name != circle.Name {
			updates["name"] = name
		}
	}
	if input.About != nil {
		updates["about"] = strings.TrimSpace(*input.About)
	}
	if input.Picture != nil {
		updates["picture"] = strings.TrimSpace(*input.Picture)
	}
	if input.IsPublic != nil {
		updates["is_public"] = *input.IsPublic
	}
	if input.IsLimited != nil {
		updates["is_limited"] = *input.IsLimited
	}
	if input.MembersLimit != nil {
		if *input.MembersLimit < 0 {
			return nil, apperrors.NewValidation("Members limit cannot be negative")
		}
		updates["members_limit"] = *input.MembersLimit
	}

	if len(updates) == 0 {
		return circle, nil
	}

	if err := s.db.WithContext(ctx).Model(circle).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("circle service: update circle: %w", err)
	}

	if err := s.db.WithContext(ctx).First(circle, "id = ?", circle.ID).Error; err != nil {
		return nil, fmt.Errorf("circle service: reload circle: %w", err)
	}

	return circle, nil
}
