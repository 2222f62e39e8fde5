package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/comparteride/cride/internal/models"
	"github.com/comparteride/cride/pkg/crypto"
	apperrors "github.com/comparteride/cride/pkg/errors"
)

const invitationCodeBytes = 9

var (
	// ErrMembershipNotFound indicates no membership exists for the user in the circle.
	ErrMembershipNotFound = apperrors.NewNotFound("Membership not found")
	// ErrInvitationInvalid covers unknown and already consumed invitation codes.
	ErrInvitationInvalid = apperrors.NewValidation("Invalid invitation code")
	// ErrNoInvitationsLeft blocks issuing once the member's quota is exhausted.
	ErrNoInvitationsLeft = apperrors.NewValidation("No invitations left")
	// ErrCircleFull blocks joining a limited circle at capacity.
	ErrCircleFull = apperrors.NewValidation("Circle has reached its member limit")
	// ErrAlreadyMember blocks consuming an invitation for a circle the user is in.
	ErrAlreadyMember = apperrors.NewValidation("User is already a member of the circle")
)

// MembershipService tracks each user's standing within a circle and the
// single-use invitation codes that admit new members.
type MembershipService struct {
	db *gorm.DB
}

// NewMembershipService constructs a MembershipService instance.
func NewMembershipService(db *gorm.DB) (*MembershipService, error) {
	if db == nil {
		return nil, errors.New("membership service: db is required")
	}
	return &MembershipService{db: db}, nil
}

// ActiveMembership is the gating predicate for every ride operation.
func (s *MembershipService) ActiveMembership(ctx context.Context, userID, circleID string) (*models.Membership, error) {
	return activeMembership(s.db.WithContext(ensureContext(ctx)), userID, circleID)
}

// ListMembers returns the active memberships of a circle.
func (s *MembershipService) ListMembers(ctx context.Context, slug string) ([]models.Membership, error) {
	ctx = ensureContext(ctx)

	circle, err := circleBySlug(s.db.WithContext(ctx), slug)
	if err != nil {
		return nil, err
	}

	var memberships []models.Membership
	err = s.db.WithContext(ctx).
		Preload("User").
		Preload("User.Profile").
		Where("circle_id = ? AND is_active = ?", circle.ID, true).
		Order("created_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("membership service: list members: %w", err)
	}

	return memberships, nil
}

// GetMember loads one membership of a circle by username.
func (s *MembershipService) GetMember(ctx context.Context, slug, username string) (*models.Membership, error) {
	ctx = ensureContext(ctx)

	circle, err := circleBySlug(s.db.WithContext(ctx), slug)
	if err != nil {
		return nil, err
	}

	var membership models.Membership
	err = s.db.WithContext(ctx).
		Preload("User").
		Preload("User.Profile").
		Joins("JOIN users ON users.id = memberships.user_id").
		Where("memberships.circle_id = ? AND users.username = ? AND memberships.is_active = ?", circle.ID, username, true).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("membership service: get member: %w", err)
	}

	return &membership, nil
}

// Deactivate soft-disables a membership. Rows are never deleted so the ride
// counters the member accumulated stay attributable.
func (s *MembershipService) Deactivate(ctx context.Context, slug, username string) error {
	ctx = ensureContext(ctx)

	membership, err := s.GetMember(ctx, slug, username)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Model(membership).Update("is_active", false).Error; err != nil {
		return fmt.Errorf("membership service: deactivate: %w", err)
	}

	return nil
}

// IssueInvitation creates a single-use code on behalf of a member with
// remaining quota. The quota is decremented at consumption, not issuance.
func (s *MembershipService) IssueInvitation(ctx context.Context, slug, issuerUserID string) (*models.Invitation, error) {
	ctx = ensureContext(ctx)

	var invitation *models.Invitation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		circle, err := circleBySlug(tx, slug)
		if err != nil {
			return err
		}

		membership, err := activeMembership(tx, issuerUserID, circle.ID)
		if err != nil {
			return err
		}
		if membership.RemainingInvitations <= 0 {
			return ErrNoInvitationsLeft
		}

		code, err := crypto.GenerateToken(invitationCodeBytes)
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}

		invitation = &models.Invitation{
			Code:     code,
			CircleID: circle.ID,
			IssuedBy: issuerUserID,
		}
		return tx.Create(invitation).Error
	})
	if err != nil {
		return nil, err
	}

	return invitation, nil
}

// ListInvitations returns the codes a member has issued, unused first.
func (s *MembershipService) ListInvitations(ctx context.Context, slug, issuerUserID string) ([]models.Invitation, error) {
	ctx = ensureContext(ctx)

	circle, err := circleBySlug(s.db.WithContext(ctx), slug)
	if err != nil {
		return nil, err
	}

	var invitations []models.Invitation
	err = s.db.WithContext(ctx).
		Where("circle_id = ? AND issued_by = ?", circle.ID, issuerUserID).
		Order("used_by_id IS NOT NULL, created_at DESC").
		Find(&invitations).Error
	if err != nil {
		return nil, fmt.Errorf("membership service: list invitations: %w", err)
	}

	return invitations, nil
}

// ConsumeInvitation admits a user into the named circle. The code must belong
// to that circle. The Unused to Used transition, the issuer quota decrement,
// and the new membership are one atomic unit; a code can never admit two users.
func (s *MembershipService) ConsumeInvitation(ctx context.Context, slug, code, userID string) (*models.Membership, error) {
	ctx = ensureContext(ctx)

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvitationInvalid
	}

	var membership *models.Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		circle, err := circleBySlug(tx, slug)
		if err != nil {
			return err
		}

		var invitation models.Invitation
		err = tx.First(&invitation, "code = ? AND circle_id = ?", code, circle.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvitationInvalid
		}
		if err != nil {
			return fmt.Errorf("load invitation: %w", err)
		}
		if invitation.UsedByID != nil {
			return ErrInvitationInvalid
		}

		var existing int64
		if err := tx.Model(&models.Membership{}).
			Where("user_id = ? AND circle_id = ? AND is_active = ?", userID, circle.ID, true).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("count membership: %w", err)
		}
		if existing > 0 {
			return ErrAlreadyMember
		}

		if circle.IsLimited {
			var members int64
			if err := tx.Model(&models.Membership{}).
				Where("circle_id = ? AND is_active = ?", circle.ID, true).
				Count(&members).Error; err != nil {
				return fmt.Errorf("count members: %w", err)
			}
			if members >= int64(circle.MembersLimit) {
				return ErrCircleFull
			}
		}

		// Guarded claim of the code; a concurrent consumer loses here.
		claim := tx.Model(&models.Invitation{}).
			Where("id = ? AND used_by_id IS NULL", invitation.ID).
			Update("used_by_id", userID)
		if claim.Error != nil {
			return fmt.Errorf("claim invitation: %w", claim.Error)
		}
		if claim.RowsAffected == 0 {
			return ErrInvitationInvalid
		}

		if err := tx.Model(&models.Membership{}).
			Where("user_id = ? AND circle_id = ?", invitation.IssuedBy, circle.ID).
			Updates(map[string]any{
				"remaining_invitations": gorm.Expr("remaining_invitations - 1"),
				"invitations_used":      gorm.Expr("invitations_used + 1"),
			}).Error; err != nil {
			return fmt.Errorf("decrement quota: %w", err)
		}

		created := &models.Membership{
			UserID:   userID,
			CircleID: circle.ID,
			IsActive: true,
		}
		if err := tx.Create(created).Error; err != nil {
			if !isUniqueConstraintError(err) {
				return fmt.Errorf("create membership: %w", err)
			}
			// A deactivated row exists for this pair; reactivate it instead.
			if err := tx.Model(&models.Membership{}).
				Where("user_id = ? AND circle_id = ?", userID, circle.ID).
				Update("is_active", true).Error; err != nil {
				return fmt.Errorf("reactivate membership: %w", err)
			}
		}

		current, err := activeMembership(tx, userID, circle.ID)
		if err != nil {
			return err
		}
		membership = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	return membership, nil
}
