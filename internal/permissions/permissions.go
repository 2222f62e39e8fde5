package permissions

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/comparteride/cride/internal/models"
	apperrors "github.com/comparteride/cride/pkg/errors"
)

// Input carries the request attributes predicates evaluate against.
type Input struct {
	UserID       string
	AuthUsername string

	CircleSlug string
	// Username is the member addressed by the route, when present.
	Username string
}

// Predicate is a single capability check. A nil return grants; a returned
// error denies (authorization errors, never validation errors).
type Predicate func(ctx context.Context, db *gorm.DB, in Input) error

// Operation names every permissioned API action.
const (
	OpUserRetrieve      = "user.retrieve"
	OpUserProfileUpdate = "user.profile_update"

	OpCircleList     = "circle.list"
	OpCircleCreate   = "circle.create"
	OpCircleRetrieve = "circle.retrieve"
	OpCircleUpdate   = "circle.update"
	OpCircleJoin     = "circle.join"

	OpMembershipList        = "membership.list"
	OpMembershipRetrieve    = "membership.retrieve"
	OpMembershipDelete      = "membership.delete"
	OpMembershipInvitations = "membership.invitations"

	OpRideList   = "ride.list"
	OpRideCreate = "ride.create"
	OpRideUpdate = "ride.update"
	OpRideJoin   = "ride.join"
	OpRideFinish = "ride.finish"
)

// registry maps each operation to its ordered predicate list. Predicates run
// before any business validation; the first denial wins.
var registry = map[string][]Predicate{
	OpUserRetrieve:      {Authenticated, AccountOwner},
	OpUserProfileUpdate: {Authenticated, AccountOwner},

	OpCircleList:     {Authenticated},
	OpCircleCreate:   {Authenticated},
	OpCircleRetrieve: {Authenticated},
	OpCircleUpdate:   {Authenticated, ActiveCircleMember, CircleAdmin},
	OpCircleJoin:     {Authenticated},

	OpMembershipList:        {Authenticated, ActiveCircleMember},
	OpMembershipRetrieve:    {Authenticated, ActiveCircleMember},
	OpMembershipDelete:      {Authenticated, ActiveCircleMember, SelfMember},
	OpMembershipInvitations: {Authenticated, ActiveCircleMember, SelfMember},

	OpRideList:   {Authenticated, ActiveCircleMember},
	OpRideCreate: {Authenticated, ActiveCircleMember},
	OpRideUpdate: {Authenticated, ActiveCircleMember},
	OpRideJoin:   {Authenticated, ActiveCircleMember},
	OpRideFinish: {Authenticated, ActiveCircleMember},
}

// Checker evaluates the predicate list registered for an operation.
type Checker struct {
	db *gorm.DB
}

// NewChecker constructs a Checker bound to the given database handle.
func NewChecker(db *gorm.DB) (*Checker, error) {
	if db == nil {
		return nil, errors.New("permissions: db is required")
	}
	return &Checker{db: db}, nil
}

// Check runs every predicate for the operation in order, returning the first
// denial. Unknown operations deny outright.
func (c *Checker) Check(ctx context.Context, operation string, in Input) error {
	predicates, ok := registry[operation]
	if !ok {
		return apperrors.NewAuthorization(fmt.Sprintf("Unknown operation %q", operation))
	}

	for _, predicate := range predicates {
		if err := predicate(ctx, c.db, in); err != nil {
			return err
		}
	}
	return nil
}

// Authenticated requires a resolved user identity.
func Authenticated(_ context.Context, _ *gorm.DB, in Input) error {
	if in.UserID == "" {
		return apperrors.ErrUnauthorized
	}
	return nil
}

// AccountOwner allows access only to the user addressed by the route.
func AccountOwner(_ context.Context, _ *gorm.DB, in Input) error {
	if in.Username == "" || in.AuthUsername != in.Username {
		return apperrors.ErrForbidden
	}
	return nil
}

// ActiveCircleMember requires an active membership in the route's circle.
func ActiveCircleMember(ctx context.Context, db *gorm.DB, in Input) error {
	var count int64
	err := db.WithContext(ctx).Model(&models.Membership{}).
		Joins("JOIN circles ON circles.id = memberships.circle_id").
		Where("circles.slug_name = ? AND memberships.user_id = ? AND memberships.is_active = ?", in.CircleSlug, in.UserID, true).
		Count(&count).Error
	if err != nil {
		return apperrors.Wrap(err, "permission check failed")
	}
	if count == 0 {
		return apperrors.ErrForbidden
	}
	return nil
}

// CircleAdmin requires the caller's membership in the route's circle to carry
// the admin flag.
func CircleAdmin(ctx context.Context, db *gorm.DB, in Input) error {
	var count int64
	err := db.WithContext(ctx).Model(&models.Membership{}).
		Joins("JOIN circles ON circles.id = memberships.circle_id").
		Where("circles.slug_name = ? AND memberships.user_id = ? AND memberships.is_active = ? AND memberships.is_admin = ?", in.CircleSlug, in.UserID, true, true).
		Count(&count).Error
	if err != nil {
		return apperrors.Wrap(err, "permission check failed")
	}
	if count == 0 {
		return apperrors.ErrForbidden
	}
	return nil
}

// SelfMember allows access only when the route's member is the caller.
func SelfMember(_ context.Context, _ *gorm.DB, in Input) error {
	if in.Username == "" || in.AuthUsername != in.Username {
		return apperrors.ErrForbidden
	}
	return nil
}
