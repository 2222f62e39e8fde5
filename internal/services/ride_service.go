package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/comparteride/cride/internal/models"
	apperrors "github.com/comparteride/cride/pkg/errors"
	"github.com/comparteride/cride/pkg/metrics"
)

const (
	// Seat bounds for a single ride.
	MinAvailableSeats = 1
	MaxAvailableSeats = 15

	// DefaultMinDepartureLead is how far in the future a new ride must depart.
	DefaultMinDepartureLead = 10 * time.Minute
	// DefaultJoinCloseWindow closes joining shortly before departure.
	DefaultJoinCloseWindow = 60 * time.Second
)

var (
	// ErrRideNotFound indicates the ride does not exist in the circle.
	ErrRideNotFound = apperrors.NewNotFound("Ride not found")
	// ErrRideFull rejects joins once every seat is taken.
	ErrRideFull = apperrors.NewValidation("Ride is already full!")
	// ErrAlreadyAboard rejects a second join by the same passenger.
	ErrAlreadyAboard = apperrors.NewValidation("User is already in this ride")
	// ErrRideOngoing rejects edits once the ride has departed.
	ErrRideOngoing = apperrors.NewValidation("Ongoing rides cannot be modified")
	// ErrRideNotStarted rejects finishing a ride before its departure.
	ErrRideNotStarted = apperrors.NewValidation("Ride has not started yet")
	// ErrNotRideOwner gates mutations to the offering user.
	ErrNotRideOwner = apperrors.NewAuthorization("Only the ride offerer may modify this ride")
)

// CreateRideInput describes a new ride offer.
type CreateRideInput struct {
	AvailableSeats    int
	Comments          string
	DepartureLocation string
	DepartureDate     time.Time
	ArrivalLocation   string
	ArrivalDate       time.Time
}

// UpdateRideInput enumerates editable ride fields.
type UpdateRideInput struct {
	AvailableSeats    *int
	Comments          *string
	DepartureLocation *string
	DepartureDate     *time.Time
	ArrivalLocation   *string
	ArrivalDate       *time.Time
}

// ListRidesOptions filters the circle ride listing.
type ListRidesOptions struct {
	Page     int
	PageSize int
	// Upcoming keeps only active rides departing after now.
	Upcoming bool
}

// RideOption customises the RideService.
type RideOption func(*RideService)

// WithRideClock injects a custom time source, primarily for tests.
func WithRideClock(clock func() time.Time) RideOption {
	return func(s *RideService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithMinDepartureLead overrides the minimum create-to-departure lead.
func WithMinDepartureLead(d time.Duration) RideOption {
	return func(s *RideService) {
		if d > 0 {
			s.minLead = d
		}
	}
}

// WithJoinCloseWindow overrides the pre-departure window that closes joining.
func WithJoinCloseWindow(d time.Duration) RideOption {
	return func(s *RideService) {
		if d > 0 {
			s.joinClose = d
		}
	}
}

// RideService implements the ride lifecycle state machine. Every transition
// that touches seats or ride counters runs as one all-or-nothing transaction:
// Ride.available_seats, Membership, Circle, and Profile counters never drift
// from the recorded participations.
type RideService struct {
	db        *gorm.DB
	now       func() time.Time
	minLead   time.Duration
	joinClose time.Duration
}

// NewRideService constructs a RideService instance.
func NewRideService(db *gorm.DB, opts ...RideOption) (*RideService, error) {
	if db == nil {
		return nil, errors.New("ride service: db is required")
	}

	service := &RideService{
		db:        db,
		now:       time.Now,
		minLead:   DefaultMinDepartureLead,
		joinClose: DefaultJoinCloseWindow,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Create offers a new ride in the circle. The offerer must be an active member
// and may not offer rides on behalf of anyone else; the caller guarantees
// userID is the authenticated user.
func (s *RideService) Create(ctx context.Context, slug, userID string, input CreateRideInput) (*models.Ride, error) {
	ctx = ensureContext(ctx)

	if input.AvailableSeats < MinAvailableSeats || input.AvailableSeats > MaxAvailableSeats {
		return nil, apperrors.NewValidation(fmt.Sprintf("Available seats must be between %d and %d", MinAvailableSeats, MaxAvailableSeats))
	}

	now := s.now()
	if input.DepartureDate.Before(now.Add(s.minLead)) {
		return nil, apperrors.NewValidation("Departure time must be at least 10 minutes from now")
	}
	if !input.ArrivalDate.After(input.DepartureDate) {
		return nil, apperrors.NewValidation("Arrival date must happen after departure date")
	}

	var ride *models.Ride
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		circle, err := circleBySlug(tx, slug)
		if err != nil {
			return err
		}

		membership, err := activeMembership(tx, userID, circle.ID)
		if err != nil {
			return err
		}

		ride = &models.Ride{
			OfferedByID:       userID,
			OfferedInID:       circle.ID,
			AvailableSeats:    input.AvailableSeats,
			Comments:          input.Comments,
			DepartureLocation: input.DepartureLocation,
			DepartureDate:     input.DepartureDate,
			ArrivalLocation:   input.ArrivalLocation,
			ArrivalDate:       input.ArrivalDate,
			IsActive:          true,
		}
		if err := tx.Create(ride).Error; err != nil {
			return fmt.Errorf("create ride: %w", err)
		}

		return offeredCounters(tx, circle.ID, membership.ID, userID)
	})
	if err != nil {
		metrics.RideEvents.WithLabelValues("create", "rejected").Inc()
		return nil, err
	}

	metrics.RideEvents.WithLabelValues("create", "success").Inc()
	return ride, nil
}

// Join adds the user as a passenger. The seat check and decrement are a single
// guarded update: of two concurrent joins on the last seat, exactly one wins.
func (s *RideService) Join(ctx context.Context, slug, rideID, userID string) (*models.Ride, error) {
	ctx = ensureContext(ctx)

	var ride *models.Ride
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		circle, err := circleBySlug(tx, slug)
		if err != nil {
			return err
		}

		loaded, err := rideInCircle(tx, circle.ID, rideID)
		if err != nil {
			return err
		}
		ride = loaded

		membership, err := activeMembership(tx, userID, circle.ID)
		if err != nil {
			return err
		}

		if !ride.DepartureDate.After(s.now().Add(s.joinClose)) {
			return apperrors.NewValidation("You can't join this ride now")
		}

		var aboard int64
		if err := tx.Table("ride_passengers").
			Where("ride_id = ? AND user_id = ?", ride.ID, userID).
			Count(&aboard).Error; err != nil {
			return fmt.Errorf("count passengers: %w", err)
		}
		if aboard > 0 {
			return ErrAlreadyAboard
		}

		if ride.AvailableSeats < 1 {
			return ErrRideFull
		}

		// Conditional decrement; RowsAffected==0 means another join took the
		// last seat since the read above.
		seat := tx.Model(&models.Ride{}).
			Where("id = ? AND available_seats >= 1", ride.ID).
			UpdateColumn("available_seats", gorm.Expr("available_seats - 1"))
		if seat.Error != nil {
			return fmt.Errorf("take seat: %w", seat.Error)
		}
		if seat.RowsAffected == 0 {
			return ErrRideFull
		}

		if err := tx.Exec(
			"INSERT INTO ride_passengers (ride_id, user_id) VALUES (?, ?)",
			ride.ID, userID,
		).Error; err != nil {
			return fmt.Errorf("add passenger: %w", err)
		}

		if err := takenCounters(tx, circle.ID, membership.ID, userID); err != nil {
			return err
		}

		return tx.Preload("Passengers").Preload("OfferedBy").First(ride, "id = ?", ride.ID).Error
	})
	if err != nil {
		metrics.RideEvents.WithLabelValues("join", "rejected").Inc()
		return nil, err
	}

	metrics.RideEvents.WithLabelValues("join", "success").Inc()
	return ride, nil
}

// Update edits a ride that has not yet departed. Only the offerer may edit.
func (s *RideService) Update(ctx context.Context, slug, rideID, userID string, input UpdateRideInput) (*models.Ride, error) {
	ctx = ensureContext(ctx)

	var ride *models.Ride
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		circle, err := circleBySlug(tx, slug)
		if err != nil {
			return err
		}

		loaded, err := rideInCircle(tx, circle.ID, rideID)
		if err != nil {
			return err
		}
		ride = loaded

		if ride.OfferedByID != userID {
			return ErrNotRideOwner
		}
		if !ride.DepartureDate.After(s.now()) {
			return ErrRideOngoing
		}

		departure := ride.DepartureDate
		arrival := ride.ArrivalDate
		if input.DepartureDate != nil {
			departure = *input.DepartureDate
		}
		if input.ArrivalDate != nil {
			arrival = *input.ArrivalDate
		}
		if !arrival.After(departure) {
			return apperrors.NewValidation("Arrival date must happen after departure date")
		}

		updates := map[string]any{}
		if input.AvailableSeats != nil {
			if *input.AvailableSeats < MinAvailableSeats || *input.AvailableSeats > MaxAvailableSeats {
				return apperrors.NewValidation(fmt.Sprintf("Available seats must be between %d and %d", MinAvailableSeats, MaxAvailableSeats))
			}
			updates["available_seats"] = *input.AvailableSeats
		}
		if input.Comments != nil {
			updates["comments"] = *input.Comments
		}
		if input.DepartureLocation != nil {
			updates["departure_location"] = *input.DepartureLocation
		}
		if input.DepartureDate != nil {
			updates["departure_date"] = *input.DepartureDate
		}
		if input.ArrivalLocation != nil {
			updates["arrival_location"] = *input.ArrivalLocation
		}
		if input.ArrivalDate != nil {
			updates["arrival_date"] = *input.ArrivalDate
		}

		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(ride).Updates(updates).Error; err != nil {
			return fmt.Errorf("update ride: %w", err)
		}
		return tx.First(ride, "id = ?", ride.ID).Error
	})
	if err != nil {
		metrics.RideEvents.WithLabelValues("update", "rejected").Inc()
		return nil, err
	}

	metrics.RideEvents.WithLabelValues("update", "success").Inc()
	return ride, nil
}

// End marks a ride inactive once the supplied current time is past departure.
func (s *RideService) End(ctx context.Context, slug, rideID, userID string, currentTime time.Time) (*models.Ride, error) {
	ctx = ensureContext(ctx)

	var ride *models.Ride
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		circle, err := circleBySlug(tx, slug)
		if err != nil {
			return err
		}

		loaded, err := rideInCircle(tx, circle.ID, rideID)
		if err != nil {
			return err
		}
		ride = loaded

		if ride.OfferedByID != userID {
			return ErrNotRideOwner
		}
		if !currentTime.After(ride.DepartureDate) {
			return ErrRideNotStarted
		}

		if err := tx.Model(ride).Update("is_active", false).Error; err != nil {
			return fmt.Errorf("end ride: %w", err)
		}
		ride.IsActive = false
		return nil
	})
	if err != nil {
		metrics.RideEvents.WithLabelValues("finish", "rejected").Inc()
		return nil, err
	}

	metrics.RideEvents.WithLabelValues("finish", "success").Inc()
	return ride, nil
}

// List returns rides of a circle ordered by departure.
func (s *RideService) List(ctx context.Context, slug string, opts ListRidesOptions) ([]models.Ride, int64, error) {
	ctx = ensureContext(ctx)

	circle, err := circleBySlug(s.db.WithContext(ctx), slug)
	if err != nil {
		return nil, 0, err
	}

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	query := s.db.WithContext(ctx).Model(&models.Ride{}).Where("offered_in_id = ?", circle.ID)
	if opts.Upcoming {
		query = query.Where("is_active = ? AND departure_date > ?", true, s.now())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("ride service: count rides: %w", err)
	}

	var rides []models.Ride
	if err := query.
		Order("departure_date ASC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Preload("OfferedBy").
		Preload("Passengers").
		Find(&rides).Error; err != nil {
		return nil, 0, fmt.Errorf("ride service: list rides: %w", err)
	}

	return rides, total, nil
}

// Get loads a single ride of a circle.
func (s *RideService) Get(ctx context.Context, slug, rideID string) (*models.Ride, error) {
	ctx = ensureContext(ctx)

	circle, err := circleBySlug(s.db.WithContext(ctx), slug)
	if err != nil {
		return nil, err
	}

	ride, err := rideInCircle(s.db.WithContext(ctx), circle.ID, rideID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Preload("Passengers").Preload("OfferedBy").First(ride, "id = ?", ride.ID).Error; err != nil {
		return nil, fmt.Errorf("ride service: reload ride: %w", err)
	}
	return ride, nil
}

func rideInCircle(tx *gorm.DB, circleID, rideID string) (*models.Ride, error) {
	var ride models.Ride
	err := tx.First(&ride, "id = ? AND offered_in_id = ?", rideID, circleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load ride: %w", err)
	}
	return &ride, nil
}

// offeredCounters applies the lockstep rides_offered increments for a create event.
func offeredCounters(tx *gorm.DB, circleID, membershipID, userID string) error {
	if err := tx.Model(&models.Circle{}).
		Where("id = ?", circleID).
		UpdateColumn("rides_offered", gorm.Expr("rides_offered + 1")).Error; err != nil {
		return fmt.Errorf("circle counter: %w", err)
	}
	if err := tx.Model(&models.Membership{}).
		Where("id = ?", membershipID).
		UpdateColumn("rides_offered", gorm.Expr("rides_offered + 1")).Error; err != nil {
		return fmt.Errorf("membership counter: %w", err)
	}
	if err := tx.Model(&models.Profile{}).
		Where("user_id = ?", userID).
		UpdateColumn("rides_offered", gorm.Expr("rides_offered + 1")).Error; err != nil {
		return fmt.Errorf("profile counter: %w", err)
	}
	return nil
}

// takenCounters applies the lockstep rides_taken increments for a join event.
func takenCounters(tx *gorm.DB, circleID, membershipID, userID string) error {
	if err := tx.Model(&models.Circle{}).
		Where("id = ?", circleID).
		UpdateColumn("rides_taken", gorm.Expr("rides_taken + 1")).Error; err != nil {
		return fmt.Errorf("circle counter: %w", err)
	}
	if err := tx.Model(&models.Membership{}).
		Where("id = ?", membershipID).
		UpdateColumn("rides_taken", gorm.Expr("rides_taken + 1")).Error; err != nil {
		return fmt.Errorf("membership counter: %w", err)
	}
	if err := tx.Model(&models.Profile{}).
		Where("user_id = ?", userID).
		UpdateColumn("rides_taken", gorm.Expr("rides_taken + 1")).Error; err != nil {
		return fmt.Errorf("profile counter: %w", err)
	}
	return nil
}
