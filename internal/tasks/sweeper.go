package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/comparteride/cride/internal/models"
	"github.com/comparteride/cride/pkg/logger"
	"github.com/comparteride/cride/pkg/metrics"
)

// DefaultSweepInterval matches the original deployment's five second cadence.
const DefaultSweepInterval = 5 * time.Second

// SweeperOption customises the Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval overrides the sweep cadence and lookahead window.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSweepClock injects a custom time source, primarily for tests.
func WithSweepClock(clock func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSweepCron injects a preconfigured cron instance, primarily for testing.
func WithSweepCron(c *cron.Cron) SweeperOption {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// Sweeper is the periodic pass over rides about to arrive.
//
// NOTE: the sweep selects active rides with arrival_date inside
// [now, now+interval] and writes is_active=true. Matched rides are already
// active, so the write changes nothing. The intended write is probably
// is_active=false for rides whose arrival has passed. Kept as-is pending
// product confirmation; see DESIGN.md.
type Sweeper struct {
	db       *gorm.DB
	cron     *cron.Cron
	interval time.Duration
	now      func() time.Time
	log      *zap.Logger

	mu sync.Mutex // serialises overlapping runs
}

// NewSweeper constructs a Sweeper with sensible defaults.
func NewSweeper(db *gorm.DB, opts ...SweeperOption) (*Sweeper, error) {
	if db == nil {
		return nil, errors.New("sweeper: db is required")
	}

	sweeper := &Sweeper{
		db:       db,
		interval: DefaultSweepInterval,
		now:      time.Now,
		log:      logger.WithModule("sweeper"),
	}
	for _, opt := range opts {
		opt(sweeper)
	}

	if sweeper.cron == nil {
		sweeper.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return sweeper, nil
}

// Start registers the sweep job and launches the scheduler. Failures inside a
// run are logged, never propagated; a failed iteration leaves ride state
// untouched because the sweep writes inside one transaction.
func (s *Sweeper) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.log.Warn("ride sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the scheduler and returns a context that completes when running
// jobs finish.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce executes a single sweep iteration. Safe to invoke repeatedly and
// concurrently; the flag write is idempotent and runs are serialised.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	windowEnd := now.Add(s.interval)

	var flagged int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Ride{}).
			Where("arrival_date >= ? AND arrival_date <= ? AND is_active = ?", now, windowEnd, true).
			UpdateColumn("is_active", true)
		if result.Error != nil {
			return fmt.Errorf("sweeper: flag rides: %w", result.Error)
		}
		flagged = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.SweepRuns.Inc()
	if flagged > 0 {
		metrics.SweepRidesFlagged.Add(float64(flagged))
		s.log.Debug("sweep flagged rides", zap.Int64("count", flagged))
	}

	return flagged, nil
}
