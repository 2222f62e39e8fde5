package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	iauth "github.com/comparteride/cride/internal/auth"
	"github.com/comparteride/cride/internal/models"
	"github.com/comparteride/cride/pkg/logger"
	"github.com/comparteride/cride/pkg/mail"
	"github.com/comparteride/cride/pkg/metrics"
)

const (
	jobConfirmationEmail = "send_confirmation_email"

	defaultMaxRetries = 3
	defaultQueueDepth = 256
	defaultBackoff    = 2 * time.Second
)

// Job is a named unit of deferred work carrying a user id argument.
type Job struct {
	Name   string
	UserID string

	attempt int
}

// DispatcherConfig tunes the deferred job runner.
type DispatcherConfig struct {
	MaxRetries int
	QueueDepth int
	Backoff    time.Duration
}

// Dispatcher is the in-process deferred job runner. It delivers verification
// emails off the request path with a bounded retry count; a failed send is
// logged and dropped, never surfaced to the request that enqueued it.
type Dispatcher struct {
	db           *gorm.DB
	verification *iauth.VerificationService
	mailer       mail.Mailer
	maxRetries   int
	backoff      time.Duration

	jobs chan Job
	log  *zap.Logger
}

// NewDispatcher constructs a Dispatcher with the provided collaborators.
func NewDispatcher(db *gorm.DB, verification *iauth.VerificationService, mailer mail.Mailer, cfg DispatcherConfig) (*Dispatcher, error) {
	if db == nil {
		return nil, errors.New("dispatcher: db is required")
	}
	if verification == nil {
		return nil, errors.New("dispatcher: verification service is required")
	}

	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	return &Dispatcher{
		db:           db,
		verification: verification,
		mailer:       mailer,
		maxRetries:   retries,
		backoff:      backoff,
		jobs:         make(chan Job, depth),
		log:          logger.WithModule("tasks"),
	}, nil
}

// Start launches the worker goroutine. The worker stops when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.run(ctx)
}

// EnqueueConfirmation queues a verification email for the given user. The call
// never blocks the request path; when the queue is full the job is dropped and
// logged.
func (d *Dispatcher) EnqueueConfirmation(userID string) {
	select {
	case d.jobs <- Job{Name: jobConfirmationEmail, UserID: userID}:
	default:
		d.log.Warn("job queue full, dropping job",
			zap.String("job", jobConfirmationEmail),
			zap.String("user_id", userID),
		)
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-d.jobs:
			if !ok {
				return
			}
			d.process(ctx, job)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, job Job) {
	err := d.execute(ctx, job)
	if err == nil {
		metrics.EmailDispatches.WithLabelValues("sent").Inc()
		return
	}
	if errors.Is(err, mail.ErrSMTPDisabled) {
		return
	}

	if job.attempt+1 < d.maxRetries {
		metrics.EmailDispatches.WithLabelValues("retried").Inc()
		d.log.Warn("job failed, retrying",
			zap.String("job", job.Name),
			zap.String("user_id", job.UserID),
			zap.Int("attempt", job.attempt+1),
			zap.Error(err),
		)

		job.attempt++
		select {
		case <-ctx.Done():
		case <-time.After(d.backoff):
			select {
			case d.jobs <- job:
			default:
				metrics.EmailDispatches.WithLabelValues("failed").Inc()
				d.log.Error("job queue full, abandoning retry", zap.String("user_id", job.UserID))
			}
		}
		return
	}

	metrics.EmailDispatches.WithLabelValues("failed").Inc()
	d.log.Error("job failed permanently",
		zap.String("job", job.Name),
		zap.String("user_id", job.UserID),
		zap.Int("attempts", d.maxRetries),
		zap.Error(err),
	)
}

func (d *Dispatcher) execute(ctx context.Context, job Job) error {
	switch job.Name {
	case jobConfirmationEmail:
		return d.sendConfirmation(ctx, job.UserID)
	default:
		return fmt.Errorf("dispatcher: unknown job %q", job.Name)
	}
}

func (d *Dispatcher) sendConfirmation(ctx context.Context, userID string) error {
	var user models.User
	if err := d.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return fmt.Errorf("dispatcher: load user: %w", err)
	}

	token, err := d.verification.GenerateToken(user.Username)
	if err != nil {
		return fmt.Errorf("dispatcher: generate token: %w", err)
	}

	if d.mailer == nil {
		return nil
	}

	msg := mail.Message{
		To:      user.Email,
		Subject: fmt.Sprintf("Welcome @%s! Verify your account to start using Comparte Ride", user.Username),
		Body:    confirmationBody(user.Username, token),
	}
	return d.mailer.Send(ctx, msg)
}

func confirmationBody(username, token string) string {
	return fmt.Sprintf(
		"Hi @%s,\n\nWelcome to Comparte Ride! Use the token below to verify your account:\n\n%s\n\nIf you did not create an account, you can ignore this message.\n",
		username, token,
	)
}
