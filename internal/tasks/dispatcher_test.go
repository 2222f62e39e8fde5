package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	iauth "github.com/comparteride/cride/internal/auth"
	"github.com/comparteride/cride/internal/models"
	"github.com/comparteride/cride/pkg/mail"
)

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	failures int
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failures > 0 {
		m.failures--
		return errors.New("smtp: connection refused")
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

func newTestVerification(t *testing.T) *iauth.VerificationService {
	t.Helper()

	svc, err := iauth.NewVerificationService(iauth.VerificationConfig{Secret: "test-secret"})
	require.NoError(t, err)
	return svc
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDispatcherSendsConfirmationEmail(t *testing.T) {
	db := openTasksTestDB(t)
	verification := newTestVerification(t)
	mailer := &recordingMailer{}

	user := &models.User{
		Username: "rider",
		Email:    "rider@example.com",
		Password: "irrelevant",
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)

	dispatcher, err := NewDispatcher(db, verification, mailer, DispatcherConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)

	dispatcher.EnqueueConfirmation(user.ID)

	waitFor(t, func() bool { return len(mailer.sent()) == 1 })

	msg := mailer.sent()[0]
	require.Equal(t, "rider@example.com", msg.To)
	require.Equal(t, "Welcome @rider! Verify your account to start using Comparte Ride", msg.Subject)
	require.Contains(t, msg.Body, "@rider")
}

func TestDispatcherRetriesThenSucceeds(t *testing.T) {
	db := openTasksTestDB(t)
	verification := newTestVerification(t)
	mailer := &recordingMailer{failures: 2}

	user := &models.User{
		Username: "bouncy",
		Email:    "bouncy@example.com",
		Password: "irrelevant",
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)

	dispatcher, err := NewDispatcher(db, verification, mailer, DispatcherConfig{
		MaxRetries: 3,
		Backoff:    10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)

	dispatcher.EnqueueConfirmation(user.ID)

	waitFor(t, func() bool { return len(mailer.sent()) == 1 })
}

func TestDispatcherGivesUpAfterMaxRetries(t *testing.T) {
	db := openTasksTestDB(t)
	verification := newTestVerification(t)
	mailer := &recordingMailer{failures: 10}

	user := &models.User{
		Username: "doomed",
		Email:    "doomed@example.com",
		Password: "irrelevant",
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)

	dispatcher, err := NewDispatcher(db, verification, mailer, DispatcherConfig{
		MaxRetries: 2,
		Backoff:    10 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)

	dispatcher.EnqueueConfirmation(user.ID)

	waitFor(t, func() bool {
		mailer.mu.Lock()
		defer mailer.mu.Unlock()
		return mailer.failures <= 8
	})
	time.Sleep(100 * time.Millisecond)
	require.Empty(t, mailer.sent())
}

func TestDispatcherIgnoresDisabledSMTP(t *testing.T) {
	db := openTasksTestDB(t)
	verification := newTestVerification(t)

	disabled, err := mail.NewSMTPMailer(mail.SMTPSettings{Enabled: false})
	require.NoError(t, err)

	user := &models.User{
		Username: "quiet",
		Email:    "quiet@example.com",
		Password: "irrelevant",
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)

	dispatcher, err := NewDispatcher(db, verification, disabled, DispatcherConfig{})
	require.NoError(t, err)

	// A disabled mailer is treated as delivered; no retry loop spins up.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)

	dispatcher.EnqueueConfirmation(user.ID)
	time.Sleep(50 * time.Millisecond)
}
