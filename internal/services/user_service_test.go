package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/comparteride/cride/internal/auth"
	"github.com/comparteride/cride/internal/models"
	apperrors "github.com/comparteride/cride/pkg/errors"
	"github.com/comparteride/cride/pkg/metrics"
)

type stubEnqueuer struct {
	userIDs []string
}

func (s *stubEnqueuer) EnqueueConfirmation(userID string) {
	s.userIDs = append(s.userIDs, userID)
}

func newTestUserService(t *testing.T, db *gorm.DB) (*UserService, *stubEnqueuer, *iauth.VerificationService) {
	t.Helper()

	verification, err := iauth.NewVerificationService(iauth.VerificationConfig{
		Secret: "test-secret",
		Expiry: 72 * time.Hour,
	})
	require.NoError(t, err)

	tokens, err := iauth.NewTokenService(db, iauth.TokenConfig{})
	require.NoError(t, err)

	enqueuer := &stubEnqueuer{}
	svc, err := NewUserService(db, verification, tokens, enqueuer)
	require.NoError(t, err)

	return svc, enqueuer, verification
}

func validRegisterInput() RegisterInput {
	return RegisterInput{
		Email:                "rider@example.com",
		Username:             "rider",
		PhoneNumber:          "+56912345678",
		Password:             "secret123!",
		PasswordConfirmation: "secret123!",
		FirstName:            "Ada",
		LastName:             "Lovelace",
	}
}

func TestRegisterCreatesUnverifiedUserWithProfile(t *testing.T) {
	db := openServiceTestDB(t)
	svc, enqueuer, _ := newTestUserService(t, db)

	user, err := svc.Register(context.Background(), validRegisterInput())
	require.NoError(t, err)
	require.False(t, user.IsVerified)
	require.True(t, user.IsActive)
	require.NotEqual(t, "secret123!", user.Password)

	var profile models.Profile
	require.NoError(t, db.First(&profile, "user_id = ?", user.ID).Error)

	// The confirmation email is queued after the user is committed.
	require.Equal(t, []string{user.ID}, enqueuer.userIDs)
}

func TestRegisterRejectsPasswordMismatch(t *testing.T) {
	db := openServiceTestDB(t)
	svc, enqueuer, _ := newTestUserService(t, db)

	input := validRegisterInput()
	input.PasswordConfirmation = "different123!"

	_, err := svc.Register(context.Background(), input)
	require.EqualError(t, err, "Passwords don't match")
	require.Empty(t, enqueuer.userIDs)
}

func TestRegisterRejectsDuplicateEmailOrUsername(t *testing.T) {
	db := openServiceTestDB(t)
	svc, _, _ := newTestUserService(t, db)

	_, err := svc.Register(context.Background(), validRegisterInput())
	require.NoError(t, err)

	dup := validRegisterInput()
	dup.Username = "someone_else"
	_, err = svc.Register(context.Background(), dup)
	require.EqualError(t, err, "Email or username already exists")

	dup = validRegisterInput()
	dup.Email = "other@example.com"
	_, err = svc.Register(context.Background(), dup)
	require.EqualError(t, err, "Email or username already exists")
}

func TestVerifyMarksAccountVerified(t *testing.T) {
	db := openServiceTestDB(t)
	svc, _, verification := newTestUserService(t, db)

	user, err := svc.Register(context.Background(), validRegisterInput())
	require.NoError(t, err)

	token, err := verification.GenerateToken(user.Username)
	require.NoError(t, err)

	verified, err := svc.Verify(context.Background(), token)
	require.NoError(t, err)
	require.True(t, verified.IsVerified)

	// Verification is idempotent.
	verified, err = svc.Verify(context.Background(), token)
	require.NoError(t, err)
	require.True(t, verified.IsVerified)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	db := openServiceTestDB(t)
	svc, _, _ := newTestUserService(t, db)

	user, err := svc.Register(context.Background(), validRegisterInput())
	require.NoError(t, err)

	expired, err := iauth.NewVerificationService(iauth.VerificationConfig{
		Secret: "test-secret",
		Expiry: 72 * time.Hour,
		Clock:  func() time.Time { return time.Now().Add(-96 * time.Hour) },
	})
	require.NoError(t, err)

	token, err := expired.GenerateToken(user.Username)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), token)
	require.EqualError(t, err, "Verification link has expired.")
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	db := openServiceTestDB(t)
	svc, _, _ := newTestUserService(t, db)

	user, err := svc.Register(context.Background(), validRegisterInput())
	require.NoError(t, err)

	other, err := iauth.NewVerificationService(iauth.VerificationConfig{
		Secret: "a-different-secret",
		Expiry: 72 * time.Hour,
	})
	require.NoError(t, err)

	token, err := other.GenerateToken(user.Username)
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), token)
	require.EqualError(t, err, "Invalid token.")
}

func TestLoginRequiresVerifiedAccount(t *testing.T) {
	db := openServiceTestDB(t)
	svc, _, verification := newTestUserService(t, db)

	user, err := svc.Register(context.Background(), validRegisterInput())
	require.NoError(t, err)

	_, _, err = svc.Login(context.Background(), user.Email, "secret123!")
	require.ErrorIs(t, err, ErrAccountNotVerified)

	token, err := verification.GenerateToken(user.Username)
	require.NoError(t, err)
	_, err = svc.Verify(context.Background(), token)
	require.NoError(t, err)

	logged, key, err := svc.Login(context.Background(), user.Email, "secret123!")
	require.NoError(t, err)
	require.NotEmpty(t, key)
	require.Equal(t, user.ID, logged.ID)

	// The opaque token is stable across logins.
	_, again, err := svc.Login(context.Background(), user.Email, "secret123!")
	require.NoError(t, err)
	require.Equal(t, key, again)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	db := openServiceTestDB(t)
	svc, _, _ := newTestUserService(t, db)

	_, _, err := svc.Login(context.Background(), "nobody@example.com", "whatever1")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	user := createTestUser(t, db, "existing")
	_, _, err = svc.Login(context.Background(), user.Email, "wrong-password")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestLoginCountsAuthAttempts(t *testing.T) {
	db := openServiceTestDB(t)
	svc, _, _ := newTestUserService(t, db)

	user := createTestUser(t, db, "metered")

	successBefore := testutil.ToFloat64(metrics.AuthAttempts.WithLabelValues("success"))
	failureBefore := testutil.ToFloat64(metrics.AuthAttempts.WithLabelValues("failure"))

	_, _, err := svc.Login(context.Background(), user.Email, "wrong-password")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, key, err := svc.Login(context.Background(), user.Email, "secret123!")
	require.NoError(t, err)
	require.NotEmpty(t, key)

	require.Equal(t, successBefore+1, testutil.ToFloat64(metrics.AuthAttempts.WithLabelValues("success")))
	require.Equal(t, failureBefore+1, testutil.ToFloat64(metrics.AuthAttempts.WithLabelValues("failure")))
}

func TestGetByUsernameIncludesActiveCircles(t *testing.T) {
	db := openServiceTestDB(t)
	svc, _, _ := newTestUserService(t, db)

	user := createTestUser(t, db, "socialite")
	circle, membership := createTestCircle(t, db, "vancity", user)
	createTestCircle(t, db, "left-behind", createTestUser(t, db, "someone"))

	loaded, circles, err := svc.GetByUsername(context.Background(), "socialite")
	require.NoError(t, err)
	require.Equal(t, user.ID, loaded.ID)
	require.Len(t, circles, 1)
	require.Equal(t, circle.ID, circles[0].ID)

	// Deactivated memberships drop out of the listing.
	require.NoError(t, db.Model(membership).Update("is_active", false).Error)
	_, circles, err = svc.GetByUsername(context.Background(), "socialite")
	require.NoError(t, err)
	require.Empty(t, circles)

	_, _, err = svc.GetByUsername(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateProfile(t *testing.T) {
	db := openServiceTestDB(t)
	svc, _, _ := newTestUserService(t, db)

	user := createTestUser(t, db, "profiled")

	bio := "I drive every weekend"
	updated, err := svc.UpdateProfile(context.Background(), user.Username, UpdateProfileInput{Biography: &bio})
	require.NoError(t, err)
	require.NotNil(t, updated.Profile)
	require.Equal(t, bio, updated.Profile.Biography)
}
