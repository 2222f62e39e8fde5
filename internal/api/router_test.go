package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	iauth "github.com/comparteride/cride/internal/auth"
	"github.com/comparteride/cride/internal/models"
	"github.com/comparteride/cride/internal/services"
)

type apiEnv struct {
	router       *gin.Engine
	db           *gorm.DB
	verification *iauth.VerificationService
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&models.Circle{},
		&models.Membership{},
		&models.Invitation{},
		&models.Ride{},
		&models.AccessToken{},
	))

	verification, err := iauth.NewVerificationService(iauth.VerificationConfig{Secret: "test-secret"})
	require.NoError(t, err)

	tokens, err := iauth.NewTokenService(db, iauth.TokenConfig{})
	require.NoError(t, err)

	users, err := services.NewUserService(db, verification, tokens, nil)
	require.NoError(t, err)
	circles, err := services.NewCircleService(db)
	require.NoError(t, err)
	memberships, err := services.NewMembershipService(db)
	require.NoError(t, err)
	rides, err := services.NewRideService(db)
	require.NoError(t, err)

	router, err := NewRouter(Dependencies{
		DB:          db,
		Tokens:      tokens,
		Users:       users,
		Circles:     circles,
		Memberships: memberships,
		Rides:       rides,
	})
	require.NoError(t, err)

	return &apiEnv{router: router, db: db, verification: verification}
}

func (e *apiEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var envelope struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success, "body: %s", w.Body.String())
	return envelope.Data
}

// signupAndLogin walks a user through signup, email verification, and login,
// returning the opaque access token.
func (e *apiEnv) signupAndLogin(t *testing.T, username string) string {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/users/signup", "", gin.H{
		"email":                 username + "@example.com",
		"username":              username,
		"phone_number":          "+56912345678",
		"password":              "secret123!",
		"password_confirmation": "secret123!",
		"first_name":            "Test",
		"last_name":             "User",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	token, err := e.verification.GenerateToken(username)
	require.NoError(t, err)

	w = e.do(t, http.MethodPost, "/api/users/verify", "", gin.H{"token": token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/api/users/login", "", gin.H{
		"email":    username + "@example.com",
		"password": "secret123!",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	data := decodeData(t, w)
	key, _ := data["access_token"].(string)
	require.NotEmpty(t, key)
	return key
}

func TestRouterPublicAndProtectedRoutes(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Protected endpoint without auth should be 401.
	w = env.do(t, http.MethodGet, "/api/circles", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	// Unknown routes return the JSON fallback.
	w = env.do(t, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoginRejectsUnverifiedAccount(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/api/users/signup", "", gin.H{
		"email":                 "pending@example.com",
		"username":              "pending",
		"phone_number":          "+56912345678",
		"password":              "secret123!",
		"password_confirmation": "secret123!",
		"first_name":            "Pending",
		"last_name":             "User",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/api/users/login", "", gin.H{
		"email":    "pending@example.com",
		"password": "secret123!",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "Account is not verified yet")
}

func TestFullRideFlow(t *testing.T) {
	env := newAPIEnv(t)

	adminToken := env.signupAndLogin(t, "admin")
	riderToken := env.signupAndLogin(t, "rider")

	// Admin creates a circle and becomes its first member.
	w := env.do(t, http.MethodPost, "/api/circles", adminToken, gin.H{
		"name":      "Vancouver Commuters",
		"slug_name": "vancity",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Outsiders cannot see the member list.
	w = env.do(t, http.MethodGet, "/api/circles/vancity/members", riderToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	// Admin issues an invitation; the rider consumes it.
	w = env.do(t, http.MethodPost, "/api/circles/vancity/members/admin/invitations", adminToken, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	code, _ := decodeData(t, w)["code"].(string)
	require.NotEmpty(t, code)

	w = env.do(t, http.MethodPost, "/api/circles/vancity/members", riderToken, gin.H{"invitation_code": code})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Admin offers a ride.
	departure := time.Now().Add(time.Hour).UTC()
	w = env.do(t, http.MethodPost, "/api/circles/vancity/rides", adminToken, gin.H{
		"available_seats":    2,
		"departure_location": "Vancouver",
		"departure_date":     departure.Format(time.RFC3339),
		"arrival_location":   "Whistler",
		"arrival_date":       departure.Add(2 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rideID, _ := decodeData(t, w)["id"].(string)
	require.NotEmpty(t, rideID)

	// The rider joins and takes a seat.
	w = env.do(t, http.MethodPost, "/api/circles/vancity/rides/"+rideID+"/join", riderToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.EqualValues(t, 1, decodeData(t, w)["available_seats"])

	// Only the offerer may edit the ride.
	w = env.do(t, http.MethodPatch, "/api/circles/vancity/rides/"+rideID, riderToken, gin.H{"comments": "hijack"})
	require.Equal(t, http.StatusForbidden, w.Code)

	// Rider's membership shows the accumulated counter.
	w = env.do(t, http.MethodGet, "/api/circles/vancity/members/rider", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.EqualValues(t, 1, decodeData(t, w)["rides_taken"])

	// Admin finishes the ride after departure.
	w = env.do(t, http.MethodPost, "/api/circles/vancity/rides/"+rideID+"/finish", adminToken, gin.H{
		"current_time": departure.Add(time.Minute).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, false, decodeData(t, w)["is_active"])
}

func TestProfileUpdateIsOwnerOnly(t *testing.T) {
	env := newAPIEnv(t)

	aliceToken := env.signupAndLogin(t, "alice")
	env.signupAndLogin(t, "bob")

	w := env.do(t, http.MethodPatch, "/api/users/alice/profile", aliceToken, gin.H{"biography": "weekend driver"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodPatch, "/api/users/bob/profile", aliceToken, gin.H{"biography": "not yours"})
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestUserRetrieveIsOwnerOnly(t *testing.T) {
	env := newAPIEnv(t)

	aliceToken := env.signupAndLogin(t, "alice")
	env.signupAndLogin(t, "bob")

	w := env.do(t, http.MethodGet, "/api/users/alice", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "alice", decodeData(t, w)["username"])

	// Another account's detail carries email and phone; keep it owner-only.
	w = env.do(t, http.MethodGet, "/api/users/bob", aliceToken, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.NotContains(t, w.Body.String(), "bob@example.com")
}

func TestSignupRequiresPhoneNumber(t *testing.T) {
	env := newAPIEnv(t)

	w := env.do(t, http.MethodPost, "/api/users/signup", "", gin.H{
		"email":                 "nophone@example.com",
		"username":              "nophone",
		"password":              "secret123!",
		"password_confirmation": "secret123!",
		"first_name":            "No",
		"last_name":             "Phone",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, w.Body.String(), "phone number is required")
}
