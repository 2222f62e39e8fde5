package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/comparteride/cride/internal/models"
	"github.com/comparteride/cride/internal/services"
	"github.com/comparteride/cride/pkg/response"
)

// UserHandler exposes signup, login, verification, and profile endpoints.
type UserHandler struct {
	users *services.UserService
}

// NewUserHandler wires a user handler with its service.
func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

type signupRequest struct {
	Email                string `json:"email" validate:"required,email"`
	Username             string `json:"username" validate:"required,min=3,max=150"`
	PhoneNumber          string `json:"phone_number" validate:"required,phone,max=17"`
	Password             string `json:"password" validate:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,min=8"`
	FirstName            string `json:"first_name" validate:"required,max=150"`
	LastName             string `json:"last_name" validate:"required,max=150"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type verifyRequest struct {
	Token string `json:"token" validate:"required"`
}

type updateProfileRequest struct {
	Biography *string `json:"biography" validate:"omitempty,max=500"`
	Picture   *string `json:"picture" validate:"omitempty,max=512"`
}

type userDetail struct {
	*models.User
	Circles []models.Circle `json:"circles"`
}

// Signup registers a new account and queues the verification email.
func (h *UserHandler) Signup(c *gin.Context) {
	var body signupRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.users.Register(requestContext(c), services.RegisterInput{
		Email:                body.Email,
		Username:             body.Username,
		PhoneNumber:          body.PhoneNumber,
		Password:             body.Password,
		PasswordConfirmation: body.PasswordConfirmation,
		FirstName:            body.FirstName,
		LastName:             body.LastName,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, user)
}

// Login exchanges credentials for the account's access token.
func (h *UserHandler) Login(c *gin.Context) {
	var body loginRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, token, err := h.users.Login(requestContext(c), body.Email, body.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"user":         user,
		"access_token": token,
	})
}

// Verify confirms the account named by an email-confirmation token.
func (h *UserHandler) Verify(c *gin.Context) {
	var body verifyRequest
	if !bindAndValidate(c, &body) {
		return
	}

	if _, err := h.users.Verify(requestContext(c), body.Token); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Congratulation, now go share some rides",
	})
}

// Retrieve returns a user's account details along with the circles they
// actively belong to.
func (h *UserHandler) Retrieve(c *gin.Context) {
	user, circles, err := h.users.GetByUsername(requestContext(c), c.Param("username"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, userDetail{User: user, Circles: circles})
}

// UpdateProfile modifies the biography or picture of the route's user.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var body updateProfileRequest
	if !bindAndValidate(c, &body) {
		return
	}

	user, err := h.users.UpdateProfile(requestContext(c), c.Param("username"), services.UpdateProfileInput{
		Biography: body.Biography,
		Picture:   body.Picture,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, user)
}
