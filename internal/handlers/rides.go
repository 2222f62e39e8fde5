package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/comparteride/cride/internal/services"
	"github.com/comparteride/cride/pkg/response"
)

// RideHandler exposes the ride lifecycle endpoints, all scoped to a circle.
type RideHandler struct {
	rides *services.RideService
}

// NewRideHandler wires a ride handler with its service.
func NewRideHandler(rides *services.RideService) *RideHandler {
	return &RideHandler{rides: rides}
}

type createRideRequest struct {
	AvailableSeats    int       `json:"available_seats" validate:"required,min=1,max=15"`
	Comments          string    `json:"comments" validate:"omitempty,max=255"`
	DepartureLocation string    `json:"departure_location" validate:"required,max=255"`
	DepartureDate     time.Time `json:"departure_date" validate:"required"`
	ArrivalLocation   string    `json:"arrival_location" validate:"required,max=255"`
	ArrivalDate       time.Time `json:"arrival_date" validate:"required"`
}

type updateRideRequest struct {
	AvailableSeats    *int       `json:"available_seats" validate:"omitempty,min=1,max=15"`
	Comments          *string    `json:"comments" validate:"omitempty,max=255"`
	DepartureLocation *string    `json:"departure_location" validate:"omitempty,max=255"`
	DepartureDate     *time.Time `json:"departure_date"`
	ArrivalLocation   *string    `json:"arrival_location" validate:"omitempty,max=255"`
	ArrivalDate       *time.Time `json:"arrival_date"`
}

type finishRideRequest struct {
	CurrentTime time.Time `json:"current_time" validate:"required"`
}

// Create offers a new ride inside the route's circle.
func (h *RideHandler) Create(c *gin.Context) {
	var body createRideRequest
	if !bindAndValidate(c, &body) {
		return
	}

	ride, err := h.rides.Create(requestContext(c), c.Param("slug"), currentUserID(c), services.CreateRideInput{
		AvailableSeats:    body.AvailableSeats,
		Comments:          body.Comments,
		DepartureLocation: body.DepartureLocation,
		DepartureDate:     body.DepartureDate,
		ArrivalLocation:   body.ArrivalLocation,
		ArrivalDate:       body.ArrivalDate,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, ride)
}

// List returns the circle's rides, newest departure first.
func (h *RideHandler) List(c *gin.Context) {
	page, pageSize := paging(c)

	rides, total, err := h.rides.List(requestContext(c), c.Param("slug"), services.ListRidesOptions{
		Page:     page,
		PageSize: pageSize,
		Upcoming: c.Query("upcoming") == "true",
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, rides, &response.Meta{
		Page:       page,
		PerPage:    pageSize,
		Total:      int(total),
		TotalPages: totalPages(total, pageSize),
	})
}

// Retrieve returns one ride of the circle.
func (h *RideHandler) Retrieve(c *gin.Context) {
	ride, err := h.rides.Get(requestContext(c), c.Param("slug"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, ride)
}

// Update edits a ride before departure. Only the offerer may do this.
func (h *RideHandler) Update(c *gin.Context) {
	var body updateRideRequest
	if !bindAndValidate(c, &body) {
		return
	}

	ride, err := h.rides.Update(requestContext(c), c.Param("slug"), c.Param("id"), currentUserID(c), services.UpdateRideInput{
		AvailableSeats:    body.AvailableSeats,
		Comments:          body.Comments,
		DepartureLocation: body.DepartureLocation,
		DepartureDate:     body.DepartureDate,
		ArrivalLocation:   body.ArrivalLocation,
		ArrivalDate:       body.ArrivalDate,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, ride)
}

// Join books the caller onto the ride, taking one seat atomically.
func (h *RideHandler) Join(c *gin.Context) {
	ride, err := h.rides.Join(requestContext(c), c.Param("slug"), c.Param("id"), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, ride)
}

// Finish marks a departed ride inactive. Only the offerer may do this.
func (h *RideHandler) Finish(c *gin.Context) {
	var body finishRideRequest
	if !bindAndValidate(c, &body) {
		return
	}

	ride, err := h.rides.End(requestContext(c), c.Param("slug"), c.Param("id"), currentUserID(c), body.CurrentTime)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, ride)
}
