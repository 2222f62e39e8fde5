package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/comparteride/cride/internal/services"
	"github.com/comparteride/cride/pkg/response"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CircleHandler exposes circle lifecycle endpoints.
type CircleHandler struct {
	circles *services.CircleService
}

// NewCircleHandler wires a circle handler with its service.
func NewCircleHandler(circles *services.CircleService) *CircleHandler {
	return &CircleHandler{circles: circles}
}

type createCircleRequest struct {
	Name         string `json:"name" validate:"required,max=140"`
	SlugName     string `json:"slug_name" validate:"required,max=40"`
	About        string `json:"about" validate:"omitempty,max=255"`
	IsPublic     *bool  `json:"is_public"`
	IsLimited    bool   `json:"is_limited"`
	MembersLimit int    `json:"members_limit" validate:"omitempty,min=0"`
}

type updateCircleRequest struct {
	Name         *string `json:"name" validate:"omitempty,max=140"`
	About        *string `json:"about" validate:"omitempty,max=255"`
	Picture      *string `json:"picture" validate:"omitempty,max=512"`
	IsPublic     *bool   `json:"is_public"`
	IsLimited    *bool   `json:"is_limited"`
	MembersLimit *int    `json:"members_limit" validate:"omitempty,min=0"`
}

func paging(c *gin.Context) (page, pageSize int) {
	page = parseIntQuery(c, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize = parseIntQuery(c, "page_size", defaultPageSize)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func totalPages(total int64, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	pages := int(total) / pageSize
	if int(total)%pageSize != 0 {
		pages++
	}
	return pages
}

// Create registers a new circle with the caller as its first admin.
func (h *CircleHandler) Create(c *gin.Context) {
	var body createCircleRequest
	if !bindAndValidate(c, &body) {
		return
	}

	circle, err := h.circles.Create(requestContext(c), currentUserID(c), services.CreateCircleInput{
		Name:         body.Name,
		SlugName:     body.SlugName,
		About:        body.About,
		IsPublic:     body.IsPublic,
		IsLimited:    body.IsLimited,
		MembersLimit: body.MembersLimit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, circle)
}

// List returns public circles, optionally filtered by a search query.
func (h *CircleHandler) List(c *gin.Context) {
	page, pageSize := paging(c)

	circles, total, err := h.circles.List(requestContext(c), services.ListCirclesOptions{
		Page:     page,
		PageSize: pageSize,
		Query:    c.Query("search"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, circles, &response.Meta{
		Page:       page,
		PerPage:    pageSize,
		Total:      int(total),
		TotalPages: totalPages(total, pageSize),
	})
}

// Retrieve returns one circle by slug.
func (h *CircleHandler) Retrieve(c *gin.Context) {
	circle, err := h.circles.GetBySlug(requestContext(c), c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, circle)
}

// Update modifies a circle's editable fields. The slug and ride counters are immutable.
func (h *CircleHandler) Update(c *gin.Context) {
	var body updateCircleRequest
	if !bindAndValidate(c, &body) {
		return
	}

	circle, err := h.circles.Update(requestContext(c), c.Param("slug"), services.UpdateCircleInput{
		Name:         body.Name,
		About:        body.About,
		Picture:      body.Picture,
		IsPublic:     body.IsPublic,
		IsLimited:    body.IsLimited,
		MembersLimit: body.MembersLimit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, circle)
}
