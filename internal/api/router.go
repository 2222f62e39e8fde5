package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	iauth "github.com/comparteride/cride/internal/auth"
	"github.com/comparteride/cride/internal/handlers"
	"github.com/comparteride/cride/internal/middleware"
	"github.com/comparteride/cride/internal/permissions"
	"github.com/comparteride/cride/internal/services"
)

// Dependencies bundles the services the router wires into handlers.
type Dependencies struct {
	DB          *gorm.DB
	Tokens      *iauth.TokenService
	Users       *services.UserService
	Circles     *services.CircleService
	Memberships *services.MembershipService
	Rides       *services.RideService
}

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("token service must be provided")
	}
	if deps.Users == nil || deps.Circles == nil || deps.Memberships == nil || deps.Rides == nil {
		return nil, fmt.Errorf("all domain services must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	// Health endpoint (public)
	r.GET("/health", handlers.Health(deps.DB))

	checker, err := permissions.NewChecker(deps.DB)
	if err != nil {
		return nil, err
	}

	userHandler := handlers.NewUserHandler(deps.Users)

	// Public user routes: signup, login, and account verification.
	public := r.Group("/api/users")
	{
		public.POST("/signup", userHandler.Signup)
		public.POST("/login", userHandler.Login)
		public.POST("/verify", userHandler.Verify)
	}

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.Auth(deps.Tokens))

	registerUserRoutes(api, userHandler, checker)
	registerCircleRoutes(api, handlers.NewCircleHandler(deps.Circles), handlers.NewMembershipHandler(deps.Memberships), checker)
	registerRideRoutes(api, handlers.NewRideHandler(deps.Rides), checker)

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
