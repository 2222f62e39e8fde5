package api

import (
	"github.com/gin-gonic/gin"

	"github.com/comparteride/cride/internal/handlers"
	"github.com/comparteride/cride/internal/middleware"
	"github.com/comparteride/cride/internal/permissions"
)

func registerUserRoutes(api *gin.RouterGroup, handler *handlers.UserHandler, checker *permissions.Checker) {
	users := api.Group("/users")
	{
		users.GET("/:username", middleware.RequireOperation(checker, permissions.OpUserRetrieve), handler.Retrieve)
		users.PUT("/:username/profile", middleware.RequireOperation(checker, permissions.OpUserProfileUpdate), handler.UpdateProfile)
		users.PATCH("/:username/profile", middleware.RequireOperation(checker, permissions.OpUserProfileUpdate), handler.UpdateProfile)
	}
}
