package api

import (
	"github.com/gin-gonic/gin"

	"github.com/comparteride/cride/internal/handlers"
	"github.com/comparteride/cride/internal/middleware"
	"github.com/comparteride/cride/internal/permissions"
)

func registerRideRoutes(api *gin.RouterGroup, handler *handlers.RideHandler, checker *permissions.Checker) {
	rides := api.Group("/circles/:slug/rides")
	{
		rides.GET("", middleware.RequireOperation(checker, permissions.OpRideList), handler.List)
		rides.POST("", middleware.RequireOperation(checker, permissions.OpRideCreate), handler.Create)
		rides.GET("/:id", middleware.RequireOperation(checker, permissions.OpRideList), handler.Retrieve)
		rides.PUT("/:id", middleware.RequireOperation(checker, permissions.OpRideUpdate), handler.Update)
		rides.PATCH("/:id", middleware.RequireOperation(checker, permissions.OpRideUpdate), handler.Update)
		rides.POST("/:id/join", middleware.RequireOperation(checker, permissions.OpRideJoin), handler.Join)
		rides.POST("/:id/finish", middleware.RequireOperation(checker, permissions.OpRideFinish), handler.Finish)
	}
}
