package api

import (
	"github.com/gin-gonic/gin"

	"github.com/comparteride/cride/internal/handlers"
	"github.com/comparteride/cride/internal/middleware"
	"github.com/comparteride/cride/internal/permissions"
)

func registerCircleRoutes(api *gin.RouterGroup, circles *handlers.CircleHandler, members *handlers.MembershipHandler, checker *permissions.Checker) {
	group := api.Group("/circles")
	{
		group.GET("", middleware.RequireOperation(checker, permissions.OpCircleList), circles.List)
		group.POST("", middleware.RequireOperation(checker, permissions.OpCircleCreate), circles.Create)
		group.GET("/:slug", middleware.RequireOperation(checker, permissions.OpCircleRetrieve), circles.Retrieve)
		group.PUT("/:slug", middleware.RequireOperation(checker, permissions.OpCircleUpdate), circles.Update)
		group.PATCH("/:slug", middleware.RequireOperation(checker, permissions.OpCircleUpdate), circles.Update)

		group.GET("/:slug/members", middleware.RequireOperation(checker, permissions.OpMembershipList), members.List)
		group.POST("/:slug/members", middleware.RequireOperation(checker, permissions.OpCircleJoin), members.Join)
		group.GET("/:slug/members/:username", middleware.RequireOperation(checker, permissions.OpMembershipRetrieve), members.Retrieve)
		group.DELETE("/:slug/members/:username", middleware.RequireOperation(checker, permissions.OpMembershipDelete), members.Leave)
		group.GET("/:slug/members/:username/invitations", middleware.RequireOperation(checker, permissions.OpMembershipInvitations), members.Invitations)
		group.POST("/:slug/members/:username/invitations", middleware.RequireOperation(checker, permissions.OpMembershipInvitations), members.IssueInvitation)
	}
}
