package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/comparteride/cride/internal/services"
	"github.com/comparteride/cride/pkg/response"
)

// MembershipHandler exposes circle membership and invitation endpoints.
type MembershipHandler struct {
	memberships *services.MembershipService
}

// NewMembershipHandler wires a membership handler with its service.
func NewMembershipHandler(memberships *services.MembershipService) *MembershipHandler {
	return &MembershipHandler{memberships: memberships}
}

type joinCircleRequest struct {
	InvitationCode string `json:"invitation_code" validate:"required"`
}

// List returns the active members of a circle.
func (h *MembershipHandler) List(c *gin.Context) {
	members, err := h.memberships.ListMembers(requestContext(c), c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, members)
}

// Retrieve returns one member of a circle by username.
func (h *MembershipHandler) Retrieve(c *gin.Context) {
	member, err := h.memberships.GetMember(requestContext(c), c.Param("slug"), c.Param("username"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, member)
}

// Leave deactivates the caller's membership. The row survives so accumulated
// ride counters stay attributable.
func (h *MembershipHandler) Leave(c *gin.Context) {
	err := h.memberships.Deactivate(requestContext(c), c.Param("slug"), c.Param("username"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Join consumes an invitation code and admits the caller into the circle.
func (h *MembershipHandler) Join(c *gin.Context) {
	var body joinCircleRequest
	if !bindAndValidate(c, &body) {
		return
	}

	membership, err := h.memberships.ConsumeInvitation(requestContext(c), c.Param("slug"), body.InvitationCode, currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, membership)
}

// Invitations returns the codes the route's member has issued.
func (h *MembershipHandler) Invitations(c *gin.Context) {
	invitations, err := h.memberships.ListInvitations(requestContext(c), c.Param("slug"), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invitations)
}

// IssueInvitation mints a fresh single-use code against the caller's quota.
func (h *MembershipHandler) IssueInvitation(c *gin.Context) {
	invitation, err := h.memberships.IssueInvitation(requestContext(c), c.Param("slug"), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, invitation)
}
