package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comparteride/cride/internal/models"
)

func TestIssueInvitationSpendsNothingUntilConsumed(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewMembershipService(db)
	require.NoError(t, err)

	admin := createTestUser(t, db, "admin")
	_, membership := createTestCircle(t, db, "vancity", admin)

	invitation, err := svc.IssueInvitation(context.Background(), "vancity", admin.ID)
	require.NoError(t, err)
	require.NotEmpty(t, invitation.Code)
	require.Nil(t, invitation.UsedByID)

	// Issuing does not touch the quota; it is spent at consumption.
	var reloaded models.Membership
	require.NoError(t, db.First(&reloaded, "id = ?", membership.ID).Error)
	require.Equal(t, DefaultAdminInvitations, reloaded.RemainingInvitations)
	require.Zero(t, reloaded.InvitationsUsed)
}

func TestIssueInvitationRequiresQuota(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewMembershipService(db)
	require.NoError(t, err)

	admin := createTestUser(t, db, "admin")
	_, membership := createTestCircle(t, db, "vancity", admin)
	require.NoError(t, db.Model(membership).Update("remaining_invitations", 0).Error)

	_, err = svc.IssueInvitation(context.Background(), "vancity", admin.ID)
	require.ErrorIs(t, err, ErrNoInvitationsLeft)
}

func TestConsumeInvitationAdmitsAndSpendsQuota(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewMembershipService(db)
	require.NoError(t, err)

	admin := createTestUser(t, db, "admin")
	joiner := createTestUser(t, db, "joiner")
	circle, issuerMembership := createTestCircle(t, db, "vancity", admin)

	invitation, err := svc.IssueInvitation(context.Background(), "vancity", admin.ID)
	require.NoError(t, err)

	membership, err := svc.ConsumeInvitation(context.Background(), "vancity", invitation.Code, joiner.ID)
	require.NoError(t, err)
	require.True(t, membership.IsActive)
	require.False(t, membership.IsAdmin)
	require.Equal(t, circle.ID, membership.CircleID)

	// The code is now claimed by the joiner.
	var used models.Invitation
	require.NoError(t, db.First(&used, "id = ?", invitation.ID).Error)
	require.NotNil(t, used.UsedByID)
	require.Equal(t, joiner.ID, *used.UsedByID)

	// Quota moves one code from remaining to used on the issuer.
	var reloaded models.Membership
	require.NoError(t, db.First(&reloaded, "id = ?", issuerMembership.ID).Error)
	require.Equal(t, DefaultAdminInvitations-1, reloaded.RemainingInvitations)
	require.Equal(t, 1, reloaded.InvitationsUsed)
}

func TestConsumeInvitationSingleUse(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewMembershipService(db)
	require.NoError(t, err)

	admin := createTestUser(t, db, "admin")
	first := createTestUser(t, db, "first")
	second := createTestUser(t, db, "second")
	createTestCircle(t, db, "vancity", admin)

	invitation, err := svc.IssueInvitation(context.Background(), "vancity", admin.ID)
	require.NoError(t, err)

	_, err = svc.ConsumeInvitation(context.Background(), "vancity", invitation.Code, first.ID)
	require.NoError(t, err)

	_, err = svc.ConsumeInvitation(context.Background(), "vancity", invitation.Code, second.ID)
	require.ErrorIs(t, err, ErrInvitationInvalid)
}

func TestConsumeInvitationRejectsWrongCircleAndUnknownCode(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewMembershipService(db)
	require.NoError(t, err)

	admin := createTestUser(t, db, "admin")
	joiner := createTestUser(t, db, "joiner")
	createTestCircle(t, db, "vancity", admin)
	createTestCircle(t, db, "mtl", admin)

	invitation, err := svc.IssueInvitation(context.Background(), "vancity", admin.ID)
	require.NoError(t, err)

	// A code only admits into the circle it was issued for.
	_, err = svc.ConsumeInvitation(context.Background(), "mtl", invitation.Code, joiner.ID)
	require.ErrorIs(t, err, ErrInvitationInvalid)

	_, err = svc.ConsumeInvitation(context.Background(), "vancity", "not-a-code", joiner.ID)
	require.ErrorIs(t, err, ErrInvitationInvalid)

	_, err = svc.ConsumeInvitation(context.Background(), "vancity", "  ", joiner.ID)
	require.ErrorIs(t, err, ErrInvitationInvalid)
}

func TestConsumeInvitationRejectsExistingMember(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewMembershipService(db)
	require.NoError(t, err)

	admin := createTestUser(t, db, "admin")
	createTestCircle(t, db, "vancity", admin)

	invitation, err := svc.IssueInvitation(context.Background(), "vancity", admin.ID)
	require.NoError(t, err)

	_, err = svc.ConsumeInvitation(context.Background(), "vancity", invitation.Code, admin.ID)
	require.ErrorIs(t, err, ErrAlreadyMember)
}

func TestConsumeInvitationHonoursMembersLimit(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewMembershipService(db)
	require.NoError(t, err)

	admin := createTestUser(t, db, "admin")
	joiner := createTestUser(t, db, "joiner")
	circle, _ := createTestCircle(t, db, "vancity", admin)
	require.NoError(t, db.Model(circle).Updates(map[string]any{"is_limited": true, "members_limit": 1}).Error)

	invitation, err := svc.IssueInvitation(context.Background(), "vancity", admin.ID)
	require.NoError(t, err)

	_, err = svc.ConsumeInvitation(context.Background(), "vancity", invitation.Code, joiner.ID)
	require.ErrorIs(t, err, ErrCircleFull)

	// The failed join does not burn the code.
	var reloaded models.Invitation
	require.NoError(t, db.First(&reloaded, "id = ?", invitation.ID).Error)
	require.Nil(t, reloaded.UsedByID)
}

func TestConsumeInvitationReactivatesFormerMember(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewMembershipService(db)
	require.NoError(t, err)

	admin := createTestUser(t, db, "admin")
	returning := createTestUser(t, db, "returning")
	circle, _ := createTestCircle(t, db, "vancity", admin)

	old := addTestMember(t, db, circle, returning)
	require.NoError(t, db.Model(old).Update("is_active", false).Error)

	invitation, err := svc.IssueInvitation(context.Background(), "vancity", admin.ID)
	require.NoError(t, err)

	membership, err := svc.ConsumeInvitation(context.Background(), "vancity", invitation.Code, returning.ID)
	require.NoError(t, err)
	require.True(t, membership.IsActive)
	require.Equal(t, old.ID, membership.ID)
}

func TestDeactivateKeepsRow(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewMembershipService(db)
	require.NoError(t, err)

	admin := createTestUser(t, db, "admin")
	member := createTestUser(t, db, "member")
	circle, _ := createTestCircle(t, db, "vancity", admin)
	membership := addTestMember(t, db, circle, member)
	require.NoError(t, db.Model(membership).Update("rides_taken", 4).Error)

	require.NoError(t, svc.Deactivate(context.Background(), "vancity", "member"))

	var reloaded models.Membership
	require.NoError(t, db.First(&reloaded, "id = ?", membership.ID).Error)
	require.False(t, reloaded.IsActive)
	require.Equal(t, 4, reloaded.RidesTaken)

	// Deactivated members disappear from the member listing.
	members, err := svc.ListMembers(context.Background(), "vancity")
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, "admin", members[0].User.Username)

	_, err = svc.GetMember(context.Background(), "vancity", "member")
	require.ErrorIs(t, err, ErrMembershipNotFound)
}

func TestListInvitationsScopedToIssuer(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewMembershipService(db)
	require.NoError(t, err)

	admin := createTestUser(t, db, "admin")
	other := createTestUser(t, db, "other")
	circle, _ := createTestCircle(t, db, "vancity", admin)
	otherMembership := addTestMember(t, db, circle, other)
	require.NoError(t, db.Model(otherMembership).Update("remaining_invitations", 2).Error)

	_, err = svc.IssueInvitation(context.Background(), "vancity", admin.ID)
	require.NoError(t, err)
	_, err = svc.IssueInvitation(context.Background(), "vancity", other.ID)
	require.NoError(t, err)

	invitations, err := svc.ListInvitations(context.Background(), "vancity", admin.ID)
	require.NoError(t, err)
	require.Len(t, invitations, 1)
	require.Equal(t, admin.ID, invitations[0].IssuedBy)
}
