package authz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/salesdesk/crm-api/internal/domain/authz"
	"github.com/salesdesk/crm-api/internal/domain/entity"
)

func actorWith(role entity.Role, perms ...string) entity.UserContext {
	return entity.UserContext{ID: 7, Role: role, Permissions: perms}
}

func fullActor(role entity.Role) entity.UserContext {
	return actorWith(role, entity.PermOpportunitiesRead, entity.PermOpportunitiesWrite)
}

// ──────────────────────────────────────────────────────────────────────────────
// Visibility
// ──────────────────────────────────────────────────────────────────────────────

func TestMayView_SalesSeesOnlyOwnDeals(t *testing.T) {
	own := &entity.Opportunity{Audit: entity.Audit{CreatedBy: 7}}
	other := &entity.Opportunity{Audit: entity.Audit{CreatedBy: 99}}

	sales := fullActor(entity.RoleSales)
	assert.True(t, authz.MayView(sales, own))
	assert.False(t, authz.MayView(sales, other), "Sales must not see a colleague's deal")

	// Reviewer and Admin see everything.
	assert.True(t, authz.MayView(fullActor(entity.RoleReviewer), other))
	assert.True(t, authz.MayView(fullActor(entity.RoleAdmin), other))
}

func TestMayView_RequiresReadPermission(t *testing.T) {
	opp := &entity.Opportunity{Audit: entity.Audit{CreatedBy: 7}}
	noRead := actorWith(entity.RoleAdmin, entity.PermOpportunitiesWrite)
	assert.False(t, authz.MayView(noRead, opp))
}

func TestMayUpdate_RequiresWritePermission(t *testing.T) {
	opp := &entity.Opportunity{Audit: entity.Audit{CreatedBy: 7}}
	readOnly := actorWith(entity.RoleReviewer, entity.PermOpportunitiesRead)
	assert.False(t, authz.MayUpdate(readOnly, opp))
	assert.True(t, authz.MayUpdate(fullActor(entity.RoleReviewer), opp))
}

// ──────────────────────────────────────────────────────────────────────────────
// Stage transitions
// ──────────────────────────────────────────────────────────────────────────────

func TestMayTransition_SalesCannotCloseAsWon(t *testing.T) {
	opp := &entity.Opportunity{Audit: entity.Audit{CreatedBy: 7}}

	assert.False(t, authz.MayTransition(fullActor(entity.RoleSales), opp,
		entity.StageL4Negotiation, entity.StageL5Won))
	assert.True(t, authz.MayTransition(fullActor(entity.RoleReviewer), opp,
		entity.StageL4Negotiation, entity.StageL5Won))
	assert.True(t, authz.MayTransition(fullActor(entity.RoleAdmin), opp,
		entity.StageL4Negotiation, entity.StageL5Won))

	// Sales can still make every other move on their own deal.
	assert.True(t, authz.MayTransition(fullActor(entity.RoleSales), opp,
		entity.StageL3Proposal, entity.StageL4Negotiation))
}

func TestMayTransition_ReopenDroppedIsAdminOnly(t *testing.T) {
	opp := &entity.Opportunity{Audit: entity.Audit{CreatedBy: 7}}

	assert.True(t, authz.MayTransition(fullActor(entity.RoleAdmin), opp,
		entity.StageL7Dropped, entity.StageL1Prospect))
	assert.False(t, authz.MayTransition(fullActor(entity.RoleReviewer), opp,
		entity.StageL7Dropped, entity.StageL1Prospect))
	assert.False(t, authz.MayTransition(fullActor(entity.RoleSales), opp,
		entity.StageL7Dropped, entity.StageL1Prospect))
}

// ──────────────────────────────────────────────────────────────────────────────
// Leads, deletion, quotation approval
// ──────────────────────────────────────────────────────────────────────────────

func TestMayConvertLead_SalesNeedsApprovedReview(t *testing.T) {
	approved := &entity.Lead{ReviewStatus: entity.ReviewStatusApproved}
	pending := &entity.Lead{ReviewStatus: "Pending"}

	assert.True(t, authz.MayConvertLead(fullActor(entity.RoleSales), approved))
	assert.False(t, authz.MayConvertLead(fullActor(entity.RoleSales), pending))

	// Admin and Reviewer convert regardless of review status.
	assert.True(t, authz.MayConvertLead(fullActor(entity.RoleAdmin), pending))
	assert.True(t, authz.MayConvertLead(fullActor(entity.RoleReviewer), pending))
}

func TestMayDelete_AdminOnly(t *testing.T) {
	assert.True(t, authz.MayDelete(fullActor(entity.RoleAdmin)))
	assert.False(t, authz.MayDelete(fullActor(entity.RoleReviewer)))
	assert.False(t, authz.MayDelete(fullActor(entity.RoleSales)))
}

func TestMayApproveQuotation(t *testing.T) {
	assert.True(t, authz.MayApproveQuotation(fullActor(entity.RoleAdmin)))
	assert.True(t, authz.MayApproveQuotation(fullActor(entity.RoleReviewer)))
	assert.False(t, authz.MayApproveQuotation(fullActor(entity.RoleSales)))
}
