// Package authz is the closed set of authorization predicates. Pure: the
// caller supplies the actor and the target, the policy only answers yes/no.
// The service layer converts a "no" into an authorization error naming the
// failed predicate.
package authz

import "github.com/salesdesk/crm-api/internal/domain/entity"

// MayCreate: write permission or any of the three business roles.
func MayCreate(actor entity.UserContext) bool {
	if actor.Has(entity.PermOpportunitiesWrite) {
		return true
	}
	switch actor.Role {
	case entity.RoleAdmin, entity.RoleReviewer, entity.RoleSales:
		return true
	}
	return false
}

// MayView: read permission; Sales only sees opportunities they created.
func MayView(actor entity.UserContext, opp *entity.Opportunity) bool {
	if !actor.Has(entity.PermOpportunitiesRead) {
		return false
	}
	if actor.Role == entity.RoleSales {
		return opp.CreatedBy == actor.ID
	}
	return true
}

// MayUpdate: view plus write permission.
func MayUpdate(actor entity.UserContext, opp *entity.Opportunity) bool {
	return MayView(actor, opp) && actor.Has(entity.PermOpportunitiesWrite)
}

// MayTransition: update plus two stage rules. Sales cannot close a deal as
// Won (that needs the Reviewer/Admin approval flow), and reopening a dropped
// deal is Admin-only.
func MayTransition(actor entity.UserContext, opp *entity.Opportunity, from, to entity.Stage) bool {
	if !MayUpdate(actor, opp) {
		return false
	}
	if to == entity.StageL5Won && actor.Role == entity.RoleSales {
		return false
	}
	if from == entity.StageL7Dropped && actor.Role != entity.RoleAdmin {
		return false
	}
	return true
}

// MayConvertLead: Admin/Reviewer always; Sales only once the lead review is
// approved.
func MayConvertLead(actor entity.UserContext, lead *entity.Lead) bool {
	switch actor.Role {
	case entity.RoleAdmin, entity.RoleReviewer:
		return true
	case entity.RoleSales:
		return lead.ReviewStatus == entity.ReviewStatusApproved
	}
	return false
}

// MayDelete: Admin only.
func MayDelete(actor entity.UserContext) bool {
	return actor.Role == entity.RoleAdmin
}

// MayApproveQuotation: Admin or Reviewer.
func MayApproveQuotation(actor entity.UserContext) bool {
	return actor.Role == entity.RoleAdmin || actor.Role == entity.RoleReviewer
}
