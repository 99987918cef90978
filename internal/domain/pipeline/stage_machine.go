// Package pipeline encodes the sales pipeline: which stage moves are legal,
// what each stage requires before entry, and the probability a stage maps to.
// Everything here is pure; nothing suspends or touches storage.
package pipeline

import (
	"fmt"

	"github.com/salesdesk/crm-api/internal/domain/entity"
)

// Display percentage per stage. Terminal loss stages map to zero.
var stagePercentage = map[entity.Stage]int{
	entity.StageL1Prospect:      5,
	entity.StageL1Qualification: 15,
	entity.StageL2NeedAnalysis:  40,
	entity.StageL3Proposal:      60,
	entity.StageL4Negotiation:   80,
	entity.StageL5Won:           100,
	entity.StageL6Lost:          0,
	entity.StageL7Dropped:       0,
}

// Pipeline order of the five working stages plus Won. Terminals L6/L7 have
// no order; they are reachable from any working stage.
var stageOrder = map[entity.Stage]int{
	entity.StageL1Prospect:      0,
	entity.StageL1Qualification: 1,
	entity.StageL2NeedAnalysis:  2,
	entity.StageL3Proposal:      3,
	entity.StageL4Negotiation:   4,
	entity.StageL5Won:           5,
}

// Explicit forward/terminal edges.
var transitions = map[entity.Stage]map[entity.Stage]bool{
	entity.StageL1Prospect: {
		entity.StageL1Qualification: true,
		entity.StageL7Dropped:       true,
	},
	entity.StageL1Qualification: {
		entity.StageL2NeedAnalysis: true,
		entity.StageL6Lost:         true,
		entity.StageL7Dropped:      true,
	},
	entity.StageL2NeedAnalysis: {
		entity.StageL3Proposal: true,
		entity.StageL6Lost:     true,
		entity.StageL7Dropped:  true,
	},
	entity.StageL3Proposal: {
		entity.StageL4Negotiation: true,
		entity.StageL6Lost:        true,
		entity.StageL7Dropped:     true,
	},
	entity.StageL4Negotiation: {
		entity.StageL5Won:     true,
		entity.StageL6Lost:    true,
		entity.StageL7Dropped: true,
	},
	entity.StageL5Won:  {},
	entity.StageL6Lost: {},
	// The only outbound edge from a terminal: admin reopen back to prospect.
	entity.StageL7Dropped: {
		entity.StageL1Prospect: true,
	},
}

// Stage-specific fields accepted when entering each stage. Used to validate
// the stage_specific_data payload of a transition.
var requiredFields = map[entity.Stage][]string{
	entity.StageL1Qualification: {
		"requirement_gathering_notes", "go_no_go_status", "qualification_status",
		"qualification_scorecard", "qualification_completed_by",
	},
	entity.StageL2NeedAnalysis: {
		"demo_completed", "demo_date", "demo_summary", "presentation_materials",
		"qualification_meeting_scheduled", "qualification_meeting_date", "qualification_meeting_notes",
	},
	entity.StageL3Proposal: {
		"proposal_prepared", "proposal_submitted", "proposal_submission_date", "proposal_file_path",
		"poc_completed", "poc_notes", "solutions_team_approval_notes",
	},
	entity.StageL4Negotiation: {
		"customer_discussion_notes", "proposal_updated", "updated_proposal_file_path",
		"updated_proposal_submitted", "negotiated_quotation_file_path", "negotiation_rounds",
		"commercial_approval_required", "commercial_approval_status",
	},
	entity.StageL5Won: {
		"kickoff_meeting_scheduled", "kickoff_meeting_date", "loi_received", "loi_file_path",
		"order_verified", "handoff_to_delivery", "delivery_team_assigned",
	},
	entity.StageL6Lost: {
		"lost_reason", "competitor_name", "follow_up_date",
	},
	entity.StageL7Dropped: {
		"drop_reason", "reactivate_date",
	},
}

// Violation is one unmet precondition of a stage move.
type Violation struct {
	Field string
	Rule  string
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Rule
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Rule)
}

// ValidStage reports whether s is one of the eight pipeline stages.
func ValidStage(s entity.Stage) bool {
	_, ok := stagePercentage[s]
	return ok
}

// Allowed reports whether the move from -> to is a legal edge. Forward moves
// follow the explicit edge table; moving backward by exactly one working
// stage is permitted everywhere except out of terminal states.
func Allowed(from, to entity.Stage) bool {
	if from == to {
		return false
	}
	if nexts, ok := transitions[from]; ok && nexts[to] {
		return true
	}
	fi, fromWorking := stageOrder[from]
	ti, toWorking := stageOrder[to]
	if !fromWorking || !toWorking {
		return false
	}
	// One step back is allowed, but never out of Won.
	return from != entity.StageL5Won && ti == fi-1
}

// Terminal reports whether s is a closing stage.
func Terminal(s entity.Stage) bool {
	return s == entity.StageL5Won || s == entity.StageL6Lost || s == entity.StageL7Dropped
}

// RequiredFields lists the stage-specific field names of a stage.
func RequiredFields(s entity.Stage) []string {
	return requiredFields[s]
}

// DeriveProbability returns the percentage mapped to the stage. When the
// caller supplies an override it is honored within ±10 of the mapping, then
// clamped to [0,100]. Terminal stages ignore overrides.
func DeriveProbability(s entity.Stage, override *int) int {
	mapped := stagePercentage[s]
	if Terminal(s) || override == nil {
		return mapped
	}
	p := *override
	if p < mapped-10 {
		p = mapped - 10
	}
	if p > mapped+10 {
		p = mapped + 10
	}
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return p
}

// StagePercentage returns the raw display percentage of a stage.
func StagePercentage(s entity.Stage) int {
	return stagePercentage[s]
}

// StageOrder returns the 1-based ledger order of a working stage (the five
// stages tracked by SalesProcess records) and whether the stage has one.
func StageOrder(s entity.Stage) (int, bool) {
	if s == entity.StageL5Won || Terminal(s) {
		return 0, false
	}
	i, ok := stageOrder[s]
	if !ok {
		return 0, false
	}
	return i + 1, true
}

// OrderIndex returns the 0-based pipeline position of a working stage or
// Won, and whether the stage has one. Terminal loss stages have none.
func OrderIndex(s entity.Stage) (int, bool) {
	i, ok := stageOrder[s]
	return i, ok
}

// WorkingStages lists the five ledgered stages in pipeline order.
func WorkingStages() []entity.Stage {
	return []entity.Stage{
		entity.StageL1Prospect,
		entity.StageL1Qualification,
		entity.StageL2NeedAnalysis,
		entity.StageL3Proposal,
		entity.StageL4Negotiation,
	}
}

// AdvancementPreconditions returns the unmet gates for moving opp to the
// given stage. Empty means the move is clear (assuming Allowed already
// holds). Gates only apply to forward movement; stepping back never
// re-checks them.
func AdvancementPreconditions(opp *entity.Opportunity, to entity.Stage) []Violation {
	var violations []Violation

	fi, fromWorking := stageOrder[opp.Stage]
	ti, toWorking := stageOrder[to]
	if fromWorking && toWorking && ti < fi {
		return nil
	}

	switch to {
	case entity.StageL2NeedAnalysis:
		if deref(opp.Qualification.QualificationStatus) != entity.QualificationQualified {
			violations = append(violations, Violation{Field: "qualification_status", Rule: "must be Qualified to advance"})
		}
		if deref(opp.Qualification.GoNoGoStatus) != entity.GoNoGoGo {
			violations = append(violations, Violation{Field: "go_no_go_status", Rule: "must be Go to advance"})
		}
	case entity.StageL3Proposal:
		if !derefBool(opp.Demo.DemoCompleted) {
			violations = append(violations, Violation{Field: "demo_completed", Rule: "demo must be completed to advance"})
		}
	case entity.StageL4Negotiation:
		if !hasApprovedQuotation(opp) {
			violations = append(violations, Violation{Field: "quotation_status", Rule: "an approved quotation is required"})
		}
	case entity.StageL5Won:
		if derefBool(opp.Negotiation.CommercialApprovalRequired) &&
			deref(opp.Negotiation.CommercialApprovalStatus) != "Approved" {
			violations = append(violations, Violation{Field: "commercial_approval_status", Rule: "commercial approval is pending"})
		}
	case entity.StageL6Lost:
		if deref(opp.Lost.LostReason) == "" {
			violations = append(violations, Violation{Field: "lost_reason", Rule: "required when closing as Lost"})
		}
	case entity.StageL7Dropped:
		if deref(opp.Dropped.DropReason) == "" {
			violations = append(violations, Violation{Field: "drop_reason", Rule: "required when closing as Dropped"})
		}
	}

	return violations
}

func hasApprovedQuotation(opp *entity.Opportunity) bool {
	for _, q := range opp.Quotations {
		if q.Status == entity.QuotationApproved && q.IsActive {
			return true
		}
	}
	// Fall back to the derived flag when quotations were not loaded.
	return deref(opp.Proposal.QuotationStatus) == string(entity.QuotationApproved)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefBool(p *bool) bool {
	return p != nil && *p
}
