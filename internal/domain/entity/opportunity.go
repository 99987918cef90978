package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stage is a position in the sales pipeline.
type Stage string

const (
	StageL1Prospect      Stage = "L1_Prospect"
	StageL1Qualification Stage = "L1_Qualification"
	StageL2NeedAnalysis  Stage = "L2_Need_Analysis"
	StageL3Proposal      Stage = "L3_Proposal"
	StageL4Negotiation   Stage = "L4_Negotiation"
	StageL5Won           Stage = "L5_Won"
	StageL6Lost          Stage = "L6_Lost"
	StageL7Dropped       Stage = "L7_Dropped"
)

// Status is the overall outcome of an opportunity.
type Status string

const (
	StatusOpen    Status = "Open"
	StatusWon     Status = "Won"
	StatusLost    Status = "Lost"
	StatusDropped Status = "Dropped"
)

// Qualification gate values (L1_Qualification group).
const (
	GoNoGoGo      = "Go"
	GoNoGoNoGo    = "No_Go"
	GoNoGoPending = "Pending"

	QualificationQualified    = "Qualified"
	QualificationNotNow       = "Not_Now"
	QualificationDisqualified = "Disqualified"
)

// QualificationGroup holds the L1_Qualification stage fields.
type QualificationGroup struct {
	RequirementGatheringNotes *string        `json:"requirement_gathering_notes,omitempty"`
	GoNoGoStatus              *string        `json:"go_no_go_status,omitempty"`
	QualificationStatus       *string        `json:"qualification_status,omitempty"`
	QualificationScorecard    map[string]any `json:"qualification_scorecard,omitempty"`
	QualificationCompletedBy  *int64         `json:"qualification_completed_by,omitempty"`
}

// DemoGroup holds the L2_Need_Analysis stage fields.
type DemoGroup struct {
	DemoCompleted                 *bool      `json:"demo_completed,omitempty"`
	DemoDate                      *time.Time `json:"demo_date,omitempty"`
	DemoSummary                   *string    `json:"demo_summary,omitempty"`
	PresentationMaterials         []string   `json:"presentation_materials,omitempty"`
	QualificationMeetingScheduled *bool      `json:"qualification_meeting_scheduled,omitempty"`
	QualificationMeetingDate      *time.Time `json:"qualification_meeting_date,omitempty"`
	QualificationMeetingNotes     *string    `json:"qualification_meeting_notes,omitempty"`
}

// ProposalGroup holds the L3_Proposal stage fields. The quotation_* fields
// are derived from the quotation lineage, never set directly by callers.
type ProposalGroup struct {
	QuotationCreated           *bool      `json:"quotation_created,omitempty"`
	QuotationStatus            *string    `json:"quotation_status,omitempty"`
	QuotationFilePath          *string    `json:"quotation_file_path,omitempty"`
	QuotationVersion           *int       `json:"quotation_version,omitempty"`
	ProposalPrepared           *bool      `json:"proposal_prepared,omitempty"`
	ProposalSubmitted          *bool      `json:"proposal_submitted,omitempty"`
	ProposalSubmissionDate     *time.Time `json:"proposal_submission_date,omitempty"`
	ProposalFilePath           *string    `json:"proposal_file_path,omitempty"`
	PocCompleted               *bool      `json:"poc_completed,omitempty"`
	PocNotes                   *string    `json:"poc_notes,omitempty"`
	SolutionsTeamApprovalNotes *string    `json:"solutions_team_approval_notes,omitempty"`
}

// NegotiationGroup holds the L4_Negotiation stage fields.
type NegotiationGroup struct {
	CustomerDiscussionNotes     *string `json:"customer_discussion_notes,omitempty"`
	ProposalUpdated             *bool   `json:"proposal_updated,omitempty"`
	UpdatedProposalFilePath     *string `json:"updated_proposal_file_path,omitempty"`
	UpdatedProposalSubmitted    *bool   `json:"updated_proposal_submitted,omitempty"`
	NegotiatedQuotationFilePath *string `json:"negotiated_quotation_file_path,omitempty"`
	NegotiationRounds           *int    `json:"negotiation_rounds,omitempty"`
	CommercialApprovalRequired  *bool   `json:"commercial_approval_required,omitempty"`
	CommercialApprovalStatus    *string `json:"commercial_approval_status,omitempty"`
}

// WonGroup holds the L5_Won stage fields.
type WonGroup struct {
	KickoffMeetingScheduled *bool      `json:"kickoff_meeting_scheduled,omitempty"`
	KickoffMeetingDate      *time.Time `json:"kickoff_meeting_date,omitempty"`
	LoiReceived             *bool      `json:"loi_received,omitempty"`
	LoiFilePath             *string    `json:"loi_file_path,omitempty"`
	OrderVerified           *bool      `json:"order_verified,omitempty"`
	HandoffToDelivery       *bool      `json:"handoff_to_delivery,omitempty"`
	DeliveryTeamAssigned    *bool      `json:"delivery_team_assigned,omitempty"`
}

// LostGroup holds the L6_Lost closing fields.
type LostGroup struct {
	LostReason     *string    `json:"lost_reason,omitempty"`
	CompetitorName *string    `json:"competitor_name,omitempty"`
	FollowUpDate   *time.Time `json:"follow_up_date,omitempty"`
}

// DroppedGroup holds the L7_Dropped closing fields.
type DroppedGroup struct {
	DropReason     *string    `json:"drop_reason,omitempty"`
	ReactivateDate *time.Time `json:"reactivate_date,omitempty"`
}

// Opportunity is the aggregate root of the sales pipeline. PotID is the
// external identifier (POT-DDDD) and is immutable after creation.
type Opportunity struct {
	ID              int64
	PotID           string
	Name            string
	CompanyID       int64
	ContactID       int64
	LeadID          *int64
	DeliveryOwnerID *int64

	Stage         Stage
	Status        Status
	Amount        *decimal.Decimal
	Costing       *decimal.Decimal
	Probability   int
	Scoring       int
	CloseDate     *time.Time
	Justification string
	Notes         string

	Qualification QualificationGroup
	Demo          DemoGroup
	Proposal      ProposalGroup
	Negotiation   NegotiationGroup
	Won           WonGroup
	Lost          LostGroup
	Dropped       DroppedGroup

	// Eager-loaded relations.
	Company        *Company
	Contact        *Contact
	Lead           *Lead
	SalesProcesses []*SalesProcess
	Quotations     []*Quotation

	Audit
}

// Terminal reports whether the opportunity sits in a closing stage.
func (o *Opportunity) Terminal() bool {
	switch o.Stage {
	case StageL5Won, StageL6Lost, StageL7Dropped:
		return true
	}
	return false
}
