package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/salesdesk/crm-api/internal/domain/entity"
)

// OpportunityCreateRequest is the POST /api/opportunities payload.
type OpportunityCreateRequest struct {
	Name            string           `json:"name" validate:"required,min=3"`
	CompanyID       int64            `json:"company_id" validate:"required,gt=0"`
	ContactID       int64            `json:"contact_id" validate:"required,gt=0"`
	LeadID          *int64           `json:"lead_id,omitempty"`
	DeliveryOwnerID *int64           `json:"delivery_owner_id,omitempty"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	Costing         *decimal.Decimal `json:"costing,omitempty"`
	Probability     *int             `json:"probability,omitempty" validate:"omitempty,min=0,max=100"`
	Scoring         *int             `json:"scoring,omitempty" validate:"omitempty,min=0,max=100"`
	CloseDate       *time.Time       `json:"close_date,omitempty"`
	Justification   string           `json:"justification,omitempty"`
	Notes           string           `json:"notes,omitempty"`
}

// OpportunityPatchRequest is the PUT /api/opportunities/{id} payload.
// Stage and pot_id are never patchable here; stage moves go through the
// stage endpoint.
type OpportunityPatchRequest struct {
	Name            *string          `json:"name,omitempty" validate:"omitempty,min=3"`
	ContactID       *int64           `json:"contact_id,omitempty"`
	DeliveryOwnerID *int64           `json:"delivery_owner_id,omitempty"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	Costing         *decimal.Decimal `json:"costing,omitempty"`
	Scoring         *int             `json:"scoring,omitempty" validate:"omitempty,min=0,max=100"`
	CloseDate       *time.Time       `json:"close_date,omitempty"`
	Justification   *string          `json:"justification,omitempty"`
	Notes           *string          `json:"notes,omitempty"`
}

// StagePatchRequest is the PATCH /api/opportunities/{id}/stage payload.
type StagePatchRequest struct {
	Stage             string         `json:"stage" validate:"required"`
	Notes             string         `json:"notes,omitempty"`
	Probability       *int           `json:"probability,omitempty" validate:"omitempty,min=0,max=100"`
	StageSpecificData map[string]any `json:"stage_specific_data,omitempty"`
}

// CloseRequest is the PATCH /api/opportunities/{id}/close payload.
// CloseDate accepts both date-only (2006-01-02) and RFC 3339.
type CloseRequest struct {
	Status         string `json:"status" validate:"required,oneof=Won Lost Dropped"`
	CloseDate      string `json:"close_date" validate:"required"`
	Notes          string `json:"notes,omitempty"`
	LostReason     string `json:"lost_reason,omitempty"`
	CompetitorName string `json:"competitor_name,omitempty"`
	DropReason     string `json:"drop_reason,omitempty"`
}

// ListFilter is the query-string filter of GET /api/opportunities.
type ListFilter struct {
	Search    string `query:"search"`
	Stage     string `query:"stage"`
	Status    string `query:"status"`
	CompanyID int64  `query:"company_id"`
	LeadID    int64  `query:"lead_id"`
	PageRequest
}

// SalesProcessResponse is one row of the per-stage ledger.
type SalesProcessResponse struct {
	Stage          entity.Stage `json:"stage"`
	StageOrder     int          `json:"stage_order"`
	Status         string       `json:"status"`
	CompletionDate *time.Time   `json:"completion_date,omitempty"`
	Comments       string       `json:"comments,omitempty"`
	CompletedBy    *int64       `json:"completed_by,omitempty"`
}

// OpportunityResponse is the aggregate projection returned by the API.
type OpportunityResponse struct {
	ID              int64            `json:"id"`
	PotID           string           `json:"pot_id"`
	Name            string           `json:"name"`
	CompanyID       int64            `json:"company_id"`
	CompanyName     string           `json:"company_name,omitempty"`
	ContactID       int64            `json:"contact_id"`
	ContactName     string           `json:"contact_name,omitempty"`
	LeadID          *int64           `json:"lead_id,omitempty"`
	DeliveryOwnerID *int64           `json:"delivery_owner_id,omitempty"`
	Stage           entity.Stage     `json:"stage"`
	Status          entity.Status    `json:"status"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	Costing         *decimal.Decimal `json:"costing,omitempty"`
	Probability     int              `json:"probability"`
	Scoring         int              `json:"scoring"`
	CloseDate       *time.Time       `json:"close_date,omitempty"`
	Justification   string           `json:"justification,omitempty"`
	Notes           string           `json:"notes,omitempty"`

	Qualification entity.QualificationGroup `json:"qualification"`
	Demo          entity.DemoGroup          `json:"demo"`
	Proposal      entity.ProposalGroup      `json:"proposal"`
	Negotiation   entity.NegotiationGroup   `json:"negotiation"`
	Won           entity.WonGroup           `json:"won"`
	Lost          entity.LostGroup          `json:"lost"`
	Dropped       entity.DroppedGroup       `json:"dropped"`

	SalesProcesses []SalesProcessResponse `json:"sales_processes,omitempty"`
	Quotations     []QuotationResponse    `json:"quotations,omitempty"`

	CreatedOn time.Time `json:"created_on"`
	UpdatedOn time.Time `json:"updated_on"`
	CreatedBy int64     `json:"created_by"`
}

// OpportunityListResponse pages opportunities.
type OpportunityListResponse struct {
	Items []OpportunityResponse `json:"items"`
	Page  PageResponse          `json:"page"`
}

// AttachmentResponse reports where an uploaded stage artifact landed.
type AttachmentResponse struct {
	Group string `json:"group"`
	Field string `json:"field"`
	Path  string `json:"path"`
}
