package dto

import "github.com/shopspring/decimal"

// ConvertLeadRequest is the POST /api/leads/{lead_id}/convert-to-opportunity payload.
type ConvertLeadRequest struct {
	OpportunityName string           `json:"opportunity_name" validate:"required,min=3"`
	ContactID       int64            `json:"contact_id" validate:"required,gt=0"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	Justification   string           `json:"justification,omitempty"`
	Notes           string           `json:"notes,omitempty"`
}

// CloseInactiveLeadsRequest drives the manual inactive-lead sweep.
type CloseInactiveLeadsRequest struct {
	Days int `json:"days" validate:"omitempty,min=1"`
}

// CloseInactiveLeadsResponse reports how many leads were closed.
type CloseInactiveLeadsResponse struct {
	Closed int64 `json:"closed"`
}
