package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/salesdesk/crm-api/internal/domain/entity"
)

// LineItemRequest is one priced row in a quotation payload.
type LineItemRequest struct {
	Description  string          `json:"description" validate:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Total        decimal.Decimal `json:"total"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	DiscountRate decimal.Decimal `json:"discount_rate"`
}

// QuotationCreateRequest is the POST /api/opportunities/{id}/quotations
// payload; it is also the new-data body of a revise call.
type QuotationCreateRequest struct {
	Name               string            `json:"quotation_name" validate:"required"`
	QuotationDate      *time.Time        `json:"quotation_date,omitempty"`
	ValidUntil         *time.Time        `json:"valid_until,omitempty"`
	Amount             decimal.Decimal   `json:"amount"`
	Subtotal           decimal.Decimal   `json:"subtotal"`
	TaxAmount          decimal.Decimal   `json:"tax_amount"`
	TaxPercentage      decimal.Decimal   `json:"tax_percentage"`
	DiscountAmount     decimal.Decimal   `json:"discount_amount"`
	DiscountPercentage decimal.Decimal   `json:"discount_percentage"`
	Currency           string            `json:"currency,omitempty"`
	LineItems          []LineItemRequest `json:"line_items,omitempty" validate:"dive"`
}

// QuotationPatchRequest updates a Draft or Rejected quotation.
type QuotationPatchRequest struct {
	Name               *string           `json:"quotation_name,omitempty"`
	QuotationDate      *time.Time        `json:"quotation_date,omitempty"`
	ValidUntil         *time.Time        `json:"valid_until,omitempty"`
	Amount             *decimal.Decimal  `json:"amount,omitempty"`
	Subtotal           *decimal.Decimal  `json:"subtotal,omitempty"`
	TaxAmount          *decimal.Decimal  `json:"tax_amount,omitempty"`
	TaxPercentage      *decimal.Decimal  `json:"tax_percentage,omitempty"`
	DiscountAmount     *decimal.Decimal  `json:"discount_amount,omitempty"`
	DiscountPercentage *decimal.Decimal  `json:"discount_percentage,omitempty"`
	Currency           *string           `json:"currency,omitempty"`
	LineItems          []LineItemRequest `json:"line_items,omitempty" validate:"dive"`
}

// QuotationRejectRequest carries the mandatory rejection reason.
type QuotationRejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// QuotationResponse is the quotation projection returned by the API.
type QuotationResponse struct {
	ID                 int64                      `json:"id"`
	QuotationID        string                     `json:"quotation_id"`
	OpportunityID      int64                      `json:"opportunity_id"`
	Name               string                     `json:"quotation_name"`
	QuotationDate      time.Time                  `json:"quotation_date"`
	ValidUntil         *time.Time                 `json:"valid_until,omitempty"`
	Amount             decimal.Decimal            `json:"amount"`
	Subtotal           decimal.Decimal            `json:"subtotal"`
	TaxAmount          decimal.Decimal            `json:"tax_amount"`
	TaxPercentage      decimal.Decimal            `json:"tax_percentage"`
	DiscountAmount     decimal.Decimal            `json:"discount_amount"`
	DiscountPercentage decimal.Decimal            `json:"discount_percentage"`
	TotalAmount        decimal.Decimal            `json:"total_amount"`
	Currency           string                     `json:"currency"`
	LineItems          []entity.QuotationLineItem `json:"line_items,omitempty"`
	Status             entity.QuotationStatus     `json:"status"`
	RevisionNumber     int                        `json:"revision_number"`
	ParentQuotationID  *int64                     `json:"parent_quotation_id,omitempty"`
	CustomerInfo       entity.CustomerInfo        `json:"customer_info"`
	FilePath           string                     `json:"file_path,omitempty"`
	RejectReason       string                     `json:"reject_reason,omitempty"`
	CreatedOn          time.Time                  `json:"created_on"`
	UpdatedOn          time.Time                  `json:"updated_on"`
}
