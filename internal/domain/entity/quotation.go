package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuotationStatus is the sub-state of a quotation.
type QuotationStatus string

const (
	QuotationDraft     QuotationStatus = "Draft"
	QuotationSubmitted QuotationStatus = "Submitted"
	QuotationApproved  QuotationStatus = "Approved"
	QuotationRejected  QuotationStatus = "Rejected"
	QuotationRevised   QuotationStatus = "Revised" // superseded by a newer revision
)

// QuotationLineItem is one priced row of a quotation.
type QuotationLineItem struct {
	Description  string          `json:"description"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Total        decimal.Decimal `json:"total"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	DiscountRate decimal.Decimal `json:"discount_rate"`
}

// CustomerInfo is the company+contact snapshot frozen at quotation creation.
type CustomerInfo struct {
	CompanyName  string `json:"company_name"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
}

// Quotation is a versioned price proposal attached to an opportunity from
// L3_Proposal onward. Revisions chain through ParentQuotationID.
type Quotation struct {
	ID            int64
	QuotationID   string // QUO-YYYY-DDDD
	OpportunityID int64
	Name          string
	QuotationDate time.Time
	ValidUntil    *time.Time

	Amount             decimal.Decimal
	Subtotal           decimal.Decimal
	TaxAmount          decimal.Decimal
	TaxPercentage      decimal.Decimal
	DiscountAmount     decimal.Decimal
	DiscountPercentage decimal.Decimal
	TotalAmount        decimal.Decimal
	Currency           string

	LineItems []QuotationLineItem

	Status            QuotationStatus
	RevisionNumber    int
	ParentQuotationID *int64
	CustomerInfo      CustomerInfo
	FilePath          string

	SubmittedDate *time.Time
	SubmittedBy   *int64
	ApprovedDate  *time.Time
	ApprovedBy    *int64
	RejectedBy    *int64
	RejectReason  string

	Audit
}
