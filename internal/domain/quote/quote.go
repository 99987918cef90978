// Package quote holds the pure rules of the quotation sub-machine: legal
// status moves and the monetary consistency of a quotation document.
package quote

import (
	"github.com/shopspring/decimal"

	"github.com/salesdesk/crm-api/internal/domain/apperr"
	"github.com/salesdesk/crm-api/internal/domain/entity"
)

var hundred = decimal.NewFromInt(100)

// Legal status moves. Revised is the terminal marker stamped on a parent
// when a revision supersedes it; any state may move there.
var transitions = map[entity.QuotationStatus]map[entity.QuotationStatus]bool{
	entity.QuotationDraft: {
		entity.QuotationSubmitted: true,
		entity.QuotationRevised:   true,
	},
	entity.QuotationSubmitted: {
		entity.QuotationApproved: true,
		entity.QuotationRejected: true,
		entity.QuotationRevised:  true,
	},
	entity.QuotationApproved: {
		entity.QuotationRevised: true,
	},
	entity.QuotationRejected: {
		entity.QuotationRevised: true,
	},
	entity.QuotationRevised: {},
}

// CanTransition reports whether the status move is legal.
func CanTransition(from, to entity.QuotationStatus) bool {
	nexts, ok := transitions[from]
	return ok && nexts[to]
}

// Editable reports whether a quotation's fields may still be patched.
func Editable(status entity.QuotationStatus) bool {
	return status == entity.QuotationDraft || status == entity.QuotationRejected
}

// Deletable reports whether a quotation may be soft-deleted. Submitted and
// approved documents are immutable records.
func Deletable(status entity.QuotationStatus) bool {
	return status == entity.QuotationDraft || status == entity.QuotationRejected
}

// Normalize enforces monetary consistency in place:
//
//	subtotal     = Σ line_items.total (item total computed from qty×unit when absent)
//	tax_amount   = subtotal × tax_percentage / 100   (absolute amount wins if both given)
//	discount     = subtotal × discount_percentage / 100 (same rule)
//	total_amount = subtotal + tax_amount − discount_amount
//
// Percentage derivations round half-even to 2 decimals. Returns a
// business_rule or validation error on negative values or out-of-range
// percentages.
func Normalize(q *entity.Quotation) error {
	if q.RevisionNumber < 1 {
		return apperr.BusinessRule("revision_number must be >= 1")
	}
	if q.TaxPercentage.LessThan(decimal.Zero) || q.TaxPercentage.GreaterThan(hundred) {
		return apperr.Validation("tax_percentage", "must be between 0 and 100")
	}
	if q.DiscountPercentage.LessThan(decimal.Zero) || q.DiscountPercentage.GreaterThan(hundred) {
		return apperr.Validation("discount_percentage", "must be between 0 and 100")
	}

	subtotal := decimal.Zero
	for i := range q.LineItems {
		item := &q.LineItems[i]
		if item.Quantity.LessThan(decimal.Zero) || item.UnitPrice.LessThan(decimal.Zero) {
			return apperr.Validation("line_items", "quantity and unit_price must be non-negative")
		}
		if item.Total.IsZero() {
			item.Total = item.Quantity.Mul(item.UnitPrice)
		}
		if item.Total.LessThan(decimal.Zero) {
			return apperr.Validation("line_items", "total must be non-negative")
		}
		subtotal = subtotal.Add(item.Total)
	}
	if len(q.LineItems) > 0 {
		q.Subtotal = subtotal
	}
	if q.Subtotal.LessThan(decimal.Zero) {
		return apperr.Validation("subtotal", "must be non-negative")
	}

	// Absolute amounts win; percentages are recomputed for display.
	switch {
	case !q.TaxAmount.IsZero():
		if q.TaxAmount.LessThan(decimal.Zero) {
			return apperr.Validation("tax_amount", "must be non-negative")
		}
		if q.Subtotal.IsPositive() {
			q.TaxPercentage = q.TaxAmount.Mul(hundred).Div(q.Subtotal).RoundBank(2)
		}
	case !q.TaxPercentage.IsZero():
		q.TaxAmount = q.Subtotal.Mul(q.TaxPercentage).Div(hundred).RoundBank(2)
	}

	switch {
	case !q.DiscountAmount.IsZero():
		if q.DiscountAmount.LessThan(decimal.Zero) {
			return apperr.Validation("discount_amount", "must be non-negative")
		}
		if q.Subtotal.IsPositive() {
			q.DiscountPercentage = q.DiscountAmount.Mul(hundred).Div(q.Subtotal).RoundBank(2)
		}
	case !q.DiscountPercentage.IsZero():
		q.DiscountAmount = q.Subtotal.Mul(q.DiscountPercentage).Div(hundred).RoundBank(2)
	}

	q.TotalAmount = q.Subtotal.Add(q.TaxAmount).Sub(q.DiscountAmount)
	if q.TotalAmount.LessThan(decimal.Zero) {
		return apperr.BusinessRule("total_amount is negative after discount")
	}
	if q.Amount.LessThan(decimal.Zero) {
		return apperr.Validation("amount", "must be non-negative")
	}
	if q.Amount.IsZero() {
		q.Amount = q.TotalAmount
	}
	return nil
}

// CanSubmit checks the submission gate: a positive amount.
func CanSubmit(q *entity.Quotation) error {
	if !CanTransition(q.Status, entity.QuotationSubmitted) {
		return apperr.BusinessRule("only a draft quotation can be submitted")
	}
	if !q.Amount.IsPositive() {
		return apperr.BusinessRule("quotation amount must be greater than zero to submit")
	}
	return nil
}
