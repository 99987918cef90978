package opportunity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/salesdesk/crm-api/internal/application/dto"
	"github.com/salesdesk/crm-api/internal/domain/apperr"
	"github.com/salesdesk/crm-api/internal/domain/authz"
	"github.com/salesdesk/crm-api/internal/domain/entity"
	"github.com/salesdesk/crm-api/internal/domain/pipeline"
	"github.com/salesdesk/crm-api/internal/domain/quote"
	"github.com/salesdesk/crm-api/internal/domain/repository"
	"github.com/salesdesk/crm-api/pkg/logger"
)

// quotationRevisionRequired is the derived status shown on the opportunity
// when the latest quotation was rejected.
const quotationRevisionRequired = "Revision_Required"

// QuotationService runs the quotation sub-machine. Every mutation touches the
// owning opportunity row under its optimistic lock, so two users cannot race
// the same lineage.
type QuotationService struct {
	txRunner   TxRunner
	opps       repository.OpportunityRepository
	quotations repository.QuotationRepository
	pdf        QuotationPDFGenerator
	blobs      BlobStore
	audit      AuditSink
	log        *logger.Logger
}

func NewQuotationService(
	txRunner TxRunner,
	opps repository.OpportunityRepository,
	quotations repository.QuotationRepository,
	pdf QuotationPDFGenerator,
	blobs BlobStore,
	audit AuditSink,
	log *logger.Logger,
) *QuotationService {
	return &QuotationService{
		txRunner:   txRunner,
		opps:       opps,
		quotations: quotations,
		pdf:        pdf,
		blobs:      blobs,
		audit:      audit,
		log:        log,
	}
}

// Create attaches a new Draft quotation to an opportunity that has reached
// L3_Proposal. Customer details are frozen into the document at this moment.
func (s *QuotationService) Create(ctx context.Context, opportunityID int64, in dto.QuotationCreateRequest, actor entity.UserContext) (*dto.QuotationResponse, error) {
	var out *dto.QuotationResponse
	err := s.mutate(ctx, opportunityID, actor, func(r Repos, opp *entity.Opportunity) error {
		if err := requireProposalStage(opp); err != nil {
			return err
		}

		now := time.Now()
		q := &entity.Quotation{
			OpportunityID:      opp.ID,
			Name:               strings.TrimSpace(in.Name),
			QuotationDate:      now,
			ValidUntil:         in.ValidUntil,
			Amount:             in.Amount,
			Subtotal:           in.Subtotal,
			TaxAmount:          in.TaxAmount,
			TaxPercentage:      in.TaxPercentage,
			DiscountAmount:     in.DiscountAmount,
			DiscountPercentage: in.DiscountPercentage,
			Currency:           in.Currency,
			Status:             entity.QuotationDraft,
			RevisionNumber:     1,
			CustomerInfo:       customerSnapshot(opp),
		}
		if in.QuotationDate != nil {
			q.QuotationDate = *in.QuotationDate
		}
		if q.Currency == "" {
			q.Currency = "INR"
		}
		for _, item := range in.LineItems {
			q.LineItems = append(q.LineItems, entity.QuotationLineItem(item))
		}
		q.CreatedOn = now
		q.UpdatedOn = now
		q.CreatedBy = actor.ID
		q.UpdatedBy = actor.ID
		q.IsActive = true

		if err := quote.Normalize(q); err != nil {
			return err
		}
		if err := r.Quotations.Create(ctx, q); err != nil {
			return err
		}
		opp.Quotations = append(opp.Quotations, q)
		syncQuotationDerived(opp, q)
		out = toQuotationResponse(q)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, "quotation.created", out.QuotationID, nil)
	return out, nil
}

// Get loads one quotation after an ownership check on its opportunity.
func (s *QuotationService) Get(ctx context.Context, id int64, actor entity.UserContext) (*dto.QuotationResponse, error) {
	q, opp, err := s.loadPair(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.MayView(actor, opp) {
		return nil, apperr.Authorization("may_view")
	}
	return toQuotationResponse(q), nil
}

// ListByOpportunity returns the full revision history, newest first left to
// the repository's ordering.
func (s *QuotationService) ListByOpportunity(ctx context.Context, opportunityID int64, actor entity.UserContext) ([]dto.QuotationResponse, error) {
	opp, err := s.loadOpportunity(ctx, opportunityID)
	if err != nil {
		return nil, err
	}
	if !authz.MayView(actor, opp) {
		return nil, apperr.Authorization("may_view")
	}
	items, err := s.quotations.ListByOpportunity(ctx, opp.ID)
	if err != nil {
		return nil, err
	}
	resp := make([]dto.QuotationResponse, 0, len(items))
	for _, q := range items {
		resp = append(resp, *toQuotationResponse(q))
	}
	return resp, nil
}

// Update patches a Draft or Rejected quotation and re-normalizes the money.
func (s *QuotationService) Update(ctx context.Context, id int64, in dto.QuotationPatchRequest, actor entity.UserContext) (*dto.QuotationResponse, error) {
	var out *dto.QuotationResponse
	err := s.mutateQuotation(ctx, id, actor, func(r Repos, opp *entity.Opportunity, q *entity.Quotation) error {
		if !quote.Editable(q.Status) {
			return apperr.BusinessRule(fmt.Sprintf("a %s quotation cannot be edited", q.Status))
		}
		applyQuotationPatch(q, in)
		if err := quote.Normalize(q); err != nil {
			return err
		}
		q.Touch(actor.ID, time.Now())
		if err := r.Quotations.Update(ctx, q); err != nil {
			return err
		}
		out = toQuotationResponse(q)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, "quotation.updated", out.QuotationID, nil)
	return out, nil
}

// Submit moves Draft -> Submitted, renders the printable document, stores it
// and records the file path on both the quotation and the opportunity.
func (s *QuotationService) Submit(ctx context.Context, id int64, actor entity.UserContext) (*dto.QuotationResponse, error) {
	var out *dto.QuotationResponse
	err := s.mutateQuotation(ctx, id, actor, func(r Repos, opp *entity.Opportunity, q *entity.Quotation) error {
		if err := quote.CanSubmit(q); err != nil {
			return err
		}

		doc, err := s.pdf.Generate(ctx, q)
		if err != nil {
			return apperr.External("quotation pdf generation failed", err)
		}
		key := fmt.Sprintf("quotations/%s/rev-%d.pdf", q.QuotationID, q.RevisionNumber)
		path, err := s.blobs.Put(ctx, key, doc, "application/pdf")
		if err != nil {
			return apperr.External("blob store write failed", err)
		}

		now := time.Now()
		q.Status = entity.QuotationSubmitted
		q.FilePath = path
		q.SubmittedDate = &now
		q.SubmittedBy = &actor.ID
		q.Touch(actor.ID, now)
		if err := r.Quotations.Update(ctx, q); err != nil {
			return err
		}
		syncQuotationDerived(opp, q)
		out = toQuotationResponse(q)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, "quotation.submitted", out.QuotationID, map[string]any{"file_path": out.FilePath})
	return out, nil
}

// Approve moves Submitted -> Approved. Reviewer or Admin only.
func (s *QuotationService) Approve(ctx context.Context, id int64, actor entity.UserContext) (*dto.QuotationResponse, error) {
	var out *dto.QuotationResponse
	err := s.mutateQuotation(ctx, id, actor, func(r Repos, opp *entity.Opportunity, q *entity.Quotation) error {
		if !authz.MayApproveQuotation(actor) {
			return apperr.Authorization("may_approve_quotation")
		}
		if !quote.CanTransition(q.Status, entity.QuotationApproved) {
			return apperr.BusinessRule(fmt.Sprintf("a %s quotation cannot be approved", q.Status))
		}
		now := time.Now()
		q.Status = entity.QuotationApproved
		q.ApprovedDate = &now
		q.ApprovedBy = &actor.ID
		q.Touch(actor.ID, now)
		if err := r.Quotations.Update(ctx, q); err != nil {
			return err
		}
		syncQuotationDerived(opp, q)
		out = toQuotationResponse(q)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, "quotation.approved", out.QuotationID, nil)
	return out, nil
}

// Reject moves Submitted -> Rejected with a mandatory reason; the owning
// opportunity shows Revision_Required until a new revision goes through.
func (s *QuotationService) Reject(ctx context.Context, id int64, in dto.QuotationRejectRequest, actor entity.UserContext) (*dto.QuotationResponse, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, apperr.Validation("reason", "a rejection reason is required")
	}
	var out *dto.QuotationResponse
	err := s.mutateQuotation(ctx, id, actor, func(r Repos, opp *entity.Opportunity, q *entity.Quotation) error {
		if !authz.MayApproveQuotation(actor) {
			return apperr.Authorization("may_approve_quotation")
		}
		if !quote.CanTransition(q.Status, entity.QuotationRejected) {
			return apperr.BusinessRule(fmt.Sprintf("a %s quotation cannot be rejected", q.Status))
		}
		q.Status = entity.QuotationRejected
		q.RejectedBy = &actor.ID
		q.RejectReason = strings.TrimSpace(in.Reason)
		q.Touch(actor.ID, time.Now())
		if err := r.Quotations.Update(ctx, q); err != nil {
			return err
		}
		syncQuotationDerived(opp, q)
		out = toQuotationResponse(q)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, "quotation.rejected", out.QuotationID, map[string]any{"reason": in.Reason})
	return out, nil
}

// Revise supersedes a quotation with a fresh Draft revision. The parent is
// stamped Revised and the child continues the lineage one revision higher.
func (s *QuotationService) Revise(ctx context.Context, id int64, in dto.QuotationCreateRequest, actor entity.UserContext) (*dto.QuotationResponse, error) {
	var out *dto.QuotationResponse
	err := s.mutateQuotation(ctx, id, actor, func(r Repos, opp *entity.Opportunity, parent *entity.Quotation) error {
		if !quote.CanTransition(parent.Status, entity.QuotationRevised) {
			return apperr.BusinessRule(fmt.Sprintf("a %s quotation cannot be revised", parent.Status))
		}

		now := time.Now()
		parentID := parent.ID
		child := &entity.Quotation{
			OpportunityID:      opp.ID,
			Name:               parent.Name,
			QuotationDate:      now,
			ValidUntil:         parent.ValidUntil,
			Amount:             parent.Amount,
			Subtotal:           parent.Subtotal,
			TaxAmount:          parent.TaxAmount,
			TaxPercentage:      parent.TaxPercentage,
			DiscountAmount:     parent.DiscountAmount,
			DiscountPercentage: parent.DiscountPercentage,
			Currency:           parent.Currency,
			LineItems:          append([]entity.QuotationLineItem(nil), parent.LineItems...),
			Status:             entity.QuotationDraft,
			RevisionNumber:     parent.RevisionNumber + 1,
			ParentQuotationID:  &parentID,
			CustomerInfo:       parent.CustomerInfo,
		}
		applyRevisionOverrides(child, in)
		child.CreatedOn = now
		child.UpdatedOn = now
		child.CreatedBy = actor.ID
		child.UpdatedBy = actor.ID
		child.IsActive = true
		if err := quote.Normalize(child); err != nil {
			return err
		}

		parent.Status = entity.QuotationRevised
		parent.Touch(actor.ID, now)
		if err := r.Quotations.Update(ctx, parent); err != nil {
			return err
		}
		if err := r.Quotations.Create(ctx, child); err != nil {
			return err
		}
		opp.Quotations = append(opp.Quotations, child)
		syncQuotationDerived(opp, child)
		out = toQuotationResponse(child)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, "quotation.revised", out.QuotationID, map[string]any{"revision": out.RevisionNumber})
	return out, nil
}

// Delete soft-deletes a Draft or Rejected quotation. Deleting a revision
// whose parent was stamped Revised puts the parent back into the status its
// review stamps prove it held.
func (s *QuotationService) Delete(ctx context.Context, id int64, actor entity.UserContext) error {
	var quoID string
	err := s.mutateQuotation(ctx, id, actor, func(r Repos, opp *entity.Opportunity, q *entity.Quotation) error {
		if !quote.Deletable(q.Status) {
			return apperr.BusinessRule(fmt.Sprintf("a %s quotation cannot be deleted", q.Status))
		}
		if err := r.Quotations.SoftDelete(ctx, q.ID, actor.ID); err != nil {
			return err
		}
		quoID = q.QuotationID

		var latest *entity.Quotation
		if q.ParentQuotationID != nil {
			parent, err := r.Quotations.GetByID(ctx, *q.ParentQuotationID)
			if err != nil {
				return err
			}
			if parent != nil && parent.Status == entity.QuotationRevised {
				parent.Status = restoredStatus(parent)
				parent.Touch(actor.ID, time.Now())
				if err := r.Quotations.Update(ctx, parent); err != nil {
					return err
				}
				latest = parent
			}
		}
		if latest == nil {
			remaining, err := r.Quotations.ListByOpportunity(ctx, opp.ID)
			if err != nil {
				return err
			}
			for _, rem := range remaining {
				if rem.ID == q.ID {
					continue
				}
				if latest == nil || rem.RevisionNumber > latest.RevisionNumber {
					latest = rem
				}
			}
		}
		if latest == nil {
			opp.Proposal.QuotationCreated = nil
			opp.Proposal.QuotationStatus = nil
			opp.Proposal.QuotationFilePath = nil
			opp.Proposal.QuotationVersion = nil
			return nil
		}
		syncQuotationDerived(opp, latest)
		return nil
	})
	if err != nil {
		return err
	}
	s.emitAudit(ctx, actor, "quotation.deleted", quoID, nil)
	return nil
}

// mutate runs fn against the opportunity under its optimistic lock and
// commits the derived quotation fields in the same transaction.
func (s *QuotationService) mutate(ctx context.Context, opportunityID int64, actor entity.UserContext, fn func(r Repos, opp *entity.Opportunity) error) error {
	var err error
	for attempt := 1; attempt <= casRetries; attempt++ {
		err = s.mutateOnce(ctx, opportunityID, actor, fn)
		if err == nil || !apperr.IsCode(err, apperr.CodeConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
	return err
}

func (s *QuotationService) mutateOnce(ctx context.Context, opportunityID int64, actor entity.UserContext, fn func(r Repos, opp *entity.Opportunity) error) error {
	opp, err := s.loadOpportunity(ctx, opportunityID)
	if err != nil {
		return err
	}
	if !authz.MayUpdate(actor, opp) {
		return apperr.Authorization("may_update")
	}
	expected := opp.UpdatedOn
	return s.txRunner.Run(ctx, func(r Repos) error {
		if err := fn(r, opp); err != nil {
			return err
		}
		opp.Touch(actor.ID, time.Now())
		return r.Opportunities.Update(ctx, opp, expected)
	})
}

// mutateQuotation resolves the quotation first, then runs the mutation under
// the owning opportunity's lock.
func (s *QuotationService) mutateQuotation(ctx context.Context, id int64, actor entity.UserContext, fn func(r Repos, opp *entity.Opportunity, q *entity.Quotation) error) error {
	q, _, err := s.loadPair(ctx, id)
	if err != nil {
		return err
	}
	return s.mutate(ctx, q.OpportunityID, actor, func(r Repos, opp *entity.Opportunity) error {
		// Re-read inside the transaction so a concurrent status change is seen.
		fresh, err := r.Quotations.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if fresh == nil || !fresh.IsActive {
			return apperr.NotFound("quotation not found")
		}
		return fn(r, opp, fresh)
	})
}

func (s *QuotationService) loadOpportunity(ctx context.Context, id int64) (*entity.Opportunity, error) {
	opp, err := s.opps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if opp == nil || !opp.IsActive {
		return nil, apperr.NotFound("opportunity not found")
	}
	return opp, nil
}

func (s *QuotationService) loadPair(ctx context.Context, id int64) (*entity.Quotation, *entity.Opportunity, error) {
	q, err := s.quotations.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if q == nil || !q.IsActive {
		return nil, nil, apperr.NotFound("quotation not found")
	}
	opp, err := s.loadOpportunity(ctx, q.OpportunityID)
	if err != nil {
		return nil, nil, err
	}
	return q, opp, nil
}

func (s *QuotationService) emitAudit(ctx context.Context, actor entity.UserContext, action, quotationID string, payload map[string]any) {
	event := &entity.AuditEvent{
		ID:        uuid.New().String(),
		ActorID:   actor.ID,
		Action:    action,
		Entity:    "quotation",
		EntityID:  quotationID,
		Payload:   payload,
		CreatedOn: time.Now(),
	}
	if err := s.audit.Write(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("action", action).Msg("audit write failed")
	}
}

// requireProposalStage gates quotation creation on pipeline position.
func requireProposalStage(opp *entity.Opportunity) error {
	cur, ok := pipeline.OrderIndex(opp.Stage)
	want, _ := pipeline.OrderIndex(entity.StageL3Proposal)
	if !ok || cur < want {
		return apperr.BusinessRule("quotations require the opportunity to be at L3_Proposal or later")
	}
	return nil
}

// customerSnapshot freezes the company/contact details into the document.
func customerSnapshot(opp *entity.Opportunity) entity.CustomerInfo {
	info := entity.CustomerInfo{}
	if opp.Company != nil {
		info.CompanyName = opp.Company.Name
	}
	if opp.Contact != nil {
		info.ContactName = opp.Contact.Name
		info.ContactEmail = opp.Contact.Email
		info.ContactPhone = opp.Contact.Phone
	}
	return info
}

// syncQuotationDerived projects the given quotation onto the opportunity's
// derived quotation_* fields.
func syncQuotationDerived(opp *entity.Opportunity, q *entity.Quotation) {
	created := true
	status := string(q.Status)
	if q.Status == entity.QuotationRejected {
		status = quotationRevisionRequired
	}
	version := q.RevisionNumber
	opp.Proposal.QuotationCreated = &created
	opp.Proposal.QuotationStatus = &status
	opp.Proposal.QuotationVersion = &version
	if q.FilePath != "" {
		path := q.FilePath
		opp.Proposal.QuotationFilePath = &path
	}
}

// restoredStatus derives the status a Revised parent held before it was
// superseded, from its review stamps.
func restoredStatus(q *entity.Quotation) entity.QuotationStatus {
	switch {
	case q.RejectedBy != nil:
		return entity.QuotationRejected
	case q.ApprovedBy != nil:
		return entity.QuotationApproved
	case q.SubmittedBy != nil:
		return entity.QuotationSubmitted
	default:
		return entity.QuotationDraft
	}
}

func applyQuotationPatch(q *entity.Quotation, in dto.QuotationPatchRequest) {
	if in.Name != nil {
		q.Name = strings.TrimSpace(*in.Name)
	}
	if in.QuotationDate != nil {
		q.QuotationDate = *in.QuotationDate
	}
	if in.ValidUntil != nil {
		q.ValidUntil = in.ValidUntil
	}
	if in.Amount != nil {
		q.Amount = *in.Amount
	}
	if in.Subtotal != nil {
		q.Subtotal = *in.Subtotal
	}
	if in.TaxAmount != nil {
		q.TaxAmount = *in.TaxAmount
	}
	if in.TaxPercentage != nil {
		q.TaxPercentage = *in.TaxPercentage
	}
	if in.DiscountAmount != nil {
		q.DiscountAmount = *in.DiscountAmount
	}
	if in.DiscountPercentage != nil {
		q.DiscountPercentage = *in.DiscountPercentage
	}
	if in.Currency != nil {
		q.Currency = *in.Currency
	}
	if in.LineItems != nil {
		q.LineItems = q.LineItems[:0]
		for _, item := range in.LineItems {
			q.LineItems = append(q.LineItems, entity.QuotationLineItem(item))
		}
	}
}

// applyRevisionOverrides lets a revise call replace inherited fields; zero
// values keep the parent's numbers.
func applyRevisionOverrides(child *entity.Quotation, in dto.QuotationCreateRequest) {
	if strings.TrimSpace(in.Name) != "" {
		child.Name = strings.TrimSpace(in.Name)
	}
	if in.QuotationDate != nil {
		child.QuotationDate = *in.QuotationDate
	}
	if in.ValidUntil != nil {
		child.ValidUntil = in.ValidUntil
	}
	if !in.Amount.IsZero() {
		child.Amount = in.Amount
	}
	if !in.Subtotal.IsZero() {
		child.Subtotal = in.Subtotal
	}
	if !in.TaxAmount.IsZero() {
		child.TaxAmount = in.TaxAmount
	}
	if !in.TaxPercentage.IsZero() {
		child.TaxPercentage = in.TaxPercentage
	}
	if !in.DiscountAmount.IsZero() {
		child.DiscountAmount = in.DiscountAmount
	}
	if !in.DiscountPercentage.IsZero() {
		child.DiscountPercentage = in.DiscountPercentage
	}
	if in.Currency != "" {
		child.Currency = in.Currency
	}
	if in.LineItems != nil {
		child.LineItems = nil
		for _, item := range in.LineItems {
			child.LineItems = append(child.LineItems, entity.QuotationLineItem(item))
		}
	}
	// A fresh revision re-derives its totals from scratch.
	child.TotalAmount = decimal.Zero
}
