// Package opportunity orchestrates the opportunity lifecycle: creation,
// field updates, stage transitions, lead conversion, quotations and the
// derived pipeline analytics. Every mutation runs in one transaction and
// emits one audit event on success.
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
	"github.com/salesdesk/crm-api/internal/domain/repository"
	"github.com/salesdesk/crm-api/pkg/logger"
)

// casRetries bounds the read-modify-write loop on optimistic-lock conflicts.
const casRetries = 3

var justificationThreshold = decimal.NewFromInt(1_000_000)

// Service is the orchestrator for the opportunity aggregate.
type Service struct {
	txRunner TxRunner
	opps     repository.OpportunityRepository
	contacts repository.ContactRepository
	audit    AuditSink
	blobs    BlobStore
	log      *logger.Logger
}

// NewService builds the service. The repositories passed here are bound to
// the pool and used for reads; mutations go through the TxRunner.
func NewService(
	txRunner TxRunner,
	opps repository.OpportunityRepository,
	contacts repository.ContactRepository,
	audit AuditSink,
	blobs BlobStore,
	log *logger.Logger,
) *Service {
	return &Service{
		txRunner: txRunner,
		opps:     opps,
		contacts: contacts,
		audit:    audit,
		blobs:    blobs,
		log:      log,
	}
}

// Create validates and inserts a new opportunity at L1_Prospect. A new deal
// starts Open with probability 10 unless the caller overrides it.
func (s *Service) Create(ctx context.Context, in dto.OpportunityCreateRequest, actor entity.UserContext) (*dto.OpportunityResponse, error) {
	if !authz.MayCreate(actor) {
		return nil, apperr.Authorization("may_create")
	}

	now := time.Now()
	opp := &entity.Opportunity{
		Name:            strings.TrimSpace(in.Name),
		CompanyID:       in.CompanyID,
		ContactID:       in.ContactID,
		LeadID:          in.LeadID,
		DeliveryOwnerID: in.DeliveryOwnerID,
		Stage:           entity.StageL1Prospect,
		Status:          entity.StatusOpen,
		Amount:          in.Amount,
		Costing:         in.Costing,
		Probability:     10,
		CloseDate:       in.CloseDate,
		Justification:   strings.TrimSpace(in.Justification),
		Notes:           in.Notes,
	}
	if in.Probability != nil {
		opp.Probability = pipeline.DeriveProbability(entity.StageL1Prospect, in.Probability)
	}
	if in.Scoring != nil {
		opp.Scoring = *in.Scoring
	}
	opp.CreatedOn = now
	opp.UpdatedOn = now
	opp.CreatedBy = actor.ID
	opp.UpdatedBy = actor.ID
	opp.IsActive = true

	if err := validateInvariants(opp); err != nil {
		return nil, err
	}

	err := s.txRunner.Run(ctx, func(r Repos) error {
		contact, err := r.Contacts.GetByID(ctx, in.ContactID)
		if err != nil {
			return err
		}
		if contact == nil || !contact.IsActive {
			return apperr.NotFound("contact not found")
		}
		if contact.CompanyID != in.CompanyID || !contact.IsDecisionMaker {
			return apperr.BusinessRule("contact must be a decision-maker at the company")
		}
		if _, err := r.Companies.GetByID(ctx, in.CompanyID); err != nil {
			return err
		}
		if err := r.Opportunities.Create(ctx, opp); err != nil {
			return err
		}
		// First working stage opens its ledger entry immediately.
		record := &entity.SalesProcess{
			OpportunityID: opp.ID,
			Stage:         entity.StageL1Prospect,
			StageOrder:    1,
			Status:        entity.ProcessInProgress,
		}
		record.CreatedOn = now
		record.UpdatedOn = now
		record.CreatedBy = actor.ID
		record.UpdatedBy = actor.ID
		record.IsActive = true
		return r.SalesProcesses.CreateBatch(ctx, []*entity.SalesProcess{record})
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actor, "opportunity.created", "opportunity", opp.PotID, map[string]any{
		"name":  opp.Name,
		"stage": opp.Stage,
	})
	return toOpportunityResponse(opp), nil
}

// Get loads one opportunity by numeric or POT id.
func (s *Service) Get(ctx context.Context, id int64, actor entity.UserContext) (*dto.OpportunityResponse, error) {
	opp, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.MayView(actor, opp) {
		return nil, apperr.Authorization("may_view")
	}
	return toOpportunityResponse(opp), nil
}

// GetByPot loads one opportunity by its external POT id.
func (s *Service) GetByPot(ctx context.Context, potID string, actor entity.UserContext) (*dto.OpportunityResponse, error) {
	opp, err := s.opps.GetByPotID(ctx, potID)
	if err != nil {
		return nil, err
	}
	if opp == nil {
		return nil, apperr.NotFound("opportunity not found")
	}
	if !authz.MayView(actor, opp) {
		return nil, apperr.Authorization("may_view")
	}
	return toOpportunityResponse(opp), nil
}

// Update applies a whitelisted field patch. Stage and pot_id are never
// touched here. Retries the read-modify-write on CAS conflicts.
func (s *Service) Update(ctx context.Context, id int64, in dto.OpportunityPatchRequest, actor entity.UserContext) (*dto.OpportunityResponse, error) {
	var out *dto.OpportunityResponse
	err := s.withRetry(ctx, func() error {
		opp, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if !authz.MayUpdate(actor, opp) {
			return apperr.Authorization("may_update")
		}
		expected := opp.UpdatedOn
		applyPatch(opp, in)
		opp.Touch(actor.ID, time.Now())
		if err := validateInvariants(opp); err != nil {
			return err
		}
		if err := s.txRunner.Run(ctx, func(r Repos) error {
			if in.ContactID != nil {
				contact, err := r.Contacts.GetByID(ctx, *in.ContactID)
				if err != nil {
					return err
				}
				if contact == nil || contact.CompanyID != opp.CompanyID || !contact.IsDecisionMaker {
					return apperr.BusinessRule("contact must be a decision-maker at the company")
				}
			}
			return r.Opportunities.Update(ctx, opp, expected)
		}); err != nil {
			return err
		}
		out = toOpportunityResponse(opp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, "opportunity.updated", "opportunity", out.PotID, nil)
	return out, nil
}

// Delete soft-deletes an opportunity. Admin only.
func (s *Service) Delete(ctx context.Context, id int64, actor entity.UserContext) error {
	if !authz.MayDelete(actor) {
		return apperr.Authorization("may_delete")
	}
	opp, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	err = s.txRunner.Run(ctx, func(r Repos) error {
		return r.Opportunities.SoftDelete(ctx, id, actor.ID)
	})
	if err != nil {
		return err
	}
	s.emitAudit(ctx, actor, "opportunity.deleted", "opportunity", opp.PotID, nil)
	return nil
}

// List returns a filtered page. Sales actors only see their own records.
func (s *Service) List(ctx context.Context, in dto.ListFilter, actor entity.UserContext) (*dto.OpportunityListResponse, error) {
	if !actor.Has(entity.PermOpportunitiesRead) {
		return nil, apperr.Authorization("may_view")
	}
	in.DefaultPage()
	filter, err := buildFilter(in, actor)
	if err != nil {
		return nil, err
	}
	items, err := s.opps.List(ctx, filter, in.Limit, in.Skip)
	if err != nil {
		return nil, err
	}
	total, err := s.opps.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	resp := &dto.OpportunityListResponse{
		Items: make([]dto.OpportunityResponse, 0, len(items)),
		Page:  dto.PageResponse{Skip: in.Skip, Limit: in.Limit, Total: total},
	}
	for _, opp := range items {
		resp.Items = append(resp.Items, *toOpportunityResponse(opp))
	}
	return resp, nil
}

// AddAttachment stores an uploaded artifact and binds it to a stage field.
func (s *Service) AddAttachment(ctx context.Context, id int64, group, field, filename, contentType string, data []byte, actor entity.UserContext) (*dto.AttachmentResponse, error) {
	if len(data) == 0 {
		return nil, apperr.Validation("file", "empty upload")
	}
	var out *dto.AttachmentResponse
	err := s.withRetry(ctx, func() error {
		opp, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if !authz.MayUpdate(actor, opp) {
			return apperr.Authorization("may_update")
		}
		key := fmt.Sprintf("opportunities/%s/%s/%s-%s", opp.PotID, group, uuid.New().String(), filename)
		path, err := s.blobs.Put(ctx, key, data, contentType)
		if err != nil {
			return apperr.External("blob store write failed", err)
		}
		if err := bindAttachment(opp, group, field, path); err != nil {
			return err
		}
		expected := opp.UpdatedOn
		opp.Touch(actor.ID, time.Now())
		if err := s.txRunner.Run(ctx, func(r Repos) error {
			return r.Opportunities.Update(ctx, opp, expected)
		}); err != nil {
			return err
		}
		out = &dto.AttachmentResponse{Group: group, Field: field, Path: path}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, "opportunity.attachment_added", "opportunity", fmt.Sprintf("%d", id), map[string]any{
		"group": group, "field": field,
	})
	return out, nil
}

// load fetches an active opportunity or a not_found error.
func (s *Service) load(ctx context.Context, id int64) (*entity.Opportunity, error) {
	opp, err := s.opps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if opp == nil || !opp.IsActive {
		return nil, apperr.NotFound("opportunity not found")
	}
	return opp, nil
}

// withRetry reruns fn on optimistic-concurrency conflicts, up to casRetries
// attempts, with a short linear backoff.
func (s *Service) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= casRetries; attempt++ {
		err = fn()
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

// emitAudit writes one audit event; failures are logged and swallowed.
func (s *Service) emitAudit(ctx context.Context, actor entity.UserContext, action, entityName, entityID string, payload map[string]any) {
	event := &entity.AuditEvent{
		ID:        uuid.New().String(),
		ActorID:   actor.ID,
		Action:    action,
		Entity:    entityName,
		EntityID:  entityID,
		Payload:   payload,
		CreatedOn: time.Now(),
	}
	if err := s.audit.Write(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("action", action).Msg("audit write failed")
	}
}

func applyPatch(opp *entity.Opportunity, in dto.OpportunityPatchRequest) {
	if in.Name != nil {
		opp.Name = strings.TrimSpace(*in.Name)
	}
	if in.ContactID != nil {
		opp.ContactID = *in.ContactID
	}
	if in.DeliveryOwnerID != nil {
		opp.DeliveryOwnerID = in.DeliveryOwnerID
	}
	if in.Amount != nil {
		opp.Amount = in.Amount
	}
	if in.Costing != nil {
		opp.Costing = in.Costing
	}
	if in.Scoring != nil {
		opp.Scoring = *in.Scoring
	}
	if in.CloseDate != nil {
		opp.CloseDate = in.CloseDate
	}
	if in.Justification != nil {
		opp.Justification = strings.TrimSpace(*in.Justification)
	}
	if in.Notes != nil {
		opp.Notes = *in.Notes
	}
}

func buildFilter(in dto.ListFilter, actor entity.UserContext) (repository.OpportunityFilter, error) {
	filter := repository.OpportunityFilter{Search: strings.TrimSpace(in.Search)}
	if in.Stage != "" {
		stage := entity.Stage(in.Stage)
		if !pipeline.ValidStage(stage) {
			return filter, apperr.Validation("stage", "unknown stage")
		}
		filter.Stage = &stage
	}
	if in.Status != "" {
		status := entity.Status(in.Status)
		switch status {
		case entity.StatusOpen, entity.StatusWon, entity.StatusLost, entity.StatusDropped:
			filter.Status = &status
		default:
			return filter, apperr.Validation("status", "unknown status")
		}
	}
	if in.CompanyID > 0 {
		filter.CompanyID = &in.CompanyID
	}
	if in.LeadID > 0 {
		filter.LeadID = &in.LeadID
	}
	if actor.Role == entity.RoleSales {
		id := actor.ID
		filter.CreatedBy = &id
	}
	return filter, nil
}

// validateInvariants enforces the aggregate-level rules on every write.
func validateInvariants(opp *entity.Opportunity) error {
	if len(strings.TrimSpace(opp.Name)) < 3 {
		return apperr.Validation("name", "must be at least 3 characters")
	}
	if opp.Probability < 0 || opp.Probability > 100 {
		return apperr.Validation("probability", "must be between 0 and 100")
	}
	if opp.Scoring < 0 || opp.Scoring > 100 {
		return apperr.Validation("scoring", "must be between 0 and 100")
	}
	if opp.Amount != nil && opp.Amount.LessThan(decimal.Zero) {
		return apperr.Validation("amount", "must be non-negative")
	}
	if opp.Costing != nil && opp.Costing.LessThan(decimal.Zero) {
		return apperr.Validation("costing", "must be non-negative")
	}
	if opp.Amount != nil && opp.Amount.GreaterThanOrEqual(justificationThreshold) {
		if len(strings.TrimSpace(opp.Justification)) < 10 {
			return apperr.BusinessRule("amount of 1,000,000 or more requires a justification of at least 10 characters")
		}
	}

	switch opp.Stage {
	case entity.StageL5Won:
		if opp.Status != entity.StatusWon || opp.Probability != 100 {
			return apperr.BusinessRule("a won opportunity must have status Won and probability 100")
		}
	case entity.StageL6Lost:
		if opp.Status != entity.StatusLost || opp.Probability != 0 {
			return apperr.BusinessRule("a lost opportunity must have status Lost and probability 0")
		}
	case entity.StageL7Dropped:
		if opp.Status != entity.StatusDropped || opp.Probability != 0 {
			return apperr.BusinessRule("a dropped opportunity must have status Dropped and probability 0")
		}
	default:
		if opp.Status != entity.StatusOpen {
			return apperr.BusinessRule("a working-stage opportunity must have status Open")
		}
	}
	return nil
}
