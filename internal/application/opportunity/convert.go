package opportunity

import (
	"context"
	"strings"
	"time"

	"github.com/salesdesk/crm-api/internal/application/dto"
	"github.com/salesdesk/crm-api/internal/domain/apperr"
	"github.com/salesdesk/crm-api/internal/domain/authz"
	"github.com/salesdesk/crm-api/internal/domain/entity"
	"github.com/salesdesk/crm-api/internal/domain/pipeline"
)

// ConvertLead promotes a qualified, review-approved lead into a fresh
// opportunity. Gate checks run in order inside one transaction; the lead
// update only matches unconverted rows, so of two racing conversions exactly
// one commits.
func (s *Service) ConvertLead(ctx context.Context, leadID int64, in dto.ConvertLeadRequest, actor entity.UserContext) (*dto.OpportunityResponse, error) {
	var opp *entity.Opportunity
	now := time.Now()

	err := s.txRunner.Run(ctx, func(r Repos) error {
		lead, err := r.Leads.GetByID(ctx, leadID)
		if err != nil {
			return err
		}
		if lead == nil || !lead.IsActive || lead.DeletedOn != nil {
			return apperr.NotFound("lead_not_found")
		}
		if lead.Converted || lead.ConvertedToOpportunityID != nil {
			return apperr.BusinessRule("lead_already_converted")
		}
		if lead.Status != entity.LeadStatusQualified {
			return apperr.BusinessRule("lead_not_qualified")
		}
		if !lead.Reviewed || lead.ReviewStatus != entity.ReviewStatusApproved {
			return apperr.BusinessRule("lead_not_approved")
		}
		if !authz.MayConvertLead(actor, lead) {
			return apperr.Authorization("may_convert_lead")
		}
		contact, err := r.Contacts.GetByID(ctx, in.ContactID)
		if err != nil {
			return err
		}
		if contact == nil || !contact.IsActive {
			return apperr.NotFound("contact not found")
		}
		if contact.CompanyID != lead.CompanyID || !contact.IsDecisionMaker {
			return apperr.BusinessRule("contact_not_decision_maker")
		}

		leadRef := lead.ID
		opp = &entity.Opportunity{
			Name:          strings.TrimSpace(in.OpportunityName),
			CompanyID:     lead.CompanyID,
			ContactID:     contact.ID,
			LeadID:        &leadRef,
			Stage:         entity.StageL1Prospect,
			Status:        entity.StatusOpen,
			Amount:        in.Amount,
			Probability:   10,
			Justification: strings.TrimSpace(in.Justification),
			Notes:         in.Notes,
		}
		opp.CreatedOn = now
		opp.UpdatedOn = now
		opp.CreatedBy = actor.ID
		opp.UpdatedBy = actor.ID
		opp.IsActive = true
		if err := validateInvariants(opp); err != nil {
			return err
		}
		if err := r.Opportunities.Create(ctx, opp); err != nil {
			return err
		}

		lead.Converted = true
		lead.ConvertedToOpportunityID = &opp.PotID
		lead.ConversionDate = &now
		lead.Status = entity.LeadStatusConverted
		lead.Touch(actor.ID, now)
		if err := r.Leads.Update(ctx, lead); err != nil {
			return err
		}

		// Pre-create the full ledger: stage 1 in progress, the rest open.
		records := make([]*entity.SalesProcess, 0, 5)
		for i, stage := range pipeline.WorkingStages() {
			status := entity.ProcessOpen
			if i == 0 {
				status = entity.ProcessInProgress
			}
			record := &entity.SalesProcess{
				OpportunityID: opp.ID,
				Stage:         stage,
				StageOrder:    i + 1,
				Status:        status,
			}
			record.CreatedOn = now
			record.UpdatedOn = now
			record.CreatedBy = actor.ID
			record.UpdatedBy = actor.ID
			record.IsActive = true
			records = append(records, record)
		}
		return r.SalesProcesses.CreateBatch(ctx, records)
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actor, "lead.converted", "lead", opp.PotID, map[string]any{
		"lead_id": leadID,
	})
	return toOpportunityResponse(opp), nil
}

// CloseInactiveLeads is the manual sweep replacing the source system's
// scheduled job: leads without activity for the given number of days are
// closed. Admin only.
func (s *Service) CloseInactiveLeads(ctx context.Context, in dto.CloseInactiveLeadsRequest, actor entity.UserContext) (*dto.CloseInactiveLeadsResponse, error) {
	if actor.Role != entity.RoleAdmin {
		return nil, apperr.Authorization("may_close_inactive_leads")
	}
	days := in.Days
	if days <= 0 {
		days = 90
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	var closed int64
	err := s.txRunner.Run(ctx, func(r Repos) error {
		var err error
		closed, err = r.Leads.CloseInactiveBefore(ctx, cutoff, actor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, actor, "lead.inactive_closed", "lead", "bulk", map[string]any{
		"days": days, "closed": closed,
	})
	return &dto.CloseInactiveLeadsResponse{Closed: closed}, nil
}
