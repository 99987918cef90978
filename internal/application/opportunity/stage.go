package opportunity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/salesdesk/crm-api/internal/application/dto"
	"github.com/salesdesk/crm-api/internal/domain/apperr"
	"github.com/salesdesk/crm-api/internal/domain/authz"
	"github.com/salesdesk/crm-api/internal/domain/entity"
	"github.com/salesdesk/crm-api/internal/domain/pipeline"
)

// UpdateStage moves an opportunity along the pipeline. The machine decides
// legality and gates; this method merges stage data, derives probability,
// keeps the ledger in step and commits it all in one transaction.
func (s *Service) UpdateStage(ctx context.Context, id int64, in dto.StagePatchRequest, actor entity.UserContext) (*dto.OpportunityResponse, error) {
	to := entity.Stage(in.Stage)
	if !pipeline.ValidStage(to) {
		return nil, apperr.Validation("stage", "unknown stage")
	}
	return s.transition(ctx, id, to, in.Notes, in.Probability, in.StageSpecificData, nil, actor)
}

// Close routes Won/Lost/Dropped outcomes through the stage machine with the
// outcome fields folded into the matching group.
func (s *Service) Close(ctx context.Context, id int64, in dto.CloseRequest, actor entity.UserContext) (*dto.OpportunityResponse, error) {
	closeDate, err := parseCloseDate(in.CloseDate)
	if err != nil {
		return nil, err
	}

	var to entity.Stage
	data := map[string]any{}
	switch entity.Status(in.Status) {
	case entity.StatusWon:
		to = entity.StageL5Won
	case entity.StatusLost:
		to = entity.StageL6Lost
		if in.LostReason != "" {
			data["lost_reason"] = in.LostReason
		}
		if in.CompetitorName != "" {
			data["competitor_name"] = in.CompetitorName
		}
	case entity.StatusDropped:
		to = entity.StageL7Dropped
		if in.DropReason != "" {
			data["drop_reason"] = in.DropReason
		}
	default:
		return nil, apperr.Validation("status", "must be Won, Lost or Dropped")
	}

	return s.transition(ctx, id, to, in.Notes, nil, data, &closeDate, actor)
}

// UpdateTaskGroup writes stage-specific fields without a stage change.
// Rejected unless the opportunity has reached the group's stage.
func (s *Service) UpdateTaskGroup(ctx context.Context, id int64, group string, patch map[string]any, actor entity.UserContext) (*dto.OpportunityResponse, error) {
	groupStage, ok := taskGroupStage(group)
	if !ok {
		return nil, apperr.Validation("group", "unknown task group")
	}

	var out *dto.OpportunityResponse
	err := s.withRetry(ctx, func() error {
		opp, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if !authz.MayUpdate(actor, opp) {
			return apperr.Authorization("may_update")
		}
		cur, curOK := pipeline.OrderIndex(opp.Stage)
		want, _ := pipeline.OrderIndex(groupStage)
		if !curOK || cur < want {
			return apperr.BusinessRule(fmt.Sprintf("%s tasks are not available before %s", group, groupStage))
		}
		if err := mergeStageData(opp, groupStage, patch); err != nil {
			return err
		}
		expected := opp.UpdatedOn
		opp.Touch(actor.ID, time.Now())
		if err := validateInvariants(opp); err != nil {
			return err
		}
		if err := s.txRunner.Run(ctx, func(r Repos) error {
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
	s.emitAudit(ctx, actor, "opportunity.tasks_updated", "opportunity", out.PotID, map[string]any{"group": group})
	return out, nil
}

// transition is the single path for every stage change, including closes and
// the admin reopen.
func (s *Service) transition(ctx context.Context, id int64, to entity.Stage, notes string, probability *int, data map[string]any, closeDate *time.Time, actor entity.UserContext) (*dto.OpportunityResponse, error) {
	var out *dto.OpportunityResponse
	err := s.withRetry(ctx, func() error {
		opp, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		from := opp.Stage
		if !authz.MayTransition(actor, opp, from, to) {
			return apperr.Authorization("may_transition")
		}
		if !pipeline.Allowed(from, to) {
			return apperr.StageTransition(fmt.Sprintf("transition %s -> %s is not allowed", from, to))
		}
		if err := mergeStageData(opp, to, data); err != nil {
			return err
		}
		if violations := pipeline.AdvancementPreconditions(opp, to); len(violations) > 0 {
			msgs := make([]string, 0, len(violations))
			for _, v := range violations {
				msgs = append(msgs, v.String())
			}
			return apperr.StageTransition(strings.Join(msgs, "; "))
		}

		now := time.Now()
		opp.Stage = to
		opp.Probability = pipeline.DeriveProbability(to, probability)
		switch to {
		case entity.StageL5Won:
			opp.Status = entity.StatusWon
		case entity.StageL6Lost:
			opp.Status = entity.StatusLost
		case entity.StageL7Dropped:
			opp.Status = entity.StatusDropped
		default:
			opp.Status = entity.StatusOpen
		}
		if pipeline.Terminal(to) {
			if closeDate != nil {
				opp.CloseDate = closeDate
			} else if opp.CloseDate == nil {
				opp.CloseDate = &now
			}
		}
		if from == entity.StageL7Dropped && to == entity.StageL1Prospect {
			// Admin reopen: the drop bookkeeping starts over.
			opp.Dropped = entity.DroppedGroup{}
			opp.CloseDate = nil
		}

		expected := opp.UpdatedOn
		opp.Touch(actor.ID, now)
		if err := validateInvariants(opp); err != nil {
			return err
		}

		if err := s.txRunner.Run(ctx, func(r Repos) error {
			if err := r.Opportunities.Update(ctx, opp, expected); err != nil {
				return err
			}
			return s.advanceLedger(ctx, r, opp, from, to, notes, actor, now)
		}); err != nil {
			return err
		}
		out = toOpportunityResponse(opp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, actor, "opportunity.stage_changed", "opportunity", out.PotID, map[string]any{
		"to": to, "probability": out.Probability,
	})
	return out, nil
}

// advanceLedger completes the ledger entry of the stage being left and opens
// (or reopens) the entry of the stage being entered.
func (s *Service) advanceLedger(ctx context.Context, r Repos, opp *entity.Opportunity, from, to entity.Stage, notes string, actor entity.UserContext, now time.Time) error {
	if _, ok := pipeline.StageOrder(from); ok {
		record, err := r.SalesProcesses.GetByOpportunityAndStage(ctx, opp.ID, from)
		if err != nil {
			return err
		}
		if record != nil {
			record.Status = entity.ProcessCompleted
			record.CompletionDate = &now
			record.CompletedBy = &actor.ID
			if notes != "" {
				record.Comments = notes
			}
			record.Touch(actor.ID, now)
			if err := r.SalesProcesses.Update(ctx, record); err != nil {
				return err
			}
		}
	}

	order, ok := pipeline.StageOrder(to)
	if !ok {
		return nil // terminal stages carry no ledger entry
	}
	record, err := r.SalesProcesses.GetByOpportunityAndStage(ctx, opp.ID, to)
	if err != nil {
		return err
	}
	if record == nil {
		record = &entity.SalesProcess{
			OpportunityID: opp.ID,
			Stage:         to,
			StageOrder:    order,
			Status:        entity.ProcessInProgress,
		}
		record.CreatedOn = now
		record.CreatedBy = actor.ID
		record.IsActive = true
		record.Touch(actor.ID, now)
		return r.SalesProcesses.CreateBatch(ctx, []*entity.SalesProcess{record})
	}
	record.Status = entity.ProcessInProgress
	record.CompletionDate = nil
	record.CompletedBy = nil
	record.Touch(actor.ID, now)
	return r.SalesProcesses.Update(ctx, record)
}

func parseCloseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Validation("close_date", "must be YYYY-MM-DD or RFC 3339")
}
