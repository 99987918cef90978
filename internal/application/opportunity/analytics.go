package opportunity

import (
	"context"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"github.com/salesdesk/crm-api/internal/application/dto"
	"github.com/salesdesk/crm-api/internal/domain/apperr"
	"github.com/salesdesk/crm-api/internal/domain/entity"
	"github.com/salesdesk/crm-api/internal/domain/pipeline"
	"github.com/salesdesk/crm-api/internal/domain/repository"
)

// AnalyticsService computes the derived pipeline views. Read-only; all
// numbers come from one aggregate query plus the closed-deal listing, so a
// snapshot is internally consistent.
type AnalyticsService struct {
	opps repository.OpportunityRepository
}

func NewAnalyticsService(opps repository.OpportunityRepository) *AnalyticsService {
	return &AnalyticsService{opps: opps}
}

// PipelineSummary is the per-stage rollup: counts, raw value and
// probability-weighted value. Sales actors only see their own deals.
func (s *AnalyticsService) PipelineSummary(ctx context.Context, actor entity.UserContext) (*dto.PipelineSummaryResponse, error) {
	filter, err := analyticsScope(actor)
	if err != nil {
		return nil, err
	}
	rows, err := s.opps.AggregatePipeline(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := &dto.PipelineSummaryResponse{
		TotalValue:     decimal.Zero,
		StageBreakdown: make([]dto.StageBreakdown, 0, len(rows)),
	}
	var scoringSum int64
	for _, row := range rows {
		pct := decimal.NewFromInt(int64(pipeline.StagePercentage(row.Stage)))
		weighted := row.SumAmount.Mul(pct).Div(decimal.NewFromInt(100)).RoundBank(2)
		resp.StageBreakdown = append(resp.StageBreakdown, dto.StageBreakdown{
			Stage:     row.Stage,
			Count:     row.Count,
			SumAmount: row.SumAmount,
			Weighted:  weighted,
		})
		resp.TotalCount += row.Count
		resp.TotalValue = resp.TotalValue.Add(row.SumAmount)
		scoringSum += row.SumScoring
		if row.Stage == entity.StageL4Negotiation {
			resp.ClosingStageCount = row.Count
		}
	}
	if resp.TotalCount > 0 {
		resp.AvgScoring = float64(scoringSum) / float64(resp.TotalCount)
	}
	return resp, nil
}

// Metrics is the outcome view: win rate, average deal size over wins, sales
// cycle over all closed deals, plus the open pipeline's raw and forecasted
// value. Ratios stay null until there is data to divide by.
func (s *AnalyticsService) Metrics(ctx context.Context, actor entity.UserContext) (*dto.PipelineMetricsResponse, error) {
	filter, err := analyticsScope(actor)
	if err != nil {
		return nil, err
	}
	rows, err := s.opps.AggregatePipeline(ctx, filter)
	if err != nil {
		return nil, err
	}
	closed, err := s.opps.ListClosed(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := &dto.PipelineMetricsResponse{
		PipelineValue:     decimal.Zero,
		ForecastedRevenue: decimal.Zero,
	}
	for _, row := range rows {
		resp.Total += row.Count
		switch row.Stage {
		case entity.StageL5Won:
			resp.Won = row.Count
		case entity.StageL6Lost:
			resp.Lost = row.Count
		case entity.StageL7Dropped:
			resp.Dropped = row.Count
		default:
			resp.Open += row.Count
			pct := decimal.NewFromInt(int64(pipeline.StagePercentage(row.Stage)))
			resp.PipelineValue = resp.PipelineValue.Add(row.SumAmount)
			resp.ForecastedRevenue = resp.ForecastedRevenue.Add(
				row.SumAmount.Mul(pct).Div(decimal.NewFromInt(100)).RoundBank(2))
		}
	}

	// Win rate counts only decided deals; dropped ones never competed.
	if decided := resp.Won + resp.Lost; decided > 0 {
		rate := float64(resp.Won) / float64(decided) * 100
		resp.WinRate = &rate
	}

	// Deal size averages over wins; the sales cycle spans every closed deal
	// that carries a close date.
	var dealSizes []float64
	var cycleDays []float64
	for _, opp := range closed {
		if opp.CloseDate != nil {
			cycleDays = append(cycleDays, opp.CloseDate.Sub(opp.CreatedOn).Hours()/24)
		}
		if opp.Stage != entity.StageL5Won || opp.Amount == nil {
			continue
		}
		size, _ := opp.Amount.Float64()
		dealSizes = append(dealSizes, size)
	}
	if len(dealSizes) > 0 {
		mean, err := stats.Mean(dealSizes)
		if err == nil {
			avg := decimal.NewFromFloat(mean).RoundBank(2)
			resp.AvgDealSize = &avg
		}
	}
	if len(cycleDays) > 0 {
		mean, err := stats.Mean(cycleDays)
		if err == nil {
			resp.AvgSalesCycleDays = &mean
		}
	}
	return resp, nil
}

func analyticsScope(actor entity.UserContext) (repository.OpportunityFilter, error) {
	var filter repository.OpportunityFilter
	if !actor.Has(entity.PermOpportunitiesRead) {
		return filter, apperr.Authorization("may_view")
	}
	if actor.Role == entity.RoleSales {
		id := actor.ID
		filter.CreatedBy = &id
	}
	return filter, nil
}
