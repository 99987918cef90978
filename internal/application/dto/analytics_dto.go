package dto

import (
	"github.com/shopspring/decimal"

	"github.com/salesdesk/crm-api/internal/domain/entity"
)

// StageBreakdown is one row of the pipeline summary. Weighted is
// sum(amount × probability/100) for the stage.
type StageBreakdown struct {
	Stage     entity.Stage    `json:"stage"`
	Count     int64           `json:"count"`
	SumAmount decimal.Decimal `json:"sum_amount"`
	Weighted  decimal.Decimal `json:"weighted"`
}

// PipelineSummaryResponse is GET /api/opportunities/pipeline/summary.
type PipelineSummaryResponse struct {
	TotalCount        int64            `json:"total_count"`
	TotalValue        decimal.Decimal  `json:"total_value"`
	AvgScoring        float64          `json:"avg_scoring"`
	ClosingStageCount int64            `json:"closing_stage_count"`
	StageBreakdown    []StageBreakdown `json:"stage_breakdown"`
}

// PipelineMetricsResponse is GET /api/opportunities/pipeline/metrics.
// WinRate is null until at least one deal closed Won or Lost.
type PipelineMetricsResponse struct {
	Total             int64            `json:"total"`
	Won               int64            `json:"won"`
	Lost              int64            `json:"lost"`
	Dropped           int64            `json:"dropped"`
	Open              int64            `json:"open"`
	WinRate           *float64         `json:"win_rate"`
	AvgDealSize       *decimal.Decimal `json:"avg_deal_size"`
	AvgSalesCycleDays *float64         `json:"avg_sales_cycle_days"`
	PipelineValue     decimal.Decimal  `json:"pipeline_value"`
	ForecastedRevenue decimal.Decimal  `json:"forecasted_revenue"`
}
