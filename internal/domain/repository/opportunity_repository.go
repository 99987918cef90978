package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/salesdesk/crm-api/internal/domain/entity"
)

// OpportunityFilter narrows listings and aggregates. Search matches name,
// POT id and company name. CreatedBy implements the Sales own-records scope.
type OpportunityFilter struct {
	Stage     *entity.Stage
	Status    *entity.Status
	CompanyID *int64
	LeadID    *int64
	CreatedBy *int64
	Search    string
}

// StageAggregate is the per-stage rollup used by pipeline analytics.
type StageAggregate struct {
	Stage      entity.Stage
	Count      int64
	SumAmount  decimal.Decimal
	SumScoring int64
}

// OpportunityRepository is the persistence port for the aggregate root (DIP).
// Create reserves a unique POT id (bounded random retries, then a sequence
// fallback). Update is an optimistic CAS on updated_on.
type OpportunityRepository interface {
	Create(ctx context.Context, opp *entity.Opportunity) error
	GetByID(ctx context.Context, id int64) (*entity.Opportunity, error)
	GetByPotID(ctx context.Context, potID string) (*entity.Opportunity, error)
	Update(ctx context.Context, opp *entity.Opportunity, expectedUpdatedOn time.Time) error
	SoftDelete(ctx context.Context, id, by int64) error
	List(ctx context.Context, filter OpportunityFilter, limit, offset int) ([]*entity.Opportunity, error)
	Count(ctx context.Context, filter OpportunityFilter) (int64, error)
	AggregatePipeline(ctx context.Context, filter OpportunityFilter) ([]StageAggregate, error)
	// ListClosed returns closed opportunities (Won/Lost/Dropped) in scope,
	// for win-rate and cycle-time metrics.
	ListClosed(ctx context.Context, filter OpportunityFilter) ([]*entity.Opportunity, error)
}
