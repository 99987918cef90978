package repository

import (
	"context"

	"github.com/salesdesk/crm-api/internal/domain/entity"
)

// SalesProcessRepository is the persistence port for the per-stage ledger.
type SalesProcessRepository interface {
	CreateBatch(ctx context.Context, records []*entity.SalesProcess) error
	ListByOpportunity(ctx context.Context, opportunityID int64) ([]*entity.SalesProcess, error)
	GetByOpportunityAndStage(ctx context.Context, opportunityID int64, stage entity.Stage) (*entity.SalesProcess, error)
	Update(ctx context.Context, record *entity.SalesProcess) error
}
