package repository

import (
	"context"

	"github.com/salesdesk/crm-api/internal/domain/entity"
)

// QuotationRepository is the persistence port for quotations. Create mints
// the QUO-YYYY-DDDD id from a per-year sequence.
type QuotationRepository interface {
	Create(ctx context.Context, q *entity.Quotation) error
	GetByID(ctx context.Context, id int64) (*entity.Quotation, error)
	ListByOpportunity(ctx context.Context, opportunityID int64) ([]*entity.Quotation, error)
	Update(ctx context.Context, q *entity.Quotation) error
	SoftDelete(ctx context.Context, id, by int64) error
}
