package repository

import (
	"context"
	"time"

	"github.com/salesdesk/crm-api/internal/domain/entity"
)

// LeadRepository is the narrow view of the lead store the core needs:
// reading a lead for conversion, flipping its conversion fields, and the
// manual inactive-close sweep.
type LeadRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.Lead, error)
	Update(ctx context.Context, lead *entity.Lead) error
	// CloseInactiveBefore marks unconverted leads with no activity since the
	// cutoff as Closed and returns how many rows changed.
	CloseInactiveBefore(ctx context.Context, cutoff time.Time, by int64) (int64, error)
}
