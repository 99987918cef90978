package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/salesdesk/crm-api/internal/domain/apperr"
	"github.com/salesdesk/crm-api/internal/domain/entity"
	"github.com/salesdesk/crm-api/internal/domain/repository"
)

var _ repository.LeadRepository = (*LeadRepo)(nil)

// LeadRepo implements the narrow lead port on PostgreSQL (pool or tx).
type LeadRepo struct {
	q Querier
}

// NewLeadRepository builds the adapter. Pass a pool or a tx (Querier).
func NewLeadRepository(q Querier) *LeadRepo {
	return &LeadRepo{q: q}
}

// GetByID loads one lead.
func (r *LeadRepo) GetByID(ctx context.Context, id int64) (*entity.Lead, error) {
	query := `
		SELECT id, status, reviewed, review_status, company_id, lead_source,
		       converted, converted_to_opportunity_id, conversion_date, last_activity_on,
		       created_on, updated_on, deleted_on, created_by, updated_by, deleted_by, is_active
		FROM leads WHERE id = $1`
	var l entity.Lead
	err := r.q.QueryRow(ctx, query, id).Scan(
		&l.ID, &l.Status, &l.Reviewed, &l.ReviewStatus, &l.CompanyID, &l.LeadSource,
		&l.Converted, &l.ConvertedToOpportunityID, &l.ConversionDate, &l.LastActivityOn,
		&l.CreatedOn, &l.UpdatedOn, &l.DeletedOn, &l.CreatedBy, &l.UpdatedBy, &l.DeletedBy, &l.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return &l, nil
}

// Update writes the conversion and status fields; the lead module owns the
// rest of the record. The converted = false predicate makes conversion
// once-only: of two racing converters the loser matches zero rows.
func (r *LeadRepo) Update(ctx context.Context, lead *entity.Lead) error {
	cmd, err := r.q.Exec(ctx, `
		UPDATE leads SET
			status = $2, converted = $3, converted_to_opportunity_id = $4,
			conversion_date = $5, updated_on = $6, updated_by = $7
		WHERE id = $1 AND converted = false`,
		lead.ID, lead.Status, lead.Converted, lead.ConvertedToOpportunityID,
		lead.ConversionDate, lead.UpdatedOn, lead.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("update lead: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.BusinessRule("lead_already_converted")
	}
	return nil
}

// CloseInactiveBefore closes unconverted leads idle since the cutoff and
// returns how many rows changed.
func (r *LeadRepo) CloseInactiveBefore(ctx context.Context, cutoff time.Time, by int64) (int64, error) {
	cmd, err := r.q.Exec(ctx, `
		UPDATE leads SET
			status = $1, updated_on = now(), updated_by = $2
		WHERE is_active = true
		  AND converted = false
		  AND status NOT IN ($1, $3)
		  AND last_activity_on < $4`,
		entity.LeadStatusClosed, by, entity.LeadStatusConverted, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("close inactive leads: %w", err)
	}
	return cmd.RowsAffected(), nil
}
