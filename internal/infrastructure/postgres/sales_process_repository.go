package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/salesdesk/crm-api/internal/domain/apperr"
	"github.com/salesdesk/crm-api/internal/domain/entity"
	"github.com/salesdesk/crm-api/internal/domain/repository"
)

var _ repository.SalesProcessRepository = (*SalesProcessRepo)(nil)

// SalesProcessRepo implements the ledger port on PostgreSQL (pool or tx).
type SalesProcessRepo struct {
	q Querier
}

// NewSalesProcessRepository builds the adapter. Pass a pool or a tx (Querier).
func NewSalesProcessRepository(q Querier) *SalesProcessRepo {
	return &SalesProcessRepo{q: q}
}

// CreateBatch inserts ledger records one by one; callers batch at most five.
func (r *SalesProcessRepo) CreateBatch(ctx context.Context, records []*entity.SalesProcess) error {
	query := `
		INSERT INTO sales_processes (
			opportunity_id, stage, stage_order, status, completion_date, comments, completed_by,
			created_on, updated_on, created_by, updated_by, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`
	for _, rec := range records {
		err := r.q.QueryRow(ctx, query,
			rec.OpportunityID, rec.Stage, rec.StageOrder, rec.Status,
			rec.CompletionDate, rec.Comments, rec.CompletedBy,
			rec.CreatedOn, rec.UpdatedOn, rec.CreatedBy, rec.UpdatedBy, rec.IsActive,
		).Scan(&rec.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return apperr.Duplicate("sales process record already exists for the stage")
			}
			if isForeignKeyViolation(err) {
				return apperr.Integrity("opportunity row missing")
			}
			return fmt.Errorf("insert sales process: %w", err)
		}
	}
	return nil
}

// ListByOpportunity returns the ledger in stage order.
func (r *SalesProcessRepo) ListByOpportunity(ctx context.Context, opportunityID int64) ([]*entity.SalesProcess, error) {
	query := `
		SELECT id, opportunity_id, stage, stage_order, status, completion_date, comments, completed_by,
		       created_on, updated_on, deleted_on, created_by, updated_by, deleted_by, is_active
		FROM sales_processes
		WHERE opportunity_id = $1 AND is_active = true
		ORDER BY stage_order ASC`
	rows, err := r.q.Query(ctx, query, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("list sales processes: %w", err)
	}
	defer rows.Close()

	var list []*entity.SalesProcess
	for rows.Next() {
		var sp entity.SalesProcess
		if err := rows.Scan(
			&sp.ID, &sp.OpportunityID, &sp.Stage, &sp.StageOrder, &sp.Status,
			&sp.CompletionDate, &sp.Comments, &sp.CompletedBy,
			&sp.CreatedOn, &sp.UpdatedOn, &sp.DeletedOn, &sp.CreatedBy, &sp.UpdatedBy, &sp.DeletedBy, &sp.IsActive,
		); err != nil {
			return nil, fmt.Errorf("scan sales process: %w", err)
		}
		list = append(list, &sp)
	}
	return list, rows.Err()
}

// GetByOpportunityAndStage loads one ledger entry; missing returns nil, nil.
func (r *SalesProcessRepo) GetByOpportunityAndStage(ctx context.Context, opportunityID int64, stage entity.Stage) (*entity.SalesProcess, error) {
	query := `
		SELECT id, opportunity_id, stage, stage_order, status, completion_date, comments, completed_by,
		       created_on, updated_on, deleted_on, created_by, updated_by, deleted_by, is_active
		FROM sales_processes
		WHERE opportunity_id = $1 AND stage = $2 AND is_active = true`
	var sp entity.SalesProcess
	err := r.q.QueryRow(ctx, query, opportunityID, stage).Scan(
		&sp.ID, &sp.OpportunityID, &sp.Stage, &sp.StageOrder, &sp.Status,
		&sp.CompletionDate, &sp.Comments, &sp.CompletedBy,
		&sp.CreatedOn, &sp.UpdatedOn, &sp.DeletedOn, &sp.CreatedBy, &sp.UpdatedBy, &sp.DeletedBy, &sp.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get sales process: %w", err)
	}
	return &sp, nil
}

// Update writes the mutable ledger fields.
func (r *SalesProcessRepo) Update(ctx context.Context, record *entity.SalesProcess) error {
	cmd, err := r.q.Exec(ctx, `
		UPDATE sales_processes SET
			status = $2, completion_date = $3, comments = $4, completed_by = $5,
			updated_on = $6, updated_by = $7
		WHERE id = $1 AND is_active = true`,
		record.ID, record.Status, record.CompletionDate, record.Comments, record.CompletedBy,
		record.UpdatedOn, record.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("update sales process: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.NotFound("sales process record not found")
	}
	return nil
}
