package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/salesdesk/crm-api/internal/domain/apperr"
	"github.com/salesdesk/crm-api/internal/domain/entity"
	"github.com/salesdesk/crm-api/internal/domain/repository"
	"github.com/salesdesk/crm-api/pkg/ids"
)

var _ repository.QuotationRepository = (*QuotationRepo)(nil)

// QuotationRepo implements the quotation port on PostgreSQL (pool or tx).
type QuotationRepo struct {
	q Querier
}

// NewQuotationRepository builds the adapter. Pass a pool or a tx (Querier).
func NewQuotationRepository(q Querier) *QuotationRepo {
	return &QuotationRepo{q: q}
}

const quotationColumns = `
	id, quotation_id, opportunity_id, name, quotation_date, valid_until,
	amount, subtotal, tax_amount, tax_percentage, discount_amount, discount_percentage,
	total_amount, currency, line_items, status, revision_number, parent_quotation_id,
	customer_info, file_path,
	submitted_date, submitted_by, approved_date, approved_by, rejected_by, reject_reason,
	created_on, updated_on, deleted_on, created_by, updated_by, deleted_by, is_active`

// Create inserts the quotation, minting its QUO-YYYY-DDDD id from the
// per-year sequence row.
func (r *QuotationRepo) Create(ctx context.Context, q *entity.Quotation) error {
	year := ids.QuoYear(q.QuotationDate)
	var seq int
	err := r.q.QueryRow(ctx, `
		INSERT INTO quotation_sequences (year, last_value) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET last_value = quotation_sequences.last_value + 1
		RETURNING last_value`, year).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next quotation sequence: %w", err)
	}
	q.QuotationID = ids.FormatQuo(year, seq)

	lineItems, customerInfo, err := marshalQuotationJSON(q)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO quotations (
			quotation_id, opportunity_id, name, quotation_date, valid_until,
			amount, subtotal, tax_amount, tax_percentage, discount_amount, discount_percentage,
			total_amount, currency, line_items, status, revision_number, parent_quotation_id,
			customer_info, file_path, reject_reason,
			created_on, updated_on, created_by, updated_by, is_active
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25
		) RETURNING id`
	err = r.q.QueryRow(ctx, query,
		q.QuotationID, q.OpportunityID, q.Name, q.QuotationDate, q.ValidUntil,
		q.Amount, q.Subtotal, q.TaxAmount, q.TaxPercentage, q.DiscountAmount, q.DiscountPercentage,
		q.TotalAmount, q.Currency, lineItems, q.Status, q.RevisionNumber, q.ParentQuotationID,
		customerInfo, q.FilePath, q.RejectReason,
		q.CreatedOn, q.UpdatedOn, q.CreatedBy, q.UpdatedBy, q.IsActive,
	).Scan(&q.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Duplicate("quotation id already exists")
		}
		if isForeignKeyViolation(err) {
			return apperr.Integrity("opportunity row missing")
		}
		return fmt.Errorf("insert quotation: %w", err)
	}
	return nil
}

// GetByID loads one quotation by numeric id.
func (r *QuotationRepo) GetByID(ctx context.Context, id int64) (*entity.Quotation, error) {
	query := fmt.Sprintf(`SELECT %s FROM quotations WHERE id = $1`, quotationColumns)
	q, err := r.scanOne(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	return q, nil
}

// ListByOpportunity returns the active revision history, oldest first.
func (r *QuotationRepo) ListByOpportunity(ctx context.Context, opportunityID int64) ([]*entity.Quotation, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM quotations
		WHERE opportunity_id = $1 AND is_active = true
		ORDER BY revision_number ASC`, quotationColumns)
	rows, err := r.q.Query(ctx, query, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("list quotations: %w", err)
	}
	defer rows.Close()

	var list []*entity.Quotation
	for rows.Next() {
		q, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quotation: %w", err)
		}
		list = append(list, q)
	}
	return list, rows.Err()
}

// Update writes every mutable column. The quotation id and lineage links
// never change after creation.
func (r *QuotationRepo) Update(ctx context.Context, q *entity.Quotation) error {
	lineItems, customerInfo, err := marshalQuotationJSON(q)
	if err != nil {
		return err
	}
	query := `
		UPDATE quotations SET
			name = $2, quotation_date = $3, valid_until = $4,
			amount = $5, subtotal = $6, tax_amount = $7, tax_percentage = $8,
			discount_amount = $9, discount_percentage = $10, total_amount = $11,
			currency = $12, line_items = $13, status = $14,
			customer_info = $15, file_path = $16,
			submitted_date = $17, submitted_by = $18,
			approved_date = $19, approved_by = $20,
			rejected_by = $21, reject_reason = $22,
			updated_on = $23, updated_by = $24
		WHERE id = $1 AND is_active = true`
	cmd, err := r.q.Exec(ctx, query,
		q.ID, q.Name, q.QuotationDate, q.ValidUntil,
		q.Amount, q.Subtotal, q.TaxAmount, q.TaxPercentage,
		q.DiscountAmount, q.DiscountPercentage, q.TotalAmount,
		q.Currency, lineItems, q.Status,
		customerInfo, q.FilePath,
		q.SubmittedDate, q.SubmittedBy,
		q.ApprovedDate, q.ApprovedBy,
		q.RejectedBy, q.RejectReason,
		q.UpdatedOn, q.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("update quotation: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.NotFound("quotation not found")
	}
	return nil
}

// SoftDelete flips is_active and stamps the deletion.
func (r *QuotationRepo) SoftDelete(ctx context.Context, id, by int64) error {
	cmd, err := r.q.Exec(ctx, `
		UPDATE quotations
		SET is_active = false, deleted_on = now(), deleted_by = $2,
		    updated_on = now(), updated_by = $2
		WHERE id = $1 AND is_active = true`, id, by)
	if err != nil {
		return fmt.Errorf("delete quotation: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return apperr.NotFound("quotation not found")
	}
	return nil
}

func (r *QuotationRepo) scanOne(row pgx.Row) (*entity.Quotation, error) {
	q := &entity.Quotation{}
	var lineItems, customerInfo []byte
	err := row.Scan(
		&q.ID, &q.QuotationID, &q.OpportunityID, &q.Name, &q.QuotationDate, &q.ValidUntil,
		&q.Amount, &q.Subtotal, &q.TaxAmount, &q.TaxPercentage, &q.DiscountAmount, &q.DiscountPercentage,
		&q.TotalAmount, &q.Currency, &lineItems, &q.Status, &q.RevisionNumber, &q.ParentQuotationID,
		&customerInfo, &q.FilePath,
		&q.SubmittedDate, &q.SubmittedBy, &q.ApprovedDate, &q.ApprovedBy, &q.RejectedBy, &q.RejectReason,
		&q.CreatedOn, &q.UpdatedOn, &q.DeletedOn, &q.CreatedBy, &q.UpdatedBy, &q.DeletedBy, &q.IsActive,
	)
	if err != nil {
		return nil, err
	}
	if len(lineItems) > 0 {
		if err := json.Unmarshal(lineItems, &q.LineItems); err != nil {
			return nil, fmt.Errorf("unmarshal line items: %w", err)
		}
	}
	if len(customerInfo) > 0 {
		if err := json.Unmarshal(customerInfo, &q.CustomerInfo); err != nil {
			return nil, fmt.Errorf("unmarshal customer info: %w", err)
		}
	}
	return q, nil
}

func marshalQuotationJSON(q *entity.Quotation) (lineItems, customerInfo []byte, err error) {
	lineItems, err = json.Marshal(q.LineItems)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal line items: %w", err)
	}
	customerInfo, err = json.Marshal(q.CustomerInfo)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal customer info: %w", err)
	}
	return lineItems, customerInfo, nil
}
