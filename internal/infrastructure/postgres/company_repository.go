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

var _ repository.CompanyRepository = (*CompanyRepo)(nil)
var _ repository.ContactRepository = (*ContactRepo)(nil)

// CompanyRepo reads company master data (pool or tx).
type CompanyRepo struct {
	q Querier
}

// NewCompanyRepository builds the adapter. Pass a pool or a tx (Querier).
func NewCompanyRepository(q Querier) *CompanyRepo {
	return &CompanyRepo{q: q}
}

// GetByID loads one active company or a not_found error.
func (r *CompanyRepo) GetByID(ctx context.Context, id int64) (*entity.Company, error) {
	var c entity.Company
	err := r.q.QueryRow(ctx, `
		SELECT id, name, created_on, updated_on, is_active
		FROM companies WHERE id = $1 AND is_active = true`, id).Scan(
		&c.ID, &c.Name, &c.CreatedOn, &c.UpdatedOn, &c.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("company not found")
		}
		return nil, fmt.Errorf("get company: %w", err)
	}
	return &c, nil
}

// ContactRepo reads contact master data (pool or tx).
type ContactRepo struct {
	q Querier
}

// NewContactRepository builds the adapter. Pass a pool or a tx (Querier).
func NewContactRepository(q Querier) *ContactRepo {
	return &ContactRepo{q: q}
}

// GetByID loads one contact; a missing row returns nil, nil.
func (r *ContactRepo) GetByID(ctx context.Context, id int64) (*entity.Contact, error) {
	var c entity.Contact
	err := r.q.QueryRow(ctx, `
		SELECT id, company_id, name, email, phone, is_decision_maker,
		       created_on, updated_on, is_active
		FROM contacts WHERE id = $1`, id).Scan(
		&c.ID, &c.CompanyID, &c.Name, &c.Email, &c.Phone, &c.IsDecisionMaker,
		&c.CreatedOn, &c.UpdatedOn, &c.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return &c, nil
}
