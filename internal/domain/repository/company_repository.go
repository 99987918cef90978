package repository

import (
	"context"

	"github.com/salesdesk/crm-api/internal/domain/entity"
)

// CompanyRepository reads company master data (owned by the master-data module).
type CompanyRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.Company, error)
}

// ContactRepository reads contact master data.
type ContactRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.Contact, error)
}
