package opportunity

import (
	"context"

	"github.com/salesdesk/crm-api/internal/domain/entity"
	"github.com/salesdesk/crm-api/internal/domain/repository"
)

// Repos bundles the tx-bound repositories a unit of work sees.
type Repos struct {
	Opportunities  repository.OpportunityRepository
	Quotations     repository.QuotationRepository
	Leads          repository.LeadRepository
	Companies      repository.CompanyRepository
	Contacts       repository.ContactRepository
	SalesProcesses repository.SalesProcessRepository
}

// TxRunner runs fn inside one database transaction; the repos passed to fn
// are bound to that transaction. An error from fn rolls everything back.
type TxRunner interface {
	Run(ctx context.Context, fn func(r Repos) error) error
}

// AuditSink records one event per successful mutation. Best-effort: callers
// log and swallow failures, the mutation never blocks on it.
type AuditSink interface {
	Write(ctx context.Context, event *entity.AuditEvent) error
}

// BlobStore stores raw bytes and returns an opaque path usable as a stage
// artifact reference. Blob lifetimes outlive the opportunity.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// SessionStore resolves an opaque bearer token to a user context.
type SessionStore interface {
	Resolve(ctx context.Context, token string) (*entity.UserContext, error)
}

// QuotationPDFGenerator renders the printable quotation document.
type QuotationPDFGenerator interface {
	Generate(ctx context.Context, q *entity.Quotation) ([]byte, error)
}
