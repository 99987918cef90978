package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salesdesk/crm-api/internal/application/opportunity"
)

// Ensure TxRunner implements opportunity.TxRunner.
var _ opportunity.TxRunner = (*TxRunner)(nil)

// TxRunner runs callbacks inside one PostgreSQL transaction.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner builds the runner on the pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// Run begins a transaction, executes fn with repos bound to the tx and
// commits, or rolls back when fn errors.
func (r *TxRunner) Run(ctx context.Context, fn func(repos opportunity.Repos) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	repos := opportunity.Repos{
		Opportunities:  NewOpportunityRepository(tx),
		Quotations:     NewQuotationRepository(tx),
		Leads:          NewLeadRepository(tx),
		Companies:      NewCompanyRepository(tx),
		Contacts:       NewContactRepository(tx),
		SalesProcesses: NewSalesProcessRepository(tx),
	}

	if err := fn(repos); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
