package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salesdesk/crm-api/internal/application/opportunity"
	"github.com/salesdesk/crm-api/internal/domain/entity"
)

var _ opportunity.AuditSink = (*AuditSink)(nil)

// AuditSink appends audit events to the audit_log table. It writes on the
// pool, outside the mutating transaction: the mutation must not roll back
// when the audit write fails, and vice versa.
type AuditSink struct {
	pool *pgxpool.Pool
}

// NewAuditSink builds the sink on the pool.
func NewAuditSink(pool *pgxpool.Pool) *AuditSink {
	return &AuditSink{pool: pool}
}

// Write appends one event.
func (s *AuditSink) Write(ctx context.Context, event *entity.AuditEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_log (id, actor_id, action, entity, entity_id, payload, created_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.ActorID, event.Action, event.Entity, event.EntityID, payload, event.CreatedOn,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
