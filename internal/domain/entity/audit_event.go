package entity

import "time"

// AuditEvent is one append-only record of a successful mutation.
// Writes are best-effort: a failing sink never blocks the mutation.
type AuditEvent struct {
	ID        string // uuid
	ActorID   int64
	Action    string // e.g. "opportunity.stage_changed"
	Entity    string // "opportunity", "quotation", "lead"
	EntityID  string
	Payload   map[string]any
	CreatedOn time.Time
}
