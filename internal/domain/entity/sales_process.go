package entity

import "time"

// SalesProcess statuses.
const (
	ProcessOpen       = "Open"
	ProcessInProgress = "In_Progress"
	ProcessCompleted  = "Completed"
	ProcessSkipped    = "Skipped"
)

// SalesProcess is the per-stage ledger entry of an opportunity. Records for
// stages 1..5 are pre-created at conversion, or lazily on first entry.
type SalesProcess struct {
	ID             int64
	OpportunityID  int64
	Stage          Stage
	StageOrder     int // 1..5
	Status         string
	CompletionDate *time.Time
	Comments       string
	CompletedBy    *int64

	Audit
}
