package entity

import "time"

// Audit is the bookkeeping block every persisted entity carries.
// Soft delete flips IsActive and stamps DeletedOn/DeletedBy; rows are never
// hard-deleted.
type Audit struct {
	CreatedOn time.Time
	UpdatedOn time.Time
	DeletedOn *time.Time
	CreatedBy int64
	UpdatedBy int64
	DeletedBy *int64
	IsActive  bool
}

// Touch stamps an update by the given actor.
func (a *Audit) Touch(by int64, now time.Time) {
	a.UpdatedOn = now
	a.UpdatedBy = by
}

// MarkDeleted soft-deletes the entity.
func (a *Audit) MarkDeleted(by int64, now time.Time) {
	a.IsActive = false
	a.DeletedOn = &now
	a.DeletedBy = &by
	a.Touch(by, now)
}
