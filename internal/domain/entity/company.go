package entity

// Company is a customer account. Managed by the master-data module; the core
// only reads it for snapshots and display names.
type Company struct {
	ID   int64
	Name string

	Audit
}

// Contact is a person at a company. Decision-Maker contacts are the only
// ones an opportunity may be created against.
type Contact struct {
	ID              int64
	CompanyID       int64
	Name            string
	Email           string
	Phone           string
	IsDecisionMaker bool

	Audit
}
