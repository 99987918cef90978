package entity

import "time"

// Lead statuses the core reads or writes. The rest of the lead lifecycle is
// owned by the lead module.
const (
	LeadStatusQualified = "Qualified"
	LeadStatusConverted = "Converted"
	LeadStatusClosed    = "Closed"

	ReviewStatusApproved = "Approved"
)

// Lead is the conversion source of an opportunity. The core only flips the
// conversion fields; everything else is read-only here.
type Lead struct {
	ID                       int64
	Status                   string
	Reviewed                 bool
	ReviewStatus             string
	CompanyID                int64
	LeadSource               string
	Converted                bool
	ConvertedToOpportunityID *string // POT id of the resulting opportunity
	ConversionDate           *time.Time
	LastActivityOn           time.Time

	Audit
}
