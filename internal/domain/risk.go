package domain

import (
	"time"
)

type Risk struct {
	ID          string
	Code        string
	Name        string
	Description string

	CategoryID string
	OwnerID    string
	ProcessID  string

	// Probability and Impact are on the 1-5 governance scale; InherentRisk is
	// their product (1-25) as scored before any control is applied.
	Probability  int
	Impact       int
	InherentRisk float64

	Status ValidationStatus

	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
	DeletionReason string
}

// RiskSummary is the row shape served by the risks page aggregate: the entity
// plus server-computed aggregates. Relation data is absent until detail mode
// fetches it.
type RiskSummary struct {
	Risk

	ControlCount int
	// ResidualRisk as computed server-side; superseded client-side by the MIN
	// reduction over fetched control links once relations are loaded.
	ResidualRisk float64
	// Validation statuses of the linked responsible parties
	ResponsibleStatuses []ValidationStatus
}

// RiskDraft carries the fields of a risk to be created.
type RiskDraft struct {
	Code        string
	Name        string
	Description string
	CategoryID  string
	OwnerID     string
	ProcessID   string
	Probability int
	Impact      int
}

// RiskPatch carries a partial update. Nil fields are left unchanged.
type RiskPatch struct {
	Name        *string
	Description *string
	CategoryID  *string
	OwnerID     *string
	Probability *int
	Impact      *int
}
