package domain

import (
	"time"
)

type Control struct {
	ID          string
	Code        string
	Name        string
	Description string

	OwnerID string

	// Effectiveness is on the 1-5 scale; 5 mitigates the most
	Effectiveness int

	Status ValidationStatus

	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
	DeletionReason string
}

// ControlSummary is the row shape served by the controls page aggregate.
type ControlSummary struct {
	Control

	RiskCount           int
	ResponsibleStatuses []ValidationStatus
}

type ControlDraft struct {
	Code          string
	Name          string
	Description   string
	OwnerID       string
	Effectiveness int
}

type ControlPatch struct {
	Name          *string
	Description   *string
	OwnerID       *string
	Effectiveness *int
}
