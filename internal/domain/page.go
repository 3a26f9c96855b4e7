package domain

import "time"

type Pagination struct {
	Limit  int
	Offset int
	Total  int
}

// PageCounts are the per-status totals shown next to the filter affordances.
type PageCounts struct {
	ByStatus map[ValidationStatus]int
	ByLevel  map[RiskLevel]int
}

type Owner struct {
	ID   string
	Name string
}

type Category struct {
	ID   string
	Name string
}

// ProcessNode is one node of the macroprocess/process/subprocess hierarchy the
// backend filters on structurally.
type ProcessNode struct {
	ID       string
	Name     string
	Children []ProcessNode
}

// Catalogs hold the reference data embedded in a page aggregate.
type Catalogs struct {
	Owners     []Owner
	Categories []Category
	Processes  []ProcessNode
}

// RiskPage is the aggregate response for the risks view: one fetch, one cache
// key, replacing what would otherwise be several parallel calls.
type RiskPage struct {
	Risks       []RiskSummary
	Pagination  Pagination
	Counts      PageCounts
	Catalogs    Catalogs
	GeneratedAt time.Time
}

// ControlPage is the aggregate response for the controls view.
type ControlPage struct {
	Controls    []ControlSummary
	Pagination  Pagination
	Counts      PageCounts
	Catalogs    Catalogs
	GeneratedAt time.Time
}

// ControlRelations maps risk IDs to their attached controls.
type ControlRelations map[string][]ControlLink

// RiskRelations maps control IDs to their attached risks.
type RiskRelations map[string][]RiskLink
