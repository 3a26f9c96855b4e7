package apiclient

import (
	"time"

	"github.com/mkleiva/riskview/internal/domain"
)

type paginationDTO struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

func (p paginationDTO) toDomain() domain.Pagination {
	return domain.Pagination{Limit: p.Limit, Offset: p.Offset, Total: p.Total}
}

type countsDTO struct {
	ByStatus map[string]int `json:"byStatus"`
	ByLevel  map[string]int `json:"byLevel"`
}

func (c countsDTO) toDomain() domain.PageCounts {
	counts := domain.PageCounts{
		ByStatus: make(map[domain.ValidationStatus]int, len(c.ByStatus)),
		ByLevel:  make(map[domain.RiskLevel]int, len(c.ByLevel)),
	}
	for status, count := range c.ByStatus {
		counts.ByStatus[domain.ValidationStatus(status)] = count
	}
	for level, count := range c.ByLevel {
		counts.ByLevel[domain.RiskLevel(level)] = count
	}
	return counts
}

type ownerDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type categoryDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type processNodeDTO struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Children []processNodeDTO `json:"children"`
}

func (p processNodeDTO) toDomain() domain.ProcessNode {
	node := domain.ProcessNode{ID: p.ID, Name: p.Name}
	for _, child := range p.Children {
		node.Children = append(node.Children, child.toDomain())
	}
	return node
}

type catalogsDTO struct {
	Owners     []ownerDTO       `json:"owners"`
	Categories []categoryDTO    `json:"categories"`
	Processes  []processNodeDTO `json:"processes"`
}

func (c catalogsDTO) toDomain() domain.Catalogs {
	catalogs := domain.Catalogs{}
	for _, owner := range c.Owners {
		catalogs.Owners = append(catalogs.Owners, domain.Owner(owner))
	}
	for _, category := range c.Categories {
		catalogs.Categories = append(catalogs.Categories, domain.Category(category))
	}
	for _, process := range c.Processes {
		catalogs.Processes = append(catalogs.Processes, process.toDomain())
	}
	return catalogs
}

type riskDTO struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`

	CategoryID string `json:"categoryId"`
	OwnerID    string `json:"ownerId"`
	ProcessID  string `json:"processId"`

	Probability  int     `json:"probability"`
	Impact       int     `json:"impact"`
	InherentRisk float64 `json:"inherentRisk"`

	Status string `json:"status"`

	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	DeletedAt      *time.Time `json:"deletedAt"`
	DeletionReason string     `json:"deletionReason"`
}

func (r riskDTO) toDomain() domain.Risk {
	return domain.Risk{
		ID:             r.ID,
		Code:           r.Code,
		Name:           r.Name,
		Description:    r.Description,
		CategoryID:     r.CategoryID,
		OwnerID:        r.OwnerID,
		ProcessID:      r.ProcessID,
		Probability:    r.Probability,
		Impact:         r.Impact,
		InherentRisk:   r.InherentRisk,
		Status:         domain.ValidationStatus(r.Status),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		DeletedAt:      r.DeletedAt,
		DeletionReason: r.DeletionReason,
	}
}

type riskSummaryDTO struct {
	riskDTO

	ControlCount        int      `json:"controlCount"`
	ResidualRisk        float64  `json:"residualRisk"`
	ResponsibleStatuses []string `json:"responsibleStatuses"`
}

func (r riskSummaryDTO) toDomain() domain.RiskSummary {
	summary := domain.RiskSummary{
		Risk:         r.riskDTO.toDomain(),
		ControlCount: r.ControlCount,
		ResidualRisk: r.ResidualRisk,
	}
	for _, status := range r.ResponsibleStatuses {
		summary.ResponsibleStatuses = append(summary.ResponsibleStatuses, domain.ValidationStatus(status))
	}
	return summary
}

type controlDTO struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`

	OwnerID string `json:"ownerId"`

	Effectiveness int `json:"effectiveness"`

	Status string `json:"status"`

	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	DeletedAt      *time.Time `json:"deletedAt"`
	DeletionReason string     `json:"deletionReason"`
}

func (c controlDTO) toDomain() domain.Control {
	return domain.Control{
		ID:             c.ID,
		Code:           c.Code,
		Name:           c.Name,
		Description:    c.Description,
		OwnerID:        c.OwnerID,
		Effectiveness:  c.Effectiveness,
		Status:         domain.ValidationStatus(c.Status),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
		DeletedAt:      c.DeletedAt,
		DeletionReason: c.DeletionReason,
	}
}

type controlSummaryDTO struct {
	controlDTO

	RiskCount           int      `json:"riskCount"`
	ResponsibleStatuses []string `json:"responsibleStatuses"`
}

func (c controlSummaryDTO) toDomain() domain.ControlSummary {
	summary := domain.ControlSummary{
		Control:   c.controlDTO.toDomain(),
		RiskCount: c.RiskCount,
	}
	for _, status := range c.ResponsibleStatuses {
		summary.ResponsibleStatuses = append(summary.ResponsibleStatuses, domain.ValidationStatus(status))
	}
	return summary
}

type controlLinkDTO struct {
	RiskID       string     `json:"riskId"`
	Control      controlDTO `json:"control"`
	ResidualRisk float64    `json:"residualRisk"`
}

type riskLinkDTO struct {
	ControlID    string  `json:"controlId"`
	Risk         riskDTO `json:"risk"`
	ResidualRisk float64 `json:"residualRisk"`
}

type riskPageDTO struct {
	Risks       []riskSummaryDTO `json:"data"`
	Pagination  paginationDTO    `json:"pagination"`
	Counts      countsDTO        `json:"counts"`
	Catalogs    catalogsDTO      `json:"catalogs"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

func (p riskPageDTO) toDomain() domain.RiskPage {
	page := domain.RiskPage{
		Pagination:  p.Pagination.toDomain(),
		Counts:      p.Counts.toDomain(),
		Catalogs:    p.Catalogs.toDomain(),
		GeneratedAt: p.GeneratedAt,
	}
	for _, risk := range p.Risks {
		page.Risks = append(page.Risks, risk.toDomain())
	}
	return page
}

type controlPageDTO struct {
	Controls    []controlSummaryDTO `json:"data"`
	Pagination  paginationDTO       `json:"pagination"`
	Counts      countsDTO           `json:"counts"`
	Catalogs    catalogsDTO         `json:"catalogs"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

func (p controlPageDTO) toDomain() domain.ControlPage {
	page := domain.ControlPage{
		Pagination:  p.Pagination.toDomain(),
		Counts:      p.Counts.toDomain(),
		Catalogs:    p.Catalogs.toDomain(),
		GeneratedAt: p.GeneratedAt,
	}
	for _, control := range p.Controls {
		page.Controls = append(page.Controls, control.toDomain())
	}
	return page
}

type riskDraftDTO struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CategoryID  string `json:"categoryId"`
	OwnerID     string `json:"ownerId"`
	ProcessID   string `json:"processId"`
	Probability int    `json:"probability"`
	Impact      int    `json:"impact"`
}

type riskPatchDTO struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	CategoryID  *string `json:"categoryId,omitempty"`
	OwnerID     *string `json:"ownerId,omitempty"`
	Probability *int    `json:"probability,omitempty"`
	Impact      *int    `json:"impact,omitempty"`
}

type controlDraftDTO struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	OwnerID       string `json:"ownerId"`
	Effectiveness int    `json:"effectiveness"`
}

type controlPatchDTO struct {
	Name          *string `json:"name,omitempty"`
	Description   *string `json:"description,omitempty"`
	OwnerID       *string `json:"ownerId,omitempty"`
	Effectiveness *int    `json:"effectiveness,omitempty"`
}
