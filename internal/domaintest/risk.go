package domaintest

import (
	"time"

	"github.com/mkleiva/riskview/internal/domain"
)

type riskBuilder struct {
	summary *domain.RiskSummary
}

func (rb *riskBuilder) WithName(name string) *riskBuilder {
	rb.summary.Name = name
	return rb
}

func (rb *riskBuilder) WithCode(code string) *riskBuilder {
	rb.summary.Code = code
	return rb
}

func (rb *riskBuilder) WithScore(probability, impact int) *riskBuilder {
	rb.summary.Probability = probability
	rb.summary.Impact = impact
	rb.summary.InherentRisk = float64(probability * impact)
	rb.summary.ResidualRisk = rb.summary.InherentRisk
	return rb
}

func (rb *riskBuilder) WithOwner(ownerID string) *riskBuilder {
	rb.summary.OwnerID = ownerID
	return rb
}

func (rb *riskBuilder) WithProcess(processID string) *riskBuilder {
	rb.summary.ProcessID = processID
	return rb
}

func (rb *riskBuilder) WithStatus(status domain.ValidationStatus) *riskBuilder {
	rb.summary.Status = status
	return rb
}

func (rb *riskBuilder) WithResponsibleStatuses(statuses ...domain.ValidationStatus) *riskBuilder {
	rb.summary.ResponsibleStatuses = statuses
	return rb
}

func (rb *riskBuilder) WithControlCount(count int) *riskBuilder {
	rb.summary.ControlCount = count
	return rb
}

func (rb *riskBuilder) Build() domain.RiskSummary {
	return *rb.summary
}

func NewRiskBuilder(id string, createdAt time.Time) *riskBuilder {
	summary := &domain.RiskSummary{
		Risk: domain.Risk{
			ID:           id,
			Code:         "RSK-" + id,
			Name:         "Risk " + id,
			Probability:  2,
			Impact:       2,
			InherentRisk: 4,
			Status:       domain.StatusPendingValidation,
			CreatedAt:    createdAt,
			UpdatedAt:    createdAt,
		},
		ResidualRisk: 4,
	}
	return &riskBuilder{
		summary: summary,
	}
}
