package domaintest

import (
	"time"

	"github.com/mkleiva/riskview/internal/domain"
)

type controlBuilder struct {
	summary *domain.ControlSummary
}

func (cb *controlBuilder) WithName(name string) *controlBuilder {
	cb.summary.Name = name
	return cb
}

func (cb *controlBuilder) WithCode(code string) *controlBuilder {
	cb.summary.Code = code
	return cb
}

func (cb *controlBuilder) WithEffectiveness(effectiveness int) *controlBuilder {
	cb.summary.Effectiveness = effectiveness
	return cb
}

func (cb *controlBuilder) WithOwner(ownerID string) *controlBuilder {
	cb.summary.OwnerID = ownerID
	return cb
}

func (cb *controlBuilder) WithStatus(status domain.ValidationStatus) *controlBuilder {
	cb.summary.Status = status
	return cb
}

func (cb *controlBuilder) WithResponsibleStatuses(statuses ...domain.ValidationStatus) *controlBuilder {
	cb.summary.ResponsibleStatuses = statuses
	return cb
}

func (cb *controlBuilder) WithRiskCount(count int) *controlBuilder {
	cb.summary.RiskCount = count
	return cb
}

func (cb *controlBuilder) Build() domain.ControlSummary {
	return *cb.summary
}

func (cb *controlBuilder) BuildControl() domain.Control {
	return cb.summary.Control
}

func NewControlBuilder(id string, createdAt time.Time) *controlBuilder {
	summary := &domain.ControlSummary{
		Control: domain.Control{
			ID:            id,
			Code:          "CTL-" + id,
			Name:          "Control " + id,
			Effectiveness: 3,
			Status:        domain.StatusPendingValidation,
			CreatedAt:     createdAt,
			UpdatedAt:     createdAt,
		},
	}
	return &controlBuilder{
		summary: summary,
	}
}
