package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mkleiva/riskview/internal/domain"
	"github.com/mkleiva/riskview/internal/querykey"
)

// ControlAPI is the slice of the backend the controls view consumes.
type ControlAPI interface {
	FetchControlPage(ctx context.Context, params querykey.Params) (domain.ControlPage, error)
	FetchRiskRelations(ctx context.Context, controlIDs []string) (domain.RiskRelations, error)
	GetControl(ctx context.Context, id string) (domain.Control, error)
	CreateControl(ctx context.Context, draft domain.ControlDraft) (domain.Control, error)
	UpdateControl(ctx context.Context, id string, patch domain.ControlPatch) (domain.Control, error)
	DeleteControl(ctx context.Context, id string, deletionReason string) error
	AttachRisk(ctx context.Context, controlID, riskID string) (domain.RiskLink, error)
	DetachRisk(ctx context.Context, controlID, riskID string) error
}

func (c *Client) FetchControlPage(ctx context.Context, params querykey.Params) (domain.ControlPage, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/pages/controls", queryFromParams(params), nil)
	if err != nil {
		return domain.ControlPage{}, fmt.Errorf("failed to fetch controls page: %w", err)
	}

	var page controlPageDTO
	if err := json.Unmarshal(data, &page); err != nil {
		return domain.ControlPage{}, fmt.Errorf("failed to decode controls page: %w", err)
	}
	return page.toDomain(), nil
}

// FetchRiskRelations loads the risks each of the given controls mitigates in
// one batched request.
func (c *Client) FetchRiskRelations(ctx context.Context, controlIDs []string) (domain.RiskRelations, error) {
	body := struct {
		IDs []string `json:"ids"`
	}{IDs: controlIDs}

	data, err := c.do(ctx, http.MethodPost, "/api/controls/batch-relations", nil, body)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch risk relations: %w", err)
	}

	var payload map[string][]riskLinkDTO
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode risk relations: %w", err)
	}

	relations := make(domain.RiskRelations, len(payload))
	for controlID, links := range payload {
		converted := make([]domain.RiskLink, 0, len(links))
		for _, link := range links {
			converted = append(converted, domain.RiskLink{
				ControlID:    link.ControlID,
				Risk:         link.Risk.toDomain(),
				ResidualRisk: link.ResidualRisk,
			})
		}
		relations[controlID] = converted
	}
	return relations, nil
}

// ListControls is the plain paginated listing, used by the attach-control
// picker among others.
func (c *Client) ListControls(ctx context.Context, params querykey.Params) ([]domain.ControlSummary, domain.Pagination, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/controls", queryFromParams(params), nil)
	if err != nil {
		return nil, domain.Pagination{}, fmt.Errorf("failed to list controls: %w", err)
	}

	var envelope struct {
		Data       []controlSummaryDTO `json:"data"`
		Pagination paginationDTO       `json:"pagination"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, domain.Pagination{}, fmt.Errorf("failed to decode controls listing: %w", err)
	}

	controls := make([]domain.ControlSummary, 0, len(envelope.Data))
	for _, control := range envelope.Data {
		controls = append(controls, control.toDomain())
	}
	return controls, envelope.Pagination.toDomain(), nil
}

func (c *Client) GetControl(ctx context.Context, id string) (domain.Control, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/controls/"+id, nil, nil)
	if err != nil {
		return domain.Control{}, fmt.Errorf("failed to fetch control %s: %w", id, err)
	}

	var control controlDTO
	if err := json.Unmarshal(data, &control); err != nil {
		return domain.Control{}, fmt.Errorf("failed to decode control: %w", err)
	}
	return control.toDomain(), nil
}

func (c *Client) CreateControl(ctx context.Context, draft domain.ControlDraft) (domain.Control, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/controls", nil, controlDraftDTO(draft))
	if err != nil {
		return domain.Control{}, fmt.Errorf("failed to create control: %w", err)
	}

	var control controlDTO
	if err := json.Unmarshal(data, &control); err != nil {
		return domain.Control{}, fmt.Errorf("failed to decode created control: %w", err)
	}
	return control.toDomain(), nil
}

func (c *Client) UpdateControl(ctx context.Context, id string, patch domain.ControlPatch) (domain.Control, error) {
	data, err := c.do(ctx, http.MethodPatch, "/api/controls/"+id, nil, controlPatchDTO(patch))
	if err != nil {
		return domain.Control{}, fmt.Errorf("failed to update control %s: %w", id, err)
	}

	var control controlDTO
	if err := json.Unmarshal(data, &control); err != nil {
		return domain.Control{}, fmt.Errorf("failed to decode updated control: %w", err)
	}
	return control.toDomain(), nil
}

// AttachRisk creates the association from the controls side and returns the
// link with the residual risk the server computed for it.
func (c *Client) AttachRisk(ctx context.Context, controlID, riskID string) (domain.RiskLink, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/controls/"+controlID+"/risks/"+riskID, nil, nil)
	if err != nil {
		return domain.RiskLink{}, fmt.Errorf("failed to attach risk %s to control %s: %w", riskID, controlID, err)
	}

	var link riskLinkDTO
	if err := json.Unmarshal(data, &link); err != nil {
		return domain.RiskLink{}, fmt.Errorf("failed to decode risk link: %w", err)
	}
	return domain.RiskLink{
		ControlID:    link.ControlID,
		Risk:         link.Risk.toDomain(),
		ResidualRisk: link.ResidualRisk,
	}, nil
}

func (c *Client) DetachRisk(ctx context.Context, controlID, riskID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/controls/"+controlID+"/risks/"+riskID, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to detach risk %s from control %s: %w", riskID, controlID, err)
	}
	return nil
}

func (c *Client) DeleteControl(ctx context.Context, id string, deletionReason string) error {
	body := struct {
		DeletionReason string `json:"deletionReason"`
	}{DeletionReason: deletionReason}

	_, err := c.do(ctx, http.MethodDelete, "/api/controls/"+id, nil, body)
	if err != nil {
		return fmt.Errorf("failed to delete control %s: %w", id, err)
	}
	return nil
}
