package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mkleiva/riskview/internal/domain"
	"github.com/mkleiva/riskview/internal/querykey"
)

// RiskAPI is the slice of the backend the risks view consumes.
type RiskAPI interface {
	FetchRiskPage(ctx context.Context, params querykey.Params) (domain.RiskPage, error)
	FetchControlRelations(ctx context.Context, riskIDs []string) (domain.ControlRelations, error)
	GetRisk(ctx context.Context, id string) (domain.Risk, error)
	CreateRisk(ctx context.Context, draft domain.RiskDraft) (domain.Risk, error)
	UpdateRisk(ctx context.Context, id string, patch domain.RiskPatch) (domain.Risk, error)
	DeleteRisk(ctx context.Context, id string, deletionReason string) error
	AttachControl(ctx context.Context, riskID, controlID string) (domain.ControlLink, error)
	DetachControl(ctx context.Context, riskID, controlID string) error
}

// FetchRiskPage loads the risks page aggregate: rows, pagination, per-status
// and per-level counts and the filter catalogs in one response.
func (c *Client) FetchRiskPage(ctx context.Context, params querykey.Params) (domain.RiskPage, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/pages/risks", queryFromParams(params), nil)
	if err != nil {
		return domain.RiskPage{}, fmt.Errorf("failed to fetch risks page: %w", err)
	}

	var page riskPageDTO
	if err := json.Unmarshal(data, &page); err != nil {
		return domain.RiskPage{}, fmt.Errorf("failed to decode risks page: %w", err)
	}
	return page.toDomain(), nil
}

// FetchControlRelations loads the controls attached to each of the given
// risks in one batched request.
func (c *Client) FetchControlRelations(ctx context.Context, riskIDs []string) (domain.ControlRelations, error) {
	body := struct {
		IDs []string `json:"ids"`
	}{IDs: riskIDs}

	data, err := c.do(ctx, http.MethodPost, "/api/risks/batch-relations", nil, body)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch control relations: %w", err)
	}

	var payload map[string][]controlLinkDTO
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode control relations: %w", err)
	}

	relations := make(domain.ControlRelations, len(payload))
	for riskID, links := range payload {
		converted := make([]domain.ControlLink, 0, len(links))
		for _, link := range links {
			converted = append(converted, domain.ControlLink{
				RiskID:       link.RiskID,
				Control:      link.Control.toDomain(),
				ResidualRisk: link.ResidualRisk,
			})
		}
		relations[riskID] = converted
	}
	return relations, nil
}

// ListRisks is the plain paginated listing, used by pickers and dialogs that
// need rows without the page aggregate's counts and catalogs.
func (c *Client) ListRisks(ctx context.Context, params querykey.Params) ([]domain.RiskSummary, domain.Pagination, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/risks", queryFromParams(params), nil)
	if err != nil {
		return nil, domain.Pagination{}, fmt.Errorf("failed to list risks: %w", err)
	}

	var envelope struct {
		Data       []riskSummaryDTO `json:"data"`
		Pagination paginationDTO    `json:"pagination"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, domain.Pagination{}, fmt.Errorf("failed to decode risks listing: %w", err)
	}

	risks := make([]domain.RiskSummary, 0, len(envelope.Data))
	for _, risk := range envelope.Data {
		risks = append(risks, risk.toDomain())
	}
	return risks, envelope.Pagination.toDomain(), nil
}

// FetchRiskControls loads the controls attached to one risk, for detail
// dialogs opened outside a loaded page.
func (c *Client) FetchRiskControls(ctx context.Context, riskID string) ([]domain.ControlLink, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/risks/"+riskID+"/controls", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch controls for risk %s: %w", riskID, err)
	}

	var payload []controlLinkDTO
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode control links: %w", err)
	}

	links := make([]domain.ControlLink, 0, len(payload))
	for _, link := range payload {
		links = append(links, domain.ControlLink{
			RiskID:       link.RiskID,
			Control:      link.Control.toDomain(),
			ResidualRisk: link.ResidualRisk,
		})
	}
	return links, nil
}

func (c *Client) GetRisk(ctx context.Context, id string) (domain.Risk, error) {
	data, err := c.do(ctx, http.MethodGet, "/api/risks/"+id, nil, nil)
	if err != nil {
		return domain.Risk{}, fmt.Errorf("failed to fetch risk %s: %w", id, err)
	}

	var risk riskDTO
	if err := json.Unmarshal(data, &risk); err != nil {
		return domain.Risk{}, fmt.Errorf("failed to decode risk: %w", err)
	}
	return risk.toDomain(), nil
}

func (c *Client) CreateRisk(ctx context.Context, draft domain.RiskDraft) (domain.Risk, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/risks", nil, riskDraftDTO(draft))
	if err != nil {
		return domain.Risk{}, fmt.Errorf("failed to create risk: %w", err)
	}

	var risk riskDTO
	if err := json.Unmarshal(data, &risk); err != nil {
		return domain.Risk{}, fmt.Errorf("failed to decode created risk: %w", err)
	}
	return risk.toDomain(), nil
}

func (c *Client) UpdateRisk(ctx context.Context, id string, patch domain.RiskPatch) (domain.Risk, error) {
	data, err := c.do(ctx, http.MethodPatch, "/api/risks/"+id, nil, riskPatchDTO(patch))
	if err != nil {
		return domain.Risk{}, fmt.Errorf("failed to update risk %s: %w", id, err)
	}

	var risk riskDTO
	if err := json.Unmarshal(data, &risk); err != nil {
		return domain.Risk{}, fmt.Errorf("failed to decode updated risk: %w", err)
	}
	return risk.toDomain(), nil
}

// DeleteRisk soft deletes a risk. The backend requires the reason; validating
// it before the request is the caller's job.
func (c *Client) DeleteRisk(ctx context.Context, id string, deletionReason string) error {
	body := struct {
		DeletionReason string `json:"deletionReason"`
	}{DeletionReason: deletionReason}

	_, err := c.do(ctx, http.MethodDelete, "/api/risks/"+id, nil, body)
	if err != nil {
		return fmt.Errorf("failed to delete risk %s: %w", id, err)
	}
	return nil
}

// AttachControl creates the association and returns the link with the residual
// risk the server computed for it.
func (c *Client) AttachControl(ctx context.Context, riskID, controlID string) (domain.ControlLink, error) {
	data, err := c.do(ctx, http.MethodPost, "/api/risks/"+riskID+"/controls/"+controlID, nil, nil)
	if err != nil {
		return domain.ControlLink{}, fmt.Errorf("failed to attach control %s to risk %s: %w", controlID, riskID, err)
	}

	var link controlLinkDTO
	if err := json.Unmarshal(data, &link); err != nil {
		return domain.ControlLink{}, fmt.Errorf("failed to decode control link: %w", err)
	}
	return domain.ControlLink{
		RiskID:       link.RiskID,
		Control:      link.Control.toDomain(),
		ResidualRisk: link.ResidualRisk,
	}, nil
}

func (c *Client) DetachControl(ctx context.Context, riskID, controlID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/risks/"+riskID+"/controls/"+controlID, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to detach control %s from risk %s: %w", controlID, riskID, err)
	}
	return nil
}
