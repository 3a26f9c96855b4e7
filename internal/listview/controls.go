package listview

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/mkleiva/riskview/internal/adapters/apiclient"
	"github.com/mkleiva/riskview/internal/adapters/querystore"
	"github.com/mkleiva/riskview/internal/domain"
	e "github.com/mkleiva/riskview/internal/errors"
	"github.com/mkleiva/riskview/internal/mutation"
	"github.com/mkleiva/riskview/internal/orchestrator"
	"github.com/mkleiva/riskview/internal/querykey"
	"github.com/mkleiva/riskview/internal/reporting"
)

// ControlRow is one rendered row of the controls table.
type ControlRow struct {
	domain.ControlSummary

	// Risks is nil until the bulk relations for the page are loaded.
	Risks           []domain.RiskLink
	RelationsLoaded bool

	OverallStatus domain.ValidationStatus
}

// ControlController is the controls-table counterpart of RiskController. The
// derived residual lives on the risks side; here the relation data feeds the
// "mitigates N risks" column and the detail dialog.
type ControlController struct {
	store    *querystore.Store
	executor *mutation.Executor
	api      apiclient.ControlAPI
	view     *orchestrator.View[domain.ControlPage, domain.RiskRelations]

	mu       sync.Mutex
	sort     SortState
	onChange func()
}

func NewControlController(
	store *querystore.Store,
	executor *mutation.Executor,
	api apiclient.ControlAPI,
	onChange func(),
) *ControlController {
	controller := &ControlController{
		store:    store,
		executor: executor,
		api:      api,
		sort:     SortState{Column: SortByCode},
		onChange: onChange,
	}
	controller.view = orchestrator.NewView(orchestrator.Config[domain.ControlPage, domain.RiskRelations]{
		Name:           "controls",
		Store:          store,
		FetchPage:      api.FetchControlPage,
		FetchRelations: api.FetchRiskRelations,
		PageIDs:        controlPageIDs,
		OnChange:       onChange,
	})
	return controller
}

func controlPageIDs(page domain.ControlPage) []string {
	ids := make([]string, 0, len(page.Controls))
	for _, control := range page.Controls {
		ids = append(ids, control.ID)
	}
	return ids
}

func (c *ControlController) View() *orchestrator.View[domain.ControlPage, domain.RiskRelations] {
	return c.view
}

func (c *ControlController) Refresh(ctx context.Context) error {
	return c.view.Refresh(ctx)
}

// Close releases the view's timers. Call it when the table leaves the screen.
func (c *ControlController) Close() {
	c.view.Close()
}

// execute runs one mutation with the owning view tagged on its error reports.
func (c *ControlController) execute(ctx context.Context, spec mutation.Spec) error {
	ctx = reporting.AddTagsToContext(ctx, map[string]string{"view": "controls"})
	return c.executor.Execute(ctx, spec)
}

func (c *ControlController) ToggleSort(column SortColumn) {
	c.mu.Lock()
	c.sort = c.sort.toggled(column)
	c.mu.Unlock()
	if c.onChange != nil {
		c.onChange()
	}
}

func (c *ControlController) Sort() SortState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sort
}

func (c *ControlController) Rows() []ControlRow {
	page, ok := querystore.Data[domain.ControlPage](c.store, c.view.PageKey())
	if !ok {
		return nil
	}

	var relations domain.RiskRelations
	relationsLoaded := false
	if c.view.DetailMode() {
		if ids := controlPageIDs(page); len(ids) > 0 {
			relations, relationsLoaded = querystore.Data[domain.RiskRelations](c.store, c.view.RelationsKey(ids))
		}
	}

	filters := c.view.Filters()
	rows := make([]ControlRow, 0, len(page.Controls))
	for _, summary := range page.Controls {
		row := ControlRow{ControlSummary: summary}

		if relationsLoaded {
			row.Risks = relations[summary.ID]
			row.RelationsLoaded = true
		}
		row.OverallStatus = domain.AggregateValidationStatus(summary.ResponsibleStatuses, summary.Status)

		if !controlRowMatches(row, filters) {
			continue
		}
		rows = append(rows, row)
	}

	c.sortRows(rows)
	return rows
}

func controlRowMatches(row ControlRow, filters orchestrator.FilterState) bool {
	if filters.Search != "" {
		needle := strings.ToLower(filters.Search)
		if !strings.Contains(strings.ToLower(row.Name), needle) &&
			!strings.Contains(strings.ToLower(row.Code), needle) &&
			!strings.Contains(strings.ToLower(row.Description), needle) {
			return false
		}
	}
	if filters.Status != "" && row.OverallStatus != filters.Status {
		return false
	}
	if filters.OwnerID != "" && row.OwnerID != filters.OwnerID {
		return false
	}
	return true
}

func (c *ControlController) sortRows(rows []ControlRow) {
	sort := c.Sort()
	slices.SortStableFunc(rows, func(a, b ControlRow) int {
		var cmp int
		switch sort.Column {
		case SortByName:
			cmp = compareNames(a.Name, b.Name)
		case SortByScore:
			cmp = compareFloats(float64(a.Effectiveness), float64(b.Effectiveness))
		case SortByStatus:
			cmp = compareNames(a.OverallStatus.Label(), b.OverallStatus.Label())
		case SortByUpdatedAt:
			cmp = compareTimes(a.UpdatedAt, b.UpdatedAt)
		default:
			cmp = compareCodes(a.Code, b.Code)
		}
		return directed(cmp, sort.Descending)
	})
}

func (c *ControlController) CreateControl(ctx context.Context, draft domain.ControlDraft) (domain.Control, error) {
	if strings.TrimSpace(draft.Name) == "" {
		return domain.Control{}, fmt.Errorf("%w: control name must not be empty", e.ValidationError)
	}

	created, err := c.api.CreateControl(ctx, draft)
	if err != nil {
		return domain.Control{}, fmt.Errorf("failed to create control: %w", err)
	}

	c.store.Invalidate(querykey.For("controls"))
	c.store.Invalidate(querykey.For("pages", "controls"))
	return created, nil
}

// UpdateControl patches a control optimistically. Changing the effectiveness
// changes every linked risk's residual, so the risks view's keys are
// invalidated on commit as well.
func (c *ControlController) UpdateControl(ctx context.Context, id string, patch domain.ControlPatch) error {
	pageKey := c.view.PageKey()

	return c.execute(ctx, mutation.Spec{
		AffectedKeys: []querykey.Key{pageKey},
		Apply: func(key querykey.Key, data any) (any, bool) {
			page, ok := data.(domain.ControlPage)
			if !ok {
				return nil, false
			}
			return patchControlPage(page, id, patch), true
		},
		Commit: func(ctx context.Context) error {
			_, err := c.api.UpdateControl(ctx, id, patch)
			return err
		},
		InvalidateOnCommit: []querykey.Key{
			querykey.For("controls"),
			querykey.For("pages", "controls"),
			querykey.For("risks"),
			querykey.For("pages", "risks"),
		},
	})
}

func (c *ControlController) DeleteControl(ctx context.Context, id string, deletionReason string) error {
	if strings.TrimSpace(deletionReason) == "" {
		return fmt.Errorf("%w: deletion reason must not be empty", e.ValidationError)
	}

	pageKey := c.view.PageKey()

	return c.execute(ctx, mutation.Spec{
		AffectedKeys: []querykey.Key{pageKey},
		Apply: func(key querykey.Key, data any) (any, bool) {
			page, ok := data.(domain.ControlPage)
			if !ok {
				return nil, false
			}
			return removeControlFromPage(page, id), true
		},
		Commit: func(ctx context.Context) error {
			return c.api.DeleteControl(ctx, id, deletionReason)
		},
		InvalidateOnCommit: []querykey.Key{
			querykey.For("controls"),
			querykey.For("pages", "controls"),
			querykey.For("risks"),
			querykey.For("pages", "risks"),
		},
	})
}

// AttachRisk links a risk from the controls side. The association list and
// the row's risk counter update optimistically as one transaction and roll
// back together on failure.
func (c *ControlController) AttachRisk(ctx context.Context, controlID string, risk domain.Risk) error {
	pageKey := c.view.PageKey()
	relationsKey, hasRelationsKey := c.currentRelationsKey()

	affected := []querykey.Key{pageKey}
	if hasRelationsKey {
		affected = append(affected, relationsKey)
	}

	return c.execute(ctx, mutation.Spec{
		AffectedKeys: affected,
		Apply: func(key querykey.Key, data any) (any, bool) {
			switch value := data.(type) {
			case domain.ControlPage:
				return adjustControlRisks(value, controlID, +1), true
			case domain.RiskRelations:
				effectiveness := c.effectivenessFor(controlID)
				next := cloneRiskRelations(value)
				next[controlID] = append(slices.Clone(next[controlID]), domain.RiskLink{
					ControlID:    controlID,
					Risk:         risk,
					ResidualRisk: domain.LinkResidual(risk.InherentRisk, effectiveness),
				})
				return next, true
			}
			return nil, false
		},
		Commit: func(ctx context.Context) error {
			_, err := c.api.AttachRisk(ctx, controlID, risk.ID)
			return err
		},
		InvalidateOnCommit: []querykey.Key{
			querykey.For("controls"),
			querykey.For("pages", "controls"),
			querykey.For("risks"),
			querykey.For("pages", "risks"),
		},
	})
}

// DetachRisk is the mirror of AttachRisk.
func (c *ControlController) DetachRisk(ctx context.Context, controlID, riskID string) error {
	pageKey := c.view.PageKey()
	relationsKey, hasRelationsKey := c.currentRelationsKey()

	affected := []querykey.Key{pageKey}
	if hasRelationsKey {
		affected = append(affected, relationsKey)
	}

	return c.execute(ctx, mutation.Spec{
		AffectedKeys: affected,
		Apply: func(key querykey.Key, data any) (any, bool) {
			switch value := data.(type) {
			case domain.ControlPage:
				return adjustControlRisks(value, controlID, -1), true
			case domain.RiskRelations:
				next := cloneRiskRelations(value)
				next[controlID] = slices.DeleteFunc(slices.Clone(next[controlID]), func(link domain.RiskLink) bool {
					return link.Risk.ID == riskID
				})
				return next, true
			}
			return nil, false
		},
		Commit: func(ctx context.Context) error {
			return c.api.DetachRisk(ctx, controlID, riskID)
		},
		InvalidateOnCommit: []querykey.Key{
			querykey.For("controls"),
			querykey.For("pages", "controls"),
			querykey.For("risks"),
			querykey.For("pages", "risks"),
		},
	})
}

func (c *ControlController) currentRelationsKey() (querykey.Key, bool) {
	page, ok := querystore.Data[domain.ControlPage](c.store, c.view.PageKey())
	if !ok {
		return querykey.Key{}, false
	}
	ids := controlPageIDs(page)
	if len(ids) == 0 {
		return querykey.Key{}, false
	}
	return c.view.RelationsKey(ids), true
}

func (c *ControlController) effectivenessFor(controlID string) int {
	page, ok := querystore.Data[domain.ControlPage](c.store, c.view.PageKey())
	if !ok {
		return 0
	}
	for _, control := range page.Controls {
		if control.ID == controlID {
			return control.Effectiveness
		}
	}
	return 0
}

func adjustControlRisks(page domain.ControlPage, controlID string, delta int) domain.ControlPage {
	next := page
	next.Controls = slices.Clone(page.Controls)
	for i, control := range next.Controls {
		if control.ID != controlID {
			continue
		}
		control.RiskCount += delta
		if control.RiskCount < 0 {
			control.RiskCount = 0
		}
		next.Controls[i] = control
		break
	}
	return next
}

func cloneRiskRelations(relations domain.RiskRelations) domain.RiskRelations {
	next := make(domain.RiskRelations, len(relations))
	for id, links := range relations {
		next[id] = links
	}
	return next
}

func patchControlPage(page domain.ControlPage, id string, patch domain.ControlPatch) domain.ControlPage {
	next := page
	next.Controls = slices.Clone(page.Controls)
	for i, control := range next.Controls {
		if control.ID != id {
			continue
		}
		if patch.Name != nil {
			control.Name = *patch.Name
		}
		if patch.Description != nil {
			control.Description = *patch.Description
		}
		if patch.OwnerID != nil {
			control.OwnerID = *patch.OwnerID
		}
		if patch.Effectiveness != nil {
			control.Effectiveness = *patch.Effectiveness
		}
		// UpdatedAt is server-owned; the refetch after invalidation brings it
		next.Controls[i] = control
		break
	}
	return next
}

func removeControlFromPage(page domain.ControlPage, id string) domain.ControlPage {
	next := page
	next.Controls = slices.DeleteFunc(slices.Clone(page.Controls), func(control domain.ControlSummary) bool {
		return control.ID == id
	})
	if len(next.Controls) < len(page.Controls) {
		next.Pagination.Total--
	}
	return next
}
