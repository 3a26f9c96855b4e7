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

// RiskRow is one rendered row of the risks table: the page summary enriched
// with the derived residual score, level bucket and aggregated status, plus
// the control links once detail mode has fetched them.
type RiskRow struct {
	domain.RiskSummary

	// Controls is nil until the bulk relations for the page are loaded.
	Controls        []domain.ControlLink
	RelationsLoaded bool

	// Residual is the MIN over the linked controls' residual risks once
	// relations are loaded, the server-computed value before that, and the
	// inherent risk when no control is attached.
	Residual float64

	Level         domain.RiskLevel
	OverallStatus domain.ValidationStatus
}

// RiskController composes the risks view orchestration, optimistic mutations
// and client-side sort into the row set a table renders.
type RiskController struct {
	store    *querystore.Store
	executor *mutation.Executor
	api      apiclient.RiskAPI
	view     *orchestrator.View[domain.RiskPage, domain.ControlRelations]

	mu       sync.Mutex
	sort     SortState
	onChange func()
}

func NewRiskController(
	store *querystore.Store,
	executor *mutation.Executor,
	api apiclient.RiskAPI,
	onChange func(),
) *RiskController {
	controller := &RiskController{
		store:    store,
		executor: executor,
		api:      api,
		sort:     SortState{Column: SortByCode},
		onChange: onChange,
	}
	controller.view = orchestrator.NewView(orchestrator.Config[domain.RiskPage, domain.ControlRelations]{
		Name:           "risks",
		Store:          store,
		FetchPage:      api.FetchRiskPage,
		FetchRelations: api.FetchControlRelations,
		PageIDs:        riskPageIDs,
		OnChange:       onChange,
	})
	return controller
}

func riskPageIDs(page domain.RiskPage) []string {
	ids := make([]string, 0, len(page.Risks))
	for _, risk := range page.Risks {
		ids = append(ids, risk.ID)
	}
	return ids
}

// View exposes the fetch orchestration: filters, pagination, detail mode and
// Refresh all live there.
func (c *RiskController) View() *orchestrator.View[domain.RiskPage, domain.ControlRelations] {
	return c.view
}

func (c *RiskController) Refresh(ctx context.Context) error {
	return c.view.Refresh(ctx)
}

// Close releases the view's timers. Call it when the table leaves the screen.
func (c *RiskController) Close() {
	c.view.Close()
}

// execute runs one mutation with the owning view tagged on its error reports.
func (c *RiskController) execute(ctx context.Context, spec mutation.Spec) error {
	ctx = reporting.AddTagsToContext(ctx, map[string]string{"view": "risks"})
	return c.executor.Execute(ctx, spec)
}

// ToggleSort flips the direction when the active column is clicked again and
// resets to ascending when a new column is chosen.
func (c *RiskController) ToggleSort(column SortColumn) {
	c.mu.Lock()
	c.sort = c.sort.toggled(column)
	c.mu.Unlock()
	if c.onChange != nil {
		c.onChange()
	}
}

func (c *RiskController) Sort() SortState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sort
}

// Rows assembles the current page into table rows: derived residual and
// aggregated status per row, client-side filtering as a defense-in-depth
// layer, then the configured sort. Returns nil before the first page fetch
// lands.
func (c *RiskController) Rows() []RiskRow {
	page, ok := querystore.Data[domain.RiskPage](c.store, c.view.PageKey())
	if !ok {
		return nil
	}

	var relations domain.ControlRelations
	relationsLoaded := false
	if c.view.DetailMode() {
		if ids := riskPageIDs(page); len(ids) > 0 {
			relations, relationsLoaded = querystore.Data[domain.ControlRelations](c.store, c.view.RelationsKey(ids))
		}
	}

	filters := c.view.Filters()
	rows := make([]RiskRow, 0, len(page.Risks))
	for _, summary := range page.Risks {
		row := RiskRow{RiskSummary: summary}

		if relationsLoaded {
			row.Controls = relations[summary.ID]
			row.RelationsLoaded = true
			row.Residual = domain.ResidualOverControls(summary.InherentRisk, row.Controls)
		} else if summary.ControlCount == 0 {
			row.Residual = summary.InherentRisk
		} else {
			row.Residual = summary.ResidualRisk
		}

		row.Level = domain.LevelForScore(row.Residual)
		row.OverallStatus = domain.AggregateValidationStatus(summary.ResponsibleStatuses, summary.Status)

		if !riskRowMatches(row, filters) {
			continue
		}
		rows = append(rows, row)
	}

	c.sortRows(rows)
	return rows
}

// riskRowMatches re-applies the non-structural filters to the loaded page.
// The backend has filtered already; re-checking here keeps rows consistent
// when cached pages outlive a filter change. The process-hierarchy filter is
// deliberately not re-applied: the backend's hierarchy data is fresher than
// anything cached client-side.
func riskRowMatches(row RiskRow, filters orchestrator.FilterState) bool {
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
	if filters.Level != "" && row.Level != filters.Level {
		return false
	}
	if filters.OwnerID != "" && row.OwnerID != filters.OwnerID {
		return false
	}
	if filters.CategoryID != "" && row.CategoryID != filters.CategoryID {
		return false
	}
	return true
}

func (c *RiskController) sortRows(rows []RiskRow) {
	sort := c.Sort()
	slices.SortStableFunc(rows, func(a, b RiskRow) int {
		var cmp int
		switch sort.Column {
		case SortByName:
			cmp = compareNames(a.Name, b.Name)
		case SortByScore:
			cmp = compareFloats(a.Residual, b.Residual)
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

// CreateRisk has no row to transform optimistically (the server assigns the
// ID), so it commits first and relies on the invalidation cascade.
func (c *RiskController) CreateRisk(ctx context.Context, draft domain.RiskDraft) (domain.Risk, error) {
	if strings.TrimSpace(draft.Name) == "" {
		return domain.Risk{}, fmt.Errorf("%w: risk name must not be empty", e.ValidationError)
	}

	created, err := c.api.CreateRisk(ctx, draft)
	if err != nil {
		return domain.Risk{}, fmt.Errorf("failed to create risk: %w", err)
	}

	c.store.Invalidate(querykey.For("risks"))
	c.store.Invalidate(querykey.For("pages", "risks"))
	return created, nil
}

// UpdateRisk patches a risk with an optimistic rewrite of its row on the
// current page.
func (c *RiskController) UpdateRisk(ctx context.Context, id string, patch domain.RiskPatch) error {
	pageKey := c.view.PageKey()

	return c.execute(ctx, mutation.Spec{
		AffectedKeys: []querykey.Key{pageKey},
		Apply: func(key querykey.Key, data any) (any, bool) {
			page, ok := data.(domain.RiskPage)
			if !ok {
				return nil, false
			}
			return patchRiskPage(page, id, patch), true
		},
		Commit: func(ctx context.Context) error {
			_, err := c.api.UpdateRisk(ctx, id, patch)
			return err
		},
		InvalidateOnCommit: []querykey.Key{
			querykey.For("risks"),
			querykey.For("pages", "risks"),
		},
	})
}

// DeleteRisk soft deletes a risk. The reason is required before any network
// traffic happens; the row disappears optimistically and reappears via
// rollback if the server refuses.
func (c *RiskController) DeleteRisk(ctx context.Context, id string, deletionReason string) error {
	if strings.TrimSpace(deletionReason) == "" {
		return fmt.Errorf("%w: deletion reason must not be empty", e.ValidationError)
	}

	pageKey := c.view.PageKey()

	return c.execute(ctx, mutation.Spec{
		AffectedKeys: []querykey.Key{pageKey},
		Apply: func(key querykey.Key, data any) (any, bool) {
			page, ok := data.(domain.RiskPage)
			if !ok {
				return nil, false
			}
			return removeRiskFromPage(page, id), true
		},
		Commit: func(ctx context.Context) error {
			return c.api.DeleteRisk(ctx, id, deletionReason)
		},
		InvalidateOnCommit: []querykey.Key{
			querykey.For("risks"),
			querykey.For("pages", "risks"),
		},
	})
}

// AttachControl links a control to a risk. The association list and the
// row's control counter update optimistically as one transaction: both roll
// back together if the commit fails.
func (c *RiskController) AttachControl(ctx context.Context, riskID string, control domain.Control) error {
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
			case domain.RiskPage:
				return adjustRiskControls(value, riskID, +1, func(links []domain.ControlLink, inherent float64) []domain.ControlLink {
					return append(links, domain.ControlLink{
						RiskID:       riskID,
						Control:      control,
						ResidualRisk: domain.LinkResidual(inherent, control.Effectiveness),
					})
				}), true
			case domain.ControlRelations:
				inherent := c.inherentRiskFor(riskID)
				next := cloneRelations(value)
				next[riskID] = append(slices.Clone(next[riskID]), domain.ControlLink{
					RiskID:       riskID,
					Control:      control,
					ResidualRisk: domain.LinkResidual(inherent, control.Effectiveness),
				})
				return next, true
			}
			return nil, false
		},
		Commit: func(ctx context.Context) error {
			_, err := c.api.AttachControl(ctx, riskID, control.ID)
			return err
		},
		InvalidateOnCommit: []querykey.Key{
			querykey.For("risks"),
			querykey.For("pages", "risks"),
			querykey.For("controls"),
			querykey.For("pages", "controls"),
		},
	})
}

// DetachControl is the mirror of AttachControl: the link vanishes and the
// counter drops optimistically, both restored on failure.
func (c *RiskController) DetachControl(ctx context.Context, riskID, controlID string) error {
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
			case domain.RiskPage:
				return adjustRiskControls(value, riskID, -1, func(links []domain.ControlLink, inherent float64) []domain.ControlLink {
					return removeLink(links, controlID)
				}), true
			case domain.ControlRelations:
				next := cloneRelations(value)
				next[riskID] = removeLink(slices.Clone(next[riskID]), controlID)
				return next, true
			}
			return nil, false
		},
		Commit: func(ctx context.Context) error {
			return c.api.DetachControl(ctx, riskID, controlID)
		},
		InvalidateOnCommit: []querykey.Key{
			querykey.For("risks"),
			querykey.For("pages", "risks"),
			querykey.For("controls"),
			querykey.For("pages", "controls"),
		},
	})
}

func (c *RiskController) currentRelationsKey() (querykey.Key, bool) {
	page, ok := querystore.Data[domain.RiskPage](c.store, c.view.PageKey())
	if !ok {
		return querykey.Key{}, false
	}
	ids := riskPageIDs(page)
	if len(ids) == 0 {
		return querykey.Key{}, false
	}
	return c.view.RelationsKey(ids), true
}

func (c *RiskController) inherentRiskFor(riskID string) float64 {
	page, ok := querystore.Data[domain.RiskPage](c.store, c.view.PageKey())
	if !ok {
		return 0
	}
	for _, risk := range page.Risks {
		if risk.ID == riskID {
			return risk.InherentRisk
		}
	}
	return 0
}

// patchRiskPage returns a copy of the page with the patch applied to the
// matching row. The original page is shared with rollback snapshots and must
// not be touched.
func patchRiskPage(page domain.RiskPage, id string, patch domain.RiskPatch) domain.RiskPage {
	next := page
	next.Risks = slices.Clone(page.Risks)
	for i, risk := range next.Risks {
		if risk.ID != id {
			continue
		}
		if patch.Name != nil {
			risk.Name = *patch.Name
		}
		if patch.Description != nil {
			risk.Description = *patch.Description
		}
		if patch.CategoryID != nil {
			risk.CategoryID = *patch.CategoryID
		}
		if patch.OwnerID != nil {
			risk.OwnerID = *patch.OwnerID
		}
		if patch.Probability != nil {
			risk.Probability = *patch.Probability
		}
		if patch.Impact != nil {
			risk.Impact = *patch.Impact
		}
		if patch.Probability != nil || patch.Impact != nil {
			risk.InherentRisk = float64(risk.Probability * risk.Impact)
		}
		// UpdatedAt is server-owned; the refetch after invalidation brings it
		next.Risks[i] = risk
		break
	}
	return next
}

func removeRiskFromPage(page domain.RiskPage, id string) domain.RiskPage {
	next := page
	next.Risks = slices.DeleteFunc(slices.Clone(page.Risks), func(risk domain.RiskSummary) bool {
		return risk.ID == id
	})
	if len(next.Risks) < len(page.Risks) {
		next.Pagination.Total--
	}
	return next
}

// adjustRiskControls bumps the denormalized control counter of one row and
// recomputes its residual from the transformed link list.
func adjustRiskControls(
	page domain.RiskPage,
	riskID string,
	delta int,
	transformLinks func(links []domain.ControlLink, inherent float64) []domain.ControlLink,
) domain.RiskPage {
	next := page
	next.Risks = slices.Clone(page.Risks)
	for i, risk := range next.Risks {
		if risk.ID != riskID {
			continue
		}
		risk.ControlCount += delta
		if risk.ControlCount < 0 {
			risk.ControlCount = 0
		}
		// The summary's server-computed residual is stale the moment the link
		// set changes; recompute with the shared formula so the row doesn't
		// flicker when the authoritative value arrives.
		links := transformLinks(nil, risk.InherentRisk)
		if risk.ControlCount == 0 {
			risk.ResidualRisk = risk.InherentRisk
		} else if len(links) > 0 {
			residual := domain.ResidualOverControls(risk.InherentRisk, links)
			if residual < risk.ResidualRisk || risk.ControlCount == len(links) {
				risk.ResidualRisk = residual
			}
		}
		next.Risks[i] = risk
		break
	}
	return next
}

func removeLink(links []domain.ControlLink, controlID string) []domain.ControlLink {
	return slices.DeleteFunc(links, func(link domain.ControlLink) bool {
		return link.Control.ID == controlID
	})
}

func cloneRelations(relations domain.ControlRelations) domain.ControlRelations {
	next := make(domain.ControlRelations, len(relations))
	for id, links := range relations {
		next[id] = links
	}
	return next
}
