package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mkleiva/riskview/internal/adapters/querystore"
	"github.com/mkleiva/riskview/internal/domain"
	"github.com/mkleiva/riskview/internal/logging"
	"github.com/mkleiva/riskview/internal/querykey"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPageSize         = 50
	defaultStaleAfter       = 30 * time.Second
	defaultDebounceInterval = 300 * time.Millisecond
)

// FilterState is the explicit, typed input to fetch orchestration. ProcessID
// is structural: the backend applies it; the client never re-filters on it.
type FilterState struct {
	Search     string
	Status     domain.ValidationStatus
	Level      domain.RiskLevel
	OwnerID    string
	CategoryID string
	ProcessID  string
	From       time.Time
	To         time.Time
}

// Config wires one view instance. P is the page-aggregate type, R the
// bulk-relations type.
type Config[P, R any] struct {
	// Name is the view name used in cache keys ("risks", "controls")
	Name  string
	Store *querystore.Store

	FetchPage      func(ctx context.Context, params querykey.Params) (P, error)
	FetchRelations func(ctx context.Context, ids []string) (R, error)
	// PageIDs extracts the entity IDs on a page, for the bulk-relations fetch
	PageIDs func(page P) []string

	// OnChange is called whenever the set of needed queries changed (filters,
	// page, detail mode); the owner reacts by scheduling a Refresh. Explicit
	// wiring, no ambient pub/sub.
	OnChange func()

	StaleAfter       time.Duration
	DebounceInterval time.Duration
	PageSize         int
}

// View decides which queries to run now versus lazily for one aggregate view.
// While detail mode is off only the page-aggregate query runs; the first
// detail affordance (detail dialog, edit dialog, relation-backed column)
// enables the bulk-relations query for the rest of the view's lifetime.
type View[P, R any] struct {
	name           string
	store          *querystore.Store
	staleAfter     time.Duration
	fetchPage      func(ctx context.Context, params querykey.Params) (P, error)
	fetchRelations func(ctx context.Context, ids []string) (R, error)
	pageIDs        func(page P) []string
	onChange       func()
	searchDebounce *Debouncer

	mu          sync.Mutex
	filters     FilterState
	page        int
	pageSize    int
	detailMode  bool
	lastPageKey querykey.Key
}

func NewView[P, R any](cfg Config[P, R]) *View[P, R] {
	if cfg.Name == "" {
		panic("orchestrator: view needs a name")
	}
	if cfg.Store == nil || cfg.FetchPage == nil || cfg.FetchRelations == nil || cfg.PageIDs == nil {
		panic(fmt.Sprintf("orchestrator: view %q is missing wiring", cfg.Name))
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if cfg.DebounceInterval == 0 {
		cfg.DebounceInterval = defaultDebounceInterval
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = defaultPageSize
	}

	return &View[P, R]{
		name:           cfg.Name,
		store:          cfg.Store,
		staleAfter:     cfg.StaleAfter,
		fetchPage:      cfg.FetchPage,
		fetchRelations: cfg.FetchRelations,
		pageIDs:        cfg.PageIDs,
		onChange:       cfg.OnChange,
		searchDebounce: NewDebouncer(cfg.DebounceInterval),
		page:           1,
		pageSize:       cfg.PageSize,
	}
}

func (v *View[P, R]) Name() string {
	return v.name
}

func (v *View[P, R]) Filters() FilterState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filters
}

func (v *View[P, R]) Page() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.page
}

func (v *View[P, R]) PageSize() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pageSize
}

func (v *View[P, R]) DetailMode() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.detailMode
}

// EnableDetailMode latches detail mode on. It is monotonic: closing the
// dialog that triggered it does not revert it, reverting would only re-skip
// queries that are already cached.
func (v *View[P, R]) EnableDetailMode() {
	v.mu.Lock()
	alreadyOn := v.detailMode
	v.detailMode = true
	v.mu.Unlock()

	if !alreadyOn {
		v.notify()
	}
}

// SetSearch coalesces keystrokes with a quiet-period debounce; the eventual
// fetch reflects only the final text value.
func (v *View[P, R]) SetSearch(text string) {
	v.searchDebounce.Trigger(func() {
		v.mu.Lock()
		if v.filters.Search == text {
			v.mu.Unlock()
			return
		}
		v.filters.Search = text
		v.page = 1
		v.mu.Unlock()
		v.notify()
	})
}

func (v *View[P, R]) SetStatusFilter(status domain.ValidationStatus) {
	v.updateFilters(func(f *FilterState) { f.Status = status })
}

func (v *View[P, R]) SetLevelFilter(level domain.RiskLevel) {
	v.updateFilters(func(f *FilterState) { f.Level = level })
}

func (v *View[P, R]) SetOwnerFilter(ownerID string) {
	v.updateFilters(func(f *FilterState) { f.OwnerID = ownerID })
}

func (v *View[P, R]) SetCategoryFilter(categoryID string) {
	v.updateFilters(func(f *FilterState) { f.CategoryID = categoryID })
}

func (v *View[P, R]) SetProcessFilter(processID string) {
	v.updateFilters(func(f *FilterState) { f.ProcessID = processID })
}

func (v *View[P, R]) SetDateRange(from, to time.Time) {
	v.updateFilters(func(f *FilterState) {
		f.From = from
		f.To = to
	})
}

// updateFilters applies one predicate change. Any filter change resets the
// view to page 1.
func (v *View[P, R]) updateFilters(change func(f *FilterState)) {
	v.mu.Lock()
	before := v.filters
	change(&v.filters)
	changed := v.filters != before
	if changed {
		v.page = 1
	}
	v.mu.Unlock()

	if changed {
		v.notify()
	}
}

func (v *View[P, R]) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	v.mu.Lock()
	changed := v.page != page
	v.page = page
	v.mu.Unlock()

	if changed {
		v.notify()
	}
}

// SetPageSize changes the page size and resets to page 1.
func (v *View[P, R]) SetPageSize(size int) {
	if size < 1 {
		panic("orchestrator: page size must be positive")
	}
	v.mu.Lock()
	changed := v.pageSize != size
	v.pageSize = size
	if changed {
		v.page = 1
	}
	v.mu.Unlock()

	if changed {
		v.notify()
	}
}

// Close cancels any pending debounced search. A view that is torn down while
// the user is mid-keystroke must not fire a late filter commit.
func (v *View[P, R]) Close() {
	v.searchDebounce.Stop()
}

func (v *View[P, R]) notify() {
	if v.onChange != nil {
		v.onChange()
	}
}

// PageKey is the cache key of the current page-aggregate query.
func (v *View[P, R]) PageKey() querykey.Key {
	v.mu.Lock()
	defer v.mu.Unlock()
	return querykey.PageAggregate(v.name, v.paramsLocked())
}

// RelationsKey is the cache key of the bulk-relations query for the given
// entity IDs. ID order does not matter.
func (v *View[P, R]) RelationsKey(ids []string) querykey.Key {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return querykey.For(v.name, "batch-relations", querykey.Canonicalize(querykey.Params{"ids": sorted}))
}

// ActiveQueries lists the keys the view currently needs: the page aggregate,
// plus the bulk relations for the cached page once detail mode is on.
func (v *View[P, R]) ActiveQueries() []querykey.Key {
	pageKey := v.PageKey()
	keys := []querykey.Key{pageKey}

	if v.DetailMode() {
		if page, ok := querystore.Data[P](v.store, pageKey); ok {
			if ids := v.pageIDs(page); len(ids) > 0 {
				keys = append(keys, v.RelationsKey(ids))
			}
		}
	}
	return keys
}

// Refresh runs every query the view needs, coalescing with any fetches
// already in flight. The page aggregate is one fetch with one key; the bulk
// relations are fetched only in detail mode. Relations for IDs already on
// screen refresh concurrently with the page itself.
func (v *View[P, R]) Refresh(ctx context.Context) error {
	v.mu.Lock()
	params := v.paramsLocked()
	pageKey := querykey.PageAggregate(v.name, params)
	previousKey := v.lastPageKey
	v.lastPageKey = pageKey
	detail := v.detailMode
	v.mu.Unlock()

	if !previousKey.IsZero() && !previousKey.Equal(pageKey) {
		// A response for superseded filters must not land after this one
		v.store.CancelInflight(previousKey)
	}

	g, gctx := errgroup.WithContext(ctx)

	var page P
	g.Go(func() error {
		fetched, err := querystore.GetOrFetch(gctx, v.store, pageKey, v.staleAfter, func(fctx context.Context) (P, error) {
			return v.fetchPage(fctx, params)
		})
		if err != nil {
			return err
		}
		page = fetched
		return nil
	})

	if detail {
		if cachedPage, ok := querystore.Data[P](v.store, pageKey); ok {
			if ids := v.pageIDs(cachedPage); len(ids) > 0 {
				g.Go(func() error {
					return v.refreshRelations(gctx, ids)
				})
			}
		}
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to refresh %s view: %w", v.name, err)
	}

	if detail {
		// The fresh page may contain different IDs; a second pass is a cache
		// hit whenever they match the concurrent refresh above
		if ids := v.pageIDs(page); len(ids) > 0 {
			if err := v.refreshRelations(ctx, ids); err != nil {
				return fmt.Errorf("failed to refresh %s relations: %w", v.name, err)
			}
		}
	}

	logging.FromContext(ctx).DebugContext(ctx, "View refreshed", "view", v.name, "detailMode", detail)
	return nil
}

func (v *View[P, R]) refreshRelations(ctx context.Context, ids []string) error {
	key := v.RelationsKey(ids)
	_, err := querystore.GetOrFetch(ctx, v.store, key, v.staleAfter, func(fctx context.Context) (R, error) {
		return v.fetchRelations(fctx, ids)
	})
	return err
}

func (v *View[P, R]) paramsLocked() querykey.Params {
	params := querykey.Params{
		"limit":  v.pageSize,
		"offset": (v.page - 1) * v.pageSize,
	}
	if v.filters.Search != "" {
		params["search"] = v.filters.Search
	}
	if v.filters.Status != "" {
		params["status"] = string(v.filters.Status)
	}
	if v.filters.Level != "" {
		params["level"] = string(v.filters.Level)
	}
	if v.filters.OwnerID != "" {
		params["ownerId"] = v.filters.OwnerID
	}
	if v.filters.CategoryID != "" {
		params["categoryId"] = v.filters.CategoryID
	}
	if v.filters.ProcessID != "" {
		params["processId"] = v.filters.ProcessID
	}
	if !v.filters.From.IsZero() {
		params["from"] = v.filters.From.UTC().Format(time.RFC3339)
	}
	if !v.filters.To.IsZero() {
		params["to"] = v.filters.To.UTC().Format(time.RFC3339)
	}
	return params
}
