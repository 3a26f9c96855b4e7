package listview_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mkleiva/riskview/internal/adapters/querystore"
	"github.com/mkleiva/riskview/internal/domain"
	"github.com/mkleiva/riskview/internal/domaintest"
	e "github.com/mkleiva/riskview/internal/errors"
	"github.com/mkleiva/riskview/internal/listview"
	"github.com/mkleiva/riskview/internal/mutation"
	"github.com/mkleiva/riskview/internal/querykey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockedRiskAPI struct {
	t *testing.T

	fetchRiskPage         func(ctx context.Context, params querykey.Params) (domain.RiskPage, error)
	fetchControlRelations func(ctx context.Context, riskIDs []string) (domain.ControlRelations, error)
	getRisk               func(ctx context.Context, id string) (domain.Risk, error)
	createRisk            func(ctx context.Context, draft domain.RiskDraft) (domain.Risk, error)
	updateRisk            func(ctx context.Context, id string, patch domain.RiskPatch) (domain.Risk, error)
	deleteRisk            func(ctx context.Context, id string, deletionReason string) error
	attachControl         func(ctx context.Context, riskID, controlID string) (domain.ControlLink, error)
	detachControl         func(ctx context.Context, riskID, controlID string) error
}

func (m *mockedRiskAPI) FetchRiskPage(ctx context.Context, params querykey.Params) (domain.RiskPage, error) {
	m.t.Helper()
	require.NotNil(m.t, m.fetchRiskPage, "unexpected FetchRiskPage call")
	return m.fetchRiskPage(ctx, params)
}

func (m *mockedRiskAPI) FetchControlRelations(ctx context.Context, riskIDs []string) (domain.ControlRelations, error) {
	m.t.Helper()
	require.NotNil(m.t, m.fetchControlRelations, "unexpected FetchControlRelations call")
	return m.fetchControlRelations(ctx, riskIDs)
}

func (m *mockedRiskAPI) GetRisk(ctx context.Context, id string) (domain.Risk, error) {
	m.t.Helper()
	require.NotNil(m.t, m.getRisk, "unexpected GetRisk call")
	return m.getRisk(ctx, id)
}

func (m *mockedRiskAPI) CreateRisk(ctx context.Context, draft domain.RiskDraft) (domain.Risk, error) {
	m.t.Helper()
	require.NotNil(m.t, m.createRisk, "unexpected CreateRisk call")
	return m.createRisk(ctx, draft)
}

func (m *mockedRiskAPI) UpdateRisk(ctx context.Context, id string, patch domain.RiskPatch) (domain.Risk, error) {
	m.t.Helper()
	require.NotNil(m.t, m.updateRisk, "unexpected UpdateRisk call")
	return m.updateRisk(ctx, id, patch)
}

func (m *mockedRiskAPI) DeleteRisk(ctx context.Context, id string, deletionReason string) error {
	m.t.Helper()
	require.NotNil(m.t, m.deleteRisk, "unexpected DeleteRisk call")
	return m.deleteRisk(ctx, id, deletionReason)
}

func (m *mockedRiskAPI) AttachControl(ctx context.Context, riskID, controlID string) (domain.ControlLink, error) {
	m.t.Helper()
	require.NotNil(m.t, m.attachControl, "unexpected AttachControl call")
	return m.attachControl(ctx, riskID, controlID)
}

func (m *mockedRiskAPI) DetachControl(ctx context.Context, riskID, controlID string) error {
	m.t.Helper()
	require.NotNil(m.t, m.detachControl, "unexpected DetachControl call")
	return m.detachControl(ctx, riskID, controlID)
}

func newRiskFixture(t *testing.T, api *mockedRiskAPI) (*listview.RiskController, *querystore.Store) {
	t.Helper()

	store := querystore.New(1*time.Hour, time.Now)
	t.Cleanup(store.Close)
	executor := mutation.New(store)
	controller := listview.NewRiskController(store, executor, api, nil)
	return controller, store
}

func seedRiskPage(store *querystore.Store, controller *listview.RiskController, risks ...domain.RiskSummary) domain.RiskPage {
	page := domain.RiskPage{
		Risks:      risks,
		Pagination: domain.Pagination{Limit: 50, Offset: 0, Total: len(risks)},
	}
	store.SetFetched(controller.View().PageKey(), page, time.Minute)
	return page
}

func TestRowsDerivedFields(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	controller, store := newRiskFixture(t, &mockedRiskAPI{t: t})

	uncontrolled := domaintest.NewRiskBuilder("r1", createdAt).
		WithCode("RSK-1").
		WithScore(4, 5).
		Build()
	mitigated := domaintest.NewRiskBuilder("r2", createdAt).
		WithCode("RSK-2").
		WithScore(3, 4).
		WithControlCount(2).
		WithResponsibleStatuses(domain.StatusValidated, domain.StatusValidated).
		Build()
	mitigated.ResidualRisk = 6

	seedRiskPage(store, controller, uncontrolled, mitigated)

	rows := controller.Rows()
	require.Len(t, rows, 2)

	assert.Equal(t, 20.0, rows[0].Residual, "no controls falls back to inherent risk")
	assert.Equal(t, domain.LevelCritical, rows[0].Level)
	assert.Equal(t, domain.StatusPendingValidation, rows[0].OverallStatus)
	assert.False(t, rows[0].RelationsLoaded)

	assert.Equal(t, 6.0, rows[1].Residual, "server residual used before relations load")
	assert.Equal(t, domain.LevelMedium, rows[1].Level)
	assert.Equal(t, domain.StatusValidated, rows[1].OverallStatus)
}

func TestRowsResidualIsMinOverLinks(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	controller, store := newRiskFixture(t, &mockedRiskAPI{t: t})

	risk := domaintest.NewRiskBuilder("r1", createdAt).
		WithScore(4, 5).
		WithControlCount(2).
		Build()
	seedRiskPage(store, controller, risk)

	controller.View().EnableDetailMode()
	relationsKey := controller.View().RelationsKey([]string{"r1"})
	store.SetFetched(relationsKey, domain.ControlRelations{
		"r1": {
			{RiskID: "r1", Control: domain.Control{ID: "c1", Effectiveness: 2}, ResidualRisk: 16},
			{RiskID: "r1", Control: domain.Control{ID: "c2", Effectiveness: 5}, ResidualRisk: 4},
		},
	}, time.Minute)

	rows := controller.Rows()
	require.Len(t, rows, 1)
	require.True(t, rows[0].RelationsLoaded)
	assert.Equal(t, 4.0, rows[0].Residual, "the best control dominates; never an average")
	assert.Equal(t, domain.LevelLow, rows[0].Level)
}

func TestRowsClientSideFiltering(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	controller, store := newRiskFixture(t, &mockedRiskAPI{t: t})

	controller.View().SetOwnerFilter("owner-1")

	matching := domaintest.NewRiskBuilder("r1", createdAt).WithOwner("owner-1").Build()
	// A stale cached page can hold rows the backend would no longer return
	leftover := domaintest.NewRiskBuilder("r2", createdAt).WithOwner("owner-2").Build()
	seedRiskPage(store, controller, matching, leftover)

	rows := controller.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "r1", rows[0].ID)
}

func TestRowsDoNotReapplyProcessFilter(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	controller, store := newRiskFixture(t, &mockedRiskAPI{t: t})

	controller.View().SetProcessFilter("proc-1")

	// The backend resolved the hierarchy; its answer stands even when the row's
	// own process ID looks different to stale client data
	row := domaintest.NewRiskBuilder("r1", createdAt).WithProcess("proc-child-7").Build()
	seedRiskPage(store, controller, row)

	rows := controller.Rows()
	require.Len(t, rows, 1)
}

func TestRowsSorting(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	controller, store := newRiskFixture(t, &mockedRiskAPI{t: t})

	seedRiskPage(store, controller,
		domaintest.NewRiskBuilder("r1", createdAt).WithCode("RSK-10").Build(),
		domaintest.NewRiskBuilder("r2", createdAt).WithCode("RSK-9").Build(),
		domaintest.NewRiskBuilder("r3", createdAt).WithCode("RSK-100").Build(),
	)

	codes := func() []string {
		rows := controller.Rows()
		result := make([]string, len(rows))
		for i, row := range rows {
			result[i] = row.Code
		}
		return result
	}

	assert.Equal(t, []string{"RSK-9", "RSK-10", "RSK-100"}, codes(), "codes sort numerically by digit run")

	controller.ToggleSort(listview.SortByCode)
	assert.Equal(t, []string{"RSK-100", "RSK-10", "RSK-9"}, codes(), "second click flips direction")
}

func TestDeleteRiskRequiresReason(t *testing.T) {
	t.Parallel()

	api := &mockedRiskAPI{
		t: t,
		deleteRisk: func(ctx context.Context, id string, deletionReason string) error {
			t.Error("no request may be sent for an empty reason")
			return nil
		},
	}
	controller, _ := newRiskFixture(t, api)

	err := controller.DeleteRisk(context.Background(), "r1", "   ")
	require.ErrorIs(t, err, e.ValidationError)
}

func TestDeleteRiskOptimisticallyRemovesRow(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)

	var rowsDuringCommit []listview.RiskRow
	var controller *listview.RiskController
	api := &mockedRiskAPI{
		t: t,
		deleteRisk: func(ctx context.Context, id string, deletionReason string) error {
			assert.Equal(t, "r1", id)
			assert.Equal(t, "duplicate entry", deletionReason)
			rowsDuringCommit = controller.Rows()
			return nil
		},
	}
	controller, store := newRiskFixture(t, api)

	seedRiskPage(store, controller,
		domaintest.NewRiskBuilder("r1", createdAt).Build(),
		domaintest.NewRiskBuilder("r2", createdAt).Build(),
	)

	require.NoError(t, controller.DeleteRisk(context.Background(), "r1", "duplicate entry"))

	require.Len(t, rowsDuringCommit, 1, "row vanishes before the server answers")
	assert.Equal(t, "r2", rowsDuringCommit[0].ID)

	// Committed: the page entry is stale, pending authoritative refetch
	entry, ok := store.Get(controller.View().PageKey())
	require.True(t, ok)
	assert.True(t, entry.Stale)
}

func TestDeleteRiskRollbackRestoresRow(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	api := &mockedRiskAPI{
		t: t,
		deleteRisk: func(ctx context.Context, id string, deletionReason string) error {
			return e.ConflictError
		},
	}
	controller, store := newRiskFixture(t, api)

	seedRiskPage(store, controller,
		domaintest.NewRiskBuilder("r1", createdAt).Build(),
		domaintest.NewRiskBuilder("r2", createdAt).Build(),
	)

	err := controller.DeleteRisk(context.Background(), "r1", "obsolete")
	require.ErrorIs(t, err, e.ConflictError)

	rows := controller.Rows()
	require.Len(t, rows, 2, "failed delete must bring the row back")
}

func TestAttachControlUpdatesCounterAndRelations(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	control := domain.Control{ID: "c1", Code: "CTL-1", Effectiveness: 5}

	var controller *listview.RiskController
	var rowsDuringCommit []listview.RiskRow
	api := &mockedRiskAPI{
		t: t,
		attachControl: func(ctx context.Context, riskID, controlID string) (domain.ControlLink, error) {
			assert.Equal(t, "r1", riskID)
			assert.Equal(t, "c1", controlID)
			rowsDuringCommit = controller.Rows()
			return domain.ControlLink{RiskID: riskID, Control: control, ResidualRisk: 4}, nil
		},
	}
	controller, store := newRiskFixture(t, api)

	risk := domaintest.NewRiskBuilder("r1", createdAt).WithScore(4, 5).Build()
	seedRiskPage(store, controller, risk)

	controller.View().EnableDetailMode()
	relationsKey := controller.View().RelationsKey([]string{"r1"})
	store.SetFetched(relationsKey, domain.ControlRelations{"r1": nil}, time.Minute)

	require.NoError(t, controller.AttachControl(context.Background(), "r1", control))

	require.Len(t, rowsDuringCommit, 1)
	assert.Equal(t, 1, rowsDuringCommit[0].ControlCount, "counter badge updates instantly")
	require.Len(t, rowsDuringCommit[0].Controls, 1)
	assert.Equal(t, 4.0, rowsDuringCommit[0].Residual, "optimistic residual matches the shared formula")
}

func TestAttachControlRollsBackBothKeys(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	control := domain.Control{ID: "c1", Effectiveness: 5}

	api := &mockedRiskAPI{
		t: t,
		attachControl: func(ctx context.Context, riskID, controlID string) (domain.ControlLink, error) {
			return domain.ControlLink{}, errors.New("server rejected the association")
		},
	}
	controller, store := newRiskFixture(t, api)

	risk := domaintest.NewRiskBuilder("r1", createdAt).WithScore(4, 5).Build()
	seedRiskPage(store, controller, risk)

	controller.View().EnableDetailMode()
	relationsKey := controller.View().RelationsKey([]string{"r1"})
	store.SetFetched(relationsKey, domain.ControlRelations{"r1": nil}, time.Minute)

	err := controller.AttachControl(context.Background(), "r1", control)
	require.Error(t, err)

	rows := controller.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].ControlCount, "counter restored with the association list")
	assert.Empty(t, rows[0].Controls)
	assert.Equal(t, 20.0, rows[0].Residual)
}

func TestDetachControlOptimisticallyRemovesLink(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)

	var controller *listview.RiskController
	var rowsDuringCommit []listview.RiskRow
	api := &mockedRiskAPI{
		t: t,
		detachControl: func(ctx context.Context, riskID, controlID string) error {
			rowsDuringCommit = controller.Rows()
			return nil
		},
	}
	controller, store := newRiskFixture(t, api)

	risk := domaintest.NewRiskBuilder("r1", createdAt).WithScore(4, 5).WithControlCount(1).Build()
	risk.ResidualRisk = 4
	seedRiskPage(store, controller, risk)

	controller.View().EnableDetailMode()
	relationsKey := controller.View().RelationsKey([]string{"r1"})
	store.SetFetched(relationsKey, domain.ControlRelations{
		"r1": {{RiskID: "r1", Control: domain.Control{ID: "c1", Effectiveness: 5}, ResidualRisk: 4}},
	}, time.Minute)

	require.NoError(t, controller.DetachControl(context.Background(), "r1", "c1"))

	require.Len(t, rowsDuringCommit, 1)
	assert.Equal(t, 0, rowsDuringCommit[0].ControlCount)
	assert.Empty(t, rowsDuringCommit[0].Controls)
	assert.Equal(t, 20.0, rowsDuringCommit[0].Residual, "zero controls falls back to inherent risk")
}

func TestCreateRiskInvalidatesRiskKeys(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	api := &mockedRiskAPI{
		t: t,
		createRisk: func(ctx context.Context, draft domain.RiskDraft) (domain.Risk, error) {
			return domain.Risk{ID: "r9", Name: draft.Name}, nil
		},
	}
	controller, store := newRiskFixture(t, api)

	seedRiskPage(store, controller, domaintest.NewRiskBuilder("r1", createdAt).Build())

	created, err := controller.CreateRisk(context.Background(), domain.RiskDraft{Name: "New risk", Probability: 2, Impact: 2})
	require.NoError(t, err)
	assert.Equal(t, "r9", created.ID)

	entry, ok := store.Get(controller.View().PageKey())
	require.True(t, ok)
	assert.True(t, entry.Stale, "cached page must refetch after a create")
}

func TestCreateRiskRequiresName(t *testing.T) {
	t.Parallel()

	controller, _ := newRiskFixture(t, &mockedRiskAPI{t: t})

	_, err := controller.CreateRisk(context.Background(), domain.RiskDraft{Name: " "})
	require.ErrorIs(t, err, e.ValidationError)
}

func TestUpdateRiskOptimisticallyPatchesRow(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	newName := "Renamed"

	var controller *listview.RiskController
	var rowsDuringCommit []listview.RiskRow
	api := &mockedRiskAPI{
		t: t,
		updateRisk: func(ctx context.Context, id string, patch domain.RiskPatch) (domain.Risk, error) {
			rowsDuringCommit = controller.Rows()
			return domain.Risk{ID: id, Name: *patch.Name}, nil
		},
	}
	controller, store := newRiskFixture(t, api)

	seedRiskPage(store, controller, domaintest.NewRiskBuilder("r1", createdAt).WithName("Original").Build())

	require.NoError(t, controller.UpdateRisk(context.Background(), "r1", domain.RiskPatch{Name: &newName}))

	require.Len(t, rowsDuringCommit, 1)
	assert.Equal(t, "Renamed", rowsDuringCommit[0].Name)
	// UpdatedAt is server-owned and must survive the optimistic patch
	assert.Equal(t, createdAt, rowsDuringCommit[0].UpdatedAt)
}
