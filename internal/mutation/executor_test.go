package mutation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mkleiva/riskview/internal/adapters/querystore"
	"github.com/mkleiva/riskview/internal/mutation"
	"github.com/mkleiva/riskview/internal/querykey"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *querystore.Store {
	t.Helper()
	store := querystore.New(1*time.Hour, time.Now)
	t.Cleanup(store.Close)
	return store
}

func TestCommitInvalidatesAffectedAndDependentKeys(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ex := mutation.New(store)
	ctx := context.Background()

	listKey := querykey.Paginated("risks", querykey.Params{"limit": 50})
	pageKey := querykey.PageAggregate("risks", querykey.Params{"page": 1})
	store.SetFetched(listKey, []string{"r1", "r2"}, time.Minute)
	store.SetFetched(pageKey, "aggregate", time.Minute)

	committed := false
	err := ex.Execute(ctx, mutation.Spec{
		AffectedKeys: []querykey.Key{listKey},
		Apply: func(key querykey.Key, data any) (any, bool) {
			ids := data.([]string)
			return []string{ids[1]}, true
		},
		Commit: func(ctx context.Context) error {
			committed = true
			return nil
		},
		InvalidateOnCommit: []querykey.Key{querykey.For("pages", "risks")},
	})
	require.NoError(t, err)
	require.True(t, committed)

	entry, ok := store.Get(listKey)
	require.True(t, ok)
	require.Equal(t, []string{"r2"}, entry.Data, "optimistic value stays until refetch")
	require.True(t, entry.Stale, "affected key must be marked for refetch")

	pageEntry, ok := store.Get(pageKey)
	require.True(t, ok)
	require.True(t, pageEntry.Stale, "dependent prefix must cascade")
}

func TestRollbackRestoresSnapshotsExactly(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ex := mutation.New(store)
	ctx := context.Background()

	type row struct{ ID, Name string }
	key := querykey.Paginated("risks", querykey.Params{"limit": 50})
	store.SetFetched(key, []row{{ID: "r1", Name: "Risk A"}}, time.Minute)

	before, _ := store.Get(key)

	commitErr := errors.New("500 from server")
	err := ex.Execute(ctx, mutation.Spec{
		AffectedKeys: []querykey.Key{key},
		Apply: func(k querykey.Key, data any) (any, bool) {
			return []row{}, true
		},
		Commit: func(ctx context.Context) error {
			// The optimistic delete must be visible while the commit runs
			entry, ok := store.Get(key)
			require.True(t, ok)
			require.Empty(t, entry.Data.([]row))
			return commitErr
		},
	})
	require.ErrorIs(t, err, commitErr)

	after, ok := store.Get(key)
	require.True(t, ok)
	require.Equal(t, before, after, "rollback must restore the exact pre-mutation entry")
	require.Equal(t, []row{{ID: "r1", Name: "Risk A"}}, after.Data)
}

func TestCacheMissDegradesToCommitThenRefetch(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ex := mutation.New(store)
	ctx := context.Background()

	key := querykey.For("risks", "r1")
	applied := false

	err := ex.Execute(ctx, mutation.Spec{
		AffectedKeys: []querykey.Key{key},
		Apply: func(k querykey.Key, data any) (any, bool) {
			applied = true
			return nil, true
		},
		Commit: func(ctx context.Context) error { return nil },
	})
	require.NoError(t, err)
	require.False(t, applied, "no optimistic transform on a cache miss")

	_, ok := store.Get(key)
	require.False(t, ok, "no placeholder data may be fabricated")
}

func TestRollbackDoesNotClobberSupersedingWrites(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ex := mutation.New(store)
	ctx := context.Background()

	key := querykey.For("risks", "r1")
	store.SetFetched(key, "server-1", time.Minute)

	commitErr := errors.New("conflict")
	err := ex.Execute(ctx, mutation.Spec{
		AffectedKeys: []querykey.Key{key},
		Apply: func(k querykey.Key, data any) (any, bool) {
			return "optimistic", true
		},
		Commit: func(ctx context.Context) error {
			// While this mutation is pending, a refetch lands authoritative data
			store.SetFetched(key, "server-2", time.Minute)
			return commitErr
		},
	})
	require.ErrorIs(t, err, commitErr)

	entry, ok := store.Get(key)
	require.True(t, ok)
	require.Equal(t, "server-2", entry.Data, "rollback must not clobber the newer write")
}

func TestMutationsOnDisjointKeysRunIndependently(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ex := mutation.New(store)
	ctx := context.Background()

	keyA := querykey.For("risks", "a")
	keyB := querykey.For("risks", "b")
	store.SetFetched(keyA, "a", time.Minute)
	store.SetFetched(keyB, "b", time.Minute)

	aInCommit := make(chan struct{})
	releaseA := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = ex.Execute(ctx, mutation.Spec{
			AffectedKeys: []querykey.Key{keyA},
			Apply:        func(k querykey.Key, data any) (any, bool) { return "a2", true },
			Commit: func(ctx context.Context) error {
				close(aInCommit)
				<-releaseA
				return nil
			},
		})
	}()

	<-aInCommit

	// B commits fully while A is still pending
	err := ex.Execute(ctx, mutation.Spec{
		AffectedKeys: []querykey.Key{keyB},
		Apply:        func(k querykey.Key, data any) (any, bool) { return "b2", true },
		Commit:       func(ctx context.Context) error { return nil },
	})
	require.NoError(t, err)

	close(releaseA)
	wg.Wait()
}

func TestOverlappingMutationsSerialize(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ex := mutation.New(store)
	ctx := context.Background()

	key := querykey.For("risks", "r1")
	store.SetFetched(key, "server-1", time.Minute)

	firstInCommit := make(chan struct{})
	releaseFirst := make(chan struct{})
	firstErr := errors.New("first fails")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = ex.Execute(ctx, mutation.Spec{
			AffectedKeys: []querykey.Key{key},
			Apply:        func(k querykey.Key, data any) (any, bool) { return "optimistic-1", true },
			Commit: func(ctx context.Context) error {
				close(firstInCommit)
				<-releaseFirst
				return firstErr
			},
		})
	}()

	<-firstInCommit

	secondDone := make(chan struct{})
	var secondErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(secondDone)
		secondErr = ex.Execute(ctx, mutation.Spec{
			AffectedKeys: []querykey.Key{key},
			Apply:        func(k querykey.Key, data any) (any, bool) { return "optimistic-2", true },
			Commit:       func(ctx context.Context) error { return nil },
		})
	}()

	// The second mutation must wait for the first to finish its
	// snapshot-commit-restore span
	select {
	case <-secondDone:
		t.Fatal("overlapping mutation did not serialize")
	case <-time.After(20 * time.Millisecond):
	}

	close(releaseFirst)
	wg.Wait()
	require.NoError(t, secondErr)

	// First rolled back to server-1, then the second applied and committed
	entry, ok := store.Get(key)
	require.True(t, ok)
	require.Equal(t, "optimistic-2", entry.Data)
	require.True(t, entry.Stale, "committed mutation invalidates its keys")
}

func TestInflightFetchForAffectedKeyIsCancelled(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ex := mutation.New(store)
	ctx := context.Background()

	key := querykey.For("risks", "r1")
	store.SetFetched(key, "server-1", time.Minute)
	// Entry is fresh; force a refetch path by marking it stale
	store.Invalidate(key)

	fetchStarted := make(chan struct{})
	fetchDone := make(chan struct{})
	var fetchErr error
	go func() {
		defer close(fetchDone)
		_, fetchErr = querystore.GetOrFetch(ctx, store, key, time.Minute, func(fctx context.Context) (string, error) {
			close(fetchStarted)
			<-fctx.Done()
			return "slow-stale-response", nil
		})
	}()

	<-fetchStarted

	err := ex.Execute(ctx, mutation.Spec{
		AffectedKeys: []querykey.Key{key},
		Apply:        func(k querykey.Key, data any) (any, bool) { return "optimistic", true },
		Commit:       func(ctx context.Context) error { return nil },
	})
	require.NoError(t, err)

	<-fetchDone
	require.Error(t, fetchErr)

	entry, ok := store.Get(key)
	require.True(t, ok)
	require.Equal(t, "optimistic", entry.Data, "the stale response must not overwrite the optimistic value")
}

func TestSpecWithoutKeysOrCommitPanics(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ex := mutation.New(store)

	require.Panics(t, func() {
		_ = ex.Execute(context.Background(), mutation.Spec{Commit: func(ctx context.Context) error { return nil }})
	})
	require.Panics(t, func() {
		_ = ex.Execute(context.Background(), mutation.Spec{AffectedKeys: []querykey.Key{querykey.For("risks")}})
	})
}
