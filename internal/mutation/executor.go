package mutation

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/mkleiva/riskview/internal/adapters/querystore"
	"github.com/mkleiva/riskview/internal/logging"
	"github.com/mkleiva/riskview/internal/querykey"
	"github.com/mkleiva/riskview/internal/reporting"
)

// Spec describes one mutation: which cache keys it touches, how to transform
// their cached values optimistically, how to commit it to the server, and
// which key prefixes become stale once the server confirms.
type Spec struct {
	// AffectedKeys are the keys whose entries get an optimistic write and are
	// snapshotted for rollback.
	AffectedKeys []querykey.Key

	// Apply transforms the cached value for one affected key. Returning
	// ok=false skips the optimistic write for that key (e.g. nothing useful
	// can be computed); on a cache miss Apply is not called at all and the
	// mutation degrades to commit-then-refetch for that key. Apply must not
	// mutate data in place; it returns a replacement value.
	Apply func(key querykey.Key, data any) (next any, ok bool)

	// Commit performs the server write.
	Commit func(ctx context.Context) error

	// InvalidateOnCommit lists key prefixes marked stale after a successful
	// commit, in addition to the affected keys themselves. Invalidation
	// cascades to all descendants of each prefix.
	InvalidateOnCommit []querykey.Key
}

// Executor runs mutations against a shared store with snapshot capture,
// optimistic apply, server commit and rollback-on-failure.
//
// Mutations touching disjoint key sets run fully independently. Mutations
// touching a common key serialize on that key for the whole
// snapshot-commit-restore span, so a rollback can never clobber another
// mutation's already-committed state.
type Executor struct {
	store *querystore.Store
	locks *keyedLocks
}

func New(store *querystore.Store) *Executor {
	return &Executor{
		store: store,
		locks: newKeyedLocks(),
	}
}

type snapshot struct {
	key     querykey.Key
	entry   querystore.Entry
	existed bool
	applied bool
}

// Execute runs one mutation. On commit failure every affected key is restored
// to the exact entry it held before the mutation started, and the error is
// returned to the caller; there are no silent failures.
func (ex *Executor) Execute(ctx context.Context, spec Spec) error {
	if len(spec.AffectedKeys) == 0 {
		panic("mutation: spec has no affected keys")
	}
	if spec.Commit == nil {
		panic("mutation: spec has no commit")
	}

	mutationID := uuid.New().String()
	ctx = reporting.AddTagsToContext(ctx, map[string]string{"mutationID": mutationID})
	keys := sortedUniqueKeys(spec.AffectedKeys)

	unlock := ex.locks.lockAll(keys)
	defer unlock()

	// Context is consumed exactly once: discarded on success, used for the
	// restore on failure. Never persisted beyond this invocation.
	snapshots := make([]snapshot, 0, len(keys))
	for _, key := range keys {
		// A stale response landing after the optimistic write would silently
		// revert it, so any fetch in flight for this key dies first.
		ex.store.CancelInflight(key)

		entry, existed := ex.store.Get(key)
		snap := snapshot{key: key, entry: entry, existed: existed}

		if existed && spec.Apply != nil {
			if next, ok := spec.Apply(key, entry.Data); ok {
				snap.applied = ex.store.ApplyOptimistic(key, next, mutationID)
			}
		}
		snapshots = append(snapshots, snap)
	}

	if err := spec.Commit(ctx); err != nil {
		for _, snap := range snapshots {
			if !snap.applied {
				continue
			}
			if !ex.store.Restore(snap.key, snap.entry, snap.existed, mutationID) {
				// A newer write owns this key now; leave it alone
				logging.FromContext(ctx).WarnContext(ctx, "Skipped rollback of superseded entry", "key", snap.key.String())
			}
		}
		recordOutcome(ctx, "rolled_back")
		reporting.Report(ctx, err, map[string]string{
			"affectedKeys": keyList(keys),
		})
		return fmt.Errorf("mutation failed: %w", err)
	}

	// The optimistic values have served their purpose; authoritative data
	// supersedes them via the invalidation cascade.
	for _, key := range keys {
		ex.store.Invalidate(key)
	}
	for _, prefix := range spec.InvalidateOnCommit {
		ex.store.Invalidate(prefix)
	}
	recordOutcome(ctx, "committed")
	return nil
}

func sortedUniqueKeys(keys []querykey.Key) []querykey.Key {
	sorted := slices.Clone(keys)
	slices.SortFunc(sorted, func(a, b querykey.Key) int {
		return strings.Compare(a.Canonical(), b.Canonical())
	})
	return slices.CompactFunc(sorted, querykey.Key.Equal)
}

func keyList(keys []querykey.Key) string {
	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = key.String()
	}
	return strings.Join(parts, ", ")
}
