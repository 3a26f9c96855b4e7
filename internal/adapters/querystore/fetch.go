package querystore

import (
	"context"
	"fmt"
	"time"

	"github.com/mkleiva/riskview/internal/logging"
	"github.com/mkleiva/riskview/internal/querykey"
)

// GetOrFetch returns the cached value for key, fetching it when the cache
// holds nothing fresh. At most one fetch per key is in flight: a second caller
// joins the running fetch instead of issuing a duplicate.
//
// A fetch cancelled through Store.CancelInflight (or through ctx) returns an
// error and never writes its result into the store.
func GetOrFetch[T any](
	ctx context.Context,
	store *Store,
	key querykey.Key,
	staleAfter time.Duration,
	fetch func(ctx context.Context) (T, error),
) (T, error) {
	var empty T

	for {
		if entry, ok := store.Get(key); ok && entry.Fresh(store.now()) {
			logging.FromContext(ctx).DebugContext(ctx, "Query served from cache", "key", key.String(), "cache", "hit")
			recordLookup(key, "hit")
			return entryData[T](key, entry), nil
		}

		flight, claimed := store.claimInflight(ctx, key)

		if !claimed {
			// Join the in-flight fetch and re-check the cache once it settles
			recordLookup(key, "join")
			select {
			case <-ctx.Done():
				return empty, ctx.Err()
			case <-flight.done:
			}
			continue
		}

		logging.FromContext(ctx).DebugContext(ctx, "Query not cached, fetching", "key", key.String(), "cache", "miss")
		recordLookup(key, "miss")

		data, err := fetch(flight.ctx)
		wrote := store.completeInflight(key, flight, data, staleAfter, err)

		if cancelErr := flight.ctx.Err(); cancelErr != nil {
			return empty, fmt.Errorf("fetch for %s cancelled: %w", key, cancelErr)
		}
		if err != nil {
			// Any previously cached value is left intact; stale data beats no data
			return empty, fmt.Errorf("failed to fetch %s: %w", key, err)
		}
		if !wrote {
			panic("querystore: completed fetch neither wrote nor was cancelled")
		}
		return data, nil
	}
}

// Data returns the cached value for key resolved to its concrete type. The
// type is fixed at the fetch boundary; asking for anything else is a
// programmer error.
func Data[T any](store *Store, key querykey.Key) (T, bool) {
	entry, ok := store.Get(key)
	if !ok {
		var empty T
		return empty, false
	}
	return entryData[T](key, entry), true
}

func entryData[T any](key querykey.Key, entry Entry) T {
	data, ok := entry.Data.(T)
	if !ok {
		panic(fmt.Sprintf("querystore: entry for %s holds %T, not the requested type", key, entry.Data))
	}
	return data
}
