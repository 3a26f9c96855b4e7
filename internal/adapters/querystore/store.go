package querystore

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/mkleiva/riskview/internal/querykey"
)

// Entry is one cached value. Entries are owned exclusively by the Store; the
// only writers are fetch completion, optimistic apply, rollback restore and
// invalidation.
type Entry struct {
	Data       any
	FetchedAt  time.Time
	StaleAfter time.Duration
	// Stale marks an entry that must be refetched before it counts as fresh.
	// Stale entries are still served while a refetch is pending.
	Stale bool
	// Provenance holds the mutation ID of the optimistic write that produced
	// this entry, or "" for data confirmed by the server.
	Provenance string
}

// Fresh reports whether the entry can be served without a refetch.
func (e Entry) Fresh(now time.Time) bool {
	if e.Stale {
		return false
	}
	return now.Sub(e.FetchedAt) < e.StaleAfter
}

type inflightFetch struct {
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// Store is the process-wide query cache. It is constructed once at
// application start and passed explicitly to every component that needs it.
type Store struct {
	entries *ttlcache.Cache[string, Entry]
	nowFunc func() time.Time

	mu       sync.Mutex
	index    map[string]querykey.Key
	inflight map[string]*inflightFetch
}

// New creates a store whose entries are garbage collected gcAfter after their
// last write.
func New(gcAfter time.Duration, nowFunc func() time.Time) *Store {
	entries := ttlcache.New[string, Entry](
		ttlcache.WithTTL[string, Entry](gcAfter),
		ttlcache.WithDisableTouchOnHit[string, Entry](),
	)
	go entries.Start()

	return &Store{
		entries:  entries,
		nowFunc:  nowFunc,
		index:    make(map[string]querykey.Key),
		inflight: make(map[string]*inflightFetch),
	}
}

func (s *Store) Close() {
	s.entries.Stop()
}

func (s *Store) now() time.Time {
	return s.nowFunc()
}

// Get returns the cached entry for key, if any. Stale entries are returned as
// well; callers decide whether stale data is acceptable.
func (s *Store) Get(key querykey.Key) (Entry, bool) {
	item := s.entries.Get(key.Canonical())
	if item == nil {
		return Entry{}, false
	}
	return item.Value(), true
}

// SetFetched stores data confirmed by the server.
func (s *Store) SetFetched(key querykey.Key, data any, staleAfter time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, Entry{
		Data:       data,
		FetchedAt:  s.now(),
		StaleAfter: staleAfter,
	})
}

// ApplyOptimistic replaces the data of an existing entry with a mutation's
// expected result, tagged with the mutation's ID. It reports whether an entry
// existed; on a cache miss no placeholder is fabricated.
func (s *Store) ApplyOptimistic(key querykey.Key, data any, provenance string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.entries.Get(key.Canonical())
	if item == nil {
		return false
	}
	entry := item.Value()
	entry.Data = data
	entry.FetchedAt = s.now()
	entry.Stale = false
	entry.Provenance = provenance
	s.setLocked(key, entry)
	return true
}

// Restore puts back the snapshot taken before an optimistic write, verbatim.
// The restore is skipped when the current entry was not written by the given
// mutation: a later write (another mutation, or a completed refetch) must not
// be clobbered by this rollback.
func (s *Store) Restore(key querykey.Key, previous Entry, existed bool, provenance string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.entries.Get(key.Canonical()); item != nil {
		if item.Value().Provenance != provenance {
			return false
		}
	}

	if !existed {
		s.deleteLocked(key)
		return true
	}
	s.setLocked(key, previous)
	return true
}

// Invalidate marks stale every cached entry whose key has prefix as a prefix,
// including the prefix itself. Returns the number of entries marked.
func (s *Store) Invalidate(prefix querykey.Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	marked := 0
	for canonical, key := range s.index {
		if !key.HasPrefix(prefix) {
			continue
		}
		item := s.entries.Get(canonical)
		if item == nil {
			// Entry was garbage collected under us
			delete(s.index, canonical)
			continue
		}
		entry := item.Value()
		if !entry.Stale {
			entry.Stale = true
			s.setLocked(key, entry)
			marked++
		}
	}
	recordInvalidations(prefix, marked)
	return marked
}

func (s *Store) Delete(key querykey.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(key)
}

// CachedKeys returns the keys of all live entries.
func (s *Store) CachedKeys() []querykey.Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]querykey.Key, 0, len(s.index))
	for canonical, key := range s.index {
		if s.entries.Get(canonical) == nil {
			delete(s.index, canonical)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// CancelInflight cancels any fetch currently in flight for key. The cancelled
// fetch will not write its result into the store.
func (s *Store) CancelInflight(key querykey.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if flight, ok := s.inflight[key.Canonical()]; ok {
		flight.cancel()
	}
}

func (s *Store) setLocked(key querykey.Key, entry Entry) {
	canonical := key.Canonical()
	s.entries.Set(canonical, entry, ttlcache.DefaultTTL)
	s.index[canonical] = key
}

func (s *Store) deleteLocked(key querykey.Key) {
	canonical := key.Canonical()
	s.entries.Delete(canonical)
	delete(s.index, canonical)
}

// claimInflight either registers a new in-flight fetch for key (claimed=true)
// or returns the already-running fetch to join.
func (s *Store) claimInflight(ctx context.Context, key querykey.Key) (flight *inflightFetch, claimed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	canonical := key.Canonical()
	if existing, ok := s.inflight[canonical]; ok {
		return existing, false
	}

	fctx, cancel := context.WithCancel(ctx)
	flight = &inflightFetch{
		done:   make(chan struct{}),
		ctx:    fctx,
		cancel: cancel,
	}
	s.inflight[canonical] = flight
	return flight, true
}

// completeInflight finishes a claimed fetch. The decision to write or discard
// the result is taken under the store lock, so a cancellation that has already
// happened can never be outrun by a slow response.
func (s *Store) completeInflight(key querykey.Key, flight *inflightFetch, data any, staleAfter time.Duration, fetchErr error) (wrote bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inflight, key.Canonical())
	defer close(flight.done)
	defer flight.cancel()

	if flight.ctx.Err() != nil || fetchErr != nil {
		return false
	}

	s.setLocked(key, Entry{
		Data:       data,
		FetchedAt:  s.now(),
		StaleAfter: staleAfter,
	})
	return true
}
