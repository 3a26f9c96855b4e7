package mutation

import (
	"sync"

	"github.com/mkleiva/riskview/internal/querykey"
)

// keyedLocks serializes mutations per cache key. Locks are acquired in sorted
// key order, so two mutations with overlapping key sets cannot deadlock.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

func (kl *keyedLocks) lockFor(canonical string) *sync.Mutex {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	lock, ok := kl.locks[canonical]
	if !ok {
		lock = &sync.Mutex{}
		kl.locks[canonical] = lock
	}
	return lock
}

// lockAll locks the given keys, which must already be sorted, and returns the
// matching unlock. The lock set grows with the key space; keys are bounded by
// the resources one client session touches.
func (kl *keyedLocks) lockAll(keys []querykey.Key) (unlock func()) {
	acquired := make([]*sync.Mutex, 0, len(keys))
	for _, key := range keys {
		lock := kl.lockFor(key.Canonical())
		lock.Lock()
		acquired = append(acquired, lock)
	}
	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
	}
}
