package ledger

import "sync"

// portfolioLocks serializes transactions per portfolio. Entries are
// reference counted and removed once the last holder releases, so the
// map does not grow with the number of portfolios ever touched.
type portfolioLocks struct {
	mu    sync.Mutex
	locks map[int64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newPortfolioLocks() *portfolioLocks {
	return &portfolioLocks{locks: make(map[int64]*lockEntry)}
}

// acquire blocks until the caller holds the lock for portfolioID.
func (l *portfolioLocks) acquire(portfolioID int64) *lockEntry {
	l.mu.Lock()
	entry, ok := l.locks[portfolioID]
	if !ok {
		entry = &lockEntry{}
		l.locks[portfolioID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return entry
}

// release unlocks the entry and drops it from the map when no other
// goroutine is waiting on it.
func (l *portfolioLocks) release(portfolioID int64, entry *lockEntry) {
	entry.mu.Unlock()

	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, portfolioID)
	}
	l.mu.Unlock()
}
