package pricefeed

import (
	"context"
	"sync"
	"time"

	"papertrader/internal/models"
)

// CachedSource wraps a Source with a per-symbol TTL cache so that
// multiple consumers polling within one cadence share a single upstream
// request. Misses are not cached; a symbol that was unavailable is
// retried on the next lookup.
type CachedSource struct {
	source Source
	ttl    time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	quote   models.Quote
	fetched time.Time
}

// NewCachedSource creates a caching decorator around source.
func NewCachedSource(source Source, ttl time.Duration) *CachedSource {
	return &CachedSource{
		source:  source,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// LastTrade implements Source.
func (c *CachedSource) LastTrade(ctx context.Context, symbol string) (*models.Quote, error) {
	c.mu.Lock()
	entry, ok := c.entries[symbol]
	if ok && c.now().Sub(entry.fetched) < c.ttl {
		q := entry.quote
		c.mu.Unlock()
		return &q, nil
	}
	c.mu.Unlock()

	quote, err := c.source.LastTrade(ctx, symbol)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[symbol] = cacheEntry{quote: *quote, fetched: c.now()}
	c.mu.Unlock()
	return quote, nil
}

var _ Source = (*CachedSource)(nil)
