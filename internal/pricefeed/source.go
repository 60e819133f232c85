// Package pricefeed provides last-traded price sources for the
// execution engine: an upstream HTTP client with rate limiting and a
// circuit breaker, plus caching and static sources.
package pricefeed

import (
	"context"
	"sync"
	"time"

	"papertrader/internal/errors"
	"papertrader/internal/models"
)

// Source supplies the last-traded price for a symbol. Implementations
// return errors.ErrPriceUnavailable when no price can be produced right
// now; callers treat that as a transient miss, not a failure.
type Source interface {
	LastTrade(ctx context.Context, symbol string) (*models.Quote, error)
}

// StaticSource serves prices from a fixed in-memory table. Symbols
// without an entry report ErrPriceUnavailable. Intended for tests and
// offline runs.
type StaticSource struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewStaticSource creates a StaticSource seeded with the given prices.
func NewStaticSource(prices map[string]float64) *StaticSource {
	p := make(map[string]float64, len(prices))
	for k, v := range prices {
		p[k] = v
	}
	return &StaticSource{prices: p}
}

// SetPrice sets or updates the price for a symbol.
func (s *StaticSource) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	s.prices[symbol] = price
	s.mu.Unlock()
}

// Remove drops a symbol so subsequent lookups report unavailable.
func (s *StaticSource) Remove(symbol string) {
	s.mu.Lock()
	delete(s.prices, symbol)
	s.mu.Unlock()
}

// LastTrade implements Source.
func (s *StaticSource) LastTrade(_ context.Context, symbol string) (*models.Quote, error) {
	s.mu.RLock()
	price, ok := s.prices[symbol]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.ErrPriceUnavailable
	}
	return &models.Quote{Symbol: symbol, Price: price, AsOf: time.Now()}, nil
}

var _ Source = (*StaticSource)(nil)
