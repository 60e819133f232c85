// Package stream tracks live subscriptions and serves them over
// websockets. The registry is the engine's watchlist: a symbol is
// polled exactly while at least one observer is subscribed to it.
package stream

import (
	"sort"
	"sync"
)

// Registry maintains the two-way mapping between observers and the
// symbols and portfolios they watch. All mutations are idempotent set
// operations; both directions update under one lock so they never
// disagree.
type Registry struct {
	mu sync.RWMutex
	// symbol -> set of observer IDs
	symbolObservers map[string]map[string]struct{}
	// observer ID -> set of symbols
	observerSymbols map[string]map[string]struct{}
	// observer ID -> set of portfolio IDs
	observerPortfolios map[string]map[int64]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		symbolObservers:    make(map[string]map[string]struct{}),
		observerSymbols:    make(map[string]map[string]struct{}),
		observerPortfolios: make(map[string]map[int64]struct{}),
	}
}

// SubscribeSymbol registers the observer's interest in a symbol.
// Subscribing twice is a no-op.
func (r *Registry) SubscribeSymbol(observerID, symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.symbolObservers[symbol] == nil {
		r.symbolObservers[symbol] = make(map[string]struct{})
	}
	r.symbolObservers[symbol][observerID] = struct{}{}

	if r.observerSymbols[observerID] == nil {
		r.observerSymbols[observerID] = make(map[string]struct{})
	}
	r.observerSymbols[observerID][symbol] = struct{}{}
}

// UnsubscribeSymbol removes the observer's interest in a symbol. When
// the last observer of a symbol leaves, the symbol drops off the
// active list and the engine stops polling it.
func (r *Registry) UnsubscribeSymbol(observerID, symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropSymbol(observerID, symbol)
}

// SubscribePortfolio registers the observer for a portfolio's fill and
// valuation events.
func (r *Registry) SubscribePortfolio(observerID string, portfolioID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.observerPortfolios[observerID] == nil {
		r.observerPortfolios[observerID] = make(map[int64]struct{})
	}
	r.observerPortfolios[observerID][portfolioID] = struct{}{}
}

// UnsubscribePortfolio removes the observer's interest in a portfolio.
func (r *Registry) UnsubscribePortfolio(observerID string, portfolioID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set := r.observerPortfolios[observerID]; set != nil {
		delete(set, portfolioID)
		if len(set) == 0 {
			delete(r.observerPortfolios, observerID)
		}
	}
}

// RemoveObserver drops every subscription an observer holds, in both
// directions. Called on disconnect.
func (r *Registry) RemoveObserver(observerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for symbol := range r.observerSymbols[observerID] {
		r.dropSymbol(observerID, symbol)
	}
	delete(r.observerPortfolios, observerID)
}

// ActiveSymbols returns the symbols with at least one observer, sorted
// for deterministic polling order.
func (r *Registry) ActiveSymbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	symbols := make([]string, 0, len(r.symbolObservers))
	for symbol := range r.symbolObservers {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// SymbolObservers returns the IDs of observers watching a symbol.
func (r *Registry) SymbolObservers(symbol string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keys(r.symbolObservers[symbol])
}

// PortfolioObservers returns the IDs of observers watching a portfolio.
func (r *Registry) PortfolioObservers(portfolioID int64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for observerID, set := range r.observerPortfolios {
		if _, ok := set[portfolioID]; ok {
			ids = append(ids, observerID)
		}
	}
	sort.Strings(ids)
	return ids
}

// ObserverSymbols returns the symbols one observer watches.
func (r *Registry) ObserverSymbols(observerID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keys(r.observerSymbols[observerID])
}

// dropSymbol removes one observer/symbol edge. Caller holds r.mu.
func (r *Registry) dropSymbol(observerID, symbol string) {
	if set := r.symbolObservers[symbol]; set != nil {
		delete(set, observerID)
		if len(set) == 0 {
			delete(r.symbolObservers, symbol)
		}
	}
	if set := r.observerSymbols[observerID]; set != nil {
		delete(set, symbol)
		if len(set) == 0 {
			delete(r.observerSymbols, observerID)
		}
	}
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
