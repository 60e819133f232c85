package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrySymbolSubscriptions(t *testing.T) {
	r := NewRegistry()

	r.SubscribeSymbol("ws-1", "AAPL")
	r.SubscribeSymbol("ws-1", "TSLA")
	r.SubscribeSymbol("ws-2", "AAPL")
	// Idempotent resubscribe.
	r.SubscribeSymbol("ws-2", "AAPL")

	assert.Equal(t, []string{"AAPL", "TSLA"}, r.ActiveSymbols())
	assert.Equal(t, []string{"ws-1", "ws-2"}, r.SymbolObservers("AAPL"))
	assert.Equal(t, []string{"ws-1"}, r.SymbolObservers("TSLA"))
	assert.Equal(t, []string{"AAPL", "TSLA"}, r.ObserverSymbols("ws-1"))
}

func TestRegistryUnsubscribeDropsEmptySymbols(t *testing.T) {
	r := NewRegistry()

	r.SubscribeSymbol("ws-1", "AAPL")
	r.SubscribeSymbol("ws-2", "AAPL")

	r.UnsubscribeSymbol("ws-1", "AAPL")
	assert.Equal(t, []string{"AAPL"}, r.ActiveSymbols())

	// The last observer leaving takes the symbol off the active list,
	// which stops the engine from polling it.
	r.UnsubscribeSymbol("ws-2", "AAPL")
	assert.Empty(t, r.ActiveSymbols())
	assert.Empty(t, r.SymbolObservers("AAPL"))

	// Unsubscribing something never subscribed is a no-op.
	r.UnsubscribeSymbol("ws-3", "MSFT")
	assert.Empty(t, r.ActiveSymbols())
}

func TestRegistryPortfolioSubscriptions(t *testing.T) {
	r := NewRegistry()

	r.SubscribePortfolio("ws-1", 1)
	r.SubscribePortfolio("ws-2", 1)
	r.SubscribePortfolio("ws-2", 2)

	assert.Equal(t, []string{"ws-1", "ws-2"}, r.PortfolioObservers(1))
	assert.Equal(t, []string{"ws-2"}, r.PortfolioObservers(2))

	r.UnsubscribePortfolio("ws-2", 1)
	assert.Equal(t, []string{"ws-1"}, r.PortfolioObservers(1))
	assert.Equal(t, []string{"ws-2"}, r.PortfolioObservers(2))
}

func TestRegistryRemoveObserverClearsBothSides(t *testing.T) {
	r := NewRegistry()

	r.SubscribeSymbol("ws-1", "AAPL")
	r.SubscribeSymbol("ws-1", "TSLA")
	r.SubscribeSymbol("ws-2", "AAPL")
	r.SubscribePortfolio("ws-1", 7)

	r.RemoveObserver("ws-1")

	require.Equal(t, []string{"AAPL"}, r.ActiveSymbols())
	assert.Empty(t, r.ObserverSymbols("ws-1"))
	assert.Empty(t, r.PortfolioObservers(7))
	assert.Equal(t, []string{"ws-2"}, r.SymbolObservers("AAPL"))

	// Removing an unknown observer is a no-op.
	r.RemoveObserver("ws-404")
	assert.Equal(t, []string{"AAPL"}, r.ActiveSymbols())
}
