// Package engine implements the pending-order execution engine: a
// polling scheduler that watches live prices for actively-subscribed
// symbols and fills pending orders whose trigger condition is met.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"papertrader/internal/errors"
	"papertrader/internal/ledger"
	"papertrader/internal/models"
	"papertrader/internal/notify"
	"papertrader/internal/pricefeed"
	"papertrader/internal/trading"
)

// Watchlist supplies the set of symbols with live interest. Satisfied
// by *stream.Registry.
type Watchlist interface {
	ActiveSymbols() []string
}

// Config holds engine configuration.
type Config struct {
	// PollInterval is the cadence between ticks.
	PollInterval time.Duration
	// MaxSymbolsPerTick caps how many symbols one tick processes;
	// 0 means no cap. Throttled symbols rotate so every symbol is
	// eventually polled.
	MaxSymbolsPerTick int
	// SymbolConcurrency bounds how many symbol passes run in parallel.
	SymbolConcurrency int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:      3500 * time.Millisecond,
		MaxSymbolsPerTick: 0,
		SymbolConcurrency: 4,
	}
}

// Engine is the order execution scheduler. Each tick it polls prices
// for the watched symbols, evaluates pending orders against them, and
// executes triggered orders through the trade executor. Per-order
// failures are logged and left pending; nothing stops the loop.
type Engine struct {
	cfg      Config
	ledger   ledger.Store
	prices   pricefeed.Source
	exec     *trading.Executor
	valuer   *trading.Valuer
	watch    Watchlist
	notifier notify.Notifier
	logger   zerolog.Logger

	mu      sync.Mutex
	started bool
	done    chan struct{}
	wg      sync.WaitGroup

	// tickBusy skips a tick outright while the previous one is still
	// running, instead of letting ticks pile up behind a slow feed.
	tickBusy atomic.Bool
	// rotate offsets the symbol slice between throttled ticks.
	rotate int
}

// New creates a new Engine. The valuer is optional; pass nil to skip
// live portfolio valuation updates.
func New(cfg Config, store ledger.Store, prices pricefeed.Source, exec *trading.Executor, valuer *trading.Valuer, watch Watchlist, notifier notify.Notifier, logger zerolog.Logger) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.SymbolConcurrency <= 0 {
		cfg.SymbolConcurrency = DefaultConfig().SymbolConcurrency
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Engine{
		cfg:      cfg,
		ledger:   store,
		prices:   prices,
		exec:     exec,
		valuer:   valuer,
		watch:    watch,
		notifier: notifier,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins the polling loop. It returns immediately; the loop runs
// until Stop is called or the context is cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.wg.Add(1)
	go e.loop(ctx)

	e.logger.Info().
		Dur("poll_interval", e.cfg.PollInterval).
		Int("symbol_concurrency", e.cfg.SymbolConcurrency).
		Msg("Order execution engine started")
}

// Stop halts the polling loop and waits for in-flight symbol passes to
// finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.started = false
	close(e.done)
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info().Msg("Order execution engine stopped")
}

func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
			if !e.tickBusy.CompareAndSwap(false, true) {
				e.logger.Debug().Msg("Previous tick still running, skipping")
				continue
			}
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				defer e.tickBusy.Store(false)
				e.Tick(ctx)
			}()
		}
	}
}

// Tick runs one full evaluation pass over the actively-watched symbols.
// Symbol passes touch disjoint order sets in the common case and run
// concurrently up to SymbolConcurrency; ordering between symbols is not
// guaranteed.
func (e *Engine) Tick(ctx context.Context) {
	symbols := e.watch.ActiveSymbols()
	if len(symbols) == 0 {
		return
	}

	if e.cfg.MaxSymbolsPerTick > 0 && len(symbols) > e.cfg.MaxSymbolsPerTick {
		offset := e.rotate % len(symbols)
		e.rotate += e.cfg.MaxSymbolsPerTick
		rotated := make([]string, 0, len(symbols))
		rotated = append(rotated, symbols[offset:]...)
		rotated = append(rotated, symbols[:offset]...)
		symbols = rotated[:e.cfg.MaxSymbolsPerTick]
	}

	sem := make(chan struct{}, e.cfg.SymbolConcurrency)
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()
			e.processSymbol(ctx, symbol)
		}(symbol)
	}
	wg.Wait()
}

// processSymbol evaluates all pending orders for one symbol against the
// current price. The price fetch happens before any ledger work; no
// ledger lock is ever held while awaiting the price source.
func (e *Engine) processSymbol(ctx context.Context, symbol string) {
	logger := e.logger.With().Str("symbol", symbol).Logger()

	quote, err := e.prices.LastTrade(ctx, symbol)
	if err != nil {
		if errors.Is(err, errors.ErrPriceUnavailable) {
			// Transient miss; the symbol is retried next tick.
			logger.Debug().Msg("Price unavailable, skipping symbol this tick")
		} else {
			logger.Warn().Err(err).Msg("Price fetch failed, skipping symbol this tick")
		}
		return
	}

	if err := e.notifier.Publish(ctx, notify.PriceTopic(symbol), notify.PriceUpdate{
		Symbol:    symbol,
		Price:     quote.Price,
		Timestamp: quote.AsOf,
	}); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish price update")
	}

	orders, err := e.ledger.FindPendingOrders(ctx, symbol)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load pending orders")
		return
	}

	filled := 0
	for i := range orders {
		if e.executeOrder(ctx, logger, &orders[i], quote.Price) {
			filled++
		}
	}

	if e.valuer != nil {
		e.publishValuations(ctx, logger, symbol)
	}

	if filled > 0 {
		logger.Info().Int("filled", filled).Float64("price", quote.Price).Msg("Tick filled orders")
	}
}

// executeOrder evaluates and, if triggered, fills one pending order.
// Each order goes through its own ledger transaction: preconditions are
// re-validated against the state left by any earlier fill in the same
// tick, never batched. Returns true when the order filled.
func (e *Engine) executeOrder(ctx context.Context, logger zerolog.Logger, order *models.Order, price float64) bool {
	if !trading.ShouldTrigger(order, price) {
		return false
	}

	_, err := e.exec.Execute(ctx, trading.TradeRequest{
		PortfolioID: order.PortfolioID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Type:        order.Type,
		Quantity:    order.Quantity,
		Price:       price,
		OrderID:     order.ID,
	})
	if err != nil {
		if errors.Is(err, errors.ErrOrderNotPending) {
			// Another writer already transitioned the order.
			logger.Debug().Str("order_id", order.ID).Msg("Order no longer pending, skipping")
		} else {
			// Left pending; the condition may still hold next tick.
			logger.Warn().Err(err).Str("order_id", order.ID).Msg("Triggered order failed to execute")
		}
		return false
	}

	now := time.Now().UTC()
	if err := e.notifier.Publish(ctx, notify.PortfolioTopic(order.PortfolioID), notify.FillEvent{
		OrderID:     order.ID,
		PortfolioID: order.PortfolioID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Type:        order.Type,
		Quantity:    order.Quantity,
		Price:       price,
		Timestamp:   now,
	}); err != nil {
		// The trade is committed regardless.
		logger.Warn().Err(err).Str("order_id", order.ID).Msg("Failed to publish fill event")
	}

	logger.Info().
		Str("event", "fill").
		Str("order_id", order.ID).
		Str("side", string(order.Side)).
		Str("type", string(order.Type)).
		Int("quantity", order.Quantity).
		Float64("price", price).
		Msg("Order filled")
	return true
}

func (e *Engine) publishValuations(ctx context.Context, logger zerolog.Logger, symbol string) {
	ids, err := e.ledger.PortfoliosHoldingSymbol(ctx, symbol)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to list portfolios holding symbol")
		return
	}
	for _, id := range ids {
		e.valuer.PublishValue(ctx, id)
	}
}
