// Package notify provides the publish channel for fill, price, and
// portfolio events.
package notify

import (
	"context"
	"fmt"
	"time"

	"papertrader/internal/models"
)

// Notifier is the abstract publish channel the engine pushes events
// onto. Publish is fire-and-forget from the caller's point of view: a
// failed publish never affects a committed trade.
type Notifier interface {
	Publish(ctx context.Context, topic string, event interface{}) error
}

// PortfolioTopic returns the topic carrying fill and valuation events
// for one portfolio.
func PortfolioTopic(portfolioID int64) string {
	return fmt.Sprintf("portfolio-%d", portfolioID)
}

// PriceTopic returns the topic carrying price ticks for one symbol.
func PriceTopic(symbol string) string {
	return "price-" + symbol
}

// FillEvent is published when a pending order fills.
type FillEvent struct {
	OrderID     string           `json:"orderId"`
	PortfolioID int64            `json:"portfolioId"`
	Symbol      string           `json:"symbol"`
	Side        models.OrderSide `json:"side"`
	Type        models.OrderType `json:"type"`
	Quantity    int              `json:"quantity"`
	Price       float64          `json:"price"`
	Timestamp   time.Time        `json:"timestamp"`
}

// PriceUpdate is published on every price tick for a watched symbol.
type PriceUpdate struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timeStamp"`
}

// PortfolioUpdate is published when a portfolio's live valuation
// changes.
type PortfolioUpdate struct {
	PortfolioID     int64   `json:"portfolioId"`
	TotalValue      float64 `json:"totalValue"`
	HoldingsValue   float64 `json:"holdingsValue"`
	CashBalance     float64 `json:"cashBalance"`
	GainLoss        float64 `json:"gainLoss"`
	GainLossPercent float64 `json:"gainLossPercentage"`
}

// Nop is a Notifier that discards every event.
type Nop struct{}

// Publish implements Notifier.
func (Nop) Publish(context.Context, string, interface{}) error { return nil }

// Multi fans an event out to several notifiers. Every notifier is
// attempted; the first error is returned after all have run.
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a Multi over the given notifiers.
func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

// Publish implements Notifier.
func (m *Multi) Publish(ctx context.Context, topic string, event interface{}) error {
	var firstErr error
	for _, n := range m.notifiers {
		if err := n.Publish(ctx, topic, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var (
	_ Notifier = Nop{}
	_ Notifier = (*Multi)(nil)
)
