package models

import "time"

// Portfolio represents a user's paper-trading account: a cash balance
// plus the holdings bought against it. The balance never goes negative
// outside of an in-flight ledger transaction.
type Portfolio struct {
	ID        int64
	UserID    string
	Name      string
	Balance   float64
	Holdings  []Holding
	CreatedAt time.Time
}

// Holding returns the portfolio's holding for symbol, or nil if the
// portfolio holds no shares of it.
func (p *Portfolio) Holding(symbol string) *Holding {
	for i := range p.Holdings {
		if p.Holdings[i].Symbol == symbol {
			return &p.Holdings[i]
		}
	}
	return nil
}

// Holding represents a portfolio's position in one symbol. Quantity is
// always positive; a holding that reaches zero is deleted, never kept.
// AvgBuyPrice is the weighted-average cost basis across all buys and is
// unchanged by sells.
type Holding struct {
	ID          int64
	PortfolioID int64
	Symbol      string
	Quantity    int
	AvgBuyPrice float64
}

// Transaction is an immutable log entry recorded for every executed
// trade, whether from a market order or an engine-triggered fill.
type Transaction struct {
	ID               string
	PortfolioID      int64
	Symbol           string
	Side             OrderSide
	Type             OrderType
	Quantity         int
	PriceAtExecution float64
	CreatedAt        time.Time
}
