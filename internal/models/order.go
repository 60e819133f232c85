package models

import (
	"fmt"
	"time"
)

// Order represents a trading order against a portfolio. Market orders
// execute synchronously at placement and are recorded already filled;
// limit and stop orders are created pending and held until the engine
// triggers them or they are cancelled.
type Order struct {
	ID               string
	PortfolioID      int64
	Symbol           string
	Side             OrderSide
	Type             OrderType
	Quantity         int
	LimitPrice       *float64
	StopPrice        *float64
	Status           OrderStatus
	PriceAtExecution *float64
	CreatedAt        time.Time
	ExecutedAt       *time.Time
}

// Validate checks the structural invariants of an order: a positive
// quantity, a known side and type, a limit price on limit orders and a
// stop price on stop orders. Market orders carry neither.
func (o *Order) Validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("order: symbol is required")
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("order: quantity must be positive, got %d", o.Quantity)
	}
	switch o.Side {
	case OrderSideBuy, OrderSideSell:
	default:
		return fmt.Errorf("order: invalid side %q", o.Side)
	}
	switch o.Type {
	case OrderTypeMarket:
		if o.LimitPrice != nil || o.StopPrice != nil {
			return fmt.Errorf("order: market orders take no limit or stop price")
		}
	case OrderTypeLimit:
		if o.LimitPrice == nil {
			return fmt.Errorf("order: limit orders require a limit price")
		}
		if *o.LimitPrice <= 0 {
			return fmt.Errorf("order: limit price must be positive, got %.2f", *o.LimitPrice)
		}
	case OrderTypeStop:
		if o.StopPrice == nil {
			return fmt.Errorf("order: stop orders require a stop price")
		}
		if *o.StopPrice <= 0 {
			return fmt.Errorf("order: stop price must be positive, got %.2f", *o.StopPrice)
		}
	default:
		return fmt.Errorf("order: invalid type %q", o.Type)
	}
	return nil
}

// Terminal reports whether the order has reached a terminal status.
func (o *Order) Terminal() bool {
	return o.Status == OrderStatusFilled || o.Status == OrderStatusCancelled
}
