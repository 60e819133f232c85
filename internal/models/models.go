// Package models provides domain models for the paper-trading ledger.
package models

import (
	"math"
	"time"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

// OrderStatus represents the lifecycle state of an order.
// Pending orders are held by the execution engine; filled and
// cancelled are terminal.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Quote represents a last-traded price for a symbol.
type Quote struct {
	Symbol string
	Price  float64
	AsOf   time.Time
}

// RoundCents rounds a money value to two decimal places using
// round-half-up semantics. Applied only at the persistence boundary,
// never mid-calculation.
func RoundCents(v float64) float64 {
	// The epsilon absorbs binary representation error so values like
	// 2.675 round up as written, not as stored.
	return math.Floor((v+1e-9)*100+0.5) / 100
}
