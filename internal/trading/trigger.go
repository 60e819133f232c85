// Package trading implements trade execution against the portfolio
// ledger: the pure trigger evaluator, the atomic trade executor, order
// placement and cancellation, and live portfolio valuation.
package trading

import "papertrader/internal/models"

// ShouldTrigger decides whether a pending order's condition is
// satisfied at the given price. It is pure: no I/O, no side effects.
//
// Rules:
//   - limit buy triggers at or below the limit price (buy no higher
//     than the cap)
//   - limit sell triggers at or above the limit price (sell no lower
//     than the floor)
//   - stop sell triggers at or below the stop price (stop-loss)
//   - stop buy is not supported and never triggers
//   - market orders are never held pending, so they never reach this
//     function
func ShouldTrigger(order *models.Order, price float64) bool {
	switch order.Type {
	case models.OrderTypeLimit:
		if order.LimitPrice == nil {
			return false
		}
		switch order.Side {
		case models.OrderSideBuy:
			return price <= *order.LimitPrice
		case models.OrderSideSell:
			return price >= *order.LimitPrice
		}
	case models.OrderTypeStop:
		if order.StopPrice == nil {
			return false
		}
		// Stop-buy (breakout entry) is deliberately unsupported.
		if order.Side == models.OrderSideSell {
			return price <= *order.StopPrice
		}
	}
	return false
}
