// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrPortfolioNotFound  = errors.New("portfolio not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("not enough shares to sell")
	ErrPriceUnavailable   = errors.New("price unavailable")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderNotPending    = errors.New("order is not pending")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrHoldingNotFound    = errors.New("holding not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrDatabaseError      = errors.New("database error")
)

// TradeError represents a failed trade execution attempt.
type TradeError struct {
	PortfolioID int64
	Symbol      string
	Side        string
	Quantity    int
	Err         error
}

func (e *TradeError) Error() string {
	return fmt.Sprintf("trade error [portfolio %d] %s %d %s: %v",
		e.PortfolioID, e.Side, e.Quantity, e.Symbol, e.Err)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

// NewTradeError creates a new TradeError.
func NewTradeError(portfolioID int64, symbol, side string, quantity int, err error) *TradeError {
	return &TradeError{
		PortfolioID: portfolioID,
		Symbol:      symbol,
		Side:        side,
		Quantity:    quantity,
		Err:         err,
	}
}

// OrderError represents an error related to order operations.
type OrderError struct {
	OrderID string
	Symbol  string
	Action  string
	Err     error
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("order error [%s] %s %s: %v", e.OrderID, e.Action, e.Symbol, e.Err)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(orderID, symbol, action string, err error) *OrderError {
	return &OrderError{
		OrderID: orderID,
		Symbol:  symbol,
		Action:  action,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
