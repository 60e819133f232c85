package trading

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"papertrader/internal/errors"
	"papertrader/internal/ledger"
	"papertrader/internal/models"
)

// TradeRequest describes one trade to execute against a portfolio.
type TradeRequest struct {
	PortfolioID int64
	Symbol      string
	Side        models.OrderSide
	Type        models.OrderType
	Quantity    int
	// Price is the execution price. The caller supplies it: the live
	// quote for market orders, the prevailing tick price for
	// engine-triggered fills.
	Price float64
	// OrderID, when set, names the pending order this trade fills. The
	// pending-to-filled transition then happens inside the same ledger
	// transaction as the trade, so a concurrent cancellation either
	// wins cleanly or fails with ErrOrderNotPending - never both.
	OrderID string
}

// TradeResult is the outcome of a successful execution.
type TradeResult struct {
	Transaction *models.Transaction
	CashBalance float64
}

// Executor performs atomic trade execution: precondition checks, the
// immutable transaction record, the cash balance update, and the
// holding update all happen inside one per-portfolio ledger
// transaction.
type Executor struct {
	ledger ledger.Store
	logger zerolog.Logger
}

// NewExecutor creates a new Executor over the given ledger store.
func NewExecutor(store ledger.Store, logger zerolog.Logger) *Executor {
	return &Executor{ledger: store, logger: logger}
}

// Execute runs one trade. Any precondition failure aborts the
// transaction with no partial writes. Concurrent executions against the
// same portfolio serialize; different portfolios execute concurrently.
func (e *Executor) Execute(ctx context.Context, req TradeRequest) (*TradeResult, error) {
	if req.Quantity <= 0 {
		return nil, errors.Wrapf(errors.ErrInvalidOrder, "quantity must be positive, got %d", req.Quantity)
	}
	if req.Price <= 0 {
		return nil, errors.Wrapf(errors.ErrInvalidOrder, "price must be positive, got %.2f", req.Price)
	}

	var result *TradeResult
	err := e.ledger.RunInPortfolioTx(ctx, req.PortfolioID, func(tx ledger.Tx) error {
		portfolio, err := tx.Portfolio()
		if err != nil {
			return err
		}

		now := time.Now().UTC()

		// Claim the pending order first so a cancellation that already
		// landed aborts the whole trade before any money moves.
		if req.OrderID != "" {
			execPrice := req.Price
			update := ledger.OrderUpdate{PriceAtExecution: &execPrice, ExecutedAt: &now}
			if err := tx.UpdateOrderStatus(req.OrderID, models.OrderStatusPending, models.OrderStatusFilled, update); err != nil {
				return err
			}
		}

		total := float64(req.Quantity) * req.Price
		holding := portfolio.Holding(req.Symbol)

		switch req.Side {
		case models.OrderSideBuy:
			if total > portfolio.Balance {
				return errors.NewTradeError(req.PortfolioID, req.Symbol, string(req.Side), req.Quantity, errors.ErrInsufficientFunds)
			}
		case models.OrderSideSell:
			if holding == nil || holding.Quantity < req.Quantity {
				return errors.NewTradeError(req.PortfolioID, req.Symbol, string(req.Side), req.Quantity, errors.ErrInsufficientShares)
			}
		default:
			return errors.Wrapf(errors.ErrInvalidOrder, "invalid side %q", req.Side)
		}

		txn := &models.Transaction{
			ID:               ulid.Make().String(),
			PortfolioID:      req.PortfolioID,
			Symbol:           req.Symbol,
			Side:             req.Side,
			Type:             req.Type,
			Quantity:         req.Quantity,
			PriceAtExecution: req.Price,
			CreatedAt:        now,
		}
		if err := tx.AppendTransaction(txn); err != nil {
			return err
		}

		// Cents rounding happens here, at the persistence boundary, and
		// nowhere mid-calculation.
		newBalance := portfolio.Balance - total
		if req.Side == models.OrderSideSell {
			newBalance = portfolio.Balance + total
		}
		newBalance = models.RoundCents(newBalance)
		if err := tx.UpdateBalance(newBalance); err != nil {
			return err
		}

		if err := e.applyHolding(tx, holding, req); err != nil {
			return err
		}

		result = &TradeResult{Transaction: txn, CashBalance: newBalance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Str("event", "trade").
		Int64("portfolio_id", req.PortfolioID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Int("quantity", req.Quantity).
		Float64("price", req.Price).
		Float64("balance", result.CashBalance).
		Msg("Trade executed")

	return result, nil
}

// applyHolding updates the holding lot for an executed trade. Buys
// recompute the weighted-average cost basis; sells only decrement
// quantity, and a holding that reaches zero is deleted outright.
func (e *Executor) applyHolding(tx ledger.Tx, holding *models.Holding, req TradeRequest) error {
	if req.Side == models.OrderSideBuy {
		if holding == nil {
			return tx.CreateHolding(&models.Holding{
				PortfolioID: req.PortfolioID,
				Symbol:      req.Symbol,
				Quantity:    req.Quantity,
				AvgBuyPrice: req.Price,
			})
		}
		costBefore := float64(holding.Quantity) * holding.AvgBuyPrice
		costAfter := costBefore + float64(req.Quantity)*req.Price
		qtyAfter := holding.Quantity + req.Quantity
		return tx.UpdateHolding(holding.ID, qtyAfter, costAfter/float64(qtyAfter))
	}

	// Sell: quantity was validated against the holding above.
	remaining := holding.Quantity - req.Quantity
	if remaining <= 0 {
		return tx.DeleteHolding(holding.ID)
	}
	return tx.UpdateHolding(holding.ID, remaining, holding.AvgBuyPrice)
}
