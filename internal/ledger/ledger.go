// Package ledger provides the transactional portfolio store: portfolios,
// holdings, orders, and the immutable transaction log.
package ledger

import (
	"context"
	"time"

	"papertrader/internal/models"
)

// OrderUpdate carries the optional fields stamped on an order status
// transition.
type OrderUpdate struct {
	PriceAtExecution *float64
	ExecutedAt       *time.Time
}

// Store defines the interface for the portfolio ledger.
//
// All portfolio mutations happen inside RunInPortfolioTx, which grants
// exclusive access to one portfolio's cash, holdings, and orders for the
// duration of the callback. Reads outside a transaction may observe
// state from before or after a concurrent trade, never in between.
type Store interface {
	// Portfolios
	CreatePortfolio(ctx context.Context, userID, name string, balance float64) (*models.Portfolio, error)
	GetPortfolio(ctx context.Context, id int64) (*models.Portfolio, error)
	PortfoliosHoldingSymbol(ctx context.Context, symbol string) ([]int64, error)

	// Orders
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	FindPendingOrders(ctx context.Context, symbol string) ([]models.Order, error)
	FindOrdersByPortfolio(ctx context.Context, portfolioID int64, status models.OrderStatus) ([]models.Order, error)
	// UpdateOrderStatus transitions an order conditionally: the update
	// applies only if the order's current status equals expected,
	// otherwise ErrOrderNotPending is returned and nothing changes.
	UpdateOrderStatus(ctx context.Context, orderID string, expected, next models.OrderStatus, update OrderUpdate) error

	// Transactions
	Transactions(ctx context.Context, portfolioID int64) ([]models.Transaction, error)

	// RunInPortfolioTx executes fn with exclusive access to the given
	// portfolio. The transaction commits only if fn returns nil; any
	// error rolls back every write made inside it.
	RunInPortfolioTx(ctx context.Context, portfolioID int64, fn func(tx Tx) error) error

	Close() error
}

// Tx is the handle passed to RunInPortfolioTx callbacks. All methods
// operate on the locked portfolio and take effect atomically on commit.
type Tx interface {
	// Portfolio returns the locked portfolio with its holdings loaded.
	Portfolio() (*models.Portfolio, error)
	UpdateBalance(balance float64) error

	Holding(symbol string) (*models.Holding, error)
	CreateHolding(h *models.Holding) error
	UpdateHolding(id int64, quantity int, avgBuyPrice float64) error
	DeleteHolding(id int64) error

	AppendTransaction(t *models.Transaction) error

	// UpdateOrderStatus is the in-transaction variant of
	// Store.UpdateOrderStatus, used to claim a pending order in the
	// same transaction as the trade it triggers.
	UpdateOrderStatus(orderID string, expected, next models.OrderStatus, update OrderUpdate) error
}
