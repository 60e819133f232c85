package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"papertrader/internal/errors"
	"papertrader/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	locks *portfolioLocks
}

// NewSQLiteStore creates a new SQLite-backed ledger store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; funneling writes through one
	// connection avoids busy errors under concurrent transactions.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		db:    db,
		locks: newPortfolioLocks(),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS portfolios (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		balance REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS holdings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		portfolio_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		avg_buy_price REAL NOT NULL,
		UNIQUE(portfolio_id, symbol),
		FOREIGN KEY (portfolio_id) REFERENCES portfolios(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		portfolio_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		type TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		limit_price REAL,
		stop_price REAL,
		status TEXT NOT NULL,
		price_at_execution REAL,
		created_at DATETIME NOT NULL,
		executed_at DATETIME,
		FOREIGN KEY (portfolio_id) REFERENCES portfolios(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_orders_symbol_status ON orders(symbol, status);
	CREATE INDEX IF NOT EXISTS idx_orders_portfolio ON orders(portfolio_id);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		portfolio_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		type TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		price_at_execution REAL NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (portfolio_id) REFERENCES portfolios(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_portfolio ON transactions(portfolio_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreatePortfolio creates a portfolio with the given starting balance.
func (s *SQLiteStore) CreatePortfolio(ctx context.Context, userID, name string, balance float64) (*models.Portfolio, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO portfolios (user_id, name, balance, created_at) VALUES (?, ?, ?, ?)`,
		userID, name, models.RoundCents(balance), now)
	if err != nil {
		return nil, errors.Wrap(err, "create portfolio")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "create portfolio")
	}
	return &models.Portfolio{
		ID:        id,
		UserID:    userID,
		Name:      name,
		Balance:   models.RoundCents(balance),
		CreatedAt: now,
	}, nil
}

// GetPortfolio returns a portfolio with its holdings loaded.
func (s *SQLiteStore) GetPortfolio(ctx context.Context, id int64) (*models.Portfolio, error) {
	return loadPortfolio(ctx, s.db, id)
}

// PortfoliosHoldingSymbol returns the IDs of portfolios with a holding
// in symbol.
func (s *SQLiteStore) PortfoliosHoldingSymbol(ctx context.Context, symbol string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT portfolio_id FROM holdings WHERE symbol = ?`, symbol)
	if err != nil {
		return nil, errors.Wrap(err, "portfolios holding symbol")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateOrder persists a new order.
func (s *SQLiteStore) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := order.Validate(); err != nil {
		return errors.Wrap(errors.ErrInvalidOrder, err.Error())
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO orders (id, portfolio_id, symbol, side, type, quantity, limit_price, stop_price, status, price_at_execution, created_at, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.PortfolioID, order.Symbol, order.Side, order.Type, order.Quantity,
		order.LimitPrice, order.StopPrice, order.Status, order.PriceAtExecution,
		order.CreatedAt, order.ExecutedAt)
	return errors.Wrap(err, "create order")
}

// GetOrder returns an order by ID.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, orderSelect+` WHERE id = ?`, id)
	order, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrOrderNotFound
	}
	return order, err
}

// FindPendingOrders returns all pending orders for a symbol, oldest
// first so fills within one tick settle in placement order.
func (s *SQLiteStore) FindPendingOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		orderSelect+` WHERE symbol = ? AND status = ? ORDER BY created_at ASC`,
		symbol, models.OrderStatusPending)
	if err != nil {
		return nil, errors.Wrap(err, "find pending orders")
	}
	defer rows.Close()
	return scanOrders(rows)
}

// FindOrdersByPortfolio returns a portfolio's orders, optionally
// filtered by status. An empty status returns all orders.
func (s *SQLiteStore) FindOrdersByPortfolio(ctx context.Context, portfolioID int64, status models.OrderStatus) ([]models.Order, error) {
	query := orderSelect + ` WHERE portfolio_id = ?`
	args := []interface{}{portfolioID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "find orders by portfolio")
	}
	defer rows.Close()
	return scanOrders(rows)
}

// UpdateOrderStatus applies a conditional status transition.
func (s *SQLiteStore) UpdateOrderStatus(ctx context.Context, orderID string, expected, next models.OrderStatus, update OrderUpdate) error {
	return updateOrderStatus(ctx, s.db, orderID, expected, next, update)
}

// Transactions returns a portfolio's transaction log, newest first.
func (s *SQLiteStore) Transactions(ctx context.Context, portfolioID int64) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, portfolio_id, symbol, side, type, quantity, price_at_execution, created_at
		 FROM transactions WHERE portfolio_id = ? ORDER BY created_at DESC`, portfolioID)
	if err != nil {
		return nil, errors.Wrap(err, "transactions")
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.PortfolioID, &t.Symbol, &t.Side, &t.Type, &t.Quantity, &t.PriceAtExecution, &t.CreatedAt); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// RunInPortfolioTx runs fn with exclusive access to the portfolio. The
// per-portfolio lock is held across the whole check-and-mutate sequence
// so concurrent trades against the same portfolio serialize; trades on
// different portfolios only contend on the SQLite write lock.
func (s *SQLiteStore) RunInPortfolioTx(ctx context.Context, portfolioID int64, fn func(tx Tx) error) error {
	entry := s.locks.acquire(portfolioID)
	defer s.locks.release(portfolioID, entry)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin portfolio tx")
	}

	ptx := &sqliteTx{ctx: ctx, tx: tx, portfolioID: portfolioID}
	if err := fn(ptx); err != nil {
		tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit portfolio tx")
}

// sqliteTx implements Tx against an open SQL transaction.
type sqliteTx struct {
	ctx         context.Context
	tx          *sql.Tx
	portfolioID int64
}

func (t *sqliteTx) Portfolio() (*models.Portfolio, error) {
	return loadPortfolio(t.ctx, t.tx, t.portfolioID)
}

func (t *sqliteTx) UpdateBalance(balance float64) error {
	res, err := t.tx.Exec(`UPDATE portfolios SET balance = ? WHERE id = ?`, balance, t.portfolioID)
	if err != nil {
		return errors.Wrap(err, "update balance")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.ErrPortfolioNotFound
	}
	return nil
}

func (t *sqliteTx) Holding(symbol string) (*models.Holding, error) {
	var h models.Holding
	err := t.tx.QueryRow(
		`SELECT id, portfolio_id, symbol, quantity, avg_buy_price FROM holdings WHERE portfolio_id = ? AND symbol = ?`,
		t.portfolioID, symbol).
		Scan(&h.ID, &h.PortfolioID, &h.Symbol, &h.Quantity, &h.AvgBuyPrice)
	if err == sql.ErrNoRows {
		return nil, errors.ErrHoldingNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get holding")
	}
	return &h, nil
}

func (t *sqliteTx) CreateHolding(h *models.Holding) error {
	res, err := t.tx.Exec(
		`INSERT INTO holdings (portfolio_id, symbol, quantity, avg_buy_price) VALUES (?, ?, ?, ?)`,
		t.portfolioID, h.Symbol, h.Quantity, h.AvgBuyPrice)
	if err != nil {
		return errors.Wrap(err, "create holding")
	}
	h.ID, err = res.LastInsertId()
	h.PortfolioID = t.portfolioID
	return err
}

func (t *sqliteTx) UpdateHolding(id int64, quantity int, avgBuyPrice float64) error {
	_, err := t.tx.Exec(
		`UPDATE holdings SET quantity = ?, avg_buy_price = ? WHERE id = ?`,
		quantity, avgBuyPrice, id)
	return errors.Wrap(err, "update holding")
}

func (t *sqliteTx) DeleteHolding(id int64) error {
	_, err := t.tx.Exec(`DELETE FROM holdings WHERE id = ?`, id)
	return errors.Wrap(err, "delete holding")
}

func (t *sqliteTx) AppendTransaction(txn *models.Transaction) error {
	_, err := t.tx.Exec(
		`INSERT INTO transactions (id, portfolio_id, symbol, side, type, quantity, price_at_execution, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.PortfolioID, txn.Symbol, txn.Side, txn.Type, txn.Quantity, txn.PriceAtExecution, txn.CreatedAt)
	return errors.Wrap(err, "append transaction")
}

func (t *sqliteTx) UpdateOrderStatus(orderID string, expected, next models.OrderStatus, update OrderUpdate) error {
	return updateOrderStatus(t.ctx, t.tx, orderID, expected, next, update)
}

// execer abstracts *sql.DB and *sql.Tx for the shared query helpers.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const orderSelect = `SELECT id, portfolio_id, symbol, side, type, quantity, limit_price, stop_price, status, price_at_execution, created_at, executed_at FROM orders`

// updateOrderStatus is the single conditional write used for every
// order transition. The expected-status guard makes cancel-vs-fill a
// compare-and-swap rather than a read-then-write race.
func updateOrderStatus(ctx context.Context, db execer, orderID string, expected, next models.OrderStatus, update OrderUpdate) error {
	res, err := db.ExecContext(ctx,
		`UPDATE orders
		 SET status = ?,
		     price_at_execution = COALESCE(?, price_at_execution),
		     executed_at = COALESCE(?, executed_at)
		 WHERE id = ? AND status = ?`,
		next, update.PriceAtExecution, update.ExecutedAt, orderID, expected)
	if err != nil {
		return errors.Wrap(err, "update order status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id = ?`, orderID).Scan(&exists)
		if err == sql.ErrNoRows {
			return errors.ErrOrderNotFound
		}
		if err != nil {
			return errors.Wrap(err, "update order status")
		}
		return errors.ErrOrderNotPending
	}
	return nil
}

func loadPortfolio(ctx context.Context, db execer, id int64) (*models.Portfolio, error) {
	p := &models.Portfolio{}
	err := db.QueryRowContext(ctx,
		`SELECT id, user_id, name, balance, created_at FROM portfolios WHERE id = ?`, id).
		Scan(&p.ID, &p.UserID, &p.Name, &p.Balance, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.ErrPortfolioNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get portfolio")
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, portfolio_id, symbol, quantity, avg_buy_price FROM holdings WHERE portfolio_id = ?`, id)
	if err != nil {
		return nil, errors.Wrap(err, "load holdings")
	}
	defer rows.Close()

	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(&h.ID, &h.PortfolioID, &h.Symbol, &h.Quantity, &h.AvgBuyPrice); err != nil {
			return nil, err
		}
		p.Holdings = append(p.Holdings, h)
	}
	return p, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var limitPrice, stopPrice, execPrice sql.NullFloat64
	var executedAt sql.NullTime
	err := row.Scan(&o.ID, &o.PortfolioID, &o.Symbol, &o.Side, &o.Type, &o.Quantity,
		&limitPrice, &stopPrice, &o.Status, &execPrice, &o.CreatedAt, &executedAt)
	if err != nil {
		return nil, err
	}
	if limitPrice.Valid {
		o.LimitPrice = &limitPrice.Float64
	}
	if stopPrice.Valid {
		o.StopPrice = &stopPrice.Float64
	}
	if execPrice.Valid {
		o.PriceAtExecution = &execPrice.Float64
	}
	if executedAt.Valid {
		t := executedAt.Time
		o.ExecutedAt = &t
	}
	return &o, nil
}

func scanOrders(rows *sql.Rows) ([]models.Order, error) {
	var orders []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

var _ Store = (*SQLiteStore)(nil)
