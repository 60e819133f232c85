package trading

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"papertrader/internal/errors"
	"papertrader/internal/ledger"
	"papertrader/internal/models"
)

func newTestStore(t *testing.T) *ledger.SQLiteStore {
	t.Helper()
	store, err := ledger.NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestExecutor(t *testing.T) (*Executor, *ledger.SQLiteStore) {
	t.Helper()
	store := newTestStore(t)
	return NewExecutor(store, zerolog.Nop()), store
}

func createTestPortfolio(t *testing.T, store ledger.Store, balance float64) *models.Portfolio {
	t.Helper()
	p, err := store.CreatePortfolio(context.Background(), "tester", "test", balance)
	if err != nil {
		t.Fatalf("Failed to create portfolio: %v", err)
	}
	return p
}

func TestExecuteBuyCreatesHolding(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()
	p := createTestPortfolio(t, store, 500)

	result, err := exec.Execute(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: models.OrderSideBuy,
		Type: models.OrderTypeMarket, Quantity: 10, Price: 20,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.CashBalance != 300 {
		t.Errorf("CashBalance = %v, want 300", result.CashBalance)
	}

	got, err := store.GetPortfolio(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPortfolio failed: %v", err)
	}
	if got.Balance != 300 {
		t.Errorf("Balance = %v, want 300", got.Balance)
	}
	h := got.Holding("AAPL")
	if h == nil {
		t.Fatal("Expected AAPL holding")
	}
	if h.Quantity != 10 || h.AvgBuyPrice != 20 {
		t.Errorf("Holding = %d @ %v, want 10 @ 20", h.Quantity, h.AvgBuyPrice)
	}

	txns, err := store.Transactions(ctx, p.ID)
	if err != nil {
		t.Fatalf("Transactions failed: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("Expected 1 transaction, got %d", len(txns))
	}
	if txns[0].Side != models.OrderSideBuy || txns[0].PriceAtExecution != 20 {
		t.Errorf("Transaction = %+v", txns[0])
	}
}

func TestExecuteBuyAveragesCostBasis(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()
	p := createTestPortfolio(t, store, 500)

	buys := []float64{20, 30}
	for _, price := range buys {
		if _, err := exec.Execute(ctx, TradeRequest{
			PortfolioID: p.ID, Symbol: "AAPL", Side: models.OrderSideBuy,
			Type: models.OrderTypeMarket, Quantity: 10, Price: price,
		}); err != nil {
			t.Fatalf("Execute @ %v failed: %v", price, err)
		}
	}

	got, _ := store.GetPortfolio(ctx, p.ID)
	h := got.Holding("AAPL")
	if h == nil {
		t.Fatal("Expected AAPL holding")
	}
	if h.Quantity != 20 {
		t.Errorf("Quantity = %d, want 20", h.Quantity)
	}
	if h.AvgBuyPrice != 25 {
		t.Errorf("AvgBuyPrice = %v, want 25", h.AvgBuyPrice)
	}
	if got.Balance != 0 {
		t.Errorf("Balance = %v, want 0", got.Balance)
	}
}

func TestExecuteSellKeepsAvgBuyPrice(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()
	p := createTestPortfolio(t, store, 500)

	if _, err := exec.Execute(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "TSLA", Side: models.OrderSideBuy,
		Type: models.OrderTypeMarket, Quantity: 10, Price: 20,
	}); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	result, err := exec.Execute(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "TSLA", Side: models.OrderSideSell,
		Type: models.OrderTypeMarket, Quantity: 4, Price: 50,
	})
	if err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	// 500 - 200 + 200
	if result.CashBalance != 500 {
		t.Errorf("CashBalance = %v, want 500", result.CashBalance)
	}

	got, _ := store.GetPortfolio(ctx, p.ID)
	h := got.Holding("TSLA")
	if h == nil {
		t.Fatal("Expected TSLA holding")
	}
	if h.Quantity != 6 {
		t.Errorf("Quantity = %d, want 6", h.Quantity)
	}
	if h.AvgBuyPrice != 20 {
		t.Errorf("AvgBuyPrice = %v, want 20 (sells must not touch cost basis)", h.AvgBuyPrice)
	}
}

func TestExecuteSellDeletesEmptiedHolding(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()
	p := createTestPortfolio(t, store, 500)

	if _, err := exec.Execute(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "MSFT", Side: models.OrderSideBuy,
		Type: models.OrderTypeMarket, Quantity: 10, Price: 20,
	}); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if _, err := exec.Execute(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "MSFT", Side: models.OrderSideSell,
		Type: models.OrderTypeMarket, Quantity: 10, Price: 25,
	}); err != nil {
		t.Fatalf("Sell failed: %v", err)
	}

	got, _ := store.GetPortfolio(ctx, p.ID)
	if h := got.Holding("MSFT"); h != nil {
		t.Errorf("Expected emptied holding to be deleted, got %+v", h)
	}
	if got.Balance != 550 {
		t.Errorf("Balance = %v, want 550", got.Balance)
	}
}

func TestExecuteInsufficientFunds(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()
	p := createTestPortfolio(t, store, 500)

	_, err := exec.Execute(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: models.OrderSideBuy,
		Type: models.OrderTypeMarket, Quantity: 100, Price: 20,
	})
	if !errors.Is(err, errors.ErrInsufficientFunds) {
		t.Fatalf("Expected ErrInsufficientFunds, got %v", err)
	}

	// No partial writes: balance untouched, no transaction recorded.
	got, _ := store.GetPortfolio(ctx, p.ID)
	if got.Balance != 500 {
		t.Errorf("Balance = %v, want 500", got.Balance)
	}
	txns, _ := store.Transactions(ctx, p.ID)
	if len(txns) != 0 {
		t.Errorf("Expected no transactions, got %d", len(txns))
	}
}

func TestExecuteInsufficientShares(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()
	p := createTestPortfolio(t, store, 500)

	_, err := exec.Execute(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: models.OrderSideSell,
		Type: models.OrderTypeMarket, Quantity: 1, Price: 20,
	})
	if !errors.Is(err, errors.ErrInsufficientShares) {
		t.Fatalf("Expected ErrInsufficientShares for missing holding, got %v", err)
	}

	if _, err := exec.Execute(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: models.OrderSideBuy,
		Type: models.OrderTypeMarket, Quantity: 5, Price: 20,
	}); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	_, err = exec.Execute(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: models.OrderSideSell,
		Type: models.OrderTypeMarket, Quantity: 6, Price: 20,
	})
	if !errors.Is(err, errors.ErrInsufficientShares) {
		t.Fatalf("Expected ErrInsufficientShares for oversell, got %v", err)
	}
}

func TestExecutePortfolioNotFound(t *testing.T) {
	exec, _ := newTestExecutor(t)

	_, err := exec.Execute(context.Background(), TradeRequest{
		PortfolioID: 9999, Symbol: "AAPL", Side: models.OrderSideBuy,
		Type: models.OrderTypeMarket, Quantity: 1, Price: 20,
	})
	if !errors.Is(err, errors.ErrPortfolioNotFound) {
		t.Fatalf("Expected ErrPortfolioNotFound, got %v", err)
	}
}

func TestExecuteRejectsInvalidRequests(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()
	p := createTestPortfolio(t, store, 500)

	for _, req := range []TradeRequest{
		{PortfolioID: p.ID, Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 0, Price: 20},
		{PortfolioID: p.ID, Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: -1, Price: 20},
		{PortfolioID: p.ID, Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 1, Price: 0},
	} {
		if _, err := exec.Execute(ctx, req); !errors.Is(err, errors.ErrInvalidOrder) {
			t.Errorf("Execute(%+v): expected ErrInvalidOrder, got %v", req, err)
		}
	}
}

func TestExecuteClaimsPendingOrder(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()
	p := createTestPortfolio(t, store, 500)

	limit := 20.0
	order := &models.Order{
		ID: "order-claim", PortfolioID: p.ID, Symbol: "AAPL",
		Side: models.OrderSideBuy, Type: models.OrderTypeLimit,
		Quantity: 10, LimitPrice: &limit, Status: models.OrderStatusPending,
	}
	if err := store.CreateOrder(ctx, order); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	if _, err := exec.Execute(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: models.OrderSideBuy,
		Type: models.OrderTypeLimit, Quantity: 10, Price: 19.5, OrderID: order.ID,
	}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	got, err := store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if got.Status != models.OrderStatusFilled {
		t.Errorf("Status = %v, want filled", got.Status)
	}
	if got.PriceAtExecution == nil || *got.PriceAtExecution != 19.5 {
		t.Errorf("PriceAtExecution = %v, want 19.5", got.PriceAtExecution)
	}
	if got.ExecutedAt == nil {
		t.Error("ExecutedAt not stamped")
	}
}

func TestExecuteAbortsWhenOrderAlreadyCancelled(t *testing.T) {
	exec, store := newTestExecutor(t)
	ctx := context.Background()
	p := createTestPortfolio(t, store, 500)

	limit := 20.0
	order := &models.Order{
		ID: "order-cancelled", PortfolioID: p.ID, Symbol: "AAPL",
		Side: models.OrderSideBuy, Type: models.OrderTypeLimit,
		Quantity: 10, LimitPrice: &limit, Status: models.OrderStatusPending,
	}
	if err := store.CreateOrder(ctx, order); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if err := store.UpdateOrderStatus(ctx, order.ID,
		models.OrderStatusPending, models.OrderStatusCancelled, ledger.OrderUpdate{}); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	_, err := exec.Execute(ctx, TradeRequest{
		PortfolioID: p.ID, Symbol: "AAPL", Side: models.OrderSideBuy,
		Type: models.OrderTypeLimit, Quantity: 10, Price: 19.5, OrderID: order.ID,
	})
	if !errors.Is(err, errors.ErrOrderNotPending) {
		t.Fatalf("Expected ErrOrderNotPending, got %v", err)
	}

	// The aborted fill must leave no trace of the trade.
	got, _ := store.GetPortfolio(ctx, p.ID)
	if got.Balance != 500 {
		t.Errorf("Balance = %v, want 500", got.Balance)
	}
	if h := got.Holding("AAPL"); h != nil {
		t.Errorf("Expected no holding, got %+v", h)
	}
	txns, _ := store.Transactions(ctx, p.ID)
	if len(txns) != 0 {
		t.Errorf("Expected no transactions, got %d", len(txns))
	}
}
