package ledger

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"papertrader/internal/errors"
	"papertrader/internal/models"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func pendingOrder(portfolioID int64, id, symbol string, createdAt time.Time) *models.Order {
	limit := 100.0
	return &models.Order{
		ID:          id,
		PortfolioID: portfolioID,
		Symbol:      symbol,
		Side:        models.OrderSideBuy,
		Type:        models.OrderTypeLimit,
		Quantity:    1,
		LimitPrice:  &limit,
		Status:      models.OrderStatusPending,
		CreatedAt:   createdAt,
	}
}

func TestCreateAndGetPortfolio(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	p, err := store.CreatePortfolio(ctx, "alice", "main", 10000.4567)
	if err != nil {
		t.Fatalf("CreatePortfolio failed: %v", err)
	}
	// Balances are stored cents-rounded.
	if p.Balance != 10000.46 {
		t.Errorf("Balance = %v, want 10000.46", p.Balance)
	}

	got, err := store.GetPortfolio(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPortfolio failed: %v", err)
	}
	if got.UserID != "alice" || got.Name != "main" || got.Balance != 10000.46 {
		t.Errorf("GetPortfolio = %+v", got)
	}
	if len(got.Holdings) != 0 {
		t.Errorf("Expected no holdings, got %d", len(got.Holdings))
	}
}

func TestGetPortfolioNotFound(t *testing.T) {
	store := newStore(t)
	if _, err := store.GetPortfolio(context.Background(), 404); !errors.Is(err, errors.ErrPortfolioNotFound) {
		t.Fatalf("Expected ErrPortfolioNotFound, got %v", err)
	}
}

func TestFindPendingOrdersOldestFirst(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p, _ := store.CreatePortfolio(ctx, "u", "n", 1000)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// Insert out of placement order on purpose.
	for _, i := range []int{2, 0, 1} {
		order := pendingOrder(p.ID, fmt.Sprintf("order-%d", i), "AAPL", base.Add(time.Duration(i)*time.Minute))
		if err := store.CreateOrder(ctx, order); err != nil {
			t.Fatalf("CreateOrder failed: %v", err)
		}
	}
	// A different symbol and a cancelled order must not show up.
	other := pendingOrder(p.ID, "order-other", "TSLA", base)
	if err := store.CreateOrder(ctx, other); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	cancelled := pendingOrder(p.ID, "order-cancelled", "AAPL", base)
	if err := store.CreateOrder(ctx, cancelled); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}
	if err := store.UpdateOrderStatus(ctx, cancelled.ID, models.OrderStatusPending, models.OrderStatusCancelled, OrderUpdate{}); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	orders, err := store.FindPendingOrders(ctx, "AAPL")
	if err != nil {
		t.Fatalf("FindPendingOrders failed: %v", err)
	}
	// order-cancelled shares order-0's timestamp but is excluded.
	want := []string{"order-0", "order-1", "order-2"}
	if len(orders) != len(want) {
		t.Fatalf("Got %d orders, want %d", len(orders), len(want))
	}
	for i, id := range want {
		if orders[i].ID != id {
			t.Errorf("orders[%d].ID = %s, want %s", i, orders[i].ID, id)
		}
	}
}

func TestUpdateOrderStatusIsConditional(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p, _ := store.CreatePortfolio(ctx, "u", "n", 1000)

	order := pendingOrder(p.ID, "order-cas", "AAPL", time.Now().UTC())
	if err := store.CreateOrder(ctx, order); err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	price := 99.5
	now := time.Now().UTC()
	if err := store.UpdateOrderStatus(ctx, order.ID,
		models.OrderStatusPending, models.OrderStatusFilled,
		OrderUpdate{PriceAtExecution: &price, ExecutedAt: &now}); err != nil {
		t.Fatalf("Fill transition failed: %v", err)
	}

	// The losing side of the race observes ErrOrderNotPending.
	err := store.UpdateOrderStatus(ctx, order.ID,
		models.OrderStatusPending, models.OrderStatusCancelled, OrderUpdate{})
	if !errors.Is(err, errors.ErrOrderNotPending) {
		t.Fatalf("Expected ErrOrderNotPending, got %v", err)
	}

	got, err := store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if got.Status != models.OrderStatusFilled {
		t.Errorf("Status = %v, want filled", got.Status)
	}
	if got.PriceAtExecution == nil || *got.PriceAtExecution != 99.5 {
		t.Errorf("PriceAtExecution = %v, want 99.5", got.PriceAtExecution)
	}
	if got.ExecutedAt == nil {
		t.Error("ExecutedAt not stamped")
	}
}

func TestUpdateOrderStatusUnknownOrder(t *testing.T) {
	store := newStore(t)
	err := store.UpdateOrderStatus(context.Background(), "missing",
		models.OrderStatusPending, models.OrderStatusCancelled, OrderUpdate{})
	if !errors.Is(err, errors.ErrOrderNotFound) {
		t.Fatalf("Expected ErrOrderNotFound, got %v", err)
	}
}

func TestFindOrdersByPortfolioStatusFilter(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p, _ := store.CreatePortfolio(ctx, "u", "n", 1000)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	a := pendingOrder(p.ID, "order-a", "AAPL", base)
	b := pendingOrder(p.ID, "order-b", "AAPL", base.Add(time.Minute))
	for _, o := range []*models.Order{a, b} {
		if err := store.CreateOrder(ctx, o); err != nil {
			t.Fatalf("CreateOrder failed: %v", err)
		}
	}
	if err := store.UpdateOrderStatus(ctx, a.ID, models.OrderStatusPending, models.OrderStatusCancelled, OrderUpdate{}); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	all, err := store.FindOrdersByPortfolio(ctx, p.ID, "")
	if err != nil {
		t.Fatalf("FindOrdersByPortfolio failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("All orders = %d, want 2", len(all))
	}

	pending, err := store.FindOrdersByPortfolio(ctx, p.ID, models.OrderStatusPending)
	if err != nil {
		t.Fatalf("FindOrdersByPortfolio failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != b.ID {
		t.Errorf("Pending = %+v, want [order-b]", pending)
	}
}

func TestRunInPortfolioTxRollsBackOnError(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p, _ := store.CreatePortfolio(ctx, "u", "n", 1000)

	wantErr := fmt.Errorf("boom")
	err := store.RunInPortfolioTx(ctx, p.ID, func(tx Tx) error {
		if err := tx.UpdateBalance(1); err != nil {
			return err
		}
		if err := tx.CreateHolding(&models.Holding{Symbol: "AAPL", Quantity: 5, AvgBuyPrice: 10}); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("Expected fn error back, got %v", err)
	}

	got, _ := store.GetPortfolio(ctx, p.ID)
	if got.Balance != 1000 {
		t.Errorf("Balance = %v, want 1000 after rollback", got.Balance)
	}
	if len(got.Holdings) != 0 {
		t.Errorf("Holdings survived rollback: %+v", got.Holdings)
	}
}

func TestRunInPortfolioTxHoldingLifecycle(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	p, _ := store.CreatePortfolio(ctx, "u", "n", 1000)

	err := store.RunInPortfolioTx(ctx, p.ID, func(tx Tx) error {
		if _, err := tx.Holding("AAPL"); !errors.Is(err, errors.ErrHoldingNotFound) {
			return fmt.Errorf("expected ErrHoldingNotFound, got %v", err)
		}
		h := &models.Holding{Symbol: "AAPL", Quantity: 5, AvgBuyPrice: 10}
		if err := tx.CreateHolding(h); err != nil {
			return err
		}
		if err := tx.UpdateHolding(h.ID, 8, 12.5); err != nil {
			return err
		}
		got, err := tx.Holding("AAPL")
		if err != nil {
			return err
		}
		if got.Quantity != 8 || got.AvgBuyPrice != 12.5 {
			return fmt.Errorf("holding = %+v", got)
		}
		return tx.DeleteHolding(h.ID)
	})
	if err != nil {
		t.Fatalf("RunInPortfolioTx failed: %v", err)
	}

	got, _ := store.GetPortfolio(ctx, p.ID)
	if len(got.Holdings) != 0 {
		t.Errorf("Expected deleted holding, got %+v", got.Holdings)
	}
}

func TestPortfoliosHoldingSymbol(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	p1, _ := store.CreatePortfolio(ctx, "u1", "a", 1000)
	p2, _ := store.CreatePortfolio(ctx, "u2", "b", 1000)
	p3, _ := store.CreatePortfolio(ctx, "u3", "c", 1000)

	add := func(portfolioID int64, symbol string) {
		t.Helper()
		err := store.RunInPortfolioTx(ctx, portfolioID, func(tx Tx) error {
			return tx.CreateHolding(&models.Holding{Symbol: symbol, Quantity: 1, AvgBuyPrice: 1})
		})
		if err != nil {
			t.Fatalf("CreateHolding failed: %v", err)
		}
	}
	add(p1.ID, "AAPL")
	add(p2.ID, "AAPL")
	add(p3.ID, "TSLA")

	ids, err := store.PortfoliosHoldingSymbol(ctx, "AAPL")
	if err != nil {
		t.Fatalf("PortfoliosHoldingSymbol failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("Got %d portfolios, want 2", len(ids))
	}
	seen := map[int64]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[p1.ID] || !seen[p2.ID] || seen[p3.ID] {
		t.Errorf("IDs = %v, want [%d %d]", ids, p1.ID, p2.ID)
	}
}
