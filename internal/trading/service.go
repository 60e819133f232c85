package trading

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"papertrader/internal/errors"
	"papertrader/internal/ledger"
	"papertrader/internal/models"
	"papertrader/internal/notify"
	"papertrader/internal/pricefeed"
)

// Service handles order placement and cancellation. Market orders
// execute synchronously at the live price and are recorded already
// filled; limit and stop orders are created pending for the engine to
// pick up.
type Service struct {
	ledger   ledger.Store
	prices   pricefeed.Source
	exec     *Executor
	notifier notify.Notifier
	logger   zerolog.Logger
}

// NewService creates a new order service.
func NewService(store ledger.Store, prices pricefeed.Source, exec *Executor, notifier notify.Notifier, logger zerolog.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		ledger:   store,
		prices:   prices,
		exec:     exec,
		notifier: notifier,
		logger:   logger,
	}
}

// PlaceOrderInput describes an order to place.
type PlaceOrderInput struct {
	PortfolioID int64
	Symbol      string
	Side        models.OrderSide
	Type        models.OrderType
	Quantity    int
	LimitPrice  *float64
	StopPrice   *float64
}

// PlaceOrder validates and places an order. For market orders the trade
// executes first and the order is recorded filled only on success, so a
// failed trade leaves no order behind.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*models.Order, error) {
	order := &models.Order{
		ID:          ulid.Make().String(),
		PortfolioID: in.PortfolioID,
		Symbol:      strings.ToUpper(strings.TrimSpace(in.Symbol)),
		Side:        in.Side,
		Type:        in.Type,
		Quantity:    in.Quantity,
		LimitPrice:  in.LimitPrice,
		StopPrice:   in.StopPrice,
		Status:      models.OrderStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := order.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidOrder, err.Error())
	}

	if order.Type == models.OrderTypeMarket {
		return s.placeMarketOrder(ctx, order)
	}

	if err := s.ledger.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("event", "order").
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("type", string(order.Type)).
		Msg("Pending order placed")

	return order, nil
}

func (s *Service) placeMarketOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	quote, err := s.prices.LastTrade(ctx, order.Symbol)
	if err != nil {
		return nil, errors.NewOrderError(order.ID, order.Symbol, "place", err)
	}

	result, err := s.exec.Execute(ctx, TradeRequest{
		PortfolioID: order.PortfolioID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Type:        order.Type,
		Quantity:    order.Quantity,
		Price:       quote.Price,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	order.Status = models.OrderStatusFilled
	order.PriceAtExecution = &quote.Price
	order.ExecutedAt = &now
	if err := s.ledger.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	if err := s.notifier.Publish(ctx, notify.PortfolioTopic(order.PortfolioID), notify.FillEvent{
		OrderID:     order.ID,
		PortfolioID: order.PortfolioID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Type:        order.Type,
		Quantity:    order.Quantity,
		Price:       quote.Price,
		Timestamp:   now,
	}); err != nil {
		s.logger.Warn().Err(err).Str("order_id", order.ID).Msg("Failed to publish fill event")
	}

	s.logger.Info().
		Str("event", "order").
		Str("order_id", order.ID).
		Str("symbol", order.Symbol).
		Float64("price", quote.Price).
		Float64("balance", result.CashBalance).
		Msg("Market order filled")

	return order, nil
}

// CancelOrder cancels a pending order. The transition is a conditional
// update guarded by the pending status: if the engine has concurrently
// filled the order, ErrOrderNotPending is returned and the fill stands.
func (s *Service) CancelOrder(ctx context.Context, orderID string) error {
	err := s.ledger.UpdateOrderStatus(ctx, orderID,
		models.OrderStatusPending, models.OrderStatusCancelled, ledger.OrderUpdate{})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("event", "order").
		Str("order_id", orderID).
		Msg("Order cancelled")
	return nil
}

// PendingOrders returns a portfolio's pending orders.
func (s *Service) PendingOrders(ctx context.Context, portfolioID int64) ([]models.Order, error) {
	return s.ledger.FindOrdersByPortfolio(ctx, portfolioID, models.OrderStatusPending)
}
