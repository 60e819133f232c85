package trading

import (
	"context"

	"github.com/rs/zerolog"

	"papertrader/internal/errors"
	"papertrader/internal/ledger"
	"papertrader/internal/models"
	"papertrader/internal/notify"
	"papertrader/internal/pricefeed"
)

// Valuer computes a portfolio's live valuation and publishes it on the
// portfolio topic. Holdings without a live price are valued at their
// cost basis rather than dropped.
type Valuer struct {
	ledger   ledger.Store
	prices   pricefeed.Source
	notifier notify.Notifier
	logger   zerolog.Logger
}

// NewValuer creates a new Valuer.
func NewValuer(store ledger.Store, prices pricefeed.Source, notifier notify.Notifier, logger zerolog.Logger) *Valuer {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Valuer{ledger: store, prices: prices, notifier: notifier, logger: logger}
}

// Value computes the live valuation of one portfolio.
func (v *Valuer) Value(ctx context.Context, portfolioID int64) (*notify.PortfolioUpdate, error) {
	portfolio, err := v.ledger.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	var holdingsValue, invested float64
	for _, h := range portfolio.Holdings {
		price := h.AvgBuyPrice
		if quote, err := v.prices.LastTrade(ctx, h.Symbol); err == nil {
			price = quote.Price
		} else if !errors.Is(err, errors.ErrPriceUnavailable) {
			return nil, err
		}
		holdingsValue += float64(h.Quantity) * price
		invested += float64(h.Quantity) * h.AvgBuyPrice
	}

	gainLoss := holdingsValue - invested
	gainLossPercent := 0.0
	if invested > 0 {
		gainLossPercent = (gainLoss / invested) * 100
	}

	return &notify.PortfolioUpdate{
		PortfolioID:     portfolioID,
		TotalValue:      models.RoundCents(holdingsValue + portfolio.Balance),
		HoldingsValue:   models.RoundCents(holdingsValue),
		CashBalance:     portfolio.Balance,
		GainLoss:        models.RoundCents(gainLoss),
		GainLossPercent: gainLossPercent,
	}, nil
}

// PublishValue computes and publishes the valuation for one portfolio.
// Errors are logged, not returned: a missed valuation update must never
// interfere with the tick that requested it.
func (v *Valuer) PublishValue(ctx context.Context, portfolioID int64) {
	update, err := v.Value(ctx, portfolioID)
	if err != nil {
		v.logger.Warn().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to value portfolio")
		return
	}
	if err := v.notifier.Publish(ctx, notify.PortfolioTopic(portfolioID), update); err != nil {
		v.logger.Warn().Err(err).Int64("portfolio_id", portfolioID).Msg("Failed to publish portfolio update")
	}
}
