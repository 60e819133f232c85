package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"papertrader/internal/errors"
	"papertrader/internal/models"
	"papertrader/internal/resilience"
	"papertrader/pkg/utils"
)

// PolygonConfig holds configuration for the Polygon price source.
type PolygonConfig struct {
	BaseURL              string
	APIKey               string
	MaxRequestsPerMinute int
	RequestTimeout       time.Duration
}

// PolygonSource fetches last-traded prices from the Polygon REST API.
// Requests are capped to the upstream per-minute quota and guarded by a
// circuit breaker; exhausted quota and an open circuit both surface as
// ErrPriceUnavailable so the engine treats them as transient misses.
type PolygonSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *windowLimiter
	breaker *resilience.CircuitBreaker
	retry   utils.RetryConfig
}

// NewPolygonSource creates a new Polygon-backed price source.
func NewPolygonSource(cfg PolygonConfig) *PolygonSource {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.polygon.io"
	}
	maxRPM := cfg.MaxRequestsPerMinute
	if maxRPM <= 0 {
		maxRPM = 40
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &PolygonSource{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
		limiter: newWindowLimiter(maxRPM),
		breaker: resilience.NewCircuitBreaker("polygon", resilience.DefaultCircuitBreakerConfig()),
		retry: utils.RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  200 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			BackoffFactor: 2.0,
			Halt:          func(err error) bool { return errors.Is(err, errors.ErrPriceUnavailable) },
		},
	}
}

// LastTrade implements Source.
func (p *PolygonSource) LastTrade(ctx context.Context, symbol string) (*models.Quote, error) {
	if !p.limiter.allow() {
		return nil, errors.Wrap(errors.ErrPriceUnavailable, "minute quota exhausted")
	}

	// A definitive "no price" answer (plan restriction, unknown ticker,
	// empty payload) is neither retried nor counted against the breaker;
	// only transport and server failures are.
	var quote *models.Quote
	var unavailable error
	err := p.breaker.Execute(func() error {
		q, err := utils.RetryWithResult(ctx, p.retry, func() (*models.Quote, error) {
			return p.fetchLastTrade(ctx, symbol)
		})
		if err != nil {
			if errors.Is(err, errors.ErrPriceUnavailable) {
				unavailable = err
				return nil
			}
			return err
		}
		quote = q
		return nil
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, errors.Wrap(errors.ErrPriceUnavailable, "price provider circuit open")
		}
		return nil, err
	}
	if unavailable != nil {
		return nil, unavailable
	}
	return quote, nil
}

// lastTradeResponse mirrors the subset of the Polygon last-trade payload
// the engine needs: price and SIP timestamp (nanoseconds).
type lastTradeResponse struct {
	Results *struct {
		Price     float64 `json:"p"`
		Timestamp int64   `json:"t"`
	} `json:"results"`
}

func (p *PolygonSource) fetchLastTrade(ctx context.Context, symbol string) (*models.Quote, error) {
	endpoint := fmt.Sprintf("%s/v2/last/trade/%s?apiKey=%s",
		p.baseURL, url.PathEscape(symbol), url.QueryEscape(p.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch last trade %s", symbol)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusNotFound, http.StatusTooManyRequests:
		// Plan restrictions and unknown tickers are not worth retrying.
		return nil, errors.Wrapf(errors.ErrPriceUnavailable, "upstream status %d for %s", resp.StatusCode, symbol)
	default:
		return nil, fmt.Errorf("fetch last trade %s: unexpected status %d", symbol, resp.StatusCode)
	}

	var payload lastTradeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrapf(err, "decode last trade %s", symbol)
	}
	if payload.Results == nil || payload.Results.Price <= 0 {
		return nil, errors.Wrapf(errors.ErrPriceUnavailable, "no trade data for %s", symbol)
	}

	return &models.Quote{
		Symbol: symbol,
		Price:  payload.Results.Price,
		AsOf:   time.Unix(0, payload.Results.Timestamp),
	}, nil
}

var _ Source = (*PolygonSource)(nil)
