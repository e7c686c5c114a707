// Package refresh orchestrates market-data refreshes: it pulls fresh quotes,
// updates every position in a portfolio, re-runs the Monte Carlo simulations
// and persists the results.
package refresh

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/optionfolio/optionfolio/internal/marketdata"
	"github.com/optionfolio/optionfolio/internal/metrics"
	"github.com/optionfolio/optionfolio/internal/models"
	"github.com/optionfolio/optionfolio/internal/montecarlo"
	"github.com/optionfolio/optionfolio/internal/storage"
	"github.com/optionfolio/optionfolio/internal/util"
)

const priceTick = 0.01

// Config tunes refresh behavior.
type Config struct {
	// SampleCount overrides the simulation sample count; 0 means default.
	SampleCount int
	// MaxRetries is how many additional attempts a failed quote gets.
	MaxRetries int
	// InitialBackoff is the delay before the first retry; it grows 1.5x per
	// attempt and is capped at MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Parallelism bounds concurrent re-simulations; 0 means unbounded.
	Parallelism int
}

// DefaultConfig mirrors the quote-retry defaults used at startup.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
}

// Refresher updates underlying prices and P&L distributions for portfolios.
type Refresher struct {
	store  storage.Interface
	quoter marketdata.Quoter
	logger *logrus.Logger
	config Config
}

// NewRefresher wires a refresher. A nil config selects DefaultConfig.
func NewRefresher(store storage.Interface, quoter marketdata.Quoter,
	logger *logrus.Logger, config ...Config) *Refresher {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	return &Refresher{store: store, quoter: quoter, logger: logger, config: cfg}
}

// RefreshPortfolio fetches one quote per distinct ticker (plus historical
// volatility for tickers held as shares), applies them to every position,
// re-simulates each position on its own random stream, and persists the
// updated positions. Market-data fetches complete before any simulation
// starts; simulations then run in parallel since they share no state.
//
// A ticker whose quote ultimately fails, or comes back non-positive, keeps
// its previous price. That position is still re-simulated so its samples
// reflect current time-to-expiration.
func (r *Refresher) RefreshPortfolio(ctx context.Context, portfolio string) error {
	start := time.Now()
	positions, err := r.store.GetPositions(portfolio)
	if err != nil {
		return fmt.Errorf("loading positions: %w", err)
	}
	if len(positions) == 0 {
		return nil
	}

	prices := make(map[string]float64)
	vols := make(map[string]float64)
	for _, pos := range positions {
		if _, ok := prices[pos.Ticker]; ok {
			continue
		}
		price, err := r.fetchPriceWithRetry(ctx, pos.Ticker)
		if err != nil {
			r.logger.WithError(err).Warnf("quote failed for %s, keeping previous price", pos.Ticker)
		} else {
			prices[pos.Ticker] = price
		}
		if pos.Variant == models.Shares {
			vol, err := r.quoter.GetHistoricalVolatility(ctx, pos.Ticker)
			if err != nil {
				r.logger.WithError(err).Warnf("historical volatility failed for %s", pos.Ticker)
			} else if vol > 0 {
				vols[pos.Ticker] = vol
			}
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if r.config.Parallelism > 0 {
		g.SetLimit(r.config.Parallelism)
	}
	for _, pos := range positions {
		pos := pos
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if price, ok := prices[pos.Ticker]; ok && price > 0 {
				pos.UnderlyingPrice = util.RoundToTick(price, priceTick)
			}
			if vol, ok := vols[pos.Ticker]; ok && pos.Variant == models.Shares {
				pos.ImpliedVol = vol
			}
			if err := r.Resimulate(pos); err != nil {
				return fmt.Errorf("simulating position %s: %w", pos.ID, err)
			}
			return r.store.StorePosition(portfolio, pos)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	r.logger.Infof("refreshed %d positions (%d tickers) in portfolio %s",
		len(positions), len(prices), portfolio)
	return nil
}

// Resimulate regenerates a position's P&L samples using the configured
// sample count. Each call draws from an independent random stream.
func (r *Refresher) Resimulate(pos *models.Position) error {
	opts := []montecarlo.Option{}
	if r.config.SampleCount > 0 {
		opts = append(opts, montecarlo.WithSampleCount(r.config.SampleCount))
	}
	return montecarlo.Refresh(pos, opts...)
}

func (r *Refresher) fetchPriceWithRetry(ctx context.Context, ticker string) (float64, error) {
	backoff := r.config.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		price, err := r.quoter.GetPrice(ctx, ticker)
		if err == nil {
			return price, nil
		}
		lastErr = err

		if !isTransientError(err) || attempt == r.config.MaxRetries {
			break
		}
		r.logger.Warnf("quote attempt %d for %s failed (%v), retrying in %v",
			attempt+1, ticker, err, backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return 0, fmt.Errorf("quote canceled during backoff: %w", ctx.Err())
		}
		backoff = time.Duration(float64(backoff) * 1.5)
		if backoff > r.config.MaxBackoff {
			backoff = r.config.MaxBackoff
		}
	}
	return 0, fmt.Errorf("quote failed after %d attempts: %w", r.config.MaxRetries+1, lastErr)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429", // HTTP 429 Too Many Requests
		"502", // HTTP 502 Bad Gateway
		"503", // HTTP 503 Service Unavailable
		"504", // HTTP 504 Gateway Timeout
		"network",
		"dns",
		"tcp",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
