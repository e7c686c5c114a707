// Package marketdata provides quote and volatility lookups for tickers.
// It includes a Finnhub REST client and a circuit-breaker wrapper for it.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/optionfolio/optionfolio/internal/metrics"
)

const (
	defaultBaseURL = "https://finnhub.io/api/v1"
	defaultTimeout = 10 * time.Second

	// tradingDaysPerYear annualizes daily return volatility.
	tradingDaysPerYear = 252.0

	// defaultLookbackDays is the candle window for realized volatility.
	defaultLookbackDays = 90
)

// APIError represents an API error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// Quoter is the market-data surface the rest of the system consumes.
type Quoter interface {
	// GetPrice returns the latest spot price for a ticker.
	GetPrice(ctx context.Context, ticker string) (float64, error)
	// GetHistoricalVolatility returns annualized realized volatility as a
	// decimal (0.20 = 20%), derived from daily closes.
	GetHistoricalVolatility(ctx context.Context, ticker string) (float64, error)
}

// Client is a Finnhub REST API client.
type Client struct {
	client       *http.Client
	apiKey       string
	baseURL      string
	lookbackDays int
}

// Ensure Client implements Quoter at compile time.
var _ Quoter = (*Client)(nil)

// NewClient creates a Finnhub client. An empty baseURL selects the public
// endpoint; a zero timeout selects the default.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		client:       &http.Client{Timeout: timeout},
		apiKey:       apiKey,
		baseURL:      baseURL,
		lookbackDays: defaultLookbackDays,
	}
}

type quoteResponse struct {
	Current       float64 `json:"c"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
}

type candleResponse struct {
	Closes []float64 `json:"c"`
	Status string    `json:"s"`
}

// GetPrice returns the latest trade price for the ticker.
func (c *Client) GetPrice(ctx context.Context, ticker string) (float64, error) {
	params := url.Values{"symbol": {ticker}}
	var quote quoteResponse
	if err := c.getJSON(ctx, "/quote", params, &quote); err != nil {
		metrics.QuoteRequestsTotal.WithLabelValues("error").Inc()
		return 0, err
	}
	metrics.QuoteRequestsTotal.WithLabelValues("ok").Inc()
	return quote.Current, nil
}

// GetHistoricalVolatility computes annualized realized volatility from the
// ticker's daily closes over the lookback window: sample standard deviation
// of log returns scaled by sqrt(252).
func (c *Client) GetHistoricalVolatility(ctx context.Context, ticker string) (float64, error) {
	now := time.Now().UTC()
	params := url.Values{
		"symbol":     {ticker},
		"resolution": {"D"},
		"from":       {fmt.Sprintf("%d", now.AddDate(0, 0, -c.lookbackDays).Unix())},
		"to":         {fmt.Sprintf("%d", now.Unix())},
	}

	var candles candleResponse
	if err := c.getJSON(ctx, "/stock/candle", params, &candles); err != nil {
		return 0, err
	}
	if candles.Status != "ok" || len(candles.Closes) < 2 {
		return 0, fmt.Errorf("insufficient candle data for %s", ticker)
	}
	return RealizedVolatility(candles.Closes), nil
}

// RealizedVolatility annualizes the sample standard deviation of daily log
// returns computed from a close-price series. Non-positive closes are
// skipped since their log return is undefined.
func RealizedVolatility(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("X-Finnhub-Token", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
