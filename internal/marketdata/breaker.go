package marketdata

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerQuoter wraps a Quoter with circuit breaker functionality so
// a flapping market-data provider can't stall every portfolio refresh.
type CircuitBreakerQuoter struct {
	quoter  Quoter
	breaker *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior.
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods.
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	quoter Quoter,
	fn func(Quoter) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(quoter) })
	if err != nil {
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// NewCircuitBreakerQuoter creates a CircuitBreakerQuoter with sensible defaults.
func NewCircuitBreakerQuoter(quoter Quoter) *CircuitBreakerQuoter {
	return NewCircuitBreakerQuoterWithSettings(quoter, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerQuoterWithSettings creates a CircuitBreakerQuoter with custom settings.
func NewCircuitBreakerQuoterWithSettings(quoter Quoter, settings CircuitBreakerSettings) *CircuitBreakerQuoter {
	gbSettings := gobreaker.Settings{
		Name:        "MarketDataCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerQuoter{
		quoter:  quoter,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// Ensure CircuitBreakerQuoter implements Quoter at compile time.
var _ Quoter = (*CircuitBreakerQuoter)(nil)

// GetPrice wraps the underlying quoter call with the circuit breaker.
func (c *CircuitBreakerQuoter) GetPrice(ctx context.Context, ticker string) (float64, error) {
	return execCircuitBreaker(c.breaker, c.quoter, func(q Quoter) (float64, error) {
		return q.GetPrice(ctx, ticker)
	})
}

// GetHistoricalVolatility wraps the underlying quoter call with the circuit breaker.
func (c *CircuitBreakerQuoter) GetHistoricalVolatility(ctx context.Context, ticker string) (float64, error) {
	return execCircuitBreaker(c.breaker, c.quoter, func(q Quoter) (float64, error) {
		return q.GetHistoricalVolatility(ctx, ticker)
	})
}
