package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQuoter struct {
	price    float64
	vol      float64
	err      error
	calls    int
	volCalls int
}

func (s *stubQuoter) GetPrice(_ context.Context, _ string) (float64, error) {
	s.calls++
	return s.price, s.err
}

func (s *stubQuoter) GetHistoricalVolatility(_ context.Context, _ string) (float64, error) {
	s.volCalls++
	return s.vol, s.err
}

func TestCircuitBreakerQuoter_PassThrough(t *testing.T) {
	stub := &stubQuoter{price: 123.45, vol: 0.33}
	cb := NewCircuitBreakerQuoter(stub)

	price, err := cb.GetPrice(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 123.45, price)

	vol, err := cb.GetHistoricalVolatility(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 0.33, vol)
}

func TestCircuitBreakerQuoter_OpensAfterFailures(t *testing.T) {
	stub := &stubQuoter{err: errors.New("provider down")}
	cb := NewCircuitBreakerQuoterWithSettings(stub, CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.6,
	})

	for i := 0; i < 3; i++ {
		_, err := cb.GetPrice(context.Background(), "AAPL")
		require.Error(t, err)
	}
	assert.Equal(t, 3, stub.calls)

	// Circuit is open now; calls short-circuit without hitting the provider.
	_, err := cb.GetPrice(context.Background(), "AAPL")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, stub.calls)
}
