package montecarlo

import (
	crand "crypto/rand"
	"encoding/binary"
	"math"
	"math/rand"
	"time"

	"github.com/optionfolio/optionfolio/internal/metrics"
	"github.com/optionfolio/optionfolio/internal/models"
)

// DefaultSampleCount is the fixed length of a position's P&L distribution.
const DefaultSampleCount = 100_000

// daysPerYear converts days to expiration into a GBM horizon.
const daysPerYear = 365.0

// sharesHorizonYears is the fixed analysis horizon for equity positions.
// Equities have no contractual expiry, so a one-year window is projected
// from realized historical volatility regardless of the stored expiration.
const sharesHorizonYears = 1.0

type settings struct {
	sampleCount int
	drift       float64
	seed        *int64
	asOf        time.Time
}

// Option adjusts simulation settings.
type Option func(*settings)

// WithSampleCount overrides the number of P&L samples to generate.
// Odd counts are rounded down to even so antithetic draws pair up.
func WithSampleCount(n int) Option {
	return func(s *settings) { s.sampleCount = n }
}

// WithDrift overrides the GBM drift term. The default is zero: no drift
// assumption is made.
func WithDrift(mu float64) Option {
	return func(s *settings) { s.drift = mu }
}

// WithSeed pins the random stream so a run is exactly reproducible.
func WithSeed(seed int64) Option {
	return func(s *settings) { s.seed = &seed }
}

// WithAsOf pins the evaluation time the horizon is measured from. The default
// is the current time; days to expiration are counted at calendar-date
// granularity either way, so runs with identical terms and seed reproduce the
// same samples regardless of the clock within a day.
func WithAsOf(asOf time.Time) Option {
	return func(s *settings) { s.asOf = asOf }
}

// Simulate generates the terminal P&L distribution for a position.
//
// It returns an InvalidTermsError when the strike is missing for an option
// variant, present for shares, or the quantity is below one, and an
// UnsupportedInstrumentError for an unrecognized variant tag. Numeric
// degeneracies (expired contract, zero volatility) are not errors; they
// collapse the distribution instead.
func Simulate(p *models.Position, opts ...Option) ([]float64, error) {
	s := settings{sampleCount: DefaultSampleCount, asOf: time.Now().UTC()}
	for _, opt := range opts {
		opt(&s)
	}

	if err := validateTerms(p); err != nil {
		return nil, err
	}

	start := time.Now()
	rng := rand.New(rand.NewSource(resolveSeed(s.seed)))
	terminal := TerminalPrices(rng, p.UnderlyingPrice, p.ImpliedVol,
		horizonYears(p, s.asOf), s.drift, s.sampleCount)

	samples, err := payoffs(p.Variant, terminal, p.StrikePrice(), p.Premium,
		p.UnderlyingPrice, p.Quantity)
	if err != nil {
		return nil, err
	}

	metrics.SimulationsTotal.WithLabelValues(string(p.Variant)).Inc()
	metrics.SimulationDuration.Observe(time.Since(start).Seconds())
	return samples, nil
}

// Refresh regenerates a position's P&L samples in place. Callers must invoke
// it after any edit to a simulation input and before reading derived scalars.
func Refresh(p *models.Position, opts ...Option) error {
	samples, err := Simulate(p, opts...)
	if err != nil {
		return err
	}
	p.PnLSamples = samples
	return nil
}

func validateTerms(p *models.Position) error {
	if !p.Variant.Valid() {
		return &UnsupportedInstrumentError{Variant: p.Variant}
	}
	if p.Quantity < 1 {
		return &InvalidTermsError{Reason: "quantity must be at least 1"}
	}
	if p.Variant.RequiresStrike() && (p.Strike == nil || *p.Strike <= 0) {
		return &InvalidTermsError{Reason: "strike is required for variant " + string(p.Variant)}
	}
	if p.Variant == models.Shares && p.Strike != nil {
		return &InvalidTermsError{Reason: "shares positions must not carry a strike"}
	}
	return nil
}

// horizonYears derives the GBM time horizon: a fixed year for shares, and
// days-to-expiration over 365 for options, clamped at zero so an expired
// contract simulates at T=0 instead of failing on negative time.
func horizonYears(p *models.Position, asOf time.Time) float64 {
	if p.Variant == models.Shares {
		return sharesHorizonYears
	}
	return math.Max(p.DTEFrom(asOf), 0) / daysPerYear
}

// resolveSeed returns the explicit seed when given, otherwise a fresh
// entropy-backed seed so concurrent simulations never share a stream.
func resolveSeed(seed *int64) int64 {
	if seed != nil {
		return *seed
	}
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}
