// Package montecarlo simulates terminal profit/loss distributions for option
// and equity positions under geometric Brownian motion.
//
// The generator uses antithetic variates: each standard-normal draw is paired
// with its negation before the GBM transform, which forces the empirical mean
// of the draws toward zero and halves the variance of the terminal-price mean
// versus naive sampling.
//
// Every simulation call owns an independent random stream, so positions can
// be simulated in parallel with no shared generator state, and an explicit
// seed reproduces a run exactly.
package montecarlo

import (
	"math"
	"math/rand"
)

// TerminalPrices draws n terminal prices under GBM:
//
//	S_T = S0 * exp((mu - sigma^2/2)*T + sigma*sqrt(T)*Z)
//
// n is rounded down to the nearest even count so draws pair up; an odd
// request yields n-1 prices. The draw behind price i is the exact negation
// of the draw behind price i+n/2. T=0 and sigma=0 both collapse every path
// to S0 exactly.
func TerminalPrices(rng *rand.Rand, s0, sigma, horizon, drift float64, n int) []float64 {
	if n < 0 {
		n = 0
	}
	half := n / 2
	n = half * 2

	driftTerm := (drift - 0.5*sigma*sigma) * horizon
	volTerm := sigma * math.Sqrt(horizon)

	prices := make([]float64, n)
	for i := 0; i < half; i++ {
		z := rng.NormFloat64()
		prices[i] = s0 * math.Exp(driftTerm+volTerm*z)
		prices[half+i] = s0 * math.Exp(driftTerm-volTerm*z)
	}
	return prices
}
