package montecarlo

import (
	"math"

	"github.com/optionfolio/optionfolio/internal/models"
)

const contractMultiplier = 100.0

// payoffs maps terminal prices to signed dollar P&L per path. Options carry
// the standard 100x contract multiplier, shares trade 1x. The switch is
// exhaustive over the supported variants; anything else is an
// UnsupportedInstrumentError.
func payoffs(variant models.InstrumentVariant, terminal []float64,
	strike, premium, spot float64, quantity int) ([]float64, error) {
	q := float64(quantity)
	scale := contractMultiplier * q
	out := make([]float64, len(terminal))

	switch variant {
	case models.LongCall:
		for i, st := range terminal {
			out[i] = math.Max(st-strike, 0)*scale - premium*scale
		}
	case models.LongPut:
		for i, st := range terminal {
			out[i] = math.Max(strike-st, 0)*scale - premium*scale
		}
	case models.ShortCall:
		for i, st := range terminal {
			out[i] = -math.Max(st-strike, 0)*scale + premium*scale
		}
	case models.ShortPut, models.CashSecuredPut:
		// Identical payoff; the cash-secured variant differs only in
		// collateral semantics, which live outside the simulator.
		for i, st := range terminal {
			out[i] = -math.Max(strike-st, 0)*scale + premium*scale
		}
	case models.CoveredCall:
		// Long stock leg plus short call leg.
		for i, st := range terminal {
			stockPnL := (st - spot) * q
			callPnL := -math.Max(st-strike, 0)*scale + premium*scale
			out[i] = stockPnL + callPnL
		}
	case models.Shares:
		for i, st := range terminal {
			out[i] = (st - spot) * q
		}
	default:
		return nil, &UnsupportedInstrumentError{Variant: variant}
	}
	return out, nil
}
