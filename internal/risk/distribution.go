package risk

import (
	"math"

	"github.com/optionfolio/optionfolio/internal/models"
)

// DistributionSummary describes the element-wise sum of per-position P&L
// distributions: one combined outcome per simulated scenario.
type DistributionSummary struct {
	Positions           int     `json:"positions"`
	Samples             int     `json:"samples"`
	ExpectedReturn      float64 `json:"expected_return"`
	StdDev              float64 `json:"std_dev"`
	ProbabilityOfProfit float64 `json:"probability_of_profit"`
}

// CombinedDistribution sums the simulated P&L arrays of option positions
// element-wise and summarizes the result. Shares are excluded: their fixed
// one-year horizon doesn't line up with option expiries, so mixing them in
// skews the combined view. Arrays are combined up to the shortest length.
func CombinedDistribution(positions []*models.Position) DistributionSummary {
	included := make([]*models.Position, 0, len(positions))
	n := 0
	for _, p := range positions {
		if p.Variant == models.Shares || len(p.PnLSamples) == 0 {
			continue
		}
		if n == 0 || len(p.PnLSamples) < n {
			n = len(p.PnLSamples)
		}
		included = append(included, p)
	}
	if len(included) == 0 || n == 0 {
		return DistributionSummary{}
	}

	combined := make([]float64, n)
	for _, p := range included {
		for i := 0; i < n; i++ {
			combined[i] += p.PnLSamples[i]
		}
	}

	mean := 0.0
	wins := 0
	for _, v := range combined {
		mean += v
		if v > 0 {
			wins++
		}
	}
	mean /= float64(n)

	variance := 0.0
	for _, v := range combined {
		d := v - mean
		variance += d * d
	}
	variance /= float64(n)

	return DistributionSummary{
		Positions:           len(included),
		Samples:             n,
		ExpectedReturn:      mean,
		StdDev:              math.Sqrt(variance),
		ProbabilityOfProfit: float64(wins) / float64(n),
	}
}

// ProjectGrowth compounds a portfolio value at an annual rate and returns a
// series indexed by year, starting from year zero.
func ProjectGrowth(portfolioValue, annualRate float64, years int) []float64 {
	if years < 0 {
		years = 0
	}
	series := make([]float64, years+1)
	for y := 0; y <= years; y++ {
		series[y] = portfolioValue * math.Pow(1+annualRate, float64(y))
	}
	return series
}
