// Package risk computes portfolio-level risk metrics from position risk
// facets and simulated P&L distributions. Everything here is a pure function
// over the portfolio's position list and cash balance; the aggregator never
// fails and returns defined defaults for empty or degenerate portfolios.
//
// Infinities are domain values, not errors: a naked short call contributes an
// unbounded max loss, so gross exposure and the ratios that divide by total
// value propagate +Inf unchanged rather than clamping it.
package risk

import (
	"math"

	"github.com/optionfolio/optionfolio/internal/models"
)

const daysPerYear = 365.0

// Report is the full set of portfolio risk metrics served to collaborators.
type Report struct {
	TotalValue        float64 `json:"total_value"`
	GrossExposure     float64 `json:"gross_exposure"`
	PercentExposure   float64 `json:"percent_exposure"`
	LeverageRatio     float64 `json:"leverage_ratio"`
	CashPercent       float64 `json:"cash_percent"`
	CashToPosition    float64 `json:"cash_to_position_ratio"`
	HighestPosition   float64 `json:"highest_position_percent"`
	HHI               float64 `json:"hhi"`
	MaxProfit         float64 `json:"max_profit"`
	RiskRewardRatio   float64 `json:"risk_reward_ratio"`
	ExpectedReturns   float64 `json:"expected_returns"`
	ERP               float64 `json:"expected_return_percent"`
	ERPA              float64 `json:"expected_return_annualized"`
	SortinoRatio      float64 `json:"sortino_ratio"`
	NetLiquidity      float64 `json:"net_liquidity"`
	CostToCloseShorts float64 `json:"cost_to_close_shorts"`
	OpenPositions     int     `json:"open_positions"`
}

// Aggregate derives the risk report for a portfolio. Missing cash or an
// empty position list are not errors; every metric falls back to its
// documented default.
func Aggregate(cash float64, positions []*models.Position) Report {
	totalValue := TotalValue(cash, positions)
	exposure := GrossExposure(positions)
	maxProfit := MaxProfit(positions)
	expectedReturns := ExpectedReturns(positions)
	costToClose := CostToCloseShorts(positions)

	r := Report{
		TotalValue:        totalValue,
		GrossExposure:     exposure,
		HHI:               HHI(positions),
		MaxProfit:         maxProfit,
		ExpectedReturns:   expectedReturns,
		CashToPosition:    CashToPositionRatio(cash, positions),
		ERPA:              ExpectedReturnAnnualized(positions, totalValue),
		SortinoRatio:      SortinoRatio(positions, totalValue),
		NetLiquidity:      totalValue - costToClose,
		CostToCloseShorts: costToClose,
		OpenPositions:     len(positions),
	}

	if totalValue > 0 {
		r.PercentExposure = exposure / totalValue * 100
		r.LeverageRatio = exposure / totalValue
		r.CashPercent = cash / totalValue * 100
		r.HighestPosition = highestMaxLoss(positions) / totalValue * 100
		r.ERP = expectedReturns / totalValue * 100
	}
	if maxProfit > 0 {
		r.RiskRewardRatio = exposure / maxProfit
	}
	return r
}

// TotalValue is cash plus the summed value of long, cash-backed positions.
// Credit-collecting variants are skipped: their collateral already sits in
// the cash balance, so adding their notional would double count.
func TotalValue(cash float64, positions []*models.Position) float64 {
	total := cash
	for _, p := range positions {
		if !p.Variant.CollectsCredit() {
			total += p.Value()
		}
	}
	return total
}

// GrossExposure sums max loss across all positions. A naked short call makes
// it +Inf, which propagates into dependent ratios.
func GrossExposure(positions []*models.Position) float64 {
	total := 0.0
	for _, p := range positions {
		total += p.MaxLoss()
	}
	return total
}

// MaxProfit sums max gain across all positions, heuristic caps included.
func MaxProfit(positions []*models.Position) float64 {
	total := 0.0
	for _, p := range positions {
		total += p.MaxGain()
	}
	return total
}

// ExpectedReturns sums expected profit across all positions.
func ExpectedReturns(positions []*models.Position) float64 {
	total := 0.0
	for _, p := range positions {
		total += p.ExpectedProfit()
	}
	return total
}

// CashToPositionRatio is cash over summed position value. An empty portfolio
// is fully liquid, so the ratio defaults to 1.
func CashToPositionRatio(cash float64, positions []*models.Position) float64 {
	posValue := 0.0
	for _, p := range positions {
		posValue += p.Value()
	}
	if posValue <= 0 {
		return 1.0
	}
	return cash / posValue
}

// HHI is the Herfindahl-Hirschman concentration index over per-ticker max
// loss shares of gross exposure: 1.0 for a single ticker, 1/k for k equally
// exposed tickers, 0 for the degenerate empty case.
func HHI(positions []*models.Position) float64 {
	exposure := GrossExposure(positions)
	if exposure <= 0 || len(positions) == 0 {
		return 0
	}

	byTicker := make(map[string]float64, len(positions))
	for _, p := range positions {
		byTicker[p.Ticker] += p.MaxLoss()
	}

	hhi := 0.0
	for _, loss := range byTicker {
		w := loss / exposure
		hhi += w * w
	}
	return hhi
}

// PositionRiskPercent reports a single position's max loss as a percentage
// of portfolio total value.
func PositionRiskPercent(p *models.Position, totalValue float64) float64 {
	if totalValue <= 0 {
		return 0
	}
	return p.MaxLoss() / totalValue * 100
}

// ExpectedReturnAnnualized is the value-weighted average annualized cycle
// yield over defined-risk option positions. Shares and covered calls are
// excluded: shares have no cycle and covered calls report zero max loss.
// Each position's cycle yield (expected profit over absolute max loss) is
// annualized by 365 over its designed holding length, with holding lengths
// at or below zero substituted by one day.
func ExpectedReturnAnnualized(positions []*models.Position, totalValue float64) float64 {
	if len(positions) == 0 || totalValue <= 0 {
		return 0
	}

	avg := 0.0
	for _, p := range positions {
		if p.Variant == models.Shares || p.Variant == models.CoveredCall {
			continue
		}
		maxLoss := p.MaxLoss()
		if maxLoss <= 0 {
			continue
		}
		days := p.HoldingDays()
		if days <= 0 {
			days = 1
		}
		cycleYield := p.ExpectedProfit() / math.Abs(maxLoss)
		w := math.Abs(maxLoss) / totalValue
		avg += w * cycleYield * (daysPerYear / days)
	}
	return avg
}

// SortinoRatio is the portfolio expected return over downside deviation with
// a zero target. Zero downside variance (including the all-gain case) is a
// defined 0, not an error.
func SortinoRatio(positions []*models.Position, totalValue float64) float64 {
	dv := downsideVariance(positions, totalValue, 0)
	if dv <= 0 {
		return 0
	}
	return portfolioExpectedReturn(positions, totalValue) / math.Sqrt(dv)
}

// portfolioExpectedReturn is the value-weighted average of each position's
// expected profit over its own value.
func portfolioExpectedReturn(positions []*models.Position, totalValue float64) float64 {
	if totalValue <= 0 {
		return 0
	}
	er := 0.0
	for _, p := range positions {
		v := p.Value()
		if v <= 0 || len(p.PnLSamples) == 0 {
			continue
		}
		er += (v / totalValue) * (p.ExpectedProfit() / v)
	}
	return er
}

// downsideVariance aggregates per-position downside second moments with
// squared value weights, per the Sortino definition.
func downsideVariance(positions []*models.Position, totalValue, target float64) float64 {
	if totalValue <= 0 {
		return 0
	}
	dv := 0.0
	for _, p := range positions {
		v := p.Value()
		if v <= 0 || len(p.PnLSamples) == 0 {
			continue
		}
		sum := 0.0
		for _, sample := range p.PnLSamples {
			if d := sample - target; d < 0 {
				sum += d * d
			}
		}
		w := v / totalValue
		dv += w * w * (sum / float64(len(p.PnLSamples)))
	}
	return dv
}

// CostToCloseShorts estimates the cash needed to buy back every credit
// position: its notional less the expected profit still in it.
func CostToCloseShorts(positions []*models.Position) float64 {
	cost := 0.0
	for _, p := range positions {
		if p.Variant.CollectsCredit() {
			cost += p.Value() - p.ExpectedProfit()
		}
	}
	return cost
}

func highestMaxLoss(positions []*models.Position) float64 {
	highest := 0.0
	for _, p := range positions {
		if ml := p.MaxLoss(); ml > highest {
			highest = ml
		}
	}
	return highest
}
