// Package models defines the portfolio domain types: positions, instrument
// variants and the per-position risk facet derived from them.
package models

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

const sharesPerContract = 100.0

// InstrumentVariant identifies the kind of instrument a position holds.
// It is immutable after creation; changing strategy means deleting the
// position and recreating it.
type InstrumentVariant string

const (
	// Shares is a plain long equity position.
	Shares InstrumentVariant = "shares"
	// CashSecuredPut is a short put backed by cash collateral.
	CashSecuredPut InstrumentVariant = "cash_secured_put"
	// CoveredCall is long stock plus a short call against it.
	CoveredCall InstrumentVariant = "covered_call"
	// ShortCall is a naked short call.
	ShortCall InstrumentVariant = "short_call"
	// ShortPut is a naked short put.
	ShortPut InstrumentVariant = "short_put"
	// LongCall is a long call option.
	LongCall InstrumentVariant = "long_call"
	// LongPut is a long put option.
	LongPut InstrumentVariant = "long_put"
)

// Valid reports whether v is one of the supported instrument variants.
func (v InstrumentVariant) Valid() bool {
	switch v {
	case Shares, CashSecuredPut, CoveredCall, ShortCall, ShortPut, LongCall, LongPut:
		return true
	default:
		return false
	}
}

// RequiresStrike reports whether the variant needs a strike price.
// Every option variant does; shares must not carry one.
func (v InstrumentVariant) RequiresStrike() bool {
	return v != Shares && v.Valid()
}

// CollectsCredit reports whether the variant is a credit-collecting short.
// Credit variants are excluded from the additive portfolio total because
// their collateral is already reflected in the cash balance.
func (v InstrumentVariant) CollectsCredit() bool {
	switch v {
	case CashSecuredPut, CoveredCall, ShortCall, ShortPut:
		return true
	default:
		return false
	}
}

// Position is a single option or equity instrument held in a portfolio.
//
// PnLSamples holds the simulated terminal P&L distribution and is regenerated
// whenever a simulation input changes (price, strike, premium, quantity, IV,
// time remaining). Derived scalars read from it must never be served after a
// mutating edit without a refresh in between.
type Position struct {
	ID              string            `json:"id"`
	Variant         InstrumentVariant `json:"variant"`
	Ticker          string            `json:"ticker"`
	Quantity        int               `json:"quantity"`
	Strike          *float64          `json:"strike,omitempty"`
	Premium         float64           `json:"premium"` // credit > 0, debit < 0
	Expiration      time.Time         `json:"expiration"`
	OpenedAt        time.Time         `json:"opened_at"`
	UnderlyingPrice float64           `json:"underlying_price"`
	ImpliedVol      float64           `json:"implied_vol"` // decimal, 0.20 = 20%
	PnLSamples      []float64         `json:"pnl_samples,omitempty"`
}

// NewPosition creates a position with a fresh ID and an opened-at stamp.
// Strike may be nil only for the shares variant; the simulator validates
// terms before generating samples.
func NewPosition(variant InstrumentVariant, ticker string, quantity int,
	strike *float64, premium float64, expiration time.Time,
	underlyingPrice, impliedVol float64) *Position {
	return &Position{
		ID:              uuid.New().String(),
		Variant:         variant,
		Ticker:          strings.ToUpper(strings.TrimSpace(ticker)),
		Quantity:        quantity,
		Strike:          strike,
		Premium:         premium,
		Expiration:      expiration,
		OpenedAt:        time.Now().UTC(),
		UnderlyingPrice: underlyingPrice,
		ImpliedVol:      impliedVol,
	}
}

// StrikePrice returns the strike, or 0 when unset.
func (p *Position) StrikePrice() float64 {
	if p.Strike == nil {
		return 0
	}
	return *p.Strike
}

// DTE returns whole calendar days until expiration as of now, negative once
// expired.
func (p *Position) DTE() float64 {
	return p.DTEFrom(time.Now().UTC())
}

// DTEFrom returns whole calendar days between asOf and expiration. Days are
// counted date-to-date, not clock-to-clock, so every call made on the same
// calendar day sees the same value; the simulation horizon depends on it and
// must not drift within a day.
func (p *Position) DTEFrom(asOf time.Time) float64 {
	exp := p.Expiration.UTC().Truncate(24 * time.Hour)
	ref := asOf.UTC().Truncate(24 * time.Hour)
	return exp.Sub(ref).Hours() / 24
}

// HoldingDays returns the position's designed holding length in fractional
// days: expiration minus opened-at.
func (p *Position) HoldingDays() float64 {
	return p.Expiration.Sub(p.OpenedAt).Hours() / 24
}

// Value returns notional value: spot times quantity for shares, absolute
// premium times the contract multiplier for options.
func (p *Position) Value() float64 {
	if p.Variant == Shares {
		return p.UnderlyingPrice * float64(p.Quantity)
	}
	return math.Abs(p.Premium) * sharesPerContract * float64(p.Quantity)
}

// MaxGain returns the closed-form best case for the position.
//
// Two entries are deliberate heuristics rather than tight bounds: shares cap
// at half of notional and long calls at four times the premium. Downstream
// ratios were tuned against these exact constants, so they stay as-is.
func (p *Position) MaxGain() float64 {
	q := float64(p.Quantity)
	switch p.Variant {
	case Shares:
		return p.Value() * 0.5
	case CashSecuredPut, ShortPut, ShortCall:
		return p.Premium * sharesPerContract * q
	case CoveredCall:
		return ((p.StrikePrice() - p.UnderlyingPrice) + p.Premium) * sharesPerContract * q
	case LongCall:
		return p.Premium * 4
	case LongPut:
		return p.StrikePrice() * sharesPerContract * q
	default:
		return 0
	}
}

// MaxLoss returns the closed-form worst case for the position. A naked short
// call is unbounded and reports +Inf, which propagates through portfolio
// aggregation as a domain value, not an error.
func (p *Position) MaxLoss() float64 {
	q := float64(p.Quantity)
	switch p.Variant {
	case Shares:
		return p.UnderlyingPrice * q
	case CashSecuredPut, ShortPut:
		return (p.StrikePrice() - p.Premium) * sharesPerContract * q
	case CoveredCall:
		// Call strikes are set above break-even at entry, so no loss by construction.
		return 0
	case ShortCall:
		return math.Inf(1)
	case LongCall, LongPut:
		return p.Premium * sharesPerContract * q
	default:
		return 0
	}
}

// ProbabilityOfProfit returns the fraction of simulated outcomes above zero,
// or 0 when no samples have been generated yet.
func (p *Position) ProbabilityOfProfit() float64 {
	if len(p.PnLSamples) == 0 {
		return 0
	}
	wins := 0
	for _, v := range p.PnLSamples {
		if v > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(p.PnLSamples))
}

// ExpectedProfit returns the arithmetic mean of the simulated P&L samples,
// or 0 when no samples have been generated yet.
func (p *Position) ExpectedProfit() float64 {
	if len(p.PnLSamples) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range p.PnLSamples {
		sum += v
	}
	return sum / float64(len(p.PnLSamples))
}
