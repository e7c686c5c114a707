package dashboard

import (
	"math"
	"strconv"
	"time"

	"github.com/optionfolio/optionfolio/internal/models"
	"github.com/optionfolio/optionfolio/internal/risk"
)

// apiFloat renders non-finite metric values as JSON strings ("Infinity",
// "-Infinity", "NaN") instead of failing the whole encode. Infinities are
// legitimate domain values here, a naked short call has unbounded loss, and
// collaborators display them as-is.
type apiFloat float64

func (f apiFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	default:
		return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
	}
}

type createPortfolioRequest struct {
	Name string `json:"name"`
}

type updateCashRequest struct {
	Cash float64 `json:"cash"`
}

type createPositionRequest struct {
	Variant         string   `json:"variant"`
	Ticker          string   `json:"ticker"`
	Quantity        int      `json:"quantity"`
	Strike          *float64 `json:"strike,omitempty"`
	Premium         float64  `json:"premium"`
	Expiration      string   `json:"expiration"` // YYYY-MM-DD
	UnderlyingPrice float64  `json:"underlying_price,omitempty"`
	ImpliedVol      float64  `json:"implied_vol,omitempty"`
}

type updatePositionRequest struct {
	Quantity   *int     `json:"quantity,omitempty"`
	Strike     *float64 `json:"strike,omitempty"` // <= 0 clears the strike
	Premium    *float64 `json:"premium,omitempty"`
	ImpliedVol *float64 `json:"implied_vol,omitempty"`
}

type portfolioView struct {
	Name       string  `json:"name"`
	Cash       float64 `json:"cash"`
	Positions  int     `json:"positions"`
	TotalValue float64 `json:"total_value"`
}

// positionView carries the derived risk scalars alongside contract terms.
// The raw 100k-sample array never leaves the core.
type positionView struct {
	ID              string    `json:"id"`
	Variant         string    `json:"variant"`
	Ticker          string    `json:"ticker"`
	Quantity        int       `json:"quantity"`
	Strike          *float64  `json:"strike,omitempty"`
	Premium         float64   `json:"premium"`
	Expiration      time.Time `json:"expiration"`
	OpenedAt        time.Time `json:"opened_at"`
	UnderlyingPrice float64   `json:"underlying_price"`
	ImpliedVol      float64   `json:"implied_vol"`
	DTE             float64   `json:"dte"`
	Value           float64   `json:"value"`
	MaxGain         apiFloat  `json:"max_gain"`
	MaxLoss         apiFloat  `json:"max_loss"`
	POP             float64   `json:"probability_of_profit"`
	ExpectedProfit  float64   `json:"expected_profit"`
}

func newPositionView(p *models.Position) positionView {
	return positionView{
		ID:              p.ID,
		Variant:         string(p.Variant),
		Ticker:          p.Ticker,
		Quantity:        p.Quantity,
		Strike:          p.Strike,
		Premium:         p.Premium,
		Expiration:      p.Expiration,
		OpenedAt:        p.OpenedAt,
		UnderlyingPrice: p.UnderlyingPrice,
		ImpliedVol:      p.ImpliedVol,
		DTE:             p.DTE(),
		Value:           p.Value(),
		MaxGain:         apiFloat(p.MaxGain()),
		MaxLoss:         apiFloat(p.MaxLoss()),
		POP:             p.ProbabilityOfProfit(),
		ExpectedProfit:  p.ExpectedProfit(),
	}
}

type riskReportView struct {
	TotalValue        float64  `json:"total_value"`
	GrossExposure     apiFloat `json:"gross_exposure"`
	PercentExposure   apiFloat `json:"percent_exposure"`
	LeverageRatio     apiFloat `json:"leverage_ratio"`
	CashPercent       float64  `json:"cash_percent"`
	CashToPosition    float64  `json:"cash_to_position_ratio"`
	HighestPosition   apiFloat `json:"highest_position_percent"`
	HHI               apiFloat `json:"hhi"`
	MaxProfit         apiFloat `json:"max_profit"`
	RiskRewardRatio   apiFloat `json:"risk_reward_ratio"`
	ExpectedReturns   float64  `json:"expected_returns"`
	ERP               float64  `json:"expected_return_percent"`
	ERPA              apiFloat `json:"expected_return_annualized"`
	SortinoRatio      float64  `json:"sortino_ratio"`
	NetLiquidity      float64  `json:"net_liquidity"`
	CostToCloseShorts float64  `json:"cost_to_close_shorts"`
	OpenPositions     int      `json:"open_positions"`
}

func newRiskReportView(r risk.Report) riskReportView {
	return riskReportView{
		TotalValue:        r.TotalValue,
		GrossExposure:     apiFloat(r.GrossExposure),
		PercentExposure:   apiFloat(r.PercentExposure),
		LeverageRatio:     apiFloat(r.LeverageRatio),
		CashPercent:       r.CashPercent,
		CashToPosition:    r.CashToPosition,
		HighestPosition:   apiFloat(r.HighestPosition),
		HHI:               apiFloat(r.HHI),
		MaxProfit:         apiFloat(r.MaxProfit),
		RiskRewardRatio:   apiFloat(r.RiskRewardRatio),
		ExpectedReturns:   r.ExpectedReturns,
		ERP:               r.ERP,
		ERPA:              apiFloat(r.ERPA),
		SortinoRatio:      r.SortinoRatio,
		NetLiquidity:      r.NetLiquidity,
		CostToCloseShorts: r.CostToCloseShorts,
		OpenPositions:     r.OpenPositions,
	}
}
