package risk

import (
	"math"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Alias1177/Trader/config"
	"github.com/Alias1177/Trader/models"
)

// halfKelly damps the raw Kelly fraction for reduced volatility
const halfKelly = 0.5

// Sizer converts an approved candidate into a share quantity. Sizing modes
// are a closed enum dispatched explicitly — never selected by comparing
// strategy name strings. Money math goes through decimal so quantities
// round deterministically.
type Sizer struct {
	cfg    config.RiskConfig
	logger zerolog.Logger
}

func NewSizer(cfg config.RiskConfig) *Sizer {
	return &Sizer{
		cfg:    cfg,
		logger: log.With().Str("component", "position_sizer").Logger(),
	}
}

// Size returns the share quantity for the candidate. ok is false when the
// trade is too small to be worth executing (rebalance churn guard).
func (s *Sizer) Size(sig models.Signal, portfolio models.PortfolioSnapshot, mode models.SizingMode) (float64, bool) {
	if sig.EntryPrice <= 0 {
		return 0, false
	}

	switch mode {
	case models.SizingRebalance:
		return s.sizeRebalance(sig)
	case models.SizingKelly:
		return s.sizeKelly(sig, portfolio)
	default:
		return s.sizeFixedFraction(sig, portfolio)
	}
}

// sizeRebalance trades the dollar gap between target and current value,
// skipping gaps below the minimum-trade threshold to prevent churn
func (s *Sizer) sizeRebalance(sig models.Signal) (float64, bool) {
	gap := math.Abs(sig.TargetValue - sig.CurrentValue)
	if gap < s.cfg.MinTradeAmount {
		s.logger.Debug().
			Str("symbol", sig.Symbol).
			Float64("gap", gap).
			Float64("min_trade", s.cfg.MinTradeAmount).
			Msg("Rebalance gap below minimum trade")
		return 0, false
	}
	qty := sharesFor(gap, sig.EntryPrice)
	return qty, qty > 0
}

// sizeFixedFraction allocates a fixed fraction of total portfolio value
func (s *Sizer) sizeFixedFraction(sig models.Signal, portfolio models.PortfolioSnapshot) (float64, bool) {
	notional := portfolio.TotalValue * s.cfg.MaxPositionSizePct
	qty := sharesFor(notional, sig.EntryPrice)
	s.logger.Debug().
		Str("symbol", sig.Symbol).
		Float64("notional", notional).
		Float64("qty", qty).
		Msg("Fixed-fraction sizing")
	return qty, qty > 0
}

// sizeKelly scales the position by a half-Kelly estimate from signal
// confidence and the trade's risk/reward ratio, capped at the fixed-fraction
// limit. Kelly: f* = (p*b - q) / b.
func (s *Sizer) sizeKelly(sig models.Signal, portfolio models.PortfolioSnapshot) (float64, bool) {
	stopPct := 0.0
	targetPct := 0.0
	if sig.EntryPrice > 0 {
		stopPct = math.Abs(sig.EntryPrice-sig.StopLoss) / sig.EntryPrice
		targetPct = math.Abs(sig.TakeProfit-sig.EntryPrice) / sig.EntryPrice
	}

	b := 2.0 // fallback payoff ratio
	if stopPct > 0 {
		b = targetPct / stopPct
	}

	p := sig.Confidence
	q := 1 - p
	kelly := 0.0
	if b > 0 {
		kelly = (p*b - q) / b
	}
	fraction := math.Max(0, kelly*halfKelly)
	fraction = math.Min(fraction, s.cfg.MaxPositionSizePct)

	qty := sharesFor(portfolio.TotalValue*fraction, sig.EntryPrice)
	s.logger.Debug().
		Str("symbol", sig.Symbol).
		Float64("kelly", kelly).
		Float64("fraction", fraction).
		Float64("qty", qty).
		Msg("Kelly sizing")
	return qty, qty > 0
}

// sharesFor converts a dollar amount at a price into shares, rounded down
// to two decimal places (fractional shares)
func sharesFor(notional, price float64) float64 {
	if price <= 0 || notional <= 0 {
		return 0
	}
	qty := decimal.NewFromFloat(notional).
		Div(decimal.NewFromFloat(price)).
		RoundDown(2)
	f, _ := qty.Float64()
	return f
}
