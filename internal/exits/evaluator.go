package exits

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/Trader/config"
	"github.com/Alias1177/Trader/models"
)

// Evaluator decides whether an open position should be closed. Conditions
// are checked in strict priority so the reason is deterministic when several
// fire at once: stop-loss first, then take-profit, then technical, then
// staleness.
type Evaluator struct {
	cfg    config.ExitConfig
	logger zerolog.Logger
}

func New(cfg config.ExitConfig) *Evaluator {
	return &Evaluator{
		cfg:    cfg,
		logger: log.With().Str("component", "exit_evaluator").Logger(),
	}
}

// Evaluate checks one position against the current quote and indicator
// snapshot. snap may be nil when indicator data was unavailable; technical
// exits are then skipped. params overrides the configured stop/take levels
// when the active ParameterSet tunes them.
func (e *Evaluator) Evaluate(
	position models.Position,
	quote float64,
	snap *models.IndicatorSnapshot,
	params *models.ParameterSet,
	now time.Time,
) (bool, models.ExitReason) {
	if position.AvgEntryPrice <= 0 || quote <= 0 {
		return false, ""
	}

	stopLossPct := params.Get("stop_loss_pct", e.cfg.StopLossPct)
	takeProfitPct := params.Get("take_profit_pct", e.cfg.TakeProfitPct)

	pnlPct := (quote - position.AvgEntryPrice) / position.AvgEntryPrice

	if pnlPct <= -stopLossPct {
		e.logger.Info().
			Str("symbol", position.Symbol).
			Float64("pnl_pct", pnlPct).
			Msg("Stop-loss triggered")
		return true, models.ExitStopLoss
	}

	if pnlPct >= takeProfitPct {
		e.logger.Info().
			Str("symbol", position.Symbol).
			Float64("pnl_pct", pnlPct).
			Msg("Take-profit triggered")
		return true, models.ExitTakeProfit
	}

	if snap != nil {
		if snap.RSI > e.cfg.OverboughtRSI || snap.MACDHistogram < 0 {
			e.logger.Info().
				Str("symbol", position.Symbol).
				Float64("rsi", snap.RSI).
				Float64("macd_histogram", snap.MACDHistogram).
				Msg("Technical exit")
			return true, models.ExitTechnical
		}
	}

	if e.cfg.MaxHoldingDays > 0 && !position.OpenedAt.IsZero() {
		held := now.Sub(position.OpenedAt)
		maxHold := time.Duration(e.cfg.MaxHoldingDays) * 24 * time.Hour
		if held > maxHold && pnlPct < e.cfg.StaleGainPct {
			e.logger.Info().
				Str("symbol", position.Symbol).
				Float64("pnl_pct", pnlPct).
				Dur("held", held).
				Msg("Stale position exit")
			return true, models.ExitStale
		}
	}

	return false, ""
}
