package risk

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/Trader/config"
	"github.com/Alias1177/Trader/models"
)

// Gate applies every hard risk limit to a batch of candidate signals, in
// strict order, each step only narrowing the approved set:
//
//  1. daily-loss circuit breaker (cycle halt)
//  2. open-position count limit (exits exempt)
//  3. sector concentration and pairwise correlation
//  4. position sizing
//  5. confidence-ordered slot allocation
//
// The output always contains exactly one decision per submitted candidate:
// approved + rejected = submitted, no silent drops.
type Gate struct {
	corr      *CorrelationGate
	sizer     *Sizer
	cfg       config.RiskConfig
	entryMode models.SizingMode
	logger    zerolog.Logger
}

func NewGate(corr *CorrelationGate, sizer *Sizer, cfg config.RiskConfig, entryMode models.SizingMode) *Gate {
	return &Gate{
		corr:      corr,
		sizer:     sizer,
		cfg:       cfg,
		entryMode: entryMode,
		logger:    log.With().Str("component", "risk_gate").Logger(),
	}
}

// Filter produces one RiskDecision per candidate. The second return value
// reports a circuit-breaker halt: when true, the caller must discard any
// decisions not yet submitted for execution and end the cycle.
func (g *Gate) Filter(
	ctx context.Context,
	candidates []models.Signal,
	portfolio models.PortfolioSnapshot,
	openPositions []models.Position,
	dailyPnL float64,
) ([]models.RiskDecision, bool) {
	decisions := make([]models.RiskDecision, 0, len(candidates))

	// Circuit breaker, boundary inclusive: a loss of exactly the limit
	// trips it.
	if portfolio.TotalValue > 0 && dailyPnL <= -g.cfg.DailyLossLimitPct*portfolio.TotalValue {
		g.logger.Error().
			Float64("daily_pnl", dailyPnL).
			Float64("limit_pct", g.cfg.DailyLossLimitPct).
			Msg("CIRCUIT BREAKER: daily loss limit reached, trading halted")
		for _, sig := range candidates {
			decisions = append(decisions, reject(sig, models.RejectCircuitBreaker))
		}
		return decisions, true
	}

	// Deterministic ordering: highest confidence first. Slot allocation
	// below depends on this order.
	sorted := make([]models.Signal, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	slots := g.cfg.MaxPositions - len(openPositions)
	if slots < 0 {
		slots = 0
	}
	approvedEntries := 0

	for _, sig := range sorted {
		if sig.Action == models.ActionExit {
			// Exits are exempt from count, concentration and slot
			// limits: reducing risk is always allowed.
			decisions = append(decisions, models.RiskDecision{
				Signal:           sig,
				Approved:         true,
				AdjustedQuantity: positionQty(openPositions, sig.Symbol),
			})
			continue
		}

		if reason, ok := validate(sig); !ok {
			decisions = append(decisions, reject(sig, reason))
			continue
		}

		if len(openPositions) >= g.cfg.MaxPositions {
			decisions = append(decisions, reject(sig, models.RejectMaxPositions))
			continue
		}

		notional := portfolio.TotalValue * g.cfg.MaxPositionSizePct
		if ok, reason := g.corr.Check(ctx, sig, portfolio, notional); !ok {
			decisions = append(decisions, reject(sig, reason))
			continue
		}

		mode := g.entryMode
		if sig.TargetValue > 0 {
			mode = models.SizingRebalance
		}
		qty, ok := g.sizer.Size(sig, portfolio, mode)
		if !ok {
			decisions = append(decisions, reject(sig, models.RejectBelowMinimumTrade))
			continue
		}

		// Cap by available buying power
		if cost := qty * sig.EntryPrice; cost > portfolio.BuyingPower {
			qty = sharesFor(portfolio.BuyingPower, sig.EntryPrice)
			if qty <= 0 {
				decisions = append(decisions, reject(sig, models.RejectBelowMinimumTrade))
				continue
			}
		}

		if approvedEntries >= slots {
			decisions = append(decisions, reject(sig, models.RejectSlotsExhausted))
			continue
		}

		approvedEntries++
		decisions = append(decisions, models.RiskDecision{
			Signal:           sig,
			Approved:         true,
			AdjustedQuantity: qty,
		})
		g.logger.Info().
			Str("symbol", sig.Symbol).
			Float64("qty", qty).
			Float64("confidence", sig.Confidence).
			Msg("Signal approved")
	}

	g.logger.Info().
		Int("submitted", len(candidates)).
		Int("approved", countApproved(decisions)).
		Int("slots", slots).
		Msg("Risk filter complete")
	return decisions, false
}

// validate applies static sanity checks to an entry signal
func validate(sig models.Signal) (models.RejectionReason, bool) {
	if sig.EntryPrice <= 0 {
		return models.RejectInvalidSignal, false
	}
	if sig.StopLoss != 0 && sig.StopLoss >= sig.EntryPrice {
		return models.RejectInvalidSignal, false
	}
	if sig.TakeProfit != 0 && sig.TakeProfit <= sig.EntryPrice {
		return models.RejectInvalidSignal, false
	}
	return "", true
}

func reject(sig models.Signal, reason models.RejectionReason) models.RiskDecision {
	return models.RiskDecision{Signal: sig, Approved: false, RejectionReason: reason}
}

func positionQty(positions []models.Position, symbol string) float64 {
	for _, p := range positions {
		if p.Symbol == symbol {
			return p.Qty
		}
	}
	return 0
}

func countApproved(decisions []models.RiskDecision) int {
	n := 0
	for _, d := range decisions {
		if d.Approved {
			n++
		}
	}
	return n
}
