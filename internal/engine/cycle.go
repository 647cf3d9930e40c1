package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/Trader/config"
	"github.com/Alias1177/Trader/internal/exits"
	"github.com/Alias1177/Trader/internal/indicators"
	"github.com/Alias1177/Trader/internal/params"
	"github.com/Alias1177/Trader/internal/risk"
	"github.com/Alias1177/Trader/internal/scanner"
	"github.com/Alias1177/Trader/models"
)

// Engine runs one trading cycle: scan the watchlist, gate candidates through
// risk, submit approved orders, then evaluate exits for open positions. The
// cycle itself is sequential; only the scanner fans out internally.
type Engine struct {
	scanner   *scanner.Scanner
	gate      *risk.Gate
	evaluator *exits.Evaluator
	data      models.MarketData
	broker    models.Broker
	portfolio models.PortfolioProvider
	store     models.Store
	registry  *params.Registry
	cfg       *config.Config
	logger    zerolog.Logger

	// entry snapshots for positions opened this session, used to record
	// the trade with its entry-time indicators when it closes
	mu             sync.Mutex
	entrySnapshots map[string]*models.IndicatorSnapshot
	entryTimes     map[string]time.Time
}

func New(
	sc *scanner.Scanner,
	gate *risk.Gate,
	evaluator *exits.Evaluator,
	data models.MarketData,
	broker models.Broker,
	portfolio models.PortfolioProvider,
	store models.Store,
	registry *params.Registry,
	cfg *config.Config,
) *Engine {
	return &Engine{
		scanner:        sc,
		gate:           gate,
		evaluator:      evaluator,
		data:           data,
		broker:         broker,
		portfolio:      portfolio,
		store:          store,
		registry:       registry,
		cfg:            cfg,
		logger:         log.With().Str("component", "engine").Logger(),
		entrySnapshots: make(map[string]*models.IndicatorSnapshot),
		entryTimes:     make(map[string]time.Time),
	}
}

// CycleResult summarizes one cycle for logging and reporting
type CycleResult struct {
	Signals         int
	Approved        int
	Rejected        int
	OrdersSubmitted int
	PositionsClosed int
	Halted          bool
}

// RunCycle executes one full decision cycle. When the circuit breaker trips,
// every decision not yet submitted is discarded and the cycle ends with
// Halted set; nothing is partially submitted after a halt.
func (e *Engine) RunCycle(ctx context.Context) (*CycleResult, error) {
	portfolio, err := e.portfolio.GetPortfolio(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching portfolio: %w", err)
	}
	positions, err := e.portfolio.GetPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching positions: %w", err)
	}

	e.logger.Info().
		Float64("total_value", portfolio.TotalValue).
		Float64("cash", portfolio.Cash).
		Float64("daily_pnl", portfolio.DailyPnL).
		Int("positions", len(positions)).
		Msg("Cycle started")

	// The parameter set is read once; an optimizer swap mid-cycle is
	// only visible to the next cycle.
	ps := e.registry.Active(e.cfg.Strategy)

	result := &CycleResult{}

	signals := e.scanner.Scan(ctx, e.cfg.Watchlist, ps)
	result.Signals = len(signals)

	decisions, halted := e.gate.Filter(ctx, signals, portfolio, positions, portfolio.DailyPnL)
	result.Halted = halted
	for _, d := range decisions {
		if d.Approved {
			result.Approved++
		} else {
			result.Rejected++
		}
	}

	if halted {
		e.logger.Error().Msg("Cycle halted by circuit breaker, discarding all pending decisions")
		return result, models.ErrCircuitBreakerTripped
	}

	for _, d := range decisions {
		if !d.Approved {
			continue
		}
		orderID, err := e.broker.SubmitOrder(
			ctx, d.Signal.Symbol, d.AdjustedQuantity, models.SideBuy,
			d.Signal.StopLoss, d.Signal.TakeProfit,
		)
		if err != nil {
			e.logger.Error().Err(err).Str("symbol", d.Signal.Symbol).Msg("Order submission failed")
			continue
		}
		result.OrdersSubmitted++
		e.rememberEntry(d.Signal)
		e.logger.Info().
			Str("symbol", d.Signal.Symbol).
			Str("order_id", orderID).
			Float64("qty", d.AdjustedQuantity).
			Msg("Order submitted")
	}

	closed := e.checkExits(ctx, positions, ps)
	result.PositionsClosed = closed

	e.logger.Info().
		Int("signals", result.Signals).
		Int("approved", result.Approved).
		Int("orders", result.OrdersSubmitted).
		Int("closed", result.PositionsClosed).
		Msg("Cycle complete")
	return result, nil
}

// checkExits evaluates every open position. A data failure on one symbol
// skips that symbol only; the pass continues.
func (e *Engine) checkExits(ctx context.Context, positions []models.Position, ps *models.ParameterSet) int {
	closed := 0
	now := time.Now().UTC()

	for _, pos := range positions {
		symCtx, cancel := context.WithTimeout(ctx, e.cfg.Scanner.SymbolTimeout.D())

		quote, err := e.data.GetLatestQuote(symCtx, pos.Symbol)
		if err != nil {
			cancel()
			e.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("No quote, exit check skipped")
			continue
		}

		// Indicator failures degrade to a price-only exit check
		var snap *models.IndicatorSnapshot
		if bars, err := e.data.GetBars(symCtx, pos.Symbol, e.cfg.Scanner.LookbackBars); err == nil {
			snap = indicators.Calculate(bars, e.cfg.Scanner.MinBars)
		} else {
			e.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("No bars for technical exit check")
		}
		cancel()

		shouldExit, reason := e.evaluator.Evaluate(pos, quote, snap, ps, now)
		if !shouldExit {
			continue
		}

		ok, err := e.broker.ClosePosition(ctx, pos.Symbol)
		if err != nil || !ok {
			e.logger.Error().Err(err).Str("symbol", pos.Symbol).Msg("Failed to close position")
			continue
		}
		closed++
		e.logger.Info().
			Str("symbol", pos.Symbol).
			Str("reason", string(reason)).
			Float64("quote", quote).
			Msg("Position closed")

		e.recordClosedTrade(ctx, pos, quote, now)
	}
	return closed
}

func (e *Engine) rememberEntry(sig models.Signal) {
	e.mu.Lock()
	e.entrySnapshots[sig.Symbol] = sig.Indicators
	e.entryTimes[sig.Symbol] = sig.GeneratedAt
	e.mu.Unlock()
}

// recordClosedTrade appends the trade to history when the entry-time
// indicators are known (position opened this session). Trades opened before
// the process started are recorded by the execution pipeline instead.
func (e *Engine) recordClosedTrade(ctx context.Context, pos models.Position, exitPrice float64, now time.Time) {
	e.mu.Lock()
	snap := e.entrySnapshots[pos.Symbol]
	enteredAt, hasEntry := e.entryTimes[pos.Symbol]
	delete(e.entrySnapshots, pos.Symbol)
	delete(e.entryTimes, pos.Symbol)
	e.mu.Unlock()

	if snap == nil || !hasEntry {
		e.logger.Debug().Str("symbol", pos.Symbol).Msg("No entry snapshot, trade record left to execution pipeline")
		return
	}

	record := models.TradeRecord{
		Symbol:        pos.Symbol,
		Strategy:      e.cfg.Strategy,
		EntryPrice:    pos.AvgEntryPrice,
		ExitPrice:     exitPrice,
		PnLPct:        (exitPrice - pos.AvgEntryPrice) / pos.AvgEntryPrice,
		RSI:           snap.RSI,
		MACDHistogram: snap.MACDHistogram,
		VolumeRatio:   snap.VolumeRatio,
		EnteredAt:     enteredAt,
		ExitedAt:      now,
	}
	if err := e.store.AppendTrade(ctx, record); err != nil {
		e.logger.Error().Err(err).Str("symbol", pos.Symbol).Msg("Failed to append trade record")
	}
}
