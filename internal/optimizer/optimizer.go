package optimizer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/Trader/config"
	"github.com/Alias1177/Trader/internal/params"
	"github.com/Alias1177/Trader/models"
)

// tradingDaysPerYear annualizes the Sharpe ratio
const tradingDaysPerYear = 252

// sharpeEpsilon is the tolerance under which two Sharpe scores count as a
// tie, resolved by preferring the larger sample
const sharpeEpsilon = 1e-9

// Optimizer re-tunes strategy parameters from historical outcomes. It builds
// a bounded cartesian grid inside each parameter's declared safe range,
// replays every historical entry against each candidate predicate
// (counterfactual: would the trade have been taken under these parameters?)
// and selects the combination with the best realized Sharpe ratio.
type Optimizer struct {
	store    models.Store
	registry *params.Registry
	cfg      config.OptimizerConfig
	logger   zerolog.Logger
}

func New(store models.Store, registry *params.Registry, cfg config.OptimizerConfig) *Optimizer {
	return &Optimizer{
		store:    store,
		registry: registry,
		cfg:      cfg,
		logger:   log.With().Str("component", "optimizer").Logger(),
	}
}

// combination is one candidate parameter assignment with its score
type combination struct {
	params  map[string]float64
	sharpe  float64
	winRate float64
	sample  int
}

// better reports whether candidate should replace the current best. Higher
// Sharpe wins; within sharpeEpsilon the larger sample wins, and an exact tie
// keeps the incumbent so grid order stays deterministic.
func better(candidate, best *combination) bool {
	if best == nil {
		return true
	}
	if candidate.sharpe > best.sharpe+sharpeEpsilon {
		return true
	}
	return math.Abs(candidate.sharpe-best.sharpe) <= sharpeEpsilon && candidate.sample > best.sample
}

// Optimize runs one optimization pass for a strategy. It returns the newly
// activated ParameterSet, or (nil, ErrInsufficientData) when the lookback
// window holds fewer than the configured minimum of trades — the active set
// is then left unchanged. Every run, change or not, is recorded as an
// immutable OptimizationRun audit record.
func (o *Optimizer) Optimize(ctx context.Context, strategy string, lookbackDays int) (*models.ParameterSet, error) {
	if lookbackDays <= 0 {
		lookbackDays = o.cfg.LookbackDays
	}
	since := time.Now().UTC().AddDate(0, 0, -lookbackDays)

	trades, err := o.store.QueryTrades(ctx, strategy, since)
	if err != nil {
		return nil, fmt.Errorf("query trade history: %w", err)
	}

	run := models.OptimizationRun{
		Strategy:     strategy,
		LookbackDays: lookbackDays,
		Timestamp:    time.Now().UTC(),
	}

	if len(trades) < o.cfg.MinTrades {
		run.Reason = fmt.Sprintf("insufficient data: %d trades < %d required", len(trades), o.cfg.MinTrades)
		o.logger.Info().
			Str("strategy", strategy).
			Int("trades", len(trades)).
			Int("required", o.cfg.MinTrades).
			Msg("Not enough trades for optimization, keeping current parameters")
		o.record(ctx, run)
		return nil, models.ErrInsufficientData
	}

	grid := o.buildGrid()
	run.TestedCombinations = len(grid)
	o.logger.Info().
		Str("strategy", strategy).
		Int("combinations", len(grid)).
		Int("trades", len(trades)).
		Msg("Starting grid search")

	var best *combination
	for i := range grid {
		combo := &grid[i]
		subset := filterTrades(trades, combo.params)
		if len(subset) < o.cfg.MinTradesPerCombo {
			continue
		}

		combo.sample = len(subset)
		combo.sharpe = sharpeRatio(subset)
		combo.winRate = winRate(subset)

		if better(combo, best) {
			best = combo
		}
	}

	if best == nil {
		run.Reason = "no parameter combination matched enough trades"
		o.logger.Info().Str("strategy", strategy).Msg("Grid search produced no viable combination")
		o.record(ctx, run)
		return nil, models.ErrInsufficientData
	}

	run.SelectedParams = best.params
	run.Sharpe = best.sharpe
	run.WinRate = best.winRate
	run.SampleSize = best.sample
	run.Changed = true
	run.Reason = fmt.Sprintf("grid search: sharpe=%.3f win_rate=%.1f%% n=%d",
		best.sharpe, best.winRate*100, best.sample)

	// Carry over tunables the grid does not cover (stop/take levels)
	merged := best.params
	if active := o.registry.Active(strategy); active != nil {
		merged = make(map[string]float64, len(active.Params))
		for k, v := range active.Params {
			merged[k] = v
		}
		for k, v := range best.params {
			merged[k] = v
		}
	}

	ps := o.registry.Activate(strategy, merged)
	o.logger.Info().
		Str("strategy", strategy).
		Int("version", ps.Version).
		Float64("sharpe", best.sharpe).
		Int("sample", best.sample).
		Msg("Optimization selected new parameters")

	o.record(ctx, run)
	return ps, nil
}

func (o *Optimizer) record(ctx context.Context, run models.OptimizationRun) {
	if err := o.store.AppendOptimizationRun(ctx, run); err != nil {
		o.logger.Error().Err(err).Str("strategy", run.Strategy).Msg("Failed to record optimization run")
	}
}

// buildGrid produces the cartesian product of evenly spaced values inside
// each parameter's declared bounds. Out-of-bounds values are never
// generated; combinations with rsi_lower >= rsi_upper are skipped as
// internally inconsistent.
func (o *Optimizer) buildGrid() []combination {
	names := make([]string, 0, len(o.cfg.Bounds))
	for name := range o.cfg.Bounds {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make([][]float64, len(names))
	for i, name := range names {
		values[i] = gridValues(o.cfg.Bounds[name])
	}

	var grid []combination
	assignment := make([]float64, len(names))
	var walk func(depth int)
	walk = func(depth int) {
		if depth == len(names) {
			p := make(map[string]float64, len(names))
			for i, name := range names {
				p[name] = assignment[i]
			}
			if lower, ok := p["rsi_lower"]; ok {
				if upper, ok2 := p["rsi_upper"]; ok2 && lower >= upper {
					return
				}
			}
			grid = append(grid, combination{params: p})
			return
		}
		for _, v := range values[depth] {
			assignment[depth] = v
			walk(depth + 1)
		}
	}
	walk(0)
	return grid
}

// gridValues spaces b.Steps values evenly across [Min, Max]
func gridValues(b config.Bounds) []float64 {
	if b.Steps <= 1 || b.Min == b.Max {
		return []float64{b.Min}
	}
	step := (b.Max - b.Min) / float64(b.Steps-1)
	out := make([]float64, 0, b.Steps)
	for i := 0; i < b.Steps; i++ {
		v := b.Min + float64(i)*step
		if v > b.Max {
			v = b.Max
		}
		out = append(out, v)
	}
	return out
}

// filterTrades keeps the trades whose recorded entry indicators would have
// passed the candidate predicate
func filterTrades(trades []models.TradeRecord, p map[string]float64) []models.TradeRecord {
	var out []models.TradeRecord
	for _, t := range trades {
		if t.RSI >= p["rsi_lower"] && t.RSI <= p["rsi_upper"] &&
			t.MACDHistogram > p["macd_threshold"] &&
			t.VolumeRatio > p["volume_ratio"] {
			out = append(out, t)
		}
	}
	return out
}

// sharpeRatio computes the annualized Sharpe ratio of trade returns,
// assuming a zero risk-free rate
func sharpeRatio(trades []models.TradeRecord) float64 {
	if len(trades) < 2 {
		return 0
	}

	mean := 0.0
	for _, t := range trades {
		mean += t.PnLPct
	}
	mean /= float64(len(trades))

	variance := 0.0
	for _, t := range trades {
		diff := t.PnLPct - mean
		variance += diff * diff
	}
	variance /= float64(len(trades) - 1)
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return 0
	}

	return mean * math.Sqrt(tradingDaysPerYear) / stdDev
}

func winRate(trades []models.TradeRecord) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.PnLPct > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}
