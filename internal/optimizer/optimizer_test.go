package optimizer

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/Trader/config"
	"github.com/Alias1177/Trader/internal/params"
	"github.com/Alias1177/Trader/models"
)

// memStore is an in-memory Store for optimizer tests
type memStore struct {
	trades []models.TradeRecord
	runs   []models.OptimizationRun
}

func (m *memStore) AppendTrade(_ context.Context, t models.TradeRecord) error {
	m.trades = append(m.trades, t)
	return nil
}

func (m *memStore) QueryTrades(_ context.Context, strategy string, since time.Time) ([]models.TradeRecord, error) {
	var out []models.TradeRecord
	for _, t := range m.trades {
		if t.Strategy == strategy && t.ExitedAt.After(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) AppendOptimizationRun(_ context.Context, r models.OptimizationRun) error {
	m.runs = append(m.runs, r)
	return nil
}

func testOptimizerConfig() config.OptimizerConfig {
	return config.OptimizerConfig{
		LookbackDays:      30,
		MinTrades:         20,
		MinTradesPerCombo: 5,
		Bounds: map[string]config.Bounds{
			"rsi_lower":      {Min: 40, Max: 50, Steps: 3},
			"rsi_upper":      {Min: 70, Max: 80, Steps: 3},
			"macd_threshold": {Min: -0.1, Max: 0.1, Steps: 3},
			"volume_ratio":   {Min: 1.0, Max: 1.2, Steps: 3},
		},
	}
}

func seededRegistry() *params.Registry {
	r := params.NewRegistry()
	r.Seed("momentum", map[string]float64{
		"rsi_lower":       45,
		"rsi_upper":       75,
		"macd_threshold":  0,
		"volume_ratio":    1.1,
		"stop_loss_pct":   0.03,
		"take_profit_pct": 0.08,
	})
	return r
}

func trade(rsi, pnlPct float64, daysAgo int) models.TradeRecord {
	now := time.Now().UTC()
	return models.TradeRecord{
		Symbol:        "AAPL",
		Strategy:      "momentum",
		EntryPrice:    100,
		ExitPrice:     100 * (1 + pnlPct),
		PnLPct:        pnlPct,
		RSI:           rsi,
		MACDHistogram: 0.5,
		VolumeRatio:   1.5,
		EnteredAt:     now.AddDate(0, 0, -daysAgo-1),
		ExitedAt:      now.AddDate(0, 0, -daysAgo),
	}
}

func TestGridValuesStayInsideBounds(t *testing.T) {
	o := New(&memStore{}, seededRegistry(), testOptimizerConfig())
	grid := o.buildGrid()
	require.NotEmpty(t, grid)

	bounds := testOptimizerConfig().Bounds
	for _, combo := range grid {
		for name, v := range combo.params {
			b := bounds[name]
			assert.GreaterOrEqual(t, v, b.Min, "%s below bound", name)
			assert.LessOrEqual(t, v, b.Max, "%s above bound", name)
		}
		assert.Less(t, combo.params["rsi_lower"], combo.params["rsi_upper"])
	}
	// 3^4 combinations; no lower/upper pair overlaps with these bounds
	assert.Len(t, grid, 81)
}

func TestGridSkipsInvertedRSIBands(t *testing.T) {
	cfg := testOptimizerConfig()
	cfg.Bounds["rsi_lower"] = config.Bounds{Min: 60, Max: 80, Steps: 3}
	cfg.Bounds["rsi_upper"] = config.Bounds{Min: 65, Max: 75, Steps: 3}
	o := New(&memStore{}, seededRegistry(), cfg)

	grid := o.buildGrid()
	require.NotEmpty(t, grid)
	for _, combo := range grid {
		assert.Less(t, combo.params["rsi_lower"], combo.params["rsi_upper"])
	}
	assert.Less(t, len(grid), 81, "inconsistent bands must be skipped")
}

func TestGridValuesEvenlySpaced(t *testing.T) {
	values := gridValues(config.Bounds{Min: 40, Max: 50, Steps: 3})
	assert.Equal(t, []float64{40, 45, 50}, values)

	single := gridValues(config.Bounds{Min: 1.1, Max: 1.1, Steps: 5})
	assert.Equal(t, []float64{1.1}, single)
}

func TestInsufficientTradesKeepsCurrentParameters(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 10; i++ {
		store.trades = append(store.trades, trade(60, 0.02, i%20))
	}
	registry := seededRegistry()
	o := New(store, registry, testOptimizerConfig())

	ps, err := o.Optimize(context.Background(), "momentum", 30)
	require.ErrorIs(t, err, models.ErrInsufficientData)
	assert.Nil(t, ps)
	assert.Equal(t, 1, registry.Active("momentum").Version, "active set must not change")

	require.Len(t, store.runs, 1, "every run is recorded, changed or not")
	assert.False(t, store.runs[0].Changed)
	assert.NotEmpty(t, store.runs[0].Reason)
}

func TestNoViableCombinationKeepsCurrentParameters(t *testing.T) {
	store := &memStore{}
	for i := 0; i < 25; i++ {
		// Volume ratio below every candidate threshold: no combo matches
		tr := trade(60, 0.02, i%20)
		tr.VolumeRatio = 0.5
		store.trades = append(store.trades, tr)
	}
	registry := seededRegistry()
	o := New(store, registry, testOptimizerConfig())

	ps, err := o.Optimize(context.Background(), "momentum", 30)
	require.ErrorIs(t, err, models.ErrInsufficientData)
	assert.Nil(t, ps)
	assert.Equal(t, 1, registry.Active("momentum").Version)
	require.Len(t, store.runs, 1)
	assert.False(t, store.runs[0].Changed)
}

func TestOptimizeSelectsBestSharpeWithinBounds(t *testing.T) {
	store := &memStore{}
	// Steady winners inside every candidate band
	for i := 0; i < 20; i++ {
		pnl := 0.01
		if i%2 == 0 {
			pnl = 0.03
		}
		store.trades = append(store.trades, trade(60, pnl, i%20))
	}
	// Heavy losers only at RSI 78: bands capped at 70 or 75 exclude them
	for i := 0; i < 10; i++ {
		pnl := -0.05
		if i%2 == 0 {
			pnl = -0.02
		}
		store.trades = append(store.trades, trade(78, pnl, i%20))
	}

	registry := seededRegistry()
	o := New(store, registry, testOptimizerConfig())

	ps, err := o.Optimize(context.Background(), "momentum", 30)
	require.NoError(t, err)
	require.NotNil(t, ps)

	assert.Equal(t, 2, ps.Version)
	assert.LessOrEqual(t, ps.Get("rsi_upper", 0), 75.0, "selected band must exclude the losing cohort")
	assert.Equal(t, 0.03, ps.Get("stop_loss_pct", 0), "tunables outside the grid carry over")
	assert.Equal(t, 0.08, ps.Get("take_profit_pct", 0))

	bounds := testOptimizerConfig().Bounds
	for name, b := range bounds {
		v := ps.Get(name, math.NaN())
		assert.GreaterOrEqual(t, v, b.Min)
		assert.LessOrEqual(t, v, b.Max)
	}

	require.Len(t, store.runs, 1)
	run := store.runs[0]
	assert.True(t, run.Changed)
	assert.Greater(t, run.Sharpe, 0.0)
	assert.Equal(t, 20, run.SampleSize)
	assert.Greater(t, run.TestedCombinations, 0)
}

func TestBetterPrefersHigherSharpeThenLargerSample(t *testing.T) {
	assert.True(t, better(&combination{sharpe: 1.0}, nil))

	a := &combination{sharpe: 1.0, sample: 10}
	b := &combination{sharpe: 1.5, sample: 5}
	assert.True(t, better(b, a))
	assert.False(t, better(a, b))

	// Within epsilon the larger sample wins; an exact tie keeps the incumbent
	c := &combination{sharpe: 1.0 + 1e-12, sample: 30}
	assert.True(t, better(c, a))
	assert.False(t, better(&combination{sharpe: 1.0, sample: 10}, a))
}

func TestFilterTradesReplaysEntryPredicate(t *testing.T) {
	trades := []models.TradeRecord{
		trade(60, 0.02, 1),
		trade(39, 0.02, 1), // below rsi_lower
		trade(78, 0.02, 1), // above rsi_upper
	}
	p := map[string]float64{
		"rsi_lower":      40,
		"rsi_upper":      75,
		"macd_threshold": 0,
		"volume_ratio":   1.0,
	}

	kept := filterTrades(trades, p)
	require.Len(t, kept, 1)
	assert.Equal(t, 60.0, kept[0].RSI)

	// Boundary: the RSI band is inclusive at replay
	kept = filterTrades([]models.TradeRecord{trade(40, 0.02, 1), trade(75, 0.02, 1)}, p)
	assert.Len(t, kept, 2)
}

func TestSharpeRatioAnnualized(t *testing.T) {
	trades := []models.TradeRecord{
		{PnLPct: 0.01}, {PnLPct: 0.03}, {PnLPct: 0.01}, {PnLPct: 0.03},
	}
	// mean 0.02, sample stddev ~0.011547, annualized by sqrt(252)
	expected := 0.02 * math.Sqrt(252) / 0.0115470054
	assert.InDelta(t, expected, sharpeRatio(trades), 1e-6)

	assert.Zero(t, sharpeRatio(nil))
	assert.Zero(t, sharpeRatio([]models.TradeRecord{{PnLPct: 0.02}}))
	assert.Zero(t, sharpeRatio([]models.TradeRecord{{PnLPct: 0.02}, {PnLPct: 0.02}}), "zero variance has no defined Sharpe")
}

func TestWinRate(t *testing.T) {
	trades := []models.TradeRecord{
		{PnLPct: 0.02}, {PnLPct: -0.01}, {PnLPct: 0.03}, {PnLPct: -0.02},
	}
	assert.Equal(t, 0.5, winRate(trades))
	assert.Zero(t, winRate(nil))
}
