package exits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/Trader/config"
	"github.com/Alias1177/Trader/models"
)

func testExitConfig() config.ExitConfig {
	return config.ExitConfig{
		StopLossPct:    0.03,
		TakeProfitPct:  0.08,
		OverboughtRSI:  75,
		MaxHoldingDays: 10,
		StaleGainPct:   0.02,
	}
}

func position(entry float64, openedDaysAgo int) models.Position {
	return models.Position{
		Symbol:        "AAPL",
		Qty:           100,
		AvgEntryPrice: entry,
		OpenedAt:      time.Now().UTC().AddDate(0, 0, -openedDaysAgo),
	}
}

func TestStopLossTriggers(t *testing.T) {
	e := New(testExitConfig())

	exit, reason := e.Evaluate(position(100, 2), 96.5, nil, nil, time.Now().UTC())
	require.True(t, exit)
	assert.Equal(t, models.ExitStopLoss, reason)
}

func TestStopLossBoundaryIsInclusive(t *testing.T) {
	e := New(testExitConfig())

	exit, reason := e.Evaluate(position(100, 2), 97, nil, nil, time.Now().UTC())
	require.True(t, exit, "a loss of exactly the stop percentage exits")
	assert.Equal(t, models.ExitStopLoss, reason)
}

func TestTakeProfitTriggers(t *testing.T) {
	e := New(testExitConfig())

	exit, reason := e.Evaluate(position(100, 2), 108, nil, nil, time.Now().UTC())
	require.True(t, exit)
	assert.Equal(t, models.ExitTakeProfit, reason)
}

func TestStopLossOutranksTechnical(t *testing.T) {
	e := New(testExitConfig())
	snap := &models.IndicatorSnapshot{RSI: 85, MACDHistogram: -0.5}

	exit, reason := e.Evaluate(position(100, 2), 95, snap, nil, time.Now().UTC())
	require.True(t, exit)
	assert.Equal(t, models.ExitStopLoss, reason, "priority is deterministic when several conditions fire")
}

func TestTechnicalExitOnOverboughtRSI(t *testing.T) {
	e := New(testExitConfig())
	snap := &models.IndicatorSnapshot{RSI: 80, MACDHistogram: 0.2}

	exit, reason := e.Evaluate(position(100, 2), 102, snap, nil, time.Now().UTC())
	require.True(t, exit)
	assert.Equal(t, models.ExitTechnical, reason)
}

func TestTechnicalExitOnNegativeMACDHistogram(t *testing.T) {
	e := New(testExitConfig())
	snap := &models.IndicatorSnapshot{RSI: 60, MACDHistogram: -0.1}

	exit, reason := e.Evaluate(position(100, 2), 102, snap, nil, time.Now().UTC())
	require.True(t, exit)
	assert.Equal(t, models.ExitTechnical, reason)
}

func TestTechnicalExitSkippedWithoutSnapshot(t *testing.T) {
	e := New(testExitConfig())

	exit, _ := e.Evaluate(position(100, 2), 102, nil, nil, time.Now().UTC())
	assert.False(t, exit, "indicator outage degrades to price-only checks")
}

func TestStalePositionExits(t *testing.T) {
	e := New(testExitConfig())

	exit, reason := e.Evaluate(position(100, 11), 101, nil, nil, time.Now().UTC())
	require.True(t, exit)
	assert.Equal(t, models.ExitStale, reason)
}

func TestStalePositionWithGainIsKept(t *testing.T) {
	e := New(testExitConfig())

	// Held past the limit but up 3% > stale gain threshold
	exit, _ := e.Evaluate(position(100, 11), 103, nil, nil, time.Now().UTC())
	assert.False(t, exit)
}

func TestHealthyPositionIsHeld(t *testing.T) {
	e := New(testExitConfig())
	snap := &models.IndicatorSnapshot{RSI: 60, MACDHistogram: 0.3}

	exit, reason := e.Evaluate(position(100, 2), 102, snap, nil, time.Now().UTC())
	assert.False(t, exit)
	assert.Empty(t, reason)
}

func TestParameterSetOverridesConfiguredLevels(t *testing.T) {
	e := New(testExitConfig())
	ps := &models.ParameterSet{Params: map[string]float64{
		"stop_loss_pct":   0.05,
		"take_profit_pct": 0.15,
	}}

	// Down 4%: inside the widened stop, so no exit
	exit, _ := e.Evaluate(position(100, 2), 96, nil, ps, time.Now().UTC())
	assert.False(t, exit)

	// Up 10%: below the raised target
	exit, _ = e.Evaluate(position(100, 2), 110, nil, ps, time.Now().UTC())
	assert.False(t, exit)

	// Down 5% hits the tuned stop
	exit, reason := e.Evaluate(position(100, 2), 95, nil, ps, time.Now().UTC())
	require.True(t, exit)
	assert.Equal(t, models.ExitStopLoss, reason)
}

func TestInvalidInputsAreHeld(t *testing.T) {
	e := New(testExitConfig())

	exit, _ := e.Evaluate(position(0, 2), 100, nil, nil, time.Now().UTC())
	assert.False(t, exit)

	exit, _ = e.Evaluate(position(100, 2), 0, nil, nil, time.Now().UTC())
	assert.False(t, exit)
}
