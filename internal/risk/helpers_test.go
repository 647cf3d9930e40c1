package risk

import (
	"context"
	"time"

	"github.com/Alias1177/Trader/config"
	"github.com/Alias1177/Trader/models"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxPositions:            5,
		MaxPositionSizePct:      0.10,
		MaxSectorAllocation:     0.40,
		MaxCorrelation:          0.7,
		MaxCorrelatedPositions:  2,
		DailyLossLimitPct:       0.03,
		MinTradeAmount:          100,
		CorrelationLookbackDays: 90,
	}
}

// fakeData serves canned bar histories; symbols without an entry fail with
// the given error
type fakeData struct {
	bars   map[string][]models.Bar
	quotes map[string]float64
	err    error
}

func (f *fakeData) GetBars(_ context.Context, symbol string, _ int) ([]models.Bar, error) {
	if b, ok := f.bars[symbol]; ok {
		return b, nil
	}
	if f.err != nil {
		return nil, f.err
	}
	return nil, models.ErrDataUnavailable
}

func (f *fakeData) GetLatestQuote(_ context.Context, symbol string) (float64, error) {
	if q, ok := f.quotes[symbol]; ok {
		return q, nil
	}
	return 0, models.ErrDataUnavailable
}

// sineBars produces a price series with enough variance for return
// correlations; phase-identical series correlate perfectly
func sineBars(symbol string, n int, phase float64) []models.Bar {
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	price := 100.0
	for i := 0; i < n; i++ {
		if (i+int(phase))%2 == 0 {
			price += 1.5
		} else {
			price -= 1.0
		}
		bars[i] = models.Bar{
			Symbol:    symbol,
			Timestamp: start.AddDate(0, 0, i),
			Close:     price,
			Volume:    1_000_000,
		}
	}
	return bars
}

func entrySignal(symbol string, price, confidence float64) models.Signal {
	return models.Signal{
		Symbol:      symbol,
		Action:      models.ActionEnter,
		Strategy:    "momentum",
		EntryPrice:  price,
		StopLoss:    price * 0.97,
		TakeProfit:  price * 1.08,
		Confidence:  confidence,
		GeneratedAt: time.Now().UTC(),
	}
}

func openPosition(symbol string, qty, entry, current float64) models.Position {
	return models.Position{
		Symbol:        symbol,
		Qty:           qty,
		AvgEntryPrice: entry,
		CurrentPrice:  current,
		OpenedAt:      time.Now().UTC().AddDate(0, 0, -2),
	}
}
