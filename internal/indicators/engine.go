package indicators

import (
	"math"

	"github.com/Alias1177/Trader/models"
)

const (
	rsiPeriod        = 14
	macdFastPeriod   = 12
	macdSlowPeriod   = 26
	macdSignalPeriod = 9
	smaShortPeriod   = 20
	smaLongPeriod    = 50
	volumePeriod     = 20
)

// Calculate computes a full indicator snapshot from a bar window. It is a
// pure function: no state across calls, full recomputation from the supplied
// bars. Returns nil when len(bars) < minLength or when the rolling average
// volume is zero — never an error, never a partial snapshot.
func Calculate(bars []models.Bar, minLength int) *models.IndicatorSnapshot {
	if len(bars) < minLength {
		return nil
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	volumeRatio, ok := calculateVolumeRatio(bars, volumePeriod)
	if !ok {
		return nil
	}

	macdLine, macdSignal, macdHist := calculateMACD(closes, macdFastPeriod, macdSlowPeriod, macdSignalPeriod)

	last := bars[len(bars)-1]
	return &models.IndicatorSnapshot{
		Symbol:        last.Symbol,
		AsOf:          last.Timestamp,
		RSI:           calculateRSI(closes, rsiPeriod),
		MACDLine:      macdLine,
		MACDSignal:    macdSignal,
		MACDHistogram: macdHist,
		SMA20:         calculateSMA(closes, smaShortPeriod),
		SMA50:         calculateSMA(closes, smaLongPeriod),
		VolumeRatio:   volumeRatio,
	}
}

// calculateRSI uses Wilder smoothing. When the average loss is zero, RSI is
// 100 by definition; the result is clamped to [0,100].
func calculateRSI(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50.0
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain = (avgGain*float64(period-1) + change) / float64(period)
			avgLoss = (avgLoss * float64(period-1)) / float64(period)
		} else {
			avgGain = (avgGain * float64(period-1)) / float64(period)
			avgLoss = (avgLoss*float64(period-1) - change) / float64(period)
		}
	}

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	rsi := 100.0 - (100.0 / (1.0 + rs))
	return math.Max(0, math.Min(100, rsi))
}

// calculateMACD returns (macd line, signal line, histogram).
// MACD = EMA(fast) − EMA(slow); signal = EMA(signalPeriod) of the MACD
// series; histogram = MACD − signal.
func calculateMACD(closes []float64, fast, slow, signalPeriod int) (float64, float64, float64) {
	if len(closes) < slow+signalPeriod {
		return 0, 0, 0
	}

	macdLine := calculateEMA(closes, fast) - calculateEMA(closes, slow)

	// Build the MACD history so the signal line is an EMA over it
	macdHistory := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		window := closes[:i+1]
		macdHistory = append(macdHistory, calculateEMA(window, fast)-calculateEMA(window, slow))
	}

	signalLine := 0.0
	if len(macdHistory) >= signalPeriod {
		signalLine = calculateEMA(macdHistory, signalPeriod)
	}

	return macdLine, signalLine, macdLine - signalLine
}

// calculateEMA seeds with the SMA of the first period values, then applies
// the standard 2/(period+1) weighting
func calculateEMA(values []float64, period int) float64 {
	if len(values) < period {
		return values[len(values)-1]
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
	}
	return ema
}

func calculateSMA(values []float64, period int) float64 {
	if len(values) < period {
		period = len(values)
	}
	if period == 0 {
		return 0
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// calculateVolumeRatio divides the latest volume by the rolling average over
// period bars. A zero average means the ratio is undefined, reported as !ok.
func calculateVolumeRatio(bars []models.Bar, period int) (float64, bool) {
	if len(bars) < period {
		period = len(bars)
	}
	var sum float64
	for _, b := range bars[len(bars)-period:] {
		sum += float64(b.Volume)
	}
	avg := sum / float64(period)
	if avg == 0 {
		return 0, false
	}
	return float64(bars[len(bars)-1].Volume) / avg, true
}
