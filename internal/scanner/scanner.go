package scanner

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/Trader/config"
	"github.com/Alias1177/Trader/internal/indicators"
	"github.com/Alias1177/Trader/models"
)

// macdScale maps a MACD histogram value onto [0,1] for confidence scoring
const macdScale = 0.5

// Scanner fans out over a watchlist and produces candidate entry signals.
// Per-symbol work runs concurrently, bounded by MaxConcurrent; the market
// data client applies the shared rate limiter underneath. A failure on one
// symbol is logged and skipped — a scan always returns partial results
// rather than failing as a whole.
type Scanner struct {
	data     models.MarketData
	cfg      config.ScannerConfig
	exits    config.ExitConfig
	strategy string
	logger   zerolog.Logger
}

func New(data models.MarketData, cfg config.ScannerConfig, exits config.ExitConfig, strategy string) *Scanner {
	return &Scanner{
		data:     data,
		cfg:      cfg,
		exits:    exits,
		strategy: strategy,
		logger:   log.With().Str("component", "scanner").Logger(),
	}
}

// scanResult carries one symbol's outcome back from a worker. Errors are
// values here, not control flow: the collector logs and moves on.
type scanResult struct {
	symbol string
	signal *models.Signal
	err    error
}

// Scan evaluates every watchlist symbol against the entry predicate under
// the given parameter set. Output ordering is unspecified; the risk gate
// imposes the deterministic ordering downstream.
func (s *Scanner) Scan(ctx context.Context, watchlist []string, ps *models.ParameterSet) []models.Signal {
	results := make(chan scanResult, len(watchlist))
	sem := make(chan struct{}, s.cfg.MaxConcurrent)

	var wg sync.WaitGroup
	for _, symbol := range watchlist {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			symCtx, cancel := context.WithTimeout(ctx, s.cfg.SymbolTimeout.D())
			defer cancel()

			sig, err := s.scanSymbol(symCtx, symbol, ps)
			results <- scanResult{symbol: symbol, signal: sig, err: err}
		}(symbol)
	}

	wg.Wait()
	close(results)

	var signals []models.Signal
	for res := range results {
		if res.err != nil {
			s.logger.Warn().Err(res.err).Str("symbol", res.symbol).Msg("Symbol skipped")
			continue
		}
		if res.signal != nil {
			signals = append(signals, *res.signal)
		}
	}

	s.logger.Info().
		Int("watchlist", len(watchlist)).
		Int("signals", len(signals)).
		Msg("Scan complete")
	return signals
}

// scanSymbol fetches bars, computes indicators and applies the entry
// predicate. A nil signal with nil error means the symbol simply did not
// qualify.
func (s *Scanner) scanSymbol(ctx context.Context, symbol string, ps *models.ParameterSet) (*models.Signal, error) {
	bars, err := s.data.GetBars(ctx, symbol, s.cfg.LookbackBars)
	if err != nil {
		return nil, err
	}

	snap := indicators.Calculate(bars, s.cfg.MinBars)
	if snap == nil {
		s.logger.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("Insufficient data for indicators")
		return nil, nil
	}

	rsiLower := ps.Get("rsi_lower", 45)
	rsiUpper := ps.Get("rsi_upper", 75)
	macdThreshold := ps.Get("macd_threshold", 0)
	minVolumeRatio := ps.Get("volume_ratio", 1.1)

	lastClose := bars[len(bars)-1].Close

	// Entry predicate: every condition must hold
	pass := snap.RSI > rsiLower && snap.RSI < rsiUpper &&
		snap.MACDHistogram > macdThreshold &&
		lastClose > snap.SMA50 &&
		snap.SMA20 > snap.SMA50 &&
		snap.VolumeRatio > minVolumeRatio

	if !pass {
		return nil, nil
	}

	confidence := confidenceScore(snap, rsiLower, rsiUpper, minVolumeRatio)

	stopLossPct := ps.Get("stop_loss_pct", s.exits.StopLossPct)
	takeProfitPct := ps.Get("take_profit_pct", s.exits.TakeProfitPct)

	sig := &models.Signal{
		Symbol:      symbol,
		Action:      models.ActionEnter,
		Strategy:    s.strategy,
		EntryPrice:  lastClose,
		StopLoss:    lastClose * (1 - stopLossPct),
		TakeProfit:  lastClose * (1 + takeProfitPct),
		Confidence:  confidence,
		Indicators:  snap,
		GeneratedAt: time.Now().UTC(),
	}

	s.logger.Info().
		Str("symbol", symbol).
		Float64("price", lastClose).
		Float64("rsi", snap.RSI).
		Float64("macd_histogram", snap.MACDHistogram).
		Float64("confidence", confidence).
		Msg("Entry signal")
	return sig, nil
}

// confidenceScore is a weighted combination of how far each metric clears
// its threshold, clamped to [0,1]. RSI scores highest at the center of the
// allowed band; MACD and volume scale with their margin over the threshold.
func confidenceScore(snap *models.IndicatorSnapshot, rsiLower, rsiUpper, minVolumeRatio float64) float64 {
	mid := (rsiLower + rsiUpper) / 2
	halfRange := (rsiUpper - rsiLower) / 2
	rsiScore := 0.0
	if halfRange > 0 {
		rsiScore = clamp01(1 - math.Abs(snap.RSI-mid)/halfRange)
	}

	macdScore := clamp01(snap.MACDHistogram / macdScale)

	volScore := 0.0
	if minVolumeRatio > 0 {
		volScore = clamp01((snap.VolumeRatio - minVolumeRatio) / minVolumeRatio)
	}

	return clamp01(0.4*rsiScore + 0.3*macdScore + 0.3*volScore)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
