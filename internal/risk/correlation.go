package risk

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/Trader/config"
	"github.com/Alias1177/Trader/models"
)

// priceCacheTTL amortizes rate-limited history fetches across a trading day
const priceCacheTTL = 24 * time.Hour

// minReturnSamples is the minimum number of overlapping daily returns for a
// correlation to be meaningful
const minReturnSamples = 30

// CorrelationGate rejects candidates that would over-concentrate the
// portfolio, either in one sector or through highly correlated holdings.
type CorrelationGate struct {
	data   models.MarketData
	cfg    config.RiskConfig
	cache  *priceCache
	logger zerolog.Logger
}

func NewCorrelationGate(data models.MarketData, cfg config.RiskConfig) *CorrelationGate {
	return &CorrelationGate{
		data:   data,
		cfg:    cfg,
		cache:  newPriceCache(priceCacheTTL),
		logger: log.With().Str("component", "correlation_gate").Logger(),
	}
}

// Check evaluates sector concentration first, then pairwise correlation.
// candidateNotional is the intended dollar size of the new position. The
// sector boundary is inclusive: exactly at the limit is accepted, strictly
// over is rejected. A missing comparison history is skipped with a warning,
// never a hard failure.
func (g *CorrelationGate) Check(
	ctx context.Context,
	candidate models.Signal,
	portfolio models.PortfolioSnapshot,
	candidateNotional float64,
) (bool, models.RejectionReason) {
	if ok := g.checkSector(candidate, portfolio, candidateNotional); !ok {
		return false, models.RejectSectorLimit
	}
	if ok := g.checkCorrelation(ctx, candidate, portfolio.Positions); !ok {
		return false, models.RejectCorrelationLimit
	}
	return true, ""
}

func (g *CorrelationGate) checkSector(
	candidate models.Signal,
	portfolio models.PortfolioSnapshot,
	candidateNotional float64,
) bool {
	if portfolio.TotalValue <= 0 {
		return true
	}

	sector := SectorOf(candidate.Symbol)
	exposure := 0.0
	for _, pos := range portfolio.Positions {
		if positionSector(pos.Symbol, pos.Sector) == sector {
			exposure += pos.MarketValue()
		}
	}

	allocation := (exposure + candidateNotional) / portfolio.TotalValue
	if allocation > g.cfg.MaxSectorAllocation {
		g.logger.Info().
			Str("symbol", candidate.Symbol).
			Str("sector", sector).
			Float64("allocation", allocation).
			Float64("limit", g.cfg.MaxSectorAllocation).
			Msg("Sector concentration limit")
		return false
	}
	return true
}

func (g *CorrelationGate) checkCorrelation(
	ctx context.Context,
	candidate models.Signal,
	positions []models.Position,
) bool {
	if len(positions) == 0 {
		return true
	}

	candReturns, err := g.dailyReturns(ctx, candidate.Symbol)
	if err != nil || len(candReturns) < minReturnSamples {
		g.logger.Warn().
			Err(err).
			Str("symbol", candidate.Symbol).
			Msg("Insufficient price history, skipping correlation check")
		return true
	}

	correlated := 0
	for _, pos := range positions {
		held, err := g.dailyReturns(ctx, pos.Symbol)
		if err != nil || len(held) < minReturnSamples {
			g.logger.Warn().
				Err(err).
				Str("symbol", pos.Symbol).
				Msg("Missing comparison history, symbol skipped")
			continue
		}

		corr := pearson(candReturns, held)
		if math.Abs(corr) > g.cfg.MaxCorrelation {
			correlated++
			g.logger.Debug().
				Str("candidate", candidate.Symbol).
				Str("held", pos.Symbol).
				Float64("correlation", corr).
				Msg("Highly correlated holding")
		}
		if correlated >= g.cfg.MaxCorrelatedPositions {
			g.logger.Info().
				Str("symbol", candidate.Symbol).
				Int("correlated", correlated).
				Msg("Correlation limit")
			return false
		}
	}
	return true
}

// dailyReturns fetches (or reads from cache) the trailing close history and
// converts it to simple daily returns
func (g *CorrelationGate) dailyReturns(ctx context.Context, symbol string) ([]float64, error) {
	if returns, ok := g.cache.get(symbol); ok {
		return returns, nil
	}

	bars, err := g.data.GetBars(ctx, symbol, g.cfg.CorrelationLookbackDays)
	if err != nil {
		return nil, err
	}

	returns := make([]float64, 0, len(bars))
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, (bars[i].Close-prev)/prev)
	}

	g.cache.set(symbol, returns)
	return returns, nil
}

// pearson computes the correlation coefficient over the overlapping tail of
// two return series
func pearson(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	a = a[len(a)-n:]
	b = b[len(b)-n:]

	var meanA, meanB float64
	for i := 0; i < n; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	var num, varA, varB float64
	for i := 0; i < n; i++ {
		x := a[i] - meanA
		y := b[i] - meanB
		num += x * y
		varA += x * x
		varB += y * y
	}

	den := math.Sqrt(varA * varB)
	if den == 0 {
		return 0
	}
	return num / den
}

// priceCache is a per-symbol TTL cache of daily return series
type priceCache struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]cacheEntry
}

type cacheEntry struct {
	returns []float64
	exp     time.Time
}

func newPriceCache(ttl time.Duration) *priceCache {
	return &priceCache{ttl: ttl, m: make(map[string]cacheEntry)}
}

func (c *priceCache) get(symbol string) ([]float64, bool) {
	c.mu.RLock()
	e, ok := c.m[symbol]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.exp) {
		return nil, false
	}
	return e.returns, true
}

func (c *priceCache) set(symbol string, returns []float64) {
	c.mu.Lock()
	c.m[symbol] = cacheEntry{returns: returns, exp: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}
