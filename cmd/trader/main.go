package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/Trader/config"
	"github.com/Alias1177/Trader/internal/broker"
	"github.com/Alias1177/Trader/internal/database"
	"github.com/Alias1177/Trader/internal/engine"
	"github.com/Alias1177/Trader/internal/exits"
	"github.com/Alias1177/Trader/internal/marketdata"
	"github.com/Alias1177/Trader/internal/optimizer"
	"github.com/Alias1177/Trader/internal/params"
	"github.com/Alias1177/Trader/internal/ratelimit"
	"github.com/Alias1177/Trader/internal/risk"
	"github.com/Alias1177/Trader/internal/scanner"
	"github.com/Alias1177/Trader/models"
)

const startingPaperCash = 100_000

func init() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}
}

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		// Configuration errors are fatal: refuse to start
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	lvl, _ := zerolog.ParseLevel(cfg.LogLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl)

	// Named rate limiters, constructed once and injected
	limiters := ratelimit.NewRegistry()
	for name, rl := range cfg.RateLimits {
		if _, err := limiters.Register(name, rl.MaxCalls, rl.Period.D()); err != nil {
			log.Fatal().Err(err).Msg("Invalid rate limit configuration")
		}
	}
	mdLimiter, err := limiters.Get("market-data")
	if err != nil {
		log.Fatal().Err(err).Msg("Missing market-data rate limiter")
	}

	data := marketdata.NewClient(cfg.MarketData, mdLimiter)

	store, err := database.New(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to history database")
	}
	defer store.Close()

	registry := params.NewRegistry()
	registry.Seed(cfg.Strategy, map[string]float64{
		"rsi_lower":       45,
		"rsi_upper":       75,
		"macd_threshold":  0,
		"volume_ratio":    1.1,
		"stop_loss_pct":   cfg.Exits.StopLossPct,
		"take_profit_pct": cfg.Exits.TakeProfitPct,
	})

	paper := broker.NewPaper(startingPaperCash, data)

	sc := scanner.New(data, cfg.Scanner, cfg.Exits, cfg.Strategy)
	corrGate := risk.NewCorrelationGate(data, cfg.Risk)
	sizer := risk.NewSizer(cfg.Risk)
	gate := risk.NewGate(corrGate, sizer, cfg.Risk, models.SizingFixedFraction)
	evaluator := exits.New(cfg.Exits)
	opt := optimizer.New(store, registry, cfg.Optimizer)

	eng := engine.New(sc, gate, evaluator, data, paper, paper, store, registry, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("strategy", cfg.Strategy).
		Int("watchlist", len(cfg.Watchlist)).
		Dur("cycle_interval", cfg.CycleInterval.D()).
		Msg("Trader started")

	cycleTicker := time.NewTicker(cfg.CycleInterval.D())
	defer cycleTicker.Stop()
	optimizeTicker := time.NewTicker(cfg.OptimizeInterval.D())
	defer optimizeTicker.Stop()

	runCycle(ctx, eng)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down")
			return
		case <-cycleTicker.C:
			runCycle(ctx, eng)
		case <-optimizeTicker.C:
			runOptimization(ctx, opt, cfg)
		}
	}
}

func runCycle(ctx context.Context, eng *engine.Engine) {
	result, err := eng.RunCycle(ctx)
	switch {
	case errors.Is(err, models.ErrCircuitBreakerTripped):
		log.Error().Msg("Trading halted for the day by circuit breaker")
	case err != nil:
		log.Error().Err(err).Msg("Cycle failed")
	default:
		log.Info().
			Int("signals", result.Signals).
			Int("orders", result.OrdersSubmitted).
			Int("closed", result.PositionsClosed).
			Msg("Cycle finished")
	}
}

func runOptimization(ctx context.Context, opt *optimizer.Optimizer, cfg *config.Config) {
	ps, err := opt.Optimize(ctx, cfg.Strategy, cfg.Optimizer.LookbackDays)
	switch {
	case errors.Is(err, models.ErrInsufficientData):
		log.Info().Msg("Optimizer: not enough history, parameters unchanged")
	case err != nil:
		log.Error().Err(err).Msg("Optimization failed")
	default:
		log.Info().Int("version", ps.Version).Msg("Optimizer activated new parameters")
	}
}
