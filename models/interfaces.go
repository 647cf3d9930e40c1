package models

import (
	"context"
	"time"
)

// MarketData provides bar and quote access. Implementations are rate-limited
// and may fail per call; callers treat failures as per-symbol skips.
type MarketData interface {
	GetBars(ctx context.Context, symbol string, lookback int) ([]Bar, error)
	GetLatestQuote(ctx context.Context, symbol string) (float64, error)
}

// Broker is the execution gateway. It is only ever invoked with an
// already-approved RiskDecision.
type Broker interface {
	SubmitOrder(ctx context.Context, symbol string, qty float64, side OrderSide, stopLoss, takeProfit float64) (string, error)
	ClosePosition(ctx context.Context, symbol string) (bool, error)
}

// Store persists trade and optimization history. The decision core reads
// history for optimization and appends audit records; storage format is
// entirely the store's concern.
type Store interface {
	AppendTrade(ctx context.Context, trade TradeRecord) error
	QueryTrades(ctx context.Context, strategy string, since time.Time) ([]TradeRecord, error)
	AppendOptimizationRun(ctx context.Context, run OptimizationRun) error
}

// PortfolioProvider exposes current account state
type PortfolioProvider interface {
	GetPortfolio(ctx context.Context) (PortfolioSnapshot, error)
	GetPositions(ctx context.Context) ([]Position, error)
}
