package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/Trader/internal/risk"
	"github.com/Alias1177/Trader/models"
)

// Paper is an in-memory broker and portfolio provider for dry runs. It
// fills orders instantly at the submitted reference price and tracks cash,
// positions and daily P&L. Production deployments swap in a real gateway
// behind the same interfaces.
type Paper struct {
	data models.MarketData

	mu          sync.Mutex
	cash        float64
	realizedPnL float64
	positions   map[string]models.Position
	nextOrderID int
	logger      zerolog.Logger
}

func NewPaper(startingCash float64, data models.MarketData) *Paper {
	return &Paper{
		data:      data,
		cash:      startingCash,
		positions: make(map[string]models.Position),
		logger:    log.With().Str("component", "paper_broker").Logger(),
	}
}

// SubmitOrder fills immediately at the latest quote
func (p *Paper) SubmitOrder(ctx context.Context, symbol string, qty float64, side models.OrderSide, stopLoss, takeProfit float64) (string, error) {
	price, err := p.data.GetLatestQuote(ctx, symbol)
	if err != nil {
		return "", fmt.Errorf("quote for fill: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cost := qty * price
	if side == models.SideBuy {
		if cost > p.cash {
			return "", fmt.Errorf("insufficient cash: need %.2f, have %.2f", cost, p.cash)
		}
		p.cash -= cost
		pos := p.positions[symbol]
		totalQty := pos.Qty + qty
		avg := price
		if pos.Qty > 0 {
			avg = (pos.AvgEntryPrice*pos.Qty + cost) / totalQty
		}
		p.positions[symbol] = models.Position{
			Symbol:        symbol,
			Qty:           totalQty,
			AvgEntryPrice: avg,
			CurrentPrice:  price,
			Sector:        risk.SectorOf(symbol),
			OpenedAt:      time.Now().UTC(),
		}
	} else {
		pos, ok := p.positions[symbol]
		if !ok || pos.Qty < qty {
			return "", fmt.Errorf("no position to sell for %s", symbol)
		}
		p.cash += cost
		p.realizedPnL += (price - pos.AvgEntryPrice) * qty
		pos.Qty -= qty
		if pos.Qty <= 0 {
			delete(p.positions, symbol)
		} else {
			p.positions[symbol] = pos
		}
	}

	p.nextOrderID++
	id := fmt.Sprintf("paper-%d", p.nextOrderID)
	p.logger.Info().
		Str("order_id", id).
		Str("symbol", symbol).
		Str("side", string(side)).
		Float64("qty", qty).
		Float64("price", price).
		Msg("Paper fill")
	return id, nil
}

// ClosePosition liquidates the full position at the latest quote
func (p *Paper) ClosePosition(ctx context.Context, symbol string) (bool, error) {
	p.mu.Lock()
	pos, ok := p.positions[symbol]
	p.mu.Unlock()
	if !ok {
		return false, nil
	}
	_, err := p.SubmitOrder(ctx, symbol, pos.Qty, models.SideSell, 0, 0)
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetPortfolio refreshes position marks and returns a snapshot
func (p *Paper) GetPortfolio(ctx context.Context) (models.PortfolioSnapshot, error) {
	positions, err := p.GetPositions(ctx)
	if err != nil {
		return models.PortfolioSnapshot{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	total := p.cash
	unrealized := 0.0
	for _, pos := range positions {
		total += pos.MarketValue()
		unrealized += (pos.CurrentPrice - pos.AvgEntryPrice) * pos.Qty
	}

	return models.PortfolioSnapshot{
		Cash:        p.cash,
		TotalValue:  total,
		BuyingPower: p.cash,
		DailyPnL:    p.realizedPnL + unrealized,
		Positions:   positions,
	}, nil
}

// GetPositions returns open positions marked at the latest quote. A quote
// failure keeps the previous mark rather than dropping the position.
func (p *Paper) GetPositions(ctx context.Context) ([]models.Position, error) {
	p.mu.Lock()
	symbols := make([]string, 0, len(p.positions))
	for s := range p.positions {
		symbols = append(symbols, s)
	}
	p.mu.Unlock()

	for _, symbol := range symbols {
		price, err := p.data.GetLatestQuote(ctx, symbol)
		if err != nil {
			p.logger.Warn().Err(err).Str("symbol", symbol).Msg("Stale mark kept")
			continue
		}
		p.mu.Lock()
		if pos, ok := p.positions[symbol]; ok {
			pos.CurrentPrice = price
			p.positions[symbol] = pos
		}
		p.mu.Unlock()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	return out, nil
}
