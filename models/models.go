package models

import (
	"time"
)

// Bar represents a single OHLCV bar for a symbol
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// IndicatorSnapshot holds all indicator values computed from one bar window.
// It is derived data: recomputed each cycle, never persisted.
type IndicatorSnapshot struct {
	Symbol        string    `json:"symbol"`
	AsOf          time.Time `json:"asof"`
	RSI           float64   `json:"rsi"`
	MACDLine      float64   `json:"macd_line"`
	MACDSignal    float64   `json:"macd_signal"`
	MACDHistogram float64   `json:"macd_histogram"`
	SMA20         float64   `json:"sma20"`
	SMA50         float64   `json:"sma50"`
	VolumeRatio   float64   `json:"volume_ratio"`
}

// SignalAction is the direction of a trading signal
type SignalAction string

const (
	ActionEnter SignalAction = "ENTER"
	ActionExit  SignalAction = "EXIT"
)

// Signal is a candidate trade produced by the scanner. It is terminated by
// the risk gate: either approved and handed to execution, or rejected.
type Signal struct {
	Symbol      string             `json:"symbol"`
	Action      SignalAction       `json:"action"`
	Strategy    string             `json:"strategy"`
	EntryPrice  float64            `json:"entry_price"`
	StopLoss    float64            `json:"stop_loss"`
	TakeProfit  float64            `json:"take_profit"`
	Confidence  float64            `json:"confidence"` // [0,1]
	Indicators  *IndicatorSnapshot `json:"indicators,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`

	// TargetValue and CurrentValue are set only on rebalancing signals;
	// the sizer trades the dollar gap between them.
	TargetValue  float64 `json:"target_value,omitempty"`
	CurrentValue float64 `json:"current_value,omitempty"`
}

// Position is one open holding in the portfolio
type Position struct {
	Symbol        string    `json:"symbol"`
	Qty           float64   `json:"qty"`
	AvgEntryPrice float64   `json:"avg_entry_price"`
	CurrentPrice  float64   `json:"current_price"`
	Sector        string    `json:"sector"`
	OpenedAt      time.Time `json:"opened_at"`
}

// MarketValue returns the current notional value of the position
func (p Position) MarketValue() float64 {
	return p.Qty * p.CurrentPrice
}

// PnLPct returns the unrealized return relative to the entry price
func (p Position) PnLPct() float64 {
	if p.AvgEntryPrice == 0 {
		return 0
	}
	return (p.CurrentPrice - p.AvgEntryPrice) / p.AvgEntryPrice
}

// PortfolioSnapshot is a read-only view of account state.
// Invariant: TotalValue ≈ Cash + Σ position market values.
type PortfolioSnapshot struct {
	Cash        float64 `json:"cash"`
	TotalValue  float64 `json:"total_value"`
	BuyingPower float64 `json:"buying_power"`
	// DailyPnL is today's realized plus unrealized P&L as reported by the
	// portfolio provider; the circuit breaker reads it.
	DailyPnL  float64    `json:"daily_pnl"`
	Positions []Position `json:"positions"`
}

// RejectionReason is a machine-readable reason attached to every rejected signal
type RejectionReason string

const (
	RejectCircuitBreaker    RejectionReason = "CIRCUIT_BREAKER"
	RejectMaxPositions      RejectionReason = "MAX_POSITIONS"
	RejectSectorLimit       RejectionReason = "SECTOR_CONCENTRATION"
	RejectCorrelationLimit  RejectionReason = "CORRELATION_LIMIT"
	RejectSlotsExhausted    RejectionReason = "POSITION_SLOTS_EXHAUSTED"
	RejectInvalidSignal     RejectionReason = "INVALID_SIGNAL"
	RejectBelowMinimumTrade RejectionReason = "BELOW_MINIMUM_TRADE"
)

// RiskDecision is the terminal outcome for one candidate signal.
// The risk gate emits exactly one decision per submitted candidate.
type RiskDecision struct {
	Signal           Signal          `json:"signal"`
	Approved         bool            `json:"approved"`
	AdjustedQuantity float64         `json:"adjusted_quantity"`
	RejectionReason  RejectionReason `json:"rejection_reason,omitempty"`
}

// SizingMode selects the position sizing algorithm
type SizingMode int

const (
	SizingFixedFraction SizingMode = iota
	SizingRebalance
	// SizingKelly scales the fixed fraction by a half-Kelly estimate
	// derived from signal confidence and the trade's risk/reward ratio.
	SizingKelly
)

func (m SizingMode) String() string {
	switch m {
	case SizingFixedFraction:
		return "fixed_fraction"
	case SizingRebalance:
		return "rebalance"
	case SizingKelly:
		return "kelly"
	}
	return "unknown"
}

// ExitReason explains why a position should be closed
type ExitReason string

const (
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitTechnical  ExitReason = "TECHNICAL"
	ExitStale      ExitReason = "STALE"
)

// ParameterSet is one immutable version of a strategy's tunable parameters.
// Updates create a new version; the active version is swapped atomically.
type ParameterSet struct {
	Strategy  string             `json:"strategy"`
	Version   int                `json:"version"`
	Params    map[string]float64 `json:"params"`
	ValidFrom time.Time          `json:"valid_from"`
}

// Get returns a named parameter, falling back to def when absent
func (ps *ParameterSet) Get(name string, def float64) float64 {
	if ps == nil {
		return def
	}
	if v, ok := ps.Params[name]; ok {
		return v
	}
	return def
}

// OptimizationRun is an append-only audit record of one optimizer execution
type OptimizationRun struct {
	Strategy           string             `json:"strategy"`
	LookbackDays       int                `json:"lookback_days"`
	TestedCombinations int                `json:"tested_combinations"`
	SelectedParams     map[string]float64 `json:"selected_params,omitempty"`
	Sharpe             float64            `json:"sharpe"`
	WinRate            float64            `json:"win_rate"`
	SampleSize         int                `json:"sample_size"`
	Changed            bool               `json:"changed"`
	Reason             string             `json:"reason"`
	Timestamp          time.Time          `json:"timestamp"`
}

// TradeRecord is one closed historical trade with the indicator values
// observed at entry. The optimizer replays entry predicates against these.
type TradeRecord struct {
	Symbol        string    `json:"symbol"`
	Strategy      string    `json:"strategy"`
	EntryPrice    float64   `json:"entry_price"`
	ExitPrice     float64   `json:"exit_price"`
	PnLPct        float64   `json:"pnl_pct"`
	RSI           float64   `json:"rsi"`
	MACDHistogram float64   `json:"macd_histogram"`
	VolumeRatio   float64   `json:"volume_ratio"`
	EnteredAt     time.Time `json:"entered_at"`
	ExitedAt      time.Time `json:"exited_at"`
}

// OrderSide is the direction of a submitted order
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)
