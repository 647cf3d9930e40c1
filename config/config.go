package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Alias1177/Trader/models"
)

// Duration wraps time.Duration so YAML accepts values like "5m" or "30s"
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration: %s", value.Value)
	}
	*d = Duration(n)
	return nil
}

func (d Duration) D() time.Duration { return time.Duration(d) }

// Config holds all static configuration. It is immutable for the lifetime of
// the process; only the active ParameterSet changes at runtime, and only via
// the optimizer's atomic swap.
type Config struct {
	LogLevel  string   `yaml:"log_level"`
	Strategy  string   `yaml:"strategy"`
	Watchlist []string `yaml:"watchlist"`

	// CycleInterval paces trading cycles; OptimizeInterval paces the much
	// slower parameter re-tuning cadence.
	CycleInterval    Duration `yaml:"cycle_interval"`
	OptimizeInterval Duration `yaml:"optimize_interval"`

	Risk       RiskConfig           `yaml:"risk"`
	Exits      ExitConfig           `yaml:"exits"`
	Scanner    ScannerConfig        `yaml:"scanner"`
	Optimizer  OptimizerConfig      `yaml:"optimizer"`
	RateLimits map[string]RateLimit `yaml:"rate_limits"`
	MarketData MarketDataConfig     `yaml:"market_data"`
	Database   DatabaseConfig       `yaml:"database"`
}

type RiskConfig struct {
	MaxPositions            int     `yaml:"max_positions"`
	MaxPositionSizePct      float64 `yaml:"max_position_size_pct"`
	MaxSectorAllocation     float64 `yaml:"max_sector_allocation"`
	MaxCorrelation          float64 `yaml:"max_correlation"`
	MaxCorrelatedPositions  int     `yaml:"max_correlated_positions"`
	DailyLossLimitPct       float64 `yaml:"daily_loss_limit_pct"`
	MinTradeAmount          float64 `yaml:"min_trade_amount"`
	CorrelationLookbackDays int     `yaml:"correlation_lookback_days"`
}

type ExitConfig struct {
	StopLossPct    float64 `yaml:"stop_loss_pct"`
	TakeProfitPct  float64 `yaml:"take_profit_pct"`
	OverboughtRSI  float64 `yaml:"overbought_rsi"`
	MaxHoldingDays int     `yaml:"max_holding_days"`
	StaleGainPct   float64 `yaml:"stale_gain_pct"`
}

type ScannerConfig struct {
	MinBars       int      `yaml:"min_bars"`
	LookbackBars  int      `yaml:"lookback_bars"`
	MaxConcurrent int      `yaml:"max_concurrent"`
	SymbolTimeout Duration `yaml:"symbol_timeout"`
}

// RateLimit configures one named external resource limiter
type RateLimit struct {
	MaxCalls int      `yaml:"max_calls"`
	Period   Duration `yaml:"period"`
}

// Bounds is the declared safe range for one tunable parameter. The optimizer
// only ever generates grid candidates inside [Min, Max].
type Bounds struct {
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	Steps int     `yaml:"steps"`
}

type OptimizerConfig struct {
	LookbackDays      int               `yaml:"lookback_days"`
	MinTrades         int               `yaml:"min_trades"`
	MinTradesPerCombo int               `yaml:"min_trades_per_combo"`
	Bounds            map[string]Bounds `yaml:"bounds"`
}

type MarketDataConfig struct {
	APIKey         string   `yaml:"api_key"`
	BaseURL        string   `yaml:"base_url"`
	RequestTimeout Duration `yaml:"request_timeout"`
	MaxRetries     int      `yaml:"max_retries"`
	RetryTimeout   Duration `yaml:"retry_timeout"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// Default returns the canonical configuration. Every risk limit is
// overridable via YAML; nothing is hard-coded in the decision components.
func Default() *Config {
	return &Config{
		LogLevel:         "info",
		Strategy:         "momentum",
		CycleInterval:    Duration(5 * time.Minute),
		OptimizeInterval: Duration(24 * time.Hour),
		Watchlist: []string{
			"AAPL", "MSFT", "NVDA", "GOOGL", "META",
			"TSLA", "AMD", "NFLX", "AVGO",
			"JPM", "BAC",
			"XOM", "CVX",
			"LLY", "JNJ",
		},
		Risk: RiskConfig{
			MaxPositions:            5,
			MaxPositionSizePct:      0.10,
			MaxSectorAllocation:     0.40,
			MaxCorrelation:          0.7,
			MaxCorrelatedPositions:  2,
			DailyLossLimitPct:       0.03,
			MinTradeAmount:          100,
			CorrelationLookbackDays: 90,
		},
		Exits: ExitConfig{
			StopLossPct:    0.03,
			TakeProfitPct:  0.08,
			OverboughtRSI:  75,
			MaxHoldingDays: 10,
			StaleGainPct:   0.02,
		},
		Scanner: ScannerConfig{
			MinBars:       50,
			LookbackBars:  90,
			MaxConcurrent: 4,
			SymbolTimeout: Duration(15 * time.Second),
		},
		Optimizer: OptimizerConfig{
			LookbackDays:      30,
			MinTrades:         20,
			MinTradesPerCombo: 5,
			Bounds: map[string]Bounds{
				"rsi_lower":      {Min: 40, Max: 50, Steps: 3},
				"rsi_upper":      {Min: 70, Max: 80, Steps: 3},
				"macd_threshold": {Min: -0.1, Max: 0.1, Steps: 3},
				"volume_ratio":   {Min: 1.0, Max: 1.2, Steps: 3},
			},
		},
		RateLimits: map[string]RateLimit{
			"market-data": {MaxCalls: 5, Period: Duration(time.Second)},
			"broker":      {MaxCalls: 10, Period: Duration(time.Second)},
		},
		MarketData: MarketDataConfig{
			BaseURL:        "https://api.twelvedata.com",
			RequestTimeout: Duration(30 * time.Second),
			MaxRetries:     3,
			RetryTimeout:   Duration(30 * time.Second),
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			SSLMode: "disable",
		},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides for secrets. A validation failure is fatal: the process must not
// start with inconsistent limits.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MARKET_DATA_API_KEY"); v != "" {
		c.MarketData.APIKey = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		c.Database.Port = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.DBName = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks limit consistency. Any violation is a ConfigError and the
// caller must treat it as fatal.
func (c *Config) Validate() error {
	if c.Risk.MaxPositions <= 0 {
		return &models.ConfigError{Field: "risk.max_positions", Reason: "must be positive"}
	}
	if c.Risk.MaxPositionSizePct <= 0 || c.Risk.MaxPositionSizePct > 1 {
		return &models.ConfigError{Field: "risk.max_position_size_pct", Reason: "must be in (0,1]"}
	}
	if c.Risk.MaxSectorAllocation <= 0 || c.Risk.MaxSectorAllocation > 1 {
		return &models.ConfigError{Field: "risk.max_sector_allocation", Reason: "must be in (0,1]"}
	}
	if c.Risk.MaxCorrelation <= 0 || c.Risk.MaxCorrelation > 1 {
		return &models.ConfigError{Field: "risk.max_correlation", Reason: "must be in (0,1]"}
	}
	if c.Risk.DailyLossLimitPct <= 0 {
		return &models.ConfigError{Field: "risk.daily_loss_limit_pct", Reason: "must be positive"}
	}
	if c.Exits.StopLossPct <= 0 || c.Exits.TakeProfitPct <= 0 {
		return &models.ConfigError{Field: "exits", Reason: "stop_loss_pct and take_profit_pct must be positive"}
	}
	if len(c.Watchlist) == 0 {
		return &models.ConfigError{Field: "watchlist", Reason: "must not be empty"}
	}
	if c.Scanner.MaxConcurrent <= 0 {
		return &models.ConfigError{Field: "scanner.max_concurrent", Reason: "must be positive"}
	}
	for name, rl := range c.RateLimits {
		if rl.MaxCalls <= 0 {
			return &models.ConfigError{Field: "rate_limits." + name + ".max_calls", Reason: "must be positive"}
		}
		if rl.Period <= 0 {
			return &models.ConfigError{Field: "rate_limits." + name + ".period", Reason: "must be positive"}
		}
	}
	for name, b := range c.Optimizer.Bounds {
		if b.Min > b.Max {
			return &models.ConfigError{Field: "optimizer.bounds." + name, Reason: "min must not exceed max"}
		}
		if b.Steps <= 0 {
			return &models.ConfigError{Field: "optimizer.bounds." + name, Reason: "steps must be positive"}
		}
	}
	if c.Optimizer.MinTrades <= 0 {
		return &models.ConfigError{Field: "optimizer.min_trades", Reason: "must be positive"}
	}
	return nil
}
