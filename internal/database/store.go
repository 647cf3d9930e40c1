package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Alias1177/Trader/config"
	"github.com/Alias1177/Trader/models"
)

// Store is a PostgreSQL-backed implementation of models.Store. The decision
// core only appends and queries; schema and format live here.
type Store struct {
	db *sql.DB
}

// New opens a connection and ensures the schema exists
func New(cfg config.DatabaseConfig) (*Store, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id SERIAL PRIMARY KEY,
			symbol TEXT NOT NULL,
			strategy TEXT NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL,
			pnl_pct DOUBLE PRECISION NOT NULL,
			rsi DOUBLE PRECISION NOT NULL,
			macd_histogram DOUBLE PRECISION NOT NULL,
			volume_ratio DOUBLE PRECISION NOT NULL,
			entered_at TIMESTAMPTZ NOT NULL,
			exited_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating trades table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS optimization_runs (
			id SERIAL PRIMARY KEY,
			strategy TEXT NOT NULL,
			lookback_days INTEGER NOT NULL,
			tested_combinations INTEGER NOT NULL,
			selected_params JSONB,
			sharpe DOUBLE PRECISION NOT NULL,
			win_rate DOUBLE PRECISION NOT NULL,
			sample_size INTEGER NOT NULL,
			changed BOOLEAN NOT NULL,
			reason TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating optimization_runs table: %w", err)
	}
	return nil
}

// AppendTrade records one closed trade with its entry indicator values
func (s *Store) AppendTrade(ctx context.Context, t models.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(symbol, strategy, entry_price, exit_price, pnl_pct,
			 rsi, macd_histogram, volume_ratio, entered_at, exited_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.Symbol, t.Strategy, t.EntryPrice, t.ExitPrice, t.PnLPct,
		t.RSI, t.MACDHistogram, t.VolumeRatio, t.EnteredAt, t.ExitedAt,
	)
	if err != nil {
		return fmt.Errorf("appending trade: %w", err)
	}
	return nil
}

// QueryTrades returns trades for one strategy entered at or after since,
// newest first
func (s *Store) QueryTrades(ctx context.Context, strategy string, since time.Time) ([]models.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, strategy, entry_price, exit_price, pnl_pct,
		       rsi, macd_histogram, volume_ratio, entered_at, exited_at
		FROM trades
		WHERE strategy = $1 AND entered_at >= $2
		ORDER BY entered_at DESC`,
		strategy, since,
	)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer rows.Close()

	var trades []models.TradeRecord
	for rows.Next() {
		var t models.TradeRecord
		if err := rows.Scan(
			&t.Symbol, &t.Strategy, &t.EntryPrice, &t.ExitPrice, &t.PnLPct,
			&t.RSI, &t.MACDHistogram, &t.VolumeRatio, &t.EnteredAt, &t.ExitedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning trade row: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// AppendOptimizationRun stores one immutable optimizer audit record
func (s *Store) AppendOptimizationRun(ctx context.Context, run models.OptimizationRun) error {
	var selected []byte
	if run.SelectedParams != nil {
		var err error
		selected, err = json.Marshal(run.SelectedParams)
		if err != nil {
			return fmt.Errorf("encoding selected params: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO optimization_runs
			(strategy, lookback_days, tested_combinations, selected_params,
			 sharpe, win_rate, sample_size, changed, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.Strategy, run.LookbackDays, run.TestedCombinations, selected,
		run.Sharpe, run.WinRate, run.SampleSize, run.Changed, run.Reason, run.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("appending optimization run: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool
func (s *Store) Close() error {
	return s.db.Close()
}
