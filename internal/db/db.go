// Package db persists candle history and archived simulation runs.
package db

import (
	"context"
	"time"

	"github.com/amirphl/hypertrader/internal/analytics"
	"github.com/amirphl/hypertrader/internal/backtest"
	"github.com/amirphl/hypertrader/internal/candle"
)

// CandleStore saves and serves candle history. GetCandles returns the
// half open range [from, to) in ascending timestamp order.
type CandleStore interface {
	SaveCandles(ctx context.Context, candles []candle.Candle) error
	GetCandles(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]candle.Candle, error)
}

// RunStore archives finished runs for later inspection.
type RunStore interface {
	SaveRun(ctx context.Context, run Run) (int64, error)
	GetRuns(ctx context.Context, symbol string, limit int) ([]Run, error)
	GetTrades(ctx context.Context, runID int64) ([]backtest.Trade, error)
}

// Storage is the full persistence surface the application wires up.
type Storage interface {
	CandleStore
	RunStore
}

// Run is one archived simulation: identity, the report summary, and the
// closed trade ledger. Trades is populated on save and by GetTrades;
// GetRuns leaves it nil.
type Run struct {
	ID        int64                       `json:"id"`
	CreatedAt time.Time                   `json:"created_at"`
	Symbol    string                      `json:"symbol"`
	Strategy  string                      `json:"strategy"`
	Timeframe string                      `json:"timeframe"`
	Report    analytics.PerformanceReport `json:"report"`
	Trades    []backtest.Trade            `json:"trades,omitempty"`
}
