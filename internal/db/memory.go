package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/amirphl/hypertrader/internal/backtest"
	"github.com/amirphl/hypertrader/internal/candle"
)

var (
	_ Storage = (*Postgres)(nil)
	_ Storage = (*Memory)(nil)
)

// Memory implements Storage in process, for tests and for runs that
// skip Postgres. Safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	candles map[string]map[time.Time]candle.Candle
	runs    []Run
	nextID  int64
}

func NewMemory() *Memory {
	return &Memory{
		candles: make(map[string]map[time.Time]candle.Candle),
		nextID:  1,
	}
}

func seriesKey(symbol, timeframe string) string {
	return symbol + "|" + timeframe
}

func (m *Memory) SaveCandles(ctx context.Context, candles []candle.Candle) error {
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("db: invalid candle at index %d for %s %s: %w", i, c.Symbol, c.Timeframe, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range candles {
		key := seriesKey(c.Symbol, c.Timeframe)
		series, ok := m.candles[key]
		if !ok {
			series = make(map[time.Time]candle.Candle)
			m.candles[key] = series
		}
		series[c.Timestamp.UTC()] = c
	}
	return nil
}

func (m *Memory) GetCandles(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]candle.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	series := m.candles[seriesKey(symbol, timeframe)]
	out := make([]candle.Candle, 0, len(series))
	for ts, c := range series {
		if !ts.Before(from) && ts.Before(to) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) SaveRun(ctx context.Context, run Run) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run.ID = m.nextID
	m.nextID++
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.Trades = append([]backtest.Trade(nil), run.Trades...)
	m.runs = append(m.runs, run)
	return run.ID, nil
}

func (m *Memory) GetRuns(ctx context.Context, symbol string, limit int) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Run, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		r := m.runs[i]
		if symbol != "" && r.Symbol != symbol {
			continue
		}
		r.Trades = nil
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) GetTrades(ctx context.Context, runID int64) ([]backtest.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.runs {
		if r.ID == runID {
			return append([]backtest.Trade(nil), r.Trades...), nil
		}
	}
	return nil, fmt.Errorf("db: run %d not found", runID)
}
