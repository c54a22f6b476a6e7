// Package exchange pulls candle history from market data providers.
package exchange

import (
	"context"
	"time"

	"github.com/amirphl/hypertrader/internal/candle"
)

// Fetcher retrieves candles covering [start, end]. Implementations
// return rows in the provider's order; callers run candle.Normalize
// before using them.
type Fetcher interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error)
}

// Mock serves a fixed series, filtered to the requested window. Err, if
// set, is returned instead.
type Mock struct {
	Candles []candle.Candle
	Err     error

	Calls int
}

func (m *Mock) FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []candle.Candle
	for _, c := range m.Candles {
		if c.Symbol != symbol || c.Timeframe != timeframe {
			continue
		}
		if c.Timestamp.Before(start) || c.Timestamp.After(end) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
