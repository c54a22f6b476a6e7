package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/hypertrader/internal/analytics"
	"github.com/amirphl/hypertrader/internal/backtest"
	"github.com/amirphl/hypertrader/internal/candle"
	"github.com/amirphl/hypertrader/internal/strategy"
)

var storeBase = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func storeCandle(ts time.Time, close float64) candle.Candle {
	return candle.Candle{
		Timestamp: ts,
		Open:      close,
		High:      close + 1,
		Low:       close - 1,
		Close:     close,
		Volume:    1000,
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Source:    "test",
	}
}

func sampleRun(symbol string) Run {
	return Run{
		Symbol:    symbol,
		Strategy:  "momentum",
		Timeframe: "1h",
		Report: analytics.PerformanceReport{
			InitialEquity: 100000,
			FinalEquity:   100300,
			TotalReturn:   0.3,
			NumTrades:     2,
		},
		Trades: []backtest.Trade{
			{ID: 1, Symbol: symbol, Direction: strategy.Long, EntryTime: storeBase,
				EntryPrice: 100, ExitPrice: 105, PnL: 500, PnLPct: 5, ExitReason: backtest.ExitTakeProfit},
			{ID: 2, Symbol: symbol, Direction: strategy.Short, EntryTime: storeBase.Add(time.Hour),
				EntryPrice: 105, ExitPrice: 107, PnL: -200, PnLPct: -2, ExitReason: backtest.ExitStopLoss},
		},
	}
}

func TestMemoryCandleRoundTrip(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	// Saved out of order, with a duplicate timestamp that must upsert.
	require.NoError(t, store.SaveCandles(ctx, []candle.Candle{
		storeCandle(storeBase.Add(2*time.Hour), 102),
		storeCandle(storeBase, 100),
		storeCandle(storeBase.Add(time.Hour), 101),
		storeCandle(storeBase.Add(time.Hour), 150),
	}))

	got, err := store.GetCandles(ctx, "BTCUSDT", "1h", storeBase, storeBase.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 100.0, got[0].Close)
	assert.Equal(t, 150.0, got[1].Close, "later save should win the slot")
	assert.Equal(t, 102.0, got[2].Close)
	assert.True(t, got[0].Timestamp.Before(got[1].Timestamp))
	assert.True(t, got[1].Timestamp.Before(got[2].Timestamp))
}

func TestMemoryCandleRangeIsHalfOpen(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	require.NoError(t, store.SaveCandles(ctx, []candle.Candle{
		storeCandle(storeBase, 100),
		storeCandle(storeBase.Add(time.Hour), 101),
		storeCandle(storeBase.Add(2*time.Hour), 102),
	}))

	got, err := store.GetCandles(ctx, "BTCUSDT", "1h", storeBase, storeBase.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 101.0, got[1].Close)

	none, err := store.GetCandles(ctx, "ETHUSDT", "1h", storeBase, storeBase.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryRejectsInvalidCandle(t *testing.T) {
	store := NewMemory()

	bad := storeCandle(storeBase, 100)
	bad.High = bad.Low - 1

	err := store.SaveCandles(context.Background(), []candle.Candle{storeCandle(storeBase.Add(time.Hour), 101), bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index 1")

	// An invalid row must fail the whole batch.
	got, err := store.GetCandles(context.Background(), "BTCUSDT", "1h", storeBase, storeBase.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryRunArchive(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	firstID, err := store.SaveRun(ctx, sampleRun("BTCUSDT"))
	require.NoError(t, err)
	secondID, err := store.SaveRun(ctx, sampleRun("ETHUSDT"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), firstID)
	assert.Equal(t, int64(2), secondID)

	runs, err := store.GetRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, secondID, runs[0].ID, "newest first")
	assert.Equal(t, "ETHUSDT", runs[0].Symbol)
	assert.Equal(t, 0.3, runs[0].Report.TotalReturn)
	assert.Nil(t, runs[0].Trades, "headers only")
	assert.False(t, runs[0].CreatedAt.IsZero())

	btc, err := store.GetRuns(ctx, "BTCUSDT", 0)
	require.NoError(t, err)
	require.Len(t, btc, 1)
	assert.Equal(t, firstID, btc[0].ID)

	limited, err := store.GetRuns(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, secondID, limited[0].ID)
}

func TestMemoryGetTrades(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	runID, err := store.SaveRun(ctx, sampleRun("BTCUSDT"))
	require.NoError(t, err)

	trades, err := store.GetTrades(ctx, runID)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, strategy.Long, trades[0].Direction)
	assert.Equal(t, backtest.ExitStopLoss, trades[1].ExitReason)

	_, err = store.GetTrades(ctx, 99)
	require.Error(t, err)
}

// TestPostgresIntegration runs only against a throwaway database named
// by HYPERTRADER_TEST_DB, for example
// "host=localhost user=postgres password=postgres dbname=hypertrader_test sslmode=disable".
func TestPostgresIntegration(t *testing.T) {
	connStr := os.Getenv("HYPERTRADER_TEST_DB")
	if connStr == "" {
		t.Skip("HYPERTRADER_TEST_DB not set")
	}

	store, err := Connect(connStr, 4, 2, nil)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveCandles(ctx, []candle.Candle{
		storeCandle(storeBase, 100),
		storeCandle(storeBase.Add(time.Hour), 101),
	}))

	got, err := store.GetCandles(ctx, "BTCUSDT", "1h", storeBase, storeBase.Add(24*time.Hour))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(got), 2)
	assert.Equal(t, 100.0, got[0].Close)

	runID, err := store.SaveRun(ctx, sampleRun("BTCUSDT"))
	require.NoError(t, err)
	require.Positive(t, runID)

	runs, err := store.GetRuns(ctx, "BTCUSDT", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, 100300.0, runs[0].Report.FinalEquity)

	trades, err := store.GetTrades(ctx, runID)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, backtest.ExitTakeProfit, trades[0].ExitReason)
}
