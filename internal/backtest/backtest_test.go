package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/hypertrader/internal/candle"
	"github.com/amirphl/hypertrader/internal/config"
	"github.com/amirphl/hypertrader/internal/strategy"
)

var testBase = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// testCandles builds hourly BTCUSDT candles from close prices with a
// one unit range around the body.
func testCandles(closes []float64) []candle.Candle {
	candles := make([]candle.Candle, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		candles[i] = candle.Candle{
			Timestamp: testBase.Add(time.Duration(i) * time.Hour),
			Open:      open,
			High:      math.Max(open, c) + 1,
			Low:       math.Min(open, c) - 1,
			Close:     c,
			Volume:    1000,
			Symbol:    "BTCUSDT",
			Timeframe: "1h",
			Source:    "test",
		}
	}
	return candles
}

// testConfig is a minimal valid config with every exit rule disabled
// and room for exactly one position.
func testConfig() config.StrategyConfig {
	cfg := config.DefaultStrategyConfig()
	cfg.PositionSizing = config.SizingFixed
	cfg.PositionSizeValue = 1000
	cfg.StopLossPct = 0
	cfg.TakeProfitPct = 0
	cfg.TrailingStopPct = 0
	cfg.TimeExitBars = 0
	cfg.IndicatorExit = false
	cfg.MaxConcurrentPositions = 1
	cfg.MaxPositionsPerSymbol = 1
	return cfg
}

type stubSource struct {
	signals []strategy.Signal
	exits   map[int]bool
}

func (s stubSource) Signals() ([]strategy.Signal, error) { return s.signals, nil }

func (s stubSource) ShouldExit(i int, _ strategy.Direction) (bool, error) { return s.exits[i], nil }

type warmupSource struct {
	stubSource
	warmup int
}

func (s warmupSource) WarmupPeriod() int { return s.warmup }

func entryAt(candles []candle.Candle, i int, direction strategy.Direction) strategy.Signal {
	return strategy.Signal{
		Index:        i,
		Time:         candles[i].Timestamp,
		Symbol:       candles[i].Symbol,
		Direction:    direction,
		Kind:         strategy.KindEntry,
		Reason:       "test entry",
		TriggerPrice: candles[i].Close,
		Strategy:     "stub",
	}
}

func TestRunNoSignals(t *testing.T) {
	engine, err := New(testConfig(), nil)
	require.NoError(t, err)

	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	candles := testCandles(closes)

	result, err := engine.Run(candles, stubSource{})
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, result.InitialEquity, result.FinalEquity)
	require.Len(t, result.EquityCurve, 30)
	for _, p := range result.EquityCurve {
		assert.Equal(t, 100000.0, p.Equity)
	}
}

func TestRunLongTradeHeldToEndOfData(t *testing.T) {
	engine, err := New(testConfig(), nil)
	require.NoError(t, err)

	candles := testCandles([]float64{100, 110, 99, 120})
	src := stubSource{signals: []strategy.Signal{entryAt(candles, 1, strategy.Long)}}

	result, err := engine.Run(candles, src)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	tr := result.Trades[0]
	assert.Equal(t, 1, tr.ID)
	assert.Equal(t, strategy.Long, tr.Direction)
	assert.Equal(t, 1, tr.EntryIndex)
	assert.Equal(t, 110.0, tr.EntryPrice)
	assert.Equal(t, 3, tr.ExitIndex)
	assert.Equal(t, 120.0, tr.ExitPrice)
	assert.Equal(t, ExitEndOfData, tr.ExitReason)
	assert.Equal(t, 1000.0, tr.Size)
	assert.InDelta(t, 1000.0/110.0, tr.Quantity, 1e-9)
	assert.Equal(t, 100000.0, tr.EquityAtEntry)
	assert.InDelta(t, 90.909, tr.PnL, 0.001)
	assert.InDelta(t, 9.0909, tr.PnLPct, 0.0001)

	// Worst excursion is candle 2's low of 98, best is candle 3's high
	// of 121.
	assert.InDelta(t, -10.909, tr.MAE, 0.001)
	assert.InDelta(t, 10.0, tr.MFE, 0.001)

	require.Len(t, result.EquityCurve, 4)
	assert.Equal(t, 100000.0, result.EquityCurve[0].Equity)
	assert.Equal(t, 100000.0, result.EquityCurve[1].Equity)
	assert.InDelta(t, 99900.0, result.EquityCurve[2].Equity, 0.001)
	assert.InDelta(t, 100090.909, result.EquityCurve[3].Equity, 0.001)
	assert.InDelta(t, 100090.909, result.FinalEquity, 0.001)
}

func TestStopLossExit(t *testing.T) {
	cfg := testConfig()
	cfg.StopLossPct = 5

	engine, err := New(cfg, nil)
	require.NoError(t, err)

	candles := testCandles([]float64{100, 110, 99, 120})
	src := stubSource{signals: []strategy.Signal{entryAt(candles, 1, strategy.Long)}}

	result, err := engine.Run(candles, src)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	tr := result.Trades[0]
	assert.Equal(t, ExitStopLoss, tr.ExitReason)
	assert.Equal(t, 2, tr.ExitIndex)
	assert.Equal(t, 99.0, tr.ExitPrice)
	assert.InDelta(t, -100.0, tr.PnL, 0.001)
	assert.InDelta(t, 99900.0, result.FinalEquity, 0.001)
}

func TestTakeProfitExit(t *testing.T) {
	cfg := testConfig()
	cfg.TakeProfitPct = 5

	engine, err := New(cfg, nil)
	require.NoError(t, err)

	candles := testCandles([]float64{100, 110, 99, 120})
	src := stubSource{signals: []strategy.Signal{entryAt(candles, 1, strategy.Long)}}

	result, err := engine.Run(candles, src)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	tr := result.Trades[0]
	assert.Equal(t, ExitTakeProfit, tr.ExitReason)
	assert.Equal(t, 3, tr.ExitIndex)
	assert.Equal(t, 120.0, tr.ExitPrice)
	assert.InDelta(t, 90.909, tr.PnL, 0.001)
}

func TestTrailingStopExit(t *testing.T) {
	cfg := testConfig()
	cfg.TrailingStopPct = 5

	engine, err := New(cfg, nil)
	require.NoError(t, err)

	// Ratchets to 130, then 123 breaches 130 * 0.95.
	candles := testCandles([]float64{100, 120, 130, 123, 140})
	src := stubSource{signals: []strategy.Signal{entryAt(candles, 0, strategy.Long)}}

	result, err := engine.Run(candles, src)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	tr := result.Trades[0]
	assert.Equal(t, ExitTrailingStop, tr.ExitReason)
	assert.Equal(t, 3, tr.ExitIndex)
	assert.Equal(t, 123.0, tr.ExitPrice)
	assert.InDelta(t, 230.0, tr.PnL, 0.001)
}

func TestStopLossOutranksTrailingStop(t *testing.T) {
	cfg := testConfig()
	cfg.StopLossPct = 5
	cfg.TrailingStopPct = 5

	engine, err := New(cfg, nil)
	require.NoError(t, err)

	// Candle 2 breaches both the fixed stop (95) and the trailing stop
	// (190); the fixed stop must win.
	candles := testCandles([]float64{100, 200, 94})
	src := stubSource{signals: []strategy.Signal{entryAt(candles, 0, strategy.Long)}}

	result, err := engine.Run(candles, src)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, ExitStopLoss, result.Trades[0].ExitReason)
	assert.Equal(t, 2, result.Trades[0].ExitIndex)
}

func TestIndicatorExit(t *testing.T) {
	candles := testCandles([]float64{100, 101, 102, 103})
	src := stubSource{
		signals: []strategy.Signal{entryAt(candles, 0, strategy.Long)},
		exits:   map[int]bool{2: true},
	}

	t.Run("enabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.IndicatorExit = true

		engine, err := New(cfg, nil)
		require.NoError(t, err)

		result, err := engine.Run(candles, src)
		require.NoError(t, err)
		require.Len(t, result.Trades, 1)
		assert.Equal(t, ExitSignal, result.Trades[0].ExitReason)
		assert.Equal(t, 2, result.Trades[0].ExitIndex)
		assert.Equal(t, 102.0, result.Trades[0].ExitPrice)
	})

	t.Run("disabled", func(t *testing.T) {
		engine, err := New(testConfig(), nil)
		require.NoError(t, err)

		result, err := engine.Run(candles, src)
		require.NoError(t, err)
		require.Len(t, result.Trades, 1)
		assert.Equal(t, ExitEndOfData, result.Trades[0].ExitReason)
	})
}

func TestTimeExit(t *testing.T) {
	cfg := testConfig()
	cfg.TimeExitBars = 2

	engine, err := New(cfg, nil)
	require.NoError(t, err)

	candles := testCandles([]float64{100, 101, 102, 103})
	src := stubSource{signals: []strategy.Signal{entryAt(candles, 0, strategy.Long)}}

	result, err := engine.Run(candles, src)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, ExitTime, result.Trades[0].ExitReason)
	assert.Equal(t, 2, result.Trades[0].ExitIndex)
}

func TestShortTrade(t *testing.T) {
	engine, err := New(testConfig(), nil)
	require.NoError(t, err)

	candles := testCandles([]float64{100, 90, 95})
	src := stubSource{signals: []strategy.Signal{entryAt(candles, 0, strategy.Short)}}

	result, err := engine.Run(candles, src)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	tr := result.Trades[0]
	assert.Equal(t, strategy.Short, tr.Direction)
	assert.Equal(t, 100.0, tr.EntryPrice)
	assert.Equal(t, 95.0, tr.ExitPrice)
	assert.InDelta(t, 50.0, tr.PnL, 0.001)
	assert.InDelta(t, 5.0, tr.PnLPct, 0.001)
	assert.InDelta(t, -1.0, tr.MAE, 0.001)
	assert.InDelta(t, 11.0, tr.MFE, 0.001)

	require.Len(t, result.EquityCurve, 3)
	assert.InDelta(t, 100100.0, result.EquityCurve[1].Equity, 0.001)
	assert.InDelta(t, 100050.0, result.FinalEquity, 0.001)
}

func TestConcurrencyLimits(t *testing.T) {
	candles := testCandles([]float64{100, 100, 100, 100, 100})

	t.Run("concurrent position cap", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxConcurrentPositions = 2
		cfg.MaxPositionsPerSymbol = 2

		engine, err := New(cfg, nil)
		require.NoError(t, err)

		src := stubSource{signals: []strategy.Signal{
			entryAt(candles, 0, strategy.Long),
			entryAt(candles, 1, strategy.Long),
			entryAt(candles, 2, strategy.Long),
		}}
		result, err := engine.Run(candles, src)
		require.NoError(t, err)
		require.Len(t, result.Trades, 2)
		assert.Equal(t, 0, result.Trades[0].EntryIndex)
		assert.Equal(t, 1, result.Trades[1].EntryIndex)
	})

	t.Run("per symbol cap", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxConcurrentPositions = 3
		cfg.MaxPositionsPerSymbol = 1

		engine, err := New(cfg, nil)
		require.NoError(t, err)

		src := stubSource{signals: []strategy.Signal{
			entryAt(candles, 0, strategy.Long),
			entryAt(candles, 1, strategy.Long),
		}}
		result, err := engine.Run(candles, src)
		require.NoError(t, err)
		require.Len(t, result.Trades, 1)
	})
}

func TestNoLeakedPositions(t *testing.T) {
	cfg := testConfig()
	cfg.StopLossPct = 3
	cfg.TakeProfitPct = 3
	cfg.MaxConcurrentPositions = 3
	cfg.MaxPositionsPerSymbol = 3

	engine, err := New(cfg, nil)
	require.NoError(t, err)

	candles := testCandles([]float64{100, 103, 99, 104, 98, 105, 97})
	var signals []strategy.Signal
	for i := range candles {
		dir := strategy.Long
		if i%2 == 1 {
			dir = strategy.Short
		}
		signals = append(signals, entryAt(candles, i, dir))
	}

	result, err := engine.Run(candles, stubSource{signals: signals})
	require.NoError(t, err)
	require.NotEmpty(t, result.Trades)
	require.Len(t, result.EquityCurve, len(candles))

	total := 0.0
	for _, tr := range result.Trades {
		assert.NotEmpty(t, tr.ExitReason, "trade %d has no exit", tr.ID)
		assert.GreaterOrEqual(t, tr.ExitIndex, tr.EntryIndex)
		assert.False(t, tr.ExitTime.Before(tr.EntryTime))
		total += tr.PnL
	}
	assert.InDelta(t, result.InitialEquity+total, result.FinalEquity, 1e-6)
	assert.InDelta(t, result.FinalEquity, result.EquityCurve[len(candles)-1].Equity, 1e-6)
}

func TestPositionSizing(t *testing.T) {
	tests := []struct {
		name   string
		mode   config.SizingMode
		value  float64
		sl     float64
		equity float64
		want   float64
	}{
		{"fixed notional", config.SizingFixed, 1000, 0, 100000, 1000},
		{"percent of equity", config.SizingPercentOfEquity, 10, 0, 100000, 10000},
		{"risk based", config.SizingRiskBased, 1, 2, 100000, 50000},
		{"risk based capped at 95 percent", config.SizingRiskBased, 10, 0.5, 100000, 95000},
		{"percent of shrunk equity", config.SizingPercentOfEquity, 10, 0, 50000, 5000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.PositionSizing = tt.mode
			cfg.PositionSizeValue = tt.value
			cfg.StopLossPct = tt.sl

			engine, err := New(cfg, nil)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, engine.positionSize(tt.equity), 1e-9)
		})
	}
}

func TestCommissionAndSlippage(t *testing.T) {
	cfg := testConfig()
	cfg.CommissionPct = 0.1
	cfg.SlippagePct = 1

	engine, err := New(cfg, nil)
	require.NoError(t, err)

	candles := testCandles([]float64{100, 110})
	src := stubSource{signals: []strategy.Signal{entryAt(candles, 0, strategy.Long)}}

	result, err := engine.Run(candles, src)
	require.NoError(t, err)
	require.Len(t, result.Trades, 1)

	tr := result.Trades[0]
	// Entry slips up to 101, exit slips down to 108.9, and commission
	// is charged on both fills.
	assert.InDelta(t, 101.0, tr.EntryPrice, 1e-9)
	assert.InDelta(t, 108.9, tr.ExitPrice, 1e-9)

	quantity := 1000.0 / 101.0
	gross := (108.9 - 101.0) * quantity
	fees := (101.0 + 108.9) * quantity * 0.001
	assert.InDelta(t, fees, tr.Fees, 1e-9)
	assert.InDelta(t, gross-fees, tr.PnL, 1e-9)
	assert.Less(t, tr.PnL, 100.0, "costs must reduce the frictionless pnl")
}

func TestExitSignalKindIgnoredAsEntry(t *testing.T) {
	engine, err := New(testConfig(), nil)
	require.NoError(t, err)

	candles := testCandles([]float64{100, 101, 102})
	sig := entryAt(candles, 1, strategy.Long)
	sig.Kind = strategy.KindExit

	result, err := engine.Run(candles, stubSource{signals: []strategy.Signal{sig}})
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
}

func TestWarmupWarning(t *testing.T) {
	engine, err := New(testConfig(), nil)
	require.NoError(t, err)

	candles := testCandles([]float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109})
	src := warmupSource{warmup: 50}

	result, err := engine.Run(candles, src)
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "warm-up")
	assert.Len(t, result.EquityCurve, 10)
}

func TestEmptySeries(t *testing.T) {
	engine, err := New(testConfig(), nil)
	require.NoError(t, err)

	result, err := engine.Run(nil, stubSource{})
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	assert.Empty(t, result.EquityCurve)
	assert.Equal(t, result.InitialEquity, result.FinalEquity)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "empty candle series")
}

func TestSignalIndexOutOfRange(t *testing.T) {
	engine, err := New(testConfig(), nil)
	require.NoError(t, err)

	candles := testCandles([]float64{100, 101})
	src := stubSource{signals: []strategy.Signal{{Index: 10, Kind: strategy.KindEntry, Direction: strategy.Long}}}

	_, err = engine.Run(candles, src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside series")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.InitialEquity = 0

	_, err := New(cfg, nil)
	require.Error(t, err)

	var verr *config.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "InitialEquity", verr.Field)
}

func TestEndToEndWithGenerator(t *testing.T) {
	cfg := testConfig()
	cfg.Family = "momentum"
	cfg.LookbackPeriod = 1
	cfg.Threshold = 0
	cfg.IndicatorExit = true

	gen, err := strategy.New(cfg, nil)
	require.NoError(t, err)

	engine, err := New(cfg, nil)
	require.NoError(t, err)

	candles := testCandles([]float64{100, 110, 99, 120})
	result, err := engine.Run(candles, gen.Evaluate(candles))
	require.NoError(t, err)
	assert.Equal(t, "momentum", result.Strategy)
	assert.Empty(t, result.Warnings)

	// Long at 110 reversed at 99, short at 99 reversed at 120, long at
	// 120 force closed on the same candle.
	require.Len(t, result.Trades, 3)

	first := result.Trades[0]
	assert.Equal(t, strategy.Long, first.Direction)
	assert.Equal(t, 110.0, first.EntryPrice)
	assert.Equal(t, 99.0, first.ExitPrice)
	assert.Equal(t, ExitSignal, first.ExitReason)
	assert.InDelta(t, -100.0, first.PnL, 0.001)

	second := result.Trades[1]
	assert.Equal(t, strategy.Short, second.Direction)
	assert.Equal(t, 99.0, second.EntryPrice)
	assert.Equal(t, 120.0, second.ExitPrice)
	assert.Equal(t, ExitSignal, second.ExitReason)
	assert.InDelta(t, -212.121, second.PnL, 0.001)

	third := result.Trades[2]
	assert.Equal(t, strategy.Long, third.Direction)
	assert.Equal(t, ExitEndOfData, third.ExitReason)
	assert.Equal(t, third.EntryIndex, third.ExitIndex)
	assert.InDelta(t, 0.0, third.PnL, 1e-9)

	assert.InDelta(t, 99687.879, result.FinalEquity, 0.001)
}
