// Package strategy
package strategy

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/amirphl/hypertrader/internal/candle"
	"github.com/amirphl/hypertrader/internal/config"
	"github.com/amirphl/hypertrader/internal/indicator"
	"github.com/amirphl/hypertrader/internal/pattern"
)

// Generator evaluates a condition tree over a candle series and emits
// entry signals. Exit trees are evaluated on demand by the trade
// simulator through Evaluation.ShouldExit.
type Generator struct {
	name        string
	symbol      string
	timeframe   string
	entry       Condition
	exit        Condition // nil means the entry tree's opposite side
	reasonLong  string
	reasonShort string
	logger      *zap.Logger
}

// NewGenerator builds a generator from an explicit condition tree. A
// nil exit tree makes ShouldExit use the reversed entry tree; a nil
// logger disables logging.
func NewGenerator(name, symbol, timeframe string, entry, exit Condition, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		name:        name,
		symbol:      symbol,
		timeframe:   timeframe,
		entry:       entry,
		exit:        exit,
		reasonLong:  name + " long entry",
		reasonShort: name + " short entry",
		logger:      logger,
	}
}

// New builds the generator the config describes. The family picks a
// canned condition tree; cfg.Pattern appends a pattern filter to any
// family. The config must already be validated.
func New(cfg config.StrategyConfig, logger *zap.Logger) (*Generator, error) {
	var (
		entry       Condition
		name        string
		reasonLong  string
		reasonShort string
	)

	switch cfg.Family {
	case "", "momentum":
		name = "momentum"
		entry = MomentumCondition{Lookback: cfg.LookbackPeriod, Threshold: cfg.Threshold}
		reasonLong = "momentum above threshold"
		reasonShort = "momentum below threshold"

	case "breakout":
		name = "breakout"
		nodes := []Condition{
			BreakoutCondition{Lookback: cfg.LookbackPeriod, Multiplier: cfg.Multiplier},
		}
		if cfg.VolumeThreshold > 0 {
			nodes = append(nodes, VolumeFilter{Lookback: cfg.LookbackPeriod, Threshold: cfg.VolumeThreshold})
		}
		if len(cfg.ActiveHoursUTC) > 0 {
			nodes = append(nodes, TimeOfDayFilter{Hours: cfg.ActiveHoursUTC})
		}
		if len(nodes) == 1 {
			entry = nodes[0]
		} else {
			entry = AllOf{Conditions: nodes}
		}
		reasonLong = "breakout above range"
		reasonShort = "breakout below range"

	case "rsiReversion":
		name = "rsiReversion"
		oversold, overbought := cfg.Oversold, cfg.Overbought
		if oversold == 0 && overbought == 0 {
			oversold, overbought = indicator.RSIOversold, indicator.RSIOverbought
		}
		entry = IndicatorThreshold{
			Indicator:  IndicatorRSI,
			Period:     cfg.LookbackPeriod,
			LongBelow:  oversold,
			ShortAbove: overbought,
		}
		reasonLong = "RSI oversold"
		reasonShort = "RSI overbought"

	default:
		return nil, fmt.Errorf("strategy: unknown family %q", cfg.Family)
	}

	if cfg.Pattern != "" {
		kind, err := pattern.ParseKind(cfg.Pattern)
		if err != nil {
			return nil, fmt.Errorf("strategy: %w", err)
		}
		entry = AllOf{Conditions: []Condition{entry, PatternFilter{Pattern: kind}}}
	}

	g := NewGenerator(name, cfg.Symbol, cfg.Timeframe, entry, nil, logger)
	g.reasonLong = reasonLong
	g.reasonShort = reasonShort
	return g, nil
}

// Name returns the name of the strategy
func (g *Generator) Name() string { return g.name }

// Symbol returns the symbol this strategy is configured for
func (g *Generator) Symbol() string { return g.symbol }

// Timeframe returns the timeframe this strategy is configured for
func (g *Generator) Timeframe() string { return g.timeframe }

// WarmupPeriod returns the number of candles needed before the entry
// tree can fire.
func (g *Generator) WarmupPeriod() int {
	return warmupPeriod(g.entry)
}

// Signals runs a full evaluation pass. Use Evaluate when the caller
// also needs per-candle exit checks against the same cache.
func (g *Generator) Signals(candles []candle.Candle) ([]Signal, error) {
	return g.Evaluate(candles).Signals()
}

// Evaluation binds a generator to one candle series, sharing a single
// indicator cache between entry scanning and exit checks.
type Evaluation struct {
	gen     *Generator
	candles []candle.Candle
	cache   *seriesCache
}

// Evaluate prepares an evaluation pass over the series.
func (g *Generator) Evaluate(candles []candle.Candle) *Evaluation {
	return &Evaluation{
		gen:     g,
		candles: candles,
		cache:   newSeriesCache(candles),
	}
}

// WarmupPeriod reports the generator's warm-up.
func (e *Evaluation) WarmupPeriod() int {
	return e.gen.WarmupPeriod()
}

// Name reports the generator's strategy name.
func (e *Evaluation) Name() string {
	return e.gen.name
}

// Signals walks the series once and emits entry signals in index order.
// A candle where both sides fire emits nothing: ambiguity is treated as
// no trade.
func (e *Evaluation) Signals() ([]Signal, error) {
	var signals []Signal
	for i := range e.candles {
		s, err := evalCondition(e.gen.entry, e.candles, e.cache, i)
		if err != nil {
			return nil, err
		}
		if s.long == s.short {
			continue
		}

		direction, reason := Long, e.gen.reasonLong
		if s.short {
			direction, reason = Short, e.gen.reasonShort
		}
		c := e.candles[i]
		signals = append(signals, Signal{
			Index:        i,
			Time:         c.Timestamp,
			Symbol:       c.Symbol,
			Direction:    direction,
			Kind:         KindEntry,
			Reason:       reason,
			TriggerPrice: c.Close,
			Strategy:     e.gen.name,
		})
	}

	e.gen.logger.Debug("generated entry signals",
		zap.String("strategy", e.gen.name),
		zap.String("symbol", e.gen.symbol),
		zap.Int("candles", len(e.candles)),
		zap.Int("signals", len(signals)))
	return signals, nil
}

// ShouldExit reports whether the indicator exit fires at index i for a
// position on the given side. Without an explicit exit tree the entry
// tree's opposite side is the exit condition.
func (e *Evaluation) ShouldExit(i int, direction Direction) (bool, error) {
	if i < 0 || i >= len(e.candles) {
		return false, nil
	}

	if e.gen.exit != nil {
		s, err := evalCondition(e.gen.exit, e.candles, e.cache, i)
		if err != nil {
			return false, err
		}
		if direction == Long {
			return s.long, nil
		}
		return s.short, nil
	}

	s, err := evalCondition(e.gen.entry, e.candles, e.cache, i)
	if err != nil {
		return false, err
	}
	if direction == Long {
		return s.short, nil
	}
	return s.long, nil
}
