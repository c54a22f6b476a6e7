package strategy

import (
	"errors"
	"fmt"
	"math"

	"github.com/amirphl/hypertrader/internal/candle"
	"github.com/amirphl/hypertrader/internal/indicator"
	"github.com/amirphl/hypertrader/internal/pattern"
)

// Condition is one node of a strategy's entry or exit rule tree. The set
// of implementations below is closed; evalCondition is the single
// interpreter that walks them. Each node reports independently for the
// long and the short side, so directional rules and symmetric filters
// compose with AllOf/AnyOf/Not.
type Condition interface {
	conditionNode()
}

// IndicatorKind names an oscillator series usable in an
// IndicatorThreshold node.
type IndicatorKind string

const (
	IndicatorRSI        IndicatorKind = "rsi"
	IndicatorStochastic IndicatorKind = "stochastic"
)

// AverageKind names a moving-average series.
type AverageKind string

const (
	AverageSMA AverageKind = "sma"
	AverageEMA AverageKind = "ema"
)

// MomentumCondition fires long when the percent change of close over
// Lookback candles exceeds Threshold, short when it falls below
// -Threshold.
type MomentumCondition struct {
	Lookback  int
	Threshold float64
}

// BreakoutCondition fires long when close moves above the previous
// close by more than Multiplier average true ranges, short on the
// mirror move down.
type BreakoutCondition struct {
	Lookback   int
	Multiplier float64
}

// IndicatorThreshold fires long when the oscillator drops below
// LongBelow and short when it rises above ShortAbove.
type IndicatorThreshold struct {
	Indicator  IndicatorKind
	Period     int
	LongBelow  float64
	ShortAbove float64
}

// MovingAverageCondition fires long when close is above the moving
// average, short when below.
type MovingAverageCondition struct {
	Average AverageKind
	Period  int
}

// VolumeFilter passes both sides when the candle's volume exceeds
// Threshold times the average volume of the preceding Lookback candles.
type VolumeFilter struct {
	Lookback  int
	Threshold float64
}

// TimeOfDayFilter passes both sides when the candle's UTC hour is in
// Hours.
type TimeOfDayFilter struct {
	Hours []int
}

// PatternFilter passes the side matching the detected pattern's bias; a
// neutral pattern passes both sides.
type PatternFilter struct {
	Pattern pattern.Kind
}

// Not inverts both sides of its inner condition.
type Not struct {
	Inner Condition
}

// AllOf passes a side only when every child passes it. Empty AllOf
// never fires.
type AllOf struct {
	Conditions []Condition
}

// AnyOf passes a side when at least one child passes it.
type AnyOf struct {
	Conditions []Condition
}

func (MomentumCondition) conditionNode()      {}
func (BreakoutCondition) conditionNode()      {}
func (IndicatorThreshold) conditionNode()     {}
func (MovingAverageCondition) conditionNode() {}
func (VolumeFilter) conditionNode()           {}
func (TimeOfDayFilter) conditionNode()        {}
func (PatternFilter) conditionNode()          {}
func (Not) conditionNode()                    {}
func (AllOf) conditionNode()                  {}
func (AnyOf) conditionNode()                  {}

// sides carries the per-direction outcome of a condition evaluation.
type sides struct {
	long  bool
	short bool
}

type seriesKey struct {
	kind   string
	period int
}

// seriesCache memoizes indicator series per (kind, period) for one
// evaluation pass so condition trees never recompute an array per
// candle. A series whose warm-up exceeds the candle count is cached
// all-NaN, which makes every comparison against it false.
type seriesCache struct {
	candles []candle.Candle
	closes  []float64
	series  map[seriesKey][]float64
}

func newSeriesCache(candles []candle.Candle) *seriesCache {
	return &seriesCache{
		candles: candles,
		closes:  candle.Closes(candles),
		series:  make(map[seriesKey][]float64),
	}
}

func (sc *seriesCache) get(kind string, period int) ([]float64, error) {
	key := seriesKey{kind: kind, period: period}
	if s, ok := sc.series[key]; ok {
		return s, nil
	}

	var s []float64
	var err error
	switch kind {
	case string(IndicatorRSI):
		s, err = indicator.CalculateRSI(sc.closes, period)
	case string(AverageSMA):
		s, err = indicator.CalculateSMA(sc.closes, period)
	case string(AverageEMA):
		s, err = indicator.CalculateEMA(sc.closes, period)
	case "atr":
		s, err = indicator.CalculateATR(sc.candles, period)
	case string(IndicatorStochastic):
		var res *indicator.StochasticResult
		res, err = indicator.CalculateStochastic(sc.candles, period, 1, 3)
		if err == nil {
			s = res.K
		}
	default:
		return nil, fmt.Errorf("strategy: unknown indicator series %q", kind)
	}

	if err != nil {
		if !errors.Is(err, indicator.ErrInsufficientData) {
			return nil, err
		}
		s = nanSeries(len(sc.closes))
	}
	sc.series[key] = s
	return s, nil
}

func nanSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// evalCondition evaluates one node at candle index i using only data at
// indices <= i. Warm-up positions evaluate to false on both sides.
func evalCondition(node Condition, candles []candle.Candle, cache *seriesCache, i int) (sides, error) {
	switch n := node.(type) {
	case MomentumCondition:
		if n.Lookback < 1 || i < n.Lookback {
			return sides{}, nil
		}
		base := candles[i-n.Lookback].Close
		momentum := (candles[i].Close/base - 1) * 100
		return sides{long: momentum > n.Threshold, short: momentum < -n.Threshold}, nil

	case BreakoutCondition:
		if i < 1 {
			return sides{}, nil
		}
		atr, err := cache.get("atr", n.Lookback)
		if err != nil {
			return sides{}, err
		}
		avgRange := atr[i]
		if math.IsNaN(avgRange) {
			return sides{}, nil
		}
		prev := candles[i-1].Close
		cur := candles[i].Close
		return sides{
			long:  cur > prev+avgRange*n.Multiplier,
			short: cur < prev-avgRange*n.Multiplier,
		}, nil

	case IndicatorThreshold:
		series, err := cache.get(string(n.Indicator), n.Period)
		if err != nil {
			return sides{}, err
		}
		v := series[i]
		if math.IsNaN(v) {
			return sides{}, nil
		}
		return sides{long: v < n.LongBelow, short: v > n.ShortAbove}, nil

	case MovingAverageCondition:
		series, err := cache.get(string(n.Average), n.Period)
		if err != nil {
			return sides{}, err
		}
		ma := series[i]
		if math.IsNaN(ma) {
			return sides{}, nil
		}
		cl := candles[i].Close
		return sides{long: cl > ma, short: cl < ma}, nil

	case VolumeFilter:
		if n.Lookback < 1 || i < n.Lookback {
			return sides{}, nil
		}
		var sum float64
		for j := i - n.Lookback; j < i; j++ {
			sum += candles[j].Volume
		}
		avg := sum / float64(n.Lookback)
		pass := candles[i].Volume > avg*n.Threshold
		return sides{long: pass, short: pass}, nil

	case TimeOfDayFilter:
		hour := candles[i].Timestamp.UTC().Hour()
		for _, h := range n.Hours {
			if h == hour {
				return sides{long: true, short: true}, nil
			}
		}
		return sides{}, nil

	case PatternFilter:
		m, ok := pattern.MatchAt(candles, i, n.Pattern)
		if !ok {
			return sides{}, nil
		}
		switch m.Direction {
		case pattern.DirectionBullish:
			return sides{long: true}, nil
		case pattern.DirectionBearish:
			return sides{short: true}, nil
		default:
			return sides{long: true, short: true}, nil
		}

	case Not:
		inner, err := evalCondition(n.Inner, candles, cache, i)
		if err != nil {
			return sides{}, err
		}
		return sides{long: !inner.long, short: !inner.short}, nil

	case AllOf:
		if len(n.Conditions) == 0 {
			return sides{}, nil
		}
		out := sides{long: true, short: true}
		for _, c := range n.Conditions {
			s, err := evalCondition(c, candles, cache, i)
			if err != nil {
				return sides{}, err
			}
			out.long = out.long && s.long
			out.short = out.short && s.short
			if !out.long && !out.short {
				return out, nil
			}
		}
		return out, nil

	case AnyOf:
		var out sides
		for _, c := range n.Conditions {
			s, err := evalCondition(c, candles, cache, i)
			if err != nil {
				return sides{}, err
			}
			out.long = out.long || s.long
			out.short = out.short || s.short
			if out.long && out.short {
				return out, nil
			}
		}
		return out, nil

	default:
		return sides{}, fmt.Errorf("strategy: unsupported condition %T", node)
	}
}

// warmupPeriod returns a conservative candle count a condition tree
// needs before it can fire.
func warmupPeriod(node Condition) int {
	switch n := node.(type) {
	case MomentumCondition:
		return n.Lookback
	case BreakoutCondition:
		if n.Lookback > 1 {
			return n.Lookback
		}
		return 1
	case IndicatorThreshold:
		if n.Indicator == IndicatorStochastic {
			// firstD = (periodK-1) + (periodD-1) with periodD = 3
			return n.Period + 1
		}
		return n.Period
	case MovingAverageCondition:
		return n.Period - 1
	case VolumeFilter:
		return n.Lookback
	case PatternFilter:
		switch n.Pattern {
		case pattern.KindEngulfing:
			return 1
		case pattern.KindMorningStar, pattern.KindEveningStar:
			return 2
		default:
			return 0
		}
	case Not:
		return warmupPeriod(n.Inner)
	case AllOf:
		return maxChildWarmup(n.Conditions)
	case AnyOf:
		return maxChildWarmup(n.Conditions)
	default:
		return 0
	}
}

func maxChildWarmup(conditions []Condition) int {
	warmup := 0
	for _, c := range conditions {
		if w := warmupPeriod(c); w > warmup {
			warmup = w
		}
	}
	return warmup
}
