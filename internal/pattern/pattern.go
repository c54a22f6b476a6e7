// Package pattern detects candlestick chart patterns on candle series.
// Predicates are pure geometry checks; Detect scans a series and reports
// matches, and MatchAt evaluates a single index so signal conditions can
// gate on a pattern without scanning.
package pattern

import (
	"fmt"
	"math"

	"github.com/amirphl/hypertrader/internal/candle"
)

// Direction classifies the bias a pattern implies.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// Kind identifies a supported candlestick pattern.
type Kind string

const (
	KindDoji           Kind = "doji"
	KindDragonflyDoji  Kind = "dragonfly_doji"
	KindGravestoneDoji Kind = "gravestone_doji"
	KindLongLeggedDoji Kind = "long_legged_doji"
	KindHammer         Kind = "hammer"
	KindHangingMan     Kind = "hanging_man"
	KindEngulfing      Kind = "engulfing"
	KindMorningStar    Kind = "morning_star"
	KindEveningStar    Kind = "evening_star"
)

// Kinds lists every supported pattern kind.
func Kinds() []Kind {
	return []Kind{
		KindDoji, KindDragonflyDoji, KindGravestoneDoji, KindLongLeggedDoji,
		KindHammer, KindHangingMan, KindEngulfing,
		KindMorningStar, KindEveningStar,
	}
}

// ParseKind maps a config string onto a pattern kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown pattern kind %q", s)
}

// Pattern strength tiers
const (
	StrengthWeak   = 0.3
	StrengthMedium = 0.6
	StrengthStrong = 0.9
)

// Match represents a detected pattern occurrence. Index points at the
// last candle of the formation.
type Match struct {
	Index     int
	Kind      Kind
	Direction Direction
	Strength  float64
}

// lookback returns how many candles before the evaluation index a
// pattern kind needs.
func lookback(kind Kind) int {
	switch kind {
	case KindEngulfing:
		return 1
	case KindMorningStar, KindEveningStar:
		return 2
	default:
		return 0
	}
}

// MatchAt evaluates a single pattern kind at index i. It reports false
// when the formation does not hold or i leaves no room for it.
func MatchAt(candles []candle.Candle, i int, kind Kind) (Match, bool) {
	if i < lookback(kind) || i >= len(candles) {
		return Match{}, false
	}
	c := candles[i]

	switch kind {
	case KindDoji:
		if IsStandardDoji(c) {
			return Match{Index: i, Kind: kind, Direction: DirectionNeutral, Strength: dojiStrength(c)}, true
		}
	case KindDragonflyDoji:
		if IsDragonflyDoji(c) {
			return Match{Index: i, Kind: kind, Direction: DirectionBullish, Strength: dojiStrength(c)}, true
		}
	case KindGravestoneDoji:
		if IsGravestoneDoji(c) {
			return Match{Index: i, Kind: kind, Direction: DirectionBearish, Strength: dojiStrength(c)}, true
		}
	case KindLongLeggedDoji:
		if IsLongLeggedDoji(c) {
			return Match{Index: i, Kind: kind, Direction: DirectionNeutral, Strength: dojiStrength(c)}, true
		}
	case KindHammer:
		if IsHammer(c) {
			return Match{Index: i, Kind: kind, Direction: DirectionBullish, Strength: shadowStrength(lowerShadowRatio(c), c)}, true
		}
	case KindHangingMan:
		if IsHangingMan(c) {
			return Match{Index: i, Kind: kind, Direction: DirectionBearish, Strength: shadowStrength(lowerShadowRatio(c), c)}, true
		}
	case KindEngulfing:
		prev := candles[i-1]
		if IsBullishEngulfing(prev, c) {
			return Match{Index: i, Kind: kind, Direction: DirectionBullish, Strength: engulfingStrength(prev, c)}, true
		}
		if IsBearishEngulfing(prev, c) {
			return Match{Index: i, Kind: kind, Direction: DirectionBearish, Strength: engulfingStrength(prev, c)}, true
		}
	case KindMorningStar:
		if IsMorningStar(candles[i-2], candles[i-1], c) {
			return Match{Index: i, Kind: kind, Direction: DirectionBullish, Strength: StrengthMedium}, true
		}
	case KindEveningStar:
		if IsEveningStar(candles[i-2], candles[i-1], c) {
			return Match{Index: i, Kind: kind, Direction: DirectionBearish, Strength: StrengthMedium}, true
		}
	}
	return Match{}, false
}

// Detect scans the series for the given pattern kinds. With no kinds it
// scans for all of them. Matches come back ordered by index.
func Detect(candles []candle.Candle, kinds ...Kind) ([]Match, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("pattern: need at least 1 candle")
	}
	if len(kinds) == 0 {
		kinds = Kinds()
	}
	for _, k := range kinds {
		if _, err := ParseKind(string(k)); err != nil {
			return nil, err
		}
	}

	var matches []Match
	for i := range candles {
		for _, k := range kinds {
			if m, ok := MatchAt(candles, i, k); ok {
				matches = append(matches, m)
			}
		}
	}
	return matches, nil
}

// Candle geometry helpers

func bodySize(c candle.Candle) float64 {
	return math.Abs(c.Close - c.Open)
}

func upperShadow(c candle.Candle) float64 {
	return c.High - math.Max(c.Open, c.Close)
}

func lowerShadow(c candle.Candle) float64 {
	return math.Min(c.Open, c.Close) - c.Low
}

func totalRange(c candle.Candle) float64 {
	return c.High - c.Low
}

func bodyRatio(c candle.Candle) float64 {
	r := totalRange(c)
	if r == 0 {
		return 0
	}
	return bodySize(c) / r
}

func upperShadowRatio(c candle.Candle) float64 {
	r := totalRange(c)
	if r == 0 {
		return 0
	}
	return upperShadow(c) / r
}

func lowerShadowRatio(c candle.Candle) float64 {
	r := totalRange(c)
	if r == 0 {
		return 0
	}
	return lowerShadow(c) / r
}

// IsDoji reports whether the candle body is under 10% of its range.
func IsDoji(c candle.Candle) bool {
	if totalRange(c) == 0 {
		return false
	}
	return bodyRatio(c) < 0.1
}

// IsStandardDoji reports a doji with shadows on both sides that does not
// qualify as a dragonfly, gravestone, or long-legged variant.
func IsStandardDoji(c candle.Candle) bool {
	if !IsDoji(c) {
		return false
	}
	upper := upperShadowRatio(c)
	lower := lowerShadowRatio(c)
	return upper > 0.05 && lower > 0.05 && !(upper > 0.4 && lower > 0.4)
}

// IsDragonflyDoji reports a doji with no upper shadow and a long lower
// shadow.
func IsDragonflyDoji(c candle.Candle) bool {
	if !IsDoji(c) {
		return false
	}
	return upperShadowRatio(c) <= 0.05 && lowerShadowRatio(c) > 0.3
}

// IsGravestoneDoji reports a doji with a long upper shadow and no lower
// shadow.
func IsGravestoneDoji(c candle.Candle) bool {
	if !IsDoji(c) {
		return false
	}
	return upperShadowRatio(c) >= 0.3 && lowerShadowRatio(c) < 0.05
}

// IsLongLeggedDoji reports a doji with long shadows on both sides.
func IsLongLeggedDoji(c candle.Candle) bool {
	if !IsDoji(c) {
		return false
	}
	return upperShadowRatio(c) > 0.4 && lowerShadowRatio(c) > 0.4
}

// IsHammer reports a bullish candle with a small body near the high and
// a lower shadow at least twice the body.
func IsHammer(c candle.Candle) bool {
	return hasHammerShape(c) && c.Close > c.Open
}

// IsHangingMan reports the same shape closed bearish.
func IsHangingMan(c candle.Candle) bool {
	return hasHammerShape(c) && c.Close < c.Open
}

func hasHammerShape(c candle.Candle) bool {
	body := bodySize(c)
	if body == 0 || totalRange(c) == 0 {
		return false
	}
	if bodyRatio(c) > 0.3 {
		return false
	}
	if lowerShadow(c)/body < 2.0 {
		return false
	}
	return upperShadowRatio(c) <= 0.1
}

// IsBullishEngulfing reports a bullish body that fully engulfs the
// previous bearish body.
func IsBullishEngulfing(previous, current candle.Candle) bool {
	if current.Close <= current.Open || previous.Close >= previous.Open {
		return false
	}
	return engulfs(current, previous)
}

// IsBearishEngulfing reports a bearish body that fully engulfs the
// previous bullish body.
func IsBearishEngulfing(previous, current candle.Candle) bool {
	if current.Close >= current.Open || previous.Close <= previous.Open {
		return false
	}
	return engulfs(current, previous)
}

func engulfs(current, previous candle.Candle) bool {
	curHigh := math.Max(current.Open, current.Close)
	curLow := math.Min(current.Open, current.Close)
	prevHigh := math.Max(previous.Open, previous.Close)
	prevLow := math.Min(previous.Open, previous.Close)
	return curHigh >= prevHigh && curLow <= prevLow
}

// IsMorningStar reports a bearish candle, a small-bodied candle gapping
// below it, then a bullish candle closing above the first body midpoint.
func IsMorningStar(first, second, third candle.Candle) bool {
	if first.Close >= first.Open {
		return false
	}
	if bodyRatio(second) > 0.3 || second.High >= first.Low {
		return false
	}
	if third.Close <= third.Open {
		return false
	}
	return third.Close > (first.Open+first.Close)/2
}

// IsEveningStar reports a bullish candle, a small-bodied candle gapping
// above it, then a bearish candle closing below the first body midpoint.
func IsEveningStar(first, second, third candle.Candle) bool {
	if first.Close <= first.Open {
		return false
	}
	if bodyRatio(second) > 0.3 || second.Low <= first.High {
		return false
	}
	if third.Close >= third.Open {
		return false
	}
	return third.Close < (first.Open+first.Close)/2
}

func dojiStrength(c candle.Candle) float64 {
	switch br := bodyRatio(c); {
	case br < 0.05:
		return StrengthStrong
	case br < 0.1:
		return StrengthMedium
	default:
		return StrengthWeak
	}
}

func shadowStrength(shadow float64, c candle.Candle) float64 {
	strength := StrengthWeak
	switch {
	case shadow > 0.6:
		strength = StrengthStrong
	case shadow > 0.4:
		strength = StrengthMedium
	}
	if bodyRatio(c) < 0.1 {
		strength = math.Min(strength*1.2, 1.0)
	}
	return strength
}

func engulfingStrength(previous, current candle.Candle) float64 {
	prevBody := bodySize(previous)
	if prevBody == 0 {
		return StrengthWeak
	}
	strength := math.Min(bodySize(current)/prevBody/2.0, 1.0)
	if current.Volume > previous.Volume*1.5 {
		strength = math.Min(strength*1.2, 1.0)
	}
	return math.Max(strength, StrengthWeak)
}
