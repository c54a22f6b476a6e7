package tfutils

import (
	"errors"
	"time"
)

const minutesPerYear = 365 * 24 * 60

// ParseTimeframe parses timeframe string (e.g., "5m", "1h") to time.Duration
func ParseTimeframe(timeframe string) (time.Duration, error) {
	d := GetTimeframeDuration(timeframe)
	if d == 0 {
		return 0, errors.New("unsupported timeframe")
	}
	return d, nil
}

// GetTimeframeDuration returns the duration for a given timeframe
func GetTimeframeDuration(timeframe string) time.Duration {
	switch timeframe {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return 0
	}
}

func TimeframeMinutes(timeframe string) int {
	return int(GetTimeframeDuration(timeframe) / time.Minute)
}

// PeriodsPerYear returns how many candles of the given timeframe fit in a
// 365-day year. Used to annualize per-candle return statistics. Returns 0
// for unsupported timeframes.
func PeriodsPerYear(timeframe string) float64 {
	minutes := TimeframeMinutes(timeframe)
	if minutes == 0 {
		return 0
	}
	return float64(minutesPerYear) / float64(minutes)
}

// GetSupportedTimeframes returns all supported timeframes
func GetSupportedTimeframes() []string {
	return []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d"}
}

// IsValidTimeframe checks if a timeframe is supported
func IsValidTimeframe(timeframe string) bool {
	return GetTimeframeDuration(timeframe) > 0
}
