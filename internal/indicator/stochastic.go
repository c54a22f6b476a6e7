package indicator

import (
	"fmt"
	"math"

	"github.com/amirphl/hypertrader/internal/candle"
)

// StochasticResult holds the results of stochastic oscillator calculation
type StochasticResult struct {
	K []float64 // %K line values
	D []float64 // %D line values
}

// CalculateStochastic calculates the Stochastic Oscillator (%K and %D):
// raw %K = 100 * (close - lowestLow) / (highestHigh - lowestLow) over
// periodK candles, smoothed by an SMA of smoothK; %D is an SMA of the
// smoothed %K over periodD. A flat window defaults to 50.
func CalculateStochastic(candles []candle.Candle, periodK, smoothK, periodD int) (*StochasticResult, error) {
	if periodK <= 0 || smoothK <= 0 || periodD <= 0 {
		return nil, fmt.Errorf("stochastic: all periods must be positive integers")
	}
	minRequired := periodK + smoothK + periodD - 2
	if len(candles) < minRequired {
		return nil, fmt.Errorf("stochastic: need at least %d candles, got %d: %w", minRequired, len(candles), ErrInsufficientData)
	}

	n := len(candles)
	raw := make([]float64, n)
	for i := 0; i < periodK-1; i++ {
		raw[i] = math.NaN()
	}
	for i := periodK - 1; i < n; i++ {
		start := i - (periodK - 1)
		lowest := candles[start].Low
		highest := candles[start].High
		for j := start + 1; j <= i; j++ {
			if candles[j].Low < lowest {
				lowest = candles[j].Low
			}
			if candles[j].High > highest {
				highest = candles[j].High
			}
		}
		if highest == lowest {
			raw[i] = 50.0
		} else {
			raw[i] = 100.0 * (candles[i].Close - lowest) / (highest - lowest)
		}
	}

	result := &StochasticResult{
		K: make([]float64, n),
		D: make([]float64, n),
	}

	firstK := periodK - 1 + smoothK - 1
	for i := 0; i < firstK; i++ {
		result.K[i] = math.NaN()
	}
	for i := firstK; i < n; i++ {
		var sum float64
		for j := i - (smoothK - 1); j <= i; j++ {
			sum += raw[j]
		}
		result.K[i] = sum / float64(smoothK)
	}

	firstD := firstK + periodD - 1
	for i := 0; i < firstD; i++ {
		result.D[i] = math.NaN()
	}
	for i := firstD; i < n; i++ {
		var sum float64
		for j := i - (periodD - 1); j <= i; j++ {
			sum += result.K[j]
		}
		result.D[i] = sum / float64(periodD)
	}

	return result, nil
}

// DefaultStochasticSettings returns the conventional stochastic parameters.
func DefaultStochasticSettings() (periodK, smoothK, periodD int) {
	return 14, 1, 3
}

// StochasticSignals defines common stochastic oscillator signal levels
const (
	StochasticOverbought = 80.0 // Upper band - overbought condition
	StochasticOversold   = 20.0 // Lower band - oversold condition
	StochasticMiddle     = 50.0 // Middle band - neutral zone
)

// IsOverbought checks if the stochastic oscillator indicates overbought conditions
func IsOverbought(k, d float64) bool {
	return k > StochasticOverbought && d > StochasticOverbought
}

// IsOversold checks if the stochastic oscillator indicates oversold conditions
func IsOversold(k, d float64) bool {
	return k < StochasticOversold && d < StochasticOversold
}

// IsBullishCrossover detects when %K crosses above %D (bullish signal)
func IsBullishCrossover(prevK, prevD, currK, currD float64) bool {
	return prevK <= prevD && currK > currD
}

// IsBearishCrossover detects when %K crosses below %D (bearish signal)
func IsBearishCrossover(prevK, prevD, currK, currD float64) bool {
	return prevK >= prevD && currK < currD
}
