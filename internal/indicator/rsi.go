package indicator

import (
	"fmt"
	"math"
)

// CalculateRSI calculates the Relative Strength Index using Wilder's
// smoothing. The first value at index period uses the simple average of
// the first period price deltas; subsequent values use the recurrence
// avgGain = (avgGain*(period-1) + gain) / period (same for losses).
// A zero average loss yields RSI 100.
func CalculateRSI(prices []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("rsi: period must be a positive integer, got %d", period)
	}
	if len(prices) < period+1 {
		return nil, fmt.Errorf("rsi: need at least %d prices, got %d: %w", period+1, len(prices), ErrInsufficientData)
	}

	rsi := make([]float64, len(prices))
	for i := 0; i < period; i++ {
		rsi[i] = math.NaN()
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gain += change
		} else {
			loss += -change
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	rsi[period] = rsiFromAverages(avgGain, avgLoss)

	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gain = change
			loss = 0
		} else {
			gain = 0
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		rsi[i] = rsiFromAverages(avgGain, avgLoss)
	}
	return rsi, nil
}

// CalculateLastRSI calculates only the most recent RSI value without
// allocating the full series.
func CalculateLastRSI(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("rsi: period must be a positive integer, got %d", period)
	}
	if len(prices) < period+1 {
		return 0, fmt.Errorf("rsi: need at least %d prices, got %d: %w", period+1, len(prices), ErrInsufficientData)
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gain += change
		} else {
			loss += -change
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gain = change
			loss = 0
		} else {
			gain = 0
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}
	return rsiFromAverages(avgGain, avgLoss), nil
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// RSI signal levels commonly used by reversal strategies.
const (
	RSIOverbought = 70.0
	RSIOversold   = 30.0
)
