package indicator

import (
	"fmt"
	"math"
)

// MACDResult holds the three lines of a MACD calculation, index-aligned
// with the input prices.
type MACDResult struct {
	MACD      []float64 // fast EMA minus slow EMA
	Signal    []float64 // EMA of the MACD line
	Histogram []float64 // MACD minus Signal
}

// CalculateMACD calculates the Moving Average Convergence Divergence.
// MACD values appear once the slow EMA has warmed up; Signal and Histogram
// appear signalPeriod-1 positions later, when the signal EMA over the MACD
// line has warmed up too.
func CalculateMACD(prices []float64, fastPeriod, slowPeriod, signalPeriod int) (*MACDResult, error) {
	if fastPeriod <= 0 || slowPeriod <= 0 || signalPeriod <= 0 {
		return nil, fmt.Errorf("macd: all periods must be positive integers")
	}
	if fastPeriod >= slowPeriod {
		return nil, fmt.Errorf("macd: fast period %d must be less than slow period %d", fastPeriod, slowPeriod)
	}
	minRequired := slowPeriod + signalPeriod - 1
	if len(prices) < minRequired {
		return nil, fmt.Errorf("macd: need at least %d values, got %d: %w", minRequired, len(prices), ErrInsufficientData)
	}

	fast, err := CalculateEMA(prices, fastPeriod)
	if err != nil {
		return nil, err
	}
	slow, err := CalculateEMA(prices, slowPeriod)
	if err != nil {
		return nil, err
	}

	n := len(prices)
	result := &MACDResult{
		MACD:      make([]float64, n),
		Signal:    make([]float64, n),
		Histogram: make([]float64, n),
	}

	for i := 0; i < slowPeriod-1; i++ {
		result.MACD[i] = math.NaN()
	}
	for i := slowPeriod - 1; i < n; i++ {
		result.MACD[i] = fast[i] - slow[i]
	}

	// Signal line: EMA over the valid MACD values, seeded by their SMA.
	firstSignal := slowPeriod - 1 + signalPeriod - 1
	for i := 0; i < firstSignal; i++ {
		result.Signal[i] = math.NaN()
		result.Histogram[i] = math.NaN()
	}

	var sum float64
	for i := slowPeriod - 1; i <= firstSignal; i++ {
		sum += result.MACD[i]
	}
	result.Signal[firstSignal] = sum / float64(signalPeriod)
	result.Histogram[firstSignal] = result.MACD[firstSignal] - result.Signal[firstSignal]

	k := 2.0 / float64(signalPeriod+1)
	for i := firstSignal + 1; i < n; i++ {
		result.Signal[i] = result.MACD[i]*k + result.Signal[i-1]*(1-k)
		result.Histogram[i] = result.MACD[i] - result.Signal[i]
	}

	return result, nil
}
