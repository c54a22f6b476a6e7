package indicator

import (
	"fmt"
	"math"
)

// BollingerResult holds the three bands of a Bollinger calculation,
// index-aligned with the input prices.
type BollingerResult struct {
	Middle []float64
	Upper  []float64
	Lower  []float64
}

// CalculateBollingerBands calculates Bollinger Bands: the middle band is
// the SMA over the period, the outer bands sit multiplier population
// standard deviations away from it.
func CalculateBollingerBands(prices []float64, period int, multiplier float64) (*BollingerResult, error) {
	if err := validateInput(len(prices), period, "bollinger"); err != nil {
		return nil, err
	}
	if multiplier <= 0 {
		return nil, fmt.Errorf("bollinger: multiplier must be positive, got %f", multiplier)
	}

	middle, err := CalculateSMA(prices, period)
	if err != nil {
		return nil, err
	}

	n := len(prices)
	result := &BollingerResult{
		Middle: middle,
		Upper:  make([]float64, n),
		Lower:  make([]float64, n),
	}

	for i := 0; i < period-1; i++ {
		result.Upper[i] = math.NaN()
		result.Lower[i] = math.NaN()
	}

	for i := period - 1; i < n; i++ {
		mean := middle[i]
		var variance float64
		for j := i - (period - 1); j <= i; j++ {
			d := prices[j] - mean
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(period))
		result.Upper[i] = mean + multiplier*sd
		result.Lower[i] = mean - multiplier*sd
	}

	return result, nil
}
