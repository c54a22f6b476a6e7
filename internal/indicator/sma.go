package indicator

import "math"

// CalculateSMA calculates the Simple Moving Average over the given period.
// The first period-1 positions are NaN.
func CalculateSMA(prices []float64, period int) ([]float64, error) {
	if err := validateInput(len(prices), period, "sma"); err != nil {
		return nil, err
	}

	sma := make([]float64, len(prices))
	for i := 0; i < period-1; i++ {
		sma[i] = math.NaN()
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	sma[period-1] = sum / float64(period)

	for i := period; i < len(prices); i++ {
		sum += prices[i] - prices[i-period]
		sma[i] = sum / float64(period)
	}
	return sma, nil
}
