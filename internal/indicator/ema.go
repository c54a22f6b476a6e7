package indicator

import "math"

// CalculateEMA calculates the Exponential Moving Average over the given
// period. The first value at index period-1 is seeded with the SMA of the
// first period prices; later values follow the recurrence
// EMA[i] = price[i]*k + EMA[i-1]*(1-k), k = 2/(period+1).
func CalculateEMA(prices []float64, period int) ([]float64, error) {
	if err := validateInput(len(prices), period, "ema"); err != nil {
		return nil, err
	}

	ema := make([]float64, len(prices))
	for i := 0; i < period-1; i++ {
		ema[i] = math.NaN()
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema[period-1] = sum / float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < len(prices); i++ {
		ema[i] = prices[i]*k + ema[i-1]*(1-k)
	}
	return ema, nil
}
