package indicator

import (
	"math"

	"github.com/amirphl/hypertrader/internal/candle"
)

// CalculateATR calculates the Average True Range as a simple moving
// average of the true range over the period. True range for the first
// candle is high-low; later candles take the largest of high-low,
// |high-prevClose|, and |low-prevClose|.
func CalculateATR(candles []candle.Candle, period int) ([]float64, error) {
	if err := validateInput(len(candles), period, "atr"); err != nil {
		return nil, err
	}

	n := len(candles)
	tr := make([]float64, n)
	tr[0] = candles[0].High - candles[0].Low
	for i := 1; i < n; i++ {
		prevClose := candles[i-1].Close
		hl := candles[i].High - candles[i].Low
		hc := math.Abs(candles[i].High - prevClose)
		lc := math.Abs(candles[i].Low - prevClose)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	return CalculateSMA(tr, period)
}
