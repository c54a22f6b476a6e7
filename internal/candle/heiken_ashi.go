// Package candle
package candle

// GenerateHeikenAshiCandles generates Heiken Ashi candles from raw candles.
// Input candles must be sorted by timestamp ascending.
func GenerateHeikenAshiCandles(rawCandles []Candle) []Candle {
	if len(rawCandles) == 0 {
		return nil
	}

	haCandles := make([]Candle, len(rawCandles))
	var prevHaOpen, prevHaClose float64

	for i, c := range rawCandles {
		ha := c // copy base fields
		ha.Close = (c.Open + c.High + c.Low + c.Close) / 4
		if i == 0 {
			ha.Open = (c.Open + c.Close) / 2
		} else {
			ha.Open = (prevHaOpen + prevHaClose) / 2
		}
		ha.High = max3(c.High, ha.Open, ha.Close)
		ha.Low = min3(c.Low, ha.Open, ha.Close)
		ha.Source = "heiken_ashi"

		haCandles[i] = ha
		prevHaOpen = ha.Open
		prevHaClose = ha.Close
	}
	return haCandles
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
