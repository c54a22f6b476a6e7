// Package indicator provides technical analysis indicators for financial markets
//
// All calculations are deterministic pure functions over a price or candle
// series. Results are aligned to the input index; positions inside an
// indicator's warm-up window hold math.NaN().
package indicator

import (
	"errors"
	"fmt"
)

// ErrInsufficientData is returned when a series is shorter than the
// requested period. Callers treat it as a warning, not a fault.
var ErrInsufficientData = errors.New("insufficient data")

func validateInput(n, period int, name string) error {
	if period <= 0 {
		return fmt.Errorf("%s: period must be a positive integer, got %d", name, period)
	}
	if n < period {
		return fmt.Errorf("%s: need at least %d values, got %d: %w", name, period, n, ErrInsufficientData)
	}
	return nil
}
