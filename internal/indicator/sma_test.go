package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateSMA(t *testing.T) {
	tests := []struct {
		name        string
		prices      []float64
		period      int
		expected    []float64
		expectError bool
	}{
		{
			name:     "Basic SMA calculation",
			prices:   []float64{1, 2, 3, 4, 5},
			period:   3,
			expected: []float64{math.NaN(), math.NaN(), 2, 3, 4},
		},
		{
			name:     "Period of one is identity",
			prices:   []float64{5, 7, 9},
			period:   1,
			expected: []float64{5, 7, 9},
		},
		{
			name:     "Flat prices",
			prices:   []float64{10, 10, 10, 10},
			period:   2,
			expected: []float64{math.NaN(), 10, 10, 10},
		},
		{
			name:     "Exact minimum data length",
			prices:   []float64{2, 4, 6},
			period:   3,
			expected: []float64{math.NaN(), math.NaN(), 4},
		},
		{
			name:        "Insufficient data",
			prices:      []float64{1, 2},
			period:      3,
			expectError: true,
		},
		{
			name:        "Invalid period",
			prices:      []float64{1, 2, 3},
			period:      0,
			expectError: true,
		},
		{
			name:        "Empty prices",
			prices:      []float64{},
			period:      3,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := CalculateSMA(tt.prices, tt.period)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, result)
				return
			}

			require.NoError(t, err)
			require.Equal(t, len(tt.expected), len(result))

			for i := range tt.expected {
				if math.IsNaN(tt.expected[i]) {
					assert.True(t, math.IsNaN(result[i]), "Expected NaN at index %d", i)
				} else {
					assert.InDelta(t, tt.expected[i], result[i], 0.0001, "SMA mismatch at index %d", i)
				}
			}
		})
	}
}

func TestSMAInsufficientDataSentinel(t *testing.T) {
	_, err := CalculateSMA([]float64{1, 2}, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestSMAMatchesNaiveWindows(t *testing.T) {
	// The running-sum implementation must agree with a direct window mean.
	prices := []float64{3.5, 1.25, 8.0, 2.75, 9.5, 0.5, 6.25, 4.0, 7.75, 5.5}
	period := 4

	result, err := CalculateSMA(prices, period)
	require.NoError(t, err)

	for i := period - 1; i < len(prices); i++ {
		var sum float64
		for j := i - period + 1; j <= i; j++ {
			sum += prices[j]
		}
		assert.InDelta(t, sum/float64(period), result[i], 1e-9, "window mean mismatch at index %d", i)
	}
}

func BenchmarkCalculateSMA(b *testing.B) {
	prices := make([]float64, 1000)
	for i := range prices {
		prices[i] = float64(i % 100)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = CalculateSMA(prices, 20)
	}
}
