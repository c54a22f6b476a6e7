package tfutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	tests := []struct {
		timeframe string
		want      time.Duration
		wantErr   bool
	}{
		{"1m", time.Minute, false},
		{"5m", 5 * time.Minute, false},
		{"15m", 15 * time.Minute, false},
		{"30m", 30 * time.Minute, false},
		{"1h", time.Hour, false},
		{"4h", 4 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"2h", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.timeframe, func(t *testing.T) {
			d, err := ParseTimeframe(tt.timeframe)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestPeriodsPerYear(t *testing.T) {
	tests := []struct {
		timeframe string
		want      float64
	}{
		{"1m", 525600},
		{"1h", 8760},
		{"4h", 2190},
		{"1d", 365},
		{"bogus", 0},
	}

	for _, tt := range tests {
		t.Run(tt.timeframe, func(t *testing.T) {
			assert.InDelta(t, tt.want, PeriodsPerYear(tt.timeframe), 1e-9)
		})
	}
}

func TestIsValidTimeframe(t *testing.T) {
	for _, tf := range GetSupportedTimeframes() {
		assert.True(t, IsValidTimeframe(tf), tf)
	}
	assert.False(t, IsValidTimeframe("7m"))
	assert.False(t, IsValidTimeframe(""))
}
