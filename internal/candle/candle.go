// Package candle
package candle

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/amirphl/hypertrader/internal/tfutils"
)

type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Source    string    `json:"source"`
}

// Validate checks if a candle has valid data
func (c *Candle) Validate() error {
	if c.Timestamp.IsZero() {
		return errors.New("candle timestamp is zero")
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return errors.New("candle prices must be positive")
	}
	if c.High < c.Low {
		return errors.New("candle high cannot be less than low")
	}
	if c.Open < c.Low || c.Open > c.High {
		return errors.New("candle open price must be between high and low")
	}
	if c.Close < c.Low || c.Close > c.High {
		return errors.New("candle close price must be between high and low")
	}
	if c.Volume < 0 {
		return errors.New("candle volume cannot be negative")
	}
	if c.Symbol == "" {
		return errors.New("candle symbol cannot be empty")
	}
	if c.Timeframe == "" {
		return errors.New("candle timeframe cannot be empty")
	}
	return nil
}

// Normalize validates, sorts, and deduplicates a candle series so it can be
// replayed chronologically. Duplicate timestamps keep the first occurrence.
// The input slice is not modified. Gaps between candles are allowed.
func Normalize(candles []Candle) ([]Candle, error) {
	if len(candles) == 0 {
		return nil, nil
	}

	for i := range candles {
		if err := candles[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid candle at index %d: %w", i, err)
		}
	}

	sorted := make([]Candle, len(candles))
	copy(sorted, candles)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	deduped := sorted[:0]
	var lastTS time.Time
	for _, c := range sorted {
		if !lastTS.IsZero() && c.Timestamp.Equal(lastTS) {
			continue
		}
		deduped = append(deduped, c)
		lastTS = c.Timestamp
	}

	return deduped, nil
}

// Closes extracts the close price series from a candle slice.
func Closes(candles []Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}

// Volumes extracts the volume series from a candle slice.
func Volumes(candles []Candle) []float64 {
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		volumes[i] = c.Volume
	}
	return volumes
}

// Aggregate rolls candles up to a higher timeframe. Candles must share one
// symbol; gaps are tolerated and produce no synthetic buckets. Buckets are
// keyed by the truncated timestamp of their first candle.
func Aggregate(candles []Candle, timeframe string) ([]Candle, error) {
	if len(candles) == 0 {
		return nil, nil
	}

	dur, err := tfutils.ParseTimeframe(timeframe)
	if err != nil {
		return nil, fmt.Errorf("invalid target timeframe %s: %w", timeframe, err)
	}

	normalized, err := Normalize(candles)
	if err != nil {
		return nil, err
	}

	symbol := normalized[0].Symbol
	srcDur, err := tfutils.ParseTimeframe(normalized[0].Timeframe)
	if err != nil {
		return nil, fmt.Errorf("invalid source timeframe %s: %w", normalized[0].Timeframe, err)
	}
	if srcDur >= dur {
		return nil, fmt.Errorf("source timeframe %s must be smaller than target %s", normalized[0].Timeframe, timeframe)
	}

	var result []Candle
	for _, c := range normalized {
		if c.Symbol != symbol {
			return nil, fmt.Errorf("mixed symbols in aggregation input: %s and %s", symbol, c.Symbol)
		}
		bucket := c.Timestamp.Truncate(dur)
		if len(result) == 0 || !result[len(result)-1].Timestamp.Equal(bucket) {
			agg := c
			agg.Timestamp = bucket
			agg.Timeframe = timeframe
			agg.Source = "constructed"
			result = append(result, agg)
			continue
		}
		last := &result[len(result)-1]
		if c.High > last.High {
			last.High = c.High
		}
		if c.Low < last.Low {
			last.Low = c.Low
		}
		last.Close = c.Close
		last.Volume += c.Volume
	}

	for i := range result {
		if err := result[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid aggregated candle at %s: %w", result[i].Timestamp, err)
		}
	}

	return result, nil
}

// LoadCSV reads a candle series from a CSV file with columns
// timestamp,open,high,low,close,volume. The timestamp column accepts unix
// seconds or RFC3339. A header row is detected and skipped.
func LoadCSV(path, symbol, timeframe string) ([]Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening candle file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 6

	var candles []Candle
	line := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s line %d: %w", path, line+1, err)
		}
		line++

		ts, err := parseTimestamp(record[0])
		if err != nil {
			if line == 1 {
				continue // header row
			}
			return nil, fmt.Errorf("parsing timestamp at line %d: %w", line, err)
		}

		fields := make([]float64, 5)
		for i := 1; i <= 5; i++ {
			v, err := strconv.ParseFloat(record[i], 64)
			if err != nil {
				return nil, fmt.Errorf("parsing field %d at line %d: %w", i, line, err)
			}
			fields[i-1] = v
		}

		c := Candle{
			Timestamp: ts,
			Open:      fields[0],
			High:      fields[1],
			Low:       fields[2],
			Close:     fields[3],
			Volume:    fields[4],
			Symbol:    symbol,
			Timeframe: timeframe,
			Source:    "csv",
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("invalid candle at line %d: %w", line, err)
		}
		candles = append(candles, c)
	}

	return candles, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}
	return t.UTC(), nil
}
