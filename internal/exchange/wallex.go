package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	wallex "github.com/wallexchange/wallex-go"
	"go.uber.org/zap"

	"github.com/amirphl/hypertrader/internal/candle"
	"github.com/amirphl/hypertrader/internal/tfutils"
)

var _ Fetcher = (*Wallex)(nil)

// Wallex fetches candles over the Wallex REST API with exponential
// backoff on transient failures.
type Wallex struct {
	client     *wallex.Client
	logger     *zap.Logger
	maxElapsed time.Duration
}

func NewWallex(apiKey string, logger *zap.Logger) *Wallex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Wallex{
		client:     wallex.New(wallex.ClientOptions{APIKey: apiKey}),
		logger:     logger,
		maxElapsed: 2 * time.Minute,
	}
}

// NormalizeSymbol converts e.g. btc-usdt to BTCUSDT for the Wallex API.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "-", ""))
}

// wallexResolution maps a timeframe to the API's resolution strings,
// which are minute counts except for the daily bar.
func wallexResolution(timeframe string) string {
	if timeframe == "1d" {
		return "1D"
	}
	return strconv.Itoa(tfutils.TimeframeMinutes(timeframe))
}

func (w *Wallex) FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	if !tfutils.IsValidTimeframe(timeframe) {
		return nil, fmt.Errorf("exchange: unsupported timeframe %q", timeframe)
	}

	var raw []*wallex.Candle
	fetch := func() error {
		var err error
		raw, err = w.client.Candles(NormalizeSymbol(symbol), wallexResolution(timeframe), start, end)
		if err != nil {
			w.logger.Warn("wallex fetch failed, retrying",
				zap.String("symbol", symbol), zap.String("timeframe", timeframe), zap.Error(err))
		}
		return err
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = w.maxElapsed
	if err := backoff.Retry(fetch, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("exchange: fetch candles %s %s: %w", symbol, timeframe, err)
	}

	candles := make([]candle.Candle, 0, len(raw))
	skipped := 0
	for _, wc := range raw {
		c, err := candleFromWallex(wc, symbol, timeframe)
		if err != nil {
			skipped++
			w.logger.Debug("skipping bad candle row", zap.Time("timestamp", wc.Timestamp), zap.Error(err))
			continue
		}
		candles = append(candles, c)
	}
	w.logger.Info("candles fetched",
		zap.String("symbol", symbol), zap.String("timeframe", timeframe),
		zap.Int("count", len(candles)), zap.Int("skipped", skipped))
	return candles, nil
}

// candleFromWallex parses one API row. Rows that do not parse or do not
// pass validation are dropped by the caller rather than poisoning the
// series.
func candleFromWallex(wc *wallex.Candle, symbol, timeframe string) (candle.Candle, error) {
	open, err := strconv.ParseFloat(string(wc.Open), 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse open: %w", err)
	}
	high, err := strconv.ParseFloat(string(wc.High), 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse high: %w", err)
	}
	low, err := strconv.ParseFloat(string(wc.Low), 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse low: %w", err)
	}
	cl, err := strconv.ParseFloat(string(wc.Close), 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse close: %w", err)
	}
	volume, err := strconv.ParseFloat(string(wc.Volume), 64)
	if err != nil {
		return candle.Candle{}, fmt.Errorf("parse volume: %w", err)
	}

	c := candle.Candle{
		Timestamp: wc.Timestamp.UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cl,
		Volume:    volume,
		Symbol:    symbol,
		Timeframe: timeframe,
		Source:    "wallex",
	}
	if err := c.Validate(); err != nil {
		return candle.Candle{}, err
	}
	return c, nil
}
