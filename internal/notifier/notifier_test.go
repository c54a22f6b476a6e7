package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/hypertrader/internal/analytics"
	"github.com/amirphl/hypertrader/internal/montecarlo"
)

func testTelegram(t *testing.T, serverURL string) *Telegram {
	t.Helper()
	tg, err := NewTelegram("TOKEN", "42", "", 0, 0, nil)
	require.NoError(t, err)
	tg.baseURL = serverURL
	tg.retryInterval = time.Millisecond
	return tg
}

func TestTelegramSend(t *testing.T) {
	var gotPath, gotChat, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotChat = r.Form.Get("chat_id")
		gotText = r.Form.Get("text")
	}))
	defer srv.Close()

	tg := testTelegram(t, srv.URL)
	require.NoError(t, tg.Send(context.Background(), "backtest finished"))
	assert.Equal(t, "/botTOKEN/sendMessage", gotPath)
	assert.Equal(t, "42", gotChat)
	assert.Equal(t, "backtest finished", gotText)
}

func TestTelegramRetriesTransientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch hits.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	tg := testTelegram(t, srv.URL)
	require.NoError(t, tg.Send(context.Background(), "hello"))
	assert.Equal(t, int32(3), hits.Load())
}

func TestTelegramDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	tg := testTelegram(t, srv.URL)
	err := tg.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), hits.Load())
}

func TestTelegramRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tg := testTelegram(t, srv.URL)
	require.Error(t, tg.Send(ctx, "hello"))
}

func TestNewTelegramRejectsBadProxy(t *testing.T) {
	_, err := NewTelegram("TOKEN", "42", "://nope", 0, 0, nil)
	require.Error(t, err)
}

func TestFormatRunSummary(t *testing.T) {
	report := analytics.PerformanceReport{
		InitialEquity: 100000,
		FinalEquity:   112000,
		TotalReturn:   12,
		MaxDrawdown:   -8.5,
		SharpeRatio:   1.42,
		WinRate:       55,
		ProfitFactor:  1.8,
		NumTrades:     40,
	}
	mc := &montecarlo.Result{P5: -5.2, P50: 11.8, P95: 30.1, RiskOfRuin: 0.035}

	msg := FormatRunSummary("BTCUSDT", "momentum", "1h", report, mc)
	assert.Contains(t, msg, "BTCUSDT momentum 1h")
	assert.Contains(t, msg, "Return: 12.00% (equity 100000.00 -> 112000.00)")
	assert.Contains(t, msg, "Trades: 40, win rate 55.0%, profit factor 1.80")
	assert.Contains(t, msg, "Max drawdown: -8.50%, Sharpe: 1.42")
	assert.Contains(t, msg, "Monte Carlo p5/p50/p95: -5.20% / 11.80% / 30.10%")
	assert.Contains(t, msg, "Risk of ruin: 3.5%")

	noMC := FormatRunSummary("BTCUSDT", "momentum", "1h", report, nil)
	assert.NotContains(t, noMC, "Monte Carlo")

	thin := FormatRunSummary("BTCUSDT", "momentum", "1h", report, &montecarlo.Result{InsufficientData: true})
	assert.Contains(t, thin, "Monte Carlo: insufficient data")
}

func TestMockNotifier(t *testing.T) {
	m := &Mock{}
	require.NoError(t, m.Send(context.Background(), "one"))
	require.NoError(t, m.Send(context.Background(), "two"))
	assert.Equal(t, []string{"one", "two"}, m.Messages)
}
