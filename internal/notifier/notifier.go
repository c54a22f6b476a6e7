// Package notifier announces finished runs.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/amirphl/hypertrader/internal/analytics"
	"github.com/amirphl/hypertrader/internal/montecarlo"
)

// Notifier delivers a run announcement.
type Notifier interface {
	Send(ctx context.Context, msg string) error
}

// Mock records messages for tests. Safe for concurrent use.
type Mock struct {
	mu       sync.Mutex
	Messages []string
	Err      error
}

func (m *Mock) Send(ctx context.Context, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Messages = append(m.Messages, msg)
	return nil
}

// FormatRunSummary renders the single message sent after a run. mc may
// be nil when Monte Carlo was disabled.
func FormatRunSummary(symbol, strategyName, timeframe string, report analytics.PerformanceReport, mc *montecarlo.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", symbol, strategyName, timeframe)
	fmt.Fprintf(&b, "Return: %.2f%% (equity %.2f -> %.2f)\n",
		report.TotalReturn, report.InitialEquity, report.FinalEquity)
	fmt.Fprintf(&b, "Trades: %d, win rate %.1f%%, profit factor %.2f\n",
		report.NumTrades, report.WinRate, report.ProfitFactor)
	fmt.Fprintf(&b, "Max drawdown: %.2f%%, Sharpe: %.2f\n",
		report.MaxDrawdown, report.SharpeRatio)
	if mc != nil {
		if mc.InsufficientData {
			b.WriteString("Monte Carlo: insufficient data\n")
		} else {
			fmt.Fprintf(&b, "Monte Carlo p5/p50/p95: %.2f%% / %.2f%% / %.2f%%\n", mc.P5, mc.P50, mc.P95)
			fmt.Fprintf(&b, "Risk of ruin: %.1f%%\n", mc.RiskOfRuin*100)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
