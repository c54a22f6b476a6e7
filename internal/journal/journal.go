// Package journal writes run artifacts to disk: the trade ledger and
// equity curve as CSV, the performance report as JSON.
package journal

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/amirphl/hypertrader/internal/analytics"
	"github.com/amirphl/hypertrader/internal/backtest"
)

var tradeHeader = []string{
	"id", "symbol", "direction",
	"entry_index", "entry_time", "entry_price", "entry_reason",
	"exit_index", "exit_time", "exit_price", "exit_reason",
	"size", "quantity", "equity_at_entry", "pnl", "pnl_pct", "fees", "mae", "mfe",
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteTradesCSV writes the closed ledger, one row per trade, with a
// header row. Timestamps are RFC3339.
func WriteTradesCSV(path string, trades []backtest.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("journal: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(tradeHeader); err != nil {
		return fmt.Errorf("journal: write header: %w", err)
	}
	for _, t := range trades {
		row := []string{
			strconv.Itoa(t.ID), t.Symbol, t.Direction.String(),
			strconv.Itoa(t.EntryIndex), t.EntryTime.Format(time.RFC3339), formatFloat(t.EntryPrice), t.EntryReason,
			strconv.Itoa(t.ExitIndex), t.ExitTime.Format(time.RFC3339), formatFloat(t.ExitPrice), string(t.ExitReason),
			formatFloat(t.Size), formatFloat(t.Quantity), formatFloat(t.EquityAtEntry),
			formatFloat(t.PnL), formatFloat(t.PnLPct), formatFloat(t.Fees),
			formatFloat(t.MAE), formatFloat(t.MFE),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("journal: write trade %d: %w", t.ID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("journal: flush %s: %w", path, err)
	}
	return nil
}

// WriteEquityCSV writes the per-candle equity curve.
func WriteEquityCSV(path string, curve []backtest.EquityPoint) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("journal: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"time", "equity"}); err != nil {
		return fmt.Errorf("journal: write header: %w", err)
	}
	for _, p := range curve {
		if err := w.Write([]string{p.Time.Format(time.RFC3339), formatFloat(p.Equity)}); err != nil {
			return fmt.Errorf("journal: write equity point: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("journal: flush %s: %w", path, err)
	}
	return nil
}

// WriteReportJSON writes the report indented so it can be read directly.
func WriteReportJSON(path string, report analytics.PerformanceReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("journal: marshal report: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("journal: write %s: %w", path, err)
	}
	return nil
}

// ExportRun writes trades.csv, equity.csv, and report.json under dir,
// creating it if needed.
func ExportRun(dir string, result *backtest.Result, report analytics.PerformanceReport) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("journal: create dir %s: %w", dir, err)
	}
	if err := WriteTradesCSV(filepath.Join(dir, "trades.csv"), result.Trades); err != nil {
		return err
	}
	if err := WriteEquityCSV(filepath.Join(dir, "equity.csv"), result.EquityCurve); err != nil {
		return err
	}
	return WriteReportJSON(filepath.Join(dir, "report.json"), report)
}
