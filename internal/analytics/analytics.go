// Package analytics reduces a simulation result to summary statistics.
// Every statistic guards its degenerate case, so an empty ledger or a
// flat equity curve produces well defined zeros rather than NaN or Inf.
package analytics

import (
	"math"

	"github.com/amirphl/hypertrader/internal/backtest"
	"github.com/amirphl/hypertrader/internal/tfutils"
)

// ProfitFactorCap stands in for an infinite profit factor when there
// are winners and no losers.
const ProfitFactorCap = 999.0

// PerformanceReport summarizes one backtest run. Percent fields are in
// percent; CAGR is a yearly fraction.
type PerformanceReport struct {
	InitialEquity   float64                     `json:"initial_equity"`
	FinalEquity     float64                     `json:"final_equity"`
	TotalReturn     float64                     `json:"total_return"`
	CAGR            float64                     `json:"cagr"`
	MaxDrawdown     float64                     `json:"max_drawdown"` // always <= 0
	SharpeRatio     float64                     `json:"sharpe_ratio"`
	WinRate         float64                     `json:"win_rate"`
	ProfitFactor    float64                     `json:"profit_factor"`
	Expectancy      float64                     `json:"expectancy"`
	NumTrades       int                         `json:"num_trades"`
	WinningTrades   int                         `json:"winning_trades"`
	LosingTrades    int                         `json:"losing_trades"`
	GrossProfit     float64                     `json:"gross_profit"`
	GrossLoss       float64                     `json:"gross_loss"`
	AvgWin          float64                     `json:"avg_win"`
	AvgLoss         float64                     `json:"avg_loss"`
	AvgMAE          float64                     `json:"avg_mae"`
	AvgMFE          float64                     `json:"avg_mfe"`
	MaxConsecWins   int                         `json:"max_consecutive_wins"`
	MaxConsecLosses int                         `json:"max_consecutive_losses"`
	ExitCounts      map[backtest.ExitReason]int `json:"exit_counts"`
}

// Compute reduces the trades and equity curve of one result. The
// timeframe annualizes the Sharpe ratio; an unknown timeframe leaves
// the ratio unannualized.
func Compute(result *backtest.Result, timeframe string) PerformanceReport {
	report := PerformanceReport{
		InitialEquity: result.InitialEquity,
		FinalEquity:   result.FinalEquity,
		NumTrades:     len(result.Trades),
		ExitCounts:    make(map[backtest.ExitReason]int),
	}

	if result.InitialEquity > 0 {
		report.TotalReturn = (result.FinalEquity/result.InitialEquity - 1) * 100
	}
	report.CAGR = cagr(result)
	report.MaxDrawdown = maxDrawdown(result.EquityCurve)
	report.SharpeRatio = sharpe(result.EquityCurve, timeframe)

	var consecWins, consecLosses int
	for _, tr := range result.Trades {
		report.ExitCounts[tr.ExitReason]++
		report.AvgMAE += tr.MAE
		report.AvgMFE += tr.MFE
		switch {
		case tr.PnL > 0:
			report.WinningTrades++
			report.GrossProfit += tr.PnL
			consecWins++
			consecLosses = 0
		case tr.PnL < 0:
			report.LosingTrades++
			report.GrossLoss += -tr.PnL
			consecLosses++
			consecWins = 0
		default:
			consecWins, consecLosses = 0, 0
		}
		if consecWins > report.MaxConsecWins {
			report.MaxConsecWins = consecWins
		}
		if consecLosses > report.MaxConsecLosses {
			report.MaxConsecLosses = consecLosses
		}
	}

	if report.NumTrades > 0 {
		report.WinRate = float64(report.WinningTrades) / float64(report.NumTrades) * 100
		report.AvgMAE /= float64(report.NumTrades)
		report.AvgMFE /= float64(report.NumTrades)
	}
	if report.WinningTrades > 0 {
		report.AvgWin = report.GrossProfit / float64(report.WinningTrades)
	}
	if report.LosingTrades > 0 {
		report.AvgLoss = report.GrossLoss / float64(report.LosingTrades)
	}

	switch {
	case report.GrossLoss > 0:
		report.ProfitFactor = report.GrossProfit / report.GrossLoss
	case report.GrossProfit > 0:
		report.ProfitFactor = ProfitFactorCap
	}

	winFrac := report.WinRate / 100
	report.Expectancy = winFrac*report.AvgWin - (1-winFrac)*report.AvgLoss

	return report
}

// cagr annualizes the total return over the elapsed calendar days of
// the equity curve.
func cagr(result *backtest.Result) float64 {
	curve := result.EquityCurve
	if len(curve) < 2 || result.InitialEquity <= 0 {
		return 0
	}
	days := curve[len(curve)-1].Time.Sub(curve[0].Time).Hours() / 24
	if days <= 0 {
		return 0
	}
	ratio := result.FinalEquity / result.InitialEquity
	if ratio <= 0 {
		// Wiped out; annualizing is meaningless.
		return -1
	}
	return math.Pow(ratio, 365/days) - 1
}

// maxDrawdown is the deepest percent decline from a running peak.
func maxDrawdown(curve []backtest.EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Equity
	maxDD := 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (p.Equity/peak - 1) * 100; dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// sharpe is the mean over the population standard deviation of
// per-candle returns, annualized by the square root of candles per
// year.
func sharpe(curve []backtest.EquityPoint, timeframe string) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}
	if len(returns) == 0 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)))
	if std == 0 {
		return 0
	}

	annualize := math.Sqrt(tfutils.PeriodsPerYear(timeframe))
	if annualize == 0 {
		annualize = 1
	}
	return mean / std * annualize
}
