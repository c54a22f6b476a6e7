// Package montecarlo stress tests a backtest ledger by resampling its
// trades with replacement and re-compounding the drawn returns.
package montecarlo

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/amirphl/hypertrader/internal/backtest"
)

// Result summarizes the distribution of simulated final returns. All
// return figures are percentages of initial equity.
type Result struct {
	Trials           int     `json:"trials"`
	P5               float64 `json:"p5"`
	P50              float64 `json:"p50"`
	P95              float64 `json:"p95"`
	WorstCase        float64 `json:"worst_case"`
	BestCase         float64 `json:"best_case"`
	RiskOfRuin       float64 `json:"risk_of_ruin"`
	InsufficientData bool    `json:"insufficient_data"`
}

// batchSize is how many trials a worker runs between context checks.
const batchSize = 256

// Engine bootstraps equity paths from a closed trade ledger. The seed
// fully determines the output: trial t always draws from a stream
// seeded with seed+t, so the result does not depend on the worker
// count or on goroutine scheduling.
type Engine struct {
	trials        int
	ruinThreshold float64 // percent decline from initial equity that counts as ruin
	seed          int64
	workers       int
	logger        *zap.Logger
}

// New builds an engine from the run settings. A worker count below one
// falls back to serial execution.
func New(trials int, ruinThresholdPct float64, seed int64, workers int, logger *zap.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		trials:        trials,
		ruinThreshold: ruinThresholdPct,
		seed:          seed,
		workers:       workers,
		logger:        logger,
	}
}

// Run resamples the ledger. Fewer than two trades cannot support a
// bootstrap, so the result only carries the InsufficientData flag.
// Cancelling ctx aborts between batches and returns ctx.Err().
func (e *Engine) Run(ctx context.Context, trades []backtest.Trade, initialEquity float64) (*Result, error) {
	if len(trades) < 2 || e.trials < 1 {
		return &Result{InsufficientData: true}, nil
	}

	returns := tradeReturns(trades)
	ruinLevel := initialEquity * (1 - e.ruinThreshold/100)

	finals := make([]float64, e.trials)
	ruined := make([]int, e.workers)
	errs := make([]error, e.workers)

	per := (e.trials + e.workers - 1) / e.workers
	var wg sync.WaitGroup
	for w := 0; w < e.workers; w++ {
		start := w * per
		if start >= e.trials {
			break
		}
		end := start + per
		if end > e.trials {
			end = e.trials
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			for t := start; t < end; t++ {
				if (t-start)%batchSize == 0 && ctx.Err() != nil {
					errs[w] = ctx.Err()
					return
				}
				rng := rand.New(rand.NewSource(e.seed + int64(t)))
				final, minEquity := runTrial(rng, returns, initialEquity)
				finals[t] = final
				if minEquity < ruinLevel {
					ruined[w]++
				}
			}
		}(w, start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	sort.Float64s(finals)
	ruinedTotal := 0
	for _, n := range ruined {
		ruinedTotal += n
	}

	result := &Result{
		Trials:     e.trials,
		P5:         percentile(finals, 0.05),
		P50:        percentile(finals, 0.50),
		P95:        percentile(finals, 0.95),
		WorstCase:  finals[0],
		BestCase:   finals[len(finals)-1],
		RiskOfRuin: float64(ruinedTotal) / float64(e.trials),
	}
	e.logger.Info("monte carlo finished",
		zap.Int("trials", e.trials),
		zap.Float64("p5", result.P5),
		zap.Float64("p50", result.P50),
		zap.Float64("p95", result.P95),
		zap.Float64("risk_of_ruin", result.RiskOfRuin))
	return result, nil
}

// tradeReturns extracts one fractional return per trade, measured
// against account equity at entry so that replaying the original
// sequence reproduces the realized path. Ledgers without equity
// snapshots fall back to the return on notional.
func tradeReturns(trades []backtest.Trade) []float64 {
	returns := make([]float64, len(trades))
	for i, tr := range trades {
		if tr.EquityAtEntry > 0 {
			returns[i] = tr.PnL / tr.EquityAtEntry
		} else {
			returns[i] = tr.PnLPct / 100
		}
	}
	return returns
}

// runTrial draws len(returns) returns with replacement, compounds them
// from initialEquity, and reports the final return in percent together
// with the lowest equity the path touched.
func runTrial(rng *rand.Rand, returns []float64, initialEquity float64) (finalReturn, minEquity float64) {
	equity := initialEquity
	minEquity = initialEquity
	for range returns {
		equity *= 1 + returns[rng.Intn(len(returns))]
		if equity < minEquity {
			minEquity = equity
		}
	}
	return (equity/initialEquity - 1) * 100, minEquity
}

// percentile reads quantile p from a sorted slice, interpolating
// linearly at rank p*(n-1).
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
