// Package backtest
package backtest

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/amirphl/hypertrader/internal/candle"
	"github.com/amirphl/hypertrader/internal/config"
	"github.com/amirphl/hypertrader/internal/strategy"
)

// ExitReason records which rule closed a trade.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTakeProfit   ExitReason = "take_profit"
	ExitTrailingStop ExitReason = "trailing_stop"
	ExitSignal       ExitReason = "signal"
	ExitTime         ExitReason = "time"
	ExitEndOfData    ExitReason = "end_of_data"
)

// Trade is one closed round trip. Entry and exit always fill at candle
// closes, adjusted for configured slippage; Fees carries the commission
// paid on both fills.
type Trade struct {
	ID            int                `json:"id"`
	Symbol        string             `json:"symbol"`
	Direction     strategy.Direction `json:"direction"`
	EntryIndex    int                `json:"entry_index"`
	EntryTime     time.Time          `json:"entry_time"`
	EntryPrice    float64            `json:"entry_price"`
	EntryReason   string             `json:"entry_reason"`
	ExitIndex     int                `json:"exit_index"`
	ExitTime      time.Time          `json:"exit_time"`
	ExitPrice     float64            `json:"exit_price"`
	ExitReason    ExitReason         `json:"exit_reason"`
	Size          float64            `json:"size"` // notional at entry
	Quantity      float64            `json:"quantity"`
	EquityAtEntry float64            `json:"equity_at_entry"`
	PnL           float64            `json:"pnl"`
	PnLPct        float64            `json:"pnl_pct"`
	Fees          float64            `json:"fees"`
	MAE           float64            `json:"mae"` // worst intra trade excursion, percent of entry
	MFE           float64            `json:"mfe"` // best intra trade excursion, percent of entry
}

// EquityPoint marks account equity at one candle close with open
// positions valued at that close.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// Result is the full ledger of one simulation run. Every trade in
// Trades is closed; the engine never returns a leaked open position.
type Result struct {
	Symbol        string        `json:"symbol"`
	Strategy      string        `json:"strategy_name"`
	InitialEquity float64       `json:"initial_equity"`
	FinalEquity   float64       `json:"final_equity"`
	Trades        []Trade       `json:"trades"`
	EquityCurve   []EquityPoint `json:"equity_curve"`
	Warnings      []string      `json:"warnings,omitempty"`
}

// SignalSource supplies entry signals and answers per-candle exit
// checks for the indicator exit rule. strategy.Evaluation implements
// it.
type SignalSource interface {
	Signals() ([]strategy.Signal, error)
	ShouldExit(i int, direction strategy.Direction) (bool, error)
}

// position is an open trade plus its running simulation state.
type position struct {
	trade     Trade
	highWater float64 // highest close since entry
	lowWater  float64 // lowest close since entry
}

// mark folds one candle into the water marks and excursion extremes.
// Runs before exit checks, never on the entry candle.
func (p *position) mark(c candle.Candle) {
	if c.Close > p.highWater {
		p.highWater = c.Close
	}
	if c.Close < p.lowWater {
		p.lowWater = c.Close
	}
	entry := p.trade.EntryPrice
	if p.trade.Direction == strategy.Long {
		if adverse := (c.Low - entry) / entry * 100; adverse < p.trade.MAE {
			p.trade.MAE = adverse
		}
		if favorable := (c.High - entry) / entry * 100; favorable > p.trade.MFE {
			p.trade.MFE = favorable
		}
	} else {
		if adverse := (entry - c.High) / entry * 100; adverse < p.trade.MAE {
			p.trade.MAE = adverse
		}
		if favorable := (entry - c.Low) / entry * 100; favorable > p.trade.MFE {
			p.trade.MFE = favorable
		}
	}
}

// Engine replays entry signals over a candle series under one strategy
// config. It carries no per-run state, so Run may be called repeatedly
// and from concurrent goroutines.
type Engine struct {
	cfg    config.StrategyConfig
	logger *zap.Logger
}

// New validates the config and builds an engine. A nil logger disables
// logging.
func New(cfg config.StrategyConfig, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

// Run simulates the source's entry signals over the series. Each candle
// is processed in order: open positions are marked to the close, exits
// are checked in fixed priority (stop loss, take profit, trailing stop,
// indicator exit, time exit) and close on the first rule met, then new
// entries are accepted within the concurrency limits. A series shorter
// than the source's warm-up yields an empty ledger and a warning, not
// an error.
func (e *Engine) Run(candles []candle.Candle, src SignalSource) (*Result, error) {
	signals, err := src.Signals()
	if err != nil {
		return nil, fmt.Errorf("backtest: generating signals: %w", err)
	}
	for _, s := range signals {
		if s.Index < 0 || s.Index >= len(candles) {
			return nil, fmt.Errorf("backtest: signal index %d outside series of %d candles", s.Index, len(candles))
		}
	}

	result := &Result{
		Symbol:        e.cfg.Symbol,
		InitialEquity: e.cfg.InitialEquity,
		FinalEquity:   e.cfg.InitialEquity,
		Trades:        []Trade{},
		EquityCurve:   make([]EquityPoint, 0, len(candles)),
	}
	if named, ok := src.(interface{ Name() string }); ok {
		result.Strategy = named.Name()
	}

	if len(candles) == 0 {
		result.Warnings = append(result.Warnings, "empty candle series")
		return result, nil
	}
	if w, ok := src.(interface{ WarmupPeriod() int }); ok && len(candles) <= w.WarmupPeriod() {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"series of %d candles is within the %d candle warm-up, no signals can fire",
			len(candles), w.WarmupPeriod()))
	}

	var (
		open    []*position
		equity  = e.cfg.InitialEquity
		tradeID int
		sigIdx  int
	)

	for i, c := range candles {
		for _, p := range open {
			p.mark(c)
		}

		kept := open[:0]
		for _, p := range open {
			reason, err := e.exitReason(p, c, i, src)
			if err != nil {
				return nil, err
			}
			if reason == "" {
				kept = append(kept, p)
				continue
			}
			equity += e.closeTrade(p, c, i, reason)
			result.Trades = append(result.Trades, p.trade)
		}
		open = kept

		for sigIdx < len(signals) && signals[sigIdx].Index <= i {
			sig := signals[sigIdx]
			sigIdx++
			if sig.Index < i || sig.Kind != strategy.KindEntry {
				continue
			}
			if len(open) >= e.cfg.MaxConcurrentPositions {
				e.logger.Debug("entry rejected, concurrent position limit",
					zap.Int("index", i), zap.String("symbol", sig.Symbol))
				continue
			}
			if countForSymbol(open, sig.Symbol) >= e.cfg.MaxPositionsPerSymbol {
				e.logger.Debug("entry rejected, per symbol limit",
					zap.Int("index", i), zap.String("symbol", sig.Symbol))
				continue
			}
			size := e.positionSize(equity)
			if size <= 0 {
				continue
			}

			slip := e.cfg.SlippagePct / 100
			fill := c.Close * (1 + slip)
			if sig.Direction == strategy.Short {
				fill = c.Close * (1 - slip)
			}
			tradeID++
			open = append(open, &position{
				trade: Trade{
					ID:            tradeID,
					Symbol:        sig.Symbol,
					Direction:     sig.Direction,
					EntryIndex:    i,
					EntryTime:     c.Timestamp,
					EntryPrice:    fill,
					EntryReason:   sig.Reason,
					Size:          size,
					Quantity:      size / fill,
					EquityAtEntry: equity,
				},
				highWater: c.Close,
				lowWater:  c.Close,
			})
		}

		unrealized := 0.0
		for _, p := range open {
			if p.trade.Direction == strategy.Long {
				unrealized += (c.Close - p.trade.EntryPrice) * p.trade.Quantity
			} else {
				unrealized += (p.trade.EntryPrice - c.Close) * p.trade.Quantity
			}
		}
		result.EquityCurve = append(result.EquityCurve, EquityPoint{Time: c.Timestamp, Equity: equity + unrealized})
	}

	lastIdx := len(candles) - 1
	for _, p := range open {
		equity += e.closeTrade(p, candles[lastIdx], lastIdx, ExitEndOfData)
		result.Trades = append(result.Trades, p.trade)
	}
	if len(open) > 0 {
		result.EquityCurve[lastIdx].Equity = equity
	}

	result.FinalEquity = equity
	e.logger.Info("backtest complete",
		zap.String("symbol", e.cfg.Symbol),
		zap.String("strategy", result.Strategy),
		zap.Int("candles", len(candles)),
		zap.Int("trades", len(result.Trades)),
		zap.Float64("final_equity", result.FinalEquity))
	return result, nil
}

// exitReason checks the exit rules for one open position at one candle,
// in priority order. Empty means hold.
func (e *Engine) exitReason(p *position, c candle.Candle, i int, src SignalSource) (ExitReason, error) {
	entry := p.trade.EntryPrice
	long := p.trade.Direction == strategy.Long

	if sl := e.cfg.StopLossPct; sl > 0 {
		if long && c.Close <= entry*(1-sl/100) {
			return ExitStopLoss, nil
		}
		if !long && c.Close >= entry*(1+sl/100) {
			return ExitStopLoss, nil
		}
	}
	if tp := e.cfg.TakeProfitPct; tp > 0 {
		if long && c.Close >= entry*(1+tp/100) {
			return ExitTakeProfit, nil
		}
		if !long && c.Close <= entry*(1-tp/100) {
			return ExitTakeProfit, nil
		}
	}
	if ts := e.cfg.TrailingStopPct; ts > 0 {
		if long && c.Close <= p.highWater*(1-ts/100) {
			return ExitTrailingStop, nil
		}
		if !long && c.Close >= p.lowWater*(1+ts/100) {
			return ExitTrailingStop, nil
		}
	}
	if e.cfg.IndicatorExit {
		exit, err := src.ShouldExit(i, p.trade.Direction)
		if err != nil {
			return "", fmt.Errorf("backtest: indicator exit at candle %d: %w", i, err)
		}
		if exit {
			return ExitSignal, nil
		}
	}
	if bars := e.cfg.TimeExitBars; bars > 0 && i-p.trade.EntryIndex >= bars {
		return ExitTime, nil
	}
	return "", nil
}

// closeTrade fills the exit at the candle close, settles fees and
// returns the realized pnl.
func (e *Engine) closeTrade(p *position, c candle.Candle, i int, reason ExitReason) float64 {
	slip := e.cfg.SlippagePct / 100
	fill := c.Close * (1 - slip)
	if p.trade.Direction == strategy.Short {
		fill = c.Close * (1 + slip)
	}

	gross := (fill - p.trade.EntryPrice) * p.trade.Quantity
	if p.trade.Direction == strategy.Short {
		gross = (p.trade.EntryPrice - fill) * p.trade.Quantity
	}
	fees := (p.trade.EntryPrice + fill) * p.trade.Quantity * e.cfg.CommissionPct / 100

	p.trade.ExitIndex = i
	p.trade.ExitTime = c.Timestamp
	p.trade.ExitPrice = fill
	p.trade.ExitReason = reason
	p.trade.Fees = fees
	p.trade.PnL = gross - fees
	p.trade.PnLPct = p.trade.PnL / p.trade.Size * 100

	e.logger.Debug("closed trade",
		zap.Int("id", p.trade.ID),
		zap.String("direction", p.trade.Direction.String()),
		zap.String("reason", string(reason)),
		zap.Float64("entry", p.trade.EntryPrice),
		zap.Float64("exit", p.trade.ExitPrice),
		zap.Float64("pnl", p.trade.PnL))
	return p.trade.PnL
}

// positionSize returns the notional for a new entry under the
// configured sizing mode.
func (e *Engine) positionSize(equity float64) float64 {
	switch e.cfg.PositionSizing {
	case config.SizingFixed:
		return e.cfg.PositionSizeValue
	case config.SizingPercentOfEquity:
		return equity * e.cfg.PositionSizeValue / 100
	case config.SizingRiskBased:
		size := equity * e.cfg.PositionSizeValue / 100 / (e.cfg.StopLossPct / 100)
		// A wide stop can ask for more notional than the account holds.
		if limit := equity * 0.95; size > limit {
			size = limit
		}
		return size
	default:
		return 0
	}
}

func countForSymbol(open []*position, symbol string) int {
	n := 0
	for _, p := range open {
		if p.trade.Symbol == symbol {
			n++
		}
	}
	return n
}
