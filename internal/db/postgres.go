package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/amirphl/hypertrader/internal/backtest"
	"github.com/amirphl/hypertrader/internal/candle"
	"github.com/amirphl/hypertrader/internal/strategy"
)

const schema = `
CREATE TABLE IF NOT EXISTS candles (
	symbol     TEXT NOT NULL,
	timeframe  TEXT NOT NULL,
	timestamp  TIMESTAMPTZ NOT NULL,
	open       DOUBLE PRECISION NOT NULL,
	high       DOUBLE PRECISION NOT NULL,
	low        DOUBLE PRECISION NOT NULL,
	close      DOUBLE PRECISION NOT NULL,
	volume     DOUBLE PRECISION NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (symbol, timeframe, timestamp, source)
);

CREATE TABLE IF NOT EXISTS runs (
	id             BIGSERIAL PRIMARY KEY,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	symbol         TEXT NOT NULL,
	strategy       TEXT NOT NULL,
	timeframe      TEXT NOT NULL,
	initial_equity DOUBLE PRECISION NOT NULL,
	final_equity   DOUBLE PRECISION NOT NULL,
	report         JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS run_trades (
	id              BIGSERIAL PRIMARY KEY,
	run_id          BIGINT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	trade_id        INT NOT NULL,
	symbol          TEXT NOT NULL,
	direction       TEXT NOT NULL,
	entry_index     INT NOT NULL,
	entry_time      TIMESTAMPTZ NOT NULL,
	entry_price     DOUBLE PRECISION NOT NULL,
	entry_reason    TEXT NOT NULL,
	exit_index      INT NOT NULL,
	exit_time       TIMESTAMPTZ NOT NULL,
	exit_price      DOUBLE PRECISION NOT NULL,
	exit_reason     TEXT NOT NULL,
	size            DOUBLE PRECISION NOT NULL,
	quantity        DOUBLE PRECISION NOT NULL,
	equity_at_entry DOUBLE PRECISION NOT NULL,
	pnl             DOUBLE PRECISION NOT NULL,
	pnl_pct         DOUBLE PRECISION NOT NULL,
	fees            DOUBLE PRECISION NOT NULL,
	mae             DOUBLE PRECISION NOT NULL,
	mfe             DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS run_trades_run_id_idx ON run_trades (run_id);
`

// Postgres implements Storage on a Postgres database.
type Postgres struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Connect opens a pooled connection, pings it, and applies the schema.
func Connect(connStr string, maxOpen, maxIdle int, logger *zap.Logger) (*Postgres, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sdb, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}
	if maxOpen > 0 {
		sdb.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		sdb.SetMaxIdleConns(maxIdle)
	}
	p := &Postgres{db: sdb, logger: logger}
	if err := p.ensureSchema(context.Background()); err != nil {
		sdb.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("db: apply schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

type candleRow struct {
	Symbol    string    `db:"symbol"`
	Timeframe string    `db:"timeframe"`
	Timestamp time.Time `db:"timestamp"`
	Open      float64   `db:"open"`
	High      float64   `db:"high"`
	Low       float64   `db:"low"`
	Close     float64   `db:"close"`
	Volume    float64   `db:"volume"`
	Source    string    `db:"source"`
}

func (r candleRow) toCandle() candle.Candle {
	return candle.Candle{
		Timestamp: r.Timestamp,
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
		Symbol:    r.Symbol,
		Timeframe: r.Timeframe,
		Source:    r.Source,
	}
}

// SaveCandles upserts a batch inside one transaction. Every candle is
// validated before the first write so a bad row cannot leave a partial
// batch behind.
func (p *Postgres) SaveCandles(ctx context.Context, candles []candle.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("db: invalid candle at index %d for %s %s: %w", i, c.Symbol, c.Timeframe, err)
		}
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume, source)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (symbol, timeframe, timestamp, source) DO UPDATE SET
			open=EXCLUDED.open, high=EXCLUDED.high, low=EXCLUDED.low,
			close=EXCLUDED.close, volume=EXCLUDED.volume`)
	if err != nil {
		return fmt.Errorf("db: prepare candle insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx,
			c.Symbol, c.Timeframe, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume, c.Source); err != nil {
			p.logger.Error("candle insert failed",
				zap.Error(err), zap.String("symbol", c.Symbol), zap.Time("timestamp", c.Timestamp))
			return fmt.Errorf("db: save candle %s %s: %w", c.Symbol, c.Timestamp, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("db: commit candles: %w", err)
	}
	p.logger.Debug("candles saved", zap.Int("count", len(candles)))
	return nil
}

// GetCandles returns [from, to) ascending.
func (p *Postgres) GetCandles(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]candle.Candle, error) {
	var rows []candleRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT symbol, timeframe, timestamp, open, high, low, close, volume, source
		FROM candles
		WHERE symbol=$1 AND timeframe=$2 AND timestamp >= $3 AND timestamp < $4
		ORDER BY timestamp ASC`,
		symbol, timeframe, from, to)
	if err != nil {
		return nil, fmt.Errorf("db: get candles %s %s: %w", symbol, timeframe, err)
	}
	candles := make([]candle.Candle, len(rows))
	for i, r := range rows {
		candles[i] = r.toCandle()
	}
	return candles, nil
}

type runRow struct {
	ID            int64     `db:"id"`
	CreatedAt     time.Time `db:"created_at"`
	Symbol        string    `db:"symbol"`
	Strategy      string    `db:"strategy"`
	Timeframe     string    `db:"timeframe"`
	InitialEquity float64   `db:"initial_equity"`
	FinalEquity   float64   `db:"final_equity"`
	Report        []byte    `db:"report"`
}

type tradeRow struct {
	RunID         int64     `db:"run_id"`
	TradeID       int       `db:"trade_id"`
	Symbol        string    `db:"symbol"`
	Direction     string    `db:"direction"`
	EntryIndex    int       `db:"entry_index"`
	EntryTime     time.Time `db:"entry_time"`
	EntryPrice    float64   `db:"entry_price"`
	EntryReason   string    `db:"entry_reason"`
	ExitIndex     int       `db:"exit_index"`
	ExitTime      time.Time `db:"exit_time"`
	ExitPrice     float64   `db:"exit_price"`
	ExitReason    string    `db:"exit_reason"`
	Size          float64   `db:"size"`
	Quantity      float64   `db:"quantity"`
	EquityAtEntry float64   `db:"equity_at_entry"`
	PnL           float64   `db:"pnl"`
	PnLPct        float64   `db:"pnl_pct"`
	Fees          float64   `db:"fees"`
	MAE           float64   `db:"mae"`
	MFE           float64   `db:"mfe"`
}

// SaveRun writes the run header and its trades in one transaction and
// returns the assigned run id.
func (p *Postgres) SaveRun(ctx context.Context, run Run) (int64, error) {
	report, err := json.Marshal(run.Report)
	if err != nil {
		return 0, fmt.Errorf("db: marshal report: %w", err)
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("db: begin: %w", err)
	}
	defer tx.Rollback()

	var runID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO runs (symbol, strategy, timeframe, initial_equity, final_equity, report)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id`,
		run.Symbol, run.Strategy, run.Timeframe,
		run.Report.InitialEquity, run.Report.FinalEquity, report).Scan(&runID)
	if err != nil {
		return 0, fmt.Errorf("db: insert run: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO run_trades (run_id, trade_id, symbol, direction,
			entry_index, entry_time, entry_price, entry_reason,
			exit_index, exit_time, exit_price, exit_reason,
			size, quantity, equity_at_entry, pnl, pnl_pct, fees, mae, mfe)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`)
	if err != nil {
		return 0, fmt.Errorf("db: prepare trade insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range run.Trades {
		if _, err := stmt.ExecContext(ctx,
			runID, t.ID, t.Symbol, t.Direction.String(),
			t.EntryIndex, t.EntryTime, t.EntryPrice, t.EntryReason,
			t.ExitIndex, t.ExitTime, t.ExitPrice, string(t.ExitReason),
			t.Size, t.Quantity, t.EquityAtEntry, t.PnL, t.PnLPct, t.Fees, t.MAE, t.MFE); err != nil {
			return 0, fmt.Errorf("db: insert trade %d: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("db: commit run: %w", err)
	}
	p.logger.Info("run archived",
		zap.Int64("run_id", runID), zap.String("symbol", run.Symbol), zap.Int("trades", len(run.Trades)))
	return runID, nil
}

// GetRuns returns run headers newest first. An empty symbol matches all
// symbols; limit <= 0 means no limit.
func (p *Postgres) GetRuns(ctx context.Context, symbol string, limit int) ([]Run, error) {
	var limitArg any = limit
	if limit <= 0 {
		limitArg = nil // LIMIT NULL means no limit
	}
	var rows []runRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT id, created_at, symbol, strategy, timeframe, initial_equity, final_equity, report
		FROM runs
		WHERE ($1 = '' OR symbol = $1)
		ORDER BY id DESC
		LIMIT $2`,
		symbol, limitArg)
	if err != nil {
		return nil, fmt.Errorf("db: get runs: %w", err)
	}

	runs := make([]Run, len(rows))
	for i, r := range rows {
		run := Run{
			ID:        r.ID,
			CreatedAt: r.CreatedAt,
			Symbol:    r.Symbol,
			Strategy:  r.Strategy,
			Timeframe: r.Timeframe,
		}
		if err := json.Unmarshal(r.Report, &run.Report); err != nil {
			return nil, fmt.Errorf("db: unmarshal report for run %d: %w", r.ID, err)
		}
		runs[i] = run
	}
	return runs, nil
}

// GetTrades returns one run's ledger in entry order.
func (p *Postgres) GetTrades(ctx context.Context, runID int64) ([]backtest.Trade, error) {
	var rows []tradeRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT run_id, trade_id, symbol, direction,
			entry_index, entry_time, entry_price, entry_reason,
			exit_index, exit_time, exit_price, exit_reason,
			size, quantity, equity_at_entry, pnl, pnl_pct, fees, mae, mfe
		FROM run_trades
		WHERE run_id = $1
		ORDER BY trade_id ASC`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("db: get trades for run %d: %w", runID, err)
	}

	trades := make([]backtest.Trade, len(rows))
	for i, r := range rows {
		dir, err := strategy.ParseDirection(r.Direction)
		if err != nil {
			return nil, fmt.Errorf("db: trade %d of run %d: %w", r.TradeID, runID, err)
		}
		trades[i] = backtest.Trade{
			ID:            r.TradeID,
			Symbol:        r.Symbol,
			Direction:     dir,
			EntryIndex:    r.EntryIndex,
			EntryTime:     r.EntryTime,
			EntryPrice:    r.EntryPrice,
			EntryReason:   r.EntryReason,
			ExitIndex:     r.ExitIndex,
			ExitTime:      r.ExitTime,
			ExitPrice:     r.ExitPrice,
			ExitReason:    backtest.ExitReason(r.ExitReason),
			Size:          r.Size,
			Quantity:      r.Quantity,
			EquityAtEntry: r.EquityAtEntry,
			PnL:           r.PnL,
			PnLPct:        r.PnLPct,
			Fees:          r.Fees,
			MAE:           r.MAE,
			MFE:           r.MFE,
		}
	}
	return trades, nil
}
