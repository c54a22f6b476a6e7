package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/amirphl/hypertrader/internal/analytics"
	"github.com/amirphl/hypertrader/internal/backtest"
	"github.com/amirphl/hypertrader/internal/candle"
	"github.com/amirphl/hypertrader/internal/config"
	"github.com/amirphl/hypertrader/internal/db"
	"github.com/amirphl/hypertrader/internal/exchange"
	"github.com/amirphl/hypertrader/internal/journal"
	"github.com/amirphl/hypertrader/internal/montecarlo"
	"github.com/amirphl/hypertrader/internal/notifier"
	"github.com/amirphl/hypertrader/internal/strategy"
)

func main() {
	cfg := config.MustLoad()

	logger, err := createLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Run failed", zap.Error(err))
	}
}

func createLogger(level string) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	zapConfig := zap.Config{
		Level:            zapLevel,
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return zapConfig.Build()
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	var store *db.Postgres
	if cfg.DBConnStr != "" {
		var err error
		store, err = db.Connect(cfg.DBConnStr, cfg.DBMaxOpen, cfg.DBMaxIdle, logger)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer store.Close()
		logger.Info("Connected to Postgres")
	}

	raw, err := loadCandles(ctx, cfg, store, logger)
	if err != nil {
		return err
	}

	series, err := candle.Normalize(raw)
	if err != nil {
		return fmt.Errorf("normalize candles: %w", err)
	}
	if cfg.HeikenAshi {
		series = candle.GenerateHeikenAshiCandles(series)
	}
	logger.Info("Candles ready",
		zap.String("symbol", cfg.Strategy.Symbol),
		zap.String("timeframe", cfg.Strategy.Timeframe),
		zap.Int("count", len(series)),
		zap.Bool("heiken_ashi", cfg.HeikenAshi))

	gen, err := strategy.New(cfg.Strategy, logger)
	if err != nil {
		return err
	}
	engine, err := backtest.New(cfg.Strategy, logger)
	if err != nil {
		return err
	}

	result, err := engine.Run(series, gen.Evaluate(series))
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}
	report := analytics.Compute(result, cfg.Strategy.Timeframe)

	var mcResult *montecarlo.Result
	if cfg.Strategy.MonteCarloTrials > 0 {
		mc := montecarlo.New(cfg.Strategy.MonteCarloTrials, cfg.Strategy.RuinThresholdPct,
			cfg.Strategy.Seed, cfg.Strategy.Workers, logger)
		mcResult, err = mc.Run(ctx, result.Trades, result.InitialEquity)
		if err != nil {
			return fmt.Errorf("monte carlo: %w", err)
		}
	}

	printSummary(result, report, mcResult)

	if cfg.OutputDir != "" {
		dir := filepath.Join(cfg.OutputDir,
			fmt.Sprintf("%s-%s-%s", cfg.Strategy.Symbol, gen.Name(), time.Now().Format("20060102-150405")))
		if err := journal.ExportRun(dir, result, report); err != nil {
			return err
		}
		logger.Info("Run exported", zap.String("dir", dir))
	}

	if store != nil {
		runID, err := store.SaveRun(ctx, db.Run{
			Symbol:    result.Symbol,
			Strategy:  result.Strategy,
			Timeframe: cfg.Strategy.Timeframe,
			Report:    report,
			Trades:    result.Trades,
		})
		if err != nil {
			return fmt.Errorf("archive run: %w", err)
		}
		logger.Info("Run archived", zap.Int64("run_id", runID))
	}

	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		tg, err := notifier.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, cfg.TelegramProxy,
			cfg.NotificationRetries, cfg.NotificationDelay, logger)
		if err != nil {
			return err
		}
		msg := notifier.FormatRunSummary(result.Symbol, result.Strategy, cfg.Strategy.Timeframe, report, mcResult)
		if err := tg.Send(ctx, msg); err != nil {
			// The run already succeeded; a lost notification should not fail it.
			logger.Warn("Notification failed", zap.Error(err))
		}
	}

	return nil
}

// loadCandles pulls the raw series from the configured source. Candles
// fetched from the exchange are archived when a database is attached.
func loadCandles(ctx context.Context, cfg config.Config, store *db.Postgres, logger *zap.Logger) ([]candle.Candle, error) {
	symbol, timeframe := cfg.Strategy.Symbol, cfg.Strategy.Timeframe

	switch cfg.DataSource {
	case "csv", "":
		if cfg.CSVPath == "" {
			return nil, errors.New("csv source requires -csv")
		}
		return candle.LoadCSV(cfg.CSVPath, symbol, timeframe)

	case "db":
		if store == nil {
			return nil, errors.New("db source requires a database connection string")
		}
		return store.GetCandles(ctx, symbol, timeframe, cfg.From, cfg.To)

	case "exchange":
		fetcher := exchange.NewWallex(cfg.WallexAPIKey, logger)
		candles, err := fetcher.FetchCandles(ctx, symbol, timeframe, cfg.From, cfg.To)
		if err != nil {
			return nil, err
		}
		if store != nil {
			if err := store.SaveCandles(ctx, candles); err != nil {
				logger.Warn("Failed to archive fetched candles", zap.Error(err))
			}
		}
		return candles, nil

	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.DataSource)
	}
}

var exitOrder = []backtest.ExitReason{
	backtest.ExitStopLoss,
	backtest.ExitTakeProfit,
	backtest.ExitTrailingStop,
	backtest.ExitSignal,
	backtest.ExitTime,
	backtest.ExitEndOfData,
}

func printSummary(result *backtest.Result, report analytics.PerformanceReport, mc *montecarlo.Result) {
	fmt.Printf("\n=== %s %s ===\n", result.Symbol, result.Strategy)
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	fmt.Printf("Initial equity:    %14.2f\n", report.InitialEquity)
	fmt.Printf("Final equity:      %14.2f\n", report.FinalEquity)
	fmt.Printf("Total return:      %13.2f%%\n", report.TotalReturn)
	fmt.Printf("CAGR:              %13.2f%%\n", report.CAGR*100)
	fmt.Printf("Max drawdown:      %13.2f%%\n", report.MaxDrawdown)
	fmt.Printf("Sharpe ratio:      %14.2f\n", report.SharpeRatio)
	fmt.Printf("Trades:            %14d\n", report.NumTrades)
	fmt.Printf("Win rate:          %13.2f%%\n", report.WinRate)
	fmt.Printf("Profit factor:     %14.2f\n", report.ProfitFactor)
	fmt.Printf("Expectancy:        %14.2f\n", report.Expectancy)
	fmt.Printf("Avg win / loss:    %10.2f / %.2f\n", report.AvgWin, report.AvgLoss)
	fmt.Printf("Avg MAE / MFE:     %9.2f%% / %.2f%%\n", report.AvgMAE, report.AvgMFE)
	fmt.Printf("Streaks (W/L):     %11d / %d\n", report.MaxConsecWins, report.MaxConsecLosses)

	if len(report.ExitCounts) > 0 {
		fmt.Println("Exits:")
		for _, reason := range exitOrder {
			if n := report.ExitCounts[reason]; n > 0 {
				fmt.Printf("  %-14s %6d\n", reason, n)
			}
		}
	}

	if mc != nil {
		fmt.Println("Monte Carlo:")
		if mc.InsufficientData {
			fmt.Println("  insufficient trades for resampling")
		} else {
			fmt.Printf("  trials           %8d\n", mc.Trials)
			fmt.Printf("  p5 / p50 / p95   %7.2f%% / %.2f%% / %.2f%%\n", mc.P5, mc.P50, mc.P95)
			fmt.Printf("  worst / best     %7.2f%% / %.2f%%\n", mc.WorstCase, mc.BestCase)
			fmt.Printf("  risk of ruin     %7.2f%%\n", mc.RiskOfRuin*100)
		}
	}
	fmt.Println()
}
