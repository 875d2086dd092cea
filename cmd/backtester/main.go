// Command backtester runs the SMA-crossover event-driven backtest end to
// end: load a universe of daily OHLC CSVs, split it into a training and a
// validation window, load or optimize per-ticker SMA parameters, run the
// validation backtest, and export the resulting trade history and
// performance metrics. Mirrors the teacher's main.go wiring style (flag
// parsing, a startup banner, directory setup, error-to-exit-code handling)
// but drops its HTTP server / embed / OAuth concerns, which have no
// equivalent here.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"smabacktester/internal/backtest"
	"smabacktester/internal/config"
	"smabacktester/internal/core"
	"smabacktester/internal/ledger"
	"smabacktester/internal/logger"
	"smabacktester/internal/optimize"
	"smabacktester/internal/prices"
	"smabacktester/internal/store"
	"smabacktester/internal/tradeio"
)

var version = "dev"

func main() {
	cfg := config.Default()

	dataDir := flag.String("data", cfg.DataDir, "directory of per-ticker OHLC CSV files")
	outputDir := flag.String("out", cfg.OutputDir, "directory for exported CSV/JSON artifacts")
	dbPath := flag.String("db", cfg.DBPath, "path to the run-history SQLite database")
	trainRatio := flag.Float64("train-ratio", cfg.TrainRatio, "fraction of the date range used for training")
	shortGridFlag := flag.String("short-grid", intsToFlag(cfg.ShortGrid), "comma-separated short SMA candidates")
	longGridFlag := flag.String("long-grid", intsToFlag(cfg.LongGrid), "comma-separated long SMA candidates")
	forceReoptimize := flag.Bool("force-reoptimize", cfg.ForceReoptimize, "ignore saved per-ticker params and re-run the optimizer")
	flag.Parse()

	cfg.DataDir = *dataDir
	cfg.OutputDir = *outputDir
	cfg.DBPath = *dbPath
	cfg.TrainRatio = *trainRatio
	cfg.ForceReoptimize = *forceReoptimize
	if grid, err := parseIntList(*shortGridFlag); err == nil {
		cfg.ShortGrid = grid
	}
	if grid, err := parseIntList(*longGridFlag); err == nil {
		cfg.LongGrid = grid
	}

	logger.Banner(version)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		logger.Error("main", fmt.Sprintf("failed to create output directory: %v", err))
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		logger.Error("main", err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	logger.Section("Load universe")
	universe, err := prices.LoadUniverse(cfg.DataDir)
	if err != nil {
		return err
	}
	logger.Stats("tickers loaded", len(universe))

	allDates := prices.UnionDates(universe)
	if len(allDates) == 0 {
		return &core.InputError{Reason: "universe has no dates"}
	}
	splitIdx := int(float64(len(allDates)) * cfg.TrainRatio)
	if splitIdx >= len(allDates) {
		splitIdx = len(allDates) - 1
	}
	trainEnd := allDates[splitIdx]

	train := make(map[string]*prices.Series, len(universe))
	validation := make(map[string]*prices.Series, len(universe))
	for ticker, s := range universe {
		train[ticker] = s.Slice(trainEnd)
		if v := s.SliceAfter(trainEnd); v.Len() > 0 {
			validation[ticker] = v
		}
	}
	if len(validation) == 0 {
		return &core.InputError{Reason: "no validation data available after the train/validation split"}
	}
	logger.Stats("train end date", trainEnd.Format("2006-01-02"))
	logger.Stats("validation tickers", len(validation))

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	paramsPath := filepath.Join(cfg.OutputDir, "per_ticker_params.json")
	var perTickerParams map[string][2]int
	if !cfg.ForceReoptimize {
		perTickerParams, err = tradeio.LoadPerTickerParams(paramsPath)
		if err != nil {
			logger.Warn("main", fmt.Sprintf("could not load saved params: %v", err))
		}
	}

	if perTickerParams == nil {
		logger.Section("Optimize per-ticker SMA windows")
		fallback := optimize.Window{Short: 10, Long: 50}
		windows := optimize.OptimizeSMAPerTicker(train, cfg.ShortGrid, cfg.LongGrid, cfg.Backtest, fallback)
		perTickerParams = make(map[string][2]int, len(windows))
		for ticker, w := range windows {
			perTickerParams[ticker] = [2]int{w.Short, w.Long}
		}
		if err := tradeio.SavePerTickerParams(paramsPath, perTickerParams); err != nil {
			logger.Warn("main", fmt.Sprintf("failed to save per-ticker params: %v", err))
		}
	}
	logger.Stats("per-ticker params", len(perTickerParams))

	runID, err := db.StartRun(len(validation), cfg.TrainRatio, intsToFlag(cfg.ShortGrid), intsToFlag(cfg.LongGrid), "{}")
	if err != nil {
		return err
	}
	if err := db.SaveTickerParams(runID, perTickerParams); err != nil {
		logger.Warn("main", fmt.Sprintf("failed to persist ticker params: %v", err))
	}

	logger.Section("Run validation backtest")
	result, err := backtest.Run(validation, perTickerParams, cfg.Backtest)
	if err != nil {
		if ferr := db.FinishRun(runID, "failed"); ferr != nil {
			logger.Warn("main", fmt.Sprintf("failed to finalize failed run record: %v", ferr))
		}
		return err
	}
	logger.Stats("trade events", len(result.Events))
	logger.Stats("closed trades", len(result.ClosedTrades))

	if _, replayed := ledger.Replay(result.Events); len(replayed) != len(result.ClosedTrades) {
		logger.Warn("main", fmt.Sprintf("event replay produced %d closed trades, incremental run produced %d", len(replayed), len(result.ClosedTrades)))
	}

	logger.Section("Export artifacts")
	if err := tradeio.ExportTradeHistory(filepath.Join(cfg.OutputDir, "trade_history.csv"), result.Events); err != nil {
		logger.Warn("main", fmt.Sprintf("failed to export trade history: %v", err))
	}
	if err := tradeio.ExportPerformanceMetrics(filepath.Join(cfg.OutputDir, "performance.csv"), result.Summaries); err != nil {
		logger.Warn("main", fmt.Sprintf("failed to export performance metrics: %v", err))
	}
	if err := tradeio.ExportPerTradeHistory(filepath.Join(cfg.OutputDir, "per_trade_summary.csv"), result.ClosedTrades); err != nil {
		logger.Warn("main", fmt.Sprintf("failed to export per-trade summary: %v", err))
	}
	if err := tradeio.ExportDailyReturns(filepath.Join(cfg.OutputDir, "portfolio_daily_returns.csv"), result.EquityCurve); err != nil {
		logger.Warn("main", fmt.Sprintf("failed to export daily returns: %v", err))
	}

	if err := db.SaveTradeEvents(runID, result.Events); err != nil {
		logger.Warn("main", fmt.Sprintf("failed to persist trade events: %v", err))
	}
	if err := db.SaveClosedTrades(runID, result.ClosedTrades); err != nil {
		logger.Warn("main", fmt.Sprintf("failed to persist closed trades: %v", err))
	}
	if err := db.SaveTickerSummaries(runID, result.Summaries); err != nil {
		logger.Warn("main", fmt.Sprintf("failed to persist ticker summaries: %v", err))
	}
	if err := db.FinishRun(runID, "completed"); err != nil {
		logger.Warn("main", fmt.Sprintf("failed to finalize run record: %v", err))
	}

	for _, s := range result.Summaries {
		if s.Ticker != backtest.PortfolioRow {
			continue
		}
		logger.Section("Portfolio summary")
		logger.Stats("final cash", s.FinalCash)
		logger.Stats("final equity", s.FinalEquity)
		logger.Stats("CAGR", s.CAGR)
		logger.Stats("Sharpe", s.Sharpe)
		logger.Stats("max drawdown", s.MaxDrawdown)
	}

	logger.Success("main", fmt.Sprintf("run %s completed at %s", runID, time.Now().UTC().Format(time.RFC3339)))
	return nil
}

func intsToFlag(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func parseIntList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty grid")
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
