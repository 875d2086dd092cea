// Package store persists backtest run history to SQLite, generalizing the
// teacher's internal/db/db.go migration pattern (schema_version table,
// sequential "if version < N" blocks, WAL pragma connection string) from
// EVE market-scan history to backtest-run history. Supplements the
// original Python implementation, which only ever wrote flat CSV/JSON
// files (original_source/src/trading_io.py) with no run history at all.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"smabacktester/internal/backtest"
	"smabacktester/internal/core"
	"smabacktester/internal/logger"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection holding backtest run history.
type DB struct {
	sql *sql.DB
}

func defaultDBPath() string {
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, "backtester.db")
	}
	exe, _ := os.Executable()
	return filepath.Join(filepath.Dir(exe), "backtester.db")
}

// Open opens (or creates) the SQLite database at path and runs migrations.
// Pass "" to use backtester.db in the working directory.
func Open(path string) (*DB, error) {
	if path == "" {
		path = defaultDBPath()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	d := &DB{sql: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	logger.Success("store", "opened "+path)
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) migrate() error {
	version := 0
	d.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := d.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS run (
				id               TEXT PRIMARY KEY,
				started_at       TEXT NOT NULL,
				finished_at      TEXT,
				universe_size    INTEGER NOT NULL,
				train_ratio      REAL NOT NULL,
				grid_short_json  TEXT NOT NULL DEFAULT '[]',
				grid_long_json   TEXT NOT NULL DEFAULT '[]',
				config_json      TEXT NOT NULL DEFAULT '{}',
				status           TEXT NOT NULL DEFAULT 'running'
			);

			CREATE TABLE IF NOT EXISTS run_ticker_params (
				run_id TEXT NOT NULL REFERENCES run(id),
				ticker TEXT NOT NULL,
				short  INTEGER NOT NULL,
				long   INTEGER NOT NULL,
				PRIMARY KEY (run_id, ticker)
			);

			CREATE TABLE IF NOT EXISTS trade_event (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id     TEXT NOT NULL REFERENCES run(id),
				date       TEXT NOT NULL,
				ticker     TEXT NOT NULL,
				side       TEXT NOT NULL,
				price      REAL NOT NULL,
				shares     REAL NOT NULL,
				cash_after REAL NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_trade_event_run ON trade_event(run_id);
			CREATE INDEX IF NOT EXISTS idx_trade_event_ticker ON trade_event(run_id, ticker);

			CREATE TABLE IF NOT EXISTS closed_trade (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id       TEXT NOT NULL REFERENCES run(id),
				ticker       TEXT NOT NULL,
				entry_date   TEXT NOT NULL,
				exit_date    TEXT NOT NULL,
				entry_price  REAL NOT NULL,
				exit_price   REAL NOT NULL,
				shares       REAL NOT NULL,
				realized_pnl REAL NOT NULL,
				holding_days REAL NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_closed_trade_run ON closed_trade(run_id);

			CREATE TABLE IF NOT EXISTS ticker_summary (
				run_id                TEXT NOT NULL REFERENCES run(id),
				ticker                TEXT NOT NULL,
				n_trades              INTEGER NOT NULL,
				win_rate              REAL,
				realized_pnl          REAL,
				pnl                   REAL,
				avg_realized_pnl      REAL,
				profit_factor         REAL,
				remaining_share_value REAL,
				final_cash            REAL,
				final_equity          REAL,
				cagr                  REAL,
				sharpe                REAL,
				max_drawdown          REAL,
				calmar                REAL,
				PRIMARY KEY (run_id, ticker)
			);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		logger.Info("store", "applied migration v1")
	}

	return nil
}

// StartRun inserts a new run row in "running" status and returns its
// generated ID.
func (d *DB) StartRun(universeSize int, trainRatio float64, gridShortJSON, gridLongJSON, configJSON string) (string, error) {
	id := uuid.NewString()
	_, err := d.sql.Exec(
		`INSERT INTO run (id, started_at, universe_size, train_ratio, grid_short_json, grid_long_json, config_json, status)
		 VALUES (?, datetime('now'), ?, ?, ?, ?, ?, 'running')`,
		id, universeSize, trainRatio, gridShortJSON, gridLongJSON, configJSON,
	)
	if err != nil {
		return "", &core.PersistenceError{Path: id, Op: "start_run", Err: err}
	}
	return id, nil
}

// FinishRun marks a run complete (or failed) and stamps finished_at.
func (d *DB) FinishRun(runID, status string) error {
	_, err := d.sql.Exec(
		`UPDATE run SET finished_at = datetime('now'), status = ? WHERE id = ?`,
		status, runID,
	)
	if err != nil {
		return &core.PersistenceError{Path: runID, Op: "finish_run", Err: err}
	}
	return nil
}

// SaveTickerParams records the (short, long) SMA windows chosen for a run.
func (d *DB) SaveTickerParams(runID string, params map[string][2]int) error {
	tx, err := d.sql.Begin()
	if err != nil {
		return &core.PersistenceError{Path: runID, Op: "save_ticker_params_begin", Err: err}
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO run_ticker_params (run_id, ticker, short, long) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return &core.PersistenceError{Path: runID, Op: "save_ticker_params_prepare", Err: err}
	}
	defer stmt.Close()
	for ticker, window := range params {
		if _, err := stmt.Exec(runID, ticker, window[0], window[1]); err != nil {
			tx.Rollback()
			return &core.PersistenceError{Path: runID, Op: "save_ticker_params_exec", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &core.PersistenceError{Path: runID, Op: "save_ticker_params_commit", Err: err}
	}
	return nil
}

// SaveTradeEvents bulk-inserts a run's trade event log.
func (d *DB) SaveTradeEvents(runID string, events []core.TradeEvent) error {
	tx, err := d.sql.Begin()
	if err != nil {
		return &core.PersistenceError{Path: runID, Op: "save_trade_events_begin", Err: err}
	}
	stmt, err := tx.Prepare(`INSERT INTO trade_event (run_id, date, ticker, side, price, shares, cash_after) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return &core.PersistenceError{Path: runID, Op: "save_trade_events_prepare", Err: err}
	}
	defer stmt.Close()
	for _, e := range events {
		if _, err := stmt.Exec(runID, e.Date.Format("2006-01-02"), e.Ticker, string(e.Side), e.Price, e.Shares, e.CashAfter); err != nil {
			tx.Rollback()
			return &core.PersistenceError{Path: runID, Op: "save_trade_events_exec", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &core.PersistenceError{Path: runID, Op: "save_trade_events_commit", Err: err}
	}
	return nil
}

// SaveClosedTrades bulk-inserts a run's FIFO-paired closed trades.
func (d *DB) SaveClosedTrades(runID string, trades []core.ClosedTrade) error {
	tx, err := d.sql.Begin()
	if err != nil {
		return &core.PersistenceError{Path: runID, Op: "save_closed_trades_begin", Err: err}
	}
	stmt, err := tx.Prepare(`INSERT INTO closed_trade (run_id, ticker, entry_date, exit_date, entry_price, exit_price, shares, realized_pnl, holding_days)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return &core.PersistenceError{Path: runID, Op: "save_closed_trades_prepare", Err: err}
	}
	defer stmt.Close()
	for _, tr := range trades {
		if _, err := stmt.Exec(runID, tr.Ticker, tr.EntryDate.Format("2006-01-02"), tr.ExitDate.Format("2006-01-02"), tr.EntryPrice, tr.ExitPrice, tr.Shares, tr.RealizedPNL, tr.HoldingDays); err != nil {
			tx.Rollback()
			return &core.PersistenceError{Path: runID, Op: "save_closed_trades_exec", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &core.PersistenceError{Path: runID, Op: "save_closed_trades_commit", Err: err}
	}
	return nil
}

// SaveTickerSummaries bulk-inserts the per-ticker + portfolio summary rows.
func (d *DB) SaveTickerSummaries(runID string, summaries []backtest.TickerSummary) error {
	tx, err := d.sql.Begin()
	if err != nil {
		return &core.PersistenceError{Path: runID, Op: "save_summaries_begin", Err: err}
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO ticker_summary
		(run_id, ticker, n_trades, win_rate, realized_pnl, pnl, avg_realized_pnl, profit_factor,
		 remaining_share_value, final_cash, final_equity, cagr, sharpe, max_drawdown, calmar)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return &core.PersistenceError{Path: runID, Op: "save_summaries_prepare", Err: err}
	}
	defer stmt.Close()
	for _, s := range summaries {
		if _, err := stmt.Exec(runID, s.Ticker, s.NTrades, nullable(s.WinRate), nullable(s.RealizedPNL),
			nullable(s.PNL), nullable(s.AvgRealizedPNL), nullable(s.ProfitFactor), nullable(s.RemainingShareValue),
			nullable(s.FinalCash), nullable(s.FinalEquity), nullable(s.CAGR), nullable(s.Sharpe),
			nullable(s.MaxDrawdown), nullable(s.Calmar)); err != nil {
			tx.Rollback()
			return &core.PersistenceError{Path: runID, Op: "save_summaries_exec", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &core.PersistenceError{Path: runID, Op: "save_summaries_commit", Err: err}
	}
	return nil
}

// nullable converts NaN to a SQL NULL so comparisons/aggregates in SQLite
// don't have to special-case NaN the way Go's math package does.
func nullable(v float64) interface{} {
	if v != v {
		return nil
	}
	return v
}

// RunSummary is one row of ListRuns' output.
type RunSummary struct {
	ID           string
	StartedAt    string
	FinishedAt   sql.NullString
	UniverseSize int
	Status       string
}

// ListRuns returns run history, most recent first.
func (d *DB) ListRuns(limit int) ([]RunSummary, error) {
	rows, err := d.sql.Query(
		`SELECT id, started_at, finished_at, universe_size, status FROM run ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, &core.PersistenceError{Path: "run", Op: "list_runs", Err: err}
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.UniverseSize, &r.Status); err != nil {
			return nil, &core.PersistenceError{Path: "run", Op: "scan_run", Err: err}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SqlDB returns the underlying *sql.DB for ad-hoc queries.
func (d *DB) SqlDB() *sql.DB {
	return d.sql
}
