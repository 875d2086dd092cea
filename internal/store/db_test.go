package store

import (
	"database/sql"
	"math"
	"testing"
	"time"

	"smabacktester/internal/backtest"
	"smabacktester/internal/core"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	d := &DB{sql: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		t.Fatalf("migrate: %v", err)
	}
	return d
}

func day(n int) time.Time {
	return time.Date(2024, 1, 1+n, 0, 0, 0, 0, time.UTC)
}

func TestDB_StartAndFinishRun(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()

	id, err := d.StartRun(2, 0.7, "[3,5]", "[20,50]", `{"fraction":0.3}`)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if id == "" {
		t.Fatal("StartRun returned empty id")
	}

	runs, err := d.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != id {
		t.Fatalf("ListRuns = %+v, want one run with id %s", runs, id)
	}
	if runs[0].Status != "running" {
		t.Fatalf("expected status running, got %q", runs[0].Status)
	}

	if err := d.FinishRun(id, "completed"); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	runs, _ = d.ListRuns(10)
	if runs[0].Status != "completed" {
		t.Fatalf("expected status completed, got %q", runs[0].Status)
	}
	if !runs[0].FinishedAt.Valid {
		t.Fatal("expected finished_at to be set")
	}
}

func TestDB_SaveTickerParamsRoundTrip(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()

	id, err := d.StartRun(1, 0.7, "[]", "[]", "{}")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := d.SaveTickerParams(id, map[string][2]int{"AAA": {5, 20}}); err != nil {
		t.Fatalf("SaveTickerParams: %v", err)
	}

	var short, long int
	err = d.sql.QueryRow(`SELECT short, long FROM run_ticker_params WHERE run_id = ? AND ticker = ?`, id, "AAA").Scan(&short, &long)
	if err != nil {
		t.Fatalf("query run_ticker_params: %v", err)
	}
	if short != 5 || long != 20 {
		t.Fatalf("got short=%d long=%d, want 5/20", short, long)
	}
}

func TestDB_SaveTradeEventsAndClosedTrades(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()

	id, err := d.StartRun(1, 0.7, "[]", "[]", "{}")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	events := []core.TradeEvent{
		{Date: day(0), Ticker: "AAA", Side: core.Buy, Price: 10, Shares: 5, CashAfter: 950},
		{Date: day(3), Ticker: "AAA", Side: core.Sell, Price: 15, Shares: 5, CashAfter: 1025},
	}
	if err := d.SaveTradeEvents(id, events); err != nil {
		t.Fatalf("SaveTradeEvents: %v", err)
	}

	var n int
	if err := d.sql.QueryRow(`SELECT COUNT(*) FROM trade_event WHERE run_id = ?`, id).Scan(&n); err != nil {
		t.Fatalf("count trade_event: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 trade_event rows, got %d", n)
	}

	trades := []core.ClosedTrade{
		{Ticker: "AAA", EntryDate: day(0), ExitDate: day(3), EntryPrice: 10, ExitPrice: 15, Shares: 5, RealizedPNL: 25, HoldingDays: 3},
	}
	if err := d.SaveClosedTrades(id, trades); err != nil {
		t.Fatalf("SaveClosedTrades: %v", err)
	}
	var pnl float64
	if err := d.sql.QueryRow(`SELECT realized_pnl FROM closed_trade WHERE run_id = ?`, id).Scan(&pnl); err != nil {
		t.Fatalf("query closed_trade: %v", err)
	}
	if pnl != 25 {
		t.Fatalf("expected realized_pnl 25, got %v", pnl)
	}
}

func TestDB_SaveTickerSummaries_NaNBecomesNull(t *testing.T) {
	d := openTestDB(t)
	defer d.Close()

	id, err := d.StartRun(1, 0.7, "[]", "[]", "{}")
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	summaries := []backtest.TickerSummary{
		{Ticker: "AAA", NTrades: 1, WinRate: 1.0, FinalCash: math.NaN()},
		{Ticker: backtest.PortfolioRow, NTrades: 1, WinRate: 1.0, FinalCash: 500, FinalEquity: 1000},
	}
	if err := d.SaveTickerSummaries(id, summaries); err != nil {
		t.Fatalf("SaveTickerSummaries: %v", err)
	}

	var finalCash sql.NullFloat64
	err = d.sql.QueryRow(`SELECT final_cash FROM ticker_summary WHERE run_id = ? AND ticker = ?`, id, "AAA").Scan(&finalCash)
	if err != nil {
		t.Fatalf("query ticker_summary: %v", err)
	}
	if finalCash.Valid {
		t.Fatalf("expected NULL final_cash for NaN input, got %v", finalCash.Float64)
	}

	err = d.sql.QueryRow(`SELECT final_cash FROM ticker_summary WHERE run_id = ? AND ticker = ?`, id, backtest.PortfolioRow).Scan(&finalCash)
	if err != nil {
		t.Fatalf("query portfolio row: %v", err)
	}
	if !finalCash.Valid || finalCash.Float64 != 500 {
		t.Fatalf("expected final_cash 500 for portfolio row, got %+v", finalCash)
	}
}
