package tradeio

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"smabacktester/internal/backtest"
	"smabacktester/internal/core"
)

func TestSaveThenLoadPerTickerParams_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.json")

	want := map[string][2]int{"AAA": {5, 20}, "BBB": {10, 50}}
	if err := SavePerTickerParams(path, want); err != nil {
		t.Fatalf("SavePerTickerParams: %v", err)
	}

	got, err := LoadPerTickerParams(path)
	if err != nil {
		t.Fatalf("LoadPerTickerParams: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d tickers, got %d", len(want), len(got))
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("ticker %s: expected %v, got %v", k, v, got[k])
		}
	}
}

func TestLoadPerTickerParams_MissingFileReturnsNilNil(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does_not_exist.json")

	got, err := LoadPerTickerParams(path)
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil map for missing file, got %v", got)
	}
}

func TestSavePerTickerParams_AtomicallyReplacesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.json")

	if err := SavePerTickerParams(path, map[string][2]int{"AAA": {1, 2}}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := SavePerTickerParams(path, map[string][2]int{"AAA": {3, 4}}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	got, err := LoadPerTickerParams(path)
	if err != nil {
		t.Fatalf("load after overwrite: %v", err)
	}
	if got["AAA"] != [2]int{3, 4} {
		t.Fatalf("expected overwritten value [3 4], got %v", got["AAA"])
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file left in dir (no leftover temp files), got %d", len(entries))
	}
}

func day(n int) time.Time {
	return time.Date(2024, 1, 1+n, 0, 0, 0, 0, time.UTC)
}

func TestExportTradeHistory_HeaderAndColumnOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trades.csv")

	events := []core.TradeEvent{
		{Date: day(0), Ticker: "AAA", Side: core.Buy, Price: 10.5, Shares: 3, CashAfter: 968.5},
		{Date: day(1), Ticker: "AAA", Side: core.Sell, Price: 12, Shares: 3, CashAfter: 1004.5},
	}
	if err := ExportTradeHistory(path, events); err != nil {
		t.Fatalf("ExportTradeHistory: %v", err)
	}

	rows := readCSV(t, path)
	wantHeader := []string{"Date", "Ticker", "Type", "Price", "Shares", "Cash_after"}
	assertRow(t, rows[0], wantHeader)
	if rows[1][0] != "2024-01-01" || rows[1][1] != "AAA" {
		t.Fatalf("unexpected first data row: %v", rows[1])
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d rows", len(rows))
	}
}

func TestExportPerTradeHistory_HeaderAndColumnOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "closed.csv")

	trades := []core.ClosedTrade{
		{Ticker: "AAA", EntryDate: day(0), ExitDate: day(5), EntryPrice: 10, ExitPrice: 15, Shares: 2, RealizedPNL: 10, HoldingDays: 5},
	}
	if err := ExportPerTradeHistory(path, trades); err != nil {
		t.Fatalf("ExportPerTradeHistory: %v", err)
	}

	rows := readCSV(t, path)
	wantHeader := []string{"Ticker", "EntryDate", "ExitDate", "EntryPrice", "ExitPrice", "Shares", "RealizedPNL", "HoldingDays"}
	assertRow(t, rows[0], wantHeader)
	if rows[1][0] != "AAA" || rows[1][1] != "2024-01-01" || rows[1][2] != "2024-01-06" {
		t.Fatalf("unexpected data row: %v", rows[1])
	}
}

func TestExportPerformanceMetrics_NaNBecomesEmptyCell(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "perf.csv")

	summaries := []backtest.TickerSummary{
		{Ticker: "AAA", NTrades: 2, WinRate: 0.5, FinalCash: math.NaN()},
		{Ticker: backtest.PortfolioRow, NTrades: 2, WinRate: 0.5, FinalCash: 100, FinalEquity: 200},
	}
	if err := ExportPerformanceMetrics(path, summaries); err != nil {
		t.Fatalf("ExportPerformanceMetrics: %v", err)
	}

	rows := readCSV(t, path)
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	// FinalCash column index 8; the AAA row sets it to NaN, written as "".
	if rows[1][8] != "" {
		t.Fatalf("expected empty FinalCash cell for NaN, got %q", rows[1][8])
	}
	if rows[2][0] != backtest.PortfolioRow {
		t.Fatalf("expected second row to be the portfolio row, got %q", rows[2][0])
	}
}

func TestExportDailyReturns_FirstSampleFillsZeroAndComputesPctChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "returns.csv")

	equity := []core.EquitySample{
		{Date: day(0), Equity: 100},
		{Date: day(1), Equity: 110},
	}
	if err := ExportDailyReturns(path, equity); err != nil {
		t.Fatalf("ExportDailyReturns: %v", err)
	}

	rows := readCSV(t, path)
	if len(rows) != 3 {
		t.Fatalf("expected header + one row per equity sample, got %d", len(rows))
	}
	if rows[1][0] != "2024-01-01" {
		t.Fatalf("expected first return row dated the first sample, got %v", rows[1][0])
	}
	if rows[1][1] != "0.000000" {
		t.Fatalf("expected first day's return filled to 0.0, got %q", rows[1][1])
	}
	if rows[2][0] != "2024-01-02" {
		t.Fatalf("expected second return row dated the second sample, got %v", rows[2][0])
	}
	if rows[2][1] != "0.100000" {
		t.Fatalf("expected 10%% return formatted as 0.100000, got %q", rows[2][1])
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv %s: %v", path, err)
	}
	return rows
}

func assertRow(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d columns, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("column %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
