package tradeio

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"smabacktester/internal/backtest"
	"smabacktester/internal/core"
)

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return fmt.Sprintf("%.6f", v)
}

func withTempCSV(path string, write func(w *csv.Writer) error) error {
	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &core.PersistenceError{Path: path, Op: "mkdir", Err: err}
	}
	tmp, err := os.CreateTemp(dir, "tmp_write_*.tmp")
	if err != nil {
		return &core.PersistenceError{Path: path, Op: "create_temp", Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := csv.NewWriter(tmp)
	if err := write(w); err != nil {
		tmp.Close()
		return &core.PersistenceError{Path: path, Op: "write", Err: err}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return &core.PersistenceError{Path: path, Op: "flush", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &core.PersistenceError{Path: path, Op: "close", Err: err}
	}
	return os.Rename(tmpPath, path)
}

// ExportTradeHistory writes the TradeEvent log as CSV with the columns
// Date,Ticker,Type,Price,Shares,Cash_after, matching export_trade_history.
func ExportTradeHistory(path string, events []core.TradeEvent) error {
	return withTempCSV(path, func(w *csv.Writer) error {
		if err := w.Write([]string{"Date", "Ticker", "Type", "Price", "Shares", "Cash_after"}); err != nil {
			return err
		}
		for _, e := range events {
			row := []string{
				e.Date.Format("2006-01-02"),
				e.Ticker,
				string(e.Side),
				formatFloat(e.Price),
				formatFloat(e.Shares),
				formatFloat(e.CashAfter),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// ExportPerTradeHistory writes the closed-trade ledger as CSV, matching the
// per-trade export columns used alongside replay_and_pairs' output.
func ExportPerTradeHistory(path string, trades []core.ClosedTrade) error {
	return withTempCSV(path, func(w *csv.Writer) error {
		if err := w.Write([]string{"Ticker", "EntryDate", "ExitDate", "EntryPrice", "ExitPrice", "Shares", "RealizedPNL", "HoldingDays"}); err != nil {
			return err
		}
		for _, tr := range trades {
			row := []string{
				tr.Ticker,
				tr.EntryDate.Format("2006-01-02"),
				tr.ExitDate.Format("2006-01-02"),
				formatFloat(tr.EntryPrice),
				formatFloat(tr.ExitPrice),
				formatFloat(tr.Shares),
				formatFloat(tr.RealizedPNL),
				formatFloat(tr.HoldingDays),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// ExportPerformanceMetrics writes the per-ticker + portfolio summary table
// as CSV, matching export_performance_metrics' column set.
func ExportPerformanceMetrics(path string, summaries []backtest.TickerSummary) error {
	return withTempCSV(path, func(w *csv.Writer) error {
		header := []string{
			"Ticker", "NTrades", "WinRate", "Realized_pnl", "PNL", "Avg_realized_pnl",
			"ProfitFactor", "Remaining_share_value", "FinalCash", "FinalEquity",
			"CAGR", "Sharpe", "MaxDrawdown", "Calmar",
		}
		if err := w.Write(header); err != nil {
			return err
		}
		for _, s := range summaries {
			row := []string{
				s.Ticker,
				fmt.Sprintf("%d", s.NTrades),
				formatFloat(s.WinRate),
				formatFloat(s.RealizedPNL),
				formatFloat(s.PNL),
				formatFloat(s.AvgRealizedPNL),
				formatFloat(s.ProfitFactor),
				formatFloat(s.RemainingShareValue),
				formatFloat(s.FinalCash),
				formatFloat(s.FinalEquity),
				formatFloat(s.CAGR),
				formatFloat(s.Sharpe),
				formatFloat(s.MaxDrawdown),
				formatFloat(s.Calmar),
			}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// ExportDailyReturns writes the equity curve's day-over-day percent change
// as a Date,Return CSV, reproducing the original's
// portfolio_daily_returns.csv (`ec_df["Equity"].pct_change().fillna(0.0)`):
// one row per equity sample, with the first date's return filled to 0.0
// rather than omitted.
func ExportDailyReturns(path string, equity []core.EquitySample) error {
	return withTempCSV(path, func(w *csv.Writer) error {
		if err := w.Write([]string{"Date", "Return"}); err != nil {
			return err
		}
		for i := 0; i < len(equity); i++ {
			var ret float64
			if i == 0 {
				ret = 0
			} else {
				prev := equity[i-1].Equity
				if prev == 0 {
					ret = math.NaN()
				} else {
					ret = equity[i].Equity/prev - 1
				}
			}
			row := []string{equity[i].Date.Format("2006-01-02"), formatFloat(ret)}
			if err := w.Write(row); err != nil {
				return err
			}
		}
		return nil
	})
}
