package optimize

import (
	"math"
	"testing"
	"time"

	"smabacktester/internal/backtest"
	"smabacktester/internal/core"
	"smabacktester/internal/prices"
)

func bar(day int, price float64) core.Bar {
	return core.Bar{Date: time.Date(2024, 1, 1+day, 0, 0, 0, 0, time.UTC), Open: price, Close: price}
}

// trendingSeries ramps up strongly after day 20, so a fast-reacting short
// SMA (e.g. 5) crosses over a slow one well before a sluggish pair does,
// producing a clear best grid point.
func trendingSeries(ticker string, n int) *prices.Series {
	bars := make([]core.Bar, n)
	price := 100.0
	for i := 0; i < n; i++ {
		if i >= 20 {
			price += 1.5
		}
		bars[i] = bar(i, price)
	}
	return prices.NewSeries(ticker, bars)
}

func baseCfg() core.BacktestConfig {
	cfg := core.DefaultConfig()
	cfg.SizingMethod = core.SizingFraction
	cfg.Fraction = 0.3
	cfg.LotSize = 1
	cfg.MinTrades = 0
	cfg.TradePenaltyMode = core.PenaltyScale
	return cfg
}

func TestOptimizeSMA_SkipsPairsWithShortGELong(t *testing.T) {
	universe := map[string]*prices.Series{"AAA": trendingSeries("AAA", 80)}
	cfg := baseCfg()
	// Every candidate has short >= long; OptimizeSMA must reject the whole grid.
	_, err := OptimizeSMA(universe, []int{20}, []int{10}, cfg)
	if err == nil {
		t.Fatalf("expected an error when no candidate has short < long")
	}
}

func TestOptimizeSMA_PicksAPairFromTheGrid(t *testing.T) {
	universe := map[string]*prices.Series{
		"AAA": trendingSeries("AAA", 80),
		"BBB": trendingSeries("BBB", 80),
	}
	cfg := baseCfg()
	best, err := OptimizeSMA(universe, []int{3, 5, 10}, []int{15, 20, 30}, cfg)
	if err != nil {
		t.Fatalf("expected a valid grid result, got error: %v", err)
	}
	if best.Short >= best.Long {
		t.Fatalf("expected short < long in winning pair, got %+v", best)
	}
}

func TestOptimizeSMA_RejectModeExcludesLowTradeCounts(t *testing.T) {
	universe := map[string]*prices.Series{"AAA": trendingSeries("AAA", 80)}
	cfg := baseCfg()
	cfg.MinTrades = 1000 // unreachable in this short a series
	cfg.TradePenaltyMode = core.PenaltyReject

	_, err := OptimizeSMA(universe, []int{3, 5}, []int{15, 20}, cfg)
	if err == nil {
		t.Fatalf("expected every candidate to be rejected for too few trades")
	}
}

func TestOptimizeSMAPerTicker_FallsBackOnFailure(t *testing.T) {
	universe := map[string]*prices.Series{
		"AAA": trendingSeries("AAA", 80),
		"BBB": trendingSeries("BBB", 5), // too short for any grid pair
	}
	cfg := baseCfg()
	fallback := Window{Short: 7, Long: 21}

	out := OptimizeSMAPerTicker(universe, []int{3, 5}, []int{15, 20}, cfg, fallback)
	if len(out) != 2 {
		t.Fatalf("expected a window for every ticker, got %d", len(out))
	}
	if out["BBB"] != fallback {
		t.Fatalf("expected BBB to fall back to %+v, got %+v", fallback, out["BBB"])
	}
	if out["AAA"] == fallback {
		t.Fatalf("expected AAA to optimize successfully rather than fall back")
	}
}

func TestScoreGridPoint_MissingPortfolioRowIsNaN(t *testing.T) {
	result := backtest.Result{Summaries: []backtest.TickerSummary{{Ticker: "AAA"}}}
	r := scoreGridPoint(Window{Short: 1, Long: 2}, result, baseCfg())
	if !math.IsNaN(r.score) {
		t.Fatalf("expected NaN score without a portfolio row, got %v", r.score)
	}
}
