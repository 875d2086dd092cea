// Package optimize implements the grid-search SMA optimizer (C10), ported
// from original_source/src/optimizer.py::optimize_sma and
// optimize_sma_per_ticker. Grid points are scored independently of one
// another and evaluated concurrently with golang.org/x/sync/errgroup,
// generalizing the per-region fan-out in the teacher's
// internal/engine/scanner.go (there: one goroutine per ESI region; here:
// one goroutine per (short, long) grid point).
package optimize

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"smabacktester/internal/backtest"
	"smabacktester/internal/core"
	"smabacktester/internal/prices"
)

const (
	weightSharpe       = 1.0
	weightProfitFactor = 0.5
	weightMaxDrawdown  = 2.0
	weightWinRate      = 0.5

	// maxConcurrentEvals caps how many grid points run at once; each one
	// runs a full backtest, so unbounded fan-out would thrash on large grids.
	maxConcurrentEvals = 8

	defaultFallbackShort = 10
	defaultFallbackLong  = 50
)

// Window is a (short, long) SMA pair.
type Window struct {
	Short int
	Long  int
}

// gridResult is one evaluated grid point.
type gridResult struct {
	window  Window
	score   float64
	nTrades int
	note    string
}

// OptimizeSMA scores every (short, long) pair in the cartesian product of
// shortGrid x longGrid where short < long, using
// score = 1.0*Sharpe + 0.5*ProfitFactor - 2.0*|MaxDrawdown| + 0.5*WinRate
// on the _PORTFOLIO_ row of a backtest run over the training universe, and
// returns the best-scoring pair. Pairs lacking history for the long window
// across every ticker are skipped. cfg.MinTrades/cfg.TradePenaltyMode
// penalize (scale mode) or disqualify (reject mode) grid points with too
// few trades.
func OptimizeSMA(trainUniverse map[string]*prices.Series, shortGrid, longGrid []int, cfg core.BacktestConfig) (Window, error) {
	type candidate struct{ short, long int }
	var candidates []candidate
	for _, s := range shortGrid {
		for _, l := range longGrid {
			if s >= l {
				continue
			}
			if !anyTickerHasHistory(trainUniverse, l) {
				continue
			}
			candidates = append(candidates, candidate{short: s, long: l})
		}
	}
	if len(candidates) == 0 {
		return Window{}, &core.OptimizerNoGridError{Reason: "no (short, long) pair has sufficient training history"}
	}

	results := make([]gridResult, len(candidates))
	eg, ctx := errgroup.WithContext(context.Background())
	eg.SetLimit(maxConcurrentEvals)

	for i, c := range candidates {
		i, c := i, c
		eg.Go(func() error {
			// Once another grid point has failed, skip the ones not yet started.
			if err := ctx.Err(); err != nil {
				return err
			}
			smaParams := make(map[string][2]int, len(trainUniverse))
			for t := range trainUniverse {
				smaParams[t] = [2]int{c.short, c.long}
			}
			result, err := backtest.Run(trainUniverse, smaParams, cfg)
			if err != nil {
				return err
			}
			results[i] = scoreGridPoint(Window{Short: c.short, Long: c.long}, result, cfg)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Window{}, err
	}

	var best gridResult
	haveBest := false
	for _, r := range results {
		log.Printf("[DEBUG] grid s=%d l=%d score=%v trades=%d note=%s", r.window.Short, r.window.Long, r.score, r.nTrades, r.note)
		if math.IsNaN(r.score) {
			continue
		}
		if !haveBest || r.score > best.score {
			best = r
			haveBest = true
		}
	}
	if !haveBest {
		return Window{}, &core.OptimizerNoGridError{Reason: "every grid point scored NaN (rejected by min-trades penalty or a NaN metric)"}
	}
	return best.window, nil
}

func scoreGridPoint(w Window, result backtest.Result, cfg core.BacktestConfig) gridResult {
	var portfolio *backtest.TickerSummary
	for i := range result.Summaries {
		if result.Summaries[i].Ticker == backtest.PortfolioRow {
			portfolio = &result.Summaries[i]
			break
		}
	}
	if portfolio == nil {
		return gridResult{window: w, score: math.NaN(), note: "no portfolio row"}
	}

	nTrades := len(result.ClosedTrades)
	score := weightSharpe*portfolio.Sharpe +
		weightProfitFactor*portfolio.ProfitFactor -
		weightMaxDrawdown*math.Abs(portfolio.MaxDrawdown) +
		weightWinRate*portfolio.WinRate

	note := ""
	if nTrades < cfg.MinTrades {
		switch cfg.TradePenaltyMode {
		case core.PenaltyReject:
			score = math.NaN()
			note = fmt.Sprintf("too_few_trades<%d", cfg.MinTrades)
		case core.PenaltyScale:
			factor := float64(nTrades) / float64(cfg.MinTrades)
			score *= factor
			note = fmt.Sprintf("penalty_trades(%d/%d)", nTrades, cfg.MinTrades)
		}
	}

	return gridResult{window: w, score: score, nTrades: nTrades, note: note}
}

func anyTickerHasHistory(universe map[string]*prices.Series, longWindow int) bool {
	for _, s := range universe {
		if s.Len() >= longWindow+1 {
			return true
		}
	}
	return false
}

// OptimizeSMAPerTicker runs OptimizeSMA independently for each ticker (a
// single-ticker training universe per call) and falls back to
// fallbackWindow with a logged warning when optimization fails for that
// ticker, mirroring optimize_sma_per_ticker's per-ticker try/except.
func OptimizeSMAPerTicker(trainUniverse map[string]*prices.Series, shortGrid, longGrid []int, cfg core.BacktestConfig, fallbackWindow Window) map[string]Window {
	if fallbackWindow == (Window{}) {
		fallbackWindow = Window{Short: defaultFallbackShort, Long: defaultFallbackLong}
	}

	out := make(map[string]Window, len(trainUniverse))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for ticker, series := range trainUniverse {
		ticker, series := ticker, series
		wg.Add(1)
		go func() {
			defer wg.Done()
			single := map[string]*prices.Series{ticker: series}
			best, err := OptimizeSMA(single, shortGrid, longGrid, cfg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("[DEBUG] optimize failed for %s: %v, using fallback (%d, %d)", ticker, err, fallbackWindow.Short, fallbackWindow.Long)
				out[ticker] = fallbackWindow
				return
			}
			log.Printf("[DEBUG] ticker %s optimized -> short=%d long=%d", ticker, best.Short, best.Long)
			out[ticker] = best
		}()
	}
	wg.Wait()
	return out
}
