// Package execution implements the Order Selector (C5) and Executor (C6),
// ported from original_source/src/execution.py::select_stocks_to_buy,
// select_stocks_to_sell, and execute_orders. The gather-candidates ->
// score -> sort-descending -> iterate-with-caps shape of the buy selector
// is grounded on the teacher's internal/engine/scanner.go, which ranks
// flip candidates the same way before capping by max-results.
package execution

import (
	"math"
	"sort"

	"smabacktester/internal/core"
	"smabacktester/internal/indicators"
	"smabacktester/internal/signals"
	"smabacktester/internal/sizing"
)

// SMAWindow is a (short, long) SMA window pair for one ticker.
type SMAWindow struct {
	Short int
	Long  int
}

type buyCandidate struct {
	ticker string
	price  float64
	score  float64
}

// SelectBuys ranks every ticker with today's signal = +1 by priority score
// (descending, ties broken by ticker name for determinism — spec §4.4's
// "stable by ticker id when scores tie") and greedily sizes BUY orders
// against the day's cash budget, capping both per-ticker dollar exposure
// and total affordability. The per-ticker cap is MaxPctPerTicker of the
// cash still unspent after earlier candidates of the same day, not of the
// starting cash, so later candidates get a smaller cap. closesUpTo must
// return the closing-price history for a ticker through day d, inclusive.
func SelectBuys(
	signalsToday map[string]signals.Row,
	priceMap map[string]float64,
	cash float64,
	windows map[string]SMAWindow,
	defaultWindow SMAWindow,
	atrToday map[string]float64,
	closesUpTo func(ticker string) []float64,
	cfg core.BacktestConfig,
) []core.OrderIntent {
	maxPerDay := cfg.MaxPositionsPerDay
	if maxPerDay <= 0 {
		maxPerDay = math.MaxInt32
	}

	var candidates []buyCandidate
	for t, row := range signalsToday {
		if row.Signal != signals.ActionBuy {
			continue
		}
		price, ok := priceMap[t]
		if !ok || price <= 0 {
			continue
		}
		win := windows[t]
		if win.Short == 0 && win.Long == 0 {
			win = defaultWindow
		}
		closes := closesUpTo(t)
		if len(closes) < win.Long {
			continue
		}
		score := indicators.PriorityScore(closes, win.Short, win.Long, false)
		candidates = append(candidates, buyCandidate{ticker: t, price: price, score: score})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].ticker < candidates[j].ticker
	})

	lot := cfg.LotSize
	if lot < 1 {
		lot = 1
	}

	var orders []core.OrderIntent
	remainingCash := cash
	count := 0
	for _, c := range candidates {
		if count >= maxPerDay {
			break
		}
		var atr float64 = math.NaN()
		if v, ok := atrToday[c.ticker]; ok {
			atr = v
		}

		shares := sizing.Shares(remainingCash, c.price, cfg, atr)
		if shares <= 0 {
			continue
		}

		maxAllowedValue := remainingCash * cfg.MaxPctPerTicker
		if shares*c.price > maxAllowedValue {
			maxShares := math.Floor(maxAllowedValue/c.price/lot) * lot
			if maxShares <= 0 {
				continue
			}
			shares = maxShares
		}

		cost := shares * c.price
		if cost > remainingCash {
			affordable := math.Floor(remainingCash/c.price/lot) * lot
			if affordable <= 0 {
				continue
			}
			shares = affordable
			cost = shares * c.price
		}
		if shares <= 0 {
			continue
		}

		orders = append(orders, core.OrderIntent{Ticker: c.ticker, Side: core.Buy, Shares: shares})
		remainingCash -= cost
		count++
	}
	return orders
}

// SelectSells applies the signal/stop-loss/take-profit sell rules (spec
// §4.4) to every currently-held ticker with a valid price.
// last_buy_price is a single scalar per ticker (spec §9's documented
// open question: SL/TP is evaluated against the most recent BUY fill
// only, never a weighted average across lots).
func SelectSells(
	positions map[string]float64,
	priceMap map[string]float64,
	signalsToday map[string]signals.Row,
	lastBuyPrice map[string]float64,
	cfg core.BacktestConfig,
) []core.OrderIntent {
	lot := cfg.LotSize
	if lot < 1 {
		lot = 1
	}

	// Iterate tickers in a deterministic order so output is reproducible
	// (map iteration order is not stable in Go).
	tickers := make([]string, 0, len(positions))
	for t := range positions {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var orders []core.OrderIntent
	for _, t := range tickers {
		held := positions[t]
		if held <= 0 {
			continue
		}
		price, ok := priceMap[t]
		if !ok || price <= 0 || math.IsNaN(price) {
			continue
		}

		sellFraction := 0.0
		if row, ok := signalsToday[t]; ok && row.Signal == signals.ActionSell {
			sellFraction = cfg.SellFractionOnSignal
		}

		if cfg.StopLossPct > 0 || cfg.TakeProfitPct > 0 {
			if buyP, ok := lastBuyPrice[t]; ok && buyP > 0 {
				change := (price - buyP) / buyP
				switch {
				case cfg.StopLossPct > 0 && change <= -math.Abs(cfg.StopLossPct):
					sellFraction = 1.0
				case cfg.TakeProfitPct > 0 && change >= math.Abs(cfg.TakeProfitPct):
					sellFraction = 1.0
				}
			}
		}

		if sellFraction <= 0 {
			continue
		}

		rawShares := held * sellFraction
		sharesToSell := math.Floor(rawShares/lot) * lot
		if sharesToSell <= 0 && held >= lot {
			sharesToSell = lot
		}
		if sharesToSell <= 0 && held < lot {
			sharesToSell = held
		}
		if sharesToSell > 0 {
			orders = append(orders, core.OrderIntent{Ticker: t, Side: core.Sell, Shares: sharesToSell})
		}
	}

	if cfg.MaxSellsPerDay > 0 && len(orders) > cfg.MaxSellsPerDay {
		orders = orders[:cfg.MaxSellsPerDay]
	}
	return orders
}
