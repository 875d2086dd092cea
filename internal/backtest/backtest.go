// Package backtest implements the daily simulation driver (C9), ported
// from original_source/src/backtest.py::run_backtest. It wires together
// every other package: signals, indicators, sizing, execution, ledger,
// and perf.
package backtest

import (
	"math"
	"time"

	"smabacktester/internal/core"
	"smabacktester/internal/execution"
	"smabacktester/internal/indicators"
	"smabacktester/internal/ledger"
	"smabacktester/internal/perf"
	"smabacktester/internal/prices"
	"smabacktester/internal/signals"
)

// defaultShort, defaultLong are the fallback SMA windows used for any
// ticker absent from the sma_params map, matching the original's
// hard-coded (10, 50) fallback.
const (
	defaultShort = 10
	defaultLong  = 50
)

// TickerSummary is one row of the final performance table: per-ticker rows
// carry realized/unrealized P&L and trade stats; the portfolio summary row
// (Ticker == PortfolioRow) additionally carries equity-curve-derived
// CAGR/Sharpe/MaxDrawdown/Calmar, which are NaN on every per-ticker row.
type TickerSummary struct {
	Ticker              string
	NTrades             int
	WinRate             float64
	RealizedPNL         float64
	PNL                 float64
	AvgRealizedPNL      float64
	ProfitFactor        float64
	RemainingShareValue float64
	FinalCash           float64
	FinalEquity         float64
	CAGR                float64
	Sharpe              float64
	MaxDrawdown         float64
	Calmar              float64
}

// PortfolioRow is the sentinel ticker name for the aggregate summary row.
const PortfolioRow = "_PORTFOLIO_"

// Result is everything one full backtest run produces.
type Result struct {
	Events       []core.TradeEvent
	EquityCurve  []core.EquitySample
	ClosedTrades []core.ClosedTrade
	Summaries    []TickerSummary
}

// Run executes the full daily simulation loop over universe, using
// smaParams[ticker] = (short, long) when present and the (10, 50) default
// otherwise. Sells are selected and executed before buys every day.
//
// Run returns a non-nil error only when the executor reports a structural
// invariant violation (e.g. cash < 0) — per spec.md's error-handling
// design, that is the one fatal condition in the simulation loop, and the
// run aborts immediately rather than producing a partial Result.
func Run(universe map[string]*prices.Series, smaParams map[string][2]int, cfg core.BacktestConfig) (Result, error) {
	signalsMap := make(map[string]*signals.Frame, len(universe))
	atrMap := make(map[string][]float64, len(universe))
	windows := make(map[string]execution.SMAWindow, len(universe))

	for t, s := range universe {
		shortW, longW := defaultShort, defaultLong
		if w, ok := smaParams[t]; ok {
			shortW, longW = w[0], w[1]
		}
		windows[t] = execution.SMAWindow{Short: shortW, Long: longW}
		signalsMap[t] = signals.Generate(s.Closes(), shortW, longW)
		atrMap[t] = indicators.ATR(s.Bars, cfg.ATRPeriod)
	}

	allDates := prices.UnionDates(universe)

	state := core.NewPortfolioState(cfg.InitialCash)
	for t := range universe {
		state.Positions[t] = 0
	}
	book := ledger.NewBook()
	var events []core.TradeEvent
	var closedTrades []core.ClosedTrade

	for _, date := range allDates {
		priceMap := make(map[string]float64, len(universe))
		signalsToday := make(map[string]signals.Row, len(universe))
		for t, s := range universe {
			idx := s.IndexOf(date)
			if idx < 0 {
				continue
			}
			priceMap[t] = s.Bars[idx].Open
			signalsToday[t] = signalsMap[t].Rows[idx]
		}

		sellOrders := execution.SelectSells(state.Positions, priceMap, signalsToday, state.LastBuyPrice, cfg)
		sellEvents, err := execution.Execute(sellOrders, priceMap, state, date, cfg)
		if err != nil {
			return Result{}, err
		}
		events = append(events, sellEvents...)
		for _, ev := range sellEvents {
			closedTrades = append(closedTrades, book.Apply(ev)...)
		}

		var buyOrders []core.OrderIntent
		hasBuySignal := false
		for _, row := range signalsToday {
			if row.Signal == signals.ActionBuy {
				hasBuySignal = true
				break
			}
		}
		if hasBuySignal {
			atrToday := make(map[string]float64, len(universe))
			for t := range universe {
				idx := universe[t].IndexOf(date)
				if idx >= 0 && idx < len(atrMap[t]) {
					atrToday[t] = atrMap[t][idx]
				}
			}
			closesUpTo := func(t string) []float64 {
				s := universe[t]
				idx := s.IndexOf(date)
				if idx < 0 {
					return nil
				}
				return s.Closes()[:idx+1]
			}
			buyOrders = execution.SelectBuys(signalsToday, priceMap, state.Cash, windows, execution.SMAWindow{Short: defaultShort, Long: defaultLong}, atrToday, closesUpTo, cfg)
		}

		if cfg.MaxPositionsInPortfolio > 0 && len(buyOrders) > 0 {
			currentOpen := 0
			for _, v := range state.Positions {
				if v > 0 {
					currentOpen++
				}
			}
			availableSlots := cfg.MaxPositionsInPortfolio - currentOpen
			if availableSlots < 0 {
				availableSlots = 0
			}
			if availableSlots < len(buyOrders) {
				buyOrders = buyOrders[:availableSlots]
			}
		}

		buyEvents, err := execution.Execute(buyOrders, priceMap, state, date, cfg)
		if err != nil {
			return Result{}, err
		}
		events = append(events, buyEvents...)
		for _, ev := range buyEvents {
			closedTrades = append(closedTrades, book.Apply(ev)...)
		}

		totalValue := state.Cash
		for t, shares := range state.Positions {
			if shares <= 0 {
				continue
			}
			price, ok := priceMap[t]
			if !ok || math.IsNaN(price) {
				price = universe[t].LastOpenUpTo(date)
			}
			if math.IsNaN(price) {
				continue
			}
			totalValue += shares * price
		}
		state.EquityCurve = append(state.EquityCurve, core.EquitySample{Date: date, Equity: totalValue})
	}

	var lastDate time.Time
	if len(allDates) > 0 {
		lastDate = allDates[len(allDates)-1]
	}
	unrealized, marketValue := book.UnrealizedAndMarketValue(func(t string) (float64, bool) {
		s, ok := universe[t]
		if !ok {
			return 0, false
		}
		p := s.LastOpenUpTo(lastDate)
		if math.IsNaN(p) {
			return 0, false
		}
		return p, true
	})

	tradesByTicker := make(map[string][]core.ClosedTrade)
	for _, tr := range closedTrades {
		tradesByTicker[tr.Ticker] = append(tradesByTicker[tr.Ticker], tr)
	}

	var summaries []TickerSummary
	var totalRealized, totalUnrealized float64
	for t := range universe {
		tickerTrades := tradesByTicker[t]
		rm := ledger.RealizedMetricsFromTrades(tickerTrades)
		var realized float64
		for _, tr := range tickerTrades {
			realized += tr.RealizedPNL
		}
		upnl := unrealized[t]
		totalRealized += realized
		totalUnrealized += upnl

		summaries = append(summaries, TickerSummary{
			Ticker:              t,
			NTrades:             rm.NTrades,
			WinRate:             rm.WinRate,
			RealizedPNL:         realized,
			PNL:                 realized + upnl,
			AvgRealizedPNL:      rm.AvgRealizedPL,
			ProfitFactor:        rm.ProfitFactor,
			RemainingShareValue: marketValue[t],
			FinalCash:           math.NaN(),
			FinalEquity:         math.NaN(),
			CAGR:                math.NaN(),
			Sharpe:              math.NaN(),
			MaxDrawdown:         math.NaN(),
			Calmar:              math.NaN(),
		})
	}

	portfolioMetrics := perf.ComputePortfolioMetrics(state.EquityCurve, closedTrades)
	finalMark := 0.0
	for t := range universe {
		finalMark += marketValue[t]
	}
	finalEquity := state.Cash + finalMark

	summaries = append(summaries, TickerSummary{
		Ticker:              PortfolioRow,
		NTrades:             portfolioMetrics.NTrades,
		WinRate:             portfolioMetrics.WinRate,
		RealizedPNL:         totalRealized,
		PNL:                 totalRealized + totalUnrealized,
		AvgRealizedPNL:      portfolioMetrics.AvgRealizedPL,
		ProfitFactor:        portfolioMetrics.ProfitFactor,
		RemainingShareValue: finalMark,
		FinalCash:           state.Cash,
		FinalEquity:         finalEquity,
		CAGR:                portfolioMetrics.CAGR,
		Sharpe:              portfolioMetrics.Sharpe,
		MaxDrawdown:         portfolioMetrics.MaxDrawdown,
		Calmar:              portfolioMetrics.Calmar,
	})

	return Result{
		Events:       events,
		EquityCurve:  state.EquityCurve,
		ClosedTrades: closedTrades,
		Summaries:    summaries,
	}, nil
}
