// Package ledger implements the FIFO lot book and trade-event replay (C7),
// ported from original_source/src/core.py::replay_and_pairs and
// compute_unrealized_from_events. The slice-as-queue idiom (append to grow,
// slice off the front to pop) mirrors the FIFO buy-queue matching in the
// teacher's internal/engine/risk.go::ComputePortfolioRiskFromTransactions.
package ledger

import (
	"math"
	"sort"
	"time"

	"smabacktester/internal/core"
)

// Book holds one open FIFO queue of lots per ticker.
type Book struct {
	lots map[string][]core.Lot
}

// NewBook returns an empty lot book.
func NewBook() *Book {
	return &Book{lots: make(map[string][]core.Lot)}
}

// Apply pushes a BUY event as a new lot, or peels FIFO lots off a SELL event
// and returns the ClosedTrade produced by each lot the sell consumes (a
// single SELL can close against more than one lot). Events with
// non-positive shares are ignored, matching the original's guard.
func (b *Book) Apply(ev core.TradeEvent) []core.ClosedTrade {
	if ev.Shares <= 0 {
		return nil
	}
	switch ev.Side {
	case core.Buy:
		b.lots[ev.Ticker] = append(b.lots[ev.Ticker], core.Lot{
			EntryDate:    ev.Date,
			EntryPrice:   ev.Price,
			SharesRemain: ev.Shares,
		})
		return nil
	case core.Sell:
		return b.sell(ev)
	default:
		return nil
	}
}

func (b *Book) sell(ev core.TradeEvent) []core.ClosedTrade {
	var closed []core.ClosedTrade
	remaining := ev.Shares
	queue := b.lots[ev.Ticker]

	for remaining > 0 && len(queue) > 0 {
		lot := &queue[0]
		take := remaining
		if lot.SharesRemain < take {
			take = lot.SharesRemain
		}
		closed = append(closed, core.ClosedTrade{
			Ticker:      ev.Ticker,
			EntryDate:   lot.EntryDate,
			ExitDate:    ev.Date,
			EntryPrice:  lot.EntryPrice,
			ExitPrice:   ev.Price,
			Shares:      take,
			RealizedPNL: (ev.Price - lot.EntryPrice) * take,
			HoldingDays: holdingDays(lot.EntryDate, ev.Date),
		})
		lot.SharesRemain -= take
		remaining -= take
		if lot.SharesRemain <= 0 {
			queue = queue[1:]
		}
	}
	b.lots[ev.Ticker] = queue
	return closed
}

func holdingDays(entry, exit time.Time) float64 {
	if entry.IsZero() {
		return 0
	}
	return exit.Sub(entry).Hours() / 24
}

// OpenLots returns a copy of the currently open lots for a ticker, oldest
// first.
func (b *Book) OpenLots(ticker string) []core.Lot {
	src := b.lots[ticker]
	out := make([]core.Lot, len(src))
	copy(out, src)
	return out
}

// Replay rebuilds a Book and the full ClosedTrade history from an ordered
// TradeEvent log. Events are sorted by date first (stable, so same-day
// events keep their original relative order) so replay from a persisted
// log is equivalent to the incremental Apply calls made during a live run.
func Replay(events []core.TradeEvent) (*Book, []core.ClosedTrade) {
	sorted := make([]core.TradeEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	book := NewBook()
	var trades []core.ClosedTrade
	for _, ev := range sorted {
		trades = append(trades, book.Apply(ev)...)
	}
	return book, trades
}

// UnrealizedAndMarketValue computes, for every ticker with an open lot, the
// unrealized P&L and mark-to-market value at priceAt(ticker). Tickers with
// no open lots or no available price are omitted from both maps. Ported
// from original_source/src/core.py::compute_unrealized_from_events.
func (b *Book) UnrealizedAndMarketValue(priceAt func(ticker string) (float64, bool)) (unrealized, marketValue map[string]float64) {
	unrealized = make(map[string]float64)
	marketValue = make(map[string]float64)
	for ticker, lots := range b.lots {
		if len(lots) == 0 {
			continue
		}
		price, ok := priceAt(ticker)
		if !ok {
			continue
		}
		var mv, upnl float64
		for _, lot := range lots {
			mv += lot.SharesRemain * price
			upnl += (price - lot.EntryPrice) * lot.SharesRemain
		}
		marketValue[ticker] = mv
		unrealized[ticker] = upnl
	}
	return unrealized, marketValue
}

// RealizedMetrics summarizes a closed-trade slice: trade count, win rate,
// average realized P&L, and profit factor (gross wins / |gross losses|).
// Ported from original_source/src/core.py::realized_metrics_from_trades.
type RealizedMetrics struct {
	NTrades       int
	WinRate       float64
	AvgRealizedPL float64
	ProfitFactor  float64
}

func RealizedMetricsFromTrades(trades []core.ClosedTrade) RealizedMetrics {
	n := len(trades)
	if n == 0 {
		return RealizedMetrics{NTrades: 0, WinRate: math.NaN(), AvgRealizedPL: math.NaN(), ProfitFactor: math.NaN()}
	}

	var wins, losses int
	var sumPNL, grossWin, grossLoss float64
	for _, tr := range trades {
		sumPNL += tr.RealizedPNL
		switch {
		case tr.RealizedPNL > 0:
			wins++
			grossWin += tr.RealizedPNL
		case tr.RealizedPNL < 0:
			losses++
			grossLoss += tr.RealizedPNL
		}
	}

	profitFactor := math.NaN()
	if grossLoss != 0 {
		profitFactor = grossWin / -grossLoss
	}
	_ = losses

	return RealizedMetrics{
		NTrades:       n,
		WinRate:       float64(wins) / float64(n),
		AvgRealizedPL: sumPNL / float64(n),
		ProfitFactor:  profitFactor,
	}
}
