package execution

import (
	"fmt"
	"time"

	"smabacktester/internal/core"
)

// Execute applies sized orders against the day's prices, mutating state in
// place and returning the TradeEvents recorded. Ported from
// original_source/src/execution.py::execute_orders. SELL orders are
// processed before BUY orders by the caller (backtest.Run); this function
// only guards per-order invariants, it does not reorder the slice.
//
// A negative cash balance after processing is a fatal structural invariant
// violation (spec.md's error-handling design names this exact case) — it is
// returned as an *core.InvariantError, never silently clamped.
func Execute(orders []core.OrderIntent, priceMap map[string]float64, state *core.PortfolioState, date time.Time, cfg core.BacktestConfig) ([]core.TradeEvent, error) {
	var events []core.TradeEvent

	for _, o := range orders {
		price, ok := priceMap[o.Ticker]
		if !ok || price <= 0 {
			continue
		}

		switch o.Side {
		case core.Buy:
			// A ticker already holding a position is never added to; the
			// selector only ever proposes one BUY per ticker per day, but
			// this guard protects against a stale/duplicate intent.
			if state.Positions[o.Ticker] > 0 {
				continue
			}
			shares := o.Shares
			cost := shares*price + cfg.FeesPerOrder
			if cost > state.Cash {
				usable := state.Cash - cfg.FeesPerOrder
				if usable <= 0 {
					continue
				}
				lot := cfg.LotSize
				if lot < 1 {
					lot = 1
				}
				shares = floorToLot(usable/price, lot, cfg.AllowFractional)
				if shares <= 0 {
					continue
				}
				cost = shares*price + cfg.FeesPerOrder
			}
			state.Cash -= cost
			state.Positions[o.Ticker] += shares
			state.LastBuyPrice[o.Ticker] = price
			events = append(events, core.TradeEvent{
				Date: date, Ticker: o.Ticker, Side: core.Buy, Price: price, Shares: shares, CashAfter: state.Cash,
			})

		case core.Sell:
			held := state.Positions[o.Ticker]
			if held <= 0 {
				continue
			}
			shares := o.Shares
			if shares > held {
				shares = held
			}
			proceeds := shares*price - cfg.FeesPerOrder
			state.Cash += proceeds
			state.Positions[o.Ticker] -= shares
			if state.Positions[o.Ticker] <= 1e-9 {
				state.Positions[o.Ticker] = 0
				delete(state.LastBuyPrice, o.Ticker)
			}
			events = append(events, core.TradeEvent{
				Date: date, Ticker: o.Ticker, Side: core.Sell, Price: price, Shares: shares, CashAfter: state.Cash,
			})
		}
	}

	if state.Cash < 0 {
		return events, &core.InvariantError{
			Invariant: "cash >= 0",
			Detail:    fmt.Sprintf("cash went negative (%.6f) on %s after executor", state.Cash, date.Format("2006-01-02")),
		}
	}
	return events, nil
}

func floorToLot(shares, lot float64, allowFractional bool) float64 {
	if allowFractional {
		return shares
	}
	if shares < lot {
		return 0
	}
	return float64(int64(shares/lot)) * lot
}
