// Package sizing implements the position sizer (C4), ported from
// original_source/src/signals.py::compute_position_size.
package sizing

import (
	"math"

	"smabacktester/internal/core"
)

// Shares computes the integer (or fractional, if AllowFractional) share
// count for a BUY, rounded down to the nearest LotSize. atr is ignored
// unless SizingMethod is volatility; pass math.NaN() when unavailable.
func Shares(cash, price float64, cfg core.BacktestConfig, atr float64) float64 {
	if price <= 0 || cash <= 0 {
		return 0
	}

	lot := cfg.LotSize
	if lot < 1 {
		lot = 1
	}

	var value float64
	switch cfg.SizingMethod {
	case core.SizingFraction:
		value = cash * cfg.Fraction
	case core.SizingFixed:
		value = cfg.FixedAmount
	case core.SizingVolatility:
		if math.IsNaN(atr) || atr <= 0 {
			return 0
		}
		riskCapital := cash * cfg.VolatilityRiskPct
		riskPerShare := atr * cfg.ATRMultiplier
		if riskPerShare <= 0 {
			return 0
		}
		shares := riskCapital / riskPerShare
		if cfg.AllowFractional {
			return shares
		}
		return roundDownToLot(shares, lot)
	default:
		return 0
	}

	if cfg.AllowFractional {
		return value / price
	}
	return roundDownToLot(value/price, lot)
}

// roundDownToLot floors shares to the nearest multiple of lot.
func roundDownToLot(shares, lot float64) float64 {
	if lot < 1 {
		lot = 1
	}
	return math.Floor(shares/lot) * lot
}
