// Package perf computes the equity-curve return statistics and realized
// trade metrics (C8), ported from original_source/src/core.py's
// compute_return_stats and compute_portfolio_metrics.
package perf

import (
	"math"

	"smabacktester/internal/core"
	"smabacktester/internal/ledger"
)

const (
	annualRiskFree   = 0.05
	tradingDaysYear  = 252
	calendarDaysYear = 365.25
)

// ReturnStats holds the equity-curve-derived metrics (spec §5).
type ReturnStats struct {
	Returns     []float64 // day-over-day pct change, len(equity)-1
	AnnVol      float64
	Sharpe      float64
	CAGR        float64
	MaxDrawdown float64 // always <= 0
	Calmar      float64
}

// ComputeReturnStats mirrors compute_return_stats: daily pct-change series,
// annualized volatility, Sharpe over a 0.05 annual risk-free rate, CAGR
// over a 365.25-day year, and max drawdown (a non-positive fraction).
func ComputeReturnStats(equity []core.EquitySample) ReturnStats {
	if len(equity) < 2 {
		return ReturnStats{AnnVol: math.NaN(), Sharpe: math.NaN(), CAGR: math.NaN(), MaxDrawdown: math.NaN(), Calmar: math.NaN()}
	}

	returns := make([]float64, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev == 0 {
			returns[i-1] = math.NaN()
			continue
		}
		returns[i-1] = equity[i].Equity/prev - 1
	}

	out := ReturnStats{Returns: returns}
	out.AnnVol = annualizedVol(returns)

	rfDaily := annualRiskFree / tradingDaysYear
	excess := make([]float64, 0, len(returns))
	clean := make([]float64, 0, len(returns))
	for _, r := range returns {
		if math.IsNaN(r) {
			continue
		}
		clean = append(clean, r)
		excess = append(excess, r-rfDaily)
	}
	// Subtracting the constant rfDaily does not change the standard
	// deviation; taking it on the raw returns keeps a flat equity curve at
	// exactly zero volatility instead of floating-point noise.
	volExcess := stdDev(clean)
	if volExcess > 0 {
		out.Sharpe = (mean(excess) / volExcess) * math.Sqrt(tradingDaysYear)
	} else {
		out.Sharpe = math.NaN()
	}

	start := equity[0].Equity
	end := equity[len(equity)-1].Equity
	spanDays := equity[len(equity)-1].Date.Sub(equity[0].Date).Hours() / 24
	years := spanDays / calendarDaysYear
	if years > 0 && start > 0 && end > 0 {
		out.CAGR = math.Pow(end/start, 1.0/years) - 1.0
	} else {
		out.CAGR = math.NaN()
	}

	out.MaxDrawdown = maxDrawdown(equity)

	if !math.IsNaN(out.CAGR) && !math.IsNaN(out.MaxDrawdown) && out.MaxDrawdown < 0 {
		out.Calmar = out.CAGR / math.Abs(out.MaxDrawdown)
	} else {
		out.Calmar = math.NaN()
	}

	return out
}

func annualizedVol(returns []float64) float64 {
	clean := make([]float64, 0, len(returns))
	for _, r := range returns {
		if !math.IsNaN(r) {
			clean = append(clean, r)
		}
	}
	if len(clean) < 2 {
		return math.NaN()
	}
	return stdDev(clean) * math.Sqrt(tradingDaysYear)
}

func maxDrawdown(equity []core.EquitySample) float64 {
	runningMax := equity[0].Equity
	worst := 0.0
	for _, e := range equity {
		if e.Equity > runningMax {
			runningMax = e.Equity
		}
		if runningMax <= 0 {
			continue
		}
		dd := e.Equity/runningMax - 1
		if dd < worst {
			worst = dd
		}
	}
	return worst
}

func mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

// stdDev returns the sample standard deviation (n-1 denominator), matching
// pandas' default ddof=1. Returns 0 for fewer than 2 samples.
func stdDev(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	m := mean(x)
	var sumSq float64
	for _, v := range x {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(x)-1))
}

// PortfolioMetrics bundles ReturnStats with realized-trade metrics for one
// ticker or the whole portfolio, matching compute_portfolio_metrics'
// merged output dict.
type PortfolioMetrics struct {
	ReturnStats
	ledger.RealizedMetrics
}

// ComputePortfolioMetrics computes ReturnStats from the equity curve and,
// when trades is non-empty, merges in RealizedMetricsFromTrades.
func ComputePortfolioMetrics(equity []core.EquitySample, trades []core.ClosedTrade) PortfolioMetrics {
	pm := PortfolioMetrics{ReturnStats: ComputeReturnStats(equity)}
	if len(trades) > 0 {
		pm.RealizedMetrics = ledger.RealizedMetricsFromTrades(trades)
	} else {
		pm.RealizedMetrics = ledger.RealizedMetrics{NTrades: 0, WinRate: math.NaN(), AvgRealizedPL: math.NaN(), ProfitFactor: math.NaN()}
	}
	return pm
}
