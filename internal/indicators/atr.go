// Package indicators implements the ATR and priority-score feature kit
// (C3), ported from original_source/src/signals.py::compute_atr and
// compute_priority_score, with the EWMA-smoothing idiom grounded on the
// teacher's internal/engine/risk.go::ewmaVolatility (same alpha/lambda
// recursive-update shape, different decay convention: this spec fixes
// alpha = 1/period rather than RiskMetrics' 0.94).
package indicators

import (
	"math"

	"smabacktester/internal/core"
)

const atrFloor = 1e-4

// ATR computes the average true range over period for a bar series,
// smoothing the true-range series with an EWMA of alpha = 1/period.
// When High/Low are absent on a bar, true range falls back to the
// absolute close-to-close delta, per spec §4.2.
func ATR(bars []core.Bar, period int) []float64 {
	n := len(bars)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if period < 2 {
		period = 2
	}
	alpha := 1.0 / float64(period)

	var prevATR float64
	haveATR := false
	lastValid := atrFloor

	for i, b := range bars {
		var tr float64
		if i == 0 {
			if b.HasHighLow {
				tr = b.High - b.Low
			} else {
				tr = 0
			}
		} else {
			prevClose := bars[i-1].Close
			if b.HasHighLow {
				tr = math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
			} else {
				tr = math.Abs(b.Close - prevClose)
			}
		}

		if haveATR {
			prevATR = alpha*tr + (1-alpha)*prevATR
		} else {
			prevATR = tr
			haveATR = true
		}

		val := prevATR
		if val < atrFloor {
			val = atrFloor
		}
		if math.IsNaN(val) {
			val = lastValid // forward-fill gaps, per spec §4.2
		} else {
			lastValid = val
		}
		out[i] = val
	}
	return out
}
