package indicators

import "math"

// sma returns the trailing mean of the last window values ending at index
// end (inclusive), or NaN if fewer than window values are available.
func sma(closes []float64, end, window int) float64 {
	if end-window+1 < 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := end - window + 1; i <= end; i++ {
		sum += closes[i]
	}
	return sum / float64(window)
}

// PriorityScore ranks a BUY candidate using SMA strength, 20-day momentum,
// and inverse 20-day volatility, ported from
// original_source/src/signals.py::compute_priority_score. closes is the
// ticker's closing-price history up to and including the evaluation day;
// removeLast, when true, drops the most recent bar before scoring to avoid
// look-ahead (spec §4.2's "optionally excluding the current bar").
func PriorityScore(closes []float64, shortW, longW int, removeLast bool) float64 {
	if len(closes) <= longW {
		return 0
	}

	hist := closes
	if removeLast {
		hist = closes[:len(closes)-1]
	}
	if len(hist) <= longW {
		return 0
	}

	end := len(hist) - 1
	smaShort := sma(hist, end, shortW)
	smaLong := sma(hist, end, longW)
	if math.IsNaN(smaShort) || math.IsNaN(smaLong) || smaLong == 0 {
		return 0
	}
	smaStrength := smaShort/smaLong - 1

	momentum := 0.0
	if len(hist) >= 20 {
		momentum = hist[end]/hist[end-19] - 1
	}

	vol := rollingStd(hist, end, 20)
	if math.IsNaN(vol) || vol == 0 {
		vol = 1.0
	}

	return 0.5*smaStrength + 0.4*momentum + 0.1*(1/vol)
}

// rollingStd computes the standard deviation of day-over-day percent
// changes over the trailing window ending at index end. Returns NaN if
// fewer than window+1 closes are available to form window returns.
func rollingStd(closes []float64, end, window int) float64 {
	if end-window < 0 {
		return math.NaN()
	}
	rets := make([]float64, 0, window)
	for i := end - window + 1; i <= end; i++ {
		if i <= 0 || closes[i-1] == 0 {
			continue
		}
		rets = append(rets, closes[i]/closes[i-1]-1)
	}
	if len(rets) < window {
		return math.NaN()
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	var sumSq float64
	for _, r := range rets {
		d := r - mean
		sumSq += d * d
	}
	// Sample standard deviation (n-1 denominator), matching pandas' default.
	if len(rets) < 2 {
		return math.NaN()
	}
	return math.Sqrt(sumSq / float64(len(rets)-1))
}
