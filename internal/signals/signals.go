// Package signals implements the SMA-crossover signal generator (C2),
// ported from original_source/src/signals.py::generate_signals. DataFrame
// rolling-mean columns become plain float64 slices, per the columnar-array
// design note in spec §9.
package signals

import "math"

// Action is the trading action encoded by a signal row: -1 sell, 0 none,
// +1 buy.
type Action int

const (
	ActionSell Action = -1
	ActionNone Action = 0
	ActionBuy  Action = 1
)

// Row is one day's signal state.
type Row struct {
	SMAShort float64
	SMALong  float64
	Signal   Action
}

// Frame is the full per-ticker signal history, index-aligned with the
// source closing-price slice.
type Frame struct {
	Rows []Row
}

// Generate computes SMA(short) and SMA(long) over closes, derives the raw
// crossover signal at each day, and shifts it by one day so the signal
// exposed for day d depends only on closes up to and including d-1 (spec
// §4.1's "no look-ahead" contract). Rows with insufficient history carry
// signal = 0 and NaN SMAs.
func Generate(closes []float64, shortW, longW int) *Frame {
	n := len(closes)
	smaShort := rollingMean(closes, shortW)
	smaLong := rollingMean(closes, longW)

	raw := make([]Action, n)
	for i := 1; i < n; i++ {
		ps, pl := smaShort[i-1], smaLong[i-1]
		cs, cl := smaShort[i], smaLong[i]
		if math.IsNaN(ps) || math.IsNaN(pl) || math.IsNaN(cs) || math.IsNaN(cl) {
			continue
		}
		switch {
		case ps <= pl && cs > cl:
			raw[i] = ActionBuy
		case ps >= pl && cs < cl:
			raw[i] = ActionSell
		}
	}

	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		rows[i] = Row{SMAShort: smaShort[i], SMALong: smaLong[i]}
		if i == 0 {
			rows[i].Signal = ActionNone // no prior day to shift from
			continue
		}
		rows[i].Signal = raw[i-1] // execution delayed by one day
	}
	return &Frame{Rows: rows}
}

// rollingMean returns the trailing mean of window consecutive values ending
// at each index, NaN until the window fills (pandas' min_periods=window).
func rollingMean(values []float64, window int) []float64 {
	n := len(values)
	out := make([]float64, n)
	if window <= 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		if i < window-1 {
			out[i] = math.NaN()
		} else {
			out[i] = sum / float64(window)
		}
	}
	return out
}
