// Package prices holds the immutable per-ticker price model (C1) and the
// CSV universe loader. The loader shape — walk a directory, build a typed
// map, log progress with internal/logger — is grounded on the teacher's
// internal/sde/loader.go, which does the same thing for EVE static data
// downloaded as a zip of JSONL files; here the source is a directory of
// per-ticker CSV files already resident on disk, per spec §1's "price
// ingestion is an external collaborator" scoping.
package prices

import (
	"math"
	"sort"
	"time"

	"smabacktester/internal/core"
)

// Series is a strictly-increasing, duplicate-free sequence of Bars for one
// ticker, plus a date->index map for O(1) lookups (Design Notes §9:
// "Lookups by date become binary search or a hashmap").
type Series struct {
	Ticker string
	Bars   []core.Bar
	index  map[time.Time]int
}

// NewSeries builds a Series from bars already sorted by date. It does not
// check the order and never panics; loadTickerCSV drops duplicate dates and
// sorts the bars before calling it.
func NewSeries(ticker string, bars []core.Bar) *Series {
	idx := make(map[time.Time]int, len(bars))
	for i, b := range bars {
		idx[normalizeDay(b.Date)] = i
	}
	return &Series{Ticker: ticker, Bars: bars, index: idx}
}

// normalizeDay truncates a timestamp to a naive UTC calendar day, per
// spec §3 ("times are normalized to a naive UTC calendar day").
func normalizeDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.Bars) }

// At returns the bar at index i.
func (s *Series) At(i int) core.Bar { return s.Bars[i] }

// IndexOf returns the bar index for date d, or -1 if the series has no bar
// on that day.
func (s *Series) IndexOf(d time.Time) int {
	i, ok := s.index[normalizeDay(d)]
	if !ok {
		return -1
	}
	return i
}

// HasDate reports whether the series has a bar on day d.
func (s *Series) HasDate(d time.Time) bool {
	_, ok := s.index[normalizeDay(d)]
	return ok
}

// Open returns the opening price on day d and whether a bar exists.
func (s *Series) Open(d time.Time) (float64, bool) {
	i := s.IndexOf(d)
	if i < 0 {
		return 0, false
	}
	return s.Bars[i].Open, true
}

// Closes returns the slice of closing prices in date order. Used by the
// signal generator and indicator kit, which operate on plain float slices
// rather than re-walking Bar structs (Design Notes §9: columnar arrays).
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// LastOpenUpTo returns the most recent open price on or before date d
// (forward-hold fallback), or NaN if the series has no bar on or before d.
// Grounds spec §4.6/§4.7 "last_price_up_to".
func (s *Series) LastOpenUpTo(d time.Time) float64 {
	target := normalizeDay(d)
	// Bars are date-ordered; binary search for the last index <= target.
	n := len(s.Bars)
	i := sort.Search(n, func(i int) bool {
		return !s.Bars[i].Date.Before(target) // first index with Date >= target
	})
	if i < n && s.Bars[i].Date.Equal(target) {
		return s.Bars[i].Open
	}
	if i == 0 {
		return math.NaN()
	}
	return s.Bars[i-1].Open
}

// UnionDates returns the sorted, deduplicated union of trading dates across
// a universe of series.
func UnionDates(universe map[string]*Series) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, s := range universe {
		for _, b := range s.Bars {
			seen[normalizeDay(b.Date)] = struct{}{}
		}
	}
	out := make([]time.Time, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Slice returns the sub-series of bars with Date <= cutoff (inclusive),
// used to build a training slice for the optimizer.
func (s *Series) Slice(cutoff time.Time) *Series {
	cut := normalizeDay(cutoff)
	n := sort.Search(len(s.Bars), func(i int) bool { return s.Bars[i].Date.After(cut) })
	bars := make([]core.Bar, n)
	copy(bars, s.Bars[:n])
	return NewSeries(s.Ticker, bars)
}

// SliceAfter returns the sub-series of bars with Date > cutoff, used to
// build the validation slice.
func (s *Series) SliceAfter(cutoff time.Time) *Series {
	cut := normalizeDay(cutoff)
	n := sort.Search(len(s.Bars), func(i int) bool { return s.Bars[i].Date.After(cut) })
	bars := make([]core.Bar, len(s.Bars)-n)
	copy(bars, s.Bars[n:])
	return NewSeries(s.Ticker, bars)
}
