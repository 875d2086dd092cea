package prices

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"smabacktester/internal/core"
	"smabacktester/internal/logger"
)

// requiredColumns are the fields every per-ticker CSV must carry (spec §6).
var requiredColumns = []string{"Date", "Open", "Close"}

// LoadUniverse walks dataDir and parses every *.csv file into a Series
// keyed by ticker (the file's base name, extension stripped). Mirrors the
// teacher's internal/sde/loader.go directory-walk-and-log shape, adapted
// from a one-shot static-data download to a plain local read.
func LoadUniverse(dataDir string) (map[string]*Series, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, &core.InputError{Reason: fmt.Sprintf("read data dir %s: %v", dataDir, err)}
	}

	universe := make(map[string]*Series)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		ticker := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		path := filepath.Join(dataDir, e.Name())

		series, err := loadTickerCSV(ticker, path)
		if err != nil {
			logger.Warn("PRICES", fmt.Sprintf("skipping %s: %v", e.Name(), err))
			continue
		}
		universe[ticker] = series
	}

	if len(universe) == 0 {
		return nil, &core.InputError{Reason: fmt.Sprintf("no valid CSV files found in %s", dataDir)}
	}

	tickers := make([]string, 0, len(universe))
	for t := range universe {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	logger.Info("PRICES", fmt.Sprintf("loaded %d tickers: %s", len(tickers), strings.Join(tickers, ", ")))

	return universe, nil
}

// loadTickerCSV parses one ticker's CSV file, validating the required
// columns and normalizing dates to naive UTC calendar days (spec §3/§6).
func loadTickerCSV(ticker, path string) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, req := range requiredColumns {
		if _, ok := col[req]; !ok {
			return nil, &core.InputError{Ticker: ticker, Reason: fmt.Sprintf("missing required column %q", req)}
		}
	}
	highIdx, hasHigh := col["High"]
	lowIdx, hasLow := col["Low"]

	var bars []core.Bar
	seen := make(map[time.Time]bool)
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		d, err := parseDate(rec[col["Date"]])
		if err != nil {
			continue // unparsable dates are dropped, matching the original's errors="coerce" + dropna
		}
		d = normalizeDay(d)
		if seen[d] {
			continue // duplicate dates collapse to the first occurrence
		}

		open, err := strconv.ParseFloat(strings.TrimSpace(rec[col["Open"]]), 64)
		if err != nil {
			continue
		}
		closeP, err := strconv.ParseFloat(strings.TrimSpace(rec[col["Close"]]), 64)
		if err != nil {
			continue
		}

		bar := core.Bar{Date: d, Open: open, Close: closeP}
		if hasHigh && hasLow {
			h, errH := strconv.ParseFloat(strings.TrimSpace(rec[highIdx]), 64)
			l, errL := strconv.ParseFloat(strings.TrimSpace(rec[lowIdx]), 64)
			if errH == nil && errL == nil {
				bar.High = h
				bar.Low = l
				bar.HasHighLow = true
			}
		}

		bars = append(bars, bar)
		seen[d] = true
	}

	if len(bars) == 0 {
		return nil, &core.InputError{Ticker: ticker, Reason: "no parsable rows"}
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return NewSeries(ticker, bars), nil
}

// parseDate accepts ISO-like date or date-time strings and normalizes to
// UTC, per spec §6 ("Dates parse as ISO-like strings; time zones
// normalized to naive UTC-day").
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layouts := []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}
