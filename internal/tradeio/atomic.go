// Package tradeio implements the serialization layer (C11): atomic JSON/CSV
// writes, per-ticker SMA parameter persistence, and the trade/performance
// CSV exports. Ported from original_source/src/trading_io.py. The
// temp-file-then-rename write pattern generalizes the os.Rename usage in
// the teacher's internal/db/config.go JSON-to-SQLite migration into a full
// mkstemp-style atomic publish (os.CreateTemp + os.Rename), since Go's
// os.Rename is already atomic on the same filesystem — the Python
// tempfile.mkstemp + os.replace pair has no extra step to port.
package tradeio

import (
	"encoding/json"
	"os"
	"path/filepath"

	"smabacktester/internal/core"
	"smabacktester/internal/logger"
)

// atomicWrite writes data to a temp file in path's directory, then renames
// it into place, so a reader never observes a partially-written file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &core.PersistenceError{Path: path, Op: "mkdir", Err: err}
	}

	tmp, err := os.CreateTemp(dir, "tmp_write_*.tmp")
	if err != nil {
		return &core.PersistenceError{Path: path, Op: "create_temp", Err: err}
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &core.PersistenceError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &core.PersistenceError{Path: path, Op: "close", Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &core.PersistenceError{Path: path, Op: "rename", Err: err}
	}
	return nil
}

// SavePerTickerParams atomically persists a ticker -> (short, long) map as
// JSON, matching save_per_ticker_params.
func SavePerTickerParams(path string, params map[string][2]int) error {
	serial := make(map[string][2]int, len(params))
	for t, p := range params {
		serial[t] = p
	}
	data, err := json.MarshalIndent(serial, "", "  ")
	if err != nil {
		return &core.PersistenceError{Path: path, Op: "marshal", Err: err}
	}
	if err := atomicWrite(path, data); err != nil {
		return err
	}
	logger.Info("tradeio", "saved per-ticker params to "+path)
	return nil
}

// LoadPerTickerParams reads a previously saved params file. It returns
// (nil, nil) when the file does not exist, matching load_per_ticker_params'
// "no saved params" path rather than treating a missing file as an error.
func LoadPerTickerParams(path string) (map[string][2]int, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Info("tradeio", "no saved per-ticker params found at "+path)
		return nil, nil
	}
	if err != nil {
		return nil, &core.PersistenceError{Path: path, Op: "read", Err: err}
	}

	var raw map[string][2]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &core.PersistenceError{Path: path, Op: "unmarshal", Err: err}
	}
	logger.Info("tradeio", "loaded per-ticker params from "+path)
	return raw, nil
}
