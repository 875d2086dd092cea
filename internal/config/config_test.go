package config

import "testing"

func TestDefault_TrainRatioAndGridBounds(t *testing.T) {
	cfg := Default()
	if cfg.TrainRatio != 0.7 {
		t.Fatalf("expected TrainRatio 0.7, got %v", cfg.TrainRatio)
	}
	if len(cfg.LongGrid) == 0 || cfg.LongGrid[0] != 50 {
		t.Fatalf("expected long grid to start at 50, got %v", cfg.LongGrid)
	}
	if cfg.LongGrid[len(cfg.LongGrid)-1] != 200 {
		t.Fatalf("expected long grid to end at 200, got %v", cfg.LongGrid)
	}
}

func TestDefault_ShortGridNeverBelowFive(t *testing.T) {
	cfg := Default()
	for _, s := range cfg.ShortGrid {
		if s < 5 {
			t.Fatalf("expected every short grid value >= 5, got %d in %v", s, cfg.ShortGrid)
		}
	}
}

func TestDefault_ShortGridIsSortedAndDeduplicated(t *testing.T) {
	cfg := Default()
	seen := map[int]bool{}
	prev := -1
	for _, s := range cfg.ShortGrid {
		if seen[s] {
			t.Fatalf("duplicate short grid value %d in %v", s, cfg.ShortGrid)
		}
		seen[s] = true
		if s < prev {
			t.Fatalf("short grid not sorted ascending: %v", cfg.ShortGrid)
		}
		prev = s
	}
}

func TestDefault_ShortGridMatchesOriginalTruncation(t *testing.T) {
	// Hand-computed from original_source/src/main.py's
	// s1 = max(5, int(l * 0.2)), s2 = max(5, int(l * 0.25)) for
	// l in [50, 75, 100, 125, 150, 175, 200]: Python's int() truncates
	// toward zero, so 75*0.25=18.75 -> 18, not 19; 150*0.25=37.5 -> 37,
	// not 38; 175*0.25=43.75 -> 43, not 44.
	want := []int{10, 12, 15, 18, 20, 25, 30, 31, 35, 37, 40, 43, 50}
	cfg := Default()
	if len(cfg.ShortGrid) != len(want) {
		t.Fatalf("expected short grid %v, got %v", want, cfg.ShortGrid)
	}
	for i, w := range want {
		if cfg.ShortGrid[i] != w {
			t.Fatalf("expected short grid %v, got %v", want, cfg.ShortGrid)
		}
	}
}

func TestDefault_EmbedsOriginalBacktestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Backtest.InitialCash != 100_000 {
		t.Fatalf("expected embedded InitialCash 100000, got %v", cfg.Backtest.InitialCash)
	}
	if cfg.ForceReoptimize {
		t.Fatalf("expected ForceReoptimize to default false")
	}
}
