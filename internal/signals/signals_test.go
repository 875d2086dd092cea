package signals

import (
	"math"
	"testing"
)

func TestGenerate_NoLookAhead(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	f := Generate(closes, 3, 10)

	shuffled := make([]float64, len(closes))
	copy(shuffled, closes)
	// Perturb everything after day 20; signals at day <= 20 must be unchanged.
	for i := 21; i < len(shuffled); i++ {
		shuffled[i] = shuffled[i] * 3
	}
	f2 := Generate(shuffled, 3, 10)

	for i := 0; i <= 20; i++ {
		if f.Rows[i].Signal != f2.Rows[i].Signal {
			t.Fatalf("signal at day %d changed after future perturbation: %v vs %v", i, f.Rows[i].Signal, f2.Rows[i].Signal)
		}
	}
}

func TestGenerate_InsufficientHistoryIsZeroAndNaN(t *testing.T) {
	closes := []float64{1, 2, 3}
	f := Generate(closes, 5, 10)
	for i, r := range f.Rows {
		if r.Signal != ActionNone {
			t.Fatalf("row %d: expected no signal, got %v", i, r.Signal)
		}
		if !math.IsNaN(r.SMAShort) || !math.IsNaN(r.SMALong) {
			t.Fatalf("row %d: expected NaN SMAs before window fills", i)
		}
	}
}

func TestGenerate_CrossoverProducesDelayedBuySignal(t *testing.T) {
	// Flat then a sharp ramp forces a short-over-long crossover.
	closes := make([]float64, 30)
	for i := 0; i < 15; i++ {
		closes[i] = 100
	}
	for i := 15; i < 30; i++ {
		closes[i] = 100 + float64(i-14)*5
	}
	f := Generate(closes, 3, 10)

	buyIdx := -1
	for i, r := range f.Rows {
		if r.Signal == ActionBuy {
			buyIdx = i
			break
		}
	}
	if buyIdx < 0 {
		t.Fatalf("expected at least one buy signal in a ramp, found none")
	}
}
