package sample

import (
	"math"
	"testing"
)

func TestGreedyArgmax(t *testing.T) {
	tests := []struct {
		name   string
		logits []float32
		want   int
	}{
		{"distinct", []float32{0.1, 2.5, -1, 0.3}, 1},
		{"tie resolves to lowest index", []float32{1, 3, 3, 2}, 1},
		{"all equal", []float32{0, 0, 0}, 0},
		{"negative only", []float32{-5, -2, -9}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Policy{})
			got, _ := s.Sample(tt.logits)
			if got != tt.want {
				t.Fatalf("Sample = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLogitBiasShiftsGreedyChoice(t *testing.T) {
	logits := []float32{0, 1, 2}
	s := New(Policy{LogitBias: map[int]float32{0: 10}})
	got, _ := s.Sample(logits)
	if got != 0 {
		t.Fatalf("Sample = %d, want biased token 0", got)
	}
	// The input must not be mutated.
	if logits[0] != 0 {
		t.Fatalf("caller logits mutated: %v", logits)
	}
}

func TestLogprobsNormalized(t *testing.T) {
	s := New(Policy{Temperature: 0.7, Seed: 3})
	_, logprobs := s.Sample([]float32{1, 2, 3, 4})
	var sum float64
	for _, lp := range logprobs {
		if lp > 0 {
			t.Fatalf("positive logprob %v", lp)
		}
		sum += math.Exp(float64(lp))
	}
	if math.Abs(sum-1) > 1e-5 {
		t.Fatalf("sum exp(logprobs) = %v, want 1", sum)
	}
}

func TestLogprobsIncludeBias(t *testing.T) {
	plain := New(Policy{})
	_, base := plain.Sample([]float32{0, 0})
	biased := New(Policy{LogitBias: map[int]float32{1: 4}})
	_, shifted := biased.Sample([]float32{0, 0})
	if base[0] != base[1] {
		t.Fatalf("uniform logits should give equal logprobs, got %v", base)
	}
	if shifted[1] <= shifted[0] {
		t.Fatalf("bias not reflected in logprobs: %v", shifted)
	}
}

func TestSeededSamplingDeterministic(t *testing.T) {
	logits := []float32{0.5, 0.4, 0.3, 0.2, 0.1}
	a := New(Policy{Temperature: 1, Seed: 99})
	b := New(Policy{Temperature: 1, Seed: 99})
	for i := 0; i < 20; i++ {
		ta, _ := a.Sample(logits)
		tb, _ := b.Sample(logits)
		if ta != tb {
			t.Fatalf("same-seed samplers diverged at draw %d: %d vs %d", i, ta, tb)
		}
	}
}

func TestTopPKeepsNucleus(t *testing.T) {
	// Token 0 holds essentially all probability mass, so any TopP below 1
	// must always select it.
	logits := []float32{20, 0, 0, 0}
	s := New(Policy{Temperature: 1, TopP: 0.5, Seed: 7})
	for i := 0; i < 50; i++ {
		got, _ := s.Sample(logits)
		if got != 0 {
			t.Fatalf("draw %d escaped the nucleus: %d", i, got)
		}
	}
}

func TestCategoricalCoversSupport(t *testing.T) {
	// With a flat distribution every token should appear eventually.
	logits := []float32{0, 0, 0}
	s := New(Policy{Temperature: 1, Seed: 1})
	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		got, _ := s.Sample(logits)
		if got < 0 || got >= len(logits) {
			t.Fatalf("out-of-range token %d", got)
		}
		seen[got] = true
	}
	if len(seen) != len(logits) {
		t.Fatalf("only %d of %d tokens drawn", len(seen), len(logits))
	}
}

func TestArgmaxEmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on empty slice")
		}
	}()
	Argmax(nil)
}
