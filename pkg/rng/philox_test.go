package rng

import (
	"math"
	"testing"
)

func TestDeterminism(t *testing.T) {
	a := New(1, 2, 3)
	b := New(1, 2, 3)
	for i := 0; i < 1000; i++ {
		if x, y := a.Uint64(), b.Uint64(); x != y {
			t.Fatalf("streams diverge at word %d: %x != %x", i, x, y)
		}
	}
}

func TestSeedSeparation(t *testing.T) {
	seeds := [][]uint64{
		{},
		{0},
		{1},
		{1, 0},
		{0, 1},
		{1, 2, 3, 4, 5, 6},
		{1, 2, 3, 4, 5, 6, 7},     // folded seventh word
		{1, 2, 3, 4, 5, 6, 7, 8},  // folded eighth word
	}
	seen := make(map[uint64][]uint64)
	for _, s := range seeds {
		w := New(s...).Uint64()
		if prev, ok := seen[w]; ok {
			t.Fatalf("seeds %v and %v collide on first word %x", prev, s, w)
		}
		seen[w] = s
	}
}

func TestFloat64Range(t *testing.T) {
	p := New(42)
	for i := 0; i < 100000; i++ {
		v := p.Float64()
		if v < 0 || v >= 1 {
			t.Fatalf("Float64 out of [0,1): %v", v)
		}
	}
}

func TestNormFloat64Moments(t *testing.T) {
	p := New(7)
	const n = 100000
	var sum, sumSq float64
	for i := 0; i < n; i++ {
		v := p.NormFloat64()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("non-finite variate at %d: %v", i, v)
		}
		sum += v
		sumSq += v * v
	}
	mean := sum / n
	variance := sumSq/n - mean*mean
	if math.Abs(mean) > 0.02 {
		t.Errorf("mean = %v, want ~0", mean)
	}
	if math.Abs(variance-1) > 0.02 {
		t.Errorf("variance = %v, want ~1", variance)
	}
}

func TestConditionalNegate(t *testing.T) {
	v := []float64{1, -2, 0}
	ConditionalNegate(v, false)
	if v[0] != 1 || v[1] != -2 {
		t.Fatal("false condition must leave values untouched")
	}
	ConditionalNegate(v, true)
	if v[0] != -1 || v[1] != 2 {
		t.Fatalf("negated to %v", v)
	}
}

func TestCounterCarry(t *testing.T) {
	p := New(0, 0, math.MaxUint64, 0, 0, 0)
	// Consume the first block so the counter increments across the
	// word boundary, then verify the stream keeps producing.
	for i := 0; i < 8; i++ {
		p.Uint64()
	}
	if p.ctr[0] != 1 || p.ctr[1] != 1 {
		t.Fatalf("counter after carry = %v", p.ctr)
	}
}
