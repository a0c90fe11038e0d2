package dist

import (
	"math"
	"testing"

	"github.com/specklesim/speckle/pkg/rng"
)

const sampleCount = 1_000_000

func moments(t *testing.T, kind Kind, x, u float64, opts Options) (mean, std float64) {
	t.Helper()
	xs := make([]float64, sampleCount)
	us := make([]float64, sampleCount)
	for i := range xs {
		xs[i] = x
		us[i] = u
	}
	y := Sample(kind, rng.New(12345), false, xs, us, opts)

	var sum float64
	for _, v := range y {
		sum += v
	}
	mean = sum / sampleCount
	var sq float64
	for _, v := range y {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / sampleCount)
}

func TestNormalMoments(t *testing.T) {
	mean, std := moments(t, Normal, 100, 10, Options{})
	if math.Abs(mean-100) > 0.1 {
		t.Errorf("mean = %v, want ~100", mean)
	}
	if math.Abs(std-10) > 0.1 {
		t.Errorf("std = %v, want ~10", std)
	}
}

func TestLognormalMoments(t *testing.T) {
	mean, std := moments(t, Lognormal, 100, 10, Options{})
	if math.Abs(mean-100) > 0.1 {
		t.Errorf("mean = %v, want ~100", mean)
	}
	if math.Abs(std-10) > 0.1 {
		t.Errorf("std = %v, want ~10", std)
	}
	// Lognormal realizations are strictly positive.
	y := Sample(Lognormal, rng.New(9), false, []float64{1e-3}, []float64{1}, Options{})
	if y[0] <= 0 {
		t.Errorf("lognormal realization %v is not positive", y[0])
	}
}

func TestRelativeAndCoverage(t *testing.T) {
	// u = 0.2 relative at k = 2 is an absolute 1-sigma of 10.
	mean, std := moments(t, Normal, 100, 0.2, Options{Relative: true, Coverage: 2})
	if math.Abs(mean-100) > 0.1 {
		t.Errorf("mean = %v, want ~100", mean)
	}
	if math.Abs(std-10) > 0.1 {
		t.Errorf("std = %v, want ~10", std)
	}
}

func TestAntitheticExactNegation(t *testing.T) {
	// With x = 0 and u = 1 the normal sampler returns the raw draw, so
	// the paired member must be its exact negation.
	x := make([]float64, 64)
	u := make([]float64, 64)
	for i := range u {
		u[i] = 1
	}
	a := Sample(Normal, rng.New(77), false, x, u, Options{})
	b := Sample(Normal, rng.New(77), true, x, u, Options{})
	for i := range a {
		if a[i] != -b[i] {
			t.Fatalf("element %d: %v is not the exact negation of %v", i, b[i], a[i])
		}
	}
}

func TestClip(t *testing.T) {
	lo, hi := 95.0, 105.0
	x := make([]float64, 10000)
	u := make([]float64, 10000)
	for i := range x {
		x[i] = 100
		u[i] = 10
	}
	y := Sample(Normal, rng.New(3), false, x, u, Options{ClipLo: &lo, ClipHi: &hi})
	for i, v := range y {
		if v < lo || v > hi {
			t.Fatalf("element %d = %v escapes clip interval [%v, %v]", i, v, lo, hi)
		}
	}
}

func TestNonFiniteFallsBackToMean(t *testing.T) {
	// Lognormal cannot represent non-positive means; the input value
	// must come back unchanged.
	y := Sample(Lognormal, rng.New(5), false, []float64{-4, 0}, []float64{1, 1}, Options{})
	if y[0] != -4 || y[1] != 0 {
		t.Fatalf("got %v, want the input means back", y)
	}
}

func TestNaNPreserved(t *testing.T) {
	y := Sample(Normal, rng.New(5), false, []float64{math.NaN()}, []float64{1}, Options{})
	if !math.IsNaN(y[0]) {
		t.Fatalf("missing input became %v", y[0])
	}
}

func TestUnknownKindIsNoOp(t *testing.T) {
	x := []float64{1, 2, 3}
	y := Sample(Kind("triangular"), rng.New(1), false, x, []float64{1, 1, 1}, Options{})
	for i := range x {
		if y[i] != x[i] {
			t.Fatalf("unknown kind perturbed element %d", i)
		}
	}
}

func TestChlorophyllMoments(t *testing.T) {
	// A log10 uncertainty of u corresponds to a lognormal with relative
	// absolute spread sqrt(exp((ln10·u)^2)-1).
	const x, u = 0.5, 0.1
	wantStd := x * math.Sqrt(math.Exp(math.Ln10*u*math.Ln10*u)-1)
	mean, std := moments(t, Chlorophyll, x, u, Options{})
	if math.Abs(mean-x) > 0.01*x {
		t.Errorf("mean = %v, want ~%v", mean, x)
	}
	if math.Abs(std-wantStd) > 0.05*wantStd {
		t.Errorf("std = %v, want ~%v", std, wantStd)
	}
}

func TestOptionsValidate(t *testing.T) {
	lo, hi := 2.0, 1.0
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"zero value", Options{}, false},
		{"coverage", Options{Coverage: 2}, false},
		{"negative coverage", Options{Coverage: -1}, true},
		{"empty clip interval", Options{ClipLo: &lo, ClipHi: &hi}, true},
		{"half-open clip", Options{ClipLo: &hi}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
