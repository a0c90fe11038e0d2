package filter_test

import (
	"context"
	"math"
	"testing"

	"github.com/specklesim/speckle/pkg/exec"
	"github.com/specklesim/speckle/pkg/filter"
	"github.com/specklesim/speckle/pkg/grid"
)

func materialize(t *testing.T, a *grid.Array) []float64 {
	t.Helper()
	got, err := a.Materialize(context.Background(), exec.Sequential())
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	return got
}

func TestUniformConstantField(t *testing.T) {
	a, err := grid.Full(3.5, []int{8, 8}, []int{4, 4}, grid.Float64)
	if err != nil {
		t.Fatalf("Full: %v", err)
	}
	f, err := filter.NewUniform(2, []int{0, 1}, 3)
	if err != nil {
		t.Fatalf("NewUniform: %v", err)
	}
	out, err := f.Apply(a)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for i, v := range materialize(t, out) {
		if math.Abs(v-3.5) > 1e-12 {
			t.Fatalf("element %d = %v, want 3.5", i, v)
		}
	}
}

func TestUniformKnownValues(t *testing.T) {
	// A single impulse spread by a 3-wide average along one axis.
	data := []float64{0, 0, 3, 0, 0, 0}
	a, err := grid.FromSlice(data, []int{6}, []int{3}, grid.Float64)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	f, err := filter.NewUniform(1, []int{0}, 3)
	if err != nil {
		t.Fatalf("NewUniform: %v", err)
	}
	out, err := f.Apply(a)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got := materialize(t, out)
	want := []float64{0, 1, 1, 1, 0, 0}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("element %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFiltersPreserveMissingData(t *testing.T) {
	nan := math.NaN()
	data := []float64{1, 1, nan, 1, 1, 1, 1, 1}
	build := func() *grid.Array {
		a, err := grid.FromSlice(data, []int{8}, []int{4}, grid.Float64)
		if err != nil {
			t.Fatalf("FromSlice: %v", err)
		}
		return a
	}

	uniform, err := filter.NewUniform(1, []int{0}, 3)
	if err != nil {
		t.Fatalf("NewUniform: %v", err)
	}
	gaussian, err := filter.NewGaussian(1, []int{0}, 2)
	if err != nil {
		t.Fatalf("NewGaussian: %v", err)
	}
	median, err := filter.NewMedian(1, []int{0}, 3)
	if err != nil {
		t.Fatalf("NewMedian: %v", err)
	}

	for _, f := range []interface {
		Apply(*grid.Array) (*grid.Array, error)
		Name() string
	}{uniform, gaussian, median} {
		out, err := f.Apply(build())
		if err != nil {
			t.Fatalf("%s: Apply: %v", f.Name(), err)
		}
		got := materialize(t, out)
		if !math.IsNaN(got[2]) {
			t.Fatalf("%s: missing element became %v", f.Name(), got[2])
		}
		for i, v := range got {
			if i == 2 {
				continue
			}
			if math.IsNaN(v) {
				t.Fatalf("%s: filter spread NaN to element %d", f.Name(), i)
			}
			// Every valid neighbor is 1, so smoothing over valid data
			// only must give exactly 1.
			if math.Abs(v-1) > 1e-12 {
				t.Fatalf("%s: element %d = %v, want 1", f.Name(), i, v)
			}
		}
	}
}

func TestGaussianConstantField(t *testing.T) {
	a, err := grid.Full(7, []int{16}, []int{16}, grid.Float64)
	if err != nil {
		t.Fatalf("Full: %v", err)
	}
	f, err := filter.NewGaussian(1, []int{0}, 4)
	if err != nil {
		t.Fatalf("NewGaussian: %v", err)
	}
	out, err := f.Apply(a)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for i, v := range materialize(t, out) {
		if math.Abs(v-7) > 1e-9 {
			t.Fatalf("element %d = %v, want 7", i, v)
		}
	}
}

func TestGaussianZeroWidthIsIdentity(t *testing.T) {
	data := []float64{4, 8, 15, 16}
	a, err := grid.FromSlice(data, []int{4}, []int{2}, grid.Float64)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	f, err := filter.NewGaussian(1, []int{0}, 0)
	if err != nil {
		t.Fatalf("NewGaussian: %v", err)
	}
	out, err := f.Apply(a)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got := materialize(t, out)
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("element %d = %v, want %v", i, got[i], data[i])
		}
	}
}

func TestMedianRemovesOutlier(t *testing.T) {
	data := []float64{1, 1, 100, 1, 1, 1}
	a, err := grid.FromSlice(data, []int{6}, []int{3}, grid.Float64)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	f, err := filter.NewMedian(1, []int{0}, 3)
	if err != nil {
		t.Fatalf("NewMedian: %v", err)
	}
	out, err := f.Apply(a)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got := materialize(t, out)
	for i, v := range got {
		if v != 1 {
			t.Fatalf("element %d = %v, want the outlier suppressed to 1", i, v)
		}
	}
}

func TestMedianSmoothedAcrossBlocks(t *testing.T) {
	// A step across the block boundary: medians near the edge need the
	// exchanged halo to match the unsplit computation.
	data := []float64{0, 0, 0, 0, 9, 9, 9, 9}
	run := func(chunks []int) []float64 {
		a, err := grid.FromSlice(data, []int{8}, chunks, grid.Float64)
		if err != nil {
			t.Fatalf("FromSlice: %v", err)
		}
		f, err := filter.NewMedian(1, []int{0}, 3)
		if err != nil {
			t.Fatalf("NewMedian: %v", err)
		}
		out, err := f.Apply(a)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		return materialize(t, out)
	}
	split := run([]int{4})
	whole := run([]int{8})
	for i := range whole {
		if split[i] != whole[i] {
			t.Fatalf("element %d: split %v != unsplit %v", i, split[i], whole[i])
		}
	}
}

func TestInvalidConfigurations(t *testing.T) {
	if _, err := filter.NewUniform(2, []int{0}, 4); err == nil {
		t.Error("even window size accepted")
	}
	if _, err := filter.NewMedian(2, []int{0}, 0); err == nil {
		t.Error("zero window size accepted")
	}
	if _, err := filter.NewGaussian(2, []int{2}, 4); err == nil {
		t.Error("out-of-range axis accepted")
	}
	if _, err := filter.NewGaussian(2, nil, 4); err == nil {
		t.Error("empty axis list accepted")
	}
	if _, err := filter.NewGaussian(2, []int{0}, -1); err == nil {
		t.Error("negative width accepted")
	}
}
