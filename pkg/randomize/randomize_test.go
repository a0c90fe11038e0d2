package randomize_test

import (
	"context"
	"slices"
	"testing"

	"github.com/specklesim/speckle/pkg/dist"
	"github.com/specklesim/speckle/pkg/exec"
	"github.com/specklesim/speckle/pkg/grid"
	"github.com/specklesim/speckle/pkg/randomize"
	"github.com/specklesim/speckle/pkg/seed"
)

func constant(t *testing.T, v float64, shape, chunks []int) *grid.Array {
	t.Helper()
	a, err := grid.Full(v, shape, chunks, grid.Float64)
	if err != nil {
		t.Fatalf("Full: %v", err)
	}
	return a
}

func run(t *testing.T, cfg randomize.Config, s grid.Scheduler, chunks []int) []float64 {
	t.Helper()
	x := constant(t, 100, []int{8, 8}, chunks)
	u := constant(t, 10, []int{8, 8}, chunks)
	r, err := randomize.New(cfg, 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	y, err := r.ApplyTo(x, u)
	if err != nil {
		t.Fatalf("ApplyTo: %v", err)
	}
	got, err := y.Materialize(context.Background(), s)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	return got
}

func TestSchedulerIndependence(t *testing.T) {
	cfg := randomize.Config{
		Distribution: dist.Normal,
		Identity:     seed.Identity{Variable: "sst", Dataset: "d1", Selector: 1},
	}
	sequential := run(t, cfg, exec.Sequential(), []int{4, 4})

	pool, err := exec.New(exec.Options{Workers: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	parallel := run(t, cfg, pool, []int{4, 4})

	if !slices.Equal(sequential, parallel) {
		t.Fatal("realization depends on the scheduler")
	}
}

func TestChunkingIndependentOfNothing(t *testing.T) {
	// Identical identities reproduce bit-identical realizations across
	// runs; different selectors never do.
	cfg := randomize.Config{
		Distribution: dist.Normal,
		Identity:     seed.Identity{Variable: "sst", Dataset: "d1", Selector: 1},
	}
	a := run(t, cfg, exec.Sequential(), []int{4, 4})
	b := run(t, cfg, exec.Sequential(), []int{4, 4})
	if !slices.Equal(a, b) {
		t.Fatal("identical configurations must reproduce identical realizations")
	}

	cfg.Identity.Selector = 2
	c := run(t, cfg, exec.Sequential(), []int{4, 4})
	if slices.Equal(a, c) {
		t.Fatal("different selectors must yield different realizations")
	}
}

func TestAntitheticPairMirrors(t *testing.T) {
	// With x=0 and u=1 the normal sampler returns the raw draw, so the
	// paired member must be its exact negation.
	member := func(selector int) []float64 {
		x := constant(t, 0, []int{4, 4}, []int{2, 2})
		u := constant(t, 1, []int{4, 4}, []int{2, 2})
		r, err := randomize.New(randomize.Config{
			Distribution: dist.Normal,
			Identity:     seed.Identity{Variable: "v", Dataset: "d", Selector: selector, Antithetic: true},
		}, 2)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		y, err := r.ApplyTo(x, u)
		if err != nil {
			t.Fatalf("ApplyTo: %v", err)
		}
		got, err := y.Materialize(context.Background(), exec.Sequential())
		if err != nil {
			t.Fatalf("Materialize: %v", err)
		}
		return got
	}

	a := member(2)
	b := member(3)
	for i := range a {
		if b[i] != -a[i] {
			t.Fatalf("element %d: %v is not the exact negation of %v", i, b[i], a[i])
		}
	}
}

func TestRmsdBiasDecomposition(t *testing.T) {
	x := constant(t, 50, []int{4}, []int{4})
	rmsd := constant(t, 5, []int{4}, []int{4})
	bias := constant(t, 3, []int{4}, []int{4})

	r, err := randomize.New(randomize.Config{
		Distribution: dist.Normal,
		Identity:     seed.Identity{Variable: "v", Dataset: "d", Selector: 1},
	}, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	y3, err := r.ApplyTo(x, rmsd, bias)
	if err != nil {
		t.Fatalf("ApplyTo: %v", err)
	}
	got, err := y3.Materialize(context.Background(), exec.Sequential())
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	// sqrt(5²−3²) = 4, so the same draw with u=4 must match exactly.
	u := constant(t, 4, []int{4}, []int{4})
	y2, err := r.ApplyTo(x, u)
	if err != nil {
		t.Fatalf("ApplyTo: %v", err)
	}
	want, err := y2.Materialize(context.Background(), exec.Sequential())
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if !slices.Equal(got, want) {
		t.Fatalf("decomposed run %v != direct run %v", got, want)
	}
}

func TestRmsdBelowBiasFallsBack(t *testing.T) {
	x := constant(t, 50, []int{4}, []int{4})
	rmsd := constant(t, 2, []int{4}, []int{4})
	bias := constant(t, 3, []int{4}, []int{4})

	r, err := randomize.New(randomize.Config{
		Distribution: dist.Normal,
		Identity:     seed.Identity{Variable: "v", Dataset: "d", Selector: 1},
	}, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	y, err := r.ApplyTo(x, rmsd, bias)
	if err != nil {
		t.Fatalf("ApplyTo: %v", err)
	}
	got, err := y.Materialize(context.Background(), exec.Sequential())
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	for i, v := range got {
		if v != 50 {
			t.Fatalf("element %d = %v, want the unperturbed 50", i, v)
		}
	}
}

func TestUnknownDistributionPassesThrough(t *testing.T) {
	cfg := randomize.Config{
		Distribution: dist.Kind("weibull"),
		Identity:     seed.Identity{Variable: "v", Dataset: "d", Selector: 1},
	}
	got := run(t, cfg, exec.Sequential(), []int{4, 4})
	for i, v := range got {
		if v != 100 {
			t.Fatalf("element %d = %v, want the unperturbed 100", i, v)
		}
	}
}

func TestInvalidOptionsRejected(t *testing.T) {
	_, err := randomize.New(randomize.Config{
		Distribution: dist.Normal,
		Options:      dist.Options{Coverage: -1},
	}, 2)
	if err == nil {
		t.Fatal("expected error for negative coverage")
	}
}

func TestWrongInputCount(t *testing.T) {
	x := constant(t, 1, []int{2}, []int{2})
	r, err := randomize.New(randomize.Config{Distribution: dist.Normal}, 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.ApplyTo(x); err == nil {
		t.Fatal("expected error for a single input array")
	}
}
