package task

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/specklesim/speckle/pkg/errors"
)

func value(v int) Func {
	return func(ctx context.Context, inputs []Value) (Value, error) {
		return v, nil
	}
}

func TestAddTaskDuplicate(t *testing.T) {
	g := New()
	if err := g.AddTask("a-0", KindSource, nil, value(1)); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := g.AddTask("a-0", KindSource, nil, value(2)); err == nil {
		t.Fatal("expected error for duplicate node id")
	}
}

func TestValidateUnknownDependency(t *testing.T) {
	g := New()
	_ = g.AddTask("a-0", KindMap, []string{"missing"}, value(1))
	err := g.Validate()
	if !errors.Is(err, errors.ErrCodeUnknownNode) {
		t.Fatalf("expected UNKNOWN_NODE, got %v", err)
	}
}

func TestValidateCycle(t *testing.T) {
	g := New()
	_ = g.AddTask("a-0", KindMap, []string{"b-0"}, value(1))
	_ = g.AddTask("b-0", KindMap, []string{"a-0"}, value(2))
	err := g.Validate()
	if !errors.Is(err, errors.ErrCodeGraphCycle) {
		t.Fatalf("expected GRAPH_CYCLE, got %v", err)
	}
}

func TestTopoSortRestrictsToAncestors(t *testing.T) {
	g := New()
	_ = g.AddTask("src-0", KindSource, nil, value(1))
	_ = g.AddTask("src-1", KindSource, nil, value(2))
	_ = g.AddTask("map-0", KindMap, []string{"src-0"}, value(3))
	_ = g.AddTask("map-1", KindMap, []string{"src-1"}, value(4))

	sorted, err := g.TopoSort([]string{"map-0"})
	if err != nil {
		t.Fatalf("TopoSort: %v", err)
	}
	if slices.Contains(sorted, "src-1") || slices.Contains(sorted, "map-1") {
		t.Fatalf("sort includes nodes outside the target ancestry: %v", sorted)
	}
	if slices.Index(sorted, "src-0") > slices.Index(sorted, "map-0") {
		t.Fatalf("dependency sorts after dependent: %v", sorted)
	}
}

func TestTopoSortDeterministic(t *testing.T) {
	build := func() *Graph {
		g := New()
		_ = g.AddTask("s-0", KindSource, nil, value(0))
		_ = g.AddTask("s-1", KindSource, nil, value(1))
		_ = g.AddTask("s-2", KindSource, nil, value(2))
		_ = g.AddTask("m-0", KindMap, []string{"s-0", "s-1", "s-2"}, value(3))
		return g
	}
	first, err := build().TopoSort([]string{"m-0"})
	if err != nil {
		t.Fatalf("TopoSort: %v", err)
	}
	for i := 0; i < 10; i++ {
		next, err := build().TopoSort([]string{"m-0"})
		if err != nil {
			t.Fatalf("TopoSort: %v", err)
		}
		if !slices.Equal(first, next) {
			t.Fatalf("order changed between runs: %v vs %v", first, next)
		}
	}
}

func TestMergeSharedAncestry(t *testing.T) {
	base := New()
	_ = base.AddTask("s-0", KindSource, nil, value(1))

	left := New()
	_ = left.Merge(base)
	_ = left.AddTask("l-0", KindMap, []string{"s-0"}, value(2))

	right := New()
	_ = right.Merge(base)
	_ = right.AddTask("r-0", KindMap, []string{"s-0"}, value(3))

	merged := New()
	if err := merged.Merge(left); err != nil {
		t.Fatalf("merge left: %v", err)
	}
	if err := merged.Merge(right); err != nil {
		t.Fatalf("merge right: %v", err)
	}
	if merged.NodeCount() != 3 {
		t.Fatalf("NodeCount = %d, want 3", merged.NodeCount())
	}
	if err := merged.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestNextLayerNameUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		name := NextLayerName("layer")
		if seen[name] {
			t.Fatalf("duplicate layer name %q", name)
		}
		if !strings.HasPrefix(name, "layer-") {
			t.Fatalf("unexpected layer name %q", name)
		}
		seen[name] = true
	}
}

func TestSourcesAndSinks(t *testing.T) {
	g := New()
	_ = g.AddTask("s-0", KindSource, nil, value(1))
	_ = g.AddTask("m-0", KindMap, []string{"s-0"}, value(2))

	if got := g.Sources(); !slices.Equal(got, []string{"s-0"}) {
		t.Fatalf("Sources = %v", got)
	}
	if got := g.Sinks(); !slices.Equal(got, []string{"m-0"}) {
		t.Fatalf("Sinks = %v", got)
	}
}
