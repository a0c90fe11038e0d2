package exec_test

import (
	"context"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/specklesim/speckle/pkg/cache"
	"github.com/specklesim/speckle/pkg/errors"
	"github.com/specklesim/speckle/pkg/exec"
	"github.com/specklesim/speckle/pkg/grid"
	"github.com/specklesim/speckle/pkg/task"
)

func checkerboard(t *testing.T) *grid.Array {
	t.Helper()
	a, err := grid.Generate("src", []int{6, 6}, []int{2, 3}, grid.Float64, func(coord []int, b *grid.Block) {
		for i := range b.Data {
			b.Data[i] = float64((coord[0]+coord[1])%2) + float64(i)/100
		}
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return a
}

func TestPoolMatchesSequential(t *testing.T) {
	want, err := checkerboard(t).Materialize(context.Background(), exec.Sequential())
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}

	for _, workers := range []int{2, 4, 8} {
		pool, err := exec.New(exec.Options{Workers: workers})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		got, err := checkerboard(t).Materialize(context.Background(), pool)
		if err != nil {
			t.Fatalf("%d workers: %v", workers, err)
		}
		if !slices.Equal(got, want) {
			t.Fatalf("%d workers produced different data", workers)
		}
	}
}

func TestPoolErrorPropagation(t *testing.T) {
	g := task.New()
	boom := errors.New(errors.ErrCodeContractViolation, "kernel exploded")
	_ = g.AddTask("bad-0", task.KindSource, nil,
		func(ctx context.Context, _ []task.Value) (task.Value, error) {
			return nil, boom
		})
	_ = g.AddTask("map-0", task.KindMap, []string{"bad-0"},
		func(ctx context.Context, inputs []task.Value) (task.Value, error) {
			return inputs[0], nil
		})

	_, err := exec.Sequential().Run(context.Background(), g, []string{"map-0"})
	if !errors.Is(err, errors.ErrCodeContractViolation) {
		t.Fatalf("expected the node error verbatim, got %v", err)
	}
}

func TestPoolContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := checkerboard(t).Compute(ctx, exec.Sequential())
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestPoolCacheHit(t *testing.T) {
	mem := cache.NewMemoryCache()
	pool, err := exec.New(exec.Options{
		Workers: 1,
		Cache:   mem,
		Decode:  grid.DecodeBlock,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var computed atomic.Int64
	build := func() (*task.Graph, string) {
		g := task.New()
		id := "blk-0"
		_ = g.AddTask(id, task.KindSource, nil,
			func(ctx context.Context, _ []task.Value) (task.Value, error) {
				computed.Add(1)
				b := grid.NewBlock([]int{3}, nil)
				b.Data[0], b.Data[1], b.Data[2] = 1, 2, 3
				return b, nil
			})
		n, _ := g.Node(id)
		n.Fingerprint = "stable-fingerprint"
		return g, id
	}

	g, id := build()
	first, err := pool.Run(context.Background(), g, []string{id})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if mem.Len() != 1 {
		t.Fatalf("cache holds %d entries after first run, want 1", mem.Len())
	}

	g, id = build()
	second, err := pool.Run(context.Background(), g, []string{id})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if computed.Load() != 1 {
		t.Fatalf("node computed %d times, want 1 (second run should hit the cache)", computed.Load())
	}
	if !slices.Equal(first[id].(*grid.Block).Data, second[id].(*grid.Block).Data) {
		t.Fatal("cached block differs from computed block")
	}
}

func TestPoolRequiresDecodeWithCache(t *testing.T) {
	_, err := exec.New(exec.Options{Cache: cache.NewMemoryCache()})
	if !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
}
