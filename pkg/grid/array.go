package grid

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/specklesim/speckle/pkg/cache"
	"github.com/specklesim/speckle/pkg/errors"
	"github.com/specklesim/speckle/pkg/task"
)

// Scheduler materializes task-graph nodes. Execution strategy (sequential,
// worker pool, work stealing) is entirely the scheduler's business; this
// package only builds graphs. Implementations live in pkg/exec.
type Scheduler interface {
	Run(ctx context.Context, g *task.Graph, targets []string) (map[string]task.Value, error)
}

// Array is a lazy chunked multi-dimensional array. Arrays are immutable
// configuration: deriving a new array never changes an existing one, and
// all block state is recomputed from scratch on every evaluation.
type Array struct {
	name   string
	shape  []int
	dtype  DType
	chunks []int
	graph  *task.Graph
}

// Shape returns the logical array shape. The caller must not modify it.
func (a *Array) Shape() []int { return a.shape }

// DType returns the declared element type.
func (a *Array) DType() DType { return a.dtype }

// Chunks returns the per-axis chunk lengths. The caller must not modify it.
func (a *Array) Chunks() []int { return a.chunks }

// Rank returns the number of axes.
func (a *Array) Rank() int { return len(a.shape) }

// Name returns the array's layer name, which prefixes all its node ids.
func (a *Array) Name() string { return a.name }

// Graph returns the task graph backing the array.
func (a *Array) Graph() *task.Graph { return a.graph }

// GridShape returns the number of blocks along each axis.
func (a *Array) GridShape() []int {
	g := make([]int, len(a.shape))
	for i := range a.shape {
		g[i] = numChunks(a.shape[i], a.chunks[i])
	}
	return g
}

// NumBlocks returns the total number of blocks.
func (a *Array) NumBlocks() int { return Volume(a.GridShape()) }

// BlockShape returns the shape of the block at the given grid coordinate.
// Interior blocks have the chunk shape; trailing blocks may be short.
func (a *Array) BlockShape(coord []int) []int {
	s := make([]int, len(a.shape))
	for i := range a.shape {
		s[i] = min(a.chunks[i], a.shape[i]-coord[i]*a.chunks[i])
	}
	return s
}

// BlockStart returns the element index of the block's first element along
// each axis.
func (a *Array) BlockStart(coord []int) []int {
	s := make([]int, len(a.shape))
	for i := range a.shape {
		s[i] = coord[i] * a.chunks[i]
	}
	return s
}

// BlockCoords enumerates all block-grid coordinates in row-major order.
func (a *Array) BlockCoords() [][]int {
	return enumerate(a.GridShape())
}

// NodeID returns the task-graph node id of the block at the coordinate.
func (a *Array) NodeID(coord []int) string {
	return a.name + "-" + CoordKey(coord)
}

// CoordKey renders a block-grid coordinate as a stable dotted string,
// e.g. "0.2.1". It is used in node ids and cache fingerprints.
func CoordKey(coord []int) string {
	if len(coord) == 0 {
		return "0"
	}
	parts := make([]string, len(coord))
	for i, c := range coord {
		parts[i] = fmt.Sprint(c)
	}
	return strings.Join(parts, ".")
}

func numChunks(length, chunk int) int {
	if length == 0 {
		return 1
	}
	return (length + chunk - 1) / chunk
}

// enumerate lists all coordinates of a grid shape in row-major order.
func enumerate(shape []int) [][]int {
	n := Volume(shape)
	coords := make([][]int, 0, n)
	idx := make([]int, len(shape))
	for i := 0; i < n; i++ {
		coords = append(coords, slices.Clone(idx))
		for k := len(shape) - 1; k >= 0; k-- {
			idx[k]++
			if idx[k] < shape[k] {
				break
			}
			idx[k] = 0
		}
	}
	return coords
}

func checkChunks(shape, chunks []int) error {
	if len(chunks) != len(shape) {
		return errors.New(errors.ErrCodeInvalidChunks,
			"chunk rank %d does not match array rank %d", len(chunks), len(shape))
	}
	for i, c := range chunks {
		if c <= 0 {
			return errors.New(errors.ErrCodeInvalidChunks, "chunk length %d on axis %d", c, i)
		}
	}
	return nil
}

// NewLayer creates an array shell over an existing graph without adding
// any nodes. Callers (the mapping engine, Rechunk) are responsible for
// adding one node per block under the returned array's NodeID scheme.
func NewLayer(prefix string, shape, chunks []int, dtype DType, g *task.Graph) (*Array, error) {
	if err := checkChunks(shape, chunks); err != nil {
		return nil, err
	}
	return &Array{
		name:   task.NextLayerName(prefix),
		shape:  slices.Clone(shape),
		dtype:  dtype,
		chunks: slices.Clone(chunks),
		graph:  g,
	}, nil
}

// Generate creates a lazy source array whose blocks are produced on demand
// by fill. The fill function must be pure; it may be invoked at any time,
// any number of times, from any goroutine.
func Generate(prefix string, shape, chunks []int, dtype DType, fill func(coord []int, b *Block)) (*Array, error) {
	a, err := NewLayer(prefix, shape, chunks, dtype, task.New())
	if err != nil {
		return nil, err
	}
	for _, coord := range a.BlockCoords() {
		coord := coord
		blockShape := a.BlockShape(coord)
		err := a.graph.AddTask(a.NodeID(coord), task.KindSource, nil,
			func(ctx context.Context, _ []task.Value) (task.Value, error) {
				b := NewBlock(blockShape, coord)
				fill(coord, b)
				return b, nil
			})
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

// FromSlice creates a source array over caller-owned row-major data.
// The data is not copied until blocks are materialized; the caller must
// not modify it afterwards. Source blocks are fingerprinted from the data
// content, so derived blocks are cacheable across runs.
func FromSlice(data []float64, shape, chunks []int, dtype DType) (*Array, error) {
	if len(data) != Volume(shape) {
		return nil, errors.New(errors.ErrCodeInvalidConfig,
			"data length %d does not match shape volume %d", len(data), Volume(shape))
	}
	full := &Block{Shape: shape, Data: data}
	a, err := Generate("array", shape, chunks, dtype, func(coord []int, b *Block) {
		start := make([]int, len(shape))
		for i := range shape {
			start[i] = coord[i] * chunks[i]
		}
		CopyRegion(b, make([]int, len(shape)), full, start, b.Shape)
	})
	if err != nil {
		return nil, err
	}
	content, err := full.MarshalBinary()
	if err != nil {
		return nil, err
	}
	a.SetSourceFingerprints("slice", cache.Hash(content), chunks, dtype.String())
	return a, nil
}

// Full creates a source array with every element set to the same value.
func Full(value float64, shape, chunks []int, dtype DType) (*Array, error) {
	a, err := Generate("full", shape, chunks, dtype, func(_ []int, b *Block) {
		for i := range b.Data {
			b.Data[i] = value
		}
	})
	if err != nil {
		return nil, err
	}
	a.SetSourceFingerprints("full", math.Float64bits(value), shape, chunks, dtype.String())
	return a, nil
}

// SetSourceFingerprints stamps the array's source nodes with cache
// fingerprints derived from the given identity parts plus each block
// coordinate. Schedulers treat fingerprints as cross-run content keys and
// derived nodes compose them, so the parts must fully determine the block
// contents. Generate leaves sources unstamped, which keeps caching off
// for everything computed from them; generators whose output is pinned by
// a stable identity opt in through this.
func (a *Array) SetSourceFingerprints(parts ...any) {
	base := cache.HashParts(parts...)
	for _, coord := range a.BlockCoords() {
		n, ok := a.graph.Node(a.NodeID(coord))
		if !ok || len(n.Deps) > 0 {
			continue
		}
		n.Fingerprint = cache.HashParts(base, CoordKey(coord))
	}
}

// Compute materializes the whole array as a single dense block using the
// given scheduler. It appends a throwaway assemble node to the graph and
// asks the scheduler for it; the node concatenates all blocks in place.
func (a *Array) Compute(ctx context.Context, s Scheduler) (*Block, error) {
	coords := a.BlockCoords()
	deps := make([]string, len(coords))
	for i, c := range coords {
		deps[i] = a.NodeID(c)
	}

	shape := slices.Clone(a.shape)
	chunks := slices.Clone(a.chunks)
	id := task.NextLayerName("assemble") + "-0"
	err := a.graph.AddTask(id, task.KindAssemble, deps,
		func(ctx context.Context, inputs []task.Value) (task.Value, error) {
			out := NewBlock(shape, nil)
			zero := make([]int, len(shape))
			for i, v := range inputs {
				b, ok := v.(*Block)
				if !ok {
					return nil, errors.New(errors.ErrCodeInternal, "unexpected payload %T", v)
				}
				start := make([]int, len(shape))
				for k := range shape {
					start[k] = coords[i][k] * chunks[k]
				}
				CopyRegion(out, start, b, zero, b.Shape)
			}
			return out, nil
		})
	if err != nil {
		return nil, err
	}

	results, err := s.Run(ctx, a.graph, []string{id})
	if err != nil {
		return nil, err
	}
	b, ok := results[id].(*Block)
	if !ok {
		return nil, errors.New(errors.ErrCodeInternal, "scheduler returned no result for %s", id)
	}
	return b, nil
}

// Materialize computes the whole array and returns its dense row-major data.
func (a *Array) Materialize(ctx context.Context, s Scheduler) ([]float64, error) {
	b, err := a.Compute(ctx, s)
	if err != nil {
		return nil, err
	}
	return b.Data, nil
}
