package engine

import (
	"context"
	"slices"

	"github.com/specklesim/speckle/pkg/cache"
	"github.com/specklesim/speckle/pkg/errors"
	"github.com/specklesim/speckle/pkg/grid"
	"github.com/specklesim/speckle/pkg/task"
)

// Map lifts a kernel over chunked arrays: the result is a new lazy array
// with one output block per input block. Inputs with incompatible chunk
// layouts are transparently rechunked to the first input's layout.
func Map(k Kernel, inputs ...*grid.Array) (*grid.Array, error) {
	return mapBlocks(k, true, inputs)
}

// MapStrict is Map with rechunking disallowed: incompatible input layouts
// raise a configuration error before any block executes.
func MapStrict(k Kernel, inputs ...*grid.Array) (*grid.Array, error) {
	return mapBlocks(k, false, inputs)
}

func mapBlocks(k Kernel, allowRechunk bool, inputs []*grid.Array) (*grid.Array, error) {
	desc := k.Descriptor()
	if err := checkInputs(k, inputs); err != nil {
		return nil, err
	}

	harmonized, target, err := harmonize(k, allowRechunk, inputs)
	if err != nil {
		return nil, err
	}

	g, err := mergedGraph(harmonized)
	if err != nil {
		return nil, err
	}

	inShape := harmonized[0].Shape()
	outShape, outChunks := outputGeometry(desc, inShape, target)
	out, err := grid.NewLayer(k.Name(), outShape, outChunks, desc.DType, g)
	if err != nil {
		return nil, err
	}

	for _, coord := range out.BlockCoords() {
		coord := coord
		inCoord := inputCoord(desc, coord)
		deps := make([]string, len(harmonized))
		for i, in := range harmonized {
			deps[i] = in.NodeID(inCoord)
		}
		if err := addMapNode(g, out.NodeID(coord), task.KindMap, k, deps, coord); err != nil {
			return nil, err
		}
	}

	// Created axes carry one chunk per block so far; force chunk length 1
	// along each of them.
	if len(desc.CreatedAxes) > 0 {
		final := slices.Clone(outChunks)
		for _, ax := range desc.CreatedAxes {
			final[ax] = 1
		}
		return out.Rechunk(final)
	}
	return out, nil
}

// addMapNode appends one kernel invocation node to the graph.
func addMapNode(g *task.Graph, id string, kind task.Kind, k Kernel, deps []string, coord []int) error {
	desc := k.Descriptor()
	if err := g.AddTask(id, kind, deps, func(ctx context.Context, values []task.Value) (task.Value, error) {
		blocks := make([]*grid.Block, len(values))
		for i, v := range values {
			b, ok := v.(*grid.Block)
			if !ok {
				return nil, errors.New(errors.ErrCodeInternal, "unexpected payload %T", v)
			}
			blocks[i] = b
		}
		var coordArg []int
		if desc.WantsCoord {
			coordArg = coord
		}
		b, err := k.ComputeBlock(blocks, coordArg)
		if err != nil {
			return nil, err
		}
		return finishBlock(k, b, coord)
	}); err != nil {
		return err
	}
	setFingerprint(g, id, desc, coord)
	return nil
}

// setFingerprint stamps a node with its per-block cache fingerprint: the
// kernel configuration hash combined with the block coordinate and the
// fingerprints of the node's inputs. Composing the input fingerprints ties
// the key to the data lineage, so the same kernel over different sources
// never shares cache entries. Nodes whose inputs carry no fingerprint stay
// uncached.
func setFingerprint(g *task.Graph, id string, desc Descriptor, coord []int) {
	if desc.Fingerprint == "" {
		return
	}
	deps, ok := g.DepFingerprints(id)
	if !ok {
		return
	}
	if n, found := g.Node(id); found {
		n.Fingerprint = cache.HashParts(desc.Fingerprint, grid.CoordKey(coord), deps)
	}
}

func checkInputs(k Kernel, inputs []*grid.Array) error {
	if err := checkDescriptor(k); err != nil {
		return err
	}
	desc := k.Descriptor()
	if len(inputs) == 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "kernel %q applied to no inputs", k.Name())
	}
	for _, in := range inputs {
		if in.Rank() != desc.InRank {
			return errors.New(errors.ErrCodeInvalidConfig,
				"kernel %q expects rank %d input, got %d", k.Name(), desc.InRank, in.Rank())
		}
		if !slices.Equal(in.Shape(), inputs[0].Shape()) {
			return errors.New(errors.ErrCodeIncompatibleLayout,
				"kernel %q inputs disagree on shape: %v vs %v", k.Name(), in.Shape(), inputs[0].Shape())
		}
	}
	return nil
}

// harmonize brings all inputs to one common chunk layout. The target is
// the first input's effective layout, widened to a single chunk along
// every dropped axis.
func harmonize(k Kernel, allowRechunk bool, inputs []*grid.Array) ([]*grid.Array, []int, error) {
	desc := k.Descriptor()
	shape := inputs[0].Shape()

	target := effectiveChunks(inputs[0])
	for _, ax := range desc.DroppedAxes {
		target[ax] = max(shape[ax], 1)
	}

	harmonized := make([]*grid.Array, len(inputs))
	for i, in := range inputs {
		if slices.Equal(effectiveChunks(in), target) {
			harmonized[i] = in
			continue
		}
		if !allowRechunk {
			return nil, nil, errors.New(errors.ErrCodeIncompatibleLayout,
				"kernel %q input %d has chunk layout %v, want %v and rechunking is disallowed",
				k.Name(), i, in.Chunks(), target)
		}
		rc, err := in.Rechunk(target)
		if err != nil {
			return nil, nil, err
		}
		harmonized[i] = rc
	}
	return harmonized, target, nil
}

// effectiveChunks normalizes chunk lengths so that layouts comparing equal
// partition blocks identically (a chunk longer than the axis is one block,
// same as a chunk of exactly the axis length).
func effectiveChunks(a *grid.Array) []int {
	chunks := slices.Clone(a.Chunks())
	for i, s := range a.Shape() {
		if s > 0 && chunks[i] > s {
			chunks[i] = s
		}
	}
	return chunks
}

// mergedGraph returns a fresh graph containing all distinct input graphs.
func mergedGraph(inputs []*grid.Array) (*task.Graph, error) {
	g := task.New()
	seen := make(map[*task.Graph]bool)
	for _, in := range inputs {
		src := in.Graph()
		if seen[src] {
			continue
		}
		seen[src] = true
		if err := g.Merge(src); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// outputGeometry derives the output array shape and chunk layout from the
// input geometry and the kernel declaration.
func outputGeometry(desc Descriptor, inShape, inChunks []int) (shape, chunks []int) {
	shape = removeAxes(inShape, desc.DroppedAxes)
	chunks = removeAxes(inChunks, desc.DroppedAxes)

	if len(desc.CreatedAxes) > 0 {
		for _, ax := range slices.Sorted(slices.Values(desc.CreatedAxes)) {
			shape = slices.Insert(shape, ax, desc.Chunks[ax])
			chunks = slices.Insert(chunks, ax, desc.Chunks[ax])
		}
		return shape, chunks
	}

	if desc.Chunks != nil {
		// Explicit output block shape: every block yields that shape.
		for i := range shape {
			n := 1
			if inChunks[i] > 0 {
				n = (inShape[i] + inChunks[i] - 1) / inChunks[i]
			}
			shape[i] = n * desc.Chunks[i]
			chunks[i] = desc.Chunks[i]
		}
	}
	return shape, chunks
}

// inputCoord maps an output block coordinate back to the input coordinate:
// created axes are removed, dropped axes reappear at block 0 (inputs are
// harmonized to a single chunk along them).
func inputCoord(desc Descriptor, outCoord []int) []int {
	coord := removeAxes(outCoord, desc.CreatedAxes)
	for _, ax := range slices.Sorted(slices.Values(desc.DroppedAxes)) {
		coord = slices.Insert(coord, ax, 0)
	}
	return coord
}

func removeAxes(values, axes []int) []int {
	if len(axes) == 0 {
		return slices.Clone(values)
	}
	drop := make(map[int]bool, len(axes))
	for _, ax := range axes {
		drop[ax] = true
	}
	out := make([]int, 0, len(values))
	for i, v := range values {
		if !drop[i] {
			out = append(out, v)
		}
	}
	return out
}
