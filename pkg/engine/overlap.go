package engine

import (
	"context"
	"slices"

	"github.com/specklesim/speckle/pkg/errors"
	"github.com/specklesim/speckle/pkg/grid"
	"github.com/specklesim/speckle/pkg/task"
)

// Overlap configures halo exchange for MapOverlap.
type Overlap struct {
	// Depths is the number of halo elements per axis. A zero depth means
	// no exchange along that axis.
	Depths []int

	// Boundary is the value used for out-of-bounds halo positions. Nil
	// means the input element type's no-data sentinel.
	Boundary *float64

	// NoTrim declares that the kernel returns blocks already trimmed to
	// the core shape. By default the engine trims the halo off the result.
	NoTrim bool
}

// MapOverlap is Map with halo exchange: each kernel invocation receives
// blocks padded with Depths neighboring elements per axis, so stencil
// kernels can compute correct values up to the block edge. Out-of-bounds
// halo positions are filled with the boundary value. The kernel must
// return the padded shape, which the engine trims back to the core block,
// unless NoTrim is set.
//
// Overlapping kernels must preserve geometry: dropped axes, created axes
// and explicit output chunks are configuration errors here.
func MapOverlap(k Kernel, ov Overlap, inputs ...*grid.Array) (*grid.Array, error) {
	desc := k.Descriptor()
	if err := checkInputs(k, inputs); err != nil {
		return nil, err
	}
	if len(desc.DroppedAxes) > 0 || len(desc.CreatedAxes) > 0 || desc.Chunks != nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig,
			"kernel %q changes geometry, which overlap mapping does not support", k.Name())
	}
	if len(ov.Depths) != desc.InRank {
		return nil, errors.New(errors.ErrCodeInvalidConfig,
			"overlap declares %d depths for rank %d", len(ov.Depths), desc.InRank)
	}

	harmonized, target, err := harmonize(k, true, inputs)
	if err != nil {
		return nil, err
	}
	shape := harmonized[0].Shape()
	if err := checkDepths(ov.Depths, shape, target); err != nil {
		return nil, err
	}

	g, err := mergedGraph(harmonized)
	if err != nil {
		return nil, err
	}
	out, err := grid.NewLayer(k.Name(), shape, target, desc.DType, g)
	if err != nil {
		return nil, err
	}

	gridShape := out.GridShape()
	offsets := neighborOffsets(ov.Depths)
	for _, coord := range out.BlockCoords() {
		coord := coord
		blockShape := out.BlockShape(coord)

		// One dependency per in-bounds neighbor per input, kernel input
		// order outermost so dep index arithmetic stays simple.
		present := make([]bool, len(offsets))
		var deps []string
		var nbCoords [][]int
		for oi, off := range offsets {
			nb, ok := shiftCoord(coord, off, gridShape)
			if !ok {
				continue
			}
			present[oi] = true
			nbCoords = append(nbCoords, nb)
		}
		for _, in := range harmonized {
			for _, nb := range nbCoords {
				deps = append(deps, in.NodeID(nb))
			}
		}
		perInput := len(nbCoords)

		err := g.AddTask(out.NodeID(coord), task.KindOverlap, deps,
			func(ctx context.Context, values []task.Value) (task.Value, error) {
				padded := make([]*grid.Block, len(harmonized))
				for i, in := range harmonized {
					slice := values[i*perInput : (i+1)*perInput]
					p, err := assemblePadded(slice, offsets, present, blockShape, ov, in.DType())
					if err != nil {
						return nil, err
					}
					padded[i] = p
				}
				var coordArg []int
				if desc.WantsCoord {
					coordArg = coord
				}
				b, err := k.ComputeBlock(padded, coordArg)
				if err != nil {
					return nil, err
				}
				b, err = trimResult(k, b, ov, blockShape)
				if err != nil {
					return nil, err
				}
				return finishBlock(k, b, coord)
			})
		if err != nil {
			return nil, err
		}
		setFingerprint(g, out.NodeID(coord), desc, coord)
	}
	return out, nil
}

// checkDepths rejects halos deeper than the smallest block extent along
// an axis, which would require data from beyond the adjacent block.
func checkDepths(depths, shape, chunks []int) error {
	for ax, d := range depths {
		if d < 0 {
			return errors.New(errors.ErrCodeInvalidConfig, "negative overlap depth %d on axis %d", d, ax)
		}
		if d == 0 {
			continue
		}
		minExtent := shape[ax]
		if shape[ax] > chunks[ax] {
			minExtent = chunks[ax]
			if rem := shape[ax] % chunks[ax]; rem != 0 && rem < minExtent {
				minExtent = rem
			}
		}
		if d > minExtent {
			return errors.New(errors.ErrCodeInvalidChunks,
				"overlap depth %d on axis %d exceeds smallest block extent %d", d, ax, minExtent)
		}
	}
	return nil
}

// neighborOffsets enumerates grid offsets {-1,0,1} along axes with a
// positive depth, {0} elsewhere, in row-major order. The zero offset (the
// block itself) is always included.
func neighborOffsets(depths []int) [][]int {
	offsets := [][]int{{}}
	for _, d := range depths {
		choices := []int{0}
		if d > 0 {
			choices = []int{-1, 0, 1}
		}
		var next [][]int
		for _, off := range offsets {
			for _, c := range choices {
				next = append(next, append(slices.Clone(off), c))
			}
		}
		offsets = next
	}
	return offsets
}

func shiftCoord(coord, off, gridShape []int) ([]int, bool) {
	nb := make([]int, len(coord))
	for i := range coord {
		nb[i] = coord[i] + off[i]
		if nb[i] < 0 || nb[i] >= gridShape[i] {
			return nil, false
		}
	}
	return nb, true
}

// assemblePadded builds one padded input block from the core block and its
// in-bounds neighbors. Positions no neighbor covers keep the boundary fill.
func assemblePadded(values []task.Value, offsets [][]int, present []bool, blockShape []int, ov Overlap, dtype grid.DType) (*grid.Block, error) {
	rank := len(blockShape)
	paddedShape := make([]int, rank)
	for i := range blockShape {
		paddedShape[i] = blockShape[i] + 2*ov.Depths[i]
	}
	padded := grid.NewBlock(paddedShape, nil)

	fill := dtype.NoData()
	if ov.Boundary != nil {
		fill = *ov.Boundary
	}
	for i := range padded.Data {
		padded.Data[i] = fill
	}

	vi := 0
	for oi, off := range offsets {
		if !present[oi] {
			continue
		}
		nb, ok := values[vi].(*grid.Block)
		vi++
		if !ok {
			return nil, errors.New(errors.ErrCodeInternal, "unexpected payload %T", values[vi-1])
		}
		dstStart := make([]int, rank)
		srcStart := make([]int, rank)
		size := make([]int, rank)
		for ax := range off {
			d := ov.Depths[ax]
			switch off[ax] {
			case -1:
				dstStart[ax] = 0
				srcStart[ax] = nb.Shape[ax] - d
				size[ax] = d
			case 0:
				dstStart[ax] = d
				srcStart[ax] = 0
				size[ax] = nb.Shape[ax]
			case 1:
				dstStart[ax] = d + blockShape[ax]
				srcStart[ax] = 0
				size[ax] = d
			}
		}
		grid.CopyRegion(padded, dstStart, nb, srcStart, size)
	}
	return padded, nil
}

// trimResult cuts the halo off a kernel result, or checks the shape when
// the kernel trims itself.
func trimResult(k Kernel, b *grid.Block, ov Overlap, blockShape []int) (*grid.Block, error) {
	if b == nil || b.Rank() != len(blockShape) {
		return b, nil // finishBlock reports the rank mismatch
	}
	if ov.NoTrim {
		if !slices.Equal(b.Shape, blockShape) {
			return nil, errors.New(errors.ErrCodeContractViolation,
				"kernel %q returned shape %v, want core shape %v", k.Name(), b.Shape, blockShape)
		}
		return b, nil
	}
	want := make([]int, len(blockShape))
	for i := range blockShape {
		want[i] = blockShape[i] + 2*ov.Depths[i]
	}
	if !slices.Equal(b.Shape, want) {
		return nil, errors.New(errors.ErrCodeContractViolation,
			"kernel %q returned shape %v, want padded shape %v", k.Name(), b.Shape, want)
	}
	core := grid.NewBlock(blockShape, nil)
	grid.CopyRegion(core, make([]int, len(blockShape)), b, slices.Clone(ov.Depths), blockShape)
	return core, nil
}
