package grid

import (
	"context"
	"slices"

	"github.com/specklesim/speckle/pkg/cache"
	"github.com/specklesim/speckle/pkg/errors"
	"github.com/specklesim/speckle/pkg/task"
)

// Rechunk derives an array with the same shape, type and contents but a
// different chunk layout. Each new block depends on every source block it
// intersects; its task copies the intersecting regions over. Rechunking a
// layout onto itself returns the receiver unchanged.
func (a *Array) Rechunk(chunks []int) (*Array, error) {
	if err := checkChunks(a.shape, chunks); err != nil {
		return nil, err
	}
	if slices.Equal(chunks, a.chunks) {
		return a, nil
	}

	out, err := NewLayer("rechunk", a.shape, chunks, a.dtype, a.graph)
	if err != nil {
		return nil, err
	}
	rank := a.Rank()

	for _, coord := range out.BlockCoords() {
		coord := coord
		newStart := out.BlockStart(coord)
		newShape := out.BlockShape(coord)

		// Source block-grid range intersecting this block, per axis.
		lo := make([]int, rank)
		hi := make([]int, rank) // inclusive
		span := make([]int, rank)
		for i := 0; i < rank; i++ {
			lo[i] = newStart[i] / a.chunks[i]
			hi[i] = (newStart[i] + newShape[i] - 1) / a.chunks[i]
			span[i] = hi[i] - lo[i] + 1
		}

		srcCoords := enumerate(span)
		deps := make([]string, len(srcCoords))
		for i, rel := range srcCoords {
			abs := make([]int, rank)
			for k := 0; k < rank; k++ {
				abs[k] = lo[k] + rel[k]
			}
			srcCoords[i] = abs
			deps[i] = a.NodeID(abs)
		}

		oldChunks := a.chunks
		err := a.graph.AddTask(out.NodeID(coord), task.KindRechunk, deps,
			func(ctx context.Context, inputs []task.Value) (task.Value, error) {
				b := NewBlock(newShape, coord)
				for i, v := range inputs {
					src, ok := v.(*Block)
					if !ok {
						return nil, errors.New(errors.ErrCodeInternal, "unexpected payload %T", v)
					}
					srcStart := make([]int, rank)
					dstOff := make([]int, rank)
					srcOff := make([]int, rank)
					size := make([]int, rank)
					for k := 0; k < rank; k++ {
						srcStart[k] = srcCoords[i][k] * oldChunks[k]
						start := max(newStart[k], srcStart[k])
						stop := min(newStart[k]+newShape[k], srcStart[k]+src.Shape[k])
						dstOff[k] = start - newStart[k]
						srcOff[k] = start - srcStart[k]
						size[k] = stop - start
					}
					CopyRegion(b, dstOff, src, srcOff, size)
				}
				return b, nil
			})
		if err != nil {
			return nil, err
		}
		// Rechunked blocks inherit cacheability: compose the source block
		// fingerprints with the new layout.
		if fps, ok := a.graph.DepFingerprints(out.NodeID(coord)); ok {
			n, _ := a.graph.Node(out.NodeID(coord))
			n.Fingerprint = cache.HashParts("rechunk", chunks, CoordKey(coord), fps)
		}
	}
	return out, nil
}
