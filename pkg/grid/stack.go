package grid

import (
	"context"
	"slices"

	"github.com/specklesim/speckle/pkg/cache"
	"github.com/specklesim/speckle/pkg/errors"
	"github.com/specklesim/speckle/pkg/task"
)

// Stack combines arrays of identical geometry into one array with a new
// leading axis of length len(arrays), chunked 1 along that axis. Block
// k of the new axis is the corresponding block of arrays[k], reshaped.
// Arrays with a different chunk layout are rechunked to the first
// array's layout.
func Stack(prefix string, arrays []*Array) (*Array, error) {
	if len(arrays) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "stack of no arrays")
	}
	first := arrays[0]
	for _, a := range arrays {
		if !slices.Equal(a.Shape(), first.Shape()) {
			return nil, errors.New(errors.ErrCodeIncompatibleLayout,
				"stack inputs disagree on shape: %v vs %v", a.Shape(), first.Shape())
		}
	}

	aligned := make([]*Array, len(arrays))
	for i, a := range arrays {
		if slices.Equal(a.Chunks(), first.Chunks()) {
			aligned[i] = a
			continue
		}
		rc, err := a.Rechunk(first.Chunks())
		if err != nil {
			return nil, err
		}
		aligned[i] = rc
	}

	g := task.New()
	seen := make(map[*task.Graph]bool)
	for _, a := range aligned {
		if seen[a.Graph()] {
			continue
		}
		seen[a.Graph()] = true
		if err := g.Merge(a.Graph()); err != nil {
			return nil, err
		}
	}

	shape := append([]int{len(aligned)}, first.Shape()...)
	chunks := append([]int{1}, first.Chunks()...)
	out, err := NewLayer(prefix, shape, chunks, first.DType(), g)
	if err != nil {
		return nil, err
	}

	for _, coord := range out.BlockCoords() {
		coord := coord
		k := coord[0]
		src := aligned[k].NodeID(coord[1:])
		err := g.AddTask(out.NodeID(coord), task.KindMap, []string{src},
			func(ctx context.Context, inputs []task.Value) (task.Value, error) {
				b, ok := inputs[0].(*Block)
				if !ok {
					return nil, errors.New(errors.ErrCodeInternal, "unexpected payload %T", inputs[0])
				}
				return &Block{
					Shape: append([]int{1}, b.Shape...),
					Coord: slices.Clone(coord),
					Data:  b.Data,
				}, nil
			})
		if err != nil {
			return nil, err
		}
		if fps, ok := g.DepFingerprints(out.NodeID(coord)); ok {
			n, _ := g.Node(out.NodeID(coord))
			n.Fingerprint = cache.HashParts("stack", CoordKey(coord), fps)
		}
	}
	return out, nil
}
