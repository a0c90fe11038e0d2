package grid

import (
	"encoding/binary"
	"math"
	"slices"

	"github.com/specklesim/speckle/pkg/errors"
	"github.com/specklesim/speckle/pkg/task"
)

// Block is a materialized rectangular sub-region of a chunked array: a
// dense row-major float64 buffer plus its integer coordinate tuple in the
// block grid. Blocks are ephemeral; they are created and consumed within
// one computation step and own no external resources.
type Block struct {
	Shape []int
	Coord []int // block-grid coordinate; nil for assembled results
	Data  []float64
}

// NewBlock allocates a zero-filled block of the given shape and coordinate.
func NewBlock(shape, coord []int) *Block {
	return &Block{
		Shape: slices.Clone(shape),
		Coord: slices.Clone(coord),
		Data:  make([]float64, Volume(shape)),
	}
}

// Rank returns the number of axes.
func (b *Block) Rank() int { return len(b.Shape) }

// Len returns the number of elements.
func (b *Block) Len() int { return len(b.Data) }

// Strides returns the row-major strides of the block.
func (b *Block) Strides() []int {
	strides := make([]int, len(b.Shape))
	s := 1
	for i := len(b.Shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= b.Shape[i]
	}
	return strides
}

// Clone returns a deep copy of the block.
func (b *Block) Clone() *Block {
	return &Block{
		Shape: slices.Clone(b.Shape),
		Coord: slices.Clone(b.Coord),
		Data:  slices.Clone(b.Data),
	}
}

// Volume returns the number of elements of a shape.
func Volume(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

// MarshalBinary encodes the block for cache storage: rank, shape, then
// the raw little-endian float64 buffer. The block coordinate is not part
// of the encoding; cache keys already identify the block.
func (b *Block) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 8*(1+len(b.Shape)+len(b.Data)))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(b.Shape)))
	for _, s := range b.Shape {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(s))
	}
	for _, v := range b.Data {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return buf, nil
}

// UnmarshalBinary decodes a block encoded by MarshalBinary.
func (b *Block) UnmarshalBinary(data []byte) error {
	if len(data) < 8 || len(data)%8 != 0 {
		return errors.New(errors.ErrCodeInternal, "malformed block encoding (%d bytes)", len(data))
	}
	rank := int(binary.LittleEndian.Uint64(data))
	data = data[8:]
	if len(data) < 8*rank {
		return errors.New(errors.ErrCodeInternal, "block encoding truncated")
	}
	b.Shape = make([]int, rank)
	for i := range b.Shape {
		b.Shape[i] = int(binary.LittleEndian.Uint64(data))
		data = data[8:]
	}
	if len(data) != 8*Volume(b.Shape) {
		return errors.New(errors.ErrCodeInternal, "block encoding has %d payload bytes, want %d", len(data), 8*Volume(b.Shape))
	}
	b.Coord = nil
	b.Data = make([]float64, Volume(b.Shape))
	for i := range b.Data {
		b.Data[i] = math.Float64frombits(binary.LittleEndian.Uint64(data))
		data = data[8:]
	}
	return nil
}

// DecodeBlock decodes a cached block payload into a task value. It is the
// decode hook handed to schedulers that consult a block cache.
func DecodeBlock(data []byte) (task.Value, error) {
	b := new(Block)
	if err := b.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return b, nil
}

// CopyRegion copies a rectangular region of src into dst. The region has
// the given size; dstOff and srcOff are the per-axis start indices in the
// destination and source blocks. All slices share the blocks' rank.
func CopyRegion(dst *Block, dstOff []int, src *Block, srcOff []int, size []int) {
	if Volume(size) == 0 {
		return
	}
	rank := len(size)
	if rank == 0 {
		dst.Data[0] = src.Data[0]
		return
	}
	dstStrides := dst.Strides()
	srcStrides := src.Strides()

	idx := make([]int, rank)
	for {
		di, si := 0, 0
		for k := 0; k < rank-1; k++ {
			di += (dstOff[k] + idx[k]) * dstStrides[k]
			si += (srcOff[k] + idx[k]) * srcStrides[k]
		}
		last := rank - 1
		di += dstOff[last] * dstStrides[last]
		si += srcOff[last] * srcStrides[last]
		copy(dst.Data[di:di+size[last]], src.Data[si:si+size[last]])

		// advance the odometer over all axes but the innermost
		k := rank - 2
		for ; k >= 0; k-- {
			idx[k]++
			if idx[k] < size[k] {
				break
			}
			idx[k] = 0
		}
		if k < 0 {
			return
		}
	}
}
