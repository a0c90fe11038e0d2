package codec

import (
	"github.com/specklesim/speckle/pkg/cache"
	"github.com/specklesim/speckle/pkg/engine"
	"github.com/specklesim/speckle/pkg/grid"
)

// Decoder is the block kernel that decodes packed values to physical
// floating values. It preserves shape and chunk layout.
type Decoder struct {
	params Params
	rank   int
}

// NewDecoder validates the parameters and returns the decode kernel for
// arrays of the given rank.
func NewDecoder(p Params, rank int) (*Decoder, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Decoder{params: p, rank: rank}, nil
}

func (d *Decoder) Name() string { return "decode" }

func (d *Decoder) Descriptor() engine.Descriptor {
	return engine.Descriptor{
		Kind:        engine.KindDecode,
		DType:       grid.Float64,
		InRank:      d.rank,
		OutRank:     d.rank,
		Fingerprint: cache.HashParts("decode", d.params),
	}
}

func (d *Decoder) ComputeBlock(inputs []*grid.Block, _ []int) (*grid.Block, error) {
	out := inputs[0].Clone()
	d.params.DecodeSlice(out.Data)
	return out, nil
}

// Encoder is the block kernel that packs physical values back into the
// declared storage type.
type Encoder struct {
	params  Params
	rank    int
	storage grid.DType
}

// NewEncoder validates the parameters and returns the encode kernel.
// The result element type is the on-disk storage type; the engine casts
// after packing, mapping NaN to the storage type's no-data sentinel when
// no fill value is declared.
func NewEncoder(p Params, rank int, storage grid.DType) (*Encoder, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Encoder{params: p, rank: rank, storage: storage}, nil
}

func (e *Encoder) Name() string { return "encode" }

func (e *Encoder) Descriptor() engine.Descriptor {
	return engine.Descriptor{
		Kind:        engine.KindEncode,
		DType:       e.storage,
		InRank:      e.rank,
		OutRank:     e.rank,
		Fingerprint: cache.HashParts("encode", e.params, e.storage.String()),
	}
}

func (e *Encoder) ComputeBlock(inputs []*grid.Block, _ []int) (*grid.Block, error) {
	out := inputs[0].Clone()
	e.params.EncodeSlice(out.Data)
	return out, nil
}

// Decode lifts the decode kernel over a whole array.
func Decode(a *grid.Array, p Params) (*grid.Array, error) {
	if p.IsIdentity() {
		return a, nil
	}
	d, err := NewDecoder(p, a.Rank())
	if err != nil {
		return nil, err
	}
	return engine.Map(d, a)
}

// Encode lifts the encode kernel over a whole array, packing into the
// given storage type.
func Encode(a *grid.Array, p Params, storage grid.DType) (*grid.Array, error) {
	e, err := NewEncoder(p, a.Rank(), storage)
	if err != nil {
		return nil, err
	}
	return engine.Map(e, a)
}
