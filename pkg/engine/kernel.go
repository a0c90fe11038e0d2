package engine

import (
	"slices"

	"github.com/specklesim/speckle/pkg/errors"
	"github.com/specklesim/speckle/pkg/grid"
)

// Kind identifies the algorithm family a kernel belongs to. It is carried
// alongside descriptors and results for monitoring; nothing infers the
// family from name strings.
type Kind int

const (
	KindGeneric Kind = iota
	KindRandomize
	KindDecode
	KindEncode
	KindFilter
	KindCollect
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindRandomize:
		return "randomize"
	case KindDecode:
		return "decode"
	case KindEncode:
		return "encode"
	case KindFilter:
		return "filter"
	case KindCollect:
		return "collect"
	}
	return "generic"
}

// Descriptor declares a kernel's result type and geometry. Descriptors
// are immutable once constructed; the engine copies what it keeps.
type Descriptor struct {
	// Kind is the algorithm family, for monitoring and cache keys.
	Kind Kind

	// DType is the element type of the result. Kernel output is cast to
	// it after computation.
	DType grid.DType

	// InRank and OutRank are the input and output dimensionality (m, n).
	InRank  int
	OutRank int

	// DroppedAxes lists input axes absent from the output. The engine
	// harmonizes inputs to a single chunk along each dropped axis.
	DroppedAxes []int

	// CreatedAxes lists output axes the kernel creates. Created axes are
	// forced to chunk length 1 by a post-map rechunk pass. When any axis
	// is created, Chunks must declare the output block shape.
	CreatedAxes []int

	// Chunks is the explicit output block shape; nil means the input
	// block shape is preserved.
	Chunks []int

	// WantsCoord declares that the kernel needs the output block's grid
	// coordinate. Kernels that don't declare it receive nil.
	WantsCoord bool

	// Fingerprint, when non-empty, is a stable hash of the kernel's
	// configuration. The engine combines it with each block coordinate and
	// the fingerprints of the block's inputs to form per-node cache
	// fingerprints; an empty value disables caching, as does any input
	// that carries no fingerprint of its own.
	Fingerprint string
}

// Kernel is a pure per-block computation. The same kernel value is shared
// across all blocks and all scheduler goroutines, so implementations must
// be stateless after construction.
type Kernel interface {
	// Name returns a short identifier used in node ids and logs.
	Name() string

	// Descriptor returns the kernel's declaration.
	Descriptor() Descriptor

	// ComputeBlock evaluates the kernel for a single block of data.
	// Inputs arrive in the order the arrays were passed to Map; coord is
	// the output block's grid coordinate, or nil unless WantsCoord.
	ComputeBlock(inputs []*grid.Block, coord []int) (*grid.Block, error)
}

// finishBlock enforces the kernel output contract and applies the declared
// element type: rank mismatches are contract violations (fatal, never
// retried); values are cast in place.
func finishBlock(k Kernel, b *grid.Block, coord []int) (*grid.Block, error) {
	desc := k.Descriptor()
	if b == nil || b.Rank() != desc.OutRank {
		got := -1
		if b != nil {
			got = b.Rank()
		}
		return nil, errors.New(errors.ErrCodeContractViolation,
			"kernel %q returned array of invalid dimension %d != %d", k.Name(), got, desc.OutRank)
	}
	if desc.DType != grid.Float64 {
		for i, v := range b.Data {
			b.Data[i] = desc.DType.Cast(v)
		}
	}
	b.Coord = slices.Clone(coord)
	return b, nil
}

// checkDescriptor validates descriptor consistency before any block runs.
func checkDescriptor(k Kernel) error {
	desc := k.Descriptor()
	if desc.InRank < 0 || desc.OutRank < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "kernel %q declares negative rank", k.Name())
	}
	if want := desc.InRank - len(desc.DroppedAxes) + len(desc.CreatedAxes); desc.OutRank != want {
		return errors.New(errors.ErrCodeInvalidConfig,
			"kernel %q declares output rank %d, axes imply %d", k.Name(), desc.OutRank, want)
	}
	for _, ax := range desc.DroppedAxes {
		if ax < 0 || ax >= desc.InRank {
			return errors.New(errors.ErrCodeInvalidConfig, "kernel %q drops invalid axis %d", k.Name(), ax)
		}
	}
	for _, ax := range desc.CreatedAxes {
		if ax < 0 || ax >= desc.OutRank {
			return errors.New(errors.ErrCodeInvalidConfig, "kernel %q creates invalid axis %d", k.Name(), ax)
		}
	}
	if len(desc.CreatedAxes) > 0 && desc.Chunks == nil {
		return errors.New(errors.ErrCodeInvalidConfig,
			"kernel %q creates axes but declares no output block shape", k.Name())
	}
	if desc.Chunks != nil && len(desc.Chunks) != desc.OutRank {
		return errors.New(errors.ErrCodeInvalidConfig,
			"kernel %q declares %d output chunk lengths for rank %d", k.Name(), len(desc.Chunks), desc.OutRank)
	}
	return nil
}
