// Package randomize computes Monte Carlo measurement-error realizations
// of a variable: the central composite tying seed derivation, the
// distribution samplers and the block mapping engine together.
package randomize

import (
	"math"
	"slices"

	"github.com/specklesim/speckle/pkg/cache"
	"github.com/specklesim/speckle/pkg/dist"
	"github.com/specklesim/speckle/pkg/engine"
	"github.com/specklesim/speckle/pkg/errors"
	"github.com/specklesim/speckle/pkg/grid"
	"github.com/specklesim/speckle/pkg/rng"
	"github.com/specklesim/speckle/pkg/seed"
)

// Config is one randomization: a distribution, the stream identity and
// the sampling options. Configs are immutable after construction.
type Config struct {
	// Distribution selects the sampler. Unrecognized kinds are a
	// deliberate no-op returning the input unchanged.
	Distribution dist.Kind

	// Identity names the random stream (variable, dataset, ensemble
	// selector, antithetic pairing).
	Identity seed.Identity

	// Options are the coverage/relative/clip sampling options.
	Options dist.Options
}

// Randomize is the block kernel. It holds only read-only configuration
// and the precomputed root entropy; all per-block state is rederived
// from the block coordinate on every evaluation, so scheduler retries
// and arbitrary execution interleavings reproduce identical values.
type Randomize struct {
	cfg  Config
	rank int
	root []uint64
}

// New validates the configuration and derives the root entropy.
func New(cfg Config, rank int) (*Randomize, error) {
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}
	return &Randomize{cfg: cfg, rank: rank, root: cfg.Identity.RootEntropy()}, nil
}

func (r *Randomize) Name() string { return "randomize" }

func (r *Randomize) Descriptor() engine.Descriptor {
	return engine.Descriptor{
		Kind:       engine.KindRandomize,
		DType:      grid.Float64,
		InRank:     r.rank,
		OutRank:    r.rank,
		WantsCoord: true,
		Fingerprint: cache.HashParts("randomize", string(r.cfg.Distribution),
			r.cfg.Identity.String(), r.cfg.Identity.Negate(), r.cfg.Options),
	}
}

// ComputeBlock draws one realization for a single block. Inputs are
// either (x, u) or (x, rmsd, bias); see ApplyTo.
func (r *Randomize) ComputeBlock(inputs []*grid.Block, coord []int) (*grid.Block, error) {
	x := inputs[0]
	var u []float64
	switch len(inputs) {
	case 2:
		u = inputs[1].Data
	case 3:
		u = effectiveUncertainty(inputs[1].Data, inputs[2].Data)
	default:
		return nil, errors.New(errors.ErrCodeContractViolation,
			"randomize got %d inputs, want (x, u) or (x, rmsd, bias)", len(inputs))
	}

	g := rng.New(seed.BlockSeed(r.root, coord)...)
	y := dist.Sample(r.cfg.Distribution, g, r.cfg.Identity.Negate(), x.Data, u, r.cfg.Options)
	return &grid.Block{Shape: slices.Clone(x.Shape), Data: y}, nil
}

// ApplyTo builds the lazy randomized array from (x, u) or
// (x, rmsd, bias) inputs.
func (r *Randomize) ApplyTo(inputs ...*grid.Array) (*grid.Array, error) {
	if len(inputs) != 2 && len(inputs) != 3 {
		return nil, errors.New(errors.ErrCodeInvalidConfig,
			"randomize applies to (x, u) or (x, rmsd, bias), got %d arrays", len(inputs))
	}
	return engine.Map(r, inputs...)
}

// effectiveUncertainty is the root-sum-square decomposition
// u = sqrt(rmsd² − bias²). Where rmsd < |bias| the square root goes
// non-finite and the sampler falls back to the unperturbed value.
func effectiveUncertainty(rmsd, bias []float64) []float64 {
	u := make([]float64, len(rmsd))
	for i := range rmsd {
		u[i] = math.Sqrt(rmsd[i]*rmsd[i] - bias[i]*bias[i])
	}
	return u
}
