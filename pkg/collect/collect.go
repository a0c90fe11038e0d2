// Package collect reduces an ensemble of Monte Carlo realizations to the
// standard uncertainty of the measurement.
//
// The input array's leading axis is the ensemble axis, with member 0 the
// unperturbed reference. The simulated error of member k is x[k] − x[0];
// since the mean simulated error vanishes, the standard deviation of
// those errors equals the root mean squared error and is reported as the
// standard uncertainty.
package collect

import (
	"math"

	"github.com/specklesim/speckle/pkg/cache"
	"github.com/specklesim/speckle/pkg/engine"
	"github.com/specklesim/speckle/pkg/errors"
	"github.com/specklesim/speckle/pkg/filter"
	"github.com/specklesim/speckle/pkg/grid"
)

// Uncertainty is the block kernel computing the standard uncertainty
// over the ensemble axis. The engine harmonizes the ensemble axis to a
// single chunk, so every invocation sees all members.
type Uncertainty struct {
	rank int // input rank, ensemble axis included
}

// New creates the kernel for inputs of the given rank.
func New(rank int) (*Uncertainty, error) {
	if rank < 2 {
		return nil, errors.New(errors.ErrCodeInvalidConfig,
			"collect needs an ensemble axis plus at least one data axis, got rank %d", rank)
	}
	return &Uncertainty{rank: rank}, nil
}

func (c *Uncertainty) Name() string { return "collect" }

func (c *Uncertainty) Descriptor() engine.Descriptor {
	return engine.Descriptor{
		Kind:        engine.KindCollect,
		DType:       grid.Float64,
		InRank:      c.rank,
		OutRank:     c.rank - 1,
		DroppedAxes: []int{0},
		Fingerprint: cache.HashParts("collect", c.rank),
	}
}

// ComputeBlock computes sqrt(nanmean((x[k] − x[0])²)) over the ensemble
// axis. Positions with no finite error stay NaN.
func (c *Uncertainty) ComputeBlock(inputs []*grid.Block, _ []int) (*grid.Block, error) {
	in := inputs[0]
	members := in.Shape[0]
	if members < 2 {
		return nil, errors.New(errors.ErrCodeContractViolation,
			"collect needs at least two ensemble members, got %d", members)
	}
	out := grid.NewBlock(in.Shape[1:], nil)
	stride := len(out.Data)

	for pos := range out.Data {
		ref := in.Data[pos]
		var sum float64
		var n int
		for k := 1; k < members; k++ {
			e := in.Data[k*stride+pos] - ref
			if math.IsNaN(e) || math.IsInf(e, 0) {
				continue
			}
			sum += e * e
			n++
		}
		if n == 0 {
			out.Data[pos] = math.NaN()
			continue
		}
		out.Data[pos] = math.Sqrt(sum / float64(n))
	}
	return out, nil
}

// Apply reduces an ensemble array to its standard uncertainty field.
func (c *Uncertainty) Apply(a *grid.Array) (*grid.Array, error) {
	if a.Rank() != c.rank {
		return nil, errors.New(errors.ErrCodeInvalidConfig,
			"collect built for rank %d applied to rank %d", c.rank, a.Rank())
	}
	return engine.Map(c, a)
}

// SmoothingFWHM is the default width of the low-pass filter applied to
// collected uncertainty fields, in elements.
const SmoothingFWHM = 4.0

// Smoothed reduces the ensemble and low-pass filters the uncertainty
// field along the given lateral axes (indices in the reduced array), to
// suppress fluctuations from finite sampling of the error distribution.
func Smoothed(a *grid.Array, axes []int, fwhm float64) (*grid.Array, error) {
	c, err := New(a.Rank())
	if err != nil {
		return nil, err
	}
	u, err := c.Apply(a)
	if err != nil {
		return nil, err
	}
	g, err := filter.NewGaussian(u.Rank(), axes, fwhm)
	if err != nil {
		return nil, err
	}
	return g.Apply(u)
}
