// Package filter provides lateral low-pass filters over chunked arrays,
// used to suppress the statistical fluctuations that finite Monte Carlo
// sampling leaves in collected uncertainty fields.
//
// All filters are NaN-aware and do not propagate missing data: valid
// elements are smoothed over their valid neighbors only, and missing
// elements stay missing.
package filter

import (
	"math"
	"slices"

	"github.com/specklesim/speckle/pkg/cache"
	"github.com/specklesim/speckle/pkg/engine"
	"github.com/specklesim/speckle/pkg/errors"
	"github.com/specklesim/speckle/pkg/grid"
)

// fwhmToSigma converts a full width at half maximum to the standard
// deviation of the Gaussian kernel.
const fwhmToSigma = 1 / 2.35482

// Gaussian smooths the selected axes with a Gaussian kernel.
type Gaussian struct {
	rank    int
	axes    []int
	radius  int
	weights []float64
	fwhm    float64
}

// NewGaussian creates the filter for arrays of the given rank, smoothing
// only the listed axes. fwhm is the full width at half maximum of the
// kernel in elements.
func NewGaussian(rank int, axes []int, fwhm float64) (*Gaussian, error) {
	if err := checkAxes(rank, axes); err != nil {
		return nil, err
	}
	if fwhm < 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "negative filter width %g", fwhm)
	}
	sigma := fwhm * fwhmToSigma
	radius := int(4*sigma + 0.5)
	weights := make([]float64, 2*radius+1)
	sum := 0.0
	for i := range weights {
		d := float64(i - radius)
		if sigma > 0 {
			weights[i] = math.Exp(-d * d / (2 * sigma * sigma))
		} else if i == radius {
			weights[i] = 1
		}
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return &Gaussian{rank: rank, axes: slices.Clone(axes), radius: radius, weights: weights, fwhm: fwhm}, nil
}

func (f *Gaussian) Name() string { return "gaussian_filter" }

func (f *Gaussian) Descriptor() engine.Descriptor {
	return engine.Descriptor{
		Kind:        engine.KindFilter,
		DType:       grid.Float64,
		InRank:      f.rank,
		OutRank:     f.rank,
		Fingerprint: cache.HashParts("gaussian_filter", f.axes, f.fwhm),
	}
}

func (f *Gaussian) ComputeBlock(inputs []*grid.Block, _ []int) (*grid.Block, error) {
	return separable(inputs[0], f.axes, f.weights, f.radius), nil
}

// Depths returns the halo depth required along each axis.
func (f *Gaussian) Depths() []int { return depths(f.rank, f.axes, f.radius) }

// Apply lifts the filter over a whole array.
func (f *Gaussian) Apply(a *grid.Array) (*grid.Array, error) {
	return engine.MapOverlap(f, engine.Overlap{Depths: f.Depths()}, a)
}

// Uniform smooths the selected axes with a moving-average window.
type Uniform struct {
	rank    int
	axes    []int
	radius  int
	weights []float64
	size    int
}

// NewUniform creates the filter with an odd window of the given size.
func NewUniform(rank int, axes []int, size int) (*Uniform, error) {
	if err := checkAxes(rank, axes); err != nil {
		return nil, err
	}
	if size < 1 || size%2 == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "window size %d must be odd and positive", size)
	}
	weights := make([]float64, size)
	for i := range weights {
		weights[i] = 1 / float64(size)
	}
	return &Uniform{rank: rank, axes: slices.Clone(axes), radius: size / 2, weights: weights, size: size}, nil
}

func (f *Uniform) Name() string { return "uniform_filter" }

func (f *Uniform) Descriptor() engine.Descriptor {
	return engine.Descriptor{
		Kind:        engine.KindFilter,
		DType:       grid.Float64,
		InRank:      f.rank,
		OutRank:     f.rank,
		Fingerprint: cache.HashParts("uniform_filter", f.axes, f.size),
	}
}

func (f *Uniform) ComputeBlock(inputs []*grid.Block, _ []int) (*grid.Block, error) {
	return separable(inputs[0], f.axes, f.weights, f.radius), nil
}

// Depths returns the halo depth required along each axis.
func (f *Uniform) Depths() []int { return depths(f.rank, f.axes, f.radius) }

// Apply lifts the filter over a whole array.
func (f *Uniform) Apply(a *grid.Array) (*grid.Array, error) {
	return engine.MapOverlap(f, engine.Overlap{Depths: f.Depths()}, a)
}

// Median replaces each element with the median of the valid elements in
// its window. Unlike the smoothing filters it is not separable; the
// window is the full product over the selected axes.
type Median struct {
	rank   int
	axes   []int
	radius int
	size   int
}

// NewMedian creates the filter with an odd window of the given size.
func NewMedian(rank int, axes []int, size int) (*Median, error) {
	if err := checkAxes(rank, axes); err != nil {
		return nil, err
	}
	if size < 1 || size%2 == 0 {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "window size %d must be odd and positive", size)
	}
	return &Median{rank: rank, axes: slices.Clone(axes), radius: size / 2, size: size}, nil
}

func (f *Median) Name() string { return "median_filter" }

func (f *Median) Descriptor() engine.Descriptor {
	return engine.Descriptor{
		Kind:        engine.KindFilter,
		DType:       grid.Float64,
		InRank:      f.rank,
		OutRank:     f.rank,
		Fingerprint: cache.HashParts("median_filter", f.axes, f.size),
	}
}

func (f *Median) ComputeBlock(inputs []*grid.Block, _ []int) (*grid.Block, error) {
	in := inputs[0]
	out := grid.NewBlock(in.Shape, nil)
	strides := in.Strides()

	offsets := windowOffsets(len(in.Shape), f.axes, f.radius, strides)
	idx := make([]int, len(in.Shape))
	window := make([]float64, 0, len(offsets))
	for pos := range in.Data {
		if math.IsNaN(in.Data[pos]) {
			out.Data[pos] = math.NaN()
			advance(idx, in.Shape)
			continue
		}
		window = window[:0]
		for _, off := range offsets {
			if !inBounds(idx, off.delta, in.Shape) {
				continue
			}
			v := in.Data[pos+off.flat]
			if !math.IsNaN(v) {
				window = append(window, v)
			}
		}
		out.Data[pos] = median(window)
		advance(idx, in.Shape)
	}
	return out, nil
}

// Depths returns the halo depth required along each axis.
func (f *Median) Depths() []int { return depths(f.rank, f.axes, f.radius) }

// Apply lifts the filter over a whole array.
func (f *Median) Apply(a *grid.Array) (*grid.Array, error) {
	return engine.MapOverlap(f, engine.Overlap{Depths: f.Depths()}, a)
}

func checkAxes(rank int, axes []int) error {
	if len(axes) == 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "filter selects no axes")
	}
	for _, ax := range axes {
		if ax < 0 || ax >= rank {
			return errors.New(errors.ErrCodeInvalidConfig, "filter axis %d out of range for rank %d", ax, rank)
		}
	}
	return nil
}

func depths(rank int, axes []int, radius int) []int {
	d := make([]int, rank)
	for _, ax := range axes {
		d[ax] = radius
	}
	return d
}

// separable applies a normalized 1-D kernel along each selected axis,
// with missing data excluded through the value/weight scheme: filter
// v = where(nan, 0, x) and w = where(nan, 0, 1) identically, then
// restore v/w at valid positions and NaN at missing ones.
func separable(in *grid.Block, axes []int, weights []float64, radius int) *grid.Block {
	n := len(in.Data)
	v := make([]float64, n)
	w := make([]float64, n)
	for i, x := range in.Data {
		if math.IsNaN(x) {
			continue
		}
		v[i] = x
		w[i] = 1
	}
	for _, ax := range axes {
		v = conv1d(v, in.Shape, ax, weights, radius)
		w = conv1d(w, in.Shape, ax, weights, radius)
	}

	out := grid.NewBlock(in.Shape, nil)
	for i, x := range in.Data {
		if math.IsNaN(x) || w[i] == 0 {
			out.Data[i] = math.NaN()
			continue
		}
		out.Data[i] = v[i] / w[i]
	}
	return out
}

// conv1d convolves along one axis with zero boundary. Positions within
// radius of the block edge are inexact, but those lie in the halo and
// are trimmed by the engine.
func conv1d(src []float64, shape []int, ax int, weights []float64, radius int) []float64 {
	dst := make([]float64, len(src))
	stride := 1
	for i := len(shape) - 1; i > ax; i-- {
		stride *= shape[i]
	}
	n := shape[ax]
	for base := range src {
		i := (base / stride) % n
		var acc float64
		for k := -radius; k <= radius; k++ {
			j := i + k
			if j < 0 || j >= n {
				continue
			}
			acc += weights[k+radius] * src[base+k*stride]
		}
		dst[base] = acc
	}
	return dst
}

type offset struct {
	delta []int
	flat  int
}

// windowOffsets enumerates the window's relative positions over the
// selected axes, with the flat index delta precomputed.
func windowOffsets(rank int, axes []int, radius int, strides []int) []offset {
	filtered := make(map[int]bool, len(axes))
	for _, ax := range axes {
		filtered[ax] = true
	}
	offsets := []offset{{delta: make([]int, rank)}}
	for ax := 0; ax < rank; ax++ {
		if !filtered[ax] {
			continue
		}
		var next []offset
		for _, o := range offsets {
			for k := -radius; k <= radius; k++ {
				d := slices.Clone(o.delta)
				d[ax] = k
				next = append(next, offset{delta: d, flat: o.flat + k*strides[ax]})
			}
		}
		offsets = next
	}
	return offsets
}

func inBounds(idx, delta, shape []int) bool {
	for i := range idx {
		p := idx[i] + delta[i]
		if p < 0 || p >= shape[i] {
			return false
		}
	}
	return true
}

func advance(idx, shape []int) {
	for k := len(shape) - 1; k >= 0; k-- {
		idx[k]++
		if idx[k] < shape[k] {
			return
		}
		idx[k] = 0
	}
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	slices.Sort(values)
	m := len(values) / 2
	if len(values)%2 == 1 {
		return values[m]
	}
	return (values[m-1] + values[m]) / 2
}
