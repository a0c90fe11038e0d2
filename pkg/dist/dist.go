// Package dist implements the statistical samplers that turn a mean and
// an uncertainty into one measurement-error realization.
//
// All samplers are pure: output depends only on the inputs and the seed
// words. Missing data is preserved, never created; any element that
// comes out non-finite is restored to its input mean.
package dist

import (
	"math"

	"github.com/specklesim/speckle/pkg/errors"
	"github.com/specklesim/speckle/pkg/rng"
)

// Kind selects a sampler.
type Kind string

const (
	// Normal draws y = x + u·z with z standard normal.
	Normal Kind = "normal"

	// Lognormal draws multiplicative errors with mean x and standard
	// deviation u; it requires x > 0.
	Lognormal Kind = "lognormal"

	// Chlorophyll converts a relative log10 uncertainty to an absolute
	// one, then samples lognormally. Ocean-color domain convention.
	Chlorophyll Kind = "chlorophyll"
)

// Options configures how uncertainties are interpreted and how results
// are bounded.
type Options struct {
	// Coverage is the coverage factor k: u is divided by k before use,
	// converting a k-sigma interval to 1-sigma. Zero means 1.
	Coverage float64

	// Relative marks u as relative; it is multiplied by x before use.
	Relative bool

	// ClipLo and ClipHi bound the result; either may be absent.
	ClipLo *float64
	ClipHi *float64
}

// Validate rejects options no sampler can honor.
func (o Options) Validate() error {
	if o.Coverage < 0 {
		return errors.New(errors.ErrCodeInvalidDistribution, "negative coverage factor %g", o.Coverage)
	}
	if o.ClipLo != nil && o.ClipHi != nil && *o.ClipLo > *o.ClipHi {
		return errors.New(errors.ErrCodeInvalidDistribution,
			"clip interval [%g, %g] is empty", *o.ClipLo, *o.ClipHi)
	}
	return nil
}

// Sample draws one realization per element of x into a new slice. The
// generator g carries the block seed; negate flips every raw draw for
// antithetic pairing. An unrecognized kind is a deliberate no-op that
// returns a copy of x, so that configurations written for newer samplers
// degrade to the unperturbed value instead of failing.
func Sample(kind Kind, g *rng.Philox, negate bool, x, u []float64, opts Options) []float64 {
	y := make([]float64, len(x))

	var sampler func(x, u, z float64) float64
	switch kind {
	case Normal:
		sampler = sampleNormal
	case Lognormal:
		sampler = sampleLognormal
	case Chlorophyll:
		sampler = sampleChlorophyll
	default:
		copy(y, x)
		return y
	}

	z := make([]float64, len(x))
	for i := range z {
		z[i] = g.NormFloat64()
	}
	rng.ConditionalNegate(z, negate)

	k := opts.Coverage
	if k == 0 {
		k = 1
	}
	for i := range x {
		ui := u[i] / k
		if opts.Relative {
			ui *= x[i]
		}
		y[i] = sampler(x[i], ui, z[i])
	}

	finish(y, x, opts)
	return y
}

func sampleNormal(x, u, z float64) float64 {
	return x + u*z
}

func sampleLognormal(x, u, z float64) float64 {
	// Moment matching: the result has mean x and standard deviation u.
	// Non-positive x makes the logarithm non-finite; finish restores x.
	r := u / x
	v := math.Log(1 + r*r)
	m := math.Log(x) - 0.5*v
	return math.Exp(m + math.Sqrt(v)*z)
}

func sampleChlorophyll(x, u, z float64) float64 {
	// u is a relative log10 uncertainty; convert to the absolute
	// uncertainty of the corresponding lognormal variable.
	lu := math.Ln10 * u
	ua := x * math.Sqrt(math.Exp(lu*lu)-1)
	return sampleLognormal(x, ua, z)
}

// finish applies the clip interval and restores the input mean wherever
// the result is non-finite: randomization never introduces new missing
// data.
func finish(y, x []float64, opts Options) {
	for i := range y {
		if opts.ClipLo != nil && y[i] < *opts.ClipLo {
			y[i] = *opts.ClipLo
		}
		if opts.ClipHi != nil && y[i] > *opts.ClipHi {
			y[i] = *opts.ClipHi
		}
		if !isFinite(y[i]) {
			y[i] = x[i]
		}
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
