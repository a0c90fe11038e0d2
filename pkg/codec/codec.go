// Package codec converts between the compact on-disk representation of a
// variable and physical floating-point values, following the CF packing
// conventions (add_offset, scale_factor, _FillValue, valid range).
//
// Decoding and encoding are exact inverses only for values strictly
// inside the valid range and distinct from the fill sentinel. The codec
// exists because distribution parameters are physically meaningful only
// in decoded units: randomizing packed integers would be nonsense.
package codec

import (
	"math"

	"github.com/specklesim/speckle/pkg/errors"
)

// Params are the packing attributes of one variable. Every field is
// independently optional; a zero Params is the identity codec.
type Params struct {
	AddOffset   *float64 `json:"add_offset,omitempty"`
	ScaleFactor *float64 `json:"scale_factor,omitempty"`
	FillValue   *float64 `json:"fill_value,omitempty"`
	ValidMin    *float64 `json:"valid_min,omitempty"`
	ValidMax    *float64 `json:"valid_max,omitempty"`
}

// IsIdentity reports whether decode and encode pass values through
// unchanged.
func (p Params) IsIdentity() bool {
	return p.AddOffset == nil && p.ScaleFactor == nil && p.FillValue == nil &&
		p.ValidMin == nil && p.ValidMax == nil
}

// Validate rejects parameter combinations that cannot round-trip.
// Failures are configuration errors and surface before any block runs.
func (p Params) Validate() error {
	if p.ScaleFactor != nil && *p.ScaleFactor == 0 {
		return errors.New(errors.ErrCodeInvalidCodec, "scale_factor must not be zero")
	}
	if p.ValidMin != nil && p.ValidMax != nil && *p.ValidMin > *p.ValidMax {
		return errors.New(errors.ErrCodeInvalidCodec,
			"valid range [%g, %g] is empty", *p.ValidMin, *p.ValidMax)
	}
	return nil
}

func (p Params) scale() float64 {
	if p.ScaleFactor != nil {
		return *p.ScaleFactor
	}
	return 1
}

func (p Params) offset() float64 {
	if p.AddOffset != nil {
		return *p.AddOffset
	}
	return 0
}

// DecodeSlice converts packed values to physical values in place: fill
// and out-of-range elements become NaN, everything else is scaled. NaN
// elements are never scaled.
func (p Params) DecodeSlice(data []float64) {
	scale, offset := p.scale(), p.offset()
	for i, v := range data {
		if math.IsNaN(v) || p.invalid(v) {
			data[i] = math.NaN()
			continue
		}
		data[i] = v*scale + offset
	}
}

// EncodeSlice converts physical values back to the packed representation
// in place: the inverse affine transform, clipped to the valid range,
// with NaN positions overwritten by the fill value.
func (p Params) EncodeSlice(data []float64) {
	scale, offset := p.scale(), p.offset()
	for i, v := range data {
		if math.IsNaN(v) {
			if p.FillValue != nil {
				data[i] = *p.FillValue
			}
			continue
		}
		y := (v - offset) / scale
		if p.ValidMin != nil && y < *p.ValidMin {
			y = *p.ValidMin
		}
		if p.ValidMax != nil && y > *p.ValidMax {
			y = *p.ValidMax
		}
		data[i] = y
	}
}

// invalid reports whether a packed value is missing: equal to the fill
// sentinel or outside the valid range.
func (p Params) invalid(v float64) bool {
	if p.FillValue != nil && v == *p.FillValue {
		return true
	}
	if p.ValidMin != nil && v < *p.ValidMin {
		return true
	}
	if p.ValidMax != nil && v > *p.ValidMax {
		return true
	}
	return false
}
