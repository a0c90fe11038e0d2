package grid

import (
	"math"

	"github.com/specklesim/speckle/pkg/errors"
)

// DType is the logical element type of an array. Block payloads are always
// float64 buffers; the DType declares how values are cast when a block is
// finalized and which sentinel represents missing data.
type DType int

const (
	Float64 DType = iota
	Float32
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
)

var dtypeNames = map[DType]string{
	Float64: "float64",
	Float32: "float32",
	Int8:    "int8",
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
	Uint8:   "uint8",
	Uint16:  "uint16",
	Uint32:  "uint32",
	Uint64:  "uint64",
}

// String returns the canonical lower-case type name.
func (t DType) String() string {
	if s, ok := dtypeNames[t]; ok {
		return s
	}
	return "invalid"
}

// ParseDType converts a canonical type name to a DType.
func ParseDType(s string) (DType, error) {
	for t, name := range dtypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, errors.New(errors.ErrCodeInvalidConfig, "unknown element type %q", s)
}

// IsFloat reports whether the type is a floating-point type.
func (t DType) IsFloat() bool { return t == Float32 || t == Float64 }

// IsSigned reports whether the type is a signed integer type.
func (t DType) IsSigned() bool {
	switch t {
	case Int8, Int16, Int32, Int64:
		return true
	}
	return false
}

// Min returns the smallest representable value of the type.
func (t DType) Min() float64 {
	switch t {
	case Int8:
		return math.MinInt8
	case Int16:
		return math.MinInt16
	case Int32:
		return math.MinInt32
	case Int64:
		return math.MinInt64
	case Uint8, Uint16, Uint32, Uint64:
		return 0
	case Float32:
		return -math.MaxFloat32
	}
	return -math.MaxFloat64
}

// Max returns the largest representable value of the type.
func (t DType) Max() float64 {
	switch t {
	case Int8:
		return math.MaxInt8
	case Int16:
		return math.MaxInt16
	case Int32:
		return math.MaxInt32
	case Int64:
		return math.MaxInt64
	case Uint8:
		return math.MaxUint8
	case Uint16:
		return math.MaxUint16
	case Uint32:
		return math.MaxUint32
	case Uint64:
		return math.MaxUint64
	case Float32:
		return math.MaxFloat32
	}
	return math.MaxFloat64
}

// NoData returns the sentinel that stands in for missing data: IEEE NaN
// for floating types, and for signed integer types the most negative
// representable value short of the true minimum (the true minimum stays
// available as an ordinary value). Unsigned types use the maximum
// representable value.
func (t DType) NoData() float64 {
	switch t {
	case Int8:
		return -127
	case Int16:
		return -32767
	case Int32:
		return -2147483647
	case Int64:
		return -9223372036854775807
	case Uint8, Uint16, Uint32, Uint64:
		return t.Max()
	}
	return math.NaN()
}

// Cast converts a working float64 value to the declared type, mirroring a
// numpy astype: float32 round-trips through single precision, integer
// types truncate toward zero and saturate at the representable range.
// NaN has no integer representation and becomes the NoData sentinel.
func (t DType) Cast(v float64) float64 {
	switch t {
	case Float64:
		return v
	case Float32:
		return float64(float32(v))
	}
	if math.IsNaN(v) {
		return t.NoData()
	}
	v = math.Trunc(v)
	if v < t.Min() {
		return t.Min()
	}
	if v > t.Max() {
		return t.Max()
	}
	return v
}
