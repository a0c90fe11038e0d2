package pipeline

import (
	"github.com/specklesim/speckle/pkg/errors"
	"github.com/specklesim/speckle/pkg/grid"
)

// Source provides the packed input arrays of a run by variable name.
type Source interface {
	Array(name string) (*grid.Array, error)
}

// SliceSource serves arrays from in-memory row-major slices, using the
// dataset geometry of the configuration. It backs the CLI's synthetic
// and raw-binary inputs and the tests.
type SliceSource struct {
	Shape  []int
	Chunks []int
	DType  grid.DType
	Data   map[string][]float64
}

// Array returns the named variable as a lazy chunked array.
func (s *SliceSource) Array(name string) (*grid.Array, error) {
	data, ok := s.Data[name]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "variable %q not in source", name)
	}
	return grid.FromSlice(data, s.Shape, s.Chunks, s.DType)
}
