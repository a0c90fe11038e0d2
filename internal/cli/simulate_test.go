package cli

import (
	"math"
	"path/filepath"
	"slices"
	"testing"

	"github.com/specklesim/speckle/pkg/config"
	"github.com/specklesim/speckle/pkg/errors"
)

func TestRawRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "field.raw")
	data := []float64{0, 1.5, -2.25, math.Inf(1)}

	if err := writeRaw(path, data); err != nil {
		t.Fatalf("writeRaw: %v", err)
	}
	got, err := readRaw(path, len(data))
	if err != nil {
		t.Fatalf("readRaw: %v", err)
	}
	if !slices.Equal(got, data) {
		t.Fatalf("round trip %v, want %v", got, data)
	}
}

func TestReadRawVolumeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "field.raw")
	if err := writeRaw(path, []float64{1, 2, 3}); err != nil {
		t.Fatalf("writeRaw: %v", err)
	}
	_, err := readRaw(path, 4)
	if !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
}

func TestReadRawMissingFile(t *testing.T) {
	_, err := readRaw(filepath.Join(t.TempDir(), "nope.raw"), 4)
	if !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Fatalf("expected FILE_NOT_FOUND, got %v", err)
	}
}

func TestSyntheticFieldDeterministic(t *testing.T) {
	a := syntheticField("chlor_a", 100)
	b := syntheticField("chlor_a", 100)
	if !slices.Equal(a, b) {
		t.Fatal("synthetic fields must be reproducible")
	}
	c := syntheticField("sst", 100)
	if slices.Equal(a, c) {
		t.Fatal("different variables must get different fields")
	}
	for i, v := range a {
		if v <= 0 {
			t.Fatalf("element %d = %v, want positive", i, v)
		}
	}
}

func TestBuildSource(t *testing.T) {
	cfg := &config.Config{
		Dataset: config.Dataset{Shape: []int{4, 4}, Chunks: []int{2, 2}},
		Variables: map[string]config.Variable{
			"sst": {Distribution: "normal", Uncertainty: "sst_unc"},
		},
	}

	raw := filepath.Join(t.TempDir(), "sst.raw")
	field := make([]float64, 16)
	for i := range field {
		field[i] = float64(i)
	}
	if err := writeRaw(raw, field); err != nil {
		t.Fatalf("writeRaw: %v", err)
	}

	src, err := buildSource(cfg, []string{"sst=" + raw})
	if err != nil {
		t.Fatalf("buildSource: %v", err)
	}

	// The explicit file backs sst; the referenced uncertainty variable
	// gets a synthetic field.
	for _, name := range []string{"sst", "sst_unc"} {
		if _, err := src.Array(name); err != nil {
			t.Fatalf("Array(%q): %v", name, err)
		}
	}
}

func TestBuildSourceMalformedFlag(t *testing.T) {
	cfg := &config.Config{
		Dataset: config.Dataset{Shape: []int{2}, Chunks: []int{2}},
	}
	_, err := buildSource(cfg, []string{"missing-equals"})
	if !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
}
