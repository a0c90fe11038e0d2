// Package config loads and validates product configurations: the
// dataset geometry, the simulation settings and the per-variable
// randomization attributes, in TOML form.
//
// Configuration failures are fail-fast: a config that passes Validate
// will not cause a configuration error later, after blocks have started
// computing.
package config

import (
	"time"

	"github.com/BurntSushi/toml"

	"github.com/specklesim/speckle/pkg/codec"
	"github.com/specklesim/speckle/pkg/dist"
	"github.com/specklesim/speckle/pkg/errors"
	"github.com/specklesim/speckle/pkg/grid"
)

// Config is one product configuration.
type Config struct {
	Dataset    Dataset             `toml:"dataset"`
	Simulation Simulation          `toml:"simulation"`
	Cache      CacheConfig         `toml:"cache"`
	Variables  map[string]Variable `toml:"variables"`
}

// Dataset describes the source dataset and its chunked geometry.
type Dataset struct {
	Name       string `toml:"name"`
	Source     string `toml:"source"`
	TrackingID string `toml:"tracking_id"`
	Shape      []int  `toml:"shape"`
	Chunks     []int  `toml:"chunks"`
}

// Simulation holds the ensemble settings.
type Simulation struct {
	// Members is the number of perturbed ensemble members.
	Members int `toml:"members"`

	// Antithetic pairs consecutive members on negated draws.
	Antithetic bool `toml:"antithetic"`

	// Smooth low-pass filters collected uncertainty fields.
	Smooth bool `toml:"smooth"`

	// FWHM is the smoothing filter width in elements; 0 means the
	// default.
	FWHM float64 `toml:"fwhm"`

	// Workers bounds scheduler parallelism; 0 means sequential.
	Workers int `toml:"workers"`
}

// CacheConfig selects the block cache backend.
type CacheConfig struct {
	// Backend is one of "none", "memory", "file", "redis", "mongo".
	Backend string `toml:"backend"`
	Dir     string `toml:"dir"`
	Addr    string `toml:"addr"`
	URI     string `toml:"uri"`

	// TTLMinutes is the cache entry lifetime; 0 means no expiry.
	TTLMinutes int `toml:"ttl_minutes"`
}

// TTL returns the configured entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// Variable configures the randomization of one variable.
type Variable struct {
	// Distribution names the sampler; unrecognized names degrade to a
	// no-op at sampling time.
	Distribution string `toml:"distribution"`

	// Uncertainty references the uncertainty variable, or Rmsd and Bias
	// reference the root-mean-square deviation and bias variables.
	Uncertainty string `toml:"uncertainty"`
	Rmsd        string `toml:"rmsd"`
	Bias        string `toml:"bias"`

	// Coverage is the coverage factor k; 0 means 1.
	Coverage float64 `toml:"coverage"`

	// Relative marks the uncertainty as relative to the value.
	Relative bool `toml:"relative"`

	// Clip is empty or [lo, hi].
	Clip []float64 `toml:"clip"`

	// DType is the on-disk storage element type, e.g. "int16".
	DType string `toml:"dtype"`

	Codec CodecAttrs `toml:"codec"`
}

// CodecAttrs are the CF packing attributes of a variable.
type CodecAttrs struct {
	AddOffset   *float64 `toml:"add_offset"`
	ScaleFactor *float64 `toml:"scale_factor"`
	FillValue   *float64 `toml:"fill_value"`
	ValidMin    *float64 `toml:"valid_min"`
	ValidMax    *float64 `toml:"valid_max"`
}

// Load reads and validates a product configuration file.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "reading config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if len(c.Dataset.Shape) == 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "dataset shape is empty")
	}
	if len(c.Dataset.Chunks) != len(c.Dataset.Shape) {
		return errors.New(errors.ErrCodeInvalidChunks,
			"chunk rank %d does not match shape rank %d", len(c.Dataset.Chunks), len(c.Dataset.Shape))
	}
	for i, s := range c.Dataset.Shape {
		if s < 1 {
			return errors.New(errors.ErrCodeInvalidConfig, "shape length %d on axis %d", s, i)
		}
		if c.Dataset.Chunks[i] < 1 {
			return errors.New(errors.ErrCodeInvalidChunks, "chunk length %d on axis %d", c.Dataset.Chunks[i], i)
		}
	}
	if c.Simulation.Members < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "simulation needs at least one member, got %d", c.Simulation.Members)
	}
	if c.Simulation.FWHM < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "negative smoothing width %g", c.Simulation.FWHM)
	}
	switch c.Cache.Backend {
	case "", "none", "memory", "file", "redis", "mongo":
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown cache backend %q", c.Cache.Backend)
	}
	for name, v := range c.Variables {
		if err := v.validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (v Variable) validate(name string) error {
	if v.Uncertainty != "" && (v.Rmsd != "" || v.Bias != "") {
		return errors.New(errors.ErrCodeInvalidConfig,
			"variable %q declares both uncertainty and rmsd/bias", name)
	}
	if (v.Rmsd == "") != (v.Bias == "") {
		return errors.New(errors.ErrCodeInvalidConfig,
			"variable %q must declare rmsd and bias together", name)
	}
	if len(v.Clip) != 0 && len(v.Clip) != 2 {
		return errors.New(errors.ErrCodeInvalidConfig,
			"variable %q clip must be [lo, hi], got %d values", name, len(v.Clip))
	}
	if v.DType != "" {
		if _, err := grid.ParseDType(v.DType); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "variable %q", name)
		}
	}
	if err := v.Options().Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidDistribution, err, "variable %q", name)
	}
	if err := v.CodecParams().Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidCodec, err, "variable %q", name)
	}
	return nil
}

// Options converts the variable's sampling attributes.
func (v Variable) Options() dist.Options {
	o := dist.Options{Coverage: v.Coverage, Relative: v.Relative}
	if len(v.Clip) == 2 {
		lo, hi := v.Clip[0], v.Clip[1]
		o.ClipLo, o.ClipHi = &lo, &hi
	}
	return o
}

// CodecParams converts the variable's packing attributes.
func (v Variable) CodecParams() codec.Params {
	return codec.Params{
		AddOffset:   v.Codec.AddOffset,
		ScaleFactor: v.Codec.ScaleFactor,
		FillValue:   v.Codec.FillValue,
		ValidMin:    v.Codec.ValidMin,
		ValidMax:    v.Codec.ValidMax,
	}
}

// StorageType returns the declared on-disk element type, defaulting to
// float32.
func (v Variable) StorageType() grid.DType {
	if v.DType == "" {
		return grid.Float32
	}
	t, _ := grid.ParseDType(v.DType)
	return t
}
