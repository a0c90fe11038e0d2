// Package pipeline runs the staged uncertainty simulation: decode the
// packed inputs, draw an ensemble of randomized realizations, collect
// the standard uncertainty, and optionally pack the result for storage.
package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/specklesim/speckle/pkg/cache"
	"github.com/specklesim/speckle/pkg/codec"
	"github.com/specklesim/speckle/pkg/collect"
	"github.com/specklesim/speckle/pkg/config"
	"github.com/specklesim/speckle/pkg/dist"
	"github.com/specklesim/speckle/pkg/errors"
	"github.com/specklesim/speckle/pkg/exec"
	"github.com/specklesim/speckle/pkg/filter"
	"github.com/specklesim/speckle/pkg/grid"
	"github.com/specklesim/speckle/pkg/randomize"
	"github.com/specklesim/speckle/pkg/seed"
)

// Runner executes simulation runs with caching and logging. It is
// stateless apart from the cache and logger; multiple goroutines can
// share one Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner. A nil cache disables caching, a nil keyer
// selects the default key scheme, a nil logger the default logger.
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{Cache: c, Keyer: keyer, Logger: logger}
}

// Options selects what one run computes.
type Options struct {
	// Config is the validated product configuration.
	Config *config.Config

	// Variable names the variable to simulate; it must be configured.
	Variable string

	// Source provides the packed input arrays.
	Source Source

	// Encode packs the collected uncertainty into the variable's
	// storage type; by default the result stays in physical units.
	Encode bool
}

// Stats are per-stage timings and graph counters of one run.
type Stats struct {
	BuildTime   time.Duration
	ComputeTime time.Duration
	Members     int
	Blocks      int
}

// Result is the outcome of one run.
type Result struct {
	// RunID identifies the run in logs and artifacts.
	RunID string

	Variable string

	// Uncertainty is the materialized standard-uncertainty field.
	Uncertainty *grid.Block

	Stats Stats
}

// Build assembles the lazy uncertainty array for one variable without
// materializing anything.
func (r *Runner) Build(opts Options) (*grid.Array, error) {
	if opts.Config == nil || opts.Source == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "pipeline needs a config and a source")
	}
	vcfg, ok := opts.Config.Variables[opts.Variable]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "variable %q is not configured", opts.Variable)
	}
	return r.build(opts, vcfg)
}

// Execute runs the decode → randomize → collect → encode pipeline and
// materializes the uncertainty field.
func (r *Runner) Execute(ctx context.Context, opts Options) (*Result, error) {
	result := &Result{
		RunID:    uuid.NewString(),
		Variable: opts.Variable,
	}
	logger := r.Logger.With("run", result.RunID, "variable", opts.Variable)

	buildStart := time.Now()
	u, err := r.Build(opts)
	if err != nil {
		return nil, err
	}
	result.Stats.BuildTime = time.Since(buildStart)
	result.Stats.Members = opts.Config.Simulation.Members
	result.Stats.Blocks = u.Graph().NodeCount()
	logger.Info("built simulation graph",
		"members", result.Stats.Members,
		"nodes", result.Stats.Blocks,
		"duration", result.Stats.BuildTime)

	scheduler, err := exec.New(exec.Options{
		Workers: opts.Config.Simulation.Workers,
		Cache:   r.Cache,
		Keyer:   r.Keyer,
		TTL:     opts.Config.Cache.TTL(),
		Decode:  grid.DecodeBlock,
	})
	if err != nil {
		return nil, err
	}

	computeStart := time.Now()
	block, err := u.Compute(ctx, scheduler)
	if err != nil {
		return nil, err
	}
	result.Uncertainty = block
	result.Stats.ComputeTime = time.Since(computeStart)
	logger.Info("materialized uncertainty",
		"elements", block.Len(),
		"duration", result.Stats.ComputeTime)

	return result, nil
}

// build assembles the lazy uncertainty array for one variable.
func (r *Runner) build(opts Options, vcfg config.Variable) (*grid.Array, error) {
	cfg := opts.Config
	params := vcfg.CodecParams()

	x, err := r.decoded(opts.Source, opts.Variable, params)
	if err != nil {
		return nil, err
	}

	// Referenced variables decode with their own packing attributes
	// when they are configured, the identity codec otherwise.
	var uncertainty []*grid.Array
	if vcfg.Uncertainty != "" {
		u, err := r.decoded(opts.Source, vcfg.Uncertainty, paramsFor(cfg, vcfg.Uncertainty))
		if err != nil {
			return nil, err
		}
		uncertainty = []*grid.Array{u}
	} else {
		rmsd, err := r.decoded(opts.Source, vcfg.Rmsd, paramsFor(cfg, vcfg.Rmsd))
		if err != nil {
			return nil, err
		}
		bias, err := r.decoded(opts.Source, vcfg.Bias, paramsFor(cfg, vcfg.Bias))
		if err != nil {
			return nil, err
		}
		uncertainty = []*grid.Array{rmsd, bias}
	}

	identity := seed.Identity{
		Variable:   opts.Variable,
		Dataset:    seed.DatasetID(cfg.Dataset.TrackingID, cfg.Dataset.Source),
		Antithetic: cfg.Simulation.Antithetic,
	}

	// Member 0 is the unperturbed reference; members 1..N are drawn.
	members := []*grid.Array{x}
	for k := 1; k <= cfg.Simulation.Members; k++ {
		identity.Selector = k
		rz, err := randomize.New(randomize.Config{
			Distribution: dist.Kind(vcfg.Distribution),
			Identity:     identity,
			Options:      vcfg.Options(),
		}, x.Rank())
		if err != nil {
			return nil, err
		}
		y, err := rz.ApplyTo(append([]*grid.Array{x}, uncertainty...)...)
		if err != nil {
			return nil, err
		}
		members = append(members, y)
	}

	ensemble, err := grid.Stack("ensemble", members)
	if err != nil {
		return nil, err
	}

	c, err := collect.New(ensemble.Rank())
	if err != nil {
		return nil, err
	}
	u, err := c.Apply(ensemble)
	if err != nil {
		return nil, err
	}

	if cfg.Simulation.Smooth {
		fwhm := cfg.Simulation.FWHM
		if fwhm == 0 {
			fwhm = collect.SmoothingFWHM
		}
		// Smooth the trailing two axes, the lateral plane by convention.
		axes := []int{u.Rank() - 2, u.Rank() - 1}
		if u.Rank() == 1 {
			axes = []int{0}
		}
		g, err := filter.NewGaussian(u.Rank(), axes, fwhm)
		if err != nil {
			return nil, err
		}
		u, err = g.Apply(u)
		if err != nil {
			return nil, err
		}
	}

	if opts.Encode {
		return codec.Encode(u, params, vcfg.StorageType())
	}
	return u, nil
}

func paramsFor(cfg *config.Config, name string) codec.Params {
	if v, ok := cfg.Variables[name]; ok {
		return v.CodecParams()
	}
	return codec.Params{}
}

// decoded loads one packed variable and decodes it to physical values.
func (r *Runner) decoded(src Source, name string, params codec.Params) (*grid.Array, error) {
	a, err := src.Array(name)
	if err != nil {
		return nil, err
	}
	return codec.Decode(a, params)
}

// OpenCache builds the configured cache backend. Backends that need a
// connection are probed once; failures surface here, not mid-run.
func OpenCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Backend {
	case "", "none":
		return cache.NewNullCache(), nil
	case "memory":
		return cache.NewMemoryCache(), nil
	case "file":
		return cache.NewFileCache(cfg.Dir)
	case "redis":
		return cache.NewRedisCache(ctx, cache.RedisOptions{Addr: cfg.Addr})
	case "mongo":
		return cache.NewMongoCache(ctx, cache.MongoOptions{URI: cfg.URI})
	}
	return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown cache backend %q", cfg.Backend)
}
