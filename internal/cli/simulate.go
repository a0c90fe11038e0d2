package cli

import (
	"encoding/binary"
	"fmt"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/specklesim/speckle/pkg/config"
	"github.com/specklesim/speckle/pkg/errors"
	"github.com/specklesim/speckle/pkg/grid"
	"github.com/specklesim/speckle/pkg/pipeline"
	"github.com/specklesim/speckle/pkg/rng"
	"github.com/specklesim/speckle/pkg/seed"
)

// newSimulateCmd creates the simulate command.
func newSimulateCmd() *cobra.Command {
	var (
		cfgPath    string
		variable   string
		dataFlags  []string
		outDir     string
		encode     bool
		noProgress bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the uncertainty simulation for configured variables",
		Long: `Simulate runs the Monte Carlo uncertainty pipeline: decode the inputs,
draw an ensemble of randomized realizations, and collect the standard
uncertainty of each configured variable.

Input variables are read from raw little-endian float64 files given via
--data name=path; variables without a file get a deterministic synthetic
field, so the command works without any dataset at hand.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			blockCache, err := pipeline.OpenCache(ctx, cfg.Cache)
			if err != nil {
				return err
			}
			defer blockCache.Close()

			src, err := buildSource(cfg, dataFlags)
			if err != nil {
				return err
			}
			runner := pipeline.NewRunner(blockCache, nil, logger)

			names := []string{variable}
			if variable == "" {
				names = slices.Sorted(maps.Keys(cfg.Variables))
			}
			for _, name := range names {
				opts := pipeline.Options{Config: cfg, Variable: name, Source: src, Encode: encode}

				var result *pipeline.Result
				run := func() error {
					r, err := runner.Execute(ctx, opts)
					result = r
					return err
				}
				if noProgress {
					err = run()
				} else {
					err = withBlockProgress("materializing "+name, run)
				}
				if err != nil {
					printError("Simulation of %q failed: %s", name, errors.UserMessage(err))
					return err
				}

				printSuccess("Simulated %s", StyleValue.Render(name))
				printStats(result.Stats.Members, result.Stats.Blocks, false)
				printDetail("run %s · build %s · compute %s",
					result.RunID,
					result.Stats.BuildTime.Round(time.Millisecond),
					result.Stats.ComputeTime.Round(time.Millisecond))

				if outDir != "" {
					path := filepath.Join(outDir, name+"_unc.raw")
					if err := writeRaw(path, result.Uncertainty.Data); err != nil {
						return err
					}
					printFile(path)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "speckle.toml", "product configuration file")
	cmd.Flags().StringVar(&variable, "variable", "", "simulate a single variable (default: all configured)")
	cmd.Flags().StringArrayVar(&dataFlags, "data", nil, "raw input file as name=path (little-endian float64)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory for raw uncertainty output")
	cmd.Flags().BoolVar(&encode, "encode", false, "pack the uncertainty into the variable's storage type")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "disable the progress display")

	return cmd
}

// buildSource assembles the run's input source: raw files where given,
// deterministic synthetic fields elsewhere.
func buildSource(cfg *config.Config, dataFlags []string) (pipeline.Source, error) {
	volume := grid.Volume(cfg.Dataset.Shape)
	data := make(map[string][]float64)

	for _, flag := range dataFlags {
		name, path, ok := strings.Cut(flag, "=")
		if !ok {
			return nil, errors.New(errors.ErrCodeInvalidConfig, "malformed --data %q, want name=path", flag)
		}
		values, err := readRaw(path, volume)
		if err != nil {
			return nil, err
		}
		data[name] = values
	}

	for name, v := range cfg.Variables {
		for _, ref := range []string{name, v.Uncertainty, v.Rmsd, v.Bias} {
			if ref == "" {
				continue
			}
			if _, ok := data[ref]; !ok {
				data[ref] = syntheticField(ref, volume)
			}
		}
	}

	return &pipeline.SliceSource{
		Shape:  cfg.Dataset.Shape,
		Chunks: cfg.Dataset.Chunks,
		DType:  grid.Float64,
		Data:   data,
	}, nil
}

// syntheticField generates a reproducible positive test field for one
// variable name.
func syntheticField(name string, n int) []float64 {
	id := seed.Identity{Variable: name, Dataset: "synthetic"}
	g := rng.New(id.RootEntropy()...)
	data := make([]float64, n)
	for i := range data {
		data[i] = math.Exp(0.1 * g.NormFloat64())
	}
	return data
}

// readRaw reads a raw little-endian float64 grid and checks its volume.
func readRaw(path string, volume int) ([]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "reading %s", path)
	}
	if len(raw) != 8*volume {
		return nil, errors.New(errors.ErrCodeInvalidConfig,
			"%s holds %d bytes, dataset shape needs %d", path, len(raw), 8*volume)
	}
	data := make([]float64, volume)
	for i := range data {
		data[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return data, nil
}

// writeRaw writes a raw little-endian float64 grid.
func writeRaw(path string, data []float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	buf := make([]byte, 0, 8*len(data))
	for _, v := range data {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return os.WriteFile(path, buf, 0o644)
}
