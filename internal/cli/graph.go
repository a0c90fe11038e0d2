package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/specklesim/speckle/pkg/config"
	"github.com/specklesim/speckle/pkg/errors"
	"github.com/specklesim/speckle/pkg/pipeline"
	"github.com/specklesim/speckle/pkg/task"
)

// newGraphCmd creates the graph command, which renders the simulation
// task graph without materializing any block.
func newGraphCmd() *cobra.Command {
	var (
		cfgPath  string
		variable string
		outPath  string
		detailed bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the simulation task graph as DOT or SVG",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			src, err := buildSource(cfg, nil)
			if err != nil {
				return err
			}

			p := newProgress(logger)
			runner := pipeline.NewRunner(nil, nil, logger)
			u, err := runner.Build(pipeline.Options{Config: cfg, Variable: variable, Source: src})
			if err != nil {
				return err
			}
			p.done("built task graph")

			dot := task.ToDOT(u.Graph(), task.DOTOptions{Detailed: detailed})
			var out []byte
			switch strings.ToLower(filepath.Ext(outPath)) {
			case ".dot", ".gv":
				out = []byte(dot)
			case ".svg":
				spinner := newSpinner(cmd.Context(), "rendering SVG")
				spinner.Start()
				out, err = task.RenderSVG(dot)
				spinner.Stop()
				if err != nil {
					return err
				}
			default:
				return errors.New(errors.ErrCodeUnsupported, "unsupported output format %q", filepath.Ext(outPath))
			}

			if err := os.WriteFile(outPath, out, 0o644); err != nil {
				return err
			}
			printSuccess("Rendered task graph for %s", StyleValue.Render(variable))
			printDetail("%d nodes", u.Graph().NodeCount())
			printFile(outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "speckle.toml", "product configuration file")
	cmd.Flags().StringVar(&variable, "variable", "", "variable whose graph to render")
	cmd.Flags().StringVarP(&outPath, "out", "o", "graph.svg", "output file (.dot, .gv or .svg)")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "include node kinds and dependency counts")
	_ = cmd.MarkFlagRequired("variable")

	return cmd
}
