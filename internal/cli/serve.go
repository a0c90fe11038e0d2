package cli

import (
	"encoding/json"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/specklesim/speckle/pkg/buildinfo"
	"github.com/specklesim/speckle/pkg/config"
	"github.com/specklesim/speckle/pkg/errors"
	"github.com/specklesim/speckle/pkg/pipeline"
	"github.com/specklesim/speckle/pkg/task"
)

// newServeCmd creates the serve command, a small HTTP surface exposing
// run summaries and rendered task graphs.
func newServeCmd() *cobra.Command {
	var (
		cfgPath string
		addr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve run summaries and task graphs over HTTP",
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

			src, err := buildSource(cfg, nil)
			if err != nil {
				return err
			}
			runner := pipeline.NewRunner(blockCache, nil, logger)
			s := &server{cfg: cfg, src: src, runner: runner}

			r := chi.NewRouter()
			r.Use(middleware.RequestID)
			r.Use(middleware.Recoverer)
			r.Get("/healthz", s.health)
			r.Get("/version", s.version)
			r.Get("/variables", s.variables)
			r.Post("/runs/{variable}", s.run)
			r.Get("/graphs/{variable}.svg", s.graph)

			srv := &http.Server{
				Addr:              addr,
				Handler:           r,
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				<-ctx.Done()
				_ = srv.Close()
			}()

			printInfo("Listening on %s", StyleValue.Render(addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "speckle.toml", "product configuration file")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")

	return cmd
}

type server struct {
	cfg    *config.Config
	src    pipeline.Source
	runner *pipeline.Runner
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *server) version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": buildinfo.Version,
		"commit":  buildinfo.Commit,
		"built":   buildinfo.Date,
	})
}

func (s *server) variables(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, slices.Sorted(maps.Keys(s.cfg.Variables)))
}

// run executes one simulation and returns its summary. The uncertainty
// data itself is not part of the response; runs on served datasets are
// summaries, not downloads.
func (s *server) run(w http.ResponseWriter, r *http.Request) {
	variable := chi.URLParam(r, "variable")
	result, err := s.runner.Execute(r.Context(), pipeline.Options{
		Config:   s.cfg,
		Variable: variable,
		Source:   s.src,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run":        result.RunID,
		"variable":   result.Variable,
		"members":    result.Stats.Members,
		"blocks":     result.Stats.Blocks,
		"build_ms":   result.Stats.BuildTime.Milliseconds(),
		"compute_ms": result.Stats.ComputeTime.Milliseconds(),
		"elements":   result.Uncertainty.Len(),
	})
}

func (s *server) graph(w http.ResponseWriter, r *http.Request) {
	variable := chi.URLParam(r, "variable")
	u, err := s.runner.Build(pipeline.Options{Config: s.cfg, Variable: variable, Source: s.src})
	if err != nil {
		writeError(w, err)
		return
	}
	svg, err := task.RenderSVG(task.ToDOT(u.Graph(), task.DOTOptions{}))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = w.Write(svg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrCodeNotFound):
		status = http.StatusNotFound
	case errors.IsConfiguration(err):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{
		"code":  string(errors.GetCode(err)),
		"error": errors.UserMessage(err),
	})
}
