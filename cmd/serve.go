package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/internal/generate"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/pipeline"
	"github.com/sells-group/prospector/internal/research"
	"github.com/sells-group/prospector/internal/store"
)

const (
	actorHeader     = "X-Actor"
	defaultActor    = "anonymous"
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 30 * time.Second
)

type researcher interface {
	Run(ctx context.Context, subject, actor string) (*research.Outcome, error)
}

type pipelineRunner interface {
	Start(ctx context.Context, actor string, cfg pipeline.Config) (*model.PipelineRun, *pipeline.Task, error)
	Status(ctx context.Context, id string) (*model.PipelineRun, error)
	Results(ctx context.Context, id string) (*model.PipelineResult, error)
	List(ctx context.Context, filter store.PipelineFilter) ([]model.PipelineRun, error)
}

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for research and pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(config.ModeServe); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		orch, err := initResearch(st)
		if err != nil {
			return err
		}
		runner, err := initRunner(st, orch)
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(orch, runner, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			zap.L().Info("shutting down server")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Error("server shutdown", zap.Error(err))
			}
			if err := runner.Drain(shutdownCtx); err != nil {
				zap.L().Warn("pipeline runs still in flight at shutdown", zap.Error(err))
			}
			return nil
		})

		return g.Wait()
	},
}

type server struct {
	research researcher
	runner   pipelineRunner
	validate *validator.Validate
}

// buildRouter returns the HTTP handler for the API.
func buildRouter(res researcher, runner pipelineRunner, origins []string) http.Handler {
	s := &server{research: res, runner: runner, validate: validator.New()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", actorHeader},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/research", s.handleResearch)
	r.Route("/pipelines", func(r chi.Router) {
		r.Post("/", s.handleStartPipeline)
		r.Get("/", s.handleListPipelines)
		r.Get("/{id}", s.handlePipelineStatus)
		r.Get("/{id}/results", s.handlePipelineResults)
	})
	return r
}

type researchRequest struct {
	URL string `json:"url" validate:"required,url"`
}

func (s *server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, badRequest(err))
		return
	}

	out, err := s.research.Run(r.Context(), req.URL, actor(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, researchView(out))
}

func (s *server) handleStartPipeline(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Config
	if err := decode(w, r, &req); err != nil {
		respondError(w, err)
		return
	}

	run, _, err := s.runner.Start(r.Context(), actor(r), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusAccepted, map[string]string{
		"id":     run.ID,
		"status": string(run.Status),
	})
}

func (s *server) handlePipelineStatus(w http.ResponseWriter, r *http.Request) {
	run, err := s.runner.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, statusView(run))
}

func (s *server) handlePipelineResults(w http.ResponseWriter, r *http.Request) {
	res, err := s.runner.Results(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, res)
}

func (s *server) handleListPipelines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.PipelineFilter{
		Status: model.PipelineStatus(q.Get("status")),
		Actor:  q.Get("actor"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, badRequest(eris.Errorf("invalid limit %q", v)))
			return
		}
		filter.Limit = n
	}

	runs, err := s.runner.List(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]pipelineStatus, 0, len(runs))
	for i := range runs {
		out = append(out, statusView(&runs[i]))
	}
	respond(w, http.StatusOK, out)
}

func actor(r *http.Request) string {
	if a := r.Header.Get(actorHeader); a != "" {
		return a
	}
	return defaultActor
}

// requestError is a client error that maps to 400.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return &requestError{err: err} }

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest(eris.Wrap(err, "invalid request body"))
	}
	return nil
}

// errorStatus maps an error to its HTTP status.
func errorStatus(err error) int {
	var (
		reqErr      *requestError
		invalidErr  *pipeline.InvalidConfigError
		cfgErr      *config.ConfigurationError
		upstreamErr *generate.UpstreamCallError
		parseErr    *generate.ParseError
	)
	switch {
	case errors.As(err, &reqErr), errors.As(err, &invalidErr):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &cfgErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &upstreamErr), errors.As(err, &parseErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	respond(w, status, map[string]string{"error": err.Error()})
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
