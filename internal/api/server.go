// Package api serves the read-only HTTP view of a running daemon.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/intake/internal/events"
	"github.com/mattjoyce/intake/internal/journal"
	"github.com/mattjoyce/intake/internal/monitor"
	"github.com/mattjoyce/intake/internal/outcome"
	"github.com/mattjoyce/intake/internal/scheduler"
)

// OutcomeStore answers outcome history queries.
type OutcomeStore interface {
	Recent(ctx context.Context, q journal.Query) ([]outcome.Record, error)
}

// JobLister reports scheduler state.
type JobLister interface {
	Jobs() []scheduler.JobStatus
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the bearer token. Empty disables authentication.
	APIKey string
}

// Deps are the daemon parts the API reads from. Nil fields disable their
// routes.
type Deps struct {
	Monitors []monitor.Inspector
	Outcomes OutcomeStore
	Jobs     JobLister
	Events   *events.Hub
	Metrics  http.Handler
}

// Server is the HTTP API server.
type Server struct {
	config    Config
	deps      Deps
	monitors  map[string]monitor.Inspector
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

func New(config Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]monitor.Inspector, len(deps.Monitors))
	for _, m := range deps.Monitors {
		byName[m.Name()] = m
	}
	return &Server{
		config:    config,
		deps:      deps,
		monitors:  byName,
		logger:    logger.With("component", "api"),
		startedAt: time.Now(),
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if s.config.APIKey == "" {
		s.logger.Warn("API authentication disabled, no api_key configured")
	}
	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/monitors", s.handleMonitors)
		r.Get("/monitors/{name}", s.handleMonitor)
		r.Get("/monitors/{name}/items", s.handleItems)
		r.Get("/jobs", s.handleJobs)
		r.Get("/outcomes", s.handleOutcomes)
		r.Get("/events", s.handleEvents)
	})
	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
