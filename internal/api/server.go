// Package api exposes the HTTP interface for the search service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eventscout/eventscout/internal/scout"
	"github.com/eventscout/eventscout/internal/search"
	"github.com/eventscout/eventscout/internal/telemetry"
)

// Config controls server behavior.
type Config struct {
	ResultCap      int
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the orchestrator and stores.
type Server struct {
	router chi.Router
	orch   *search.Orchestrator
	jobs   scout.JobStore
	events scout.EventStore
	clock  scout.Clock
	cfg    Config
	logger *zap.Logger
	ready  func(ctx context.Context) error
}

// NewServer constructs a Server with middleware and routes. The ready check
// may be nil when there are no downstreams to probe.
func NewServer(
	orch *search.Orchestrator,
	jobs scout.JobStore,
	events scout.EventStore,
	clock scout.Clock,
	cfg Config,
	logger *zap.Logger,
	ready func(ctx context.Context) error,
) *Server {
	if cfg.ResultCap <= 0 {
		cfg.ResultCap = 50
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		orch:   orch,
		jobs:   jobs,
		events: events,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
		ready:  ready,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(cfg.RequestTimeout))
	r.Use(telemetry.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.submitSearch)
		r.Get("/events", s.listEvents)
		r.Get("/jobs/{job_id}/status", s.getJobStatus)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
