// Package http serves the tracking and sync API alongside health, readiness
// and Prometheus endpoints.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/atmosfault-service/internal/domain"
	"github.com/couchcryptid/atmosfault-service/internal/ingest"
)

// Tracker assembles tracking responses. *tracking.Assembler satisfies it.
type Tracker interface {
	Assemble(ctx context.Context, trackingNumber string) (*domain.TrackingResponse, error)
}

// Syncer runs telemetry ingestion. *ingest.Pipeline satisfies it.
type Syncer interface {
	IngestBatch(ctx context.Context, batchIndex int) (int, error)
	IngestAll(ctx context.Context) (ingest.Summary, error)
}

// Server exposes the tracking API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	tracker    Tracker
	syncer     Syncer
	throttle   Throttle
	clock      clockwork.Clock
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithThrottle installs the rate limiter consulted before every API request.
func WithThrottle(t Throttle) Option {
	return func(s *Server) { s.throttle = t }
}

// WithClock sets the clock used to compute Retry-After.
func WithClock(c clockwork.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// NewServer creates an HTTP server with /track/{id}, /sync, /healthz, /readyz, and /metrics routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, tracker Tracker, syncer Syncer, logger *slog.Logger, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 5 * time.Minute, // full syncs run inside the request
			IdleTimeout:  60 * time.Second,
		},
		tracker: tracker,
		syncer:  syncer,
		clock:   clockwork.NewRealClock(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux.HandleFunc("GET /track/{id}", s.throttled(ScopeAPI, s.handleTrack))
	mux.HandleFunc("POST /sync", s.throttled(ScopeSync, s.handleSync))
	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// Readiness reports ready when every pinger answers.
type Readiness []domain.Pinger

// CheckReadiness implements sharedobs.ReadinessChecker.
func (r Readiness) CheckReadiness(ctx context.Context) error {
	var errs []error
	for _, p := range r {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
