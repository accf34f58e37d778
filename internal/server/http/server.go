// Package httpserver provides the worker's ops HTTP server: liveness,
// readiness and Prometheus metrics.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/interaction-miner/internal/database"
)

// DatabaseHealth reports the state of the Postgres pool.
type DatabaseHealth interface {
	Health(ctx context.Context) database.HealthStatus
}

// ReadinessCheck is an additional dependency that must be healthy before
// the worker reports ready, such as the Temporal frontend.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Server is the ops HTTP server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	db         DatabaseHealth
	checks     []ReadinessCheck
	metrics    string
	logger     zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// MetricsPath serves the Prometheus handler when non-empty.
	MetricsPath string
}

// NewServer creates a new ops server.
func NewServer(cfg Config, db DatabaseHealth, logger zerolog.Logger, checks ...ReadinessCheck) *Server {
	s := &Server{
		db:      db,
		checks:  checks,
		metrics: cfg.MetricsPath,
		logger:  logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)
	if s.metrics != "" {
		r.Handle(s.metrics, promhttp.Handler())
	}

	return r
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server. It returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports liveness. The process is alive as long as it can
// answer; the database state is included for operators.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
}

// readinessHandler reports whether the worker can run jobs.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{}
	ready := true

	health := s.db.Health(r.Context())
	body["database"] = health.Status
	if !health.Healthy() {
		ready = false
		body["database_error"] = health.Error
	}

	for _, c := range s.checks {
		if err := c.Check(r.Context()); err != nil {
			ready = false
			body[c.Name] = "unhealthy"
			body[c.Name+"_error"] = err.Error()
			continue
		}
		body[c.Name] = "healthy"
	}

	if !ready {
		body["status"] = "not_ready"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ready"
	writeJSON(w, http.StatusOK, body)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// Headers are already sent; nothing useful to do with an encode error.
	_ = json.NewEncoder(w).Encode(v)
}
