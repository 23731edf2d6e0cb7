// Package metrics defines the Prometheus instruments and the ops
// listener that exposes them.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/optionalpha/optionalpha/internal/domain"
)

// HealthFunc produces the current health snapshot for GET /health.
type HealthFunc func(ctx context.Context) domain.HealthStatus

// Server exposes /metrics and /health on the ops port.
type Server struct {
	port   int
	health HealthFunc
	server *http.Server
	log    zerolog.Logger
}

// NewServer creates the ops listener. A nil health function makes
// /health report 503 unconditionally.
func NewServer(port int, health HealthFunc, log zerolog.Logger) *Server {
	return &Server{
		port:   port,
		health: health,
		log:    log.With().Str("component", "metrics_server").Logger(),
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", instrument("/metrics", promhttp.Handler()))
	mux.Handle("/health", instrument("/health", http.HandlerFunc(s.handleHealth)))

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Int("port", s.port).Msg("Starting metrics server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("Metrics server error")
		}
	}()

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.health == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "health checker not wired"})
		return
	}

	status := s.health(r.Context())
	if !status.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode health status")
	}
}

// statusRecorder captures the response code for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	code    int
	written bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.code = code
		r.written = true
		r.ResponseWriter.WriteHeader(code)
	}
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

// instrument counts requests to one ops endpoint by status code.
func instrument(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		OpsRequests.WithLabelValues(path, strconv.Itoa(rec.code)).Inc()
	})
}

// Shutdown drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.log.Info().Msg("Shutting down metrics server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown metrics server: %w", err)
	}

	s.log.Info().Msg("Metrics server shutdown complete")
	return nil
}
