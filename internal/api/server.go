// uawatch - User Acquisition KPI Rollup and Anomaly Detection
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/uawatch/uawatch

// Package api serves the HTTP interface: health, Prometheus metrics, stored
// reports and rollups, and on-demand pipeline runs.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/uawatch/uawatch/internal/config"
	"github.com/uawatch/uawatch/internal/logging"
	"github.com/uawatch/uawatch/internal/metrics"
	"github.com/uawatch/uawatch/internal/pipeline"
	"github.com/uawatch/uawatch/internal/store"
)

// Server is the HTTP API server.
type Server struct {
	cfg      config.ServerConfig
	store    *store.Store
	pipeline *pipeline.Pipeline
	http     *http.Server
}

// NewServer builds the server and its routes.
func NewServer(cfg config.ServerConfig, st *store.Store, p *pipeline.Pipeline) *Server {
	s := &Server{cfg: cfg, store: st, pipeline: p}
	s.http = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.routes(),
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		IdleTimeout:  2 * cfg.Timeout,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogging)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/reports/{date}", s.handleGetReport)
		r.Get("/rollups/{date}", s.handleGetRollups)
		r.Post("/pipeline/run/{date}", s.handleRunPipeline)
	})

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	logging.Info().Str("addr", s.cfg.Addr()).Msg("HTTP server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requestLogging logs each request with zerolog after it completes.
func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// The route pattern keeps metric cardinality bounded; raw paths
		// embed dates.
		pattern := chi.RouteContext(r.Context()).RoutePattern()
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, pattern, fmt.Sprintf("%d", ww.Status())).
			Observe(time.Since(start).Seconds())

		logging.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Msg("Request")
	})
}
