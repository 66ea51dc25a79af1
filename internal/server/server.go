// Package server exposes projects, models and CSV exports over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/tejusbharadwaj/univers/internal/config"
	"github.com/tejusbharadwaj/univers/internal/export"
	"github.com/tejusbharadwaj/univers/internal/metrics"
)

// Options holds the collaborators of a Server.
type Options struct {
	Store    *config.Store
	Sources  export.SourceFactory
	Export   export.Options
	Location *time.Location
	Logger   *logrus.Logger
	Metrics  *metrics.Metrics
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	Health   *HealthChecker
}

type Server struct {
	cfg     config.ServerConfig
	opts    Options
	logger  *logrus.Logger
	health  *HealthChecker
	handler http.Handler
}

func New(cfg config.ServerConfig, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Health == nil {
		opts.Health = NewHealthChecker()
	}
	if opts.Export.Logger == nil {
		opts.Export.Logger = opts.Logger
	}
	if opts.Export.Metrics == nil {
		opts.Export.Metrics = opts.Metrics
	}

	s := &Server{
		cfg:    cfg,
		opts:   opts,
		logger: opts.Logger,
		health: opts.Health,
	}
	s.health.SetServingStatus("http", Serving)
	s.handler = s.routes()
	return s
}

// routes builds the router with the middleware chain, outermost first:
// request id, rate limiting, logging, metrics.
func (s *Server) routes() http.Handler {
	r := mux.NewRouter()

	r.Handle("/healthz", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/projects", s.handleProjects).Methods(http.MethodGet)
	api.HandleFunc("/projects/{project}/models", s.handleModels).Methods(http.MethodGet)
	api.HandleFunc("/projects/{project}/export", s.handleExport).Methods(http.MethodGet)

	limit := rate.Inf
	if s.cfg.RateLimit > 0 {
		limit = rate.Limit(s.cfg.RateLimit)
	}
	burst := s.cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}

	r.Use(
		requestIDMiddleware,
		rateLimitMiddleware(rate.NewLimiter(limit, burst)),
		loggingMiddleware(s.logger),
		metricsMiddleware(s.opts.Metrics),
		recoverMiddleware(s.logger),
	)

	return corsHandler(s.cfg.AllowedOrigins, r)
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", srv.Addr).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	s.health.SetServingStatus("http", NotServing)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
