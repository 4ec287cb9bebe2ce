// Package server hosts the HTTP surfaces: Prometheus metrics, health
// probes, and the admin API for starting, stopping and inspecting service
// monitors.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/logpatrol/logpatrol/internal/health"
	"github.com/logpatrol/logpatrol/internal/logging"
	"github.com/logpatrol/logpatrol/internal/monitor"
)

// Server provides the HTTP endpoints
type Server struct {
	metricsServer *http.Server
	healthServer  *http.Server
	adminServer   *http.Server
	logger        *logging.Logger
}

// Config holds server configuration
type Config struct {
	MetricsAddress  string
	MetricsPath     string
	HealthAddress   string
	LivenessPath    string
	ReadinessPath   string
	AdminAddress    string
	MetricsRegistry *prometheus.Registry
	HealthChecker   *health.Checker
	Manager         *monitor.Manager
	Logger          *logging.Logger
}

// New creates a new server
func New(cfg Config) *Server {
	s := &Server{
		logger: cfg.Logger.WithComponent("server"),
	}

	if cfg.MetricsAddress != "" && cfg.MetricsRegistry != nil {
		metricsPath := cfg.MetricsPath
		if metricsPath == "" {
			metricsPath = "/metrics"
		}

		mux := http.NewServeMux()
		mux.Handle(metricsPath, promhttp.HandlerFor(
			cfg.MetricsRegistry,
			promhttp.HandlerOpts{EnableOpenMetrics: true},
		))
		s.metricsServer = newHTTPServer(cfg.MetricsAddress, mux)
	}

	if cfg.HealthAddress != "" && cfg.HealthChecker != nil {
		livenessPath := cfg.LivenessPath
		if livenessPath == "" {
			livenessPath = "/healthz"
		}
		readinessPath := cfg.ReadinessPath
		if readinessPath == "" {
			readinessPath = "/readyz"
		}

		mux := http.NewServeMux()
		mux.HandleFunc(livenessPath, cfg.HealthChecker.LivenessHandler())
		mux.HandleFunc(readinessPath, cfg.HealthChecker.ReadinessHandler())
		s.healthServer = newHTTPServer(cfg.HealthAddress, mux)
	}

	if cfg.AdminAddress != "" && cfg.Manager != nil {
		api := &adminAPI{manager: cfg.Manager, logger: s.logger}
		s.adminServer = newHTTPServer(cfg.AdminAddress, api.routes())
	}

	return s
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Start starts the configured listeners. Listen errors other than a clean
// close are reported on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 3)

	for _, entry := range []struct {
		name string
		srv  *http.Server
	}{
		{"metrics", s.metricsServer},
		{"health", s.healthServer},
		{"admin", s.adminServer},
	} {
		if entry.srv == nil {
			continue
		}
		name, srv := entry.name, entry.srv
		go func() {
			s.logger.Info().Str("address", srv.Addr).Msgf("Starting %s server", name)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("%s server: %w", name, err)
			}
		}()
	}

	return errCh
}

// Stop shuts down all listeners
func (s *Server) Stop(ctx context.Context) error {
	var firstErr error
	for _, srv := range []*http.Server{s.metricsServer, s.healthServer, s.adminServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
