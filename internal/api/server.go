package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// ReadinessFunc reports whether the process is currently doing its job.
type ReadinessFunc func() bool

// Server exposes health, readiness and metrics endpoints for operators.
type Server struct {
	mux   *http.ServeMux
	ready ReadinessFunc
	srv   *http.Server
}

// NewServer builds a server with basic logging and panic recovery middlewares.
// gatherer backs /metrics.
func NewServer(addr string, ready ReadinessFunc, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	s := &Server{mux: mux, ready: ready}
	s.registerRoutes(gatherer)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.mux.HandleFunc("/healthz", s.handleHealth) // GET /healthz
	s.mux.HandleFunc("/readyz", s.handleReady)   // GET /readyz
	s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

// Handler returns the routed handler wrapped in the middlewares.
func (s *Server) Handler() http.Handler {
	return s.recoveryMiddleware(s.loggingMiddleware(s.mux))
}

// Run serves until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Run() error {
	logrus.Infof("Operations endpoint listening on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Simple request logger middleware.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logrus.Debugf("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware catches panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logrus.Errorf("panic recovered: %v", rec)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
