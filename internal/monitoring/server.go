// internal/monitoring/server.go
package monitoring

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/valpere/relay-scraper/internal/utils"
)

// Server exposes /metrics and /health while a run is in progress.
type Server struct {
	server   *http.Server
	listener net.Listener
	logger   utils.Logger
}

// NewRouter builds the monitoring routes.
func NewRouter(metrics *MetricsManager, health *HealthManager) *mux.Router {
	router := mux.NewRouter()
	if metrics != nil {
		router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if health != nil {
		router.HandleFunc("/health", health.HealthHandler()).Methods(http.MethodGet)
	}
	return router
}

// Start listens on addr and serves the monitoring routes in the background.
func Start(addr string, metrics *MetricsManager, health *HealthManager, logger utils.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		server: &http.Server{
			Handler:           NewRouter(metrics, health),
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		logger:   logger,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Monitoring server failed: %v", err)
		}
	}()
	logger.Infof("Monitoring endpoint listening on %s", ln.Addr())
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
