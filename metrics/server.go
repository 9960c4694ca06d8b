package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Server exposes the prometheus metrics endpoint. Use it only when the
// embedding application does not already serve metrics.
type Server struct {
	server *http.Server
	logger log.FieldLogger
}

// NewServer creates a metrics server on the specified address, for example
// ":9090" or "localhost:9090".
func NewServer(addr string, logger log.FieldLogger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger,
	}
}

// Start serves the metrics endpoint in a goroutine and returns immediately.
func (s *Server) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("Metrics server failed")
		}
	}()
}

// Shutdown gracefully shuts down the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
