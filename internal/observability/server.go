// Package observability provides the metrics side server and HTTP instrumentation.
package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// ReadinessFunc reports why the service cannot take notifications yet, or nil.
type ReadinessFunc func(ctx context.Context) error

// Server exposes /metrics, /healthz and /readyz on a separate listener.
type Server struct {
	server *http.Server
	addr   string
}

// NewServer creates the side server. A nil ready func always reports ready.
func NewServer(addr string, ready ReadinessFunc) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("not ready: " + err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
		},
	}
}

// Handler exposes the server's mux.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves in the background; listen errors are logged.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.addr).Msg("Metrics server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("addr", s.addr).Msg("Metrics server failed")
		}
	}()
}

// Shutdown stops the server, waiting for in-flight scrapes.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
