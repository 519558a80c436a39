package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soldasur/advisor/internal/orchestrator"
)

// DefaultAddr is the default listen address of the API server.
const DefaultAddr = ":8080"

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Opts holds configuration for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option { return func(o *Opts) { o.Addr = addr } }

// Server serves the advisor HTTP API.
type Server struct {
	orch *orchestrator.Orchestrator
	addr string
	mux  *http.ServeMux
}

// NewServer creates the API server around an orchestrator.
func NewServer(orch *orchestrator.Orchestrator, opts ...Option) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("api server requires an orchestrator")
	}
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{orch: orch, addr: cfg.Addr, mux: http.NewServeMux()}
	s.mux.HandleFunc("/start", s.startHandler)
	s.mux.HandleFunc("/message", s.messageHandler)
	s.mux.HandleFunc("/health", s.healthHandler)
	s.mux.Handle("/metrics", promhttp.Handler())
	return s, nil
}

// Handler exposes the route table, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Run serves HTTP until the context is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: advisor API listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Run: graceful shutdown failed", "error", err)
			return err
		}
		slog.Info("Server.Run: shut down cleanly")
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server.Run: listener failed", "error", err)
			return err
		}
		return nil
	}
}
