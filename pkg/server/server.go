// Package server exposes the daemon's HTTP endpoints.
//
// Endpoints:
//   - GET /healthz: location store, tiers and history healthchecks
//   - GET /status: objects per location, scheduled jobs and last runs
//   - GET /metrics: Prometheus exposition (404 when metrics are disabled)
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/tierkeeper/internal/logger"
	"github.com/marmos91/tierkeeper/pkg/history"
	"github.com/marmos91/tierkeeper/pkg/location"
	"github.com/marmos91/tierkeeper/pkg/scheduler"
)

const (
	defaultPort         = 9090
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// Config configures the HTTP listener.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
}

// HealthChecker is implemented by *tier.Tiered.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HistoryReader is the subset of *history.GORMStore the server reads.
type HistoryReader interface {
	Healthcheck(ctx context.Context) error
	Last(ctx context.Context, kind string) (*history.Run, error)
}

// JobLister is implemented by *scheduler.Scheduler.
type JobLister interface {
	Status() []scheduler.JobStatus
}

// Deps are the components the endpoints report on. Store is required.
type Deps struct {
	Store     location.Store
	Tiers     HealthChecker
	History   HistoryReader
	Scheduler JobLister
}

// Server serves the daemon endpoints until Stop is called.
type Server struct {
	server       *http.Server
	config       Config
	shutdownOnce sync.Once
}

// New creates a stopped server.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Store == nil {
		return nil, errors.New("server: location store is required")
	}
	cfg.applyDefaults()

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewRouter(deps),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		config: cfg,
	}, nil
}

// Start serves requests and blocks until ctx is canceled or the listener
// fails. Cancellation triggers a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// ctx is already canceled; give in-flight requests their own deadline.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("HTTP server failed: %w", err)
	}
}

// Stop shuts the server down. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("HTTP server shutdown: %w", err)
			logger.Error("HTTP server shutdown error", logger.KeyError, err.Error())
			return
		}
		logger.Info("HTTP server stopped gracefully")
	})
	return shutdownErr
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	return s.config.Port
}
