package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jmylchreest/clickr/internal/ipc"
	"github.com/jmylchreest/clickr/internal/metrics"
	"github.com/jmylchreest/clickr/internal/session"
)

const shutdownTimeout = 5 * time.Second

// Config holds the host's listening parameters.
type Config struct {
	Addr              string
	Port              int
	Path              string
	SocketPath        string
	HeartbeatInterval time.Duration
	IPCReadTimeout    time.Duration
}

// Server wires the push endpoint, trigger socket and heartbeat around one
// session registry.
type Server struct {
	cfg      Config
	registry *session.Registry
	logger   *slog.Logger
	metrics  metrics.Collector

	metricsHandler http.Handler

	ln        net.Listener
	trigger   *ipc.Listener
	heartbeat *Heartbeat
	httpSrv   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records trigger socket activity on c and, when handler is
// non-nil, serves it at /metrics.
func WithMetrics(c metrics.Collector, handler http.Handler) Option {
	return func(s *Server) {
		if c != nil {
			s.metrics = c
		}
		s.metricsHandler = handler
	}
}

// New creates a host server. Nothing is bound until Listen.
func New(cfg Config, registry *session.Registry, opts ...Option) *Server {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	s := &Server{
		cfg:      cfg,
		registry: registry,
		logger:   slog.Default(),
		metrics:  metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds the network endpoint and the local trigger socket.
// Either failure is fatal for the host.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.cfg.Addr, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to address %s: %w", addr, err)
	}

	trig, err := ipc.Listen(s.cfg.SocketPath, s.registry, ipc.ListenerOptions{
		Logger:      s.logger,
		Metrics:     s.metrics,
		ReadTimeout: s.cfg.IPCReadTimeout,
	})
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to bind trigger socket: %w", err)
	}

	s.ln = ln
	s.trigger = trig
	s.logger.Info("host listening", "addr", ln.Addr().String(), "path", s.cfg.Path)
	return nil
}

// Addr returns the bound network address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Handler returns the HTTP routes served by the host.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET "+s.cfg.Path, NewEndpoint(s.registry, s.logger))
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	return mux
}

// Serve runs until ctx is cancelled or the HTTP server fails, then shuts
// every component down. Listen must have succeeded first.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return errors.New("host: Serve called before Listen")
	}

	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.heartbeat = NewHeartbeat(s.registry, s.cfg.HeartbeatInterval, s.logger)
	s.heartbeat.Start(ctx)

	go func() {
		if err := s.trigger.Serve(ctx); err != nil && !errors.Is(err, ipc.ErrListenerClosed) {
			s.logger.Error("trigger socket stopped", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(s.ln)
	}()

	s.logger.Info("host running", "heartbeat", s.heartbeat.Interval())

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	}

	s.shutdown()
	return serveErr
}

func (s *Server) shutdown() {
	s.logger.Info("host shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Warn("error shutting down http server", "error", err)
	}

	if err := s.trigger.Close(); err != nil {
		s.logger.Warn("error closing trigger socket", "error", err)
	}
	<-s.trigger.Done()

	s.heartbeat.Stop()
	s.registry.Close()

	s.logger.Info("host stopped")
}
