package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/jmylchreest/clickr/internal/metrics"
	"github.com/jmylchreest/clickr/internal/trigger"
)

// DefaultReadTimeout bounds how long a local client may hold the socket
// before writing its byte.
const DefaultReadTimeout = 2 * time.Second

const acceptRetryDelay = 50 * time.Millisecond

// ErrListenerClosed is returned by Serve after Close.
var ErrListenerClosed = errors.New("ipc: listener closed")

// ListenerOptions configures a Listener.
type ListenerOptions struct {
	Logger      *slog.Logger
	Metrics     metrics.Collector
	ReadTimeout time.Duration
}

// Listener accepts local trigger connections on a unix socket.
type Listener struct {
	mu     sync.Mutex
	ln     net.Listener
	path   string
	sink   trigger.Sink
	logger *slog.Logger

	metrics     metrics.Collector
	readTimeout time.Duration

	closed bool
	doneCh chan struct{}
}

// Listen removes any stale socket at path and binds a new one.
// Signals read from the socket are forwarded to sink as trigger.Ping.
func Listen(path string, sink trigger.Sink, opts ListenerOptions) (*Listener, error) {
	if path == "" {
		return nil, errors.New("ipc: socket path required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNop()
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}

	if err := removeStale(path); err != nil {
		return nil, err
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}

	opts.Logger.Info("trigger socket listening", "path", path)

	return &Listener{
		ln:          ln,
		path:        path,
		sink:        sink,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		readTimeout: opts.ReadTimeout,
		doneCh:      make(chan struct{}),
	}, nil
}

// removeStale deletes a leftover socket file. A missing file is fine.
func removeStale(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat socket path: %w", err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("refusing to remove %s: not a socket", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}
	return nil
}

// Path returns the socket path.
func (l *Listener) Path() string {
	return l.path
}

// Serve runs the accept loop until ctx is cancelled or Close is called.
// Connections are handled one at a time; misbehaving local clients are
// ignored.
func (l *Listener) Serve(ctx context.Context) error {
	defer close(l.doneCh)

	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.isClosed() {
				return ErrListenerClosed
			}
			l.logger.Debug("trigger socket accept error", "error", err)
			time.Sleep(acceptRetryDelay)
			continue
		}
		l.handle(conn)
	}
}

// handle reads at most one byte and forwards a Ping if anything arrived.
func (l *Listener) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(l.readTimeout))

	buf := make([]byte, 1)
	n, err := conn.Read(buf)
	if n == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			l.logger.Debug("trigger socket read failed", "error", err)
		}
		return
	}

	l.metrics.LocalSignal()
	l.logger.Debug("local trigger received", "byte", fmt.Sprintf("0x%02x", buf[0]))
	l.sink.Send(trigger.Ping)
}

// Close stops accepting and removes the socket file.
// Safe to call more than once.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	err := l.ln.Close()
	if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

// Done is closed when Serve returns.
func (l *Listener) Done() <-chan struct{} {
	return l.doneCh
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
