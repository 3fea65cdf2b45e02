package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/clickr/internal/trigger"
)

// Default timings.
const (
	DefaultReadTimeout = 20 * time.Second
	DefaultBackoff     = 5 * time.Second
	DefaultDialTimeout = 10 * time.Second
)

// Player plays the notification sound.
type Player interface {
	Play(ctx context.Context, path string, volume float64) error
}

// Notifier shows a desktop notification.
type Notifier interface {
	Notify(ctx context.Context, summary, body string) error
}

// Conn is the subset of *websocket.Conn used by the loop.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Close(code websocket.StatusCode, reason string) error
}

// DialFunc opens a connection to url.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// Config holds the client parameters.
type Config struct {
	URL         string
	Sound       string
	Volume      float64 // 0.0 to 1.0
	ReadTimeout time.Duration
	Backoff     time.Duration
	DialTimeout time.Duration

	NotifySummary string
	NotifyBody    string
}

// URL builds the WebSocket address of a host endpoint.
func URL(addr string, port int, path string) string {
	return "ws://" + net.JoinHostPort(addr, strconv.Itoa(port)) + path
}

// Client is the reconnect loop.
type Client struct {
	cfg      Config
	logger   *slog.Logger
	player   Player
	notifier Notifier

	dial  DialFunc
	sleep func(ctx context.Context, d time.Duration) error

	state atomic.Int32
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithNotifier enables desktop notifications on Ping.
func WithNotifier(n Notifier) Option {
	return func(c *Client) {
		c.notifier = n
	}
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(dial DialFunc) Option {
	return func(c *Client) {
		if dial != nil {
			c.dial = dial
		}
	}
}

// New creates a client. player may be nil, in which case pings are only logged.
func New(cfg Config, player Player, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("client: host URL required")
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}

	c := &Client{
		cfg:    cfg,
		logger: slog.Default(),
		player: player,
		dial:   dialWebSocket,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	if prev := State(c.state.Swap(int32(s))); prev != s {
		c.logger.Debug("client state", "from", prev, "to", s)
	}
}

// Run keeps a connection to the host until ctx is cancelled.
// Dial failures, read timeouts and disconnects are retried forever with a
// constant backoff. The returned error is always ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	c.setState(Disconnected)
	for {
		conn, err := c.connect(ctx)
		if err != nil {
			return err
		}

		c.serve(ctx, conn)
		c.setState(Disconnected)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.sleep(ctx, c.cfg.Backoff); err != nil {
			return err
		}
	}
}

// connect dials until it succeeds. It only fails when ctx is done.
func (c *Client) connect(ctx context.Context) (Conn, error) {
	c.setState(Connecting)
	for attempt := 1; ; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
		conn, err := c.dial(dialCtx, c.cfg.URL)
		cancel()
		if err == nil {
			c.setState(Connected)
			c.logger.Info("connected to host", "url", c.cfg.URL, "attempt", attempt)
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c.logger.Warn("failed to connect, retrying",
			"url", c.cfg.URL, "attempt", attempt, "retry_in", c.cfg.Backoff, "error", err)
		if err := c.sleep(ctx, c.cfg.Backoff); err != nil {
			return nil, err
		}
	}
}

// serve reads frames until the connection ends or goes silent.
func (c *Client) serve(ctx context.Context, conn Conn) {
	connectedAt := time.Now()
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	for {
		readCtx, cancel := context.WithTimeout(ctx, c.cfg.ReadTimeout)
		typ, data, err := conn.Read(readCtx)
		timedOut := errors.Is(readCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			c.dispatch(ctx, typ, data)
			continue
		}

		switch {
		case ctx.Err() != nil:
			c.logger.Debug("client stopping")
		case timedOut:
			c.logger.Warn("no frames from host, reconnecting",
				"timeout", c.cfg.ReadTimeout, "retry_in", c.cfg.Backoff,
				"connected", humanize.Time(connectedAt))
		case websocket.CloseStatus(err) != -1:
			c.logger.Info("host closed connection, reconnecting",
				"status", websocket.CloseStatus(err), "retry_in", c.cfg.Backoff,
				"connected", humanize.Time(connectedAt))
		default:
			c.logger.Warn("connection lost, reconnecting",
				"error", err, "retry_in", c.cfg.Backoff,
				"connected", humanize.Time(connectedAt))
		}
		return
	}
}

// dispatch acts on one frame. Anything but a single known byte is ignored.
func (c *Client) dispatch(ctx context.Context, typ websocket.MessageType, data []byte) {
	if typ != websocket.MessageBinary || len(data) != 1 {
		c.logger.Debug("ignoring malformed frame", "type", typ, "len", len(data))
		return
	}

	t, ok := trigger.Parse(data[0])
	if !ok {
		c.logger.Debug("ignoring unknown trigger", "byte", fmt.Sprintf("0x%02x", data[0]))
		return
	}

	switch t {
	case trigger.Heartbeat:
		c.logger.Debug("heartbeat received")
	case trigger.Ping:
		c.logger.Info("ping received")
		c.handlePing(ctx)
	}
}

// handlePing runs the notification side effects. Failures are logged and
// never end the loop.
func (c *Client) handlePing(ctx context.Context) {
	if c.notifier != nil {
		if err := c.notifier.Notify(ctx, c.cfg.NotifySummary, c.cfg.NotifyBody); err != nil {
			c.logger.Warn("desktop notification failed", "error", err)
		}
	}

	if c.player == nil {
		return
	}
	if err := c.player.Play(ctx, c.cfg.Sound, c.cfg.Volume); err != nil {
		c.logger.Error("failed to play sound", "path", c.cfg.Sound, "error", err)
	}
}

func dialWebSocket(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
