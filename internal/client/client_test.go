package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type playCall struct {
	path   string
	volume float64
}

type fakePlayer struct {
	mu    sync.Mutex
	calls []playCall
	err   error
}

func (p *fakePlayer) Play(_ context.Context, path string, volume float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, playCall{path: path, volume: volume})
	return p.err
}

func (p *fakePlayer) Calls() []playCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]playCall(nil), p.calls...)
}

type fakeNotifier struct {
	count atomic.Int32
}

func (n *fakeNotifier) Notify(_ context.Context, summary, body string) error {
	n.count.Add(1)
	return errors.New("no session bus")
}

// sleepRecorder records requested backoffs and returns immediately.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	time.Sleep(time.Millisecond)
	return nil
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// hostStub is a WebSocket server running script for every connection.
type hostStub struct {
	srv     *httptest.Server
	accepts atomic.Int32
}

func newHostStub(t *testing.T, script func(ctx context.Context, conn *websocket.Conn)) *hostStub {
	t.Helper()
	h := &hostStub{}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.CloseNow() }()
		h.accepts.Add(1)
		// The request context never ends for a hijacked connection;
		// CloseRead's context ends when the client goes away.
		script(conn.CloseRead(context.Background()), conn)
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *hostStub) URL() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/heart"
}

func send(ctx context.Context, conn *websocket.Conn, b ...byte) {
	_ = conn.Write(ctx, websocket.MessageBinary, b)
}

func runClient(t *testing.T, c *Client) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	var once sync.Once
	var result error
	cancel = func() error {
		once.Do(func() {
			stop()
			select {
			case result = <-done:
			case <-time.After(5 * time.Second):
				t.Error("client did not stop")
			}
		})
		return result
	}
	t.Cleanup(func() { _ = cancel() })
	return cancel
}

func testConfig(url string) Config {
	return Config{
		URL:         url,
		Sound:       "/tmp/sound.wav",
		Volume:      0.5,
		ReadTimeout: 2 * time.Second,
		Backoff:     5 * time.Second,
		DialTimeout: time.Second,
	}
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{}, nil)
	require.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{URL: "ws://localhost:63063/heart"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultReadTimeout, c.cfg.ReadTimeout)
	assert.Equal(t, DefaultBackoff, c.cfg.Backoff)
	assert.Equal(t, DefaultDialTimeout, c.cfg.DialTimeout)
	assert.Equal(t, Disconnected, c.State())
}

func TestURL(t *testing.T) {
	assert.Equal(t, "ws://example.com:63063/heart", URL("example.com", 63063, "/heart"))
	assert.Equal(t, "ws://[::1]:80/heart", URL("::1", 80, "/heart"))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "unknown", State(9).String())
}

func TestClient_PingPlaysSound(t *testing.T) {
	host := newHostStub(t, func(ctx context.Context, conn *websocket.Conn) {
		send(ctx, conn, 0xFF)
		<-ctx.Done()
	})
	player := &fakePlayer{}
	c, err := New(testConfig(host.URL()), player)
	require.NoError(t, err)

	stop := runClient(t, c)

	require.Eventually(t, func() bool { return len(player.Calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, playCall{path: "/tmp/sound.wav", volume: 0.5}, player.Calls()[0])
	assert.Equal(t, Connected, c.State())

	assert.ErrorIs(t, stop(), context.Canceled)
	assert.Equal(t, Disconnected, c.State())
}

func TestClient_HeartbeatOnlyLogs(t *testing.T) {
	sent := make(chan struct{})
	host := newHostStub(t, func(ctx context.Context, conn *websocket.Conn) {
		for i := 0; i < 5; i++ {
			send(ctx, conn, 0x00)
		}
		close(sent)
		<-ctx.Done()
	})
	player := &fakePlayer{}
	c, err := New(testConfig(host.URL()), player)
	require.NoError(t, err)
	runClient(t, c)

	<-sent
	require.Eventually(t, func() bool { return c.State() == Connected }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, player.Calls())
	assert.EqualValues(t, 1, host.accepts.Load())
}

func TestClient_MalformedFramesIgnored(t *testing.T) {
	host := newHostStub(t, func(ctx context.Context, conn *websocket.Conn) {
		send(ctx, conn, 0x01)
		send(ctx, conn, 0xFF, 0xFF)
		send(ctx, conn)
		_ = conn.Write(ctx, websocket.MessageText, []byte("x"))
		send(ctx, conn, 0xFF)
		<-ctx.Done()
	})
	player := &fakePlayer{}
	c, err := New(testConfig(host.URL()), player)
	require.NoError(t, err)
	runClient(t, c)

	require.Eventually(t, func() bool { return len(player.Calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, player.Calls(), 1)
	assert.EqualValues(t, 1, host.accepts.Load())
}

func TestClient_PlaybackFailureKeepsRunning(t *testing.T) {
	host := newHostStub(t, func(ctx context.Context, conn *websocket.Conn) {
		send(ctx, conn, 0xFF)
		send(ctx, conn, 0xFF)
		<-ctx.Done()
	})
	player := &fakePlayer{err: errors.New("pw-cat: exit status 1")}
	notifier := &fakeNotifier{}
	c, err := New(testConfig(host.URL()), player, WithNotifier(notifier))
	require.NoError(t, err)
	runClient(t, c)

	require.Eventually(t, func() bool { return len(player.Calls()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 2, notifier.count.Load())
	assert.Equal(t, Connected, c.State())
	assert.EqualValues(t, 1, host.accepts.Load())
}

func TestClient_TimeoutTriggersReconnect(t *testing.T) {
	host := newHostStub(t, func(ctx context.Context, conn *websocket.Conn) {
		// Silent host: never sends a frame.
		<-ctx.Done()
	})
	cfg := testConfig(host.URL())
	cfg.ReadTimeout = 50 * time.Millisecond

	rec := &sleepRecorder{}
	c, err := New(cfg, &fakePlayer{})
	require.NoError(t, err)
	c.sleep = rec.sleep
	runClient(t, c)

	require.Eventually(t, func() bool { return host.accepts.Load() >= 3 }, 5*time.Second, 10*time.Millisecond)

	delays := rec.Delays()
	require.GreaterOrEqual(t, len(delays), 2)
	for _, d := range delays {
		assert.Equal(t, cfg.Backoff, d, "backoff is constant")
	}
}

func TestClient_CleanCloseTriggersReconnect(t *testing.T) {
	host := newHostStub(t, func(ctx context.Context, conn *websocket.Conn) {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	})
	rec := &sleepRecorder{}
	c, err := New(testConfig(host.URL()), &fakePlayer{})
	require.NoError(t, err)
	c.sleep = rec.sleep
	runClient(t, c)

	require.Eventually(t, func() bool { return host.accepts.Load() >= 2 }, 5*time.Second, 10*time.Millisecond)
	assert.NotEmpty(t, rec.Delays())
}

func TestClient_DialFailureRetriesWithConstantBackoff(t *testing.T) {
	var attempts atomic.Int32
	dial := func(ctx context.Context, url string) (Conn, error) {
		attempts.Add(1)
		return nil, errors.New("connection refused")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var delays []time.Duration
	c, err := New(testConfig("ws://127.0.0.1:1/heart"), nil, WithDialer(dial))
	require.NoError(t, err)
	c.sleep = func(_ context.Context, d time.Duration) error {
		assert.Equal(t, Connecting, c.State())
		delays = append(delays, d)
		if len(delays) == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	err = c.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 3, attempts.Load())
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, delays)
}

func TestClient_DialRecoversAfterFailures(t *testing.T) {
	host := newHostStub(t, func(ctx context.Context, conn *websocket.Conn) {
		send(ctx, conn, 0xFF)
		<-ctx.Done()
	})

	var attempts atomic.Int32
	dial := func(ctx context.Context, url string) (Conn, error) {
		if attempts.Add(1) <= 2 {
			return nil, errors.New("host unreachable")
		}
		return dialWebSocket(ctx, url)
	}

	player := &fakePlayer{}
	rec := &sleepRecorder{}
	c, err := New(testConfig(host.URL()), player, WithDialer(dial))
	require.NoError(t, err)
	c.sleep = rec.sleep
	runClient(t, c)

	require.Eventually(t, func() bool { return len(player.Calls()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 3, attempts.Load())
	assert.Len(t, rec.Delays(), 2)
}
