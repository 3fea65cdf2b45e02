package ipc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/clickr/internal/trigger"
)

// recordingSink collects forwarded triggers.
type recordingSink struct {
	mu  sync.Mutex
	got []trigger.Trigger
}

func (s *recordingSink) Send(t trigger.Trigger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, t)
}

func (s *recordingSink) Triggers() []trigger.Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]trigger.Trigger(nil), s.got...)
}

func socketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "sock")
}

func startListener(t *testing.T, path string, sink trigger.Sink) *Listener {
	t.Helper()
	l, err := Listen(path, sink, ListenerOptions{ReadTimeout: 200 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

func TestSend_RoundTrip(t *testing.T) {
	path := socketPath(t)
	sink := &recordingSink{}
	startListener(t, path, sink)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, Send(ctx, path, SignalByte))

	assert.Eventually(t, func() bool {
		return len(sink.Triggers()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []trigger.Trigger{trigger.Ping}, sink.Triggers())
}

func TestListener_AnyByteIsPing(t *testing.T) {
	path := socketPath(t)
	sink := &recordingSink{}
	startListener(t, path, sink)

	ctx := context.Background()
	require.NoError(t, Send(ctx, path, 0x00))
	require.NoError(t, Send(ctx, path, 'x'))

	assert.Eventually(t, func() bool {
		return len(sink.Triggers()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []trigger.Trigger{trigger.Ping, trigger.Ping}, sink.Triggers())
}

func TestListener_EmptyConnectionIgnored(t *testing.T) {
	path := socketPath(t)
	sink := &recordingSink{}
	startListener(t, path, sink)

	// Connect and hang up without writing.
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	// A silent client that never writes is dropped after the read timeout.
	idle, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer idle.Close()

	// The loop keeps serving afterwards.
	require.NoError(t, Send(context.Background(), path, SignalByte))

	assert.Eventually(t, func() bool {
		return len(sink.Triggers()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []trigger.Trigger{trigger.Ping}, sink.Triggers())
}

func TestListen_RemovesStaleSocket(t *testing.T) {
	path := socketPath(t)

	// Leave a socket file behind without cleanup.
	stale, err := net.Listen("unix", path)
	require.NoError(t, err)
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())
	_, err = os.Stat(path)
	require.NoError(t, err, "stale socket should still exist")

	l, err := Listen(path, &recordingSink{}, ListenerOptions{})
	require.NoError(t, err)
	require.NoError(t, l.Close())
}

func TestListen_RefusesRegularFile(t *testing.T) {
	path := socketPath(t)
	require.NoError(t, os.WriteFile(path, []byte("data"), 0600))

	_, err := Listen(path, &recordingSink{}, ListenerOptions{})
	require.Error(t, err)

	// The file is left untouched.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestListener_CloseRemovesSocket(t *testing.T) {
	path := socketPath(t)
	l, err := Listen(path, &recordingSink{}, ListenerOptions{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- l.Serve(context.Background()) }()

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrListenerClosed)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Close")
	}

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestSend_NoListener(t *testing.T) {
	err := Send(context.Background(), socketPath(t), SignalByte)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
}

func TestListen_EmptyPath(t *testing.T) {
	_, err := Listen("", &recordingSink{}, ListenerOptions{})
	require.Error(t, err)
}
