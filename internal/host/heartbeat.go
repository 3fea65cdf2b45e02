package host

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/clickr/internal/trigger"
)

// DefaultHeartbeatInterval is the period between heartbeat triggers.
const DefaultHeartbeatInterval = 10 * time.Second

// Heartbeat periodically sends trigger.Heartbeat to a sink, whether or not a
// session is active.
type Heartbeat struct {
	mu     sync.Mutex
	logger *slog.Logger
	sink   trigger.Sink

	interval time.Duration

	// Control channels
	stopCh chan struct{}
	doneCh chan struct{}

	running bool
}

// NewHeartbeat creates a heartbeat emitter. A non-positive interval falls
// back to DefaultHeartbeatInterval.
func NewHeartbeat(sink trigger.Sink, interval time.Duration, logger *slog.Logger) *Heartbeat {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	return &Heartbeat{
		logger:   logger,
		sink:     sink,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Interval returns the heartbeat period.
func (h *Heartbeat) Interval() time.Duration {
	return h.interval
}

// Start begins emitting heartbeats.
func (h *Heartbeat) Start(ctx context.Context) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.stopCh = make(chan struct{})
	h.doneCh = make(chan struct{})
	h.mu.Unlock()

	go h.loop(ctx)

	h.logger.Debug("heartbeat started", "interval", h.interval)
}

// Stop halts the emitter and waits for its goroutine to exit.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	close(h.stopCh)
	h.mu.Unlock()

	<-h.doneCh
	h.logger.Debug("heartbeat stopped")
}

// IsRunning returns whether the emitter is active.
func (h *Heartbeat) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *Heartbeat) loop(ctx context.Context) {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sink.Send(trigger.Heartbeat)
		}
	}
}
