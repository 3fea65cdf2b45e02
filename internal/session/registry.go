package session

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/clickr/internal/metrics"
	"github.com/jmylchreest/clickr/internal/trigger"
)

// DefaultWriteTimeout bounds a single trigger write to the active session.
const DefaultWriteTimeout = 5 * time.Second

// Session is one live, message-framed connection to a client.
type Session interface {
	// Write sends one message carrying payload.
	Write(ctx context.Context, payload []byte) error
	// Close terminates the connection.
	Close() error
}

// slot is the registry state: either empty or active.
type slot interface {
	isSlot()
}

type empty struct{}

type active struct {
	sess  Session
	id    string
	peer  string
	since time.Time
}

func (empty) isSlot()   {}
func (*active) isSlot() {}

// Registry is the exclusive owner of the current Session.
type Registry struct {
	mu    sync.Mutex
	state slot

	logger       *slog.Logger
	metrics      metrics.Collector
	writeTimeout time.Duration

	// closing tracks evicted sessions whose Close has not returned yet.
	closing sync.WaitGroup
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Collector) Option {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithWriteTimeout bounds each trigger write. Non-positive values are ignored.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		state:        empty{},
		logger:       slog.Default(),
		metrics:      metrics.NewNop(),
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Install makes sess the active session and returns its id.
// Any previous session is evicted; its Close runs after the lock is released.
func (r *Registry) Install(sess Session, peer string) string {
	next := &active{
		sess:  sess,
		id:    newID(),
		peer:  peer,
		since: time.Now(),
	}

	r.mu.Lock()
	prev := r.state
	r.state = next
	r.mu.Unlock()

	r.metrics.SessionInstalled()
	r.metrics.SetSessionActive(true)
	r.logger.Info("session installed", "session", next.id, "peer", peer)

	if old, ok := prev.(*active); ok {
		r.evict(old, metrics.EvictSuperseded)
	}
	return next.id
}

// Send writes t to the active session. It never fails: with no session it
// does nothing, and a failed write evicts the session.
func (r *Registry) Send(t trigger.Trigger) {
	r.mu.Lock()
	cur, ok := r.state.(*active)
	if !ok {
		r.mu.Unlock()
		r.metrics.TriggerDropped(t.String())
		r.logger.Debug("no active session, trigger dropped", "trigger", t)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	err := cur.sess.Write(ctx, t.Payload())
	cancel()

	if err == nil {
		r.mu.Unlock()
		r.metrics.TriggerSent(t.String())
		r.logger.Debug("trigger sent", "trigger", t, "session", cur.id)
		return
	}

	r.state = empty{}
	r.mu.Unlock()

	r.metrics.TriggerDropped(t.String())
	r.metrics.SetSessionActive(false)
	r.logger.Warn("send failed, evicting session",
		"trigger", t, "session", cur.id, "peer", cur.peer, "error", err)
	r.evict(cur, metrics.EvictWriteFailed)
}

// Current reports whether a session is active.
func (r *Registry) Current() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.state.(*active)
	return ok
}

// ActiveID returns the id of the active session, or "" when empty.
func (r *Registry) ActiveID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.state.(*active); ok {
		return cur.id
	}
	return ""
}

// Release empties the registry if id is still the active session.
// Returns false when id was already superseded or evicted.
func (r *Registry) Release(id string) bool {
	r.mu.Lock()
	cur, ok := r.state.(*active)
	if !ok || cur.id != id {
		r.mu.Unlock()
		return false
	}
	r.state = empty{}
	r.mu.Unlock()

	r.metrics.SetSessionActive(false)
	r.evict(cur, metrics.EvictPeerClosed)
	return true
}

// Close evicts the active session, if any, and waits for every pending
// eviction to finish closing.
func (r *Registry) Close() {
	r.mu.Lock()
	prev := r.state
	r.state = empty{}
	r.mu.Unlock()

	if cur, ok := prev.(*active); ok {
		r.metrics.SetSessionActive(false)
		r.evict(cur, metrics.EvictShutdown)
	}
	r.Wait()
}

// Wait blocks until all evicted sessions have returned from Close.
func (r *Registry) Wait() {
	r.closing.Wait()
}

// evict closes old in the background. The close result is only logged.
func (r *Registry) evict(old *active, reason string) {
	r.metrics.SessionEvicted(reason)
	r.closing.Add(1)
	go func() {
		defer r.closing.Done()
		if err := old.sess.Close(); err != nil {
			r.logger.Debug("error closing evicted session",
				"session", old.id, "reason", reason, "error", err)
			return
		}
		r.logger.Info("session evicted",
			"session", old.id,
			"peer", old.peer,
			"reason", reason,
			"connected", humanize.Time(old.since))
	}()
}

func newID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return ulid.Make().String()
	}
	return id.String()
}
