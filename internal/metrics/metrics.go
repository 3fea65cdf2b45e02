// Package metrics records host-side relay activity.
package metrics

// Eviction reasons reported through SessionEvicted.
const (
	EvictSuperseded  = "superseded"
	EvictWriteFailed = "write_failed"
	EvictPeerClosed  = "peer_closed"
	EvictShutdown    = "shutdown"
)

// Collector receives relay events.
type Collector interface {
	// TriggerSent counts a trigger written to the active session.
	TriggerSent(kind string)
	// TriggerDropped counts a trigger discarded because no session was active
	// or the write failed.
	TriggerDropped(kind string)
	// SessionInstalled counts a new session taking the slot.
	SessionInstalled()
	// SessionEvicted counts a session leaving the slot.
	SessionEvicted(reason string)
	// SetSessionActive reports whether the slot is occupied.
	SetSessionActive(active bool)
	// LocalSignal counts a signal accepted on the local trigger socket.
	LocalSignal()
}

// NopMetrics discards every event.
type NopMetrics struct{}

var _ Collector = (*NopMetrics)(nil)

// NewNop returns a collector that records nothing.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

func (n *NopMetrics) TriggerSent(_ string)    {}
func (n *NopMetrics) TriggerDropped(_ string) {}
func (n *NopMetrics) SessionInstalled()       {}
func (n *NopMetrics) SessionEvicted(_ string) {}
func (n *NopMetrics) SetSessionActive(_ bool) {}
func (n *NopMetrics) LocalSignal()            {}
