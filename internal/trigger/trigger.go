// Package trigger defines the one-byte signals pushed from host to client.
package trigger

import "fmt"

// Trigger is a single-byte push signal.
type Trigger byte

const (
	// Heartbeat is emitted by the host timer to keep the channel warm.
	Heartbeat Trigger = 0x00
	// Ping is operator-initiated and makes the client play its sound.
	Ping Trigger = 0xFF
)

// Sink receives triggers. Implementations must not block for long and
// never report failures to the caller.
type Sink interface {
	Send(t Trigger)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(t Trigger)

// Send calls f(t).
func (f SinkFunc) Send(t Trigger) {
	f(t)
}

// Parse maps a wire byte to a Trigger.
// Returns false for any byte that is neither Ping nor Heartbeat.
func Parse(b byte) (Trigger, bool) {
	switch Trigger(b) {
	case Ping, Heartbeat:
		return Trigger(b), true
	default:
		return 0, false
	}
}

// Byte returns the wire value.
func (t Trigger) Byte() byte {
	return byte(t)
}

// Payload returns the single-byte frame payload for t.
func (t Trigger) Payload() []byte {
	return []byte{byte(t)}
}

// String returns a human-readable name.
func (t Trigger) String() string {
	switch t {
	case Ping:
		return "ping"
	case Heartbeat:
		return "heartbeat"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}
