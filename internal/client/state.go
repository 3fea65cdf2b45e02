package client

// State is the connection state of the reconnect loop.
type State int32

const (
	// Disconnected is the initial state and the state after a lost connection.
	Disconnected State = iota
	// Connecting means a dial is in progress or waiting to be retried.
	Connecting
	// Connected means frames are being read from the host.
	Connected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}
