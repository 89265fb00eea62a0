package stream

// State represents the lifecycle state of the stream connection
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// StateDegraded is entered after reconnect attempts are exhausted. It is
	// terminal for the automatic policy: only an explicit Start call leaves it.
	StateDegraded
)

// String returns the state name for logs and status indicators
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}
