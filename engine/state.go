package engine

// ConnectionState represents the lifecycle state of the engine.
type ConnectionState int

// Lifecycle states. Transitions: Disconnected -> Connecting (Start),
// Connecting -> Connected (handshake accepted), Connecting -> Disconnected
// (connect failure or auth rejection), Connected -> Disconnected (Stop or
// transport failure).
const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

// String returns the string representation of ConnectionState
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
