package domain

// ConnectionState is the lifecycle state of a session client.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateAuthenticating
	StateLive
	StateReconnecting
	StateClosed // terminal
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateLive:
		return "live"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON snapshots.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Active reports whether a connection attempt or connection is in progress.
func (s ConnectionState) Active() bool {
	switch s {
	case StateConnecting, StateAuthenticating, StateLive, StateReconnecting:
		return true
	}
	return false
}
