package entities

// SessionState represents the connection state of a voice session.
type SessionState string

const (
	SessionStateDisconnected SessionState = "disconnected"
	SessionStateConnecting   SessionState = "connecting"
	SessionStateConnected    SessionState = "connected"
	SessionStateError        SessionState = "error"
)

// Valid reports whether s is one of the defined session states.
func (s SessionState) Valid() bool {
	switch s {
	case SessionStateDisconnected, SessionStateConnecting, SessionStateConnected, SessionStateError:
		return true
	}
	return false
}
