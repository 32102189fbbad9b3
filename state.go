package chat

import "fmt"

// State is a connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateConnected
	StateReconnecting
	StateFailed
	StateAuthError
)

var stateNames = [...]string{
	StateDisconnected:   "disconnected",
	StateConnecting:     "connecting",
	StateAuthenticating: "authenticating",
	StateConnected:      "connected",
	StateReconnecting:   "reconnecting",
	StateFailed:         "failed",
	StateAuthError:      "auth_error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Status is a snapshot of the connection state. Attempt is the current
// reconnection attempt (0 outside a reconnect cycle).
type Status struct {
	State   State
	Attempt int
}

// String renders the status the way it is reported in status:change events,
// e.g. "reconnecting:3".
func (s Status) String() string {
	if s.State == StateReconnecting {
		return fmt.Sprintf("reconnecting:%d", s.Attempt)
	}
	return s.State.String()
}

// transitions lists the legal next states for each state.
var transitions = map[State][]State{
	StateDisconnected:   {StateConnecting},
	StateConnecting:     {StateConnecting, StateAuthenticating, StateReconnecting, StateFailed, StateDisconnected},
	StateAuthenticating: {StateConnecting, StateConnected, StateAuthError, StateReconnecting, StateFailed, StateDisconnected},
	StateConnected:      {StateConnecting, StateReconnecting, StateDisconnected},
	StateReconnecting:   {StateConnecting, StateDisconnected},
	StateFailed:         {StateConnecting, StateDisconnected},
	StateAuthError:      {StateConnecting, StateDisconnected},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
