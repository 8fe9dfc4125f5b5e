// SPDX-License-Identifier: MIT

package transport

// State is the connection state of the companion channel.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	// StateValidating means the byte stream is up and the liveness probe is
	// in flight. The channel accepts regular commands only after the probe
	// returns an affirmative reply.
	StateValidating State = "validating"
	StateConnected  State = "connected"
	StateError      State = "error"
)

func (s State) String() string { return string(s) }

// IsValid reports whether s is a known state.
func (s State) IsValid() bool {
	switch s {
	case StateDisconnected, StateConnecting, StateValidating, StateConnected, StateError:
		return true
	}
	return false
}

// Usable reports whether the channel carries regular commands in s.
func (s State) Usable() bool {
	return s == StateConnected
}

// CanTransitionTo reports whether moving from s to target is legal. Error is
// reachable from every state; recovery restarts at connecting.
func (s State) CanTransitionTo(target State) bool {
	if target == StateError {
		return true
	}
	switch s {
	case StateDisconnected:
		return target == StateConnecting
	case StateConnecting:
		return target == StateValidating || target == StateDisconnected
	case StateValidating:
		return target == StateConnected || target == StateDisconnected
	case StateConnected:
		return target == StateDisconnected
	case StateError:
		return target == StateConnecting || target == StateDisconnected
	}
	return false
}
