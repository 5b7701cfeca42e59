// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations.

package api

// ConnState enumerates the protocol state of a connection.
// States only ever move forward.
type ConnState int

const (
	StateAwaitingHandshake ConnState = iota
	StateHandshakeResponse
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateHandshakeResponse:
		return "handshake_response"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Next returns the state that follows s and whether one exists.
func (s ConnState) Next() (ConnState, bool) {
	switch s {
	case StateAwaitingHandshake:
		return StateHandshakeResponse, true
	case StateHandshakeResponse:
		return StateConnected, true
	default:
		return s, false
	}
}
