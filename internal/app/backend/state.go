// Package backend provides the player backend adapter facade.
package backend

// ConnState represents the connection state to the external player backend.
type ConnState int

const (
	Disconnected ConnState = iota // No connection
	Connecting                    // Connection attempt in progress
	Connected                     // Connected, commands and events flow
	Failed                        // Backend explicitly signaled connection failure
)

// String returns the string representation of the connection state.
func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
