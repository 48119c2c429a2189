// Package coordinator owns the playback session state machine.
package coordinator

import "github.com/osa030/soundmirror/internal/domain/track"

// Phase represents catalog readiness. The coordinator's effective behavior
// is the product of this phase and the adapter's connection state.
type Phase int

const (
	PhaseIdle    Phase = iota // No catalog loaded
	PhaseLoading              // Catalog load in flight
	PhaseReady                // Catalog loaded
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Snapshot is the coordinator's mirror of backend-reported playback truth.
// It is written only by the coordinator's serialized event loop and read as
// a consistent published value.
type Snapshot struct {
	Playing        bool
	PositionMillis int64
	DurationMillis int64
	CurrentTrackID *track.ID // nil when no current track
}

// clone returns a copy safe to hand out across the observable boundary.
func (s Snapshot) clone() Snapshot {
	if s.CurrentTrackID != nil {
		id := *s.CurrentTrackID
		s.CurrentTrackID = &id
	}
	return s
}
