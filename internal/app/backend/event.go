package backend

import "context"

// EventKind represents the kind of a backend event.
type EventKind int

const (
	EventState    EventKind = iota // Playback state changed (playing flag, position, duration)
	EventMetadata                  // Current track metadata changed
)

// String returns the string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// StateEvent is a raw playback-state event pushed by the backend.
type StateEvent struct {
	Playing        bool
	PositionMillis int64
	DurationMillis int64
}

// MetadataEvent signals that the backend's current track changed.
// TrackID is the backend's string form of the track ID.
type MetadataEvent struct {
	TrackID string
}

// Event is a backend event as delivered to the coordinator.
// Events are applied strictly in delivery order.
type Event struct {
	Kind     EventKind
	State    StateEvent
	Metadata MetadataEvent
}

// EventSink receives push callbacks from a backend transport.
// Transports call it from their own delivery goroutine; implementations
// must not assume any particular calling goroutine.
type EventSink interface {
	ConnectionChanged(ConnState)
	PlaybackChanged(StateEvent)
	MetadataChanged(MetadataEvent)
}

// Transport is the binding to an actual out-of-process player.
// Implementations push connection and playback events into the sink
// passed to Connect, in FIFO order per connection epoch.
type Transport interface {
	// Connect initiates a connection attempt and registers the sink.
	// A non-nil error indicates a transient dial problem; explicit
	// connection failure is signaled through the sink instead.
	Connect(ctx context.Context, sink EventSink) error

	// Disconnect tears the connection down.
	Disconnect()

	// RootID returns the backend's addressable root handle.
	RootID() (string, error)

	// Subscribe subscribes to the catalog-children stream under parentID.
	Subscribe(parentID string) error

	// Unsubscribe cancels a children subscription.
	Unsubscribe(parentID string) error

	// Send forwards a command to the player.
	Send(cmd Command) error
}
