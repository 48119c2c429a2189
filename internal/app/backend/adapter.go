package backend

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Errors
var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrNotConnected       = errors.New("not connected to backend")
)

// Adapter hides the connect/subscribe/command asymmetry of the external
// player behind a uniform facade. It holds no playback truth and renders
// nothing; it only forwards commands and mirrors connection state.
type Adapter struct {
	mu sync.RWMutex

	transport Transport
	policy    RetryPolicy

	state   ConnState
	started bool
	closed  bool

	connCh  chan ConnState
	eventCh chan Event

	ctx    context.Context
	cancel context.CancelFunc
}

// NewAdapter creates an adapter over the given transport. A nil policy
// selects the default exponential backoff.
func NewAdapter(transport Transport, policy RetryPolicy) *Adapter {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Adapter{
		transport: transport,
		policy:    policy,
		state:     Disconnected,
		connCh:    make(chan ConnState, 8),
		eventCh:   make(chan Event, 64),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Connect initiates the connection to the backend. It is idempotent; calling
// it again while a connection attempt is in flight does nothing. Transient
// dial errors leave the adapter in Connecting; Failed is entered only when
// the transport explicitly signals connection failure.
func (a *Adapter) Connect() {
	a.mu.Lock()
	if a.started || a.closed {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.mu.Unlock()

	go a.dial()
}

// ConnectionStates returns the connection-state stream. The stream is
// infinite and survives reconnects; subscribe once per session.
func (a *Adapter) ConnectionStates() <-chan ConnState {
	return a.connCh
}

// PlaybackEvents returns the raw backend event stream. Events are delivered
// only while Connected and strictly in delivery order; nothing flushes on
// disconnect, so the absence of recent events means "state unknown".
func (a *Adapter) PlaybackEvents() <-chan Event {
	return a.eventCh
}

// State returns the current connection state.
func (a *Adapter) State() ConnState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// IsConnected reports whether the backend is currently connected.
func (a *Adapter) IsConnected() bool {
	return a.State() == Connected
}

// SendCommand forwards a command to the player. Commands issued while not
// Connected fail with ErrBackendUnavailable and are never queued or
// replayed.
func (a *Adapter) SendCommand(cmd Command) error {
	if !a.IsConnected() {
		return errors.Wrapf(ErrBackendUnavailable, "dropping command %s", Name(cmd))
	}
	if err := a.transport.Send(cmd); err != nil {
		return errors.Wrapf(err, "failed to send command %s", Name(cmd))
	}
	return nil
}

// CurrentRootID returns the backend's addressable root handle.
func (a *Adapter) CurrentRootID() (string, error) {
	if !a.IsConnected() {
		return "", ErrNotConnected
	}
	rootID, err := a.transport.RootID()
	if err != nil {
		return "", errors.Wrap(err, "failed to get root id")
	}
	return rootID, nil
}

// Subscribe subscribes to the backend's catalog-children stream.
func (a *Adapter) Subscribe(parentID string) error {
	if !a.IsConnected() {
		return ErrNotConnected
	}
	return a.transport.Subscribe(parentID)
}

// Unsubscribe cancels a children subscription. Safe to call regardless of
// connection state; a disconnected backend has nothing to unsubscribe from.
func (a *Adapter) Unsubscribe(parentID string) {
	if !a.IsConnected() {
		return
	}
	if err := a.transport.Unsubscribe(parentID); err != nil {
		zlog.Debug().Msgf("backend: unsubscribe %s: %v", parentID, err)
	}
}

// Close stops reconnection attempts and disconnects the transport.
// The surrounding application owns the adapter lifetime, not the coordinator.
func (a *Adapter) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	a.cancel()
	a.transport.Disconnect()
}

// ConnectionChanged implements EventSink. Transitions are driven only by
// transport callbacks, never by the coordinator.
func (a *Adapter) ConnectionChanged(s ConnState) {
	a.mu.Lock()
	prev := a.state
	a.state = s
	closed := a.closed
	a.mu.Unlock()

	if s == prev {
		return
	}

	zlog.Info().Msgf("backend: connection state %s -> %s", prev, s)

	if s == Connected {
		a.policy.Reset()
	}

	a.publishConn(s)

	if (s == Disconnected || s == Failed) && !closed {
		a.scheduleReconnect()
	}
}

// PlaybackChanged implements EventSink.
func (a *Adapter) PlaybackChanged(e StateEvent) {
	if !a.IsConnected() {
		return
	}
	a.publishEvent(Event{Kind: EventState, State: e})
}

// MetadataChanged implements EventSink.
func (a *Adapter) MetadataChanged(e MetadataEvent) {
	if !a.IsConnected() {
		return
	}
	a.publishEvent(Event{Kind: EventMetadata, Metadata: e})
}

// dial runs one connection attempt. A transport error here is transient:
// the adapter stays in Connecting and retries per the policy. The backend
// owns the failure decision and reports it through the sink.
func (a *Adapter) dial() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.state = Connecting
	a.mu.Unlock()

	a.publishConn(Connecting)

	if err := a.transport.Connect(a.ctx, a); err != nil {
		zlog.Debug().Msgf("backend: dial failed, retrying: %v", err)
		a.scheduleReconnect()
	}
}

func (a *Adapter) scheduleReconnect() {
	delay := a.policy.NextDelay()
	zlog.Debug().Msgf("backend: reconnecting in %v", delay)

	go func() {
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(delay):
			a.dial()
		}
	}()
}

// publishConn delivers a connection-state transition. Sends block until the
// subscriber drains so transitions are never coalesced or reordered.
func (a *Adapter) publishConn(s ConnState) {
	select {
	case a.connCh <- s:
	case <-a.ctx.Done():
	}
}

func (a *Adapter) publishEvent(e Event) {
	select {
	case a.eventCh <- e:
	case <-a.ctx.Done():
	}
}
