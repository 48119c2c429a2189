package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/soundmirror/internal/app/backend"
	"github.com/osa030/soundmirror/internal/app/notification"
	"github.com/osa030/soundmirror/internal/domain/catalog"
	"github.com/osa030/soundmirror/internal/domain/track"
)

// PollInterval is the fixed progress-polling cadence.
const PollInterval = 1000 * time.Millisecond

// Errors
var (
	ErrBackendUnavailable = backend.ErrBackendUnavailable
	ErrUnknownTrack       = errors.New("track not in catalog")
)

// Backend is the adapter surface the coordinator depends on.
// *backend.Adapter implements it.
type Backend interface {
	Connect()
	ConnectionStates() <-chan backend.ConnState
	PlaybackEvents() <-chan backend.Event
	SendCommand(backend.Command) error
	CurrentRootID() (string, error)
	Subscribe(parentID string) error
	Unsubscribe(parentID string)
}

// Config holds coordinator configuration.
type Config struct {
	PollInterval time.Duration // Zero selects PollInterval
}

// Coordinator mirrors an external player's state into observable values and
// translates UI intents into backend commands, tolerating disconnection and
// reconnection at any time.
type Coordinator struct {
	mu sync.RWMutex

	sessionID string
	source    catalog.Source
	backend   Backend
	notifier  *notification.Manager

	pollInterval time.Duration

	// Catalog axis
	phase   Phase
	catalog *catalog.Catalog
	loadErr error

	// Connection axis (mirrored from the adapter, never driven locally)
	connected   bool
	rootMediaID string

	// Playback mirror
	snapshot Snapshot
	progress float64

	// Poll-loop stop flag, set only at teardown
	updatePosition bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a coordinator. The notifier may be shared with other consumers;
// the coordinator only broadcasts into it.
func New(source catalog.Source, b Backend, notifier *notification.Manager, cfg Config) *Coordinator {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = PollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		sessionID:      uuid.New().String(),
		source:         source,
		backend:        b,
		notifier:       notifier,
		pollInterval:   interval,
		phase:          PhaseIdle,
		updatePosition: true,
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
}

// Start launches the catalog load, the backend connection, and the
// serialized event loop. It returns immediately.
func (c *Coordinator) Start(ctx context.Context) {
	zlog.Info().Msgf("coordinator: starting session %s", c.sessionID)

	go c.loadCatalog(ctx)
	go c.run()
	c.backend.Connect()
}

// Done is closed when the event loop has exited.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// loadCatalog loads the catalog exactly once at startup. Until it completes,
// MusicList renders empty; failure is surfaced through CatalogError, not
// retried automatically.
func (c *Coordinator) loadCatalog(ctx context.Context) {
	c.mu.Lock()
	c.phase = PhaseLoading
	c.mu.Unlock()

	cat, err := catalog.Load(ctx, c.source)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.phase = PhaseIdle
		c.loadErr = err
		zlog.Error().Msgf("coordinator: catalog load failed: %v", err)
		return
	}
	c.phase = PhaseReady
	c.loadErr = nil
	c.catalog = cat
	zlog.Info().Msgf("coordinator: catalog loaded: track_count=%d", cat.Len())
}

// run is the single serialized loop. All snapshot and connection-mirror
// mutations happen here, so no two writers ever race on the snapshot.
func (c *Coordinator) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return

		case s, ok := <-c.backend.ConnectionStates():
			if !ok {
				return
			}
			c.handleConnState(s)

		case e, ok := <-c.backend.PlaybackEvents():
			if !ok {
				return
			}
			c.applyEvent(e)

		case <-ticker.C:
			c.mu.RLock()
			update := c.updatePosition
			c.mu.RUnlock()
			if update {
				c.pollTick()
			}
		}
	}
}

// handleConnState mirrors a connection transition. Each (re-)entry to
// Connected captures the root handle and re-issues the children
// subscription; the catalog itself survives connection churn untouched.
func (c *Coordinator) handleConnState(s backend.ConnState) {
	connected := s == backend.Connected

	c.mu.Lock()
	c.connected = connected
	c.mu.Unlock()

	if connected {
		rootID, err := c.backend.CurrentRootID()
		if err != nil {
			zlog.Warn().Msgf("coordinator: root id unavailable after connect: %v", err)
		} else {
			c.mu.Lock()
			c.rootMediaID = rootID
			c.mu.Unlock()

			if err := c.backend.Subscribe(rootID); err != nil {
				zlog.Warn().Msgf("coordinator: children subscription failed: %v", err)
			}
		}
	}

	c.publish()
}

// applyEvent folds a backend event into the snapshot, in delivery order.
// A stale event never overwrites a newer one because delivery order is the
// only order; last-delivered wins.
func (c *Coordinator) applyEvent(e backend.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Kind {
	case backend.EventState:
		c.snapshot.Playing = e.State.Playing
		c.snapshot.PositionMillis = e.State.PositionMillis
		if e.State.DurationMillis > 0 {
			c.snapshot.DurationMillis = e.State.DurationMillis
		}

	case backend.EventMetadata:
		if e.Metadata.TrackID == "" {
			c.snapshot.CurrentTrackID = nil
			return
		}
		id, err := track.ParseID(e.Metadata.TrackID)
		if err != nil {
			zlog.Debug().Msgf("coordinator: unparseable track id %q", e.Metadata.TrackID)
			c.snapshot.CurrentTrackID = nil
			return
		}
		c.snapshot.CurrentTrackID = &id
	}
}

// pollTick re-derives the progress ratio from the mirrored snapshot and
// publishes it. Pure local recomputation; it never touches backend I/O, so
// bursty backend events cannot stall the display cadence.
func (c *Coordinator) pollTick() {
	c.mu.Lock()
	c.progress = track.ProgressRatio(c.snapshot.PositionMillis, c.snapshot.DurationMillis)
	c.mu.Unlock()

	c.publish()
}

// publish broadcasts the current observable state.
func (c *Coordinator) publish() {
	c.mu.RLock()
	snap := c.snapshot.clone()
	update := &notification.Update{
		Connected:      c.connected,
		Playing:        snap.Playing,
		TrackID:        snap.CurrentTrackID,
		PositionMillis: snap.PositionMillis,
		DurationMillis: snap.DurationMillis,
		ProgressRatio:  c.progress,
	}
	c.mu.RUnlock()

	c.notifier.Broadcast(update)
}

// PlayOrToggle plays the given track, or toggles play/pause when it is
// already the current track. The entire catalog is loaded as the queue so
// skip-next has a well-defined successor. While disconnected the intent is
// rejected with ErrBackendUnavailable and never queued.
func (c *Coordinator) PlayOrToggle(id track.ID) error {
	c.mu.RLock()
	cat := c.catalog
	snap := c.snapshot.clone()
	connected := c.connected
	c.mu.RUnlock()

	if !connected {
		return ErrBackendUnavailable
	}
	if cat == nil || !cat.Contains(id) {
		return errors.Wrapf(ErrUnknownTrack, "id=%s", id)
	}

	if snap.CurrentTrackID != nil && *snap.CurrentTrackID == id {
		// Same-track toggle, never a reload.
		if snap.Playing {
			return c.backend.SendCommand(backend.Pause{})
		}
		return c.backend.SendCommand(backend.Play{})
	}

	if err := c.backend.SendCommand(backend.LoadQueue{Tracks: cat.Tracks()}); err != nil {
		return err
	}
	return c.backend.SendCommand(backend.PlayFromID{TrackID: id})
}

// Seek converts a UI ratio in [0,100] to an absolute position and forwards
// it. With an unknown duration this degenerates to SeekTo(0), matching the
// historical behavior rather than rejecting the seek.
func (c *Coordinator) Seek(ratio float64) error {
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 100 {
		ratio = 100
	}

	c.mu.RLock()
	duration := c.snapshot.DurationMillis
	c.mu.RUnlock()

	var millis int64
	if duration > 0 {
		millis = int64(float64(duration) * ratio / 100)
	}
	return c.backend.SendCommand(backend.SeekTo{Millis: millis})
}

// SkipNext skips to the next track in the backend queue.
func (c *Coordinator) SkipNext() error {
	return c.backend.SendCommand(backend.SkipNext{})
}

// Stop stops playback.
func (c *Coordinator) Stop() error {
	return c.backend.SendCommand(backend.Stop{})
}

// FastForward seeks 10 seconds forward from the mirrored position.
func (c *Coordinator) FastForward() error {
	return c.seekRelative(10 * 1000)
}

// Rewind seeks 10 seconds backward from the mirrored position.
func (c *Coordinator) Rewind() error {
	return c.seekRelative(-10 * 1000)
}

func (c *Coordinator) seekRelative(deltaMillis int64) error {
	c.mu.RLock()
	position := c.snapshot.PositionMillis
	c.mu.RUnlock()

	target := position + deltaMillis
	if target < 0 {
		target = 0
	}
	return c.backend.SendCommand(backend.SeekTo{Millis: target})
}

// RefreshCatalog replaces the catalog wholesale from the source and
// re-issues the backend children subscription. The snapshot is retained
// until the backend emits new metadata; a current track no longer present
// simply stops resolving through CurrentPlayingTrack.
func (c *Coordinator) RefreshCatalog(ctx context.Context) error {
	cat, err := catalog.Load(ctx, c.source)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.catalog = cat
	c.phase = PhaseReady
	c.loadErr = nil
	rootID := c.rootMediaID
	connected := c.connected
	c.mu.Unlock()

	zlog.Info().Msgf("coordinator: catalog refreshed: track_count=%d", cat.Len())

	if connected {
		if err := c.backend.SendCommand(backend.Refresh{}); err != nil {
			zlog.Debug().Msgf("coordinator: refresh command: %v", err)
		}
		if rootID != "" {
			if err := c.backend.Subscribe(rootID); err != nil {
				zlog.Warn().Msgf("coordinator: re-subscription after refresh failed: %v", err)
			}
		}
	}
	return nil
}

// IsConnected reports the mirrored connection flag.
func (c *Coordinator) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// MusicList returns the ordered catalog tracks, empty until loaded.
func (c *Coordinator) MusicList() []track.Track {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.catalog == nil {
		return nil
	}
	return c.catalog.Tracks()
}

// CatalogPhase returns the catalog readiness phase.
func (c *Coordinator) CatalogPhase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// CatalogError returns the startup load failure, if any. This is the one
// error surfaced as an explicit signal so a retry affordance can exist.
func (c *Coordinator) CatalogError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadErr
}

// CurrentPlayingTrack resolves the snapshot's current track against the
// live catalog. A stale or dangling id resolves to nothing rather than
// being dereferenced.
func (c *Coordinator) CurrentPlayingTrack() (track.Track, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.snapshot.CurrentTrackID == nil || c.catalog == nil {
		return track.Track{}, false
	}
	return c.catalog.Lookup(*c.snapshot.CurrentTrackID)
}

// IsPlaying reports the mirrored playing flag.
func (c *Coordinator) IsPlaying() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.Playing
}

// Progress returns the last published progress ratio in [0,100].
func (c *Coordinator) Progress() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.progress
}

// Snapshot returns a copy of the mirrored playback snapshot.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot.clone()
}

// Close tears the coordinator down: the children subscription is dropped and
// the stop flag suppresses the poll loop's next tick (an in-flight tick
// still completes). The backend connection itself belongs to the
// surrounding application and is left alone.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.updatePosition = false
	rootID := c.rootMediaID
	c.mu.Unlock()

	if rootID != "" {
		c.backend.Unsubscribe(rootID)
	}
	c.cancel()
	<-c.done
	zlog.Info().Msgf("coordinator: session %s closed", c.sessionID)
}
