package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/soundmirror/internal/app/backend"
	"github.com/osa030/soundmirror/internal/app/notification"
	"github.com/osa030/soundmirror/internal/domain/catalog"
	"github.com/osa030/soundmirror/internal/domain/track"
)

// fakeBackend implements Backend with test-controlled event delivery.
type fakeBackend struct {
	mu        sync.Mutex
	connected bool
	sent      []backend.Command
	subs      []string
	unsubs    []string
	rootID    string

	connCh  chan backend.ConnState
	eventCh chan backend.Event
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		rootID:  "media-root",
		connCh:  make(chan backend.ConnState, 16),
		eventCh: make(chan backend.Event, 16),
	}
}

func (f *fakeBackend) Connect() {}

func (f *fakeBackend) ConnectionStates() <-chan backend.ConnState { return f.connCh }

func (f *fakeBackend) PlaybackEvents() <-chan backend.Event { return f.eventCh }

func (f *fakeBackend) SendCommand(cmd backend.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return backend.ErrBackendUnavailable
	}
	f.sent = append(f.sent, cmd)
	return nil
}

func (f *fakeBackend) CurrentRootID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return "", backend.ErrNotConnected
	}
	return f.rootID, nil
}

func (f *fakeBackend) Subscribe(parentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, parentID)
	return nil
}

func (f *fakeBackend) Unsubscribe(parentID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubs = append(f.unsubs, parentID)
}

func (f *fakeBackend) setConnState(s backend.ConnState) {
	f.mu.Lock()
	f.connected = s == backend.Connected
	f.mu.Unlock()
	f.connCh <- s
}

func (f *fakeBackend) pushState(playing bool, position, duration int64) {
	f.eventCh <- backend.Event{
		Kind:  backend.EventState,
		State: backend.StateEvent{Playing: playing, PositionMillis: position, DurationMillis: duration},
	}
}

func (f *fakeBackend) pushMetadata(trackID string) {
	f.eventCh <- backend.Event{
		Kind:     backend.EventMetadata,
		Metadata: backend.MetadataEvent{TrackID: trackID},
	}
}

func (f *fakeBackend) sentCommands() []backend.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backend.Command, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeBackend) subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.subs))
	copy(out, f.subs)
	return out
}

func (f *fakeBackend) unsubscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.unsubs))
	copy(out, f.unsubs)
	return out
}

// countingSource serves a fixed track list and counts loads.
type countingSource struct {
	mu     sync.Mutex
	tracks []track.Track
	err    error
	loads  int
}

func (s *countingSource) LoadTracks(ctx context.Context) ([]track.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return s.tracks, nil
}

func (s *countingSource) loadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads
}

func defaultTracks() []track.Track {
	return []track.Track{
		{ID: 1, DisplayName: "one.mp3", DurationMillis: 10000},
		{ID: 2, DisplayName: "two.mp3", DurationMillis: 20000},
		{ID: 3, DisplayName: "three.mp3", DurationMillis: 30000},
	}
}

func startCoordinator(t *testing.T, fb *fakeBackend, src catalog.Source) *Coordinator {
	t.Helper()
	c := New(src, fb, notification.NewManager(), Config{PollInterval: 10 * time.Millisecond})
	c.Start(context.Background())
	t.Cleanup(c.Close)
	return c
}

func startReady(t *testing.T, fb *fakeBackend, src catalog.Source) *Coordinator {
	t.Helper()
	c := startCoordinator(t, fb, src)
	require.Eventually(t, func() bool { return c.CatalogPhase() == PhaseReady }, time.Second, time.Millisecond)
	return c
}

func connect(t *testing.T, c *Coordinator, fb *fakeBackend) {
	t.Helper()
	fb.setConnState(backend.Connected)
	require.Eventually(t, c.IsConnected, time.Second, time.Millisecond)
}

func TestMusicListEmptyUntilLoaded(t *testing.T) {
	release := make(chan struct{})
	src := &blockingSource{release: release, tracks: defaultTracks()}
	fb := newFakeBackend()
	c := startCoordinator(t, fb, src)

	assert.Empty(t, c.MusicList())
	assert.NoError(t, c.CatalogError())

	close(release)
	require.Eventually(t, func() bool { return c.CatalogPhase() == PhaseReady }, time.Second, time.Millisecond)
	assert.Len(t, c.MusicList(), 3)
}

type blockingSource struct {
	release chan struct{}
	tracks  []track.Track
}

func (s *blockingSource) LoadTracks(ctx context.Context) ([]track.Track, error) {
	<-s.release
	return s.tracks, nil
}

func TestCatalogLoadFailure(t *testing.T) {
	src := &countingSource{err: catalog.ErrSourceUnavailable}
	fb := newFakeBackend()
	c := startCoordinator(t, fb, src)

	require.Eventually(t, func() bool { return c.CatalogError() != nil }, time.Second, time.Millisecond)
	assert.Empty(t, c.MusicList())
	assert.Equal(t, PhaseIdle, c.CatalogPhase())
	assert.True(t, errors.Is(c.CatalogError(), catalog.ErrSourceUnavailable))
}

func TestPlayStartsQueueThenTrack(t *testing.T) {
	src := &countingSource{tracks: defaultTracks()}
	fb := newFakeBackend()
	c := startReady(t, fb, src)
	connect(t, c, fb)

	require.NoError(t, c.PlayOrToggle(1))

	sent := fb.sentCommands()
	require.Len(t, sent, 2)

	lq, ok := sent[0].(backend.LoadQueue)
	require.True(t, ok, "first command must load the full queue")
	assert.Len(t, lq.Tracks, 3, "the entire catalog is queued, not just the selection")

	pf, ok := sent[1].(backend.PlayFromID)
	require.True(t, ok)
	assert.Equal(t, track.ID(1), pf.TrackID)
}

func TestSameTrackToggle(t *testing.T) {
	src := &countingSource{tracks: defaultTracks()}
	fb := newFakeBackend()
	c := startReady(t, fb, src)
	connect(t, c, fb)

	fb.pushMetadata("1")
	fb.pushState(true, 0, 10000)
	require.Eventually(t, c.IsPlaying, time.Second, time.Millisecond)

	// Playing the current track pauses it.
	require.NoError(t, c.PlayOrToggle(1))
	sent := fb.sentCommands()
	require.NotEmpty(t, sent)
	assert.IsType(t, backend.Pause{}, sent[len(sent)-1])

	// Backend confirms the pause; toggling again resumes.
	fb.pushState(false, 5000, 10000)
	require.Eventually(t, func() bool { return !c.IsPlaying() }, time.Second, time.Millisecond)

	require.NoError(t, c.PlayOrToggle(1))
	sent = fb.sentCommands()
	assert.IsType(t, backend.Play{}, sent[len(sent)-1])
}

func TestPlayRejectedWhileDisconnected(t *testing.T) {
	src := &countingSource{tracks: defaultTracks()}
	fb := newFakeBackend()
	c := startReady(t, fb, src)

	err := c.PlayOrToggle(1)
	assert.True(t, errors.Is(err, ErrBackendUnavailable))
	assert.Empty(t, fb.sentCommands(), "rejected commands must never reach the backend")

	// Reconnecting must not replay the rejected command.
	connect(t, c, fb)
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, fb.sentCommands())
}

func TestUnknownTrackRejected(t *testing.T) {
	src := &countingSource{tracks: defaultTracks()}
	fb := newFakeBackend()
	c := startReady(t, fb, src)
	connect(t, c, fb)

	err := c.PlayOrToggle(99)
	assert.True(t, errors.Is(err, ErrUnknownTrack))
	assert.Empty(t, fb.sentCommands())
}

func TestCatalogSurvivesReconnect(t *testing.T) {
	src := &countingSource{tracks: defaultTracks()}
	fb := newFakeBackend()
	c := startReady(t, fb, src)
	connect(t, c, fb)

	before := c.MusicList()

	fb.setConnState(backend.Disconnected)
	require.Eventually(t, func() bool { return !c.IsConnected() }, time.Second, time.Millisecond)

	connect(t, c, fb)

	after := c.MusicList()
	assert.Equal(t, before, after, "catalog identity survives connection churn")
	assert.Equal(t, 1, src.loadCount(), "reconnect must not reload the catalog from the source")

	// The children subscription is re-issued on every entry to Connected.
	require.Eventually(t, func() bool { return len(fb.subscriptions()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"media-root", "media-root"}, fb.subscriptions())
}

func TestEventOrderingLastDeliveredWins(t *testing.T) {
	src := &countingSource{tracks: defaultTracks()}
	fb := newFakeBackend()
	c := startReady(t, fb, src)
	connect(t, c, fb)

	fb.pushState(true, 1000, 10000)
	fb.pushState(true, 2000, 10000)
	fb.pushState(true, 1500, 10000)

	require.Eventually(t, func() bool {
		return c.Snapshot().PositionMillis == 1500
	}, time.Second, time.Millisecond, "final position must be the last delivered, never reordered by value")
}

func TestProgressScenario(t *testing.T) {
	src := &countingSource{tracks: []track.Track{{ID: 1, DurationMillis: 10000}}}
	fb := newFakeBackend()
	c := startReady(t, fb, src)
	connect(t, c, fb)

	require.NoError(t, c.PlayOrToggle(1))

	fb.pushMetadata("1")
	fb.pushState(true, 5000, 10000)

	require.Eventually(t, func() bool { return c.Progress() == 50.0 }, time.Second, time.Millisecond)

	current, ok := c.CurrentPlayingTrack()
	require.True(t, ok)
	assert.Equal(t, track.ID(1), current.ID)
	assert.True(t, c.IsPlaying())
}

func TestSeekConvertsRatio(t *testing.T) {
	src := &countingSource{tracks: defaultTracks()}
	fb := newFakeBackend()
	c := startReady(t, fb, src)
	connect(t, c, fb)

	fb.pushState(true, 0, 10000)
	require.Eventually(t, func() bool { return c.Snapshot().DurationMillis == 10000 }, time.Second, time.Millisecond)

	require.NoError(t, c.Seek(25))

	sent := fb.sentCommands()
	require.NotEmpty(t, sent)
	assert.Equal(t, backend.SeekTo{Millis: 2500}, sent[len(sent)-1])
}

func TestSeekUnknownDuration(t *testing.T) {
	src := &countingSource{tracks: defaultTracks()}
	fb := newFakeBackend()
	c := startReady(t, fb, src)
	connect(t, c, fb)

	require.NoError(t, c.Seek(50))

	sent := fb.sentCommands()
	require.NotEmpty(t, sent)
	assert.Equal(t, backend.SeekTo{Millis: 0}, sent[len(sent)-1])
}

func TestSeekClampsRatio(t *testing.T) {
	src := &countingSource{tracks: defaultTracks()}
	fb := newFakeBackend()
	c := startReady(t, fb, src)
	connect(t, c, fb)

	fb.pushState(true, 0, 10000)
	require.Eventually(t, func() bool { return c.Snapshot().DurationMillis == 10000 }, time.Second, time.Millisecond)

	require.NoError(t, c.Seek(150))
	sent := fb.sentCommands()
	assert.Equal(t, backend.SeekTo{Millis: 10000}, sent[len(sent)-1])

	require.NoError(t, c.Seek(-5))
	sent = fb.sentCommands()
	assert.Equal(t, backend.SeekTo{Millis: 0}, sent[len(sent)-1])
}

func TestFastForwardAndRewind(t *testing.T) {
	src := &countingSource{tracks: defaultTracks()}
	fb := newFakeBackend()
	c := startReady(t, fb, src)
	connect(t, c, fb)

	fb.pushState(true, 15000, 30000)
	require.Eventually(t, func() bool { return c.Snapshot().PositionMillis == 15000 }, time.Second, time.Millisecond)

	require.NoError(t, c.FastForward())
	sent := fb.sentCommands()
	assert.Equal(t, backend.SeekTo{Millis: 25000}, sent[len(sent)-1])

	require.NoError(t, c.Rewind())
	sent = fb.sentCommands()
	assert.Equal(t, backend.SeekTo{Millis: 5000}, sent[len(sent)-1])
}

func TestRewindClampsAtZero(t *testing.T) {
	src := &countingSource{tracks: defaultTracks()}
	fb := newFakeBackend()
	c := startReady(t, fb, src)
	connect(t, c, fb)

	fb.pushState(true, 3000, 30000)
	require.Eventually(t, func() bool { return c.Snapshot().PositionMillis == 3000 }, time.Second, time.Millisecond)

	require.NoError(t, c.Rewind())
	sent := fb.sentCommands()
	assert.Equal(t, backend.SeekTo{Millis: 0}, sent[len(sent)-1])
}

func TestRefreshReplacesCatalogAndToleratesStaleSnapshot(t *testing.T) {
	src := &countingSource{tracks: defaultTracks()}
	fb := newFakeBackend()
	c := startReady(t, fb, src)
	connect(t, c, fb)

	fb.pushMetadata("1")
	require.Eventually(t, func() bool {
		_, ok := c.CurrentPlayingTrack()
		return ok
	}, time.Second, time.Millisecond)

	// Refresh to a catalog that no longer contains track 1.
	src.mu.Lock()
	src.tracks = []track.Track{{ID: 7, DisplayName: "seven.mp3"}}
	src.mu.Unlock()

	require.NoError(t, c.RefreshCatalog(context.Background()))

	list := c.MusicList()
	require.Len(t, list, 1)
	assert.Equal(t, track.ID(7), list[0].ID)

	// The stale snapshot is retained but never dereferenced for rendering.
	snap := c.Snapshot()
	require.NotNil(t, snap.CurrentTrackID)
	assert.Equal(t, track.ID(1), *snap.CurrentTrackID)

	_, ok := c.CurrentPlayingTrack()
	assert.False(t, ok)

	// A new metadata event replaces the stale reference.
	fb.pushMetadata("7")
	require.Eventually(t, func() bool {
		current, ok := c.CurrentPlayingTrack()
		return ok && current.ID == 7
	}, time.Second, time.Millisecond)
}

func TestToggleIsIdempotentAcrossTwoFlips(t *testing.T) {
	src := &countingSource{tracks: defaultTracks()}
	fb := newFakeBackend()
	c := startReady(t, fb, src)
	connect(t, c, fb)

	fb.pushMetadata("2")
	fb.pushState(true, 0, 20000)
	require.Eventually(t, c.IsPlaying, time.Second, time.Millisecond)

	require.NoError(t, c.PlayOrToggle(2))
	fb.pushState(false, 0, 20000)
	require.Eventually(t, func() bool { return !c.IsPlaying() }, time.Second, time.Millisecond)

	require.NoError(t, c.PlayOrToggle(2))
	fb.pushState(true, 0, 20000)
	require.Eventually(t, c.IsPlaying, time.Second, time.Millisecond)

	sent := fb.sentCommands()
	require.Len(t, sent, 2)
	assert.IsType(t, backend.Pause{}, sent[0])
	assert.IsType(t, backend.Play{}, sent[1])
}

func TestCloseUnsubscribesAndStopsLoop(t *testing.T) {
	src := &countingSource{tracks: defaultTracks()}
	fb := newFakeBackend()
	c := New(src, fb, notification.NewManager(), Config{PollInterval: 10 * time.Millisecond})
	c.Start(context.Background())

	require.Eventually(t, func() bool { return c.CatalogPhase() == PhaseReady }, time.Second, time.Millisecond)
	fb.setConnState(backend.Connected)
	require.Eventually(t, c.IsConnected, time.Second, time.Millisecond)

	c.Close()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("event loop did not stop")
	}
	assert.Equal(t, []string{"media-root"}, fb.unsubscriptions())
}
