// Package mpris binds the player backend to an MPRIS player on the
// D-Bus session bus.
package mpris

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/godbus/dbus/v5"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/soundmirror/internal/app/backend"
	"github.com/osa030/soundmirror/internal/domain/track"
)

const (
	busPrefix   = "org.mpris.MediaPlayer2."
	objectPath  = "/org/mpris/MediaPlayer2"
	playerIface = "org.mpris.MediaPlayer2.Player"
)

// Transport drives a single MPRIS player over the session bus and
// implements backend.Transport. MPRIS does not signal position changes,
// so a poller reads the Position property while connected.
type Transport struct {
	mu         sync.Mutex
	playerName string
	pollEvery  time.Duration

	conn      *dbus.Conn
	current   string
	sink      backend.EventSink
	cancel    context.CancelFunc
	queue     map[track.ID]string
	byLocator map[string]track.ID
	trackPath dbus.ObjectPath
}

// New creates a transport for the named player. An empty name means
// the first MPRIS player found on the bus is used.
func New(playerName string) *Transport {
	return &Transport{
		playerName: playerName,
		pollEvery:  time.Second,
		queue:      map[track.ID]string{},
		byLocator:  map[string]track.ID{},
	}
}

// Connect implements backend.Transport. It dials a private session bus
// connection, resolves the target player and starts the signal loop.
func (t *Transport) Connect(ctx context.Context, sink backend.EventSink) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return errors.Wrap(err, "session bus unavailable")
	}

	name, err := t.resolvePlayer(conn)
	if err != nil {
		_ = conn.Close()
		return err
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(objectPath),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "failed to add match signal")
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "failed to add match signal")
	}

	loopCtx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	t.conn = conn
	t.current = name
	t.sink = sink
	t.cancel = cancel
	t.mu.Unlock()

	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)

	zlog.Info().Msgf("mpris: connected to %s", name)
	sink.ConnectionChanged(backend.Connected)

	go t.loop(loopCtx, signals)

	t.pushCurrentState()
	return nil
}

// Disconnect implements backend.Transport.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	cancel := t.cancel
	conn := t.conn
	t.cancel = nil
	t.conn = nil
	t.current = ""
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

// RootID implements backend.Transport. The player's bus name doubles
// as the root handle.
func (t *Transport) RootID() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == "" {
		return "", errors.New("not connected")
	}
	return t.current, nil
}

// Subscribe implements backend.Transport. MPRIS has no browse tree, so
// subscribing re-publishes the current playback state instead.
func (t *Transport) Subscribe(parentID string) error {
	t.mu.Lock()
	connected := t.conn != nil
	t.mu.Unlock()
	if !connected {
		return errors.New("not connected")
	}
	t.pushCurrentState()
	return nil
}

// Unsubscribe implements backend.Transport.
func (t *Transport) Unsubscribe(parentID string) error {
	return nil
}

// Send implements backend.Transport.
func (t *Transport) Send(cmd backend.Command) error {
	t.mu.Lock()
	conn := t.conn
	name := t.current
	t.mu.Unlock()
	if conn == nil {
		return errors.New("not connected")
	}

	obj := conn.Object(name, objectPath)

	switch c := cmd.(type) {
	case backend.Play:
		return t.call(obj, "Play")
	case backend.Pause:
		return t.call(obj, "Pause")
	case backend.Stop:
		return t.call(obj, "Stop")
	case backend.SkipNext:
		return t.call(obj, "Next")
	case backend.SeekTo:
		t.mu.Lock()
		path := t.trackPath
		t.mu.Unlock()
		if path == "" {
			// SetPosition needs the current track object path.
			zlog.Warn().Msg("mpris: seek with no current track, ignored")
			return nil
		}
		return t.call(obj, "SetPosition", path, c.Millis*1000)
	case backend.PlayFromID:
		t.mu.Lock()
		locator, ok := t.queue[c.TrackID]
		t.mu.Unlock()
		if !ok {
			return errors.Newf("track %s is not in the loaded queue", c.TrackID)
		}
		return t.call(obj, "OpenUri", locator)
	case backend.LoadQueue:
		t.setQueue(c.Tracks)
		return nil
	case backend.Refresh:
		t.pushCurrentState()
		return nil
	default:
		return errors.Newf("unsupported command %s", backend.Name(cmd))
	}
}

func (t *Transport) call(obj dbus.BusObject, method string, args ...any) error {
	if call := obj.Call(playerIface+"."+method, 0, args...); call.Err != nil {
		return errors.Wrapf(call.Err, "mpris %s failed", method)
	}
	return nil
}

// setQueue records the locator mapping for later PlayFromID lookups.
// MPRIS has no portable queue-replacement call.
func (t *Transport) setQueue(tracks []track.Track) {
	queue := make(map[track.ID]string, len(tracks))
	byLocator := make(map[string]track.ID, len(tracks))
	for _, tr := range tracks {
		queue[tr.ID] = tr.SourceLocator
		byLocator[tr.SourceLocator] = tr.ID
	}

	t.mu.Lock()
	t.queue = queue
	t.byLocator = byLocator
	t.mu.Unlock()

	zlog.Debug().Msgf("mpris: queue loaded: track_count=%d", len(tracks))
}

// resolvePlayer finds the target player's well-known bus name.
func (t *Transport) resolvePlayer(conn *dbus.Conn) (string, error) {
	if t.playerName != "" {
		var owner string
		err := conn.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0, t.playerName).Store(&owner)
		if err != nil {
			return "", errors.Wrapf(err, "player %s is not on the bus", t.playerName)
		}
		return t.playerName, nil
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return "", errors.Wrap(err, "failed to list bus names")
	}
	for _, name := range names {
		if strings.HasPrefix(name, busPrefix) {
			return name, nil
		}
	}
	return "", errors.New("no mpris player found on the bus")
}

// loop consumes bus signals and the position poll ticker.
func (t *Transport) loop(ctx context.Context, signals chan *dbus.Signal) {
	ticker := time.NewTicker(t.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			if sig == nil {
				continue
			}
			switch sig.Name {
			case "org.freedesktop.DBus.NameOwnerChanged":
				t.handleNameOwnerChanged(sig)
			case "org.freedesktop.DBus.Properties.PropertiesChanged":
				t.handlePropertiesChanged(sig)
			}
		case <-ticker.C:
			t.pushCurrentState()
		}
	}
}

// handleNameOwnerChanged reports a disconnect when the player leaves
// the bus.
func (t *Transport) handleNameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) < 3 {
		return
	}
	name, _ := sig.Body[0].(string)
	newOwner, _ := sig.Body[2].(string)

	t.mu.Lock()
	current := t.current
	sink := t.sink
	t.mu.Unlock()

	if name != current || newOwner != "" || sink == nil {
		return
	}

	zlog.Warn().Msgf("mpris: player %s left the bus", name)
	t.Disconnect()
	sink.ConnectionChanged(backend.Disconnected)
}

func (t *Transport) handlePropertiesChanged(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	iface, _ := sig.Body[0].(string)
	if iface != playerIface {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	t.mu.Lock()
	sink := t.sink
	t.mu.Unlock()
	if sink == nil {
		return
	}

	if md, ok := changed["Metadata"]; ok {
		if meta, ok := md.Value().(map[string]dbus.Variant); ok {
			t.applyMetadata(meta, sink)
		}
	}
	if _, ok := changed["PlaybackStatus"]; ok {
		t.pushCurrentState()
	}
}

// applyMetadata records the current track object path and forwards a
// metadata event, mapping the player's locator back to a catalog ID
// when the track came from the loaded queue.
func (t *Transport) applyMetadata(meta map[string]dbus.Variant, sink backend.EventSink) {
	path := trackObjectPath(meta)
	locator := trackURL(meta)

	t.mu.Lock()
	if path != "" {
		t.trackPath = path
	}
	id, known := t.byLocator[locator]
	t.mu.Unlock()

	trackID := locator
	if known {
		trackID = id.String()
	}
	sink.MetadataChanged(backend.MetadataEvent{TrackID: trackID})
}

// pushCurrentState reads playback properties and forwards a state event.
func (t *Transport) pushCurrentState() {
	t.mu.Lock()
	conn := t.conn
	name := t.current
	sink := t.sink
	t.mu.Unlock()
	if conn == nil || sink == nil {
		return
	}

	obj := conn.Object(name, objectPath)

	status, err := obj.GetProperty(playerIface + ".PlaybackStatus")
	if err != nil {
		zlog.Debug().Msgf("mpris: read PlaybackStatus: %v", err)
		return
	}
	playing := statusPlaying(status.Value())

	var position int64
	if pos, err := obj.GetProperty(playerIface + ".Position"); err == nil {
		position = microsAsMillis(pos.Value())
	}

	var duration int64
	if md, err := obj.GetProperty(playerIface + ".Metadata"); err == nil {
		if meta, ok := md.Value().(map[string]dbus.Variant); ok {
			duration = lengthMillis(meta)
		}
	}

	sink.PlaybackChanged(backend.StateEvent{
		Playing:        playing,
		PositionMillis: position,
		DurationMillis: duration,
	})
}

// statusPlaying maps an MPRIS PlaybackStatus value to a playing flag.
func statusPlaying(v any) bool {
	s, _ := v.(string)
	return s == "Playing"
}

// lengthMillis extracts mpris:length (microseconds) from track metadata.
// Players disagree on the integer type used, so several are accepted.
func lengthMillis(meta map[string]dbus.Variant) int64 {
	v, ok := meta["mpris:length"]
	if !ok {
		return 0
	}
	return microsAsMillis(v.Value())
}

func microsAsMillis(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n / 1000
	case uint64:
		return int64(n / 1000)
	case int32:
		return int64(n) / 1000
	case uint32:
		return int64(n) / 1000
	case float64:
		return int64(n) / 1000
	default:
		return 0
	}
}

func trackObjectPath(meta map[string]dbus.Variant) dbus.ObjectPath {
	v, ok := meta["mpris:trackid"]
	if !ok {
		return ""
	}
	switch p := v.Value().(type) {
	case dbus.ObjectPath:
		return p
	case string:
		return dbus.ObjectPath(p)
	default:
		return ""
	}
}

func trackURL(meta map[string]dbus.Variant) string {
	v, ok := meta["xesam:url"]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}
