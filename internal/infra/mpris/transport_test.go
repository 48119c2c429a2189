package mpris

import (
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"

	"github.com/osa030/soundmirror/internal/app/backend"
	"github.com/osa030/soundmirror/internal/domain/track"
)

func TestStatusPlaying(t *testing.T) {
	assert.True(t, statusPlaying("Playing"))
	assert.False(t, statusPlaying("Paused"))
	assert.False(t, statusPlaying("Stopped"))
	assert.False(t, statusPlaying(nil))
	assert.False(t, statusPlaying(42))
}

func TestMicrosAsMillis(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected int64
	}{
		{name: "Int64", value: int64(184000000), expected: 184000},
		{name: "Uint64", value: uint64(5000000), expected: 5000},
		{name: "Int32", value: int32(2000000), expected: 2000},
		{name: "Float64", value: float64(1500000), expected: 1500},
		{name: "Unsupported", value: "184000000", expected: 0},
		{name: "Nil", value: nil, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, microsAsMillis(tt.value))
		})
	}
}

func TestLengthMillis(t *testing.T) {
	meta := map[string]dbus.Variant{
		"mpris:length": dbus.MakeVariant(int64(184000000)),
	}
	assert.Equal(t, int64(184000), lengthMillis(meta))
	assert.Equal(t, int64(0), lengthMillis(map[string]dbus.Variant{}))
}

func TestTrackObjectPath(t *testing.T) {
	meta := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(dbus.ObjectPath("/org/mpd/Tracks/5")),
	}
	assert.Equal(t, dbus.ObjectPath("/org/mpd/Tracks/5"), trackObjectPath(meta))

	meta = map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant("/org/mpd/Tracks/7"),
	}
	assert.Equal(t, dbus.ObjectPath("/org/mpd/Tracks/7"), trackObjectPath(meta))

	assert.Equal(t, dbus.ObjectPath(""), trackObjectPath(map[string]dbus.Variant{}))
}

type captureSink struct {
	metadata []backend.MetadataEvent
}

func (s *captureSink) ConnectionChanged(backend.ConnState) {}

func (s *captureSink) PlaybackChanged(backend.StateEvent) {}

func (s *captureSink) MetadataChanged(ev backend.MetadataEvent) {
	s.metadata = append(s.metadata, ev)
}

func TestApplyMetadataMapsQueuedLocator(t *testing.T) {
	tr := New("")
	tr.setQueue([]track.Track{
		{ID: 3, SourceLocator: "file:///music/song.mp3"},
	})

	sink := &captureSink{}
	tr.applyMetadata(map[string]dbus.Variant{
		"xesam:url":     dbus.MakeVariant("file:///music/song.mp3"),
		"mpris:trackid": dbus.MakeVariant(dbus.ObjectPath("/player/track/1")),
	}, sink)

	assert.Equal(t, []backend.MetadataEvent{{TrackID: "3"}}, sink.metadata)
	assert.Equal(t, dbus.ObjectPath("/player/track/1"), tr.trackPath)
}

func TestApplyMetadataUnknownLocatorPassesThrough(t *testing.T) {
	tr := New("")
	sink := &captureSink{}

	tr.applyMetadata(map[string]dbus.Variant{
		"xesam:url": dbus.MakeVariant("file:///elsewhere/other.mp3"),
	}, sink)

	assert.Equal(t, []backend.MetadataEvent{{TrackID: "file:///elsewhere/other.mp3"}}, sink.metadata)
}

func TestSendRequiresConnection(t *testing.T) {
	tr := New("")
	assert.Error(t, tr.Send(backend.Play{}))
	assert.Error(t, tr.Subscribe("root"))

	_, err := tr.RootID()
	assert.Error(t, err)
}
