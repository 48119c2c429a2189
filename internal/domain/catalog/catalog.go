// Package catalog provides the ordered track catalog and its loader.
package catalog

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/soundmirror/internal/domain/track"
)

// ErrSourceUnavailable indicates the track source could not be read.
var ErrSourceUnavailable = errors.New("track source unavailable")

// Source loads raw track descriptors from an external content source.
type Source interface {
	LoadTracks(ctx context.Context) ([]track.Track, error)
}

// Catalog is an immutable ordered sequence of tracks.
// A refresh replaces the catalog wholesale, never patches it in place.
type Catalog struct {
	tracks []track.Track
	byID   map[track.ID]int
}

// New builds a catalog from an ordered track list.
func New(tracks []track.Track) *Catalog {
	byID := make(map[track.ID]int, len(tracks))
	owned := make([]track.Track, len(tracks))
	copy(owned, tracks)
	for i, t := range owned {
		byID[t.ID] = i
	}
	return &Catalog{tracks: owned, byID: byID}
}

// Empty returns a catalog with no tracks.
func Empty() *Catalog {
	return New(nil)
}

// Tracks returns a copy of the ordered track list.
func (c *Catalog) Tracks() []track.Track {
	out := make([]track.Track, len(c.tracks))
	copy(out, c.tracks)
	return out
}

// Lookup returns the track with the given ID, if present.
func (c *Catalog) Lookup(id track.ID) (track.Track, bool) {
	i, ok := c.byID[id]
	if !ok {
		return track.Track{}, false
	}
	return c.tracks[i], true
}

// Contains reports whether the catalog holds the given ID.
func (c *Catalog) Contains(id track.ID) bool {
	_, ok := c.byID[id]
	return ok
}

// Len returns the number of tracks.
func (c *Catalog) Len() int {
	return len(c.tracks)
}

// Load reads all tracks from the source and applies display-name and
// artist normalization. The returned catalog is immutable.
func Load(ctx context.Context, source Source) (*Catalog, error) {
	raw, err := source.LoadTracks(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load tracks")
	}

	tracks := make([]track.Track, 0, len(raw))
	for _, t := range raw {
		tracks = append(tracks, t.Normalized())
	}
	return New(tracks), nil
}
