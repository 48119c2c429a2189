// Package track provides the Track domain entity.
package track

import (
	"strconv"
	"strings"
)

// UnknownArtist is substituted when the source reports the unknown-artist sentinel.
const UnknownArtist = "Unknown Artist"

// unknownSentinel is the marker some sources embed in the artist field
// when no artist metadata is available.
const unknownSentinel = "<unknown>"

// ID identifies a track. IDs are stable for the lifetime of a session.
type ID int64

// String returns the backend-addressable form of the ID.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseID parses the backend string form of an ID.
func ParseID(s string) (ID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ID(n), nil
}

// Track is an immutable playable track descriptor.
// Tracks are never mutated after catalog load; only derived copies are produced.
type Track struct {
	ID             ID     // Unique, stable for the session lifetime
	SourceLocator  string // Opaque URI-like reference resolved by the backend
	Title          string // Track title
	Artist         string // Artist name
	DisplayName    string // Name shown in lists (normalized)
	DurationMillis int64  // Non-negative; 0 means unknown
	ArtworkURL     string // Optional artwork reference
}

// Normalized returns a copy with the display name and artist normalized.
func (t Track) Normalized() Track {
	t.DisplayName = NormalizeDisplayName(t.DisplayName)
	t.Artist = NormalizeArtist(t.Artist)
	return t
}

// NormalizeDisplayName strips the trailing file extension, keeping
// everything before the first dot.
func NormalizeDisplayName(name string) string {
	if i := strings.Index(name, "."); i >= 0 {
		return name[:i]
	}
	return name
}

// NormalizeArtist substitutes the placeholder when the source reports
// an unknown-artist sentinel.
func NormalizeArtist(artist string) string {
	if strings.Contains(artist, unknownSentinel) {
		return UnknownArtist
	}
	return artist
}

// ProgressRatio returns the playback position as a percentage of the track
// duration, in [0, 100]. It is 0 whenever the duration is unknown (<= 0).
func ProgressRatio(positionMillis, durationMillis int64) float64 {
	if durationMillis <= 0 {
		return 0
	}
	ratio := float64(positionMillis) / float64(durationMillis) * 100
	if ratio < 0 {
		return 0
	}
	if ratio > 100 {
		return 100
	}
	return ratio
}
