package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDisplayName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Strips extension",
			input:    "song.mp3",
			expected: "song",
		},
		{
			name:     "Keeps only part before first dot",
			input:    "feat. someone.flac",
			expected: "feat",
		},
		{
			name:     "No extension",
			input:    "song",
			expected: "song",
		},
		{
			name:     "Empty name",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeDisplayName(tt.input))
		})
	}
}

func TestNormalizeArtist(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Unknown sentinel",
			input:    "<unknown>",
			expected: UnknownArtist,
		},
		{
			name:     "Sentinel embedded",
			input:    "some <unknown> artist",
			expected: UnknownArtist,
		},
		{
			name:     "Regular artist",
			input:    "The Band",
			expected: "The Band",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeArtist(tt.input))
		})
	}
}

func TestProgressRatio(t *testing.T) {
	tests := []struct {
		name     string
		position int64
		duration int64
		expected float64
	}{
		{
			name:     "Halfway",
			position: 5000,
			duration: 10000,
			expected: 50.0,
		},
		{
			name:     "Zero duration",
			position: 5000,
			duration: 0,
			expected: 0,
		},
		{
			name:     "Negative duration",
			position: 5000,
			duration: -1,
			expected: 0,
		},
		{
			name:     "Position past end clamps to 100",
			position: 12000,
			duration: 10000,
			expected: 100.0,
		},
		{
			name:     "Negative position clamps to 0",
			position: -100,
			duration: 10000,
			expected: 0,
		},
		{
			name:     "Start of track",
			position: 0,
			duration: 10000,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ProgressRatio(tt.position, tt.duration))
		})
	}
}

func TestIDString(t *testing.T) {
	assert.Equal(t, "42", ID(42).String())

	id, err := ParseID("42")
	assert.NoError(t, err)
	assert.Equal(t, ID(42), id)

	_, err = ParseID("not-a-number")
	assert.Error(t, err)
}

func TestNormalized(t *testing.T) {
	orig := Track{
		ID:          1,
		DisplayName: "tune.ogg",
		Artist:      "<unknown>",
	}

	got := orig.Normalized()
	assert.Equal(t, "tune", got.DisplayName)
	assert.Equal(t, UnknownArtist, got.Artist)

	// The original is untouched; Normalized produces a derived copy.
	assert.Equal(t, "tune.ogg", orig.DisplayName)
	assert.Equal(t, "<unknown>", orig.Artist)
}
