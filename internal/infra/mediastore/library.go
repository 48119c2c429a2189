// Package mediastore provides a track source backed by a local music library.
package mediastore

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dhowden/tag"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/soundmirror/internal/domain/catalog"
	"github.com/osa030/soundmirror/internal/domain/track"
)

// audioExtensions are the file types the scanner picks up.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".wav":  true,
}

// Library scans a directory tree for audio files and serves them as raw
// track descriptors. IDs are assigned from the sorted walk order, so they
// stay stable across loads as long as the tree does not change.
type Library struct {
	root string
}

// NewLibrary creates a library source rooted at the given directory.
func NewLibrary(root string) (*Library, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(catalog.ErrSourceUnavailable, "library root %s: %v", root, err)
	}
	if !info.IsDir() {
		return nil, errors.Wrapf(catalog.ErrSourceUnavailable, "library root %s is not a directory", root)
	}
	return &Library{root: root}, nil
}

// LoadTracks implements catalog.Source.
func (l *Library) LoadTracks(ctx context.Context) ([]track.Track, error) {
	var paths []string
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if audioExtensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(catalog.ErrSourceUnavailable, err.Error())
	}

	sort.Strings(paths)

	tracks := make([]track.Track, 0, len(paths))
	for i, path := range paths {
		tracks = append(tracks, l.describe(track.ID(i+1), path))
	}

	zlog.Info().Msgf("mediastore: scanned %s: track_count=%d", l.root, len(tracks))
	return tracks, nil
}

// describe reads embedded tags, falling back to the file name when the
// file carries none. Duration is unknown (0) since tags do not carry it.
func (l *Library) describe(id track.ID, path string) track.Track {
	t := track.Track{
		ID:            id,
		SourceLocator: path,
		DisplayName:   filepath.Base(path),
	}

	f, err := os.Open(path)
	if err != nil {
		zlog.Debug().Msgf("mediastore: open %s: %v", path, err)
		return t
	}
	defer f.Close()

	meta, err := tag.ReadFrom(f)
	if err != nil {
		zlog.Debug().Msgf("mediastore: no tags in %s: %v", path, err)
		return t
	}

	if title := meta.Title(); title != "" {
		t.Title = title
	}
	t.Artist = meta.Artist()
	return t
}
