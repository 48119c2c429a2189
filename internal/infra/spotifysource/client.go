// Package spotifysource provides a track source backed by a Spotify playlist.
package spotifysource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/soundmirror/internal/domain/catalog"
	"github.com/osa030/soundmirror/internal/domain/track"
)

// Client loads a catalog from a Spotify playlist. Catalog IDs are assigned
// from playlist order; the Spotify track URI is carried in SourceLocator.
type Client struct {
	client      *spotify.Client
	playlistURL string
	market      string
	maxRetries  int
	retryDelay  time.Duration
}

// Config represents Spotify source configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	PlaylistURL  string
	Market       string
}

// New creates a new Spotify playlist source.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}
	if cfg.PlaylistURL == "" {
		return nil, errors.New("playlist url is required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(spotifyauth.ScopePlaylistReadPrivate),
	)

	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	httpClient := auth.Client(ctx, token)

	market := cfg.Market
	if market == "" {
		market = "JP"
	}

	return &Client{
		client:      spotify.New(httpClient),
		playlistURL: cfg.PlaylistURL,
		market:      market,
		maxRetries:  3,
		retryDelay:  time.Second,
	}, nil
}

// LoadTracks implements catalog.Source by paging through the playlist.
func (c *Client) LoadTracks(ctx context.Context) ([]track.Track, error) {
	playlistID := extractPlaylistID(c.playlistURL)
	if playlistID == "" {
		return nil, errors.Wrap(catalog.ErrSourceUnavailable, "invalid playlist url")
	}

	var tracks []track.Track
	offset := 0
	limit := 100

	for {
		var page *spotify.PlaylistItemPage
		err := c.retry(func() error {
			p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
				spotify.Limit(limit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(catalog.ErrSourceUnavailable, "failed to get playlist items: %v", err)
		}

		for _, item := range page.Items {
			// Episodes have no inner track and are skipped.
			if item.Track.Track != nil && item.Track.Track.ID != "" {
				tracks = append(tracks, convertTrack(track.ID(len(tracks)+1), item.Track.Track))
			}
		}

		if len(page.Items) < limit {
			break
		}
		offset += limit
	}

	return tracks, nil
}

// convertTrack converts a Spotify FullTrack to a domain track descriptor.
func convertTrack(id track.ID, t *spotify.FullTrack) track.Track {
	var artist string
	if len(t.Artists) > 0 {
		names := make([]string, len(t.Artists))
		for i, a := range t.Artists {
			names[i] = a.Name
		}
		artist = strings.Join(names, ", ")
	}

	var artwork string
	if len(t.Album.Images) > 0 {
		artwork = t.Album.Images[0].URL
	}

	return track.Track{
		ID:             id,
		SourceLocator:  fmt.Sprintf("spotify:track:%s", t.ID),
		Title:          t.Name,
		Artist:         artist,
		DisplayName:    t.Name,
		DurationMillis: int64(t.Duration),
		ArtworkURL:     artwork,
	}
}

// retry retries an operation with linear backoff.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable.
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractPlaylistID extracts the playlist ID from a Spotify playlist URL or URI.
func extractPlaylistID(input string) string {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "spotify:playlist:") {
		return strings.TrimPrefix(input, "spotify:playlist:")
	}

	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/playlist/") {
		parts := strings.Split(input, "/playlist/")
		if len(parts) >= 2 {
			id := strings.Split(parts[len(parts)-1], "?")[0]
			id = strings.TrimRight(id, "/")
			return id
		}
	}

	// Assume it's already a playlist ID.
	return input
}
