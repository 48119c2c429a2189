// Package main provides the soundmirror entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/soundmirror/internal/app/backend"
	"github.com/osa030/soundmirror/internal/app/coordinator"
	"github.com/osa030/soundmirror/internal/app/notification"
	"github.com/osa030/soundmirror/internal/domain/catalog"
	"github.com/osa030/soundmirror/internal/infra/config"
	"github.com/osa030/soundmirror/internal/infra/logger"
	"github.com/osa030/soundmirror/internal/infra/mediastore"
	"github.com/osa030/soundmirror/internal/infra/mpris"
	"github.com/osa030/soundmirror/internal/infra/spotifysource"
)

var (
	app        = kingpin.New("soundmirror", "Playback session coordinator for external players")
	configPath = app.Flag("config", "Path to config file").Default("config/soundmirror.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-tracks command
	listTracksCmd = app.Command("list-tracks", "Load the catalog, print it and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the coordinator (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == listTracksCmd.FullCommand() {
		if err := listTracks(cfg); err != nil {
			zlog.Error().Msgf("Failed to list tracks: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Coordinator error: %v", err)
		os.Exit(1)
	}
}

// run executes the main coordinator logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	source, err := buildSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create track source: %w", err)
	}

	transport, err := buildTransport(cfg)
	if err != nil {
		return fmt.Errorf("failed to create backend transport: %w", err)
	}

	min, max := cfg.ReconnectBounds()
	adapter := backend.NewAdapter(transport, backend.NewExponentialBackoff(min, max))
	defer adapter.Close()

	notifier := notification.NewManager()
	defer notifier.Close()

	coord := coordinator.New(source, adapter, notifier, coordinator.Config{
		PollInterval: cfg.PollInterval(),
	})

	// Console display subscriber
	display := &consoleDisplay{coord: coord}
	subID := notifier.Subscribe(display)
	defer notifier.Unsubscribe(subID)

	coord.Start(ctx)

	// Wait for shutdown signal or coordinator exit
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-coord.Done():
		zlog.Info().Msg("Coordinator stopped, shutting down...")
	}

	coord.Close()
	zlog.Info().Msg("Coordinator stopped")
	return nil
}

// listTracks loads the catalog once and prints it.
func listTracks(cfg *config.Config) error {
	ctx := context.Background()

	source, err := buildSource(ctx, cfg)
	if err != nil {
		return err
	}

	cat, err := catalog.Load(ctx, source)
	if err != nil {
		return err
	}

	fmt.Printf("Catalog (%d tracks):\n", cat.Len())
	for _, t := range cat.Tracks() {
		fmt.Printf("  %4s  %-40s %s\n", t.ID, t.DisplayName, t.Artist)
	}
	return nil
}

// buildSource creates the configured track source driver.
func buildSource(ctx context.Context, cfg *config.Config) (catalog.Source, error) {
	switch cfg.Source.Type {
	case "library":
		s, err := cfg.LibrarySettings()
		if err != nil {
			return nil, err
		}
		return mediastore.NewLibrary(s.Root)
	case "spotify":
		s, err := cfg.SpotifySettings()
		if err != nil {
			return nil, err
		}
		return spotifysource.New(ctx, spotifysource.Config{
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			RefreshToken: s.RefreshToken,
			PlaylistURL:  s.PlaylistURL,
			Market:       s.Market,
		})
	default:
		return nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
	}
}

// buildTransport creates the configured backend transport driver.
func buildTransport(cfg *config.Config) (backend.Transport, error) {
	switch cfg.Backend.Type {
	case "mpris":
		s, err := cfg.MPRISSettings()
		if err != nil {
			return nil, err
		}
		return mpris.New(s.PlayerName), nil
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Backend.Type)
	}
}

// consoleDisplay logs playback changes. Progress ticks repeat every poll
// interval, so only transitions are logged at info.
type consoleDisplay struct {
	coord *coordinator.Coordinator

	mu          sync.Mutex
	lastPlaying bool
	lastTrack   string
	lastConn    bool
	seen        bool
}

// Send implements notification.Stream.
func (d *consoleDisplay) Send(u *notification.Update) error {
	trackID := ""
	if u.TrackID != nil {
		trackID = u.TrackID.String()
	}

	d.mu.Lock()
	changed := !d.seen || u.Playing != d.lastPlaying || trackID != d.lastTrack || u.Connected != d.lastConn
	d.seen = true
	d.lastPlaying = u.Playing
	d.lastTrack = trackID
	d.lastConn = u.Connected
	d.mu.Unlock()

	if !changed {
		zlog.Debug().Msgf("progress: %.1f%% (%d/%d ms)", u.ProgressRatio, u.PositionMillis, u.DurationMillis)
		return nil
	}

	if !u.Connected {
		zlog.Info().Msg("Player disconnected")
		return nil
	}

	name := trackID
	if t, ok := d.coord.CurrentPlayingTrack(); ok {
		name = fmt.Sprintf("%s - %s", t.DisplayName, t.Artist)
	}

	switch {
	case name == "":
		zlog.Info().Msg("Player connected, nothing playing")
	case u.Playing:
		zlog.Info().Msgf("Now playing: %s", name)
	default:
		zlog.Info().Msgf("Paused: %s", name)
	}
	return nil
}
