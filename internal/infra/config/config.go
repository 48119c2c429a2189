// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Player  PlayerConfig  `yaml:"player"`
	Source  SourceConfig  `yaml:"source"`
	Backend BackendConfig `yaml:"backend"`
	Log     LogConfig     `yaml:"log"`
}

// PlayerConfig represents playback coordination configuration.
type PlayerConfig struct {
	PollIntervalMs int `yaml:"poll_interval_ms" default:"1000" validate:"gte=100,lte=10000"`
	ReconnectMinMs int `yaml:"reconnect_min_ms" default:"500" validate:"gte=10"`
	ReconnectMaxMs int `yaml:"reconnect_max_ms" default:"30000" validate:"gte=100"`
}

// SourceConfig selects and configures the track source driver.
type SourceConfig struct {
	Type     string         `yaml:"type" default:"library" validate:"required,oneof=library spotify"`
	Settings map[string]any `yaml:"settings"`
}

// BackendConfig selects and configures the player backend driver.
type BackendConfig struct {
	Type     string         `yaml:"type" default:"mpris" validate:"required,oneof=mpris"`
	Settings map[string]any `yaml:"settings"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info"`
}

// LibrarySettings are the settings for the local library source.
type LibrarySettings struct {
	Root string `mapstructure:"root"`
}

// SpotifySettings are the settings for the Spotify playlist source.
type SpotifySettings struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	PlaylistURL  string `mapstructure:"playlist_url"`
	Market       string `mapstructure:"market"`
}

// MPRISSettings are the settings for the MPRIS backend.
type MPRISSettings struct {
	PlayerName string `mapstructure:"player_name"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for credentials.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if c.Source.Type != "spotify" {
		return
	}
	if c.Source.Settings == nil {
		c.Source.Settings = make(map[string]any)
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Source.Settings["client_id"] = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Source.Settings["client_secret"] = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Source.Settings["refresh_token"] = v
	}
}

// Validate validates the configuration, including the selected driver's settings.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Player.ReconnectMinMs > c.Player.ReconnectMaxMs {
		return errors.Newf("reconnect_min_ms (%d) must not exceed reconnect_max_ms (%d)",
			c.Player.ReconnectMinMs, c.Player.ReconnectMaxMs)
	}

	switch c.Source.Type {
	case "library":
		s, err := c.LibrarySettings()
		if err != nil {
			return err
		}
		if s.Root == "" {
			return errors.New("library source requires settings.root")
		}
	case "spotify":
		s, err := c.SpotifySettings()
		if err != nil {
			return err
		}
		if s.ClientID == "" || s.ClientSecret == "" || s.RefreshToken == "" {
			return errors.New("spotify source requires client_id, client_secret and refresh_token")
		}
		if s.PlaylistURL == "" {
			return errors.New("spotify source requires settings.playlist_url")
		}
	}

	return nil
}

// PollInterval returns the progress-poll cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Player.PollIntervalMs) * time.Millisecond
}

// ReconnectBounds returns the reconnect backoff bounds.
func (c *Config) ReconnectBounds() (time.Duration, time.Duration) {
	return time.Duration(c.Player.ReconnectMinMs) * time.Millisecond,
		time.Duration(c.Player.ReconnectMaxMs) * time.Millisecond
}

// LibrarySettings decodes the library source settings.
func (c *Config) LibrarySettings() (*LibrarySettings, error) {
	var s LibrarySettings
	if err := mapstructure.Decode(c.Source.Settings, &s); err != nil {
		return nil, errors.Wrap(err, "invalid library settings")
	}
	return &s, nil
}

// SpotifySettings decodes the Spotify source settings.
func (c *Config) SpotifySettings() (*SpotifySettings, error) {
	var s SpotifySettings
	if err := mapstructure.Decode(c.Source.Settings, &s); err != nil {
		return nil, errors.Wrap(err, "invalid spotify settings")
	}
	if s.Market == "" {
		s.Market = "JP"
	}
	return &s, nil
}

// MPRISSettings decodes the MPRIS backend settings.
func (c *Config) MPRISSettings() (*MPRISSettings, error) {
	var s MPRISSettings
	if err := mapstructure.Decode(c.Backend.Settings, &s); err != nil {
		return nil, errors.Wrap(err, "invalid mpris settings")
	}
	return &s, nil
}
