// Package config loads the daemon configuration from TOML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Tracking TrackingConfig `koanf:"tracking"`
	Players  PlayersConfig  `koanf:"players"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
}

// TrackingConfig controls eligibility and what gets recorded.
type TrackingConfig struct {
	MinPlaySeconds     int     `koanf:"min_play_seconds"`     // absolute eligibility floor (default: 30)
	MinPlayPercent     float64 `koanf:"min_play_percent"`     // completion clause, 0.0-1.0 (default: 0.5)
	LocalOnly          bool    `koanf:"local_only"`           // record only local playback (default: true)
	TrackSeeks         bool    `koanf:"track_seeks"`          // aggregate seek behavior (default: true)
	TrackVolume        bool    `koanf:"track_volume"`         // sample volume levels (default: true)
	TrackContext       bool    `koanf:"track_context"`        // capture desktop context probes (default: true)
	IdleTimeoutSeconds int     `koanf:"idle_timeout_seconds"` // idle shutdown, 0 disables (default: 30)
}

// PlayersConfig filters which MPRIS endpoints get tracked. Entries are
// substrings matched against the well-known name with its
// org.mpris.MediaPlayer2. prefix stripped. A blacklist match always wins;
// an empty whitelist admits everything.
type PlayersConfig struct {
	Whitelist []string `koanf:"whitelist"`
	Blacklist []string `koanf:"blacklist"`
	LocalOnly []string `koanf:"local_only_players"` // players always considered local
}

// DatabaseConfig overrides the database location.
type DatabaseConfig struct {
	Path string `koanf:"path"` // empty means the XDG data directory
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `koanf:"level"` // "debug", "info", "warn", "error" (default: "info")
	File  string `koanf:"file"`  // log file path; empty logs to stderr
}

func Load() (*Config, error) {
	return loadPaths(getConfigPaths())
}

func loadPaths(paths []string) (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := defaults()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path != "" {
		cfg.Database.Path = expandPath(cfg.Database.Path)
	}
	if cfg.Log.File != "" {
		cfg.Log.File = expandPath(cfg.Log.File)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Tracking: TrackingConfig{
			MinPlaySeconds:     30,
			MinPlayPercent:     0.5,
			LocalOnly:          true,
			TrackSeeks:         true,
			TrackVolume:        true,
			TrackContext:       true,
			IdleTimeoutSeconds: 30,
		},
		Players: PlayersConfig{
			LocalOnly: []string{"mpv", "vlc", "audacious", "rhythmbox", "quodlibet", "clementine", "strawberry"},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate rejects settings that would make eligibility meaningless.
func (c *Config) Validate() error {
	if c.Tracking.MinPlayPercent < 0 || c.Tracking.MinPlayPercent > 1 {
		return fmt.Errorf("tracking.min_play_percent must be between 0 and 1, got %v", c.Tracking.MinPlayPercent)
	}
	if c.Tracking.MinPlaySeconds < 0 || c.Tracking.MinPlaySeconds > 3600 {
		return fmt.Errorf("tracking.min_play_seconds must be between 0 and 3600, got %d", c.Tracking.MinPlaySeconds)
	}
	if c.Tracking.IdleTimeoutSeconds < 0 {
		return fmt.Errorf("tracking.idle_timeout_seconds must not be negative, got %d", c.Tracking.IdleTimeoutSeconds)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// IdleTimeout returns the configured idle timeout; zero disables idle
// shutdown.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Tracking.IdleTimeoutSeconds) * time.Second
}

// MinPlay returns the eligibility floor as a duration.
func (c *Config) MinPlay() time.Duration {
	return time.Duration(c.Tracking.MinPlaySeconds) * time.Second
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/echoes/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "echoes", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
