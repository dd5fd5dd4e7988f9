// Package config loads the player configuration from TOML files, with the
// XDG config directory as the base and a config.toml in the working
// directory taking priority.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	// Engine tunes the playback pipeline.
	Engine EngineConfig `koanf:"engine"`

	// EQ sets the startup equalizer curve.
	EQ EQConfig `koanf:"eq"`

	// History controls the recently-played database.
	History HistoryConfig `koanf:"history"`

	// LogLevel is a zerolog level name: "debug", "info", "warn", "error".
	LogLevel string `koanf:"log_level"`
}

// EngineConfig holds playback pipeline settings.
type EngineConfig struct {
	SampleRate     int     `koanf:"sample_rate"`      // output rate in Hz (default: 44100)
	LeadTimeMs     int     `koanf:"lead_time_ms"`     // arm transitions this early (default: 2000)
	HandoffLeadMs  int     `koanf:"handoff_lead_ms"`  // logical handoff ahead of the switch (default: 100)
	MaxTrackMB     int     `koanf:"max_track_mb"`     // encoded size ceiling (default: 800)
	MaxTrackHours  int     `koanf:"max_track_hours"`  // decoded duration ceiling (default: 4)
	Volume         float64 `koanf:"volume"`           // startup level 0.0-1.0 (default: 1.0)
	PositionTickMs int     `koanf:"position_tick_ms"` // progress publish interval (default: 200)
}

// EQConfig holds the startup equalizer settings. Gains are dB; frequencies Hz.
type EQConfig struct {
	BassDB     float64 `koanf:"bass_db"`
	MidDB      float64 `koanf:"mid_db"`
	TrebleDB   float64 `koanf:"treble_db"`
	BassFreq   float64 `koanf:"bass_freq"`   // default: 200
	MidFreq    float64 `koanf:"mid_freq"`    // default: 1000
	MidQ       float64 `koanf:"mid_q"`       // bell width (default: 1.0)
	TrebleFreq float64 `koanf:"treble_freq"` // default: 3200
}

// HistoryConfig holds recently-played settings.
type HistoryConfig struct {
	Enabled    *bool  `koanf:"enabled"`     // default: true
	Path       string `koanf:"path"`        // sqlite file (default: XDG data dir)
	MaxEntries int    `koanf:"max_entries"` // pruning threshold (default: 500)
}

func Load() (*Config, error) {
	return loadPaths(getConfigPaths()...)
}

func loadPaths(paths ...string) (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	if cfg.History.Path != "" {
		cfg.History.Path = expandPath(cfg.History.Path)
	}

	return cfg, nil
}

func getConfigPaths() []string {
	return []string{
		// 1. XDG config dir, e.g. ~/.config/brick/config.toml
		filepath.Join(xdg.ConfigHome, "brick", "config.toml"),
		// 2. ./config.toml (pwd, highest priority)
		"config.toml",
	}
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// GetEngineConfig returns the engine configuration with defaults applied.
func (c *Config) GetEngineConfig() EngineConfig {
	cfg := c.Engine

	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.LeadTimeMs <= 0 {
		cfg.LeadTimeMs = 2000
	}
	if cfg.HandoffLeadMs <= 0 {
		cfg.HandoffLeadMs = 100
	}
	if cfg.MaxTrackMB <= 0 {
		cfg.MaxTrackMB = 800
	}
	if cfg.MaxTrackHours <= 0 {
		cfg.MaxTrackHours = 4
	}
	if cfg.Volume <= 0 || cfg.Volume > 1 {
		cfg.Volume = 1.0
	}
	if cfg.PositionTickMs <= 0 {
		cfg.PositionTickMs = 200
	}

	return cfg
}

// GetEQConfig returns the equalizer configuration with defaults applied.
func (c *Config) GetEQConfig() EQConfig {
	cfg := c.EQ

	if cfg.BassFreq <= 0 {
		cfg.BassFreq = 200
	}
	if cfg.MidFreq <= 0 {
		cfg.MidFreq = 1000
	}
	if cfg.MidQ <= 0 {
		cfg.MidQ = 1.0
	}
	if cfg.TrebleFreq <= 0 {
		cfg.TrebleFreq = 3200
	}

	return cfg
}

// GetHistoryConfig returns the history configuration with defaults applied.
func (c *Config) GetHistoryConfig() HistoryConfig {
	cfg := c.History

	if cfg.Path == "" {
		cfg.Path = filepath.Join(xdg.DataHome, "brick", "history.db")
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 500
	}

	return cfg
}

// HistoryEnabled returns true unless history is explicitly disabled.
func (c *Config) HistoryEnabled() bool {
	return c.History.Enabled == nil || *c.History.Enabled
}

// LeadTime returns the transition arm lead as a duration.
func (c EngineConfig) LeadTime() time.Duration {
	return time.Duration(c.LeadTimeMs) * time.Millisecond
}

// HandoffLead returns the logical handoff lead as a duration.
func (c EngineConfig) HandoffLead() time.Duration {
	return time.Duration(c.HandoffLeadMs) * time.Millisecond
}

// PositionTick returns the progress publish interval as a duration.
func (c EngineConfig) PositionTick() time.Duration {
	return time.Duration(c.PositionTickMs) * time.Millisecond
}
