// Package config handles configuration loading from TOML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"
)

// Config is the root configuration structure.
type Config struct {
	// Workers is the size of the background parsing pool.
	Workers int `toml:"workers"`
	// UserOptions are compiler-style flags, split with shell quoting rules.
	UserOptions         string          `toml:"user_options"`
	ExcludedDirectories []string        `toml:"excluded_directories"`
	Companion           CompanionConfig `toml:"companion"`
	Log                 LogConfig       `toml:"log"`
	Watch               WatchConfig     `toml:"watch"`
}

// CompanionConfig tunes the companion file search.
type CompanionConfig struct {
	SearchLimit int     `toml:"search_limit"`
	Similarity  float64 `toml:"similarity"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// LevelOrDefault returns the configured level or "info" if unset.
func (l LogConfig) LevelOrDefault() string {
	if l.Level == "" {
		return "info"
	}
	return l.Level
}

// WatchConfig holds disk watcher settings.
type WatchConfig struct {
	Enabled    bool `toml:"enabled"`
	DebounceMS int  `toml:"debounce_ms"`
}

// Debounce returns the debounce window, 100ms if unset.
func (w WatchConfig) Debounce() time.Duration {
	if w.DebounceMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(w.DebounceMS) * time.Millisecond
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Workers:             7,
		ExcludedDirectories: []string{".git", ".hg", ".svn"},
		Companion: CompanionConfig{
			SearchLimit: 50,
			Similarity:  0.8,
		},
		Log: LogConfig{Level: "info"},
		Watch: WatchConfig{
			DebounceMS: 100,
		},
	}
}

// Load reads configuration from a TOML file and applies environment variable
// overrides. An empty path yields the defaults with overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	var errs []error

	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers=%d must be at least 1", c.Workers))
	}
	if c.Companion.SearchLimit < 1 {
		errs = append(errs, fmt.Errorf("companion.search_limit=%d must be at least 1", c.Companion.SearchLimit))
	}
	if c.Companion.Similarity <= 0 || c.Companion.Similarity >= 1 {
		errs = append(errs, fmt.Errorf("companion.similarity=%v must be between 0 and 1", c.Companion.Similarity))
	}
	for _, pattern := range c.ExcludedDirectories {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Errorf("excluded_directories: invalid pattern %q", pattern))
		}
	}
	if _, err := zerolog.ParseLevel(c.Log.LevelOrDefault()); err != nil {
		errs = append(errs, fmt.Errorf("log.level=%q is invalid: %v", c.Log.Level, err))
	}
	if c.Watch.DebounceMS < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce_ms=%d must not be negative", c.Watch.DebounceMS))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	for _, setter := range []struct {
		env   string
		apply func(string)
	}{
		{"CXXNAV_USER_OPTIONS", func(v string) {
			if v != "" {
				cfg.UserOptions = v
			}
		}},
		{"CXXNAV_WORKERS", func(v string) {
			if v == "" {
				return
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("CXXNAV_WORKERS=%q: %w", v, err))
				return
			}
			cfg.Workers = n
		}},
		{"CXXNAV_LOG_LEVEL", func(v string) {
			if v != "" {
				cfg.Log.Level = v
			}
		}},
	} {
		setter.apply(os.Getenv(setter.env))
	}
	return errors.Join(errs...)
}

// DataDir returns the path to the cxxnav config directory (~/.config/cxxnav).
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "cxxnav"), nil
}

// DefaultPath returns ~/.config/cxxnav/config.toml if it exists, else "".
func DefaultPath() string {
	dir, err := DataDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, "config.toml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
