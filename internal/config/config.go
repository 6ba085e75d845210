// Package config loads imagecell settings from TOML files.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	appName        = "imagecell"
	configFileName = "imagecell.toml"
	dbFileName     = "snapshots.db"
)

// Config is the merged contents of the config files. Zero values mean
// "use the default"; read settings through the Get* methods.
type Config struct {
	LogLevel string `koanf:"log_level"` // "debug", "info", "warn" or "error"

	Store    StoreConfig    `koanf:"store"`
	Cells    CellsConfig    `koanf:"cells"`
	Snapshot SnapshotConfig `koanf:"snapshot"`
}

// StoreConfig holds image store limits.
type StoreConfig struct {
	BudgetBytes   int64 `koanf:"budget_bytes"`    // footprint kept for unreferenced images (default: 256 MiB)
	Workers       int   `koanf:"workers"`         // concurrent decodes in batch ingest (default: 4)
	MaxInputBytes int   `koanf:"max_input_bytes"` // largest accepted encoded input (default: 64 MiB)
	MaxPixels     int   `koanf:"max_pixels"`      // largest decoded frame in pixels (default: 64 Mi)
}

// CellsConfig holds the pixel size of one terminal cell.
type CellsConfig struct {
	PixelWidth  int `koanf:"pixel_width"`  // default: 10
	PixelHeight int `koanf:"pixel_height"` // default: 20
}

// SnapshotConfig holds the snapshot database location.
type SnapshotConfig struct {
	Path string `koanf:"path"` // default: $XDG_DATA_HOME/imagecell/snapshots.db
}

// Load reads the config files in order of priority (last wins). Missing
// files are skipped.
func Load() (*Config, error) {
	return LoadFrom(getConfigPaths()...)
}

// LoadFrom reads the given config files in order; later files override
// earlier ones. Missing files are skipped.
func LoadFrom(paths ...string) (*Config, error) {
	k := koanf.New(".")

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	if cfg.Snapshot.Path != "" {
		cfg.Snapshot.Path = expandPath(cfg.Snapshot.Path)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	return cfg, nil
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/imagecell/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", appName, "config.toml"))
	}

	// 2. ./imagecell.toml (pwd, highest priority)
	paths = append(paths, configFileName)

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

// SlogLevel returns the configured log level, or info if unset.
func (c *Config) SlogLevel() (slog.Level, error) {
	return ParseLevel(c.LogLevel)
}

// ParseLevel converts a level name to a slog.Level. The empty string means
// info.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

// GetStoreConfig returns the store configuration with defaults applied.
func (c *Config) GetStoreConfig() StoreConfig {
	cfg := c.Store

	if cfg.BudgetBytes <= 0 {
		cfg.BudgetBytes = 256 << 20
	}
	if cfg.Workers <= 0 || cfg.Workers > 64 {
		cfg.Workers = 4
	}
	if cfg.MaxInputBytes <= 0 {
		cfg.MaxInputBytes = 64 << 20
	}
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = 64 << 20
	}

	return cfg
}

// GetCellsConfig returns the cell size with defaults applied.
func (c *Config) GetCellsConfig() CellsConfig {
	cfg := c.Cells

	if cfg.PixelWidth <= 0 {
		cfg.PixelWidth = 10
	}
	if cfg.PixelHeight <= 0 {
		cfg.PixelHeight = 20
	}

	return cfg
}

// SnapshotPath returns the snapshot database path, creating the default
// data directory when no path is configured.
func (c *Config) SnapshotPath() (string, error) {
	if c.Snapshot.Path != "" {
		return c.Snapshot.Path, nil
	}
	return xdg.DataFile(filepath.Join(appName, dbFileName))
}
