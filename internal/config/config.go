// Package config handles msgindex configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Snapshot backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config is the root configuration structure for msgindex.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Snapshot persistence settings
	Snapshot SnapshotConfig `yaml:"snapshot" mapstructure:"snapshot"`

	// Dispatcher settings
	Dispatcher DispatcherConfig `yaml:"dispatcher" mapstructure:"dispatcher"`
}

// GlobalConfig contains global settings.
type GlobalConfig struct {
	// DataDir is where msgindex stores its data (default: ~/.local/share/msgindex).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/msgindex).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`

	// SelfUserID is the logged-in user, used to match direct messages.
	SelfUserID int64 `yaml:"self_user_id" mapstructure:"self_user_id"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// SnapshotConfig contains snapshot persistence settings.
type SnapshotConfig struct {
	// Backend is file (JSON only) or sqlite (JSON plus history).
	Backend string `yaml:"backend" mapstructure:"backend"`

	// Path is the JSON snapshot file (default: DataDir/cache.json).
	Path string `yaml:"path" mapstructure:"path"`

	// HistoryPath is the SQLite history database (default: DataDir/snapshots.db).
	HistoryPath string `yaml:"history_path" mapstructure:"history_path"`

	// Debounce is how long to wait after a change before writing.
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`

	// BusyTimeoutMs is how long to wait for a locked history database.
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`

	// Keep is how many history rows `snapshots prune` retains by default.
	Keep int `yaml:"keep" mapstructure:"keep"`
}

// DispatcherConfig contains dispatcher settings.
type DispatcherConfig struct {
	// QueueSize is the action buffer length.
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "msgindex"),
			ConfigDir: filepath.Join(homeDir, ".config", "msgindex"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Snapshot: SnapshotConfig{
			Backend:       BackendFile,
			Debounce:      1 * time.Second,
			BusyTimeoutMs: 5000,
			Keep:          20,
		},
		Dispatcher: DispatcherConfig{
			QueueSize: 256,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Snapshot.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("snapshot.backend must be one of file, sqlite (got %q)", c.Snapshot.Backend)
	}

	if c.Snapshot.Debounce < 0 {
		return fmt.Errorf("snapshot.debounce must not be negative")
	}

	if c.Snapshot.BusyTimeoutMs < 0 {
		return fmt.Errorf("snapshot.busy_timeout_ms must not be negative")
	}

	if c.Snapshot.Keep < 0 {
		return fmt.Errorf("snapshot.keep must not be negative")
	}

	if c.Dispatcher.QueueSize < 1 {
		return fmt.Errorf("dispatcher.queue_size must be at least 1")
	}

	if c.Global.SelfUserID < 0 {
		return fmt.Errorf("global.self_user_id must not be negative")
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be one of console, json")
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Global.DataDir,
		filepath.Dir(c.SnapshotPath()),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// SnapshotPath returns the full JSON snapshot path.
func (c *Config) SnapshotPath() string {
	if c.Snapshot.Path != "" {
		return c.Snapshot.Path
	}
	return filepath.Join(c.Global.DataDir, "cache.json")
}

// HistoryPath returns the full SQLite history path.
func (c *Config) HistoryPath() string {
	if c.Snapshot.HistoryPath != "" {
		return c.Snapshot.HistoryPath
	}
	return filepath.Join(c.Global.DataDir, "snapshots.db")
}
