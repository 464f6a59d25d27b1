// Package config handles daemon settings loading, validation, and
// hot-reloading for remapd. The keymap itself arrives over the socket from
// the front-end; this package only covers the daemon's own settings file.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Version is the current settings schema version.
const Version = 1

// Config holds the complete daemon settings.
type Config struct {
	// Version is the settings schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Daemon holds process-level settings.
	Daemon DaemonConfig `toml:"daemon" json:"daemon" yaml:"daemon"`

	// Devices controls which input devices are grabbed.
	Devices DeviceConfig `toml:"devices" json:"devices" yaml:"devices"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics configuration.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`

	// History configuration for the lifecycle audit trail.
	History HistoryConfig `toml:"history" json:"history" yaml:"history"`

	// Session configuration for desktop-session integration.
	Session SessionConfig `toml:"session" json:"session" yaml:"session"`
}

// DaemonConfig holds process-level settings.
type DaemonConfig struct {
	// SocketPath is the unix socket the front-end connects to.
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// VirtualName is the name the virtual output device registers under.
	VirtualName string `toml:"virtual_name" json:"virtual_name" yaml:"virtual_name"`

	// Verbose enables debug logging.
	Verbose bool `toml:"verbose" json:"verbose" yaml:"verbose"`

	// Debounce enables the button debouncer.
	Debounce bool `toml:"debounce" json:"debounce" yaml:"debounce"`

	// DebounceDelayMs is the minimum press-to-press delay in milliseconds
	// when debouncing is enabled.
	DebounceDelayMs int `toml:"debounce_delay_ms" json:"debounce_delay_ms" yaml:"debounce_delay_ms"`
}

// DeviceConfig controls device grabbing.
type DeviceConfig struct {
	// Allow lists device-name patterns to grab. Empty grabs everything
	// that looks like a keyboard (or pointer, with mouse mappings).
	Allow []string `toml:"allow" json:"allow" yaml:"allow"`

	// Deny lists device-name patterns to skip.
	Deny []string `toml:"deny" json:"deny" yaml:"deny"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file location when Output includes "file".
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the rotation threshold in megabytes.
	MaxSizeMB int64 `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// Compress gzips rotated files.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	// Enabled starts the metrics HTTP endpoint.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Addr is the listen address, e.g. "127.0.0.1:9641".
	Addr string `toml:"addr" json:"addr" yaml:"addr"`
}

// HistoryConfig holds audit-trail settings.
type HistoryConfig struct {
	// Enabled records daemon lifecycle events to SQLite. Key events are
	// never recorded.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path is the database file location.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// SessionConfig holds desktop-session integration settings.
type SessionConfig struct {
	// ReleaseOnLock ungrabs devices while the logind session is locked.
	ReleaseOnLock bool `toml:"release_on_lock" json:"release_on_lock" yaml:"release_on_lock"`
}

// DataDir returns the platform data directory for remapd state.
func DataDir() string {
	if runtime.GOOS != "linux" {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".remapd")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "remapd")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "remapd")
}

// RuntimeDir returns the directory for the daemon socket.
func RuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "remapd")
	}
	return DataDir()
}

// DefaultConfigPath returns the default settings file location.
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "remapd", "remapd.toml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "remapd", "remapd.toml")
}

// DefaultConfig returns the settings used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Daemon: DaemonConfig{
			SocketPath:      filepath.Join(RuntimeDir(), "remapd.sock"),
			VirtualName:     "remapd",
			DebounceDelayMs: 50,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  20,
			MaxBackups: 3,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9641",
		},
		History: HistoryConfig{
			Path: filepath.Join(DataDir(), "history.db"),
		},
		Session: SessionConfig{
			ReleaseOnLock: true,
		},
	}
}

// ApplyEnvOverrides overlays REMAPD_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("REMAPD_SOCKET"); v != "" {
		c.Daemon.SocketPath = v
	}
	if v := os.Getenv("REMAPD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("REMAPD_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("REMAPD_VERBOSE"); v != "" {
		c.Daemon.Verbose = isTruthy(v)
	}
	if v := os.Getenv("REMAPD_DEBOUNCE"); v != "" {
		c.Daemon.Debounce = isTruthy(v)
	}
	if v := os.Getenv("REMAPD_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
		c.Metrics.Enabled = true
	}
}

func isTruthy(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}
