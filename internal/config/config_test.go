package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "missing.toml"))
	cfg, err := loader.Load()
	require.NoError(t, err)

	defaults := DefaultConfig()
	assert.Equal(t, defaults.Daemon.VirtualName, cfg.Daemon.VirtualName)
	assert.Equal(t, defaults.Logging.Level, cfg.Logging.Level)
	assert.Equal(t, Version, cfg.Version)
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "remapd.toml", `
version = 1

[daemon]
socket_path = "/tmp/test-remapd.sock"
virtual_name = "test-remap"
debounce = true
debounce_delay_ms = 30

[devices]
allow = ["USB Keyboard"]
deny = ["Webcam"]

[logging]
level = "debug"
format = "json"

[metrics]
enabled = true
addr = "127.0.0.1:9999"
`)

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test-remapd.sock", cfg.Daemon.SocketPath)
	assert.Equal(t, "test-remap", cfg.Daemon.VirtualName)
	assert.True(t, cfg.Daemon.Debounce)
	assert.Equal(t, 30, cfg.Daemon.DebounceDelayMs)
	assert.Equal(t, []string{"USB Keyboard"}, cfg.Devices.Allow)
	assert.Equal(t, []string{"Webcam"}, cfg.Devices.Deny)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9999", cfg.Metrics.Addr)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "remapd.yaml", `
version: 1
daemon:
  virtual_name: yaml-remap
logging:
  level: warn
`)

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "yaml-remap", cfg.Daemon.VirtualName)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "remapd.json", `{
	  "version": 1,
	  "daemon": {"virtual_name": "json-remap"}
	}`)

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "json-remap", cfg.Daemon.VirtualName)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REMAPD_SOCKET", "/tmp/env.sock")
	t.Setenv("REMAPD_LOG_LEVEL", "error")
	t.Setenv("REMAPD_VERBOSE", "true")

	loader := NewLoader(filepath.Join(t.TempDir(), "missing.toml"))
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/env.sock", cfg.Daemon.SocketPath)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.True(t, cfg.Daemon.Verbose)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"bad version":        func(c *Config) { c.Version = 99 },
		"empty socket":       func(c *Config) { c.Daemon.SocketPath = "" },
		"empty virtual name": func(c *Config) { c.Daemon.VirtualName = "" },
		"negative debounce":  func(c *Config) { c.Daemon.DebounceDelayMs = -1 },
		"bad log level":      func(c *Config) { c.Logging.Level = "loud" },
		"bad log format":     func(c *Config) { c.Logging.Format = "xml" },
		"bad log output":     func(c *Config) { c.Logging.Output = "pipe" },
		"file output without path": func(c *Config) {
			c.Logging.Output = "file"
			c.Logging.FilePath = ""
		},
		"bad metrics addr": func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Addr = "not-an-addr"
		},
		"history without path": func(c *Config) {
			c.History.Enabled = true
			c.History.Path = ""
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	path := writeFile(t, "remapd.toml", `
[logging]
level = "shouty"
`)
	_, err := NewLoader(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}
