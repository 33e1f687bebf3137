// Package config handles application configuration.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dayplan/internal/notification"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content.
func GetSampleConfig() string {
	return sampleConfig
}

// Offline modes for sync.offline_mode.
const (
	OfflineModeAuto    = "auto"
	OfflineModeOnline  = "online"
	OfflineModeOffline = "offline"
)

// Config represents the application configuration. Durations are kept
// as strings in the file and translated by the getters, so a bad value
// degrades to the default instead of failing the whole load.
type Config struct {
	Sync         SyncConfig          `yaml:"sync"`
	Reminder     ReminderConfig      `yaml:"reminder"`
	Notification notification.Config `yaml:"notification"`
	Server       ServerConfig        `yaml:"server"`
	Logging      LoggingConfig       `yaml:"logging"`
}

// SyncConfig holds client synchronization settings.
type SyncConfig struct {
	OfflineMode   string `yaml:"offline_mode"`
	ProbeInterval string `yaml:"probe_interval"`
	ProbeTimeout  string `yaml:"probe_timeout"`
}

// ReminderConfig holds local reminder settings.
type ReminderConfig struct {
	Enabled  *bool  `yaml:"enabled"`
	Interval string `yaml:"interval"`
	Grace    string `yaml:"grace"`
}

// ServerConfig holds `dayplan serve` and `dayplan dispatch` settings.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	DBPath          string `yaml:"db_path"`
	VAPIDPublicKey  string `yaml:"vapid_public_key"`
	VAPIDPrivateKey string `yaml:"vapid_private_key"`
	Subscriber      string `yaml:"subscriber"`
	PushGrace       string `yaml:"push_grace"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns a config with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Sync: SyncConfig{OfflineMode: OfflineModeAuto},
		Notification: notification.Config{
			Enabled: true,
			OS:      notification.OSConfig{Enabled: true},
			Log:     notification.LogConfig{Enabled: true},
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load reads the config at path, or the default XDG location when path
// is empty. A missing file is created from the embedded sample.
func Load(path string) (*Config, error) {
	if path == "" {
		path = filepath.Join(GetConfigDir(), "config.yaml")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeSample(path); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Server.DBPath != "" {
		cfg.Server.DBPath = ExpandPath(cfg.Server.DBPath)
	}
	if cfg.Notification.Log.Path != "" {
		cfg.Notification.Log.Path = ExpandPath(cfg.Notification.Log.Path)
	}
	return cfg, nil
}

// writeSample creates the config file from the embedded, commented
// sample so a fresh install gets the documentation too.
func writeSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0644)
}

// Validate checks fields whose bad values should fail loudly instead of
// degrading to a default.
func (c *Config) Validate() error {
	switch c.Sync.OfflineMode {
	case "", OfflineModeAuto, OfflineModeOnline, OfflineModeOffline:
	default:
		return fmt.Errorf("invalid sync.offline_mode: %q (must be auto, online, or offline)", c.Sync.OfflineMode)
	}

	for _, d := range []struct{ key, val string }{
		{"sync.probe_interval", c.Sync.ProbeInterval},
		{"sync.probe_timeout", c.Sync.ProbeTimeout},
		{"reminder.interval", c.Reminder.Interval},
		{"reminder.grace", c.Reminder.Grace},
		{"server.push_grace", c.Server.PushGrace},
	} {
		if d.val == "" {
			continue
		}
		if _, err := time.ParseDuration(d.val); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", d.key, d.val)
		}
	}
	return nil
}

// OfflineMode returns the effective sync.offline_mode.
func (c *Config) OfflineMode() string {
	if c.Sync.OfflineMode == "" {
		return OfflineModeAuto
	}
	return c.Sync.OfflineMode
}

// ProbeInterval returns sync.probe_interval as a duration.
func (c *Config) ProbeInterval() time.Duration {
	return duration(c.Sync.ProbeInterval, 15*time.Second)
}

// ProbeTimeout returns sync.probe_timeout as a duration.
func (c *Config) ProbeTimeout() time.Duration {
	return duration(c.Sync.ProbeTimeout, 5*time.Second)
}

// ReminderEnabled reports whether local reminders run. Defaults to on.
func (c *Config) ReminderEnabled() bool {
	if c.Reminder.Enabled == nil {
		return true
	}
	return *c.Reminder.Enabled
}

// ReminderInterval returns reminder.interval as a duration.
func (c *Config) ReminderInterval() time.Duration {
	return duration(c.Reminder.Interval, 30*time.Second)
}

// ReminderGrace returns reminder.grace as a duration.
func (c *Config) ReminderGrace() time.Duration {
	return duration(c.Reminder.Grace, 6*time.Hour)
}

// PushGrace returns server.push_grace as a duration.
func (c *Config) PushGrace() time.Duration {
	return duration(c.Server.PushGrace, 10*time.Minute)
}

// ServerDBPath returns the server database path, defaulting into the
// data directory.
func (c *Config) ServerDBPath() string {
	if c.Server.DBPath != "" {
		return c.Server.DBPath
	}
	return filepath.Join(GetDataDir(), "server.db")
}

// NotificationLogPath returns the reminder log path, defaulting into
// the data directory.
func (c *Config) NotificationLogPath() string {
	if c.Notification.Log.Path != "" {
		return c.Notification.Log.Path
	}
	return filepath.Join(GetDataDir(), "notifications.log")
}

// LocalStorePath returns the client-side database path.
func LocalStorePath() string {
	return filepath.Join(GetDataDir(), "local.db")
}

func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// getXDGDir returns a directory path following XDG spec.
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, "dayplan")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallbackPath, "dayplan")
	}
	return filepath.Join(home, fallbackPath, "dayplan")
}

// GetConfigDir returns the configuration directory following XDG spec.
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the data directory following XDG spec.
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// ExpandPath expands ~ and environment variables in a path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}
