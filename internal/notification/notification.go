// Package notification delivers user-facing alerts for due reminders
// and sync events through the channels the platform offers.
package notification

import (
	"time"
)

// Kind identifies what a notification is about.
type Kind string

const (
	KindReminder  Kind = "reminder"
	KindSyncError Kind = "sync_error"
	KindTest      Kind = "test"
)

// Notification is one alert to deliver.
type Notification struct {
	Kind      Kind
	Title     string
	Body      string
	Timestamp time.Time
	Metadata  map[string]string
}

// Channel delivers notifications through one mechanism.
type Channel interface {
	Send(n Notification) error
	Close() error
}

// Config selects and configures the delivery channels.
type Config struct {
	Enabled bool      `yaml:"enabled"`
	OS      OSConfig  `yaml:"os"`
	Log     LogConfig `yaml:"log"`
}

// OSConfig configures desktop notifications.
type OSConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LogConfig configures the notification log file.
type LogConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

// Manager fans a notification out to every configured channel.
type Manager struct {
	channels []Channel
	enabled  bool
}

// NewManager builds a manager from configuration. extra channels (used
// by tests to observe sends) are appended after the configured ones.
func NewManager(cfg Config, extra ...Channel) *Manager {
	m := &Manager{enabled: cfg.Enabled}
	if !cfg.Enabled {
		return m
	}
	if cfg.OS.Enabled {
		m.channels = append(m.channels, newOSChannel())
	}
	if cfg.Log.Enabled {
		m.channels = append(m.channels, newLogChannel(cfg.Log))
	}
	m.channels = append(m.channels, extra...)
	return m
}

// Send delivers to every channel. Channel failures do not stop the
// fan-out; the last failure is returned.
func (m *Manager) Send(n Notification) error {
	if !m.enabled {
		return nil
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	var lastErr error
	for _, ch := range m.channels {
		if err := ch.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close releases channel resources.
func (m *Manager) Close() error {
	var lastErr error
	for _, ch := range m.channels {
		if err := ch.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// ChannelCount returns the number of active channels.
func (m *Manager) ChannelCount() int {
	return len(m.channels)
}
