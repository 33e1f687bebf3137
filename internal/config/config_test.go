package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestLoadCreatesSampleOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("first load failed: %v", err)
	}
	if cfg.OfflineMode() != OfflineModeAuto {
		t.Errorf("offline mode = %q, want auto", cfg.OfflineMode())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	if !strings.Contains(string(data), "offline_mode") {
		t.Error("created config is not the documented sample")
	}

	// The file the first run writes must load cleanly on the second.
	if _, err := Load(path); err != nil {
		t.Fatalf("reload of created config failed: %v", err)
	}
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(GetSampleConfig()), cfg); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample config does not validate: %v", err)
	}
	if cfg.ProbeInterval() != 15*time.Second {
		t.Errorf("sample probe_interval = %v", cfg.ProbeInterval())
	}
	if cfg.ReminderGrace() != 6*time.Hour {
		t.Errorf("sample reminder grace = %v", cfg.ReminderGrace())
	}
	if cfg.PushGrace() != 10*time.Minute {
		t.Errorf("sample push_grace = %v", cfg.PushGrace())
	}
	if !cfg.ReminderEnabled() || !cfg.Notification.Enabled {
		t.Error("sample disables reminders")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
sync:
  offline_mode: offline
  probe_interval: 1m
reminder:
  enabled: false
  grace: 2h
server:
  addr: ":9090"
  vapid_public_key: pub
  vapid_private_key: priv
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.OfflineMode() != OfflineModeOffline {
		t.Errorf("offline mode = %q", cfg.OfflineMode())
	}
	if cfg.ProbeInterval() != time.Minute {
		t.Errorf("probe interval = %v", cfg.ProbeInterval())
	}
	if cfg.ReminderEnabled() {
		t.Error("reminder.enabled: false not honored")
	}
	if cfg.ReminderGrace() != 2*time.Hour {
		t.Errorf("reminder grace = %v", cfg.ReminderGrace())
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("server addr = %q", cfg.Server.Addr)
	}
	// Unset sections keep their defaults.
	if !cfg.Notification.Enabled {
		t.Error("notification default lost under partial config")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad offline mode", "sync:\n  offline_mode: sometimes\n"},
		{"bad duration", "reminder:\n  interval: soon\n"},
		{"bad yaml", "sync: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Errorf("load accepted %q", tt.content)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/data/dayplan.db"); got != filepath.Join(home, "data", "dayplan.db") {
		t.Errorf("ExpandPath(~/) = %q", got)
	}
	t.Setenv("DAYPLAN_TEST_DIR", "/srv/dp")
	if got := ExpandPath("$DAYPLAN_TEST_DIR/server.db"); got != "/srv/dp/server.db" {
		t.Errorf("ExpandPath(env) = %q", got)
	}
}

func TestXDGDirsHonorEnv(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")
	if got := GetConfigDir(); got != "/tmp/xdg-config/dayplan" {
		t.Errorf("config dir = %q", got)
	}
	if got := GetDataDir(); got != "/tmp/xdg-data/dayplan" {
		t.Errorf("data dir = %q", got)
	}
}
