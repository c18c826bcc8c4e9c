package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.Version != Version {
		t.Errorf("expected version %d, got %d", Version, cfg.Version)
	}

	d := cfg.Detection
	if d.GracePeriodMs != 2000 {
		t.Errorf("expected grace_period_ms 2000, got %d", d.GracePeriodMs)
	}
	if d.SwipeThreshold != 1 {
		t.Errorf("expected swipe_threshold 1, got %d", d.SwipeThreshold)
	}
	if d.CooldownMs != 3000 {
		t.Errorf("expected cooldown_ms 3000, got %d", d.CooldownMs)
	}
	if d.ExitFirstDelayMs != 250 || d.ExitSecondDelayMs != 1000 {
		t.Errorf("expected exit delays 250/1000, got %d/%d", d.ExitFirstDelayMs, d.ExitSecondDelayMs)
	}
	if d.ScrollDebounceMs != 500 || d.ScrollWindowMs != 30000 || d.ScrollThreshold != 3 {
		t.Errorf("unexpected scroll tunables: %d/%d/%d", d.ScrollDebounceMs, d.ScrollWindowMs, d.ScrollThreshold)
	}
	if d.DwellCeilingMs != 120000 || d.DwellCooldownMs != 60000 {
		t.Errorf("unexpected dwell tunables: %d/%d", d.DwellCeilingMs, d.DwellCooldownMs)
	}

	if d.CooldownMs <= d.ExitSecondDelayMs {
		t.Error("default cooldown must exceed the second exit delay")
	}

	if !cfg.Journal.Enabled {
		t.Error("journal should be enabled by default")
	}
	if !strings.Contains(cfg.Journal.Path, "feedbreakd") {
		t.Errorf("journal path should contain feedbreakd: %s", cfg.Journal.Path)
	}
	if !strings.HasSuffix(cfg.IPC.SocketPath, "feedbreakd.sock") && !strings.HasSuffix(cfg.IPC.SocketPath, "feedbreakd") {
		t.Errorf("unexpected socket path: %s", cfg.IPC.SocketPath)
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if path == "" {
		t.Error("ConfigPath returned empty string")
	}
	if !strings.HasSuffix(path, "config.toml") {
		t.Errorf("expected path ending with config.toml, got %s", path)
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Detection.GracePeriodMs != 2000 {
		t.Errorf("expected default grace period, got %d", cfg.Detection.GracePeriodMs)
	}
}

func TestLoadTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")

	content := `
version = 1

[detection]
grace_period_ms = 1500
swipe_threshold = 2
cooldown_ms = 5000

[journal]
path = "/custom/journal.db"

[[apps]]
id = "com.example.clips"
display_name = "Example Clips"
feed_markers = ["com.example.clips:id/pager"]
non_feed_markers = ["com.example.clips:id/profile"]

[[apps]]
id = "com.example.other"
use_generic_fallback = true
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Detection.GracePeriodMs != 1500 {
		t.Errorf("expected grace_period_ms 1500, got %d", cfg.Detection.GracePeriodMs)
	}
	if cfg.Detection.SwipeThreshold != 2 {
		t.Errorf("expected swipe_threshold 2, got %d", cfg.Detection.SwipeThreshold)
	}
	if cfg.Detection.CooldownMs != 5000 {
		t.Errorf("expected cooldown_ms 5000, got %d", cfg.Detection.CooldownMs)
	}
	// Unset fields keep their defaults.
	if cfg.Detection.ScrollThreshold != 3 {
		t.Errorf("expected default scroll_threshold 3, got %d", cfg.Detection.ScrollThreshold)
	}
	if cfg.Journal.Path != "/custom/journal.db" {
		t.Errorf("expected journal path override, got %s", cfg.Journal.Path)
	}

	if len(cfg.Apps) != 2 {
		t.Fatalf("expected 2 apps, got %d", len(cfg.Apps))
	}
	if cfg.Apps[0].ID != "com.example.clips" || cfg.Apps[0].DisplayName != "Example Clips" {
		t.Errorf("unexpected first app: %+v", cfg.Apps[0])
	}
	if len(cfg.Apps[0].FeedMarkers) != 1 || cfg.Apps[0].FeedMarkers[0] != "com.example.clips:id/pager" {
		t.Errorf("unexpected feed markers: %v", cfg.Apps[0].FeedMarkers)
	}
	if !cfg.Apps[1].UseGenericFallback {
		t.Error("second app should use generic fallback")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should be valid: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")

	content := `{
  "version": 1,
  "detection": {"cooldown_ms": 4000},
  "logging": {"level": "debug"}
}`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Detection.CooldownMs != 4000 {
		t.Errorf("expected cooldown_ms 4000, got %d", cfg.Detection.CooldownMs)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
}

func TestLoadYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	content := `
version: 1
detection:
  scroll_threshold: 5
apps:
  - id: com.example.yamlapp
    use_generic_fallback: true
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Detection.ScrollThreshold != 5 {
		t.Errorf("expected scroll_threshold 5, got %d", cfg.Detection.ScrollThreshold)
	}
	if len(cfg.Apps) != 1 || cfg.Apps[0].ID != "com.example.yamlapp" {
		t.Errorf("unexpected apps: %+v", cfg.Apps)
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")

	if err := os.WriteFile(configPath, []byte("this is not valid toml {{{"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FEEDBREAK_JOURNAL_PATH", "/env/journal.db")
	t.Setenv("FEEDBREAK_LOG_LEVEL", "debug")
	t.Setenv("FEEDBREAK_SOCKET_PATH", "/env/feedbreakd.sock")

	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Journal.Path != "/env/journal.db" {
		t.Errorf("expected env journal path, got %s", cfg.Journal.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected env log level, got %s", cfg.Logging.Level)
	}
	if cfg.IPC.SocketPath != "/env/feedbreakd.sock" {
		t.Errorf("expected env socket path, got %s", cfg.IPC.SocketPath)
	}
}

// TestValidateRejections mutates one field at a time and checks the
// offending field is named in the error.
func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:      "zero grace period",
			mutate:    func(c *Config) { c.Detection.GracePeriodMs = 0 },
			wantField: "detection.grace_period_ms",
		},
		{
			name:      "zero swipe threshold",
			mutate:    func(c *Config) { c.Detection.SwipeThreshold = 0 },
			wantField: "detection.swipe_threshold",
		},
		{
			name:      "cooldown below second exit delay",
			mutate:    func(c *Config) { c.Detection.CooldownMs = 800 },
			wantField: "detection.cooldown_ms",
		},
		{
			name:      "cooldown equal to second exit delay",
			mutate:    func(c *Config) { c.Detection.CooldownMs = 1000 },
			wantField: "detection.cooldown_ms",
		},
		{
			name:      "debounce at window size",
			mutate:    func(c *Config) { c.Detection.ScrollDebounceMs = 30000 },
			wantField: "detection.scroll_debounce_ms",
		},
		{
			name:      "zero event buffer",
			mutate:    func(c *Config) { c.Detection.EventBuffer = 0 },
			wantField: "detection.event_buffer",
		},
		{
			name:      "app without id",
			mutate:    func(c *Config) { c.Apps = []AppConfig{{DisplayName: "No ID"}} },
			wantField: "apps[0].id",
		},
		{
			name: "duplicate app id",
			mutate: func(c *Config) {
				c.Apps = []AppConfig{
					{ID: "com.example.a", UseGenericFallback: true},
					{ID: "com.example.a", UseGenericFallback: true},
				}
			},
			wantField: "apps[1].id",
		},
		{
			name:      "app without markers or fallback",
			mutate:    func(c *Config) { c.Apps = []AppConfig{{ID: "com.example.a"}} },
			wantField: "apps[0]",
		},
		{
			name:      "negative snapshot interval",
			mutate:    func(c *Config) { c.Host.SnapshotMinIntervalMs = -1 },
			wantField: "host.snapshot_min_interval_ms",
		},
		{
			name: "journal enabled without path",
			mutate: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Path = ""
			},
			wantField: "journal.path",
		},
		{
			name:      "bad log level",
			mutate:    func(c *Config) { c.Logging.Level = "verbose" },
			wantField: "logging.level",
		},
		{
			name:      "bad ipc permissions",
			mutate:    func(c *Config) { c.IPC.Permissions = "rw-" },
			wantField: "ipc.permissions",
		},
		{
			name: "metrics enabled without address",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.ListenAddr = ""
			},
			wantField: "metrics.listen_addr",
		},
		{
			name: "metrics address without port",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.ListenAddr = "localhost"
			},
			wantField: "metrics.listen_addr",
		},
		{
			name:      "unsupported version",
			mutate:    func(c *Config) { c.Version = Version + 1 },
			wantField: "version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error should match ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("error should name %s, got: %v", tt.wantField, err)
			}
		})
	}
}

func TestEngineConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detection.GracePeriodMs = 1500
	cfg.Detection.SwipeThreshold = 2

	ec := cfg.EngineConfig()
	if ec.GracePeriod != 1500*time.Millisecond {
		t.Errorf("expected grace period 1.5s, got %v", ec.GracePeriod)
	}
	if ec.SwipeThreshold != 2 {
		t.Errorf("expected swipe threshold 2, got %d", ec.SwipeThreshold)
	}
	if ec.Cooldown != 3*time.Second {
		t.Errorf("expected cooldown 3s, got %v", ec.Cooldown)
	}
	if ec.ExitFirstDelay != 250*time.Millisecond || ec.ExitSecondDelay != time.Second {
		t.Errorf("unexpected exit delays: %v/%v", ec.ExitFirstDelay, ec.ExitSecondDelay)
	}
	if ec.DwellCeiling != 2*time.Minute {
		t.Errorf("expected dwell ceiling 2m, got %v", ec.DwellCeiling)
	}
	if ec.EventBuffer != 256 {
		t.Errorf("expected event buffer 256, got %d", ec.EventBuffer)
	}
}

func TestBuildRegistry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Apps = []AppConfig{
		{
			ID:          "com.example.clips",
			DisplayName: "Example Clips",
			FeedMarkers: []string{"com.example.clips:id/pager"},
		},
		{
			ID:                 "com.example.generic",
			DisplayName:        "Generic App",
			UseGenericFallback: true,
		},
	}

	reg := cfg.BuildRegistry()

	if !reg.Registered("com.example.clips") {
		t.Error("configured marker app should be registered")
	}
	if !reg.Registered("com.example.generic") {
		t.Error("configured generic app should be registered")
	}
	if !reg.Registered("com.zhiliaoapp.musically") {
		t.Error("built-in apps should survive config registration")
	}

	if got := reg.DisplayName("com.example.clips"); got != "Example Clips" {
		t.Errorf("expected display name Example Clips, got %s", got)
	}
	if got := reg.DisplayName("com.example.generic"); got != "Generic App" {
		t.Errorf("expected display name Generic App, got %s", got)
	}
}

func TestBuildRegistryOverridesBuiltIn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Apps = []AppConfig{
		{
			ID:          "com.zhiliaoapp.musically",
			DisplayName: "Custom TikTok",
			FeedMarkers: []string{"com.zhiliaoapp.musically:id/custom_pager"},
		},
	}

	reg := cfg.BuildRegistry()
	if got := reg.DisplayName("com.zhiliaoapp.musically"); got != "Custom TikTok" {
		t.Errorf("config should override built-in display name, got %s", got)
	}
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Apps = []AppConfig{
		{ID: "com.example.a", FeedMarkers: []string{"m1"}},
	}
	cfg.Host.ExitCommand = []string{"xdotool", "key", "XF86Back"}

	clone := cfg.Clone()
	clone.Apps[0].FeedMarkers[0] = "changed"
	clone.Host.ExitCommand[0] = "changed"
	clone.Detection.CooldownMs = 9999

	if cfg.Apps[0].FeedMarkers[0] != "m1" {
		t.Error("clone mutation leaked into original app markers")
	}
	if cfg.Host.ExitCommand[0] != "xdotool" {
		t.Error("clone mutation leaked into original exit command")
	}
	if cfg.Detection.CooldownMs != 3000 {
		t.Error("clone mutation leaked into original detection config")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Detection.CooldownMs = 4500
	cfg.Apps = []AppConfig{
		{
			ID:             "com.example.clips",
			DisplayName:    "Example Clips",
			FeedMarkers:    []string{"com.example.clips:id/pager"},
			NonFeedMarkers: []string{"com.example.clips:id/profile"},
		},
	}

	tomlPath := filepath.Join(dir, "config.toml")
	if err := SaveConfig(cfg, tomlPath); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := Load(tomlPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Detection.CooldownMs != 4500 {
		t.Errorf("expected cooldown 4500 after round trip, got %d", loaded.Detection.CooldownMs)
	}
	if len(loaded.Apps) != 1 || loaded.Apps[0].ID != "com.example.clips" {
		t.Errorf("apps did not survive round trip: %+v", loaded.Apps)
	}
	if len(loaded.Apps[0].NonFeedMarkers) != 1 {
		t.Errorf("non-feed markers did not survive round trip: %v", loaded.Apps[0].NonFeedMarkers)
	}

	jsonPath := filepath.Join(dir, "config.json")
	if err := SaveConfig(cfg, jsonPath); err != nil {
		t.Fatalf("SaveConfig json failed: %v", err)
	}
	loadedJSON, err := Load(jsonPath)
	if err != nil {
		t.Fatalf("Load json failed: %v", err)
	}
	if loadedJSON.Detection.CooldownMs != 4500 {
		t.Errorf("expected cooldown 4500 from json, got %d", loadedJSON.Detection.CooldownMs)
	}
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if !created {
		t.Error("expected config file to be created")
	}
	if cfg.Detection.GracePeriodMs != 2000 {
		t.Errorf("expected default grace period, got %d", cfg.Detection.GracePeriodMs)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file should exist: %v", err)
	}

	_, created, err = LoadOrCreate(path)
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if created {
		t.Error("second call should load the existing file")
	}
}

func TestLoggerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "stderr"

	lc, err := cfg.LoggerConfig()
	if err != nil {
		t.Fatalf("LoggerConfig failed: %v", err)
	}
	if lc.Output != "stderr" {
		t.Errorf("expected output stderr, got %s", lc.Output)
	}

	cfg.Logging.Level = "bogus"
	if _, err := cfg.LoggerConfig(); err == nil {
		t.Error("expected error for bogus level")
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Journal.Path = filepath.Join(dir, "data", "journal.db")
	cfg.Logging.FilePath = filepath.Join(dir, "logs", "feedbreakd.log")
	cfg.IPC.SocketPath = filepath.Join(dir, "run", "feedbreakd.sock")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, sub := range []string{"data", "logs", "run"} {
		if _, err := os.Stat(filepath.Join(dir, sub)); os.IsNotExist(err) {
			t.Errorf("%s directory was not created", sub)
		}
	}
}
