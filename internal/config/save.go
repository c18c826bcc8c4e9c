// Package config handles configuration loading, validation, and management for feedbreakd.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SaveConfig saves the configuration to a file. The format follows the
// file extension; TOML is the default.
func SaveConfig(cfg *Config, path string) error {
	var data []byte
	var err error

	switch filepath.Ext(path) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data = []byte(generateTOML(cfg))
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate loads the configuration from the specified path, creating
// a default configuration file if it doesn't exist. The second return
// value reports whether a new file was written.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		cfg.ApplyEnvOverrides()
		return cfg, true, nil
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, fmt.Errorf("validation failed: %w", err)
	}

	return cfg, false, nil
}

// generateTOML renders a commented TOML configuration file.
func generateTOML(cfg *Config) string {
	var b strings.Builder

	fmt.Fprintf(&b, `# feedbreakd configuration
# Durations are integer milliseconds unless the field name says otherwise.

version = %d

[detection]
grace_period_ms = %d
swipe_threshold = %d
cooldown_ms = %d
exit_first_delay_ms = %d
exit_second_delay_ms = %d
scroll_debounce_ms = %d
scroll_window_ms = %d
scroll_threshold = %d
dwell_ceiling_ms = %d
dwell_cooldown_ms = %d
event_buffer = %d

[host]
snapshot_min_interval_ms = %d
media_min_interval_ms = %d
activity_min_interval_ms = %d
notifications = %t
exit_command = %s
exit_timeout_ms = %d

[journal]
enabled = %t
path = %q
busy_timeout_ms = %d
retention_days = %d

[logging]
level = %q
format = %q
output = %q
file_path = %q
max_size_mb = %d
max_backups = %d
max_age_days = %d
compress = %t

[ipc]
enabled = %t
socket_path = %q
permissions = %q
max_connections = %d
timeout_sec = %d

# Prometheus metrics and health endpoints. Loopback only; the listener
# carries no authentication.
[metrics]
enabled = %t
listen_addr = %q
`,
		cfg.Version,
		cfg.Detection.GracePeriodMs,
		cfg.Detection.SwipeThreshold,
		cfg.Detection.CooldownMs,
		cfg.Detection.ExitFirstDelayMs,
		cfg.Detection.ExitSecondDelayMs,
		cfg.Detection.ScrollDebounceMs,
		cfg.Detection.ScrollWindowMs,
		cfg.Detection.ScrollThreshold,
		cfg.Detection.DwellCeilingMs,
		cfg.Detection.DwellCooldownMs,
		cfg.Detection.EventBuffer,
		cfg.Host.SnapshotMinIntervalMs,
		cfg.Host.MediaMinIntervalMs,
		cfg.Host.ActivityMinIntervalMs,
		cfg.Host.Notifications,
		toTOMLArray(cfg.Host.ExitCommand),
		cfg.Host.ExitTimeoutMs,
		cfg.Journal.Enabled,
		cfg.Journal.Path,
		cfg.Journal.BusyTimeoutMs,
		cfg.Journal.RetentionDays,
		cfg.Logging.Level,
		cfg.Logging.Format,
		cfg.Logging.Output,
		cfg.Logging.FilePath,
		cfg.Logging.MaxSizeMB,
		cfg.Logging.MaxBackups,
		cfg.Logging.MaxAgeDays,
		cfg.Logging.Compress,
		cfg.IPC.Enabled,
		cfg.IPC.SocketPath,
		cfg.IPC.Permissions,
		cfg.IPC.MaxConnections,
		cfg.IPC.TimeoutSec,
		cfg.Metrics.Enabled,
		cfg.Metrics.ListenAddr,
	)

	if len(cfg.Apps) == 0 {
		b.WriteString(`
# Monitored applications beyond the compiled-in table. Example:
#
# [[apps]]
# id = "com.example.shortvideo"
# display_name = "Example Feed"
# feed_markers = ["com.example.shortvideo:id/feed_pager"]
# non_feed_markers = ["com.example.shortvideo:id/profile_header"]
#
# [[apps]]
# id = "com.example.other"
# use_generic_fallback = true
`)
		return b.String()
	}

	for _, app := range cfg.Apps {
		fmt.Fprintf(&b, `
[[apps]]
id = %q
display_name = %q
feed_markers = %s
non_feed_markers = %s
use_generic_fallback = %t
`,
			app.ID,
			app.DisplayName,
			toTOMLArray(app.FeedMarkers),
			toTOMLArray(app.NonFeedMarkers),
			app.UseGenericFallback,
		)
	}

	return b.String()
}

func toTOMLArray(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
