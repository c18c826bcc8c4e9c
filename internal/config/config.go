// Package config handles configuration loading, validation, and management for feedbreakd.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"feedbreakd/internal/classify"
	"feedbreakd/internal/engine"
	"feedbreakd/internal/logging"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Detection holds the feed-detection and enforcement tunables.
	Detection DetectionConfig `toml:"detection" json:"detection" yaml:"detection"`

	// Apps is the monitored-application table. Entries extend or override
	// the compiled-in application profiles.
	Apps []AppConfig `toml:"apps" json:"apps" yaml:"apps"`

	// Host configures platform capability queries.
	Host HostConfig `toml:"host" json:"host" yaml:"host"`

	// Journal configures the block-decision journal.
	Journal JournalConfig `toml:"journal" json:"journal" yaml:"journal"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IPC configuration for the control socket.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`

	// Metrics configures the optional local diagnostics listener.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`
}

// DetectionConfig holds the detector and enforcement thresholds.
// Duration fields are integer milliseconds.
type DetectionConfig struct {
	// GracePeriodMs is how long after feed entry content changes are
	// absorbed without counting toward the swipe threshold.
	GracePeriodMs int `toml:"grace_period_ms" json:"grace_period_ms" yaml:"grace_period_ms"`

	// SwipeThreshold is the number of post-grace content transitions that
	// triggers a block. 1 means the second distinct item triggers.
	SwipeThreshold int `toml:"swipe_threshold" json:"swipe_threshold" yaml:"swipe_threshold"`

	// CooldownMs is the minimum interval between two enforcement actions,
	// global across all apps and signal sources. Must be greater than
	// exit_second_delay_ms.
	CooldownMs int `toml:"cooldown_ms" json:"cooldown_ms" yaml:"cooldown_ms"`

	// ExitFirstDelayMs and ExitSecondDelayMs schedule the two
	// back-navigation steps issued per block.
	ExitFirstDelayMs  int `toml:"exit_first_delay_ms" json:"exit_first_delay_ms" yaml:"exit_first_delay_ms"`
	ExitSecondDelayMs int `toml:"exit_second_delay_ms" json:"exit_second_delay_ms" yaml:"exit_second_delay_ms"`

	// ScrollDebounceMs is the minimum spacing between two scroll events
	// for both to count toward a burst.
	ScrollDebounceMs int `toml:"scroll_debounce_ms" json:"scroll_debounce_ms" yaml:"scroll_debounce_ms"`

	// ScrollWindowMs is the rolling window for the scroll-burst counter.
	ScrollWindowMs int `toml:"scroll_window_ms" json:"scroll_window_ms" yaml:"scroll_window_ms"`

	// ScrollThreshold is the number of debounced scrolls within the
	// window that counts as a burst.
	ScrollThreshold int `toml:"scroll_threshold" json:"scroll_threshold" yaml:"scroll_threshold"`

	// DwellCeilingMs is the continuous foreground time in a watched app
	// that fires the dwell fallback when classification is unavailable.
	DwellCeilingMs int `toml:"dwell_ceiling_ms" json:"dwell_ceiling_ms" yaml:"dwell_ceiling_ms"`

	// DwellCooldownMs is the minimum interval between two dwell warnings
	// for the same app.
	DwellCooldownMs int `toml:"dwell_cooldown_ms" json:"dwell_cooldown_ms" yaml:"dwell_cooldown_ms"`

	// EventBuffer is the capacity of the inbound event queue. Events
	// arriving while it is full are dropped.
	EventBuffer int `toml:"event_buffer" json:"event_buffer" yaml:"event_buffer"`
}

// AppConfig describes one monitored application.
type AppConfig struct {
	// ID is the application identifier as reported by the platform,
	// e.g. an Android package name.
	ID string `toml:"id" json:"id" yaml:"id"`

	// DisplayName is the human-readable name used in notifications.
	// Defaults to the id.
	DisplayName string `toml:"display_name" json:"display_name" yaml:"display_name"`

	// FeedMarkers are structural identifiers whose presence marks a feed
	// screen.
	FeedMarkers []string `toml:"feed_markers" json:"feed_markers" yaml:"feed_markers"`

	// NonFeedMarkers mark screens that are explicitly not a feed. They
	// win over feed markers when both are present.
	NonFeedMarkers []string `toml:"non_feed_markers" json:"non_feed_markers" yaml:"non_feed_markers"`

	// UseGenericFallback classifies with the generic full-screen-media
	// heuristic instead of marker lists. Markers are ignored when set.
	UseGenericFallback bool `toml:"use_generic_fallback" json:"use_generic_fallback" yaml:"use_generic_fallback"`
}

// HostConfig tunes platform capability queries.
type HostConfig struct {
	// SnapshotMinIntervalMs is the floor between two UI snapshot queries.
	// 0 disables the limit.
	SnapshotMinIntervalMs int `toml:"snapshot_min_interval_ms" json:"snapshot_min_interval_ms" yaml:"snapshot_min_interval_ms"`

	// MediaMinIntervalMs is the floor between two media playback queries.
	MediaMinIntervalMs int `toml:"media_min_interval_ms" json:"media_min_interval_ms" yaml:"media_min_interval_ms"`

	// ActivityMinIntervalMs is the floor between two foreground-activity
	// queries.
	ActivityMinIntervalMs int `toml:"activity_min_interval_ms" json:"activity_min_interval_ms" yaml:"activity_min_interval_ms"`

	// Notifications enables the desktop notification sent on each block.
	Notifications bool `toml:"notifications" json:"notifications" yaml:"notifications"`

	// ExitCommand is the command run for each back-navigation step when
	// the platform provides no native navigator. Empty leaves exit
	// actions disabled.
	ExitCommand []string `toml:"exit_command" json:"exit_command" yaml:"exit_command"`

	// ExitTimeoutMs bounds a single exit_command run.
	ExitTimeoutMs int `toml:"exit_timeout_ms" json:"exit_timeout_ms" yaml:"exit_timeout_ms"`
}

// JournalConfig holds the block-decision journal settings.
type JournalConfig struct {
	// Enabled turns the decision journal on.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path is the journal database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// BusyTimeoutMs is the SQLite busy timeout.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`

	// RetentionDays is how long decisions are kept. 0 keeps them forever.
	RetentionDays int `toml:"retention_days" json:"retention_days" yaml:"retention_days"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", or "file".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of log files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// MetricsConfig holds the optional HTTP diagnostics listener serving
// Prometheus metrics and health endpoints.
type MetricsConfig struct {
	// Enabled starts the listener.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// ListenAddr is the bind address. Keep it on loopback; the listener
	// carries no authentication.
	ListenAddr string `toml:"listen_addr" json:"listen_addr" yaml:"listen_addr"`
}

// IPCConfig holds inter-process communication configuration.
type IPCConfig struct {
	// Enabled determines whether the IPC server is started.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// SocketPath is the path to the control socket.
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// Permissions is the Unix socket mode (e.g. "0600").
	Permissions string `toml:"permissions" json:"permissions" yaml:"permissions"`

	// MaxConnections is the maximum concurrent client connections.
	MaxConnections int `toml:"max_connections" json:"max_connections" yaml:"max_connections"`

	// TimeoutSec is the per-connection read timeout.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
}

// DefaultConfig returns a configuration with the reference tunables.
func DefaultConfig() *Config {
	dir := FeedbreakDir()

	return &Config{
		Version: Version,
		Detection: DetectionConfig{
			GracePeriodMs:     2000,
			SwipeThreshold:    1,
			CooldownMs:        3000,
			ExitFirstDelayMs:  250,
			ExitSecondDelayMs: 1000,
			ScrollDebounceMs:  500,
			ScrollWindowMs:    30000,
			ScrollThreshold:   3,
			DwellCeilingMs:    120000,
			DwellCooldownMs:   60000,
			EventBuffer:       256,
		},
		// The compiled-in application table covers the common targets;
		// [[apps]] entries extend or override it.
		Apps: nil,
		Host: HostConfig{
			SnapshotMinIntervalMs: 150,
			MediaMinIntervalMs:    1000,
			ActivityMinIntervalMs: 1000,
			Notifications:         true,
			ExitCommand:           nil,
			ExitTimeoutMs:         2000,
		},
		Journal: JournalConfig{
			Enabled:       true,
			Path:          filepath.Join(dir, "journal.db"),
			BusyTimeoutMs: 5000,
			RetentionDays: 90,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   filepath.Join(PlatformLogDir(), "feedbreakd.log"),
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
		IPC: IPCConfig{
			Enabled:        true,
			SocketPath:     defaultSocketPath(),
			Permissions:    "0600",
			MaxConnections: 10,
			TimeoutSec:     30,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1:9321",
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// FeedbreakDir returns the base feedbreakd data directory.
// Uses platform-specific paths or the FEEDBREAK_DATA_DIR environment override.
func FeedbreakDir() string {
	if envDir := os.Getenv("FEEDBREAK_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	switch filepath.Ext(path) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		// Unrecognized extension reads as TOML, the primary format.
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode config (unknown format): %w", err)
		}
	}

	cfg.ApplyEnvOverrides()

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates all directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Journal.Path),
		filepath.Dir(c.Logging.FilePath),
		filepath.Dir(c.IPC.SocketPath),
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the
// configuration. Variables are prefixed with FEEDBREAK_.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("FEEDBREAK_JOURNAL_PATH"); v != "" {
		c.Journal.Path = v
	}
	if v := os.Getenv("FEEDBREAK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FEEDBREAK_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("FEEDBREAK_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c

	clone.Apps = make([]AppConfig, len(c.Apps))
	for i, app := range c.Apps {
		clone.Apps[i] = app
		clone.Apps[i].FeedMarkers = append([]string(nil), app.FeedMarkers...)
		clone.Apps[i].NonFeedMarkers = append([]string(nil), app.NonFeedMarkers...)
	}
	clone.Host.ExitCommand = append([]string(nil), c.Host.ExitCommand...)

	return &clone
}

// EngineConfig converts the detection section into engine tunables.
func (c *Config) EngineConfig() *engine.Config {
	d := c.Detection
	return &engine.Config{
		GracePeriod:     time.Duration(d.GracePeriodMs) * time.Millisecond,
		SwipeThreshold:  d.SwipeThreshold,
		Cooldown:        time.Duration(d.CooldownMs) * time.Millisecond,
		ExitFirstDelay:  time.Duration(d.ExitFirstDelayMs) * time.Millisecond,
		ExitSecondDelay: time.Duration(d.ExitSecondDelayMs) * time.Millisecond,
		ScrollDebounce:  time.Duration(d.ScrollDebounceMs) * time.Millisecond,
		ScrollWindow:    time.Duration(d.ScrollWindowMs) * time.Millisecond,
		ScrollThreshold: d.ScrollThreshold,
		DwellCeiling:    time.Duration(d.DwellCeilingMs) * time.Millisecond,
		DwellCooldown:   time.Duration(d.DwellCooldownMs) * time.Millisecond,
		EventBuffer:     d.EventBuffer,
	}
}

// BuildRegistry returns the classifier registry: compiled-in application
// profiles with the [[apps]] table applied on top.
func (c *Config) BuildRegistry() *classify.Registry {
	r := classify.NewRegistry()
	for _, app := range c.Apps {
		if app.ID == "" {
			continue
		}
		if app.UseGenericFallback {
			r.Register(app.ID, classify.DefaultGenericStrategy())
		} else {
			name := app.DisplayName
			if name == "" {
				name = app.ID
			}
			r.Register(app.ID, classify.NewMarkerStrategy(name, app.FeedMarkers, app.NonFeedMarkers))
		}
		if app.DisplayName != "" {
			r.SetDisplayName(app.ID, app.DisplayName)
		}
	}
	return r
}

// LoggerConfig converts the logging section into the logging package's
// configuration.
func (c *Config) LoggerConfig() (*logging.Config, error) {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	if c.Logging.Format == "json" {
		lc.Format = logging.FormatJSON
	} else {
		lc.Format = logging.FormatText
	}
	lc.Output = c.Logging.Output
	lc.FilePath = c.Logging.FilePath
	lc.MaxSize = int64(c.Logging.MaxSizeMB)
	lc.MaxBackups = c.Logging.MaxBackups
	lc.MaxAge = c.Logging.MaxAgeDays
	lc.Compress = c.Logging.Compress
	return lc, nil
}

// SnapshotInterval returns the snapshot query floor as a duration.
func (h *HostConfig) SnapshotInterval() time.Duration {
	return time.Duration(h.SnapshotMinIntervalMs) * time.Millisecond
}

// MediaInterval returns the media query floor as a duration.
func (h *HostConfig) MediaInterval() time.Duration {
	return time.Duration(h.MediaMinIntervalMs) * time.Millisecond
}

// ActivityInterval returns the activity query floor as a duration.
func (h *HostConfig) ActivityInterval() time.Duration {
	return time.Duration(h.ActivityMinIntervalMs) * time.Millisecond
}

// ExitTimeout returns the exit command timeout as a duration.
func (h *HostConfig) ExitTimeout() time.Duration {
	return time.Duration(h.ExitTimeoutMs) * time.Millisecond
}
