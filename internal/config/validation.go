// Package config handles configuration loading, validation, and management for feedbreakd.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Is reports ErrInvalidConfig for any non-empty validation error list, so
// callers can match with errors.Is without inspecting fields.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig && len(e) > 0
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateDetection(&c.Detection)...)
	errs = append(errs, validateApps(c.Apps)...)
	errs = append(errs, validateHost(&c.Host)...)
	errs = append(errs, validateJournal(&c.Journal)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateIPC(&c.IPC)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateDetection(d *DetectionConfig) ValidationErrors {
	var errs ValidationErrors

	positive := []struct {
		field string
		value int
	}{
		{"detection.grace_period_ms", d.GracePeriodMs},
		{"detection.cooldown_ms", d.CooldownMs},
		{"detection.exit_first_delay_ms", d.ExitFirstDelayMs},
		{"detection.exit_second_delay_ms", d.ExitSecondDelayMs},
		{"detection.scroll_debounce_ms", d.ScrollDebounceMs},
		{"detection.scroll_window_ms", d.ScrollWindowMs},
		{"detection.dwell_ceiling_ms", d.DwellCeilingMs},
		{"detection.dwell_cooldown_ms", d.DwellCooldownMs},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, ValidationError{
				Field:   p.field,
				Message: "must be positive",
			})
		}
	}

	if d.SwipeThreshold < 1 {
		errs = append(errs, ValidationError{
			Field:   "detection.swipe_threshold",
			Message: "must be at least 1",
		})
	}
	if d.ScrollThreshold < 1 {
		errs = append(errs, ValidationError{
			Field:   "detection.scroll_threshold",
			Message: "must be at least 1",
		})
	}

	// A new trigger inside the cooldown is dropped while exit actions from
	// the previous block may still be pending. The cooldown must outlast
	// the last scheduled action or actions could stack.
	if d.CooldownMs > 0 && d.CooldownMs <= d.ExitSecondDelayMs {
		errs = append(errs, ValidationError{
			Field:   "detection.cooldown_ms",
			Message: fmt.Sprintf("must exceed exit_second_delay_ms (%d)", d.ExitSecondDelayMs),
		})
	}

	if d.ScrollDebounceMs > 0 && d.ScrollWindowMs > 0 && d.ScrollDebounceMs >= d.ScrollWindowMs {
		errs = append(errs, ValidationError{
			Field:   "detection.scroll_debounce_ms",
			Message: fmt.Sprintf("must be less than scroll_window_ms (%d)", d.ScrollWindowMs),
		})
	}

	if d.EventBuffer < 1 {
		errs = append(errs, ValidationError{
			Field:   "detection.event_buffer",
			Message: "must be at least 1",
		})
	}

	return errs
}

func validateApps(apps []AppConfig) ValidationErrors {
	var errs ValidationErrors

	seen := make(map[string]bool)
	for i, app := range apps {
		if app.ID == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("apps[%d].id", i),
				Message: "id is required",
			})
			continue
		}
		if seen[app.ID] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("apps[%d].id", i),
				Message: fmt.Sprintf("duplicate app id: %s", app.ID),
			})
		}
		seen[app.ID] = true

		if !app.UseGenericFallback && len(app.FeedMarkers) == 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("apps[%d]", i),
				Message: "needs feed_markers or use_generic_fallback",
			})
		}
	}

	return errs
}

func validateHost(h *HostConfig) ValidationErrors {
	var errs ValidationErrors

	intervals := []struct {
		field string
		value int
	}{
		{"host.snapshot_min_interval_ms", h.SnapshotMinIntervalMs},
		{"host.media_min_interval_ms", h.MediaMinIntervalMs},
		{"host.activity_min_interval_ms", h.ActivityMinIntervalMs},
	}
	for _, iv := range intervals {
		if iv.value < 0 {
			errs = append(errs, ValidationError{
				Field:   iv.field,
				Message: "cannot be negative",
			})
		}
	}

	if len(h.ExitCommand) > 0 && h.ExitCommand[0] == "" {
		errs = append(errs, ValidationError{
			Field:   "host.exit_command",
			Message: "command name cannot be empty",
		})
	}
	if h.ExitTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "host.exit_timeout_ms",
			Message: "cannot be negative",
		})
	}

	return errs
}

func validateJournal(j *JournalConfig) ValidationErrors {
	var errs ValidationErrors

	if !j.Enabled {
		return errs
	}

	if j.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "journal.path",
			Message: "path is required when the journal is enabled",
		})
	} else {
		dir := filepath.Dir(expandPath(j.Path))
		if dir != "" && dir != "." {
			if info, err := os.Stat(dir); err == nil && !info.IsDir() {
				errs = append(errs, ValidationError{
					Field:   "journal.path",
					Message: fmt.Sprintf("parent path is not a directory: %s", dir),
				})
			}
			// A missing directory is fine, it is created at startup.
		}
	}

	if j.BusyTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "journal.busy_timeout_ms",
			Message: "cannot be negative",
		})
	}
	if j.RetentionDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "journal.retention_days",
			Message: "cannot be negative",
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}
	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}
	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func validateIPC(i *IPCConfig) ValidationErrors {
	var errs ValidationErrors

	if !i.Enabled {
		return errs
	}

	if i.SocketPath == "" {
		errs = append(errs, ValidationError{
			Field:   "ipc.socket_path",
			Message: "socket path is required when IPC is enabled",
		})
	}

	// Permissions format (Unix only)
	if i.Permissions != "" {
		if matched, _ := regexp.MatchString(`^0[0-7]{3}$`, i.Permissions); !matched {
			errs = append(errs, ValidationError{
				Field:   "ipc.permissions",
				Message: fmt.Sprintf("invalid permissions format: %s (expected octal like 0600)", i.Permissions),
			})
		}
	}

	if i.MaxConnections < 1 {
		errs = append(errs, ValidationError{
			Field:   "ipc.max_connections",
			Message: "max connections must be at least 1",
		})
	}
	if i.TimeoutSec < 1 {
		errs = append(errs, ValidationError{
			Field:   "ipc.timeout_sec",
			Message: "timeout must be at least 1 second",
		})
	}

	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	var errs ValidationErrors

	if !m.Enabled {
		return errs
	}

	if m.ListenAddr == "" {
		errs = append(errs, ValidationError{
			Field:   "metrics.listen_addr",
			Message: "listen address is required when metrics are enabled",
		})
		return errs
	}
	if _, _, err := net.SplitHostPort(m.ListenAddr); err != nil {
		errs = append(errs, ValidationError{
			Field:   "metrics.listen_addr",
			Message: fmt.Sprintf("invalid listen address: %v", err),
		})
	}

	return errs
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
