// Daemon-level metrics for feedbreakd.
package metrics

import (
	"time"
)

// DaemonMetrics holds all feedbreakd-specific metrics. Labeled families
// (events by kind, triggers by reason) register their series on first use;
// everything else is registered up front.
type DaemonMetrics struct {
	registry *Registry

	// Counters
	BlocksTotal        *Counter
	CooldownDropsTotal *Counter
	EventsDroppedTotal *Counter
	MediaAdvancesTotal *Counter
	ErrorsTotal        *Counter

	// Gauges
	WatchedApps   *Gauge
	TrackedApps   *Gauge
	UptimeSeconds *Gauge
	LastBlockTs   *Gauge

	// Histograms
	SnapshotQueryDuration *Histogram
	JournalQueryDuration  *Histogram
}

// startTime records when metrics were initialized.
var startTime = time.Now()

// NewDaemonMetrics creates and registers all feedbreakd metrics.
func NewDaemonMetrics(registry *Registry) *DaemonMetrics {
	if registry == nil {
		registry = Default()
	}

	return &DaemonMetrics{
		registry: registry,

		BlocksTotal: registry.RegisterCounter(
			"blocks_total",
			"Total number of enforcement actions issued",
			nil,
		),
		CooldownDropsTotal: registry.RegisterCounter(
			"cooldown_drops_total",
			"Total number of triggers dropped by the global cooldown",
			nil,
		),
		EventsDroppedTotal: registry.RegisterCounter(
			"events_dropped_total",
			"Total number of UI events dropped on a full buffer",
			nil,
		),
		MediaAdvancesTotal: registry.RegisterCounter(
			"media_advances_total",
			"Total number of media item advances observed",
			nil,
		),
		ErrorsTotal: registry.RegisterCounter(
			"errors_total",
			"Total number of errors",
			nil,
		),

		WatchedApps: registry.RegisterGauge(
			"watched_apps",
			"Number of applications in the watch set",
			nil,
		),
		TrackedApps: registry.RegisterGauge(
			"tracked_apps",
			"Number of applications currently holding engine state",
			nil,
		),
		UptimeSeconds: registry.RegisterGauge(
			"uptime_seconds",
			"Number of seconds the daemon has been running",
			nil,
		),
		LastBlockTs: registry.RegisterGauge(
			"last_block_timestamp",
			"Unix timestamp of the last enforcement action",
			nil,
		),

		SnapshotQueryDuration: registry.RegisterHistogram(
			"snapshot_query_duration_seconds",
			"Duration of UI snapshot queries in seconds",
			nil,
			DurationBuckets,
		),
		JournalQueryDuration: registry.RegisterHistogram(
			"journal_query_duration_seconds",
			"Duration of decision journal queries in seconds",
			nil,
			DurationBuckets,
		),
	}
}

// RecordEvent counts one processed UI event by kind.
func (m *DaemonMetrics) RecordEvent(kind string) {
	m.registry.RegisterCounter(
		"events_total",
		"Total number of UI events processed",
		Labels{"kind": kind},
	).Inc()
}

// RecordEventDropped counts an event dropped on a full buffer.
func (m *DaemonMetrics) RecordEventDropped() {
	m.EventsDroppedTotal.Inc()
}

// RecordClassification counts one structural classification by result.
func (m *DaemonMetrics) RecordClassification(result string) {
	m.registry.RegisterCounter(
		"classifications_total",
		"Total number of structural classifications",
		Labels{"result": result},
	).Inc()
}

// RecordTrigger counts one gate consultation by reason.
func (m *DaemonMetrics) RecordTrigger(reason string) {
	m.registry.RegisterCounter(
		"triggers_total",
		"Total number of block triggers considered",
		Labels{"reason": reason},
	).Inc()
}

// RecordFallbackFire counts one fallback signal firing by kind.
func (m *DaemonMetrics) RecordFallbackFire(kind string) {
	m.registry.RegisterCounter(
		"fallback_fires_total",
		"Total number of fallback signal firings",
		Labels{"kind": kind},
	).Inc()
}

// RecordBlock records an enforcement action.
func (m *DaemonMetrics) RecordBlock() {
	m.BlocksTotal.Inc()
	m.LastBlockTs.Set(time.Now().Unix())
}

// RecordCooldownDrop records a trigger swallowed by the cooldown.
func (m *DaemonMetrics) RecordCooldownDrop() {
	m.CooldownDropsTotal.Inc()
}

// RecordMediaAdvance records an observed media item advance.
func (m *DaemonMetrics) RecordMediaAdvance() {
	m.MediaAdvancesTotal.Inc()
}

// RecordSnapshotQuery records the duration of one UI snapshot query.
func (m *DaemonMetrics) RecordSnapshotQuery(d time.Duration) {
	m.SnapshotQueryDuration.ObserveDuration(d)
}

// RecordJournalQuery records the duration of one journal query.
func (m *DaemonMetrics) RecordJournalQuery(d time.Duration) {
	m.JournalQueryDuration.ObserveDuration(d)
}

// RecordError records an error.
func (m *DaemonMetrics) RecordError() {
	m.ErrorsTotal.Inc()
}

// SetWatchedApps sets the size of the watch set.
func (m *DaemonMetrics) SetWatchedApps(n int64) {
	m.WatchedApps.Set(n)
}

// SetTrackedApps sets how many apps currently hold engine state.
func (m *DaemonMetrics) SetTrackedApps(n int64) {
	m.TrackedApps.Set(n)
}

// UpdateUptime updates the uptime metric.
func (m *DaemonMetrics) UpdateUptime() {
	m.UptimeSeconds.Set(int64(time.Since(startTime).Seconds()))
}

// Snapshot returns a snapshot of key metrics.
func (m *DaemonMetrics) Snapshot() map[string]interface{} {
	m.UpdateUptime()
	return map[string]interface{}{
		"blocks_total":               m.BlocksTotal.Value(),
		"cooldown_drops_total":       m.CooldownDropsTotal.Value(),
		"events_dropped_total":       m.EventsDroppedTotal.Value(),
		"media_advances_total":       m.MediaAdvancesTotal.Value(),
		"errors_total":               m.ErrorsTotal.Value(),
		"watched_apps":               m.WatchedApps.Value(),
		"tracked_apps":               m.TrackedApps.Value(),
		"uptime_seconds":             m.UptimeSeconds.Value(),
		"last_block_timestamp":       m.LastBlockTs.Value(),
		"snapshot_query_avg_seconds": m.SnapshotQueryDuration.Mean(),
	}
}

// Global daemon metrics instance.
var defaultDaemonMetrics *DaemonMetrics

// GetMetrics returns the global daemon metrics instance.
func GetMetrics() *DaemonMetrics {
	if defaultDaemonMetrics == nil {
		defaultDaemonMetrics = NewDaemonMetrics(Default())
	}
	return defaultDaemonMetrics
}

// InitMetrics initializes the global daemon metrics with a custom registry.
func InitMetrics(registry *Registry) *DaemonMetrics {
	defaultDaemonMetrics = NewDaemonMetrics(registry)
	return defaultDaemonMetrics
}
