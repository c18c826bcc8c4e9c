package metrics

import (
	"strings"
	"testing"
	"time"
)

// TestLabeledSeries verifies that one family may carry independent
// labeled series and that registration is idempotent per label set.
func TestLabeledSeries(t *testing.T) {
	r := NewRegistry("test", "")

	a := r.RegisterCounter("events_total", "help", Labels{"kind": "scrolled"})
	b := r.RegisterCounter("events_total", "help", Labels{"kind": "app_entered"})
	if a == b {
		t.Fatal("distinct label sets returned the same series")
	}

	again := r.RegisterCounter("events_total", "help", Labels{"kind": "scrolled"})
	if again != a {
		t.Fatal("re-registration did not return the existing series")
	}

	a.Inc()
	a.Inc()
	b.Inc()
	if a.Value() != 2 || b.Value() != 1 {
		t.Errorf("series values bled: a=%d b=%d", a.Value(), b.Value())
	}
}

// TestWritePrometheusGroupsFamilies verifies one HELP/TYPE header per
// family and one sample line per series.
func TestWritePrometheusGroupsFamilies(t *testing.T) {
	r := NewRegistry("test", "")
	r.RegisterCounter("events_total", "events", Labels{"kind": "scrolled"}).Inc()
	r.RegisterCounter("events_total", "events", Labels{"kind": "app_entered"}).Add(3)
	r.RegisterGauge("watched_apps", "apps", nil).Set(5)

	var sb strings.Builder
	if err := r.WritePrometheus(&sb); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := sb.String()

	if got := strings.Count(out, "# TYPE test_events_total counter"); got != 1 {
		t.Errorf("family header written %d times:\n%s", got, out)
	}
	if !strings.Contains(out, `test_events_total{kind="scrolled"} 1`) {
		t.Errorf("missing scrolled series:\n%s", out)
	}
	if !strings.Contains(out, `test_events_total{kind="app_entered"} 3`) {
		t.Errorf("missing app_entered series:\n%s", out)
	}
	if !strings.Contains(out, "test_watched_apps 5") {
		t.Errorf("missing unlabeled gauge:\n%s", out)
	}
}

// TestHistogramObserve verifies bucket accumulation and summary values.
func TestHistogramObserve(t *testing.T) {
	h := NewHistogram("d", "help", nil, []float64{0.1, 1, 10})
	h.Observe(0.05)
	h.Observe(0.5)
	h.ObserveDuration(5 * time.Second)

	if h.Count() != 3 {
		t.Errorf("count = %d, want 3", h.Count())
	}
	if sum := h.Sum(); sum < 5.549 || sum > 5.551 {
		t.Errorf("sum = %f, want 5.55", sum)
	}
	if mean := h.Mean(); mean < 1.84 || mean > 1.86 {
		t.Errorf("mean = %f", mean)
	}
}

// TestDaemonMetricsSnapshot verifies the key-metric summary used by the
// status surface.
func TestDaemonMetricsSnapshot(t *testing.T) {
	m := NewDaemonMetrics(NewRegistry("test2", ""))
	m.RecordBlock()
	m.RecordCooldownDrop()
	m.RecordEvent("scrolled")
	m.SetWatchedApps(4)

	snap := m.Snapshot()
	if snap["blocks_total"] != uint64(1) {
		t.Errorf("blocks_total = %v", snap["blocks_total"])
	}
	if snap["cooldown_drops_total"] != uint64(1) {
		t.Errorf("cooldown_drops_total = %v", snap["cooldown_drops_total"])
	}
	if snap["watched_apps"] != int64(4) {
		t.Errorf("watched_apps = %v", snap["watched_apps"])
	}
}

// TestGetCounterUnlabeled verifies name-only lookup still resolves
// unlabeled series.
func TestGetCounterUnlabeled(t *testing.T) {
	r := NewRegistry("test3", "")
	c := r.RegisterCounter("blocks_total", "help", nil)
	if got := r.GetCounter("blocks_total"); got != c {
		t.Error("GetCounter did not resolve the unlabeled series")
	}
	if got := r.GetCounter("missing"); got != nil {
		t.Error("GetCounter invented a series")
	}
}
