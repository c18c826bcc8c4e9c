package engine

import (
	"testing"
	"time"

	"feedbreakd/internal/classify"
	"feedbreakd/internal/fingerprint"
	"feedbreakd/internal/host"
)

// t0 is the synthetic clock origin for decision-core tests.
var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// at returns a synthetic instant relative to t0.
func at(d time.Duration) time.Time {
	return t0.Add(d)
}

// TestDefaultConfig verifies the reference tunables.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.GracePeriod != 2*time.Second {
		t.Errorf("expected grace period 2s, got %v", cfg.GracePeriod)
	}
	if cfg.SwipeThreshold != 1 {
		t.Errorf("expected swipe threshold 1, got %d", cfg.SwipeThreshold)
	}
	if cfg.Cooldown != 3*time.Second {
		t.Errorf("expected cooldown 3s, got %v", cfg.Cooldown)
	}
	if cfg.Cooldown <= cfg.ExitSecondDelay {
		t.Errorf("cooldown %v must exceed second exit delay %v", cfg.Cooldown, cfg.ExitSecondDelay)
	}
	if cfg.ScrollDebounce != 500*time.Millisecond {
		t.Errorf("expected scroll debounce 500ms, got %v", cfg.ScrollDebounce)
	}
	if cfg.ScrollWindow != 30*time.Second {
		t.Errorf("expected scroll window 30s, got %v", cfg.ScrollWindow)
	}
	if cfg.ScrollThreshold != 3 {
		t.Errorf("expected scroll threshold 3, got %d", cfg.ScrollThreshold)
	}
	if cfg.DwellCeiling != 120*time.Second {
		t.Errorf("expected dwell ceiling 120s, got %v", cfg.DwellCeiling)
	}
	if cfg.DwellCooldown != 60*time.Second {
		t.Errorf("expected dwell cooldown 60s, got %v", cfg.DwellCooldown)
	}
}

// TestConfigNormalized verifies that unset fields fall back to defaults.
func TestConfigNormalized(t *testing.T) {
	cfg := (&Config{GracePeriod: 5 * time.Second}).normalized()

	if cfg.GracePeriod != 5*time.Second {
		t.Errorf("set field overwritten: got %v", cfg.GracePeriod)
	}
	if cfg.SwipeThreshold != 1 {
		t.Errorf("expected default swipe threshold, got %d", cfg.SwipeThreshold)
	}
	if cfg.Cooldown != 3*time.Second {
		t.Errorf("expected default cooldown, got %v", cfg.Cooldown)
	}
	if cfg.EventBuffer != 256 {
		t.Errorf("expected default event buffer, got %d", cfg.EventBuffer)
	}

	zero := (&Config{SwipeThreshold: -3}).normalized()
	if zero.SwipeThreshold != 1 {
		t.Errorf("negative threshold not clamped: got %d", zero.SwipeThreshold)
	}
}

// TestPhaseString verifies phase names.
func TestPhaseString(t *testing.T) {
	cases := map[Phase]string{
		PhaseNotWatching: "not_watching",
		PhaseEntered:     "entered",
		PhaseActive:      "active",
		PhaseTriggered:   "triggered",
		Phase(99):        "not_watching",
	}
	for phase, want := range cases {
		if got := phase.String(); got != want {
			t.Errorf("Phase(%d).String() = %q, want %q", phase, got, want)
		}
	}
}

const (
	fpA = fingerprint.Fingerprint(0x1111)
	fpB = fingerprint.Fingerprint(0x2222)
	fpC = fingerprint.Fingerprint(0x3333)
)

// TestFeedStateGracePeriod walks the reference timeline: entry at t=0,
// a change at 500ms inside the grace period, a change at 2200ms after it.
func TestFeedStateGracePeriod(t *testing.T) {
	var f feedState
	grace := 2 * time.Second

	if f.observe(classify.InFeed, fpA, at(0), grace, 1) {
		t.Fatal("entry must never trigger")
	}
	if f.phase != PhaseEntered {
		t.Fatalf("expected entered, got %v", f.phase)
	}
	if f.entryTime != at(0) {
		t.Errorf("entry time not recorded")
	}

	if f.observe(classify.InFeed, fpB, at(500*time.Millisecond), grace, 1) {
		t.Fatal("change inside grace period must not trigger")
	}
	if f.lastFingerprint != fpB {
		t.Errorf("grace-period change must still update the fingerprint")
	}
	if f.swipeCount != 0 {
		t.Errorf("grace-period change must not count, got %d", f.swipeCount)
	}

	if !f.observe(classify.InFeed, fpC, at(2200*time.Millisecond), grace, 1) {
		t.Fatal("post-grace change must trigger at threshold 1")
	}
	if f.phase != PhaseTriggered {
		t.Errorf("expected triggered, got %v", f.phase)
	}
}

// TestFeedStateObserve covers the remaining transitions in table form.
func TestFeedStateObserve(t *testing.T) {
	grace := 2 * time.Second

	tests := []struct {
		name string
		run  func(t *testing.T)
	}{
		{
			name: "not in feed resets everything",
			run: func(t *testing.T) {
				var f feedState
				f.observe(classify.InFeed, fpA, at(0), grace, 1)
				f.observe(classify.NotInFeed, fpB, at(100*time.Millisecond), grace, 1)
				if f.phase != PhaseNotWatching || f.swipeCount != 0 || !f.entryTime.IsZero() {
					t.Errorf("state not fully reset: %+v", f)
				}
				// Re-entry restarts grace from a fresh entry time.
				f.observe(classify.InFeed, fpB, at(300*time.Millisecond), grace, 1)
				if f.entryTime != at(300*time.Millisecond) {
					t.Errorf("re-entry did not restart grace")
				}
			},
		},
		{
			name: "unknown leaves the machine untouched",
			run: func(t *testing.T) {
				var f feedState
				f.observe(classify.InFeed, fpA, at(0), grace, 1)
				before := f
				if f.observe(classify.Unknown, fpB, at(3*time.Second), grace, 1) {
					t.Fatal("unknown must never trigger")
				}
				if f != before {
					t.Errorf("unknown mutated state: %+v -> %+v", before, f)
				}
			},
		},
		{
			name: "same fingerprint never counts",
			run: func(t *testing.T) {
				var f feedState
				f.observe(classify.InFeed, fpA, at(0), grace, 1)
				if f.observe(classify.InFeed, fpA, at(3*time.Second), grace, 1) {
					t.Fatal("unchanged fingerprint triggered")
				}
				if f.phase != PhaseActive {
					t.Errorf("grace elapse did not promote, got %v", f.phase)
				}
			},
		},
		{
			name: "zero fingerprint counts in neither direction",
			run: func(t *testing.T) {
				var f feedState
				f.observe(classify.InFeed, fpA, at(0), grace, 1)
				if f.observe(classify.InFeed, fingerprint.Unknown, at(3*time.Second), grace, 1) {
					t.Fatal("transition to zero triggered")
				}
				if f.lastFingerprint != fpA {
					t.Errorf("zero fingerprint overwrote the baseline")
				}
			},
		},
		{
			name: "zero entry baseline is replaced without counting",
			run: func(t *testing.T) {
				var f feedState
				f.observe(classify.InFeed, fingerprint.Unknown, at(0), grace, 1)
				if f.observe(classify.InFeed, fpA, at(3*time.Second), grace, 1) {
					t.Fatal("first known fingerprint after zero baseline triggered")
				}
				if f.lastFingerprint != fpA {
					t.Errorf("baseline not adopted")
				}
				if !f.observe(classify.InFeed, fpB, at(4*time.Second), grace, 1) {
					t.Fatal("real change after baseline did not trigger")
				}
			},
		},
		{
			name: "threshold above one needs that many changes",
			run: func(t *testing.T) {
				var f feedState
				f.observe(classify.InFeed, fpA, at(0), grace, 2)
				if f.observe(classify.InFeed, fpB, at(3*time.Second), grace, 2) {
					t.Fatal("first change triggered at threshold 2")
				}
				if !f.observe(classify.InFeed, fpC, at(4*time.Second), grace, 2) {
					t.Fatal("second change did not trigger at threshold 2")
				}
			},
		},
		{
			name: "machine re-arms after a trigger",
			run: func(t *testing.T) {
				var f feedState
				f.observe(classify.InFeed, fpA, at(0), grace, 1)
				f.observe(classify.InFeed, fpB, at(3*time.Second), grace, 1)
				if f.swipeCount != 0 {
					t.Errorf("counter not re-armed after trigger, got %d", f.swipeCount)
				}
				if !f.observe(classify.InFeed, fpC, at(4*time.Second), grace, 1) {
					t.Fatal("continued browsing did not retrigger")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.run)
	}
}

// TestScrollWindow covers the burst counter's debounce, threshold, and
// window expiry behavior.
func TestScrollWindow(t *testing.T) {
	debounce := 500 * time.Millisecond
	window := 30 * time.Second

	t.Run("burst fires once then resets", func(t *testing.T) {
		var w scrollWindow
		if w.observe(at(0), debounce, window, 3) {
			t.Fatal("first scroll fired")
		}
		if w.observe(at(1*time.Second), debounce, window, 3) {
			t.Fatal("second scroll fired")
		}
		if !w.observe(at(2*time.Second), debounce, window, 3) {
			t.Fatal("third scroll did not fire")
		}
		if w.count != 0 || !w.windowStart.IsZero() {
			t.Errorf("window not reset after firing: %+v", w)
		}
		// The next scroll starts a fresh window.
		if w.observe(at(3*time.Second), debounce, window, 3) {
			t.Fatal("scroll after reset fired immediately")
		}
		if w.count != 1 {
			t.Errorf("expected fresh count 1, got %d", w.count)
		}
	})

	t.Run("debounce boundary", func(t *testing.T) {
		var w scrollWindow
		w.observe(at(0), debounce, window, 10)
		w.observe(at(499*time.Millisecond), debounce, window, 10)
		if w.count != 1 {
			t.Errorf("scroll 499ms after the last counted, got count %d", w.count)
		}
		w.observe(at(500*time.Millisecond), debounce, window, 10)
		if w.count != 2 {
			t.Errorf("scroll exactly 500ms apart did not count, got %d", w.count)
		}
		// Ignored scrolls do not push the debounce anchor forward.
		w.observe(at(999*time.Millisecond), debounce, window, 10)
		if w.count != 2 {
			t.Errorf("scroll 499ms after the last counted one counted, got %d", w.count)
		}
	})

	t.Run("window expiry resets the count", func(t *testing.T) {
		var w scrollWindow
		w.observe(at(0), debounce, window, 3)
		w.observe(at(1*time.Second), debounce, window, 3)
		if w.observe(at(31*time.Second), debounce, window, 3) {
			t.Fatal("scroll in an expired window fired")
		}
		if w.count != 1 {
			t.Errorf("expired window did not restart the count, got %d", w.count)
		}
	})
}

// TestDwellState covers the ceiling and per-app warning cooldown.
func TestDwellState(t *testing.T) {
	ceiling := 120 * time.Second
	cooldown := 60 * time.Second

	var d dwellState
	if d.observe(at(0), at(119*time.Second), ceiling, cooldown) {
		t.Fatal("fired below the ceiling")
	}
	if !d.observe(at(0), at(120*time.Second), ceiling, cooldown) {
		t.Fatal("did not fire at the ceiling")
	}
	if d.observe(at(0), at(150*time.Second), ceiling, cooldown) {
		t.Fatal("fired inside the warning cooldown")
	}
	if !d.observe(at(0), at(180*time.Second), ceiling, cooldown) {
		t.Fatal("did not fire after the cooldown cleared")
	}
	if d.observe(time.Time{}, at(300*time.Second), ceiling, cooldown) {
		t.Fatal("fired with no foreground baseline")
	}
}

// TestMediaState covers advance detection from playback samples.
func TestMediaState(t *testing.T) {
	playing := func(title string, pos time.Duration) *host.Playback {
		return &host.Playback{State: host.PlaybackPlaying, Position: pos, Duration: time.Minute, Title: title}
	}

	t.Run("title change reads as an advance", func(t *testing.T) {
		var m mediaState
		if m.observe(playing("first", 10*time.Second), at(0)) {
			t.Fatal("first sample read as advance")
		}
		if !m.observe(playing("second", time.Second), at(5*time.Second)) {
			t.Fatal("title change not detected")
		}
		if !m.corroborates(at(10 * time.Second)) {
			t.Error("recent advance does not corroborate")
		}
		if m.corroborates(at(5*time.Second + mediaCorroborationWindow + time.Second)) {
			t.Error("stale advance still corroborates")
		}
	})

	t.Run("backward position jump while playing", func(t *testing.T) {
		var m mediaState
		m.observe(playing("clip", 30*time.Second), at(0))
		if m.observe(playing("clip", 29*time.Second), at(time.Second)) {
			t.Fatal("small backward wobble read as advance")
		}
		if !m.observe(playing("clip", time.Second), at(2*time.Second)) {
			t.Fatal("large backward jump not detected")
		}
	})

	t.Run("nil sample clears the baseline", func(t *testing.T) {
		var m mediaState
		m.observe(playing("one", 20*time.Second), at(0))
		m.observe(nil, at(time.Second))
		if m.observe(playing("two", time.Second), at(2*time.Second)) {
			t.Fatal("advance detected across a cleared baseline")
		}
	})

	t.Run("forward progress is not an advance", func(t *testing.T) {
		var m mediaState
		m.observe(playing("clip", 5*time.Second), at(0))
		if m.observe(playing("clip", 15*time.Second), at(10*time.Second)) {
			t.Fatal("normal playback progress read as advance")
		}
	})
}

// TestGateCooldown verifies drop-inside and fire-at-boundary behavior.
func TestGateCooldown(t *testing.T) {
	nav := &countingNavigator{}
	g := &gate{
		cooldown:    3 * time.Second,
		firstDelay:  time.Millisecond,
		secondDelay: 2 * time.Millisecond,
		navigator:   nav,
		notifier:    &recordingNotifier{},
	}

	if !g.consider("App", at(0)) {
		t.Fatal("first trigger did not fire")
	}
	if g.consider("App", at(800*time.Millisecond)) {
		t.Fatal("trigger 800ms after a block fired inside a 3s cooldown")
	}
	if !g.consider("App", at(3*time.Second)) {
		t.Fatal("trigger exactly one cooldown after the last block did not fire")
	}

	time.Sleep(20 * time.Millisecond)
	if got := nav.calls(); got != 4 {
		t.Errorf("expected 4 exit actions from 2 blocks, got %d", got)
	}
}
