package engine

import "time"

// Config holds the engine tunables. Every threshold the decision logic
// consults lives here; nothing is hardcoded in the detectors themselves.
type Config struct {
	// GracePeriod is how long after feed entry fingerprint changes are
	// absorbed without counting. Covers the first item still loading and
	// the re-layout noise right after entry.
	// Default: 2s
	GracePeriod time.Duration

	// SwipeThreshold is the number of qualifying fingerprint transitions
	// after the grace period that triggers enforcement.
	// Default: 1 (the second distinct item triggers)
	SwipeThreshold int

	// Cooldown is the minimum interval between two enforcement actions,
	// global across all apps and all signal sources. Must exceed
	// ExitSecondDelay so a new trigger can never stack exit actions on
	// top of pending ones.
	// Default: 3s
	Cooldown time.Duration

	// ExitFirstDelay and ExitSecondDelay stagger the two back-navigation
	// actions issued per block. Some targets need more than one back step.
	ExitFirstDelay  time.Duration
	ExitSecondDelay time.Duration

	// ScrollDebounce is the minimum spacing between two scroll events for
	// both to count toward a burst.
	// Default: 500ms
	ScrollDebounce time.Duration

	// ScrollWindow is the rolling window for the scroll-burst counter.
	// Default: 30s
	ScrollWindow time.Duration

	// ScrollThreshold is the number of debounced scrolls within the window
	// that counts as a burst.
	// Default: 3
	ScrollThreshold int

	// DwellCeiling is the continuous foreground time in a watched app that
	// fires the dwell fallback when structural classification is blocked.
	// Default: 120s
	DwellCeiling time.Duration

	// DwellCooldown is the minimum interval between two dwell warnings for
	// the same app.
	// Default: 60s
	DwellCooldown time.Duration

	// EventBuffer is the capacity of the inbound event channel. Events
	// submitted while the buffer is full are dropped, never queued
	// unboundedly and never blocking the producer.
	EventBuffer int
}

// DefaultConfig returns the reference tunables.
func DefaultConfig() *Config {
	return &Config{
		GracePeriod:     2 * time.Second,
		SwipeThreshold:  1,
		Cooldown:        3 * time.Second,
		ExitFirstDelay:  250 * time.Millisecond,
		ExitSecondDelay: 1 * time.Second,
		ScrollDebounce:  500 * time.Millisecond,
		ScrollWindow:    30 * time.Second,
		ScrollThreshold: 3,
		DwellCeiling:    120 * time.Second,
		DwellCooldown:   60 * time.Second,
		EventBuffer:     256,
	}
}

// normalized fills unset fields with defaults so a partially populated
// Config cannot produce a machine that triggers on every event.
func (c *Config) normalized() *Config {
	def := DefaultConfig()
	out := *c
	if out.GracePeriod <= 0 {
		out.GracePeriod = def.GracePeriod
	}
	if out.SwipeThreshold < 1 {
		out.SwipeThreshold = def.SwipeThreshold
	}
	if out.Cooldown <= 0 {
		out.Cooldown = def.Cooldown
	}
	if out.ExitFirstDelay <= 0 {
		out.ExitFirstDelay = def.ExitFirstDelay
	}
	if out.ExitSecondDelay <= 0 {
		out.ExitSecondDelay = def.ExitSecondDelay
	}
	if out.ScrollDebounce <= 0 {
		out.ScrollDebounce = def.ScrollDebounce
	}
	if out.ScrollWindow <= 0 {
		out.ScrollWindow = def.ScrollWindow
	}
	if out.ScrollThreshold < 1 {
		out.ScrollThreshold = def.ScrollThreshold
	}
	if out.DwellCeiling <= 0 {
		out.DwellCeiling = def.DwellCeiling
	}
	if out.DwellCooldown <= 0 {
		out.DwellCooldown = def.DwellCooldown
	}
	if out.EventBuffer <= 0 {
		out.EventBuffer = def.EventBuffer
	}
	return &out
}
