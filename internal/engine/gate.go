package engine

import (
	"time"

	"feedbreakd/internal/host"
)

// Reason identifies which detector requested an enforcement action.
type Reason string

const (
	// ReasonSwipeThreshold is the structural path: distinct feed items
	// past the grace period reached the configured count.
	ReasonSwipeThreshold Reason = "swipe_threshold"

	// ReasonScrollBurst is the fallback for introspection-blocked apps:
	// debounced scrolls in the rolling window reached the threshold.
	ReasonScrollBurst Reason = "scroll_burst"

	// ReasonDwellCeiling is the lowest-confidence fallback: continuous
	// foreground time in a watched app crossed the ceiling.
	ReasonDwellCeiling Reason = "dwell_ceiling"
)

// gate owns the single global cooldown and the enforcement side effects.
// Triggers arriving inside the cooldown are dropped silently, never queued.
// Owned by the event loop; lastBlock needs no locking.
type gate struct {
	cooldown    time.Duration
	firstDelay  time.Duration
	secondDelay time.Duration

	lastBlock time.Time

	navigator host.Navigator
	notifier  host.Notifier
}

// consider applies the cooldown and, when clear, schedules the two exit
// actions and raises the notification. Reports whether enforcement fired.
//
// The two actions are fixed fire-and-forget callbacks with no
// cancellation; the cooldown window outlasts the second delay, so a later
// trigger can never stack actions on top of pending ones.
func (g *gate) consider(displayName string, now time.Time) bool {
	if !g.lastBlock.IsZero() && now.Sub(g.lastBlock) < g.cooldown {
		return false
	}
	g.lastBlock = now

	time.AfterFunc(g.firstDelay, g.navigator.PerformExitAction)
	time.AfterFunc(g.secondDelay, g.navigator.PerformExitAction)
	g.notifier.NotifyBlocked(displayName)
	return true
}

// apply swaps the gate timings. Called only between events.
func (g *gate) apply(cfg *Config) {
	g.cooldown = cfg.Cooldown
	g.firstDelay = cfg.ExitFirstDelay
	g.secondDelay = cfg.ExitSecondDelay
}
