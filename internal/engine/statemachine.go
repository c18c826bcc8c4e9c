package engine

import (
	"time"

	"feedbreakd/internal/classify"
	"feedbreakd/internal/fingerprint"
)

// Phase describes where one app sits in its feed episode.
type Phase int

const (
	// PhaseNotWatching means no feed has been structurally identified.
	PhaseNotWatching Phase = iota

	// PhaseEntered means a feed was identified and the grace period is
	// still absorbing fingerprint churn.
	PhaseEntered

	// PhaseActive means the grace period elapsed and distinct items are
	// being counted.
	PhaseActive

	// PhaseTriggered means the swipe threshold was crossed this episode.
	// Counting continues so sustained browsing can retrigger once the
	// global cooldown clears.
	PhaseTriggered
)

// String returns a human-readable name for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseEntered:
		return "entered"
	case PhaseActive:
		return "active"
	case PhaseTriggered:
		return "triggered"
	default:
		return "not_watching"
	}
}

// feedState is the per-app grace-period / swipe-count machine. It is owned
// by the event loop and never shared.
type feedState struct {
	phase           Phase
	entryTime       time.Time
	lastFingerprint fingerprint.Fingerprint
	swipeCount      int
}

// observe advances the machine with one classification + fingerprint pair
// and reports whether the swipe threshold was crossed.
//
// NotInFeed resets the episode entirely. Unknown leaves the machine
// untouched so a momentary introspection gap (a sheet over the feed, a
// denied snapshot) neither resets nor advances anything.
func (f *feedState) observe(result classify.Result, fp fingerprint.Fingerprint, now time.Time, grace time.Duration, threshold int) bool {
	switch result {
	case classify.NotInFeed:
		f.reset()
		return false
	case classify.Unknown:
		return false
	}

	switch f.phase {
	case PhaseNotWatching:
		f.phase = PhaseEntered
		f.entryTime = now
		f.lastFingerprint = fp
		f.swipeCount = 0
		return false

	case PhaseEntered:
		if now.Sub(f.entryTime) < grace {
			// Still settling. Track the freshest content but count
			// nothing.
			if fp.Known() {
				f.lastFingerprint = fp
			}
			return false
		}
		f.phase = PhaseActive
	}

	// PhaseActive or PhaseTriggered: count distinct items. A zero
	// fingerprint never counts as a change in either direction.
	if !fp.Known() {
		return false
	}
	if !f.lastFingerprint.Known() {
		f.lastFingerprint = fp
		return false
	}
	if fp == f.lastFingerprint {
		return false
	}

	f.lastFingerprint = fp
	f.swipeCount++
	if f.swipeCount < threshold {
		return false
	}

	// Crossed. Re-arm the counter so continued browsing keeps producing
	// triggers for the gate to rate-limit.
	f.phase = PhaseTriggered
	f.swipeCount = 0
	return true
}

// reset returns the machine to a state indistinguishable from fresh entry.
func (f *feedState) reset() {
	*f = feedState{}
}
