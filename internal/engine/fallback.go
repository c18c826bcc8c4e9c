package engine

import (
	"time"

	"feedbreakd/internal/host"
)

// mediaCorroborationWindow bounds how recent a media item advance must be
// to annotate a fallback trigger as corroborated.
const mediaCorroborationWindow = 15 * time.Second

// backwardJumpThreshold is how far a played position must move backward,
// while playing, to read as a restart on a new item rather than a seek.
const backwardJumpThreshold = 2 * time.Second

// scrollWindow counts debounced vertical-scroll events in a rolling window.
// It fires once when the threshold is reached, then starts over.
type scrollWindow struct {
	windowStart time.Time
	lastCounted time.Time
	count       int
}

// observe registers one scroll event and reports whether a burst completed.
// Events closer than debounce to the previously counted one are ignored.
func (w *scrollWindow) observe(now time.Time, debounce, window time.Duration, threshold int) bool {
	if w.windowStart.IsZero() || now.Sub(w.windowStart) > window {
		w.windowStart = now
		w.lastCounted = time.Time{}
		w.count = 0
	}
	if !w.lastCounted.IsZero() && now.Sub(w.lastCounted) < debounce {
		return false
	}
	w.lastCounted = now
	w.count++
	if w.count < threshold {
		return false
	}
	w.reset()
	return true
}

func (w *scrollWindow) reset() {
	*w = scrollWindow{}
}

// dwellState tracks the warning cooldown for the dwell-time fallback.
type dwellState struct {
	lastFired time.Time
}

// observe reports whether continuous foreground time crossed the ceiling
// and the per-app warning cooldown has cleared.
func (d *dwellState) observe(foregroundSince, now time.Time, ceiling, cooldown time.Duration) bool {
	if foregroundSince.IsZero() || now.Sub(foregroundSince) < ceiling {
		return false
	}
	if !d.lastFired.IsZero() && now.Sub(d.lastFired) < cooldown {
		return false
	}
	d.lastFired = now
	return true
}

// mediaState remembers the last observed playback per app so an item
// advance (title change, position jumping backward mid-play) can be
// spotted. Advances corroborate other fallbacks; they never trigger
// enforcement on their own.
type mediaState struct {
	lastTitle    string
	lastPosition time.Duration
	lastState    host.PlaybackState
	lastAdvance  time.Time
	seen         bool
}

// observe folds one playback sample in and reports whether it reads as a
// move to the next item. A nil sample clears the comparison baseline.
func (m *mediaState) observe(p *host.Playback, now time.Time) bool {
	if p == nil {
		m.seen = false
		return false
	}

	advanced := false
	if m.seen {
		if p.Title != "" && m.lastTitle != "" && p.Title != m.lastTitle {
			advanced = true
		}
		if m.lastState == host.PlaybackPlaying && m.lastPosition-p.Position > backwardJumpThreshold {
			advanced = true
		}
	}

	m.lastTitle = p.Title
	m.lastPosition = p.Position
	m.lastState = p.State
	m.seen = true

	if advanced {
		m.lastAdvance = now
	}
	return advanced
}

// corroborates reports whether an advance was seen recently enough to back
// up a fallback trigger.
func (m *mediaState) corroborates(now time.Time) bool {
	return !m.lastAdvance.IsZero() && now.Sub(m.lastAdvance) <= mediaCorroborationWindow
}
