package engine

import (
	"time"

	"feedbreakd/internal/classify"
)

// introspectionLostStreak is how many consecutive classification
// attempts must come back Unknown before an app that once classified
// reads as introspection-blocked again. A single denied query (rate
// limit, a sheet over the feed) is not a sustained outage.
const introspectionLostStreak = 3

// appState bundles every piece of per-app keyed state: the feed machine,
// the fallback aggregators, and the classification history. One instance
// exists per watched app currently holding state; apps outside the watch
// set never get one.
type appState struct {
	feed   feedState
	scroll scrollWindow
	dwell  dwellState
	media  mediaState

	// lastResult is the outcome of the most recent classification
	// attempt, surfaced in diagnostics. lastKnown holds the most recent
	// non-Unknown verdict; unknownStreak counts attempts since.
	lastResult    classify.Result
	lastKnown     classify.Result
	unknownStreak int
}

// noteClassification folds one classification attempt into the
// introspection-health tracking. Scroll events never attempt
// classification and must not call this.
func (a *appState) noteClassification(r classify.Result) {
	a.lastResult = r
	if r == classify.Unknown {
		a.unknownStreak++
		return
	}
	a.lastKnown = r
	a.unknownStreak = 0
}

// structurallyBlind reports whether the fallback detectors should stand
// in for this app: no structural verdict has been obtained this session,
// or the last several attempts all came back Unknown.
func (a *appState) structurallyBlind() bool {
	if a.lastKnown == classify.Unknown {
		return true
	}
	return a.unknownStreak >= introspectionLostStreak
}

// sessionStore owns the foreground bookkeeping and all per-app state.
// It belongs exclusively to the event loop; nothing here is locked.
type sessionStore struct {
	foreground      string
	foregroundSince time.Time
	apps            map[string]*appState
}

func newSessionStore() *sessionStore {
	return &sessionStore{apps: make(map[string]*appState)}
}

// onEvent records which app produced an event. When the foreground app
// changes, the previous app's state is cleared so nothing stale survives
// the switch. Reports whether a transition happened.
func (s *sessionStore) onEvent(app string, now time.Time) bool {
	if app == s.foreground {
		return false
	}
	prev := s.foreground
	s.foreground = app
	s.foregroundSince = now
	if prev != "" {
		s.resetApp(prev)
	}
	return true
}

// state returns the app's state bundle, creating it on first use. Callers
// must gate on the watch set before calling; creation is the only way an
// app enters the store.
func (s *sessionStore) state(app string) *appState {
	st, ok := s.apps[app]
	if !ok {
		st = &appState{}
		s.apps[app] = st
	}
	return st
}

// peek returns the app's state without creating it.
func (s *sessionStore) peek(app string) *appState {
	return s.apps[app]
}

// resetApp drops every keyed structure for the app in one step.
func (s *sessionStore) resetApp(app string) {
	delete(s.apps, app)
}

// size returns how many apps currently hold state.
func (s *sessionStore) size() int {
	return len(s.apps)
}
