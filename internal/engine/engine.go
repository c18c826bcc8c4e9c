// Package engine is the decision core of feedbreakd.
//
// The engine consumes normalized UI events on a single event loop, fuses
// structural feed classification, content fingerprints, and fallback
// signals into per-app state machines, and pushes enforcement through a
// globally cooled-down decision gate. All per-app state is owned by the
// loop; events are processed strictly in arrival order and no two events
// are ever handled concurrently.
//
// The engine is usable as a library: construct with New, feed events via
// Submit, observe decisions via Subscribe. The daemon is one consumer;
// tests and the IPC inject path are others. Every degradation path fails
// toward not blocking.
package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"feedbreakd/internal/classify"
	"feedbreakd/internal/fingerprint"
	"feedbreakd/internal/host"
	"feedbreakd/internal/logging"
	"feedbreakd/internal/metrics"
	"feedbreakd/internal/uievent"
)

var (
	// ErrAlreadyRunning is returned when Start is called while running.
	ErrAlreadyRunning = errors.New("engine: already running")

	// ErrNotRunning is returned for operations requiring a running engine.
	ErrNotRunning = errors.New("engine: not running")

	// ErrBusy is returned when the control queue cannot accept a request.
	ErrBusy = errors.New("engine: control queue busy")
)

// Journal records enforcement decisions. Implementations must never store
// content descriptors or fingerprint source text; the engine hands over
// only the app id, the reason, and the outcome.
type Journal interface {
	RecordDecision(app string, reason string, detail string, dropped bool, at time.Time) error
}

// nopJournal discards decisions. Used when no journal is wired.
type nopJournal struct{}

func (nopJournal) RecordDecision(string, string, string, bool, time.Time) error { return nil }

// DiagnosticsSink receives an observational state snapshot after every
// processed event. Purely passive; implementations must not block.
type DiagnosticsSink interface {
	Update(StateSnapshot)
}

// BlockEvent describes one gate decision, fired or dropped.
type BlockEvent struct {
	App         string    `json:"app"`
	DisplayName string    `json:"display_name"`
	Reason      Reason    `json:"reason"`
	Detail      string    `json:"detail,omitempty"`
	Dropped     bool      `json:"dropped"`
	Time        time.Time `json:"time"`
}

// AppState is the observational view of one app's engine state.
type AppState struct {
	App                string    `json:"app"`
	DisplayName        string    `json:"display_name"`
	Phase              string    `json:"phase"`
	SwipeCount         int       `json:"swipe_count"`
	EntryTime          time.Time `json:"entry_time"`
	LastClassification string    `json:"last_classification"`
	ScrollCount        int       `json:"scroll_count"`
}

// StateSnapshot is the observational view of the whole engine after one
// processed event.
type StateSnapshot struct {
	Time            time.Time  `json:"time"`
	Foreground      string     `json:"foreground"`
	ForegroundSince time.Time  `json:"foreground_since"`
	Paused          bool       `json:"paused"`
	LastBlock       time.Time  `json:"last_block"`
	EventsSeen      uint64     `json:"events_seen"`
	Apps            []AppState `json:"apps"`
}

// Deps carries the engine's collaborators. Any field may be left zero;
// missing capabilities degrade to unavailable, a missing journal discards
// decisions, and a missing logger falls back to the process default.
type Deps struct {
	Caps        host.Capabilities
	Registry    *classify.Registry
	Journal     Journal
	Metrics     *metrics.DaemonMetrics
	Logger      *logging.Logger
	Diagnostics DiagnosticsSink
}

// Engine fuses UI events into block decisions.
type Engine struct {
	mu sync.RWMutex

	// cfg and everything below it in this group are owned by the event
	// loop once Start returns; control funcs are the only mutation path.
	cfg      *Config
	sessions *sessionStore
	gate     *gate
	seen     uint64

	caps     host.Capabilities
	registry *classify.Registry
	journal  Journal
	metrics  *metrics.DaemonMetrics
	log      *logging.Logger

	events  chan uievent.Event
	control chan func()

	subscribers []chan<- BlockEvent
	diag        DiagnosticsSink

	lastSnapshot StateSnapshot
	paused       bool

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// New creates an engine with the given tunables and collaborators.
func New(cfg *Config, deps Deps) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.normalized()

	if deps.Registry == nil {
		deps.Registry = classify.NewRegistry()
	}
	if deps.Journal == nil {
		deps.Journal = nopJournal{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.GetMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}

	e := &Engine{
		cfg:      cfg,
		sessions: newSessionStore(),
		caps:     deps.Caps.Normalize(),
		registry: deps.Registry,
		journal:  deps.Journal,
		metrics:  deps.Metrics,
		log:      deps.Logger.WithComponent("engine"),
		events:   make(chan uievent.Event, cfg.EventBuffer),
		control:  make(chan func(), 16),
		diag:     deps.Diagnostics,
	}
	e.gate = &gate{
		navigator: e.caps.Navigator,
		notifier:  e.caps.Notifier,
	}
	e.gate.apply(cfg)
	e.metrics.SetWatchedApps(int64(len(e.registry.Apps())))
	return e
}

// Start launches the event loop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrAlreadyRunning
	}

	e.ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	e.running = true
	snap := e.buildSnapshot(time.Now())
	snap.Paused = e.paused
	e.lastSnapshot = snap

	go e.run()

	e.log.Info("engine started",
		"watched_apps", len(e.registry.Apps()),
		"grace_period", e.cfg.GracePeriod,
		"cooldown", e.cfg.Cooldown)
	return nil
}

// Stop shuts the loop down and closes all subscriber channels.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	<-e.done

	e.mu.Lock()
	for _, ch := range e.subscribers {
		close(ch)
	}
	e.subscribers = nil
	e.mu.Unlock()

	e.log.Info("engine stopped")
	return nil
}

// Running reports whether the event loop is active.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Submit queues one event for processing. When the buffer is full the
// event is dropped rather than blocking the producer; detection catches
// up on the next event. Reports whether the event was accepted.
func (e *Engine) Submit(ev uievent.Event) bool {
	select {
	case e.events <- ev:
		return true
	default:
		e.metrics.RecordEventDropped()
		e.log.Debug("event buffer full, dropping", "app", ev.App, "kind", ev.Kind.String())
		return false
	}
}

// Subscribe returns a channel of gate decisions, fired and dropped alike.
// The channel closes when the engine stops. Slow consumers miss events
// rather than stalling the loop.
func (e *Engine) Subscribe() <-chan BlockEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := make(chan BlockEvent, 64)
	e.subscribers = append(e.subscribers, ch)
	return ch
}

// SetDiagnosticsSink installs the observational snapshot consumer.
func (e *Engine) SetDiagnosticsSink(sink DiagnosticsSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.diag = sink
}

// Pause suspends enforcement. Detection and state tracking continue;
// triggers are journaled as dropped until Resume.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	e.log.Info("enforcement paused")
}

// Resume re-enables enforcement.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	e.log.Info("enforcement resumed")
}

// Paused reports whether enforcement is suspended.
func (e *Engine) Paused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

// Status returns the snapshot published after the most recent event.
func (e *Engine) Status() StateSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastSnapshot
}

// ApplyConfig swaps the engine tunables. The swap happens between events,
// never mid-event. Before Start the config is applied directly.
func (e *Engine) ApplyConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("engine: nil config")
	}
	norm := cfg.normalized()

	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()

	if !running {
		e.cfg = norm
		e.gate.apply(norm)
		return nil
	}

	select {
	case e.control <- func() {
		e.cfg = norm
		e.gate.apply(norm)
		e.log.Info("engine config applied",
			"grace_period", norm.GracePeriod,
			"swipe_threshold", norm.SwipeThreshold,
			"cooldown", norm.Cooldown)
	}:
		return nil
	default:
		return ErrBusy
	}
}

// Ping round-trips the control channel to prove the loop is alive.
func (e *Engine) Ping(ctx context.Context) error {
	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}

	reply := make(chan struct{})
	select {
	case e.control <- func() { close(reply) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the event loop. Everything that mutates per-app state happens
// here, one event at a time.
func (e *Engine) run() {
	defer close(e.done)
	for {
		select {
		case <-e.ctx.Done():
			return
		case fn := <-e.control:
			fn()
		case ev := <-e.events:
			now := time.Now()
			e.handleEvent(ev, now)
			e.publish(now)
		}
	}
}

// handleEvent runs the full decision pipeline for one event at one
// instant. The explicit now keeps every threshold comparison on a single
// clock reading and lets tests drive the pipeline with synthetic times.
func (e *Engine) handleEvent(ev uievent.Event, now time.Time) {
	e.seen++
	e.metrics.RecordEvent(ev.Kind.String())
	defer func() {
		e.metrics.SetTrackedApps(int64(e.sessions.size()))
	}()

	watched := e.registry.Registered(ev.App)
	e.sessions.onEvent(ev.App, now)
	if !watched {
		// Foreground bookkeeping only. Apps outside the watch set get
		// no per-app state and can never trigger anything.
		return
	}

	st := e.sessions.state(ev.App)

	// Scroll events are too frequent to justify a snapshot query of their
	// own; they classify only when the host attached a snapshot.
	snap := ev.Snapshot
	attempted := snap != nil
	if snap == nil && ev.Kind != uievent.KindScrolled {
		start := time.Now()
		snap = e.caps.Introspector.CurrentSnapshot()
		e.metrics.RecordSnapshotQuery(time.Since(start))
		attempted = true
	}

	result := classify.Unknown
	if attempted {
		result = e.registry.Classify(ev.App, snap)
		e.metrics.RecordClassification(result.String())
		st.noteClassification(result)
	}

	var fp fingerprint.Fingerprint
	if snap != nil {
		fp = fingerprint.Compute(snap)
	} else if len(ev.Texts) > 0 {
		fp = fingerprint.FromTexts(ev.Texts)
	}

	if st.feed.observe(result, fp, now, e.cfg.GracePeriod, e.cfg.SwipeThreshold) {
		e.block(ev.App, st, ReasonSwipeThreshold, now)
	}

	// Fallback signals stand in only while structural classification is
	// blocked for this app, not merely for events that skip the query.
	if !st.structurallyBlind() {
		return
	}

	if p, ok := e.caps.Media.ActivePlayback(ev.App); ok {
		if st.media.observe(p, now) {
			e.metrics.RecordMediaAdvance()
		}
	}

	if ev.Kind == uievent.KindScrolled {
		if st.scroll.observe(now, e.cfg.ScrollDebounce, e.cfg.ScrollWindow, e.cfg.ScrollThreshold) {
			e.metrics.RecordFallbackFire("scroll_burst")
			e.block(ev.App, st, ReasonScrollBurst, now)
		}
	}

	if st.dwell.observe(e.sessions.foregroundSince, now, e.cfg.DwellCeiling, e.cfg.DwellCooldown) {
		e.metrics.RecordFallbackFire("dwell")
		e.block(ev.App, st, ReasonDwellCeiling, now)
	}
}

// block routes one trigger through the gate, the journal, the metrics,
// and the subscribers. Journal failures are logged and ignored; the gate
// decision stands regardless.
func (e *Engine) block(app string, st *appState, reason Reason, now time.Time) {
	e.metrics.RecordTrigger(string(reason))

	detail := e.triggerDetail(st, reason, now)
	display := e.registry.DisplayName(app)

	var fired bool
	if e.Paused() {
		detail = joinDetail(detail, "paused")
	} else {
		fired = e.gate.consider(display, now)
		if fired {
			e.metrics.RecordBlock()
			e.log.Info("feed blocked", "app", app, "reason", string(reason), "detail", detail)
		} else {
			e.metrics.RecordCooldownDrop()
			e.log.Debug("trigger inside cooldown, dropped", "app", app, "reason", string(reason))
		}
	}

	journalStart := time.Now()
	if err := e.journal.RecordDecision(app, string(reason), detail, !fired, now); err != nil {
		e.log.Warn("journal write failed", "error", err)
	}
	e.metrics.RecordJournalQuery(time.Since(journalStart))

	e.emit(BlockEvent{
		App:         app,
		DisplayName: display,
		Reason:      reason,
		Detail:      detail,
		Dropped:     !fired,
		Time:        now,
	})
}

// triggerDetail annotates fallback triggers with corroborating context.
func (e *Engine) triggerDetail(st *appState, reason Reason, now time.Time) string {
	if reason == ReasonSwipeThreshold {
		return ""
	}
	var detail string
	if st.media.corroborates(now) {
		detail = "media=advanced"
	}
	if reason == ReasonDwellCeiling {
		if name, ok := e.caps.Activity.RecentActivity(e.sessions.foreground, e.cfg.DwellCeiling); ok && name != "" {
			detail = joinDetail(detail, "activity="+name)
		}
	}
	return detail
}

func joinDetail(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}

// emit delivers a decision to subscribers without ever blocking the loop.
func (e *Engine) emit(ev BlockEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// publish caches and fans out the observational snapshot for this event.
func (e *Engine) publish(now time.Time) {
	snap := e.buildSnapshot(now)
	e.mu.Lock()
	snap.Paused = e.paused
	e.lastSnapshot = snap
	sink := e.diag
	e.mu.Unlock()
	if sink != nil {
		sink.Update(snap)
	}
}

// buildSnapshot assembles the observational view minus the paused flag,
// which callers fill in under the engine lock. Runs on the loop goroutine
// (or before Start), so per-app state reads are safe.
func (e *Engine) buildSnapshot(now time.Time) StateSnapshot {
	snap := StateSnapshot{
		Time:            now,
		Foreground:      e.sessions.foreground,
		ForegroundSince: e.sessions.foregroundSince,
		LastBlock:       e.gate.lastBlock,
		EventsSeen:      e.seen,
		Apps:            make([]AppState, 0, e.sessions.size()),
	}
	for app, st := range e.sessions.apps {
		snap.Apps = append(snap.Apps, AppState{
			App:                app,
			DisplayName:        e.registry.DisplayName(app),
			Phase:              st.feed.phase.String(),
			SwipeCount:         st.feed.swipeCount,
			EntryTime:          st.feed.entryTime,
			LastClassification: st.lastResult.String(),
			ScrollCount:        st.scroll.count,
		})
	}
	sort.Slice(snap.Apps, func(i, j int) bool { return snap.Apps[i].App < snap.Apps[j].App })
	return snap
}
