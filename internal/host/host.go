// Package host defines the capabilities the detection engine consumes
// from the device environment: UI introspection, recent-activity and
// media-playback queries, the exit action, and user notification.
//
// Every capability is best-effort. Implementations convert their own
// failures into "unavailable" returns instead of errors; a missing
// permission disables a feature, it never breaks the engine. Rate-limited
// wrappers bound how often the engine can reach each external source.
package host

import (
	"context"
	"os/exec"
	"time"

	"feedbreakd/internal/logging"
	"feedbreakd/internal/uisnapshot"
)

// PlaybackState describes an active media session's state.
type PlaybackState string

const (
	PlaybackPlaying PlaybackState = "playing"
	PlaybackPaused  PlaybackState = "paused"
	PlaybackStopped PlaybackState = "stopped"
)

// Playback is a point-in-time view of an app's media session.
type Playback struct {
	State    PlaybackState
	Position time.Duration
	Duration time.Duration
	Title    string
}

// Introspector captures the current foreground UI tree.
type Introspector interface {
	// CurrentSnapshot returns the current UI tree, or nil when
	// introspection is unavailable right now.
	CurrentSnapshot() *uisnapshot.Snapshot
}

// ActivitySource reports the most recent foreground activity of an app.
type ActivitySource interface {
	// RecentActivity returns the latest activity name observed for the
	// app within the window. The second return is false when the query
	// is unavailable or nothing was observed.
	RecentActivity(appID string, window time.Duration) (string, bool)
}

// MediaSource reports active media playback for an app.
type MediaSource interface {
	// ActivePlayback returns the app's current media session, or
	// (nil, false) when there is none or the query is unavailable.
	ActivePlayback(appID string) (*Playback, bool)
}

// Navigator performs the "navigate back" exit action. The action is
// idempotent from the engine's point of view; no outcome is reported.
type Navigator interface {
	PerformExitAction()
}

// Notifier raises the user-visible "blocked" notification.
type Notifier interface {
	NotifyBlocked(appDisplayName string)
}

// Capabilities bundles every host dependency the engine takes. Nil
// fields are legal; Normalize fills them with unavailable stand-ins.
type Capabilities struct {
	Introspector Introspector
	Activity     ActivitySource
	Media        MediaSource
	Navigator    Navigator
	Notifier     Notifier
}

// Normalize returns a copy with nil capabilities replaced by no-op
// implementations, so the engine never nil-checks its environment.
func (c Capabilities) Normalize() Capabilities {
	if c.Introspector == nil {
		c.Introspector = NoIntrospection{}
	}
	if c.Activity == nil {
		c.Activity = NoActivity{}
	}
	if c.Media == nil {
		c.Media = NoMedia{}
	}
	if c.Navigator == nil {
		c.Navigator = NoNavigator{}
	}
	if c.Notifier == nil {
		c.Notifier = NoNotifier{}
	}
	return c
}

// NoIntrospection is an Introspector for hosts without UI capture.
type NoIntrospection struct{}

func (NoIntrospection) CurrentSnapshot() *uisnapshot.Snapshot { return nil }

// NoActivity is an ActivitySource without the usage permission.
type NoActivity struct{}

func (NoActivity) RecentActivity(string, time.Duration) (string, bool) { return "", false }

// NoMedia is a MediaSource without the media-session permission.
type NoMedia struct{}

func (NoMedia) ActivePlayback(string) (*Playback, bool) { return nil, false }

// NoNavigator drops exit actions.
type NoNavigator struct{}

func (NoNavigator) PerformExitAction() {}

// NoNotifier drops notifications.
type NoNotifier struct{}

func (NoNotifier) NotifyBlocked(string) {}

// ExecNavigator issues the exit action by running a configured command,
// e.g. an adb key-event injection for a tethered device or a compositor
// back-key tool. Failures are logged at debug level and dropped.
type ExecNavigator struct {
	// Command is the argv to run; empty disables the navigator.
	Command []string

	// Timeout bounds one invocation. Zero means 3 seconds.
	Timeout time.Duration

	log *logging.Logger
}

// NewExecNavigator builds a navigator around the given argv.
func NewExecNavigator(command []string, timeout time.Duration) *ExecNavigator {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &ExecNavigator{
		Command: command,
		Timeout: timeout,
		log:     logging.Default().WithComponent("host"),
	}
}

// PerformExitAction runs the configured command once. No retry, no
// trusted outcome.
func (n *ExecNavigator) PerformExitAction() {
	if len(n.Command) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, n.Command[0], n.Command[1:]...)
	if err := cmd.Run(); err != nil {
		n.log.Debug("exit action command failed", "err", err)
	}
}
