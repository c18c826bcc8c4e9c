// Package uievent defines the normalized UI change event model and the
// normalizer that produces it from raw host notifications.
//
// Raw notifications arrive from whatever observes the device UI (an
// accessibility bridge, a replay harness, the IPC inject path). The
// normalizer discards system and self-originated noise and maps what is
// left onto a small, stable event vocabulary the engine consumes.
package uievent

import (
	"time"

	"feedbreakd/internal/uisnapshot"
)

// Kind classifies a normalized UI event.
type Kind int

const (
	// KindUnknown is a raw notification the normalizer could not map.
	KindUnknown Kind = iota

	// KindAppEntered marks the first notification seen from a new
	// foreground application.
	KindAppEntered

	// KindScreenChanged marks a window or screen transition within the
	// same application.
	KindScreenChanged

	// KindContentChanged marks a content mutation on the current screen.
	KindContentChanged

	// KindScrolled marks a scroll gesture on the current screen.
	KindScrolled
)

// String returns a human-readable name for the event kind.
func (k Kind) String() string {
	switch k {
	case KindAppEntered:
		return "app_entered"
	case KindScreenChanged:
		return "screen_changed"
	case KindContentChanged:
		return "content_changed"
	case KindScrolled:
		return "scrolled"
	default:
		return "unknown"
	}
}

// Raw notification types as delivered by host adapters.
const (
	RawWindowStateChanged   = "window_state_changed"
	RawWindowContentChanged = "window_content_changed"
	RawViewScrolled         = "view_scrolled"
)

// Raw is an unprocessed UI change notification from the host.
type Raw struct {
	// Package is the source application identifier.
	Package string `json:"package"`

	// Type is one of the Raw* notification type strings.
	Type string `json:"type"`

	// Texts carries visible text fragments attached to the notification.
	// Consumed only to compute fingerprints, never stored.
	Texts []string `json:"texts,omitempty"`

	// ScrollDeltaY is the vertical scroll delta in pixels, if any.
	ScrollDeltaY int `json:"scroll_delta_y,omitempty"`

	// Snapshot is an optional handle to the UI tree at notification time.
	Snapshot *uisnapshot.Snapshot `json:"snapshot,omitempty"`

	// Time is when the host captured the notification.
	Time time.Time `json:"time"`
}

// Event is a normalized UI change event.
type Event struct {
	App          string               `json:"app"`
	Kind         Kind                 `json:"kind"`
	Texts        []string             `json:"-"`
	ScrollDeltaY int                  `json:"scroll_delta_y,omitempty"`
	Snapshot     *uisnapshot.Snapshot `json:"-"`
	Time         time.Time            `json:"time"`
}

// DefaultSystemPackages are source identifiers that never carry user
// browsing activity and are dropped before normalization.
func DefaultSystemPackages() []string {
	return []string{
		"android",
		"com.android.systemui",
		"com.android.launcher3",
		"com.google.android.inputmethod.latin",
	}
}

// Normalizer converts raw host notifications into engine events.
type Normalizer struct {
	selfID     string
	systemPkgs map[string]struct{}
	lastPkg    string
}

// NewNormalizer creates a normalizer. selfID is this process's own
// application identifier; its notifications are always discarded.
func NewNormalizer(selfID string, systemPkgs []string) *Normalizer {
	set := make(map[string]struct{}, len(systemPkgs))
	for _, p := range systemPkgs {
		set[p] = struct{}{}
	}
	return &Normalizer{
		selfID:     selfID,
		systemPkgs: set,
	}
}

// Normalize maps a raw notification to an event. The second return is
// false when the notification is discarded (system package, self, or an
// unrecognized type).
func (n *Normalizer) Normalize(raw Raw) (Event, bool) {
	if raw.Package == "" || raw.Package == n.selfID {
		return Event{}, false
	}
	if _, ok := n.systemPkgs[raw.Package]; ok {
		return Event{}, false
	}

	kind := KindUnknown
	switch raw.Type {
	case RawWindowStateChanged:
		if raw.Package != n.lastPkg {
			kind = KindAppEntered
		} else {
			kind = KindScreenChanged
		}
	case RawWindowContentChanged:
		kind = KindContentChanged
	case RawViewScrolled:
		kind = KindScrolled
	default:
		return Event{}, false
	}
	n.lastPkg = raw.Package

	ts := raw.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	return Event{
		App:          raw.Package,
		Kind:         kind,
		Texts:        raw.Texts,
		ScrollDeltaY: raw.ScrollDeltaY,
		Snapshot:     raw.Snapshot,
		Time:         ts,
	}, true
}

// Reset clears the normalizer's notion of the last seen application, so
// the next window-state notification is treated as an app entry.
func (n *Normalizer) Reset() {
	n.lastPkg = ""
}
