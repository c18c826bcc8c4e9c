// Package classify decides whether a UI snapshot shows an infinite-scroll
// short-video feed screen.
//
// Classification is a pure structural inspection: known per-app marker
// identifiers first, a generic full-screen-swipeable-media heuristic for
// apps without a registered strategy. It never reads content semantics
// and never mutates the snapshot.
package classify

import (
	"feedbreakd/internal/uisnapshot"
)

// Result is the outcome of classifying one snapshot.
type Result int

const (
	// Unknown means the snapshot gave no verdict: introspection is
	// unavailable or the screen matches no known pattern. Unknown is
	// never treated as InFeed.
	Unknown Result = iota

	// InFeed means the screen is a recognized feed surface.
	InFeed

	// NotInFeed means the screen is recognized as explicitly outside a
	// feed, e.g. profile or search.
	NotInFeed
)

// String returns a human-readable name for the result.
func (r Result) String() string {
	switch r {
	case InFeed:
		return "in_feed"
	case NotInFeed:
		return "not_in_feed"
	default:
		return "unknown"
	}
}

// Strategy classifies snapshots for one application.
type Strategy interface {
	Classify(s *uisnapshot.Snapshot) Result
}

// MarkerStrategy classifies by fixed lists of structural marker
// identifiers. NonFeedMarkers win over FeedMarkers when both are
// present, so an overlay that keeps a feed container in the tree while
// showing a profile screen still reads as not-in-feed.
type MarkerStrategy struct {
	// Name is the human-readable application name, used when naming the
	// app in user-facing notifications.
	Name string

	// FeedMarkers identify a feed surface when any is present.
	FeedMarkers []string

	// NonFeedMarkers identify screens that are explicitly not a feed.
	NonFeedMarkers []string
}

// NewMarkerStrategy builds a strategy from marker lists.
func NewMarkerStrategy(name string, feed, nonFeed []string) *MarkerStrategy {
	return &MarkerStrategy{
		Name:           name,
		FeedMarkers:    feed,
		NonFeedMarkers: nonFeed,
	}
}

// Classify inspects the snapshot for the configured markers.
func (m *MarkerStrategy) Classify(s *uisnapshot.Snapshot) Result {
	if s == nil || s.Root == nil {
		return Unknown
	}
	for _, id := range m.NonFeedMarkers {
		if uisnapshot.HasMarker(s, id) {
			return NotInFeed
		}
	}
	for _, id := range m.FeedMarkers {
		if uisnapshot.HasMarker(s, id) {
			return InFeed
		}
	}
	return Unknown
}

// GenericStrategy recognizes feed screens in apps with no registered
// markers: a scrollable container covering most of the screen with a
// media surface inside it.
type GenericStrategy struct {
	// MinCoverage is the fraction of the screen a scrollable container
	// must cover to count as a feed surface.
	MinCoverage float64

	// MinNodes guards against partial captures: trees smaller than this
	// classify as Unknown rather than NotInFeed.
	MinNodes int
}

// DefaultGenericStrategy returns the generic fallback with reference
// thresholds.
func DefaultGenericStrategy() *GenericStrategy {
	return &GenericStrategy{
		MinCoverage: 0.85,
		MinNodes:    5,
	}
}

// mediaSurfaceClasses are widget classes that render video content.
var mediaSurfaceClasses = []string{
	"android.view.SurfaceView",
	"android.view.TextureView",
	"android.widget.VideoView",
	"androidx.media3.ui.PlayerView",
	"com.google.android.exoplayer2.ui.PlayerView",
}

// Classify applies the generic full-screen-swipeable-media heuristic.
func (g *GenericStrategy) Classify(s *uisnapshot.Snapshot) Result {
	if s == nil || s.Root == nil {
		return Unknown
	}
	screenArea := s.Screen.Area()
	if screenArea == 0 {
		return Unknown
	}

	nodes := 0
	found := false
	uisnapshot.Walk(s.Root, func(n *uisnapshot.Node) bool {
		nodes++
		if !found && n.Scrollable {
			coverage := float64(n.Bounds.Area()) / float64(screenArea)
			if coverage >= g.MinCoverage && hasMediaSurface(n) {
				found = true
			}
		}
		return true
	})

	if nodes < g.MinNodes {
		return Unknown
	}
	if found {
		return InFeed
	}
	return NotInFeed
}

func hasMediaSurface(root *uisnapshot.Node) bool {
	found := false
	uisnapshot.Walk(root, func(n *uisnapshot.Node) bool {
		for _, class := range mediaSurfaceClasses {
			if n.ClassName == class {
				found = true
				return false
			}
		}
		return true
	})
	return found
}
