// Package uisnapshot models a captured UI tree and the structural queries
// the detection engine runs against it.
//
// A snapshot is a point-in-time view of the foreground screen: a tree of
// nodes with class names, view identifiers, visible labels, and bounds.
// Snapshots are transient. They are inspected, fingerprinted, and dropped;
// nothing here persists node text anywhere.
package uisnapshot

import "time"

// Rect is a node's bounds in screen coordinates.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Width returns the rectangle width in pixels.
func (r Rect) Width() int { return r.Right - r.Left }

// Height returns the rectangle height in pixels.
func (r Rect) Height() int { return r.Bottom - r.Top }

// Area returns the covered area, zero for degenerate rectangles.
func (r Rect) Area() int {
	w, h := r.Width(), r.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Node is one element of a captured UI tree.
type Node struct {
	// ClassName is the widget class, e.g. "android.widget.FrameLayout".
	ClassName string `json:"class,omitempty"`

	// ViewID is the resource identifier of the node, the namespace that
	// structural markers live in. Empty when the app does not expose one.
	ViewID string `json:"view_id,omitempty"`

	// Text is the visible text of the node, empty for non-text nodes.
	Text string `json:"text,omitempty"`

	// Desc is the accessibility label, carried separately from Text.
	Desc string `json:"desc,omitempty"`

	Bounds     Rect    `json:"bounds"`
	Scrollable bool    `json:"scrollable,omitempty"`
	Visible    bool    `json:"visible"`
	Children   []*Node `json:"children,omitempty"`
}

// Snapshot is a point-in-time capture of the foreground UI.
type Snapshot struct {
	// App is the application the snapshot was taken from.
	App string `json:"app"`

	// Screen is the full display bounds at capture time.
	Screen Rect `json:"screen"`

	Root  *Node     `json:"root"`
	Taken time.Time `json:"taken"`
}

// Walk visits every node under root in depth-first order. A nil root is
// a no-op. Traversal stops early when fn returns false.
func Walk(root *Node, fn func(*Node) bool) {
	if root == nil {
		return
	}
	if !fn(root) {
		return
	}
	for _, child := range root.Children {
		Walk(child, fn)
	}
}

// FindMarkers returns every node under the snapshot root whose view
// identifier equals markerID. A nil snapshot or root yields an empty
// result, never an error.
func FindMarkers(s *Snapshot, markerID string) []*Node {
	if s == nil || s.Root == nil || markerID == "" {
		return nil
	}
	var found []*Node
	Walk(s.Root, func(n *Node) bool {
		if n.ViewID == markerID {
			found = append(found, n)
		}
		return true
	})
	return found
}

// HasMarker reports whether at least one node carries the given view
// identifier. Cheaper than FindMarkers when only presence matters.
func HasMarker(s *Snapshot, markerID string) bool {
	if s == nil || s.Root == nil || markerID == "" {
		return false
	}
	found := false
	Walk(s.Root, func(n *Node) bool {
		if n.ViewID == markerID {
			found = true
			return false
		}
		return true
	})
	return found
}

// Label is a visible text fragment and where it sits on screen.
type Label struct {
	Text   string
	Bounds Rect
}

// VisibleLabels collects every visible, non-empty text and accessibility
// label under the snapshot root. Order follows the tree traversal and
// carries no meaning; callers that need stability must not depend on it.
func VisibleLabels(s *Snapshot) []Label {
	if s == nil || s.Root == nil {
		return nil
	}
	var labels []Label
	Walk(s.Root, func(n *Node) bool {
		if !n.Visible {
			return true
		}
		if n.Text != "" {
			labels = append(labels, Label{Text: n.Text, Bounds: n.Bounds})
		}
		if n.Desc != "" && n.Desc != n.Text {
			labels = append(labels, Label{Text: n.Desc, Bounds: n.Bounds})
		}
		return true
	})
	return labels
}
