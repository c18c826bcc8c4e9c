package classify

import (
	"testing"

	"feedbreakd/internal/uisnapshot"
)

// feedSnapshot builds a tree containing the given view ids as leaf nodes.
func feedSnapshot(app string, viewIDs ...string) *uisnapshot.Snapshot {
	root := &uisnapshot.Node{Visible: true, Bounds: uisnapshot.Rect{Left: 0, Top: 0, Right: 1080, Bottom: 2400}}
	for _, id := range viewIDs {
		root.Children = append(root.Children, &uisnapshot.Node{
			ViewID:  id,
			Visible: true,
		})
	}
	return &uisnapshot.Snapshot{
		App:    app,
		Screen: uisnapshot.Rect{Left: 0, Top: 0, Right: 1080, Bottom: 2400},
		Root:   root,
	}
}

// genericFeedSnapshot builds a tree with a full-screen scrollable pager
// wrapping a media surface plus some chrome nodes.
func genericFeedSnapshot(coverage float64) *uisnapshot.Snapshot {
	height := int(2400 * coverage)
	return &uisnapshot.Snapshot{
		App:    "com.example.shortvideo",
		Screen: uisnapshot.Rect{Left: 0, Top: 0, Right: 1080, Bottom: 2400},
		Root: &uisnapshot.Node{
			ClassName: "android.widget.FrameLayout",
			Visible:   true,
			Bounds:    uisnapshot.Rect{Left: 0, Top: 0, Right: 1080, Bottom: 2400},
			Children: []*uisnapshot.Node{
				{
					ClassName:  "androidx.viewpager2.widget.ViewPager2",
					Scrollable: true,
					Visible:    true,
					Bounds:     uisnapshot.Rect{Left: 0, Top: 0, Right: 1080, Bottom: height},
					Children: []*uisnapshot.Node{
						{
							ClassName: "android.view.SurfaceView",
							Visible:   true,
							Bounds:    uisnapshot.Rect{Left: 0, Top: 0, Right: 1080, Bottom: height},
						},
						{
							ClassName: "android.widget.TextView",
							Text:      "caption",
							Visible:   true,
							Bounds:    uisnapshot.Rect{Left: 40, Top: 2000, Right: 900, Bottom: 2080},
						},
					},
				},
				{
					ClassName: "android.widget.ImageView",
					Visible:   true,
					Bounds:    uisnapshot.Rect{Left: 980, Top: 1500, Right: 1060, Bottom: 1580},
				},
			},
		},
	}
}

func TestMarkerStrategy(t *testing.T) {
	strategy := NewMarkerStrategy("Example",
		[]string{"com.example:id/feed_pager"},
		[]string{"com.example:id/profile_header"},
	)

	tests := []struct {
		name string
		snap *uisnapshot.Snapshot
		want Result
	}{
		{
			name: "feed marker present",
			snap: feedSnapshot("com.example", "com.example:id/feed_pager"),
			want: InFeed,
		},
		{
			name: "non-feed marker present",
			snap: feedSnapshot("com.example", "com.example:id/profile_header"),
			want: NotInFeed,
		},
		{
			name: "deny list wins over allow list",
			snap: feedSnapshot("com.example", "com.example:id/feed_pager", "com.example:id/profile_header"),
			want: NotInFeed,
		},
		{
			name: "neither list matches",
			snap: feedSnapshot("com.example", "com.example:id/settings_root"),
			want: Unknown,
		},
		{
			name: "nil snapshot",
			snap: nil,
			want: Unknown,
		},
		{
			name: "nil root",
			snap: &uisnapshot.Snapshot{App: "com.example"},
			want: Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strategy.Classify(tt.snap); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenericStrategy(t *testing.T) {
	g := DefaultGenericStrategy()

	tests := []struct {
		name string
		snap *uisnapshot.Snapshot
		want Result
	}{
		{
			name: "full-screen swipeable media container",
			snap: genericFeedSnapshot(1.0),
			want: InFeed,
		},
		{
			name: "container covers most of the screen",
			snap: genericFeedSnapshot(0.9),
			want: InFeed,
		},
		{
			name: "container too small",
			snap: genericFeedSnapshot(0.5),
			want: NotInFeed,
		},
		{
			name: "nil snapshot",
			snap: nil,
			want: Unknown,
		},
		{
			name: "zero screen bounds",
			snap: &uisnapshot.Snapshot{Root: &uisnapshot.Node{Visible: true}},
			want: Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.Classify(tt.snap); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGenericStrategyPartialCapture(t *testing.T) {
	// A tree with fewer nodes than MinNodes is a partial capture, not
	// evidence of a non-feed screen.
	snap := &uisnapshot.Snapshot{
		Screen: uisnapshot.Rect{Left: 0, Top: 0, Right: 1080, Bottom: 2400},
		Root:   &uisnapshot.Node{Visible: true, Bounds: uisnapshot.Rect{Left: 0, Top: 0, Right: 1080, Bottom: 2400}},
	}
	if got := DefaultGenericStrategy().Classify(snap); got != Unknown {
		t.Errorf("partial capture: got %v, want %v", got, Unknown)
	}
}

func TestGenericStrategyNoMediaSurface(t *testing.T) {
	// Full-screen scrollable without a media surface, e.g. a settings
	// list, must not classify as a feed.
	snap := &uisnapshot.Snapshot{
		Screen: uisnapshot.Rect{Left: 0, Top: 0, Right: 1080, Bottom: 2400},
		Root: &uisnapshot.Node{
			Visible: true,
			Bounds:  uisnapshot.Rect{Left: 0, Top: 0, Right: 1080, Bottom: 2400},
			Children: []*uisnapshot.Node{
				{
					ClassName:  "androidx.recyclerview.widget.RecyclerView",
					Scrollable: true,
					Visible:    true,
					Bounds:     uisnapshot.Rect{Left: 0, Top: 0, Right: 1080, Bottom: 2400},
					Children: []*uisnapshot.Node{
						{ClassName: "android.widget.TextView", Text: "Notifications", Visible: true},
						{ClassName: "android.widget.TextView", Text: "Privacy", Visible: true},
						{ClassName: "android.widget.TextView", Text: "Account", Visible: true},
					},
				},
			},
		},
	}
	if got := DefaultGenericStrategy().Classify(snap); got != NotInFeed {
		t.Errorf("scrollable list without media: got %v, want %v", got, NotInFeed)
	}
}

func TestResultString(t *testing.T) {
	tests := []struct {
		result Result
		want   string
	}{
		{InFeed, "in_feed"},
		{NotInFeed, "not_in_feed"},
		{Unknown, "unknown"},
		{Result(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.result.String(); got != tt.want {
			t.Errorf("Result(%d).String() = %q, want %q", int(tt.result), got, tt.want)
		}
	}
}

func BenchmarkMarkerStrategyClassify(b *testing.B) {
	strategy := NewMarkerStrategy("Example",
		[]string{"com.example:id/feed_pager"},
		[]string{"com.example:id/profile_header"},
	)
	snap := genericFeedSnapshot(1.0)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		strategy.Classify(snap)
	}
}
