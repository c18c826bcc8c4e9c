// Per-app strategy registry and the built-in application table.
package classify

import (
	"sort"
	"sync"

	"feedbreakd/internal/uisnapshot"
)

// Registry maps application ids to classification strategies, with one
// generic fallback for everything unregistered.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
	names      map[string]string
	generic    Strategy
}

// NewRegistry creates a registry pre-populated with the built-in
// application table and the default generic fallback.
func NewRegistry() *Registry {
	r := &Registry{
		strategies: make(map[string]Strategy),
		names:      make(map[string]string),
		generic:    DefaultGenericStrategy(),
	}
	r.registerBuiltInApps()
	return r
}

// registerBuiltInApps registers marker strategies for well-known
// short-video applications.
func (r *Registry) registerBuiltInApps() {
	// TikTok ships under two package ids; both expose the same surfaces.
	tiktok := NewMarkerStrategy("TikTok",
		[]string{
			"com.zhiliaoapp.musically:id/feed_pager",
			"com.ss.android.ugc.trill:id/feed_pager",
		},
		[]string{
			"com.zhiliaoapp.musically:id/search_container",
			"com.zhiliaoapp.musically:id/profile_header_container",
			"com.ss.android.ugc.trill:id/search_container",
			"com.ss.android.ugc.trill:id/profile_header_container",
		},
	)
	r.strategies["com.zhiliaoapp.musically"] = tiktok
	r.strategies["com.ss.android.ugc.trill"] = tiktok

	r.strategies["com.google.android.youtube"] = NewMarkerStrategy("YouTube Shorts",
		[]string{
			"com.google.android.youtube:id/reel_recycler",
			"com.google.android.youtube:id/reel_player_page_container",
		},
		[]string{
			"com.google.android.youtube:id/results",
			"com.google.android.youtube:id/channel_header",
			"com.google.android.youtube:id/watch_player",
		},
	)

	r.strategies["com.instagram.android"] = NewMarkerStrategy("Instagram Reels",
		[]string{
			"com.instagram.android:id/clips_viewer_view_pager",
		},
		[]string{
			"com.instagram.android:id/profile_header_container",
			"com.instagram.android:id/action_bar_search_edit_text",
			"com.instagram.android:id/direct_thread_toolbar",
		},
	)

	r.strategies["com.snapchat.android"] = NewMarkerStrategy("Snapchat Spotlight",
		[]string{
			"com.snapchat.android:id/spotlight_view_pager",
		},
		[]string{
			"com.snapchat.android:id/chat_input_text_field",
			"com.snapchat.android:id/profile_header",
		},
	)

	r.strategies["com.facebook.katana"] = NewMarkerStrategy("Facebook Reels",
		[]string{
			"com.facebook.katana:id/reels_viewer_pager",
		},
		[]string{
			"com.facebook.katana:id/search_bar",
			"com.facebook.katana:id/timeline_header",
		},
	)
}

// Register installs or replaces the strategy for an application id.
// Registrations from configuration override the built-in table.
func (r *Registry) Register(appID string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[appID] = s
}

// Classify resolves the snapshot for the given application: registered
// strategy first, generic fallback otherwise, Unknown when no snapshot
// is obtainable.
func (r *Registry) Classify(appID string, s *uisnapshot.Snapshot) Result {
	if s == nil || s.Root == nil {
		return Unknown
	}

	r.mu.RLock()
	strategy, ok := r.strategies[appID]
	r.mu.RUnlock()

	if ok {
		return strategy.Classify(s)
	}
	return r.generic.Classify(s)
}

// SetDisplayName overrides the human-readable name for an application
// id. Needed for apps classified by the generic strategy, which carries
// no name of its own.
func (r *Registry) SetDisplayName(appID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[appID] = name
}

// DisplayName returns the human-readable name registered for an
// application, falling back to the raw id.
func (r *Registry) DisplayName(appID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.names[appID]; ok && name != "" {
		return name
	}
	if ms, ok := r.strategies[appID].(*MarkerStrategy); ok && ms.Name != "" {
		return ms.Name
	}
	return appID
}

// Registered reports whether an app-specific strategy exists.
func (r *Registry) Registered(appID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.strategies[appID]
	return ok
}

// Apps returns the registered application ids in sorted order.
func (r *Registry) Apps() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	apps := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		apps = append(apps, id)
	}
	sort.Strings(apps)
	return apps
}
