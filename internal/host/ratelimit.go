// Rate-limited capability wrappers. Each external query type carries its
// own minimum-interval limiter; a denied query reads as "unavailable
// right now", which downstream becomes an Unknown classification rather
// than an error.
package host

import (
	"time"

	"golang.org/x/time/rate"

	"feedbreakd/internal/uisnapshot"
)

func minIntervalLimiter(minInterval time.Duration) *rate.Limiter {
	if minInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(minInterval), 1)
}

// RateLimitedIntrospector denies snapshot queries inside the minimum
// interval.
type RateLimitedIntrospector struct {
	inner Introspector
	lim   *rate.Limiter
}

// NewRateLimitedIntrospector wraps inner with a minimum query interval.
func NewRateLimitedIntrospector(inner Introspector, minInterval time.Duration) *RateLimitedIntrospector {
	return &RateLimitedIntrospector{
		inner: inner,
		lim:   minIntervalLimiter(minInterval),
	}
}

// CurrentSnapshot returns nil without querying when called again inside
// the minimum interval.
func (r *RateLimitedIntrospector) CurrentSnapshot() *uisnapshot.Snapshot {
	if !r.lim.Allow() {
		return nil
	}
	return r.inner.CurrentSnapshot()
}

// RateLimitedActivity denies activity queries inside the minimum
// interval.
type RateLimitedActivity struct {
	inner ActivitySource
	lim   *rate.Limiter
}

// NewRateLimitedActivity wraps inner with a minimum query interval.
func NewRateLimitedActivity(inner ActivitySource, minInterval time.Duration) *RateLimitedActivity {
	return &RateLimitedActivity{
		inner: inner,
		lim:   minIntervalLimiter(minInterval),
	}
}

// RecentActivity reports unavailable when called again inside the
// minimum interval.
func (r *RateLimitedActivity) RecentActivity(appID string, window time.Duration) (string, bool) {
	if !r.lim.Allow() {
		return "", false
	}
	return r.inner.RecentActivity(appID, window)
}

// RateLimitedMedia denies media queries inside the minimum interval.
type RateLimitedMedia struct {
	inner MediaSource
	lim   *rate.Limiter
}

// NewRateLimitedMedia wraps inner with a minimum query interval.
func NewRateLimitedMedia(inner MediaSource, minInterval time.Duration) *RateLimitedMedia {
	return &RateLimitedMedia{
		inner: inner,
		lim:   minIntervalLimiter(minInterval),
	}
}

// ActivePlayback reports unavailable when called again inside the
// minimum interval.
func (r *RateLimitedMedia) ActivePlayback(appID string) (*Playback, bool) {
	if !r.lim.Allow() {
		return nil, false
	}
	return r.inner.ActivePlayback(appID)
}
