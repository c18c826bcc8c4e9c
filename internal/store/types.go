// Package store persists the decision journal for feedbreakd.
//
// The journal records enforcement outcomes only: which app, which trigger
// reason, whether the cooldown dropped the trigger, and when. Content
// descriptors, fingerprint source text, and anything else derived from
// screen content never reach this package.
package store

import "time"

// BlockRecord is one journaled enforcement decision.
type BlockRecord struct {
	ID      int64
	App     string
	Reason  string
	Detail  string
	Dropped bool
	At      time.Time
}

// AppCount aggregates journaled decisions for a single app.
type AppCount struct {
	App     string
	Blocks  int64
	Dropped int64
}

// Stats summarizes the whole journal. Used for startup logging and the
// status surface so counters survive daemon restarts.
type Stats struct {
	Blocks  int64
	Dropped int64
	FirstAt time.Time
	LastAt  time.Time
}
