//go:build linux

package host

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"feedbreakd/internal/logging"
)

// MPRIS D-Bus constants
const (
	mprisBusPrefix   = "org.mpris.MediaPlayer2."
	mprisObjectPath  = "/org/mpris/MediaPlayer2"
	mprisRootIface   = "org.mpris.MediaPlayer2"
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"
	dbusListNames    = "org.freedesktop.DBus.ListNames"
)

// MPRISMediaSource answers media-playback queries from MPRIS players on
// the session bus. Player bus names are matched against the queried app
// id heuristically: an Android package id like com.google.android.youtube
// matches a player whose bus name or Identity contains one of its
// significant segments.
//
// Every failure path degrades to (nil, false); a missing session bus
// simply disables the media signal.
type MPRISMediaSource struct {
	mu   sync.Mutex
	conn *dbus.Conn
	log  *logging.Logger
}

// NewMPRISMediaSource connects to the session bus.
func NewMPRISMediaSource() (*MPRISMediaSource, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("session bus: %w", err)
	}
	return &MPRISMediaSource{
		conn: conn,
		log:  logging.Default().WithComponent("host"),
	}, nil
}

// Close releases the bus connection.
func (m *MPRISMediaSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}

// ActivePlayback scans MPRIS players for one matching the app id and
// returns its current playback state.
func (m *MPRISMediaSource) ActivePlayback(appID string) (*Playback, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil, false
	}

	var names []string
	if err := m.conn.BusObject().Call(dbusListNames, 0).Store(&names); err != nil {
		m.log.Debug("list bus names failed", "err", err)
		return nil, false
	}

	segments := appIDSegments(appID)
	for _, name := range names {
		if !strings.HasPrefix(name, mprisBusPrefix) {
			continue
		}
		if !m.playerMatches(name, segments) {
			continue
		}
		if pb := m.queryPlayer(name); pb != nil {
			return pb, true
		}
	}
	return nil, false
}

// appIDSegments extracts the significant parts of a package id for
// fuzzy matching. Short generic segments (com, org, android) are
// dropped.
func appIDSegments(appID string) []string {
	var segs []string
	for _, s := range strings.Split(strings.ToLower(appID), ".") {
		switch s {
		case "", "com", "org", "net", "io", "android", "google", "app":
			continue
		}
		if len(s) >= 4 {
			segs = append(segs, s)
		}
	}
	return segs
}

// playerMatches reports whether a player bus name belongs to the
// queried app. An empty segment list matches any player.
func (m *MPRISMediaSource) playerMatches(busName string, segments []string) bool {
	if len(segments) == 0 {
		return true
	}
	lower := strings.ToLower(busName)
	for _, seg := range segments {
		if strings.Contains(lower, seg) {
			return true
		}
	}

	// Fall back to the player's self-reported identity.
	obj := m.conn.Object(busName, mprisObjectPath)
	identV, err := obj.GetProperty(mprisRootIface + ".Identity")
	if err != nil {
		return false
	}
	ident, _ := identV.Value().(string)
	ident = strings.ToLower(ident)
	for _, seg := range segments {
		if strings.Contains(ident, seg) {
			return true
		}
	}
	return false
}

// queryPlayer reads playback status, position, and metadata from one
// player. Any property failure drops the player.
func (m *MPRISMediaSource) queryPlayer(busName string) *Playback {
	obj := m.conn.Object(busName, mprisObjectPath)

	statusV, err := obj.GetProperty(mprisPlayerIface + ".PlaybackStatus")
	if err != nil {
		m.log.Debug("playback status query failed", "bus", busName, "err", err)
		return nil
	}
	status, _ := statusV.Value().(string)

	pb := &Playback{State: mapPlaybackStatus(status)}

	if posV, err := obj.GetProperty(mprisPlayerIface + ".Position"); err == nil {
		if us, ok := posV.Value().(int64); ok {
			pb.Position = time.Duration(us) * time.Microsecond
		}
	}

	if metaV, err := obj.GetProperty(mprisPlayerIface + ".Metadata"); err == nil {
		if meta, ok := metaV.Value().(map[string]dbus.Variant); ok {
			if t, ok := meta["xesam:title"].Value().(string); ok {
				pb.Title = t
			}
			if l, ok := meta["mpris:length"].Value().(int64); ok {
				pb.Duration = time.Duration(l) * time.Microsecond
			}
		}
	}

	return pb
}

func mapPlaybackStatus(status string) PlaybackState {
	switch status {
	case "Playing":
		return PlaybackPlaying
	case "Paused":
		return PlaybackPaused
	default:
		return PlaybackStopped
	}
}
