//go:build linux

package host

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"feedbreakd/internal/logging"
)

// Desktop notification constants
const (
	notifyBusName    = "org.freedesktop.Notifications"
	notifyObjectPath = "/org/freedesktop/Notifications"
	notifyMethod     = "org.freedesktop.Notifications.Notify"
)

// DBusNotifier raises blocked notifications through the desktop
// notification service. Consecutive blocks replace the previous
// notification instead of stacking.
type DBusNotifier struct {
	mu     sync.Mutex
	conn   *dbus.Conn
	lastID uint32
	log    *logging.Logger
}

// NewDBusNotifier connects to the session bus.
func NewDBusNotifier() (*DBusNotifier, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("session bus: %w", err)
	}
	return &DBusNotifier{
		conn: conn,
		log:  logging.Default().WithComponent("host"),
	}, nil
}

// Close releases the bus connection.
func (n *DBusNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	return err
}

// NotifyBlocked raises the user-visible notification naming the app
// that was backed out of. Fire-and-forget; failures are logged at debug
// level and dropped.
func (n *DBusNotifier) NotifyBlocked(appDisplayName string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn == nil {
		return
	}

	summary := "Feed blocked"
	body := fmt.Sprintf("Backed you out of the %s feed", appDisplayName)
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(1)),
	}

	obj := n.conn.Object(notifyBusName, notifyObjectPath)
	call := obj.Call(notifyMethod, 0,
		"feedbreakd", n.lastID, "", summary, body,
		[]string{}, hints, int32(5000))
	if call.Err != nil {
		n.log.Debug("notification failed", "err", call.Err)
		return
	}
	_ = call.Store(&n.lastID)
}
