package ipc

import (
	"fmt"
	"net"
	"os"
)

// PeerCredentials holds the credentials of a peer process
type PeerCredentials struct {
	PID int
	UID int
	GID int
}

// CleanupSocket removes a stale socket file. Refuses to remove a path
// that exists but is not a socket.
func CleanupSocket(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if info.Mode()&os.ModeSocket != 0 {
		return os.Remove(path)
	}

	return fmt.Errorf("path exists but is not a socket: %s", path)
}

// IsSocketListening checks if a daemon is already listening on the path
func IsSocketListening(path string) bool {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
