//go:build !linux && !darwin

package ipc

import (
	"errors"
	"net"
)

// GetPeerCredentials is unsupported on this platform; the socket file
// mode is the remaining access control.
func GetPeerCredentials(conn net.Conn) (*PeerCredentials, error) {
	return nil, errors.New("peer credentials not supported on this platform")
}

// VerifyPeerIsCurrentUser reports that verification is unavailable.
func VerifyPeerIsCurrentUser(conn net.Conn) (bool, error) {
	return false, errors.New("peer credentials not supported on this platform")
}
