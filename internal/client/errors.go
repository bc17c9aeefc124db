package client

import (
	"errors"
	"net"
	"os"

	"github.com/hearthdev/hearth/internal/wire"
)

var (
	ErrClientClosed      = errors.New("client: connection closed")
	ErrConnectTimeout    = errors.New("client: timed out waiting for connection")
	ErrDaemonUnavailable = errors.New("client: daemon unavailable")
)

// IsConnectionError reports whether err means the daemon connection is gone
// and a reconnect should be attempted on the next operation.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrClientClosed) ||
		errors.Is(err, ErrConnectTimeout) ||
		errors.Is(err, ErrDaemonUnavailable) {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if os.IsNotExist(err) {
		return true
	}
	return false
}

// IsSessionNotFound reports the daemon's typed "session not found" error,
// which invalidates the client's daemon-known-alive cache for that session.
func IsSessionNotFound(err error) bool {
	var werr *wire.Error
	return errors.As(err, &werr) && werr.Code == wire.CodeSessionNotFound
}

// IsVersionMismatch reports a protocol version rejection from the daemon.
func IsVersionMismatch(err error) bool {
	var werr *wire.Error
	return errors.As(err, &werr) && werr.Code == wire.CodeVersionMismatch
}
