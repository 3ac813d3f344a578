//go:build !windows

package ipc

import (
	"errors"
	"net"
	"time"
)

// errPipeUnsupported signals that Named Pipe transport exists only on
// Windows. Non-Windows launches skip single-instance forwarding entirely.
var errPipeUnsupported = errors.New("ipc: named pipes are only available on windows")

func listenPipeWithCurrentUserDACL(string) (net.Listener, error) {
	return nil, errPipeUnsupported
}

func dialPipe(string, time.Duration) (net.Conn, error) {
	return nil, errPipeUnsupported
}
