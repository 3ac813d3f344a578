//go:build !windows

package terminal

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// signalName extracts the terminating signal name from a process state, or
// "" when the process exited normally.
func signalName(state *os.ProcessState) string {
	if state == nil {
		return ""
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return ""
	}
	return unix.SignalName(unix.Signal(ws.Signal()))
}
