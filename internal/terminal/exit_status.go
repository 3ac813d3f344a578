package terminal

import (
	"errors"
	"os/exec"
)

// ExitStatus describes how a terminal process ended. Signal is the name of
// the terminating signal ("SIGKILL", "SIGHUP", ...) on Unix-like platforms
// and empty elsewhere or for normal exits.
type ExitStatus struct {
	Code   int    `json:"code"`
	Signal string `json:"signal,omitempty"`
}

// ptyWaiter is implemented by PTY backends that can reap their process.
// ConPty on Windows implements this.
type ptyWaiter interface {
	Wait() (int, error)
}

// Wait blocks until the underlying process exits and reports its status.
// Call at most once, after output reading has finished (ReadLoop returned);
// in pipe mode Wait closes the process pipes.
func (t *Terminal) Wait() ExitStatus {
	t.mu.RLock()
	cmd := t.cmd
	ptyImpl := t.pty
	t.mu.RUnlock()

	if cmd != nil {
		err := cmd.Wait()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return ExitStatus{
				Code:   exitErr.ExitCode(),
				Signal: signalName(exitErr.ProcessState),
			}
		}
		if err != nil {
			// Wait itself failed (already reaped, I/O setup error). The
			// process is gone either way; report an unknown failure code.
			return ExitStatus{Code: -1}
		}
		return ExitStatus{Code: cmd.ProcessState.ExitCode()}
	}

	if waiter, ok := ptyImpl.(ptyWaiter); ok {
		code, err := waiter.Wait()
		if err != nil {
			return ExitStatus{Code: -1}
		}
		return ExitStatus{Code: code}
	}

	return ExitStatus{}
}
