//go:build windows

package wsl

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"agentterm/internal/procutil"
)

// launcherPathFn is a test seam; tests override it to simulate a host
// without the WSL launcher installed.
var launcherPathFn = func() (string, error) {
	return exec.LookPath("wsl.exe")
}

// Available reports whether the WSL launcher exists on the search path.
func Available() bool {
	_, err := launcherPathFn()
	return err == nil
}

// ListDistros returns the installed WSL distribution names in launcher
// order. A missing launcher or a timed-out listing yields an empty list and
// no error: callers treat both as "no distributions".
func ListDistros(ctx context.Context) []string {
	launcher, err := launcherPathFn()
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, launcher, "--list", "--quiet")
	procutil.HideWindow(cmd)
	out, err := cmd.Output()
	if err != nil {
		slog.Debug("[DEBUG-WSL] distro listing failed", "error", err)
		return nil
	}
	return parseDistroList(out)
}

// Run executes argv inside the named distribution (or the default
// distribution when distro is empty) and returns combined stdout. The caller
// bounds execution through ctx; a cancelled context kills the launcher
// process.
func Run(ctx context.Context, distro string, argv ...string) ([]byte, error) {
	launcher, err := launcherPathFn()
	if err != nil {
		return nil, ErrUnavailable
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("wsl run: empty command")
	}

	args := make([]string, 0, len(argv)+4)
	if distro != "" {
		args = append(args, "-d", distro)
	}
	args = append(args, "--")
	args = append(args, argv...)

	cmd := exec.CommandContext(ctx, launcher, args...)
	procutil.HideWindow(cmd)
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("wsl run %v: %w", argv, err)
	}
	return out, nil
}
