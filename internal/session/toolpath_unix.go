//go:build !windows

package session

import (
	"os"
	"path/filepath"
)

// extraToolDirs lists directories prepended to PATH for spawned sessions.
// GUI-launched processes on macOS and Linux inherit a minimal PATH that
// misses package-manager and per-user install locations where agent CLIs
// typically live. Declaration order is the resulting PATH order.
func extraToolDirs() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	dirs := []string{
		"/opt/homebrew/bin",
		"/usr/local/bin",
	}
	if home != "" {
		dirs = append(dirs,
			filepath.Join(home, ".local", "bin"),
			filepath.Join(home, ".npm-global", "bin"),
			filepath.Join(home, ".cargo", "bin"),
			filepath.Join(home, ".bun", "bin"),
			filepath.Join(home, "go", "bin"),
		)
	}
	return dirs
}
