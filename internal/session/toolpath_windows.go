//go:build windows

package session

import (
	"os"
	"path/filepath"
)

// extraToolDirs lists directories prepended to PATH for spawned sessions.
// Covers the npm global prefix and per-user program installs where agent
// CLIs land on Windows. Declaration order is the resulting PATH order.
func extraToolDirs() []string {
	var dirs []string
	if appData := os.Getenv("APPDATA"); appData != "" {
		dirs = append(dirs, filepath.Join(appData, "npm"))
	}
	if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
		dirs = append(dirs,
			filepath.Join(localAppData, "Programs", "bin"),
			filepath.Join(localAppData, "Microsoft", "WindowsApps"),
		)
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, "go", "bin"))
	}
	return dirs
}
