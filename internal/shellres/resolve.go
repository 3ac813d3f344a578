package shellres

import (
	"log/slog"
	"runtime"
)

// Resolve maps a shell selection to a concrete launch descriptor.
//
// Resolution order:
//  1. An explicit custom path is used verbatim with the supplied arguments.
//  2. A WSL selector resolves to the WSL launcher with the distribution
//     name as an argument (Windows only; elsewhere it degrades to default).
//  3. A known selector resolves through the platform candidate table to its
//     install location and default flags, but only when actually installed.
//  4. Everything else (unknown selector, uninstalled shell, empty config)
//     falls back to the platform default. Resolve never fails.
func Resolve(cfg ShellConfig) ShellSpec {
	if cfg.CustomPath != "" {
		return ShellSpec{Path: cfg.CustomPath, Args: cfg.CustomArgs}
	}

	switch cfg.Type {
	case "", ShellDefault, ShellCustom:
		// ShellCustom without a path has nothing to resolve.
		return defaultSpec()
	case ShellWSL:
		if runtime.GOOS != "windows" {
			slog.Debug("[DEBUG-SHELL] wsl selector on non-Windows host, using platform default")
			return defaultSpec()
		}
		return wslSpec(cfg.WSLDistro)
	}

	for _, c := range platformCandidates() {
		if c.id != cfg.Type {
			continue
		}
		path, ok := c.installedPath()
		if !ok {
			slog.Debug("[DEBUG-SHELL] selected shell not installed, using platform default",
				"selector", cfg.Type, "probedPath", path)
			return defaultSpec()
		}
		return ShellSpec{Path: path, Args: c.args}
	}

	slog.Debug("[DEBUG-SHELL] unknown shell selector, using platform default", "selector", cfg.Type)
	return defaultSpec()
}

// wslSpec builds the launch descriptor for a WSL-hosted shell. An empty
// distro launches the user's default distribution.
func wslSpec(distro string) ShellSpec {
	args := []string{}
	if distro != "" {
		args = append(args, "-d", distro)
	}
	return ShellSpec{Path: "wsl.exe", Args: args, WSL: true}
}
