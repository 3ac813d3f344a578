package main

import (
	"context"

	"agentterm/internal/shellres"
)

// DetectShells scans the platform shell catalog and returns every entry,
// installed or not, in stable catalog order. Wails-bound: drives the shell
// picker in settings.
func (a *App) DetectShells() []shellres.ShellInfo {
	ctx := a.runtimeContext()
	if ctx == nil {
		// Called before startup (tests, early frontend probes): scan anyway.
		ctx = context.Background()
	}
	return shellres.DetectShells(ctx)
}

// ResolveShellConfig reports the shell the given selector resolves to without
// creating a session. Wails-bound: used by settings to preview the effective
// shell, including fallback when the selection is not installed.
func (a *App) ResolveShellConfig(cfg shellres.ShellConfig) shellres.ShellSpec {
	return shellres.Resolve(cfg)
}
