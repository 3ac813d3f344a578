package main

import (
	"log/slog"

	"agentterm/internal/config"
)

// GetConfig returns a deep copy of the current configuration.
// Wails-bound: called by the settings screen on open.
func (a *App) GetConfig() config.Config {
	return a.getConfigSnapshot()
}

// GetConfigPath returns the absolute path of the config file.
// Wails-bound: used by the "open config file" action.
func (a *App) GetConfigPath() string {
	return a.configPath
}

// SaveConfig validates, persists, and applies a new configuration.
// Returns the normalized config actually written. Wails-bound.
//
// Lock ordering: cfgSaveMu serializes the save-then-apply sequence so two
// concurrent saves cannot interleave disk and memory state; cfgMu is only
// taken inside setConfigSnapshot.
func (a *App) SaveConfig(cfg config.Config) (config.Config, error) {
	a.cfgSaveMu.Lock()
	defer a.cfgSaveMu.Unlock()

	saved, err := config.Save(a.configPath, cfg)
	if err != nil {
		slog.Warn("[WARN-CONFIG] save failed", "path", a.configPath, "error", err)
		return a.getConfigSnapshot(), err
	}
	a.setConfigSnapshot(saved)
	a.emitRuntimeEvent("app:config-updated", saved)
	return saved, nil
}
