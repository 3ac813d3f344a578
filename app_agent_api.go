package main

import (
	"context"
	"time"

	"agentterm/internal/agentdetect"
)

// DetectAgents probes the agent CLI catalog plus configured custom agents
// concurrently and returns one record per probe in stable catalog order.
// Wails-bound: drives the agent launcher list.
func (a *App) DetectAgents() agentdetect.Result {
	cfg := a.getConfigSnapshot()
	return agentdetect.DetectAll(a.detectContext(), cfg.CustomAgents, agentdetect.Options{
		IncludeWSL: cfg.IncludeWSLAgents,
		Timeout:    time.Duration(cfg.AgentProbeTimeoutSeconds) * time.Second,
	})
}

// DetectAgent re-probes a single agent by id, honoring a custom agent
// override when one is configured under that id. Wails-bound: used for the
// per-row refresh action.
func (a *App) DetectAgent(id string) agentdetect.AgentCliInfo {
	cfg := a.getConfigSnapshot()
	var custom *agentdetect.CustomAgent
	for i := range cfg.CustomAgents {
		if cfg.CustomAgents[i].ID == id {
			custom = &cfg.CustomAgents[i]
			break
		}
	}
	return agentdetect.DetectOne(a.detectContext(), id, custom)
}

func (a *App) detectContext() context.Context {
	if ctx := a.runtimeContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}
