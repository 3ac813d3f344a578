package main

import (
	"errors"

	"agentterm/internal/transcript"
)

var errTranscriptsDisabled = errors.New("transcripts are disabled")

// GetRecentTranscripts returns up to limit recorded runs, newest first.
// Wails-bound: drives the session history panel.
func (a *App) GetRecentTranscripts(limit int) ([]transcript.Run, error) {
	if a.transcripts == nil {
		return nil, errTranscriptsDisabled
	}
	ctx := a.runtimeContext()
	if ctx == nil {
		return nil, errTranscriptsDisabled
	}
	return a.transcripts.RecentRuns(ctx, limit)
}

// GetTranscriptOutput returns the recorded output of one run.
// Wails-bound.
func (a *App) GetTranscriptOutput(runID string) ([]byte, error) {
	if a.transcripts == nil {
		return nil, errTranscriptsDisabled
	}
	ctx := a.runtimeContext()
	if ctx == nil {
		return nil, errTranscriptsDisabled
	}
	return a.transcripts.Output(ctx, runID)
}
