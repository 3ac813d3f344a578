package main

import (
	"context"
	"log/slog"
	"time"

	"agentterm/internal/workerutil"
)

const (
	// transcriptPruneInterval is how often closed runs are checked for
	// expiry. Pruning is cheap; a few times a day keeps the database small
	// without measurable load.
	transcriptPruneInterval = 6 * time.Hour
	// transcriptRetention is how long closed runs are kept.
	transcriptRetention = 30 * 24 * time.Hour
)

// startTranscriptPruner runs periodic transcript cleanup with panic recovery.
// No-op when transcripts are disabled.
func (a *App) startTranscriptPruner(parent context.Context) {
	if a.transcripts == nil {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	a.bgCancel = cancel

	workerutil.RunWithPanicRecovery(ctx, "transcript-pruner", &a.bgWG, func(ctx context.Context) {
		ticker := time.NewTicker(transcriptPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := a.transcripts.Prune(ctx, time.Now().Add(-transcriptRetention))
				if err != nil {
					slog.Warn("[WARN-TRANSCRIPT] prune failed", "error", err)
					continue
				}
				if removed > 0 {
					slog.Debug("[DEBUG-TRANSCRIPT] pruned old runs", "removed", removed)
				}
			}
		}
	}, workerutil.RecoveryOptions{
		IsShutdown: a.shuttingDown.Load,
	})
}
