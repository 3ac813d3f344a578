package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"agentterm/internal/terminal"
)

const (
	// outputFlushInterval is the maximum time between output chunk flushes to
	// the frontend. Chosen to match a 60 fps frame budget (~16 ms).
	outputFlushInterval = 16 * time.Millisecond
	// outputFlushThreshold is the per-session buffer flush threshold in
	// OutputFlushManager. 32 KiB balances IPC payload size against flush
	// frequency under sustained agent output.
	outputFlushThreshold = 32 * 1024
)

// emitRuntimeEvent emits via the app context and delegates to emitRuntimeEventWithContext.
func (a *App) emitRuntimeEvent(name string, payload any) {
	a.emitRuntimeEventWithContext(a.runtimeContext(), name, payload)
}

// emitRuntimeEventWithContext emits a runtime event only when ctx is non-nil.
// Prefer this helper for best-effort contexts that may not be initialized yet.
func (a *App) emitRuntimeEventWithContext(ctx context.Context, name string, payload any) {
	if ctx == nil {
		slog.Warn("[EVENT] runtime event dropped because app context is nil", "event", name)
		return
	}
	runtimeEventsEmitFn(ctx, name, payload)
}

// handleSessionData receives raw PTY output from the session pump goroutine.
// Output is buffered through the flush manager; the transcript recorder gets
// the unbatched chunk so recorded timing matches the process.
func (a *App) handleSessionData(id int, data []byte) {
	if a.recorder != nil {
		a.recorder.SessionOutput(id, data)
	}
	a.ensureOutputFlusher().Write(strconv.Itoa(id), data)
}

// handleSessionExit fires exactly once per naturally exited session.
// Destroyed sessions never reach here.
func (a *App) handleSessionExit(id int, status terminal.ExitStatus) {
	key := strconv.Itoa(id)
	a.outputMu.Lock()
	flusher := a.outputFlusher
	a.outputMu.Unlock()
	if flusher != nil {
		// Deliver any tail output before announcing the exit.
		flusher.RemoveSession(key)
	}

	if a.recorder != nil {
		a.recorder.SessionExited(id, status.Code, status.Signal)
	}
	if a.shuttingDown.Load() {
		return
	}

	slog.Debug("[DEBUG-SESSION] session exited", "sessionId", id,
		"code", status.Code, "signal", status.Signal)
	a.emitRuntimeEvent("term:exit:"+key, status)
}

// ensureOutputFlusher lazily constructs and starts the output flush manager.
// Lazy construction keeps the flush goroutine out of tests that never
// produce output.
func (a *App) ensureOutputFlusher() *terminal.OutputFlushManager {
	a.outputMu.Lock()
	defer a.outputMu.Unlock()
	if a.outputFlusher == nil {
		a.outputFlusher = terminal.NewOutputFlushManager(outputFlushInterval, outputFlushThreshold, a.emitSessionChunk)
		a.outputFlusher.Start()
	}
	return a.outputFlusher
}

func (a *App) stopOutputFlusher() {
	a.outputMu.Lock()
	flusher := a.outputFlusher
	a.outputFlusher = nil
	a.outputMu.Unlock()
	if flusher != nil {
		flusher.Stop()
	}
}

// emitSessionChunk delivers one coalesced output chunk to the frontend.
// The WebSocket binary channel is preferred; the Wails event path is the
// fallback for sessions the frontend has not subscribed to yet.
func (a *App) emitSessionChunk(sessionID string, data []byte) {
	if len(data) == 0 {
		return
	}
	if a.wsHub != nil && a.wsHub.HasActiveConnection() {
		a.wsHub.BroadcastSessionData(sessionID, data)
		return
	}
	a.emitRuntimeEvent("term:data:"+sessionID, data)
}
