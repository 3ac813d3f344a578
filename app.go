package main

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"agentterm/internal/config"
	"agentterm/internal/ipc"
	"agentterm/internal/session"
	"agentterm/internal/terminal"
	"agentterm/internal/transcript"
	"agentterm/internal/wsserver"
)

// App is the Wails-bound application service.
type App struct {
	// Runtime context lifecycle.
	ctx   context.Context
	ctxMu sync.RWMutex

	// Configuration state and startup warnings.
	// Lock ordering (outer -> inner):
	//   cfgSaveMu -> cfgMu
	//
	// Independent locks: do not assume ordering across these.
	//   outputMu, startupWarnMu, ctxMu, sessionLogMu
	cfgMu      sync.RWMutex
	cfgSaveMu  sync.Mutex
	cfg        config.Config
	configPath string
	cfgWatcher *config.Watcher

	startupWarnMu      sync.Mutex
	configLoadWarnings []string

	// launchDir is the working directory captured at startup. Read-only after
	// startup() returns; safe to access without mutex from any goroutine.
	launchDir string

	// Backend services.
	sessions   *session.Manager
	pipeServer *ipc.PipeServer

	// Transcript persistence. Both nil when transcripts are disabled.
	// Set once during startup before any session exists; read-only after.
	transcripts *transcript.Store
	recorder    *transcript.Recorder

	// Output buffering state.
	outputMu      sync.Mutex
	outputFlusher *terminal.OutputFlushManager

	// wsHub provides a WebSocket binary stream for high-throughput session data.
	// Set once during startup (single-goroutine); nil if the server fails to
	// start. Safe without mutex: written once before any reader goroutine
	// starts, never reassigned.
	wsHub *wsserver.Hub

	shuttingDown atomic.Bool // set at the start of shutdown(); checked by exit handlers

	// Background worker cancellation/waits.
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup

	// Session log state (captures Warn/Error level records).
	// Protected by sessionLogMu (RWMutex: write-lock for append/close, read-lock for get).
	sessionLogMu       sync.RWMutex
	sessionLogFile     *os.File
	sessionLogPath     string
	sessionLogEntries  sessionLogRingBuffer
	sessionLogLastEmit time.Time
	sessionLogSeq      uint64
}

// NewApp creates the app service.
func NewApp() *App {
	return &App{
		sessionLogEntries: newSessionLogRingBuffer(sessionLogMaxEntries),
	}
}

// GetWebSocketURL returns the WebSocket endpoint URL for the frontend session
// data stream. The frontend calls this on mount to establish a binary channel
// that bypasses Wails IPC overhead for high-frequency terminal output.
// Returns empty string if the WebSocket server is not available.
func (a *App) GetWebSocketURL() string {
	if a.wsHub == nil {
		slog.Debug("[WS] wsHub is nil, WebSocket URL unavailable")
		return ""
	}
	return a.wsHub.URL()
}
