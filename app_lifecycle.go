package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"agentterm/internal/config"
	"agentterm/internal/ipc"
	"agentterm/internal/session"
	"agentterm/internal/sessionlog"
	"agentterm/internal/transcript"
	"agentterm/internal/wsserver"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

type appRuntimeLogger interface {
	Warningf(context.Context, string, ...interface{})
	Infof(context.Context, string, ...interface{})
	Errorf(context.Context, string, ...interface{})
}

type wailsRuntimeLogger struct{}

func formatRuntimeLogMessage(message string, args ...interface{}) string {
	if len(args) == 0 {
		return message
	}
	return fmt.Sprintf(message, args...)
}

func (wailsRuntimeLogger) Warningf(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Warn(formatRuntimeLogMessage(message, args...))
		return
	}
	wailsruntime.LogWarningf(ctx, message, args...)
}

func (wailsRuntimeLogger) Infof(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Info(formatRuntimeLogMessage(message, args...))
		return
	}
	wailsruntime.LogInfof(ctx, message, args...)
}

func (wailsRuntimeLogger) Errorf(ctx context.Context, message string, args ...interface{}) {
	if ctx == nil {
		slog.Error(formatRuntimeLogMessage(message, args...))
		return
	}
	wailsruntime.LogErrorf(ctx, message, args...)
}

var (
	runtimeEventsEmitFn                  = wailsruntime.EventsEmit
	runtimeLogger       appRuntimeLogger = wailsRuntimeLogger{}
	newPipeServerFn                      = ipc.NewPipeServer
	runtimeWindowShowFn                  = wailsruntime.WindowShow
	runtimeWindowUnminimiseFn            = wailsruntime.WindowUnminimise
	openTranscriptStoreFn                = transcript.Open
	newConfigWatcherFn                   = config.NewWatcher
)

const shutdownWaitTimeout = 10 * time.Second

func (a *App) addPendingConfigLoadWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	a.startupWarnMu.Lock()
	a.configLoadWarnings = append(a.configLoadWarnings, trimmed)
	a.startupWarnMu.Unlock()
}

func (a *App) consumePendingConfigLoadWarning() string {
	a.startupWarnMu.Lock()
	defer a.startupWarnMu.Unlock()
	if len(a.configLoadWarnings) == 0 {
		return ""
	}
	message := strings.Join(a.configLoadWarnings, "\n")
	a.configLoadWarnings = nil
	return message
}

func (a *App) startup(ctx context.Context) {
	setConsoleUTF8()

	a.setRuntimeContext(ctx)
	a.installSessionLogTee()

	launchDir, err := os.Getwd()
	if err != nil {
		if exePath, exeErr := os.Executable(); exeErr == nil {
			launchDir = filepath.Dir(exePath)
		} else {
			launchDir = "."
		}
		runtimeLogger.Warningf(ctx, "failed to resolve working directory: %v", err)
	}
	a.launchDir = launchDir
	a.configPath = config.DefaultPath()
	for _, message := range config.ConsumeDefaultPathWarnings() {
		a.addPendingConfigLoadWarning(message)
	}

	cfg, err := config.EnsureFile(a.configPath)
	if err != nil {
		// Config load/parse failures are non-fatal. Continue startup with
		// defaults and surface a warning to the user.
		cfg = config.DefaultConfig()
		a.addPendingConfigLoadWarning(
			"Failed to load config file at startup. Running with defaults. Error: " + err.Error(),
		)
		runtimeLogger.Warningf(ctx, "failed to load config from %s: %v", a.configPath, err)
	}
	a.setConfigSnapshot(cfg)

	a.initSessionLog()
	a.initTranscripts(cfg)

	a.sessions = session.NewManager()

	a.startWebSocketServer(cfg)
	a.startPipeServer()
	a.startConfigWatcher()
	a.startTranscriptPruner(ctx)

	a.flushPendingConfigLoadWarnings()
}

// installSessionLogTee replaces the default slog handler with one that tees
// Warn/Error records into the in-memory session log ring buffer while still
// writing to stderr.
func (a *App) installSessionLogTee() {
	base := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	tee := sessionlog.NewTeeHandler(base, slog.LevelWarn, func(ts time.Time, level slog.Level, msg string, group string) {
		a.writeSessionLogEntry(SessionLogEntry{
			Timestamp: ts.Format("20060102150405"),
			Level:     strings.ToLower(level.String()),
			Message:   msg,
			Source:    group,
		})
	})
	slog.SetDefault(slog.New(tee))
}

// initTranscripts opens the transcript store when enabled in config.
// Failures are non-fatal: sessions run without persistence.
func (a *App) initTranscripts(cfg config.Config) {
	if !cfg.TranscriptEnabled {
		return
	}
	path := strings.TrimSpace(cfg.TranscriptPath)
	if path == "" {
		path = filepath.Join(filepath.Dir(a.configPath), "transcripts.db")
	}
	store, err := openTranscriptStoreFn(path)
	if err != nil {
		slog.Warn("[WARN-TRANSCRIPT] failed to open store, continuing without persistence",
			"path", path, "error", err)
		a.addPendingConfigLoadWarning(
			"Failed to open transcript database. Session recording is disabled for this run. Error: " + err.Error(),
		)
		return
	}
	a.transcripts = store
	a.recorder = transcript.NewRecorder(store)
}

func (a *App) startWebSocketServer(cfg config.Config) {
	ctx := a.runtimeContext()
	hub := wsserver.NewHub(wsserver.HubOptions{
		Addr: fmt.Sprintf("127.0.0.1:%d", cfg.WebSocketPort),
	})
	if err := hub.Start(context.Background()); err != nil {
		runtimeLogger.Errorf(ctx, "websocket server failed: %v", err)
		a.addPendingConfigLoadWarning(
			"Failed to start the local WebSocket server. Terminal output falls back to Wails events. Error: " + err.Error(),
		)
		return
	}
	a.wsHub = hub
	runtimeLogger.Infof(ctx, "websocket server listening: %s", hub.URL())
}

// startPipeServer exposes the activation pipe so secondary launches can
// signal this instance. Named pipes exist only on Windows; elsewhere the
// start fails fast and is skipped silently.
func (a *App) startPipeServer() {
	if runtime.GOOS != "windows" {
		return
	}
	ctx := a.runtimeContext()
	a.pipeServer = newPipeServerFn("", activationExecutor{app: a})
	if err := a.pipeServer.Start(); err != nil {
		runtimeLogger.Errorf(ctx, "pipe server failed: %v", err)
		a.addPendingConfigLoadWarning(
			"Failed to start the activation pipe server. Second launches cannot focus this window. Error: " + err.Error(),
		)
		a.pipeServer = nil
		return
	}
	runtimeLogger.Infof(ctx, "pipe server listening: %s", a.pipeServer.PipeName())
}

func (a *App) startConfigWatcher() {
	watcher, err := newConfigWatcherFn(a.configPath, a.handleConfigReloaded)
	if err != nil {
		slog.Warn("[WARN-CONFIG] config watcher unavailable, external edits require restart", "error", err)
		return
	}
	a.cfgWatcher = watcher
}

// handleConfigReloaded applies a config reloaded from disk after an external
// edit. Called from the watcher goroutine.
func (a *App) handleConfigReloaded(cfg config.Config) {
	a.setConfigSnapshot(cfg)
	a.emitRuntimeEvent("app:config-updated", cfg)
}

func (a *App) flushPendingConfigLoadWarnings() {
	if message := a.consumePendingConfigLoadWarning(); message != "" {
		a.emitRuntimeEvent("app:startup-warning", message)
	}
}

func (a *App) shutdown(_ context.Context) {
	a.shuttingDown.Store(true)
	logCtx := a.runtimeContext()

	if a.bgCancel != nil {
		a.bgCancel()
		a.bgCancel = nil
	}
	if !waitWithTimeout(a.bgWG.Wait, shutdownWaitTimeout) {
		runtimeLogger.Warningf(logCtx, "timed out waiting for background workers during shutdown")
	}

	if a.cfgWatcher != nil {
		if err := a.cfgWatcher.Close(); err != nil {
			runtimeLogger.Warningf(logCtx, "config watcher close failed: %v", err)
		}
	}
	if a.pipeServer != nil {
		if err := a.pipeServer.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "pipe server stop failed: %v", err)
		}
	}

	if a.sessions != nil {
		if !waitWithTimeout(a.sessions.DestroyAll, shutdownWaitTimeout) {
			runtimeLogger.Warningf(logCtx, "timed out waiting for sessions during shutdown")
		}
	}
	a.stopOutputFlusher()

	if a.recorder != nil {
		a.recorder.Close()
	}
	if a.transcripts != nil {
		if err := a.transcripts.Close(); err != nil {
			runtimeLogger.Warningf(logCtx, "transcript store close failed: %v", err)
		}
	}
	if a.wsHub != nil {
		if err := a.wsHub.Stop(); err != nil {
			runtimeLogger.Warningf(logCtx, "websocket server stop failed: %v", err)
		}
	}

	a.closeSessionLog()
	a.setRuntimeContext(nil)
}

func waitWithTimeout(waitFn func(), timeout time.Duration) bool {
	// Best effort timeout guard for shutdown paths. The waiting goroutine may
	// outlive timeout when waitFn blocks indefinitely, but this function is only
	// used during process shutdown where eventual completion is expected.
	done := make(chan struct{})
	go func() {
		waitFn()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// activationExecutor routes activation pipe requests to the app.
type activationExecutor struct {
	app *App
}

func (e activationExecutor) Execute(req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandActivate:
		e.app.bringWindowToFront()
		return ipc.Response{ExitCode: 0}
	case ipc.CommandNewSession:
		cwd := ""
		if len(req.Args) > 0 {
			cwd = req.Args[0]
		}
		if _, err := e.app.CreateSession(session.Options{Cwd: cwd}); err != nil {
			return ipc.Response{ExitCode: 1, Stderr: err.Error() + "\n"}
		}
		e.app.bringWindowToFront()
		return ipc.Response{ExitCode: 0}
	default:
		return ipc.Response{ExitCode: 1, Stderr: fmt.Sprintf("unknown command: %s\n", req.Command)}
	}
}

// bringWindowToFront shows and raises the application window.
// Used when a second instance signals the first to activate.
func (a *App) bringWindowToFront() {
	ctx := a.runtimeContext()
	if ctx == nil {
		slog.Warn("[DEBUG-IPC] bringWindowToFront dropped because runtime context is nil")
		return
	}
	runtimeWindowShowFn(ctx)
	runtimeWindowUnminimiseFn(ctx)
}
