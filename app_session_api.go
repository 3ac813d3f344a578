package main

import (
	"errors"
	"log/slog"

	"agentterm/internal/session"
)

var errSessionManagerUnavailable = errors.New("session manager is not initialized")

func (a *App) requireSessions() (*session.Manager, error) {
	if a.sessions == nil {
		return nil, errSessionManagerUnavailable
	}
	return a.sessions, nil
}

// CreateSession spawns a new PTY session and returns its snapshot.
// Wails-bound. Zero-value options select the configured shell, the user home
// directory, and 80x24.
func (a *App) CreateSession(opts session.Options) (session.Info, error) {
	sessions, err := a.requireSessions()
	if err != nil {
		return session.Info{}, err
	}

	// An unset shell selector falls back to the user's configured choice so
	// plain "new tab" requests honor settings.
	if opts.Shell.Type == "" && opts.Command == "" {
		opts.Shell = a.getConfigSnapshot().Shell
	}
	opts.Env = a.mergeSessionEnv(opts.Env)
	if opts.Cwd == "" {
		opts.Cwd = a.defaultSessionDir()
	}

	id, err := sessions.Create(opts, a.handleSessionData, a.handleSessionExit)
	if err != nil {
		slog.Warn("[DEBUG-SESSION] create failed", "error", err)
		return session.Info{}, err
	}

	info, ok := a.sessionInfo(id)
	if ok && a.recorder != nil {
		a.recorder.SessionStarted(id, info.Path, info.Cwd)
	}
	if !ok {
		// The process exited between create and lookup. The exit event has
		// already fired; report the id so the frontend can reconcile.
		info = session.Info{ID: id}
	}
	a.emitRuntimeEvent("term:created", info)
	return info, nil
}

// WriteSession forwards keystrokes to a session. Unknown ids are a no-op:
// input racing a session's death is routine, not an error.
func (a *App) WriteSession(id int, data []byte) {
	sessions, err := a.requireSessions()
	if err != nil {
		return
	}
	sessions.Write(id, data)
}

// ResizeSession updates the PTY geometry for a session. Unknown ids are a
// no-op.
func (a *App) ResizeSession(id int, cols int, rows int) {
	sessions, err := a.requireSessions()
	if err != nil {
		return
	}
	sessions.Resize(id, cols, rows)
}

// DestroySession terminates a session. The exit event is suppressed; the
// frontend initiated the close and needs no echo. Unknown ids are a no-op.
func (a *App) DestroySession(id int) {
	sessions, err := a.requireSessions()
	if err != nil {
		return
	}
	sessions.Destroy(id)
}

// DestroyAllSessions terminates every live session and waits for their pump
// goroutines to finish.
func (a *App) DestroyAllSessions() {
	sessions, err := a.requireSessions()
	if err != nil {
		return
	}
	sessions.DestroyAll()
}

// ListSessions returns snapshots of all live sessions.
func (a *App) ListSessions() []session.Info {
	sessions, err := a.requireSessions()
	if err != nil {
		return []session.Info{}
	}
	return sessions.List()
}

func (a *App) sessionInfo(id int) (session.Info, bool) {
	for _, info := range a.sessions.List() {
		if info.ID == id {
			return info, true
		}
	}
	return session.Info{}, false
}

// mergeSessionEnv overlays per-call env entries on top of configured
// session_env values. Call-site entries win.
func (a *App) mergeSessionEnv(callEnv map[string]string) map[string]string {
	cfgEnv := a.getConfigSnapshot().SessionEnv
	if len(cfgEnv) == 0 {
		return callEnv
	}
	merged := make(map[string]string, len(cfgEnv)+len(callEnv))
	for k, v := range cfgEnv {
		merged[k] = v
	}
	for k, v := range callEnv {
		merged[k] = v
	}
	return merged
}

func (a *App) defaultSessionDir() string {
	return a.getConfigSnapshot().DefaultSessionDir
}
