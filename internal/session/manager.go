// Package session owns live PTY processes. A Manager maps opaque numeric
// handles to running terminal processes, streams their output through
// caller-supplied callbacks, and guarantees exactly one exit notification
// per session no matter how destroy races natural process exit.
//
// Callers hold only session ids; the process handle never leaves the
// Manager.
package session

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"agentterm/internal/shellres"
	"agentterm/internal/terminal"
)

const (
	defaultCols = 80
	defaultRows = 24
)

// userHomeDirFn is a test seam over the default working directory lookup.
var userHomeDirFn = os.UserHomeDir

// Options configures one session create call. Zero values select defaults:
// the resolved configured shell, the user home directory, 80x24.
type Options struct {
	// Shell is resolved through shellres.Resolve unless Command is set.
	Shell shellres.ShellConfig `json:"shell"`
	// Command, when non-empty, is launched verbatim and bypasses shell
	// resolution (used for launching agent CLIs directly).
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
	Cwd     string   `json:"cwd,omitempty"`
	// Env entries overlay the inherited process environment.
	Env  map[string]string `json:"env,omitempty"`
	Cols int               `json:"cols,omitempty"`
	Rows int               `json:"rows,omitempty"`
}

// DataHandler receives session output in process byte order. The data slice
// is only valid during the call; consumers must copy bytes they retain.
type DataHandler func(id int, data []byte)

// ExitHandler receives the single terminal notification of a session that
// ended on its own. Destroyed sessions do not fire it.
type ExitHandler func(id int, status terminal.ExitStatus)

// Info is a read-only snapshot of one live session.
type Info struct {
	ID        int       `json:"id"`
	Path      string    `json:"path"`
	Args      []string  `json:"args,omitempty"`
	WSL       bool      `json:"wsl"`
	Cwd       string    `json:"cwd"`
	Cols      int       `json:"cols"`
	Rows      int       `json:"rows"`
	CreatedAt time.Time `json:"created_at"`
}

type liveSession struct {
	info Info
	term *terminal.Terminal

	// finished guards cleanup: whichever of Destroy and the exit monitor
	// flips it performs the single close, and only the monitor path emits
	// onExit. Exactly one winner per session lifecycle.
	finished atomic.Bool

	onExit ExitHandler
}

// Manager is the session registry. Sessions are independent; the mutex only
// guards the id table, never session I/O.
type Manager struct {
	mu       sync.Mutex
	sessions map[int]*liveSession
	lastID   atomic.Int64
	wg       sync.WaitGroup
}

// NewManager creates an empty session registry.
func NewManager() *Manager {
	return &Manager{sessions: map[int]*liveSession{}}
}

// Create resolves the requested command, spawns it on a PTY, and registers
// it under a fresh monotonically increasing id. Output flows to onData from
// a dedicated pump goroutine until the process exits. Spawn failure returns
// an error and registers nothing.
func (m *Manager) Create(opts Options, onData DataHandler, onExit ExitHandler) (int, error) {
	spec := resolveSpec(opts)

	cwd := opts.Cwd
	if cwd == "" {
		if home, err := userHomeDirFn(); err == nil {
			cwd = home
		}
	}

	cols, rows := clampGeometry(opts.Cols, opts.Rows)

	term, err := terminal.Start(terminal.Config{
		Shell:   spec.Path,
		Args:    spec.Args,
		Dir:     cwd,
		Env:     buildEnv(opts.Env),
		Columns: cols,
		Rows:    rows,
	})
	if err != nil {
		return 0, fmt.Errorf("spawn %s: %w", spec.Path, err)
	}

	id := int(m.lastID.Add(1))
	sess := &liveSession{
		info: Info{
			ID:        id,
			Path:      spec.Path,
			Args:      spec.Args,
			WSL:       spec.WSL,
			Cwd:       cwd,
			Cols:      cols,
			Rows:      rows,
			CreatedAt: time.Now(),
		},
		term:   term,
		onExit: onExit,
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	m.wg.Add(1)
	go m.pump(sess, onData)

	slog.Info("[DEBUG-SESSION] session created",
		"id", id, "path", spec.Path, "cwd", cwd, "pid", term.PID())
	return id, nil
}

// pump reads session output until EOF, reaps the process, and performs the
// natural-exit half of the cleanup race.
func (m *Manager) pump(sess *liveSession, onData DataHandler) {
	defer m.wg.Done()
	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Error("[DEBUG-SESSION] output pump panicked",
				"id", sess.info.ID, "panic", recovered, "stack", string(debug.Stack()))
			// Fall through to cleanup so the session does not leak.
			m.finishNaturally(sess, terminal.ExitStatus{Code: -1})
		}
	}()

	if onData != nil {
		id := sess.info.ID
		sess.term.ReadLoop(func(chunk []byte) {
			onData(id, chunk)
		})
	} else {
		sess.term.ReadLoop(func([]byte) {})
	}

	status := sess.term.Wait()
	m.finishNaturally(sess, status)
}

// finishNaturally completes the exit path of the cleanup race. If Destroy
// already won, this is a no-op: no duplicate close, no onExit.
func (m *Manager) finishNaturally(sess *liveSession, status terminal.ExitStatus) {
	if !sess.finished.CompareAndSwap(false, true) {
		return
	}

	m.mu.Lock()
	delete(m.sessions, sess.info.ID)
	m.mu.Unlock()

	if err := sess.term.Close(); err != nil {
		slog.Debug("[DEBUG-SESSION] close after exit", "id", sess.info.ID, "error", err)
	}
	slog.Info("[DEBUG-SESSION] session exited",
		"id", sess.info.ID, "code", status.Code, "signal", status.Signal)
	if sess.onExit != nil {
		sess.onExit(sess.info.ID, status)
	}
}

// Write forwards input bytes to a session's PTY. Unknown ids are a silent
// no-op: callers legitimately race writes against destroys.
func (m *Manager) Write(id int, data []byte) {
	sess := m.lookup(id)
	if sess == nil {
		return
	}
	if _, err := sess.term.Write(data); err != nil {
		slog.Debug("[DEBUG-SESSION] write failed", "id", id, "error", err)
	}
}

// Resize updates a session's PTY geometry. Non-positive dimensions are
// clamped to the minimum 1x1; unknown ids are a no-op.
func (m *Manager) Resize(id, cols, rows int) {
	sess := m.lookup(id)
	if sess == nil {
		return
	}
	cols, rows = clampGeometry(cols, rows)
	if err := sess.term.Resize(cols, rows); err != nil {
		slog.Debug("[DEBUG-SESSION] resize failed", "id", id, "error", err)
		return
	}
	m.mu.Lock()
	if current, ok := m.sessions[id]; ok && current == sess {
		current.info.Cols = cols
		current.info.Rows = rows
	}
	m.mu.Unlock()
}

// Destroy terminates a session's process and removes it from the registry
// immediately, without waiting for exit confirmation. Idempotent; unknown
// ids are a no-op. A destroyed session never fires onExit.
func (m *Manager) Destroy(id int) {
	m.mu.Lock()
	sess := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if sess == nil {
		return
	}
	if !sess.finished.CompareAndSwap(false, true) {
		// Natural exit won the race and already cleaned up.
		return
	}
	if err := sess.term.Close(); err != nil {
		slog.Debug("[DEBUG-SESSION] destroy close", "id", id, "error", err)
	}
	slog.Info("[DEBUG-SESSION] session destroyed", "id", id)
}

// DestroyAll destroys every tracked session and waits for their pump
// goroutines to drain. Used at application shutdown.
func (m *Manager) DestroyAll() {
	m.mu.Lock()
	ids := make([]int, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Destroy(id)
	}
	m.wg.Wait()
}

// List returns snapshots of all live sessions, unordered.
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]Info, 0, len(m.sessions))
	for _, sess := range m.sessions {
		infos = append(infos, sess.info)
	}
	return infos
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) lookup(id int) *liveSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// resolveSpec maps create options to a launch descriptor: an explicit
// command verbatim, otherwise the configured shell through the resolver.
func resolveSpec(opts Options) shellres.ShellSpec {
	if opts.Command != "" {
		return shellres.ShellSpec{Path: opts.Command, Args: opts.Args}
	}
	return shellres.Resolve(opts.Shell)
}

func clampGeometry(cols, rows int) (int, int) {
	if cols <= 0 {
		cols = defaultCols
	}
	if rows <= 0 {
		rows = defaultRows
	}
	return cols, rows
}
