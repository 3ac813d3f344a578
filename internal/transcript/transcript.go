// Package transcript persists session output and lifecycle records to a
// local SQLite database so closed sessions can be reviewed later.
package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when a run id does not exist in the store.
var ErrRunNotFound = errors.New("transcript: run not found")

// schema is applied on every Open. CREATE IF NOT EXISTS keeps reopening a
// populated database cheap.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	session_id INTEGER NOT NULL,
	shell      TEXT NOT NULL,
	cwd        TEXT NOT NULL,
	started_at INTEGER NOT NULL,
	ended_at   INTEGER,
	exit_code  INTEGER,
	exit_signal TEXT
);
CREATE TABLE IF NOT EXISTS chunks (
	run_id  TEXT NOT NULL REFERENCES runs(id),
	seq     INTEGER NOT NULL,
	at      INTEGER NOT NULL,
	data    BLOB NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
`

// Run is one recorded session lifetime.
type Run struct {
	ID        string     `json:"id"`
	SessionID int        `json:"session_id"`
	Shell     string     `json:"shell"`
	Cwd       string     `json:"cwd"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	Signal    string     `json:"exit_signal,omitempty"`
}

// Store is a transcript database handle. Methods are safe for concurrent
// use; database/sql serializes access to the underlying connection pool.
type Store struct {
	db *sql.DB
}

var nowFn = time.Now

// Open creates or opens the transcript database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("transcript: mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("transcript: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			slog.Warn("[WARN-TRANSCRIPT] failed to close db after schema error", "error", closeErr)
		}
		return nil, fmt.Errorf("transcript: schema: %w", err)
	}
	slog.Debug("[DEBUG-TRANSCRIPT] store opened", "path", path)
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records the start of a session and returns the new run id.
func (s *Store) BeginRun(ctx context.Context, sessionID int, shell string, cwd string) (string, error) {
	runID := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, session_id, shell, cwd, started_at) VALUES (?, ?, ?, ?, ?)`,
		runID, sessionID, shell, cwd, nowFn().UnixMilli())
	if err != nil {
		return "", fmt.Errorf("transcript: begin run: %w", err)
	}
	return runID, nil
}

// AppendOutput stores one output chunk for a run. Chunks are sequenced in
// insertion order per run.
func (s *Store) AppendOutput(ctx context.Context, runID string, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks (run_id, seq, at, data)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM chunks WHERE run_id = ?), ?, ?)`,
		runID, runID, nowFn().UnixMilli(), data)
	if err != nil {
		return fmt.Errorf("transcript: append output: %w", err)
	}
	return nil
}

// EndRun records session termination. signal may be empty when the process
// exited normally.
func (s *Store) EndRun(ctx context.Context, runID string, exitCode int, signal string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET ended_at = ?, exit_code = ?, exit_signal = ? WHERE id = ?`,
		nowFn().UnixMilli(), exitCode, signal, runID)
	if err != nil {
		return fmt.Errorf("transcript: end run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transcript: end run: %w", err)
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, shell, cwd, started_at, ended_at, exit_code, exit_signal
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("transcript: recent runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run       Run
			startedAt int64
			endedAt   sql.NullInt64
			exitCode  sql.NullInt64
			signal    sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.SessionID, &run.Shell, &run.Cwd,
			&startedAt, &endedAt, &exitCode, &signal); err != nil {
			return nil, fmt.Errorf("transcript: scan run: %w", err)
		}
		run.StartedAt = time.UnixMilli(startedAt)
		if endedAt.Valid {
			t := time.UnixMilli(endedAt.Int64)
			run.EndedAt = &t
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			run.ExitCode = &code
		}
		run.Signal = signal.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcript: recent runs: %w", err)
	}
	return runs, nil
}

// Output returns the concatenated output of a run in chunk order.
func (s *Store) Output(ctx context.Context, runID string) ([]byte, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: output: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM chunks WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("transcript: output: %w", err)
	}
	defer rows.Close()

	var out []byte
	for rows.Next() {
		var chunk []byte
		if err := rows.Scan(&chunk); err != nil {
			return nil, fmt.Errorf("transcript: scan chunk: %w", err)
		}
		out = append(out, chunk...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("transcript: output: %w", err)
	}
	return out, nil
}

// Prune removes runs that ended before cutoff, along with their chunks.
// Still-open runs are never pruned.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("transcript: prune: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE run_id IN
		   (SELECT id FROM runs WHERE ended_at IS NOT NULL AND ended_at < ?)`,
		cutoff.UnixMilli()); err != nil {
		return 0, fmt.Errorf("transcript: prune chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM runs WHERE ended_at IS NOT NULL AND ended_at < ?`,
		cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("transcript: prune runs: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("transcript: prune: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("transcript: prune: %w", err)
	}
	return removed, nil
}
