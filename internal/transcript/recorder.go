package transcript

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// recorderQueueSize bounds pending writes. PTY output is bursty; when
	// the queue fills (stalled disk), chunks are dropped rather than
	// backpressuring the read pump.
	recorderQueueSize = 256
	writeTimeout      = 5 * time.Second
)

// Recorder bridges live session callbacks to the store on a dedicated
// goroutine so database latency never blocks PTY reads.
type Recorder struct {
	store *Store

	mu   sync.Mutex
	runs map[int]string // session id -> active run id

	jobs chan func()
	once sync.Once
	done sync.WaitGroup
}

// NewRecorder starts the write goroutine. Call Close to flush and stop.
func NewRecorder(store *Store) *Recorder {
	r := &Recorder{
		store: store,
		runs:  make(map[int]string),
		jobs:  make(chan func(), recorderQueueSize),
	}
	r.done.Add(1)
	go func() {
		defer r.done.Done()
		for job := range r.jobs {
			job()
		}
	}()
	return r
}

// Close drains queued writes and stops the recorder.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.jobs) })
	r.done.Wait()
}

func (r *Recorder) enqueue(job func()) {
	select {
	case r.jobs <- job:
	default:
		slog.Warn("[WARN-TRANSCRIPT] recorder queue full, dropping write")
	}
}

// SessionStarted opens a run for the session.
func (r *Recorder) SessionStarted(sessionID int, shell string, cwd string) {
	r.enqueue(func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		runID, err := r.store.BeginRun(ctx, sessionID, shell, cwd)
		if err != nil {
			slog.Warn("[WARN-TRANSCRIPT] begin run failed", "sessionId", sessionID, "error", err)
			return
		}
		r.mu.Lock()
		r.runs[sessionID] = runID
		r.mu.Unlock()
	})
}

// SessionOutput appends one output chunk. The data slice is copied before
// the call returns; callers may reuse the buffer.
func (r *Recorder) SessionOutput(sessionID int, data []byte) {
	if len(data) == 0 {
		return
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)
	r.enqueue(func() {
		r.mu.Lock()
		runID, ok := r.runs[sessionID]
		r.mu.Unlock()
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := r.store.AppendOutput(ctx, runID, chunk); err != nil {
			slog.Warn("[WARN-TRANSCRIPT] append output failed", "sessionId", sessionID, "error", err)
		}
	})
}

// SessionExited closes the run for the session.
func (r *Recorder) SessionExited(sessionID int, exitCode int, signal string) {
	r.enqueue(func() {
		r.mu.Lock()
		runID, ok := r.runs[sessionID]
		delete(r.runs, sessionID)
		r.mu.Unlock()
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := r.store.EndRun(ctx, runID, exitCode, signal); err != nil {
			slog.Warn("[WARN-TRANSCRIPT] end run failed", "sessionId", sessionID, "error", err)
		}
	})
}
