package terminal

import (
	"bytes"
	"sync"
	"time"
)

var outputBufferPool = sync.Pool{
	New: func() any {
		return &bytes.Buffer{}
	},
}

type sessionOutputChunk struct {
	sessionID string
	data   []byte
}

type sessionOutputState struct {
	buf          *bytes.Buffer
	lastWriteAt  time.Time
	pendingSince time.Time
}

// OutputFlushManager batches session output with a single background worker.
// It replaces per-session ticker goroutines with one shared loop.
type OutputFlushManager struct {
	mu sync.Mutex

	interval       time.Duration
	maxBytes       int
	maxBufferedAge time.Duration
	emit           func(string, []byte)

	sessions map[string]*sessionOutputState

	started  bool
	stopped  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	wakeCh   chan struct{}
	stopOnce sync.Once
}

// NewOutputFlushManager creates a shared output flusher.
func NewOutputFlushManager(interval time.Duration, maxBytes int, emit func(string, []byte)) *OutputFlushManager {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	if maxBytes <= 0 {
		maxBytes = 8 * 1024
	}
	if emit == nil {
		emit = func(string, []byte) {}
	}
	maxBufferedAge := interval * 4
	if maxBufferedAge < 64*time.Millisecond {
		maxBufferedAge = 64 * time.Millisecond
	}
	return &OutputFlushManager{
		interval:       interval,
		maxBytes:       maxBytes,
		maxBufferedAge: maxBufferedAge,
		emit:           emit,
		sessions:          map[string]*sessionOutputState{},
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
		wakeCh:         make(chan struct{}, 1),
	}
}

// Start starts the shared flush loop.
func (m *OutputFlushManager) Start() {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.loop()
}

func (m *OutputFlushManager) loop() {
	defer close(m.doneCh)

	currentInterval := m.interval
	timer := time.NewTimer(currentInterval)
	defer timer.Stop()

	for {
		select {
		case <-m.stopCh:
			m.flushAll()
			return
		case <-m.wakeCh:
			flushed := m.flushReady(true)
			currentInterval = m.nextInterval(flushed)
			resetTimer(timer, currentInterval)
		case <-timer.C:
			flushed := m.flushReady(false)
			currentInterval = m.nextInterval(flushed)
			timer.Reset(currentInterval)
		}
	}
}

func resetTimer(timer *time.Timer, interval time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(interval)
}

func (m *OutputFlushManager) nextInterval(flushed int) time.Duration {
	if flushed <= 2 {
		return m.interval * 2
	}
	return m.interval
}

// Write appends output for one session.
func (m *OutputFlushManager) Write(sessionID string, data []byte) {
	if sessionID == "" || len(data) == 0 {
		return
	}
	shouldWake := false
	now := time.Now()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	state := m.sessions[sessionID]
	if state == nil {
		buf := outputBufferPool.Get().(*bytes.Buffer)
		buf.Reset()
		state = &sessionOutputState{buf: buf}
		m.sessions[sessionID] = state
	}
	if state.buf.Len() == 0 {
		state.pendingSince = now
	}
	state.lastWriteAt = now
	_, _ = state.buf.Write(data)
	if state.buf.Len() >= m.maxBytes {
		shouldWake = true
	}
	m.mu.Unlock()

	if shouldWake {
		select {
		case m.wakeCh <- struct{}{}:
		default:
		}
	}
}

// RetainSessions removes buffers not present in existing and flushes pending data.
func (m *OutputFlushManager) RetainSessions(existing map[string]struct{}) []string {
	if len(existing) == 0 {
		return m.detachAll()
	}

	removed := make([]string, 0)
	chunks := make([]sessionOutputChunk, 0)

	m.mu.Lock()
	for sessionID, state := range m.sessions {
		if _, ok := existing[sessionID]; ok {
			continue
		}
		removed = append(removed, sessionID)
		if state != nil {
			if chunk, ok := m.flushStateLocked(sessionID, state); ok {
				chunks = append(chunks, chunk)
			}
			m.releaseStateLocked(state)
		}
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	m.emitChunks(chunks)
	return removed
}

// RemoveSession removes one session buffer and flushes pending data.
func (m *OutputFlushManager) RemoveSession(sessionID string) {
	if sessionID == "" {
		return
	}
	var chunk sessionOutputChunk
	var hasChunk bool

	m.mu.Lock()
	state := m.sessions[sessionID]
	if state != nil {
		chunk, hasChunk = m.flushStateLocked(sessionID, state)
		m.releaseStateLocked(state)
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if hasChunk {
		m.emit(chunk.sessionID, chunk.data)
	}
}

func (m *OutputFlushManager) detachAll() []string {
	removed := make([]string, 0)
	chunks := make([]sessionOutputChunk, 0)

	m.mu.Lock()
	for sessionID, state := range m.sessions {
		removed = append(removed, sessionID)
		if state != nil {
			if chunk, ok := m.flushStateLocked(sessionID, state); ok {
				chunks = append(chunks, chunk)
			}
			m.releaseStateLocked(state)
		}
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	m.emitChunks(chunks)
	return removed
}

func (m *OutputFlushManager) flushReady(forceLargeOnly bool) int {
	now := time.Now()
	chunks := make([]sessionOutputChunk, 0)

	m.mu.Lock()
	for sessionID, state := range m.sessions {
		if state == nil {
			continue
		}
		if chunk, ok := m.shouldFlushStateLocked(sessionID, state, now, forceLargeOnly); ok {
			chunks = append(chunks, chunk)
		}
	}
	m.mu.Unlock()

	m.emitChunks(chunks)
	return len(chunks)
}

func (m *OutputFlushManager) flushAll() {
	chunks := make([]sessionOutputChunk, 0)

	m.mu.Lock()
	for sessionID, state := range m.sessions {
		if state == nil {
			continue
		}
		if chunk, ok := m.flushStateLocked(sessionID, state); ok {
			chunks = append(chunks, chunk)
		}
		m.releaseStateLocked(state)
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()
	m.emitChunks(chunks)
}

func (m *OutputFlushManager) shouldFlushStateLocked(
	sessionID string,
	state *sessionOutputState,
	now time.Time,
	forceLargeOnly bool,
) (sessionOutputChunk, bool) {
	if state.buf == nil || state.buf.Len() == 0 {
		return sessionOutputChunk{}, false
	}
	if forceLargeOnly {
		if state.buf.Len() < m.maxBytes {
			return sessionOutputChunk{}, false
		}
		return m.flushStateLocked(sessionID, state)
	}

	quietFor := now.Sub(state.lastWriteAt)
	pendingFor := now.Sub(state.pendingSince)
	if state.buf.Len() < m.maxBytes && quietFor < m.interval && pendingFor < m.maxBufferedAge {
		return sessionOutputChunk{}, false
	}
	return m.flushStateLocked(sessionID, state)
}

func (m *OutputFlushManager) flushStateLocked(
	sessionID string,
	state *sessionOutputState,
) (sessionOutputChunk, bool) {
	if state == nil || state.buf == nil || state.buf.Len() == 0 {
		return sessionOutputChunk{}, false
	}
	data := append([]byte(nil), state.buf.Bytes()...)
	state.buf.Reset()
	state.pendingSince = time.Time{}
	return sessionOutputChunk{sessionID: sessionID, data: data}, len(data) > 0
}

func (m *OutputFlushManager) releaseStateLocked(state *sessionOutputState) {
	if state == nil || state.buf == nil {
		return
	}
	state.buf.Reset()
	outputBufferPool.Put(state.buf)
	state.buf = nil
}

func (m *OutputFlushManager) emitChunks(chunks []sessionOutputChunk) {
	for _, chunk := range chunks {
		if len(chunk.data) == 0 {
			continue
		}
		m.emit(chunk.sessionID, chunk.data)
	}
}

// Stop stops the manager and flushes pending data.
func (m *OutputFlushManager) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		started := m.started
		m.mu.Unlock()

		if !started {
			m.flushAll()
			close(m.doneCh)
			return
		}
		close(m.stopCh)
		<-m.doneCh
	})
}
