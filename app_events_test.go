package main

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"agentterm/internal/terminal"
)

// capturedEvent records one runtimeEventsEmitFn invocation.
type capturedEvent struct {
	name    string
	payload any
}

// eventRecorder swaps the runtime event seam for a thread-safe recorder.
// Tests using it mutate process-global state; do not use t.Parallel().
type eventRecorder struct {
	mu     sync.Mutex
	events []capturedEvent
}

func installEventRecorder(t *testing.T) *eventRecorder {
	t.Helper()
	rec := &eventRecorder{}
	orig := runtimeEventsEmitFn
	runtimeEventsEmitFn = func(_ context.Context, name string, data ...interface{}) {
		var payload any
		if len(data) > 0 {
			payload = data[0]
		}
		rec.mu.Lock()
		rec.events = append(rec.events, capturedEvent{name: name, payload: payload})
		rec.mu.Unlock()
	}
	t.Cleanup(func() { runtimeEventsEmitFn = orig })
	return rec
}

func (r *eventRecorder) snapshot() []capturedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]capturedEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *eventRecorder) waitFor(t *testing.T, name string) capturedEvent {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, evt := range r.snapshot() {
			if evt.name == name {
				return evt
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for event %q, got %v", name, r.snapshot())
	return capturedEvent{}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	app := NewApp()
	app.setRuntimeContext(context.Background())
	t.Cleanup(func() {
		app.stopOutputFlusher()
		app.setRuntimeContext(nil)
	})
	return app
}

func TestEmitRuntimeEventDroppedWithoutContext(t *testing.T) {
	rec := installEventRecorder(t)
	app := NewApp()

	app.emitRuntimeEvent("term:created", nil)

	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("events = %v, want none without runtime context", got)
	}
}

func TestHandleSessionDataFlowsToRuntimeEvent(t *testing.T) {
	rec := installEventRecorder(t)
	app := newTestApp(t)

	app.handleSessionData(3, []byte("hello"))

	evt := rec.waitFor(t, "term:data:3")
	data, ok := evt.payload.([]byte)
	if !ok || string(data) != "hello" {
		t.Fatalf("payload = %v, want %q bytes", evt.payload, "hello")
	}
}

func TestHandleSessionExitEmitsTermExit(t *testing.T) {
	rec := installEventRecorder(t)
	app := newTestApp(t)

	app.handleSessionExit(7, terminal.ExitStatus{Code: 2})

	evt := rec.waitFor(t, "term:exit:7")
	status, ok := evt.payload.(terminal.ExitStatus)
	if !ok || status.Code != 2 {
		t.Fatalf("payload = %v, want ExitStatus{Code: 2}", evt.payload)
	}
}

func TestHandleSessionExitFlushesTailOutputFirst(t *testing.T) {
	rec := installEventRecorder(t)
	app := newTestApp(t)

	// Buffer a tail chunk; it should be delivered before the exit event.
	app.handleSessionData(5, []byte("tail"))
	app.handleSessionExit(5, terminal.ExitStatus{Code: 0})

	rec.waitFor(t, "term:exit:5")
	dataIdx, exitIdx := -1, -1
	for i, evt := range rec.snapshot() {
		switch evt.name {
		case "term:data:5":
			if dataIdx == -1 {
				dataIdx = i
			}
		case "term:exit:5":
			exitIdx = i
		}
	}
	if dataIdx == -1 {
		t.Fatal("tail output chunk was never emitted")
	}
	if dataIdx > exitIdx {
		t.Fatalf("tail output emitted after exit: data at %d, exit at %d", dataIdx, exitIdx)
	}
}

func TestHandleSessionExitSuppressedDuringShutdown(t *testing.T) {
	rec := installEventRecorder(t)
	app := newTestApp(t)
	app.shuttingDown.Store(true)

	app.handleSessionExit(9, terminal.ExitStatus{Code: 0})

	time.Sleep(50 * time.Millisecond)
	for _, evt := range rec.snapshot() {
		if evt.name == "term:exit:9" {
			t.Fatal("exit event emitted during shutdown")
		}
	}
}

func TestEmitSessionChunkSkipsEmptyData(t *testing.T) {
	rec := installEventRecorder(t)
	app := newTestApp(t)

	app.emitSessionChunk("1", nil)

	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("events = %v, want none for empty chunk", got)
	}
}

func TestEnsureOutputFlusherIsIdempotent(t *testing.T) {
	app := newTestApp(t)

	first := app.ensureOutputFlusher()
	second := app.ensureOutputFlusher()
	if first != second {
		t.Fatal("ensureOutputFlusher returned distinct instances")
	}
}

func TestWaitWithTimeout(t *testing.T) {
	if !waitWithTimeout(func() {}, time.Second) {
		t.Fatal("immediate waitFn should complete within timeout")
	}
	block := make(chan struct{})
	defer close(block)
	if waitWithTimeout(func() { <-block }, 20*time.Millisecond) {
		t.Fatal("blocked waitFn should time out")
	}
}

func TestFormatRuntimeLogMessage(t *testing.T) {
	if got := formatRuntimeLogMessage("plain"); got != "plain" {
		t.Fatalf("got %q", got)
	}
	if got := formatRuntimeLogMessage("n=%d", 4); got != fmt.Sprintf("n=%d", 4) {
		t.Fatalf("got %q", got)
	}
}
