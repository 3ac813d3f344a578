package agentdetect

import (
	"context"
	"errors"
	"testing"
	"time"
)

// withProbes installs lookup/run seams describing a synthetic host and
// restores the real ones when the test finishes. installed maps command name
// to version-output; commands absent from the map are not on the search path.
func withProbes(t *testing.T, installed map[string]string) {
	t.Helper()
	origLook, origRun := lookPathFn, runVersionFn
	lookPathFn = func(name string) (string, error) {
		if _, ok := installed[name]; ok {
			return "/usr/local/bin/" + name, nil
		}
		return "", errors.New("executable file not found in $PATH")
	}
	runVersionFn = func(ctx context.Context, path string, args []string) ([]byte, error) {
		for name, out := range installed {
			if path == "/usr/local/bin/"+name {
				return []byte(out), nil
			}
		}
		return nil, errors.New("exec failed")
	}
	t.Cleanup(func() {
		lookPathFn, runVersionFn = origLook, origRun
	})
}

func TestDetectOneMissingBinary(t *testing.T) {
	withProbes(t, nil)

	info := DetectOne(context.Background(), "claude", nil)
	if info.Installed {
		t.Fatal("DetectOne(claude) on empty host reported installed")
	}
	if info.Version != "" {
		t.Fatalf("DetectOne(claude).Version = %q, want empty", info.Version)
	}
	if info.Environment != EnvNative {
		t.Fatalf("DetectOne(claude).Environment = %q, want native", info.Environment)
	}
}

func TestDetectOneParsesFirstLine(t *testing.T) {
	withProbes(t, map[string]string{"claude": "1.2.3 (Claude Code)\nbuild cafe\n"})

	info := DetectOne(context.Background(), "claude", nil)
	if !info.Installed {
		t.Fatal("DetectOne(claude) should report installed")
	}
	if info.Version != "1.2.3 (Claude Code)" {
		t.Fatalf("Version = %q, want first output line", info.Version)
	}
	if info.Path != "/usr/local/bin/claude" {
		t.Fatalf("Path = %q, want resolved path", info.Path)
	}
}

func TestDetectOneCustomOverridesCommand(t *testing.T) {
	withProbes(t, map[string]string{"my-claude-wrapper": "9.9.9\n"})

	custom := &CustomAgent{ID: "claude", Name: "Claude", Command: "my-claude-wrapper"}
	info := DetectOne(context.Background(), "claude", custom)
	if !info.Installed {
		t.Fatal("custom command should be probed instead of built-in")
	}
	if info.ID != "claude" {
		t.Fatalf("ID = %q, result must stay under the shared identifier", info.ID)
	}
}

func TestDetectAllPartialFailureIsolation(t *testing.T) {
	withProbes(t, map[string]string{"codex": "codex-cli 0.4.0\n"})
	// claude resolves on the path but its invocation fails.
	origLook := lookPathFn
	lookPathFn = func(name string) (string, error) {
		if name == "claude" || name == "codex" {
			return "/usr/local/bin/" + name, nil
		}
		return "", errors.New("not found")
	}
	t.Cleanup(func() { lookPathFn = origLook })

	result := DetectAll(context.Background(), nil, Options{})

	byID := map[string]AgentCliInfo{}
	for _, a := range result.Agents {
		byID[a.ID] = a
	}
	if byID["claude"].Installed {
		t.Error("claude probe failed, must report not installed")
	}
	if !byID["codex"].Installed {
		t.Error("codex probe succeeded, must report installed despite sibling failure")
	}
}

func TestDetectAllBoundedByHangingProbe(t *testing.T) {
	origLook, origRun := lookPathFn, runVersionFn
	lookPathFn = func(name string) (string, error) { return "/bin/" + name, nil }
	runVersionFn = func(ctx context.Context, path string, args []string) ([]byte, error) {
		// Simulate a hung binary: block until the per-probe deadline fires.
		<-ctx.Done()
		return nil, ctx.Err()
	}
	t.Cleanup(func() { lookPathFn, runVersionFn = origLook, origRun })

	start := time.Now()
	result := DetectAll(context.Background(), nil, Options{Timeout: 50 * time.Millisecond})
	elapsed := time.Since(start)

	// All probes hang; the scan must return around one probe timeout, not
	// timeout * probe count.
	if elapsed > time.Second {
		t.Fatalf("DetectAll took %v, fan-out is not concurrent", elapsed)
	}
	for _, a := range result.Agents {
		if a.Installed {
			t.Errorf("agent %q reported installed from a timed-out probe", a.ID)
		}
	}
}

func TestDetectAllStableOrderAndCustoms(t *testing.T) {
	withProbes(t, nil)

	customs := []CustomAgent{
		{ID: "goose", Name: "Goose", Command: "goose"},
		{ID: "claude", Name: "Claude fork", Command: "claude-fork"},
		{ID: "", Command: "ignored"},
		{ID: "no-command"},
	}
	result := DetectAll(context.Background(), customs, Options{})

	wantLen := len(builtinAgents) + 1 // goose appended, claude merged, invalid skipped
	if len(result.Agents) != wantLen {
		t.Fatalf("DetectAll returned %d records, want %d", len(result.Agents), wantLen)
	}
	for i, b := range builtinAgents {
		if result.Agents[i].ID != b.id {
			t.Fatalf("record %d = %q, want built-in order %q", i, result.Agents[i].ID, b.id)
		}
	}
	if last := result.Agents[len(result.Agents)-1]; last.ID != "goose" {
		t.Fatalf("last record = %q, want appended custom agent", last.ID)
	}
}

func TestMergeTargetsCollisionKeepsSharedID(t *testing.T) {
	targets := mergeTargets([]CustomAgent{{ID: "claude", Command: "claude-fork"}})
	if targets[0].id != "claude" || targets[0].command != "claude-fork" {
		t.Fatalf("merged target = %+v, want claude probed via claude-fork", targets[0])
	}
	if len(targets) != len(builtinAgents) {
		t.Fatalf("collision must not append a duplicate target")
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.0.0\n", "1.0.0"},
		{"\r\n  2.1\r\nnoise", "2.1"},
		{"", ""},
		{"\n\n", ""},
	}
	for _, tc := range tests {
		if got := firstLine([]byte(tc.in)); got != tc.want {
			t.Errorf("firstLine(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
