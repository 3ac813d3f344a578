package agentdetect

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"agentterm/internal/procutil"
	"agentterm/internal/wsl"
)

// runVersionFn executes a resolved binary with its version flag. Seam for
// tests; the production implementation shells out with the probe context.
var runVersionFn = func(ctx context.Context, path string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	procutil.HideWindow(cmd)
	return cmd.CombinedOutput()
}

// wslRunFn is a seam over the WSL bridge.
var wslRunFn = wsl.Run

// DetectAll probes every built-in agent plus the supplied custom agents
// concurrently and returns one record per probe. No probe failure aborts the
// batch; a failed or timed-out probe yields an uninstalled record (native)
// or no record (WSL). Aggregate latency is bounded by the slowest single
// probe, not the sum.
func DetectAll(ctx context.Context, customAgents []CustomAgent, opts Options) Result {
	targets := mergeTargets(customAgents)
	includeWSL := opts.IncludeWSL && runtime.GOOS == "windows"

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	native := make([]AgentCliInfo, len(targets))
	wslRecords := make([]*AgentCliInfo, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(slot int, t probeTarget) {
			defer wg.Done()
			native[slot] = probeNative(ctx, t, timeout)
		}(i, target)

		if includeWSL {
			wg.Add(1)
			go func(slot int, t probeTarget) {
				defer wg.Done()
				if info, ok := probeWSL(ctx, t, timeout); ok {
					wslRecords[slot] = &info
				}
			}(i, target)
		}
	}
	wg.Wait()

	agents := make([]AgentCliInfo, 0, len(targets)*2)
	for i := range targets {
		agents = append(agents, native[i])
		if wslRecords[i] != nil {
			agents = append(agents, *wslRecords[i])
		}
	}
	return Result{Agents: agents}
}

// DetectOne probes a single agent natively, for on-demand refresh of one
// entry. custom may override a built-in's command under the shared id.
func DetectOne(ctx context.Context, id string, custom *CustomAgent) AgentCliInfo {
	target := probeTarget{id: id, command: id, versionArgs: []string{"--version"}}
	for _, b := range builtinAgents {
		if b.id == id {
			target = b
			break
		}
	}
	if custom != nil && custom.Command != "" {
		target.command = custom.Command
	}
	return probeNative(ctx, target, defaultProbeTimeout)
}

// mergeTargets unions the built-in table with custom agents. A custom agent
// whose id matches a built-in replaces the built-in's command in place so
// the record keeps its table position; new ids are appended in caller order.
func mergeTargets(customAgents []CustomAgent) []probeTarget {
	targets := make([]probeTarget, len(builtinAgents))
	copy(targets, builtinAgents)

	index := make(map[string]int, len(targets))
	for i, t := range targets {
		index[t.id] = i
	}

	for _, custom := range customAgents {
		if custom.ID == "" || custom.Command == "" {
			continue
		}
		if i, ok := index[custom.ID]; ok {
			targets[i].command = custom.Command
			continue
		}
		index[custom.ID] = len(targets)
		targets = append(targets, probeTarget{
			id:          custom.ID,
			command:     custom.Command,
			versionArgs: []string{"--version"},
		})
	}
	return targets
}

// probeNative checks the host search path for the target command and, when
// found, invokes it with its version flag under a per-probe timeout. Every
// failure mode collapses into an uninstalled record.
func probeNative(ctx context.Context, target probeTarget, timeout time.Duration) AgentCliInfo {
	info := AgentCliInfo{ID: target.id, Environment: EnvNative}

	path, err := lookPathFn(target.command)
	if err != nil {
		return info
	}
	info.Path = path

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := runVersionFn(probeCtx, path, target.versionArgs)
	if err != nil {
		slog.Debug("[DEBUG-AGENT] version probe failed",
			"agent", target.id, "path", path, "error", err)
		return info
	}

	version := firstLine(out)
	if version == "" {
		return info
	}
	info.Installed = true
	info.Version = version
	return info
}

// probeWSL runs the version probe inside the default WSL distribution
// through a login shell, so PATH additions from profile files apply. A
// record is produced only on success; WSL being absent is zero records, not
// an error.
func probeWSL(ctx context.Context, target probeTarget, timeout time.Duration) (AgentCliInfo, bool) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	script := target.command + " " + strings.Join(target.versionArgs, " ")
	out, err := wslRunFn(probeCtx, "", "sh", "-lc", script)
	if err != nil {
		return AgentCliInfo{}, false
	}
	version := firstLine(out)
	if version == "" {
		return AgentCliInfo{}, false
	}
	return AgentCliInfo{
		ID:          target.id,
		Installed:   true,
		Version:     version,
		Environment: EnvWSL,
	}, true
}

// firstLine returns the first non-empty trimmed line of probe output.
func firstLine(out []byte) string {
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line != "" {
			return line
		}
	}
	return ""
}
