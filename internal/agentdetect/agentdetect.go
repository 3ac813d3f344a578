// Package agentdetect discovers installed AI-agent command-line tools.
//
// Detection fans out one probe per (agent, environment) pair: every probe
// carries its own timeout and its failure degrades to a "not installed"
// record without affecting sibling probes. On Windows each built-in agent is
// optionally probed a second time through the WSL bridge.
package agentdetect

import (
	"os/exec"
	"time"
)

// Environment tags where an agent installation was found.
type Environment string

const (
	EnvNative Environment = "native"
	EnvWSL    Environment = "wsl"
)

// defaultProbeTimeout bounds a single version invocation. Low single-digit
// seconds: long enough for a cold Node.js CLI start, short enough that a
// hung binary cannot stall a scan.
const defaultProbeTimeout = 3 * time.Second

// AgentCliInfo is one detection record. Installed is true only after a
// successful probe; Version is empty whenever Installed is false.
type AgentCliInfo struct {
	ID          string      `json:"id"`
	Installed   bool        `json:"installed"`
	Version     string      `json:"version,omitempty"`
	Path        string      `json:"path,omitempty"`
	Environment Environment `json:"environment"`
}

// CustomAgent is a user-defined agent CLI. Externally owned configuration;
// read-only input to the detector. A CustomAgent whose ID collides with a
// built-in overrides the built-in's command but is reported under the shared
// ID.
type CustomAgent struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Command     string `json:"command" yaml:"command"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Options configures a DetectAll scan.
type Options struct {
	// IncludeWSL adds a second probe per built-in agent through the WSL
	// bridge. Only effective on Windows; elsewhere it is ignored.
	IncludeWSL bool `json:"include_wsl"`
	// Timeout overrides the per-probe bound. Zero means the default.
	Timeout time.Duration `json:"-"`
}

// Result is the aggregate of one DetectAll scan.
type Result struct {
	Agents []AgentCliInfo `json:"agents"`
}

// probeTarget is one resolved probe: an agent id plus the command to look
// up. Built-ins and customs normalize into this before fan-out.
type probeTarget struct {
	id          string
	command     string
	versionArgs []string
}

// builtinAgents is the fixed probe table, in the stable order DetectAll
// reports records.
var builtinAgents = []probeTarget{
	{id: "claude", command: "claude", versionArgs: []string{"--version"}},
	{id: "codex", command: "codex", versionArgs: []string{"--version"}},
	{id: "gemini", command: "gemini", versionArgs: []string{"--version"}},
	{id: "opencode", command: "opencode", versionArgs: []string{"--version"}},
	{id: "amp", command: "amp", versionArgs: []string{"--version"}},
	{id: "qwen", command: "qwen", versionArgs: []string{"--version"}},
	{id: "copilot", command: "copilot", versionArgs: []string{"--version"}},
	{id: "aider", command: "aider", versionArgs: []string{"--version"}},
}

// Test seams; production code never reassigns these.
var (
	lookPathFn = exec.LookPath
)
