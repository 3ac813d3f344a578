package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	"agentterm/internal/agentdetect"
	"agentterm/internal/shellres"
)

const (
	maxConfigFileBytes int64 = 1 << 20 // 1MB
	maxRenameRetry           = 10
	// Windows file lock releases (antivirus/indexing) typically settle quickly.
	// Use a short linear backoff: baseDelay * (1..maxRenameRetry).
	renameRetryBaseDelay = 10 * time.Millisecond
	// maxValidPort is the highest TCP/UDP port number (2^16 - 1).
	// Port 0 is valid and means "OS auto-assign".
	maxValidPort = 65535
	// Agent probe timeout bounds in seconds. Values outside the range are
	// clamped during validation rather than rejected.
	minProbeTimeoutSeconds = 1
	maxProbeTimeoutSeconds = 60
)

// defaultConfigDirFn is a test seam; tests override it to simulate
// directory-resolution failures in validateConfigPath.
var defaultConfigDirFn = defaultConfigDir
var userConfigDirFn = os.UserConfigDir
var userHomeDirFn = os.UserHomeDir

var defaultPathWarningState struct {
	mu       sync.Mutex
	messages []string
}

func recordDefaultPathWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	defaultPathWarningState.mu.Lock()
	defaultPathWarningState.messages = append(defaultPathWarningState.messages, trimmed)
	defaultPathWarningState.mu.Unlock()
}

// ConsumeDefaultPathWarnings returns and clears path-resolution warnings
// accumulated during DefaultPath() calls.
func ConsumeDefaultPathWarnings() []string {
	defaultPathWarningState.mu.Lock()
	defer defaultPathWarningState.mu.Unlock()
	if len(defaultPathWarningState.messages) == 0 {
		return nil
	}
	out := make([]string, len(defaultPathWarningState.messages))
	copy(out, defaultPathWarningState.messages)
	defaultPathWarningState.messages = nil
	return out
}

// Config is agentterm runtime configuration.
type Config struct {
	// Shell selects the login shell spawned for new sessions.
	Shell shellres.ShellConfig `yaml:"shell" json:"shell"`
	// SessionEnv contains extra environment variables applied to every
	// session in addition to the inherited process environment.
	SessionEnv map[string]string `yaml:"session_env,omitempty" json:"session_env,omitempty"`
	// CustomAgents are user-defined agent CLI entries probed alongside the
	// built-in catalog. An entry sharing an id with a built-in replaces
	// that built-in's probe command.
	CustomAgents []agentdetect.CustomAgent `yaml:"custom_agents,omitempty" json:"custom_agents,omitempty"`
	// IncludeWSLAgents enables the second per-agent probe inside the
	// default WSL distribution. Ignored on non-Windows platforms.
	IncludeWSLAgents bool `yaml:"include_wsl_agents" json:"include_wsl_agents"`
	// AgentProbeTimeoutSeconds bounds each individual agent version probe.
	// 0 means the built-in default.
	AgentProbeTimeoutSeconds int `yaml:"agent_probe_timeout_seconds" json:"agent_probe_timeout_seconds"`
	// TranscriptEnabled turns on persistent session output recording.
	TranscriptEnabled bool `yaml:"transcript_enabled" json:"transcript_enabled"`
	// TranscriptPath overrides the transcript database location.
	// Empty string means "next to the config file".
	TranscriptPath string `yaml:"transcript_path,omitempty" json:"transcript_path,omitempty"`
	// WebSocketPort is the port for the local WebSocket server used for
	// high-throughput session data streaming. 0 (default) lets the OS
	// assign an available port, which is recommended to avoid conflicts.
	WebSocketPort int `yaml:"websocket_port" json:"websocket_port"`
	// DefaultSessionDir is the working directory for new sessions.
	// Empty string means "use the user home directory".
	DefaultSessionDir string `yaml:"default_session_dir,omitempty" json:"default_session_dir,omitempty"`
}

// blockedSessionEnvKeys are variables the session layer owns; user values
// would be silently overwritten at spawn time, so reject them up front.
var blockedSessionEnvKeys = map[string]struct{}{
	"TERM":      {},
	"COLORTERM": {},
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Shell:            shellres.ShellConfig{Type: shellres.ShellDefault},
		IncludeWSLAgents: runtime.GOOS == "windows",
	}
}

// DefaultPath resolves the config file path, preferring the OS user config
// directory, falling back to ~/.config when it is unavailable, and then to
// os.TempDir() if the home directory cannot be resolved.
// The temp-dir fallback is not a stable persistence location and may vary
// between sessions depending on environment configuration.
func DefaultPath() string {
	base, err := userConfigDirFn()
	if err != nil || strings.TrimSpace(base) == "" {
		home, homeErr := userHomeDirFn()
		if homeErr != nil {
			// Keep config path resolvable even in restricted environments.
			slog.Warn("[WARN-CONFIG] using temp dir as config path fallback", "error", homeErr)
			recordDefaultPathWarning(
				"Config path fallback: failed to resolve user config and home directories. Using temp directory; settings persistence may be limited.",
			)
			base = os.TempDir()
		} else {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, "agentterm", "config.yaml")
}

// Load reads the config file. If the file does not exist, defaults are
// returned. Loaded values are normalized and validated; invalid entries are
// dropped or clamped with a warning rather than failing the load.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, errors.New("config path required")
	}

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		slog.Warn("[WARN-CONFIG] failed to parse config, using defaults", "path", path, "error", err)
		return DefaultConfig(), err
	}
	applyDefaultsAndValidate(&cfg)
	return cfg, nil
}

// EnsureFile writes the default config if missing and returns the loaded config.
func EnsureFile(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Clone returns a deep copy of cfg.
// Use this when sharing config snapshots across goroutines or package boundaries.
func Clone(src Config) Config {
	dst := src

	if src.SessionEnv != nil {
		dst.SessionEnv = make(map[string]string, len(src.SessionEnv))
		maps.Copy(dst.SessionEnv, src.SessionEnv)
	}
	if src.CustomAgents != nil {
		dst.CustomAgents = make([]agentdetect.CustomAgent, len(src.CustomAgents))
		copy(dst.CustomAgents, src.CustomAgents)
	}
	if src.Shell.CustomArgs != nil {
		dst.Shell.CustomArgs = make([]string, len(src.Shell.CustomArgs))
		copy(dst.Shell.CustomArgs, src.Shell.CustomArgs)
	}

	return dst
}

// Save validates cfg, fills defaults, and atomically writes to path.
// Returns the normalized config that was actually written to disk.
func Save(path string, cfg Config) (Config, error) {
	normalizedPath, err := validateConfigPath(path)
	if err != nil {
		return cfg, err
	}
	applyDefaultsAndValidate(&cfg)

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := atomicWrite(normalizedPath, raw); err != nil {
		return cfg, err
	}
	slog.Debug("[DEBUG-CONFIG] config saved", "path", path)
	return cfg, nil
}

// atomicWrite writes config data using temp-file + rename to avoid partial
// writes and retries rename on Windows to tolerate transient file locks.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save config: mkdir: %w", err)
	}

	// Atomic write: temp file + rename in same directory ensures
	// same-filesystem rename and prevents partial writes on crash.
	tmpFile, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save config: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[WARN-CONFIG] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[WARN-CONFIG] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("save config: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("save config: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("save config: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("save config: close: %w", err)
	}

	if err = renameFileWithRetry(tmpPath, path); err != nil {
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

// validateConfigPath normalizes path and enforces that config writes stay
// inside the default config directory when that directory is resolvable.
func validateConfigPath(path string) (string, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return "", errors.New("config path required")
	}
	absolutePath, err := filepath.Abs(trimmedPath)
	if err != nil {
		return "", fmt.Errorf("save config: resolve path: %w", err)
	}

	expectedDir, err := defaultConfigDirFn()
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	absoluteExpectedDir, err := filepath.Abs(expectedDir)
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	if !pathWithinDir(absolutePath, absoluteExpectedDir) {
		return "", fmt.Errorf("save config: path outside config directory: %q", absolutePath)
	}

	return absolutePath, nil
}

func defaultConfigDir() (string, error) {
	return filepath.Dir(DefaultPath()), nil
}

// pathWithinDir blocks directory traversal by ensuring path is under dir.
// It also rejects Windows cross-drive escapes because filepath.Rel returns
// an absolute path when roots differ.
func pathWithinDir(path string, dir string) bool {
	relativePath, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	if relativePath == "." {
		return true
	}
	if relativePath == ".." || strings.HasPrefix(relativePath, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(relativePath)
}

// applyDefaultsAndValidate fills missing defaults and validates cfg in-place.
// MUTATES: cfg is directly modified.
// Used by both Load and Save to ensure consistent normalization.
func applyDefaultsAndValidate(cfg *Config) {
	if isZeroConfig(*cfg) {
		*cfg = DefaultConfig()
		return
	}
	if cfg.Shell.Type == "" {
		cfg.Shell.Type = shellres.ShellDefault
	}
	validateWebSocketPort(cfg)
	validateProbeTimeout(cfg)
	cfg.SessionEnv = sanitizeSessionEnv(cfg.SessionEnv)
	cfg.CustomAgents = sanitizeCustomAgents(cfg.CustomAgents)
}

func validateWebSocketPort(cfg *Config) {
	if cfg.WebSocketPort < 0 || cfg.WebSocketPort > maxValidPort {
		slog.Warn("[WARN-CONFIG] websocket_port out of range, using auto-assign",
			"port", cfg.WebSocketPort)
		cfg.WebSocketPort = 0
	}
}

func validateProbeTimeout(cfg *Config) {
	if cfg.AgentProbeTimeoutSeconds == 0 {
		return
	}
	if cfg.AgentProbeTimeoutSeconds < minProbeTimeoutSeconds {
		slog.Warn("[WARN-CONFIG] agent_probe_timeout_seconds too small, clamping",
			"value", cfg.AgentProbeTimeoutSeconds, "min", minProbeTimeoutSeconds)
		cfg.AgentProbeTimeoutSeconds = minProbeTimeoutSeconds
	}
	if cfg.AgentProbeTimeoutSeconds > maxProbeTimeoutSeconds {
		slog.Warn("[WARN-CONFIG] agent_probe_timeout_seconds too large, clamping",
			"value", cfg.AgentProbeTimeoutSeconds, "max", maxProbeTimeoutSeconds)
		cfg.AgentProbeTimeoutSeconds = maxProbeTimeoutSeconds
	}
}

// sanitizeSessionEnv drops entries with invalid names or keys owned by the
// session layer. Returns nil when no valid entries remain.
func sanitizeSessionEnv(entries map[string]string) map[string]string {
	if len(entries) == 0 {
		return nil
	}
	out := make(map[string]string, len(entries))
	for key, value := range entries {
		name := strings.TrimSpace(key)
		if name == "" || strings.ContainsAny(name, "= \t") {
			slog.Warn("[WARN-CONFIG] dropping session_env entry with invalid name", "key", key)
			continue
		}
		if _, blocked := blockedSessionEnvKeys[strings.ToUpper(name)]; blocked {
			slog.Warn("[WARN-CONFIG] dropping reserved session_env entry", "key", name)
			continue
		}
		out[name] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// sanitizeCustomAgents drops entries missing an id or command and collapses
// duplicate ids, keeping the first occurrence.
func sanitizeCustomAgents(agents []agentdetect.CustomAgent) []agentdetect.CustomAgent {
	if len(agents) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(agents))
	out := make([]agentdetect.CustomAgent, 0, len(agents))
	for _, agent := range agents {
		id := strings.TrimSpace(agent.ID)
		command := strings.TrimSpace(agent.Command)
		if id == "" || command == "" {
			slog.Warn("[WARN-CONFIG] dropping custom agent missing id or command",
				"id", agent.ID, "command", agent.Command)
			continue
		}
		if _, dup := seen[id]; dup {
			slog.Warn("[WARN-CONFIG] dropping duplicate custom agent", "id", id)
			continue
		}
		seen[id] = struct{}{}
		agent.ID = id
		agent.Command = command
		out = append(out, agent)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	limited := io.LimitReader(file, maxBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}

func isZeroConfig(cfg Config) bool {
	// reflect.DeepEqual guards against field-addition drift that manual checks miss.
	return reflect.DeepEqual(cfg, Config{})
}

func renameFileWithRetry(sourcePath string, targetPath string) error {
	var lastErr error
	for attempt := range maxRenameRetry {
		err := os.Rename(sourcePath, targetPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if runtime.GOOS != "windows" {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * renameRetryBaseDelay)
	}
	return lastErr
}
