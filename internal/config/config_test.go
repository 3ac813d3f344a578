package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"agentterm/internal/agentdetect"
	"agentterm/internal/shellres"
)

// withConfigDir redirects the default config directory to a temp dir so
// Save path validation passes, and returns the default config file path.
func withConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig := defaultConfigDirFn
	defaultConfigDirFn = func() (string, error) { return dir, nil }
	t.Cleanup(func() { defaultConfigDirFn = orig })
	return filepath.Join(dir, "config.yaml")
}

func TestPathWithinDir(t *testing.T) {
	baseDir := t.TempDir()
	configDir := filepath.Join(baseDir, "config")

	tests := []struct {
		name string
		path string
		dir  string
		want bool
	}{
		{name: "same path", path: configDir, dir: configDir, want: true},
		{name: "subdirectory path", path: filepath.Join(configDir, "sub", "config.yaml"), dir: configDir, want: true},
		{name: "traversal path", path: filepath.Join(configDir, "..", "outside.yaml"), dir: configDir, want: false},
		{name: "different path", path: filepath.Join(baseDir, "other", "config.yaml"), dir: configDir, want: false},
	}
	if runtime.GOOS == "windows" {
		tests = append(tests, struct {
			name string
			path string
			dir  string
			want bool
		}{name: "different drive", path: `D:\outside\config.yaml`, dir: `C:\inside`, want: false})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pathWithinDir(tt.path, tt.dir); got != tt.want {
				t.Fatalf("pathWithinDir(%q, %q) = %v, want %v", tt.path, tt.dir, got, tt.want)
			}
		})
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Fatalf("Load on missing file = %+v, want defaults %+v", cfg, DefaultConfig())
	}
}

func TestLoadEmptyPathErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("Load(\"\") should fail")
	}
}

func TestLoadInvalidYAMLReturnsDefaultsWithError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("shell: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err == nil {
		t.Fatal("Load should report parse error")
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Fatalf("Load on broken file = %+v, want defaults", cfg)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := withConfigDir(t)

	in := DefaultConfig()
	in.Shell = shellres.ShellConfig{Type: shellres.ShellZsh}
	in.SessionEnv = map[string]string{"EDITOR": "vim"}
	in.CustomAgents = []agentdetect.CustomAgent{
		{ID: "myagent", Name: "My Agent", Command: "myagent"},
	}
	in.WebSocketPort = 9100
	in.AgentProbeTimeoutSeconds = 5

	saved, err := Save(path, in)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(loaded, saved) {
		t.Fatalf("roundtrip mismatch:\nsaved  %+v\nloaded %+v", saved, loaded)
	}
	if loaded.Shell.Type != shellres.ShellZsh {
		t.Fatalf("Shell.Type = %q, want zsh", loaded.Shell.Type)
	}
}

func TestSaveRejectsPathOutsideConfigDir(t *testing.T) {
	withConfigDir(t)
	outside := filepath.Join(t.TempDir(), "elsewhere.yaml")
	if _, err := Save(outside, DefaultConfig()); err == nil {
		t.Fatal("Save outside config dir should fail")
	}
}

func TestEnsureFileCreatesDefault(t *testing.T) {
	path := withConfigDir(t)
	cfg, err := EnsureFile(path)
	if err != nil {
		t.Fatalf("EnsureFile: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Fatalf("EnsureFile = %+v, want defaults", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}
}

func TestValidationClampsAndDrops(t *testing.T) {
	cfg := Config{
		Shell:                    shellres.ShellConfig{Type: shellres.ShellBash},
		WebSocketPort:            70000,
		AgentProbeTimeoutSeconds: 600,
		SessionEnv: map[string]string{
			"GOOD":    "1",
			"TERM":    "dumb",
			"BAD KEY": "x",
			"":        "y",
		},
		CustomAgents: []agentdetect.CustomAgent{
			{ID: "a", Command: "a-cli"},
			{ID: "a", Command: "dup"},
			{ID: "", Command: "no-id"},
			{ID: "no-command", Command: "  "},
		},
	}
	applyDefaultsAndValidate(&cfg)

	if cfg.WebSocketPort != 0 {
		t.Fatalf("WebSocketPort = %d, want 0 after clamp", cfg.WebSocketPort)
	}
	if cfg.AgentProbeTimeoutSeconds != maxProbeTimeoutSeconds {
		t.Fatalf("AgentProbeTimeoutSeconds = %d, want %d", cfg.AgentProbeTimeoutSeconds, maxProbeTimeoutSeconds)
	}
	if !reflect.DeepEqual(cfg.SessionEnv, map[string]string{"GOOD": "1"}) {
		t.Fatalf("SessionEnv = %v, want only GOOD", cfg.SessionEnv)
	}
	if len(cfg.CustomAgents) != 1 || cfg.CustomAgents[0].ID != "a" || cfg.CustomAgents[0].Command != "a-cli" {
		t.Fatalf("CustomAgents = %+v, want single a/a-cli entry", cfg.CustomAgents)
	}
}

func TestValidationZeroProbeTimeoutMeansDefault(t *testing.T) {
	cfg := Config{Shell: shellres.ShellConfig{Type: shellres.ShellDefault}}
	applyDefaultsAndValidate(&cfg)
	if cfg.AgentProbeTimeoutSeconds != 0 {
		t.Fatalf("AgentProbeTimeoutSeconds = %d, want 0 (library default)", cfg.AgentProbeTimeoutSeconds)
	}
}

func TestReadLimitedFileRejectsOversize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.yaml")
	if err := os.WriteFile(path, []byte(strings.Repeat("a", 32)), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := readLimitedFile(path, 16); err == nil {
		t.Fatal("readLimitedFile should reject oversize file")
	}
	raw, err := readLimitedFile(path, 64)
	if err != nil {
		t.Fatalf("readLimitedFile under limit: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("len = %d, want 32", len(raw))
	}
}

func TestReadLimitedFileMissing(t *testing.T) {
	_, err := readLimitedFile(filepath.Join(t.TempDir(), "nope.yaml"), 16)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	src := DefaultConfig()
	src.SessionEnv = map[string]string{"A": "1"}
	src.CustomAgents = []agentdetect.CustomAgent{{ID: "x", Command: "x-cli"}}
	src.Shell.CustomArgs = []string{"-l"}

	dst := Clone(src)
	dst.SessionEnv["A"] = "2"
	dst.CustomAgents[0].ID = "y"
	dst.Shell.CustomArgs[0] = "-i"

	if src.SessionEnv["A"] != "1" {
		t.Fatal("SessionEnv shared between clone and source")
	}
	if src.CustomAgents[0].ID != "x" {
		t.Fatal("CustomAgents shared between clone and source")
	}
	if src.Shell.CustomArgs[0] != "-l" {
		t.Fatal("Shell.CustomArgs shared between clone and source")
	}
}
