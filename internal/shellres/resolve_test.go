package shellres

import (
	"errors"
	"io/fs"
	"os"
	"reflect"
	"runtime"
	"testing"
	"time"
)

// fakeFileInfo satisfies fs.FileInfo for the stat seam.
type fakeFileInfo struct{ dir bool }

func (f fakeFileInfo) Name() string       { return "shell" }
func (f fakeFileInfo) Size() int64        { return 0 }
func (f fakeFileInfo) Mode() fs.FileMode  { return 0o755 }
func (f fakeFileInfo) ModTime() time.Time { return time.Time{} }
func (f fakeFileInfo) IsDir() bool        { return f.dir }
func (f fakeFileInfo) Sys() any           { return nil }

// withHost installs stat/lookPath/getenv seams describing a synthetic host
// and restores the real probes when the test finishes.
func withHost(t *testing.T, existing map[string]bool, pathable map[string]string, env map[string]string) {
	t.Helper()
	origStat, origLook, origGetenv := statFn, lookPathFn, getenvFn
	statFn = func(name string) (os.FileInfo, error) {
		if existing[name] {
			return fakeFileInfo{}, nil
		}
		return nil, fs.ErrNotExist
	}
	lookPathFn = func(name string) (string, error) {
		if p, ok := pathable[name]; ok {
			return p, nil
		}
		return "", errors.New("executable file not found in $PATH")
	}
	getenvFn = func(key string) string { return env[key] }
	t.Cleanup(func() {
		statFn, lookPathFn, getenvFn = origStat, origLook, origGetenv
	})
}

func TestResolveExplicitPathWinsVerbatim(t *testing.T) {
	withHost(t, nil, nil, nil)

	got := Resolve(ShellConfig{
		Type:       ShellBash,
		CustomPath: "/opt/weird/shell",
		CustomArgs: []string{"--rc", "none"},
	})

	want := ShellSpec{Path: "/opt/weird/shell", Args: []string{"--rc", "none"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Resolve() = %+v, want %+v", got, want)
	}
}

func TestResolveNeverReturnsEmptyPath(t *testing.T) {
	// Synthetic host with nothing installed and no SHELL env.
	withHost(t, nil, nil, nil)

	configs := []ShellConfig{
		{},
		{Type: ShellDefault},
		{Type: ShellCustom},
		{Type: ShellBash},
		{Type: ShellZsh},
		{Type: ShellFish},
		{Type: "not-a-shell"},
		{Type: ShellWSL, WSLDistro: "Ubuntu"},
	}
	for _, cfg := range configs {
		if spec := Resolve(cfg); spec.Path == "" {
			t.Errorf("Resolve(%+v) returned empty executable path", cfg)
		}
	}
}

func TestResolveSelectorMapsToInstalledLocation(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix candidate table")
	}
	withHost(t, map[string]bool{"/bin/bash": true}, nil, map[string]string{"SHELL": "/bin/sh"})

	got := Resolve(ShellConfig{Type: ShellBash})
	if got.Path != "/bin/bash" {
		t.Fatalf("Resolve(bash).Path = %q, want /bin/bash", got.Path)
	}
	if len(got.Args) == 0 || got.Args[0] != "-l" {
		t.Fatalf("Resolve(bash).Args = %v, want login flag", got.Args)
	}
	if got.WSL {
		t.Fatal("Resolve(bash).WSL = true, want false")
	}
}

func TestResolveUninstalledSelectorFallsBack(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix candidate table")
	}
	withHost(t, nil, nil, map[string]string{"SHELL": "/usr/bin/zsh"})

	got := Resolve(ShellConfig{Type: ShellFish})
	if got.Path != "/usr/bin/zsh" {
		t.Fatalf("Resolve(fish) on host without fish = %q, want $SHELL fallback", got.Path)
	}
}

func TestResolveSelectorViaPathSearch(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix candidate table")
	}
	withHost(t, nil, map[string]string{"fish": "/nix/store/abc/bin/fish"}, nil)

	got := Resolve(ShellConfig{Type: ShellFish})
	if got.Path != "/nix/store/abc/bin/fish" {
		t.Fatalf("Resolve(fish).Path = %q, want PATH-searched location", got.Path)
	}
}

func TestResolveWSLOnNonWindowsDegrades(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("non-Windows behavior")
	}
	withHost(t, nil, nil, map[string]string{"SHELL": "/bin/bash"})

	got := Resolve(ShellConfig{Type: ShellWSL, WSLDistro: "Ubuntu"})
	if got.WSL {
		t.Fatal("Resolve(wsl) on non-Windows should not produce a WSL spec")
	}
	if got.Path != "/bin/bash" {
		t.Fatalf("Resolve(wsl).Path = %q, want platform default", got.Path)
	}
}

func TestWSLSpec(t *testing.T) {
	got := wslSpec("Debian")
	want := ShellSpec{Path: "wsl.exe", Args: []string{"-d", "Debian"}, WSL: true}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("wslSpec(Debian) = %+v, want %+v", got, want)
	}

	if got := wslSpec(""); len(got.Args) != 0 || !got.WSL {
		t.Fatalf("wslSpec(\"\") = %+v, want launcher with no -d flag", got)
	}
}
