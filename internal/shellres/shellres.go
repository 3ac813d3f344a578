// Package shellres resolves symbolic shell selectors into concrete launch
// descriptors and scans the host for installed interactive shells.
//
// Resolution is a pure function of configuration plus read-only host probing
// (environment variables, file existence). It never fails: an unknown or
// uninstalled selector degrades to the platform default shell so that a
// session create call always has something to spawn.
package shellres

import (
	"os"
	"os/exec"
)

// ShellType is a symbolic shell selector.
type ShellType string

const (
	// ShellDefault selects the platform ambient default ($SHELL on Unix,
	// PowerShell on Windows).
	ShellDefault ShellType = "default"
	ShellBash    ShellType = "bash"
	ShellZsh     ShellType = "zsh"
	ShellFish    ShellType = "fish"
	ShellSh      ShellType = "sh"

	ShellPowerShell     ShellType = "powershell"
	ShellPowerShellCore ShellType = "pwsh"
	ShellCmd            ShellType = "cmd"
	ShellGitBash        ShellType = "gitbash"

	// ShellWSL selects a WSL-hosted distribution; ShellConfig.WSLDistro
	// names the distribution (empty means the default distribution).
	ShellWSL ShellType = "wsl"

	// ShellCustom selects an explicit executable supplied via
	// ShellConfig.CustomPath.
	ShellCustom ShellType = "custom"
)

// ShellConfig is the caller-supplied shell selection. It is read on every
// call and never stored by this package.
type ShellConfig struct {
	Type       ShellType `json:"type" yaml:"type"`
	CustomPath string    `json:"custom_path,omitempty" yaml:"custom_path,omitempty"`
	CustomArgs []string  `json:"custom_args,omitempty" yaml:"custom_args,omitempty"`
	WSLDistro  string    `json:"wsl_distro,omitempty" yaml:"wsl_distro,omitempty"`
}

// ShellSpec is a fully resolved launch descriptor. Immutable once produced;
// the executable path is never empty.
type ShellSpec struct {
	Path string   `json:"path"`
	Args []string `json:"args,omitempty"`
	WSL  bool     `json:"wsl"`
}

// ShellInfo is one inventory record from DetectShells. Records are produced
// fresh on every scan; a shell whose binary is absent is still reported with
// Available=false so the frontend can show it as installable-but-missing.
type ShellInfo struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Path      string   `json:"path"`
	Args      []string `json:"args,omitempty"`
	Available bool     `json:"available"`
	WSL       bool     `json:"wsl"`
}

// candidate is one row of the per-platform shell table. Paths are checked in
// order; the first existing one wins. An empty paths list means "search the
// PATH for lookup".
type candidate struct {
	id     ShellType
	name   string
	paths  []string
	lookup string
	args   []string
}

// Test seams. Overridden by tests to model hosts with different shells
// installed; production code never reassigns these.
var (
	getenvFn   = os.Getenv
	statFn     = os.Stat
	lookPathFn = exec.LookPath
)

// installedPath returns the first existing candidate path, falling back to a
// PATH search of the lookup name. ok is false when the shell is not
// installed; path then holds the conventional install location for display.
func (c candidate) installedPath() (path string, ok bool) {
	for _, p := range c.paths {
		if fi, err := statFn(p); err == nil && !fi.IsDir() {
			return p, true
		}
	}
	if c.lookup != "" {
		if p, err := lookPathFn(c.lookup); err == nil {
			return p, true
		}
	}
	if len(c.paths) > 0 {
		return c.paths[0], false
	}
	return c.lookup, false
}
