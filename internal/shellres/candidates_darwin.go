//go:build darwin

package shellres

// platformCandidates lists the native shells probed on macOS, in the stable
// order DetectShells reports them. Homebrew locations cover both Apple
// Silicon (/opt/homebrew) and Intel (/usr/local) installs.
func platformCandidates() []candidate {
	return []candidate{
		{id: ShellZsh, name: "Zsh", paths: []string{"/bin/zsh"}, lookup: "zsh", args: []string{"-l"}},
		{id: ShellBash, name: "Bash", paths: []string{"/opt/homebrew/bin/bash", "/usr/local/bin/bash", "/bin/bash"}, lookup: "bash", args: []string{"-l"}},
		{id: ShellFish, name: "Fish", paths: []string{"/opt/homebrew/bin/fish", "/usr/local/bin/fish"}, lookup: "fish", args: []string{"-l"}},
		{id: ShellSh, name: "sh", paths: []string{"/bin/sh"}, lookup: "sh", args: nil},
	}
}

// defaultSpec returns the ambient default shell: $SHELL when set, /bin/zsh
// otherwise (the macOS system default since Catalina).
func defaultSpec() ShellSpec {
	if sh := getenvFn("SHELL"); sh != "" {
		return ShellSpec{Path: sh, Args: []string{"-l"}}
	}
	return ShellSpec{Path: "/bin/zsh", Args: []string{"-l"}}
}
