//go:build linux

package shellres

// platformCandidates lists the native shells probed on Linux, in the stable
// order DetectShells reports them.
func platformCandidates() []candidate {
	return []candidate{
		{id: ShellBash, name: "Bash", paths: []string{"/bin/bash", "/usr/bin/bash"}, lookup: "bash", args: []string{"-l"}},
		{id: ShellZsh, name: "Zsh", paths: []string{"/bin/zsh", "/usr/bin/zsh"}, lookup: "zsh", args: []string{"-l"}},
		{id: ShellFish, name: "Fish", paths: []string{"/usr/bin/fish", "/usr/local/bin/fish"}, lookup: "fish", args: []string{"-l"}},
		{id: ShellSh, name: "sh", paths: []string{"/bin/sh"}, lookup: "sh", args: nil},
	}
}

// defaultSpec returns the ambient default shell: $SHELL when set, /bin/sh
// otherwise. Login flag so profile files load in GUI-launched sessions.
func defaultSpec() ShellSpec {
	if sh := getenvFn("SHELL"); sh != "" {
		return ShellSpec{Path: sh, Args: []string{"-l"}}
	}
	return ShellSpec{Path: "/bin/sh"}
}
