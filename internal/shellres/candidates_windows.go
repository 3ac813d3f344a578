//go:build windows

package shellres

import "path/filepath"

// platformCandidates lists the native shells probed on Windows, in the
// stable order DetectShells reports them. WSL distributions are appended
// after these by the scanner.
func platformCandidates() []candidate {
	system32 := filepath.Join(getenvFn("SystemRoot"), "System32")
	programFiles := getenvFn("ProgramFiles")
	if programFiles == "" {
		programFiles = `C:\Program Files`
	}
	return []candidate{
		{
			id:     ShellPowerShell,
			name:   "Windows PowerShell",
			paths:  []string{filepath.Join(system32, "WindowsPowerShell", "v1.0", "powershell.exe")},
			lookup: "powershell.exe",
			args:   []string{"-NoLogo"},
		},
		{
			id:     ShellPowerShellCore,
			name:   "PowerShell 7",
			paths:  []string{filepath.Join(programFiles, "PowerShell", "7", "pwsh.exe")},
			lookup: "pwsh.exe",
			args:   []string{"-NoLogo"},
		},
		{
			id:     ShellCmd,
			name:   "Command Prompt",
			paths:  []string{filepath.Join(system32, "cmd.exe")},
			lookup: "cmd.exe",
		},
		{
			id:     ShellGitBash,
			name:   "Git Bash",
			paths:  []string{filepath.Join(programFiles, "Git", "bin", "bash.exe")},
			lookup: "",
			args:   []string{"-l"},
		},
	}
}

// defaultSpec returns Windows PowerShell, the fixed system default.
// powershell.exe ships with every supported Windows build, so the bare name
// is always resolvable through the search path.
func defaultSpec() ShellSpec {
	return ShellSpec{Path: "powershell.exe", Args: []string{"-NoLogo"}}
}
