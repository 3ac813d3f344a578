package shellres

import (
	"context"
	"runtime"
	"time"

	"agentterm/internal/wsl"
)

// scanTimeout bounds one full inventory scan. Native candidate probes are
// stat-level and effectively instant; the bound exists for the WSL
// distribution listing, which shells out to the launcher.
const scanTimeout = 5 * time.Second

// listDistrosFn is a test seam over the WSL bridge.
var listDistrosFn = wsl.ListDistros

// DetectShells scans the host for interactive shells. The returned order is
// deterministic: the platform candidate table in declaration order, then (on
// Windows) one entry per installed WSL distribution. Candidates whose binary
// is missing are included with Available=false. Results are computed fresh
// on every call; nothing is cached.
func DetectShells(ctx context.Context) []ShellInfo {
	ctx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	candidates := platformCandidates()
	infos := make([]ShellInfo, 0, len(candidates))
	for _, c := range candidates {
		path, ok := c.installedPath()
		infos = append(infos, ShellInfo{
			ID:        string(c.id),
			Name:      c.name,
			Path:      path,
			Args:      c.args,
			Available: ok,
		})
	}

	if runtime.GOOS == "windows" {
		for _, distro := range listDistrosFn(ctx) {
			infos = append(infos, ShellInfo{
				ID:        "wsl:" + distro,
				Name:      distro + " (WSL)",
				Path:      "wsl.exe",
				Args:      []string{"-d", distro},
				Available: true,
				WSL:       true,
			})
		}
	}

	return infos
}
