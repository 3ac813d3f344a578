// Package wsl exposes the Windows Subsystem for Linux launcher as a small
// bridge: listing installed distributions and running a command inside one.
// On non-Windows platforms every operation reports "unavailable" so callers
// can probe unconditionally.
package wsl

import (
	"bytes"
	"errors"
	"strings"
	"time"
	"unicode/utf16"
)

// ErrUnavailable is returned by Run when the WSL launcher is not present on
// this host. Absence of WSL is an expected condition, not a failure; callers
// should treat it as "zero distributions".
var ErrUnavailable = errors.New("wsl launcher not available")

const (
	// listTimeout bounds `wsl.exe --list --quiet`. The launcher normally
	// answers in well under a second; a hung WSL service must not stall a
	// shell inventory scan.
	listTimeout = 3 * time.Second
)

// decodeLauncherOutput normalizes wsl.exe output into a UTF-8 string.
// The launcher emits UTF-16LE (with or without a BOM) on most Windows
// builds, but plain UTF-8 when WSL_UTF8=1 is set. Detect UTF-16 by the BOM
// or by NUL bytes in the first few characters.
func decodeLauncherOutput(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFF && raw[1] == 0xFE {
		return decodeUTF16LE(raw[2:])
	}
	if bytes.IndexByte(raw[:min(len(raw), 8)], 0) >= 0 {
		return decodeUTF16LE(raw)
	}
	return string(raw)
}

func decodeUTF16LE(raw []byte) string {
	u16 := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		u16 = append(u16, uint16(raw[i])|uint16(raw[i+1])<<8)
	}
	return string(utf16.Decode(u16))
}

// parseDistroList extracts distribution names from `wsl --list --quiet`
// output. One name per line; blank lines and CR line endings are stripped.
// Order is preserved as reported by the launcher.
func parseDistroList(raw []byte) []string {
	text := decodeLauncherOutput(raw)
	var distros []string
	for _, line := range strings.Split(text, "\n") {
		name := strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if name == "" {
			continue
		}
		distros = append(distros, name)
	}
	return distros
}
