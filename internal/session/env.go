package session

import (
	"os"
	"strings"
)

// environFn is a test seam over the inherited environment.
var environFn = os.Environ

// buildEnv merges the caller overlay onto the inherited environment,
// force-sets terminal capability variables, and prepends well-known tool
// install directories to PATH so GUI-launched shells see the same tools a
// login shell would.
func buildEnv(overlay map[string]string) []string {
	merged := map[string]string{}
	order := []string{}

	record := func(key, value string) {
		if _, seen := merged[key]; !seen {
			order = append(order, key)
		}
		merged[key] = value
	}

	for _, kv := range environFn() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		record(key, value)
	}
	for key, value := range overlay {
		record(key, value)
	}

	record("TERM", "xterm-256color")
	record("COLORTERM", "truecolor")

	pathKey := envPathKey(order)
	record(pathKey, prependToolDirs(merged[pathKey]))

	env := make([]string, 0, len(order))
	for _, key := range order {
		env = append(env, key+"="+merged[key])
	}
	return env
}

// envPathKey finds the PATH variable's actual spelling. Windows environments
// commonly carry "Path"; matching case-insensitively avoids a duplicate
// entry that would shadow the original.
func envPathKey(keys []string) string {
	for _, key := range keys {
		if strings.EqualFold(key, "PATH") {
			return key
		}
	}
	return "PATH"
}

// prependToolDirs puts the platform's well-known tool directories at the
// front of path, skipping entries already present and directories that do
// not exist.
func prependToolDirs(path string) string {
	sep := string(os.PathListSeparator)
	present := map[string]bool{}
	for _, entry := range strings.Split(path, sep) {
		present[entry] = true
	}

	var prefix []string
	for _, dir := range extraToolDirs() {
		if dir == "" || present[dir] {
			continue
		}
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			continue
		}
		prefix = append(prefix, dir)
		present[dir] = true
	}

	if len(prefix) == 0 {
		return path
	}
	if path == "" {
		return strings.Join(prefix, sep)
	}
	return strings.Join(prefix, sep) + sep + path
}
