//go:build !windows

package wsl

import "context"

// Available always reports false on non-Windows platforms.
func Available() bool { return false }

// ListDistros returns no distributions on non-Windows platforms.
func ListDistros(_ context.Context) []string { return nil }

// Run always fails with ErrUnavailable on non-Windows platforms.
func Run(_ context.Context, _ string, _ ...string) ([]byte, error) {
	return nil, ErrUnavailable
}
