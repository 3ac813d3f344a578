// Package procutil provides cross-platform process utilities.
// Currently exposes HideWindow, which prevents console window flash
// on Windows when launching child processes via exec.Command.
package procutil
