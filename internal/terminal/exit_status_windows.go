//go:build windows

package terminal

import "os"

// signalName always returns "" on Windows; there is no Unix signal notion.
func signalName(_ *os.ProcessState) string { return "" }
