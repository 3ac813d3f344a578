//go:build !windows

package main

// setConsoleUTF8 is a no-op outside Windows; Unix terminals are UTF-8 native.
func setConsoleUTF8() {}
