//go:build windows

package rcp

// syncDir is a no-op on Windows, directories cannot be fsynced there.
func syncDir(string) error { return nil }
