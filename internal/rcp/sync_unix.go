//go:build !windows

package rcp

import "os"

// syncDir fsyncs a directory so renames and new entries survive a crash.
func syncDir(dir string) (err error) {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer closeWithError(f, &err)
	return f.Sync()
}
