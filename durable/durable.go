// Package durable writes files so that a crash leaves either the old or the
// new contents on disk, never a truncated mix.
package durable

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// Fdatasync triggers the fastest fsync-like operation that ensures
// durability of the data written to f. It might be faster than f.Sync()
// thanks to not syncing metadata like modification times.
//
// WARNING: ERRORS RETURNED BY THIS FUNCTION ARE NOT RECOVERABLE. Many
// operating systems mark dirty pages as clean after a failed fsync, so the
// data on disk might not match what was written even if a later sync
// succeeds.
func Fdatasync(f *os.File) error {
	return fdatasync(f)
}

// WriteFile replaces the file at path with data. The data goes into
// a temporary file in the same directory, which is synced and renamed over
// path, and then the directory itself is synced.
func WriteFile(path string, data []byte, perm fs.FileMode) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	f, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return err
	}
	var ok bool
	defer closeAndDeleteUnlessOK(f, &ok)

	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := Fdatasync(f); err != nil {
		return err
	}
	if err := f.Chmod(perm); err != nil && runtime.GOOS != "windows" {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return err
	}
	ok = true

	return SyncDir(dir)
}

// SyncDir makes a preceding rename or create inside dir durable. It is
// a no-op on Windows, which cannot open directories for syncing.
func SyncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func closeAndDeleteUnlessOK(f *os.File, ok *bool) {
	if *ok {
		return
	}
	f.Close()
	os.Remove(f.Name())
}
