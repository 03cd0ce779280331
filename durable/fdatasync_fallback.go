//go:build !linux && !openbsd

package durable

import "os"

func fdatasync(f *os.File) error {
	return f.Sync()
}
