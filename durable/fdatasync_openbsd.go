package durable

import (
	"os"

	"golang.org/x/sys/unix"
)

// OpenBSD has no fdatasync(2) in the syscall package.
func fdatasync(f *os.File) error {
	return unix.Fsync(int(f.Fd()))
}
