package bdb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/andreyvit/bdb/durable"
)

// Storage holds the encoded document as a single blob.
type Storage interface {
	// Exists reports whether a document has ever been written.
	Exists() (bool, error)

	// Prepare makes the storage ready for writing, e.g. by creating parent
	// directories. Called once by Open.
	Prepare() error

	// ReadAll returns the whole stored blob. Fails with an error wrapping
	// fs.ErrNotExist if nothing has been written yet.
	ReadAll() ([]byte, error)

	// WriteAll replaces the stored blob. Callers never observe a partially
	// written blob.
	WriteAll(data []byte) error

	// Close releases the storage. Safe to call multiple times.
	Close() error

	String() string
}

const defaultFilePerm fs.FileMode = 0o644

type fileStorage struct {
	path string
}

// FileStorage keeps the document in a plain file at path. Writes replace the
// file atomically.
func FileStorage(path string) Storage {
	return &fileStorage{path: path}
}

func (s *fileStorage) String() string {
	return s.path
}

func (s *fileStorage) Exists() (bool, error) {
	_, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

func (s *fileStorage) Prepare() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	return nil
}

func (s *fileStorage) ReadAll() ([]byte, error) {
	return os.ReadFile(s.path)
}

func (s *fileStorage) WriteAll(data []byte) error {
	perm := defaultFilePerm
	if st, err := os.Stat(s.path); err == nil {
		perm = st.Mode().Perm()
	}
	return durable.WriteFile(s.path, data, perm)
}

func (s *fileStorage) Close() error {
	return nil
}
