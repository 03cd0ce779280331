package bdb

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"sync"
)

var errStorageClosed = errors.New("storage closed")

type memStorage struct {
	mu     sync.Mutex
	data   []byte
	exists bool
	closed bool
}

// MemoryStorage returns a transient in-memory Storage, intended for tests and
// throwaway databases.
func MemoryStorage() Storage {
	return &memStorage{}
}

func (s *memStorage) String() string {
	return "memory"
}

func (s *memStorage) Prepare() error {
	return nil
}

func (s *memStorage) Exists() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, errStorageClosed
	}
	return s.exists, nil
}

func (s *memStorage) ReadAll() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errStorageClosed
	}
	if !s.exists {
		return nil, fmt.Errorf("%v: %w", s, fs.ErrNotExist)
	}
	return bytes.Clone(s.data), nil
}

func (s *memStorage) WriteAll(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStorageClosed
	}
	s.data = append(s.data[:0:0], data...)
	s.exists = true
	return nil
}

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = nil
	return nil
}
