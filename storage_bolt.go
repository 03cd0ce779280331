package bdb

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

var (
	boltBucketName  = []byte("bdb")
	boltDocumentKey = []byte("document")
)

type boltStorage struct {
	path string

	mu  sync.Mutex
	bdb *bbolt.DB
}

// BoltStorage keeps the encoded document as a single value inside a Bolt
// database file. Bolt's copy-on-write pages make every write crash-safe.
// The file is opened by Prepare and stays open until Close.
func BoltStorage(path string) Storage {
	return &boltStorage{path: path}
}

func (s *boltStorage) String() string {
	return "bolt:" + s.path
}

func (s *boltStorage) Prepare() error {
	_, err := s.db()
	return err
}

func (s *boltStorage) db() (*bbolt.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bdb != nil {
		return s.bdb, nil
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	bopt := *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	bdb, err := bbolt.Open(s.path, 0666, &bopt)
	if err != nil {
		return nil, fmt.Errorf("bolt: %w", err)
	}
	s.bdb = bdb
	return bdb, nil
}

func (s *boltStorage) Exists() (bool, error) {
	bdb, err := s.db()
	if err != nil {
		return false, err
	}
	var found bool
	err = bdb.View(func(btx *bbolt.Tx) error {
		if b := btx.Bucket(boltBucketName); b != nil {
			found = b.Get(boltDocumentKey) != nil
		}
		return nil
	})
	return found, err
}

func (s *boltStorage) ReadAll() ([]byte, error) {
	bdb, err := s.db()
	if err != nil {
		return nil, err
	}
	var data []byte
	err = bdb.View(func(btx *bbolt.Tx) error {
		b := btx.Bucket(boltBucketName)
		if b == nil {
			return fmt.Errorf("%v: %w", s, fs.ErrNotExist)
		}
		raw := b.Get(boltDocumentKey)
		if raw == nil {
			return fmt.Errorf("%v: %w", s, fs.ErrNotExist)
		}
		// raw is only valid until the end of the transaction
		data = bytes.Clone(raw)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *boltStorage) WriteAll(data []byte) error {
	bdb, err := s.db()
	if err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	return bdb.Update(func(btx *bbolt.Tx) error {
		b, err := btx.CreateBucketIfNotExists(boltBucketName)
		if err != nil {
			return err
		}
		return b.Put(boltDocumentKey, data)
	})
}

func (s *boltStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bdb == nil {
		return nil
	}
	err := s.bdb.Close()
	s.bdb = nil
	if err != nil {
		return fmt.Errorf("bolt: closing: %w", err)
	}
	return nil
}
