package bdb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/andreyvit/bdb/dotpath"
)

const DefaultPath = "database.bdb"

type DB struct {
	storage  Storage
	logger   *slog.Logger
	verbose  bool
	autoSave bool

	mu   sync.Mutex
	prov provider

	readCount      atomic.Uint64
	writeCount     atomic.Uint64
	saveCount      atomic.Uint64
	saveErrorCount atomic.Uint64
	decodeCount    atomic.Uint64
	lastSize       atomic.Int64
}

type Options struct {
	// Path of the database file, DefaultPath if empty. Ignored when Storage
	// is set.
	Path string

	// NoAutoSave disables writing the document after every mutation; call
	// Save to persist.
	NoAutoSave bool

	// NoCache rereads the whole file on every operation instead of keeping
	// the document in memory.
	NoCache bool

	Storage Storage
	Logger  *slog.Logger
	Verbose bool
}

// Open opens or creates a database. A missing, empty or undecodable file
// yields an empty database; Open only fails when the storage cannot be
// prepared at all.
func Open(opt Options) (*DB, error) {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	st := opt.Storage
	if st == nil {
		if opt.Path == "" {
			opt.Path = DefaultPath
		}
		st = FileStorage(opt.Path)
	}

	if err := st.Prepare(); err != nil {
		return nil, fmt.Errorf("bdb: %v: %w", st, err)
	}

	db := &DB{
		storage:  st,
		logger:   opt.Logger,
		verbose:  opt.Verbose,
		autoSave: !opt.NoAutoSave,
	}

	if opt.NoCache {
		db.prov = openReadThrough(db)
	} else {
		db.prov = openCached(db)
	}
	return db, nil
}

func (db *DB) String() string {
	return db.storage.String()
}

// Close releases the underlying storage. Unsaved changes made with
// NoAutoSave are not written.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.storage.Close()
}

// Save writes the current document to storage. Failures are logged and
// returned; the in-memory state is unaffected.
func (db *DB) Save() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.prov.commit(db.prov.current(), true)
}

func (db *DB) read(f func(doc *dotpath.Map)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.readCount.Add(1)
	f(db.prov.current())
}

// write runs f against the current document. f reports whether it changed
// anything; only then is the document committed.
func (db *DB) write(f func(doc *dotpath.Map) bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	doc := db.prov.current()
	if !f(doc) {
		return
	}
	db.writeCount.Add(1)
	db.prov.commit(doc, db.autoSave)
}

// loadDocument reads and decodes the stored document. A storage that has
// never been written yields (nil, nil).
func (db *DB) loadDocument() (*dotpath.Map, []byte, error) {
	data, err := db.storage.ReadAll()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil
	} else if err != nil {
		return nil, nil, fmt.Errorf("bdb: reading %v: %w", db.storage, err)
	}
	db.decodeCount.Add(1)
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, data, err
	}
	return doc, data, nil
}

// persist encodes and writes doc, returning the bytes written.
func (db *DB) persist(doc *dotpath.Map) ([]byte, error) {
	data, err := EncodeDocument(doc)
	if err == nil {
		err = db.storage.WriteAll(data)
		if err != nil {
			err = fmt.Errorf("bdb: writing %v: %w", db.storage, err)
		}
	}
	if err != nil {
		db.saveErrorCount.Add(1)
		db.logger.LogAttrs(context.Background(), slog.LevelWarn, "bdb: save failed", slog.String("db", db.storage.String()), slog.Any("err", err))
		return nil, err
	}
	db.saveCount.Add(1)
	db.lastSize.Store(int64(len(data)))
	if db.verbose {
		db.logger.LogAttrs(context.Background(), slog.LevelDebug, "bdb: saved", slog.String("db", db.storage.String()), slog.Int("size", len(data)), slog.Int("keys", doc.Len()))
	}
	return data, nil
}

func (db *DB) warn(msg string, attrs ...slog.Attr) {
	db.logger.LogAttrs(context.Background(), slog.LevelWarn, msg, append([]slog.Attr{slog.String("db", db.storage.String())}, attrs...)...)
}
