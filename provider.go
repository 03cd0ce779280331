package bdb

import (
	"context"
	"log/slog"

	"github.com/cespare/xxhash/v2"

	"github.com/andreyvit/bdb/dotpath"
)

// provider decides where the document comes from and what happens to it
// after a change. Calls are serialized by DB.mu.
type provider interface {
	// current returns the document the next operation acts on.
	current() *dotpath.Map

	// commit is called after doc has been changed, or on an explicit Save.
	// When persist is false the change stays wherever current() keeps it.
	commit(doc *dotpath.Map, persist bool) error
}

// cachedProvider keeps the document resident for the lifetime of the DB.
type cachedProvider struct {
	db  *DB
	doc *dotpath.Map
}

// openCached loads the document once. Anything but a successfully decoded
// document is replaced with an empty one, which is written back right away
// so that a missing or corrupted file heals itself.
func openCached(db *DB) *cachedProvider {
	doc, data, err := db.loadDocument()
	switch {
	case err != nil:
		db.warn("bdb: unreadable database replaced with an empty one", slog.Int("size", len(data)), slog.Any("err", err))
	case doc == nil:
		if db.verbose {
			db.logger.LogAttrs(context.Background(), slog.LevelDebug, "bdb: creating database", slog.String("db", db.storage.String()))
		}
	case len(data) == 0:
		// empty file; rewrite as a valid empty map
	default:
		return &cachedProvider{db: db, doc: doc}
	}

	p := &cachedProvider{db: db, doc: dotpath.NewMap()}
	p.commit(p.doc, true)
	return p
}

func (p *cachedProvider) current() *dotpath.Map {
	return p.doc
}

func (p *cachedProvider) commit(doc *dotpath.Map, persist bool) error {
	if !persist {
		return nil
	}
	_, err := p.db.persist(doc)
	return err
}

// readThroughProvider reads the whole stored document on every operation, so
// every call observes the latest persisted state, including writes by other
// processes.
//
// To avoid decoding unchanged bytes over and over, it remembers the tree it
// last decoded or wrote along with an xxhash digest of the corresponding
// bytes, and reuses the tree while the stored bytes keep matching.
type readThroughProvider struct {
	db *DB

	doc  *dotpath.Map
	sum  uint64
	size int
}

// openReadThrough only makes sure the storage holds a document, writing an
// empty one if nothing is there yet.
func openReadThrough(db *DB) *readThroughProvider {
	p := &readThroughProvider{db: db}
	exists, err := db.storage.Exists()
	if err != nil {
		db.warn("bdb: cannot check database", slog.Any("err", err))
	} else if !exists {
		p.commit(dotpath.NewMap(), true)
	}
	return p
}

func (p *readThroughProvider) current() *dotpath.Map {
	data, err := p.db.storage.ReadAll()
	if err != nil {
		p.forget()
		p.db.warn("bdb: read failed, using an empty document", slog.Any("err", err))
		return dotpath.NewMap()
	}

	sum := xxhash.Sum64(data)
	if p.doc != nil && p.sum == sum && p.size == len(data) {
		return p.doc
	}

	p.db.decodeCount.Add(1)
	doc, err := DecodeDocument(data)
	if err != nil {
		p.forget()
		p.db.warn("bdb: decode failed, using an empty document", slog.Any("err", err))
		return dotpath.NewMap()
	}
	p.remember(doc, data)
	return doc
}

func (p *readThroughProvider) commit(doc *dotpath.Map, persist bool) error {
	if !persist {
		// the change only lived in this call's copy
		p.forget()
		return nil
	}
	data, err := p.db.persist(doc)
	if err != nil {
		p.forget()
		return err
	}
	p.remember(doc, data)
	return nil
}

func (p *readThroughProvider) remember(doc *dotpath.Map, data []byte) {
	p.doc, p.sum, p.size = doc, xxhash.Sum64(data), len(data)
}

func (p *readThroughProvider) forget() {
	p.doc, p.sum, p.size = nil, 0, 0
}
