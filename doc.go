/*
Package bdb implements a small embedded key-value store that keeps a single
document (a map from root keys to arbitrary values) in one binary file.

Values are addressed with dot paths:

	db.Set("user.name", "Alice")
	db.Set("user.tags", []string{"a", "b"})
	db.Get("user.tags[1]") // "b"

Stored values are nil, bool, int64, float64, string, []byte, []any and
*dotpath.Map; other Go values are converted on the way in (see
dotpath.Normalize). Map keys keep insertion order.

# Modes

**Cached** (default). The document is loaded once by Open and kept in memory.
Every operation works on the resident copy.

**Read-through** (Options.NoCache). Every operation reads the whole file,
so each call sees the latest persisted state, including changes made by
other processes. Bytes that have not changed since the last read are not
decoded again.

With auto-save on (the default), every mutation rewrites the whole file.
With Options.NoAutoSave, call Save explicitly; in read-through mode unsaved
mutations are lost when the call returns.

# Failure handling

A missing, empty or corrupted file yields an empty database, and in cached
mode the empty document is written back right away. Write failures are
logged and reported by Save, but never abort an operation. The only
operation errors callers see are type mismatches from Push and Pull (a
*TypeError wrapping ErrTypeMismatch) and malformed paths passed to them.

# Storage format

The file holds the document encoded as a single msgpack map, with no header.
Writes go to a temporary file that is synced and renamed over the original.
BoltStorage keeps the same bytes as a single value inside a Bolt database
instead.

A DB is safe for concurrent use within a process. Nothing coordinates
multiple processes writing to the same file; the last writer wins.
*/
package bdb
