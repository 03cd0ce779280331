package bdb

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/andreyvit/bdb/dotpath"
)

// Entry is a root key and its value, as returned by All.
type Entry struct {
	ID   string
	Data any
}

// Set stores value at key and returns value. Set never fails: a malformed
// key, an unsupported value, a key that names a field inside a sequence, or
// an index more than dotpath.MaxGap past the end of a sequence leaves the
// database unchanged and is logged as a warning.
func (db *DB) Set(key string, value any) any {
	p, err := dotpath.Parse(key)
	if err != nil {
		db.rejected("set", key, err)
		return value
	}
	v, err := dotpath.Normalize(value)
	if err != nil {
		db.rejected("set", key, err)
		return value
	}
	db.write(func(doc *dotpath.Map) bool {
		_, ok := dotpath.Set(doc, p, v)
		if !ok {
			db.rejected("set", key, errNotAddressable)
		}
		return ok
	})
	return value
}

// Get returns a copy of the value at key, or nil if there is none.
func (db *DB) Get(key string) any {
	return db.GetOr(key, nil)
}

// GetOr returns a copy of the value at key, or def if there is none. A stored
// nil is returned as nil, not as def.
func (db *DB) GetOr(key string, def any) any {
	p, err := dotpath.Parse(key)
	if err != nil {
		return def
	}
	result := def
	db.read(func(doc *dotpath.Map) {
		if v, ok := dotpath.Get(doc, p); ok {
			result = dotpath.Clone(v)
		}
	})
	return result
}

func (db *DB) Has(key string) bool {
	p, err := dotpath.Parse(key)
	if err != nil {
		return false
	}
	var found bool
	db.read(func(doc *dotpath.Map) {
		found = dotpath.Has(doc, p)
	})
	return found
}

// Delete removes the value at key and reports whether there was one.
// Sequence elements are spliced out, shifting the ones after them.
func (db *DB) Delete(key string) bool {
	p, err := dotpath.Parse(key)
	if err != nil {
		return false
	}
	var removed bool
	db.write(func(doc *dotpath.Map) bool {
		_, removed = dotpath.Unset(doc, p)
		return removed
	})
	return removed
}

// Add adds amount to the number at key and returns the result. A missing or
// non-numeric value counts as 0. The result is stored as an integer as long
// as both operands are integral and the sum fits into int64.
func (db *DB) Add(key string, amount float64) float64 {
	p, err := dotpath.Parse(key)
	if err != nil {
		db.rejected("add", key, err)
		return amount
	}
	var result any
	db.write(func(doc *dotpath.Map) bool {
		cur, _ := dotpath.Get(doc, p)
		result = addNumbers(cur, amount)
		_, ok := dotpath.Set(doc, p, result)
		if !ok {
			db.rejected("add", key, errNotAddressable)
		}
		return ok
	})
	f, _ := dotpath.ToFloat(result)
	return f
}

func (db *DB) Subtract(key string, amount float64) float64 {
	return db.Add(key, -amount)
}

func addNumbers(cur any, amount float64) any {
	n, amountIsInt := exactInt(amount)
	switch c := cur.(type) {
	case int64:
		if amountIsInt {
			if sum, ok := addInt64(c, n); ok {
				return sum
			}
		}
		return float64(c) + amount
	case float64:
		return c + amount
	default:
		if amountIsInt {
			return n
		}
		return amount
	}
}

func exactInt(f float64) (int64, bool) {
	const limit = 1 << 63
	if f != math.Trunc(f) || f < -limit || f >= limit {
		return 0, false
	}
	return int64(f), true
}

func addInt64(a, b int64) (int64, bool) {
	sum := a + b
	if (a > 0 && b > 0 && sum < 0) || (a < 0 && b < 0 && sum >= 0) {
		return 0, false
	}
	return sum, true
}

// Push appends values to the sequence at key and returns a copy of the
// resulting sequence. A missing key starts out as an empty sequence. Any
// other existing value, including nil, fails with a *TypeError and leaves
// the database unchanged.
func (db *DB) Push(key string, values ...any) ([]any, error) {
	p, err := dotpath.Parse(key)
	if err != nil {
		return nil, fmt.Errorf("bdb: push %q: %w", key, err)
	}
	items := make([]any, len(values))
	for i, v := range values {
		items[i], err = dotpath.Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("bdb: push %q: %w", key, err)
		}
	}

	var result []any
	db.write(func(doc *dotpath.Map) bool {
		var seq []any
		seq, err = sequenceAt(doc, p, "push", key)
		if err != nil {
			return false
		}
		seq = append(seq, items...)
		if _, ok := dotpath.Set(doc, p, seq); !ok {
			err = fmt.Errorf("bdb: push %q: %w", key, errNotAddressable)
			return false
		}
		result = cloneSeq(seq)
		return true
	})
	return result, err
}

// Pull removes every element of the sequence at key for which pred returns
// true and returns a copy of the remaining elements in their original order.
// pred must not modify the values it is given. A missing key is stored as an
// empty sequence; any other existing value fails with a *TypeError.
func (db *DB) Pull(key string, pred func(v any) bool) ([]any, error) {
	p, err := dotpath.Parse(key)
	if err != nil {
		return nil, fmt.Errorf("bdb: pull %q: %w", key, err)
	}

	var result []any
	db.write(func(doc *dotpath.Map) bool {
		var seq []any
		seq, err = sequenceAt(doc, p, "pull", key)
		if err != nil {
			return false
		}
		kept := make([]any, 0, len(seq))
		for _, v := range seq {
			if !pred(v) {
				kept = append(kept, v)
			}
		}
		if _, ok := dotpath.Set(doc, p, kept); !ok {
			err = fmt.Errorf("bdb: pull %q: %w", key, errNotAddressable)
			return false
		}
		result = cloneSeq(kept)
		return true
	})
	return result, err
}

// Matching returns a Pull predicate selecting elements equal to v.
func Matching(v any) func(any) bool {
	n, err := dotpath.Normalize(v)
	if err != nil {
		return func(any) bool { return false }
	}
	return func(item any) bool {
		return dotpath.Equal(item, n)
	}
}

func sequenceAt(doc *dotpath.Map, p dotpath.Path, op, key string) ([]any, error) {
	cur, found := dotpath.Get(doc, p)
	if !found {
		return []any{}, nil
	}
	seq, ok := cur.([]any)
	if !ok {
		return nil, typeErr(op, key, "sequence", cur)
	}
	return seq, nil
}

func cloneSeq(seq []any) []any {
	return dotpath.Clone(seq).([]any)
}

// All returns every root key with a copy of its value, in insertion order.
func (db *DB) All() []Entry {
	var entries []Entry
	db.read(func(doc *dotpath.Map) {
		entries = make([]Entry, 0, doc.Len())
		for pair := doc.Oldest(); pair != nil; pair = pair.Next() {
			entries = append(entries, Entry{ID: pair.Key, Data: dotpath.Clone(pair.Value)})
		}
	})
	return entries
}

// Keys returns the root keys in insertion order.
func (db *DB) Keys() []string {
	var keys []string
	db.read(func(doc *dotpath.Map) {
		keys = rootKeys(doc)
	})
	return keys
}

// Len returns the number of root keys.
func (db *DB) Len() int {
	var n int
	db.read(func(doc *dotpath.Map) {
		n = doc.Len()
	})
	return n
}

// Clear removes every key. With auto-save on, the stored document is
// overwritten with an empty one even if it was empty already.
func (db *DB) Clear() {
	db.write(func(doc *dotpath.Map) bool {
		for _, k := range rootKeys(doc) {
			doc.Delete(k)
		}
		return true
	})
}

func rootKeys(doc *dotpath.Map) []string {
	keys := make([]string, 0, doc.Len())
	for pair := doc.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

func (db *DB) rejected(op, key string, err error) {
	db.warn("bdb: "+op+" ignored", slog.String("key", key), slog.Any("err", err))
}
