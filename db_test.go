package bdb

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/andreyvit/bdb/dotpath"
)

var modes = []struct {
	name string
	opt  Options
}{
	{"cached", Options{}},
	{"readthrough", Options{NoCache: true}},
}

func eachMode(t *testing.T, f func(t *testing.T, opt Options)) {
	for _, m := range modes {
		t.Run(m.name, func(t *testing.T) {
			f(t, m.opt)
		})
	}
}

func TestDB_setGet(t *testing.T) {
	eachMode(t, func(t *testing.T, opt Options) {
		db := setup(t, opt)

		if r := db.Set("name", "Alice"); r != "Alice" {
			t.Errorf("Set returned %v, wanted Alice", r)
		}
		db.Set("n", 42)
		db.Set("pi", 3.14)
		db.Set("ok", true)
		db.Set("null", nil)
		db.Set("blob", []byte("raw"))
		db.Set("list", []string{"a", "b"})
		db.Set("obj", map[string]any{"x": 1})

		eq(t, db.Get("name"), "Alice")
		eq(t, db.Get("n"), 42)
		eq(t, db.Get("pi"), 3.14)
		eq(t, db.Get("ok"), true)
		eq(t, db.Get("null"), nil)
		eq(t, db.Get("blob"), []byte("raw"))
		eq(t, db.Get("list"), []any{"a", "b"})
		eq(t, db.Get("obj"), map[string]any{"x": 1})

		if v := db.Get("n"); v != int64(42) {
			t.Errorf("n = %#v, wanted int64(42)", v)
		}
	})
}

func TestDB_getDefault(t *testing.T) {
	eachMode(t, func(t *testing.T, opt Options) {
		db := setup(t, opt)
		db.Set("null", nil)

		if v := db.Get("missing"); v != nil {
			t.Errorf("Get(missing) = %v, wanted nil", v)
		}
		def := []string{"default"}
		deepEqual(t, db.GetOr("missing", def), any(def))
		deepEqual(t, db.GetOr("missing.deep[3]", "d"), any("d"))
		deepEqual(t, db.GetOr("null", "d"), nil)
		deepEqual(t, db.GetOr("bad[", "d"), any("d"))
	})
}

func TestDB_hasDelete(t *testing.T) {
	eachMode(t, func(t *testing.T, opt Options) {
		db := setup(t, opt)
		db.Set("k", 1)
		db.Set("a.b", 2)
		db.Set("a.c", 3)

		if !db.Has("k") {
			t.Errorf("Has(k) = false after Set")
		}
		if !db.Delete("k") {
			t.Errorf("Delete(k) = false, wanted true")
		}
		if db.Has("k") {
			t.Errorf("Has(k) = true after Delete")
		}

		before := db.All()
		if db.Delete("k") {
			t.Errorf("second Delete(k) = true, wanted false")
		}
		if db.Delete("a.zz") || db.Delete("zz.b") || db.Delete("bad[") {
			t.Errorf("Delete of a missing path returned true")
		}
		eqEntries(t, db.All(), before)

		if !db.Delete("a.b") {
			t.Errorf("Delete(a.b) = false")
		}
		eq(t, db.Get("a"), map[string]any{"c": 3})
		if !db.Has("a") || db.Has("a.b") {
			t.Errorf("Has after nested Delete is wrong")
		}
	})
}

func TestDB_addSubtract(t *testing.T) {
	eachMode(t, func(t *testing.T, opt Options) {
		db := setup(t, opt)

		if r := db.Add("c", 5); r != 5 {
			t.Errorf("Add(c, 5) = %v, wanted 5", r)
		}
		if v := db.Get("c"); v != int64(5) {
			t.Errorf("c = %#v, wanted int64(5)", v)
		}
		if r := db.Add("c", 2); r != 7 {
			t.Errorf("Add(c, 2) = %v, wanted 7", r)
		}
		if r := db.Subtract("c", 10); r != -3 {
			t.Errorf("Subtract(c, 10) = %v, wanted -3", r)
		}
		if r := db.Add("c", 0.5); r != -2.5 {
			t.Errorf("Add(c, 0.5) = %v, wanted -2.5", r)
		}
		if v := db.Get("c"); v != -2.5 {
			t.Errorf("c = %#v, wanted -2.5", v)
		}

		db.Set("s", "text")
		if r := db.Add("s", 4); r != 4 {
			t.Errorf("Add on a string = %v, wanted 4", r)
		}
		eq(t, db.Get("s"), 4)

		if r := db.Add("stats.visits", 1); r != 1 {
			t.Errorf("Add(stats.visits) = %v, wanted 1", r)
		}
		eq(t, db.Get("stats"), map[string]any{"visits": 1})
	})
}

func TestAddNumbers(t *testing.T) {
	tests := []struct {
		cur    any
		amount float64
		exp    any
	}{
		{nil, 5, int64(5)},
		{nil, 1.5, 1.5},
		{"x", -2, int64(-2)},
		{int64(3), 4, int64(7)},
		{int64(3), 0.25, 3.25},
		{2.5, 1, 3.5},
		{int64(math.MaxInt64), 1, float64(1 << 63)},
		{int64(math.MinInt64), -1, -float64(1 << 63)},
		{int64(1), 1e300, 1e300},
	}
	for _, tt := range tests {
		a := addNumbers(tt.cur, tt.amount)
		if a != tt.exp {
			t.Errorf("addNumbers(%#v, %v) = %#v, wanted %#v", tt.cur, tt.amount, a, tt.exp)
		}
	}
}

func TestDB_pushPull(t *testing.T) {
	eachMode(t, func(t *testing.T, opt Options) {
		db := setup(t, opt)

		seq := must(db.Push("arr", "x"))
		eq(t, seq, []any{"x"})
		seq = must(db.Push("arr", "y", 3))
		eq(t, seq, []any{"x", "y", 3})
		eq(t, db.Get("arr"), []any{"x", "y", 3})

		db.Set("nums", []int{1, 2, 3, 4})
		seq = must(db.Pull("nums", func(v any) bool { return v.(int64)%2 == 0 }))
		eq(t, seq, []any{1, 3})
		eq(t, db.Get("nums"), []any{1, 3})

		seq = must(db.Pull("arr", Matching("y")))
		eq(t, seq, []any{"x", 3})

		seq = must(db.Pull("fresh", Matching(1)))
		eq(t, seq, []any{})
		eq(t, db.Get("fresh"), []any{})

		must(db.Push("user.tags[0]", "nested"))
		eq(t, db.Get("user"), map[string]any{"tags": []any{[]any{"nested"}}})
	})
}

func TestDB_pushTypeMismatch(t *testing.T) {
	eachMode(t, func(t *testing.T, opt Options) {
		db := setup(t, opt)
		db.Set("scalar", 10)
		db.Set("null", nil)
		stats := db.Stats()

		for _, key := range []string{"scalar", "null"} {
			_, err := db.Push(key, "v")
			if !errors.Is(err, ErrTypeMismatch) {
				t.Fatalf("Push(%s) err = %v, wanted ErrTypeMismatch", key, err)
			}
			var te *TypeError
			if !errors.As(err, &te) || te.Key != key || te.Op != "push" || te.Expected != "sequence" {
				t.Fatalf("Push(%s) err = %#v, wanted *TypeError for push", key, err)
			}

			_, err = db.Pull(key, Matching("v"))
			if !errors.Is(err, ErrTypeMismatch) {
				t.Fatalf("Pull(%s) err = %v, wanted ErrTypeMismatch", key, err)
			}
		}

		eq(t, db.Get("scalar"), 10)
		eq(t, db.Get("null"), nil)
		if a, e := db.Stats().Writes, stats.Writes; a != e {
			t.Errorf("Writes = %d after failed push/pull, wanted %d", a, e)
		}

		_, err := db.Push("bad[", "v")
		if !errors.Is(err, dotpath.ErrMalformedPath) {
			t.Errorf("Push(bad[) err = %v, wanted ErrMalformedPath", err)
		}
		_, err = db.Push("p", make(chan int))
		if !errors.Is(err, dotpath.ErrUnsupportedValue) {
			t.Errorf("Push(chan) err = %v, wanted ErrUnsupportedValue", err)
		}
	})
}

func TestDB_paths(t *testing.T) {
	eachMode(t, func(t *testing.T, opt Options) {
		db := setup(t, opt)

		db.Set("a.b.c", 5)
		eq(t, db.Get("a.b.c"), 5)
		eq(t, db.Get("a"), map[string]any{"b": map[string]any{"c": 5}})
		eq(t, db.Get("a.b"), map[string]any{"c": 5})

		db.Set("arr", []int{1, 2, 3})
		eq(t, db.Get("arr[1]"), 2)
		eq(t, db.Get("arr.1"), 2)

		db.Set("arr[1]", "two")
		eq(t, db.Get("arr"), []any{1, "two", 3})

		db.Set("list[2].name", "third")
		eq(t, db.Get("list"), []any{nil, nil, map[string]any{"name": "third"}})

		db.Set("arr[4000000000]", 1)
		eq(t, db.Get("arr"), []any{1, "two", 3})
		db.Set("huge[4000000000]", 1)
		if db.Has("huge") {
			t.Errorf("Set with a huge index created a key")
		}
	})
}

func TestDB_setIgnoresInvalid(t *testing.T) {
	eachMode(t, func(t *testing.T, opt Options) {
		var logs bytes.Buffer
		opt.Logger = slog.New(slog.NewTextHandler(&logs, nil))
		db := setup(t, opt)
		db.Set("arr", []int{1})

		ch := make(chan int)
		if r := db.Set("c", ch); r != any(ch) {
			t.Errorf("Set returned %v, wanted the value passed in", r)
		}
		db.Set("bad[", 1)
		db.Set("arr.name", 1)

		deepEqual(t, db.Keys(), []string{"arr"})
		eq(t, db.Get("arr"), []any{1})
		if n := strings.Count(logs.String(), "bdb: set ignored"); n != 3 {
			t.Errorf("logged %d warnings, wanted 3:\n%s", n, logs.String())
		}
	})
}

func TestDB_getReturnsCopy(t *testing.T) {
	eachMode(t, func(t *testing.T, opt Options) {
		db := setup(t, opt)
		db.Set("obj", map[string]any{"list": []int{1}})

		m := db.Get("obj").(*dotpath.Map)
		m.Set("extra", int64(1))
		list, _ := m.Get("list")
		list.([]any)[0] = int64(100)

		for _, e := range db.All() {
			e.Data.(*dotpath.Map).Set("extra", int64(2))
		}

		eq(t, db.Get("obj"), map[string]any{"list": []any{1}})
	})
}

func TestDB_allKeysLen(t *testing.T) {
	eachMode(t, func(t *testing.T, opt Options) {
		db := setup(t, opt)
		db.Set("x", 1)
		db.Set("y", 2)

		all := db.All()
		eqEntries(t, all, []Entry{{"x", int64(1)}, {"y", int64(2)}})
		deepEqual(t, db.Keys(), []string{"x", "y"})
		if n := db.Len(); n != 2 {
			t.Errorf("Len = %d, wanted 2", n)
		}

		db.Set("x", 3)
		deepEqual(t, db.Keys(), []string{"x", "y"})
	})
}

func TestDB_clear(t *testing.T) {
	eachMode(t, func(t *testing.T, opt Options) {
		db := setup(t, opt)
		db.Set("x", 1)
		db.Set("y.z", 2)

		db.Clear()

		if all := db.All(); len(all) != 0 {
			t.Errorf("All after Clear = %v, wanted empty", all)
		}
		if db.Has("x") || db.Has("y") || db.Has("y.z") {
			t.Errorf("keys still present after Clear")
		}
		deepEqual(t, fileBytes(t, db), []byte{0x80})
	})
}

func TestDB_persistsAcrossReopen(t *testing.T) {
	eachMode(t, func(t *testing.T, opt Options) {
		opt.Path = filepath.Join(t.TempDir(), "sub", "dir", "db.bdb")
		db := setup(t, opt)
		db.Set("user.name", "Alice")
		must(db.Push("log", "a", "b"))
		db.Add("count", 2)
		ensure(db.Close())

		db = setup(t, opt)
		eq(t, db.Get("user.name"), "Alice")
		eq(t, db.Get("log"), []any{"a", "b"})
		eq(t, db.Get("count"), 2)
		deepEqual(t, db.Keys(), []string{"user", "log", "count"})
	})
}

func TestDB_createsMissingFile(t *testing.T) {
	eachMode(t, func(t *testing.T, opt Options) {
		opt.Path = filepath.Join(t.TempDir(), "nested", "fresh.bdb")
		db := setup(t, opt)

		deepEqual(t, must(os.ReadFile(opt.Path)), []byte{0x80})
		if n := db.Len(); n != 0 {
			t.Errorf("Len = %d, wanted 0", n)
		}
	})
}

func TestDB_defaultPath(t *testing.T) {
	dir := t.TempDir()
	wd := must(os.Getwd())
	ensure(os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	db := must(Open(Options{Logger: discardLogger()}))
	defer db.Close()
	db.Set("k", "v")

	if _, err := os.Stat(filepath.Join(dir, DefaultPath)); err != nil {
		t.Fatalf("default database file not created: %v", err)
	}
}

func TestDB_cachedHealsCorruptFile(t *testing.T) {
	for _, content := range [][]byte{[]byte("not a database"), {}, {0x91, 0x01}} {
		t.Run(fmt.Sprintf("%x", content), func(t *testing.T) {
			var logs bytes.Buffer
			fn := filepath.Join(t.TempDir(), "corrupt.bdb")
			ensure(os.WriteFile(fn, content, 0o644))

			db := setup(t, Options{Path: fn, Logger: slog.New(slog.NewTextHandler(&logs, nil))})

			if n := db.Len(); n != 0 {
				t.Errorf("Len = %d, wanted 0", n)
			}
			deepEqual(t, must(os.ReadFile(fn)), []byte{0x80})
			if len(content) > 0 && !strings.Contains(logs.String(), "level=WARN") {
				t.Errorf("no warning logged:\n%s", logs.String())
			}
		})
	}
}

func TestDB_readThroughCorruptFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "corrupt.bdb")
	ensure(os.WriteFile(fn, []byte("not a database"), 0o644))

	db := setup(t, Options{Path: fn, NoCache: true, Logger: discardLogger()})

	deepEqual(t, string(must(os.ReadFile(fn))), "not a database")
	if v := db.GetOr("k", "d"); v != "d" {
		t.Errorf("Get on corrupt file = %v, wanted default", v)
	}

	db.Set("k", "v")
	eq(t, db.Get("k"), "v")
	deepEqual(t, rootKeys(must(DecodeDocument(must(os.ReadFile(fn))))), []string{"k"})
}

func TestDB_noAutoSave(t *testing.T) {
	t.Run("cached", func(t *testing.T) {
		db := setup(t, Options{NoAutoSave: true})
		db.Set("k", "v")
		eq(t, db.Get("k"), "v")
		deepEqual(t, fileBytes(t, db), []byte{0x80})

		ensure(db.Save())
		doc := must(DecodeDocument(fileBytes(t, db)))
		deepEqual(t, rootKeys(doc), []string{"k"})
	})

	t.Run("readthrough", func(t *testing.T) {
		db := setup(t, Options{NoAutoSave: true, NoCache: true})
		db.Set("k", "v")
		if db.Has("k") {
			t.Errorf("unsaved mutation visible in read-through mode")
		}
		deepEqual(t, fileBytes(t, db), []byte{0x80})
		ensure(db.Save())
		deepEqual(t, fileBytes(t, db), []byte{0x80})
	})
}

func TestDB_readThroughSeesOtherWriters(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "shared.bdb")
	reader := setup(t, Options{Path: fn, NoCache: true})
	cached := setup(t, Options{Path: fn})
	writer := setup(t, Options{Path: fn})

	writer.Set("k", "v1")
	eq(t, reader.Get("k"), "v1")
	if cached.Has("k") {
		t.Errorf("cached instance observed an external write")
	}

	writer.Set("k", "v2")
	eq(t, reader.Get("k"), "v2")

	// read-your-own-writes
	reader.Set("own", 1)
	eq(t, reader.Get("own"), 1)
}

func TestDB_readThroughSkipsUnchangedDecode(t *testing.T) {
	db := setup(t, Options{NoCache: true})
	db.Set("k", "v")
	base := db.Stats().Decodes

	for i := 0; i < 5; i++ {
		eq(t, db.Get("k"), "v")
	}
	if d := db.Stats().Decodes - base; d != 0 {
		t.Errorf("Decodes grew by %d on unchanged reads, wanted 0", d)
	}

	other := setup(t, Options{Path: db.String()})
	other.Set("k", "changed")
	eq(t, db.Get("k"), "changed")
	if d := db.Stats().Decodes - base; d != 1 {
		t.Errorf("Decodes grew by %d after an external write, wanted 1", d)
	}
}

func TestDB_saveFailures(t *testing.T) {
	eachMode(t, func(t *testing.T, opt Options) {
		st := &faultyStorage{Storage: MemoryStorage()}
		opt.Storage = st
		opt.Logger = discardLogger()
		db := setup(t, opt)
		db.Set("a", 1)

		st.failWrites = true
		db.Set("b", 2)
		err := db.Save()
		if !errors.Is(err, errInjected) {
			t.Fatalf("Save err = %v, wanted errInjected", err)
		}
		if n := db.Stats().SaveErrors; n != 2 {
			t.Errorf("SaveErrors = %d, wanted 2", n)
		}

		st.failWrites = false
		ensure(db.Save())
		doc := must(DecodeDocument(must(st.ReadAll())))
		if opt.NoCache {
			deepEqual(t, rootKeys(doc), []string{"a"})
		} else {
			deepEqual(t, rootKeys(doc), []string{"a", "b"})
		}
	})
}

func TestDB_readThroughReadFailure(t *testing.T) {
	st := &faultyStorage{Storage: MemoryStorage()}
	db := setup(t, Options{Storage: st, NoCache: true, Logger: discardLogger()})
	db.Set("a", 1)

	st.failReads = true
	if db.Has("a") {
		t.Errorf("Has(a) = true while reads fail")
	}
	st.failReads = false
	eq(t, db.Get("a"), 1)
}

func TestDB_stats(t *testing.T) {
	db := setup(t, Options{})
	db.Set("a", 1)
	db.Get("a")
	db.Has("a")
	db.Delete("zz")

	s := db.Stats()
	if s.Writes != 1 || s.Reads != 2 || s.Saves != 2 || s.LastSize != int64(len(fileBytes(t, db))) {
		t.Errorf("Stats = %+v", s)
	}
}

func TestDB_openFailsWhenStorageCannotBePrepared(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	ensure(os.WriteFile(blocker, nil, 0o644))

	_, err := Open(Options{Path: filepath.Join(blocker, "db.bdb"), Logger: discardLogger()})
	if err == nil {
		t.Fatalf("Open under a regular file succeeded")
	}
}

func TestDB_closeWaitsForOperations(t *testing.T) {
	db := setup(t, Options{Storage: BoltStorage(filepath.Join(t.TempDir(), "db.bolt"))})

	db.mu.Lock()
	closed := make(chan error, 1)
	go func() {
		closed <- db.Close()
	}()
	select {
	case err := <-closed:
		t.Fatalf("Close returned %v while an operation held the lock", err)
	case <-time.After(50 * time.Millisecond):
	}
	db.mu.Unlock()
	ensure(<-closed)
}

var errInjected = errors.New("injected failure")

type faultyStorage struct {
	Storage
	failWrites bool
	failReads  bool
}

func (s *faultyStorage) ReadAll() ([]byte, error) {
	if s.failReads {
		return nil, errInjected
	}
	return s.Storage.ReadAll()
}

func (s *faultyStorage) WriteAll(data []byte) error {
	if s.failWrites {
		return errInjected
	}
	return s.Storage.WriteAll(data)
}

func setup(t testing.TB, opt Options) *DB {
	t.Helper()
	if opt.Storage == nil && opt.Path == "" {
		opt.Path = filepath.Join(t.TempDir(), "test.bdb")
	}
	db := must(Open(opt))
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func fileBytes(t testing.TB, db *DB) []byte {
	t.Helper()
	return must(db.storage.ReadAll())
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func eq(t testing.TB, a, e any) {
	t.Helper()
	n, err := dotpath.Normalize(e)
	if err != nil {
		t.Fatal(err)
	}
	if !dotpath.Equal(a, n) {
		t.Errorf("** got %s, wanted %s", show(a), show(n))
	}
}

func eqEntries(t testing.TB, a, e []Entry) {
	t.Helper()
	if len(a) != len(e) {
		t.Errorf("** got %d entries, wanted %d", len(a), len(e))
		return
	}
	for i := range a {
		if a[i].ID != e[i].ID || !dotpath.Equal(a[i].Data, e[i].Data) {
			t.Errorf("** entry %d = %s: %s, wanted %s: %s", i, a[i].ID, show(a[i].Data), e[i].ID, show(e[i].Data))
		}
	}
}

func show(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(raw)
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}

func x(data string) []byte {
	data = strings.ReplaceAll(data, " ", "")
	return must(hex.DecodeString(data))
}
