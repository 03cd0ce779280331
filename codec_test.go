package bdb

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/andreyvit/bdb/dotpath"
)

func TestCodec_roundTrip(t *testing.T) {
	doc := dotpath.NewMap()
	doc.Set("nil", nil)
	doc.Set("true", true)
	doc.Set("false", false)
	doc.Set("zero", int64(0))
	doc.Set("neg", int64(-42))
	doc.Set("maxint", int64(math.MaxInt64))
	doc.Set("minint", int64(math.MinInt64))
	doc.Set("float", -0.5)
	doc.Set("huge", 1e300)
	doc.Set("two", float64(2))
	doc.Set("empty_str", "")
	doc.Set("str", "héllo")
	doc.Set("blob", []byte{0, 1, 0xFF})
	doc.Set("empty_blob", []byte{})
	doc.Set("empty_seq", []any{})
	doc.Set("empty_map", dotpath.NewMap())
	doc.Set("nested", must(dotpath.Normalize(map[string]any{
		"a": []any{1, "x", []any{nil, true}, map[string]any{"deep": 1.25}},
	})))

	data := must(EncodeDocument(doc))
	back := must(DecodeDocument(data))

	if !dotpath.Equal(back, doc) {
		t.Fatalf("** round trip mismatch:\n got %s\nwanted %s", show(back), show(doc))
	}

	// numeric kinds survive, not just values
	for _, k := range []string{"zero", "neg", "maxint", "minint"} {
		want, _ := doc.Get(k)
		if v, _ := back.Get(k); v != want {
			t.Errorf("%s = %#v, wanted int64", k, v)
		}
	}
	if v, _ := back.Get("two"); v != float64(2) {
		t.Errorf("two = %#v, wanted float64(2)", v)
	}
	if v, _ := back.Get("empty_blob"); v == nil || v.([]byte) == nil {
		t.Errorf("empty_blob = %#v, wanted an empty []byte", v)
	}
}

func TestCodec_preservesKeyOrder(t *testing.T) {
	doc := dotpath.NewMap()
	for _, k := range []string{"z", "a", "m", "b"} {
		doc.Set(k, k)
	}
	back := must(DecodeDocument(must(EncodeDocument(doc))))
	deepEqual(t, rootKeys(back), []string{"z", "a", "m", "b"})
}

func TestCodec_empty(t *testing.T) {
	for _, data := range [][]byte{nil, {}} {
		doc, err := DecodeDocument(data)
		if err != nil {
			t.Fatalf("DecodeDocument(%v) failed: %v", data, err)
		}
		if doc.Len() != 0 {
			t.Fatalf("DecodeDocument(%v) has %d keys, wanted 0", data, doc.Len())
		}
	}
	deepEqual(t, must(EncodeDocument(dotpath.NewMap())), []byte{0x80})
	deepEqual(t, must(EncodeDocument(nil)), []byte{0x80})
}

func TestCodec_bigUint(t *testing.T) {
	data := x("81 a1 78 cf ffffffffffffffff")
	doc := must(DecodeDocument(data))
	if v, _ := doc.Get("x"); v != float64(math.MaxUint64) {
		t.Fatalf("x = %#v, wanted float64", v)
	}
}

func TestCodec_corrupted(t *testing.T) {
	valid := must(EncodeDocument(must(dotpath.Normalize(map[string]any{"k": "value"})).(*dotpath.Map)))

	tests := map[string][]byte{
		"text":         []byte("not a database"),
		"scalar root":  {0x01},
		"seq root":     {0x90},
		"never used":   {0xc1},
		"truncated":    valid[:len(valid)-1],
		"int key":      x("81 01 02"),
		"trailing":     append(append([]byte{}, valid...), 0x00),
		"ext":          x("81 a1 78 d4 01 00"),
		"long garbage": []byte(strings.Repeat("\xc1", 200)),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeDocument(data)
			var de *DataError
			if !errors.As(err, &de) {
				t.Fatalf("err = %v (%T), wanted *DataError", err, err)
			}
		})
	}
}

func TestCodec_unsupported(t *testing.T) {
	doc := dotpath.NewMap()
	doc.Set("x", 5) // not normalized
	_, err := EncodeDocument(doc)
	if !errors.Is(err, dotpath.ErrUnsupportedValue) {
		t.Fatalf("err = %v, wanted ErrUnsupportedValue", err)
	}
}
