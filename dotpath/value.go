// Package dotpath addresses values inside a tree of maps and sequences
// using paths like "a.b[2].c".
//
// A tree is built from a closed set of Go types:
//
//	nil, bool, int64, float64, string, []byte, []any, *Map
//
// Use Normalize to convert arbitrary caller input into this form. Maps keep
// insertion order.
package dotpath

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var ErrUnsupportedValue = errors.New("unsupported value type")

// Map is an insertion-ordered mapping node.
type Map = orderedmap.OrderedMap[string, any]

func NewMap() *Map {
	return orderedmap.New[string, any]()
}

// Normalize returns a deep copy of v converted into the tree form. Integers
// of every width become int64 (uint64 values beyond MaxInt64 become float64),
// float32 becomes float64, Go maps with string keys become *Map with keys in
// sorted order, and slices and arrays become []any.
func Normalize(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case bool, int64, float64, string:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint:
		return normalizeUint(uint64(v)), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return normalizeUint(v), nil
	case float32:
		return float64(v), nil
	case []byte:
		return append([]byte{}, v...), nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			n, err := Normalize(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case *Map:
		if v == nil {
			return nil, nil
		}
		out := NewMap()
		for pair := v.Oldest(); pair != nil; pair = pair.Next() {
			n, err := Normalize(pair.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", pair.Key, err)
			}
			out.Set(pair.Key, n)
		}
		return out, nil
	}
	return normalizeReflect(reflect.ValueOf(v))
}

func normalizeUint(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

func normalizeReflect(rv reflect.Value) (any, error) {
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return normalizeUint(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(b), rv)
			return b, nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			n, err := Normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: %v (map keys must be strings)", ErrUnsupportedValue, rv.Type())
		}
		keys := rv.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			return cmpStrings(a.String(), b.String())
		})
		out := NewMap()
		for _, k := range keys {
			n, err := Normalize(rv.MapIndex(k).Interface())
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k.String(), err)
			}
			out.Set(k.String(), n)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, rv.Type())
}

func cmpStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Clone returns a deep copy of a normalized value.
func Clone(v any) any {
	switch v := v.(type) {
	case []byte:
		return append([]byte{}, v...)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Clone(item)
		}
		return out
	case *Map:
		out := NewMap()
		for pair := v.Oldest(); pair != nil; pair = pair.Next() {
			out.Set(pair.Key, Clone(pair.Value))
		}
		return out
	default:
		return v
	}
}

// Equal reports whether two normalized values are structurally equal.
// Numbers are compared by value, so int64(2) equals float64(2). Map key order
// is ignored.
func Equal(a, b any) bool {
	if fa, ok := ToFloat(a); ok {
		fb, ok := ToFloat(b)
		if !ok {
			return false
		}
		ia, aInt := a.(int64)
		ib, bInt := b.(int64)
		if aInt && bInt {
			return ia == ib
		}
		return fa == fb
	}
	switch a := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, ok := b.(bool)
		return ok && a == bv
	case string:
		bv, ok := b.(string)
		return ok && a == bv
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(a, bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(a) != len(bv) {
			return false
		}
		for i := range a {
			if !Equal(a[i], bv[i]) {
				return false
			}
		}
		return true
	case *Map:
		bv, ok := b.(*Map)
		if !ok || a.Len() != bv.Len() {
			return false
		}
		for pair := a.Oldest(); pair != nil; pair = pair.Next() {
			other, found := bv.Get(pair.Key)
			if !found || !Equal(pair.Value, other) {
				return false
			}
		}
		return true
	}
	return false
}

// ToFloat returns the numeric value of v if v is an int64 or a float64.
func ToFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// KindOf names the tree kind of v for error messages.
func KindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case int64, float64:
		return "number"
	case string:
		return "string"
	case []byte:
		return "binary"
	case []any:
		return "sequence"
	case *Map:
		return "map"
	default:
		return fmt.Sprintf("unsupported %T", v)
	}
}
