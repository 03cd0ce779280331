package bdb

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/andreyvit/bdb/dotpath"
)

// maxNestingDepth bounds recursion when decoding untrusted bytes.
const maxNestingDepth = 10000

var errTooDeep = errors.New("nesting too deep")

var encodeBufPool = &sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// EncodeDocument serializes the whole document as a single msgpack map.
// Map entries are written in insertion order.
func EncodeDocument(doc *dotpath.Map) ([]byte, error) {
	buf := encodeBufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer encodeBufPool.Put(buf)

	enc := msgpack.GetEncoder()
	enc.Reset(buf)
	err := encodeMap(enc, doc)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("bdb: failed to encode document: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

func encodeMap(enc *msgpack.Encoder, m *dotpath.Map) error {
	if m == nil {
		return enc.EncodeMapLen(0)
	}
	if err := enc.EncodeMapLen(m.Len()); err != nil {
		return err
	}
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		if err := enc.EncodeString(pair.Key); err != nil {
			return err
		}
		if err := encodeValue(enc, pair.Value); err != nil {
			return fmt.Errorf("%s: %w", pair.Key, err)
		}
	}
	return nil
}

func encodeValue(enc *msgpack.Encoder, v any) error {
	switch v := v.(type) {
	case nil:
		return enc.EncodeNil()
	case bool:
		return enc.EncodeBool(v)
	case int64:
		return enc.EncodeInt(v)
	case float64:
		return enc.EncodeFloat64(v)
	case string:
		return enc.EncodeString(v)
	case []byte:
		if v == nil {
			v = []byte{} // msgpack writes nil slices as nil
		}
		return enc.EncodeBytes(v)
	case []any:
		if err := enc.EncodeArrayLen(len(v)); err != nil {
			return err
		}
		for i, item := range v {
			if err := encodeValue(enc, item); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return nil
	case *dotpath.Map:
		return encodeMap(enc, v)
	default:
		return fmt.Errorf("%w: %T", dotpath.ErrUnsupportedValue, v)
	}
}

// DecodeDocument parses bytes produced by EncodeDocument. Empty input is an
// empty document. Anything else that is not exactly one msgpack map fails
// with a *DataError.
func DecodeDocument(data []byte) (*dotpath.Map, error) {
	if len(data) == 0 {
		return dotpath.NewMap(), nil
	}

	r := bytes.NewReader(data)
	dec := msgpack.GetDecoder()
	dec.Reset(r)
	v, err := decodeValue(dec, 0)
	msgpack.PutDecoder(dec)
	if err != nil {
		return nil, dataErrf(data, len(data)-r.Len(), err, "bdb: failed to decode document")
	}
	if r.Len() != 0 {
		return nil, dataErrf(data, len(data)-r.Len(), nil, "bdb: %d trailing bytes after document", r.Len())
	}
	doc, ok := v.(*dotpath.Map)
	if !ok {
		return nil, dataErrf(data, 0, nil, "bdb: document root is a %s, not a map", dotpath.KindOf(v))
	}
	return doc, nil
}

func decodeValue(dec *msgpack.Decoder, depth int) (any, error) {
	if depth > maxNestingDepth {
		return nil, errTooDeep
	}
	c, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}

	switch {
	case c == msgpcode.Nil:
		return nil, dec.DecodeNil()

	case c == msgpcode.False || c == msgpcode.True:
		b, err := dec.DecodeBool()
		return b, err

	case c == msgpcode.Float || c == msgpcode.Double:
		f, err := dec.DecodeFloat64()
		return f, err

	case c == msgpcode.Uint64:
		u, err := dec.DecodeUint64()
		if err != nil {
			return nil, err
		}
		if u > math.MaxInt64 {
			return float64(u), nil
		}
		return int64(u), nil

	case msgpcode.IsFixedNum(c), c >= msgpcode.Uint8 && c <= msgpcode.Int64:
		n, err := dec.DecodeInt64()
		return n, err

	case msgpcode.IsString(c):
		s, err := dec.DecodeString()
		return s, err

	case msgpcode.IsBin(c):
		b, err := dec.DecodeBytes()
		if b == nil && err == nil {
			b = []byte{}
		}
		return b, err

	case msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		seq := make([]any, 0, min(max(n, 0), 1024))
		for i := 0; i < n; i++ {
			item, err := decodeValue(dec, depth+1)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			seq = append(seq, item)
		}
		return seq, nil

	case msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return nil, err
		}
		m := dotpath.NewMap()
		for i := 0; i < n; i++ {
			kc, err := dec.PeekCode()
			if err != nil {
				return nil, err
			}
			if !msgpcode.IsString(kc) {
				return nil, fmt.Errorf("map key has msgpack code %#x, expected a string", kc)
			}
			k, err := dec.DecodeString()
			if err != nil {
				return nil, err
			}
			v, err := decodeValue(dec, depth+1)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			m.Set(k, v)
		}
		return m, nil

	default:
		return nil, fmt.Errorf("unsupported msgpack code %#x", c)
	}
}
