package bdb

import (
	"errors"
	"fmt"

	"github.com/andreyvit/bdb/dotpath"
)

// ErrTypeMismatch is returned when a sequence operation finds a value of
// another kind at the given key.
var ErrTypeMismatch = errors.New("type mismatch")

var errNotAddressable = errors.New("path uses a non-numeric key inside a sequence or an index too far past its end")

// DataError describes persisted bytes that cannot be decoded.
type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

func (e *DataError) Error() string {
	const prefixLen = 48
	const suffixLen = 16
	n := len(e.Data)
	var data string
	if n <= prefixLen+suffixLen {
		data = fmt.Sprintf("(%d) %x", n, e.Data)
	} else {
		data = fmt.Sprintf("(%d) %x...%x", n, e.Data[:prefixLen], e.Data[n-suffixLen:])
	}
	if e.Err != nil {
		return fmt.Sprintf("%s at offset %d: %v: %s", e.Msg, e.Off, e.Err, data)
	}
	return fmt.Sprintf("%s at offset %d: %s", e.Msg, e.Off, data)
}

// TypeError reports a value of the wrong kind stored at Key.
type TypeError struct {
	Key      string
	Op       string
	Expected string
	Actual   string
}

func typeErr(op, key, expected string, actual any) error {
	return &TypeError{Key: key, Op: op, Expected: expected, Actual: dotpath.KindOf(actual)}
}

func (e *TypeError) Unwrap() error {
	return ErrTypeMismatch
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("bdb: %s %q: %v: stored value is a %s, expected a %s", e.Op, e.Key, ErrTypeMismatch, e.Actual, e.Expected)
}
