package dotpath

import "slices"

// MaxGap bounds how far past the end of a sequence Set may write. The gap is
// filled with nils, so an unbounded index could exhaust memory.
const MaxGap = 1 << 16

// Get returns the value at p inside node. The second result is false when
// any step along the path is missing. A stored nil is present.
func Get(node any, p Path) (any, bool) {
	for _, s := range p {
		next, ok := child(node, s)
		if !ok {
			return nil, false
		}
		node = next
	}
	return node, true
}

func Has(node any, p Path) bool {
	_, ok := Get(node, p)
	return ok
}

func child(node any, s Step) (any, bool) {
	switch n := node.(type) {
	case *Map:
		return n.Get(s.mapKey())
	case []any:
		i, ok := s.seqIndex()
		if !ok || i >= len(n) {
			return nil, false
		}
		return n[i], true
	default:
		return nil, false
	}
}

// Set stores v at p inside node and returns the updated node, which
// callers must store in place of the original (appending to a sequence may
// reallocate it). Passing a *Map as node always returns the same *Map.
//
// Missing containers are created along the way: a sequence when the step
// addressing it is an index step, a map otherwise. Scalars standing in the
// way are replaced. Writing past the end of a sequence pads it with nils.
//
// Set fails when a non-numeric key step addresses an existing sequence, or
// when an index lies more than MaxGap elements past the end of a sequence.
// It then leaves the tree untouched and returns false.
func Set(node any, p Path, v any) (any, bool) {
	if len(p) == 0 {
		return v, true
	}
	s, rest := p[0], p[1:]
	switch n := node.(type) {
	case *Map:
		k := s.mapKey()
		cur, _ := n.Get(k)
		upd, ok := Set(cur, rest, v)
		if !ok {
			return n, false
		}
		n.Set(k, upd)
		return n, true
	case []any:
		i, ok := s.seqIndex()
		if !ok || i > len(n)+MaxGap {
			return n, false
		}
		var cur any
		if i < len(n) {
			cur = n[i]
		}
		upd, ok := Set(cur, rest, v)
		if !ok {
			return n, false
		}
		if i >= len(n) {
			n = slices.Grow(n, i+1-len(n))
			for len(n) <= i {
				n = append(n, nil)
			}
		}
		n[i] = upd
		return n, true
	default:
		return Set(newContainer(s), p, v)
	}
}

func newContainer(s Step) any {
	if s.IsIndex {
		return []any{}
	}
	return NewMap()
}

// Unset removes the value at p inside node. Map entries are deleted and
// sequence elements are spliced out. Returns the updated node and whether
// anything was removed; a missing path is a no-op.
func Unset(node any, p Path) (any, bool) {
	if len(p) == 0 {
		return node, false
	}
	s, rest := p[0], p[1:]
	switch n := node.(type) {
	case *Map:
		k := s.mapKey()
		if len(rest) == 0 {
			_, ok := n.Delete(k)
			return n, ok
		}
		cur, found := n.Get(k)
		if !found {
			return n, false
		}
		upd, ok := Unset(cur, rest)
		if ok {
			n.Set(k, upd)
		}
		return n, ok
	case []any:
		i, ok := s.seqIndex()
		if !ok || i >= len(n) {
			return n, false
		}
		if len(rest) == 0 {
			return slices.Delete(n, i, i+1), true
		}
		upd, ok := Unset(n[i], rest)
		if ok {
			n[i] = upd
		}
		return n, ok
	default:
		return node, false
	}
}
