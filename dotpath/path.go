package dotpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrMalformedPath = errors.New("malformed path")

// Step is a single access step: a map key or a sequence index.
type Step struct {
	Key     string
	Index   int
	IsIndex bool
}

func KeyStep(key string) Step {
	return Step{Key: key}
}

func IndexStep(i int) Step {
	return Step{Key: strconv.Itoa(i), Index: i, IsIndex: true}
}

// mapKey is the key this step reads from a map. Index steps address the
// decimal form of the index.
func (s Step) mapKey() string {
	if s.IsIndex {
		return strconv.Itoa(s.Index)
	}
	return s.Key
}

// seqIndex is the index this step reads from a sequence. Key steps qualify
// only when they spell a non-negative decimal integer.
func (s Step) seqIndex() (int, bool) {
	if s.IsIndex {
		return s.Index, true
	}
	return parseIndex(s.Key)
}

func (s Step) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// Path is a parsed sequence of steps. The first step is the root key.
type Path []Step

// Parse tokenizes a path. Segments are separated by '.', and each segment
// may carry any number of bracket suffixes: "[3]" is an index step, while
// "[name]", "['name']" and "[\"name\"]" are key steps, which allows keys
// containing dots. An empty segment is the empty key.
func Parse(s string) (Path, error) {
	p := make(Path, 0, 4)
	i, n := 0, len(s)
	for {
		j := i
		for j < n && s[j] != '.' && s[j] != '[' {
			j++
		}
		p = append(p, KeyStep(s[i:j]))
		i = j

		for i < n && s[i] == '[' {
			end := strings.IndexByte(s[i+1:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: %q: unterminated '[' at offset %d", ErrMalformedPath, s, i)
			}
			p = append(p, bracketStep(s[i+1:i+1+end]))
			i += end + 2
		}

		if i == n {
			return p, nil
		}
		if s[i] != '.' {
			return nil, fmt.Errorf("%w: %q: unexpected %q at offset %d", ErrMalformedPath, s, s[i], i)
		}
		i++
	}
}

func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func bracketStep(content string) Step {
	if i, ok := parseIndex(content); ok {
		return IndexStep(i)
	}
	if n := len(content); n >= 2 && (content[0] == '"' || content[0] == '\'') && content[n-1] == content[0] {
		return KeyStep(content[1 : n-1])
	}
	return KeyStep(content)
}

func parseIndex(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// String formats the path for display. Keys containing separators are
// written in bracket form.
func (p Path) String() string {
	var buf strings.Builder
	for i, s := range p {
		switch {
		case s.IsIndex:
			buf.WriteString(s.String())
		case strings.ContainsAny(s.Key, ".[]"):
			buf.WriteString(`["`)
			buf.WriteString(s.Key)
			buf.WriteString(`"]`)
		default:
			if i > 0 {
				buf.WriteByte('.')
			}
			buf.WriteString(s.Key)
		}
	}
	return buf.String()
}
