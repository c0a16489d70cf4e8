// Package datapath reads and writes values inside decoded JSON documents by
// dotted path. Bracketed indices are accepted and normalized, so "a[0].b"
// and "a.0.b" address the same value.
//
// Set never mutates its input. Only the containers along the written path
// are copied; everything else is shared with the original document.
package datapath

import (
	"strconv"
	"strings"
)

// Normalize rewrites bracketed indices into dotted form: "a[0].b" becomes
// "a.0.b".
func Normalize(path string) string {
	if !strings.ContainsRune(path, '[') {
		return path
	}
	var b strings.Builder
	b.Grow(len(path))
	for i := 0; i < len(path); i++ {
		switch c := path[i]; c {
		case '[':
			if b.Len() > 0 {
				b.WriteByte('.')
			}
		case ']':
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Split returns the normalized segments of path. An empty path has no
// segments.
func Split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(Normalize(path), ".")
}

// index parses seg as an array index.
func index(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	for i := 0; i < len(seg); i++ {
		if seg[i] < '0' || seg[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(seg)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Get returns the value at path inside root. The boolean is false when any
// step is missing or cannot be traversed, when an index is out of range, when
// a non-numeric segment meets an array, and for the empty path.
func Get(root any, path string) (any, bool) {
	segs := Split(path)
	if len(segs) == 0 {
		return nil, false
	}

	cur := root
	for _, seg := range segs {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, ok := index(seg)
			if !ok || i >= len(c) {
				return nil, false
			}
			cur = c[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Lookup is Get for callers that treat a stored nil like a missing value.
func Lookup(root any, path string) (any, bool) {
	v, ok := Get(root, path)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Set returns a copy of root with value written at path. Missing, nil or
// scalar containers along the way are replaced by a new array when the next
// segment is numeric and by a new object otherwise. Writing past the end of
// an array grows it with nil elements.
//
// A non-numeric segment cannot address an existing array; in that case the
// write is dropped and root is returned unchanged. The empty path also
// returns root unchanged.
func Set(root any, path string, value any) any {
	segs := Split(path)
	if len(segs) == 0 {
		return root
	}
	out, ok := set(root, segs, value)
	if !ok {
		return root
	}
	return out
}

func set(node any, segs []string, value any) (any, bool) {
	seg := segs[0]
	last := len(segs) == 1

	switch c := node.(type) {
	case map[string]any:
		clone := make(map[string]any, len(c)+1)
		for k, v := range c {
			clone[k] = v
		}
		if last {
			clone[seg] = value
			return clone, true
		}
		child, ok := set(c[seg], segs[1:], value)
		if !ok {
			return nil, false
		}
		clone[seg] = child
		return clone, true

	case []any:
		i, ok := index(seg)
		if !ok {
			return nil, false
		}
		size := len(c)
		if i >= size {
			size = i + 1
		}
		clone := make([]any, size)
		copy(clone, c)
		if last {
			clone[i] = value
			return clone, true
		}
		var existing any
		if i < len(c) {
			existing = c[i]
		}
		child, ok := set(existing, segs[1:], value)
		if !ok {
			return nil, false
		}
		clone[i] = child
		return clone, true
	}

	// Missing, nil or scalar: vivify a container shaped for this segment.
	if _, numeric := index(seg); numeric {
		return set([]any{}, segs, value)
	}
	return set(map[string]any{}, segs, value)
}
