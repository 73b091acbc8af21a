package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Pointer addresses a location inside an IRValue tree: a sequence of object
// keys and array indices, written as an RFC 6901 JSON pointer.
//
// The empty Pointer addresses the whole document.
type Pointer []string

// NewPointer builds a Pointer from raw (unescaped) segments.
func NewPointer(segments ...string) Pointer {
	return Pointer(append([]string(nil), segments...))
}

// ParsePointer parses a path.
//
// Three forms are accepted:
//   - "" addresses the root
//   - "/a/b/0" is an RFC 6901 JSON pointer (~1 is "/", ~0 is "~")
//   - anything else is a single top-level property name ("parent")
func ParsePointer(s string) (Pointer, error) {
	if s == "" {
		return Pointer{}, nil
	}
	if !strings.HasPrefix(s, "/") {
		return Pointer{s}, nil
	}

	raw := strings.Split(s[1:], "/")
	p := make(Pointer, len(raw))
	for i, seg := range raw {
		if strings.Contains(strings.ReplaceAll(strings.ReplaceAll(seg, "~0", ""), "~1", ""), "~") {
			return nil, fmt.Errorf("invalid escape in pointer segment %q", seg)
		}
		p[i] = strings.ReplaceAll(strings.ReplaceAll(seg, "~1", "/"), "~0", "~")
	}
	return p, nil
}

// MustParsePointer is ParsePointer for literal paths. Panics on malformed input.
func MustParsePointer(s string) Pointer {
	p, err := ParsePointer(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String renders the pointer in RFC 6901 form.
func (p Pointer) String() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for _, seg := range p {
		b.WriteByte('/')
		b.WriteString(strings.ReplaceAll(strings.ReplaceAll(seg, "~", "~0"), "/", "~1"))
	}
	return b.String()
}

// IsRoot reports whether p addresses the whole document.
func (p Pointer) IsRoot() bool {
	return len(p) == 0
}

// Parent returns the pointer to the containing location and the final segment.
// Must not be called on the root pointer.
func (p Pointer) Parent() (Pointer, string) {
	return p[:len(p)-1], p[len(p)-1]
}

// Append returns a new pointer with seg added. The receiver is not modified.
func (p Pointer) Append(seg string) Pointer {
	out := make(Pointer, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

// Get resolves p against v.
// Returns (nil, false) when any segment does not resolve: a missing key, an
// out-of-range or non-numeric array index, or descending into a scalar.
func (p Pointer) Get(v IRValue) (IRValue, bool) {
	cur := v
	for _, seg := range p {
		switch node := cur.(type) {
		case IRObject:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case IRArray:
			idx, ok := ArrayIndex(seg, len(node))
			if !ok {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// ArrayIndex parses seg as an index into an array of length n.
// Leading zeros, signs and "-" are rejected.
func ArrayIndex(seg string, n int) (int, bool) {
	if seg == "" || (len(seg) > 1 && seg[0] == '0') {
		return 0, false
	}
	idx, err := strconv.Atoi(seg)
	if err != nil || idx < 0 || idx >= n || strings.HasPrefix(seg, "+") {
		return 0, false
	}
	return idx, true
}
