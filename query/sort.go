package query

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/recordstore/internal/ir"
)

// SortKey is one ordering criterion: either a path compared with
// ir.SortCompare or a Go comparison function.
type SortKey[T any] struct {
	Path       ir.Pointer
	Compare    func(a, b T) int
	Descending bool
}

// Sort orders records by one or more keys. Sorting is stable: records that
// compare equal on every key keep their input order.
//
// Path keys use the total order of ir.SortCompare, so a missing property
// sorts before null, null before booleans, then numbers, strings, arrays and
// objects.
type Sort[T any] struct {
	keys []SortKey[T]
	err  error
}

// NewSort orders by the value at path.
func NewSort[T any](path string, descending bool) Sort[T] {
	return Sort[T]{}.ThenBy(path, descending)
}

// SortFunc orders with a comparison function returning <0, 0 or >0.
func SortFunc[T any](cmp func(a, b T) int, descending bool) Sort[T] {
	return Sort[T]{}.ThenByFunc(cmp, descending)
}

// ThenBy returns a new sort with a tie-breaking path key appended.
func (s Sort[T]) ThenBy(path string, descending bool) Sort[T] {
	p, err := ir.ParsePointer(path)
	if err != nil {
		return s.fail(fmt.Errorf("sort: %w", err))
	}
	return s.with(SortKey[T]{Path: p, Descending: descending})
}

// ThenByFunc returns a new sort with a tie-breaking comparison appended.
func (s Sort[T]) ThenByFunc(cmp func(a, b T) int, descending bool) Sort[T] {
	if cmp == nil {
		return s.fail(fmt.Errorf("sort: nil comparison function"))
	}
	return s.with(SortKey[T]{Compare: cmp, Descending: descending})
}

// Keys returns the ordering criteria, most significant first.
func (s Sort[T]) Keys() []SortKey[T] {
	return append([]SortKey[T](nil), s.keys...)
}

// Kind implements Query.
func (s Sort[T]) Kind() Kind { return KindSort }

// Err returns the first construction error, if any.
func (s Sort[T]) Err() error { return s.err }

// Apply implements Query.
func (s Sort[T]) Apply(items []T) []T {
	if s.err != nil {
		return []T{}
	}

	// Lower every record once rather than once per comparison.
	type entry struct {
		item T
		keys []ir.IRValue
	}
	entries := make([]entry, len(items))
	for i, item := range items {
		entries[i].item = item
		doc, err := ir.FromGo(item)
		if err != nil {
			doc = nil
		}
		entries[i].keys = make([]ir.IRValue, len(s.keys))
		for k, key := range s.keys {
			if key.Compare != nil || doc == nil {
				continue
			}
			if v, ok := key.Path.Get(doc); ok {
				entries[i].keys[k] = v
			}
		}
	}

	slices.SortStableFunc(entries, func(a, b entry) int {
		for k, key := range s.keys {
			var c int
			if key.Compare != nil {
				c = key.Compare(a.item, b.item)
			} else {
				c = ir.SortCompare(a.keys[k], b.keys[k])
			}
			if key.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})

	out := make([]T, len(entries))
	for i, e := range entries {
		out[i] = e.item
	}
	return out
}

// String implements Query.
func (s Sort[T]) String() string {
	parts := make([]string, len(s.keys))
	for i, key := range s.keys {
		name := "func"
		if key.Compare == nil {
			name = pathString(key.Path)
		}
		dir := "asc"
		if key.Descending {
			dir = "desc"
		}
		parts[i] = name + " " + dir
	}
	return "sort(" + strings.Join(parts, ", ") + ")"
}

func (s Sort[T]) with(key SortKey[T]) Sort[T] {
	if s.err != nil {
		return s
	}
	return Sort[T]{keys: append(s.Keys(), key)}
}

func (s Sort[T]) fail(err error) Sort[T] {
	if s.err != nil {
		return s
	}
	return Sort[T]{keys: s.Keys(), err: err}
}
