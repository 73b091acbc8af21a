package patch

import (
	"fmt"

	"github.com/roach88/recordstore/internal/ir"
)

// Diff returns a patch that transforms from into to.
//
// Objects are compared key by key (in canonical key order), arrays of equal
// length element by element; any other difference is a single replace.
// Applying the result to from yields a value equal to to.
func Diff(from, to any) (Patch, error) {
	a, err := ir.FromGo(from)
	if err != nil {
		return Patch{}, fmt.Errorf("diff from: %w", err)
	}
	b, err := ir.FromGo(to)
	if err != nil {
		return Patch{}, fmt.Errorf("diff to: %w", err)
	}
	var ops []Operation
	diffValues(ir.Pointer{}, a, b, &ops)
	return Patch{ops: ops}, nil
}

func diffValues(path ir.Pointer, a, b ir.IRValue, ops *[]Operation) {
	if ir.Equal(a, b) {
		return
	}
	switch av := a.(type) {
	case ir.IRObject:
		if bv, ok := b.(ir.IRObject); ok {
			diffObjects(path, av, bv, ops)
			return
		}
	case ir.IRArray:
		if bv, ok := b.(ir.IRArray); ok && len(av) == len(bv) {
			for i := range av {
				diffValues(path.Append(fmt.Sprint(i)), av[i], bv[i], ops)
			}
			return
		}
	}
	*ops = append(*ops, Operation{Type: Replace, Path: path, Value: ir.Clone(b)})
}

func diffObjects(path ir.Pointer, a, b ir.IRObject, ops *[]Operation) {
	for _, key := range a.SortedKeys() {
		if _, ok := b[key]; !ok {
			*ops = append(*ops, Operation{Type: Remove, Path: path.Append(key)})
		}
	}
	for _, key := range b.SortedKeys() {
		av, ok := a[key]
		if !ok {
			*ops = append(*ops, Operation{Type: Add, Path: path.Append(key), Value: ir.Clone(b[key])})
			continue
		}
		diffValues(path.Append(key), av, b[key], ops)
	}
}
