package patch

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/recordstore/internal/ir"
)

// OpType names a patch operation.
type OpType string

const (
	Add     OpType = "add"
	Remove  OpType = "remove"
	Replace OpType = "replace"
	Test    OpType = "test"
)

func (t OpType) valid() bool {
	switch t {
	case Add, Remove, Replace, Test:
		return true
	}
	return false
}

// Operation is one structural edit. Value is ignored for Remove.
type Operation struct {
	Type  OpType
	Path  ir.Pointer
	Value ir.IRValue
}

// NewOperation builds an operation from a path string (bare key or JSON
// pointer) and any JSON-encodable value.
func NewOperation(t OpType, path string, value any) (Operation, error) {
	if !t.valid() {
		return Operation{}, fmt.Errorf("unknown patch operation %q", t)
	}
	p, err := ir.ParsePointer(path)
	if err != nil {
		return Operation{}, err
	}
	op := Operation{Type: t, Path: p}
	if t != Remove {
		if op.Value, err = ir.FromGo(value); err != nil {
			return Operation{}, fmt.Errorf("%s %s: %w", t, p, err)
		}
	}
	return op, nil
}

// MustOperation is NewOperation that panics on error. For literals in tests
// and package-level variables.
func MustOperation(t OpType, path string, value any) Operation {
	op, err := NewOperation(t, path, value)
	if err != nil {
		panic(err)
	}
	return op
}

func (op Operation) String() string {
	if op.Type == Remove {
		return fmt.Sprintf("%s %s", op.Type, op.Path)
	}
	value, err := ir.MarshalCanonical(op.Value)
	if err != nil {
		value = []byte("?")
	}
	return fmt.Sprintf("%s %s %s", op.Type, op.Path, value)
}

// Patch is an immutable, ordered list of operations.
type Patch struct {
	ops []Operation
}

// New builds a patch. The operations are copied.
func New(ops ...Operation) Patch {
	p := Patch{ops: make([]Operation, len(ops))}
	for i, op := range ops {
		op.Path = append(ir.Pointer(nil), op.Path...)
		op.Value = ir.Clone(op.Value)
		p.ops[i] = op
	}
	return p
}

// Operations returns a copy of the operation list.
func (p Patch) Operations() []Operation {
	return New(p.ops...).ops
}

// Len returns the number of operations.
func (p Patch) Len() int { return len(p.ops) }

func (p Patch) String() string {
	parts := make([]string, len(p.ops))
	for i, op := range p.ops {
		parts[i] = op.String()
	}
	return "[" + strings.Join(parts, "; ") + "]"
}

// Apply applies p to a record of any JSON-encodable type and decodes the
// result back into T. The input record is not modified. A result with a
// property that T does not declare is an error rather than a silent drop.
func Apply[T any](p Patch, record T) (T, error) {
	var zero T
	doc, err := ir.FromGo(record)
	if err != nil {
		return zero, fmt.Errorf("lower record: %w", err)
	}
	out, err := p.ApplyValue(doc)
	if err != nil {
		return zero, err
	}
	result, err := ir.DecodeStrict[T](out)
	if err != nil {
		return zero, fmt.Errorf("decode patched record: %w", err)
	}
	return result, nil
}

// ApplyValue applies every operation in order to a copy of doc.
// It returns the first *PatchApplicationError and discards the copy when
// any operation fails.
func (p Patch) ApplyValue(doc ir.IRValue) (ir.IRValue, error) {
	work := ir.Clone(doc)
	for i, op := range p.ops {
		next, reason := applyOne(work, op)
		if reason != "" {
			return nil, &PatchApplicationError{
				Index:  i,
				Op:     op.Type,
				Path:   op.Path.String(),
				Reason: reason,
			}
		}
		work = next
	}
	return work, nil
}

func applyOne(doc ir.IRValue, op Operation) (ir.IRValue, string) {
	if op.Path.IsRoot() {
		switch op.Type {
		case Add:
			return ir.Clone(op.Value), ""
		case Replace:
			if doc == nil {
				return nil, reasonUndefined
			}
			return ir.Clone(op.Value), ""
		case Remove:
			return nil, reasonRemoveRoot
		case Test:
			if doc == nil {
				return nil, reasonUndefined
			}
			if !ir.Equal(doc, op.Value) {
				return nil, reasonNotEqual
			}
			return doc, ""
		}
	}
	if doc == nil {
		if op.Type != Add {
			return nil, reasonUndefined
		}
		doc = emptyContainer(op.Path[0])
	}
	return edit(doc, op, 0)
}

// edit descends to the parent of the target and performs op there.
// Containers are rebuilt along the path, so edit never writes into a value
// that the caller may still hold.
func edit(node ir.IRValue, op Operation, depth int) (ir.IRValue, string) {
	seg := op.Path[depth]
	last := depth == len(op.Path)-1

	switch container := node.(type) {
	case ir.IRObject:
		child, exists := container[seg]
		if last {
			return editObject(container, seg, child, exists, op)
		}
		if !exists {
			if op.Type != Add {
				return nil, reasonUndefined
			}
			child = emptyContainer(op.Path[depth+1])
		}
		updated, reason := edit(child, op, depth+1)
		if reason != "" {
			return nil, reason
		}
		out := copyObject(container)
		out[seg] = updated
		return out, ""

	case ir.IRArray:
		if last {
			return editArray(container, seg, op)
		}
		idx, ok := ir.ArrayIndex(seg, len(container))
		if !ok {
			if op.Type == Add && seg == "-" {
				updated, reason := edit(emptyContainer(op.Path[depth+1]), op, depth+1)
				if reason != "" {
					return nil, reason
				}
				return append(append(ir.IRArray{}, container...), updated), ""
			}
			return nil, reasonUndefined
		}
		updated, reason := edit(container[idx], op, depth+1)
		if reason != "" {
			return nil, reason
		}
		out := append(ir.IRArray{}, container...)
		out[idx] = updated
		return out, ""

	default:
		return nil, reasonScalar
	}
}

func editObject(obj ir.IRObject, key string, current ir.IRValue, exists bool, op Operation) (ir.IRValue, string) {
	switch op.Type {
	case Add, Replace:
		if op.Type == Replace && !exists {
			return nil, reasonUndefined
		}
		out := copyObject(obj)
		out[key] = ir.Clone(op.Value)
		return out, ""
	case Remove:
		if !exists {
			return nil, reasonUndefined
		}
		out := copyObject(obj)
		delete(out, key)
		return out, ""
	case Test:
		if !exists {
			return nil, reasonUndefined
		}
		if !ir.Equal(current, op.Value) {
			return nil, reasonNotEqual
		}
		return obj, ""
	}
	return nil, "unknown operation"
}

func editArray(arr ir.IRArray, seg string, op Operation) (ir.IRValue, string) {
	if op.Type == Add {
		idx := len(arr)
		if seg != "-" {
			var ok bool
			if idx, ok = ir.ArrayIndex(seg, len(arr)+1); !ok {
				return nil, reasonBadIndex
			}
		}
		out := make(ir.IRArray, 0, len(arr)+1)
		out = append(out, arr[:idx]...)
		out = append(out, ir.Clone(op.Value))
		return append(out, arr[idx:]...), ""
	}

	idx, ok := ir.ArrayIndex(seg, len(arr))
	if !ok {
		return nil, reasonUndefined
	}
	switch op.Type {
	case Replace:
		out := append(ir.IRArray{}, arr...)
		out[idx] = ir.Clone(op.Value)
		return out, ""
	case Remove:
		out := make(ir.IRArray, 0, len(arr)-1)
		out = append(out, arr[:idx]...)
		return append(out, arr[idx+1:]...), ""
	case Test:
		if !ir.Equal(arr[idx], op.Value) {
			return nil, reasonNotEqual
		}
		return arr, ""
	}
	return nil, "unknown operation"
}

// emptyContainer picks the container type add creates for a missing
// intermediate, based on the segment that will address into it.
func emptyContainer(next string) ir.IRValue {
	if next == "-" {
		return ir.IRArray{}
	}
	if _, ok := ir.ArrayIndex(next, math.MaxInt); ok {
		return ir.IRArray{}
	}
	return ir.IRObject{}
}

func copyObject(obj ir.IRObject) ir.IRObject {
	out := make(ir.IRObject, len(obj)+1)
	for k, v := range obj {
		out[k] = v
	}
	return out
}
