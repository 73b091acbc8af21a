package query

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/expr-lang/expr"

	"github.com/roach88/recordstore/internal/ir"
)

// Filter keeps the records matching a predicate chain.
//
// The chain is a list of sections separated by Or(); terms inside a section
// are AND-ed. The zero value (and NewFilter) matches every record.
//
// Filter is immutable: every builder returns a new Filter that shares no
// mutable state with the receiver.
type Filter[T any] struct {
	sections   [][]Predicate
	negateNext bool
	err        error
}

// NewFilter returns an empty filter that matches every record.
func NewFilter[T any]() Filter[T] {
	return Filter[T]{}
}

// Kind implements Query.
func (f Filter[T]) Kind() Kind { return KindFilter }

// Err returns the first construction error recorded by a builder, if any.
func (f Filter[T]) Err() error { return f.err }

// EqualTo adds "value at path is scalar-equal to v". Pass nil to match an explicit null.
func (f Filter[T]) EqualTo(path string, v any) Filter[T] {
	return f.compare(path, OpEqual, v)
}

// NotEqualTo adds "value at path exists and is not scalar-equal to v".
func (f Filter[T]) NotEqualTo(path string, v any) Filter[T] {
	return f.compare(path, OpNotEqual, v)
}

// LessThan adds "value at path < v".
func (f Filter[T]) LessThan(path string, v any) Filter[T] {
	return f.compare(path, OpLess, v)
}

// LessThanOrEqualTo adds "value at path <= v".
func (f Filter[T]) LessThanOrEqualTo(path string, v any) Filter[T] {
	return f.compare(path, OpLessOrEqual, v)
}

// GreaterThan adds "value at path > v".
func (f Filter[T]) GreaterThan(path string, v any) Filter[T] {
	return f.compare(path, OpGreater, v)
}

// GreaterThanOrEqualTo adds "value at path >= v".
func (f Filter[T]) GreaterThanOrEqualTo(path string, v any) Filter[T] {
	return f.compare(path, OpGreaterOrEqual, v)
}

// In adds "value at path is one of values".
func (f Filter[T]) In(path string, values ...any) Filter[T] {
	p, err := ir.ParsePointer(path)
	if err != nil {
		return f.fail(err)
	}
	lowered := make([]ir.IRValue, len(values))
	for i, v := range values {
		if lowered[i], err = ir.FromGo(v); err != nil {
			return f.fail(fmt.Errorf("in %s: %w", path, err))
		}
	}
	return f.with(In{Path: p, Values: lowered})
}

// Contains adds "array at path holds v" (or "string at path contains v").
func (f Filter[T]) Contains(path string, v any) Filter[T] {
	p, val, err := pathValue(path, v)
	if err != nil {
		return f.fail(err)
	}
	return f.with(Contains{Path: p, Value: val})
}

// DeepEqualTo adds "value at path is structurally equal to v".
func (f Filter[T]) DeepEqualTo(path string, v any) Filter[T] {
	p, val, err := pathValue(path, v)
	if err != nil {
		return f.fail(err)
	}
	return f.with(DeepEqual{Path: p, Value: val})
}

// Exists adds "path resolves" (an explicit null counts as present).
func (f Filter[T]) Exists(path string) Filter[T] {
	p, err := ir.ParsePointer(path)
	if err != nil {
		return f.fail(err)
	}
	return f.with(Exists{Path: p})
}

// Matches adds "string at path matches re".
func (f Filter[T]) Matches(path string, re *regexp.Regexp) Filter[T] {
	p, err := ir.ParsePointer(path)
	if err != nil {
		return f.fail(err)
	}
	if re == nil {
		return f.fail(errors.New("matches: nil regular expression"))
	}
	return f.with(Match{Path: p, Pattern: re})
}

// Custom adds an arbitrary Go predicate. name is only used for String().
func (f Filter[T]) Custom(name string, fn func(T) bool) Filter[T] {
	if fn == nil {
		return f.fail(errors.New("custom: nil function"))
	}
	return f.with(Func{Name: name, Test: func(record any) bool {
		t, ok := record.(T)
		return ok && fn(t)
	}})
}

// Where adds an expr-lang boolean expression over the record's top-level
// fields, e.g. `value > 2 && nestedProperty.value != 3`.
func (f Filter[T]) Where(source string) Filter[T] {
	program, err := expr.Compile(source, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return f.fail(fmt.Errorf("where %q: %w", source, err))
	}
	return f.with(Expr{Source: source, Program: program})
}

// And joins further terms with AND. Without arguments it is purely
// connective (terms are AND-ed implicitly). Each argument filter is appended
// as a parenthesized group.
func (f Filter[T]) And(others ...Filter[T]) Filter[T] {
	out := f
	for _, other := range others {
		if other.err != nil {
			return f.fail(other.err)
		}
		out = out.with(other.group())
	}
	return out
}

// Or starts a new alternative. Terms after Or() bind to each other with AND
// before the alternatives are OR-ed. Each argument filter becomes its own
// parenthesized alternative.
func (f Filter[T]) Or(others ...Filter[T]) Filter[T] {
	if len(others) == 0 {
		return f.split()
	}
	out := f
	for _, other := range others {
		if other.err != nil {
			return f.fail(other.err)
		}
		out = out.split().with(other.group())
	}
	return out
}

// Not negates the next term when called without arguments. With arguments
// it appends the negation of their conjunction.
func (f Filter[T]) Not(others ...Filter[T]) Filter[T] {
	if len(others) == 0 {
		out := f.clone()
		out.negateNext = !out.negateNext
		return out
	}
	group := make([]Predicate, 0, len(others))
	for _, other := range others {
		if other.err != nil {
			return f.fail(other.err)
		}
		group = append(group, other.group())
	}
	var inner Predicate = And{Predicates: group}
	if len(group) == 1 {
		inner = group[0]
	}
	return f.with(Not{Predicate: inner})
}

// Predicate lowers the chain to a predicate tree:
// Or over sections, each section an And over its terms.
// Empty sections (a leading or trailing Or()) are dropped.
func (f Filter[T]) Predicate() Predicate {
	var alternatives []Predicate
	for _, section := range f.sections {
		switch len(section) {
		case 0:
			continue
		case 1:
			alternatives = append(alternatives, section[0])
		default:
			alternatives = append(alternatives, And{Predicates: append([]Predicate(nil), section...)})
		}
	}
	switch len(alternatives) {
	case 0:
		return And{}
	case 1:
		return alternatives[0]
	default:
		return Or{Predicates: alternatives}
	}
}

// Test reports whether record matches the filter.
func (f Filter[T]) Test(record T) bool {
	if f.err != nil {
		return false
	}
	return Matches(f.Predicate(), record)
}

// Apply implements Query: it keeps matching records in input order.
func (f Filter[T]) Apply(items []T) []T {
	out := make([]T, 0, len(items))
	if f.err != nil {
		return out
	}
	pred := f.Predicate()
	for _, item := range items {
		if Matches(pred, item) {
			out = append(out, item)
		}
	}
	return out
}

// String implements Query.
func (f Filter[T]) String() string {
	if f.err != nil {
		return "filter(invalid: " + f.err.Error() + ")"
	}
	return "filter(" + f.Predicate().String() + ")"
}

func (f Filter[T]) compare(path string, op Op, v any) Filter[T] {
	p, val, err := pathValue(path, v)
	if err != nil {
		return f.fail(err)
	}
	return f.with(Compare{Path: p, Op: op, Value: val})
}

// group returns the filter's predicate for embedding into another chain.
func (f Filter[T]) group() Predicate {
	return f.Predicate()
}

// with appends a term to the last section, applying a pending Not().
func (f Filter[T]) with(p Predicate) Filter[T] {
	if f.err != nil {
		return f
	}
	out := f.clone()
	if out.negateNext {
		p = Not{Predicate: p}
		out.negateNext = false
	}
	if len(out.sections) == 0 {
		out.sections = [][]Predicate{nil}
	}
	last := len(out.sections) - 1
	out.sections[last] = append(out.sections[last], p)
	return out
}

func (f Filter[T]) split() Filter[T] {
	if f.err != nil {
		return f
	}
	out := f.clone()
	if len(out.sections) == 0 {
		out.sections = [][]Predicate{nil}
	}
	out.sections = append(out.sections, nil)
	return out
}

func (f Filter[T]) fail(err error) Filter[T] {
	if f.err != nil {
		return f
	}
	out := f.clone()
	out.err = err
	return out
}

// clone copies the section slices so appends never write into a slice
// shared with the receiver.
func (f Filter[T]) clone() Filter[T] {
	out := Filter[T]{negateNext: f.negateNext, err: f.err}
	out.sections = make([][]Predicate, len(f.sections))
	for i, section := range f.sections {
		out.sections[i] = append([]Predicate(nil), section...)
	}
	return out
}

func pathValue(path string, v any) (ir.Pointer, ir.IRValue, error) {
	p, err := ir.ParsePointer(path)
	if err != nil {
		return nil, nil, err
	}
	val, err := ir.FromGo(v)
	if err != nil {
		return nil, nil, fmt.Errorf("value for %s: %w", path, err)
	}
	return p, val, nil
}
