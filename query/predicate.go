package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr/vm"

	"github.com/roach88/recordstore/internal/ir"
)

// Predicate represents a filter condition over one record.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in backend compilers.
//
// Predicate types:
//   - Compare: path <op> literal
//   - In: path value is one of a literal list
//   - Contains: array at path holds a value, or string at path holds a substring
//   - DeepEqual: structural equality at path
//   - Exists: path resolves
//   - Match: string at path matches a regular expression
//   - Func: Go callback over the raw record
//   - Expr: compiled expr-lang program over the record's fields
//   - And, Or, Not: logical combination
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
	String() string
}

// Op is a scalar comparison operator.
type Op string

const (
	OpEqual          Op = "eq"
	OpNotEqual       Op = "ne"
	OpLess           Op = "lt"
	OpLessOrEqual    Op = "lte"
	OpGreater        Op = "gt"
	OpGreaterOrEqual Op = "gte"
)

// Compare represents a path-versus-literal comparison.
//
// Equality (OpEqual, OpNotEqual) is scalar equality: containers are never
// equal under Compare, use DeepEqual for structural comparison. Ordering
// operators only hold between values of the same kind (numbers, strings,
// bools). A path that does not resolve makes every operator false.
type Compare struct {
	Path  ir.Pointer
	Op    Op
	Value ir.IRValue
}

func (Compare) predicateNode() {}

func (c Compare) String() string {
	return fmt.Sprintf("%s %s %s", pathString(c.Path), c.Op, valueString(c.Value))
}

// In holds when the value at Path is scalar-equal to one of Values.
type In struct {
	Path   ir.Pointer
	Values []ir.IRValue
}

func (In) predicateNode() {}

func (p In) String() string {
	parts := make([]string, len(p.Values))
	for i, v := range p.Values {
		parts[i] = valueString(v)
	}
	return fmt.Sprintf("%s in [%s]", pathString(p.Path), strings.Join(parts, ", "))
}

// Contains holds when the array at Path has an element deep-equal to Value,
// or when both the value at Path and Value are strings and Value is a substring.
type Contains struct {
	Path  ir.Pointer
	Value ir.IRValue
}

func (Contains) predicateNode() {}

func (p Contains) String() string {
	return fmt.Sprintf("%s contains %s", pathString(p.Path), valueString(p.Value))
}

// DeepEqual holds when the value at Path is structurally equal to Value.
type DeepEqual struct {
	Path  ir.Pointer
	Value ir.IRValue
}

func (DeepEqual) predicateNode() {}

func (p DeepEqual) String() string {
	return fmt.Sprintf("%s deq %s", pathString(p.Path), valueString(p.Value))
}

// Exists holds when Path resolves, including to an explicit null.
type Exists struct {
	Path ir.Pointer
}

func (Exists) predicateNode() {}

func (p Exists) String() string {
	return fmt.Sprintf("exists %s", pathString(p.Path))
}

// Match holds when the value at Path is a string matched by Pattern.
type Match struct {
	Path    ir.Pointer
	Pattern *regexp.Regexp
}

func (Match) predicateNode() {}

func (p Match) String() string {
	return fmt.Sprintf("%s matches /%s/", pathString(p.Path), p.Pattern)
}

// Func is an opaque Go predicate over the raw record.
// Backends can never push it down.
type Func struct {
	Name string
	Test func(record any) bool
}

func (Func) predicateNode() {}

func (p Func) String() string {
	if p.Name == "" {
		return "func()"
	}
	return p.Name + "()"
}

// Expr is an expr-lang program evaluated against the record's top-level
// fields. The program must produce a bool.
type Expr struct {
	Source  string
	Program *vm.Program
}

func (Expr) predicateNode() {}

func (p Expr) String() string {
	return fmt.Sprintf("expr(%q)", p.Source)
}

// And represents a conjunction of predicates (all must be true).
// An empty And is vacuously true. Evaluation short-circuits left to right.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

func (p And) String() string {
	return joinPredicates(p.Predicates, " and ", "true")
}

// Or represents a disjunction of predicates (any must be true).
// An empty Or is false. Evaluation short-circuits left to right.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

func (p Or) String() string {
	return joinPredicates(p.Predicates, " or ", "false")
}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

func (p Not) String() string {
	return "not " + wrap(p.Predicate)
}

func joinPredicates(preds []Predicate, sep, empty string) string {
	if len(preds) == 0 {
		return empty
	}
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = wrap(p)
	}
	return strings.Join(parts, sep)
}

func wrap(p Predicate) string {
	switch p.(type) {
	case And, Or:
		return "(" + p.String() + ")"
	default:
		return p.String()
	}
}

func pathString(p ir.Pointer) string {
	if len(p) == 1 && !strings.ContainsAny(p[0], "/~") && p[0] != "" {
		return p[0]
	}
	if p.IsRoot() {
		return "$"
	}
	return p.String()
}

func valueString(v ir.IRValue) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
