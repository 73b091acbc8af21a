package query

import (
	"errors"
	"strings"
)

// Kind identifies the shape of a query.
type Kind string

const (
	KindFilter   Kind = "filter"
	KindSort     Kind = "sort"
	KindRange    Kind = "range"
	KindCompound Kind = "compound"
)

// ErrInvalidRange is returned by Check for a range with a negative offset or count.
var ErrInvalidRange = errors.New("invalid range")

// Query transforms an ordered record sequence into another one.
//
// Apply must be pure: it never mutates its input and returns the same output
// for the same input.
type Query[T any] interface {
	Apply(items []T) []T
	Kind() Kind
	String() string
}

// errorer is implemented by queries that record construction errors.
type errorer interface {
	Err() error
}

// Check returns the construction error carried by q, if any.
// A nil query is valid and means "no transformation".
func Check[T any](q Query[T]) error {
	if q == nil {
		return nil
	}
	if e, ok := q.(errorer); ok {
		return e.Err()
	}
	return nil
}

// Run applies q to items. A nil query returns a copy of items.
func Run[T any](q Query[T], items []T) []T {
	if q == nil {
		out := make([]T, len(items))
		copy(out, items)
		return out
	}
	return q.Apply(items)
}

// Compound applies its queries in order, feeding each one the previous output.
type Compound[T any] struct {
	queries []Query[T]
}

// NewCompound builds a compound from queries. Nil entries are skipped.
func NewCompound[T any](queries ...Query[T]) Compound[T] {
	return Compound[T]{}.WithQuery(queries...)
}

// WithQuery returns a new compound with queries appended.
func (c Compound[T]) WithQuery(queries ...Query[T]) Compound[T] {
	out := Compound[T]{queries: make([]Query[T], 0, len(c.queries)+len(queries))}
	out.queries = append(out.queries, c.queries...)
	for _, q := range queries {
		if q != nil {
			out.queries = append(out.queries, q)
		}
	}
	return out
}

// Queries returns the member queries in application order.
func (c Compound[T]) Queries() []Query[T] {
	return append([]Query[T](nil), c.queries...)
}

// Kind implements Query.
func (c Compound[T]) Kind() Kind { return KindCompound }

// Err returns the first error carried by a member query.
func (c Compound[T]) Err() error {
	for _, q := range c.queries {
		if err := Check(q); err != nil {
			return err
		}
	}
	return nil
}

// Apply implements Query.
func (c Compound[T]) Apply(items []T) []T {
	if c.Err() != nil {
		return []T{}
	}
	out := Run[T](nil, items)
	for _, q := range c.queries {
		out = q.Apply(out)
	}
	return out
}

// String implements Query.
func (c Compound[T]) String() string {
	parts := make([]string, len(c.queries))
	for i, q := range c.queries {
		parts[i] = q.String()
	}
	return "compound[" + strings.Join(parts, ", ") + "]"
}

// Leading splits q into a filter that runs first and the remaining query.
//
// Nested compounds are flattened, and consecutive leading filters are
// merged with AND. ok is false when q does not start with a filter; rest is
// then q itself. Backends use it to evaluate the leading filter natively.
func Leading[T any](q Query[T]) (lead Filter[T], rest Query[T], ok bool) {
	flat := flatten(q)
	i := 0
	for ; i < len(flat); i++ {
		f, isFilter := flat[i].(Filter[T])
		if !isFilter {
			break
		}
		if !ok {
			lead, ok = f, true
			continue
		}
		lead = NewFilter[T]().And(lead, f)
	}
	if !ok {
		return Filter[T]{}, q, false
	}
	if i == len(flat) {
		return lead, nil, true
	}
	return lead, NewCompound(flat[i:]...), true
}

func flatten[T any](q Query[T]) []Query[T] {
	switch v := q.(type) {
	case nil:
		return nil
	case Compound[T]:
		var out []Query[T]
		for _, member := range v.queries {
			out = append(out, flatten(member)...)
		}
		return out
	default:
		return []Query[T]{q}
	}
}
