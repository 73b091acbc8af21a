package store

import (
	"context"

	"github.com/roach88/recordstore/query"
)

// Fetcher is anything that can run a query against stored records.
// Store, View and tree views all implement it.
type Fetcher[T any] interface {
	Fetch(ctx context.Context, q query.Query[T]) *Result[[]T]
}

// View is a derived collection over a Store. Its Fetch applies the view's
// own query before the caller's. Views hold no data and are immutable.
type View[T any] struct {
	store *Store[T]
	base  query.Query[T]
}

// Store returns the store the view reads from.
func (v *View[T]) Store() *Store[T] {
	return v.store
}

// Query returns the view's own query, or nil for an unrestricted view.
func (v *View[T]) Query() query.Query[T] {
	return v.base
}

// Fetch runs the view's query followed by q.
func (v *View[T]) Fetch(ctx context.Context, q query.Query[T]) *Result[[]T] {
	return v.store.Fetch(ctx, Compose(v.base, q))
}

// Filter returns a view that additionally keeps records matching f.
func (v *View[T]) Filter(f query.Filter[T]) *View[T] {
	return v.derive(f)
}

// Sort returns a view that additionally orders records by s.
func (v *View[T]) Sort(s query.Sort[T]) *View[T] {
	return v.derive(s)
}

// Range returns a view that additionally windows records with r.
func (v *View[T]) Range(r query.Range[T]) *View[T] {
	return v.derive(r)
}

func (v *View[T]) derive(q query.Query[T]) *View[T] {
	return &View[T]{store: v.store, base: Compose(v.base, q)}
}

// Compose chains queries left to right, skipping nils. It returns nil when
// every query is nil and the query itself when only one is left.
func Compose[T any](queries ...query.Query[T]) query.Query[T] {
	kept := make([]query.Query[T], 0, len(queries))
	for _, q := range queries {
		if q != nil {
			kept = append(kept, q)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return query.NewCompound(kept...)
	}
}
