package tree

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/recordstore/query"
	"github.com/roach88/recordstore/store"
)

// DefaultParentProperty is the property holding a record's parent identifier.
const DefaultParentProperty = "parent"

// Option configures a Tree.
type Option func(*config)

type config struct {
	parent string
}

// WithParentProperty sets the property that holds the parent identifier.
// Default: "parent".
func WithParentProperty(name string) Option {
	return func(c *config) {
		c.parent = name
	}
}

// expandedSet is the expanded-identifier state of a tree and the views
// derived from it with Filter or Sort.
//
// Thread-safety: guarded by mu; Expand and Collapse may race with Fetch.
type expandedSet struct {
	mu  sync.RWMutex
	ids []string
}

func (e *expandedSet) add(ids []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range ids {
		if !slices.Contains(e.ids, id) {
			e.ids = append(e.ids, id)
		}
	}
}

func (e *expandedSet) remove(ids []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = slices.DeleteFunc(e.ids, func(id string) bool {
		return slices.Contains(ids, id)
	})
}

func (e *expandedSet) snapshot() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.ids)
}

// visibility selects whether a fetch honors the expanded set.
type visibility int

const (
	expandedOnly visibility = iota
	allRecords
)

// Tree is a hierarchical view over a store.
type Tree[T any] struct {
	store    *store.Store[T]
	parent   string
	expanded *expandedSet
	base     query.Query[T]
}

// New creates a tree view over s with an empty expanded set.
func New[T any](s *store.Store[T], opts ...Option) *Tree[T] {
	cfg := config{parent: DefaultParentProperty}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Tree[T]{
		store:    s,
		parent:   cfg.parent,
		expanded: &expandedSet{},
	}
}

// Store returns the backing store.
func (t *Tree[T]) Store() *store.Store[T] {
	return t.store
}

// Query returns the view's own query, or nil.
func (t *Tree[T]) Query() query.Query[T] {
	return t.base
}

// Fetch returns the visible records with q applied. Visible means a root,
// or a record whose parent is expanded. Visibility is applied first, then
// the view's own query, then q.
func (t *Tree[T]) Fetch(ctx context.Context, q query.Query[T]) *store.Result[[]T] {
	return t.fetch(ctx, q, expandedOnly)
}

// GetChildren returns the records whose parent is record's identifier,
// regardless of the expanded set. The view's own query still applies.
func (t *Tree[T]) GetChildren(ctx context.Context, record T) *store.Result[[]T] {
	id := t.store.Identify(record)[0]
	return t.fetch(ctx, query.NewFilter[T]().EqualTo(t.parent, id), allRecords)
}

func (t *Tree[T]) fetch(ctx context.Context, q query.Query[T], mode visibility) *store.Result[[]T] {
	if mode == allRecords {
		return t.store.Fetch(ctx, store.Compose(t.base, q))
	}
	return t.store.Fetch(ctx, store.Compose(t.visible(), t.base, q))
}

// visible is "parent in expanded, or parent is null, or parent is missing".
func (t *Tree[T]) visible() query.Query[T] {
	expanded := t.expanded.snapshot()
	values := make([]any, len(expanded))
	for i, id := range expanded {
		values[i] = id
	}
	return query.NewFilter[T]().
		In(t.parent, values...).
		Or().
		EqualTo(t.parent, nil).
		Or().
		Not().Exists(t.parent)
}

// GetRootCollection returns a view restricted to records whose parent is
// null or missing. It shares this tree's expanded set.
func (t *Tree[T]) GetRootCollection() *Tree[T] {
	roots := query.NewFilter[T]().
		EqualTo(t.parent, nil).
		Or().
		Not().Exists(t.parent)
	return t.derive(roots, t.expanded)
}

// Expand adds ids to the expanded set. Expanding an expanded id is a no-op.
func (t *Tree[T]) Expand(ids ...string) {
	t.expanded.add(ids)
}

// Collapse removes ids from the expanded set. Collapsing an id that is not
// expanded is a no-op.
func (t *Tree[T]) Collapse(ids ...string) {
	t.expanded.remove(ids)
}

// Expanded returns the expanded identifiers in expansion order.
func (t *Tree[T]) Expanded() []string {
	return t.expanded.snapshot()
}

// IsExpanded reports whether id is expanded.
func (t *Tree[T]) IsExpanded(id string) bool {
	return slices.Contains(t.expanded.snapshot(), id)
}

// Tree returns a new view over the same store and query with its own,
// empty expanded set.
func (t *Tree[T]) Tree() *Tree[T] {
	return t.derive(nil, &expandedSet{})
}

// Filter returns a view that additionally keeps records matching f.
// The view shares this tree's expanded set.
func (t *Tree[T]) Filter(f query.Filter[T]) *Tree[T] {
	return t.derive(f, t.expanded)
}

// Sort returns a view that additionally orders records by s.
// The view shares this tree's expanded set.
func (t *Tree[T]) Sort(s query.Sort[T]) *Tree[T] {
	return t.derive(s, t.expanded)
}

func (t *Tree[T]) derive(q query.Query[T], expanded *expandedSet) *Tree[T] {
	return &Tree[T]{
		store:    t.store,
		parent:   t.parent,
		expanded: expanded,
		base:     store.Compose(t.base, q),
	}
}
