package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/roach88/recordstore/internal/ir"
	"github.com/roach88/recordstore/query"
)

// Memory is an in-memory Backend that keeps records in insertion order.
//
// Records are copied through their JSON form on the way in and on the way
// out, so callers never share memory with stored records. A record type
// therefore round-trips exactly as it would through the sqlite backend:
// numbers inside map[string]any come back as float64.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex,
// so a Memory may also be read directly while a store uses it.
type Memory[T any] struct {
	mu      sync.RWMutex
	order   []string
	records map[string]T
	ids     IDGenerator
}

// MemoryOption configures a Memory backend.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	ids IDGenerator
}

// WithGenerator sets the generator used by CreateID. Default: UUIDv7Generator.
func WithGenerator(gen IDGenerator) MemoryOption {
	return func(c *memoryConfig) {
		c.ids = gen
	}
}

// NewMemory creates an empty in-memory backend.
func NewMemory[T any](opts ...MemoryOption) *Memory[T] {
	cfg := memoryConfig{ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Memory[T]{
		records: make(map[string]T),
		ids:     cfg.ids,
	}
}

// Get implements Backend.
func (m *Memory[T]) Get(_ context.Context, ids []string) ([]T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if rec, ok := m.records[id]; ok {
			cp, err := copyRecord(rec)
			if err != nil {
				return nil, fmt.Errorf("copy record %s: %w", id, err)
			}
			out = append(out, cp)
		}
	}
	return out, nil
}

// Add implements Backend.
func (m *Memory[T]) Add(_ context.Context, entries []Entry[T]) error {
	entries, err := copyEntries(entries)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var taken []string
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if _, ok := m.records[e.ID]; ok || seen[e.ID] {
			taken = append(taken, e.ID)
		}
		seen[e.ID] = true
	}
	if len(taken) > 0 {
		return fmt.Errorf("%w: %s", ErrExists, strings.Join(taken, ", "))
	}
	m.putLocked(entries)
	return nil
}

// Put implements Backend.
func (m *Memory[T]) Put(_ context.Context, entries []Entry[T]) error {
	entries, err := copyEntries(entries)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(entries)
	return nil
}

func (m *Memory[T]) putLocked(entries []Entry[T]) {
	for _, e := range entries {
		if _, ok := m.records[e.ID]; !ok {
			m.order = append(m.order, e.ID)
		}
		m.records[e.ID] = e.Record
	}
}

// Delete implements Backend.
func (m *Memory[T]) Delete(_ context.Context, ids []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := make([]string, 0, len(ids))
	gone := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := m.records[id]; ok {
			delete(m.records, id)
			gone[id] = true
			deleted = append(deleted, id)
		}
	}
	if len(deleted) == 0 {
		return deleted, nil
	}

	kept := m.order[:0]
	for _, id := range m.order {
		if !gone[id] {
			kept = append(kept, id)
		}
	}
	m.order = kept
	return deleted, nil
}

// Fetch implements Backend.
func (m *Memory[T]) Fetch(_ context.Context, q query.Query[T]) ([]T, error) {
	if err := query.Check(q); err != nil {
		return nil, err
	}

	m.mu.RLock()
	all := make([]T, len(m.order))
	for i, id := range m.order {
		all[i] = m.records[id]
	}
	m.mu.RUnlock()

	if q != nil {
		all = q.Apply(all)
	}
	out := make([]T, len(all))
	for i, rec := range all {
		cp, err := copyRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("copy record: %w", err)
		}
		out[i] = cp
	}
	return out, nil
}

// CreateID implements Backend.
func (m *Memory[T]) CreateID(context.Context) (string, error) {
	return m.ids.Generate(), nil
}

// Len returns the number of stored records.
func (m *Memory[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

func copyRecord[T any](rec T) (T, error) {
	doc, err := ir.FromGo(rec)
	if err != nil {
		var zero T
		return zero, err
	}
	return ir.Decode[T](doc)
}

func copyEntries[T any](entries []Entry[T]) ([]Entry[T], error) {
	out := make([]Entry[T], len(entries))
	for i, e := range entries {
		rec, err := copyRecord(e.Record)
		if err != nil {
			return nil, fmt.Errorf("copy record %s: %w", e.ID, err)
		}
		out[i] = Entry[T]{ID: e.ID, Record: rec}
	}
	return out, nil
}
