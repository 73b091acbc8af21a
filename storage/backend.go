package storage

import (
	"context"
	"errors"

	"github.com/roach88/recordstore/query"
)

// ErrExists is returned (wrapped) by Add when an identifier is already stored.
var ErrExists = errors.New("record already exists")

// Entry is a record paired with its derived identifier.
type Entry[T any] struct {
	ID     string
	Record T
}

// Backend holds records of type T.
//
// Implementations must be safe for use from one goroutine at a time; the
// store never calls a backend concurrently. Errors returned by a backend are
// surfaced by the store as BackendError.
type Backend[T any] interface {
	// Get returns stored records for ids in the requested order.
	// Missing identifiers are omitted, not an error.
	Get(ctx context.Context, ids []string) ([]T, error)

	// Add inserts entries. It fails with ErrExists, storing nothing, when
	// any identifier is already present.
	Add(ctx context.Context, entries []Entry[T]) error

	// Put inserts or overwrites entries.
	Put(ctx context.Context, entries []Entry[T]) error

	// Delete removes ids and returns the identifiers that were present.
	Delete(ctx context.Context, ids []string) ([]string, error)

	// Fetch returns every record in storage order with q applied.
	// A nil query returns all records.
	Fetch(ctx context.Context, q query.Query[T]) ([]T, error)

	// CreateID returns a new identifier not derived from any record.
	CreateID(ctx context.Context) (string, error)
}

// Closer is implemented by backends that hold external resources.
type Closer interface {
	Close() error
}
