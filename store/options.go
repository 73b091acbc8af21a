package store

import (
	"log/slog"

	"github.com/roach88/recordstore/storage"
)

// Option configures a Store at construction. Options cannot be changed
// afterwards.
type Option[T any] func(*config[T])

type config[T any] struct {
	data       []T
	hasData    bool
	backend    storage.Backend[T]
	idProperty string
	idFunction func(T) string
	ids        storage.IDGenerator
	logger     *slog.Logger
}

// WithData seeds the store. The records are added by an implicit Add that
// runs before any other call; its outcome is reported by Ready.
func WithData[T any](records ...T) Option[T] {
	return func(c *config[T]) {
		c.data = append(c.data, records...)
		c.hasData = true
	}
}

// WithStorage sets the backend. Default: storage.NewMemory.
func WithStorage[T any](backend storage.Backend[T]) Option[T] {
	return func(c *config[T]) {
		c.backend = backend
	}
}

// WithIDProperty derives identifiers from a top-level property.
// Default: "id". Mutually exclusive with WithIDFunction.
func WithIDProperty[T any](name string) Option[T] {
	return func(c *config[T]) {
		c.idProperty = name
	}
}

// WithIDFunction derives identifiers with fn; an empty string means the
// record has no identity. Mutually exclusive with WithIDProperty.
func WithIDFunction[T any](fn func(T) string) Option[T] {
	return func(c *config[T]) {
		c.idFunction = fn
	}
}

// WithIDGenerator sets the generator behind CreateID, overriding the
// backend's own CreateID.
func WithIDGenerator[T any](gen storage.IDGenerator) Option[T] {
	return func(c *config[T]) {
		c.ids = gen
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(c *config[T]) {
		c.logger = logger
	}
}
