package query

import "fmt"

// Range selects a contiguous window of records.
//
// An offset past the end yields an empty result and a count larger than
// what remains is clamped. Negative values are a construction error
// reported through Err.
type Range[T any] struct {
	offset int
	count  int
	err    error
}

// NewRange selects count records starting at offset.
func NewRange[T any](offset, count int) Range[T] {
	r := Range[T]{offset: offset, count: count}
	if offset < 0 || count < 0 {
		r.err = fmt.Errorf("%w: offset=%d count=%d", ErrInvalidRange, offset, count)
	}
	return r
}

// Offset returns the index of the first selected record.
func (r Range[T]) Offset() int { return r.offset }

// Count returns the maximum number of selected records.
func (r Range[T]) Count() int { return r.count }

// Kind implements Query.
func (r Range[T]) Kind() Kind { return KindRange }

// Err returns ErrInvalidRange (wrapped) for negative bounds.
func (r Range[T]) Err() error { return r.err }

// Apply implements Query.
func (r Range[T]) Apply(items []T) []T {
	if r.err != nil || r.offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if r.count < end-r.offset {
		end = r.offset + r.count
	}
	out := make([]T, end-r.offset)
	copy(out, items[r.offset:end])
	return out
}

// String implements Query.
func (r Range[T]) String() string {
	return fmt.Sprintf("range(%d, %d)", r.offset, r.count)
}
