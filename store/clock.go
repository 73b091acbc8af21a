package store

import "sync/atomic"

// Clock is the monotonic logical clock that stamps each call with its
// submission sequence number.
//
// Seq values order calls exactly as the queue runs them, independent of wall
// time, so UpdateResult.Seq can be compared across subscribers.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0. The first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}
