package testutil

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/recordstore/query"
	"github.com/roach88/recordstore/storage"
)

// Backend operation names used by DelayedBackend and FailingBackend.
const (
	OpGet      = "get"
	OpAdd      = "add"
	OpPut      = "put"
	OpDelete   = "delete"
	OpFetch    = "fetch"
	OpCreateID = "createId"
)

// DelayFunc returns how long a backend operation should take.
type DelayFunc func(op string) time.Duration

// FixedDelays returns a DelayFunc reading per-operation delays from delays.
// Operations not listed complete immediately.
func FixedDelays(delays map[string]time.Duration) DelayFunc {
	return func(op string) time.Duration {
		return delays[op]
	}
}

// RandomDelays returns a DelayFunc with a uniformly random delay below max,
// seeded so a failing run can be reproduced.
func RandomDelays(max time.Duration, seed uint64) DelayFunc {
	var mu sync.Mutex
	rng := rand.New(rand.NewPCG(seed, seed))
	return func(string) time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return time.Duration(rng.Int64N(int64(max)))
	}
}

// DelayedBackend wraps a backend and sleeps before every call.
//
// It records the order of calls and the highest number of calls that were
// in flight at the same time.
//
// Thread-safety: safe for concurrent use if the inner backend is.
type DelayedBackend[T any] struct {
	inner storage.Backend[T]
	delay DelayFunc

	mu    sync.Mutex
	calls []string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

// NewDelayedBackend wraps inner. A nil delay makes every call immediate.
func NewDelayedBackend[T any](inner storage.Backend[T], delay DelayFunc) *DelayedBackend[T] {
	if delay == nil {
		delay = FixedDelays(nil)
	}
	return &DelayedBackend[T]{inner: inner, delay: delay}
}

// Calls returns the operations seen so far, in the order they started.
func (b *DelayedBackend[T]) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// MaxInFlight returns the highest number of overlapping calls observed.
func (b *DelayedBackend[T]) MaxInFlight() int {
	return int(b.maxInFlight.Load())
}

func (b *DelayedBackend[T]) enter(ctx context.Context, op string) (func(), error) {
	b.mu.Lock()
	b.calls = append(b.calls, op)
	b.mu.Unlock()

	n := b.inFlight.Add(1)
	for {
		seen := b.maxInFlight.Load()
		if n <= seen || b.maxInFlight.CompareAndSwap(seen, n) {
			break
		}
	}
	leave := func() { b.inFlight.Add(-1) }

	if d := b.delay(op); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			leave()
			return nil, ctx.Err()
		}
	}
	return leave, nil
}

func (b *DelayedBackend[T]) Get(ctx context.Context, ids []string) ([]T, error) {
	leave, err := b.enter(ctx, OpGet)
	if err != nil {
		return nil, err
	}
	defer leave()
	return b.inner.Get(ctx, ids)
}

func (b *DelayedBackend[T]) Add(ctx context.Context, entries []storage.Entry[T]) error {
	leave, err := b.enter(ctx, OpAdd)
	if err != nil {
		return err
	}
	defer leave()
	return b.inner.Add(ctx, entries)
}

func (b *DelayedBackend[T]) Put(ctx context.Context, entries []storage.Entry[T]) error {
	leave, err := b.enter(ctx, OpPut)
	if err != nil {
		return err
	}
	defer leave()
	return b.inner.Put(ctx, entries)
}

func (b *DelayedBackend[T]) Delete(ctx context.Context, ids []string) ([]string, error) {
	leave, err := b.enter(ctx, OpDelete)
	if err != nil {
		return nil, err
	}
	defer leave()
	return b.inner.Delete(ctx, ids)
}

func (b *DelayedBackend[T]) Fetch(ctx context.Context, q query.Query[T]) ([]T, error) {
	leave, err := b.enter(ctx, OpFetch)
	if err != nil {
		return nil, err
	}
	defer leave()
	return b.inner.Fetch(ctx, q)
}

func (b *DelayedBackend[T]) CreateID(ctx context.Context) (string, error) {
	leave, err := b.enter(ctx, OpCreateID)
	if err != nil {
		return "", err
	}
	defer leave()
	return b.inner.CreateID(ctx)
}

// FailingBackend wraps a backend and returns injected errors.
//
// Thread-safety: safe for concurrent use if the inner backend is.
type FailingBackend[T any] struct {
	inner storage.Backend[T]

	mu       sync.Mutex
	failures map[string][]error
	panics   map[string]any
}

// NewFailingBackend wraps inner with no failures armed.
func NewFailingBackend[T any](inner storage.Backend[T]) *FailingBackend[T] {
	return &FailingBackend[T]{
		inner:    inner,
		failures: make(map[string][]error),
		panics:   make(map[string]any),
	}
}

// FailNext makes the next call of op return err. Calling it several times
// queues several failures, consumed in order.
func (b *FailingBackend[T]) FailNext(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = append(b.failures[op], err)
}

// PanicNext makes the next call of op panic with value.
func (b *FailingBackend[T]) PanicNext(op string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.panics[op] = value
}

func (b *FailingBackend[T]) check(op string) error {
	b.mu.Lock()
	if v, ok := b.panics[op]; ok {
		delete(b.panics, op)
		b.mu.Unlock()
		panic(v)
	}
	defer b.mu.Unlock()

	queued := b.failures[op]
	if len(queued) == 0 {
		return nil
	}
	b.failures[op] = queued[1:]
	return queued[0]
}

func (b *FailingBackend[T]) Get(ctx context.Context, ids []string) ([]T, error) {
	if err := b.check(OpGet); err != nil {
		return nil, err
	}
	return b.inner.Get(ctx, ids)
}

func (b *FailingBackend[T]) Add(ctx context.Context, entries []storage.Entry[T]) error {
	if err := b.check(OpAdd); err != nil {
		return err
	}
	return b.inner.Add(ctx, entries)
}

func (b *FailingBackend[T]) Put(ctx context.Context, entries []storage.Entry[T]) error {
	if err := b.check(OpPut); err != nil {
		return err
	}
	return b.inner.Put(ctx, entries)
}

func (b *FailingBackend[T]) Delete(ctx context.Context, ids []string) ([]string, error) {
	if err := b.check(OpDelete); err != nil {
		return nil, err
	}
	return b.inner.Delete(ctx, ids)
}

func (b *FailingBackend[T]) Fetch(ctx context.Context, q query.Query[T]) ([]T, error) {
	if err := b.check(OpFetch); err != nil {
		return nil, err
	}
	return b.inner.Fetch(ctx, q)
}

func (b *FailingBackend[T]) CreateID(ctx context.Context) (string, error) {
	if err := b.check(OpCreateID); err != nil {
		return "", err
	}
	return b.inner.CreateID(ctx)
}
