package store

import (
	"context"
	"sync"
	"sync/atomic"
)

// Result is the outcome of one store call: a future that can be awaited and
// a single-shot observable that can be subscribed to. Both are fed by the
// same completion, so the value is computed once.
//
// Thread-safety: all methods are safe for concurrent use.
type Result[R any] struct {
	mu      sync.Mutex
	done    chan struct{}
	settled bool
	value   R
	err     error
	subs    []*Subscription[R]
}

func newResult[R any]() *Result[R] {
	return &Result[R]{done: make(chan struct{})}
}

// resolved returns an already settled Result.
func resolved[R any](value R, err error) *Result[R] {
	r := newResult[R]()
	r.settle(value, err)
	return r
}

// settle records the outcome, releases waiters, then delivers to
// subscribers in subscription order on the calling goroutine.
// Only the first call has an effect.
func (r *Result[R]) settle(value R, err error) {
	r.mu.Lock()
	if r.settled {
		r.mu.Unlock()
		return
	}
	r.settled = true
	r.value, r.err = value, err
	subs := r.subs
	r.subs = nil
	close(r.done)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(value, err)
	}
}

// Wait blocks until the call settles or ctx is done. Cancelling ctx stops
// waiting only; the call itself still runs to completion.
func (r *Result[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Done returns a channel closed when the call has settled.
func (r *Result[R]) Done() <-chan struct{} {
	return r.done
}

// Err returns the call's error once settled, and nil before that.
func (r *Result[R]) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Subscribe registers callbacks that receive exactly one onNext (with the
// value) or onError (with the error), then onComplete. Any callback may be
// nil.
//
// Subscribing to a settled Result delivers immediately on the caller's
// goroutine. Otherwise delivery happens on the store's drain goroutine
// before the next call starts.
func (r *Result[R]) Subscribe(onNext func(R), onError func(error), onComplete func()) *Subscription[R] {
	sub := &Subscription[R]{onNext: onNext, onError: onError, onComplete: onComplete}

	r.mu.Lock()
	if !r.settled {
		r.subs = append(r.subs, sub)
		r.mu.Unlock()
		return sub
	}
	value, err := r.value, r.err
	r.mu.Unlock()

	sub.deliver(value, err)
	return sub
}

// Subscription is a registration made by Result.Subscribe.
type Subscription[R any] struct {
	onNext       func(R)
	onError      func(error)
	onComplete   func()
	unsubscribed atomic.Bool
}

// Unsubscribe stops any callback that has not been delivered yet.
func (s *Subscription[R]) Unsubscribe() {
	s.unsubscribed.Store(true)
}

func (s *Subscription[R]) deliver(value R, err error) {
	if s.unsubscribed.Load() {
		return
	}
	if err != nil {
		if s.onError != nil {
			s.onError(err)
		}
	} else if s.onNext != nil {
		s.onNext(value)
	}
	if s.unsubscribed.Load() {
		return
	}
	if s.onComplete != nil {
		s.onComplete()
	}
}
