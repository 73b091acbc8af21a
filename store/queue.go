package store

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// operation is one queued store call.
type operation struct {
	name string
	seq  int64
	ctx  context.Context
	run  func(ctx context.Context, seq int64)
	// abort settles the call's Result when the operation panics or the
	// store is closed before it runs.
	abort func(err error)
}

// opQueue is the per-store FIFO of pending calls.
//
// The queue is unbounded so that submitting a call never blocks the caller.
// A drain goroutine is started on demand when the first operation arrives
// and exits when the queue is empty, so an idle store holds no goroutine.
//
// CRITICAL: at most one drain goroutine exists at a time (running flag under
// mu). That single goroutine is what serializes calls.
type opQueue struct {
	mu      sync.Mutex
	ops     []operation
	running bool
	closed  bool
	pending sync.WaitGroup
	clock   *Clock
	logger  *slog.Logger
}

func newOpQueue(clock *Clock, logger *slog.Logger) *opQueue {
	return &opQueue{
		ops:    make([]operation, 0, 16),
		clock:  clock,
		logger: logger,
	}
}

// Enqueue stamps op with the next sequence number, appends it and starts
// the drain goroutine if needed. Stamping and appending share one lock, so
// seq order is queue order.
// Thread-safe: may be called from any goroutine, including from callbacks
// running on the drain goroutine.
// Returns false if the queue is closed.
func (q *opQueue) Enqueue(op operation) (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, false
	}

	op.seq = q.clock.Next()
	q.ops = append(q.ops, op)
	q.pending.Add(1)
	if !q.running {
		q.running = true
		go q.drain()
	}
	return op.seq, true
}

// TryDequeue removes the front operation. When the queue is empty it clears
// the running flag under the same lock, so a concurrent Enqueue starts a new
// drain goroutine.
func (q *opQueue) TryDequeue() (operation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ops) == 0 {
		q.running = false
		return operation{}, false
	}

	op := q.ops[0]

	// Nil out the slot so the closure and its captured records can be collected.
	q.ops[0] = operation{}
	if len(q.ops) == 1 {
		q.ops = q.ops[:0]
	} else {
		q.ops = q.ops[1:]
	}
	return op, true
}

func (q *opQueue) drain() {
	for {
		op, ok := q.TryDequeue()
		if !ok {
			return
		}
		q.execute(op)
		q.pending.Done()
	}
}

// execute runs one operation. A panic inside the backend or a callback is
// logged and settles the call with an error; the queue keeps draining.
func (q *opQueue) execute(op operation) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in %s: %v", op.name, r)
			q.logger.Error("store operation panicked",
				"op", op.name,
				"seq", op.seq,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			if op.abort != nil {
				op.abort(err)
			}
		}
	}()
	op.run(op.ctx, op.seq)
}

// Len returns the number of operations waiting to run.
func (q *opQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// Close stops accepting operations and waits until every queued operation
// has run.
func (q *opQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.pending.Wait()
}
