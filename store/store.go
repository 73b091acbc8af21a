package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/recordstore/patch"
	"github.com/roach88/recordstore/query"
	"github.com/roach88/recordstore/storage"
)

// Store is the ordered operation engine over a storage backend.
//
// CRITICAL: every backend interaction happens on the queue's drain
// goroutine, one call at a time, in submission order.
//
// Thread-safety: all methods are safe for concurrent use. Calls submitted
// concurrently are ordered by the moment they reach the queue.
type Store[T any] struct {
	backend storage.Backend[T]
	id      identifier[T]
	ids     storage.IDGenerator
	queue   *opQueue
	clock   *Clock
	logger  *slog.Logger
	ready   *Result[UpdateResult[T]]

	listenersMu sync.Mutex
	listeners   map[int]func(Event[T])
	nextID      int
}

// New creates a Store.
//
// Returns ErrConflictingIdentity when both WithIDProperty and
// WithIDFunction are given. When WithData is given, the implicit Add is
// queued before New returns, so it runs before any call made on the store.
func New[T any](opts ...Option[T]) (*Store[T], error) {
	var cfg config[T]
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.idProperty != "" && cfg.idFunction != nil {
		return nil, ErrConflictingIdentity
	}
	if cfg.idProperty == "" {
		cfg.idProperty = DefaultIDProperty
	}
	if cfg.backend == nil {
		cfg.backend = storage.NewMemory[T]()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	clock := NewClock()
	s := &Store[T]{
		backend:   cfg.backend,
		id:        identifier[T]{property: cfg.idProperty, fn: cfg.idFunction},
		ids:       cfg.ids,
		queue:     newOpQueue(clock, cfg.logger),
		clock:     clock,
		logger:    cfg.logger,
		listeners: make(map[int]func(Event[T])),
	}

	if cfg.hasData {
		s.ready = s.Add(context.Background(), cfg.data)
		s.ready.Subscribe(nil, func(err error) {
			s.logger.Warn("initial data rejected", "error", err)
		}, nil)
	} else {
		s.ready = resolved(UpdateResult[T]{Type: UpdateAdd}, nil)
	}
	return s, nil
}

// Ready returns the Result of the implicit initial Add made for WithData.
// Without WithData it is already settled with an empty UpdateResult.
func (s *Store[T]) Ready() *Result[UpdateResult[T]] {
	return s.ready
}

// Backend returns the storage backend the store was built with.
func (s *Store[T]) Backend() storage.Backend[T] {
	return s.backend
}

// Identify returns the identifier of each record without consulting
// storage. Records without identity yield "".
func (s *Store[T]) Identify(records ...T) []string {
	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = s.id.identify(rec)
	}
	return out
}

// Subscribe registers a store-wide listener that receives an Event for
// every Add, Put, Patch and Delete, in call order, on the drain goroutine.
// A listener sees a call before the call's Result settles.
// The returned function removes the listener.
func (s *Store[T]) Subscribe(fn func(Event[T])) (cancel func()) {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

// Add inserts records. By default the whole call is rejected with a
// *ConflictError, committing nothing, when any identifier is already stored
// or repeats within records. RejectOverwrite(false) overwrites instead.
func (s *Store[T]) Add(ctx context.Context, records []T, opts ...WriteOption) *Result[UpdateResult[T]] {
	return s.write(ctx, UpdateAdd, records, resolveWriteOptions(true, opts))
}

// Put inserts or overwrites records. RejectOverwrite(true) applies Add's
// conflict check.
func (s *Store[T]) Put(ctx context.Context, records []T, opts ...WriteOption) *Result[UpdateResult[T]] {
	return s.write(ctx, UpdatePut, records, resolveWriteOptions(false, opts))
}

func (s *Store[T]) write(ctx context.Context, kind UpdateType, records []T, rejectOverwrite bool) *Result[UpdateResult[T]] {
	records = append([]T(nil), records...)
	return submitUpdate(s, ctx, kind, func(ctx context.Context, res *UpdateResult[T]) error {
		entries := make([]storage.Entry[T], len(records))
		for i, rec := range records {
			id := s.id.identify(rec)
			if id == "" {
				return &IdentityError{Index: i, Message: "record has no identifier"}
			}
			entries[i] = storage.Entry[T]{ID: id, Record: rec}
		}

		if rejectOverwrite {
			if err := s.checkConflicts(ctx, entries); err != nil {
				return err
			}
			if err := s.backend.Add(ctx, entries); err != nil {
				if errors.Is(err, storage.ErrExists) {
					return &ConflictError{IDs: entryIDs(entries)}
				}
				return &BackendError{Op: string(kind), Err: err}
			}
		} else {
			entries = dedupe(entries)
			if err := s.backend.Put(ctx, entries); err != nil {
				return &BackendError{Op: string(kind), Err: err}
			}
		}

		res.Successful = make([]T, len(entries))
		for i, e := range entries {
			res.Successful[i] = e.Record
		}
		res.SuccessfulIDs = entryIDs(entries)
		return nil
	})
}

// checkConflicts rejects identifiers that are stored or repeat in entries.
func (s *Store[T]) checkConflicts(ctx context.Context, entries []storage.Entry[T]) error {
	ids := entryIDs(entries)
	existing, err := s.backend.Get(ctx, ids)
	if err != nil {
		return &BackendError{Op: "get", Err: err}
	}

	conflicts := s.Identify(existing...)
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			conflicts = append(conflicts, id)
		}
		seen[id] = true
	}
	if len(conflicts) > 0 {
		return &ConflictError{IDs: conflicts}
	}
	return nil
}

// Patch applies each item's patch to the stored record with that
// identifier, in order. Items fail independently: a missing record, a patch
// that cannot be applied or a patch that changes the identifier is listed in
// UpdateResult.Failed while the other items are committed. Several items may
// target the same identifier; each sees the previous item's result.
func (s *Store[T]) Patch(ctx context.Context, items ...PatchItem) *Result[UpdateResult[T]] {
	items = append([]PatchItem(nil), items...)
	return submitUpdate(s, ctx, UpdatePatch, func(ctx context.Context, res *UpdateResult[T]) error {
		current, err := s.load(ctx, patchIDs(items))
		if err != nil {
			return err
		}

		var order []string
		changed := make(map[string]bool)
		for _, item := range items {
			rec, ok := current[item.ID]
			if !ok {
				res.Failed = append(res.Failed, Failure{ID: item.ID, Err: &NotFoundError{ID: item.ID}})
				continue
			}
			patched, err := patch.Apply(item.Patch, rec)
			if err != nil {
				res.Failed = append(res.Failed, Failure{ID: item.ID, Err: err})
				continue
			}
			if got := s.id.identify(patched); got != item.ID {
				res.Failed = append(res.Failed, Failure{ID: item.ID, Err: &IdentityError{
					Index:   -1,
					ID:      item.ID,
					Message: fmt.Sprintf("patch changes identifier to %q", got),
				}})
				continue
			}
			current[item.ID] = patched
			if !changed[item.ID] {
				changed[item.ID] = true
				order = append(order, item.ID)
			}
			res.Successful = append(res.Successful, patched)
			res.SuccessfulIDs = append(res.SuccessfulIDs, item.ID)
		}

		if len(order) == 0 {
			return nil
		}
		entries := make([]storage.Entry[T], len(order))
		for i, id := range order {
			entries[i] = storage.Entry[T]{ID: id, Record: current[id]}
		}
		if err := s.backend.Put(ctx, entries); err != nil {
			return &BackendError{Op: string(UpdatePatch), Err: err}
		}
		return nil
	})
}

// PatchMap applies patches keyed by identifier, in sorted identifier order.
func (s *Store[T]) PatchMap(ctx context.Context, patches map[string]patch.Patch) *Result[UpdateResult[T]] {
	ids := make([]string, 0, len(patches))
	for id := range patches {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]PatchItem, len(ids))
	for i, id := range ids {
		items[i] = PatchItem{ID: id, Patch: patches[id]}
	}
	return s.Patch(ctx, items...)
}

// Delete removes the records with the given identifiers. Identifiers that
// are not stored are listed in UpdateResult.Failed with a *NotFoundError;
// the call itself still succeeds.
func (s *Store[T]) Delete(ctx context.Context, ids ...string) *Result[UpdateResult[T]] {
	ids = append([]string(nil), ids...)
	return submitUpdate(s, ctx, UpdateDelete, func(ctx context.Context, res *UpdateResult[T]) error {
		deleted, err := s.backend.Delete(ctx, ids)
		if err != nil {
			return &BackendError{Op: string(UpdateDelete), Err: err}
		}

		remaining := make(map[string]int, len(deleted))
		for _, id := range deleted {
			remaining[id]++
		}
		res.SuccessfulIDs = []string{}
		for _, id := range ids {
			if remaining[id] > 0 {
				remaining[id]--
				res.SuccessfulIDs = append(res.SuccessfulIDs, id)
				continue
			}
			res.Failed = append(res.Failed, Failure{ID: id, Err: &NotFoundError{ID: id}})
		}
		return nil
	})
}

// Get returns the stored records for ids in the requested order. Missing
// identifiers are omitted.
func (s *Store[T]) Get(ctx context.Context, ids ...string) *Result[[]T] {
	ids = append([]string(nil), ids...)
	return submit(s, ctx, "get", func(ctx context.Context, _ int64) ([]T, error) {
		out, err := s.backend.Get(ctx, ids)
		if err != nil {
			return nil, &BackendError{Op: "get", Err: err}
		}
		return out, nil
	}, nil)
}

// Fetch returns every record in storage order with q applied. A nil query
// returns all records. A query carrying a construction error is rejected.
func (s *Store[T]) Fetch(ctx context.Context, q query.Query[T]) *Result[[]T] {
	return submit(s, ctx, "fetch", func(ctx context.Context, _ int64) ([]T, error) {
		if err := query.Check(q); err != nil {
			return nil, fmt.Errorf("%w: %w", errInvalidQuery, err)
		}
		out, err := s.backend.Fetch(ctx, q)
		if err != nil {
			return nil, &BackendError{Op: "fetch", Err: err}
		}
		return out, nil
	}, nil)
}

// CreateID returns a new identifier that is not derived from any record.
func (s *Store[T]) CreateID(ctx context.Context) *Result[string] {
	return submit(s, ctx, "createId", func(ctx context.Context, _ int64) (string, error) {
		if s.ids != nil {
			return s.ids.Generate(), nil
		}
		id, err := s.backend.CreateID(ctx)
		if err != nil {
			return "", &BackendError{Op: "createId", Err: err}
		}
		return id, nil
	}, nil)
}

// View returns a derived collection whose Fetch applies q before the
// caller's query.
func (s *Store[T]) View(q query.Query[T]) *View[T] {
	return &View[T]{store: s, base: q}
}

// Pending returns the number of calls waiting to run.
func (s *Store[T]) Pending() int {
	return s.queue.Len()
}

// Close rejects further calls with ErrClosed, waits for queued calls to
// finish, and closes the backend if it implements storage.Closer.
func (s *Store[T]) Close() error {
	s.queue.Close()
	if c, ok := s.backend.(storage.Closer); ok {
		return c.Close()
	}
	return nil
}

// submit queues fn and returns its Result. publish, when non-nil, runs on
// the drain goroutine just before the Result settles, so a caller returning
// from Wait knows that store-wide listeners have seen the call.
func submit[T, R any](
	s *Store[T],
	ctx context.Context,
	name string,
	fn func(ctx context.Context, seq int64) (R, error),
	publish func(seq int64, value R, err error),
) *Result[R] {
	r := newResult[R]()
	var zero R
	op := operation{
		name: name,
		ctx:  context.WithoutCancel(ctx),
		run: func(ctx context.Context, seq int64) {
			s.logger.Debug("store call", "op", name, "seq", seq)
			value, err := fn(ctx, seq)
			if err != nil {
				s.logger.Warn("store call rejected", "op", name, "seq", seq, "error", err)
			}
			if publish != nil {
				publish(seq, value, err)
			}
			r.settle(value, err)
		},
		abort: func(err error) { r.settle(zero, err) },
	}
	if _, ok := s.queue.Enqueue(op); !ok {
		r.settle(zero, ErrClosed)
	}
	return r
}

// submitUpdate queues a mutating call. fn fills in the UpdateResult; a
// non-nil error rejects the whole call. Store-wide listeners are notified
// before the call's own subscribers.
func submitUpdate[T any](s *Store[T], ctx context.Context, kind UpdateType, fn func(ctx context.Context, res *UpdateResult[T]) error) *Result[UpdateResult[T]] {
	return submit(s, ctx, string(kind), func(ctx context.Context, seq int64) (UpdateResult[T], error) {
		res := UpdateResult[T]{Type: kind, Seq: seq}
		if err := fn(ctx, &res); err != nil {
			return UpdateResult[T]{}, err
		}
		for _, f := range res.Failed {
			s.logger.Debug("store item failed", "op", kind, "seq", seq, "id", f.ID, "error", f.Err)
		}
		return res, nil
	}, func(seq int64, res UpdateResult[T], err error) {
		s.notify(Event[T]{Type: kind, Seq: seq, Result: res, Err: err})
	})
}

func (s *Store[T]) notify(ev Event[T]) {
	s.listenersMu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Event[T]), len(ids))
	for i, id := range ids {
		fns[i] = s.listeners[id]
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// load returns the stored records for ids keyed by identifier.
func (s *Store[T]) load(ctx context.Context, ids []string) (map[string]T, error) {
	records, err := s.backend.Get(ctx, ids)
	if err != nil {
		return nil, &BackendError{Op: "get", Err: err}
	}
	out := make(map[string]T, len(records))
	for _, rec := range records {
		out[s.id.identify(rec)] = rec
	}
	return out, nil
}

func entryIDs[T any](entries []storage.Entry[T]) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

// dedupe keeps the last entry per identifier, at the position of the first.
func dedupe[T any](entries []storage.Entry[T]) []storage.Entry[T] {
	index := make(map[string]int, len(entries))
	out := make([]storage.Entry[T], 0, len(entries))
	for _, e := range entries {
		if i, ok := index[e.ID]; ok {
			out[i] = e
			continue
		}
		index[e.ID] = len(out)
		out = append(out, e)
	}
	return out
}

func patchIDs(items []PatchItem) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if !seen[item.ID] {
			seen[item.ID] = true
			out = append(out, item.ID)
		}
	}
	return out
}
