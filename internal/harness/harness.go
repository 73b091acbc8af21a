package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/recordstore/internal/testutil"
	"github.com/roach88/recordstore/patch"
	"github.com/roach88/recordstore/storage"
	"github.com/roach88/recordstore/storage/sqlite"
	"github.com/roach88/recordstore/store"
	"github.com/roach88/recordstore/tree"
)

// DefaultStepTimeout bounds how long the harness waits for one call.
const DefaultStepTimeout = 5 * time.Second

// Option configures Run.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	timeout time.Duration
}

// WithLogger sets the logger handed to the store and its backend.
// Default: a logger that discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStepTimeout sets how long a single call may take.
func WithStepTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// Harness is the scenario execution engine. Each Run uses a fresh store.
type Harness struct {
	store   *store.Store[Record]
	tree    *tree.Tree[Record]
	idProp  string
	timeout time.Duration
	logger  *slog.Logger

	// settled holds step indexes in the order the store settled them.
	mu      sync.Mutex
	settled []int
}

// pendingStep is a submitted call whose outcome is collected later.
type pendingStep struct {
	index   int
	step    Step
	settle  func(ctx context.Context) TraceEvent
	tracked <-chan struct{}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Open the backend and create the store (initial data is queued first)
//  2. Submit steps in order, waiting on each unless it is marked no_wait
//  3. Collect outstanding calls, tracing them in the order they settled
//  4. Evaluate assertions against the trace and the stored records
//
// The returned error reports harness failures (backend cannot be opened,
// malformed patch). Scenario failures are reported in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: DefaultStepTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	backend, err := openBackend(scenario, o.logger)
	if err != nil {
		return nil, err
	}
	if len(scenario.Delays) > 0 {
		if c, ok := backend.(storage.Closer); ok {
			defer c.Close()
		}
		backend = testutil.NewDelayedBackend(backend, delayFunc(scenario.Delays))
	}

	storeOpts := []store.Option[Record]{
		store.WithStorage[Record](backend),
		store.WithLogger[Record](o.logger),
	}
	if scenario.IDProperty != "" {
		storeOpts = append(storeOpts, store.WithIDProperty[Record](scenario.IDProperty))
	}
	if len(scenario.Data) > 0 {
		storeOpts = append(storeOpts, store.WithData(scenario.Data...))
	}
	st, err := store.New(storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	idProp := scenario.IDProperty
	if idProp == "" {
		idProp = store.DefaultIDProperty
	}
	var treeOpts []tree.Option
	if scenario.ParentProperty != "" {
		treeOpts = append(treeOpts, tree.WithParentProperty(scenario.ParentProperty))
	}

	h := &Harness{
		store:   st,
		tree:    tree.New(st, treeOpts...),
		idProp:  idProp,
		timeout: o.timeout,
		logger:  o.logger,
	}

	ctx := context.Background()
	result := NewResult()

	if len(scenario.Data) > 0 {
		ev := h.settleUpdate(ctx, st.Ready())
		ev.Step, ev.Op = -1, OpData
		result.AddTrace(ev)
	}

	var pending []pendingStep
	for i, step := range scenario.Steps {
		settle, tracked, err := h.submit(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
		pending = append(pending, pendingStep{index: i, step: step, settle: settle, tracked: tracked})
		if !step.NoWait {
			pending = h.flush(ctx, pending, result)
		}
	}
	h.flush(ctx, pending, result)

	records, err := waitFor(ctx, h.timeout, st.Fetch(ctx, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to read final state: %w", err)
	}
	result.State = records

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func openBackend(scenario *Scenario, logger *slog.Logger) (storage.Backend[Record], error) {
	gen := storage.NewSequenceGenerator(scenario.IDPrefix)
	switch scenario.Backend {
	case "", BackendMemory:
		return storage.NewMemory[Record](storage.WithGenerator(gen)), nil
	case BackendSQLite:
		db, err := sqlite.Open[Record](":memory:", sqlite.WithGenerator(gen), sqlite.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite backend: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", scenario.Backend)
	}
}

func delayFunc(delays map[string]int) testutil.DelayFunc {
	d := make(map[string]time.Duration, len(delays))
	for op, ms := range delays {
		d[op] = time.Duration(ms) * time.Millisecond
	}
	return testutil.FixedDelays(d)
}

// flush waits for the pending steps, checks their expectations and appends
// their events to the trace in the order the store settled them. Steps
// that never settled (timeouts) follow in submission order.
func (h *Harness) flush(ctx context.Context, pending []pendingStep, result *Result) []pendingStep {
	events := make(map[int]TraceEvent, len(pending))
	for _, p := range pending {
		ev := p.settle(ctx)
		ev.Step, ev.Op = p.index, p.step.Op
		if ev.Error != "" {
			h.awaitTracked(p.tracked)
		} else {
			<-p.tracked
		}
		events[p.index] = ev
		if p.step.Expect != nil {
			for _, msg := range checkExpect(ev, *p.step.Expect) {
				result.AddError(fmt.Sprintf("step %d (%s): %s", p.index, p.step.Op, msg))
			}
		}
	}

	for _, index := range h.takeSettled() {
		if ev, ok := events[index]; ok {
			result.AddTrace(ev)
			delete(events, index)
		}
	}
	for _, p := range pending {
		if ev, ok := events[p.index]; ok {
			result.AddTrace(ev)
		}
	}
	return pending[:0]
}

// awaitTracked waits for a failed step's settlement callback. A step that
// timed out may never settle, so the wait is bounded.
func (h *Harness) awaitTracked(tracked <-chan struct{}) {
	timer := time.NewTimer(h.timeout)
	defer timer.Stop()
	select {
	case <-tracked:
	case <-timer.C:
	}
}

func (h *Harness) markSettled(index int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settled = append(h.settled, index)
}

func (h *Harness) takeSettled() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.settled
	h.settled = nil
	return out
}

// track records when r settles. The returned channel is closed once the
// step's index has been appended to the settlement order.
func track[R any](h *Harness, index int, r *store.Result[R]) <-chan struct{} {
	done := make(chan struct{})
	r.Subscribe(nil, nil, func() {
		h.markSettled(index)
		close(done)
	})
	return done
}

// submit issues the step's call and returns a function that waits for it,
// together with a channel closed once the call has settled.
// Tree expand and collapse take effect immediately.
func (h *Harness) submit(ctx context.Context, index int, step Step) (func(context.Context) TraceEvent, <-chan struct{}, error) {
	switch step.Op {
	case OpAdd, OpPut:
		var opts []store.WriteOption
		if step.RejectOverwrite != nil {
			opts = append(opts, store.RejectOverwrite(*step.RejectOverwrite))
		}
		records := cloneRecords(step.Records)
		var r *store.Result[store.UpdateResult[Record]]
		if step.Op == OpAdd {
			r = h.store.Add(ctx, records, opts...)
		} else {
			r = h.store.Put(ctx, records, opts...)
		}
		return updateSettler(h, r), track(h, index, r), nil

	case OpPatch:
		p, err := decodePatch(step.Patch)
		if err != nil {
			return nil, nil, err
		}
		r := h.store.Patch(ctx, store.PatchItem{ID: step.ID, Patch: p})
		return updateSettler(h, r), track(h, index, r), nil

	case OpDelete:
		r := h.store.Delete(ctx, step.IDs...)
		return updateSettler(h, r), track(h, index, r), nil

	case OpGet:
		r := h.store.Get(ctx, step.IDs...)
		return h.recordsSettler(r), track(h, index, r), nil

	case OpFetch, OpTreeFetch:
		q, err := BuildQuery[Record](step.Query)
		if err != nil {
			return nil, nil, err
		}
		var r *store.Result[[]Record]
		if step.Op == OpFetch {
			r = h.store.Fetch(ctx, q)
		} else {
			r = h.tree.Fetch(ctx, q)
		}
		return h.recordsSettler(r), track(h, index, r), nil

	case OpChildren:
		parent := Record{h.idProp: step.ID}
		r := h.tree.GetChildren(ctx, parent)
		return h.recordsSettler(r), track(h, index, r), nil

	case OpCreateID:
		r := h.store.CreateID(ctx)
		return func(ctx context.Context) TraceEvent {
			id, err := waitFor(ctx, h.timeout, r)
			if err != nil {
				return errorEvent(err)
			}
			return TraceEvent{IDs: []string{id}}
		}, track(h, index, r), nil

	case OpExpand, OpCollapse:
		if step.Op == OpExpand {
			h.tree.Expand(step.IDs...)
		} else {
			h.tree.Collapse(step.IDs...)
		}
		ids := h.tree.Expanded()
		h.markSettled(index)
		tracked := make(chan struct{})
		close(tracked)
		return func(context.Context) TraceEvent {
			return TraceEvent{IDs: ids}
		}, tracked, nil

	default:
		return nil, nil, fmt.Errorf("unknown op %q", step.Op)
	}
}

func updateSettler(h *Harness, r *store.Result[store.UpdateResult[Record]]) func(context.Context) TraceEvent {
	return func(ctx context.Context) TraceEvent {
		return h.settleUpdate(ctx, r)
	}
}

func (h *Harness) settleUpdate(ctx context.Context, r *store.Result[store.UpdateResult[Record]]) TraceEvent {
	res, err := waitFor(ctx, h.timeout, r)
	if err != nil {
		return errorEvent(err)
	}
	ev := TraceEvent{Seq: res.Seq, IDs: res.SuccessfulIDs}
	for _, f := range res.Failed {
		ev.Failed = append(ev.Failed, f.ID)
		h.logger.Debug("item failed", "id", f.ID, "error", f.Err)
	}
	return ev
}

func (h *Harness) recordsSettler(r *store.Result[[]Record]) func(context.Context) TraceEvent {
	return func(ctx context.Context) TraceEvent {
		records, err := waitFor(ctx, h.timeout, r)
		if err != nil {
			return errorEvent(err)
		}
		return TraceEvent{IDs: h.store.Identify(records...)}
	}
}

// waitFor waits for r, giving up after timeout.
func waitFor[R any](ctx context.Context, timeout time.Duration, r *store.Result[R]) (R, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return r.Wait(ctx)
}

func errorEvent(err error) TraceEvent {
	code := string(store.CodeOf(err))
	if code == "" {
		code = "ERROR"
	}
	return TraceEvent{Error: code}
}

// checkExpect compares a trace event with a step's expect clause.
func checkExpect(ev TraceEvent, want Expect) []string {
	var msgs []string
	if ev.Error != want.Error {
		msgs = append(msgs, fmt.Sprintf("expected error %q, got %q", want.Error, ev.Error))
	}
	if want.IDs != nil && !slices.Equal(ev.IDs, want.IDs) {
		msgs = append(msgs, fmt.Sprintf("expected ids %v, got %v", want.IDs, ev.IDs))
	}
	if want.Failed != nil && !slices.Equal(ev.Failed, want.Failed) {
		msgs = append(msgs, fmt.Sprintf("expected failed %v, got %v", want.Failed, ev.Failed))
	}
	return msgs
}

// decodePatch reads a scenario's patch list through the RFC 6902 decoder.
func decodePatch(ops []map[string]any) (patch.Patch, error) {
	data, err := json.Marshal(ops)
	if err != nil {
		return patch.Patch{}, fmt.Errorf("encode patch: %w", err)
	}
	return patch.Decode(data)
}

// cloneRecords copies records so the store never aliases scenario data.
func cloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	for i, rec := range records {
		out[i] = make(Record, len(rec))
		for k, v := range rec {
			out[i][k] = v
		}
	}
	return out
}
