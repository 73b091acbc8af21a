package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/recordstore/internal/testutil"
	"github.com/roach88/recordstore/patch"
	"github.com/roach88/recordstore/query"
	"github.com/roach88/recordstore/storage"
)

type Item = testutil.Item

func newItemStore(t *testing.T, opts ...Option[Item]) *Store[Item] {
	t.Helper()
	s, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seeded(t *testing.T, opts ...Option[Item]) *Store[Item] {
	t.Helper()
	return newItemStore(t, append([]Option[Item]{WithData(testutil.Items()...)}, opts...)...)
}

func wait[R any](t *testing.T, r *Result[R]) R {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := r.Wait(ctx)
	require.NoError(t, err)
	return v
}

func waitErr[R any](t *testing.T, r *Result[R]) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := r.Wait(ctx)
	require.Error(t, err)
	return err
}

func fetchAll(t *testing.T, f Fetcher[Item]) []Item {
	t.Helper()
	return wait(t, f.Fetch(context.Background(), nil))
}

func TestStore_InitialData(t *testing.T) {
	s := seeded(t)

	ready := wait(t, s.Ready())
	assert.Equal(t, UpdateAdd, ready.Type)
	assert.Equal(t, []string{"1", "2", "3"}, ready.SuccessfulIDs)
	assert.Equal(t, testutil.Items(), fetchAll(t, s))
}

func TestStore_ReadyWithoutData(t *testing.T) {
	s := newItemStore(t)

	select {
	case <-s.Ready().Done():
	default:
		t.Fatal("Ready should be settled without initial data")
	}
	assert.Empty(t, fetchAll(t, s))
}

func TestStore_Add(t *testing.T) {
	ctx := context.Background()
	data := testutil.Items()
	s := newItemStore(t)

	s.Add(ctx, data[:2])
	res := wait(t, s.Add(ctx, data[2:]))

	assert.Equal(t, UpdateAdd, res.Type)
	assert.Equal(t, []Item{data[2]}, res.Successful)
	assert.Equal(t, data, fetchAll(t, s))
}

func TestStore_AddConflict(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	update := testutil.Updates()[0][2]

	err := waitErr(t, s.Add(ctx, []Item{update}))
	assert.True(t, IsConflict(err))
	assert.Equal(t, ErrCodeConflict, CodeOf(err))
	assert.Equal(t, "CONFLICT: Objects already exist in store: 3", err.Error())

	// Nothing committed.
	assert.Equal(t, testutil.Items(), fetchAll(t, s))
}

func TestStore_AddConflictIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	data := testutil.Items()
	s := newItemStore(t, WithData(data[0], data[1]))

	err := waitErr(t, s.Add(ctx, data))
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"1", "2"}, conflict.IDs)
	assert.Equal(t, data[:2], fetchAll(t, s), "the non-conflicting record must not be added")
}

func TestStore_AddDuplicateWithinCall(t *testing.T) {
	data := testutil.Items()
	s := newItemStore(t)

	err := waitErr(t, s.Add(context.Background(), []Item{data[0], data[0]}))
	assert.True(t, IsConflict(err))
	assert.Empty(t, fetchAll(t, s))
}

func TestStore_AddWithoutRejectOverwrite(t *testing.T) {
	update := testutil.Updates()[0][2]
	s := seeded(t)

	res := wait(t, s.Add(context.Background(), []Item{update}, RejectOverwrite(false)))
	assert.Equal(t, []Item{update}, res.Successful)

	all := fetchAll(t, s)
	assert.Equal(t, update, all[2], "overwrite keeps the storage position")
}

func TestStore_Put(t *testing.T) {
	ctx := context.Background()
	data := testutil.Items()
	updates := testutil.Updates()[0]

	t.Run("adds new records", func(t *testing.T) {
		s := newItemStore(t)
		s.Put(ctx, data[:2])
		s.Put(ctx, data[2:])
		assert.Equal(t, data, fetchAll(t, s))
	})

	t.Run("updates existing records", func(t *testing.T) {
		s := seeded(t)
		s.Put(ctx, updates[:2])
		res := wait(t, s.Put(ctx, updates[2:]))
		assert.Equal(t, UpdatePut, res.Type)
		assert.Equal(t, updates, fetchAll(t, s))
	})

	t.Run("put with conflicts overrides", func(t *testing.T) {
		s := newItemStore(t, WithData(data[0], data[1]))
		res := wait(t, s.Put(ctx, data))
		assert.Equal(t, data, res.Successful)
	})

	t.Run("rejects existing records with RejectOverwrite", func(t *testing.T) {
		s := seeded(t)
		err := waitErr(t, s.Put(ctx, updates[:2], RejectOverwrite(true)))
		assert.True(t, IsConflict(err))
		assert.Equal(t, data, fetchAll(t, s))
	})
}

func TestStore_PutDuplicateWithinCallKeepsLast(t *testing.T) {
	first := Item{ID: "x", Value: 1}
	second := Item{ID: "x", Value: 2}
	s := newItemStore(t)

	other := Item{ID: "y", Value: 3}
	res := wait(t, s.Put(context.Background(), []Item{first, other, second}))
	assert.Equal(t, []Item{second, other}, res.Successful)
	assert.Equal(t, []string{"x", "y"}, res.SuccessfulIDs)
	assert.Equal(t, []Item{second, other}, fetchAll(t, s))
}

func TestStore_MapRecordsAreNotAliased(t *testing.T) {
	ctx := context.Background()
	s, err := New[map[string]any]()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	rec := map[string]any{"id": "1", "v": 1}
	wait(t, s.Add(ctx, []map[string]any{rec}))
	rec["v"] = 99

	got := wait(t, s.Get(ctx, "1"))
	require.Len(t, got, 1)
	assert.Equal(t, float64(1), got[0]["v"])

	got[0]["v"] = 5
	assert.Equal(t, float64(1), wait(t, s.Get(ctx, "1"))[0]["v"])
}

func TestStore_RecordWithoutIdentity(t *testing.T) {
	s := newItemStore(t)

	err := waitErr(t, s.Add(context.Background(), []Item{{ID: "a"}, {Value: 9}}))
	var identity *IdentityError
	require.ErrorAs(t, err, &identity)
	assert.Equal(t, 1, identity.Index)
	assert.Empty(t, fetchAll(t, s))
}

func TestStore_Patch(t *testing.T) {
	ctx := context.Background()
	ids, patches := testutil.IncrementPatches()
	expected := testutil.Items()
	for i := range expected {
		expected[i].Value += 2
		expected[i].NestedProperty.Value += 2
	}

	t.Run("single item", func(t *testing.T) {
		s := seeded(t)
		res := wait(t, s.Patch(ctx, PatchItem{ID: ids[0], Patch: patches[0]}))
		assert.Equal(t, UpdatePatch, res.Type)
		assert.Equal(t, []Item{expected[0]}, res.Successful)
		assert.Equal(t, expected[0], fetchAll(t, s)[0])
	})

	t.Run("list of items", func(t *testing.T) {
		s := seeded(t)
		items := make([]PatchItem, len(ids))
		for i := range ids {
			items[i] = PatchItem{ID: ids[i], Patch: patches[i]}
		}
		res := wait(t, s.Patch(ctx, items...))
		assert.Equal(t, expected, res.Successful)
		assert.Equal(t, ids, res.SuccessfulIDs)
		assert.Empty(t, res.Failed)
		assert.Equal(t, expected, fetchAll(t, s))
	})

	t.Run("map", func(t *testing.T) {
		s := seeded(t)
		m := make(map[string]patch.Patch, len(ids))
		for i := range ids {
			m[ids[i]] = patches[i]
		}
		res := wait(t, s.PatchMap(ctx, m))
		assert.Equal(t, ids, res.SuccessfulIDs, "map patches apply in sorted id order")
		assert.Equal(t, expected, fetchAll(t, s))
	})
}

func TestStore_PatchFailuresAreIndependent(t *testing.T) {
	ctx := context.Background()
	ids, patches := testutil.IncrementPatches()
	bad := patch.New(patch.MustOperation(patch.Replace, "/prop1", 2))
	s := seeded(t)

	res := wait(t, s.Patch(ctx,
		PatchItem{ID: "1", Patch: bad},
		PatchItem{ID: ids[1], Patch: patches[1]},
		PatchItem{ID: "missing", Patch: patches[0]},
	))

	assert.Equal(t, []string{"2"}, res.SuccessfulIDs)
	require.Len(t, res.Failed, 2)

	assert.Equal(t, "1", res.Failed[0].ID)
	assert.True(t, patch.IsPatchApplicationError(res.Failed[0].Err))
	assert.Equal(t, ErrCodePatch, CodeOf(res.Failed[0].Err))
	assert.Equal(t, "patch operation 0: cannot replace /prop1: undefined path", res.Failed[0].Err.Error())

	assert.Equal(t, "missing", res.Failed[1].ID)
	assert.True(t, IsNotFound(res.Failed[1].Err))

	all := fetchAll(t, s)
	assert.Equal(t, testutil.Items()[0], all[0], "failed patch leaves the record untouched")
	assert.Equal(t, 4, all[1].Value)
}

func TestStore_PatchAddingUndeclaredPropertyFails(t *testing.T) {
	extra := patch.New(patch.MustOperation(patch.Add, "/unknownField", 1))
	s := seeded(t)

	res := wait(t, s.Patch(context.Background(), PatchItem{ID: "1", Patch: extra}))
	assert.Empty(t, res.SuccessfulIDs)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "1", res.Failed[0].ID)
	assert.Contains(t, res.Failed[0].Err.Error(), "unknownField")
	assert.Equal(t, testutil.Items(), fetchAll(t, s))
}

func TestStore_PatchSameIDTwice(t *testing.T) {
	inc := patch.New(patch.MustOperation(patch.Replace, "/value", 10))
	check := patch.New(
		patch.MustOperation(patch.Test, "/value", 10),
		patch.MustOperation(patch.Replace, "/value", 11),
	)
	s := seeded(t)

	res := wait(t, s.Patch(context.Background(), PatchItem{ID: "1", Patch: inc}, PatchItem{ID: "1", Patch: check}))
	assert.Equal(t, []string{"1", "1"}, res.SuccessfulIDs)
	assert.Equal(t, 11, fetchAll(t, s)[0].Value)
}

func TestStore_PatchCannotChangeIdentity(t *testing.T) {
	rename := patch.New(patch.MustOperation(patch.Replace, "/id", "renamed"))
	s := seeded(t)

	res := wait(t, s.Patch(context.Background(), PatchItem{ID: "1", Patch: rename}))
	require.Len(t, res.Failed, 1)
	assert.True(t, IsIdentity(res.Failed[0].Err))
	assert.Equal(t, testutil.Items(), fetchAll(t, s))
}

func TestStore_PatchIsIdempotentForTests(t *testing.T) {
	same := patch.New(
		patch.MustOperation(patch.Test, "/value", 1),
		patch.MustOperation(patch.Replace, "/value", 1),
	)
	s := seeded(t)

	first := wait(t, s.Patch(context.Background(), PatchItem{ID: "1", Patch: same}))
	second := wait(t, s.Patch(context.Background(), PatchItem{ID: "1", Patch: same}))
	assert.Equal(t, first.Successful, second.Successful)
	assert.Equal(t, testutil.Items(), fetchAll(t, s))
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	data := testutil.Items()
	ids := testutil.IDs(data)

	t.Run("single", func(t *testing.T) {
		s := seeded(t)
		res := wait(t, s.Delete(ctx, ids[0]))
		assert.Equal(t, UpdateDelete, res.Type)
		assert.Equal(t, []string{"1"}, res.SuccessfulIDs)
		assert.Equal(t, data[1:], fetchAll(t, s))
	})

	t.Run("multiple", func(t *testing.T) {
		s := seeded(t)
		res := wait(t, s.Delete(ctx, ids...))
		assert.Equal(t, ids, res.SuccessfulIDs)
		assert.Empty(t, fetchAll(t, s))
	})

	t.Run("missing ids are failures", func(t *testing.T) {
		s := seeded(t)
		res := wait(t, s.Delete(ctx, "2", "nope"))
		assert.Equal(t, []string{"2"}, res.SuccessfulIDs)
		require.Len(t, res.Failed, 1)
		assert.Equal(t, "nope", res.Failed[0].ID)
		assert.True(t, IsNotFound(res.Failed[0].Err))
	})

	t.Run("backend failure rejects the call", func(t *testing.T) {
		backend := testutil.NewFailingBackend[Item](storage.NewMemory[Item]())
		backend.FailNext(testutil.OpDelete, errors.New("failed"))
		s := newItemStore(t, WithStorage[Item](backend))

		err := waitErr(t, s.Delete(ctx, ids[0]))
		assert.True(t, IsBackend(err))
		assert.Equal(t, "failed", errors.Unwrap(err).Error())
	})
}

func TestStore_Get(t *testing.T) {
	s := seeded(t)
	data := testutil.Items()

	got := wait(t, s.Get(context.Background(), "3", "missing", "1"))
	assert.Equal(t, []Item{data[2], data[0]}, got)
}

func TestStore_Fetch(t *testing.T) {
	ctx := context.Background()
	data := testutil.Items()
	s := seeded(t)

	tests := []struct {
		name  string
		query query.Query[Item]
		want  []Item
	}{
		{
			name:  "sort",
			query: query.NewSort[Item]("id", true),
			want:  []Item{data[2], data[1], data[0]},
		},
		{
			name:  "filter",
			query: query.NewFilter[Item]().LessThan("value", 2),
			want:  []Item{data[0]},
		},
		{
			name:  "range",
			query: query.NewRange[Item](1, 2),
			want:  []Item{data[1], data[2]},
		},
		{
			name: "compound",
			query: query.NewCompound[Item](
				query.NewFilter[Item]().
					DeepEqualTo("/nestedProperty/value", 2).
					Or().
					DeepEqualTo("/nestedProperty/value", 3),
			).WithQuery(query.NewSort[Item]("/nestedProperty/value", false)),
			want: []Item{data[1], data[0]},
		},
		{
			name:  "where expression",
			query: query.NewFilter[Item]().Where("value >= 2 && nestedProperty.value < 2"),
			want:  []Item{data[2]},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, wait(t, s.Fetch(ctx, tt.query)))
		})
	}
}

func TestStore_FetchInvalidQuery(t *testing.T) {
	s := seeded(t)

	err := waitErr(t, s.Fetch(context.Background(), query.NewRange[Item](-1, 2)))
	assert.Equal(t, ErrCodeInvalidQuery, CodeOf(err))
	assert.ErrorIs(t, err, query.ErrInvalidRange)
}

func TestStore_UpdateResultsAsObservables(t *testing.T) {
	ctx := context.Background()
	data := testutil.Items()
	ids, patches := testutil.IncrementPatches()
	s := newItemStore(t, WithData(data[0]))

	results := make(chan UpdateResult[Item], 4)
	done := make(chan struct{})
	push := func(r UpdateResult[Item]) { results <- r }
	fail := func(err error) { t.Errorf("unexpected error: %v", err) }

	s.Add(ctx, []Item{data[1]}).Subscribe(func(r UpdateResult[Item]) {
		push(r)
		s.Put(ctx, []Item{data[2]}).Subscribe(func(r UpdateResult[Item]) {
			push(r)
			s.Patch(ctx, PatchItem{ID: ids[0], Patch: patches[0]}).Subscribe(func(r UpdateResult[Item]) {
				push(r)
				s.Delete(ctx, data[0].ID).Subscribe(push, fail, func() { close(done) })
			}, fail, nil)
		}, fail, nil)
	}, fail, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("observable chain did not complete")
	}
	close(results)

	var got []UpdateResult[Item]
	for r := range results {
		got = append(got, r)
	}
	require.Len(t, got, 4)
	assert.Equal(t, UpdateAdd, got[0].Type)
	assert.Equal(t, []Item{data[1]}, got[0].Successful)
	assert.Equal(t, UpdatePut, got[1].Type)
	assert.Equal(t, []Item{data[2]}, got[1].Successful)
	assert.Equal(t, UpdatePatch, got[2].Type)
	assert.Equal(t, 3, got[2].Successful[0].Value)
	assert.Equal(t, UpdateDelete, got[3].Type)
	assert.Equal(t, []string{data[0].ID}, got[3].SuccessfulIDs)
}

func TestStore_IdentityOptions(t *testing.T) {
	updates := testutil.Updates()[0]
	byValue := newItemStore(t, WithData(updates...), WithIDProperty[Item]("value"))
	byFunc := newItemStore(t,
		WithData(testutil.Items()...),
		WithIDFunction(func(item Item) string { return item.ID + "-id" }),
	)

	assert.Equal(t, []string{"2", "3", "4"}, byValue.Identify(updates...))
	assert.Equal(t, []string{"1-id", "2-id", "3-id"}, byFunc.Identify(testutil.Items()...))

	got := wait(t, byFunc.Get(context.Background(), "2-id"))
	assert.Equal(t, []Item{testutil.Items()[1]}, got)
}

func TestStore_ConflictingIdentityOptions(t *testing.T) {
	_, err := New(
		WithIDProperty[Item]("id"),
		WithIDFunction(func(item Item) string { return item.ID }),
	)
	assert.ErrorIs(t, err, ErrConflictingIdentity)
}

func TestStore_CreateIDUnique(t *testing.T) {
	const n = 1000
	s := newItemStore(t)

	results := make([]*Result[string], n)
	for i := range results {
		results[i] = s.CreateID(context.Background())
	}
	seen := make(map[string]bool, n)
	for _, r := range results {
		seen[wait(t, r)] = true
	}
	assert.Len(t, seen, n)
}

func TestStore_CreateIDGenerator(t *testing.T) {
	s := newItemStore(t, WithIDGenerator[Item](testutil.NewFixedGenerator("fixed-1", "fixed-2")))

	assert.Equal(t, "fixed-1", wait(t, s.CreateID(context.Background())))
	assert.Equal(t, "fixed-2", wait(t, s.CreateID(context.Background())))
}

func TestStore_CallsRunInOrder(t *testing.T) {
	ctx := context.Background()
	data := testutil.Items()
	updates := testutil.Updates()
	backend := testutil.NewDelayedBackend[Item](storage.NewMemory[Item](), testutil.RandomDelays(5*time.Millisecond, 7))
	s := newItemStore(t, WithStorage[Item](backend))

	s.Add(ctx, []Item{data[0]})
	first := s.Get(ctx, data[0].ID)
	s.Put(ctx, []Item{updates[0][0]})
	second := s.Get(ctx, data[0].ID)
	s.Put(ctx, []Item{updates[1][0]})
	third := s.Get(ctx, data[0].ID)

	assert.Equal(t, []Item{data[0]}, wait(t, first))
	assert.Equal(t, []Item{updates[0][0]}, wait(t, second))
	assert.Equal(t, []Item{updates[1][0]}, wait(t, third))
	assert.Equal(t, 1, backend.MaxInFlight(), "backend calls must never overlap")
}

func TestStore_AsyncBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("calls are not done immediately", func(t *testing.T) {
		backend := testutil.NewDelayedBackend[Item](storage.NewMemory[Item](),
			testutil.FixedDelays(map[string]time.Duration{testutil.OpAdd: 21 * time.Millisecond}))
		s := newItemStore(t, WithStorage[Item](backend))

		start := time.Now()
		wait(t, s.Add(ctx, testutil.Items()))
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("initial add completes before later calls", func(t *testing.T) {
		backend := testutil.NewDelayedBackend[Item](storage.NewMemory[Item](), testutil.RandomDelays(5*time.Millisecond, 1))
		s := newItemStore(t, WithStorage[Item](backend), WithData(testutil.Items()...))

		assert.Equal(t, testutil.Items(), wait(t, s.Get(ctx, "1", "2", "3")))
	})

	t.Run("a slow add is visible to a fast fetch queued after it", func(t *testing.T) {
		backend := testutil.NewDelayedBackend[Item](storage.NewMemory[Item](),
			testutil.FixedDelays(map[string]time.Duration{
				testutil.OpAdd:   20 * time.Millisecond,
				testutil.OpFetch: 10 * time.Millisecond,
			}))
		s := newItemStore(t, WithStorage[Item](backend))

		s.Add(ctx, testutil.Items())
		assert.Len(t, fetchAll(t, s), 3)
	})

	t.Run("chained calls", func(t *testing.T) {
		backend := testutil.NewDelayedBackend[Item](storage.NewMemory[Item](), testutil.RandomDelays(5*time.Millisecond, 3))
		s := newItemStore(t, WithStorage[Item](backend))

		added := wait(t, s.Add(ctx, testutil.Items()))
		assert.Equal(t, testutil.Items(), added.Successful)
		put := wait(t, s.Put(ctx, testutil.Updates()[0]))
		assert.Equal(t, testutil.Updates()[0], put.Successful)
		deleted := wait(t, s.Delete(ctx, "1"))
		assert.Equal(t, []string{"1"}, deleted.SuccessfulIDs)
	})

	t.Run("unawaited calls settle in submission order", func(t *testing.T) {
		backend := testutil.NewDelayedBackend[Item](storage.NewMemory[Item](),
			testutil.FixedDelays(map[string]time.Duration{
				testutil.OpAdd: 30 * time.Millisecond,
				testutil.OpPut: time.Millisecond,
			}))
		s := newItemStore(t, WithStorage[Item](backend))

		var mu sync.Mutex
		var settled []string
		record := func(name string) func() {
			return func() {
				mu.Lock()
				defer mu.Unlock()
				settled = append(settled, name)
			}
		}

		s.Add(ctx, testutil.Items()).Subscribe(nil, nil, record("add"))
		s.Put(ctx, testutil.Updates()[0]).Subscribe(nil, nil, record("put"))
		s.Delete(ctx, "1").Subscribe(nil, nil, record("delete"))

		assert.Empty(t, wait(t, s.Get(ctx, "1")))

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"add", "put", "delete"}, settled)
	})
}

func TestStore_FailedInitialAddDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	data := testutil.Items()
	backend := testutil.NewFailingBackend[Item](storage.NewMemory[Item]())
	backend.FailNext(testutil.OpAdd, errors.New("Error"))
	s := newItemStore(t, WithStorage[Item](backend), WithData(data...))

	err := waitErr(t, s.Ready())
	assert.True(t, IsBackend(err))

	wait(t, s.Add(ctx, data))
	assert.Equal(t, data, wait(t, s.Get(ctx, "1", "2", "3")))
}

func TestStore_BackendPanicIsContained(t *testing.T) {
	backend := testutil.NewFailingBackend[Item](storage.NewMemory[Item]())
	backend.PanicNext(testutil.OpFetch, "boom")
	s := seeded(t, WithStorage[Item](backend))

	err := waitErr(t, s.Fetch(context.Background(), nil))
	assert.Contains(t, err.Error(), "panic in fetch: boom")
	assert.Equal(t, testutil.Items(), fetchAll(t, s))
}

func TestStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	data := testutil.Items()
	s := newItemStore(t)

	var events []Event[Item]
	cancel := s.Subscribe(func(ev Event[Item]) { events = append(events, ev) })

	s.Add(ctx, data)
	s.Add(ctx, data[:1])
	s.Put(ctx, testutil.Updates()[0][:1])
	wait(t, s.Delete(ctx, "2"))

	cancel()
	wait(t, s.Delete(ctx, "3"))

	require.Len(t, events, 4)
	assert.Equal(t, UpdateAdd, events[0].Type)
	assert.NoError(t, events[0].Err)
	assert.Equal(t, UpdateAdd, events[1].Type)
	assert.True(t, IsConflict(events[1].Err), "rejected calls are published too")
	assert.Equal(t, UpdatePut, events[2].Type)
	assert.Equal(t, UpdateDelete, events[3].Type)
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq)
	}
}

func TestStore_WaitCancellationDoesNotCancelCall(t *testing.T) {
	backend := testutil.NewDelayedBackend[Item](storage.NewMemory[Item](),
		testutil.FixedDelays(map[string]time.Duration{testutil.OpAdd: 20 * time.Millisecond}))
	s := newItemStore(t, WithStorage[Item](backend))

	ctx, cancel := context.WithCancel(context.Background())
	res := s.Add(ctx, testutil.Items())
	cancel()

	_, err := res.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, fetchAll(t, s), 3, "the add still ran")
}

func TestStore_ConcurrentCallers(t *testing.T) {
	const n = 50
	s := newItemStore(t)
	seqs := make([]int64, n)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			res, err := s.Add(context.Background(), []Item{{ID: fmt.Sprintf("item-%02d", i), Value: i}}).
				Wait(context.Background())
			if err != nil {
				return err
			}
			seqs[i] = res.Seq
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Len(t, fetchAll(t, s), n)
	unique := make(map[int64]bool, n)
	for _, seq := range seqs {
		unique[seq] = true
	}
	assert.Len(t, unique, n)
}

func TestStore_Closed(t *testing.T) {
	s, err := New[Item]()
	require.NoError(t, err)
	pending := s.Add(context.Background(), testutil.Items())
	require.NoError(t, s.Close())

	wait(t, pending)
	err = waitErr(t, s.Fetch(context.Background(), nil))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, ErrCodeClosed, CodeOf(err))
}

func TestView(t *testing.T) {
	data := testutil.Items()
	s := seeded(t)

	view := s.View(query.NewFilter[Item]().GreaterThan("value", 1))
	assert.Equal(t, data[1:], fetchAll(t, view))

	sorted := view.Sort(query.NewSort[Item]("value", true))
	assert.Equal(t, []Item{data[2], data[1]}, fetchAll(t, sorted))

	first := sorted.Range(query.NewRange[Item](0, 1))
	assert.Equal(t, []Item{data[2]}, fetchAll(t, first))

	narrowed := wait(t, view.Fetch(context.Background(), query.NewFilter[Item]().EqualTo("id", "2")))
	assert.Equal(t, []Item{data[1]}, narrowed)

	assert.Same(t, s, first.Store())
	assert.Equal(t, data[1:], fetchAll(t, view), "deriving does not change the parent view")
}

func TestCompose(t *testing.T) {
	assert.Nil(t, Compose[Item]())
	assert.Nil(t, Compose[Item](nil, nil))

	f := query.NewFilter[Item]().EqualTo("id", "1")
	assert.Equal(t, query.Query[Item](f), Compose[Item](nil, f))

	c := Compose[Item](f, nil, query.NewSort[Item]("id", false))
	assert.Equal(t, query.KindCompound, c.Kind())
}
