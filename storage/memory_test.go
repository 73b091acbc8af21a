package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recordstore/query"
)

type rec struct {
	ID    string `json:"id"`
	Value int    `json:"value"`
}

func entries(recs ...rec) []Entry[rec] {
	out := make([]Entry[rec], len(recs))
	for i, r := range recs {
		out[i] = Entry[rec]{ID: r.ID, Record: r}
	}
	return out
}

func TestMemoryOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[rec]()

	require.NoError(t, m.Add(ctx, entries(rec{"a", 1}, rec{"b", 2}, rec{"c", 3})))
	require.NoError(t, m.Put(ctx, entries(rec{"b", 20}, rec{"d", 4})))

	all, err := m.Fetch(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []rec{{"a", 1}, {"b", 20}, {"c", 3}, {"d", 4}}, all, "overwrite keeps position")

	deleted, err := m.Delete(ctx, []string{"a", "missing"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, deleted)

	require.NoError(t, m.Add(ctx, entries(rec{"a", 5})))
	all, err = m.Fetch(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []rec{{"b", 20}, {"c", 3}, {"d", 4}, {"a", 5}}, all, "re-add goes to the end")
	assert.Equal(t, 4, m.Len())
}

func TestMemoryAddConflict(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[rec]()
	require.NoError(t, m.Add(ctx, entries(rec{"a", 1})))

	err := m.Add(ctx, entries(rec{"b", 2}, rec{"a", 9}))
	assert.ErrorIs(t, err, ErrExists)

	err = m.Add(ctx, entries(rec{"c", 1}, rec{"c", 2}))
	assert.ErrorIs(t, err, ErrExists, "duplicates within one call conflict")

	got, err := m.Get(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []rec{{"a", 1}}, got, "nothing from the failed calls is stored")
}

func TestMemoryGetOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[rec]()
	require.NoError(t, m.Add(ctx, entries(rec{"a", 1}, rec{"b", 2}, rec{"c", 3})))

	got, err := m.Get(ctx, []string{"c", "x", "a"})
	require.NoError(t, err)
	assert.Equal(t, []rec{{"c", 3}, {"a", 1}}, got)
}

func TestMemoryFetchQuery(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[rec]()
	require.NoError(t, m.Add(ctx, entries(rec{"a", 3}, rec{"b", 1}, rec{"c", 2})))

	got, err := m.Fetch(ctx, query.NewSort[rec]("value", false))
	require.NoError(t, err)
	assert.Equal(t, []rec{{"b", 1}, {"c", 2}, {"a", 3}}, got)

	_, err = m.Fetch(ctx, query.NewRange[rec](-1, 1))
	assert.ErrorIs(t, err, query.ErrInvalidRange)
}

func TestMemoryDoesNotAliasRecords(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[map[string]any]()

	r := map[string]any{"id": "1", "v": 1, "tags": []any{"a"}}
	require.NoError(t, m.Add(ctx, []Entry[map[string]any]{{ID: "1", Record: r}}))
	r["v"] = 99
	r["tags"].([]any)[0] = "z"

	got, err := m.Get(ctx, []string{"1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"id": "1", "v": float64(1), "tags": []any{"a"}}, got[0])

	got[0]["v"] = 42
	fetched, err := m.Fetch(ctx, nil)
	require.NoError(t, err)
	require.Len(t, fetched, 1)
	assert.Equal(t, float64(1), fetched[0]["v"], "returned records are copies")

	fetched[0]["v"] = 7
	again, err := m.Get(ctx, []string{"1"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), again[0]["v"])
}

func TestMemoryRejectsUnencodableRecord(t *testing.T) {
	m := NewMemory[map[string]any]()
	err := m.Put(context.Background(), []Entry[map[string]any]{{ID: "1", Record: map[string]any{"id": "1", "fn": func() {}}}})
	assert.Error(t, err)
	assert.Zero(t, m.Len())
}

func TestMemoryCreateID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory[rec](WithGenerator(NewSequenceGenerator("rec")))

	first, err := m.CreateID(ctx)
	require.NoError(t, err)
	second, err := m.CreateID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "rec-1", first)
	assert.Equal(t, "rec-2", second)
}

func TestGeneratorsAreUnique(t *testing.T) {
	for name, gen := range map[string]IDGenerator{
		"uuidv7": UUIDv7Generator{},
		"ulid":   ULIDGenerator{},
		"seq":    NewSequenceGenerator(""),
	} {
		t.Run(name, func(t *testing.T) {
			seen := make(map[string]bool, 1000)
			for i := 0; i < 1000; i++ {
				id := gen.Generate()
				require.False(t, seen[id], "duplicate %s", id)
				seen[id] = true
			}
		})
	}
	assert.Len(t, UUIDv7Generator{}.Generate(), 36)
	assert.Len(t, ULIDGenerator{}.Generate(), 26)
}
