package testutil

import (
	"fmt"

	"github.com/roach88/recordstore/patch"
)

// Nested is the nested property of Item.
type Nested struct {
	Value int `json:"value"`
}

// Item is the record type used across store, tree and harness tests.
type Item struct {
	ID             string `json:"id"`
	Value          int    `json:"value"`
	NestedProperty Nested `json:"nestedProperty"`
}

// Items returns three fresh records: values 1..3 with nested values 3..1.
func Items() []Item {
	return []Item{
		{ID: "1", Value: 1, NestedProperty: Nested{Value: 3}},
		{ID: "2", Value: 2, NestedProperty: Nested{Value: 2}},
		{ID: "3", Value: 3, NestedProperty: Nested{Value: 1}},
	}
}

// Updates returns two generations of updates to Items: generation n adds
// n+1 to Value and leaves NestedProperty alone.
func Updates() [][]Item {
	out := make([][]Item, 2)
	for n := range out {
		for _, item := range Items() {
			item.Value += n + 1
			out[n] = append(out[n], item)
		}
	}
	return out
}

// IncrementPatches returns one patch per Items record that adds 2 to both
// value and nestedProperty.value, keyed by identifier in Items order.
func IncrementPatches() ([]string, []patch.Patch) {
	var (
		ids     []string
		patches []patch.Patch
	)
	for _, item := range Items() {
		ids = append(ids, item.ID)
		patches = append(patches, patch.New(
			patch.MustOperation(patch.Replace, "/value", item.Value+2),
			patch.MustOperation(patch.Replace, "/nestedProperty/value", item.NestedProperty.Value+2),
		))
	}
	return ids, patches
}

// Node is a parent-pointer record for tree tests. A nil Parent is a root.
type Node struct {
	ID     string  `json:"id"`
	Parent *string `json:"parent"`
	Name   string  `json:"name"`
}

// Forest returns two roots, "a" and "b", with children a1, a2, b1 and a
// grandchild a1x under a1.
func Forest() []Node {
	return []Node{
		{ID: "a", Name: "root a"},
		{ID: "b", Name: "root b"},
		child("a1", "a"),
		child("a2", "a"),
		child("b1", "b"),
		child("a1x", "a1"),
	}
}

func child(id, parent string) Node {
	return Node{ID: id, Parent: &parent, Name: fmt.Sprintf("%s of %s", id, parent)}
}

// IDs returns the identifiers of items in order.
func IDs(items []Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}
