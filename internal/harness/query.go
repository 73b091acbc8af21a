package harness

import (
	"fmt"
	"math"
	"sort"

	"github.com/roach88/recordstore/query"
	"github.com/roach88/recordstore/store"
)

// QuerySpec is the declarative form of a query used by scenarios and the CLI.
// The parts apply in a fixed order: filter, then sort, then range.
type QuerySpec struct {
	// Equal AND-s "path = value" terms, in path order.
	Equal map[string]any `yaml:"equal,omitempty" json:"equal,omitempty"`

	// In AND-s "path in values" terms, in path order.
	In map[string][]any `yaml:"in,omitempty" json:"in,omitempty"`

	// Where is an expr-lang boolean expression over the record's fields.
	Where string `yaml:"where,omitempty" json:"where,omitempty"`

	// Sort keys in priority order.
	Sort []SortKey `yaml:"sort,omitempty" json:"sort,omitempty"`

	// Offset and Count select a range. A nil Count means "to the end".
	Offset int  `yaml:"offset,omitempty" json:"offset,omitempty"`
	Count  *int `yaml:"count,omitempty" json:"count,omitempty"`
}

// SortKey is one sort key of a QuerySpec.
type SortKey struct {
	Path string `yaml:"path" json:"path"`
	Desc bool   `yaml:"desc,omitempty" json:"desc,omitempty"`
}

// BuildQuery converts spec to a query. A nil or empty spec yields nil,
// which fetches every record unchanged.
func BuildQuery[T any](spec *QuerySpec) (query.Query[T], error) {
	if spec == nil {
		return nil, nil
	}

	var parts []query.Query[T]
	if f, ok := buildFilter[T](spec); ok {
		if err := f.Err(); err != nil {
			return nil, fmt.Errorf("filter: %w", err)
		}
		parts = append(parts, f)
	}

	if len(spec.Sort) > 0 {
		s := query.NewSort[T](spec.Sort[0].Path, spec.Sort[0].Desc)
		for _, key := range spec.Sort[1:] {
			s = s.ThenBy(key.Path, key.Desc)
		}
		if err := s.Err(); err != nil {
			return nil, fmt.Errorf("sort: %w", err)
		}
		parts = append(parts, s)
	}

	if spec.Offset != 0 || spec.Count != nil {
		count := math.MaxInt
		if spec.Count != nil {
			count = *spec.Count
		}
		r := query.NewRange[T](spec.Offset, count)
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("range: %w", err)
		}
		parts = append(parts, r)
	}

	return store.Compose(parts...), nil
}

func buildFilter[T any](spec *QuerySpec) (query.Filter[T], bool) {
	f := query.NewFilter[T]()
	used := false

	for _, path := range sortedKeys(spec.Equal) {
		f = f.EqualTo(path, spec.Equal[path])
		used = true
	}
	for _, path := range sortedKeys(spec.In) {
		f = f.In(path, spec.In[path]...)
		used = true
	}
	if spec.Where != "" {
		f = f.Where(spec.Where)
		used = true
	}
	return f, used
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
