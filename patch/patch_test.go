package patch

import (
	"testing"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recordstore/internal/ir"
)

type record struct {
	ID     string         `json:"id"`
	Prop1  string         `json:"prop1,omitempty"`
	Nested map[string]any `json:"nested,omitempty"`
	Tags   []string       `json:"tags,omitempty"`
}

func mustParse(t *testing.T, s string) ir.IRValue {
	t.Helper()
	v, err := ir.UnmarshalIRValue([]byte(s))
	require.NoError(t, err)
	return v
}

func TestApplyValue(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		ops  []Operation
		want string
	}{
		{
			name: "add property",
			doc:  `{"id":"1"}`,
			ops:  []Operation{MustOperation(Add, "/prop1", "x")},
			want: `{"id":"1","prop1":"x"}`,
		},
		{
			name: "add creates intermediate objects",
			doc:  `{"id":"1"}`,
			ops:  []Operation{MustOperation(Add, "/a/b/c", 1)},
			want: `{"a":{"b":{"c":1}},"id":"1"}`,
		},
		{
			name: "add creates intermediate array for index",
			doc:  `{}`,
			ops:  []Operation{MustOperation(Add, "/list/0", "first"), MustOperation(Add, "/list/-", "second")},
			want: `{"list":["first","second"]}`,
		},
		{
			name: "add inserts into array",
			doc:  `{"tags":["a","c"]}`,
			ops:  []Operation{MustOperation(Add, "/tags/1", "b")},
			want: `{"tags":["a","b","c"]}`,
		},
		{
			name: "replace nested",
			doc:  `{"nested":{"value":1}}`,
			ops:  []Operation{MustOperation(Replace, "/nested/value", 2)},
			want: `{"nested":{"value":2}}`,
		},
		{
			name: "bare key path",
			doc:  `{"value":1}`,
			ops:  []Operation{MustOperation(Replace, "value", 5)},
			want: `{"value":5}`,
		},
		{
			name: "remove array element",
			doc:  `{"tags":["a","b","c"]}`,
			ops:  []Operation{MustOperation(Remove, "/tags/1", nil)},
			want: `{"tags":["a","c"]}`,
		},
		{
			name: "test then replace",
			doc:  `{"v":{"k":[1,2]}}`,
			ops:  []Operation{MustOperation(Test, "/v", map[string]any{"k": []int{1, 2}}), MustOperation(Replace, "/v/k/0", 9)},
			want: `{"v":{"k":[9,2]}}`,
		},
		{
			name: "escaped segments",
			doc:  `{"a/b":{"m~n":1}}`,
			ops:  []Operation{MustOperation(Replace, "/a~1b/m~0n", 2)},
			want: `{"a/b":{"m~n":2}}`,
		},
		{
			name: "replace root",
			doc:  `{"a":1}`,
			ops:  []Operation{MustOperation(Replace, "", map[string]any{"b": 2})},
			want: `{"b":2}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustParse(t, tt.doc)
			got, err := New(tt.ops...).ApplyValue(doc)
			require.NoError(t, err)
			assert.True(t, ir.Equal(mustParse(t, tt.want), got), "got %s", mustCanonical(t, got))
		})
	}
}

func mustCanonical(t *testing.T, v ir.IRValue) string {
	t.Helper()
	data, err := ir.MarshalCanonical(v)
	require.NoError(t, err)
	return string(data)
}

func TestApplyValueFailures(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		op     Operation
		reason string
	}{
		{"replace missing", `{"id":"1"}`, MustOperation(Replace, "/prop1", "x"), reasonUndefined},
		{"remove missing", `{"id":"1"}`, MustOperation(Remove, "/prop1", nil), reasonUndefined},
		{"test missing", `{"id":"1"}`, MustOperation(Test, "/prop1", "x"), reasonUndefined},
		{"test differs", `{"v":1}`, MustOperation(Test, "/v", 2), reasonNotEqual},
		{"replace below missing", `{}`, MustOperation(Replace, "/a/b", 1), reasonUndefined},
		{"add through scalar", `{"a":1}`, MustOperation(Add, "/a/b", 1), reasonScalar},
		{"add past array end", `{"a":[1]}`, MustOperation(Add, "/a/5", 1), reasonBadIndex},
		{"remove index out of range", `{"a":[1]}`, MustOperation(Remove, "/a/1", nil), reasonUndefined},
		{"remove root", `{}`, MustOperation(Remove, "", nil), reasonRemoveRoot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.op).ApplyValue(mustParse(t, tt.doc))
			require.Error(t, err)
			var pe *PatchApplicationError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.reason, pe.Reason)
			assert.Equal(t, tt.op.Type, pe.Op)
			assert.True(t, IsPatchApplicationError(err))
		})
	}
}

func TestApplyIsAllOrNothing(t *testing.T) {
	doc := mustParse(t, `{"value":1,"tags":["a"]}`)
	p := New(
		MustOperation(Replace, "/value", 2),
		MustOperation(Add, "/tags/-", "b"),
		MustOperation(Remove, "/missing", nil),
	)

	_, err := p.ApplyValue(doc)
	var pe *PatchApplicationError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Index)
	assert.Equal(t, "/missing", pe.Path)
	assert.Equal(t, "patch operation 2: cannot remove /missing: undefined path", err.Error())

	assert.True(t, ir.Equal(mustParse(t, `{"value":1,"tags":["a"]}`), doc), "input untouched")
}

func TestApplyTyped(t *testing.T) {
	in := record{ID: "1", Tags: []string{"x"}}
	p := New(
		MustOperation(Add, "/prop1", "hello"),
		MustOperation(Add, "/nested/value", 3),
		MustOperation(Add, "/tags/-", "y"),
	)

	out, err := Apply(p, in)
	require.NoError(t, err)
	assert.Equal(t, record{
		ID:     "1",
		Prop1:  "hello",
		Nested: map[string]any{"value": float64(3)},
		Tags:   []string{"x", "y"},
	}, out)
	assert.Equal(t, []string{"x"}, in.Tags, "input untouched")

	_, err = Apply(New(MustOperation(Replace, "/prop1", "x")), record{ID: "1"})
	assert.True(t, IsPatchApplicationError(err))
}

func TestApplyTyped_UnknownProperty(t *testing.T) {
	_, err := Apply(New(MustOperation(Add, "/unknownField", 1)), record{ID: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknownField")
	assert.False(t, IsPatchApplicationError(err))

	out, err := Apply(New(MustOperation(Add, "/unknownField", 1)), map[string]any{"id": "1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "1", "unknownField": float64(1)}, out)
}

func TestPatchIsReusable(t *testing.T) {
	p := New(MustOperation(Test, "/value", 1), MustOperation(Replace, "/value", 1))
	doc := mustParse(t, `{"value":1}`)

	first, err := p.ApplyValue(doc)
	require.NoError(t, err)
	second, err := p.ApplyValue(first)
	require.NoError(t, err)
	assert.True(t, ir.Equal(first, second))
	assert.True(t, ir.Equal(doc, second))
}

func TestNewOperationErrors(t *testing.T) {
	_, err := NewOperation("move", "/a", nil)
	assert.Error(t, err)
	_, err = NewOperation(Add, "/a~", 1)
	assert.Error(t, err)
	_, err = NewOperation(Add, "/a", func() {})
	assert.Error(t, err)
}

func TestDiffRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
	}{
		{"equal", `{"a":1}`, `{"a":1}`},
		{"changed scalar", `{"a":1,"b":"x"}`, `{"a":2,"b":"x"}`},
		{"added and removed keys", `{"a":1,"gone":true}`, `{"a":1,"new":[1,2]}`},
		{"nested", `{"n":{"m":{"k":1}}}`, `{"n":{"m":{"k":2,"j":null}}}`},
		{"array same length", `{"l":[1,{"x":1},3]}`, `{"l":[1,{"x":2},3]}`},
		{"array resized", `{"l":[1,2]}`, `{"l":[1,2,3]}`},
		{"type change", `{"a":{"b":1}}`, `{"a":[1]}`},
		{"root scalar", `1`, `"one"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := mustParse(t, tt.from), mustParse(t, tt.to)
			p, err := Diff(from, to)
			require.NoError(t, err)
			got, err := p.ApplyValue(from)
			require.NoError(t, err)
			assert.True(t, ir.Equal(to, got), "patch %s produced %s", p, mustCanonical(t, got))
		})
	}
}

func TestDiffOperations(t *testing.T) {
	p, err := Diff(map[string]any{"a": 1, "b": 2}, map[string]any{"a": 1, "c": 3})
	require.NoError(t, err)
	assert.Equal(t, "[remove /b; add /c 3]", p.String())

	p, err = Diff(record{ID: "1"}, record{ID: "1"})
	require.NoError(t, err)
	assert.Zero(t, p.Len())
}

func TestDecodeAndMarshal(t *testing.T) {
	doc := []byte(`[
		{"op":"test","path":"/id","value":"1"},
		{"op":"add","path":"/parent","value":null},
		{"op":"replace","path":"/nested/value","value":{"deep":[1,2]}},
		{"op":"remove","path":"/tags/0"}
	]`)

	p, err := Decode(doc)
	require.NoError(t, err)
	require.Equal(t, 4, p.Len())
	ops := p.Operations()
	assert.Equal(t, Test, ops[0].Type)
	assert.Equal(t, ir.IRNull{}, ops[1].Value)
	assert.Equal(t, ir.NewPointer("nested", "value"), ops[2].Path)
	assert.Nil(t, ops[3].Value)

	encoded, err := p.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"op":"test","path":"/id","value":"1"},
		{"op":"add","path":"/parent","value":null},
		{"op":"replace","path":"/nested/value","value":{"deep":[1,2]}},
		{"op":"remove","path":"/tags/0"}
	]`, string(encoded))

	var again Patch
	require.NoError(t, again.UnmarshalJSON(encoded))
	assert.Empty(t, cmp.Diff(p.String(), again.String()))
}

func TestDecodeRejects(t *testing.T) {
	for name, doc := range map[string]string{
		"not json":      `{`,
		"move":          `[{"op":"move","from":"/a","path":"/b"}]`,
		"missing value": `[{"op":"add","path":"/a"}]`,
		"relative path": `[{"op":"add","path":"a","value":1}]`,
		"missing path":  `[{"op":"remove"}]`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(doc))
			assert.Error(t, err)
		})
	}
}

// TestMatchesReferenceImplementation applies the same RFC 6902 document with
// this package and with evanphx/json-patch.
func TestMatchesReferenceImplementation(t *testing.T) {
	original := []byte(`{"id":"1","value":1,"tags":["a","b"],"nested":{"k":"v"}}`)
	patchDoc := []byte(`[
		{"op":"replace","path":"/value","value":2},
		{"op":"add","path":"/tags/1","value":"x"},
		{"op":"remove","path":"/nested/k"},
		{"op":"add","path":"/nested/n","value":[true]},
		{"op":"test","path":"/id","value":"1"}
	]`)

	reference, err := jsonpatch.DecodePatch(patchDoc)
	require.NoError(t, err)
	want, err := reference.Apply(original)
	require.NoError(t, err)

	p, err := Decode(patchDoc)
	require.NoError(t, err)
	got, err := p.ApplyValue(mustParse(t, string(original)))
	require.NoError(t, err)

	assert.True(t, ir.Equal(mustParse(t, string(want)), got))
}
