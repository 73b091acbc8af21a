package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRFloat(4.2)
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeys(t *testing.T) {
	obj := IRObject{
		"zebra":  IRString("z"),
		"apple":  IRString("a"),
		"banana": IRString("b"),
	}

	assert.Equal(t, []string{"apple", "banana", "zebra"}, obj.SortedKeys())
}

func TestIRObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := IRObject{"a": IRInt(1), "A": IRInt(2), "aa": IRInt(3), "aA": IRInt(4), "Aa": IRInt(5), "AA": IRInt(6)}

	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestUnmarshalIRValue(t *testing.T) {
	v, err := UnmarshalIRValue([]byte(`{"a":1,"b":1.5,"c":null,"d":[true,"x"],"big":9007199254740993}`))
	require.NoError(t, err)

	assert.Equal(t, IRObject{
		"a":   IRInt(1),
		"b":   IRFloat(1.5),
		"c":   IRNull{},
		"d":   IRArray{IRBool(true), IRString("x")},
		"big": IRInt(9007199254740993),
	}, v)
}

func TestIRObjectJSONRoundTrip(t *testing.T) {
	var obj IRObject
	require.NoError(t, json.Unmarshal([]byte(`{"nested":{"value":2},"list":[1,2]}`), &obj))

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nested":{"value":2},"list":[1,2]}`, string(data))
}

func TestIRObjectUnmarshalRejectsArray(t *testing.T) {
	var obj IRObject
	err := json.Unmarshal([]byte(`[1]`), &obj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected JSON object")
}

func TestFromGoStruct(t *testing.T) {
	type nested struct {
		Value int `json:"value"`
	}
	type item struct {
		ID     string `json:"id"`
		Nested nested `json:"nestedProperty"`
		Skip   string `json:"-"`
	}

	v, err := FromGo(item{ID: "1", Nested: nested{Value: 3}, Skip: "x"})
	require.NoError(t, err)
	assert.Equal(t, IRObject{"id": IRString("1"), "nestedProperty": IRObject{"value": IRInt(3)}}, v)
}

func TestFromGoScalars(t *testing.T) {
	tests := []struct {
		in   any
		want IRValue
	}{
		{nil, IRNull{}},
		{"s", IRString("s")},
		{7, IRInt(7)},
		{int64(7), IRInt(7)},
		{2.0, IRInt(2)},
		{2.5, IRFloat(2.5)},
		{uint8(3), IRInt(3)},
		{true, IRBool(true)},
		{IRString("kept"), IRString("kept")},
	}
	for _, tt := range tests {
		got, err := FromGo(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %#v", tt.in)
	}
}

func TestFromGoUnsupported(t *testing.T) {
	_, err := FromGo(make(chan int))
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	type item struct {
		ID    string  `json:"id"`
		Value float64 `json:"value"`
	}

	got, err := Decode[item](IRObject{"id": IRString("a"), "value": IRInt(4)})
	require.NoError(t, err)
	assert.Equal(t, item{ID: "a", Value: 4}, got)

	_, err = Decode[item](IRString("nope"))
	assert.Error(t, err)
}

func TestToGo(t *testing.T) {
	v := IRObject{"a": IRArray{IRInt(1), IRFloat(0.5), IRNull{}}, "b": IRBool(false)}

	assert.Equal(t, map[string]any{
		"a": []any{int64(1), 0.5, nil},
		"b": false,
	}, ToGo(v))
}

func TestCloneIsDeep(t *testing.T) {
	orig := IRObject{"list": IRArray{IRObject{"x": IRInt(1)}}}
	cp := Clone(orig).(IRObject)

	cp["list"].(IRArray)[0].(IRObject)["x"] = IRInt(2)
	cp["added"] = IRBool(true)

	assert.Equal(t, IRInt(1), orig["list"].(IRArray)[0].(IRObject)["x"])
	assert.NotContains(t, orig, "added")
}
