package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FromGo lowers an arbitrary JSON-encodable Go value to an IRValue.
//
// IRValues pass through unchanged (not copied). Everything else takes a JSON
// round-trip, so the result never aliases the input and struct tags decide
// property names. A nil input becomes IRNull.
func FromGo(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case float64:
		return fromFloat(val), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("lower %T: %w", v, err)
	}
	return UnmarshalIRValue(data)
}

// MustFromGo is FromGo for values known to be encodable (literals in builders and tests).
// Panics on failure.
func MustFromGo(v any) IRValue {
	val, err := FromGo(v)
	if err != nil {
		panic(err)
	}
	return val
}

// Decode raises an IRValue back into a Go value of type T.
func Decode[T any](v IRValue) (T, error) {
	var out T
	data, err := MarshalIRValue(v)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode into %T: %w", out, err)
	}
	return out, nil
}

// DecodeStrict is Decode that fails when v has an object property the
// target struct does not declare. Maps accept any property.
func DecodeStrict[T any](v IRValue) (T, error) {
	var out T
	data, err := MarshalIRValue(v)
	if err != nil {
		return out, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("decode into %T: %w", out, err)
	}
	return out, nil
}

// ToGo converts an IRValue to plain Go values: nil, string, int64, float64,
// bool, []any and map[string]any.
func ToGo(v IRValue) any {
	switch val := v.(type) {
	case nil, IRNull:
		return nil
	case IRString:
		return string(val)
	case IRInt:
		return int64(val)
	case IRFloat:
		return float64(val)
	case IRBool:
		return bool(val)
	case IRArray:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case IRObject:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	default:
		return nil
	}
}

// Clone returns a deep copy of v. Scalars are immutable and returned as-is.
func Clone(v IRValue) IRValue {
	switch val := v.(type) {
	case IRArray:
		out := make(IRArray, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case IRObject:
		out := make(IRObject, len(val))
		for k, elem := range val {
			out[k] = Clone(elem)
		}
		return out
	default:
		return v
	}
}

// fromDecoded converts the output of a UseNumber JSON decode to an IRValue.
func fromDecoded(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case json.Number:
		return fromNumber(val)
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := fromDecoded(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := fromDecoded(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func fromNumber(n json.Number) (IRValue, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return IRInt(i), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %s: %w", s, err)
	}
	return fromFloat(f), nil
}

// fromFloat keeps integral floats as IRInt so 2.0 and 2 lower identically.
func fromFloat(f float64) IRValue {
	if f == float64(int64(f)) && f >= -(1<<53) && f <= 1<<53 {
		return IRInt(int64(f))
	}
	return IRFloat(f)
}
