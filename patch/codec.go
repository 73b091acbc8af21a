package patch

import (
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"

	"github.com/roach88/recordstore/internal/ir"
)

// wireOperation is the RFC 6902 JSON object form of an Operation.
type wireOperation struct {
	Op    OpType          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Decode reads an RFC 6902 JSON patch document. Only add, remove, replace
// and test are supported; move and copy are rejected.
func Decode(data []byte) (Patch, error) {
	decoded, err := jsonpatch.DecodePatch(data)
	if err != nil {
		return Patch{}, fmt.Errorf("decode patch: %w", err)
	}

	ops := make([]Operation, 0, len(decoded))
	for i, raw := range decoded {
		var kind, path string
		if err := unmarshalField(raw["op"], &kind); err != nil {
			return Patch{}, fmt.Errorf("operation %d: op: %w", i, err)
		}
		if err := unmarshalField(raw["path"], &path); err != nil {
			return Patch{}, fmt.Errorf("operation %d: path: %w", i, err)
		}
		t := OpType(kind)
		if !t.valid() {
			return Patch{}, fmt.Errorf("operation %d: unsupported op %q", i, kind)
		}
		if path != "" && path[0] != '/' {
			return Patch{}, fmt.Errorf("operation %d: path %q must be a JSON pointer", i, path)
		}
		pointer, err := ir.ParsePointer(path)
		if err != nil {
			return Patch{}, fmt.Errorf("operation %d: %w", i, err)
		}

		op := Operation{Type: t, Path: pointer}
		if t != Remove {
			value, ok := raw["value"]
			switch {
			case !ok:
				return Patch{}, fmt.Errorf("operation %d: %s requires a value", i, t)
			case value == nil:
				// A JSON null decodes to a nil RawMessage pointer.
				op.Value = ir.IRNull{}
			default:
				if op.Value, err = ir.UnmarshalIRValue(*value); err != nil {
					return Patch{}, fmt.Errorf("operation %d: value: %w", i, err)
				}
			}
		}
		ops = append(ops, op)
	}
	return Patch{ops: ops}, nil
}

func unmarshalField(raw *json.RawMessage, dst *string) error {
	if raw == nil {
		return fmt.Errorf("missing")
	}
	return json.Unmarshal(*raw, dst)
}

// MarshalJSON writes the RFC 6902 form.
func (p Patch) MarshalJSON() ([]byte, error) {
	wire := make([]wireOperation, len(p.ops))
	for i, op := range p.ops {
		wire[i] = wireOperation{Op: op.Type, Path: op.Path.String()}
		if op.Type == Remove {
			continue
		}
		value, err := ir.MarshalIRValue(op.Value)
		if err != nil {
			return nil, fmt.Errorf("operation %d: %w", i, err)
		}
		wire[i].Value = value
	}
	return json.Marshal(wire)
}

// UnmarshalJSON reads the RFC 6902 form.
func (p *Patch) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}
