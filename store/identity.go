package store

import (
	"strconv"

	"github.com/roach88/recordstore/internal/ir"
)

// DefaultIDProperty is the property identifiers are read from when neither
// WithIDProperty nor WithIDFunction is given.
const DefaultIDProperty = "id"

// identifier derives record identity, either from a property or a function.
type identifier[T any] struct {
	property string
	fn       func(T) string
}

// identify returns the record's identifier, or "" when it has none.
//
// Property values are read through the record's JSON form: strings are used
// as-is, numbers and booleans are formatted ("2", "2.5", "true"). Null,
// missing, array and object values yield "".
func (id identifier[T]) identify(record T) string {
	if id.fn != nil {
		return id.fn(record)
	}
	doc, err := ir.FromGo(record)
	if err != nil {
		return ""
	}
	obj, ok := doc.(ir.IRObject)
	if !ok {
		return ""
	}
	switch v := obj[id.property].(type) {
	case ir.IRString:
		return string(v)
	case ir.IRInt:
		return strconv.FormatInt(int64(v), 10)
	case ir.IRFloat:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case ir.IRBool:
		return strconv.FormatBool(bool(v))
	default:
		return ""
	}
}
