package query

import (
	"strings"

	"github.com/expr-lang/expr"

	"github.com/roach88/recordstore/internal/ir"
)

// subject is one record under evaluation. The IR form is computed on first
// use and shared by every leaf of the predicate tree.
type subject struct {
	raw     any
	doc     ir.IRValue
	err     error
	lowered bool
	env     map[string]any
}

func newSubject(record any) *subject {
	return &subject{raw: record}
}

func (s *subject) value() (ir.IRValue, bool) {
	if !s.lowered {
		s.doc, s.err = ir.FromGo(s.raw)
		s.lowered = true
	}
	return s.doc, s.err == nil
}

func (s *subject) at(path ir.Pointer) (ir.IRValue, bool) {
	doc, ok := s.value()
	if !ok {
		return nil, false
	}
	return path.Get(doc)
}

func (s *subject) exprEnv() map[string]any {
	if s.env == nil {
		s.env = map[string]any{}
		if doc, ok := s.value(); ok {
			if fields, ok := ir.ToGo(doc).(map[string]any); ok {
				s.env = fields
			}
		}
	}
	return s.env
}

// Matches evaluates p against a single record.
// A nil predicate matches everything.
func Matches(p Predicate, record any) bool {
	if p == nil {
		return true
	}
	return eval(p, newSubject(record))
}

func eval(p Predicate, s *subject) bool {
	switch pred := p.(type) {
	case And:
		for _, sub := range pred.Predicates {
			if !eval(sub, s) {
				return false
			}
		}
		return true
	case Or:
		for _, sub := range pred.Predicates {
			if eval(sub, s) {
				return true
			}
		}
		return false
	case Not:
		return !eval(pred.Predicate, s)
	case Compare:
		v, ok := s.at(pred.Path)
		return ok && compare(v, pred.Op, pred.Value)
	case In:
		v, ok := s.at(pred.Path)
		if !ok {
			return false
		}
		for _, candidate := range pred.Values {
			if scalarEqual(v, candidate) {
				return true
			}
		}
		return false
	case Contains:
		v, ok := s.at(pred.Path)
		return ok && contains(v, pred.Value)
	case DeepEqual:
		v, ok := s.at(pred.Path)
		return ok && ir.Equal(v, pred.Value)
	case Exists:
		_, ok := s.at(pred.Path)
		return ok
	case Match:
		v, ok := s.at(pred.Path)
		str, isString := v.(ir.IRString)
		return ok && isString && pred.Pattern.MatchString(string(str))
	case Func:
		return pred.Test != nil && pred.Test(s.raw)
	case Expr:
		if pred.Program == nil {
			return false
		}
		out, err := expr.Run(pred.Program, s.exprEnv())
		if err != nil {
			return false
		}
		b, _ := out.(bool)
		return b
	default:
		return false
	}
}

func compare(v ir.IRValue, op Op, want ir.IRValue) bool {
	switch op {
	case OpEqual:
		return scalarEqual(v, want)
	case OpNotEqual:
		return !scalarEqual(v, want)
	}

	c, ok := ir.Compare(v, want)
	if !ok {
		return false
	}
	switch op {
	case OpLess:
		return c < 0
	case OpLessOrEqual:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpGreaterOrEqual:
		return c >= 0
	default:
		return false
	}
}

// scalarEqual is equality without structural comparison: two containers
// are never equal, mirroring reference semantics.
func scalarEqual(a, b ir.IRValue) bool {
	return ir.IsScalar(a) && ir.IsScalar(b) && ir.Equal(a, b)
}

func contains(v, want ir.IRValue) bool {
	switch container := v.(type) {
	case ir.IRArray:
		for _, elem := range container {
			if ir.Equal(elem, want) {
				return true
			}
		}
		return false
	case ir.IRString:
		sub, ok := want.(ir.IRString)
		return ok && strings.Contains(string(container), string(sub))
	default:
		return false
	}
}
