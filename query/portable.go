package query

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/recordstore/internal/ir"
)

// PortabilityResult reports whether a predicate tree can be evaluated by a
// storage backend's native query language instead of in memory.
type PortabilityResult struct {
	// IsPortable is true when every node of the tree is pushable.
	IsPortable bool

	// Warnings names each non-portable node. Empty when IsPortable is true.
	Warnings []string
}

// Portable checks a predicate tree against the pushdown fragment.
//
// Pushdown fragment rules:
//  1. Scalar literals only - comparisons against arrays or objects stay in memory
//  2. No ordering against null - null is unordered
//  3. Unambiguous paths - no segment that could be an array index, no quotes
//  4. No opaque leaves - Func, Expr, Match, Contains and DeepEqual stay in memory
//
// A nil predicate is portable (no filter). Portable is a pure function.
func Portable(p Predicate) PortabilityResult {
	v := &validator{warnings: []string{}}
	v.validatePredicate(p)
	return PortabilityResult{
		IsPortable: len(v.warnings) == 0,
		Warnings:   v.warnings,
	}
}

// validator accumulates warnings during traversal.
type validator struct {
	warnings []string
}

func (v *validator) addWarning(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) validatePredicate(p Predicate) {
	if p == nil {
		return
	}

	switch pred := p.(type) {
	case Compare:
		v.validatePath(pred.Path)
		v.validateLiteral(pred.Path, pred.Value)
		if _, isNull := pred.Value.(ir.IRNull); isNull && pred.Op != OpEqual && pred.Op != OpNotEqual {
			v.addWarning("Path '%s' ordered against null - null is unordered", pathString(pred.Path))
		}
	case In:
		v.validatePath(pred.Path)
		for _, value := range pred.Values {
			v.validateLiteral(pred.Path, value)
		}
	case Exists:
		v.validatePath(pred.Path)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Or:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case Not:
		v.validatePredicate(pred.Predicate)
	case Contains, DeepEqual, Match, Func, Expr:
		v.addWarning("%T predicate %s - evaluated in memory", p, p.String())
	default:
		v.addWarning("Unknown predicate type: %T - portability cannot be verified", p)
	}
}

func (v *validator) validateLiteral(path ir.Pointer, value ir.IRValue) {
	if !ir.IsScalar(value) {
		v.addWarning("Path '%s' compared to %s - only scalar literals are pushable", pathString(path), ir.TypeName(value))
	}
}

func (v *validator) validatePath(path ir.Pointer) {
	for _, seg := range path {
		if _, isIndex := ir.ArrayIndex(seg, math.MaxInt); isIndex {
			v.addWarning("Path '%s' has numeric segment %q - array index or key is ambiguous", pathString(path), seg)
			return
		}
		if seg == "" || strings.ContainsAny(seg, `"\`) {
			v.addWarning("Path '%s' has segment %q that cannot be quoted", pathString(path), seg)
			return
		}
	}
}
