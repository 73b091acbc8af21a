package ir

import (
	"cmp"
	"slices"
)

// Equal reports deep structural equality.
// IRInt and IRFloat compare by numeric value. A nil IRValue (missing) is only
// equal to another nil.
func Equal(a, b IRValue) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case IRNull:
		_, ok := b.(IRNull)
		return ok
	case IRString:
		bv, ok := b.(IRString)
		return ok && av == bv
	case IRBool:
		bv, ok := b.(IRBool)
		return ok && av == bv
	case IRInt, IRFloat:
		bf, ok := numeric(b)
		if !ok {
			return false
		}
		if ai, ok := av.(IRInt); ok {
			if bi, ok := b.(IRInt); ok {
				return ai == bi
			}
		}
		af, _ := numeric(av)
		return af == bf
	case IRArray:
		bv, ok := b.(IRArray)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case IRObject:
		bv, ok := b.(IRObject)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, ae := range av {
			be, ok := bv[k]
			if !ok || !Equal(ae, be) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// IsScalar reports whether v is a string, number, bool or null.
func IsScalar(v IRValue) bool {
	switch v.(type) {
	case IRNull, IRString, IRInt, IRFloat, IRBool:
		return true
	default:
		return false
	}
}

// Compare orders two values of the same comparable kind.
// Numbers compare numerically, strings by bytes, bools false < true.
// ok is false when the values are not mutually ordered (different kinds,
// containers, null or missing); range predicates treat that as "no match".
func Compare(a, b IRValue) (c int, ok bool) {
	switch av := a.(type) {
	case IRString:
		bv, ok := b.(IRString)
		if !ok {
			return 0, false
		}
		return cmp.Compare(av, bv), true
	case IRBool:
		bv, ok := b.(IRBool)
		if !ok {
			return 0, false
		}
		return cmp.Compare(boolRank(bool(av)), boolRank(bool(bv))), true
	case IRInt:
		if bi, ok := b.(IRInt); ok {
			return cmp.Compare(av, bi), true
		}
		bf, ok := numeric(b)
		if !ok {
			return 0, false
		}
		return cmp.Compare(float64(av), bf), true
	case IRFloat:
		bf, ok := numeric(b)
		if !ok {
			return 0, false
		}
		return cmp.Compare(float64(av), bf), true
	default:
		return 0, false
	}
}

// SortCompare is a total order over all values, used for sorting.
// Kinds rank missing < null < bool < number < string < array < object;
// within a kind values compare naturally (arrays element-wise, objects by
// sorted keys then values).
func SortCompare(a, b IRValue) int {
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	if c, ok := Compare(a, b); ok {
		return c
	}

	switch av := a.(type) {
	case IRArray:
		bv := b.(IRArray)
		for i := 0; i < min(len(av), len(bv)); i++ {
			if c := SortCompare(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(av), len(bv))
	case IRObject:
		bv := b.(IRObject)
		ak, bk := av.SortedKeys(), bv.SortedKeys()
		if c := slices.CompareFunc(ak, bk, compareKeysRFC8785); c != 0 {
			return c
		}
		for _, k := range ak {
			if c := SortCompare(av[k], bv[k]); c != 0 {
				return c
			}
		}
	}
	return 0
}

func numeric(v IRValue) (float64, bool) {
	switch n := v.(type) {
	case IRInt:
		return float64(n), true
	case IRFloat:
		return float64(n), true
	default:
		return 0, false
	}
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func kindRank(v IRValue) int {
	switch v.(type) {
	case nil:
		return 0
	case IRNull:
		return 1
	case IRBool:
		return 2
	case IRInt, IRFloat:
		return 3
	case IRString:
		return 4
	case IRArray:
		return 5
	case IRObject:
		return 6
	default:
		return 7
	}
}
