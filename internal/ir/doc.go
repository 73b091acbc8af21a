// Package ir provides the structured value model shared by the query and
// patch engines.
//
// Records of any JSON-encodable Go type are lowered to IRValue trees before
// paths are resolved, predicates evaluated, or patches applied. The lowering
// is a JSON round-trip, so struct tags decide property names and records are
// never aliased by the tree that describes them.
//
// This package imports nothing internal. The query, patch, storage and store
// packages all build on it; it remains the foundational layer with no
// circular dependencies.
//
// Key design constraints:
//   - IRValue is sealed: IRNull, IRString, IRInt, IRFloat, IRBool, IRArray, IRObject
//   - Integral JSON numbers decode to IRInt, everything else numeric to IRFloat
//   - IRInt and IRFloat compare by numeric value (2 == 2.0)
//   - Paths are RFC 6901 JSON pointers (Pointer); a missing segment is never an error
//     at read time, callers decide what absence means
package ir
