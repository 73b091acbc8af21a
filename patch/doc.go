// Package patch represents and applies path-addressed structural edits to a
// single record.
//
// A Patch is an ordered list of Operations (add, remove, replace, test), each
// addressed by an RFC 6901 JSON pointer. Records are lowered to the ir value
// model, edited, and decoded back, so struct json tags define the property
// names a path can address.
//
// Application is all-or-nothing: operations run against a deep copy and the
// copy is returned only when every operation succeeded. The input record is
// never modified. Patches are immutable and may be applied to any number of
// records.
//
// Patches read and write the RFC 6902 JSON form:
//
//	[{"op":"replace","path":"/value","value":3},{"op":"remove","path":"/tags/0"}]
//
// Unlike RFC 6902, add creates missing intermediate containers: an array when
// the next segment is an index or "-", an object otherwise.
package patch
