// Package query provides composable, immutable queries over ordered record
// sequences: filters, sorts, ranges and compound queries.
//
// Every query is a value object. Builder methods return a new query and never
// modify the receiver, so a query can be shared across goroutines and reused
// across calls. Evaluation is a pure function of (query, input) → output.
//
// # Filters
//
// A Filter is built as a chain of terms. Consecutive terms are joined by an
// implicit AND; Or() starts a new alternative. AND binds tighter than OR:
//
//	NewFilter[T]().EqualTo("a", 1).Or().EqualTo("b", 2).And().EqualTo("c", 3)
//
// means a == 1 OR (b == 2 AND c == 3). Grouping is explicit: pass filters to
// And, Or or Not to nest them.
//
// Paths are either a bare property name ("parent") or an RFC 6901 JSON
// pointer ("/nestedProperty/value"). A path that does not resolve makes the
// leaf false; Exists is the only leaf that distinguishes a missing property
// from an explicit null.
//
// # Predicate tree
//
// Filters lower to a sealed predicate tree (Predicate). Storage backends may
// inspect it to push simple comparisons down to their own query language;
// Portable reports which trees qualify.
//
// # Errors
//
// Builders do not return errors. A malformed path, expression or range is
// recorded on the query and surfaced by Check; a query carrying an error
// matches nothing.
package query
