// Package tree derives hierarchical, expand/collapse-aware views from a
// store of parent-pointer records.
//
// A record is a root when its parent property is null or missing. Every
// other record names its parent's identifier. A Tree view shows the roots
// plus the children of every expanded identifier:
//
//	t := tree.New(s)
//	t.Fetch(ctx, nil)   // roots only
//	t.Expand("a")
//	t.Fetch(ctx, nil)   // roots and the children of "a"
//
// Deeper levels appear only as the caller expands each one. GetChildren is
// the explicit lookup and ignores the expanded set.
package tree
