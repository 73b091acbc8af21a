// Package store is an in-memory, queryable record store with ordered CRUD.
//
// A Store holds uniquely identified records of type T in a pluggable
// storage.Backend and accepts Add, Put, Patch, Delete, Get, Fetch and
// CreateID calls. Every call returns immediately with a *Result: a future
// that can be awaited (Wait) or observed (Subscribe), both fed by the same
// completion.
//
// # Ordering
//
// Calls against one Store observe a total order equal to submission order,
// whatever the backend's latency. Each call is appended to a per-store FIFO
// queue and a single drain goroutine runs them one at a time: call N starts
// only after call N-1 settled. A failed call never blocks later ones.
//
// CRITICAL: Result callbacks and update listeners run on the drain
// goroutine, in call order, before the next call starts. They must not block
// on another Result of the same store.
//
// # No cancellation
//
// Once queued, a call runs to completion. The context passed to a call
// supplies values to the backend but its cancellation is stripped
// (context.WithoutCancel); use the context given to Result.Wait to bound
// how long the caller waits.
//
// # Errors
//
// Whole-call failures reject the Result: *ConflictError for identifier
// collisions, *IdentityError for records without identity, *BackendError for
// backend failures. Per-item failures of Patch (*patch.PatchApplicationError,
// *NotFoundError) and Delete (*NotFoundError) are listed in
// UpdateResult.Failed and do not reject the call.
package store
