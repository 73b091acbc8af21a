// Package testutil provides fixtures and storage doubles for store tests.
//
// DelayedBackend emulates an asynchronous backend by sleeping before every
// call and records how many calls overlap, so tests can prove that the store
// never runs two backend calls at once. FailingBackend injects errors per
// operation. FixedGenerator makes CreateID deterministic for golden output.
package testutil
