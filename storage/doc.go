// Package storage defines the contract between a record store and the
// backend that holds its records, plus an in-memory backend.
//
// A Backend is keyed by string identifiers that the store derives before
// calling it; backends never compute identity themselves. Backends may block
// (I/O, artificial delay): the store serializes every call, so a backend is
// never entered concurrently by one store and needs no ordering logic of its
// own.
//
// # Ordering
//
// Fetch returns records in storage order, which for both bundled backends is
// first-insertion order. Overwriting a record (Put, or Add with overwrite)
// keeps its position; deleting and re-adding moves it to the end.
package storage
