package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/recordstore/patch"
)

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeConflict indicates an identifier collision on Add (or Put with RejectOverwrite).
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeNotFound indicates a Patch or Delete of an absent identifier.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeBackend indicates a failure surfaced by the storage backend.
	ErrCodeBackend ErrorCode = "BACKEND"

	// ErrCodeIdentity indicates a record whose identifier cannot be derived,
	// or a patch that changed a record's identifier.
	ErrCodeIdentity ErrorCode = "IDENTITY"

	// ErrCodePatch indicates a patch operation that could not be applied.
	ErrCodePatch ErrorCode = "PATCH"

	// ErrCodeInvalidQuery indicates a query carrying a construction error.
	ErrCodeInvalidQuery ErrorCode = "INVALID_QUERY"

	// ErrCodeClosed indicates a call submitted after Close.
	ErrCodeClosed ErrorCode = "CLOSED"
)

var (
	// ErrConflictingIdentity is returned by New when both WithIDProperty and
	// WithIDFunction are given.
	ErrConflictingIdentity = errors.New("idProperty and idFunction are mutually exclusive")

	// ErrClosed rejects calls submitted after Close.
	ErrClosed = errors.New("store is closed")
)

// ConflictError rejects an Add whose identifiers already exist in the store
// or repeat within the call. Nothing from the call is committed.
type ConflictError struct {
	IDs []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: Objects already exist in store: %s", ErrCodeConflict, strings.Join(e.IDs, ", "))
}

// NotFoundError reports an identifier that is not stored.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: no record with id %q", ErrCodeNotFound, e.ID)
}

// BackendError wraps a failure returned by the storage backend.
type BackendError struct {
	// Op is the store call that reached the backend.
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrCodeBackend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IdentityError reports a record without a derivable identifier, or a patch
// that would change an identifier.
type IdentityError struct {
	// Index is the record's position in the call, or -1.
	Index   int
	ID      string
	Message string
}

func (e *IdentityError) Error() string {
	switch {
	case e.ID != "":
		return fmt.Sprintf("%s: %s (id=%s)", ErrCodeIdentity, e.Message, e.ID)
	case e.Index >= 0:
		return fmt.Sprintf("%s: %s (record %d)", ErrCodeIdentity, e.Message, e.Index)
	default:
		return fmt.Sprintf("%s: %s", ErrCodeIdentity, e.Message)
	}
}

// IsConflict returns true if the error is a ConflictError.
// Uses errors.As to handle wrapped errors.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsBackend returns true if the error is a BackendError.
func IsBackend(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}

// IsIdentity returns true if the error is an IdentityError.
func IsIdentity(err error) bool {
	var ie *IdentityError
	return errors.As(err, &ie)
}

// CodeOf returns the category of err, or "" for nil and unknown errors.
func CodeOf(err error) ErrorCode {
	var (
		ce *ConflictError
		ne *NotFoundError
		be *BackendError
		ie *IdentityError
		pe *patch.PatchApplicationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ce):
		return ErrCodeConflict
	case errors.As(err, &ne):
		return ErrCodeNotFound
	case errors.As(err, &be):
		return ErrCodeBackend
	case errors.As(err, &ie):
		return ErrCodeIdentity
	case errors.As(err, &pe):
		return ErrCodePatch
	case errors.Is(err, ErrClosed):
		return ErrCodeClosed
	case errors.Is(err, errInvalidQuery):
		return ErrCodeInvalidQuery
	default:
		return ""
	}
}

var errInvalidQuery = errors.New("invalid query")
