package store

import "github.com/roach88/recordstore/patch"

// UpdateType is the kind of mutating call an UpdateResult describes.
type UpdateType string

const (
	UpdateAdd    UpdateType = "add"
	UpdatePut    UpdateType = "put"
	UpdatePatch  UpdateType = "patch"
	UpdateDelete UpdateType = "delete"
)

// UpdateResult describes the outcome of one Add, Put, Patch or Delete.
type UpdateResult[T any] struct {
	Type UpdateType

	// Seq is the call's submission sequence number; larger Seq values
	// were submitted (and applied) later.
	Seq int64

	// Successful holds the records as stored by this call, in call order.
	// Empty for Delete.
	Successful []T

	// SuccessfulIDs holds the identifiers the call affected, in call order.
	SuccessfulIDs []string

	// Failed lists per-item failures (Patch and Delete only).
	Failed []Failure
}

// Failure is one item that a Patch or Delete could not apply.
type Failure struct {
	ID  string
	Err error
}

// PatchItem pairs an identifier with the patch to apply to its record.
type PatchItem struct {
	ID    string
	Patch patch.Patch
}

// Event is delivered to store-wide listeners for every mutating call, in
// call order. Err is set when the whole call was rejected.
type Event[T any] struct {
	Type   UpdateType
	Seq    int64
	Result UpdateResult[T]
	Err    error
}

// WriteOption adjusts a single Add or Put call.
type WriteOption func(*writeOptions)

type writeOptions struct {
	rejectOverwrite *bool
}

// RejectOverwrite controls the conflict check. Add defaults to true,
// Put to false.
func RejectOverwrite(reject bool) WriteOption {
	return func(o *writeOptions) {
		o.rejectOverwrite = &reject
	}
}

func resolveWriteOptions(defaultReject bool, opts []WriteOption) bool {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.rejectOverwrite == nil {
		return defaultReject
	}
	return *o.rejectOverwrite
}
