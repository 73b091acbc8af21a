package patch

import (
	"errors"
	"fmt"
)

// PatchApplicationError reports the operation that stopped a patch.
type PatchApplicationError struct {
	Index  int    // position of the failing operation in the patch
	Op     OpType // operation type
	Path   string // RFC 6901 form of the operation path
	Reason string // what went wrong at Path
}

func (e *PatchApplicationError) Error() string {
	path := e.Path
	if path == "" {
		path = "(root)"
	}
	return fmt.Sprintf("patch operation %d: cannot %s %s: %s", e.Index, e.Op, path, e.Reason)
}

// IsPatchApplicationError reports whether err is or wraps a PatchApplicationError.
func IsPatchApplicationError(err error) bool {
	var pe *PatchApplicationError
	return errors.As(err, &pe)
}

const (
	reasonUndefined  = "undefined path"
	reasonNotEqual   = "test failed: value differs"
	reasonScalar     = "parent is not a container"
	reasonBadIndex   = "invalid array index"
	reasonRemoveRoot = "the document root cannot be removed"
)
