package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrDeclined is returned when the user declined to replace a file
	// occupying a folder path.
	ErrDeclined = errors.New("declined to replace file with folder")

	// ErrRootDelete is returned for a recursive delete of the bucket root.
	ErrRootDelete = errors.New("refusing to delete the bucket root")

	// ErrInvalidName is returned for empty names and names containing a slash
	// where a single path element is required.
	ErrInvalidName = errors.New("invalid name")

	// ErrFolderRename is returned when a folder is passed to Rename.
	ErrFolderRename = errors.New("folders cannot be renamed")
)

// BatchError reports the step that stopped a batch. Completed steps before
// it stay applied.
type BatchError struct {
	// Op is the operation, one of the output.Op* constants.
	Op string

	// Source is the local path or key being read, if any.
	Source string

	// Target is the local path or key being written or removed.
	Target string

	// Completed is the number of steps that succeeded before the failure.
	Completed int64

	Err error
}

func (e *BatchError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s %s -> %s failed after %d completed: %v", e.Op, e.Source, e.Target, e.Completed, e.Err)
	}
	return fmt.Sprintf("%s %s failed after %d completed: %v", e.Op, e.Target, e.Completed, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
