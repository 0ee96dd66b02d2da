// Package output provides JSONL output for listings and transfers.
//
// Output is structured as typed record envelopes containing entries,
// transfer steps, skips, errors and summaries. Each line is a
// self-contained JSON object that can be parsed independently.
package output

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/3leaps/twinpane/pkg/provider"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: twinpane.<type>.v<version>
const (
	// TypeEntry identifies folder listing rows.
	TypeEntry = "twinpane.entry.v1"

	// TypeStat identifies existence check results.
	TypeStat = "twinpane.stat.v1"

	// TypeTransfer identifies completed transfer steps.
	TypeTransfer = "twinpane.transfer.v1"

	// TypeSkip identifies items skipped by conflict resolution.
	TypeSkip = "twinpane.skip.v1"

	// TypeError identifies error records.
	TypeError = "twinpane.error.v1"

	// TypeProgress identifies progress update records.
	TypeProgress = "twinpane.progress.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "twinpane.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line of JSONL output contains a Record with a type-specific
// payload in the Data field.
type Record struct {
	// Type identifies the record type (e.g., "twinpane.entry.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// JobID correlates the records of one command invocation.
	JobID string `json:"job_id"`

	// Provider identifies the storage backend (e.g., "s3", "minio").
	Provider string `json:"provider"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// EntryRecord is one row of a folder listing.
type EntryRecord struct {
	// Prefix is the listed folder.
	Prefix string `json:"prefix"`

	// Name is the row label; folders keep their trailing slash.
	Name string `json:"name"`

	// Kind is "dir" or "file".
	Kind string `json:"kind"`

	// Key, Size and LastModified are set for files only.
	Key          string     `json:"key,omitempty"`
	Size         int64      `json:"size,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

// StatRecord is the result of an existence check.
type StatRecord struct {
	Key          string     `json:"key"`
	State        string     `json:"state"`
	Size         int64      `json:"size,omitempty"`
	ETag         string     `json:"etag,omitempty"`
	ContentType  string     `json:"content_type,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Transfer operations.
const (
	OpUpload   = "upload"
	OpDownload = "download"
	OpDelete   = "delete"
	OpRename   = "rename"
	OpMkdir    = "mkdir"
)

// TransferRecord is one completed step of a folder-level operation.
type TransferRecord struct {
	// Op is one of the Op* constants.
	Op string `json:"op"`

	// Source is the local path or key read from.
	Source string `json:"source,omitempty"`

	// Target is the local path or key written or removed.
	Target string `json:"target"`

	// Bytes is the payload size, when one was moved.
	Bytes int64 `json:"bytes,omitempty"`
}

// SkipRecord is an item left untouched.
type SkipRecord struct {
	Op     string `json:"op"`
	Source string `json:"source,omitempty"`
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// ErrorRecord is the data payload for errors.
type ErrorRecord struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`

	// Key is the object key related to this error, if applicable.
	Key string `json:"key,omitempty"`

	// Prefix is the prefix being processed when the error occurred.
	Prefix string `json:"prefix,omitempty"`

	// Details contains additional error context.
	Details any `json:"details,omitempty"`
}

// Error codes for ErrorRecord.
const (
	// ErrCodeAccessDenied indicates permission failure.
	ErrCodeAccessDenied = "ACCESS_DENIED"

	// ErrCodeNotFound indicates the object or bucket was not found.
	ErrCodeNotFound = "NOT_FOUND"

	// ErrCodeTimeout indicates an operation timed out or was cancelled.
	ErrCodeTimeout = "TIMEOUT"

	// ErrCodeThrottled indicates rate limiting.
	ErrCodeThrottled = "THROTTLED"

	// ErrCodeProviderUnavailable indicates the store could not be reached.
	ErrCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"

	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal = "INTERNAL"
)

// ErrorCode classifies err into one of the ErrCode* constants.
func ErrorCode(err error) string {
	switch {
	case provider.IsNotFound(err), provider.IsBucketNotFound(err):
		return ErrCodeNotFound
	case provider.IsAccessDenied(err), provider.IsInvalidCredentials(err):
		return ErrCodeAccessDenied
	case provider.IsThrottled(err):
		return ErrCodeThrottled
	case provider.IsProviderUnavailable(err):
		return ErrCodeProviderUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	default:
		return ErrCodeInternal
	}
}

// ProgressRecord reports the percentage of one transfer.
type ProgressRecord struct {
	Op      string `json:"op"`
	Target  string `json:"target"`
	Percent int    `json:"percent"`
}

// SummaryRecord is emitted at the end of a command with aggregate counts.
type SummaryRecord struct {
	// Op is the command that ran.
	Op string `json:"op"`

	// Completed is the number of items processed.
	Completed int64 `json:"completed"`

	// Skipped is the number of items left untouched.
	Skipped int64 `json:"skipped"`

	// Bytes is the payload moved.
	Bytes int64 `json:"bytes"`

	// Duration is the total duration.
	Duration time.Duration `json:"duration_ns"`

	// DurationHuman is a human-readable duration string.
	DurationHuman string `json:"duration"`

	// Errors is the count of errors encountered.
	Errors int64 `json:"errors"`

	// Incomplete is set when a listing had to stop early.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
