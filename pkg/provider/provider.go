// Package provider defines abstractions for object storage backends.
//
// Providers expose the flat key namespace of an S3-compatible bucket: raw
// listing pages, metadata, single writes, streamed reads, deletes and
// server-side copies. Folder semantics are layered on top by pkg/listing and
// pkg/store; providers never invent directories.
package provider

import (
	"context"
	"time"
)

// Provider abstracts object storage listing operations.
//
// Implementations should:
//   - Return one page per List call and never paginate internally
//   - Pass continuation tokens and start-after markers through unchanged
//   - Be safe for concurrent use
type Provider interface {
	// List returns a single page of results for the given options.
	List(ctx context.Context, opts ListOptions) (*ListResult, error)

	// Head returns metadata for a single object.
	// Returns ErrNotFound if the object does not exist.
	Head(ctx context.Context, key string) (*ObjectMeta, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Store is the full capability set the storage core needs from a backend.
type Store interface {
	Provider
	ObjectPutter
	ObjectGetter
	ObjectDeleter
	ObjectCopier
	MultipartUploader
}

// ListOptions configures a List operation.
type ListOptions struct {
	// Prefix filters results to keys starting with this value.
	// Empty string lists all objects.
	Prefix string

	// Delimiter groups keys sharing a prefix up to the next delimiter into
	// CommonPrefixes. Empty string disables grouping.
	Delimiter string

	// ContinuationToken resumes listing from a previous ListResult.
	// Takes precedence over StartAfter.
	ContinuationToken string

	// StartAfter resumes listing strictly after this key.
	StartAfter string

	// MaxKeys limits the number of keys returned per page.
	// Zero uses provider default (typically 1000).
	MaxKeys int
}

// ListResult contains a page of objects from a List operation.
type ListResult struct {
	// Objects contains the object summaries for this page.
	Objects []ObjectSummary

	// CommonPrefixes are the grouped child prefixes (only with a Delimiter).
	CommonPrefixes []string

	// ContinuationToken is used to retrieve the next page.
	// Empty string indicates no token was returned.
	ContinuationToken string

	// IsTruncated indicates whether more results are available.
	IsTruncated bool
}

// ObjectSummary contains basic metadata returned from List operations.
type ObjectSummary struct {
	// Key is the full object key (path) in the bucket.
	Key string

	// Size is the object size in bytes.
	Size int64

	// ETag is the entity tag, typically an MD5 hash of the object.
	ETag string

	// LastModified is when the object was last modified.
	// Zero when the backend did not report it.
	LastModified time.Time
}

// ObjectMeta contains full metadata for a single object.
// Returned by Head operations.
type ObjectMeta struct {
	ObjectSummary

	// ContentType is the MIME type of the object.
	ContentType string

	// Metadata contains user-defined metadata key-value pairs.
	Metadata map[string]string
}

// ProviderType identifies a storage backend.
type ProviderType string

const (
	// ProviderS3 represents AWS S3 or S3-compatible storage via the AWS SDK.
	ProviderS3 ProviderType = "s3"

	// ProviderMinio represents S3-compatible storage via minio-go.
	ProviderMinio ProviderType = "minio"

	// ProviderMemory is the in-process store used by tests.
	ProviderMemory ProviderType = "memory"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}
