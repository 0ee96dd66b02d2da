package provider

import (
	"context"
	"io"
)

// Write and transfer capability interfaces.
//
// The core Provider interface stays read-only; Store composes these for
// backends that support the full file-manager surface.

// ObjectPutter can create/overwrite objects with a single request.
//
// Used for folder markers and objects that fit in one part.
type ObjectPutter interface {
	PutObject(ctx context.Context, key string, body io.Reader, contentLength int64, contentType string) error
}

// ObjectDeleter can delete objects.
//
// Deleting a missing key is not an error on S3-compatible stores.
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, key string) error
}

// ObjectGetter can download objects as a stream.
type ObjectGetter interface {
	GetObject(ctx context.Context, key string) (body io.ReadCloser, contentLength int64, err error)
}

// ObjectCopier performs server-side copies within the bucket.
type ObjectCopier interface {
	CopyObject(ctx context.Context, srcKey, dstKey string) error
}

// MultipartOptions carries the chunking parameters of one upload attempt.
type MultipartOptions struct {
	// PartSize is the size of each part in bytes.
	PartSize int64

	// Concurrency is the number of parts uploaded in parallel (minimum 1).
	Concurrency int

	// ContentType is stored on the object when non-empty.
	ContentType string

	// Progress, when set, is called with the byte count of every part the
	// store has acknowledged. It may be called from several goroutines.
	Progress func(n int64)
}

// MultipartUploader uploads a body as a multipart object.
//
// Implementations abort the multipart upload on failure so that no
// orphaned parts are left behind; they do not retry the whole upload.
type MultipartUploader interface {
	UploadMultipart(ctx context.Context, key string, body io.Reader, size int64, opts MultipartOptions) error
}
