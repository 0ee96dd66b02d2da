package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/3leaps/twinpane/pkg/plan"
	"github.com/3leaps/twinpane/pkg/progress"
	"github.com/3leaps/twinpane/pkg/provider"
)

// UploadError reports a failed upload after its attempts were exhausted.
type UploadError struct {
	Key string

	// Attempts is how many transfer attempts were made: 2 when the
	// fallback retry also failed, fewer when the upload could not be retried.
	Attempts int

	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s failed after %d attempt(s): %v", e.Key, e.Attempts, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// sniffLen is how much of a body is read to detect its content type.
const sniffLen = 3072

// Upload writes size bytes from src to key.
//
// The transfer plan is computed from size: bodies that fit in one part go
// out as a single PUT, larger ones as a multipart upload. When the attempt
// fails, src is rewound and the upload is retried exactly once with the
// fallback plan. If that fails too, an *UploadError with Attempts 2 is
// returned. Progress percentages reported to sink never decrease, including
// across the retry.
func (c *Client) Upload(ctx context.Context, key string, src io.ReadSeeker, size int64, sink progress.Sink) error {
	start, err := src.Seek(0, io.SeekCurrent)
	if err != nil {
		return &UploadError{Key: key, Attempts: 0, Err: fmt.Errorf("source not seekable: %w", err)}
	}
	contentType, err := detectContentType(key, src, start)
	if err != nil {
		return &UploadError{Key: key, Attempts: 0, Err: err}
	}

	tracker := progress.NewTracker(size, sink)
	tracker.Add(0)
	prog := &attemptProgress{tracker: tracker}

	first := plan.Compute(size, c.overrides)
	err = c.attempt(ctx, key, src, size, contentType, first, prog)
	if err == nil {
		tracker.Done()
		c.logger.Debug("uploaded object",
			zap.String("key", key),
			zap.Int64("bytes", size),
			zap.Bool("multipart", first.Multipart(size)))
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &UploadError{Key: key, Attempts: 1, Err: err}
	}

	fallback := plan.Fallback(size, c.overrides)
	c.logger.Warn("upload failed, retrying with fallback plan",
		zap.String("key", key),
		zap.Int64("part_size", fallback.PartSizeBytes),
		zap.Error(err))

	if _, seekErr := src.Seek(start, io.SeekStart); seekErr != nil {
		return &UploadError{Key: key, Attempts: 1, Err: errors.Join(err, seekErr)}
	}
	if err := c.attempt(ctx, key, src, size, contentType, fallback, prog.next()); err != nil {
		return &UploadError{Key: key, Attempts: 2, Err: err}
	}
	tracker.Done()
	c.logger.Info("upload succeeded on fallback plan", zap.String("key", key), zap.Int64("bytes", size))
	return nil
}

func (c *Client) attempt(ctx context.Context, key string, body io.Reader, size int64, contentType string, p plan.Plan, prog *attemptProgress) error {
	if !p.Multipart(size) {
		if err := c.store.PutObject(ctx, key, body, size, contentType); err != nil {
			return err
		}
		prog.add(size)
		return nil
	}
	return c.store.UploadMultipart(ctx, key, body, size, provider.MultipartOptions{
		PartSize:    p.PartSizeBytes,
		Concurrency: p.Workers(),
		ContentType: contentType,
		Progress:    prog.add,
	})
}

// UploadReader uploads from a non-seekable source. The body is buffered
// (in memory up to the spool threshold, in a temp file beyond it) so the
// fallback retry can replay it. A negative size means unknown.
func (c *Client) UploadReader(ctx context.Context, key string, src io.Reader, size int64, sink progress.Sink) error {
	body, err := spool(src, size, c.spoolThreshold)
	if err != nil {
		return &UploadError{Key: key, Attempts: 0, Err: fmt.Errorf("buffer body: %w", err)}
	}
	defer func() {
		if err := body.Close(); err != nil {
			c.logger.Warn("failed to release upload buffer", zap.String("key", key), zap.Error(err))
		}
	}()
	return c.Upload(ctx, key, body.reader, body.size, sink)
}

// attemptProgress forwards acknowledged bytes to the tracker, reporting
// only bytes beyond what an earlier attempt already reported.
type attemptProgress struct {
	mu       sync.Mutex
	tracker  *progress.Tracker
	sent     int64
	reported int64
}

func (a *attemptProgress) add(n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent += n
	if a.sent > a.reported {
		a.tracker.Add(a.sent - a.reported)
		a.reported = a.sent
	}
}

// next starts a new attempt that resumes reporting at the current mark.
func (a *attemptProgress) next() *attemptProgress {
	a.mu.Lock()
	defer a.mu.Unlock()
	return &attemptProgress{tracker: a.tracker, reported: a.reported}
}

// detectContentType sniffs the head of src and rewinds it to start. The key
// extension is used when the content is not recognized.
func detectContentType(key string, src io.ReadSeeker, start int64) (string, error) {
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(src, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("read source: %w", err)
	}
	if _, err := src.Seek(start, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind source: %w", err)
	}

	detected := mimetype.Detect(buf[:n])
	if !detected.Is("application/octet-stream") {
		return detected.String(), nil
	}
	if byExt := mime.TypeByExtension(path.Ext(key)); byExt != "" {
		return byExt, nil
	}
	return detected.String(), nil
}
