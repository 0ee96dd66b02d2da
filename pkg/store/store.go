// Package store is the object store client used by every folder-level
// operation.
//
// Client wraps a provider.Store with the behavior the file manager needs on
// top of raw requests: typed existence checks, planned uploads with a single
// degraded retry, progress reporting, folder markers and copy-then-delete
// rename.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/twinpane/pkg/plan"
	"github.com/3leaps/twinpane/pkg/progress"
	"github.com/3leaps/twinpane/pkg/provider"
)

// Client performs object operations against one bucket.
//
// Client is safe for concurrent use if the underlying store is.
type Client struct {
	store     provider.Store
	overrides plan.Overrides
	logger    *zap.Logger

	// spoolThreshold is the largest non-seekable upload body buffered in
	// memory; larger bodies are spooled to a temp file.
	spoolThreshold int64
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithOverrides sets the transfer tuning used to plan uploads.
func WithOverrides(o plan.Overrides) Option {
	return func(c *Client) { c.overrides = o }
}

// WithSpoolThreshold sets the in-memory buffer limit for UploadReader.
func WithSpoolThreshold(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.spoolThreshold = n
		}
	}
}

// New creates a client over s.
func New(s provider.Store, opts ...Option) *Client {
	c := &Client{
		store:          s,
		overrides:      plan.DefaultOverrides(),
		logger:         zap.NewNop(),
		spoolThreshold: DefaultSpoolThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the underlying store, for listing.
func (c *Client) Provider() provider.Store {
	return c.store
}

// Overrides returns the transfer tuning in effect.
func (c *Client) Overrides() plan.Overrides {
	return c.overrides
}

// Close releases the underlying store.
func (c *Client) Close() error {
	return c.store.Close()
}

// State classifies the outcome of an existence check.
type State int

const (
	// Exists means the key was found.
	Exists State = iota + 1

	// NotFound means the store reported the key missing.
	NotFound

	// PermissionDenied means the check was refused.
	PermissionDenied

	// TransportError covers every other failure: network, throttling,
	// unavailable service, missing bucket.
	TransportError
)

func (s State) String() string {
	switch s {
	case Exists:
		return "exists"
	case NotFound:
		return "not_found"
	case PermissionDenied:
		return "permission_denied"
	case TransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Existence is the typed result of Stat.
type Existence struct {
	Key   string
	State State

	// Meta is set when State is Exists.
	Meta *provider.ObjectMeta

	// Err is set for PermissionDenied and TransportError.
	Err error
}

// Found reports whether the key exists.
func (e Existence) Found() bool { return e.State == Exists }

// Stat checks whether key exists and says why when it cannot tell.
func (c *Client) Stat(ctx context.Context, key string) Existence {
	meta, err := c.store.Head(ctx, key)
	switch {
	case err == nil:
		return Existence{Key: key, State: Exists, Meta: meta}
	case provider.IsNotFound(err):
		return Existence{Key: key, State: NotFound}
	case provider.IsAccessDenied(err), provider.IsInvalidCredentials(err):
		return Existence{Key: key, State: PermissionDenied, Err: err}
	default:
		return Existence{Key: key, State: TransportError, Err: err}
	}
}

// Exists is the lenient form of Stat: anything but a confirmed hit is
// reported as absent. Ambiguous results are logged.
func (c *Client) Exists(ctx context.Context, key string) bool {
	e := c.Stat(ctx, key)
	if e.Err != nil {
		c.logger.Debug("existence check treated as absent",
			zap.String("key", key),
			zap.Stringer("state", e.State),
			zap.Error(e.Err))
	}
	return e.Found()
}

// Put writes body under key in a single request.
func (c *Client) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	return c.store.PutObject(ctx, key, body, size, "")
}

// Download streams key into w and returns the number of bytes written.
// The object is HEADed first so progress has a total.
func (c *Client) Download(ctx context.Context, key string, w io.Writer, sink progress.Sink) (int64, error) {
	meta, err := c.store.Head(ctx, key)
	if err != nil {
		return 0, err
	}
	tracker := progress.NewTracker(meta.Size, sink)

	body, _, err := c.store.GetObject(ctx, key)
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }()

	n, err := io.Copy(progress.NewWriter(w, tracker), body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", key, err)
	}
	if n != meta.Size {
		return n, fmt.Errorf("download %s: got %d bytes, expected %d", key, n, meta.Size)
	}
	c.logger.Debug("downloaded object", zap.String("key", key), zap.Int64("bytes", n))
	return n, nil
}

// Delete removes key. Deleting a folder marker never touches its children.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.store.DeleteObject(ctx, key); err != nil {
		return err
	}
	c.logger.Debug("deleted object", zap.String("key", key))
	return nil
}

// Copy duplicates src to dst server-side.
func (c *Client) Copy(ctx context.Context, src, dst string) error {
	return c.store.CopyObject(ctx, src, dst)
}

// ErrEmptyKey is returned for operations that need a non-empty key.
var ErrEmptyKey = errors.New("empty key")

// CreateFolderMarker writes the zero-byte marker for a folder, appending
// the trailing slash when missing. Creating an existing marker is harmless.
func (c *Client) CreateFolderMarker(ctx context.Context, key string) error {
	if strings.Trim(key, "/") == "" {
		return ErrEmptyKey
	}
	if !strings.HasSuffix(key, "/") {
		key += "/"
	}
	if err := c.store.PutObject(ctx, key, bytes.NewReader(nil), 0, ""); err != nil {
		return err
	}
	c.logger.Debug("created folder marker", zap.String("key", key))
	return nil
}
