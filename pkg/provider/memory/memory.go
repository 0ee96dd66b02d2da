// Package memory provides an in-process provider.Store.
//
// It follows S3 listing semantics (lexicographic order, delimiter grouping,
// continuation tokens, start-after markers, page limits) and can be told to
// misbehave the way some S3-compatible services do: repeating continuation
// tokens, ignoring cursors or the delimiter, and failing selected calls.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/3leaps/twinpane/pkg/provider"
)

// Operation names used by fault injection.
const (
	OpList      = "List"
	OpHead      = "Head"
	OpGet       = "GetObject"
	OpPut       = "PutObject"
	OpDelete    = "DeleteObject"
	OpCopy      = "CopyObject"
	OpMultipart = "UploadMultipart"
)

const (
	defaultMaxKeys = 1000
	tokenPrefix    = "mem:"
	repeatToken    = "mem-repeat"
)

// Behavior selects deliberate listing defects.
type Behavior struct {
	// RepeatToken makes every truncated page carry the same continuation
	// token. Presenting it resumes after the first page, so a client that
	// keeps following it sees the same page forever.
	RepeatToken bool

	// IgnoreCursor serves the first page for every request regardless of
	// continuation token or start-after marker.
	IgnoreCursor bool

	// OmitToken reports truncated pages without a continuation token.
	OmitToken bool

	// IgnoreDelimiter returns nested keys as objects instead of grouping
	// them into common prefixes.
	IgnoreDelimiter bool

	// PageSize caps the page size below the requested MaxKeys when > 0.
	PageSize int
}

// Fault fails matching calls with Err.
type Fault struct {
	// Op is one of the Op* constants.
	Op string

	// Key restricts the fault to one key (or list prefix). Empty matches all.
	Key string

	// Err is returned by the failing call.
	Err error

	// Times limits how many calls fail. Zero means every call.
	Times int
}

// UploadRecord describes one completed or attempted write.
type UploadRecord struct {
	Key         string
	Multipart   bool
	PartSize    int64
	Concurrency int
	ContentType string
	Err         error
}

type faultState struct {
	Fault
	fired int
}

type object struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// Store is an in-memory bucket.
type Store struct {
	mu       sync.Mutex
	bucket   string
	objects  map[string]object
	behavior Behavior
	faults   []*faultState
	uploads  []UploadRecord
	calls    map[string]int
	now      func() time.Time
}

var _ provider.Store = (*Store)(nil)

// New returns an empty store for bucket.
func New(bucket string) *Store {
	return &Store{
		bucket:  bucket,
		objects: map[string]object{},
		calls:   map[string]int{},
		now:     time.Now,
	}
}

// SetBehavior replaces the listing defects in effect.
func (s *Store) SetBehavior(b Behavior) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.behavior = b
}

// InjectFault registers a fault.
func (s *Store) InjectFault(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &faultState{Fault: f})
}

// ClearFaults removes every registered fault.
func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = nil
}

// Seed stores data under key without recording an upload.
func (s *Store) Seed(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{data: append([]byte(nil), data...), lastModified: s.now()}
}

// Keys returns every stored key in lexicographic order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedKeysLocked()
}

// Data returns a copy of the object stored under key.
func (s *Store) Data(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.data...), true
}

// Uploads returns the recorded writes in call order.
func (s *Store) Uploads() []UploadRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UploadRecord(nil), s.uploads...)
}

// Calls returns how many times op has been invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// faultLocked records the call and returns the injected error for it, if any.
// Callers must hold s.mu.
func (s *Store) faultLocked(op, key string) error {
	s.calls[op]++
	for _, f := range s.faults {
		if f.Op != op || (f.Key != "" && f.Key != key) {
			continue
		}
		if f.Times > 0 && f.fired >= f.Times {
			continue
		}
		f.fired++
		return f.Err
	}
	return nil
}

func (s *Store) wrap(op, key string, err error) error {
	return &provider.ProviderError{Op: op, Provider: provider.ProviderMemory, Bucket: s.bucket, Key: key, Err: err}
}

func (s *Store) sortedKeysLocked() []string {
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// List returns one page of results.
func (s *Store) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faultLocked(OpList, opts.Prefix); err != nil {
		return nil, s.wrap(OpList, opts.Prefix, err)
	}

	b := s.behavior
	limit := opts.MaxKeys
	if limit <= 0 || limit > defaultMaxKeys {
		limit = defaultMaxKeys
	}
	if b.PageSize > 0 && b.PageSize < limit {
		limit = b.PageSize
	}

	delimiter := opts.Delimiter
	if b.IgnoreDelimiter {
		delimiter = ""
	}

	// S3 applies start-after to keys before grouping, so a common prefix
	// equal to the marker reappears while it still has keys after it.
	startAfter := ""
	if !b.IgnoreCursor && opts.ContinuationToken == "" {
		startAfter = opts.StartAfter
	}
	items := s.itemsLocked(opts.Prefix, delimiter, startAfter)

	start := 0
	if !b.IgnoreCursor {
		switch {
		case opts.ContinuationToken == repeatToken:
			start = min(limit, len(items))
		case opts.ContinuationToken != "":
			cursor, ok := strings.CutPrefix(opts.ContinuationToken, tokenPrefix)
			if !ok {
				return nil, s.wrap(OpList, opts.Prefix, fmt.Errorf("invalid continuation token %q", opts.ContinuationToken))
			}
			start = sort.Search(len(items), func(i int) bool { return items[i].name > cursor })
		}
	}

	end := min(start+limit, len(items))
	res := &provider.ListResult{}
	for _, it := range items[start:end] {
		if it.prefix {
			res.CommonPrefixes = append(res.CommonPrefixes, it.name)
			continue
		}
		obj := s.objects[it.name]
		res.Objects = append(res.Objects, provider.ObjectSummary{
			Key:          it.name,
			Size:         int64(len(obj.data)),
			LastModified: obj.lastModified,
		})
	}

	if end < len(items) {
		res.IsTruncated = true
		switch {
		case b.OmitToken:
		case b.RepeatToken:
			res.ContinuationToken = repeatToken
		default:
			res.ContinuationToken = tokenPrefix + items[end-1].name
		}
	}
	return res, nil
}

type listItem struct {
	name   string
	prefix bool
}

// itemsLocked returns the ordered keys and common prefixes under prefix,
// considering only keys greater than after.
func (s *Store) itemsLocked(prefix, delimiter, after string) []listItem {
	var items []listItem
	for _, k := range s.sortedKeysLocked() {
		if !strings.HasPrefix(k, prefix) || k <= after {
			continue
		}
		if delimiter != "" {
			rest := k[len(prefix):]
			if i := strings.Index(rest, delimiter); i >= 0 {
				cp := prefix + rest[:i+len(delimiter)]
				if n := len(items); n > 0 && items[n-1].prefix && items[n-1].name == cp {
					continue
				}
				items = append(items, listItem{name: cp, prefix: true})
				continue
			}
		}
		items = append(items, listItem{name: k})
	}
	return items
}

// Head returns metadata for key.
func (s *Store) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faultLocked(OpHead, key); err != nil {
		return nil, s.wrap(OpHead, key, err)
	}
	obj, ok := s.objects[key]
	if !ok {
		return nil, s.wrap(OpHead, key, provider.ErrNotFound)
	}
	return &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{
			Key:          key,
			Size:         int64(len(obj.data)),
			LastModified: obj.lastModified,
		},
		ContentType: obj.contentType,
	}, nil
}

// GetObject returns a reader over a copy of the object.
func (s *Store) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faultLocked(OpGet, key); err != nil {
		return nil, 0, s.wrap(OpGet, key, err)
	}
	obj, ok := s.objects[key]
	if !ok {
		return nil, 0, s.wrap(OpGet, key, provider.ErrNotFound)
	}
	data := append([]byte(nil), obj.data...)
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// PutObject stores body under key.
func (s *Store) PutObject(ctx context.Context, key string, body io.Reader, contentLength int64, contentType string) error {
	return s.write(ctx, OpPut, key, body, contentLength, UploadRecord{Key: key, ContentType: contentType}, nil)
}

// UploadMultipart stores body under key and records the chunking parameters.
func (s *Store) UploadMultipart(ctx context.Context, key string, body io.Reader, size int64, opts provider.MultipartOptions) error {
	rec := UploadRecord{
		Key:         key,
		Multipart:   true,
		PartSize:    opts.PartSize,
		Concurrency: opts.Concurrency,
		ContentType: opts.ContentType,
	}
	return s.write(ctx, OpMultipart, key, body, size, rec, opts.Progress)
}

func (s *Store) write(ctx context.Context, op, key string, body io.Reader, size int64, rec UploadRecord, progress func(int64)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return s.wrap(op, key, err)
	}
	if size >= 0 && int64(len(data)) != size {
		err := fmt.Errorf("body length %d does not match declared size %d", len(data), size)
		s.record(rec, err)
		return s.wrap(op, key, err)
	}

	s.mu.Lock()
	if err := s.faultLocked(op, key); err != nil {
		s.mu.Unlock()
		s.record(rec, err)
		return s.wrap(op, key, err)
	}
	s.objects[key] = object{data: data, contentType: rec.ContentType, lastModified: s.now()}
	s.mu.Unlock()
	s.record(rec, nil)

	if progress != nil {
		reportParts(int64(len(data)), rec.PartSize, progress)
	}
	return nil
}

func reportParts(size, partSize int64, progress func(int64)) {
	if partSize <= 0 {
		progress(size)
		return
	}
	for size > 0 {
		n := min(partSize, size)
		progress(n)
		size -= n
	}
}

func (s *Store) record(rec UploadRecord, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Err = err
	s.uploads = append(s.uploads, rec)
}

// DeleteObject removes key. Missing keys are not an error.
func (s *Store) DeleteObject(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faultLocked(OpDelete, key); err != nil {
		return s.wrap(OpDelete, key, err)
	}
	delete(s.objects, key)
	return nil
}

// CopyObject duplicates srcKey to dstKey.
func (s *Store) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faultLocked(OpCopy, srcKey); err != nil {
		return s.wrap(OpCopy, srcKey, err)
	}
	obj, ok := s.objects[srcKey]
	if !ok {
		return s.wrap(OpCopy, srcKey, provider.ErrNotFound)
	}
	s.objects[dstKey] = object{
		data:         append([]byte(nil), obj.data...),
		contentType:  obj.contentType,
		lastModified: s.now(),
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
