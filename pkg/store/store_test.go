package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/twinpane/pkg/plan"
	"github.com/3leaps/twinpane/pkg/progress"
	"github.com/3leaps/twinpane/pkg/provider"
	"github.com/3leaps/twinpane/pkg/provider/memory"
)

type percents struct {
	mu     sync.Mutex
	events []int
}

func (p *percents) OnProgress(v int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, v)
}

func (p *percents) last() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.events) == 0 {
		return -1
	}
	return p.events[len(p.events)-1]
}

func (p *percents) monotonic() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 1; i < len(p.events); i++ {
		if p.events[i] < p.events[i-1] {
			return false
		}
	}
	return true
}

func TestStat(t *testing.T) {
	ctx := context.Background()
	mem := memory.New("b")
	mem.Seed("here.txt", []byte("abc"))
	c := New(mem)

	e := c.Stat(ctx, "here.txt")
	assert.Equal(t, Exists, e.State)
	require.NotNil(t, e.Meta)
	assert.Equal(t, int64(3), e.Meta.Size)
	assert.True(t, e.Found())

	e = c.Stat(ctx, "missing.txt")
	assert.Equal(t, NotFound, e.State)
	assert.NoError(t, e.Err)

	mem.InjectFault(memory.Fault{Op: memory.OpHead, Key: "secret", Err: provider.ErrAccessDenied})
	e = c.Stat(ctx, "secret")
	assert.Equal(t, PermissionDenied, e.State)
	assert.True(t, provider.IsAccessDenied(e.Err))

	mem.InjectFault(memory.Fault{Op: memory.OpHead, Key: "flaky", Err: provider.ErrProviderUnavailable})
	e = c.Stat(ctx, "flaky")
	assert.Equal(t, TransportError, e.State)
	assert.Equal(t, "transport_error", e.State.String())
}

func TestExists_Lenient(t *testing.T) {
	ctx := context.Background()
	mem := memory.New("b")
	mem.Seed("a", []byte("x"))
	mem.InjectFault(memory.Fault{Op: memory.OpHead, Key: "denied", Err: provider.ErrAccessDenied})
	c := New(mem)

	assert.True(t, c.Exists(ctx, "a"))
	assert.False(t, c.Exists(ctx, "b"))
	assert.False(t, c.Exists(ctx, "denied"))
}

func TestUploadDownload_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := memory.New("b")
	c := New(mem)
	payload := []byte(strings.Repeat("twinpane round trip\n", 500))

	up := &percents{}
	require.NoError(t, c.Upload(ctx, "docs/notes.txt", bytes.NewReader(payload), int64(len(payload)), up))
	assert.Equal(t, 100, up.last())
	assert.True(t, up.monotonic())

	uploads := mem.Uploads()
	require.Len(t, uploads, 1)
	assert.False(t, uploads[0].Multipart)
	assert.True(t, strings.HasPrefix(uploads[0].ContentType, "text/plain"), uploads[0].ContentType)

	down := &percents{}
	var buf bytes.Buffer
	n, err := c.Download(ctx, "docs/notes.txt", &buf, down)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, buf.Bytes())
	assert.Equal(t, 100, down.last())
}

func TestUpload_EmptyBodyReportsComplete(t *testing.T) {
	mem := memory.New("b")
	c := New(mem)

	sink := &percents{}
	require.NoError(t, c.Upload(context.Background(), "empty.txt", bytes.NewReader(nil), 0, sink))
	assert.Equal(t, []int{0, 100}, sink.events)

	data, ok := mem.Data("empty.txt")
	require.True(t, ok)
	assert.Empty(t, data)
}

func TestUpload_MultipartUsesPlan(t *testing.T) {
	ctx := context.Background()
	mem := memory.New("b")
	c := New(mem, WithOverrides(plan.Overrides{PartSizeMB: 8, Concurrency: 3, UseThreads: true}))
	payload := bytes.Repeat([]byte{0x7f}, int(9*plan.MiB))

	sink := &percents{}
	require.NoError(t, c.Upload(ctx, "big.bin", bytes.NewReader(payload), int64(len(payload)), sink))

	uploads := mem.Uploads()
	require.Len(t, uploads, 1)
	assert.True(t, uploads[0].Multipart)
	assert.Equal(t, 8*plan.MiB, uploads[0].PartSize)
	assert.Equal(t, 3, uploads[0].Concurrency)
	assert.Equal(t, 100, sink.last())

	data, ok := mem.Data("big.bin")
	require.True(t, ok)
	assert.Equal(t, payload, data)
}

func TestUpload_FallbackRetrySucceeds(t *testing.T) {
	ctx := context.Background()
	mem := memory.New("b")
	mem.InjectFault(memory.Fault{Op: memory.OpMultipart, Err: provider.ErrProviderUnavailable, Times: 1})
	c := New(mem, WithOverrides(plan.Overrides{PartSizeMB: 8, Concurrency: 4, UseThreads: true, FallbackBump: true}))
	payload := bytes.Repeat([]byte("z"), int(9*plan.MiB))

	sink := &percents{}
	require.NoError(t, c.Upload(ctx, "retry.bin", bytes.NewReader(payload), int64(len(payload)), sink))

	uploads := mem.Uploads()
	require.Len(t, uploads, 2)
	assert.Error(t, uploads[0].Err)
	assert.Equal(t, 4, uploads[0].Concurrency)

	// 16 MiB parts hold the whole body, so the fallback is a single PUT.
	assert.NoError(t, uploads[1].Err)
	assert.False(t, uploads[1].Multipart)

	data, ok := mem.Data("retry.bin")
	require.True(t, ok)
	assert.Equal(t, payload, data, "source was rewound before the retry")
	assert.Equal(t, 100, sink.last())
	assert.True(t, sink.monotonic())
}

func TestUpload_FallbackSingleWorker(t *testing.T) {
	ctx := context.Background()
	mem := memory.New("b")
	mem.InjectFault(memory.Fault{Op: memory.OpMultipart, Err: provider.ErrThrottled, Times: 1})
	c := New(mem, WithOverrides(plan.Overrides{PartSizeMB: 8, Concurrency: 4, UseThreads: true}))
	payload := bytes.Repeat([]byte("q"), int(9*plan.MiB))

	require.NoError(t, c.Upload(ctx, "k", bytes.NewReader(payload), int64(len(payload)), nil))

	uploads := mem.Uploads()
	require.Len(t, uploads, 2)
	assert.True(t, uploads[1].Multipart)
	assert.Equal(t, 1, uploads[1].Concurrency)
	assert.Equal(t, 8*plan.MiB, uploads[1].PartSize)
}

func TestUpload_SecondFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	mem := memory.New("b")
	mem.InjectFault(memory.Fault{Op: memory.OpPut, Err: provider.ErrProviderUnavailable})
	c := New(mem)

	err := c.Upload(ctx, "k.txt", strings.NewReader("data"), 4, nil)
	require.Error(t, err)

	var uerr *UploadError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "k.txt", uerr.Key)
	assert.Equal(t, 2, uerr.Attempts)
	assert.True(t, provider.IsProviderUnavailable(err))
	assert.Len(t, mem.Uploads(), 2, "exactly one retry")

	_, ok := mem.Data("k.txt")
	assert.False(t, ok)
}

func TestUpload_CanceledDoesNotRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mem := memory.New("b")
	c := New(mem)

	err := c.Upload(ctx, "k.txt", strings.NewReader("data"), 4, nil)
	var uerr *UploadError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, 1, uerr.Attempts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUploadReader(t *testing.T) {
	ctx := context.Background()
	payload := strings.Repeat("spooled ", 64)

	for _, tc := range []struct {
		name      string
		size      int64
		threshold int64
	}{
		{"memory", int64(len(payload)), 1 << 20},
		{"temp file", int64(len(payload)), 16},
		{"unknown size", -1, 1 << 20},
	} {
		t.Run(tc.name, func(t *testing.T) {
			mem := memory.New("b")
			c := New(mem, WithSpoolThreshold(tc.threshold))

			require.NoError(t, c.UploadReader(ctx, "r.txt", io.NopCloser(strings.NewReader(payload)), tc.size, nil))
			data, ok := mem.Data("r.txt")
			require.True(t, ok)
			assert.Equal(t, payload, string(data))
		})
	}
}

func TestUploadReader_SizeMismatch(t *testing.T) {
	c := New(memory.New("b"))
	err := c.UploadReader(context.Background(), "r.txt", strings.NewReader("short"), 10, nil)
	var uerr *UploadError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, 0, uerr.Attempts)
	assert.Contains(t, err.Error(), "shorter")
}

func TestDownload_Missing(t *testing.T) {
	c := New(memory.New("b"))
	_, err := c.Download(context.Background(), "nope", io.Discard, progress.Discard)
	assert.True(t, provider.IsNotFound(err))
}

func TestCreateFolderMarker(t *testing.T) {
	ctx := context.Background()
	mem := memory.New("b")
	c := New(mem)

	require.NoError(t, c.CreateFolderMarker(ctx, "a/b"))
	require.NoError(t, c.CreateFolderMarker(ctx, "a/b/"))
	data, ok := mem.Data("a/b/")
	require.True(t, ok)
	assert.Empty(t, data)
	assert.Equal(t, []string{"a/b/"}, mem.Keys())

	assert.ErrorIs(t, c.CreateFolderMarker(ctx, "/"), ErrEmptyKey)
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	mem := memory.New("b")
	mem.Seed("dir/old.txt", []byte("content"))
	c := New(mem)

	require.NoError(t, c.Rename(ctx, "dir/old.txt", "dir/new.txt"))
	assert.False(t, c.Exists(ctx, "dir/old.txt"))
	assert.True(t, c.Exists(ctx, "dir/new.txt"))
	data, _ := mem.Data("dir/new.txt")
	assert.Equal(t, "content", string(data))
}

func TestRename_CopyFailure(t *testing.T) {
	c := New(memory.New("b"))
	err := c.Rename(context.Background(), "missing", "other")

	var rerr *RenameError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, StageCopy, rerr.Stage)
	assert.True(t, provider.IsNotFound(err))
}

func TestRename_DeleteFailureLeavesBoth(t *testing.T) {
	ctx := context.Background()
	mem := memory.New("b")
	mem.Seed("a.txt", []byte("x"))
	mem.InjectFault(memory.Fault{Op: memory.OpDelete, Err: provider.ErrAccessDenied})
	c := New(mem)

	err := c.Rename(ctx, "a.txt", "b.txt")
	var rerr *RenameError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, StageDelete, rerr.Stage)
	assert.Contains(t, err.Error(), "both keys exist")
	assert.Equal(t, []string{"a.txt", "b.txt"}, mem.Keys())
}

func TestRename_SameKey(t *testing.T) {
	mem := memory.New("b")
	mem.Seed("a", []byte("x"))
	require.NoError(t, New(mem).Rename(context.Background(), "a", "a"))
	assert.Equal(t, 0, mem.Calls(memory.OpCopy))
}

func TestDelete_MarkerKeepsChildren(t *testing.T) {
	ctx := context.Background()
	mem := memory.New("b")
	mem.Seed("p/", nil)
	mem.Seed("p/child.txt", []byte("x"))

	require.NoError(t, New(mem).Delete(ctx, "p/"))
	assert.Equal(t, []string{"p/child.txt"}, mem.Keys())
}

func TestSpool_TempFileCleanup(t *testing.T) {
	b, err := spool(strings.NewReader(strings.Repeat("a", 100)), -1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(100), b.size)
	require.NoError(t, b.Close())
}
