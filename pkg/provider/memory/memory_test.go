package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/twinpane/pkg/provider"
)

func seeded(keys ...string) *Store {
	s := New("bucket")
	for _, k := range keys {
		s.Seed(k, []byte("data:"+k))
	}
	return s
}

func TestList_DelimiterGrouping(t *testing.T) {
	s := seeded("docs/", "docs/a.txt", "docs/b/c.txt", "docs/b/d.txt", "docs/e/", "other.txt")

	res, err := s.List(context.Background(), provider.ListOptions{Prefix: "docs/", Delimiter: "/"})
	require.NoError(t, err)

	assert.Equal(t, []string{"docs/b/", "docs/e/"}, res.CommonPrefixes)
	require.Len(t, res.Objects, 2)
	assert.Equal(t, "docs/", res.Objects[0].Key)
	assert.Equal(t, "docs/a.txt", res.Objects[1].Key)
	assert.False(t, res.IsTruncated)
}

func TestList_IgnoreDelimiter(t *testing.T) {
	s := seeded("docs/b/c.txt")
	s.SetBehavior(Behavior{IgnoreDelimiter: true})

	res, err := s.List(context.Background(), provider.ListOptions{Prefix: "docs/", Delimiter: "/"})
	require.NoError(t, err)
	assert.Empty(t, res.CommonPrefixes)
	require.Len(t, res.Objects, 1)
	assert.Equal(t, "docs/b/c.txt", res.Objects[0].Key)
}

func TestList_ContinuationToken(t *testing.T) {
	s := seeded("a", "b", "c", "d", "e")

	var keys []string
	opts := provider.ListOptions{MaxKeys: 2}
	for {
		res, err := s.List(context.Background(), opts)
		require.NoError(t, err)
		for _, o := range res.Objects {
			keys = append(keys, o.Key)
		}
		if !res.IsTruncated {
			break
		}
		require.NotEmpty(t, res.ContinuationToken)
		opts.ContinuationToken = res.ContinuationToken
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, keys)
	assert.Equal(t, 3, s.Calls(OpList))
}

func TestList_StartAfterReemitsGroup(t *testing.T) {
	s := seeded("p/a/1", "p/a/2", "p/b")

	res, err := s.List(context.Background(), provider.ListOptions{Prefix: "p/", Delimiter: "/", StartAfter: "p/a/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p/a/"}, res.CommonPrefixes)
	require.Len(t, res.Objects, 1)
	assert.Equal(t, "p/b", res.Objects[0].Key)

	res, err = s.List(context.Background(), provider.ListOptions{Prefix: "p/", Delimiter: "/", StartAfter: "p/a/2"})
	require.NoError(t, err)
	assert.Empty(t, res.CommonPrefixes)
	require.Len(t, res.Objects, 1)
}

func TestList_RepeatToken(t *testing.T) {
	s := seeded("a", "b", "c", "d", "e")
	s.SetBehavior(Behavior{RepeatToken: true, PageSize: 2})

	first, err := s.List(context.Background(), provider.ListOptions{})
	require.NoError(t, err)
	second, err := s.List(context.Background(), provider.ListOptions{ContinuationToken: first.ContinuationToken})
	require.NoError(t, err)
	third, err := s.List(context.Background(), provider.ListOptions{ContinuationToken: second.ContinuationToken})
	require.NoError(t, err)

	assert.Equal(t, first.ContinuationToken, second.ContinuationToken)
	assert.Equal(t, second.Objects, third.Objects)
	assert.Equal(t, "c", second.Objects[0].Key)
}

func TestList_IgnoreCursorAndOmitToken(t *testing.T) {
	s := seeded("a", "b", "c")
	s.SetBehavior(Behavior{IgnoreCursor: true, OmitToken: true, PageSize: 1})

	res, err := s.List(context.Background(), provider.ListOptions{StartAfter: "b"})
	require.NoError(t, err)
	assert.True(t, res.IsTruncated)
	assert.Empty(t, res.ContinuationToken)
	assert.Equal(t, "a", res.Objects[0].Key)
}

func TestList_InvalidToken(t *testing.T) {
	s := seeded("a")
	_, err := s.List(context.Background(), provider.ListOptions{ContinuationToken: "bogus"})
	assert.Error(t, err)
}

func TestObjectLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New("bucket")

	require.NoError(t, s.PutObject(ctx, "k.txt", bytes.NewReader([]byte("hello")), 5, "text/plain"))

	meta, err := s.Head(ctx, "k.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), meta.Size)
	assert.Equal(t, "text/plain", meta.ContentType)

	body, size, err := s.GetObject(ctx, "k.txt")
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	assert.Equal(t, int64(5), size)
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s.CopyObject(ctx, "k.txt", "copy.txt"))
	got, ok := s.Data("copy.txt")
	require.True(t, ok)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, s.DeleteObject(ctx, "k.txt"))
	require.NoError(t, s.DeleteObject(ctx, "k.txt"))
	_, err = s.Head(ctx, "k.txt")
	assert.True(t, provider.IsNotFound(err))

	err = s.CopyObject(ctx, "missing", "x")
	assert.True(t, provider.IsNotFound(err))
}

func TestPutObject_SizeMismatch(t *testing.T) {
	s := New("bucket")
	err := s.PutObject(context.Background(), "k", bytes.NewReader([]byte("abc")), 10, "")
	require.Error(t, err)
	_, ok := s.Data("k")
	assert.False(t, ok)
}

func TestUploadMultipart_RecordsAndReportsParts(t *testing.T) {
	s := New("bucket")
	var reported []int64
	err := s.UploadMultipart(context.Background(), "big", bytes.NewReader(make([]byte, 25)), 25, provider.MultipartOptions{
		PartSize:    10,
		Concurrency: 3,
		Progress:    func(n int64) { reported = append(reported, n) },
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{10, 10, 5}, reported)
	uploads := s.Uploads()
	require.Len(t, uploads, 1)
	assert.True(t, uploads[0].Multipart)
	assert.Equal(t, int64(10), uploads[0].PartSize)
	assert.Equal(t, 3, uploads[0].Concurrency)
}

func TestInjectFault_Times(t *testing.T) {
	ctx := context.Background()
	s := New("bucket")
	boom := errors.New("boom")
	s.InjectFault(Fault{Op: OpPut, Key: "k", Err: boom, Times: 1})

	err := s.PutObject(ctx, "k", bytes.NewReader(nil), 0, "")
	assert.ErrorIs(t, err, boom)
	require.NoError(t, s.PutObject(ctx, "k", bytes.NewReader(nil), 0, ""))
	require.NoError(t, s.PutObject(ctx, "other", bytes.NewReader(nil), 0, ""))

	uploads := s.Uploads()
	require.Len(t, uploads, 3)
	assert.ErrorIs(t, uploads[0].Err, boom)
	assert.NoError(t, uploads[1].Err)

	s.InjectFault(Fault{Op: OpHead, Err: provider.ErrAccessDenied})
	_, err = s.Head(ctx, "k")
	assert.True(t, provider.IsAccessDenied(err))
	_, err = s.Head(ctx, "k")
	assert.True(t, provider.IsAccessDenied(err))

	s.ClearFaults()
	_, err = s.Head(ctx, "k")
	assert.NoError(t, err)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := seeded("a")

	_, err := s.List(ctx, provider.ListOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
