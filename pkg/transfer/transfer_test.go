package transfer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/twinpane/pkg/conflict"
	"github.com/3leaps/twinpane/pkg/listing"
	"github.com/3leaps/twinpane/pkg/localfs"
	"github.com/3leaps/twinpane/pkg/output"
	"github.com/3leaps/twinpane/pkg/progress"
	"github.com/3leaps/twinpane/pkg/provider/memory"
	"github.com/3leaps/twinpane/pkg/store"
)

func newTransfer(t *testing.T, mem *memory.Store, opts Options) (*Transfer, *localfs.FS) {
	t.Helper()
	l := listing.NewLister(mem, listing.Config{PageSize: 2}, nil)
	w, err := listing.NewWalker(l, listing.WalkConfig{})
	require.NoError(t, err)
	local := localfs.NewMemory()
	return New(store.New(mem), w, local, opts), local
}

func keysUnder(mem *memory.Store, prefix string) []string {
	var out []string
	for _, k := range mem.Keys() {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

func TestUploadFiles(t *testing.T) {
	ctx := context.Background()

	t.Run("copy on conflict", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("dest/a.txt", []byte("old"))
		tr, local := newTransfer(t, mem, Options{Resolver: conflict.Policy(conflict.Copy)})
		require.NoError(t, local.WriteFile("src/a.txt", []byte("new a")))
		require.NoError(t, local.WriteFile("src/b.txt", []byte("new b")))

		sum, err := tr.UploadFiles(ctx, []string{"src/a.txt", "src/b.txt"}, "dest")
		require.NoError(t, err)
		assert.Equal(t, int64(2), sum.Completed)
		assert.Equal(t, int64(10), sum.Bytes)

		assert.Equal(t, []string{"dest/", "dest/a.txt", "dest/a_copy.txt", "dest/b.txt"}, mem.Keys())
		data, _ := mem.Data("dest/a.txt")
		assert.Equal(t, "old", string(data))
		data, _ = mem.Data("dest/a_copy.txt")
		assert.Equal(t, "new a", string(data))
	})

	t.Run("skip on conflict", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("dest/a.txt", []byte("old"))
		tr, local := newTransfer(t, mem, Options{})
		require.NoError(t, local.WriteFile("src/a.txt", []byte("new a")))

		sum, err := tr.UploadFiles(ctx, []string{"src/a.txt"}, "dest/")
		require.NoError(t, err)
		assert.Equal(t, int64(0), sum.Completed)
		assert.Equal(t, int64(1), sum.Skipped)
		data, _ := mem.Data("dest/a.txt")
		assert.Equal(t, "old", string(data))
	})

	t.Run("replace on conflict", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("dest/a.txt", []byte("old"))
		tr, local := newTransfer(t, mem, Options{Resolver: conflict.Policy(conflict.Replace)})
		require.NoError(t, local.WriteFile("src/a.txt", []byte("new a")))

		_, err := tr.UploadFiles(ctx, []string{"src/a.txt"}, "dest")
		require.NoError(t, err)
		data, _ := mem.Data("dest/a.txt")
		assert.Equal(t, "new a", string(data))
	})

	t.Run("root prefix", func(t *testing.T) {
		mem := memory.New("b")
		tr, local := newTransfer(t, mem, Options{})
		require.NoError(t, local.WriteFile("a.txt", []byte("x")))

		_, err := tr.UploadFiles(ctx, []string{"a.txt"}, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt"}, mem.Keys())
	})

	t.Run("progress per file", func(t *testing.T) {
		mem := memory.New("b")
		var mu sync.Mutex
		last := map[string]int{}
		tr, local := newTransfer(t, mem, Options{
			Progress: func(op, target string) progress.Sink {
				return progress.SinkFunc(func(p int) {
					mu.Lock()
					defer mu.Unlock()
					last[op+" "+target] = p
				})
			},
		})
		require.NoError(t, local.WriteFile("src/a.txt", []byte("hello")))

		_, err := tr.UploadFiles(ctx, []string{"src/a.txt"}, "dest")
		require.NoError(t, err)
		assert.Equal(t, 100, last["upload dest/a.txt"])
	})

	t.Run("missing local file stops batch", func(t *testing.T) {
		mem := memory.New("b")
		tr, local := newTransfer(t, mem, Options{})
		require.NoError(t, local.WriteFile("src/a.txt", []byte("a")))
		require.NoError(t, local.WriteFile("src/c.txt", []byte("c")))

		sum, err := tr.UploadFiles(ctx, []string{"src/a.txt", "src/missing.txt", "src/c.txt"}, "dest")
		require.Error(t, err)

		var batchErr *BatchError
		require.ErrorAs(t, err, &batchErr)
		assert.Equal(t, output.OpUpload, batchErr.Op)
		assert.Equal(t, "src/missing.txt", batchErr.Source)
		assert.Equal(t, int64(1), batchErr.Completed)
		assert.Equal(t, int64(1), sum.Completed)

		_, ok := mem.Data("dest/c.txt")
		assert.False(t, ok)
	})

	t.Run("declined folder conversion", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("dest", []byte("file"))
		tr, local := newTransfer(t, mem, Options{Confirm: Never})
		require.NoError(t, local.WriteFile("src/a.txt", []byte("a")))

		_, err := tr.UploadFiles(ctx, []string{"src/a.txt"}, "dest")
		require.ErrorIs(t, err, ErrDeclined)
		assert.Equal(t, []string{"dest"}, mem.Keys())
	})
}

func TestEnsureRemoteFolder(t *testing.T) {
	ctx := context.Background()

	t.Run("creates markers for each level", func(t *testing.T) {
		mem := memory.New("b")
		tr, _ := newTransfer(t, mem, Options{})

		ok, err := tr.EnsureRemoteFolder(ctx, "a/b/c/")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"a/", "a/b/", "a/b/c/"}, mem.Keys())

		ok, err = tr.EnsureRemoteFolder(ctx, "a/b/c")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"a/", "a/b/", "a/b/c/"}, mem.Keys())
	})

	t.Run("file replaced on confirm", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("docs", []byte("file"))
		var asked []string
		tr, _ := newTransfer(t, mem, Options{Confirm: ConfirmFunc(func(_ context.Context, key string) (bool, error) {
			asked = append(asked, key)
			return true, nil
		})})

		ok, err := tr.EnsureRemoteFolder(ctx, "docs/x")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"docs"}, asked)
		assert.Equal(t, []string{"docs/", "docs/x/"}, mem.Keys())
	})

	t.Run("file kept when declined", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("docs", []byte("file"))
		tr, _ := newTransfer(t, mem, Options{Confirm: Never})

		ok, err := tr.EnsureRemoteFolder(ctx, "docs/x")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, []string{"docs"}, mem.Keys())
	})

	t.Run("confirm error", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("docs", []byte("file"))
		boom := errors.New("no terminal")
		tr, _ := newTransfer(t, mem, Options{Confirm: ConfirmFunc(func(context.Context, string) (bool, error) {
			return false, boom
		})})

		_, err := tr.EnsureRemoteFolder(ctx, "docs")
		require.ErrorIs(t, err, boom)
	})

	t.Run("marker failure ignored", func(t *testing.T) {
		mem := memory.New("b")
		mem.InjectFault(memory.Fault{Op: memory.OpPut, Key: "a/", Err: errors.New("denied")})
		tr, _ := newTransfer(t, mem, Options{})

		ok, err := tr.EnsureRemoteFolder(ctx, "a/b")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"a/b/"}, mem.Keys())
	})
}

func TestCreateFolder(t *testing.T) {
	ctx := context.Background()
	mem := memory.New("b")
	tr, _ := newTransfer(t, mem, Options{})

	key, err := tr.CreateFolder(ctx, "a/", "b/c")
	require.NoError(t, err)
	assert.Equal(t, "a/b/c/", key)
	assert.Equal(t, []string{"a/", "a/b/", "a/b/c/"}, mem.Keys())

	_, err = tr.CreateFolder(ctx, "a", "  /  ")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestDownloadEntries(t *testing.T) {
	ctx := context.Background()

	t.Run("folder mirrors relative paths", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("P/", nil)
		mem.Seed("P/a.txt", []byte("a"))
		mem.Seed("P/b/c.txt", []byte("cc"))
		mem.Seed("P/b/d/e.txt", []byte("eee"))
		mem.Seed("Q/other.txt", []byte("q"))
		tr, local := newTransfer(t, mem, Options{})

		sum, err := tr.DownloadEntries(ctx, []Item{{Key: "P/", Dir: true}}, "out")
		require.NoError(t, err)
		assert.Equal(t, int64(3), sum.Completed)
		assert.Equal(t, int64(6), sum.Bytes)

		for path, want := range map[string]string{
			"out/P/a.txt":     "a",
			"out/P/b/c.txt":   "cc",
			"out/P/b/d/e.txt": "eee",
		} {
			got, err := local.ReadFile(path)
			require.NoError(t, err, path)
			assert.Equal(t, want, string(got), path)
		}
		exists, err := local.Exists("out/Q")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("empty folder still created", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("empty/", nil)
		tr, local := newTransfer(t, mem, Options{})

		sum, err := tr.DownloadEntries(ctx, []Item{{Key: "empty", Dir: true}}, "out")
		require.NoError(t, err)
		assert.Equal(t, int64(0), sum.Completed)
		isDir, err := local.IsDir("out/empty")
		require.NoError(t, err)
		assert.True(t, isDir)
	})

	t.Run("file conflict copies", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("docs/report.pdf", []byte("remote"))
		tr, local := newTransfer(t, mem, Options{Resolver: conflict.Policy(conflict.Copy)})
		require.NoError(t, local.WriteFile("out/report.pdf", []byte("local")))

		_, err := tr.DownloadEntries(ctx, []Item{{Key: "docs/report.pdf"}}, "out")
		require.NoError(t, err)

		got, err := local.ReadFile("out/report.pdf")
		require.NoError(t, err)
		assert.Equal(t, "local", string(got))
		got, err = local.ReadFile("out/report_copy.pdf")
		require.NoError(t, err)
		assert.Equal(t, "remote", string(got))
	})

	t.Run("file conflict skips", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("docs/report.pdf", []byte("remote"))
		tr, local := newTransfer(t, mem, Options{})
		require.NoError(t, local.WriteFile("out/report.pdf", []byte("local")))

		sum, err := tr.DownloadEntries(ctx, []Item{{Key: "docs/report.pdf"}}, "out")
		require.NoError(t, err)
		assert.Equal(t, int64(1), sum.Skipped)
		got, err := local.ReadFile("out/report.pdf")
		require.NoError(t, err)
		assert.Equal(t, "local", string(got))
	})

	t.Run("failed download leaves no partial file", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("a.txt", []byte("a"))
		mem.Seed("b.txt", []byte("b"))
		mem.InjectFault(memory.Fault{Op: memory.OpGet, Key: "b.txt", Err: errors.New("reset")})
		tr, local := newTransfer(t, mem, Options{})

		sum, err := tr.DownloadEntries(ctx, []Item{{Key: "a.txt"}, {Key: "b.txt"}}, "out")
		var batchErr *BatchError
		require.ErrorAs(t, err, &batchErr)
		assert.Equal(t, int64(1), batchErr.Completed)
		assert.Equal(t, int64(1), sum.Completed)

		exists, err := local.Exists("out/b.txt")
		require.NoError(t, err)
		assert.False(t, exists)
		exists, err = local.Exists("out/a.txt")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("root folder rejected", func(t *testing.T) {
		mem := memory.New("b")
		tr, _ := newTransfer(t, mem, Options{})

		_, err := tr.DownloadEntries(ctx, []Item{{Key: "/", Dir: true}}, "out")
		assert.ErrorIs(t, err, ErrInvalidName)
	})

	t.Run("dot-dot keys stay inside the folder", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("docs/readme.txt", []byte("r"))
		mem.Seed("docs/../../evil.txt", []byte("x"))
		var buf bytes.Buffer
		w := output.NewJSONLWriter(&buf, "job", "memory")
		tr, local := newTransfer(t, mem, Options{Output: w})

		sum, err := tr.DownloadEntries(ctx, []Item{{Key: "docs/", Dir: true}}, "out/inner")
		require.NoError(t, err)
		assert.Equal(t, int64(1), sum.Completed)
		assert.Equal(t, int64(1), sum.Skipped)

		got, err := local.ReadFile("out/inner/docs/readme.txt")
		require.NoError(t, err)
		assert.Equal(t, "r", string(got))
		for _, p := range []string{"out/evil.txt", "out/inner/evil.txt", "evil.txt"} {
			exists, err := local.Exists(p)
			require.NoError(t, err)
			assert.False(t, exists, p)
		}
		assert.Contains(t, buf.String(), "unsafe_path")
	})
}

func TestDeleteEntries(t *testing.T) {
	ctx := context.Background()

	t.Run("folder removed recursively", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("P/", nil)
		mem.Seed("P/a", []byte("a"))
		mem.Seed("P/b/", nil)
		mem.Seed("P/b/c", []byte("c"))
		mem.Seed("PX/keep", []byte("k"))
		tr, _ := newTransfer(t, mem, Options{})

		sum, err := tr.DeleteEntries(ctx, []Item{{Key: "P/", Dir: true}})
		require.NoError(t, err)
		assert.Equal(t, int64(4), sum.Completed)
		assert.Empty(t, keysUnder(mem, "P/"))
		assert.Equal(t, []string{"PX/keep"}, mem.Keys())

		l := listing.NewLister(mem, listing.Config{}, nil)
		res, err := l.ListPrefix(ctx, "P/")
		require.NoError(t, err)
		assert.True(t, res.Empty())
	})

	t.Run("folder without marker", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("P/a", []byte("a"))
		tr, _ := newTransfer(t, mem, Options{})

		sum, err := tr.DeleteEntries(ctx, []Item{{Key: "P", Dir: true}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), sum.Completed)
		assert.Empty(t, mem.Keys())
	})

	t.Run("files and folders mixed", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("x.txt", []byte("x"))
		mem.Seed("d/y.txt", []byte("y"))
		tr, _ := newTransfer(t, mem, Options{})

		items := ItemsFromEntries("", []listing.Entry{
			{Name: "d/", Kind: listing.KindDir},
			{Name: "x.txt", Kind: listing.KindFile, Key: "x.txt"},
		})
		sum, err := tr.DeleteEntries(ctx, items)
		require.NoError(t, err)
		assert.Equal(t, int64(2), sum.Completed)
		assert.Empty(t, mem.Keys())
	})

	t.Run("stops at first failure", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("P/", nil)
		mem.Seed("P/a", []byte("a"))
		mem.Seed("P/b/", nil)
		mem.Seed("P/b/c", []byte("c"))
		mem.InjectFault(memory.Fault{Op: memory.OpDelete, Key: "P/b/c", Err: errors.New("denied")})
		tr, _ := newTransfer(t, mem, Options{})

		_, err := tr.DeleteEntries(ctx, []Item{{Key: "P/", Dir: true}})
		var batchErr *BatchError
		require.ErrorAs(t, err, &batchErr)
		assert.Equal(t, "P/b/c", batchErr.Target)
		assert.Equal(t, int64(2), batchErr.Completed)
		assert.Equal(t, []string{"P/", "P/b/c"}, mem.Keys())
	})

	t.Run("bucket root refused", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("a", []byte("a"))
		tr, _ := newTransfer(t, mem, Options{})

		_, err := tr.DeleteEntries(ctx, []Item{{Key: "", Dir: true}})
		require.ErrorIs(t, err, ErrRootDelete)
		assert.Equal(t, []string{"a"}, mem.Keys())
	})
}

func TestRename(t *testing.T) {
	ctx := context.Background()

	t.Run("same folder", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("dir/old.txt", []byte("x"))
		tr, _ := newTransfer(t, mem, Options{})

		newKey, renamed, err := tr.Rename(ctx, "dir/old.txt", "new.txt")
		require.NoError(t, err)
		assert.True(t, renamed)
		assert.Equal(t, "dir/new.txt", newKey)
		assert.Equal(t, []string{"dir/new.txt"}, mem.Keys())
	})

	t.Run("conflict skipped", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("old.txt", []byte("x"))
		mem.Seed("new.txt", []byte("y"))
		tr, _ := newTransfer(t, mem, Options{})

		_, renamed, err := tr.Rename(ctx, "old.txt", "new.txt")
		require.NoError(t, err)
		assert.False(t, renamed)
		assert.Equal(t, []string{"new.txt", "old.txt"}, mem.Keys())
	})

	t.Run("conflict copied", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("old.txt", []byte("x"))
		mem.Seed("new.txt", []byte("y"))
		tr, _ := newTransfer(t, mem, Options{Resolver: conflict.Policy(conflict.Copy)})

		newKey, renamed, err := tr.Rename(ctx, "old.txt", "new.txt")
		require.NoError(t, err)
		assert.True(t, renamed)
		assert.Equal(t, "new_copy.txt", newKey)
	})

	t.Run("invalid input", func(t *testing.T) {
		tr, _ := newTransfer(t, memory.New("b"), Options{})

		_, _, err := tr.Rename(ctx, "dir/", "x")
		assert.ErrorIs(t, err, ErrFolderRename)
		_, _, err = tr.Rename(ctx, "a.txt", "sub/b.txt")
		assert.ErrorIs(t, err, ErrInvalidName)
		_, _, err = tr.Rename(ctx, "a.txt", " ")
		assert.ErrorIs(t, err, ErrInvalidName)
	})

	t.Run("delete failure keeps both keys", func(t *testing.T) {
		mem := memory.New("b")
		mem.Seed("old.txt", []byte("x"))
		mem.InjectFault(memory.Fault{Op: memory.OpDelete, Key: "old.txt", Err: errors.New("denied")})
		tr, _ := newTransfer(t, mem, Options{})

		_, _, err := tr.Rename(ctx, "old.txt", "new.txt")
		var renameErr *store.RenameError
		require.ErrorAs(t, err, &renameErr)
		assert.Equal(t, store.StageDelete, renameErr.Stage)
		assert.Equal(t, []string{"new.txt", "old.txt"}, mem.Keys())
	})
}

func TestRecordsWritten(t *testing.T) {
	ctx := context.Background()
	mem := memory.New("b")
	mem.Seed("dest/a.txt", []byte("old"))
	var buf bytes.Buffer
	w := output.NewJSONLWriter(&buf, "job-1", "memory")
	tr, local := newTransfer(t, mem, Options{Output: w})
	require.NoError(t, local.WriteFile("src/a.txt", []byte("a")))
	require.NoError(t, local.WriteFile("src/b.txt", []byte("b")))

	_, err := tr.UploadFiles(ctx, []string{"src/a.txt", "src/b.txt"}, "dest")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var types []string
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var rec output.Record
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		types = append(types, rec.Type)
	}
	assert.Equal(t, []string{output.TypeSkip, output.TypeTransfer}, types)
}

func TestBatchErrorMessage(t *testing.T) {
	inner := errors.New("boom")
	err := &BatchError{Op: output.OpUpload, Source: "a.txt", Target: "dest/a.txt", Completed: 3, Err: inner}
	assert.Equal(t, "upload a.txt -> dest/a.txt failed after 3 completed: boom", err.Error())
	assert.ErrorIs(t, err, inner)

	err = &BatchError{Op: output.OpDelete, Target: "P/a", Err: inner}
	assert.Equal(t, "delete P/a failed after 0 completed: boom", err.Error())
}
