package localfs

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_CreateOpenSize(t *testing.T) {
	fs := NewMemory()

	f, err := fs.Create(fs.Join("deep", "nested", "a.txt"))
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	size, err := fs.Size(fs.Join("deep", "nested", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	r, err := fs.Open(fs.Join("deep", "nested", "a.txt"))
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "hello", string(data))

	_, err = fs.Size("deep")
	assert.Error(t, err, "directories have no size")
}

func TestExistsAndIsDir(t *testing.T) {
	fs := NewMemory()
	require.NoError(t, fs.MkdirAll("dir"))
	require.NoError(t, fs.WriteFile("file.txt", []byte("x")))

	ok, err := fs.Exists("dir")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fs.Exists("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	isDir, err := fs.IsDir("dir")
	require.NoError(t, err)
	assert.True(t, isDir)

	isDir, err = fs.IsDir("file.txt")
	require.NoError(t, err)
	assert.False(t, isDir)

	isDir, err = fs.IsDir("missing")
	require.NoError(t, err)
	assert.False(t, isDir)
}

func TestReadDir_DirsFirst(t *testing.T) {
	fs := NewMemory()
	require.NoError(t, fs.WriteFile(fs.Join("root", "b.txt"), []byte("bb")))
	require.NoError(t, fs.WriteFile(fs.Join("root", "a.txt"), []byte("a")))
	require.NoError(t, fs.MkdirAll(fs.Join("root", "zdir")))
	require.NoError(t, fs.MkdirAll(fs.Join("root", "adir")))

	entries, err := fs.ReadDir("root")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"adir", "zdir", "a.txt", "b.txt"}, names)
	assert.True(t, entries[0].IsDir)
	assert.Equal(t, int64(2), entries[3].Size)
}

func TestRemove_Recursive(t *testing.T) {
	fs := NewMemory()
	require.NoError(t, fs.WriteFile(fs.Join("tree", "x", "y.txt"), []byte("y")))
	require.NoError(t, fs.WriteFile(fs.Join("tree", "z.txt"), []byte("z")))
	require.NoError(t, fs.WriteFile("keep.txt", []byte("k")))

	require.NoError(t, fs.Remove("tree"))

	ok, err := fs.Exists("tree")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = fs.Exists("keep.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, fs.Remove("keep.txt"))
	ok, _ = fs.Exists("keep.txt")
	assert.False(t, ok)
}

func TestOS_RootedAndRel(t *testing.T) {
	dir := t.TempDir()
	fs := NewOS(dir)

	require.NoError(t, fs.WriteFile(filepath.Join("sub", "f.txt"), []byte("disk")))
	data, err := os.ReadFile(filepath.Join(dir, "sub", "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "disk", string(data))

	rel, err := fs.Rel(filepath.Join(dir, "sub", "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("sub", "f.txt"), rel)

	_, err = fs.Rel(filepath.Dir(dir))
	assert.ErrorIs(t, err, ErrOutsideRoot)
}
