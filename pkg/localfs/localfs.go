// Package localfs is the local pane's filesystem, backed by go-billy.
//
// All paths are relative to the filesystem root. NewOS roots the view at a
// directory on disk; NewMemory gives an empty in-memory tree for tests.
package localfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// DirPerm is used for every directory the file manager creates.
const DirPerm os.FileMode = 0o755

// ErrOutsideRoot is returned by Rel for paths that escape the root.
var ErrOutsideRoot = errors.New("path is outside the local root")

// FS is a rooted local filesystem.
type FS struct {
	fs   billy.Filesystem
	root string
}

// Entry is one row of a local directory listing.
type Entry struct {
	Name    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// New wraps an existing billy filesystem.
func New(fsys billy.Filesystem) *FS {
	return &FS{fs: fsys, root: fsys.Root()}
}

// NewOS roots the filesystem at dir.
func NewOS(dir string) *FS {
	return New(osfs.New(dir))
}

// NewMemory returns an empty in-memory filesystem.
func NewMemory() *FS {
	return New(memfs.New())
}

// Root returns the directory the filesystem is rooted at.
func (f *FS) Root() string {
	return f.root
}

// Rel converts an absolute or working-directory-relative OS path into a
// path relative to the root.
func (f *FS) Rel(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	root, err := filepath.Abs(f.root)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", path, ErrOutsideRoot)
	}
	return rel, nil
}

// Join joins path elements with the filesystem separator.
func (f *FS) Join(elem ...string) string {
	return f.fs.Join(elem...)
}

// Size returns the size of a regular file.
func (f *FS) Size(name string) (int64, error) {
	info, err := f.fs.Stat(name)
	if err != nil {
		return 0, fmt.Errorf("stat %q: %w", name, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("stat %q: is a directory", name)
	}
	return info.Size(), nil
}

// Open opens a file for streamed reading.
func (f *FS) Open(name string) (billy.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", name, err)
	}
	return file, nil
}

// Create creates or truncates a file, creating missing parent directories.
func (f *FS) Create(name string) (billy.File, error) {
	if dir := filepath.Dir(name); dir != "." {
		if err := f.MkdirAll(dir); err != nil {
			return nil, err
		}
	}
	file, err := f.fs.Create(name)
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", name, err)
	}
	return file, nil
}

// MkdirAll creates a directory path.
func (f *FS) MkdirAll(name string) error {
	if err := f.fs.MkdirAll(name, DirPerm); err != nil {
		return fmt.Errorf("mkdir %q: %w", name, err)
	}
	return nil
}

// Exists reports whether name exists.
func (f *FS) Exists(name string) (bool, error) {
	_, err := f.fs.Stat(name)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("stat %q: %w", name, err)
	}
}

// IsDir reports whether name is an existing directory.
func (f *FS) IsDir(name string) (bool, error) {
	info, err := f.fs.Stat(name)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %q: %w", name, err)
	}
	return info.IsDir(), nil
}

// ReadDir lists a directory, directories first, each group sorted by name.
func (f *FS) ReadDir(name string) ([]Entry, error) {
	infos, err := f.fs.ReadDir(name)
	if err != nil {
		return nil, fmt.Errorf("readdir %q: %w", name, err)
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		e := Entry{Name: info.Name(), IsDir: info.IsDir(), ModTime: info.ModTime()}
		if !e.IsDir {
			e.Size = info.Size()
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Remove deletes a file, or a directory with everything below it.
func (f *FS) Remove(name string) error {
	if err := util.RemoveAll(f.fs, name); err != nil {
		return fmt.Errorf("remove %q: %w", name, err)
	}
	return nil
}

// WriteFile writes data to name, creating parent directories.
func (f *FS) WriteFile(name string, data []byte) error {
	if dir := filepath.Dir(name); dir != "." {
		if err := f.MkdirAll(dir); err != nil {
			return err
		}
	}
	if err := util.WriteFile(f.fs, name, data, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", name, err)
	}
	return nil
}

// ReadFile reads the whole of name.
func (f *FS) ReadFile(name string) ([]byte, error) {
	data, err := util.ReadFile(f.fs, name)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", name, err)
	}
	return data, nil
}
