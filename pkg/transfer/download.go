package transfer

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/twinpane/pkg/output"
)

// DownloadEntries copies remote files and folders into localDir.
//
// A file lands at localDir/<base name>. A folder is recreated as
// localDir/<folder name> even when it holds no files, and every file below
// it is written at its relative path. Existing local files are resolved
// through the Resolver. The batch stops at the first failed download.
func (t *Transfer) DownloadEntries(ctx context.Context, items []Item, localDir string) (Summary, error) {
	var sum Summary
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return sum, t.fail(ctx, sum, output.OpDownload, it.Key, "", err)
		}
		var err error
		if it.Dir {
			err = t.downloadFolder(ctx, &sum, it.Key, localDir)
		} else {
			err = t.downloadFile(ctx, &sum, it.Key, t.local.Join(localDir, path.Base(it.Key)))
		}
		if err != nil {
			return sum, err
		}
	}
	return sum, nil
}

func (t *Transfer) downloadFolder(ctx context.Context, sum *Summary, key, localDir string) error {
	dirKey := strings.Trim(key, "/")
	if dirKey == "" {
		return t.fail(ctx, *sum, output.OpDownload, key, localDir, ErrInvalidName)
	}
	localBase := t.local.Join(localDir, path.Base(dirKey))
	if err := t.local.MkdirAll(localBase); err != nil {
		return t.fail(ctx, *sum, output.OpDownload, key, localBase, err)
	}

	root := dirKey + "/"
	stats, err := t.walker.WalkFileKeys(ctx, root, func(child string) error {
		if strings.HasSuffix(child, "/") {
			return nil
		}
		rel, ok := strings.CutPrefix(child, root)
		if !ok {
			rel = path.Base(child)
		}
		localPath, ok := t.childPath(localBase, rel)
		if !ok {
			t.logger.Warn("key escapes the download folder", zap.String("key", child), zap.String("folder", localBase))
			t.skipFor(ctx, sum, output.OpDownload, child, localBase, "unsafe_path")
			return nil
		}
		if err := t.local.MkdirAll(filepath.Dir(localPath)); err != nil {
			return t.fail(ctx, *sum, output.OpDownload, child, localPath, err)
		}
		return t.downloadFile(ctx, sum, child, localPath)
	})
	if err != nil {
		var batchErr *BatchError
		if errors.As(err, &batchErr) {
			return err
		}
		return t.fail(ctx, *sum, output.OpDownload, root, localBase, err)
	}
	if stats.Incomplete {
		t.logger.Warn("folder download may have missed files", zap.String("prefix", root))
	}
	return nil
}

// childPath joins a key residual under base. Residuals with ".." segments
// are refused: S3 keys may contain them and they would land outside base.
func (t *Transfer) childPath(base, rel string) (string, bool) {
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return "", false
		}
	}
	p := t.local.Join(base, filepath.FromSlash(rel))
	r, err := filepath.Rel(base, p)
	if err != nil || r == "." || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return p, true
}

func (t *Transfer) downloadFile(ctx context.Context, sum *Summary, key, localPath string) error {
	target, ok, err := t.resolveLocal(ctx, output.OpDownload, localPath)
	if err != nil {
		return t.fail(ctx, *sum, output.OpDownload, key, localPath, err)
	}
	if !ok {
		t.skip(ctx, sum, output.OpDownload, key, localPath)
		return nil
	}

	n, err := t.fetch(ctx, key, target)
	if err != nil {
		return t.fail(ctx, *sum, output.OpDownload, key, target, err)
	}
	t.done(ctx, sum, output.OpDownload, key, target, n)
	return nil
}

// fetch writes key to localPath. A failed download removes the partial file.
func (t *Transfer) fetch(ctx context.Context, key, localPath string) (int64, error) {
	f, err := t.local.Create(localPath)
	if err != nil {
		return 0, err
	}
	n, err := t.client.Download(ctx, key, f, t.opts.Progress(output.OpDownload, localPath))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		if rmErr := t.local.Remove(localPath); rmErr != nil {
			t.logger.Warn("failed to remove partial download", zap.String("path", localPath), zap.Error(rmErr))
		}
		return n, err
	}
	return n, nil
}
