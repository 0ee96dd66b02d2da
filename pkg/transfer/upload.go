package transfer

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/3leaps/twinpane/pkg/output"
)

// UploadFiles uploads local files into remotePrefix.
//
// The remote folder chain is ensured first. Each file then goes to
// remotePrefix/<base name>; an existing key is resolved through the
// Resolver. The batch stops at the first failed upload.
func (t *Transfer) UploadFiles(ctx context.Context, paths []string, remotePrefix string) (Summary, error) {
	var sum Summary
	base := strings.Trim(remotePrefix, "/")

	ok, err := t.EnsureRemoteFolder(ctx, base)
	if err != nil {
		return sum, t.fail(ctx, sum, output.OpUpload, "", base+"/", err)
	}
	if !ok {
		return sum, ErrDeclined
	}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return sum, t.fail(ctx, sum, output.OpUpload, p, "", err)
		}
		key := joinKey(base, filepath.Base(p))

		target, ok, err := t.resolveRemote(ctx, output.OpUpload, key)
		if err != nil {
			return sum, t.fail(ctx, sum, output.OpUpload, p, key, err)
		}
		if !ok {
			t.skip(ctx, &sum, output.OpUpload, p, key)
			continue
		}

		n, err := t.uploadFile(ctx, p, target)
		if err != nil {
			return sum, t.fail(ctx, sum, output.OpUpload, p, target, err)
		}
		t.done(ctx, &sum, output.OpUpload, p, target, n)
	}
	return sum, nil
}

func (t *Transfer) uploadFile(ctx context.Context, localPath, key string) (int64, error) {
	size, err := t.local.Size(localPath)
	if err != nil {
		return 0, err
	}
	f, err := t.local.Open(localPath)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	if err := t.client.Upload(ctx, key, f, size, t.opts.Progress(output.OpUpload, key)); err != nil {
		return 0, err
	}
	return size, nil
}
