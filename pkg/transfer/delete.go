package transfer

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/twinpane/pkg/output"
)

// DeleteEntries removes files and folders.
//
// A folder is removed by deleting every literal key below it, markers of
// nested folders included, and then its own marker. Deleting stops at the
// first failure; keys already deleted stay deleted.
func (t *Transfer) DeleteEntries(ctx context.Context, items []Item) (Summary, error) {
	var sum Summary
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return sum, t.fail(ctx, sum, output.OpDelete, "", it.Key, err)
		}
		if it.Dir {
			if err := t.deleteFolder(ctx, &sum, it.Key); err != nil {
				return sum, err
			}
			continue
		}
		if err := t.client.Delete(ctx, it.Key); err != nil {
			return sum, t.fail(ctx, sum, output.OpDelete, "", it.Key, err)
		}
		t.done(ctx, &sum, output.OpDelete, "", it.Key, 0)
	}
	return sum, nil
}

func (t *Transfer) deleteFolder(ctx context.Context, sum *Summary, key string) error {
	dirKey := strings.Trim(key, "/")
	if dirKey == "" {
		return t.fail(ctx, *sum, output.OpDelete, "", key, ErrRootDelete)
	}
	marker := dirKey + "/"

	keys, err := t.walker.ListAllKeys(ctx, marker)
	if err != nil {
		return t.fail(ctx, *sum, output.OpDelete, "", marker, err)
	}
	t.logger.Debug("deleting folder", zap.String("prefix", marker), zap.Int("keys", len(keys)))

	markerListed := false
	for _, k := range keys {
		if k == marker {
			markerListed = true
			continue
		}
		if err := t.client.Delete(ctx, k); err != nil {
			return t.fail(ctx, *sum, output.OpDelete, "", k, err)
		}
		t.done(ctx, sum, output.OpDelete, "", k, 0)
	}

	if err := t.client.Delete(ctx, marker); err != nil {
		return t.fail(ctx, *sum, output.OpDelete, "", marker, err)
	}
	if markerListed {
		t.done(ctx, sum, output.OpDelete, "", marker, 0)
	}
	return nil
}
