package transfer

import (
	"context"
	"strings"

	"github.com/3leaps/twinpane/pkg/output"
)

// Rename gives the file at key a new name in the same folder.
//
// newName is a single path element. When the new key is taken, the
// Resolver decides; a skip returns renamed == false with no error.
func (t *Transfer) Rename(ctx context.Context, key, newName string) (newKey string, renamed bool, err error) {
	if strings.HasSuffix(key, "/") {
		return "", false, ErrFolderRename
	}
	newName = strings.TrimSpace(newName)
	if newName == "" || strings.Contains(newName, "/") {
		return "", false, ErrInvalidName
	}

	var sum Summary
	candidate := keyFolder(key) + newName
	if candidate == key {
		return key, false, nil
	}

	target, ok, err := t.resolveRemote(ctx, output.OpRename, candidate)
	if err != nil {
		return "", false, t.fail(ctx, sum, output.OpRename, key, candidate, err)
	}
	if !ok {
		t.skip(ctx, &sum, output.OpRename, key, candidate)
		return "", false, nil
	}

	if err := t.client.Rename(ctx, key, target); err != nil {
		return "", false, t.fail(ctx, sum, output.OpRename, key, target, err)
	}
	t.done(ctx, &sum, output.OpRename, key, target, 0)
	return target, true, nil
}
