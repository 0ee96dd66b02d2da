package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// RenameStage identifies the half of a rename that failed.
type RenameStage string

const (
	// StageCopy means the copy failed; only the old key exists.
	StageCopy RenameStage = "copy"

	// StageDelete means the copy succeeded but the old key could not be
	// removed; both keys exist.
	StageDelete RenameStage = "delete"
)

// RenameError reports a failed rename and how far it got.
type RenameError struct {
	OldKey string
	NewKey string
	Stage  RenameStage
	Err    error
}

func (e *RenameError) Error() string {
	if e.Stage == StageDelete {
		return fmt.Sprintf("rename %s -> %s: copied but delete of source failed, both keys exist: %v", e.OldKey, e.NewKey, e.Err)
	}
	return fmt.Sprintf("rename %s -> %s: %s failed: %v", e.OldKey, e.NewKey, e.Stage, e.Err)
}

func (e *RenameError) Unwrap() error {
	return e.Err
}

// Rename moves oldKey to newKey by server-side copy followed by delete.
// It is not atomic. A failed delete leaves both keys and is reported as a
// *RenameError with Stage StageDelete.
func (c *Client) Rename(ctx context.Context, oldKey, newKey string) error {
	if oldKey == "" || newKey == "" {
		return ErrEmptyKey
	}
	if oldKey == newKey {
		return nil
	}
	if err := c.store.CopyObject(ctx, oldKey, newKey); err != nil {
		return &RenameError{OldKey: oldKey, NewKey: newKey, Stage: StageCopy, Err: err}
	}
	if err := c.store.DeleteObject(ctx, oldKey); err != nil {
		c.logger.Warn("rename left source behind",
			zap.String("old_key", oldKey),
			zap.String("new_key", newKey),
			zap.Error(err))
		return &RenameError{OldKey: oldKey, NewKey: newKey, Stage: StageDelete, Err: err}
	}
	c.logger.Debug("renamed object", zap.String("old_key", oldKey), zap.String("new_key", newKey))
	return nil
}
