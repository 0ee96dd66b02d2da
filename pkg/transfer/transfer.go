// Package transfer implements the folder-level operations of the file
// manager on top of flat object primitives.
//
// Batches run in order and stop at the first failure. Steps that already
// completed are not rolled back; the returned *BatchError says how many did.
package transfer

import (
	"context"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/twinpane/pkg/conflict"
	"github.com/3leaps/twinpane/pkg/listing"
	"github.com/3leaps/twinpane/pkg/localfs"
	"github.com/3leaps/twinpane/pkg/output"
	"github.com/3leaps/twinpane/pkg/progress"
	"github.com/3leaps/twinpane/pkg/store"
)

// Confirmer approves replacing a file that occupies a folder path.
type Confirmer interface {
	ConfirmReplace(ctx context.Context, key string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, key string) (bool, error)

func (f ConfirmFunc) ConfirmReplace(ctx context.Context, key string) (bool, error) {
	return f(ctx, key)
}

var (
	// Never declines every replacement.
	Never Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) { return false, nil })

	// Always approves every replacement.
	Always Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })
)

// Options configures a Transfer. Zero values pick safe defaults.
type Options struct {
	// Resolver decides name conflicts. Default: skip.
	Resolver conflict.Resolver

	// Confirm approves turning a file into a folder. Default: Never.
	Confirm Confirmer

	// Progress returns the sink for one item. Default: discard.
	Progress func(op, target string) progress.Sink

	// Output receives a record per completed, skipped or failed step.
	Output output.Writer

	Logger *zap.Logger
}

// Item is a selected remote entry: a file key, or a folder prefix.
type Item struct {
	Key string
	Dir bool
}

// ItemsFromEntries turns listing rows under prefix into items.
func ItemsFromEntries(prefix string, entries []listing.Entry) []Item {
	prefix = listing.NormalizePrefix(prefix)
	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			items = append(items, Item{Key: prefix + e.Name, Dir: true})
			continue
		}
		items = append(items, Item{Key: e.Key})
	}
	return items
}

// Summary counts the outcome of a batch.
type Summary struct {
	Completed int64
	Skipped   int64
	Bytes     int64
}

// Transfer runs folder-level operations between a local tree and a bucket.
type Transfer struct {
	client *store.Client
	walker *listing.Walker
	local  *localfs.FS
	opts   Options
	logger *zap.Logger
}

// New creates a Transfer.
func New(client *store.Client, walker *listing.Walker, local *localfs.FS, opts Options) *Transfer {
	if opts.Resolver == nil {
		opts.Resolver = conflict.Policy(conflict.Skip)
	}
	if opts.Confirm == nil {
		opts.Confirm = Never
	}
	if opts.Progress == nil {
		opts.Progress = func(string, string) progress.Sink { return progress.Discard }
	}
	if opts.Output == nil {
		opts.Output = output.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Transfer{client: client, walker: walker, local: local, opts: opts, logger: opts.Logger}
}

// EnsureRemoteFolder makes every level of prefix usable as a folder.
//
// A plain file occupying a level is deleted and replaced by a folder marker,
// but only when the Confirmer agrees; otherwise EnsureRemoteFolder returns
// false and nothing below that level is touched. Markers are created for
// every level; failing to create one is not an error, since a folder with
// children exists without its marker.
func (t *Transfer) EnsureRemoteFolder(ctx context.Context, prefix string) (bool, error) {
	current := ""
	for _, part := range strings.Split(strings.Trim(prefix, "/"), "/") {
		if part == "" {
			continue
		}
		current = joinKey(current, part)

		if t.client.Exists(ctx, current) {
			ok, err := t.opts.Confirm.ConfirmReplace(ctx, current)
			if err != nil {
				return false, err
			}
			if !ok {
				t.logger.Info("kept file occupying folder path", zap.String("key", current))
				return false, nil
			}
			if err := t.client.Delete(ctx, current); err != nil {
				return false, err
			}
			t.logger.Info("replaced file with folder", zap.String("key", current))
		}

		if err := t.client.CreateFolderMarker(ctx, current+"/"); err != nil {
			t.logger.Debug("folder marker not created", zap.String("key", current+"/"), zap.Error(err))
		}
	}
	return true, nil
}

// CreateFolder creates name (which may contain slashes) under parent and
// returns the new folder's prefix.
func (t *Transfer) CreateFolder(ctx context.Context, parent, name string) (string, error) {
	name = strings.Trim(strings.TrimSpace(name), "/")
	if name == "" {
		return "", ErrInvalidName
	}
	key := joinKey(strings.Trim(parent, "/"), name)

	ok, err := t.EnsureRemoteFolder(ctx, key)
	if err != nil {
		return "", &BatchError{Op: output.OpMkdir, Target: key + "/", Err: err}
	}
	if !ok {
		return "", ErrDeclined
	}
	var sum Summary
	t.done(ctx, &sum, output.OpMkdir, "", key+"/", 0)
	return key + "/", nil
}

// done records a completed step.
func (t *Transfer) done(ctx context.Context, sum *Summary, op, source, target string, n int64) {
	sum.Completed++
	sum.Bytes += n
	t.logger.Info(op+" completed",
		zap.String("source", source),
		zap.String("target", target),
		zap.Int64("bytes", n))
	if err := t.opts.Output.WriteTransfer(ctx, &output.TransferRecord{Op: op, Source: source, Target: target, Bytes: n}); err != nil {
		t.logger.Warn("failed to write transfer record", zap.Error(err))
	}
}

// skip records an item left untouched by conflict resolution.
func (t *Transfer) skip(ctx context.Context, sum *Summary, op, source, target string) {
	t.skipFor(ctx, sum, op, source, target, "conflict.skip")
}

func (t *Transfer) skipFor(ctx context.Context, sum *Summary, op, source, target, reason string) {
	sum.Skipped++
	t.logger.Info(op+" skipped", zap.String("source", source), zap.String("target", target), zap.String("reason", reason))
	if err := t.opts.Output.WriteSkip(ctx, &output.SkipRecord{Op: op, Source: source, Target: target, Reason: reason}); err != nil {
		t.logger.Warn("failed to write skip record", zap.Error(err))
	}
}

// fail records the error that stops a batch and returns it as a *BatchError.
func (t *Transfer) fail(ctx context.Context, sum Summary, op, source, target string, err error) error {
	t.logger.Error(op+" failed",
		zap.String("source", source),
		zap.String("target", target),
		zap.Int64("completed", sum.Completed),
		zap.Error(err))
	_ = t.opts.Output.WriteError(ctx, &output.ErrorRecord{
		Code:    output.ErrorCode(err),
		Message: err.Error(),
		Key:     target,
	})
	return &BatchError{Op: op, Source: source, Target: target, Completed: sum.Completed, Err: err}
}

// resolveRemote runs conflict resolution when key exists.
func (t *Transfer) resolveRemote(ctx context.Context, op, key string) (string, bool, error) {
	if !t.client.Exists(ctx, key) {
		return key, true, nil
	}
	return conflict.Apply(ctx, t.opts.Resolver, conflict.Conflict{Op: op, Target: key, Remote: true})
}

// resolveLocal runs conflict resolution when the local path exists.
func (t *Transfer) resolveLocal(ctx context.Context, op, localPath string) (string, bool, error) {
	exists, err := t.local.Exists(localPath)
	if err != nil {
		return "", false, err
	}
	if !exists {
		return localPath, true, nil
	}
	return conflict.Apply(ctx, t.opts.Resolver, conflict.Conflict{Op: op, Target: localPath})
}

func joinKey(prefix, name string) string {
	if prefix == "" {
		return strings.TrimLeft(name, "/")
	}
	return prefix + "/" + strings.TrimLeft(name, "/")
}

// keyFolder returns the folder part of key, with trailing slash.
func keyFolder(key string) string {
	dir := path.Dir(key)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir + "/"
}
