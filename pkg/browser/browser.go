// Package browser is the remote pane: a current prefix plus background
// listing refreshes.
//
// Refreshes run on a single background goroutine. While one is in flight,
// further requests collapse into exactly one follow-up refresh that lists
// whatever prefix is current when it starts. A result whose prefix is no
// longer current when it arrives is dropped.
package browser

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/3leaps/twinpane/pkg/listing"
	"github.com/3leaps/twinpane/pkg/store"
	"github.com/3leaps/twinpane/pkg/transfer"
)

// Result is the outcome of one refresh.
type Result struct {
	// Prefix is the browser prefix that was listed, without trailing slash.
	Prefix string

	Listing *listing.Listing
	Err     error
}

// Options configures a Browser.
type Options struct {
	// OnResult receives every result for the current prefix. It runs on the
	// refresh goroutine and must not block for long.
	OnResult func(Result)

	Logger *zap.Logger
}

// Browser tracks the remote pane's prefix. It is safe for concurrent use.
type Browser struct {
	lister   *listing.Lister
	client   *store.Client
	onResult func(Result)
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	idle    *sync.Cond
	prefix  string
	running bool
	pending bool
	last    *Result
	dropped int
}

// New creates a browser at the bucket root.
func New(lister *listing.Lister, client *store.Client, opts Options) *Browser {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.OnResult == nil {
		opts.OnResult = func(Result) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Browser{
		lister:   lister,
		client:   client,
		onResult: opts.OnResult,
		logger:   opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	b.idle = sync.NewCond(&b.mu)
	return b
}

// Prefix returns the current prefix without leading or trailing slash.
func (b *Browser) Prefix() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.prefix
}

// SetPrefix moves to prefix and requests a refresh.
func (b *Browser) SetPrefix(prefix string) {
	b.mu.Lock()
	b.prefix = strings.Trim(prefix, "/")
	b.mu.Unlock()
	b.Refresh()
}

// Enter moves into the child folder name and requests a refresh.
func (b *Browser) Enter(name string) {
	name = strings.Trim(name, "/")
	if name == "" {
		return
	}
	b.mu.Lock()
	b.prefix = join(b.prefix, name)
	b.mu.Unlock()
	b.Refresh()
}

// Up moves to the parent folder and requests a refresh. At the root it
// does nothing and returns false.
func (b *Browser) Up() bool {
	b.mu.Lock()
	if b.prefix == "" {
		b.mu.Unlock()
		return false
	}
	b.prefix = parent(b.prefix)
	b.mu.Unlock()
	b.Refresh()
	return true
}

// FullKey returns the key of name inside the current prefix.
func (b *Browser) FullKey(name string) string {
	return join(b.Prefix(), strings.Trim(name, "/"))
}

// Refresh requests a listing of the current prefix. It never blocks on
// network I/O.
func (b *Browser) Refresh() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx.Err() != nil {
		return
	}
	if b.running {
		b.pending = true
		return
	}
	b.running = true
	go b.run(b.prefix)
}

func (b *Browser) run(prefix string) {
	for {
		l, err := b.lister.ListPrefix(b.ctx, prefix)
		b.deliver(Result{Prefix: prefix, Listing: l, Err: err})

		b.mu.Lock()
		if b.pending && b.ctx.Err() == nil {
			b.pending = false
			prefix = b.prefix
			b.mu.Unlock()
			continue
		}
		b.pending = false
		b.running = false
		b.idle.Broadcast()
		b.mu.Unlock()
		return
	}
}

func (b *Browser) deliver(r Result) {
	b.mu.Lock()
	if r.Prefix != b.prefix {
		b.dropped++
		b.mu.Unlock()
		b.logger.Debug("dropped stale listing", zap.String("prefix", r.Prefix))
		return
	}
	b.last = &r
	b.mu.Unlock()

	if r.Err != nil {
		b.logger.Warn("listing failed", zap.String("prefix", r.Prefix), zap.Error(r.Err))
	}
	b.onResult(r)
}

// Wait blocks until no refresh is in flight or pending.
func (b *Browser) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.running {
		b.idle.Wait()
	}
}

// Last returns the most recent result delivered for the current prefix.
func (b *Browser) Last() (Result, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil || b.last.Prefix != b.prefix {
		return Result{}, false
	}
	return *b.last, true
}

// Dropped returns the number of stale results discarded so far.
func (b *Browser) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close cancels an in-flight refresh and waits for it to stop. Later
// refresh requests are ignored.
func (b *Browser) Close() {
	b.cancel()
	b.Wait()
}

// EnsurePrefixFolder handles a current prefix that names a plain file.
//
// When confirm approves, the file is deleted and replaced by a folder
// marker. Otherwise the browser moves to the parent prefix, which is
// checked the same way. moved reports whether the prefix changed. No
// refresh is requested.
func (b *Browser) EnsurePrefixFolder(ctx context.Context, confirm transfer.Confirmer) (moved bool, err error) {
	for {
		prefix := b.Prefix()
		if prefix == "" || !b.client.Exists(ctx, prefix) {
			return moved, nil
		}
		ok, err := confirm.ConfirmReplace(ctx, prefix)
		if err != nil {
			return moved, err
		}
		if ok {
			if err := b.client.Delete(ctx, prefix); err != nil {
				return moved, err
			}
			if err := b.client.CreateFolderMarker(ctx, prefix+"/"); err != nil {
				return moved, err
			}
			b.logger.Info("converted file to folder", zap.String("key", prefix))
			return moved, nil
		}

		b.mu.Lock()
		if b.prefix == prefix {
			b.prefix = parent(prefix)
		}
		b.mu.Unlock()
		moved = true
	}
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	if name == "" {
		return prefix
	}
	return prefix + "/" + name
}

func parent(prefix string) string {
	i := strings.LastIndex(prefix, "/")
	if i < 0 {
		return ""
	}
	return prefix[:i]
}
