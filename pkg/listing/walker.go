package listing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/3leaps/twinpane/pkg/provider"
)

// ErrQueueLimit is returned when a traversal would hold more pending
// prefixes than WalkConfig.MaxPending allows.
var ErrQueueLimit = errors.New("pending prefix queue limit exceeded")

// DefaultMaxPending bounds the breadth-first queue.
const DefaultMaxPending = 100_000

// WalkConfig configures a Walker.
type WalkConfig struct {
	// MaxPending caps the number of queued, not yet listed, prefixes.
	// Default: DefaultMaxPending
	MaxPending int

	// Include keeps only keys whose path relative to the walk root matches
	// one of these doublestar patterns. Empty keeps everything.
	Include []string

	// Exclude drops keys whose relative path matches any of these patterns.
	Exclude []string
}

// WalkStats summarizes a traversal.
type WalkStats struct {
	Prefixes   int
	Keys       int
	Skipped    int
	Incomplete bool
}

// Walker enumerates keys below a prefix.
type Walker struct {
	lister *Lister
	config WalkConfig
}

// NewWalker creates a walker. Invalid glob patterns are reported here.
func NewWalker(l *Lister, cfg WalkConfig) (*Walker, error) {
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	for _, p := range append(append([]string{}, cfg.Include...), cfg.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", p)
		}
	}
	return &Walker{lister: l, config: cfg}, nil
}

// KeyFunc receives each file key found by a walk. Returning an error stops
// the walk with that error.
type KeyFunc func(key string) error

// WalkFileKeys traverses the folder tree under prefix breadth-first and
// calls fn for every file key, level by level, as soon as each level is
// listed. Every prefix is listed at most once. Cancellation is checked
// before each prefix is listed.
func (w *Walker) WalkFileKeys(ctx context.Context, prefix string, fn KeyFunc) (WalkStats, error) {
	root := NormalizePrefix(prefix)
	visited := map[string]struct{}{root: {}}
	queue := []string{root}
	var stats WalkStats

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		current := queue[0]
		queue = queue[1:]

		listing, err := w.lister.ListPrefix(ctx, current)
		if err != nil {
			return stats, err
		}
		stats.Prefixes++
		if listing.Incomplete {
			stats.Incomplete = true
		}

		for _, f := range listing.Files {
			if !w.keep(strings.TrimPrefix(f.Key, root)) {
				stats.Skipped++
				continue
			}
			stats.Keys++
			if err := fn(f.Key); err != nil {
				return stats, err
			}
		}

		for _, d := range listing.Dirs {
			child := current + d
			if _, seen := visited[child]; seen {
				continue
			}
			visited[child] = struct{}{}
			queue = append(queue, child)
			if len(queue) > w.config.MaxPending {
				return stats, fmt.Errorf("walk %q: %w (%d)", root, ErrQueueLimit, w.config.MaxPending)
			}
		}
	}

	if stats.Incomplete {
		w.lister.logger.Warn("tree walk may be incomplete", zap.String("prefix", root))
	}
	return stats, nil
}

// ListAllFileKeys collects WalkFileKeys into a slice.
func (w *Walker) ListAllFileKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	_, err := w.WalkFileKeys(ctx, prefix, func(key string) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// ListAllKeys returns every literal key under prefix, folder markers
// included, using plain non-delimited pagination. Filters do not apply.
func (w *Walker) ListAllKeys(ctx context.Context, prefix string) ([]string, error) {
	root := NormalizePrefix(prefix)
	var keys []string
	complete, err := w.lister.Pages(ctx, root, "", func(page *provider.ListResult) error {
		for _, obj := range page.Objects {
			keys = append(keys, obj.Key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !complete {
		w.lister.logger.Warn("flat key listing may be incomplete", zap.String("prefix", root))
	}
	return dedupe(keys), nil
}

func (w *Walker) keep(rel string) bool {
	if len(w.config.Include) > 0 && !matchAny(w.config.Include, rel) {
		return false
	}
	return !matchAny(w.config.Exclude, rel)
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// dedupe drops repeated keys while preserving first-seen order.
func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
