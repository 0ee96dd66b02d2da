// Package listing presents the flat key namespace of a bucket as folders.
//
// Lister pages through a prefix with delimiter grouping and classifies each
// result as a Dir or a File, tolerating providers that repeat continuation
// tokens or ignore the delimiter. Walker builds breadth-first traversal and
// flat key enumeration on top of it.
package listing

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/twinpane/pkg/provider"
)

// Delimiter separates folder levels in keys.
const Delimiter = "/"

// Config configures listing behavior.
type Config struct {
	// PageSize is the MaxKeys sent with every list request.
	// Default: 1000
	PageSize int

	// RateLimit is the maximum list requests per second.
	// Zero means unlimited.
	RateLimit float64
}

// DefaultConfig returns the default listing configuration.
func DefaultConfig() Config {
	return Config{PageSize: 1000}
}

// EntryKind tags a listing entry.
type EntryKind int

const (
	KindDir EntryKind = iota
	KindFile
)

func (k EntryKind) String() string {
	if k == KindDir {
		return "dir"
	}
	return "file"
}

// Entry is one row of a folder listing.
//
// Dir entries carry only Name, with its trailing slash. File entries carry
// Name, Key, Size and LastModified (zero when the store did not report it).
type Entry struct {
	Kind         EntryKind
	Name         string
	Key          string
	Size         int64
	LastModified time.Time
}

// IsDir reports whether e is a folder.
func (e Entry) IsDir() bool { return e.Kind == KindDir }

// Listing is the classified content of one prefix.
type Listing struct {
	// Prefix is the normalized prefix that was listed.
	Prefix string

	// Dirs are child folder names with trailing slash, sorted.
	Dirs []string

	// Files are file entries in the order the store returned them.
	Files []Entry

	// Incomplete is set when pagination had to stop early against a
	// misbehaving provider.
	Incomplete bool
}

// Entries returns dirs followed by files.
func (l *Listing) Entries() []Entry {
	out := make([]Entry, 0, len(l.Dirs)+len(l.Files))
	for _, d := range l.Dirs {
		out = append(out, Entry{Kind: KindDir, Name: d})
	}
	return append(out, l.Files...)
}

// Empty reports whether the listing has no entries.
func (l *Listing) Empty() bool {
	return len(l.Dirs) == 0 && len(l.Files) == 0
}

// Lister lists prefixes of a single bucket.
//
// Lister holds no per-call state and is safe for concurrent use.
type Lister struct {
	provider provider.Provider
	config   Config
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewLister creates a lister. A nil logger disables logging.
func NewLister(p provider.Provider, cfg Config, logger *zap.Logger) *Lister {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultConfig().PageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Lister{provider: p, config: cfg, logger: logger}
	if cfg.RateLimit > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return l
}

// NormalizePrefix appends the delimiter to a non-empty prefix that lacks it.
func NormalizePrefix(prefix string) string {
	if prefix == "" || strings.HasSuffix(prefix, Delimiter) {
		return prefix
	}
	return prefix + Delimiter
}

// PageFunc receives each page of a listing.
type PageFunc func(page *provider.ListResult) error

// Pages lists every page under prefix and hands each to fn.
//
// Pagination follows continuation tokens while they are new. A token that
// was already consumed, or a truncated page without one, switches to
// start-after paging from the greatest key or common prefix of the current
// page. When that marker was already used, or none can be derived, paging
// stops and complete is false; this is a degraded result, not an error.
func (l *Lister) Pages(ctx context.Context, prefix, delimiter string, fn PageFunc) (complete bool, err error) {
	seenTokens := map[string]struct{}{}
	usedMarkers := map[string]struct{}{}

	opts := provider.ListOptions{
		Prefix:    prefix,
		Delimiter: delimiter,
		MaxKeys:   l.config.PageSize,
	}

	for {
		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return false, err
			}
		}

		page, err := l.provider.List(ctx, opts)
		if err != nil {
			return false, err
		}
		if err := fn(page); err != nil {
			return false, err
		}

		if !page.IsTruncated {
			return true, nil
		}

		token := page.ContinuationToken
		if _, seen := seenTokens[token]; token != "" && !seen {
			seenTokens[token] = struct{}{}
			opts.ContinuationToken = token
			opts.StartAfter = ""
			continue
		}

		marker := pageMarker(page)
		if _, used := usedMarkers[marker]; marker == "" || used {
			l.logger.Warn("listing stopped early: provider pagination made no progress",
				zap.String("prefix", prefix),
				zap.String("token", token),
				zap.String("marker", marker))
			return false, nil
		}
		usedMarkers[marker] = struct{}{}
		l.logger.Debug("continuation token repeated or missing, switching to start-after",
			zap.String("prefix", prefix),
			zap.String("marker", marker))
		opts.ContinuationToken = ""
		opts.StartAfter = marker
	}
}

// pageMarker returns the lexicographically greatest key or common prefix
// of page, or "" when the page is empty.
func pageMarker(page *provider.ListResult) string {
	var marker string
	for _, obj := range page.Objects {
		if obj.Key > marker {
			marker = obj.Key
		}
	}
	for _, cp := range page.CommonPrefixes {
		if cp > marker {
			marker = cp
		}
	}
	return marker
}

// ListPrefix lists the immediate children of prefix.
func (l *Lister) ListPrefix(ctx context.Context, prefix string) (*Listing, error) {
	prefix = NormalizePrefix(prefix)
	dirs := map[string]struct{}{}
	seenFiles := map[string]struct{}{}
	var files []Entry

	complete, err := l.Pages(ctx, prefix, Delimiter, func(page *provider.ListResult) error {
		for _, cp := range page.CommonPrefixes {
			if name := strings.Trim(strings.TrimPrefix(cp, prefix), Delimiter); name != "" {
				dirs[firstSegment(name)+Delimiter] = struct{}{}
			}
		}
		for _, obj := range page.Objects {
			entry, ok := Classify(prefix, obj)
			if !ok {
				continue
			}
			if entry.Kind == KindDir {
				dirs[entry.Name] = struct{}{}
				continue
			}
			// Start-after recovery can serve a key twice.
			if _, dup := seenFiles[entry.Key]; dup {
				continue
			}
			seenFiles[entry.Key] = struct{}{}
			files = append(files, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sorted := make([]string, 0, len(dirs))
	for d := range dirs {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	return &Listing{
		Prefix:     prefix,
		Dirs:       sorted,
		Files:      files,
		Incomplete: !complete,
	}, nil
}

// Classify turns one listed object under a normalized prefix into an entry.
// It returns false for objects that produce no entry: the prefix's own
// marker, and keys outside the prefix.
//
// Rules, in order: a residual containing the delimiter is a folder named by
// its first segment (folder markers and keys the store failed to group); a
// zero-byte residual without a dot is a legacy folder marker; anything else
// is a file.
func Classify(prefix string, obj provider.ObjectSummary) (Entry, bool) {
	if obj.Key == prefix || !strings.HasPrefix(obj.Key, prefix) {
		return Entry{}, false
	}
	name := obj.Key[len(prefix):]
	if name == "" {
		return Entry{}, false
	}
	if strings.Contains(name, Delimiter) {
		seg := firstSegment(name)
		if seg == "" {
			// Residual starts with the delimiter ("a//b"); nothing to show.
			return Entry{}, false
		}
		return Entry{Kind: KindDir, Name: seg + Delimiter}, true
	}
	if obj.Size == 0 && !strings.Contains(name, ".") {
		return Entry{Kind: KindDir, Name: name + Delimiter}, true
	}
	return Entry{
		Kind:         KindFile,
		Name:         name,
		Key:          obj.Key,
		Size:         obj.Size,
		LastModified: obj.LastModified,
	}, true
}

func firstSegment(name string) string {
	seg, _, _ := strings.Cut(name, Delimiter)
	return seg
}
