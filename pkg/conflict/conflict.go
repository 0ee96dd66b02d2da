// Package conflict decides what happens when a transfer target already exists.
package conflict

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Decision is the outcome of a name conflict.
type Decision int

const (
	// Replace overwrites the existing target.
	Replace Decision = iota + 1

	// Copy writes to a derived "_copy" name. The derived name is not
	// re-checked for a further collision.
	Copy

	// Rename asks for an explicit new name in the same folder.
	Rename

	// Skip abandons this item; the rest of the batch continues.
	Skip
)

func (d Decision) String() string {
	switch d {
	case Replace:
		return "replace"
	case Copy:
		return "copy"
	case Rename:
		return "rename"
	case Skip:
		return "skip"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// ParseDecision parses a decision name as accepted by --on-conflict.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "replace", "overwrite":
		return Replace, nil
	case "copy":
		return Copy, nil
	case "rename":
		return Rename, nil
	case "skip":
		return Skip, nil
	}
	return 0, fmt.Errorf("unknown conflict decision %q (want replace, copy, rename or skip)", s)
}

// Conflict describes one colliding target.
type Conflict struct {
	// Op is a short description of the operation, e.g. "upload".
	Op string

	// Target is the existing destination: an object key when Remote is
	// true, a local path otherwise.
	Target string

	// Remote reports whether Target is an object key.
	Remote bool
}

// Name returns the final segment of the target.
func (c Conflict) Name() string {
	if c.Remote {
		_, base := splitKey(c.Target)
		return base
	}
	return filepath.Base(c.Target)
}

// Resolver supplies decisions for conflicts, typically by asking a user.
type Resolver interface {
	// Resolve returns the decision for c.
	Resolve(ctx context.Context, c Conflict) (Decision, error)

	// NewName asks for a replacement file name after a Rename decision.
	// ok is false when the request was cancelled.
	NewName(ctx context.Context, c Conflict) (name string, ok bool, err error)
}

// Policy resolves every conflict with the same decision. A Rename policy
// has no source of names, so it skips.
type Policy Decision

func (p Policy) Resolve(context.Context, Conflict) (Decision, error) {
	return Decision(p), nil
}

func (p Policy) NewName(context.Context, Conflict) (string, bool, error) {
	return "", false, nil
}

// Apply resolves c with r and returns the target to write to. ok is false
// when the item must be skipped.
func Apply(ctx context.Context, r Resolver, c Conflict) (target string, ok bool, err error) {
	d, err := r.Resolve(ctx, c)
	if err != nil {
		return "", false, err
	}

	switch d {
	case Replace:
		return c.Target, true, nil
	case Copy:
		if c.Remote {
			return MakeCopyKey(c.Target), true, nil
		}
		return MakeCopyName(c.Target), true, nil
	case Rename:
		name, ok, err := r.NewName(ctx, c)
		if err != nil {
			return "", false, err
		}
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return "", false, nil
		}
		return sibling(c, name), true, nil
	case Skip:
		return "", false, nil
	default:
		return "", false, fmt.Errorf("resolve %s: unsupported decision %v", c.Target, d)
	}
}

// sibling places name in the folder that holds c.Target.
func sibling(c Conflict, name string) string {
	if c.Remote {
		folder, _ := splitKey(c.Target)
		return strings.TrimLeft(folder+name, "/")
	}
	return filepath.Join(filepath.Dir(c.Target), name)
}

// MakeCopyName derives a copy name for a local path: "_copy" goes before the
// last dot of the final element, or at the end when there is none.
// "dir/report.pdf" becomes "dir/report_copy.pdf"; "README" becomes "README_copy".
func MakeCopyName(path string) string {
	dir, base := filepath.Split(path)
	return dir + copyBase(base)
}

// MakeCopyKey is MakeCopyName for object keys: "a/b/report.pdf" becomes
// "a/b/report_copy.pdf". Leading slashes are dropped.
func MakeCopyKey(key string) string {
	folder, base := splitKey(key)
	return strings.TrimLeft(folder+copyBase(base), "/")
}

func copyBase(base string) string {
	if i := strings.LastIndex(base, "."); i >= 0 {
		return base[:i] + "_copy" + base[i:]
	}
	return base + "_copy"
}

// splitKey splits a key after its last slash.
func splitKey(key string) (folder, base string) {
	i := strings.LastIndex(key, "/")
	return key[:i+1], key[i+1:]
}
