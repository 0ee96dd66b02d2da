package conflict

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeCopyKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report_copy.pdf"},
		{"README", "README_copy"},
		{"a/b/report.pdf", "a/b/report_copy.pdf"},
		{"a/b/archive.tar.gz", "a/b/archive.tar_copy.gz"},
		{"v1.2/notes", "v1.2/notes_copy"},
		{"/lead/x.txt", "lead/x_copy.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, MakeCopyKey(tt.in))
		})
	}
}

func TestMakeCopyName(t *testing.T) {
	assert.Equal(t, "report_copy.pdf", MakeCopyName("report.pdf"))
	assert.Equal(t, "README_copy", MakeCopyName("README"))
	assert.Equal(t, filepath.Join("a", "b", "report_copy.pdf"), MakeCopyName(filepath.Join("a", "b", "report.pdf")))
	assert.Equal(t, filepath.Join("v1.2", "notes_copy"), MakeCopyName(filepath.Join("v1.2", "notes")))
}

func TestParseDecision(t *testing.T) {
	for in, want := range map[string]Decision{
		"replace":   Replace,
		"overwrite": Replace,
		"Copy":      Copy,
		" rename ":  Rename,
		"skip":      Skip,
	} {
		got, err := ParseDecision(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDecision("ask")
	assert.Error(t, err)
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "replace", Replace.String())
	assert.Equal(t, "skip", Skip.String())
	assert.Equal(t, "decision(9)", Decision(9).String())
}

type scripted struct {
	decision Decision
	name     string
	ok       bool
	err      error
	asked    int
}

func (s *scripted) Resolve(context.Context, Conflict) (Decision, error) {
	return s.decision, s.err
}

func (s *scripted) NewName(context.Context, Conflict) (string, bool, error) {
	s.asked++
	return s.name, s.ok, nil
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	remote := Conflict{Op: "upload", Target: "a/b/report.pdf", Remote: true}
	local := Conflict{Op: "download", Target: filepath.Join("dl", "report.pdf")}

	tests := []struct {
		name     string
		resolver *scripted
		c        Conflict
		want     string
		wantOK   bool
	}{
		{"replace keeps target", &scripted{decision: Replace}, remote, "a/b/report.pdf", true},
		{"copy on key", &scripted{decision: Copy}, remote, "a/b/report_copy.pdf", true},
		{"copy on path", &scripted{decision: Copy}, local, filepath.Join("dl", "report_copy.pdf"), true},
		{"rename key in same folder", &scripted{decision: Rename, name: " final.pdf ", ok: true}, remote, "a/b/final.pdf", true},
		{"rename path in same folder", &scripted{decision: Rename, name: "final.pdf", ok: true}, local, filepath.Join("dl", "final.pdf"), true},
		{"rename cancelled skips", &scripted{decision: Rename, ok: false}, remote, "", false},
		{"rename blank skips", &scripted{decision: Rename, name: "   ", ok: true}, remote, "", false},
		{"skip", &scripted{decision: Skip}, remote, "", false},
		{"root key rename", &scripted{decision: Rename, name: "b.txt", ok: true}, Conflict{Target: "a.txt", Remote: true}, "b.txt", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := Apply(ctx, tt.resolver, tt.c)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApply_ResolverError(t *testing.T) {
	boom := errors.New("boom")
	_, ok, err := Apply(context.Background(), &scripted{err: boom}, Conflict{Target: "x"})
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)
}

func TestApply_UnknownDecision(t *testing.T) {
	_, _, err := Apply(context.Background(), &scripted{decision: Decision(42)}, Conflict{Target: "x"})
	assert.Error(t, err)
}

func TestPolicy(t *testing.T) {
	ctx := context.Background()
	c := Conflict{Target: "docs/a.txt", Remote: true}

	got, ok, err := Apply(ctx, Policy(Copy), c)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "docs/a_copy.txt", got)

	_, ok, err = Apply(ctx, Policy(Rename), c)
	require.NoError(t, err)
	assert.False(t, ok, "rename policy has no names to offer")
}

func TestPrompter(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("what\nn\nrenamed.txt\n\n"), &out)
	ctx := context.Background()
	c := Conflict{Op: "upload", Target: "docs/a.txt", Remote: true}

	got, ok, err := Apply(ctx, p, c)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "docs/renamed.txt", got)
	assert.Contains(t, out.String(), "unrecognized answer")
	assert.Contains(t, out.String(), "new name for a.txt")

	d, err := p.Resolve(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, Copy, d, "empty answer picks copy")

	_, err = p.Resolve(ctx, c)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestPrompterConfirm(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("y\n\nYES\nno\n"), &out)
	ctx := context.Background()

	ok, err := p.ConfirmReplace(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, out.String(), "docs is a file")

	ok, err = p.Confirm(ctx, "delete 3 items?")
	require.NoError(t, err)
	assert.False(t, ok, "empty answer declines")

	ok, err = p.Confirm(ctx, "again?")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Confirm(ctx, "once more?")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = p.Confirm(ctx, "eof?")
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
