package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/twinpane/internal/observability"
	"github.com/3leaps/twinpane/pkg/browser"
	"github.com/3leaps/twinpane/pkg/conflict"
	"github.com/3leaps/twinpane/pkg/listing"
	"github.com/3leaps/twinpane/pkg/transfer"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Interactive remote pane",
	Long: `Browse the bucket interactively.

Commands:
  ls                 show the current folder
  cd <name>|/path|.. change folder
  up                 go to the parent folder
  refresh            list the current folder again
  pwd                print the current prefix
  mkdir <name>       create a folder here
  rm <name>[/]       delete a file, or a folder with a trailing /
  help               show this list
  quit               leave

Examples:
  twinpane browse
  twinpane browse --bucket photos`,
	Args: cobra.NoArgs,
	RunE: runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	b, err := openBackend(ctx, "", listing.WalkConfig{})
	if err != nil {
		return err
	}
	defer b.Close()

	sh := newShell(b, cmd.InOrStdin(), cmd.OutOrStdout())
	defer sh.br.Close()
	return sh.run(ctx)
}

// shell is the line-oriented front end of a browser.Browser.
type shell struct {
	b      *backend
	br     *browser.Browser
	in     *bufio.Reader
	out    io.Writer
	prompt *conflict.Prompter
	tr     *transfer.Transfer
}

func newShell(b *backend, in io.Reader, out io.Writer) *shell {
	// One buffered reader serves both the command line and the prompts.
	r := bufio.NewReader(in)
	p := conflict.NewPrompter(r, out)
	return &shell{
		b:      b,
		br:     browser.New(b.lister, b.client, browser.Options{Logger: observability.CLILogger}),
		in:     r,
		out:    out,
		prompt: p,
		tr: transfer.New(b.client, b.walker, b.local, transfer.Options{
			Resolver: p,
			Confirm:  p,
			Logger:   observability.CLILogger,
		}),
	}
}

func (s *shell) run(ctx context.Context) error {
	s.refresh(ctx)
	for {
		_, _ = fmt.Fprintf(s.out, "%s:/%s> ", s.b.settings.Bucket, s.br.Prefix())
		line, err := s.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		eof := errors.Is(err, io.EOF)
		if quit := s.exec(ctx, strings.TrimSpace(line)); quit || eof {
			if eof {
				_, _ = fmt.Fprintln(s.out)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// exec runs one command line and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "":
	case "quit", "exit", "q":
		return true
	case "help", "?":
		_, _ = fmt.Fprintln(s.out, "ls, cd <name>|/path|.., up, refresh, pwd, mkdir <name>, rm <name>[/], quit")
	case "pwd":
		_, _ = fmt.Fprintf(s.out, "/%s\n", s.br.Prefix())
	case "ls":
		s.show()
	case "refresh":
		s.refresh(ctx)
	case "up", "cd..":
		if !s.br.Up() {
			_, _ = fmt.Fprintln(s.out, "already at the bucket root")
			return false
		}
		s.settle(ctx)
	case "cd":
		s.cd(ctx, arg)
	case "mkdir":
		if err := requireWritable("mkdir"); err != nil {
			s.report(err)
			return false
		}
		if _, err := s.tr.CreateFolder(ctx, s.br.Prefix(), arg); err != nil {
			s.report(err)
		}
		s.refresh(ctx)
	case "rm":
		if err := requireWritable("rm"); err != nil {
			s.report(err)
			return false
		}
		s.rm(ctx, arg)
	default:
		_, _ = fmt.Fprintf(s.out, "unknown command %q (try help)\n", name)
	}
	return false
}

func (s *shell) cd(ctx context.Context, arg string) {
	switch {
	case arg == "" || arg == "/":
		s.br.SetPrefix("")
	case arg == "..":
		s.br.Up()
	case strings.HasPrefix(arg, "/"):
		s.br.SetPrefix(arg)
	default:
		s.br.Enter(arg)
	}
	s.settle(ctx)
}

// settle waits for the refresh of a new prefix. When the prefix turns out
// to be a plain file, the user decides between converting it and moving
// back up.
func (s *shell) settle(ctx context.Context) {
	moved, err := s.br.EnsurePrefixFolder(ctx, s.prompt)
	if err != nil {
		s.report(err)
	}
	if moved {
		_, _ = fmt.Fprintf(s.out, "moved to /%s\n", s.br.Prefix())
	}
	s.refresh(ctx)
}

func (s *shell) refresh(ctx context.Context) {
	s.br.Refresh()
	s.br.Wait()
	s.show()
}

func (s *shell) show() {
	res, ok := s.br.Last()
	if !ok {
		_, _ = fmt.Fprintln(s.out, "no listing yet (try refresh)")
		return
	}
	if res.Err != nil {
		s.report(res.Err)
		return
	}
	_ = writeListingTable(s.out, res.Listing)
}

func (s *shell) rm(ctx context.Context, arg string) {
	if strings.Trim(arg, "/") == "" {
		_, _ = fmt.Fprintln(s.out, "usage: rm <name>[/]")
		return
	}
	item := transfer.Item{Key: s.br.FullKey(arg), Dir: strings.HasSuffix(arg, "/")}
	if item.Dir {
		item.Key += "/"
	}
	ok, err := s.prompt.Confirm(ctx, fmt.Sprintf("Delete %s?", item.Key))
	if err != nil || !ok {
		return
	}
	sum, err := s.tr.DeleteEntries(ctx, []transfer.Item{item})
	if err != nil {
		s.report(err)
	}
	_, _ = fmt.Fprintf(s.out, "deleted %d key(s)\n", sum.Completed)
	s.refresh(ctx)
}

func (s *shell) report(err error) {
	observability.CLILogger.Debug("Shell command failed", zap.Error(err))
	_, _ = fmt.Fprintf(s.out, "error: %v\n", err)
}
