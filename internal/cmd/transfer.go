package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/twinpane/internal/observability"
	"github.com/3leaps/twinpane/pkg/conflict"
	"github.com/3leaps/twinpane/pkg/output"
	"github.com/3leaps/twinpane/pkg/progress"
	"github.com/3leaps/twinpane/pkg/transfer"
)

// transferFlags are shared by the commands that move data.
type transferFlags struct {
	onConflict   string
	replaceFiles bool
	output       string
	progress     bool
}

func (f *transferFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.onConflict, "on-conflict", "ask", "What to do with an existing target (ask|replace|copy|rename|skip)")
	cmd.Flags().BoolVar(&f.replaceFiles, "replace-files", false, "Replace a file that occupies a folder path without asking")
	cmd.Flags().StringVarP(&f.output, "output", "o", "text", "Output format (text|jsonl)")
	cmd.Flags().BoolVar(&f.progress, "progress", false, "Print per-item progress to stderr")
}

// job is one command's transfer run.
type job struct {
	op      string
	id      string
	started time.Time
	writer  output.Writer
	tr      *transfer.Transfer
}

// newJob builds a Transfer from the flags. "ask" prompts on the command's
// stdin for both conflicts and file-to-folder replacements.
func newJob(cmd *cobra.Command, b *backend, op string, f transferFlags) (*job, error) {
	if f.output != "text" && f.output != "jsonl" {
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid --output value", fmt.Errorf("expected text or jsonl, got %q", f.output))
	}

	opts := transfer.Options{Logger: observability.CLILogger}
	if f.onConflict == "ask" {
		p := conflict.NewPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
		opts.Resolver = p
		opts.Confirm = p
	} else {
		d, err := conflict.ParseDecision(f.onConflict)
		if err != nil {
			return nil, exitError(foundry.ExitInvalidArgument, "Invalid --on-conflict value", err)
		}
		opts.Resolver = conflict.Policy(d)
		opts.Confirm = transfer.Never
	}
	if f.replaceFiles {
		opts.Confirm = transfer.Always
	}

	id := uuid.New().String()
	j := &job{op: op, id: id, started: time.Now(), writer: output.Nop{}}
	if f.output == "jsonl" {
		j.writer = output.NewJSONLWriter(cmd.OutOrStdout(), id, b.settings.Backend)
	}
	opts.Output = j.writer
	if f.progress {
		opts.Progress = progressPrinter(cmd.ErrOrStderr(), j.writer)
	}

	j.tr = transfer.New(b.client, b.walker, b.local, opts)
	observability.CLILogger.Debug("Job started", zap.String("op", op), zap.String("job_id", id))
	return j, nil
}

// finish reports the summary and converts err into an exit error.
func (j *job) finish(ctx context.Context, out io.Writer, sum transfer.Summary, err error) error {
	elapsed := time.Since(j.started)
	rec := &output.SummaryRecord{
		Op:            j.op,
		Completed:     sum.Completed,
		Skipped:       sum.Skipped,
		Bytes:         sum.Bytes,
		Duration:      elapsed,
		DurationHuman: elapsed.Round(time.Millisecond).String(),
	}
	if err != nil {
		rec.Errors = 1
	}
	if _, isJSONL := j.writer.(*output.JSONLWriter); isJSONL {
		_ = j.writer.WriteSummary(ctx, rec)
	} else {
		_, _ = fmt.Fprintf(out, "%s: %d completed, %d skipped, %s in %s\n",
			j.op, sum.Completed, sum.Skipped, humanize.IBytes(uint64(sum.Bytes)), rec.DurationHuman)
	}
	_ = j.writer.Close()

	if err != nil {
		return exitError(classify(err), j.op+" failed", err)
	}
	return nil
}

// progressPrinter reports every tenth percent of each item, and 100.
func progressPrinter(w io.Writer, out output.Writer) func(op, target string) progress.Sink {
	return func(op, target string) progress.Sink {
		last := -1
		return progress.SinkFunc(func(pct int) {
			if pct == last || (pct < 100 && last >= 0 && pct-last < 10) {
				return
			}
			last = pct
			_, _ = fmt.Fprintf(w, "%s %s %3d%%\n", op, target, pct)
			_ = out.WriteProgress(context.Background(), &output.ProgressRecord{Op: op, Target: target, Percent: pct})
		})
	}
}
