package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/twinpane/internal/observability"
	"github.com/3leaps/twinpane/pkg/listing"
	"github.com/3leaps/twinpane/pkg/output"
)

var lsCmd = &cobra.Command{
	Use:   "ls [prefix]",
	Short: "List one folder of the bucket",
	Long: `List the folders and files directly under a prefix, folders first.

Folders are derived from key names: a folder exists while any key lives
below it, with or without a marker object.

Examples:
  twinpane ls
  twinpane ls photos/2024
  twinpane ls s3://my-bucket/photos/ --output jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLs,
}

var lsOutput string

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().StringVarP(&lsOutput, "output", "o", "table", "Output format (table|jsonl)")
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if lsOutput != "table" && lsOutput != "jsonl" {
		return exitError(foundry.ExitInvalidArgument, "Invalid --output value", fmt.Errorf("expected table or jsonl, got %q", lsOutput))
	}

	bucket, uris, err := parseRemoteArgs(args)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}
	prefix := ""
	if len(uris) == 1 {
		prefix = uris[0].Key
	}

	b, err := openBackend(ctx, bucket, listing.WalkConfig{})
	if err != nil {
		return err
	}
	defer b.Close()

	l, err := b.lister.ListPrefix(ctx, prefix)
	if err != nil {
		observability.CLILogger.Error("Failed to list prefix", zap.String("prefix", prefix), zap.Error(err))
		return exitError(classify(err), "Failed to list prefix", err)
	}
	if l.Incomplete {
		observability.CLILogger.Warn("Listing stopped early; provider kept returning the same page",
			zap.String("prefix", l.Prefix))
	}

	if lsOutput == "jsonl" {
		return writeListingJSONL(ctx, cmd.OutOrStdout(), b.settings.Backend, l)
	}
	return writeListingTable(cmd.OutOrStdout(), l)
}

func writeListingJSONL(ctx context.Context, out io.Writer, backendName string, l *listing.Listing) error {
	w := output.NewJSONLWriter(out, uuid.New().String(), backendName)
	defer func() { _ = w.Close() }()
	for _, rec := range output.EntryRecords(l) {
		if err := w.WriteEntry(ctx, &rec); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
	}
	return nil
}

func writeListingTable(out io.Writer, l *listing.Listing) error {
	if l.Empty() {
		_, _ = fmt.Fprintln(out, "Empty folder.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
	for _, e := range l.Entries() {
		if e.IsDir() {
			_, _ = fmt.Fprintf(w, "%s\t-\t-\n", e.Name)
			continue
		}
		modified := "-"
		if !e.LastModified.IsZero() {
			modified = humanize.Time(e.LastModified)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, humanize.IBytes(uint64(e.Size)), modified)
	}
	if err := w.Flush(); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
	}
	if l.Incomplete {
		_, _ = fmt.Fprintln(out, "(listing incomplete)")
	}
	return nil
}
