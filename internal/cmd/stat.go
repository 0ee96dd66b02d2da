package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/3leaps/twinpane/pkg/listing"
	"github.com/3leaps/twinpane/pkg/output"
	"github.com/3leaps/twinpane/pkg/store"
)

var statCmd = &cobra.Command{
	Use:   "stat <key>",
	Short: "Check whether a key exists",
	Long: `Check one key and report its state: exists, not_found,
permission_denied or transport_error.

The exit code follows the state: 0 for exists, the file-not-found code
for not_found, the service-unavailable code otherwise.

Examples:
  twinpane stat docs/report.pdf
  twinpane stat s3://my-bucket/docs/ --output jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runStat,
}

var statOutput string

func init() {
	rootCmd.AddCommand(statCmd)
	statCmd.Flags().StringVarP(&statOutput, "output", "o", "table", "Output format (table|jsonl)")
}

func runStat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if statOutput != "table" && statOutput != "jsonl" {
		return exitError(foundry.ExitInvalidArgument, "Invalid --output value", fmt.Errorf("expected table or jsonl, got %q", statOutput))
	}
	bucket, uris, err := parseRemoteArgs(args)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}
	key := uris[0].Key
	if key == "" {
		return exitError(foundry.ExitInvalidArgument, "Invalid key", store.ErrEmptyKey)
	}

	b, err := openBackend(ctx, bucket, listing.WalkConfig{})
	if err != nil {
		return err
	}
	defer b.Close()

	st := b.client.Stat(ctx, key)
	rec := output.NewStatRecord(st)

	out := cmd.OutOrStdout()
	if statOutput == "jsonl" {
		w := output.NewJSONLWriter(out, uuid.New().String(), b.settings.Backend)
		if err := w.WriteStat(ctx, rec); err != nil {
			return exitError(foundry.ExitFileWriteError, "Failed to write output", err)
		}
		_ = w.Close()
	} else {
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(tw, "Key:\t%s\n", rec.Key)
		_, _ = fmt.Fprintf(tw, "State:\t%s\n", rec.State)
		if st.Found() {
			_, _ = fmt.Fprintf(tw, "Size:\t%s (%d bytes)\n", humanize.IBytes(uint64(rec.Size)), rec.Size)
			if rec.ContentType != "" {
				_, _ = fmt.Fprintf(tw, "Content-Type:\t%s\n", rec.ContentType)
			}
			if rec.ETag != "" {
				_, _ = fmt.Fprintf(tw, "ETag:\t%s\n", rec.ETag)
			}
			if rec.LastModified != nil {
				_, _ = fmt.Fprintf(tw, "Modified:\t%s\n", rec.LastModified.Format(time.RFC3339))
			}
		}
		if rec.Error != "" {
			_, _ = fmt.Fprintf(tw, "Error:\t%s\n", rec.Error)
		}
		_ = tw.Flush()
	}

	switch st.State {
	case store.Exists:
		return nil
	case store.NotFound:
		return exitError(foundry.ExitFileNotFound, "Key not found", fmt.Errorf("%s", key))
	default:
		return exitError(foundry.ExitExternalServiceUnavailable, "Existence check inconclusive", st.Err)
	}
}
