package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/twinpane/internal/observability"
	"github.com/3leaps/twinpane/pkg/listing"
	"github.com/3leaps/twinpane/pkg/output"
	"github.com/3leaps/twinpane/pkg/transfer"
)

var downloadCmd = &cobra.Command{
	Use:   "download <key-or-prefix/>... --to <dir>",
	Short: "Download files and folders",
	Long: `Download files and folders from the bucket into a local directory.

An argument ending in "/" is a folder: it is recreated locally, even when
empty, with every file below it at its relative path.

Examples:
  twinpane download docs/report.pdf --to .
  twinpane download s3://my-bucket/photos/ --to ./backup --on-conflict skip`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDownload,
}

var (
	downloadTo    string
	downloadFlags transferFlags
)

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringVar(&downloadTo, "to", ".", "Local destination directory")
	downloadFlags.register(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	bucket, uris, err := parseRemoteArgs(args)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}
	items, err := remoteItems(uris)
	if err != nil {
		return err
	}

	b, err := openBackend(ctx, bucket, listing.WalkConfig{})
	if err != nil {
		return err
	}
	defer b.Close()

	dir, err := b.local.Rel(downloadTo)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid --to", err)
	}
	if err := b.local.MkdirAll(dir); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to create destination", err)
	}

	j, err := newJob(cmd, b, output.OpDownload, downloadFlags)
	if err != nil {
		return err
	}
	observability.CLILogger.Info("Downloading",
		zap.Int("items", len(items)),
		zap.String("bucket", b.settings.Bucket),
		zap.String("to", downloadTo))

	sum, err := j.tr.DownloadEntries(ctx, items, dir)
	return j.finish(ctx, cmd.OutOrStdout(), sum, err)
}

// remoteItems turns parsed arguments into transfer items. Patterns are
// rejected: folder operations take whole folders.
func remoteItems(uris []*ObjectURI) ([]transfer.Item, error) {
	items := make([]transfer.Item, 0, len(uris))
	for _, u := range uris {
		if u.IsPattern() {
			return nil, exitError(foundry.ExitInvalidArgument, "Patterns are not supported here", ErrInvalidURI)
		}
		items = append(items, transfer.Item{Key: u.Key, Dir: u.IsPrefix()})
	}
	return items, nil
}
