package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/twinpane/internal/observability"
	"github.com/3leaps/twinpane/pkg/listing"
	"github.com/3leaps/twinpane/pkg/output"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>... --to <prefix>",
	Short: "Upload local files into a bucket folder",
	Long: `Upload local files into a folder of the bucket.

The destination folder chain is created first. When a plain file occupies
one of its levels, twinpane asks before replacing it with a folder (or
replaces it with --replace-files). Files larger than one part are sent as
multipart uploads; a failed multipart attempt is retried once with a
smaller plan.

Examples:
  twinpane upload report.pdf --to docs/2024
  twinpane upload *.jpg --to s3://my-bucket/photos --on-conflict copy
  twinpane upload big.iso --to isos --progress`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

var (
	uploadTo    string
	uploadFlags transferFlags
)

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadTo, "to", "", "Destination prefix (empty for the bucket root)")
	uploadFlags.register(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireWritable("upload"); err != nil {
		return err
	}

	var bucket string
	dest := &ObjectURI{}
	if uploadTo != "" {
		var uris []*ObjectURI
		var err error
		bucket, uris, err = parseRemoteArgs([]string{uploadTo})
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid --to", err)
		}
		dest = uris[0]
	}
	if dest.IsPattern() {
		return exitError(foundry.ExitInvalidArgument, "Invalid --to", ErrInvalidURI)
	}

	b, err := openBackend(ctx, bucket, listing.WalkConfig{})
	if err != nil {
		return err
	}
	defer b.Close()

	paths := make([]string, 0, len(args))
	for _, a := range args {
		rel, err := b.local.Rel(a)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid local path", err)
		}
		paths = append(paths, rel)
	}

	j, err := newJob(cmd, b, output.OpUpload, uploadFlags)
	if err != nil {
		return err
	}
	observability.CLILogger.Info("Uploading",
		zap.Int("files", len(paths)),
		zap.String("bucket", b.settings.Bucket),
		zap.String("prefix", dest.Key))

	sum, err := j.tr.UploadFiles(ctx, paths, dest.Key)
	return j.finish(ctx, cmd.OutOrStdout(), sum, err)
}
