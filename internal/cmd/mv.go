package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/twinpane/pkg/listing"
	"github.com/3leaps/twinpane/pkg/output"
	"github.com/3leaps/twinpane/pkg/transfer"
)

var mvCmd = &cobra.Command{
	Use:   "mv <key> <new-name>",
	Short: "Rename a file within its folder",
	Long: `Rename a file by server-side copy followed by delete of the source.

The rename is not atomic. If the delete fails both keys exist and the
error says so. Folders cannot be renamed.

Examples:
  twinpane mv docs/draft.txt final.txt
  twinpane mv s3://my-bucket/a.txt b.txt --on-conflict replace`,
	Args: cobra.ExactArgs(2),
	RunE: runMv,
}

var mvFlags transferFlags

func init() {
	rootCmd.AddCommand(mvCmd)
	mvFlags.register(mvCmd)
}

func runMv(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireWritable("mv"); err != nil {
		return err
	}

	bucket, uris, err := parseRemoteArgs(args[:1])
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}
	if uris[0].IsPattern() || uris[0].Key == "" {
		return exitError(foundry.ExitInvalidArgument, "Invalid key", transfer.ErrInvalidName)
	}

	b, err := openBackend(ctx, bucket, listing.WalkConfig{})
	if err != nil {
		return err
	}
	defer b.Close()

	j, err := newJob(cmd, b, output.OpRename, mvFlags)
	if err != nil {
		return err
	}
	newKey, renamed, err := j.tr.Rename(ctx, uris[0].Key, args[1])
	sum := transfer.Summary{}
	if renamed {
		sum.Completed = 1
		if mvFlags.output == "text" {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", uris[0].Key, newKey)
		}
	} else if err == nil && newKey == "" {
		sum.Skipped = 1
	}
	return j.finish(ctx, cmd.OutOrStdout(), sum, err)
}
