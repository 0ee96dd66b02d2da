package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/twinpane/pkg/listing"
	"github.com/3leaps/twinpane/pkg/output"
	"github.com/3leaps/twinpane/pkg/transfer"
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <prefix>",
	Short: "Create a folder (and its parents)",
	Long: `Create a folder by writing a zero-byte marker for every level.

A plain file occupying one of the levels is only replaced after
confirmation, or with --replace-files.

Examples:
  twinpane mkdir photos/2024/june
  twinpane mkdir s3://my-bucket/archive`,
	Args: cobra.ExactArgs(1),
	RunE: runMkdir,
}

var mkdirFlags transferFlags

func init() {
	rootCmd.AddCommand(mkdirCmd)
	mkdirCmd.Flags().BoolVar(&mkdirFlags.replaceFiles, "replace-files", false, "Replace a file that occupies a folder path without asking")
}

func runMkdir(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireWritable("mkdir"); err != nil {
		return err
	}

	bucket, uris, err := parseRemoteArgs(args)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}
	if uris[0].IsPattern() {
		return exitError(foundry.ExitInvalidArgument, "Invalid folder name", transfer.ErrInvalidName)
	}

	b, err := openBackend(ctx, bucket, listing.WalkConfig{})
	if err != nil {
		return err
	}
	defer b.Close()

	f := mkdirFlags
	f.onConflict = "ask"
	f.output = "text"
	j, err := newJob(cmd, b, output.OpMkdir, f)
	if err != nil {
		return err
	}
	prefix, err := j.tr.CreateFolder(ctx, "", uris[0].Key)
	if err != nil {
		return exitError(classify(err), "mkdir failed", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", prefix)
	return nil
}
