package cmd

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/twinpane/pkg/conflict"
	"github.com/3leaps/twinpane/pkg/listing"
	"github.com/3leaps/twinpane/pkg/output"
)

var rmCmd = &cobra.Command{
	Use:   "rm <key-or-prefix/>...",
	Short: "Delete files and folders",
	Long: `Delete files and folders from the bucket.

An argument ending in "/" deletes the folder with every key below it,
nested folder markers included. Deleting stops at the first failure; keys
already deleted stay deleted. The bucket root cannot be deleted.

Examples:
  twinpane rm docs/old.pdf
  twinpane rm tmp/ --yes`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRm,
}

var (
	rmYes   bool
	rmFlags transferFlags
)

func init() {
	rootCmd.AddCommand(rmCmd)
	rmCmd.Flags().BoolVarP(&rmYes, "yes", "y", false, "Do not ask for confirmation")
	rmCmd.Flags().StringVarP(&rmFlags.output, "output", "o", "text", "Output format (text|jsonl)")
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if err := requireWritable("rm"); err != nil {
		return err
	}

	bucket, uris, err := parseRemoteArgs(args)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}
	items, err := remoteItems(uris)
	if err != nil {
		return err
	}

	if !rmYes {
		names := make([]string, len(items))
		for i, it := range items {
			names[i] = it.Key
		}
		p := conflict.NewPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
		ok, err := p.Confirm(ctx, fmt.Sprintf("Delete %s?", strings.Join(names, ", ")))
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Confirmation failed", err)
		}
		if !ok {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Nothing deleted.")
			return nil
		}
	}

	b, err := openBackend(ctx, bucket, listing.WalkConfig{})
	if err != nil {
		return err
	}
	defer b.Close()

	f := rmFlags
	f.onConflict = "skip"
	j, err := newJob(cmd, b, output.OpDelete, f)
	if err != nil {
		return err
	}
	sum, err := j.tr.DeleteEntries(ctx, items)
	return j.finish(ctx, cmd.OutOrStdout(), sum, err)
}
