package cmd

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/twinpane/internal/observability"
	"github.com/3leaps/twinpane/pkg/listing"
	"github.com/3leaps/twinpane/pkg/output"
)

var treeCmd = &cobra.Command{
	Use:   "tree [prefix]",
	Short: "List every file below a prefix",
	Long: `Walk a prefix breadth-first and print every file key below it.

The walk lists one folder level at a time, so it also works against
providers that ignore the delimiter or repeat continuation tokens.

Examples:
  twinpane tree photos/
  twinpane tree 'data/**/*.csv'
  twinpane tree logs/ --exclude '**/*.tmp' --output jsonl`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTree,
}

var (
	treeIncludes   []string
	treeExcludes   []string
	treeMaxPending int
	treeOutput     string
)

func init() {
	rootCmd.AddCommand(treeCmd)

	treeCmd.Flags().StringArrayVar(&treeIncludes, "include", nil, "Include glob pattern relative to the prefix (repeatable)")
	treeCmd.Flags().StringArrayVar(&treeExcludes, "exclude", nil, "Exclude glob pattern relative to the prefix (repeatable)")
	treeCmd.Flags().IntVar(&treeMaxPending, "max-pending", listing.DefaultMaxPending, "Max queued folders before the walk stops")
	treeCmd.Flags().StringVarP(&treeOutput, "output", "o", "text", "Output format (text|jsonl)")
}

func runTree(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if treeOutput != "text" && treeOutput != "jsonl" {
		return exitError(foundry.ExitInvalidArgument, "Invalid --output value", fmt.Errorf("expected text or jsonl, got %q", treeOutput))
	}

	bucket, uris, err := parseRemoteArgs(args)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid URI", err)
	}
	root := ""
	includes := append([]string{}, treeIncludes...)
	if len(uris) == 1 {
		root = listing.NormalizePrefix(uris[0].Key)
		if uris[0].IsPattern() {
			includes = append(includes, uris[0].Pattern)
		}
	}

	b, err := openBackend(ctx, bucket, listing.WalkConfig{
		MaxPending: treeMaxPending,
		Include:    includes,
		Exclude:    treeExcludes,
	})
	if err != nil {
		return err
	}
	defer b.Close()

	out := cmd.OutOrStdout()
	var jw *output.JSONLWriter
	if treeOutput == "jsonl" {
		jw = output.NewJSONLWriter(out, uuid.New().String(), b.settings.Backend)
		defer func() { _ = jw.Close() }()
	}

	stats, err := b.walker.WalkFileKeys(ctx, root, func(key string) error {
		if jw != nil {
			return jw.WriteEntry(ctx, &output.EntryRecord{
				Prefix: root,
				Name:   strings.TrimPrefix(key, root),
				Kind:   listing.KindFile.String(),
				Key:    key,
			})
		}
		_, err := fmt.Fprintln(out, key)
		return err
	})
	if err != nil {
		observability.CLILogger.Error("Walk failed", zap.String("prefix", root), zap.Error(err))
		return exitError(classify(err), "Walk failed", err)
	}

	observability.CLILogger.Info("Walk complete",
		zap.String("prefix", root),
		zap.Int("folders", stats.Prefixes),
		zap.Int("files", stats.Keys),
		zap.Int("filtered", stats.Skipped),
		zap.String("files_human", humanize.Comma(int64(stats.Keys))))
	if stats.Incomplete {
		observability.CLILogger.Warn("Walk incomplete; some folders were not listed", zap.String("prefix", root))
	}
	return nil
}
