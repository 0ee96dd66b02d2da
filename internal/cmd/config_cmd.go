package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged settings as YAML",
	Long: `Print the settings after merging defaults, the config file, TWINPANE_*
environment variables and flags. Credentials are masked.

Examples:
  twinpane config show
  twinpane config show --config ./staging.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(settings.Redacted()); err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to print settings", err)
	}
	return enc.Close()
}
