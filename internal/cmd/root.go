// Package cmd implements the twinpane command line.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/twinpane/internal/config"
	"github.com/3leaps/twinpane/internal/observability"
	"github.com/3leaps/twinpane/internal/server/handlers"
)

const serviceName = "twinpane"

var rootCmd = &cobra.Command{
	Use:   "twinpane",
	Short: "File manager for S3-compatible buckets",
	Long: `twinpane browses and manages an S3-compatible bucket as if it were a
folder tree: list, upload, download, delete, rename and create folders.

Settings come from flags, TWINPANE_* environment variables and an optional
twinpane.yaml (working directory or ~/.config/twinpane).

Examples:
  twinpane ls photos/
  twinpane upload report.pdf --to docs/2024
  twinpane download s3://my-bucket/docs/ --to ./backup
  twinpane browse`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadSettings,
}

var (
	cfgFile  string
	verbose  bool
	readOnly bool

	flagBucket   string
	flagEndpoint string
	flagRegion   string
	flagBackend  string

	// settings is loaded once per invocation by loadSettings.
	settings *config.Settings
)

// versionInfo is set from main via ldflags.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
	handlers.SetVersionInfo(version, commit, buildDate)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: ./twinpane.yaml or ~/.config/twinpane/twinpane.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&readOnly, "readonly", false, "Refuse every command that writes to the bucket")
	pf.StringVar(&flagBucket, "bucket", "", "Bucket name")
	pf.StringVar(&flagEndpoint, "endpoint", "", "Custom S3 endpoint (MinIO, Ceph, ...)")
	pf.StringVar(&flagRegion, "region", "", "Bucket region")
	pf.StringVar(&flagBackend, "backend", "", "Transport backend (s3|minio)")
}

// Execute runs the root command. Cancelling ctx aborts the running
// operation.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func loadSettings(cmd *cobra.Command, args []string) error {
	observability.InitCLILogger(serviceName, verbose)

	overrides := map[string]any{}
	flags := cmd.Flags()
	for flag, key := range map[string]string{
		"bucket":   "bucket",
		"endpoint": "endpoint",
		"region":   "region",
		"backend":  "backend",
	} {
		if f := flags.Lookup(flag); f != nil && f.Changed {
			overrides[key] = f.Value.String()
		}
	}

	s, err := config.Load(cmd.Context(), cfgFile, overrides)
	if err != nil {
		observability.CLILogger.Error("Failed to load configuration", zap.Error(err))
		return exitError(foundry.ExitFileReadError, "Failed to load configuration", err)
	}
	if err := observability.SetLevel(s.Logging.Level, verbose); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging.level", err)
	}
	settings = s

	observability.CLILogger.Debug("Settings loaded",
		zap.String("backend", s.Backend),
		zap.String("bucket", s.Bucket),
		zap.String("endpoint", s.Endpoint),
		zap.String("config_file", s.ConfigFile))
	return nil
}

// requireWritable rejects mutating commands under --readonly.
func requireWritable(op string) error {
	if readOnly {
		return exitError(foundry.ExitInvalidArgument, op+" is not allowed", errors.New("readonly mode is enabled"))
	}
	return nil
}

// exitCodeError carries the process exit code of a failed command.
type exitCodeError struct {
	code int
	msg  string
	err  error
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("%s: %v (exit code %d)", e.msg, e.err, e.code)
}

func (e *exitCodeError) Unwrap() error {
	return e.err
}

// exitError wraps err with the exit code the process should end with.
func exitError(code int, msg string, err error) error {
	return &exitCodeError{code: code, msg: msg, err: err}
}

// ExitCode returns the exit code carried by err, or 1.
func ExitCode(err error) int {
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	return 1
}
