package cmd

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/twinpane/internal/config"
	"github.com/3leaps/twinpane/internal/observability"
	"github.com/3leaps/twinpane/pkg/listing"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the environment, the configuration and the
bucket, and suggest fixes for common issues.

Examples:
  twinpane doctor
  twinpane doctor --bucket my-bucket --endpoint http://localhost:9000`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

const doctorChecks = 5

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := observability.CLILogger
	log.Info("=== " + serviceName + " doctor ===")
	log.Info("")

	allChecks := true
	step := func(n int) string { return fmt.Sprintf("[%d/%d]", n, doctorChecks) }

	// Check 1: Go version
	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		log.Info(step(1)+" Checking Go version... ✅ "+goVersion, zap.String("go_version", goVersion))
	} else {
		log.Warn(step(1)+" Checking Go version... ⚠️  "+goVersion+" (recommended: go1.23+)", zap.String("go_version", goVersion))
		allChecks = false
	}

	// Check 2: Config file
	if settings.ConfigFile != "" {
		log.Info(step(2)+" Checking config file... ✅ "+settings.ConfigFile, zap.String("config_file", settings.ConfigFile))
	} else {
		log.Info(step(2) + " Checking config file... ✅ none (defaults, environment and flags)")
	}

	// Check 3: Settings
	if err := settings.Validate(); err != nil {
		log.Error(step(3)+" Checking settings... ❌ invalid", zap.Error(err))
		allChecks = false
	} else {
		log.Info(step(3)+" Checking settings... ✅ "+settings.Backend,
			zap.String("bucket", settings.Bucket),
			zap.String("endpoint", settings.Endpoint),
			zap.String("region", settings.Region))
	}

	// Check 4: Credentials
	if err := checkCredentials(ctx, *settings); err != nil {
		log.Error(step(4)+" Checking credentials... ❌ "+err.Error())
		printCredentialsHelp()
		allChecks = false
	}

	// Check 5: Bucket
	if allChecks {
		if err := checkBucket(ctx); err != nil {
			log.Error(step(5)+" Checking bucket access... ❌ cannot list bucket root", zap.Error(err))
			allChecks = false
		} else {
			log.Info(step(5)+" Checking bucket access... ✅ "+settings.Bucket, zap.String("bucket", settings.Bucket))
		}
	} else {
		log.Warn(step(5) + " Checking bucket access... skipped (fix the issues above first)")
	}

	log.Info("")
	if !allChecks {
		log.Warn("⚠️  Some checks failed. Review the output above for details.")
		return exitError(foundry.ExitExternalServiceUnavailable, "Diagnostics failed", errors.New("one or more checks failed"))
	}
	log.Info("✅ All checks passed!")
	return nil
}

// checkCredentials logs where credentials come from.
func checkCredentials(ctx context.Context, s config.Settings) error {
	log := observability.CLILogger
	if s.AccessKey != "" {
		log.Info(fmt.Sprintf("[4/%d] Checking credentials... ✅ static keys from settings", doctorChecks),
			zap.String("access_key", maskAccessKey(s.AccessKey)))
		return nil
	}
	if s.Backend == config.BackendMinio {
		return errors.New("the minio backend needs access_key and secret_key")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if s.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(s.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("cannot load AWS config: %w", err)
	}
	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("cannot retrieve credentials: %w", err)
	}
	source := creds.Source
	if source == "" {
		source = "unknown"
	}
	log.Info(fmt.Sprintf("[4/%d] Checking credentials... ✅ %s", doctorChecks, source),
		zap.String("access_key", maskAccessKey(creds.AccessKeyID)),
		zap.String("credential_source", source))
	return nil
}

func checkBucket(ctx context.Context) error {
	b, err := openBackend(ctx, "", listing.WalkConfig{})
	if err != nil {
		return err
	}
	defer b.Close()
	_, err = b.lister.ListPrefix(ctx, "")
	return err
}

// maskAccessKey masks all but the last 4 characters of an access key.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func printCredentialsHelp() {
	log := observability.CLILogger
	log.Info("")
	log.Info("To configure credentials:")
	log.Info("  1. Set TWINPANE_ACCESS_KEY and TWINPANE_SECRET_KEY, or")
	log.Info("  2. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY, or")
	log.Info("  3. Run 'aws configure' and pass --config with a profile setting")
	log.Info("")
	log.Info("For S3-compatible storage (MinIO, Ceph, ...), also set --endpoint.")
	log.Info("")
}
