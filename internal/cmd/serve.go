package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/twinpane/internal/observability"
	"github.com/3leaps/twinpane/internal/server"
	"github.com/3leaps/twinpane/internal/server/handlers"
	"github.com/3leaps/twinpane/pkg/listing"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the bucket over an HTTP API",
	Long: `Start an HTTP server exposing the bucket operations under /v1 and
health probes under /health.

With --readonly the server still lists, stats and downloads, but every
mutating route answers 403.

Examples:
  twinpane serve
  twinpane serve --host 0.0.0.0 --port 9000 --bucket my-bucket`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides server.port)")
}

// bucketHealthChecker lists the bucket root.
type bucketHealthChecker struct {
	lister *listing.Lister
}

func (c bucketHealthChecker) CheckHealth(ctx context.Context) error {
	if c.lister == nil {
		return errors.New("bucket lister not configured")
	}
	if _, err := c.lister.ListPrefix(ctx, ""); err != nil {
		return fmt.Errorf("bucket unreachable: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveHost != "" {
		settings.Server.Host = serveHost
	}
	if servePort != 0 {
		settings.Server.Port = servePort
	}
	if err := settings.ValidateServer(); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid server settings", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, "", listing.WalkConfig{})
	if err != nil {
		return err
	}
	defer b.Close()

	health := handlers.InitHealthManager(versionInfo.Version)
	health.RegisterChecker("bucket", bucketHealthChecker{lister: b.lister})

	api := handlers.NewAPI(b.client, b.lister, b.walker, observability.CLILogger)
	api.SetReadOnly(readOnly)

	srv := server.New(settings.Server.Host, settings.Server.Port,
		server.WithAPI(api),
		server.WithLogger(observability.CLILogger),
		server.WithTimeouts(settings.Server.ReadTimeout, settings.Server.WriteTimeout, settings.Server.IdleTimeout),
	)
	errCh, err := srv.Start()
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to start server", err)
	}
	observability.CLILogger.Info("Server listening",
		zap.String("host", settings.Server.Host),
		zap.Int("port", srv.Port()),
		zap.String("bucket", b.settings.Bucket),
		zap.Bool("readonly", readOnly))

	select {
	case <-ctx.Done():
		observability.CLILogger.Info("Shutting down")
	case err, ok := <-errCh:
		if ok && err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
		}
		return nil
	}

	timeout := settings.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Shutdown failed", err)
	}
	observability.CLILogger.Info("Server stopped")
	return nil
}
