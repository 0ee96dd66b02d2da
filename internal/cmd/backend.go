package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	"github.com/3leaps/twinpane/internal/config"
	"github.com/3leaps/twinpane/internal/observability"
	"github.com/3leaps/twinpane/pkg/listing"
	"github.com/3leaps/twinpane/pkg/localfs"
	"github.com/3leaps/twinpane/pkg/provider"
	"github.com/3leaps/twinpane/pkg/provider/minio"
	"github.com/3leaps/twinpane/pkg/provider/s3"
	"github.com/3leaps/twinpane/pkg/store"
	"github.com/3leaps/twinpane/pkg/transfer"
)

// openStore connects the configured transport. Tests replace it.
var openStore = func(ctx context.Context, s config.Settings) (provider.Store, error) {
	switch s.Backend {
	case config.BackendMinio:
		return minio.New(ctx, s.MinioConfig())
	case config.BackendS3, "":
		return s3.New(ctx, s.S3Config())
	default:
		return nil, fmt.Errorf("unknown backend %q", s.Backend)
	}
}

// backend is the storage core wired for one command.
type backend struct {
	settings config.Settings
	client   *store.Client
	lister   *listing.Lister
	walker   *listing.Walker
	local    *localfs.FS
}

// openBackend validates the settings and connects. A non-empty bucket,
// taken from an s3:// argument, replaces the configured one.
func openBackend(ctx context.Context, bucket string, walk listing.WalkConfig) (*backend, error) {
	if settings == nil {
		return nil, exitError(foundry.ExitInvalidArgument, "Settings not loaded", fmt.Errorf("configuration missing"))
	}
	s := *settings
	if bucket != "" {
		s.Bucket = bucket
	}
	if err := s.Validate(); err != nil {
		observability.CLILogger.Error("Invalid configuration", zap.Error(err))
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	logger := observability.CLILogger
	st, err := openStore(ctx, s)
	if err != nil {
		logger.Error("Failed to create provider", zap.String("backend", s.Backend), zap.Error(err))
		return nil, exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to storage provider", err)
	}

	client := store.New(st, store.WithLogger(logger), store.WithOverrides(s.PlanOverrides()))
	lister := listing.NewLister(st, s.ListingConfig(), logger)
	walker, err := listing.NewWalker(lister, walk)
	if err != nil {
		_ = client.Close()
		return nil, exitError(foundry.ExitInvalidArgument, "Invalid filter pattern", err)
	}

	return &backend{
		settings: s,
		client:   client,
		lister:   lister,
		walker:   walker,
		local:    localfs.NewOS(s.LocalRoot),
	}, nil
}

func (b *backend) Close() {
	if err := b.client.Close(); err != nil {
		observability.CLILogger.Debug("Failed to close provider", zap.Error(err))
	}
}

// classify maps a core error to an exit code.
func classify(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return foundry.ExitSignalInt
	case provider.IsNotFound(err), provider.IsBucketNotFound(err), errors.Is(err, fs.ErrNotExist):
		return foundry.ExitFileNotFound
	case provider.IsInvalidCredentials(err):
		return foundry.ExitAuthenticationFailed
	case provider.IsAccessDenied(err), errors.Is(err, fs.ErrPermission):
		return foundry.ExitPermissionDenied
	case errors.Is(err, transfer.ErrInvalidName), errors.Is(err, transfer.ErrRootDelete),
		errors.Is(err, transfer.ErrFolderRename), errors.Is(err, transfer.ErrDeclined),
		errors.Is(err, localfs.ErrOutsideRoot):
		return foundry.ExitInvalidArgument
	default:
		return foundry.ExitExternalServiceUnavailable
	}
}
