package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/3leaps/twinpane/pkg/listing"
	"github.com/3leaps/twinpane/pkg/plan"
	"github.com/3leaps/twinpane/pkg/provider/minio"
	"github.com/3leaps/twinpane/pkg/provider/s3"
)

// Supported storage backends.
const (
	BackendS3    = "s3"
	BackendMinio = "minio"
)

// Settings is the complete, immutable runtime configuration. It is built
// once by Load and passed by value to whatever needs it.
type Settings struct {
	Backend string `mapstructure:"backend" yaml:"backend"`

	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	Region    string `mapstructure:"region" yaml:"region"`
	Profile   string `mapstructure:"profile" yaml:"profile"`

	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts"`

	PartSizeMB         int  `mapstructure:"part_size_mb" yaml:"part_size_mb"`
	MaxConcurrency     int  `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	UploadUseThreads   bool `mapstructure:"upload_use_threads" yaml:"upload_use_threads"`
	UploadFallbackBump bool `mapstructure:"upload_fallback_bump" yaml:"upload_fallback_bump"`

	ListPageSize  int     `mapstructure:"list_page_size" yaml:"list_page_size"`
	ListRateLimit float64 `mapstructure:"list_rate_limit" yaml:"list_rate_limit"`

	LocalRoot string `mapstructure:"local_root" yaml:"local_root"`

	Logging LoggingSettings `mapstructure:"logging" yaml:"logging"`
	Server  ServerSettings  `mapstructure:"server" yaml:"server"`

	// ConfigFile is the file the settings were read from, if any.
	ConfigFile string `mapstructure:"-" yaml:"config_file,omitempty"`
}

// LoggingSettings configures the CLI logger.
type LoggingSettings struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerSettings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ConfigError reports an invalid setting.
type ConfigError struct {
	Key     string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := "config"
	if e.Key != "" {
		msg += ": " + e.Key
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the settings needed to talk to a bucket.
func (s Settings) Validate() error {
	switch s.Backend {
	case BackendS3, BackendMinio:
	default:
		return &ConfigError{Key: "backend", Message: fmt.Sprintf("unknown backend %q (expected s3 or minio)", s.Backend)}
	}
	if s.Bucket == "" {
		return &ConfigError{Key: "bucket", Message: "bucket name is required"}
	}
	if (s.AccessKey == "") != (s.SecretKey == "") {
		return &ConfigError{Key: "access_key/secret_key", Message: "both must be set together"}
	}
	if s.Backend == BackendMinio && s.Endpoint == "" {
		return &ConfigError{Key: "endpoint", Message: "required for the minio backend"}
	}
	if s.PartSizeMB < 0 {
		return &ConfigError{Key: "part_size_mb", Message: "must not be negative"}
	}
	if s.MaxConcurrency < 1 {
		return &ConfigError{Key: "max_concurrency", Message: "must be at least 1"}
	}
	if s.MaxAttempts < 1 {
		return &ConfigError{Key: "max_attempts", Message: "must be at least 1"}
	}
	if s.ListPageSize < 1 || s.ListPageSize > s3.MaxAllowedKeys {
		return &ConfigError{Key: "list_page_size", Message: fmt.Sprintf("must be between 1 and %d", s3.MaxAllowedKeys)}
	}
	if s.ListRateLimit < 0 {
		return &ConfigError{Key: "list_rate_limit", Message: "must not be negative"}
	}
	if s.ConnectTimeout < 0 || s.ReadTimeout < 0 {
		return &ConfigError{Key: "connect_timeout/read_timeout", Message: "must not be negative"}
	}
	if !validLevels[strings.ToLower(s.Logging.Level)] {
		return &ConfigError{Key: "logging.level", Message: fmt.Sprintf("unknown level %q", s.Logging.Level)}
	}
	return nil
}

// ValidateServer checks the HTTP API settings.
func (s Settings) ValidateServer() error {
	if s.Server.Port < 1 || s.Server.Port > 65535 {
		return &ConfigError{Key: "server.port", Message: fmt.Sprintf("invalid port %d", s.Server.Port)}
	}
	return nil
}

// S3Config returns the AWS SDK transport configuration.
func (s Settings) S3Config() s3.Config {
	return s3.Config{
		Bucket:          s.Bucket,
		Region:          s.Region,
		Endpoint:        s.Endpoint,
		Profile:         s.Profile,
		AccessKeyID:     s.AccessKey,
		SecretAccessKey: s.SecretKey,
		ForcePathStyle:  s.ForcePathStyle,
		MaxKeys:         s.ListPageSize,
		ConnectTimeout:  s.ConnectTimeout,
		ReadTimeout:     s.ReadTimeout,
		MaxAttempts:     s.MaxAttempts,
	}
}

// MinioConfig returns the minio-go transport configuration.
func (s Settings) MinioConfig() minio.Config {
	return minio.Config{
		Bucket:          s.Bucket,
		Endpoint:        s.Endpoint,
		Region:          s.Region,
		AccessKeyID:     s.AccessKey,
		SecretAccessKey: s.SecretKey,
		ForcePathStyle:  s.ForcePathStyle,
		MaxKeys:         s.ListPageSize,
		ConnectTimeout:  s.ConnectTimeout,
		ReadTimeout:     s.ReadTimeout,
	}
}

// PlanOverrides returns the transfer tuning knobs.
func (s Settings) PlanOverrides() plan.Overrides {
	return plan.Overrides{
		PartSizeMB:   s.PartSizeMB,
		Concurrency:  s.MaxConcurrency,
		UseThreads:   s.UploadUseThreads,
		FallbackBump: s.UploadFallbackBump,
	}
}

// ListingConfig returns the pagination settings.
func (s Settings) ListingConfig() listing.Config {
	return listing.Config{PageSize: s.ListPageSize, RateLimit: s.ListRateLimit}
}

// Redacted returns a copy safe to print: credentials are masked down to
// their last four characters.
func (s Settings) Redacted() Settings {
	s.AccessKey = mask(s.AccessKey)
	s.SecretKey = mask(s.SecretKey)
	return s
}

func mask(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}
