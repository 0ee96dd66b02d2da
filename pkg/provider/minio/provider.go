// Package minio implements the provider interface on top of minio-go.
//
// It is an alternate transport for S3-compatible endpoints (MinIO, Ceph RGW,
// SeaweedFS and friends) selected with backend "minio". Listing goes through
// minio.Core so that a single ListObjectsV2 page, with its raw continuation
// token, reaches the caller unchanged.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/3leaps/twinpane/pkg/provider"
)

// Config configures a minio-go backed provider.
type Config struct {
	// Bucket is the bucket name (required).
	Bucket string

	// Endpoint is the service URL, e.g. http://localhost:9000 (required).
	// A bare host:port is treated as https.
	Endpoint string

	// Region is passed through to request signing.
	Region string

	// AccessKeyID and SecretAccessKey are static credentials. When both are
	// empty, credentials are taken from the AWS/MinIO environment variables.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle selects path-style bucket addressing.
	ForcePathStyle bool

	// MaxKeys is the default page size for List operations.
	MaxKeys int

	// ConnectTimeout bounds TCP connection establishment.
	ConnectTimeout time.Duration

	// ReadTimeout bounds the wait for response headers and any single read
	// on an open connection.
	ReadTimeout time.Duration
}

const defaultMaxKeys = 1000

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	if c.Endpoint == "" {
		return &ConfigError{Field: "Endpoint", Message: "endpoint is required for the minio backend"}
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "minio config: " + e.Field + ": " + e.Message
}

// Provider implements provider.Store using minio-go.
type Provider struct {
	client  *minio.Client
	core    minio.Core
	bucket  string
	maxKeys int
}

var _ provider.Store = (*Provider)(nil)

// New creates a minio-go backed provider and checks that the bucket is
// reachable. minio-go retries transient failures internally with its own
// bounded backoff.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	host, secure, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, &ConfigError{Field: "Endpoint", Message: err.Error()}
	}

	var creds *credentials.Credentials
	if cfg.AccessKeyID != "" {
		creds = credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.EnvMinio{},
		})
	}

	opts := &minio.Options{
		Creds:     creds,
		Secure:    secure,
		Region:    cfg.Region,
		Transport: newTransport(cfg.ConnectTimeout, cfg.ReadTimeout),
	}
	if cfg.ForcePathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}

	client, err := minio.New(host, opts)
	if err != nil {
		return nil, &provider.ProviderError{Op: "New", Provider: provider.ProviderMinio, Bucket: cfg.Bucket, Err: err}
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, &provider.ProviderError{Op: "BucketExists", Provider: provider.ProviderMinio, Bucket: cfg.Bucket, Err: mapError(err)}
	}
	if !exists {
		return nil, &provider.ProviderError{Op: "BucketExists", Provider: provider.ProviderMinio, Bucket: cfg.Bucket, Err: provider.ErrBucketNotFound}
	}

	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 || maxKeys > defaultMaxKeys {
		maxKeys = defaultMaxKeys
	}

	return &Provider{
		client:  client,
		core:    minio.Core{Client: client},
		bucket:  cfg.Bucket,
		maxKeys: maxKeys,
	}, nil
}

// splitEndpoint turns an endpoint URL into the host:port minio-go expects.
func splitEndpoint(endpoint string) (host string, secure bool, err error) {
	if !strings.Contains(endpoint, "://") {
		return strings.TrimSuffix(endpoint, "/"), true, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, err
	}
	switch u.Scheme {
	case "http":
		secure = false
	case "https":
		secure = true
	default:
		return "", false, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", false, errors.New("missing host")
	}
	if u.Path != "" && u.Path != "/" {
		return "", false, errors.New("endpoint must not carry a path")
	}
	return u.Host, secure, nil
}

func newTransport(connectTimeout, readTimeout time.Duration) http.RoundTripper {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return http.DefaultTransport
	}
	tr := base.Clone()
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	tr.DialContext = dialer.DialContext
	if readTimeout > 0 {
		tr.ResponseHeaderTimeout = readTimeout
		tr.DialContext = provider.WithReadDeadline(tr.DialContext, readTimeout)
		tr.ForceAttemptHTTP2 = false
	}
	return tr
}

// List returns one page of keys and common prefixes.
func (p *Provider) List(ctx context.Context, opts provider.ListOptions) (*provider.ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, p.wrapError("List", opts.Prefix, err)
	}

	maxKeys := opts.MaxKeys
	if maxKeys <= 0 || maxKeys > p.maxKeys {
		maxKeys = p.maxKeys
	}
	startAfter := opts.StartAfter
	if opts.ContinuationToken != "" {
		startAfter = ""
	}

	res, err := p.core.ListObjectsV2(p.bucket, opts.Prefix, startAfter, opts.ContinuationToken, opts.Delimiter, maxKeys)
	if err != nil {
		return nil, p.wrapError("List", opts.Prefix, err)
	}

	objects := make([]provider.ObjectSummary, 0, len(res.Contents))
	for _, obj := range res.Contents {
		objects = append(objects, provider.ObjectSummary{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         strings.Trim(obj.ETag, "\""),
			LastModified: obj.LastModified,
		})
	}
	prefixes := make([]string, 0, len(res.CommonPrefixes))
	for _, cp := range res.CommonPrefixes {
		prefixes = append(prefixes, cp.Prefix)
	}

	return &provider.ListResult{
		Objects:           objects,
		CommonPrefixes:    prefixes,
		ContinuationToken: res.NextContinuationToken,
		IsTruncated:       res.IsTruncated,
	}, nil
}

// Head returns metadata for a single object.
func (p *Provider) Head(ctx context.Context, key string) (*provider.ObjectMeta, error) {
	info, err := p.client.StatObject(ctx, p.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, p.wrapError("Head", key, err)
	}
	return &provider.ObjectMeta{
		ObjectSummary: provider.ObjectSummary{
			Key:          key,
			Size:         info.Size,
			ETag:         strings.Trim(info.ETag, "\""),
			LastModified: info.LastModified,
		},
		ContentType: info.ContentType,
		Metadata:    info.UserMetadata,
	}, nil
}

// GetObject opens a streamed read of an object.
func (p *Provider) GetObject(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	obj, err := p.client.GetObject(ctx, p.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, 0, p.wrapError("GetObject", key, err)
	}
	return obj, info.Size, nil
}

// PutObject uploads an object in a single request.
func (p *Provider) PutObject(ctx context.Context, key string, body io.Reader, contentLength int64, contentType string) error {
	_, err := p.client.PutObject(ctx, p.bucket, key, body, contentLength, minio.PutObjectOptions{
		ContentType:      contentType,
		DisableMultipart: true,
	})
	if err != nil {
		return p.wrapError("PutObject", key, err)
	}
	return nil
}

// UploadMultipart uploads body with minio-go's multipart engine using the
// given part size and thread count.
func (p *Provider) UploadMultipart(ctx context.Context, key string, body io.Reader, size int64, opts provider.MultipartOptions) error {
	threads := opts.Concurrency
	if threads < 1 {
		threads = 1
	}
	putOpts := minio.PutObjectOptions{
		ContentType: opts.ContentType,
		NumThreads:  uint(threads),
	}
	if opts.PartSize > 0 {
		putOpts.PartSize = uint64(opts.PartSize)
	}
	if opts.Progress != nil {
		putOpts.Progress = progressReader(opts.Progress)
	}

	if _, err := p.client.PutObject(ctx, p.bucket, key, body, size, putOpts); err != nil {
		return p.wrapError("UploadMultipart", key, err)
	}
	return nil
}

// DeleteObject deletes an object.
func (p *Provider) DeleteObject(ctx context.Context, key string) error {
	if err := p.client.RemoveObject(ctx, p.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return p.wrapError("DeleteObject", key, err)
	}
	return nil
}

// CopyObject performs a server-side copy within the bucket.
func (p *Provider) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	_, err := p.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: p.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: p.bucket, Object: srcKey},
	)
	if err != nil {
		return p.wrapError("CopyObject", srcKey, err)
	}
	return nil
}

// Close releases any resources held by the provider.
func (p *Provider) Close() error {
	return nil
}

// progressReader adapts a byte-count callback to minio-go's Progress hook,
// which reads every uploaded chunk from the supplied reader.
type progressReader func(n int64)

func (f progressReader) Read(b []byte) (int, error) {
	f(int64(len(b)))
	return len(b), nil
}

func (p *Provider) wrapError(op, key string, err error) error {
	return &provider.ProviderError{
		Op:       op,
		Provider: provider.ProviderMinio,
		Bucket:   p.bucket,
		Key:      key,
		Err:      mapError(err),
	}
}

// mapError translates a minio-go error into the provider sentinel errors.
// Unrecognised errors are returned unchanged.
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return provider.ErrNotFound
	case "NoSuchBucket":
		return provider.ErrBucketNotFound
	case "AccessDenied":
		return provider.ErrAccessDenied
	case "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return provider.ErrInvalidCredentials
	case "SlowDown", "Throttling", "RequestLimitExceeded":
		return provider.ErrThrottled
	case "ServiceUnavailable", "InternalError":
		return provider.ErrProviderUnavailable
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return provider.ErrNotFound
	case resp.StatusCode == http.StatusForbidden:
		return provider.ErrAccessDenied
	case resp.StatusCode == http.StatusTooManyRequests:
		return provider.ErrThrottled
	case resp.StatusCode >= http.StatusInternalServerError:
		return provider.ErrProviderUnavailable
	}
	return err
}
