package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// URI parsing errors
var (
	// ErrInvalidURI indicates the URI could not be parsed.
	ErrInvalidURI = errors.New("invalid URI")

	// ErrUnsupportedProvider indicates the URI scheme is not supported.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrMissingBucket indicates the URI is missing a bucket name.
	ErrMissingBucket = errors.New("missing bucket name")

	// ErrBucketMismatch indicates arguments of one command name different buckets.
	ErrBucketMismatch = errors.New("arguments name different buckets")
)

// ObjectURI is a remote argument: a bare key, or s3://bucket/key.
//
// Examples:
//   - docs/report.pdf
//   - docs/
//   - s3://bucket/docs/report.pdf
//   - s3://bucket/data/**/*.csv
type ObjectURI struct {
	// Bucket is empty for bare keys.
	Bucket string

	// Key is the object key or prefix. Empty is the bucket root.
	// For a pattern it is the folder before the first glob segment.
	Key string

	// Pattern is the glob below Key, relative to it.
	Pattern string
}

// String returns the argument in canonical form.
func (u *ObjectURI) String() string {
	key := u.Key + u.Pattern
	if u.Bucket == "" {
		return key
	}
	return fmt.Sprintf("s3://%s/%s", u.Bucket, key)
}

// IsPattern reports whether the argument carries a glob.
func (u *ObjectURI) IsPattern() bool {
	return u.Pattern != ""
}

// IsPrefix reports whether the argument names a folder (ends with /).
func (u *ObjectURI) IsPrefix() bool {
	return strings.HasSuffix(u.Key, "/") || u.Key == ""
}

// ParseURI parses a remote argument.
//
// Supported formats:
//   - key, prefix/, prefix/**/*.ext
//   - s3://bucket, s3://bucket/, s3://bucket/key, s3://bucket/prefix/
//   - s3://bucket/prefix/**/*.ext
func ParseURI(uri string) (*ObjectURI, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: empty URI", ErrInvalidURI)
	}

	var bucket, key string
	// Parsed by hand: url.Parse treats the glob character ? as a query.
	if schemeEnd := strings.Index(uri, "://"); schemeEnd == -1 {
		key = strings.TrimLeft(uri, "/")
	} else {
		scheme := strings.ToLower(uri[:schemeEnd])
		if scheme != "s3" {
			return nil, fmt.Errorf("%w: %s (supported: s3)", ErrUnsupportedProvider, scheme)
		}
		remainder := uri[schemeEnd+3:]
		bucket, key, _ = strings.Cut(remainder, "/")
		if bucket == "" {
			return nil, fmt.Errorf("%w: in %s", ErrMissingBucket, uri)
		}
		if _, err := url.Parse("s3://" + bucket + "/"); err != nil {
			return nil, fmt.Errorf("%w: invalid bucket name %q", ErrInvalidURI, bucket)
		}
	}

	result := &ObjectURI{Bucket: bucket, Key: key}
	if i := strings.IndexAny(key, "*?[{"); i >= 0 {
		cut := strings.LastIndex(key[:i], "/") + 1
		result.Key = key[:cut]
		result.Pattern = key[cut:]
	}
	return result, nil
}

// parseRemoteArgs parses every argument and returns the single bucket they
// name, empty when all are bare keys.
func parseRemoteArgs(args []string) (string, []*ObjectURI, error) {
	var bucket string
	uris := make([]*ObjectURI, 0, len(args))
	for _, a := range args {
		u, err := ParseURI(a)
		if err != nil {
			return "", nil, err
		}
		if u.Bucket != "" {
			if bucket != "" && bucket != u.Bucket {
				return "", nil, fmt.Errorf("%w: %s and %s", ErrBucketMismatch, bucket, u.Bucket)
			}
			bucket = u.Bucket
		}
		uris = append(uris, u)
	}
	return bucket, uris, nil
}
