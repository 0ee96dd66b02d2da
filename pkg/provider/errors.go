package provider

import (
	"errors"
	"fmt"
)

// Sentinels every transport maps its native errors onto. store.Client
// turns them into existence states; the HTTP layer into status codes.
var (
	ErrNotFound            = errors.New("object not found")
	ErrAccessDenied        = errors.New("access denied")
	ErrBucketNotFound      = errors.New("bucket not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrThrottled           = errors.New("request throttled")
)

// ProviderError records which call failed on which key.
type ProviderError struct {
	Op       string // "List", "Head", "CopyObject", ...
	Provider ProviderType
	Bucket   string
	Key      string
	Err      error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Key != "":
		return fmt.Sprintf("%s %s: %s/%s: %v", e.Provider, e.Op, e.Bucket, e.Key, e.Err)
	case e.Bucket != "":
		return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Bucket, e.Err)
	default:
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
	}
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func IsNotFound(err error) bool           { return errors.Is(err, ErrNotFound) }
func IsAccessDenied(err error) bool       { return errors.Is(err, ErrAccessDenied) }
func IsBucketNotFound(err error) bool     { return errors.Is(err, ErrBucketNotFound) }
func IsInvalidCredentials(err error) bool { return errors.Is(err, ErrInvalidCredentials) }
func IsThrottled(err error) bool          { return errors.Is(err, ErrThrottled) }

func IsProviderUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}

// IsTransient reports errors a caller may retry later.
func IsTransient(err error) bool {
	return IsThrottled(err) || IsProviderUnavailable(err)
}
