package archive

import (
	"errors"
	"fmt"
)

// Sentinel errors for archive operations.
var (
	ErrNotFound           = errors.New("object not found")
	ErrBucketNotFound     = errors.New("bucket not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrThrottled          = errors.New("request throttled")
	ErrUnavailable        = errors.New("archive unavailable")
)

// Error wraps an S3 failure with the operation and object it concerned.
type Error struct {
	Op     string
	Bucket string
	Key    string
	// Kind is one of the sentinels above, or nil when unclassified.
	Kind error
	Err  error
}

func (e *Error) Error() string {
	target := e.Bucket
	if e.Key != "" {
		target += "/" + e.Key
	}
	if e.Kind != nil {
		return fmt.Sprintf("s3 %s %s: %v: %v", e.Op, target, e.Kind, e.Err)
	}
	return fmt.Sprintf("s3 %s %s: %v", e.Op, target, e.Err)
}

// Unwrap exposes both the classification and the SDK error.
func (e *Error) Unwrap() []error {
	if e.Kind == nil {
		return []error{e.Err}
	}
	return []error{e.Kind, e.Err}
}

func IsNotFound(err error) bool           { return errors.Is(err, ErrNotFound) }
func IsBucketNotFound(err error) bool     { return errors.Is(err, ErrBucketNotFound) }
func IsAccessDenied(err error) bool       { return errors.Is(err, ErrAccessDenied) }
func IsInvalidCredentials(err error) bool { return errors.Is(err, ErrInvalidCredentials) }
func IsThrottled(err error) bool          { return errors.Is(err, ErrThrottled) }
func IsUnavailable(err error) bool        { return errors.Is(err, ErrUnavailable) }
