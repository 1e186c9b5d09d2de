package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/3leaps/engineshift/pkg/appsearch"
)

// Kind classifies an import failure for callers deciding whether to retry.
type Kind string

const (
	// KindAlreadyExists means the destination engine exists and Force was not set.
	KindAlreadyExists Kind = "already_exists"

	// KindRetriable means a later attempt may succeed (throttling, outages,
	// a name that is still being released).
	KindRetriable Kind = "retriable"

	// KindFatal means the bundle or request was rejected.
	KindFatal Kind = "fatal"
)

// ImportError reports which engine and stage failed and how.
type ImportError struct {
	Kind   Kind
	Engine string
	Stage  string
	Err    error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import %s: %s (%s): %v", e.Engine, e.Stage, e.Kind, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// IsAlreadyExists reports whether err is an import refused because the
// destination exists.
func IsAlreadyExists(err error) bool {
	var ie *ImportError
	return errors.As(err, &ie) && ie.Kind == KindAlreadyExists
}

// IsRetriable reports whether err is an import failure worth retrying.
func IsRetriable(err error) bool {
	var ie *ImportError
	return errors.As(err, &ie) && ie.Kind == KindRetriable
}

// classify maps an API error onto an import failure kind.
func classify(err error) Kind {
	switch {
	case appsearch.IsAlreadyExists(err):
		return KindAlreadyExists
	case appsearch.IsRetriable(err), isTransport(err):
		return KindRetriable
	default:
		return KindFatal
	}
}

// isTransport reports connection-level failures that never reached the
// service, excluding caller cancellation.
func isTransport(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *appsearch.APIError
	return errors.As(err, &apiErr) && apiErr.Status == 0
}
