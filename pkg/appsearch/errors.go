package appsearch

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for API operations.
var (
	// ErrNotFound indicates the engine or sub-resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the name is still taken on the cluster.
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized indicates the API key was rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrThrottled indicates the request was rate limited by the service.
	ErrThrottled = errors.New("request throttled")

	// ErrUnavailable indicates the service returned a server-side error.
	ErrUnavailable = errors.New("service unavailable")

	// ErrBadRequest indicates the service rejected the request payload.
	ErrBadRequest = errors.New("bad request")
)

// APIError wraps a failed API call with request context.
type APIError struct {
	// Op is the client operation that failed (e.g., "CreateEngine").
	Op string

	// Method and Path identify the HTTP request.
	Method string
	Path   string

	// Status is the HTTP status code, zero for transport failures.
	Status int

	// Body is a truncated excerpt of the response body.
	Body string

	// Err is the sentinel (or transport) error.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s %s: %v", e.Op, e.Method, e.Path, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s: %s %s: HTTP %d: %s", e.Op, e.Method, e.Path, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: %s %s: HTTP %d: %v", e.Op, e.Method, e.Path, e.Status, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP response onto a sentinel error.
//
// The service answers a create for a name that is still being released with a
// 400 whose body says the name is taken, so the body is inspected as well.
func classifyStatus(status int, body string) error {
	lower := strings.ToLower(body)
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict,
		strings.Contains(lower, "already taken"),
		strings.Contains(lower, "already exists"):
		return ErrAlreadyExists
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusTooManyRequests:
		return ErrThrottled
	case status >= 500:
		return ErrUnavailable
	default:
		return ErrBadRequest
	}
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists returns true if the error indicates the name is taken.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsUnauthorized returns true if the API key was rejected.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsThrottled returns true if the request was rate limited.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// IsUnavailable returns true if the service had a server-side failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsRetriable returns true for failures that may succeed on a later attempt.
func IsRetriable(err error) bool {
	return IsThrottled(err) || IsUnavailable(err)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
