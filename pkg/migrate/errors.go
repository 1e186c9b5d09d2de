package migrate

import (
	"errors"
	"fmt"
)

// Sentinel errors for run-level failures. Unit failures never surface as
// errors; they are recorded in State.Failed.
var (
	// ErrConfig indicates invalid run options, detected before any network call.
	ErrConfig = errors.New("invalid migration configuration")

	// ErrListing indicates an engine listing could not be completed.
	ErrListing = errors.New("engine listing failed")

	// ErrPersistence indicates the migration state could not be saved.
	ErrPersistence = errors.New("state persistence failed")
)

// ConfigError describes an invalid option.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfig
}

// ListingError reports a failed listing of a cluster.
type ListingError struct {
	// Cluster is "source" or "target".
	Cluster string
	// Page is the 1-based page that failed.
	Page int
	Err  error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("list %s engines (page %d): %v", e.Cluster, e.Page, e.Err)
}

func (e *ListingError) Unwrap() []error {
	return []error{ErrListing, e.Err}
}

// PersistenceError reports a state store that could not be opened, saved or
// reset. Op is "open", "save" or "reset"; empty means "save".
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	op := e.Op
	if op == "" {
		op = "save"
	}
	if e.Path == "" {
		return fmt.Sprintf("%s migration state: %v", op, e.Err)
	}
	return fmt.Sprintf("%s migration state %s: %v", op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// IsConfigError returns true if err is a configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig)
}

// IsListingError returns true if err is a listing failure.
func IsListingError(err error) bool {
	return errors.Is(err, ErrListing)
}

// IsPersistenceError returns true if err is a state save failure.
func IsPersistenceError(err error) bool {
	return errors.Is(err, ErrPersistence)
}
