package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/clock"

	"github.com/3leaps/engineshift/pkg/atomicfile"
)

// Store persists State between runs.
//
// Load fails open: a missing or unreadable record yields a fresh state, never
// an error. Save is a full overwrite and must be atomic.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, s *State) error
	Reset(ctx context.Context) error
	Location() string
	Close() error
}

type storeOptions struct {
	clock    clock.Clock
	warnf    func(format string, args ...any)
	readOnly bool
}

// ErrReadOnly is returned by Save and Reset of a store opened WithReadOnly.
var ErrReadOnly = errors.New("state store is read-only")

// StoreOption configures a Store.
type StoreOption func(*storeOptions)

// WithClock sets the clock used to stamp fresh states.
func WithClock(c clock.Clock) StoreOption {
	return func(o *storeOptions) { o.clock = c }
}

// WithWarnf receives a message when a stored record is unreadable and a
// fresh state is used instead.
func WithWarnf(f func(format string, args ...any)) StoreOption {
	return func(o *storeOptions) { o.warnf = f }
}

// WithReadOnly opens the store for Load only. The underlying file is never
// created or modified; Save and Reset return ErrReadOnly.
func WithReadOnly() StoreOption {
	return func(o *storeOptions) { o.readOnly = true }
}

func buildStoreOptions(opts []StoreOption) storeOptions {
	o := storeOptions{clock: clock.WallClock}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o storeOptions) warn(format string, args ...any) {
	if o.warnf != nil {
		o.warnf(format, args...)
	}
}

// OpenStore opens the store for path. Paths ending in .db, .sqlite or
// .sqlite3 use SQLite; anything else is a JSON file.
func OpenStore(ctx context.Context, path string, opts ...StoreOption) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, &ConfigError{Field: "state_file", Message: "path is required"}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		if buildStoreOptions(opts).readOnly {
			return OpenSQLiteStoreReadOnly(ctx, path, opts...)
		}
		return OpenSQLiteStore(ctx, path, opts...)
	default:
		return NewFileStore(path, opts...), nil
	}
}

// FileStore keeps State in a single JSON file.
type FileStore struct {
	path string
	opts storeOptions
}

// NewFileStore returns a FileStore for path. The file is not touched until
// Save.
func NewFileStore(path string, opts ...StoreOption) *FileStore {
	return &FileStore{path: path, opts: buildStoreOptions(opts)}
}

// Location returns the file path.
func (f *FileStore) Location() string {
	return f.path
}

// Load reads the state file, falling back to a fresh state.
func (f *FileStore) Load(ctx context.Context) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fresh := NewState(f.opts.clock.Now())

	data, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.opts.warn("state file %s unreadable, starting fresh: %v", f.path, err)
		}
		return fresh, nil
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		f.opts.warn("state file %s is empty, starting fresh", f.path)
		return fresh, nil
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		f.opts.warn("state file %s is corrupt, starting fresh: %v", f.path, err)
		return fresh, nil
	}
	if s.StartTime == 0 {
		s.StartTime = fresh.StartTime
	}
	s.normalize()
	return &s, nil
}

// Save replaces the state file atomically.
func (f *FileStore) Save(ctx context.Context, s *State) error {
	if f.opts.readOnly {
		return &PersistenceError{Path: f.path, Err: ErrReadOnly}
	}
	if err := ctx.Err(); err != nil {
		return &PersistenceError{Path: f.path, Err: err}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return &PersistenceError{Path: f.path, Err: fmt.Errorf("marshal state: %w", err)}
	}
	data = append(data, '\n')
	if err := atomicfile.WriteFile(f.path, data, 0644); err != nil {
		return &PersistenceError{Path: f.path, Err: err}
	}
	return nil
}

// Reset removes the state file.
func (f *FileStore) Reset(_ context.Context) error {
	if f.opts.readOnly {
		return &PersistenceError{Op: "reset", Path: f.path, Err: ErrReadOnly}
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &PersistenceError{Op: "reset", Path: f.path, Err: err}
	}
	return nil
}

// Close is a no-op.
func (f *FileStore) Close() error {
	return nil
}
