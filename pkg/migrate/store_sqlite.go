package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "modernc.org/sqlite"
)

const (
	sqliteDriver        = "engineshift_sqlite"
	sqliteSchemaVersion = 1
)

func init() {
	sql.Register(sqliteDriver, &sqlite.Driver{})
}

const (
	statusCompleted = "completed"
	statusFailed    = "failed"
	statusSkipped   = "skipped"
)

// SQLiteStore keeps State in a local SQLite database. Each Save rewrites the
// record in one transaction.
type SQLiteStore struct {
	db   *sql.DB
	path string
	opts storeOptions
}

// OpenSQLiteStore opens (and creates if needed) the database at path. A file
// that is not a usable state database is moved to path+".corrupt" and
// replaced by an empty one, so Load starts fresh.
func OpenSQLiteStore(ctx context.Context, path string, opts ...StoreOption) (*SQLiteStore, error) {
	o := buildStoreOptions(opts)
	if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &PersistenceError{Op: "open", Path: path, Err: fmt.Errorf("create store directory: %w", err)}
		}
	}

	s, err := openSQLite(ctx, path, o)
	if err == nil {
		return s, nil
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return nil, &PersistenceError{Op: "open", Path: path, Err: err}
	}

	backup := path + ".corrupt"
	o.warn("state db %s unreadable, moving it to %s and starting fresh: %v", path, backup, err)
	if rerr := os.Rename(path, backup); rerr != nil {
		return nil, &PersistenceError{Op: "open", Path: path, Err: errors.Join(err, rerr)}
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
	s, err = openSQLite(ctx, path, o)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Path: path, Err: err}
	}
	return s, nil
}

// OpenSQLiteStoreReadOnly opens the database for Load only. The file is
// opened immutable, so no journal or schema change touches it. A missing or
// unreadable file yields a fresh state from Load.
func OpenSQLiteStoreReadOnly(_ context.Context, path string, opts ...StoreOption) (*SQLiteStore, error) {
	o := buildStoreOptions(opts)
	o.readOnly = true
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return &SQLiteStore{path: path, opts: o}, nil
	}
	db, err := sql.Open(sqliteDriver, "file:"+filepath.Clean(path)+"?mode=ro&immutable=1")
	if err != nil {
		return nil, &PersistenceError{Op: "open", Path: path, Err: fmt.Errorf("open state db: %w", err)}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return &SQLiteStore{db: db, path: path, opts: o}, nil
}

func openSQLite(ctx context.Context, path string, o storeOptions) (*SQLiteStore, error) {
	db, err := sql.Open(sqliteDriver, "file:"+filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	// Single connection; WAL is enabled in configure.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, path: path, opts: o}
	if err := s.configure(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) configure(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping state db: %w", err)
	}
	var journalMode string
	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	var busyTimeout int
	if err := s.db.QueryRowContext(ctx, "PRAGMA busy_timeout=5000").Scan(&busyTimeout); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS migration_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL,
			start_time INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS migration_engines (
			status TEXT NOT NULL,
			engine TEXT NOT NULL,
			position INTEGER NOT NULL,
			error_message TEXT,
			PRIMARY KEY (status, engine)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Location returns the database path.
func (s *SQLiteStore) Location() string {
	return s.path
}

// Load reads the stored state, falling back to a fresh state when no run has
// been saved or the rows cannot be read.
func (s *SQLiteStore) Load(ctx context.Context) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fresh := NewState(s.opts.clock.Now())
	if s.db == nil {
		return fresh, nil
	}

	var startTime int64
	err := s.db.QueryRowContext(ctx, `SELECT start_time FROM migration_meta WHERE id = 1`).Scan(&startTime)
	if errors.Is(err, sql.ErrNoRows) {
		return fresh, nil
	}
	if err != nil {
		s.opts.warn("state db %s unreadable, starting fresh: %v", s.path, err)
		return fresh, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, engine, COALESCE(error_message, '') FROM migration_engines ORDER BY status, position`)
	if err != nil {
		s.opts.warn("state db %s unreadable, starting fresh: %v", s.path, err)
		return fresh, nil
	}
	defer func() { _ = rows.Close() }()

	st := NewState(time.UnixMilli(startTime))
	for rows.Next() {
		var status, engine, msg string
		if err := rows.Scan(&status, &engine, &msg); err != nil {
			s.opts.warn("state db %s unreadable, starting fresh: %v", s.path, err)
			return fresh, nil
		}
		switch status {
		case statusCompleted:
			st.Completed = append(st.Completed, engine)
		case statusFailed:
			st.Failed = append(st.Failed, FailedEngine{Engine: engine, Error: msg})
		case statusSkipped:
			st.Skipped = append(st.Skipped, engine)
		}
	}
	if err := rows.Err(); err != nil {
		s.opts.warn("state db %s unreadable, starting fresh: %v", s.path, err)
		return fresh, nil
	}
	st.normalize()
	return st, nil
}

// Save overwrites the stored state in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, st *State) error {
	if s.opts.readOnly {
		return &PersistenceError{Path: s.path, Err: ErrReadOnly}
	}
	if err := s.save(ctx, st); err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	return nil
}

func (s *SQLiteStore) save(ctx context.Context, st *State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO migration_meta (id, schema_version, start_time, updated_at) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version=excluded.schema_version,
			start_time=excluded.start_time,
			updated_at=excluded.updated_at
	`, sqliteSchemaVersion, st.StartTime, now); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM migration_engines`); err != nil {
		return fmt.Errorf("clear engines: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO migration_engines (status, engine, position, error_message) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, name := range st.Completed {
		if _, err := stmt.ExecContext(ctx, statusCompleted, name, i, nil); err != nil {
			return fmt.Errorf("insert completed %s: %w", name, err)
		}
	}
	for i, f := range st.Failed {
		if _, err := stmt.ExecContext(ctx, statusFailed, f.Engine, i, f.Error); err != nil {
			return fmt.Errorf("insert failed %s: %w", f.Engine, err)
		}
	}
	for i, name := range st.Skipped {
		if _, err := stmt.ExecContext(ctx, statusSkipped, name, i, nil); err != nil {
			return fmt.Errorf("insert skipped %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Reset deletes all stored state.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	if s.opts.readOnly {
		return &PersistenceError{Op: "reset", Path: s.path, Err: ErrReadOnly}
	}
	for _, stmt := range []string{`DELETE FROM migration_engines`, `DELETE FROM migration_meta`} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return &PersistenceError{Op: "reset", Path: s.path, Err: err}
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
