package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"deadwax/internal/config"

	sqlite "modernc.org/sqlite"
)

const (
	busyRetryAttempts    = 5
	busyRetryInitialWait = 10 * time.Millisecond
	busyRetryMaxWait     = 200 * time.Millisecond
)

// Store persists scan results, move records, and resolution caches in a
// single SQLite database under the configured state directory.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open creates or opens the state database and ensures the schema is current.
func Open(ctx context.Context, cfg *config.Config) (*Store, error) {
	return OpenPath(ctx, cfg.StateDBPath())
}

// OpenPath opens the state database at an explicit location.
func OpenPath(ctx context.Context, dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("state database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the filesystem location of the state database.
func (s *Store) Path() string {
	return s.dbPath
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == 5 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// execWithRetry retries single statements that hit transient SQLITE_BUSY
// errors, doubling the wait between attempts.
func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	wait := busyRetryInitialWait
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return res, nil
		}
		if !isSQLiteBusy(err) {
			return nil, err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > busyRetryMaxWait {
			wait = busyRetryMaxWait
		}
	}
	return nil, lastErr
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
