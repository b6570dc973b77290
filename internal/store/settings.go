package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Setting returns a stored value, or empty string when the key is absent.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting stores a key/value pair, replacing any previous value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
            ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// Counter reads an integer counter, treating absent or malformed values as zero.
func (s *Store) Counter(ctx context.Context, key string) (int64, error) {
	value, err := s.Setting(ctx, key)
	if err != nil {
		return 0, err
	}
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, nil
	}
	return parsed, nil
}

// AddCounter adjusts an integer counter by delta in a single statement.
func (s *Store) AddCounter(ctx context.Context, key string, delta int64) error {
	if _, err := s.execWithRetry(ctx, counterUpsert, key, delta); err != nil {
		return fmt.Errorf("add counter: %w", err)
	}
	return nil
}

// counterUpsert relies on SQLite's dynamic typing: the TEXT value column holds
// integers while a key is used as a counter.
const counterUpsert = `INSERT INTO settings (key, value) VALUES (?, ?)
    ON CONFLICT(key) DO UPDATE SET value = CAST(value AS INTEGER) + excluded.value`

func addCounterTx(ctx context.Context, tx *sql.Tx, key string, delta int64) error {
	if _, err := tx.ExecContext(ctx, counterUpsert, key, delta); err != nil {
		return fmt.Errorf("add counter: %w", err)
	}
	return nil
}
