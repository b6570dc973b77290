package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// BeginScan records a new scan run in the running state.
func (s *Store) BeginScan(ctx context.Context, id string, startedAt time.Time) error {
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO scan_history (id, started_at, status) VALUES (?, ?, ?)`,
		id, timestamp(startedAt), string(ScanStatusRunning),
	); err != nil {
		return fmt.Errorf("insert scan history: %w", err)
	}
	return nil
}

// FinishScan seals a scan run with its terminal status and summary. It is
// called on every exit path, including stop and failure.
func (s *Store) FinishScan(ctx context.Context, id string, status ScanStatus, errorCode string, summary ScanSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal scan summary: %w", err)
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE scan_history SET finished_at = ?, status = ?, error_code = ?, summary = ? WHERE id = ?`,
		timestamp(time.Now()), string(status), errorCode, string(summaryJSON), id,
	)
	if err != nil {
		return fmt.Errorf("finish scan history: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish scan history: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("finish scan history: unknown scan %s", id)
	}
	return nil
}

func scanHistoryRow(row interface{ Scan(dest ...any) error }) (*ScanRecord, error) {
	var (
		rec        ScanRecord
		startedAt  string
		finishedAt sql.NullString
		status     string
		summary    string
	)
	if err := row.Scan(&rec.ID, &startedAt, &finishedAt, &status, &rec.ErrorCode, &summary); err != nil {
		return nil, err
	}
	rec.StartedAt = parseTimeString(startedAt)
	rec.FinishedAt = parseNullTime(finishedAt)
	rec.Status = ScanStatus(status)
	if summary != "" {
		_ = json.Unmarshal([]byte(summary), &rec.Summary)
	}
	return &rec, nil
}

// ScanByID returns one history row, or nil when the id is unknown.
func (s *Store) ScanByID(ctx context.Context, id string) (*ScanRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, status, error_code, summary FROM scan_history WHERE id = ?`, id,
	)
	rec, err := scanHistoryRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scan history: %w", err)
	}
	return rec, nil
}

// LatestScan returns the most recently started run, or nil when the history
// is empty.
func (s *Store) LatestScan(ctx context.Context) (*ScanRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, status, error_code, summary
            FROM scan_history ORDER BY started_at DESC LIMIT 1`,
	)
	rec, err := scanHistoryRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest scan: %w", err)
	}
	return rec, nil
}

// ScanHistory lists runs newest first. A non-positive limit returns all rows.
func (s *Store) ScanHistory(ctx context.Context, limit int) ([]ScanRecord, error) {
	query := `SELECT id, started_at, finished_at, status, error_code, summary
        FROM scan_history ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scan history: %w", err)
	}
	defer rows.Close()

	var records []ScanRecord
	for rows.Next() {
		rec, err := scanHistoryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan history: %w", err)
	}
	return records, nil
}

// PruneScanHistory deletes finished runs beyond the newest keep entries and
// returns how many were removed. Running rows and move records are untouched.
func (s *Store) PruneScanHistory(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	res, err := s.execWithRetry(ctx,
		`DELETE FROM scan_history WHERE status != ? AND id NOT IN (
            SELECT id FROM scan_history ORDER BY started_at DESC LIMIT ?
        )`,
		string(ScanStatusRunning), keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune scan history: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune scan history: %w", err)
	}
	return removed, nil
}
