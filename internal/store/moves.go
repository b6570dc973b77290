package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const moveColumns = `id, scan_id, artist, album_id, source_path, dest_path,
    size_bytes, reason, moved_at, restored, restored_at`

func scanMove(row interface{ Scan(dest ...any) error }) (*Move, error) {
	var (
		mv         Move
		reason     string
		movedAt    string
		restored   int
		restoredAt sql.NullString
	)
	err := row.Scan(
		&mv.ID,
		&mv.ScanID,
		&mv.Artist,
		&mv.AlbumID,
		&mv.SourcePath,
		&mv.DestPath,
		&mv.SizeBytes,
		&reason,
		&movedAt,
		&restored,
		&restoredAt,
	)
	if err != nil {
		return nil, err
	}
	mv.Reason = MoveReason(reason)
	mv.MovedAt = parseTimeString(movedAt)
	mv.Restored = restored != 0
	mv.RestoredAt = parseNullTime(restoredAt)
	return &mv, nil
}

// RecordMove persists a completed relocation and bumps the reclaimed-space
// counters in the same transaction, so totals never drift from the ledger.
func (s *Store) RecordMove(ctx context.Context, mv Move) (int64, error) {
	movedAt := mv.MovedAt
	if movedAt.IsZero() {
		movedAt = time.Now()
	}
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO scan_moves (
                scan_id, artist, album_id, source_path, dest_path,
                size_bytes, reason, moved_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			mv.ScanID,
			mv.Artist,
			mv.AlbumID,
			mv.SourcePath,
			mv.DestPath,
			mv.SizeBytes,
			string(mv.Reason),
			timestamp(movedAt),
		)
		if err != nil {
			return fmt.Errorf("insert move: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("move id: %w", err)
		}
		if err := addCounterTx(ctx, tx, CounterEditionsMoved, 1); err != nil {
			return err
		}
		return addCounterTx(ctx, tx, CounterBytesReclaimed, mv.SizeBytes)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// MarkMoveRestored flips a move to restored and walks the counters back.
// Restoring an already-restored move is a no-op.
func (s *Store) MarkMoveRestored(ctx context.Context, id int64, when time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			sizeBytes int64
			restored  int
		)
		err := tx.QueryRowContext(ctx,
			`SELECT size_bytes, restored FROM scan_moves WHERE id = ?`, id,
		).Scan(&sizeBytes, &restored)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("mark move restored: unknown move %d", id)
		}
		if err != nil {
			return fmt.Errorf("mark move restored: %w", err)
		}
		if restored != 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE scan_moves SET restored = 1, restored_at = ? WHERE id = ?`,
			timestamp(when), id,
		); err != nil {
			return fmt.Errorf("mark move restored: %w", err)
		}
		if err := addCounterTx(ctx, tx, CounterEditionsMoved, -1); err != nil {
			return err
		}
		return addCounterTx(ctx, tx, CounterBytesReclaimed, -sizeBytes)
	})
}

// MoveByID returns one move record, or nil when the id is unknown.
func (s *Store) MoveByID(ctx context.Context, id int64) (*Move, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+moveColumns+` FROM scan_moves WHERE id = ?`, id)
	mv, err := scanMove(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get move: %w", err)
	}
	return mv, nil
}

// Moves lists recorded relocations newest first, optionally including ones
// that were already restored.
func (s *Store) Moves(ctx context.Context, includeRestored bool) ([]Move, error) {
	query := `SELECT ` + moveColumns + ` FROM scan_moves`
	if !includeRestored {
		query += ` WHERE restored = 0`
	}
	query += ` ORDER BY moved_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query moves: %w", err)
	}
	defer rows.Close()

	var moves []Move
	for rows.Next() {
		mv, err := scanMove(rows)
		if err != nil {
			return nil, fmt.Errorf("scan move: %w", err)
		}
		moves = append(moves, *mv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moves: %w", err)
	}
	return moves, nil
}

// MovesForScan lists the relocations performed by one scan run.
func (s *Store) MovesForScan(ctx context.Context, scanID string) ([]Move, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+moveColumns+` FROM scan_moves WHERE scan_id = ? ORDER BY id`, scanID,
	)
	if err != nil {
		return nil, fmt.Errorf("query scan moves: %w", err)
	}
	defer rows.Close()

	var moves []Move
	for rows.Next() {
		mv, err := scanMove(rows)
		if err != nil {
			return nil, fmt.Errorf("scan move: %w", err)
		}
		moves = append(moves, *mv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan moves: %w", err)
	}
	return moves, nil
}
