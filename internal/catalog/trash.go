package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// TrashAlbum deletes an album's rows (parts, tracks, album) from the library
// catalog. It opens its own writable connection so the main handle stays
// read-only, and is only called after the album's files were moved out.
func (c *Catalog) TrashAlbum(ctx context.Context, albumID int64) error {
	db, err := sql.Open("sqlite", c.dbPath)
	if err != nil {
		return fmt.Errorf("open library catalog for trash: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("apply busy timeout: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin trash transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM parts WHERE track_id IN (SELECT id FROM tracks WHERE album_id = ?)`, albumID,
	); err != nil {
		return fmt.Errorf("trash album parts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tracks WHERE album_id = ?`, albumID); err != nil {
		return fmt.Errorf("trash album tracks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM albums WHERE id = ?`, albumID)
	if err != nil {
		return fmt.Errorf("trash album: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("trash album: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("trash album: unknown album %d", albumID)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit trash: %w", err)
	}
	return nil
}
