package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ReplaceArtistBroken swaps the broken-album findings for one artist so a
// rescan that repaired an album also clears its stale record.
func (s *Store) ReplaceArtistBroken(ctx context.Context, artist string, records []BrokenAlbum) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM broken_albums WHERE artist = ?`, artist); err != nil {
			return fmt.Errorf("clear artist broken albums: %w", err)
		}
		for _, rec := range records {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO broken_albums (
                    artist, album_id, title, path, expected_tracks, actual_tracks, gaps, detected_at
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				rec.Artist,
				rec.AlbumID,
				rec.Title,
				rec.Path,
				rec.ExpectedTracks,
				rec.ActualTracks,
				encodeGaps(rec.Gaps),
				timestamp(rec.DetectedAt),
			); err != nil {
				return fmt.Errorf("insert broken album: %w", err)
			}
		}
		return nil
	})
}

// BrokenAlbums lists every recorded broken edition.
func (s *Store) BrokenAlbums(ctx context.Context) ([]BrokenAlbum, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT artist, album_id, title, path, expected_tracks, actual_tracks, gaps, detected_at
            FROM broken_albums ORDER BY artist, title`,
	)
	if err != nil {
		return nil, fmt.Errorf("query broken albums: %w", err)
	}
	defer rows.Close()

	var records []BrokenAlbum
	for rows.Next() {
		var (
			rec        BrokenAlbum
			gaps       string
			detectedAt string
		)
		if err := rows.Scan(
			&rec.Artist,
			&rec.AlbumID,
			&rec.Title,
			&rec.Path,
			&rec.ExpectedTracks,
			&rec.ActualTracks,
			&gaps,
			&detectedAt,
		); err != nil {
			return nil, fmt.Errorf("scan broken album: %w", err)
		}
		rec.Gaps = decodeGaps(gaps)
		rec.DetectedAt = parseTimeString(detectedAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate broken albums: %w", err)
	}
	return records, nil
}

// DeleteBrokenAlbum clears one record, typically after the edition was purged.
func (s *Store) DeleteBrokenAlbum(ctx context.Context, artist string, albumID int64) error {
	if _, err := s.execWithRetry(ctx,
		`DELETE FROM broken_albums WHERE artist = ? AND album_id = ?`, artist, albumID,
	); err != nil {
		return fmt.Errorf("delete broken album: %w", err)
	}
	return nil
}
