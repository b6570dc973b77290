package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const duplicateColumns = `id, scan_id, artist, group_key, winner_album_id, winner_title,
    winner_path, winner_codec, winner_size_bytes, winner_track_count, winner_year,
    rationale, extra_tracks, release_group_id, created_at`

func scanDuplicate(row interface{ Scan(dest ...any) error }) (*DuplicateGroup, error) {
	var (
		group       DuplicateGroup
		extraTracks string
		releaseID   sql.NullString
		createdAt   string
	)
	err := row.Scan(
		&group.ID,
		&group.ScanID,
		&group.Artist,
		&group.GroupKey,
		&group.Winner.AlbumID,
		&group.Winner.Title,
		&group.Winner.Path,
		&group.Winner.Codec,
		&group.Winner.SizeBytes,
		&group.Winner.TrackCount,
		&group.Winner.Year,
		&group.Rationale,
		&extraTracks,
		&releaseID,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	group.ExtraTracks = decodeStrings(extraTracks)
	group.ReleaseGroupID = releaseID.String
	group.CreatedAt = parseTimeString(createdAt)
	return &group, nil
}

// ReplaceArtistGroups swaps the persisted duplicate verdicts for one artist
// in a single transaction so readers never observe a half-written scan.
func (s *Store) ReplaceArtistGroups(ctx context.Context, scanID, artist string, groups []DuplicateGroup) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM duplicates WHERE artist = ?`, artist); err != nil {
			return fmt.Errorf("clear artist duplicates: %w", err)
		}
		now := timestamp(time.Now())
		for i := range groups {
			group := &groups[i]
			res, err := tx.ExecContext(ctx,
				`INSERT INTO duplicates (
                    scan_id, artist, group_key, winner_album_id, winner_title,
                    winner_path, winner_codec, winner_size_bytes, winner_track_count,
                    winner_year, rationale, extra_tracks, release_group_id, created_at
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				scanID,
				artist,
				group.GroupKey,
				group.Winner.AlbumID,
				group.Winner.Title,
				group.Winner.Path,
				group.Winner.Codec,
				group.Winner.SizeBytes,
				group.Winner.TrackCount,
				group.Winner.Year,
				group.Rationale,
				encodeStrings(group.ExtraTracks),
				nullableString(group.ReleaseGroupID),
				now,
			)
			if err != nil {
				return fmt.Errorf("insert duplicate group: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("duplicate group id: %w", err)
			}
			group.ID = id
			for _, loser := range group.Losers {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO duplicate_losers (
                        duplicate_id, album_id, title, path, codec, size_bytes,
                        track_count, year, broken
                    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					id,
					loser.AlbumID,
					loser.Title,
					loser.Path,
					loser.Codec,
					loser.SizeBytes,
					loser.TrackCount,
					loser.Year,
					boolToInt(loser.Broken),
				); err != nil {
					return fmt.Errorf("insert duplicate loser: %w", err)
				}
			}
		}
		return nil
	})
}

// DuplicateGroups returns every persisted duplicate group with losers
// attached, ordered for stable listing.
func (s *Store) DuplicateGroups(ctx context.Context) ([]DuplicateGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+duplicateColumns+` FROM duplicates ORDER BY artist, group_key, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query duplicates: %w", err)
	}
	defer rows.Close()

	var groups []DuplicateGroup
	index := make(map[int64]int)
	for rows.Next() {
		group, err := scanDuplicate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan duplicate: %w", err)
		}
		index[group.ID] = len(groups)
		groups = append(groups, *group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duplicates: %w", err)
	}
	if len(groups) == 0 {
		return nil, nil
	}

	loserRows, err := s.db.QueryContext(ctx,
		`SELECT duplicate_id, album_id, title, path, codec, size_bytes, track_count, year, broken
            FROM duplicate_losers ORDER BY duplicate_id, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query duplicate losers: %w", err)
	}
	defer loserRows.Close()

	for loserRows.Next() {
		var (
			parentID int64
			loser    EditionSummary
			broken   int
		)
		if err := loserRows.Scan(
			&parentID,
			&loser.AlbumID,
			&loser.Title,
			&loser.Path,
			&loser.Codec,
			&loser.SizeBytes,
			&loser.TrackCount,
			&loser.Year,
			&broken,
		); err != nil {
			return nil, fmt.Errorf("scan duplicate loser: %w", err)
		}
		loser.Broken = broken != 0
		if pos, ok := index[parentID]; ok {
			groups[pos].Losers = append(groups[pos].Losers, loser)
		}
	}
	if err := loserRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duplicate losers: %w", err)
	}
	return groups, nil
}

// DuplicateGroupByID returns a single group, or nil when the id is unknown.
func (s *Store) DuplicateGroupByID(ctx context.Context, id int64) (*DuplicateGroup, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+duplicateColumns+` FROM duplicates WHERE id = ?`, id)
	group, err := scanDuplicate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get duplicate group: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT album_id, title, path, codec, size_bytes, track_count, year, broken
            FROM duplicate_losers WHERE duplicate_id = ? ORDER BY id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("query duplicate losers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			loser  EditionSummary
			broken int
		)
		if err := rows.Scan(
			&loser.AlbumID,
			&loser.Title,
			&loser.Path,
			&loser.Codec,
			&loser.SizeBytes,
			&loser.TrackCount,
			&loser.Year,
			&broken,
		); err != nil {
			return nil, fmt.Errorf("scan duplicate loser: %w", err)
		}
		loser.Broken = broken != 0
		group.Losers = append(group.Losers, loser)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duplicate losers: %w", err)
	}
	return group, nil
}

// DeleteDuplicateGroup removes a group once remediation has acted on it.
// Losers cascade with the parent row.
func (s *Store) DeleteDuplicateGroup(ctx context.Context, id int64) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM duplicates WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete duplicate group: %w", err)
	}
	return nil
}

// ClearDuplicates drops every persisted duplicate verdict.
func (s *Store) ClearDuplicates(ctx context.Context) error {
	if _, err := s.execWithRetry(ctx, `DELETE FROM duplicates`); err != nil {
		return fmt.Errorf("clear duplicates: %w", err)
	}
	return nil
}
