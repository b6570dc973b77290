package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ReleaseInfo returns the cached metadata blob for a release group, or
// ("", false) on a cold cache. The blob is opaque JSON owned by the caller.
func (s *Store) ReleaseInfo(ctx context.Context, releaseGroupID string) (string, bool, error) {
	var info string
	err := s.db.QueryRowContext(ctx,
		`SELECT info FROM release_info_cache WHERE release_group_id = ?`, releaseGroupID,
	).Scan(&info)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get release info: %w", err)
	}
	return info, true, nil
}

// SaveReleaseInfo upserts the metadata blob for a release group.
func (s *Store) SaveReleaseInfo(ctx context.Context, releaseGroupID, info string) error {
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO release_info_cache (release_group_id, info, updated_at) VALUES (?, ?, ?)
            ON CONFLICT(release_group_id) DO UPDATE SET info = excluded.info, updated_at = excluded.updated_at`,
		releaseGroupID, info, timestamp(time.Now()),
	); err != nil {
		return fmt.Errorf("save release info: %w", err)
	}
	return nil
}

// Lookup reads the resolution cache for a normalized (artist, album) pair.
// The tagged result distinguishes a cold cache from a remembered failure.
func (s *Store) Lookup(ctx context.Context, artistNorm, albumNorm string) (LookupResult, error) {
	var (
		releaseGroupID string
		notFound       int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT release_group_id, not_found FROM lookup_cache WHERE artist_norm = ? AND album_norm = ?`,
		artistNorm, albumNorm,
	).Scan(&releaseGroupID, &notFound)
	if errors.Is(err, sql.ErrNoRows) {
		return LookupResult{Status: LookupMiss}, nil
	}
	if err != nil {
		return LookupResult{}, fmt.Errorf("get lookup: %w", err)
	}
	if notFound != 0 {
		return LookupResult{Status: LookupNotFound}, nil
	}
	return LookupResult{Status: LookupHit, ReleaseGroupID: releaseGroupID}, nil
}

// SaveLookup caches a resolved release group id, or a negative entry when the
// id is empty.
func (s *Store) SaveLookup(ctx context.Context, artistNorm, albumNorm, releaseGroupID string) error {
	notFound := 0
	if strings.TrimSpace(releaseGroupID) == "" {
		releaseGroupID = ""
		notFound = 1
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO lookup_cache (artist_norm, album_norm, release_group_id, not_found, updated_at)
            VALUES (?, ?, ?, ?, ?)
            ON CONFLICT(artist_norm, album_norm) DO UPDATE SET
                release_group_id = excluded.release_group_id,
                not_found = excluded.not_found,
                updated_at = excluded.updated_at`,
		artistNorm, albumNorm, releaseGroupID, notFound, timestamp(time.Now()),
	); err != nil {
		return fmt.Errorf("save lookup: %w", err)
	}
	return nil
}

// ProbeResult returns the cached readout for a file, or nil when the path is
// unknown or its mtime has changed since the cache was written.
func (s *Store) ProbeResult(ctx context.Context, path string, mtimeUnix int64) (*ProbeRecord, error) {
	var (
		rec   ProbeRecord
		valid int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT path, mtime_unix, codec, bitrate_kbps, sample_rate_hz, bit_depth, valid
            FROM probe_cache WHERE path = ?`, path,
	).Scan(&rec.Path, &rec.MtimeUnix, &rec.Codec, &rec.BitrateKbps, &rec.SampleRateHz, &rec.BitDepth, &valid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get probe result: %w", err)
	}
	if rec.MtimeUnix != mtimeUnix {
		return nil, nil
	}
	rec.Valid = valid != 0
	return &rec, nil
}

// SaveProbeResult upserts the readout for a file, replacing any entry from an
// earlier mtime.
func (s *Store) SaveProbeResult(ctx context.Context, rec ProbeRecord) error {
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO probe_cache (path, mtime_unix, codec, bitrate_kbps, sample_rate_hz, bit_depth, valid, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(path) DO UPDATE SET
                mtime_unix = excluded.mtime_unix,
                codec = excluded.codec,
                bitrate_kbps = excluded.bitrate_kbps,
                sample_rate_hz = excluded.sample_rate_hz,
                bit_depth = excluded.bit_depth,
                valid = excluded.valid,
                updated_at = excluded.updated_at`,
		rec.Path, rec.MtimeUnix, rec.Codec, rec.BitrateKbps, rec.SampleRateHz, rec.BitDepth,
		boolToInt(rec.Valid), timestamp(time.Now()),
	); err != nil {
		return fmt.Errorf("save probe result: %w", err)
	}
	return nil
}

// Decision returns a cached edition-selection verdict, or nil on a miss.
func (s *Store) Decision(ctx context.Context, key string) (*Decision, error) {
	var (
		dec         Decision
		albumIDs    string
		extraTracks string
		decidedAt   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT decision_key, artist, album_ids, winner_album_id, rationale, extra_tracks, decided_at
            FROM ai_decisions WHERE decision_key = ?`, key,
	).Scan(&dec.Key, &dec.Artist, &albumIDs, &dec.WinnerAlbumID, &dec.Rationale, &extraTracks, &decidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get decision: %w", err)
	}
	dec.AlbumIDs = decodeAlbumIDs(albumIDs)
	dec.ExtraTracks = decodeStrings(extraTracks)
	dec.DecidedAt = parseTimeString(decidedAt)
	return &dec, nil
}

// SaveDecision upserts an edition-selection verdict under its cache key.
func (s *Store) SaveDecision(ctx context.Context, dec Decision) error {
	decidedAt := dec.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = time.Now()
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO ai_decisions (decision_key, artist, album_ids, winner_album_id, rationale, extra_tracks, decided_at)
            VALUES (?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(decision_key) DO UPDATE SET
                artist = excluded.artist,
                album_ids = excluded.album_ids,
                winner_album_id = excluded.winner_album_id,
                rationale = excluded.rationale,
                extra_tracks = excluded.extra_tracks,
                decided_at = excluded.decided_at`,
		dec.Key, dec.Artist, encodeAlbumIDs(dec.AlbumIDs), dec.WinnerAlbumID,
		dec.Rationale, encodeStrings(dec.ExtraTracks), timestamp(decidedAt),
	); err != nil {
		return fmt.Errorf("save decision: %w", err)
	}
	return nil
}

func encodeAlbumIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

func decodeAlbumIDs(value string) []int64 {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// CacheKind selects a cache table for clearing.
type CacheKind string

const (
	CacheReleaseInfo CacheKind = "release-info"
	CacheLookup      CacheKind = "lookup"
	CacheProbe       CacheKind = "probe"
	CacheDecisions   CacheKind = "decisions"
)

var cacheTables = map[CacheKind]string{
	CacheReleaseInfo: "release_info_cache",
	CacheLookup:      "lookup_cache",
	CacheProbe:       "probe_cache",
	CacheDecisions:   "ai_decisions",
}

// ClearCache empties one cache table and reports how many rows were dropped.
func (s *Store) ClearCache(ctx context.Context, kind CacheKind) (int64, error) {
	table, ok := cacheTables[kind]
	if !ok {
		return 0, fmt.Errorf("unknown cache kind %q", kind)
	}
	res, err := s.execWithRetry(ctx, `DELETE FROM `+table)
	if err != nil {
		return 0, fmt.Errorf("clear %s cache: %w", kind, err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear %s cache: %w", kind, err)
	}
	return removed, nil
}

// CacheStats counts rows per cache table.
func (s *Store) CacheStats(ctx context.Context) (CacheCounts, error) {
	var counts CacheCounts
	for kind, dest := range map[CacheKind]*int64{
		CacheReleaseInfo: &counts.ReleaseInfo,
		CacheLookup:      &counts.Lookup,
		CacheProbe:       &counts.Probe,
		CacheDecisions:   &counts.Decisions,
	} {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+cacheTables[kind]).Scan(dest); err != nil {
			return CacheCounts{}, fmt.Errorf("count %s cache: %w", kind, err)
		}
	}
	return counts, nil
}
