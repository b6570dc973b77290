package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"

	"deadwax/internal/config"

	_ "modernc.org/sqlite"
)

// Artist is one artist row from the library catalog.
type Artist struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	SortName string `db:"sort_name"`
}

// Album is one album row. Path is the folder the server indexed the album
// from, expressed in the server's own filesystem namespace.
type Album struct {
	ID             int64  `db:"id"`
	ArtistID       int64  `db:"artist_id"`
	Title          string `db:"title"`
	Path           string `db:"path"`
	Year           int    `db:"year"`
	Genre          string `db:"genre"`
	ReleaseGroupID string `db:"mb_release_group_id"`
}

// Track is one track row joined with its file part. Path is empty when the
// server has no file for the entry.
type Track struct {
	ID          int64   `db:"id"`
	AlbumID     int64   `db:"album_id"`
	Disc        int     `db:"disc_number"`
	Index       int     `db:"track_number"`
	Title       string  `db:"title"`
	DurationSec float64 `db:"duration"`
	Path        string  `db:"path"`
	SizeBytes   int64   `db:"size"`
}

// AlbumStats aggregates the on-disk footprint of one album.
type AlbumStats struct {
	FileCount int   `db:"file_count"`
	SizeBytes int64 `db:"size_bytes"`
}

// Catalog reads the media server's library database. The main handle is
// opened read-only; the trash side-channel in trash.go is the only writer
// and uses its own short-lived connection.
type Catalog struct {
	db     *sqlx.DB
	dbPath string
}

var requiredTables = []string{"artists", "albums", "tracks", "parts"}

// Open connects read-only to the library catalog named in the config and
// verifies the expected schema is present.
func Open(ctx context.Context, cfg *config.Config) (*Catalog, error) {
	return OpenPath(ctx, cfg.Catalog.DBPath)
}

// OpenPath connects read-only to the library catalog at an explicit location.
func OpenPath(ctx context.Context, dbPath string) (*Catalog, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("library catalog path is empty")
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("library catalog: %w", err)
	}

	db, err := sqlx.Open("sqlite", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open library catalog: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply busy timeout: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping library catalog: %w", err)
	}

	cat := &Catalog{db: db, dbPath: dbPath}
	if err := cat.verifySchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return cat, nil
}

// Close releases the read-only handle.
func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Path returns the catalog database location.
func (c *Catalog) Path() string {
	return c.dbPath
}

func (c *Catalog) verifySchema(ctx context.Context) error {
	var names []string
	if err := c.db.SelectContext(ctx, &names,
		`SELECT name FROM sqlite_master WHERE type = 'table'`,
	); err != nil {
		return fmt.Errorf("inspect library schema: %w", err)
	}
	present := make(map[string]bool, len(names))
	for _, name := range names {
		present[name] = true
	}
	for _, table := range requiredTables {
		if !present[table] {
			return fmt.Errorf("library catalog %s has no %q table; is this a media-server library database?", c.dbPath, table)
		}
	}
	return nil
}

// Artists lists every artist ordered by display name.
func (c *Catalog) Artists(ctx context.Context) ([]Artist, error) {
	var artists []Artist
	err := c.db.SelectContext(ctx, &artists,
		`SELECT id, name, COALESCE(sort_name, '') AS sort_name FROM artists ORDER BY name, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list artists: %w", err)
	}
	return artists, nil
}

// AlbumsForArtist lists an artist's albums in catalog order.
func (c *Catalog) AlbumsForArtist(ctx context.Context, artistID int64) ([]Album, error) {
	var albums []Album
	err := c.db.SelectContext(ctx, &albums,
		`SELECT id, artist_id, COALESCE(title, '') AS title, COALESCE(path, '') AS path,
            COALESCE(year, 0) AS year, COALESCE(genre, '') AS genre,
            COALESCE(mb_release_group_id, '') AS mb_release_group_id
        FROM albums WHERE artist_id = ? ORDER BY id`,
		artistID,
	)
	if err != nil {
		return nil, fmt.Errorf("list albums for artist %d: %w", artistID, err)
	}
	return albums, nil
}

// TracksForAlbum lists an album's tracks with their file parts joined in,
// ordered by disc then track number.
func (c *Catalog) TracksForAlbum(ctx context.Context, albumID int64) ([]Track, error) {
	var tracks []Track
	err := c.db.SelectContext(ctx, &tracks,
		`SELECT t.id, t.album_id, COALESCE(t.disc_number, 1) AS disc_number,
            COALESCE(t.track_number, 0) AS track_number, COALESCE(t.title, '') AS title,
            COALESCE(t.duration, 0) AS duration,
            COALESCE(p.path, '') AS path, COALESCE(p.size, 0) AS size
        FROM tracks t
        LEFT JOIN parts p ON p.track_id = t.id
        WHERE t.album_id = ?
        ORDER BY disc_number, track_number, t.id`,
		albumID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tracks for album %d: %w", albumID, err)
	}
	return tracks, nil
}

// StatsForAlbum sums the file count and byte size recorded for an album.
func (c *Catalog) StatsForAlbum(ctx context.Context, albumID int64) (AlbumStats, error) {
	var stats AlbumStats
	err := c.db.GetContext(ctx, &stats,
		`SELECT COUNT(p.id) AS file_count, COALESCE(SUM(p.size), 0) AS size_bytes
        FROM parts p
        JOIN tracks t ON t.id = p.track_id
        WHERE t.album_id = ?`,
		albumID,
	)
	if err != nil {
		return AlbumStats{}, fmt.Errorf("stats for album %d: %w", albumID, err)
	}
	return stats, nil
}

// SamplePartPaths returns up to limit file paths for the path-binding
// preflight check.
func (c *Catalog) SamplePartPaths(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	var paths []string
	err := c.db.SelectContext(ctx, &paths,
		`SELECT path FROM parts WHERE path != '' ORDER BY id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sample part paths: %w", err)
	}
	return paths, nil
}
