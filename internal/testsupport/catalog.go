package testsupport

import (
	"database/sql"
	"testing"

	"deadwax/internal/config"
)

// catalogSchema mirrors the media-server library layout the scanner reads:
// artist/album/track hierarchy with file parts carrying paths and sizes.
const catalogSchema = `
CREATE TABLE artists (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    sort_name TEXT DEFAULT ''
);
CREATE TABLE albums (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    artist_id INTEGER NOT NULL,
    title TEXT DEFAULT '',
    path TEXT DEFAULT '',
    year INTEGER DEFAULT 0,
    genre TEXT DEFAULT '',
    mb_release_group_id TEXT DEFAULT ''
);
CREATE TABLE tracks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    album_id INTEGER NOT NULL,
    disc_number INTEGER DEFAULT 1,
    track_number INTEGER DEFAULT 0,
    title TEXT DEFAULT '',
    duration REAL DEFAULT 0
);
CREATE TABLE parts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    track_id INTEGER NOT NULL,
    path TEXT NOT NULL,
    size INTEGER DEFAULT 0
);
`

// FixtureTrack seeds one track row plus its file part. An empty Path skips
// the part row, modeling a catalog entry whose file was never imported.
type FixtureTrack struct {
	Disc        int
	Index       int
	Title       string
	DurationSec float64
	Path        string
	SizeBytes   int64
}

// FixtureAlbum seeds one album row with its tracks.
type FixtureAlbum struct {
	Title          string
	Path           string
	Year           int
	Genre          string
	ReleaseGroupID string
	Tracks         []FixtureTrack
}

// FixtureArtist seeds one artist row with its albums.
type FixtureArtist struct {
	Name   string
	Albums []FixtureAlbum
}

// SeedCatalog creates the library catalog database at cfg.Catalog.DBPath and
// fills it with the fixture hierarchy. Returned album ids follow insertion
// order per artist, matching the ids AlbumsForArtist will report.
func SeedCatalog(t testing.TB, cfg *config.Config, artists []FixtureArtist) {
	t.Helper()

	db, err := sql.Open("sqlite", cfg.Catalog.DBPath)
	if err != nil {
		t.Fatalf("open catalog fixture: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(catalogSchema); err != nil {
		t.Fatalf("apply catalog schema: %v", err)
	}

	for _, artist := range artists {
		res, err := db.Exec(`INSERT INTO artists (name) VALUES (?)`, artist.Name)
		if err != nil {
			t.Fatalf("seed artist %s: %v", artist.Name, err)
		}
		artistID, err := res.LastInsertId()
		if err != nil {
			t.Fatalf("artist id: %v", err)
		}
		for _, album := range artist.Albums {
			res, err := db.Exec(
				`INSERT INTO albums (artist_id, title, path, year, genre, mb_release_group_id)
                    VALUES (?, ?, ?, ?, ?, ?)`,
				artistID, album.Title, album.Path, album.Year, album.Genre, album.ReleaseGroupID,
			)
			if err != nil {
				t.Fatalf("seed album %s: %v", album.Title, err)
			}
			albumID, err := res.LastInsertId()
			if err != nil {
				t.Fatalf("album id: %v", err)
			}
			for _, track := range album.Tracks {
				disc := track.Disc
				if disc == 0 {
					disc = 1
				}
				res, err := db.Exec(
					`INSERT INTO tracks (album_id, disc_number, track_number, title, duration)
                        VALUES (?, ?, ?, ?, ?)`,
					albumID, disc, track.Index, track.Title, track.DurationSec,
				)
				if err != nil {
					t.Fatalf("seed track %s: %v", track.Title, err)
				}
				if track.Path == "" {
					continue
				}
				trackID, err := res.LastInsertId()
				if err != nil {
					t.Fatalf("track id: %v", err)
				}
				if _, err := db.Exec(
					`INSERT INTO parts (track_id, path, size) VALUES (?, ?, ?)`,
					trackID, track.Path, track.SizeBytes,
				); err != nil {
					t.Fatalf("seed part %s: %v", track.Path, err)
				}
			}
		}
	}
}
