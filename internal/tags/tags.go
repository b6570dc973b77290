package tags

import (
	"errors"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrUnsupported marks file types this package cannot read. Callers skip
// such files rather than failing the album.
var ErrUnsupported = errors.New("unsupported audio format")

// FileTag is the album-level metadata embedded in one audio file. Release
// ids follow the Picard field names, so a tagged library can short-circuit
// the whole resolution chain.
type FileTag struct {
	Album          string
	AlbumArtist    string
	Artist         string
	Date           string
	Year           int
	ReleaseGroupID string
	ReleaseID      string
	HasCover       bool
}

// ReadFile extracts embedded tags from a single audio file.
func ReadFile(path string) (FileTag, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		return readFLAC(path)
	case ".mp3":
		return readMP3(path)
	default:
		return FileTag{}, ErrUnsupported
	}
}

// ReadAlbum samples up to sample files from an album and returns the first
// tag carrying an album title or a release id. Unreadable files are skipped.
func ReadAlbum(paths []string, sample int) (FileTag, bool) {
	if sample <= 0 {
		sample = 3
	}
	for i, path := range paths {
		if i >= sample {
			break
		}
		tag, err := ReadFile(path)
		if err != nil {
			continue
		}
		if tag.Album != "" || tag.ReleaseGroupID != "" || tag.ReleaseID != "" {
			return tag, true
		}
	}
	return FileTag{}, false
}

// ReadCover returns the embedded front-cover image from one audio file, or
// nil when the file has none.
func ReadCover(path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		return readFLACCover(path)
	case ".mp3":
		return readMP3Cover(path)
	default:
		return nil, ErrUnsupported
	}
}

// parseYear pulls the first four-digit year out of a date tag, which may be
// "2003", "2003-09-08", or freeform text.
func parseYear(date string) int {
	runes := []rune(date)
	run := 0
	for i, r := range runes {
		if r >= '0' && r <= '9' {
			run++
			if run == 4 {
				year, err := strconv.Atoi(string(runes[i-3 : i+1]))
				if err != nil {
					return 0
				}
				return year
			}
			continue
		}
		run = 0
	}
	return 0
}
