package dedupe

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// TitleSource records where an edition's display title came from. Catalog and
// tag titles are trustworthy; folder names and placeholders are not.
type TitleSource int

const (
	TitleFromCatalog TitleSource = iota
	TitleFromTag
	TitleFromFolder
	TitleFromPlaceholder
)

// String returns the provenance label used in logs and prompts.
func (s TitleSource) String() string {
	switch s {
	case TitleFromCatalog:
		return "catalog"
	case TitleFromTag:
		return "tag"
	case TitleFromFolder:
		return "folder"
	case TitleFromPlaceholder:
		return "placeholder"
	default:
		return fmt.Sprintf("title-source(%d)", int(s))
	}
}

// HighConfidence reports whether the title came from a source precise enough
// to count toward the grouping confidence gate.
func (s TitleSource) HighConfidence() bool {
	return s == TitleFromCatalog || s == TitleFromTag
}

// IDSource records which resolution step produced an edition's release-group
// id.
type IDSource int

const (
	IDFromNone IDSource = iota
	IDFromTag
	IDFromCatalog
	IDFromCache
	IDFromSearch
	IDFromVote
	IDFromDisambiguation
)

func (s IDSource) String() string {
	switch s {
	case IDFromNone:
		return "none"
	case IDFromTag:
		return "tag"
	case IDFromCatalog:
		return "catalog"
	case IDFromCache:
		return "cache"
	case IDFromSearch:
		return "search"
	case IDFromVote:
		return "vote"
	case IDFromDisambiguation:
		return "disambiguation"
	default:
		return fmt.Sprintf("id-source(%d)", int(s))
	}
}

// Track is the one track shape used across the scanner, resolver, and
// grouping engine. Disc and Index are 1-based.
type Track struct {
	Disc        int
	Index       int
	Title       string
	DurationSec int
	Path        string
}

// TrackGap describes a hole in an edition's track numbering: Missing tracks
// are absent after track number After.
type TrackGap struct {
	After   int
	Missing int
}

// TechProfile summarizes an edition's audio-technical quality. The values
// feed selector prompts and operator tables; nothing in the grouping gate
// reads them.
type TechProfile struct {
	Codec        string
	FormatScore  int
	BitrateKbps  int
	SampleRateHz int
	BitDepth     int
	DurationSec  int
	DiscCount    int
}

// Edition is one physical folder holding one copy of one album. Editions are
// only comparable within a single artist.
type Edition struct {
	AlbumID          int64
	Artist           string
	Title            string
	TitleSource      TitleSource
	NormTitle        string
	CatalogNormTitle string
	Tracks           []Track
	Signature        string
	Tech             TechProfile
	Path             string
	SizeBytes        int64
	FileCount        int
	Valid            bool
	Broken           bool
	Gaps             []TrackGap
	ReleaseGroupID   string
	IDSource         IDSource
	Genre            string
	Year             int
	BoxSet           bool
}

// TrackCount returns the number of tracks the edition actually holds.
func (e *Edition) TrackCount() int {
	return len(e.Tracks)
}

// FirstTrackDuration returns the duration of the first track on the first
// disc, or 0 when the edition has no usable track.
func (e *Edition) FirstTrackDuration() int {
	best := Track{}
	for _, t := range e.Tracks {
		if t.Index <= 0 {
			continue
		}
		if best.Index == 0 || t.Disc < best.Disc || (t.Disc == best.Disc && t.Index < best.Index) {
			best = t
		}
	}
	return best.DurationSec
}

// TrackSignature digests an edition's track list into a comparison key. Two
// rips of the same release produce the same signature even when file names
// or tag casing differ.
func TrackSignature(tracks []Track) string {
	if len(tracks) == 0 {
		return ""
	}
	tuples := make([]string, 0, len(tracks))
	for _, t := range tracks {
		title := strings.ToLower(strings.TrimSpace(t.Title))
		tuples = append(tuples, fmt.Sprintf("%d:%d:%s:%d", t.Disc, t.Index, title, t.DurationSec))
	}
	sort.Strings(tuples)
	sum := sha1.Sum([]byte(strings.Join(tuples, "\n")))
	return hex.EncodeToString(sum[:])
}

// Codec families for format scoring. Higher base scores outrank lower ones
// regardless of bonuses so a lossy file never beats a lossless one.
const (
	formatScoreDSD      = 500
	formatScoreLossless = 400
	formatScoreLossy    = 100
	formatScoreUnknown  = 50
)

var losslessCodecs = map[string]bool{
	"flac": true, "alac": true, "ape": true, "wavpack": true,
	"wv": true, "wav": true, "aiff": true, "aif": true, "pcm": true,
	"shorten": true, "shn": true, "tta": true,
}

var lossyCodecs = map[string]bool{
	"mp3": true, "aac": true, "m4a": true, "ogg": true, "vorbis": true,
	"opus": true, "wma": true, "mpc": true, "mp2": true,
}

// FormatScore ranks a codec for display and selector prompts. Lossless
// families sit above lossy ones; extra bit depth and sample rate add small
// bonuses within a family.
func FormatScore(codec string, bitDepth, sampleRateHz int) int {
	name := strings.ToLower(strings.TrimSpace(codec))
	var score int
	switch {
	case name == "dsd" || strings.HasPrefix(name, "dsd"):
		score = formatScoreDSD
	case losslessCodecs[name]:
		score = formatScoreLossless
	case lossyCodecs[name]:
		score = formatScoreLossy
	case name == "":
		return 0
	default:
		score = formatScoreUnknown
	}
	if score >= formatScoreLossless {
		if bitDepth >= 24 {
			score += 50
		}
		if sampleRateHz > 48000 {
			score += 25
		}
	}
	return score
}
