package dedupe

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"deadwax/internal/config"
	"deadwax/internal/logging"
)

const (
	defaultGapThreshold = 2
	defaultMissingPct   = 0.2
	defaultClassicalTol = 10
)

// Engine groups one artist's editions into confirmed duplicate candidates.
// All methods are safe for concurrent use; the engine holds no per-scan
// state.
type Engine struct {
	gapThreshold int
	missingPct   float64
	classicalTol int
	logger       *slog.Logger
}

// NewEngine builds a grouping engine from the scan thresholds in cfg.
func NewEngine(cfg *config.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Engine{
		gapThreshold: cfg.Scan.GapThreshold,
		missingPct:   cfg.Scan.MissingTrackPct,
		classicalTol: cfg.Scan.ClassicalDurationTolerance,
		logger:       logging.NewComponentLogger(logger, "dedupe"),
	}
	if e.gapThreshold <= 0 {
		e.gapThreshold = defaultGapThreshold
	}
	if e.missingPct <= 0 {
		e.missingPct = defaultMissingPct
	}
	if e.classicalTol <= 0 {
		e.classicalTol = defaultClassicalTol
	}
	return e
}

// CandidateGroup is a confirmed set of editions suspected to be copies of one
// album. SameFolder groups point at a single physical path and need catalog
// cleanup rather than file moves.
type CandidateGroup struct {
	Key        string
	Artist     string
	Editions   []*Edition
	GateRule   string
	SameFolder bool
}

// Group buckets an artist's valid editions by normalized title and returns
// the candidates that survive the confidence gate. Box-set discs are left
// out entirely; same-folder duplicates bypass the gate.
func (e *Engine) Group(artist string, editions []*Edition) []CandidateGroup {
	usable := make([]*Edition, 0, len(editions))
	for _, ed := range editions {
		if ed == nil || !ed.Valid {
			continue
		}
		if ed.BoxSet {
			e.logger.Debug("box-set disc excluded from grouping",
				logging.String(logging.FieldArtist, artist),
				logging.Int64(logging.FieldAlbumID, ed.AlbumID),
				logging.String("title", ed.Title))
			continue
		}
		usable = append(usable, ed)
	}

	groups, grouped := e.sameFolderGroups(artist, usable)

	buckets := make(map[string][]*Edition)
	for _, ed := range usable {
		if grouped[ed.AlbumID] {
			continue
		}
		key := ed.NormTitle
		if key == "" {
			key = NormalizeTitle(ed.Title)
		}
		buckets[key] = append(buckets[key], ed)
	}

	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		bucket := buckets[key]
		if len(bucket) < 2 {
			continue
		}
		for _, candidate := range e.splitAmbiguous(key, bucket) {
			if len(candidate.editions) < 2 {
				continue
			}
			rule, ok := gateRule(candidate.editions)
			if !ok {
				e.logger.Info("duplicate candidate rejected by confidence gate",
					logging.String(logging.FieldArtist, artist),
					logging.String("key", candidate.key),
					logging.Int("editions", len(candidate.editions)))
				continue
			}
			sortEditions(candidate.editions)
			groups = append(groups, CandidateGroup{
				Key:      candidate.key,
				Artist:   artist,
				Editions: candidate.editions,
				GateRule: rule,
			})
		}
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}

// sameFolderGroups finds distinct catalog entries that resolve to one
// physical path. No file-level ambiguity exists, so these skip the gate.
func (e *Engine) sameFolderGroups(artist string, editions []*Edition) ([]CandidateGroup, map[int64]bool) {
	byPath := make(map[string][]*Edition)
	for _, ed := range editions {
		if ed.Path == "" {
			continue
		}
		path := filepath.Clean(ed.Path)
		byPath[path] = append(byPath[path], ed)
	}

	paths := make([]string, 0, len(byPath))
	for path := range byPath {
		if len(byPath[path]) >= 2 {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)

	var groups []CandidateGroup
	grouped := make(map[int64]bool)
	for _, path := range paths {
		members := byPath[path]
		sortEditions(members)
		for _, ed := range members {
			grouped[ed.AlbumID] = true
		}
		e.logger.Info("same-folder duplicate detected",
			logging.String(logging.FieldArtist, artist),
			logging.String("path", path),
			logging.Int("entries", len(members)))
		groups = append(groups, CandidateGroup{
			Key:        "same-folder:" + path,
			Artist:     artist,
			Editions:   members,
			GateRule:   "same-folder",
			SameFolder: true,
		})
	}
	return groups, grouped
}

type splitCandidate struct {
	key      string
	editions []*Edition
}

// splitAmbiguous subdivides classical buckets by (release year, first-track
// duration) so distinct recordings sharing a work title stay apart. Other
// buckets pass through unchanged.
func (e *Engine) splitAmbiguous(key string, bucket []*Edition) []splitCandidate {
	if !allClassical(bucket) {
		return []splitCandidate{{key: key, editions: bucket}}
	}

	byYear := make(map[int][]*Edition)
	for _, ed := range bucket {
		byYear[ed.Year] = append(byYear[ed.Year], ed)
	}
	years := make([]int, 0, len(byYear))
	for year := range byYear {
		years = append(years, year)
	}
	sort.Ints(years)

	var out []splitCandidate
	for _, year := range years {
		eds := byYear[year]
		sort.Slice(eds, func(i, j int) bool {
			a, b := eds[i].FirstTrackDuration(), eds[j].FirstTrackDuration()
			if a != b {
				return a < b
			}
			return eds[i].AlbumID < eds[j].AlbumID
		})
		start := 0
		for i := 1; i <= len(eds); i++ {
			if i < len(eds) && eds[i].FirstTrackDuration()-eds[start].FirstTrackDuration() <= e.classicalTol {
				continue
			}
			cluster := eds[start:i]
			out = append(out, splitCandidate{
				key:      fmt.Sprintf("%s|%d|%d", key, year, cluster[0].FirstTrackDuration()),
				editions: cluster,
			})
			start = i
		}
	}
	return out
}

// allClassical reports whether every edition in the bucket carries the
// disambiguation-sensitive genre.
func allClassical(editions []*Edition) bool {
	for _, ed := range editions {
		if !strings.Contains(strings.ToLower(ed.Genre), "classical") {
			return false
		}
	}
	return len(editions) > 0
}

// gateRule returns the name of the first confidence rule the candidate set
// satisfies. Rules are pure functions of the set, deterministic and
// order-independent.
func gateRule(editions []*Edition) (string, bool) {
	if countHighConfidenceTitles(editions) >= 2 {
		return "title-provenance", true
	}
	if allSameNonEmpty(editions, func(ed *Edition) string { return ed.Signature }) {
		return "track-signature", true
	}
	if allSameNonEmpty(editions, func(ed *Edition) string { return ed.ReleaseGroupID }) {
		return "release-group-id", true
	}
	if sameCoreTitle(editions) {
		return "core-title", true
	}
	if allSameNonEmpty(editions, func(ed *Edition) string { return ed.CatalogNormTitle }) {
		return "catalog-title", true
	}
	return "", false
}

func countHighConfidenceTitles(editions []*Edition) int {
	n := 0
	for _, ed := range editions {
		if ed.TitleSource.HighConfidence() {
			n++
		}
	}
	return n
}

func allSameNonEmpty(editions []*Edition, field func(*Edition) string) bool {
	if len(editions) == 0 {
		return false
	}
	first := field(editions[0])
	if first == "" {
		return false
	}
	for _, ed := range editions[1:] {
		if field(ed) != first {
			return false
		}
	}
	return true
}

// sameCoreTitle checks title agreement after stripping every parenthetical
// segment. Placeholder titles carry no information, so their presence fails
// the rule outright.
func sameCoreTitle(editions []*Edition) bool {
	core := ""
	for _, ed := range editions {
		if ed.TitleSource == TitleFromPlaceholder {
			return false
		}
		c := CoreTitle(ed.Title)
		if core == "" {
			core = c
		} else if c != core {
			return false
		}
	}
	return core != ""
}

// sortEditions orders a group deterministically for stable keys, prompts,
// and test output.
func sortEditions(editions []*Edition) {
	sort.Slice(editions, func(i, j int) bool { return editions[i].AlbumID < editions[j].AlbumID })
}
