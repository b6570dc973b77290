package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"deadwax/internal/catalog"
	"deadwax/internal/config"
	"deadwax/internal/dedupe"
	"deadwax/internal/logging"
	"deadwax/internal/probe"
	"deadwax/internal/remediation"
	"deadwax/internal/resolve"
	"deadwax/internal/selector"
	"deadwax/internal/services"
	"deadwax/internal/store"
	"deadwax/internal/tags"
)

const tagSampleFiles = 2

// artistScanner bundles everything one worker needs to take a merged artist
// from catalog rows to settled duplicate groups.
type artistScanner struct {
	cfg      *config.Config
	store    *store.Store
	catalog  *catalog.Catalog
	prober   *probe.Prober
	resolver *resolve.Resolver
	engine   *dedupe.Engine
	inline   *selector.Selector
	executor *remediation.Executor
	session  *Session
	logger   *slog.Logger
}

// artistOutcome is what one worker hands back for one merged artist. Groups
// the inline selector could not settle wait in pending for the AI batch.
type artistOutcome struct {
	artist        string
	validEditions int
	settled       []store.DuplicateGroup
	pending       []dedupe.CandidateGroup
	err           error
}

// scanArtist walks every album under every merged catalog id, builds
// editions, quarantines the invalid ones, records broken albums, and runs
// the grouping engine plus the inline selector over what remains.
func (w *artistScanner) scanArtist(ctx context.Context, group dedupe.ArtistGroup) (out artistOutcome) {
	out.artist = group.Name
	ctx = services.WithArtist(ctx, group.Name)
	logger := logging.WithContext(ctx, w.logger)
	defer func() {
		if r := recover(); r != nil {
			out.err = services.Wrap(nil, "scanner", "artist",
				fmt.Sprintf("worker panic: %v", r), nil)
		}
	}()

	var editions []*dedupe.Edition
	for _, artistID := range group.IDs {
		albums, err := w.catalog.AlbumsForArtist(ctx, artistID)
		if err != nil {
			out.err = err
			return out
		}
		for _, album := range albums {
			if err := w.session.CheckpointAlbum(ctx); err != nil {
				out.err = err
				return out
			}
			w.session.startAlbum(group.Name, album.Title)

			ed, err := w.buildEdition(ctx, group.Name, album)
			if err != nil {
				if ctx.Err() != nil {
					out.err = err
					return out
				}
				w.session.addError()
				logger.Warn("album scan failed",
					logging.String(logging.FieldAlbum, album.Title),
					logging.Error(err))
				continue
			}
			w.session.albumScanned()
			if !ed.Valid {
				w.purge(ctx, ed)
				continue
			}
			editions = append(editions, ed)
		}
	}
	out.validEditions = len(editions)

	var broken []store.BrokenAlbum
	for _, ed := range editions {
		w.engine.EvaluateBroken(ed)
		if ed.Broken {
			broken = append(broken, brokenRecord(group.Name, ed))
		}
	}
	if err := w.store.ReplaceArtistBroken(ctx, group.Name, broken); err != nil {
		if ctx.Err() == nil {
			w.session.addError()
			logger.Warn("persist broken albums failed", logging.Error(err))
		}
	} else {
		w.session.addBroken(len(broken))
	}

	for _, cg := range w.engine.Group(group.Name, editions) {
		dec, err := w.inline.ChooseBest(ctx, cg)
		if err == nil {
			out.settled = append(out.settled, selector.GroupRecord(w.session.id, cg, dec))
			continue
		}
		if services.ClassifyCode(err) == services.CodeNoWorkingAIModel {
			out.pending = append(out.pending, cg)
			continue
		}
		if ctx.Err() == nil {
			w.session.addError()
			logger.Warn("duplicate group rejected",
				logging.String(logging.FieldGroupKey, cg.Key),
				logging.Error(err))
		}
	}
	return out
}

// purge hands an edition with no playable audio to the quarantine executor.
// A missing source folder is not an error, the mover reports it as a no-op.
func (w *artistScanner) purge(ctx context.Context, ed *dedupe.Edition) {
	logger := logging.WithContext(ctx, w.logger)
	if ed.Path == "" {
		logger.Debug("invalid edition has no local path, skipped",
			logging.String(logging.FieldAlbum, ed.Title))
		return
	}
	move, err := w.executor.Purge(ctx, w.session.id, ed)
	if err != nil {
		if ctx.Err() == nil {
			w.session.addError()
			logger.Warn("quarantine failed",
				logging.String(logging.FieldAlbum, ed.Title),
				logging.Error(err))
		}
		return
	}
	if move != nil {
		w.session.addMove(move.SizeBytes)
		logger.Info("invalid edition quarantined",
			logging.String(logging.FieldAlbum, ed.Title),
			logging.String("dest", move.DestPath))
	}
}

// buildEdition turns one catalog album into an edition: tracks and stats
// from the catalog, title and ids from tags, technical profile from the
// prober, release group from the resolver. An edition with no files or a
// failed probe comes back Valid=false and is never resolved.
func (w *artistScanner) buildEdition(ctx context.Context, artist string, album catalog.Album) (*dedupe.Edition, error) {
	tracks, err := w.catalog.TracksForAlbum(ctx, album.ID)
	if err != nil {
		return nil, err
	}
	stats, err := w.catalog.StatsForAlbum(ctx, album.ID)
	if err != nil {
		return nil, err
	}

	localPath := w.cfg.MapCatalogPath(album.Path)
	list := make([]dedupe.Track, 0, len(tracks))
	audio := make([]string, 0, len(tracks))
	totalDur := 0
	discs := make(map[int]struct{})
	for _, t := range tracks {
		disc := t.Disc
		if disc <= 0 {
			disc = 1
		}
		discs[disc] = struct{}{}
		dur := int(math.Round(t.DurationSec))
		totalDur += dur
		list = append(list, dedupe.Track{
			Disc:        disc,
			Index:       t.Index,
			Title:       t.Title,
			DurationSec: dur,
			Path:        t.Path,
		})
		if t.Path != "" {
			audio = append(audio, w.cfg.MapCatalogPath(t.Path))
		}
	}

	ed := &dedupe.Edition{
		AlbumID:   album.ID,
		Artist:    artist,
		Tracks:    list,
		Signature: dedupe.TrackSignature(list),
		Path:      localPath,
		SizeBytes: stats.SizeBytes,
		FileCount: stats.FileCount,
		Genre:     album.Genre,
		Year:      album.Year,
	}
	if album.Title != "" {
		ed.CatalogNormTitle = dedupe.NormalizeTitle(album.Title)
	}

	if ed.FileCount == 0 {
		ed.Title, ed.TitleSource = editionTitle(album, tags.FileTag{}, localPath)
		ed.NormTitle = dedupe.NormalizeTitle(ed.Title)
		return ed, nil
	}

	tag, _ := tags.ReadAlbum(audio, tagSampleFiles)
	ed.Title, ed.TitleSource = editionTitle(album, tag, localPath)
	ed.NormTitle = dedupe.NormalizeTitle(ed.Title)
	if ed.Year == 0 {
		ed.Year = tag.Year
	}

	tech, err := w.prober.Album(ctx, audio)
	if err != nil {
		return nil, err
	}
	if !tech.Valid {
		return ed, nil
	}
	ed.Tech = dedupe.TechProfile{
		Codec:        tech.Codec,
		FormatScore:  dedupe.FormatScore(tech.Codec, tech.BitDepth, tech.SampleRateHz),
		BitrateKbps:  tech.BitrateKbps,
		SampleRateHz: tech.SampleRateHz,
		BitDepth:     tech.BitDepth,
		DurationSec:  totalDur,
		DiscCount:    len(discs),
	}
	ed.Valid = true

	w.resolveEdition(ctx, ed, album, tag)
	return ed, nil
}

// resolveEdition attaches a release-group id to a valid edition. Resolution
// failures degrade to whatever embedded or catalog id the edition already
// carries; they never invalidate the edition.
func (w *artistScanner) resolveEdition(ctx context.Context, ed *dedupe.Edition, album catalog.Album, tag tags.FileTag) {
	req := resolve.Request{
		Artist:      ed.Artist,
		Album:       searchTitle(ed.Title),
		RawAlbum:    ed.Title,
		TrackCount:  ed.TrackCount(),
		TrackTitles: trackTitles(ed.Tracks),
		HasCover:    tag.HasCover,
	}
	source := dedupe.IDFromNone
	if catalogID := strings.TrimSpace(album.ReleaseGroupID); catalogID != "" {
		req.ReleaseGroupID = catalogID
		source = dedupe.IDFromCatalog
	} else if tag.ReleaseGroupID != "" || tag.ReleaseID != "" {
		req.ReleaseGroupID = tag.ReleaseGroupID
		req.ReleaseID = tag.ReleaseID
		source = dedupe.IDFromTag
	}

	meta, err := w.resolver.Resolve(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			w.session.addError()
			logging.WithContext(ctx, w.logger).Warn("metadata resolution failed",
				logging.String(logging.FieldAlbum, ed.Title),
				logging.Error(err))
		}
	}
	if meta == nil {
		if source != dedupe.IDFromNone && req.ReleaseGroupID != "" {
			ed.ReleaseGroupID = req.ReleaseGroupID
			ed.IDSource = source
		}
		return
	}

	ed.ReleaseGroupID = meta.ReleaseGroupID
	switch meta.Method {
	case resolve.MethodEmbeddedID:
		// keep the catalog or tag provenance the id came in with
	case resolve.MethodLookupCache:
		source = dedupe.IDFromCache
	case resolve.MethodSearch:
		source = dedupe.IDFromSearch
	case resolve.MethodVote:
		source = dedupe.IDFromVote
	case resolve.MethodDisambiguation, resolve.MethodWebSearch:
		source = dedupe.IDFromDisambiguation
	}
	if ed.ReleaseGroupID == "" {
		source = dedupe.IDFromNone
	}
	ed.IDSource = source
	if ed.Year == 0 && meta.Year > 0 {
		ed.Year = meta.Year
	}
	ed.BoxSet = isBoxSet(meta.SecondaryTypes)
}

var placeholderTitles = map[string]struct{}{
	"unknown album": {},
	"untitled":      {},
	"unknown":       {},
}

// editionTitle picks the edition's display title in trust order: catalog
// row, embedded tags, folder name, then a synthetic placeholder.
func editionTitle(album catalog.Album, tag tags.FileTag, localPath string) (string, dedupe.TitleSource) {
	if title := strings.TrimSpace(album.Title); title != "" {
		if _, placeholder := placeholderTitles[strings.ToLower(title)]; !placeholder {
			return title, dedupe.TitleFromCatalog
		}
	}
	if title := strings.TrimSpace(tag.Album); title != "" {
		return title, dedupe.TitleFromTag
	}
	if base := filepath.Base(localPath); base != "" && base != "." && base != string(filepath.Separator) {
		return base, dedupe.TitleFromFolder
	}
	return fmt.Sprintf("Album %d", album.ID), dedupe.TitleFromPlaceholder
}

var trailingBracketRe = regexp.MustCompile(`\s*[(\[{][^()\[\]{}]*[)\]}]\s*$`)

// searchTitle strips trailing bracketed qualifiers ("(Remaster)", "[Deluxe
// Edition]") so catalog searches match the canonical release title. A title
// that is nothing but brackets stays as is.
func searchTitle(title string) string {
	trimmed := strings.TrimSpace(title)
	stripped := trimmed
	for {
		next := trailingBracketRe.ReplaceAllString(stripped, "")
		if next == stripped {
			break
		}
		stripped = strings.TrimSpace(next)
	}
	if stripped == "" {
		return trimmed
	}
	return stripped
}

func trackTitles(tracks []dedupe.Track) []string {
	titles := make([]string, 0, len(tracks))
	for _, t := range tracks {
		if t.Title != "" {
			titles = append(titles, t.Title)
		}
	}
	return titles
}

// isBoxSet reports whether the release group's secondary types mark it as a
// box set, which excludes it from duplicate grouping.
func isBoxSet(types []string) bool {
	for _, t := range types {
		if strings.EqualFold(strings.TrimSpace(t), "box set") {
			return true
		}
	}
	return false
}

// brokenRecord converts a gap-carrying edition into its persisted form.
func brokenRecord(artist string, ed *dedupe.Edition) store.BrokenAlbum {
	actual := 0
	for _, t := range ed.Tracks {
		if t.Index > 0 {
			actual++
		}
	}
	gaps := make([]store.TrackGap, 0, len(ed.Gaps))
	for _, g := range ed.Gaps {
		gaps = append(gaps, store.TrackGap{After: g.After, Missing: g.Missing})
	}
	return store.BrokenAlbum{
		Artist:         artist,
		AlbumID:        ed.AlbumID,
		Title:          ed.Title,
		Path:           ed.Path,
		ExpectedTracks: dedupe.ExpectedTracks(actual, ed.Gaps),
		ActualTracks:   actual,
		Gaps:           gaps,
		DetectedAt:     time.Now().UTC(),
	}
}
