package resolve

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/hbollon/go-edlib"

	"deadwax/internal/logging"
	"deadwax/internal/services"
	"deadwax/internal/services/llm"
	"deadwax/internal/services/musicbrainz"
	"deadwax/internal/services/websearch"
	"deadwax/internal/store"
)

const (
	// Candidate filtering before AI disambiguation.
	trackCountTolerance = 1
	// Looser gate for the title-only vote, which never saw track data.
	voteTrackTolerance = 2

	searchLimit          = 10
	maxCandidateFetch    = 5
	browseMatchThreshold = 0.90
	webSnippetLimit      = 5
)

// Method values identify which chain step produced a resolution. They are
// per-call provenance, never persisted with the cached release blob.
const (
	MethodEmbeddedID     = "embedded-id"
	MethodLookupCache    = "lookup-cache"
	MethodSearch         = "search"
	MethodVote           = "vote"
	MethodDisambiguation = "disambiguation"
	MethodWebSearch      = "web-search"
)

// TrackInfo is one track of a resolved release.
type TrackInfo struct {
	Disc     int    `json:"disc"`
	Position int    `json:"position"`
	Title    string `json:"title"`
	LengthMS int    `json:"length_ms"`
}

// Metadata is a resolved album identity. Secondary providers fill only
// Title, Year, and CoverURL; the canonical catalog fills everything.
type Metadata struct {
	ReleaseGroupID string      `json:"release_group_id,omitempty"`
	Title          string      `json:"title"`
	Artist         string      `json:"artist,omitempty"`
	Year           int         `json:"year,omitempty"`
	PrimaryType    string      `json:"primary_type,omitempty"`
	SecondaryTypes []string    `json:"secondary_types,omitempty"`
	TrackCount     int         `json:"track_count,omitempty"`
	Tracks         []TrackInfo `json:"tracks,omitempty"`
	CoverURL       string      `json:"cover_url,omitempty"`
	Source         string      `json:"source"`
	Method         string      `json:"-"`
	Confidence     float64     `json:"confidence"`
	Cached         bool        `json:"-"`
}

// Request describes one album needing resolution. Norm fields key the lookup
// cache; when empty they are derived from the display fields.
type Request struct {
	Artist     string
	Album      string
	RawAlbum   string
	ArtistNorm string
	AlbumNorm  string

	TrackCount  int
	TrackTitles []string
	HasCover    bool

	ReleaseGroupID string
	ReleaseID      string
}

// Stats tallies resolver outcomes for the progress surface.
type Stats struct {
	CacheHits     int64
	NegativeHits  int64
	Resolved      int64
	Unresolved    int64
	SecondaryHits int64
}

// Resolver walks the resolution chain for albums that lack a direct catalog
// id. Every outbound catalog call is dispatched through the queue; AI calls
// carry their own timeout and are not serialized.
type Resolver struct {
	queue     *Queue
	store     *store.Store
	catalog   musicbrainz.Searcher
	ai        *llm.Client
	web       *websearch.Client
	providers []Provider
	logger    *slog.Logger

	cacheHits     atomic.Int64
	negativeHits  atomic.Int64
	resolved      atomic.Int64
	unresolved    atomic.Int64
	secondaryHits atomic.Int64
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithAI enables the vote and disambiguation steps.
func WithAI(client *llm.Client) Option {
	return func(r *Resolver) { r.ai = client }
}

// WithWebSearch enables the snippet-augmented AI pass.
func WithWebSearch(client *websearch.Client) Option {
	return func(r *Resolver) { r.web = client }
}

// WithProviders sets the secondary catalog chain, tried in order.
func WithProviders(providers ...Provider) Option {
	return func(r *Resolver) { r.providers = providers }
}

// NewResolver wires the chain around a running queue.
func NewResolver(queue *Queue, st *store.Store, catalog musicbrainz.Searcher, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		queue:   queue,
		store:   st,
		catalog: catalog,
		logger:  logging.NewComponentLogger(logger, "resolve"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats snapshots resolver counters.
func (r *Resolver) Stats() Stats {
	return Stats{
		CacheHits:     r.cacheHits.Load(),
		NegativeHits:  r.negativeHits.Load(),
		Resolved:      r.resolved.Load(),
		Unresolved:    r.unresolved.Load(),
		SecondaryHits: r.secondaryHits.Load(),
	}
}

// QueueStats exposes the dispatcher counters alongside the resolver's own.
func (r *Resolver) QueueStats() QueueStats {
	return r.queue.Stats()
}

// Resolve runs the chain for one album. A nil metadata with nil error means
// the chain finished cleanly without a match; that outcome is cached
// negatively so repeat scans skip the network.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Metadata, error) {
	req.fillNorms()
	if req.Album == "" && req.ReleaseGroupID == "" && req.ReleaseID == "" {
		return nil, services.Wrap(services.ErrValidation, "resolve", "resolve", "album title or embedded id required", nil)
	}

	// Step 1: embedded identifier tags.
	if meta, err := r.fromEmbeddedID(ctx, req); meta != nil || err != nil {
		return meta, err
	}

	// Step 2: the (artist, album) lookup cache.
	lookup, err := r.store.Lookup(ctx, req.ArtistNorm, req.AlbumNorm)
	if err != nil {
		return nil, err
	}
	switch lookup.Status {
	case store.LookupHit:
		r.cacheHits.Add(1)
		meta, err := r.groupMetadata(ctx, lookup.ReleaseGroupID, req.TrackCount)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			meta.Method = MethodLookupCache
			return meta, nil
		}
		// Cached id no longer resolves; fall through to a fresh search.
	case store.LookupNotFound:
		r.negativeHits.Add(1)
		return nil, nil
	}

	// Step 3: live search ladder.
	cands, searchErr := r.searchCandidates(ctx, req)
	var lastErr error
	if searchErr != nil {
		lastErr = searchErr
	}

	if len(cands) == 1 {
		return r.acceptCandidate(ctx, req, cands[0])
	}

	// Step 4: title-only vote with a track-count sanity check.
	if len(cands) >= 2 && r.aiEnabled() {
		if idx := r.voteOnTitles(ctx, req, cands); idx >= 0 {
			meta, err := r.groupMetadata(ctx, cands[idx].ID, req.TrackCount)
			if err != nil {
				lastErr = err
			} else if meta != nil && trackCountOK(meta.TrackCount, req.TrackCount, voteTrackTolerance) {
				meta.Confidence = scoreConfidence(cands[idx].Score)
				meta.Method = MethodVote
				return r.accept(ctx, req, meta)
			} else if meta != nil {
				r.logger.Debug("vote rejected by track count",
					logging.String(logging.FieldAlbum, req.Album),
					logging.Int("local", req.TrackCount),
					logging.Int("candidate", meta.TrackCount))
			}
		}
	}

	// Step 5: full fetch, track-count filter, AI disambiguation.
	if len(cands) >= 2 {
		metas, err := r.fetchCandidates(ctx, req, cands)
		if err != nil {
			lastErr = err
		}
		filtered := filterByTrackCount(metas, req.TrackCount, trackCountTolerance)
		if len(filtered) == 0 {
			filtered = metas
		}
		switch {
		case len(filtered) == 1:
			filtered[0].Method = MethodSearch
			return r.accept(ctx, req, filtered[0])
		case len(filtered) >= 2 && r.aiEnabled():
			if meta := r.disambiguate(ctx, req, filtered, nil); meta != nil {
				meta.Method = MethodDisambiguation
				return r.accept(ctx, req, meta)
			}
			// Step 6: one more AI pass with web snippets.
			if r.web != nil {
				if meta := r.disambiguateWithWeb(ctx, req, filtered); meta != nil {
					meta.Method = MethodWebSearch
					return r.accept(ctx, req, meta)
				}
			}
		}
	}

	// Step 7: secondary catalogs, first match wins.
	for _, provider := range r.providers {
		outcome, err := r.lookupProvider(ctx, provider, req)
		if err != nil {
			lastErr = err
			r.logger.Debug("secondary provider failed",
				logging.String("provider", provider.Name()), logging.Error(err))
			continue
		}
		if outcome.Matched {
			r.secondaryHits.Add(1)
			info := outcome.Info
			info.Source = provider.Name()
			info.Confidence = outcome.Confidence
			r.resolved.Add(1)
			return &info, nil
		}
	}

	r.unresolved.Add(1)
	if lastErr != nil {
		// A step failed along the way, so the miss is not trustworthy
		// enough to cache negatively.
		return nil, lastErr
	}
	if err := r.store.SaveLookup(ctx, req.ArtistNorm, req.AlbumNorm, ""); err != nil {
		r.logger.Warn("negative cache write failed", logging.Error(err))
	}
	return nil, nil
}

// fromEmbeddedID short-circuits the chain for Picard-tagged files. A
// release-level id costs one extra hop to its group.
func (r *Resolver) fromEmbeddedID(ctx context.Context, req Request) (*Metadata, error) {
	rgid := strings.TrimSpace(req.ReleaseGroupID)
	if rgid == "" && strings.TrimSpace(req.ReleaseID) != "" {
		releaseID := strings.TrimSpace(req.ReleaseID)
		id, err := submit(ctx, r.queue, "release-group-of:"+releaseID, func(ctx context.Context) (string, error) {
			return r.catalog.ReleaseGroupIDForRelease(ctx, releaseID)
		})
		if err != nil {
			return nil, err
		}
		rgid = id
	}
	if rgid == "" {
		return nil, nil
	}
	meta, err := r.groupMetadata(ctx, rgid, req.TrackCount)
	if err != nil || meta == nil {
		return meta, err
	}
	meta.Confidence = 1.0
	meta.Method = MethodEmbeddedID
	return r.accept(ctx, req, meta)
}

// searchCandidates runs the search ladder: strict, relaxed, artist browse
// with fuzzy title match, then the raw untrimmed title.
func (r *Resolver) searchCandidates(ctx context.Context, req Request) ([]musicbrainz.ReleaseGroupResult, error) {
	key := req.ArtistNorm + "|" + req.AlbumNorm

	cands, err := submit(ctx, r.queue, "rg-search:"+key, func(ctx context.Context) ([]musicbrainz.ReleaseGroupResult, error) {
		return r.catalog.SearchReleaseGroups(ctx, req.Artist, req.Album, searchLimit)
	})
	if err != nil {
		return nil, err
	}
	if len(cands) > 0 {
		return cands, nil
	}

	cands, err = submit(ctx, r.queue, "rg-relaxed:"+key, func(ctx context.Context) ([]musicbrainz.ReleaseGroupResult, error) {
		return r.catalog.SearchReleaseGroupsRelaxed(ctx, req.Artist, req.Album, searchLimit)
	})
	if err != nil {
		return nil, err
	}
	if len(cands) > 0 {
		return cands, nil
	}

	browsed, err := submit(ctx, r.queue, "rg-browse:"+req.ArtistNorm, func(ctx context.Context) ([]musicbrainz.ReleaseGroupResult, error) {
		return r.catalog.BrowseArtistReleaseGroups(ctx, req.Artist)
	})
	if err != nil {
		return nil, err
	}
	if matched := fuzzyTitleMatches(browsed, req.Album); len(matched) > 0 {
		return matched, nil
	}

	if raw := strings.TrimSpace(req.RawAlbum); raw != "" && raw != req.Album {
		cands, err = submit(ctx, r.queue, "rg-search-raw:"+req.ArtistNorm+"|"+normalizeKey(raw), func(ctx context.Context) ([]musicbrainz.ReleaseGroupResult, error) {
			return r.catalog.SearchReleaseGroups(ctx, req.Artist, raw, searchLimit)
		})
		if err != nil {
			return nil, err
		}
		return cands, nil
	}
	return nil, nil
}

// fuzzyTitleMatches keeps browsed groups whose title is near enough to the
// local album title, with a synthetic score from the similarity.
func fuzzyTitleMatches(groups []musicbrainz.ReleaseGroupResult, album string) []musicbrainz.ReleaseGroupResult {
	want := normalizeKey(album)
	if want == "" {
		return nil
	}
	var matched []musicbrainz.ReleaseGroupResult
	for _, group := range groups {
		sim, err := edlib.StringsSimilarity(normalizeKey(group.Title), want, edlib.JaroWinkler)
		if err != nil || sim < browseMatchThreshold {
			continue
		}
		group.Score = int(sim * 100)
		matched = append(matched, group)
	}
	return matched
}

// fetchCandidates pulls full metadata for the leading candidates.
func (r *Resolver) fetchCandidates(ctx context.Context, req Request, cands []musicbrainz.ReleaseGroupResult) ([]*Metadata, error) {
	if len(cands) > maxCandidateFetch {
		cands = cands[:maxCandidateFetch]
	}
	var (
		metas   []*Metadata
		lastErr error
	)
	for _, cand := range cands {
		meta, err := r.groupMetadata(ctx, cand.ID, req.TrackCount)
		if err != nil {
			lastErr = err
			continue
		}
		if meta == nil {
			continue
		}
		meta.Confidence = scoreConfidence(cand.Score)
		metas = append(metas, meta)
	}
	return metas, lastErr
}

// groupMetadata builds Metadata for a release group, serving from the
// release-info cache when possible. Returns (nil, nil) for a dangling id.
func (r *Resolver) groupMetadata(ctx context.Context, rgid string, localTracks int) (*Metadata, error) {
	if blob, ok, err := r.store.ReleaseInfo(ctx, rgid); err != nil {
		return nil, err
	} else if ok {
		var meta Metadata
		if err := json.Unmarshal([]byte(blob), &meta); err == nil && meta.ReleaseGroupID == rgid {
			meta.Cached = true
			r.cacheHits.Add(1)
			return &meta, nil
		}
		r.logger.Warn("release cache blob unreadable", logging.String("release_group", rgid))
	}

	group, err := submit(ctx, r.queue, "release-group:"+rgid, func(ctx context.Context) (*musicbrainz.ReleaseGroupResult, error) {
		return r.catalog.ReleaseGroup(ctx, rgid)
	})
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, nil
	}
	releases, err := submit(ctx, r.queue, "releases:"+rgid, func(ctx context.Context) ([]musicbrainz.Release, error) {
		return r.catalog.ReleasesForGroup(ctx, rgid)
	})
	if err != nil {
		return nil, err
	}

	meta := &Metadata{
		ReleaseGroupID: rgid,
		Title:          group.Title,
		Artist:         group.Artist(),
		Year:           group.Year(),
		PrimaryType:    group.PrimaryType,
		SecondaryTypes: group.SecondaryTypes,
		Source:         "musicbrainz",
	}
	if release := pickRelease(releases, localTracks); release != nil {
		meta.TrackCount = release.TrackCount()
		meta.Tracks = flattenTracks(release)
		if meta.Year == 0 {
			meta.Year = release.Year()
		}
	}

	if blob, err := json.Marshal(meta); err == nil {
		if err := r.store.SaveReleaseInfo(ctx, rgid, string(blob)); err != nil {
			r.logger.Warn("release cache write failed", logging.Error(err))
		}
	}
	return meta, nil
}

// pickRelease chooses the release whose track count sits closest to the
// local edition, preferring official status on ties.
func pickRelease(releases []musicbrainz.Release, localTracks int) *musicbrainz.Release {
	var best *musicbrainz.Release
	bestGap := 0
	for i := range releases {
		release := &releases[i]
		gap := release.TrackCount() - localTracks
		if gap < 0 {
			gap = -gap
		}
		if localTracks <= 0 {
			gap = 0
		}
		if best == nil || gap < bestGap ||
			(gap == bestGap && statusRank(release.Status) < statusRank(best.Status)) {
			best = release
			bestGap = gap
		}
	}
	return best
}

func statusRank(status string) int {
	if strings.EqualFold(status, "Official") {
		return 0
	}
	return 1
}

func flattenTracks(release *musicbrainz.Release) []TrackInfo {
	var tracks []TrackInfo
	for discIdx, medium := range release.Media {
		for _, track := range medium.Tracks {
			tracks = append(tracks, TrackInfo{
				Disc:     discIdx + 1,
				Position: track.Position,
				Title:    track.Title,
				LengthMS: track.LengthMS,
			})
		}
	}
	return tracks
}

// acceptCandidate fetches and accepts a lone search hit.
func (r *Resolver) acceptCandidate(ctx context.Context, req Request, cand musicbrainz.ReleaseGroupResult) (*Metadata, error) {
	meta, err := r.groupMetadata(ctx, cand.ID, req.TrackCount)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		r.unresolved.Add(1)
		return nil, nil
	}
	meta.Confidence = scoreConfidence(cand.Score)
	meta.Method = MethodSearch
	return r.accept(ctx, req, meta)
}

// accept caches a positive outcome under both cache keys and tallies it.
func (r *Resolver) accept(ctx context.Context, req Request, meta *Metadata) (*Metadata, error) {
	if meta.ReleaseGroupID != "" {
		if err := r.store.SaveLookup(ctx, req.ArtistNorm, req.AlbumNorm, meta.ReleaseGroupID); err != nil {
			r.logger.Warn("lookup cache write failed", logging.Error(err))
		}
	}
	r.resolved.Add(1)
	return meta, nil
}

func (r *Resolver) lookupProvider(ctx context.Context, provider Provider, req Request) (Outcome, error) {
	key := provider.Name() + ":" + req.ArtistNorm + "|" + req.AlbumNorm
	return submit(ctx, r.queue, key, func(ctx context.Context) (Outcome, error) {
		return provider.Lookup(ctx, req.Artist, req.Album)
	})
}

func (r *Resolver) aiEnabled() bool {
	return r.ai != nil && r.ai.Configured()
}

func (req *Request) fillNorms() {
	if req.ArtistNorm == "" {
		req.ArtistNorm = normalizeKey(req.Artist)
	}
	if req.AlbumNorm == "" {
		req.AlbumNorm = normalizeKey(req.Album)
	}
}

// normalizeKey is the light cache-key normalization: lowercase and collapsed
// whitespace. The grouping engine owns the heavier title pipeline.
func normalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func trackCountOK(candidate, local, tolerance int) bool {
	if local <= 0 || candidate <= 0 {
		return true
	}
	gap := candidate - local
	if gap < 0 {
		gap = -gap
	}
	return gap <= tolerance
}

func filterByTrackCount(metas []*Metadata, local, tolerance int) []*Metadata {
	if local <= 0 {
		return metas
	}
	var kept []*Metadata
	for _, meta := range metas {
		if meta.TrackCount > 0 && trackCountOK(meta.TrackCount, local, tolerance) {
			kept = append(kept, meta)
		}
	}
	return kept
}

func scoreConfidence(score int) float64 {
	switch {
	case score <= 0:
		return 0.5
	case score > 100:
		return 1.0
	default:
		return float64(score) / 100
	}
}
