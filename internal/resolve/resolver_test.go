package resolve_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"deadwax/internal/config"
	"deadwax/internal/logging"
	"deadwax/internal/resolve"
	"deadwax/internal/services/llm"
	"deadwax/internal/services/musicbrainz"
	"deadwax/internal/store"
	"deadwax/internal/testsupport"
)

// fakeCatalog scripts the canonical catalog. Every call is recorded so tests
// can assert what the chain actually reached for.
type fakeCatalog struct {
	mu    sync.Mutex
	calls []string

	strict  map[string][]musicbrainz.ReleaseGroupResult
	relaxed map[string][]musicbrainz.ReleaseGroupResult
	browsed []musicbrainz.ReleaseGroupResult

	groups         map[string]*musicbrainz.ReleaseGroupResult
	releases       map[string][]musicbrainz.Release
	releaseToGroup map[string]string
	covers         map[string]string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		strict:         make(map[string][]musicbrainz.ReleaseGroupResult),
		relaxed:        make(map[string][]musicbrainz.ReleaseGroupResult),
		groups:         make(map[string]*musicbrainz.ReleaseGroupResult),
		releases:       make(map[string][]musicbrainz.Release),
		releaseToGroup: make(map[string]string),
		covers:         make(map[string]string),
	}
}

func (f *fakeCatalog) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeCatalog) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCatalog) SearchReleaseGroups(ctx context.Context, artist, album string, limit int) ([]musicbrainz.ReleaseGroupResult, error) {
	f.record("search:" + album)
	return f.strict[album], nil
}

func (f *fakeCatalog) SearchReleaseGroupsRelaxed(ctx context.Context, artist, album string, limit int) ([]musicbrainz.ReleaseGroupResult, error) {
	f.record("relaxed:" + album)
	return f.relaxed[album], nil
}

func (f *fakeCatalog) BrowseArtistReleaseGroups(ctx context.Context, artistName string) ([]musicbrainz.ReleaseGroupResult, error) {
	f.record("browse:" + artistName)
	return f.browsed, nil
}

func (f *fakeCatalog) ReleaseGroup(ctx context.Context, releaseGroupID string) (*musicbrainz.ReleaseGroupResult, error) {
	f.record("group:" + releaseGroupID)
	return f.groups[releaseGroupID], nil
}

func (f *fakeCatalog) ReleasesForGroup(ctx context.Context, releaseGroupID string) ([]musicbrainz.Release, error) {
	f.record("releases:" + releaseGroupID)
	return f.releases[releaseGroupID], nil
}

func (f *fakeCatalog) ReleaseGroupIDForRelease(ctx context.Context, releaseID string) (string, error) {
	f.record("group-of:" + releaseID)
	return f.releaseToGroup[releaseID], nil
}

func (f *fakeCatalog) CoverArtURL(ctx context.Context, releaseGroupID string) (string, error) {
	f.record("cover:" + releaseGroupID)
	return f.covers[releaseGroupID], nil
}

var _ musicbrainz.Searcher = (*fakeCatalog)(nil)

// addGroup scripts a release group with one release of trackCount tracks.
func (f *fakeCatalog) addGroup(rgid, title, date string, trackCount int) {
	f.groups[rgid] = &musicbrainz.ReleaseGroupResult{
		ID:               rgid,
		Title:            title,
		PrimaryType:      "Album",
		FirstReleaseDate: date,
	}
	f.releases[rgid] = []musicbrainz.Release{{
		ID:     "rel-" + rgid,
		Title:  title,
		Status: "Official",
		Date:   date,
		Media:  []musicbrainz.Medium{{Format: "CD", TrackCount: trackCount}},
	}}
}

type resolverEnv struct {
	cfg     *config.Config
	store   *store.Store
	catalog *fakeCatalog
	queue   *resolve.Queue
}

func newResolverEnv(t *testing.T) *resolverEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Resolve.RateIntervalMS = 1
	env := &resolverEnv{
		cfg:     cfg,
		store:   testsupport.MustOpenStore(t, cfg),
		catalog: newFakeCatalog(),
		queue:   resolve.NewQueue(cfg, logging.NewNop()),
	}
	t.Cleanup(env.queue.Close)
	return env
}

func (env *resolverEnv) resolver(opts ...resolve.Option) *resolve.Resolver {
	return resolve.NewResolver(env.queue, env.store, env.catalog, logging.NewNop(), opts...)
}

// scriptedAI serves canned completion payloads in order and counts requests.
func scriptedAI(t *testing.T, replies ...string) (*llm.Client, *int) {
	t.Helper()
	count := new(int)
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reply := replies[len(replies)-1]
		if *count < len(replies) {
			reply = replies[*count]
		}
		*count++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%q}}]}`, reply)
	}))
	t.Cleanup(server.Close)
	return llm.NewClient(llm.Config{APIKey: "test-key", BaseURL: server.URL, Model: "test-model"}), count
}

func TestResolveEmbeddedGroupID(t *testing.T) {
	env := newResolverEnv(t)
	env.catalog.addGroup("rg-1", "Geogaddi", "2002-02-18", 23)
	r := env.resolver()

	meta, err := r.Resolve(context.Background(), resolve.Request{
		Artist:         "Boards of Canada",
		Album:          "Geogaddi",
		TrackCount:     23,
		ReleaseGroupID: "rg-1",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta == nil {
		t.Fatal("expected metadata")
	}
	if meta.ReleaseGroupID != "rg-1" || meta.Title != "Geogaddi" || meta.Year != 2002 {
		t.Errorf("meta = %+v", meta)
	}
	if meta.TrackCount != 23 {
		t.Errorf("TrackCount = %d", meta.TrackCount)
	}
	if meta.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0 for an embedded id", meta.Confidence)
	}

	lookup, err := env.store.Lookup(context.Background(), "boards of canada", "geogaddi")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if lookup.Status != store.LookupHit || lookup.ReleaseGroupID != "rg-1" {
		t.Errorf("lookup = %+v, want cached hit", lookup)
	}
	if _, ok, _ := env.store.ReleaseInfo(context.Background(), "rg-1"); !ok {
		t.Error("release info not cached")
	}
}

func TestResolveEmbeddedReleaseIDHop(t *testing.T) {
	env := newResolverEnv(t)
	env.catalog.releaseToGroup["rel-77"] = "rg-2"
	env.catalog.addGroup("rg-2", "Tomorrow's Harvest", "2013-06-05", 17)
	r := env.resolver()

	meta, err := r.Resolve(context.Background(), resolve.Request{
		Artist:    "Boards of Canada",
		Album:     "Tomorrow's Harvest",
		ReleaseID: "rel-77",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta == nil || meta.ReleaseGroupID != "rg-2" {
		t.Fatalf("meta = %+v, want rg-2 via the release hop", meta)
	}
	calls := env.catalog.callLog()
	if len(calls) == 0 || calls[0] != "group-of:rel-77" {
		t.Errorf("calls = %v, want the release hop first", calls)
	}
}

func TestResolveLookupCacheHitSkipsNetwork(t *testing.T) {
	env := newResolverEnv(t)
	ctx := context.Background()
	if err := env.store.SaveLookup(ctx, "low", "double negative", "rg-dn"); err != nil {
		t.Fatal(err)
	}
	blob := `{"release_group_id":"rg-dn","title":"Double Negative","year":2018,"track_count":11,"source":"musicbrainz","confidence":0.97}`
	if err := env.store.SaveReleaseInfo(ctx, "rg-dn", blob); err != nil {
		t.Fatal(err)
	}
	r := env.resolver()

	meta, err := r.Resolve(ctx, resolve.Request{Artist: "Low", Album: "Double Negative", TrackCount: 11})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta == nil || meta.Title != "Double Negative" || !meta.Cached {
		t.Fatalf("meta = %+v, want cached metadata", meta)
	}
	if calls := env.catalog.callLog(); len(calls) != 0 {
		t.Errorf("catalog calls = %v, want none on a warm cache", calls)
	}
	if stats := r.Stats(); stats.CacheHits < 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestResolveNegativeCacheShortCircuits(t *testing.T) {
	env := newResolverEnv(t)
	ctx := context.Background()
	if err := env.store.SaveLookup(ctx, "nobody", "nothing", ""); err != nil {
		t.Fatal(err)
	}
	r := env.resolver()

	meta, err := r.Resolve(ctx, resolve.Request{Artist: "Nobody", Album: "Nothing"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta != nil {
		t.Fatalf("meta = %+v, want nil", meta)
	}
	if calls := env.catalog.callLog(); len(calls) != 0 {
		t.Errorf("catalog calls = %v, want none", calls)
	}
	if stats := r.Stats(); stats.NegativeHits != 1 {
		t.Errorf("NegativeHits = %d", stats.NegativeHits)
	}
}

func TestResolveSingleSearchHit(t *testing.T) {
	env := newResolverEnv(t)
	env.catalog.strict["Geogaddi"] = []musicbrainz.ReleaseGroupResult{
		{ID: "rg-geo", Title: "Geogaddi", Score: 97},
	}
	env.catalog.addGroup("rg-geo", "Geogaddi", "2002-02-18", 23)
	r := env.resolver()

	meta, err := r.Resolve(context.Background(), resolve.Request{
		Artist: "Boards of Canada", Album: "Geogaddi", TrackCount: 23,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta == nil || meta.ReleaseGroupID != "rg-geo" {
		t.Fatalf("meta = %+v", meta)
	}
	if meta.Confidence != 0.97 {
		t.Errorf("Confidence = %v, want the search score", meta.Confidence)
	}
	lookup, _ := env.store.Lookup(context.Background(), "boards of canada", "geogaddi")
	if lookup.Status != store.LookupHit {
		t.Errorf("lookup not cached: %+v", lookup)
	}
	for _, call := range env.catalog.callLog() {
		if strings.HasPrefix(call, "relaxed:") || strings.HasPrefix(call, "browse:") {
			t.Errorf("unexpected fallback call %q", call)
		}
	}
}

func TestResolveSearchLadderReachesBrowse(t *testing.T) {
	env := newResolverEnv(t)
	env.catalog.browsed = []musicbrainz.ReleaseGroupResult{
		{ID: "rg-other", Title: "The Campfire Headphase"},
		{ID: "rg-geo", Title: "Geogaddi"},
	}
	env.catalog.addGroup("rg-geo", "Geogaddi", "2002-02-18", 23)
	r := env.resolver()

	meta, err := r.Resolve(context.Background(), resolve.Request{
		Artist: "Boards of Canada", Album: "Geogaddi", TrackCount: 23,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta == nil || meta.ReleaseGroupID != "rg-geo" {
		t.Fatalf("meta = %+v, want the browse fuzzy match", meta)
	}

	calls := env.catalog.callLog()
	wantPrefix := []string{"search:", "relaxed:", "browse:"}
	for i, prefix := range wantPrefix {
		if i >= len(calls) || !strings.HasPrefix(calls[i], prefix) {
			t.Fatalf("calls = %v, want ladder order %v", calls, wantPrefix)
		}
	}
}

func TestResolveRawTitleRetry(t *testing.T) {
	env := newResolverEnv(t)
	raw := "Geogaddi [2002 Japanese Pressing]"
	env.catalog.strict[raw] = []musicbrainz.ReleaseGroupResult{
		{ID: "rg-geo", Title: "Geogaddi", Score: 88},
	}
	env.catalog.addGroup("rg-geo", "Geogaddi", "2002-02-18", 23)
	r := env.resolver()

	meta, err := r.Resolve(context.Background(), resolve.Request{
		Artist:     "Boards of Canada",
		Album:      "Geogaddi",
		RawAlbum:   raw,
		TrackCount: 23,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta == nil || meta.ReleaseGroupID != "rg-geo" {
		t.Fatalf("meta = %+v, want the raw-title retry to land", meta)
	}

	var sawRaw bool
	for _, call := range env.catalog.callLog() {
		if call == "search:"+raw {
			sawRaw = true
		}
	}
	if !sawRaw {
		t.Errorf("calls = %v, want a search with the raw title", env.catalog.callLog())
	}
}

func TestResolveCleanMissCachesNegatively(t *testing.T) {
	env := newResolverEnv(t)
	r := env.resolver()
	ctx := context.Background()
	req := resolve.Request{Artist: "Nobody", Album: "Nothing"}

	meta, err := r.Resolve(ctx, req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta != nil {
		t.Fatalf("meta = %+v, want nil", meta)
	}
	firstCalls := len(env.catalog.callLog())
	if firstCalls == 0 {
		t.Fatal("expected search traffic on a cold cache")
	}

	if meta, err = r.Resolve(ctx, req); err != nil || meta != nil {
		t.Fatalf("second Resolve = (%+v, %v)", meta, err)
	}
	if got := len(env.catalog.callLog()); got != firstCalls {
		t.Errorf("catalog calls grew from %d to %d, want the negative cache to hold", firstCalls, got)
	}
}

func TestResolveVoteAcceptsWithinTolerance(t *testing.T) {
	env := newResolverEnv(t)
	env.catalog.strict["Quaristice"] = []musicbrainz.ReleaseGroupResult{
		{ID: "rg-a", Title: "Quaristice", Score: 95},
		{ID: "rg-b", Title: "Quaristice (Versions)", Score: 90},
	}
	env.catalog.addGroup("rg-a", "Quaristice", "2008-03-03", 20)
	env.catalog.addGroup("rg-b", "Quaristice (Versions)", "2008-03-03", 11)
	ai, aiCalls := scriptedAI(t, `{"index": 2}`)
	r := env.resolver(resolve.WithAI(ai))

	meta, err := r.Resolve(context.Background(), resolve.Request{
		Artist: "Autechre", Album: "Quaristice", TrackCount: 12,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta == nil || meta.ReleaseGroupID != "rg-b" {
		t.Fatalf("meta = %+v, want the voted candidate", meta)
	}
	if *aiCalls != 1 {
		t.Errorf("ai calls = %d, want one vote", *aiCalls)
	}
	for _, call := range env.catalog.callLog() {
		if call == "group:rg-a" {
			t.Error("fetched the unvoted candidate")
		}
	}
}

func TestResolveVoteRejectedByTrackCount(t *testing.T) {
	env := newResolverEnv(t)
	env.catalog.strict["Quaristice"] = []musicbrainz.ReleaseGroupResult{
		{ID: "rg-a", Title: "Quaristice", Score: 95},
		{ID: "rg-b", Title: "Quaristice (Versions)", Score: 90},
	}
	env.catalog.addGroup("rg-a", "Quaristice", "2008-03-03", 20)
	env.catalog.addGroup("rg-b", "Quaristice (Versions)", "2008-03-03", 11)
	ai, aiCalls := scriptedAI(t, `{"index": 1}`)
	r := env.resolver(resolve.WithAI(ai))

	// The vote picks rg-a (20 tracks) against 11 local tracks, which the
	// sanity check rejects; the full fetch then filters to rg-b alone.
	meta, err := r.Resolve(context.Background(), resolve.Request{
		Artist: "Autechre", Album: "Quaristice", TrackCount: 11,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta == nil || meta.ReleaseGroupID != "rg-b" {
		t.Fatalf("meta = %+v, want the track-count filter to decide", meta)
	}
	if *aiCalls != 1 {
		t.Errorf("ai calls = %d, want no disambiguation after the filter settled it", *aiCalls)
	}
}

func TestResolveDisambiguationWithCoverCrossCheck(t *testing.T) {
	env := newResolverEnv(t)
	env.catalog.strict["Untrue"] = []musicbrainz.ReleaseGroupResult{
		{ID: "rg-a", Title: "Untrue", Score: 95},
		{ID: "rg-b", Title: "Untrue", Score: 94},
	}
	env.catalog.addGroup("rg-a", "Untrue", "2007-10-29", 13)
	env.catalog.addGroup("rg-b", "Untrue", "2017-01-20", 14)
	env.catalog.covers["rg-b"] = "https://coverartarchive.org/release-group/rg-b/front"
	ai, aiCalls := scriptedAI(t, `{"index": 0}`, `{"index": 2, "confidence": 0.9}`)
	r := env.resolver(resolve.WithAI(ai))

	meta, err := r.Resolve(context.Background(), resolve.Request{
		Artist:     "Burial",
		Album:      "Untrue",
		TrackCount: 13,
		HasCover:   true,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta == nil || meta.ReleaseGroupID != "rg-b" {
		t.Fatalf("meta = %+v, want the disambiguated candidate", meta)
	}
	if meta.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want the model's value", meta.Confidence)
	}
	if meta.CoverURL == "" {
		t.Error("CoverURL not carried from the cross-check")
	}
	if *aiCalls != 2 {
		t.Errorf("ai calls = %d, want vote then disambiguation", *aiCalls)
	}

	var checkedCovers int
	for _, call := range env.catalog.callLog() {
		if strings.HasPrefix(call, "cover:") {
			checkedCovers++
		}
	}
	if checkedCovers != 2 {
		t.Errorf("cover checks = %d, want one per candidate", checkedCovers)
	}
}

type stubProvider struct {
	name    string
	outcome resolve.Outcome
	err     error
	calls   int
}

func (p *stubProvider) Name() string { return p.name }
func (p *stubProvider) Capabilities() resolve.Capability {
	return resolve.CapCover | resolve.CapYear
}
func (p *stubProvider) Lookup(ctx context.Context, artist, album string) (resolve.Outcome, error) {
	p.calls++
	return p.outcome, p.err
}

func TestResolveSecondaryProviderChain(t *testing.T) {
	env := newResolverEnv(t)
	miss := &stubProvider{name: "first"}
	hit := &stubProvider{
		name: "second",
		outcome: resolve.Outcome{
			Matched:    true,
			Info:       resolve.Metadata{Title: "Endtroducing.....", Year: 1996, CoverURL: "https://img/x.jpg"},
			Confidence: 0.45,
		},
	}
	unreached := &stubProvider{name: "third"}
	r := env.resolver(resolve.WithProviders(miss, hit, unreached))

	meta, err := r.Resolve(context.Background(), resolve.Request{
		Artist: "DJ Shadow", Album: "Endtroducing", TrackCount: 13,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta == nil || meta.Source != "second" || meta.Year != 1996 {
		t.Fatalf("meta = %+v, want the second provider's hit", meta)
	}
	if meta.Confidence != 0.45 {
		t.Errorf("Confidence = %v", meta.Confidence)
	}
	if miss.calls != 1 || hit.calls != 1 || unreached.calls != 0 {
		t.Errorf("provider calls = %d/%d/%d, want chain to stop at first match",
			miss.calls, hit.calls, unreached.calls)
	}

	// A secondary hit has no canonical id, so the lookup cache must not have
	// been poisoned either way.
	lookup, _ := env.store.Lookup(context.Background(), "dj shadow", "endtroducing")
	if lookup.Status != store.LookupMiss {
		t.Errorf("lookup = %+v, want untouched cache", lookup)
	}
	if stats := r.Stats(); stats.SecondaryHits != 1 {
		t.Errorf("SecondaryHits = %d", stats.SecondaryHits)
	}
}

func TestBuildProviders(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Providers.Discogs.Enabled = true // no token: dropped with a warning
	cfg.Providers.LastFM.Enabled = true
	cfg.Providers.LastFM.APIKey = "lfm-key"
	cfg.Providers.Bandcamp.Enabled = true

	providers := resolve.BuildProviders(cfg, "deadwax/1.0", logging.NewNop())
	if len(providers) != 2 {
		t.Fatalf("len(providers) = %d, want discogs skipped", len(providers))
	}
	if providers[0].Name() != "lastfm" || providers[1].Name() != "bandcamp" {
		t.Errorf("chain = %s, %s", providers[0].Name(), providers[1].Name())
	}

	cfg.Providers.Discogs.Token = "dg-token"
	providers = resolve.BuildProviders(cfg, "deadwax/1.0", logging.NewNop())
	if len(providers) != 3 || providers[0].Name() != "discogs" {
		t.Fatalf("chain with token = %v", providerNames(providers))
	}
}

func providerNames(providers []resolve.Provider) []string {
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	return names
}

func TestCapabilityHas(t *testing.T) {
	caps := resolve.CapCover | resolve.CapYear
	if !caps.Has(resolve.CapCover) || !caps.Has(resolve.CapYear) {
		t.Error("expected cover and year capabilities")
	}
	if caps.Has(resolve.CapIdentity) {
		t.Error("secondary capabilities must not include identity")
	}
}
