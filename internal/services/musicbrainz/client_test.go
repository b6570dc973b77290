package musicbrainz

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"deadwax/internal/services"
)

const testUserAgent = "deadwax/1.0 (test)"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New(server.URL, server.URL+"/coverart", testUserAgent)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return client
}

func TestNewRequiresUserAgent(t *testing.T) {
	if _, err := New("http://localhost", "", "   "); err == nil {
		t.Fatal("expected error for blank user agent")
	}
}

func TestSearchReleaseGroupsStrictQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/release-group" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("User-Agent"); got != testUserAgent {
			t.Fatalf("unexpected user agent %q", got)
		}
		query := r.URL.Query().Get("query")
		if !strings.Contains(query, `releasegroup:"Geogaddi"`) || !strings.Contains(query, `artist:"Boards of Canada"`) {
			t.Fatalf("unexpected query %q", query)
		}
		if r.URL.Query().Get("fmt") != "json" {
			t.Fatal("expected fmt=json")
		}
		_, _ = w.Write([]byte(`{
			"count": 2,
			"release-groups": [
				{
					"id": "rg-geogaddi",
					"score": 100,
					"title": "Geogaddi",
					"primary-type": "Album",
					"first-release-date": "2002-02-18",
					"artist-credit": [{"name": "Boards of Canada"}]
				},
				{
					"id": "rg-geogaddi-live",
					"score": 62,
					"title": "Geogaddi Live",
					"primary-type": "Album",
					"secondary-types": ["Live"],
					"first-release-date": "2003"
				}
			]
		}`))
	})

	results, err := client.SearchReleaseGroups(context.Background(), "Boards of Canada", "Geogaddi", 10)
	if err != nil {
		t.Fatalf("SearchReleaseGroups failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	first := results[0]
	if first.ID != "rg-geogaddi" || first.Score != 100 {
		t.Errorf("unexpected first result %+v", first)
	}
	if first.Year() != 2002 {
		t.Errorf("expected year 2002, got %d", first.Year())
	}
	if first.Artist() != "Boards of Canada" {
		t.Errorf("expected credited artist, got %q", first.Artist())
	}
	if len(results[1].SecondaryTypes) != 1 || results[1].SecondaryTypes[0] != "Live" {
		t.Errorf("expected secondary types parsed, got %v", results[1].SecondaryTypes)
	}
}

func TestSearchRelaxedDropsFieldTags(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("query")
		if strings.Contains(query, "releasegroup:") || strings.Contains(query, "artist:") {
			t.Fatalf("relaxed query must not be fielded, got %q", query)
		}
		_, _ = w.Write([]byte(`{"count":0,"release-groups":[]}`))
	})

	results, err := client.SearchReleaseGroupsRelaxed(context.Background(), "Arovane", "Tides", 5)
	if err != nil {
		t.Fatalf("SearchReleaseGroupsRelaxed failed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestBrowseArtistReleaseGroups(t *testing.T) {
	var calls []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		switch r.URL.Path {
		case "/artist":
			_, _ = w.Write([]byte(`{"artists":[{"id":"artist-bdcst","name":"Broadcast","score":100}]}`))
		case "/release-group":
			if got := r.URL.Query().Get("artist"); got != "artist-bdcst" {
				t.Fatalf("expected browse by artist id, got %q", got)
			}
			_, _ = w.Write([]byte(`{"release-groups":[
				{"id":"rg-noise","title":"The Noise Made by People","first-release-date":"2000-03-20"},
				{"id":"rg-haha","title":"Haha Sound","first-release-date":"2003-08-11"}
			]}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	results, err := client.BrowseArtistReleaseGroups(context.Background(), "Broadcast")
	if err != nil {
		t.Fatalf("BrowseArtistReleaseGroups failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 release groups, got %d", len(results))
	}
	if len(calls) != 2 || calls[0] != "/artist" || calls[1] != "/release-group" {
		t.Fatalf("unexpected call sequence %v", calls)
	}
}

func TestBrowseUnknownArtist(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"artists":[]}`))
	})

	results, err := client.BrowseArtistReleaseGroups(context.Background(), "Nonexistent Act")
	if err != nil {
		t.Fatalf("BrowseArtistReleaseGroups failed: %v", err)
	}
	if results != nil {
		t.Fatalf("expected nil results for unknown artist, got %v", results)
	}
}

func TestReleaseGroupLookupNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	result, err := client.ReleaseGroup(context.Background(), "rg-missing")
	if err != nil {
		t.Fatalf("expected nil error on 404, got %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result, got %+v", result)
	}
}

func TestReleasesForGroupTrackLists(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/release" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("release-group"); got != "rg-geogaddi" {
			t.Fatalf("expected release-group filter, got %q", got)
		}
		if got := r.URL.Query().Get("inc"); got != "media+recordings" {
			t.Fatalf("expected inc=media+recordings, got %q", got)
		}
		_, _ = w.Write([]byte(`{"releases":[
			{
				"id": "rel-cd",
				"title": "Geogaddi",
				"status": "Official",
				"date": "2002-02-18",
				"country": "GB",
				"media": [
					{"format": "CD", "track-count": 23, "tracks": [
						{"position": 1, "title": "Ready Lets Go", "length": 59000},
						{"position": 2, "title": "Music Is Math", "length": 320000}
					]}
				]
			},
			{
				"id": "rel-vinyl",
				"title": "Geogaddi",
				"date": "2002",
				"media": [
					{"format": "12\" Vinyl", "track-count": 11},
					{"format": "12\" Vinyl", "track-count": 12}
				]
			}
		]}`))
	})

	releases, err := client.ReleasesForGroup(context.Background(), "rg-geogaddi")
	if err != nil {
		t.Fatalf("ReleasesForGroup failed: %v", err)
	}
	if len(releases) != 2 {
		t.Fatalf("expected 2 releases, got %d", len(releases))
	}
	if releases[0].TrackCount() != 23 {
		t.Errorf("expected 23 tracks, got %d", releases[0].TrackCount())
	}
	if releases[1].TrackCount() != 23 {
		t.Errorf("expected multi-disc sum 23, got %d", releases[1].TrackCount())
	}
	if releases[1].FormatSummary() != `12" Vinyl` {
		t.Errorf("expected deduplicated format summary, got %q", releases[1].FormatSummary())
	}
	if len(releases[0].Media[0].Tracks) != 2 || releases[0].Media[0].Tracks[1].Title != "Music Is Math" {
		t.Errorf("expected track list parsed, got %+v", releases[0].Media[0].Tracks)
	}
	if releases[0].Year() != 2002 {
		t.Errorf("expected release year 2002, got %d", releases[0].Year())
	}
}

func TestReleaseGroupIDForRelease(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/release/rel-cd" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("inc"); got != "release-groups" {
			t.Fatalf("expected inc=release-groups, got %q", got)
		}
		_, _ = w.Write([]byte(`{"id":"rel-cd","title":"Geogaddi","release-group":{"id":"rg-geogaddi"}}`))
	})

	id, err := client.ReleaseGroupIDForRelease(context.Background(), "rel-cd")
	if err != nil {
		t.Fatalf("ReleaseGroupIDForRelease failed: %v", err)
	}
	if id != "rg-geogaddi" {
		t.Fatalf("expected rg-geogaddi, got %q", id)
	}
}

func TestCoverArtURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/coverart/release-group/rg-art":
			_, _ = w.Write([]byte(`{"images":[
				{"front": false, "image": "http://img/back.jpg"},
				{"front": true, "image": "http://img/front.jpg"}
			]}`))
		case "/coverart/release-group/rg-none":
			w.WriteHeader(http.StatusNotFound)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	url, err := client.CoverArtURL(context.Background(), "rg-art")
	if err != nil {
		t.Fatalf("CoverArtURL failed: %v", err)
	}
	if url != "http://img/front.jpg" {
		t.Fatalf("expected front image, got %q", url)
	}

	url, err = client.CoverArtURL(context.Background(), "rg-none")
	if err != nil {
		t.Fatalf("expected no error for missing art, got %v", err)
	}
	if url != "" {
		t.Fatalf("expected empty url, got %q", url)
	}
}

func TestServiceUnavailableClassified(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.SearchReleaseGroups(context.Background(), "Plaid", "Double Figure", 5)
	if err == nil {
		t.Fatal("expected error on 503")
	}
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}
