package lastfm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"deadwax/internal/services"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := New("test-key", server.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestAlbumInfoParsesWikiYearAndLargestImage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("method") != "album.getinfo" {
			t.Errorf("method = %q", q.Get("method"))
		}
		if q.Get("api_key") != "test-key" {
			t.Errorf("api_key = %q", q.Get("api_key"))
		}
		if q.Get("artist") != "Talk Talk" || q.Get("album") != "Laughing Stock" {
			t.Errorf("query = %v", q)
		}
		if q.Get("format") != "json" {
			t.Errorf("format = %q", q.Get("format"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"album":{
			"name":"Laughing Stock",
			"artist":"Talk Talk",
			"image":[
				{"#text":"https://img.last.fm/small.png","size":"small"},
				{"#text":"https://img.last.fm/xl.png","size":"extralarge"},
				{"#text":"","size":"mega"}
			],
			"wiki":{"published":"16 Sep 2008, 21:54"}
		}}`))
	})

	album, err := client.AlbumInfo(context.Background(), "Talk Talk", "Laughing Stock")
	if err != nil {
		t.Fatalf("AlbumInfo: %v", err)
	}
	if album == nil {
		t.Fatal("expected an album")
	}
	if album.Name != "Laughing Stock" || album.Artist != "Talk Talk" {
		t.Errorf("album = %+v", album)
	}
	if album.Year != 2008 {
		t.Errorf("Year = %d, want 2008", album.Year)
	}
	if album.CoverURL != "https://img.last.fm/xl.png" {
		t.Errorf("CoverURL = %q, want extralarge over small and empty mega", album.CoverURL)
	}
}

func TestAlbumInfoNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":6,"message":"Album not found"}`))
	})

	album, err := client.AlbumInfo(context.Background(), "Nobody", "Nothing")
	if err != nil {
		t.Fatalf("AlbumInfo: %v", err)
	}
	if album != nil {
		t.Fatalf("album = %+v, want nil", album)
	}
}

func TestAlbumInfoBadKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":10,"message":"Invalid API key"}`))
	})

	_, err := client.AlbumInfo(context.Background(), "Talk Talk", "Laughing Stock")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestAlbumInfoServiceError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":11,"message":"Service Offline"}`))
	})

	_, err := client.AlbumInfo(context.Background(), "Talk Talk", "Laughing Stock")
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("err = %v, want ErrExternalService", err)
	}
}

func TestAlbumInfoMissingWiki(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"album":{"name":"Spirit of Eden","artist":"Talk Talk","image":[]}}`))
	})

	album, err := client.AlbumInfo(context.Background(), "Talk Talk", "Spirit of Eden")
	if err != nil {
		t.Fatalf("AlbumInfo: %v", err)
	}
	if album.Year != 0 {
		t.Errorf("Year = %d, want 0 when wiki absent", album.Year)
	}
	if album.CoverURL != "" {
		t.Errorf("CoverURL = %q, want empty", album.CoverURL)
	}
}

func TestYearFromPublished(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"16 Sep 2008, 21:54", 2008},
		{"01 Jan 1999", 1999},
		{"not a date", 0},
		{"", 0},
	}
	for _, tc := range cases {
		if got := yearFromPublished(tc.in); got != tc.want {
			t.Errorf("yearFromPublished(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
