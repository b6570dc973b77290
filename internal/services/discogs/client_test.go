package discogs

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
	client, err := New("test-token", server.URL, "deadwax/1.0 (test)")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New("", "", "deadwax/1.0"); err == nil {
		t.Fatal("expected error for missing token")
	}
	if _, err := New("tok", "", ""); err == nil {
		t.Fatal("expected error for missing user agent")
	}
}

func TestSearchParsesFirstResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/database/search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Discogs token=test-token" {
			t.Errorf("Authorization = %q", got)
		}
		q := r.URL.Query()
		if q.Get("artist") != "Stereolab" || q.Get("release_title") != "Dots and Loops" {
			t.Errorf("query = %v", q)
		}
		if q.Get("type") != "release" {
			t.Errorf("type = %q", q.Get("type"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[
			{"id":1,"title":"Stereolab - Dots And Loops","year":"1997","cover_image":"https://img.discogs.com/full.jpg","thumb":"https://img.discogs.com/thumb.jpg"},
			{"id":2,"title":"Stereolab - Dots And Loops (Reissue)","year":"2019","cover_image":""}
		]}`))
	})

	result, err := client.Search(context.Background(), "Stereolab", "Dots and Loops")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result == nil {
		t.Fatal("expected a result")
	}
	if result.Title != "Dots And Loops" {
		t.Errorf("Title = %q, want artist prefix stripped", result.Title)
	}
	if result.Year != 1997 {
		t.Errorf("Year = %d, want 1997", result.Year)
	}
	if result.CoverURL != "https://img.discogs.com/full.jpg" {
		t.Errorf("CoverURL = %q", result.CoverURL)
	}
}

func TestSearchNoMatches(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[]}`))
	})

	result, err := client.Search(context.Background(), "Nobody", "Nothing")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result != nil {
		t.Fatalf("result = %+v, want nil", result)
	}
}

func TestSearchFallsBackToThumb(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":[{"id":3,"title":"Low - Things We Lost In The Fire","year":"2001","thumb":"https://img.discogs.com/small.jpg"}]}`))
	})

	result, err := client.Search(context.Background(), "Low", "Things We Lost in the Fire")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.CoverURL != "https://img.discogs.com/small.jpg" {
		t.Errorf("CoverURL = %q, want thumb fallback", result.CoverURL)
	}
}

func TestSearchRejectedToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Search(context.Background(), "Low", "Double Negative")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestSearchRateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Search(context.Background(), "Low", "Double Negative")
	if !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("err = %v, want ErrExternalService", err)
	}
}

func TestSplitSearchTitle(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Stereolab - Dots And Loops", "Dots And Loops"},
		{"Plain Title", "Plain Title"},
		{"Artist - ", "Artist -"},
		{"A - B - C", "B - C"},
	}
	for _, tc := range cases {
		if got := splitSearchTitle(tc.in); got != tc.want {
			t.Errorf("splitSearchTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
