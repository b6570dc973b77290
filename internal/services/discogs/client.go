// Package discogs implements the record-store database provider. It serves
// the resolution chain's secondary pass and supplies title, cover, and year
// only: Discogs has no release-group concept to hand back.
package discogs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"deadwax/internal/services"
)

const (
	defaultBaseURL = "https://api.discogs.com"
	requestTimeout = 10 * time.Second
)

// Result carries the fields the resolution chain can use from a match.
type Result struct {
	Title    string
	Year     int
	CoverURL string
}

// Client queries the Discogs database search API.
type Client struct {
	token      string
	baseURL    string
	userAgent  string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a Discogs client. A personal access token is required for the
// search endpoint.
func New(token, baseURL, userAgent string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("discogs token required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return nil, errors.New("discogs user agent required")
	}
	client := &Client{
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type searchResponse struct {
	Results []struct {
		ID         int64  `json:"id"`
		Title      string `json:"title"`
		Year       string `json:"year"`
		CoverImage string `json:"cover_image"`
		Thumb      string `json:"thumb"`
	} `json:"results"`
}

// Search looks for a release matching artist and album. Returns (nil, nil)
// when nothing matches.
func (c *Client) Search(ctx context.Context, artist, album string) (*Result, error) {
	artist = strings.TrimSpace(artist)
	album = strings.TrimSpace(album)
	if artist == "" || album == "" {
		return nil, errors.New("discogs search: artist and album required")
	}

	params := url.Values{}
	params.Set("artist", artist)
	params.Set("release_title", album)
	params.Set("type", "release")
	params.Set("per_page", "5")

	endpoint := c.baseURL + "/database/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", "Discogs token="+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "discogs", "search", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, services.Wrap(services.ErrConfiguration, "discogs", "search", "token rejected", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, services.Wrap(services.ErrExternalService, "discogs", "search", "rate limited", nil)
	case resp.StatusCode != http.StatusOK:
		return nil, services.Wrap(services.ErrExternalService, "discogs", "search",
			fmt.Sprintf("http %d", resp.StatusCode), nil)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(payload.Results) == 0 {
		return nil, nil
	}

	first := payload.Results[0]
	result := &Result{
		Title:    splitSearchTitle(first.Title),
		CoverURL: first.CoverImage,
	}
	if result.CoverURL == "" {
		result.CoverURL = first.Thumb
	}
	if year, err := strconv.Atoi(strings.TrimSpace(first.Year)); err == nil {
		result.Year = year
	}
	return result, nil
}

// splitSearchTitle drops the "Artist - " prefix Discogs prepends to search
// result titles.
func splitSearchTitle(title string) string {
	if _, after, found := strings.Cut(title, " - "); found && strings.TrimSpace(after) != "" {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(title)
}
