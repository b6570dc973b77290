package musicbrainz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"deadwax/internal/services"
)

const (
	defaultBaseURL         = "https://musicbrainz.org/ws/2"
	defaultCoverArtBaseURL = "https://coverartarchive.org"
	requestTimeout         = 10 * time.Second
)

// Searcher defines the catalog operations the resolution chain uses.
type Searcher interface {
	SearchReleaseGroups(ctx context.Context, artist, album string, limit int) ([]ReleaseGroupResult, error)
	SearchReleaseGroupsRelaxed(ctx context.Context, artist, album string, limit int) ([]ReleaseGroupResult, error)
	BrowseArtistReleaseGroups(ctx context.Context, artistName string) ([]ReleaseGroupResult, error)
	ReleaseGroup(ctx context.Context, releaseGroupID string) (*ReleaseGroupResult, error)
	ReleasesForGroup(ctx context.Context, releaseGroupID string) ([]Release, error)
	ReleaseGroupIDForRelease(ctx context.Context, releaseID string) (string, error)
	CoverArtURL(ctx context.Context, releaseGroupID string) (string, error)
}

// Client provides access to a MusicBrainz-compatible web service. Rate
// budgeting is not done here: callers go through the resolve queue, which
// spaces dispatches to the public 1 req/s allowance.
type Client struct {
	baseURL     string
	coverArtURL string
	userAgent   string
	httpClient  *http.Client
}

var _ Searcher = (*Client)(nil)

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

// New creates a MusicBrainz client. The user agent is required: the public
// service rejects anonymous clients.
func New(baseURL, coverArtBaseURL, userAgent string, opts ...Option) (*Client, error) {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return nil, errors.New("musicbrainz user agent required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	coverArtBaseURL = strings.TrimSpace(coverArtBaseURL)
	if coverArtBaseURL == "" {
		coverArtBaseURL = defaultCoverArtBaseURL
	}
	client := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		coverArtURL: strings.TrimRight(coverArtBaseURL, "/"),
		userAgent:   userAgent,
		httpClient:  &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// get executes one API request and decodes the JSON body into target.
// A 404 returns services.ErrNotFound; 429/503 (the service's over-budget
// answers) return services.ErrExternalService.
func (c *Client) get(ctx context.Context, endpoint string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return services.Wrap(services.ErrTransient, "musicbrainz", "request",
			fmt.Sprintf("latency=%v", latency), err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "musicbrainz", "request", endpoint, nil)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusServiceUnavailable:
		return services.Wrap(services.ErrExternalService, "musicbrainz", "request",
			fmt.Sprintf("http %d (rate budget exceeded?)", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return services.Wrap(services.ErrExternalService, "musicbrainz", "request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
