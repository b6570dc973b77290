// Package websearch queries a SearXNG-compatible metasearch instance. The
// resolution chain folds the returned snippets into its last-chance AI prompt
// when catalog lookups come up empty.
package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"deadwax/internal/services"
)

const (
	defaultTimeout = 10 * time.Second
	defaultLimit   = 5
)

// Snippet is one search hit.
type Snippet struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Client queries the JSON search endpoint.
type Client struct {
	baseURL    string
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

// New creates a web search client. The instance URL is required: there is no
// public default worth hardcoding.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("websearch base url required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type searchResponse struct {
	Results []Snippet `json:"results"`
}

// Search runs a query and returns up to limit snippets.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Snippet, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("websearch: query required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")

	endpoint := c.baseURL + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "websearch", "search", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrExternalService, "websearch", "search",
			fmt.Sprintf("http %d", resp.StatusCode), nil)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	snippets := payload.Results
	if len(snippets) > limit {
		snippets = snippets[:limit]
	}
	return snippets, nil
}
