// Package bandcamp implements the storefront provider. The site has no public
// API, so the client scrapes the search page markup. Fields beyond title,
// cover, and year are not recoverable from search results.
package bandcamp

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"deadwax/internal/services"
)

const (
	defaultBaseURL = "https://bandcamp.com"
	requestTimeout = 15 * time.Second

	// Search pages are large; anything past this is chrome, not results.
	maxPageBytes = 4 << 20
)

// Result carries the fields recoverable from a search page hit.
type Result struct {
	Title    string
	Artist   string
	Year     int
	CoverURL string
	PageURL  string
}

// Client scrapes the public search page.
type Client struct {
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

// New creates a Bandcamp client.
func New(baseURL, userAgent string, opts ...Option) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  strings.TrimSpace(userAgent),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Search scrapes the search page for an album by artist. It returns the first
// album result whose artist line matches, or (nil, nil) when none does.
func (c *Client) Search(ctx context.Context, artist, album string) (*Result, error) {
	artist = strings.TrimSpace(artist)
	album = strings.TrimSpace(album)
	if artist == "" || album == "" {
		return nil, errors.New("bandcamp search: artist and album required")
	}

	params := url.Values{}
	params.Set("q", artist+" "+album)
	params.Set("item_type", "a")

	endpoint := c.baseURL + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "bandcamp", "search", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrExternalService, "bandcamp", "search",
			fmt.Sprintf("http %d", resp.StatusCode), nil)
	}

	page, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "bandcamp", "search", "read page", err)
	}

	for _, hit := range parseSearchPage(string(page)) {
		if sameName(hit.Artist, artist) {
			match := hit
			return &match, nil
		}
	}
	return nil, nil
}

var (
	headingAnchorRe = regexp.MustCompile(`(?s)<div class="heading">\s*<a[^>]*href="([^"]*)"[^>]*>(.*?)</a>`)
	artImgRe        = regexp.MustCompile(`<div class="art">\s*<img[^>]*src="([^"]*)"`)
	tagRe           = regexp.MustCompile(`<[^>]*>`)
)

// parseSearchPage extracts album hits from search result markup. Each result
// sits in its own searchresult block with heading, subhead, released, and art
// divs.
func parseSearchPage(page string) []Result {
	blocks := strings.Split(page, `class="searchresult`)
	if len(blocks) < 2 {
		return nil
	}

	var results []Result
	for _, block := range blocks[1:] {
		if !strings.Contains(divText(block, "itemtype"), "ALBUM") {
			continue
		}

		hit := Result{
			Artist: strings.TrimPrefix(divText(block, "subhead"), "by "),
			Year:   yearFromReleased(divText(block, "released")),
		}
		if m := headingAnchorRe.FindStringSubmatch(block); m != nil {
			hit.PageURL = trimTrackingQuery(m[1])
			hit.Title = cleanText(m[2])
		}
		if m := artImgRe.FindStringSubmatch(block); m != nil {
			hit.CoverURL = m[1]
		}
		if hit.Title == "" {
			continue
		}
		results = append(results, hit)
	}
	return results
}

// divText returns the collapsed text content of the first div with the given
// class inside the block.
func divText(block, class string) string {
	marker := `class="` + class + `"`
	start := strings.Index(block, marker)
	if start < 0 {
		return ""
	}
	rest := block[start+len(marker):]
	if i := strings.Index(rest, ">"); i >= 0 {
		rest = rest[i+1:]
	}
	end := strings.Index(rest, "</div>")
	if end < 0 {
		return ""
	}
	return cleanText(rest[:end])
}

func cleanText(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// trimTrackingQuery drops the ?from=... tracking parameters search links carry.
func trimTrackingQuery(link string) string {
	if i := strings.IndexByte(link, '?'); i >= 0 {
		return link[:i]
	}
	return link
}

// yearFromReleased pulls the year out of a "released 18 February 2002" line.
func yearFromReleased(text string) int {
	for _, field := range strings.Fields(text) {
		if len(field) != 4 {
			continue
		}
		year, err := strconv.Atoi(field)
		if err != nil || year < 1900 || year > 2100 {
			continue
		}
		return year
	}
	return 0
}

func sameName(a, b string) bool {
	collapse := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	return collapse(a) == collapse(b)
}
