// Package lastfm implements the social listening database provider. Like the
// other secondary catalogs it supplies title, cover, and year only; release
// years are recovered from the album wiki when the service has one.
package lastfm

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
	defaultBaseURL = "https://ws.audioscrobbler.com/2.0"
	requestTimeout = 10 * time.Second

	// Error code the API returns for an unknown album.
	codeNotFound = 6
	// Error code for a rejected API key.
	codeBadKey = 10
)

// Album is the subset of album.getinfo the resolution chain consumes.
type Album struct {
	Name     string
	Artist   string
	Year     int
	CoverURL string
}

// Client queries the Last.fm web service.
type Client struct {
	apiKey     string
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

// New creates a Last.fm client.
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("lastfm api key required")
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type albumInfoResponse struct {
	Album *struct {
		Name   string `json:"name"`
		Artist string `json:"artist"`
		Image  []struct {
			URL  string `json:"#text"`
			Size string `json:"size"`
		} `json:"image"`
		Wiki *struct {
			Published string `json:"published"`
		} `json:"wiki"`
	} `json:"album"`
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// AlbumInfo fetches album.getinfo for artist and album. Returns (nil, nil)
// when the service does not know the album.
func (c *Client) AlbumInfo(ctx context.Context, artist, album string) (*Album, error) {
	artist = strings.TrimSpace(artist)
	album = strings.TrimSpace(album)
	if artist == "" || album == "" {
		return nil, errors.New("lastfm album info: artist and album required")
	}

	params := url.Values{}
	params.Set("method", "album.getinfo")
	params.Set("api_key", c.apiKey)
	params.Set("artist", artist)
	params.Set("album", album)
	params.Set("autocorrect", "1")
	params.Set("format", "json")

	endpoint := c.baseURL + "/?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "lastfm", "album.getinfo", "request failed", err)
	}
	defer resp.Body.Close()

	// The service reports its own error codes in the JSON body, frequently
	// alongside a 200 status, so the body is decoded before the status check.
	var payload albumInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, services.Wrap(services.ErrExternalService, "lastfm", "album.getinfo",
				fmt.Sprintf("http %d", resp.StatusCode), nil)
		}
		return nil, fmt.Errorf("decode response: %w", err)
	}

	switch payload.Error {
	case 0:
	case codeNotFound:
		return nil, nil
	case codeBadKey:
		return nil, services.Wrap(services.ErrConfiguration, "lastfm", "album.getinfo", "api key rejected", nil)
	default:
		return nil, services.Wrap(services.ErrExternalService, "lastfm", "album.getinfo",
			fmt.Sprintf("error %d: %s", payload.Error, payload.Message), nil)
	}
	if payload.Album == nil {
		return nil, nil
	}

	result := &Album{
		Name:     payload.Album.Name,
		Artist:   payload.Album.Artist,
		CoverURL: largestImage(payloadImages(payload)),
	}
	if payload.Album.Wiki != nil {
		result.Year = yearFromPublished(payload.Album.Wiki.Published)
	}
	return result, nil
}

type albumImage struct {
	url  string
	size string
}

func payloadImages(payload albumInfoResponse) []albumImage {
	images := make([]albumImage, 0, len(payload.Album.Image))
	for _, img := range payload.Album.Image {
		images = append(images, albumImage{url: img.URL, size: img.Size})
	}
	return images
}

// largestImage picks the biggest non-empty variant from the fixed size ladder
// the service emits.
func largestImage(images []albumImage) string {
	rank := map[string]int{"mega": 6, "extralarge": 5, "large": 4, "medium": 3, "small": 2, "": 1}
	best := ""
	bestRank := 0
	for _, img := range images {
		if img.url == "" {
			continue
		}
		if r := rank[img.size]; r > bestRank {
			best = img.url
			bestRank = r
		}
	}
	return best
}

// yearFromPublished parses the wiki timestamp format "02 Jan 2006, 15:04".
func yearFromPublished(published string) int {
	datePart, _, _ := strings.Cut(published, ",")
	parsed, err := time.Parse("02 Jan 2006", strings.TrimSpace(datePart))
	if err != nil {
		return 0
	}
	return parsed.Year()
}
