package musicbrainz

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"deadwax/internal/services"
)

const (
	defaultSearchLimit = 10
	browseLimit        = 100
)

// ReleaseGroupResult is one release-group candidate. Score carries the
// search relevance (0-100) when the result came from a query; lookups and
// browses leave it zero.
type ReleaseGroupResult struct {
	ID               string         `json:"id"`
	Score            int            `json:"score"`
	Title            string         `json:"title"`
	PrimaryType      string         `json:"primary-type"`
	SecondaryTypes   []string       `json:"secondary-types"`
	FirstReleaseDate string         `json:"first-release-date"`
	ArtistCredit     []artistCredit `json:"artist-credit"`
}

// Artist returns the first credited artist name.
func (r ReleaseGroupResult) Artist() string {
	if len(r.ArtistCredit) == 0 {
		return ""
	}
	return r.ArtistCredit[0].Name
}

// Year parses the leading year of the first release date, 0 when unknown.
func (r ReleaseGroupResult) Year() int {
	return yearOf(r.FirstReleaseDate)
}

type artistCredit struct {
	Name   string `json:"name"`
	Artist struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		SortName string `json:"sort-name"`
	} `json:"artist"`
}

type releaseGroupSearchResponse struct {
	Count         int                  `json:"count"`
	ReleaseGroups []ReleaseGroupResult `json:"release-groups"`
}

type artistSearchResponse struct {
	Artists []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Score int    `json:"score"`
	} `json:"artists"`
}

// Release is one concrete pressing inside a release group, with its track
// lists when fetched via ReleasesForGroup.
type Release struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Status       string   `json:"status"`
	Date         string   `json:"date"`
	Country      string   `json:"country"`
	Media        []Medium `json:"media"`
	ReleaseGroup struct {
		ID string `json:"id"`
	} `json:"release-group"`
}

// Medium is one disc of a release.
type Medium struct {
	Format     string         `json:"format"`
	TrackCount int            `json:"track-count"`
	Tracks     []ReleaseTrack `json:"tracks"`
}

// ReleaseTrack is one track entry on a medium.
type ReleaseTrack struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	LengthMS int    `json:"length"`
	Number   string `json:"number"`
}

// TrackCount sums the track counts across all media of the release.
func (r Release) TrackCount() int {
	total := 0
	for _, m := range r.Media {
		total += m.TrackCount
	}
	return total
}

// FormatSummary joins the distinct media formats ("CD", "12\" Vinyl").
func (r Release) FormatSummary() string {
	seen := make(map[string]bool, len(r.Media))
	var formats []string
	for _, m := range r.Media {
		format := strings.TrimSpace(m.Format)
		if format == "" || seen[format] {
			continue
		}
		seen[format] = true
		formats = append(formats, format)
	}
	return strings.Join(formats, " + ")
}

// Year parses the leading year of the release date, 0 when unknown.
func (r Release) Year() int {
	return yearOf(r.Date)
}

type releaseBrowseResponse struct {
	Releases []Release `json:"releases"`
}

// SearchReleaseGroups runs the strict fielded query: both the release-group
// title and the artist must match.
func (c *Client) SearchReleaseGroups(ctx context.Context, artist, album string, limit int) ([]ReleaseGroupResult, error) {
	query := fmt.Sprintf("releasegroup:%q AND artist:%q", luceneEscape(album), luceneEscape(artist))
	return c.searchReleaseGroups(ctx, query, limit)
}

// SearchReleaseGroupsRelaxed runs an unfielded query so partial titles and
// artist aliases still surface candidates.
func (c *Client) SearchReleaseGroupsRelaxed(ctx context.Context, artist, album string, limit int) ([]ReleaseGroupResult, error) {
	query := strings.TrimSpace(luceneEscape(album) + " " + luceneEscape(artist))
	return c.searchReleaseGroups(ctx, query, limit)
}

func (c *Client) searchReleaseGroups(ctx context.Context, query string, limit int) ([]ReleaseGroupResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("musicbrainz search: query must not be empty")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("fmt", "json")

	var payload releaseGroupSearchResponse
	if err := c.get(ctx, c.baseURL+"/release-group?"+params.Encode(), &payload); err != nil {
		return nil, err
	}
	return payload.ReleaseGroups, nil
}

// BrowseArtistReleaseGroups resolves the artist by name, then lists the
// artist's release groups. Used when title searches come up empty but the
// artist is well known.
func (c *Client) BrowseArtistReleaseGroups(ctx context.Context, artistName string) ([]ReleaseGroupResult, error) {
	artistName = strings.TrimSpace(artistName)
	if artistName == "" {
		return nil, errors.New("musicbrainz browse: artist name must not be empty")
	}

	params := url.Values{}
	params.Set("query", fmt.Sprintf("artist:%q", luceneEscape(artistName)))
	params.Set("limit", "3")
	params.Set("fmt", "json")

	var artists artistSearchResponse
	if err := c.get(ctx, c.baseURL+"/artist?"+params.Encode(), &artists); err != nil {
		return nil, err
	}
	if len(artists.Artists) == 0 {
		return nil, nil
	}

	browse := url.Values{}
	browse.Set("artist", artists.Artists[0].ID)
	browse.Set("limit", strconv.Itoa(browseLimit))
	browse.Set("fmt", "json")

	var payload releaseGroupSearchResponse
	if err := c.get(ctx, c.baseURL+"/release-group?"+browse.Encode(), &payload); err != nil {
		return nil, err
	}
	return payload.ReleaseGroups, nil
}

// ReleaseGroup looks up one release group by id. Returns (nil, nil) when the
// id does not exist.
func (c *Client) ReleaseGroup(ctx context.Context, releaseGroupID string) (*ReleaseGroupResult, error) {
	releaseGroupID = strings.TrimSpace(releaseGroupID)
	if releaseGroupID == "" {
		return nil, errors.New("musicbrainz lookup: release group id must not be empty")
	}
	endpoint := fmt.Sprintf("%s/release-group/%s?inc=artist-credits&fmt=json", c.baseURL, url.PathEscape(releaseGroupID))

	var payload ReleaseGroupResult
	if err := c.get(ctx, endpoint, &payload); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payload, nil
}

// ReleasesForGroup fetches the group's releases with media and track lists
// (inc=media+recordings), enough for track-count checks and prompt context.
func (c *Client) ReleasesForGroup(ctx context.Context, releaseGroupID string) ([]Release, error) {
	releaseGroupID = strings.TrimSpace(releaseGroupID)
	if releaseGroupID == "" {
		return nil, errors.New("musicbrainz releases: release group id must not be empty")
	}
	params := url.Values{}
	params.Set("release-group", releaseGroupID)
	params.Set("inc", "media+recordings")
	params.Set("limit", "25")
	params.Set("fmt", "json")

	var payload releaseBrowseResponse
	if err := c.get(ctx, c.baseURL+"/release?"+params.Encode(), &payload); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return payload.Releases, nil
}

// ReleaseGroupIDForRelease hops from a release-level id (the common embedded
// tag) to its owning release group. Returns "" when the release is unknown.
func (c *Client) ReleaseGroupIDForRelease(ctx context.Context, releaseID string) (string, error) {
	releaseID = strings.TrimSpace(releaseID)
	if releaseID == "" {
		return "", errors.New("musicbrainz lookup: release id must not be empty")
	}
	endpoint := fmt.Sprintf("%s/release/%s?inc=release-groups&fmt=json", c.baseURL, url.PathEscape(releaseID))

	var payload Release
	if err := c.get(ctx, endpoint, &payload); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return payload.ReleaseGroup.ID, nil
}

// luceneEscape neutralizes the query syntax characters inside a user value.
func luceneEscape(value string) string {
	replacer := strings.NewReplacer(
		`"`, `\"`,
		`\`, `\\`,
	)
	return replacer.Replace(strings.TrimSpace(value))
}

func yearOf(date string) int {
	date = strings.TrimSpace(date)
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}
