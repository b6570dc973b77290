package musicbrainz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"deadwax/internal/services"
)

type coverArtResponse struct {
	Images []struct {
		Front bool   `json:"front"`
		Image string `json:"image"`
	} `json:"images"`
}

// CoverArtURL asks the cover art archive for the group's front image URL.
// Returns "" without error when the group has no artwork, which feeds the
// cover cross-check during AI disambiguation.
func (c *Client) CoverArtURL(ctx context.Context, releaseGroupID string) (string, error) {
	releaseGroupID = strings.TrimSpace(releaseGroupID)
	if releaseGroupID == "" {
		return "", errors.New("cover art: release group id must not be empty")
	}
	endpoint := fmt.Sprintf("%s/release-group/%s", c.coverArtURL, url.PathEscape(releaseGroupID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "coverart", "request", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", nil
	case resp.StatusCode != http.StatusOK:
		return "", services.Wrap(services.ErrExternalService, "coverart", "request",
			fmt.Sprintf("http %d", resp.StatusCode), nil)
	}

	var payload coverArtResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	for _, image := range payload.Images {
		if image.Front {
			return image.Image, nil
		}
	}
	if len(payload.Images) > 0 {
		return payload.Images[0].Image, nil
	}
	return "", nil
}
