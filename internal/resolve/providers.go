package resolve

import (
	"context"
	"log/slog"
	"strings"

	"deadwax/internal/config"
	"deadwax/internal/logging"
	"deadwax/internal/services/bandcamp"
	"deadwax/internal/services/discogs"
	"deadwax/internal/services/lastfm"
)

// Capability tags what a provider can fill in. None of the secondary
// catalogs carry CapIdentity: their hits name an album but cannot anchor it
// to a canonical release group.
type Capability uint8

const (
	// CapIdentity means canonical catalog ids and full track lists.
	CapIdentity Capability = 1 << iota
	// CapCover means cover image URLs.
	CapCover
	// CapYear means release years.
	CapYear
)

// Has reports whether all the given capabilities are present.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// Outcome is the uniform provider result.
type Outcome struct {
	Matched    bool
	Info       Metadata
	Confidence float64
}

// Provider is one secondary catalog in the fallback chain.
type Provider interface {
	Name() string
	Capabilities() Capability
	Lookup(ctx context.Context, artist, album string) (Outcome, error)
}

// Fixed confidence per secondary source. The record store database gives the
// most structured answer, the storefront scrape the least.
const (
	discogsConfidence  = 0.55
	lastfmConfidence   = 0.45
	bandcampConfidence = 0.40
)

type discogsProvider struct {
	client *discogs.Client
}

func (p *discogsProvider) Name() string { return "discogs" }
func (p *discogsProvider) Capabilities() Capability { return CapCover | CapYear }
func (p *discogsProvider) Lookup(ctx context.Context, artist, album string) (Outcome, error) {
	result, err := p.client.Search(ctx, artist, album)
	if err != nil {
		return Outcome{}, err
	}
	if result == nil {
		return Outcome{}, nil
	}
	return Outcome{
		Matched: true,
		Info: Metadata{
			Title:    result.Title,
			Artist:   artist,
			Year:     result.Year,
			CoverURL: result.CoverURL,
		},
		Confidence: discogsConfidence,
	}, nil
}

type lastfmProvider struct {
	client *lastfm.Client
}

func (p *lastfmProvider) Name() string { return "lastfm" }
func (p *lastfmProvider) Capabilities() Capability { return CapCover | CapYear }
func (p *lastfmProvider) Lookup(ctx context.Context, artist, album string) (Outcome, error) {
	info, err := p.client.AlbumInfo(ctx, artist, album)
	if err != nil {
		return Outcome{}, err
	}
	if info == nil {
		return Outcome{}, nil
	}
	title := info.Name
	if title == "" {
		title = album
	}
	return Outcome{
		Matched: true,
		Info: Metadata{
			Title:    title,
			Artist:   artist,
			Year:     info.Year,
			CoverURL: info.CoverURL,
		},
		Confidence: lastfmConfidence,
	}, nil
}

type bandcampProvider struct {
	client *bandcamp.Client
}

func (p *bandcampProvider) Name() string { return "bandcamp" }
func (p *bandcampProvider) Capabilities() Capability { return CapCover | CapYear }
func (p *bandcampProvider) Lookup(ctx context.Context, artist, album string) (Outcome, error) {
	result, err := p.client.Search(ctx, artist, album)
	if err != nil {
		return Outcome{}, err
	}
	if result == nil {
		return Outcome{}, nil
	}
	return Outcome{
		Matched: true,
		Info: Metadata{
			Title:    result.Title,
			Artist:   result.Artist,
			Year:     result.Year,
			CoverURL: result.CoverURL,
		},
		Confidence: bandcampConfidence,
	}, nil
}

// NewDiscogsProvider wraps a record store database client.
func NewDiscogsProvider(client *discogs.Client) Provider {
	return &discogsProvider{client: client}
}

// NewLastFMProvider wraps a social listening database client.
func NewLastFMProvider(client *lastfm.Client) Provider {
	return &lastfmProvider{client: client}
}

// NewBandcampProvider wraps a storefront scrape client.
func NewBandcampProvider(client *bandcamp.Client) Provider {
	return &bandcampProvider{client: client}
}

// BuildProviders constructs the enabled secondary catalogs in priority
// order. Misconfigured entries are logged and skipped rather than failing
// the scan.
func BuildProviders(cfg *config.Config, userAgent string, logger *slog.Logger) []Provider {
	log := logging.NewComponentLogger(logger, "resolve")
	var providers []Provider

	if cfg.Providers.Discogs.Enabled {
		client, err := discogs.New(cfg.Providers.Discogs.Token, cfg.Providers.Discogs.BaseURL, userAgent)
		if err != nil {
			log.Warn("discogs disabled", logging.Error(err))
		} else {
			providers = append(providers, NewDiscogsProvider(client))
		}
	}
	if cfg.Providers.LastFM.Enabled {
		client, err := lastfm.New(cfg.Providers.LastFM.APIKey, cfg.Providers.LastFM.BaseURL)
		if err != nil {
			log.Warn("lastfm disabled", logging.Error(err))
		} else {
			providers = append(providers, NewLastFMProvider(client))
		}
	}
	if cfg.Providers.Bandcamp.Enabled {
		providers = append(providers, NewBandcampProvider(bandcamp.New(cfg.Providers.Bandcamp.BaseURL, userAgent)))
	}

	if len(providers) > 0 {
		names := make([]string, 0, len(providers))
		for _, p := range providers {
			names = append(names, p.Name())
		}
		log.Debug("secondary providers enabled", logging.String("chain", strings.Join(names, " > ")))
	}
	return providers
}
