package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateScan(); err != nil {
		return err
	}
	if err := c.validateResolve(); err != nil {
		return err
	}
	if err := c.validateWebSearch(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCatalog() error {
	if c.Catalog.DBPath == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/deadwax/config.toml"
		}
		return fmt.Errorf("catalog.db_path is required. Edit %s (create with 'deadwax config init')", defaultPath)
	}
	for _, mapping := range c.Catalog.PathMappings {
		if strings.TrimSpace(mapping.From) == "" || strings.TrimSpace(mapping.To) == "" {
			return errors.New("catalog.path_mappings entries need both from and to")
		}
	}
	return nil
}

func (c *Config) validateScan() error {
	if err := ensurePositiveMap(map[string]int{
		"probe.workers":                      c.Probe.Workers,
		"probe.timeout_seconds":              c.Probe.TimeoutSeconds,
		"probe.sample_files":                 c.Probe.SampleFiles,
		"scan.workers":                       c.Scan.Workers,
		"scan.ai_workers":                    c.Scan.AIWorkers,
		"scan.gap_threshold":                 c.Scan.GapThreshold,
		"scan.max_consecutive_empty_artists": c.Scan.MaxConsecutiveEmptyArtists,
	}); err != nil {
		return err
	}
	if c.Scan.MissingTrackPct <= 0 || c.Scan.MissingTrackPct >= 1 {
		return errors.New("scan.missing_track_pct must be between 0 and 1 exclusive")
	}
	return nil
}

func (c *Config) validateResolve() error {
	if c.Resolve.RateIntervalMS < 250 {
		return errors.New("resolve.rate_interval_ms must be at least 250 to respect the catalog's rate budget")
	}
	if c.Resolve.QueueTimeoutSeconds <= 0 {
		return errors.New("resolve.queue_timeout_seconds must be positive")
	}
	if strings.TrimSpace(c.Resolve.UserAgent) == "" {
		return errors.New("resolve.user_agent must be set")
	}
	return nil
}

func (c *Config) validateWebSearch() error {
	if c.WebSearch.Enabled && strings.TrimSpace(c.WebSearch.BaseURL) == "" {
		return errors.New("websearch.base_url must be set when websearch.enabled is true")
	}
	return nil
}

func (c *Config) validateProviders() error {
	if c.Providers.Discogs.Enabled && strings.TrimSpace(c.Providers.Discogs.Token) == "" {
		return errors.New("providers.discogs.token must be set when providers.discogs.enabled is true (or set DISCOGS_TOKEN)")
	}
	if c.Providers.LastFM.Enabled && strings.TrimSpace(c.Providers.LastFM.APIKey) == "" {
		return errors.New("providers.lastfm.api_key must be set when providers.lastfm.enabled is true (or set LASTFM_API_KEY)")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
