package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCatalog(); err != nil {
		return err
	}
	c.normalizeProbe()
	c.normalizeScan()
	c.normalizeResolve()
	c.normalizeAI()
	c.normalizeWebSearch()
	c.normalizeProviders()
	c.normalizeNotifications()
	c.normalizeLogging()
	c.normalizeHistory()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	roots := make([]string, 0, len(c.Paths.LibraryRoots))
	for _, root := range c.Paths.LibraryRoots {
		trimmed := strings.TrimSpace(root)
		if trimmed == "" {
			continue
		}
		expanded, err := expandPath(trimmed)
		if err != nil {
			return fmt.Errorf("paths.library_roots: %w", err)
		}
		roots = append(roots, expanded)
	}
	c.Paths.LibraryRoots = roots

	if strings.TrimSpace(c.Paths.QuarantineDir) == "" {
		c.Paths.QuarantineDir = defaultQuarantineDir
	}
	if c.Paths.QuarantineDir, err = expandPath(c.Paths.QuarantineDir); err != nil {
		return fmt.Errorf("paths.quarantine_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCatalog() error {
	var err error
	c.Catalog.DBPath = strings.TrimSpace(c.Catalog.DBPath)
	if c.Catalog.DBPath != "" {
		if c.Catalog.DBPath, err = expandPath(c.Catalog.DBPath); err != nil {
			return fmt.Errorf("catalog.db_path: %w", err)
		}
	}
	mappings := make([]PathMapping, 0, len(c.Catalog.PathMappings))
	for _, mapping := range c.Catalog.PathMappings {
		from := strings.TrimSpace(mapping.From)
		to := strings.TrimSpace(mapping.To)
		if from == "" || to == "" {
			continue
		}
		expanded, err := expandPath(to)
		if err != nil {
			return fmt.Errorf("catalog.path_mappings: %w", err)
		}
		mappings = append(mappings, PathMapping{From: from, To: expanded})
	}
	c.Catalog.PathMappings = mappings
	return nil
}

func (c *Config) normalizeProbe() {
	c.Probe.Binary = strings.TrimSpace(c.Probe.Binary)
	if c.Probe.Binary == "" {
		c.Probe.Binary = defaultProbeBinary
	}
	if c.Probe.Workers <= 0 {
		c.Probe.Workers = defaultProbeWorkers
	}
	if c.Probe.TimeoutSeconds <= 0 {
		c.Probe.TimeoutSeconds = defaultProbeTimeoutSeconds
	}
	if c.Probe.SampleFiles <= 0 {
		c.Probe.SampleFiles = defaultProbeSampleFiles
	}
}

func (c *Config) normalizeScan() {
	if c.Scan.Workers <= 0 {
		c.Scan.Workers = defaultScanWorkers
	}
	if c.Scan.AIWorkers <= 0 {
		c.Scan.AIWorkers = defaultAIWorkers
	}
	if c.Scan.GapThreshold <= 0 {
		c.Scan.GapThreshold = defaultGapThreshold
	}
	if c.Scan.MissingTrackPct <= 0 {
		c.Scan.MissingTrackPct = defaultMissingTrackPct
	}
	if c.Scan.MaxConsecutiveEmptyArtists <= 0 {
		c.Scan.MaxConsecutiveEmptyArtists = defaultMaxConsecutiveEmptyArtists
	}
	if c.Scan.ClassicalDurationTolerance <= 0 {
		c.Scan.ClassicalDurationTolerance = defaultClassicalDurationTolerance
	}
}

func (c *Config) normalizeResolve() {
	c.Resolve.BaseURL = strings.TrimRight(strings.TrimSpace(c.Resolve.BaseURL), "/")
	if c.Resolve.BaseURL == "" {
		c.Resolve.BaseURL = defaultResolveBaseURL
	}
	c.Resolve.CoverArtBaseURL = strings.TrimRight(strings.TrimSpace(c.Resolve.CoverArtBaseURL), "/")
	if c.Resolve.CoverArtBaseURL == "" {
		c.Resolve.CoverArtBaseURL = defaultCoverArtBaseURL
	}
	c.Resolve.UserAgent = strings.TrimSpace(c.Resolve.UserAgent)
	if c.Resolve.UserAgent == "" {
		c.Resolve.UserAgent = defaultResolveUserAgent
	}
	if c.Resolve.RateIntervalMS <= 0 {
		c.Resolve.RateIntervalMS = defaultRateIntervalMS
	}
	if c.Resolve.QueueTimeoutSeconds <= 0 {
		c.Resolve.QueueTimeoutSeconds = defaultQueueTimeoutSeconds
	}
}

func (c *Config) normalizeAI() {
	c.AI.APIKey = strings.TrimSpace(c.AI.APIKey)
	if c.AI.APIKey == "" {
		if value, ok := os.LookupEnv("DEADWAX_AI_API_KEY"); ok {
			c.AI.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.AI.APIKey = strings.TrimSpace(value)
		}
	}
	c.AI.BaseURL = strings.TrimSpace(c.AI.BaseURL)
	if c.AI.BaseURL == "" {
		c.AI.BaseURL = defaultAIBaseURL
	}
	c.AI.Model = strings.TrimSpace(c.AI.Model)
	if c.AI.Model == "" {
		c.AI.Model = defaultAIModel
	}
	c.AI.Referer = strings.TrimSpace(c.AI.Referer)
	c.AI.Title = strings.TrimSpace(c.AI.Title)
	if c.AI.Title == "" {
		c.AI.Title = defaultAITitle
	}
	if c.AI.TimeoutSeconds <= 0 {
		c.AI.TimeoutSeconds = defaultAITimeoutSeconds
	}
}

func (c *Config) normalizeWebSearch() {
	c.WebSearch.BaseURL = strings.TrimRight(strings.TrimSpace(c.WebSearch.BaseURL), "/")
	if c.WebSearch.TimeoutSeconds <= 0 {
		c.WebSearch.TimeoutSeconds = defaultWebSearchTimeoutSeconds
	}
}

func (c *Config) normalizeProviders() {
	c.Providers.Discogs.Token = strings.TrimSpace(c.Providers.Discogs.Token)
	if c.Providers.Discogs.Token == "" {
		if value, ok := os.LookupEnv("DISCOGS_TOKEN"); ok {
			c.Providers.Discogs.Token = strings.TrimSpace(value)
		}
	}
	c.Providers.Discogs.BaseURL = strings.TrimRight(strings.TrimSpace(c.Providers.Discogs.BaseURL), "/")
	if c.Providers.Discogs.BaseURL == "" {
		c.Providers.Discogs.BaseURL = defaultDiscogsBaseURL
	}

	c.Providers.LastFM.APIKey = strings.TrimSpace(c.Providers.LastFM.APIKey)
	if c.Providers.LastFM.APIKey == "" {
		if value, ok := os.LookupEnv("LASTFM_API_KEY"); ok {
			c.Providers.LastFM.APIKey = strings.TrimSpace(value)
		}
	}
	c.Providers.LastFM.BaseURL = strings.TrimSpace(c.Providers.LastFM.BaseURL)
	if c.Providers.LastFM.BaseURL == "" {
		c.Providers.LastFM.BaseURL = defaultLastFMBaseURL
	}

	c.Providers.Bandcamp.BaseURL = strings.TrimRight(strings.TrimSpace(c.Providers.Bandcamp.BaseURL), "/")
	if c.Providers.Bandcamp.BaseURL == "" {
		c.Providers.Bandcamp.BaseURL = defaultBandcampBaseURL
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.WebhookURL = strings.TrimSpace(c.Notifications.WebhookURL)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeHistory() {
	if c.History.KeepRuns <= 0 {
		c.History.KeepRuns = defaultHistoryKeepRuns
	}
}
